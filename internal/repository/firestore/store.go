// Package firestore stores documents in Cloud Firestore using its native
// transactions, server timestamps and snapshot listeners.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/vedran77/chatcore/internal/repository"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection    = "users"
	agentsCollection   = "agents"
	roomsCollection    = "rooms"
	messagesCollection = "messages"
)

func mapError(err error) error {
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.NotFound:
		return repository.ErrNotFound
	case codes.AlreadyExists:
		return repository.ErrAlreadyExists
	case codes.Aborted:
		return fmt.Errorf("%w: %v", repository.ErrTransactionConflict, err)
	}
	return err
}

// watchQuery runs q as a snapshot listener, decoding every document of each
// snapshot.
func watchQuery[T any](
	ctx context.Context,
	q firestore.Query,
	decode func(*firestore.DocumentSnapshot) (T, error),
	onSnapshot func([]T),
	onError func(error),
) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	it := q.Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			qs, err := it.Next()
			if ctx.Err() != nil || errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				onError(err)
				return
			}

			docs, err := qs.Documents.GetAll()
			if err != nil {
				onError(err)
				return
			}
			items := make([]T, 0, len(docs))
			for _, doc := range docs {
				item, err := decode(doc)
				if err != nil {
					onError(fmt.Errorf("decoding %s: %w", doc.Ref.Path, err))
					return
				}
				items = append(items, item)
			}
			onSnapshot(items)
		}
	}()

	return repository.Unsubscribe(cancel)
}

func getAll[T any](ctx context.Context, q firestore.Query, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decode(doc)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", doc.Ref.Path, err)
		}
		items = append(items, item)
	}
	return items, nil
}
