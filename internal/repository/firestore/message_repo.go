package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
)

type MessageRepo struct {
	client *firestore.Client
}

func NewMessageRepo(client *firestore.Client) *MessageRepo {
	return &MessageRepo{client: client}
}

func decodeMessage(doc *firestore.DocumentSnapshot) (domain.Message, error) {
	var m domain.Message
	if err := doc.DataTo(&m); err != nil {
		return domain.Message{}, err
	}
	m.ID = doc.Ref.ID
	return m, nil
}

func (r *MessageRepo) messages(roomID string) *firestore.CollectionRef {
	return r.client.Collection(roomsCollection).Doc(roomID).Collection(messagesCollection)
}

// CreateWithRoomPreview writes the message and the room's last_message in
// one transaction. Transactions are not retried: a contended room surfaces
// as ErrTransactionConflict.
func (r *MessageRepo) CreateWithRoomPreview(ctx context.Context, msg *domain.Message, preview domain.LastMessage) error {
	roomRef := r.client.Collection(roomsCollection).Doc(msg.Room)
	msgRef := r.messages(msg.Room).Doc(msg.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(roomRef); err != nil {
			return err
		}
		if err := tx.Create(msgRef, msg); err != nil {
			return err
		}
		return tx.Update(roomRef, []firestore.Update{{
			Path: "last_message",
			Value: map[string]any{
				"id":      preview.ID,
				"text":    preview.Text,
				"type":    string(preview.Type),
				"sent_by": preview.SentBy,
				"sent_at": firestore.ServerTimestamp,
			},
		}})
	}, firestore.MaxAttempts(1))
	if err != nil {
		return mapError(err)
	}

	// The transaction does not report the resolved server timestamps.
	stored, err := r.GetByID(ctx, msg.Room, msg.ID)
	if err != nil {
		return err
	}
	if stored != nil {
		msg.CreatedAt = stored.CreatedAt
		msg.UpdatedAt = stored.UpdatedAt
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, roomID, id string) (*domain.Message, error) {
	doc, err := r.messages(roomID).Doc(id).Get(ctx)
	if err != nil {
		if errors.Is(mapError(err), repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	m, err := decodeMessage(doc)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, roomID, id string) error {
	_, err := r.messages(roomID).Doc(id).Update(ctx, []firestore.Update{
		{Path: "delivered", Value: true},
	})
	return mapError(err)
}

func (r *MessageRepo) AddReader(ctx context.Context, roomID, id, readerID string) error {
	_, err := r.messages(roomID).Doc(id).Update(ctx, []firestore.Update{
		{Path: "read_by", Value: firestore.ArrayUnion(readerID)},
	})
	return mapError(err)
}

func (r *MessageRepo) Delete(ctx context.Context, roomID, id string) error {
	_, err := r.messages(roomID).Doc(id).Delete(ctx)
	return mapError(err)
}

func (r *MessageRepo) WatchByRoom(ctx context.Context, roomID string, onSnapshot func([]domain.Message), onError func(error)) (repository.Unsubscribe, error) {
	q := r.messages(roomID).OrderBy("created_at", firestore.Desc)
	return watchQuery(ctx, q, decodeMessage, onSnapshot, onError), nil
}
