// Package postgres stores documents in PostgreSQL. Live queries are driven
// by LISTEN/NOTIFY: every write notifies the topics it touches inside its
// own transaction, so subscribers only ever reload committed state.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/chatcore/internal/repository"
)

// NotifyChannel is the LISTEN channel carrying change topics.
const NotifyChannel = "chatcore_changes"

const (
	topicUsers = "users"
	topicRooms = "rooms"
)

func messagesTopic(roomID string) string {
	return "messages:" + roomID
}

type scanner interface {
	Scan(dest ...any) error
}

func withTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func notify(ctx context.Context, tx pgx.Tx, topics ...string) error {
	for _, topic := range topics {
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, topic); err != nil {
			return fmt.Errorf("notifying %s: %w", topic, err)
		}
	}
	return nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", repository.ErrTransactionConflict, pgErr.Message)
		case "23505":
			return repository.ErrAlreadyExists
		case "23503":
			return repository.ErrNotFound
		}
	}
	return err
}
