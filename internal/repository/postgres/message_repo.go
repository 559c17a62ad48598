package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
	"github.com/vedran77/chatcore/internal/repository/watch"
)

const messageColumns = `
	id, content_type, created_by, room_id, text, metadata, file,
	delivered, read_by, created_at, updated_at`

type MessageRepo struct {
	pool   *pgxpool.Pool
	broker *watch.Broker
}

func NewMessageRepo(pool *pgxpool.Pool, broker *watch.Broker) *MessageRepo {
	return &MessageRepo{pool: pool, broker: broker}
}

func scanMessage(row scanner) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID, &m.ContentType, &m.CreatedBy, &m.Room, &m.Text, &m.Metadata, &m.File,
		&m.Delivered, &m.ReadBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateWithRoomPreview runs at SERIALIZABLE. The room row is updated first
// so a missing room aborts before the message is inserted, and both rows
// carry the same now().
func (r *MessageRepo) CreateWithRoomPreview(ctx context.Context, msg *domain.Message, preview domain.LastMessage) error {
	var now time.Time
	err := withTx(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE rooms
			SET last_message = jsonb_set($2::jsonb, '{sent_at}', to_jsonb(now()))
			WHERE id = $1
			RETURNING now()`, msg.Room, preview).Scan(&now)
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO messages (room_id, id, content_type, created_by, text, metadata, file,
				delivered, read_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
			msg.Room, msg.ID, msg.ContentType, msg.CreatedBy, msg.Text, msg.Metadata, msg.File,
			msg.Delivered, nonNil(msg.ReadBy), now,
		)
		if err != nil {
			return err
		}
		return notify(ctx, tx, topicRooms, messagesTopic(msg.Room))
	})
	if err != nil {
		return err
	}

	msg.CreatedAt = now
	msg.UpdatedAt = now
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, roomID, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE room_id = $1 AND id = $2`
	m, err := scanMessage(r.pool.QueryRow(ctx, query, roomID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, roomID, id string) error {
	return r.update(ctx, roomID, `UPDATE messages SET delivered = true WHERE room_id = $1 AND id = $2`, roomID, id)
}

// AddReader relies on the row lock taken by UPDATE, so concurrent readers
// never overwrite each other.
func (r *MessageRepo) AddReader(ctx context.Context, roomID, id, readerID string) error {
	query := `
		UPDATE messages
		SET read_by = CASE
			WHEN $3 = ANY(read_by) THEN read_by
			ELSE array_append(read_by, $3)
		END
		WHERE room_id = $1 AND id = $2`
	return r.update(ctx, roomID, query, roomID, id, readerID)
}

func (r *MessageRepo) Delete(ctx context.Context, roomID, id string) error {
	err := r.update(ctx, roomID, `DELETE FROM messages WHERE room_id = $1 AND id = $2`, roomID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func (r *MessageRepo) WatchByRoom(ctx context.Context, roomID string, onSnapshot func([]domain.Message), onError func(error)) (repository.Unsubscribe, error) {
	load := func(ctx context.Context) ([]domain.Message, error) {
		rows, err := r.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE room_id = $1
			ORDER BY created_at DESC`, roomID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		messages := []domain.Message{}
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				return nil, err
			}
			messages = append(messages, *m)
		}
		return messages, rows.Err()
	}
	return watch.Run(ctx, r.broker, messagesTopic(roomID), load, onSnapshot, onError), nil
}

func (r *MessageRepo) update(ctx context.Context, roomID, query string, args ...any) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return notify(ctx, tx, messagesTopic(roomID))
	})
}
