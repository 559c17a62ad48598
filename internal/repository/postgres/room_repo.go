package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
	"github.com/vedran77/chatcore/internal/repository/watch"
)

const roomColumns = `
	id, created_by, created_at, users_ids, removed_users_ids, users,
	scope, tag, name, agent, last_message, metadata`

type RoomRepo struct {
	pool   *pgxpool.Pool
	broker *watch.Broker
}

func NewRoomRepo(pool *pgxpool.Pool, broker *watch.Broker) *RoomRepo {
	return &RoomRepo{pool: pool, broker: broker}
}

func scanRoom(row scanner) (*domain.Room, error) {
	var room domain.Room
	err := row.Scan(
		&room.ID, &room.CreatedBy, &room.CreatedAt, &room.UserIDs, &room.RemovedUserIDs, &room.Users,
		&room.Scope, &room.Tag, &room.Name, &room.Agent, &room.LastMessage, &room.Metadata,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (r *RoomRepo) Create(ctx context.Context, room *domain.Room) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query := `
			INSERT INTO rooms (id, created_by, users_ids, removed_users_ids, users,
				scope, tag, name, agent, last_message, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at`
		err := tx.QueryRow(ctx, query,
			room.ID, room.CreatedBy, nonNil(room.UserIDs), nonNil(room.RemovedUserIDs), nonNil(room.Users),
			room.Scope, room.Tag, room.Name, room.Agent, room.LastMessage, room.Metadata,
		).Scan(&room.CreatedAt)
		if err != nil {
			return err
		}
		return notify(ctx, tx, topicRooms)
	})
}

func (r *RoomRepo) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return room, err
}

func (r *RoomRepo) ListPrivateByMember(ctx context.Context, userID string) ([]domain.Room, error) {
	return r.query(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE scope = 'PRIVATE' AND $1 = ANY(users_ids)
		ORDER BY created_at`, userID)
}

func (r *RoomRepo) AssignAgent(ctx context.Context, roomID string, agent domain.UserPreview) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query := `
			UPDATE rooms SET agent = $2
			WHERE id = $1 AND (agent IS NULL OR agent->>'id' = $3)`
		tag, err := tx.Exec(ctx, query, roomID, agent, agent.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return repository.ErrPreconditionFailed
			}
			return repository.ErrNotFound
		}
		return notify(ctx, tx, topicRooms)
	})
}

func (r *RoomRepo) AddMember(ctx context.Context, roomID, userID string) error {
	query := `
		UPDATE rooms
		SET users_ids = CASE
			WHEN $2 = ANY(users_ids) THEN users_ids
			ELSE array_append(users_ids, $2)
		END
		WHERE id = $1`
	return r.update(ctx, query, roomID, userID)
}

func (r *RoomRepo) WatchByMember(ctx context.Context, userID string, onSnapshot func([]domain.Room), onError func(error)) (repository.Unsubscribe, error) {
	load := func(ctx context.Context) ([]domain.Room, error) {
		return r.query(ctx, `SELECT `+roomColumns+` FROM rooms WHERE $1 = ANY(users_ids) ORDER BY id`, userID)
	}
	return watch.Run(ctx, r.broker, topicRooms, load, onSnapshot, onError), nil
}

func (r *RoomRepo) WatchAgentRooms(ctx context.Context, tags []string, onSnapshot func([]domain.Room), onError func(error)) (repository.Unsubscribe, error) {
	tags = nonNil(tags)
	load := func(ctx context.Context) ([]domain.Room, error) {
		return r.query(ctx, `
			SELECT `+roomColumns+`
			FROM rooms
			WHERE scope = 'AGENT' AND tag = ANY($1)
			ORDER BY id`, tags)
	}
	return watch.Run(ctx, r.broker, topicRooms, load, onSnapshot, onError), nil
}

func (r *RoomRepo) update(ctx context.Context, query string, args ...any) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return notify(ctx, tx, topicRooms)
	})
}

func (r *RoomRepo) query(ctx context.Context, query string, args ...any) ([]domain.Room, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []domain.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}
