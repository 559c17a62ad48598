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

const userColumns = `id, first_name, last_name, image, created_at, device_token`

type UserRepo struct {
	pool   *pgxpool.Pool
	broker *watch.Broker
}

func NewUserRepo(pool *pgxpool.Pool, broker *watch.Broker) *UserRepo {
	return &UserRepo{pool: pool, broker: broker}
}

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Image, &u.CreatedAt, &u.DeviceToken); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query := `
			INSERT INTO users (id, first_name, last_name, image, device_token)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				image = EXCLUDED.image,
				device_token = EXCLUDED.device_token
			RETURNING created_at`
		err := tx.QueryRow(ctx, query,
			user.ID, user.FirstName, user.LastName, user.Image, user.DeviceToken,
		).Scan(&user.CreatedAt)
		if err != nil {
			return err
		}
		return notify(ctx, tx, topicUsers)
	})
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *UserRepo) Update(ctx context.Context, id string, update domain.ProfileUpdate) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query := `
			UPDATE users SET
				first_name = COALESCE($2, first_name),
				last_name = COALESCE($3, last_name),
				image = COALESCE($4, image)
			WHERE id = $1`
		tag, err := tx.Exec(ctx, query, id, update.FirstName, update.LastName, update.Image)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return notify(ctx, tx, topicUsers)
	})
}

func (r *UserRepo) UpdateDeviceToken(ctx context.Context, id, token string) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET device_token = $2 WHERE id = $1`, id, token)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return notify(ctx, tx, topicUsers)
	})
}

func (r *UserRepo) Watch(ctx context.Context, onSnapshot func([]domain.User), onError func(error)) (repository.Unsubscribe, error) {
	return watch.Run(ctx, r.broker, topicUsers, r.list, onSnapshot, onError), nil
}

func (r *UserRepo) list(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
