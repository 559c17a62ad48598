package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
)

type AgentRepo struct {
	pool *pgxpool.Pool
}

func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

func (r *AgentRepo) Create(ctx context.Context, agent *domain.Agent) error {
	query := `
		INSERT INTO agents (id, first_name, last_name, image, device_token, tags)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			image = EXCLUDED.image,
			device_token = EXCLUDED.device_token,
			tags = EXCLUDED.tags
		RETURNING created_at`
	tags := agent.Tags
	if tags == nil {
		tags = []string{}
	}
	err := r.pool.QueryRow(ctx, query,
		agent.ID, agent.FirstName, agent.LastName, agent.Image, agent.DeviceToken, tags,
	).Scan(&agent.CreatedAt)
	return mapError(err)
}

func (r *AgentRepo) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	query := `
		SELECT id, first_name, last_name, image, created_at, device_token, tags
		FROM agents
		WHERE id = $1`
	var a domain.Agent
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.Image, &a.CreatedAt, &a.DeviceToken, &a.Tags,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &a, err
}

func (r *AgentRepo) UpdateDeviceToken(ctx context.Context, id, token string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE agents SET device_token = $2 WHERE id = $1`, id, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
