package memory

import (
	"context"

	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
)

type AgentRepo struct {
	db *DB
}

func NewAgentRepo(db *DB) *AgentRepo {
	return &AgentRepo{db: db}
}

func (r *AgentRepo) Create(_ context.Context, agent *domain.Agent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if existing, ok := r.db.agents[agent.ID]; ok {
		agent.CreatedAt = existing.CreatedAt
	} else {
		agent.CreatedAt = r.db.serverTime()
	}
	r.db.agents[agent.ID] = cloneAgent(*agent)
	return nil
}

func (r *AgentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.agents[id]
	if !ok {
		return nil, nil
	}
	a = cloneAgent(a)
	return &a, nil
}

func (r *AgentRepo) UpdateDeviceToken(_ context.Context, id, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.agents[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.DeviceToken = &token
	r.db.agents[id] = a
	return nil
}
