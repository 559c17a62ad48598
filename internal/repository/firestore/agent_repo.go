package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
)

type AgentRepo struct {
	client *firestore.Client
}

func NewAgentRepo(client *firestore.Client) *AgentRepo {
	return &AgentRepo{client: client}
}

func (r *AgentRepo) Create(ctx context.Context, agent *domain.Agent) error {
	ref := r.client.Collection(agentsCollection).Doc(agent.ID)

	wr, err := ref.Create(ctx, agent)
	if err == nil {
		agent.CreatedAt = wr.UpdateTime
		return nil
	}
	if !errors.Is(mapError(err), repository.ErrAlreadyExists) {
		return fmt.Errorf("creating agent %s: %w", agent.ID, err)
	}

	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "first_name", Value: agent.FirstName},
		{Path: "last_name", Value: agent.LastName},
		{Path: "image", Value: agent.Image},
		{Path: "device_token", Value: agent.DeviceToken},
		{Path: "tags", Value: agent.Tags},
	})
	if err != nil {
		return mapError(err)
	}
	existing, err := r.GetByID(ctx, agent.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		agent.CreatedAt = existing.CreatedAt
	}
	return nil
}

func (r *AgentRepo) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	doc, err := r.client.Collection(agentsCollection).Doc(id).Get(ctx)
	if err != nil {
		if errors.Is(mapError(err), repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var a domain.Agent
	if err := doc.DataTo(&a); err != nil {
		return nil, err
	}
	a.ID = doc.Ref.ID
	return &a, nil
}

func (r *AgentRepo) UpdateDeviceToken(ctx context.Context, id, token string) error {
	_, err := r.client.Collection(agentsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "device_token", Value: token},
	})
	return mapError(err)
}
