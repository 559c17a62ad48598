package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
)

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrInvalidTag    = errors.New("tag must not be empty")
)

type AgentService struct {
	agents repository.AgentRepository
	log    zerolog.Logger
}

func NewAgentService(agents repository.AgentRepository, log zerolog.Logger) *AgentService {
	return &AgentService{
		agents: agents,
		log:    log.With().Str("component", "agent_service").Logger(),
	}
}

type CreateAgentInput struct {
	FirstName *string  `json:"first_name"`
	LastName  *string  `json:"last_name"`
	Image     *string  `json:"image"`
	Tags      []string `json:"tags"`
}

// normalizeTags trims, drops blanks and dedupes, keeping the first
// occurrence order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// CreateAgent registers the authenticated principal uid as an agent serving
// the given tags.
func (s *AgentService) CreateAgent(ctx context.Context, uid string, input CreateAgentInput) (*domain.Agent, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	tags := normalizeTags(input.Tags)
	if len(tags) == 0 {
		return nil, ErrInvalidTag
	}

	agent := &domain.Agent{
		ID:        uid,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Image:     input.Image,
		Tags:      tags,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	s.log.Info().Str("agent_id", uid).Strs("tags", tags).Msg("agent created")
	return agent, nil
}

func (s *AgentService) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	return agent, nil
}

func (s *AgentService) UpdateDeviceToken(ctx context.Context, uid, token string) error {
	if uid == "" {
		return ErrNotAuthenticated
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}

	if err := s.agents.UpdateDeviceToken(ctx, uid, token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAgentNotFound
		}
		return fmt.Errorf("updating agent device token: %w", err)
	}
	return nil
}
