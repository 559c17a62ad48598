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
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUserNotFound     = errors.New("user not found")
	ErrEmptyUpdate      = errors.New("nothing to update")
	ErrMissingToken     = errors.New("device token is required")
)

type UserService struct {
	users repository.UserRepository
	log   zerolog.Logger
}

func NewUserService(users repository.UserRepository, log zerolog.Logger) *UserService {
	return &UserService{
		users: users,
		log:   log.With().Str("component", "user_service").Logger(),
	}
}

type CreateUserInput struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Image     *string `json:"image"`
}

// CreateUser writes the profile of the authenticated principal uid. The
// device token starts empty.
func (s *UserService) CreateUser(ctx context.Context, uid string, input CreateUserInput) (*domain.User, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}

	user := &domain.User{
		ID:        uid,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Image:     input.Image,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.log.Info().Str("user_id", uid).Msg("user created")
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateUser applies the non-nil fields of update and returns the stored
// profile.
func (s *UserService) UpdateUser(ctx context.Context, uid string, update domain.ProfileUpdate) (*domain.User, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	if update.IsEmpty() {
		return nil, ErrEmptyUpdate
	}

	if err := s.users.Update(ctx, uid, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return s.GetUser(ctx, uid)
}

func (s *UserService) UpdateDeviceToken(ctx context.Context, uid, token string) error {
	if uid == "" {
		return ErrNotAuthenticated
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}

	if err := s.users.UpdateDeviceToken(ctx, uid, token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("updating device token: %w", err)
	}
	return nil
}

// FetchUsers subscribes to the full user list.
func (s *UserService) FetchUsers(ctx context.Context, uid string, onUpdate func([]domain.User), onError func(error)) (repository.Unsubscribe, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	return subscribe(ctx, "users", s.users.Watch, func(_ context.Context, users []domain.User) ([]domain.User, error) {
		return users, nil
	}, onUpdate, onError)
}
