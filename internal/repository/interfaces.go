package repository

import (
	"context"
	"errors"

	"github.com/vedran77/chatcore/internal/domain"
)

var (
	// ErrNotFound is returned by mutations that target a missing document.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by create-if-absent writes.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrPreconditionFailed is returned by conditional writes whose
	// condition no longer holds.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrTransactionConflict is returned when a transaction lost a race with
	// a concurrent writer and was rolled back.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// Unsubscribe stops a live query. It is idempotent and may be called from
// inside the subscription's own callbacks.
type Unsubscribe func()

// Live queries are level-triggered: every delivery carries the complete
// current result set. Callbacks of one subscription are never invoked
// concurrently. onError is called at most once and ends the subscription.

type UserRepository interface {
	// Create writes the profile, replacing an existing one, and sets
	// CreatedAt. A replaced profile keeps its original creation time.
	Create(ctx context.Context, user *domain.User) error
	// GetByID returns nil, nil when the profile does not exist.
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, id string, update domain.ProfileUpdate) error
	UpdateDeviceToken(ctx context.Context, id, token string) error
	Watch(ctx context.Context, onSnapshot func([]domain.User), onError func(error)) (Unsubscribe, error)
}

type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	UpdateDeviceToken(ctx context.Context, id, token string) error
}

type RoomRepository interface {
	// Create writes a new room and sets CreatedAt to the commit time. It
	// returns ErrAlreadyExists when the id is taken.
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	ListPrivateByMember(ctx context.Context, userID string) ([]domain.Room, error)
	// AssignAgent sets the room's agent unless a different agent is already
	// assigned, in which case it returns ErrPreconditionFailed.
	AssignAgent(ctx context.Context, roomID string, agent domain.UserPreview) error
	// AddMember appends userID to users_ids unless already present.
	AddMember(ctx context.Context, roomID, userID string) error
	WatchByMember(ctx context.Context, userID string, onSnapshot func([]domain.Room), onError func(error)) (Unsubscribe, error)
	WatchAgentRooms(ctx context.Context, tags []string, onSnapshot func([]domain.Room), onError func(error)) (Unsubscribe, error)
}

type MessageRepository interface {
	// CreateWithRoomPreview atomically writes msg and sets the parent room's
	// last_message to preview. CreatedAt, UpdatedAt and preview.SentAt are
	// set to the commit time. A missing room fails the whole write with
	// ErrNotFound.
	CreateWithRoomPreview(ctx context.Context, msg *domain.Message, preview domain.LastMessage) error
	GetByID(ctx context.Context, roomID, id string) (*domain.Message, error)
	MarkDelivered(ctx context.Context, roomID, id string) error
	// AddReader is an atomic set-union of readerID into read_by.
	AddReader(ctx context.Context, roomID, id, readerID string) error
	Delete(ctx context.Context, roomID, id string) error
	WatchByRoom(ctx context.Context, roomID string, onSnapshot func([]domain.Message), onError func(error)) (Unsubscribe, error)
}
