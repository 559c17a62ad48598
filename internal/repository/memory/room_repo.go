package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
	"github.com/vedran77/chatcore/internal/repository/watch"
)

type RoomRepo struct {
	db *DB
}

func NewRoomRepo(db *DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func (r *RoomRepo) Create(_ context.Context, room *domain.Room) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.rooms[room.ID]; ok {
		return repository.ErrAlreadyExists
	}
	room.CreatedAt = r.db.serverTime()
	r.db.rooms[room.ID] = cloneRoom(*room)
	r.db.broker.Publish(topicRooms)
	return nil
}

func (r *RoomRepo) GetByID(_ context.Context, id string) (*domain.Room, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	room, ok := r.db.rooms[id]
	if !ok {
		return nil, nil
	}
	room = cloneRoom(room)
	return &room, nil
}

func (r *RoomRepo) ListPrivateByMember(_ context.Context, userID string) ([]domain.Room, error) {
	return r.filter(func(room *domain.Room) bool {
		return room.Scope == domain.RoomScopePrivate && room.HasMember(userID)
	}), nil
}

func (r *RoomRepo) AssignAgent(_ context.Context, roomID string, agent domain.UserPreview) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	room, ok := r.db.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	if room.Agent != nil && room.Agent.ID != agent.ID {
		return repository.ErrPreconditionFailed
	}
	preview := clonePreview(agent)
	room.Agent = &preview
	r.db.rooms[roomID] = room
	r.db.broker.Publish(topicRooms)
	return nil
}

func (r *RoomRepo) AddMember(_ context.Context, roomID, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	room, ok := r.db.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	if room.HasMember(userID) {
		return nil
	}
	room.UserIDs = append(slices.Clone(room.UserIDs), userID)
	r.db.rooms[roomID] = room
	r.db.broker.Publish(topicRooms)
	return nil
}

func (r *RoomRepo) WatchByMember(ctx context.Context, userID string, onSnapshot func([]domain.Room), onError func(error)) (repository.Unsubscribe, error) {
	load := func(context.Context) ([]domain.Room, error) {
		return r.filter(func(room *domain.Room) bool {
			return room.HasMember(userID)
		}), nil
	}
	return watch.Run(ctx, r.db.broker, topicRooms, load, onSnapshot, onError), nil
}

func (r *RoomRepo) WatchAgentRooms(ctx context.Context, tags []string, onSnapshot func([]domain.Room), onError func(error)) (repository.Unsubscribe, error) {
	tags = slices.Clone(tags)
	load := func(context.Context) ([]domain.Room, error) {
		return r.filter(func(room *domain.Room) bool {
			return room.Scope == domain.RoomScopeAgent && room.Tag != nil && slices.Contains(tags, *room.Tag)
		}), nil
	}
	return watch.Run(ctx, r.db.broker, topicRooms, load, onSnapshot, onError), nil
}

func (r *RoomRepo) filter(match func(*domain.Room) bool) []domain.Room {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	rooms := []domain.Room{}
	for _, room := range r.db.rooms {
		if match(&room) {
			rooms = append(rooms, cloneRoom(room))
		}
	}
	slices.SortFunc(rooms, func(a, b domain.Room) int {
		return strings.Compare(a.ID, b.ID)
	})
	return rooms
}
