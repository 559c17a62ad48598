package memory

import (
	"context"
	"slices"

	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
	"github.com/vedran77/chatcore/internal/repository/watch"
)

type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) CreateWithRoomPreview(_ context.Context, msg *domain.Message, preview domain.LastMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	room, ok := r.db.rooms[msg.Room]
	if !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.db.messages[msg.Room][msg.ID]; ok {
		return repository.ErrAlreadyExists
	}

	now := r.db.serverTime()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	preview.SentAt = now

	if r.db.messages[msg.Room] == nil {
		r.db.messages[msg.Room] = make(map[string]domain.Message)
	}
	r.db.messages[msg.Room][msg.ID] = cloneMessage(*msg)
	room.LastMessage = &preview
	r.db.rooms[msg.Room] = room

	r.db.broker.Publish(topicRooms, messagesTopic(msg.Room))
	return nil
}

func (r *MessageRepo) GetByID(_ context.Context, roomID, id string) (*domain.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	msg, ok := r.db.messages[roomID][id]
	if !ok {
		return nil, nil
	}
	msg = cloneMessage(msg)
	return &msg, nil
}

func (r *MessageRepo) MarkDelivered(_ context.Context, roomID, id string) error {
	return r.mutate(roomID, id, func(msg *domain.Message) {
		msg.Delivered = true
	})
}

func (r *MessageRepo) AddReader(_ context.Context, roomID, id, readerID string) error {
	return r.mutate(roomID, id, func(msg *domain.Message) {
		if !msg.ReadByUser(readerID) {
			msg.ReadBy = append(slices.Clone(msg.ReadBy), readerID)
		}
	})
}

func (r *MessageRepo) Delete(_ context.Context, roomID, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.messages[roomID][id]; !ok {
		return nil
	}
	delete(r.db.messages[roomID], id)
	r.db.broker.Publish(messagesTopic(roomID))
	return nil
}

func (r *MessageRepo) WatchByRoom(ctx context.Context, roomID string, onSnapshot func([]domain.Message), onError func(error)) (repository.Unsubscribe, error) {
	return watch.Run(ctx, r.db.broker, messagesTopic(roomID), func(context.Context) ([]domain.Message, error) {
		return r.list(roomID), nil
	}, onSnapshot, onError), nil
}

func (r *MessageRepo) list(roomID string) []domain.Message {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	messages := make([]domain.Message, 0, len(r.db.messages[roomID]))
	for _, msg := range r.db.messages[roomID] {
		messages = append(messages, cloneMessage(msg))
	}
	return messages
}

func (r *MessageRepo) mutate(roomID, id string, fn func(*domain.Message)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	msg, ok := r.db.messages[roomID][id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&msg)
	r.db.messages[roomID][id] = msg
	r.db.broker.Publish(messagesTopic(roomID))
	return nil
}
