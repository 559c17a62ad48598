package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
)

// Firestore caps the operand of an "in" filter.
const maxInValues = 30

type RoomRepo struct {
	client *firestore.Client
}

func NewRoomRepo(client *firestore.Client) *RoomRepo {
	return &RoomRepo{client: client}
}

func decodeRoom(doc *firestore.DocumentSnapshot) (domain.Room, error) {
	var room domain.Room
	if err := doc.DataTo(&room); err != nil {
		return domain.Room{}, err
	}
	room.ID = doc.Ref.ID
	return room, nil
}

func (r *RoomRepo) rooms() *firestore.CollectionRef {
	return r.client.Collection(roomsCollection)
}

func (r *RoomRepo) Create(ctx context.Context, room *domain.Room) error {
	wr, err := r.rooms().Doc(room.ID).Create(ctx, room)
	if err != nil {
		return mapError(err)
	}
	room.CreatedAt = wr.UpdateTime
	return nil
}

func (r *RoomRepo) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	doc, err := r.rooms().Doc(id).Get(ctx)
	if err != nil {
		if errors.Is(mapError(err), repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	room, err := decodeRoom(doc)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *RoomRepo) ListPrivateByMember(ctx context.Context, userID string) ([]domain.Room, error) {
	q := r.rooms().
		Where("scope", "==", string(domain.RoomScopePrivate)).
		Where("users_ids", "array-contains", userID)
	return getAll(ctx, q, decodeRoom)
}

func (r *RoomRepo) AssignAgent(ctx context.Context, roomID string, agent domain.UserPreview) error {
	ref := r.rooms().Doc(roomID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		room, err := decodeRoom(doc)
		if err != nil {
			return err
		}
		if room.Agent != nil && room.Agent.ID != agent.ID {
			return repository.ErrPreconditionFailed
		}
		return tx.Update(ref, []firestore.Update{{Path: "agent", Value: agent}})
	})
	return mapError(err)
}

func (r *RoomRepo) AddMember(ctx context.Context, roomID, userID string) error {
	_, err := r.rooms().Doc(roomID).Update(ctx, []firestore.Update{
		{Path: "users_ids", Value: firestore.ArrayUnion(userID)},
	})
	return mapError(err)
}

func (r *RoomRepo) WatchByMember(ctx context.Context, userID string, onSnapshot func([]domain.Room), onError func(error)) (repository.Unsubscribe, error) {
	q := r.rooms().Where("users_ids", "array-contains", userID)
	return watchQuery(ctx, q, decodeRoom, onSnapshot, onError), nil
}

func (r *RoomRepo) WatchAgentRooms(ctx context.Context, tags []string, onSnapshot func([]domain.Room), onError func(error)) (repository.Unsubscribe, error) {
	if len(tags) == 0 || len(tags) > maxInValues {
		return nil, fmt.Errorf("watching agent rooms: need 1 to %d tags, got %d", maxInValues, len(tags))
	}
	q := r.rooms().
		Where("scope", "==", string(domain.RoomScopeAgent)).
		Where("tag", "in", tags)
	return watchQuery(ctx, q, decodeRoom, onSnapshot, onError), nil
}
