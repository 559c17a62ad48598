package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
)

type UserRepo struct {
	client *firestore.Client
}

func NewUserRepo(client *firestore.Client) *UserRepo {
	return &UserRepo{client: client}
}

func decodeUser(doc *firestore.DocumentSnapshot) (domain.User, error) {
	var u domain.User
	if err := doc.DataTo(&u); err != nil {
		return domain.User{}, err
	}
	u.ID = doc.Ref.ID
	return u, nil
}

// Create inserts the profile, or overwrites its fields while keeping the
// original created_at when it already exists.
func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	ref := r.client.Collection(usersCollection).Doc(user.ID)

	wr, err := ref.Create(ctx, user)
	if err == nil {
		user.CreatedAt = wr.UpdateTime
		return nil
	}
	if !errors.Is(mapError(err), repository.ErrAlreadyExists) {
		return fmt.Errorf("creating user %s: %w", user.ID, err)
	}

	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "first_name", Value: user.FirstName},
		{Path: "last_name", Value: user.LastName},
		{Path: "image", Value: user.Image},
		{Path: "device_token", Value: user.DeviceToken},
	})
	if err != nil {
		return mapError(err)
	}
	existing, err := r.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		user.CreatedAt = existing.CreatedAt
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if errors.Is(mapError(err), repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	u, err := decodeUser(doc)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Update(ctx context.Context, id string, update domain.ProfileUpdate) error {
	var updates []firestore.Update
	if update.FirstName != nil {
		updates = append(updates, firestore.Update{Path: "first_name", Value: *update.FirstName})
	}
	if update.LastName != nil {
		updates = append(updates, firestore.Update{Path: "last_name", Value: *update.LastName})
	}
	if update.Image != nil {
		updates = append(updates, firestore.Update{Path: "image", Value: *update.Image})
	}
	if len(updates) == 0 {
		u, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if u == nil {
			return repository.ErrNotFound
		}
		return nil
	}

	_, err := r.client.Collection(usersCollection).Doc(id).Update(ctx, updates)
	return mapError(err)
}

func (r *UserRepo) UpdateDeviceToken(ctx context.Context, id, token string) error {
	_, err := r.client.Collection(usersCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "device_token", Value: token},
	})
	return mapError(err)
}

func (r *UserRepo) Watch(ctx context.Context, onSnapshot func([]domain.User), onError func(error)) (repository.Unsubscribe, error) {
	q := r.client.Collection(usersCollection).Query
	return watchQuery(ctx, q, decodeUser, onSnapshot, onError), nil
}
