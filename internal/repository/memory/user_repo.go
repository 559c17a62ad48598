package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
	"github.com/vedran77/chatcore/internal/repository/watch"
)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(_ context.Context, user *domain.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if existing, ok := r.db.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = r.db.serverTime()
	}
	r.db.users[user.ID] = cloneUser(*user)
	r.db.broker.Publish(topicUsers)
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, nil
	}
	u = cloneUser(u)
	return &u, nil
}

func (r *UserRepo) Update(_ context.Context, id string, update domain.ProfileUpdate) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if update.FirstName != nil {
		u.FirstName = cloneString(update.FirstName)
	}
	if update.LastName != nil {
		u.LastName = cloneString(update.LastName)
	}
	if update.Image != nil {
		u.Image = cloneString(update.Image)
	}
	r.db.users[id] = u
	r.db.broker.Publish(topicUsers)
	return nil
}

func (r *UserRepo) UpdateDeviceToken(_ context.Context, id, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.DeviceToken = &token
	r.db.users[id] = u
	r.db.broker.Publish(topicUsers)
	return nil
}

func (r *UserRepo) Watch(ctx context.Context, onSnapshot func([]domain.User), onError func(error)) (repository.Unsubscribe, error) {
	return watch.Run(ctx, r.db.broker, topicUsers, r.list, onSnapshot, onError), nil
}

func (r *UserRepo) list(context.Context) ([]domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	users := make([]domain.User, 0, len(r.db.users))
	for _, u := range r.db.users {
		users = append(users, cloneUser(u))
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return strings.Compare(a.ID, b.ID)
	})
	return users, nil
}
