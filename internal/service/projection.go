package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
)

// maxProfileFetches bounds concurrent profile reads per snapshot.
const maxProfileFetches = 8

// UserToPreview projects a profile to the fields embedded into rooms.
func UserToPreview(u *domain.User) domain.UserPreview {
	return u.Preview()
}

// ProjectRooms drops rooms whose creation timestamp has not resolved yet and
// rebuilds every room's users from profiles, current members first. Ids
// without a profile project to an id-only preview.
func ProjectRooms(rooms []domain.Room, profiles map[string]domain.UserPreview) []domain.Room {
	out := make([]domain.Room, 0, len(rooms))
	for _, room := range rooms {
		if !room.Materialized() {
			continue
		}
		room.Users = previewsFor(room.ProfileIDs(), profiles)
		out = append(out, room)
	}
	return out
}

// ProjectMessages drops messages whose creation timestamp has not resolved
// yet and orders the rest newest first.
func ProjectMessages(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.Materialized() {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Message) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

func previewsFor(ids []string, profiles map[string]domain.UserPreview) []domain.UserPreview {
	previews := make([]domain.UserPreview, len(ids))
	for i, id := range ids {
		if p, ok := profiles[id]; ok {
			previews[i] = p
		} else {
			previews[i] = domain.UserPreview{ID: id}
		}
	}
	return previews
}

// resolvePreviews fetches the current profile of every distinct id. Missing
// profiles are left out of the result; a failed read fails the whole call.
func resolvePreviews(ctx context.Context, users repository.UserRepository, ids []string) (map[string]domain.UserPreview, error) {
	distinct := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			distinct = append(distinct, id)
		}
	}

	var mu sync.Mutex
	profiles := make(map[string]domain.UserPreview, len(distinct))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxProfileFetches)
	for _, id := range distinct {
		g.Go(func() error {
			u, err := users.GetByID(ctx, id)
			if err != nil {
				return fmt.Errorf("resolving profile %s: %w", id, err)
			}
			if u == nil {
				return nil
			}
			mu.Lock()
			profiles[id] = u.Preview()
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return profiles, nil
}

// projectRoomsLive is the per-snapshot projection of the room subscriptions.
func projectRoomsLive(users repository.UserRepository) func(context.Context, []domain.Room) ([]domain.Room, error) {
	return func(ctx context.Context, rooms []domain.Room) ([]domain.Room, error) {
		var ids []string
		for _, room := range rooms {
			if room.Materialized() {
				ids = append(ids, room.ProfileIDs()...)
			}
		}
		profiles, err := resolvePreviews(ctx, users, ids)
		if err != nil {
			return nil, err
		}
		return ProjectRooms(rooms, profiles), nil
	}
}
