package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository/repotest"
)

func TestConformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repotest.Stores {
		db := New()
		return repotest.Stores{
			Users:    NewUserRepo(db),
			Agents:   NewAgentRepo(db),
			Rooms:    NewRoomRepo(db),
			Messages: NewMessageRepo(db),
		}
	})
}

func TestServerTimeIsStrictlyIncreasing(t *testing.T) {
	frozen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	db := New(WithClock(func() time.Time { return frozen }))
	rooms := NewRoomRepo(db)

	var prev time.Time
	for i := range 3 {
		room := &domain.Room{ID: string(rune('a' + i)), Scope: domain.RoomScopeGroup}
		if err := rooms.Create(context.Background(), room); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if !room.CreatedAt.After(prev) {
			t.Fatalf("CreatedAt %v not after %v", room.CreatedAt, prev)
		}
		prev = room.CreatedAt
	}
}

func TestReadsAreIsolatedFromCallerMutation(t *testing.T) {
	ctx := context.Background()
	db := New()
	rooms := NewRoomRepo(db)

	room := &domain.Room{ID: "r1", UserIDs: []string{"u1", "u2"}, Scope: domain.RoomScopePrivate}
	if err := rooms.Create(ctx, room); err != nil {
		t.Fatalf("Create: %v", err)
	}
	room.UserIDs[0] = "mallory"

	got, err := rooms.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	got.UserIDs[1] = "eve"

	again, _ := rooms.GetByID(ctx, "r1")
	if again.UserIDs[0] != "u1" || again.UserIDs[1] != "u2" {
		t.Fatalf("stored room was mutated through a caller's copy: %v", again.UserIDs)
	}
}

func TestBrokerFailureEndsSubscription(t *testing.T) {
	db := New()
	users := NewUserRepo(db)

	errc := make(chan error, 2)
	unsub, err := users.Watch(context.Background(), func([]domain.User) {}, func(err error) { errc <- err })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer unsub()

	boom := errors.New("listener lost")
	db.Broker().Fail(boom)

	select {
	case got := <-errc:
		if !errors.Is(got, boom) {
			t.Fatalf("onError(%v), want %v", got, boom)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("onError not called")
	}

	deadline := time.Now().Add(5 * time.Second)
	for db.Broker().Subscribers(topicUsers) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("failed subscription still registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case err := <-errc:
		t.Fatalf("onError called twice: %v", err)
	default:
	}
}
