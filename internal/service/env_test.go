package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository/memory"
	"github.com/vedran77/chatcore/internal/storage"
)

const waitTimeout = 5 * time.Second

type testEnv struct {
	db       *memory.DB
	users    *memory.UserRepo
	agents   *memory.AgentRepo
	rooms    *memory.RoomRepo
	messages *memory.MessageRepo
	blobs    *storage.Memory

	userSvc    *UserService
	agentSvc   *AgentService
	roomSvc    *RoomService
	messageSvc *MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := memory.New()
	env := &testEnv{
		db:       db,
		users:    memory.NewUserRepo(db),
		agents:   memory.NewAgentRepo(db),
		rooms:    memory.NewRoomRepo(db),
		messages: memory.NewMessageRepo(db),
		blobs:    storage.NewMemory("http://blobs.test"),
	}
	log := zerolog.Nop()
	env.userSvc = NewUserService(env.users, log)
	env.agentSvc = NewAgentService(env.agents, log)
	env.roomSvc = NewRoomService(env.rooms, env.users, env.agents, log)
	env.messageSvc = NewMessageService(env.messages, env.rooms, env.users, env.agents, env.blobs, log)
	return env
}

func ptr(s string) *string { return &s }

func (e *testEnv) user(t *testing.T, id, first string) *domain.User {
	t.Helper()
	u, err := e.userSvc.CreateUser(context.Background(), id, CreateUserInput{FirstName: ptr(first)})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", id, err)
	}
	return u
}

func (e *testEnv) agent(t *testing.T, id string, tags ...string) *domain.Agent {
	t.Helper()
	a, err := e.agentSvc.CreateAgent(context.Background(), id, CreateAgentInput{FirstName: ptr(id), Tags: tags})
	if err != nil {
		t.Fatalf("CreateAgent(%s): %v", id, err)
	}
	return a
}

func (e *testEnv) privateRoom(t *testing.T, a, b *domain.User) *domain.Room {
	t.Helper()
	room, err := e.roomSvc.CreateRoomWithUsers(context.Background(), a.ID, []domain.User{*b}, nil)
	if err != nil {
		t.Fatalf("CreateRoomWithUsers: %v", err)
	}
	return room
}

func (e *testEnv) sendText(t *testing.T, uid, roomID, text string) *domain.Message {
	t.Helper()
	msg, err := e.messageSvc.SendTextMessage(context.Background(), uid, SendTextInput{RoomID: roomID, Text: text})
	if err != nil {
		t.Fatalf("SendTextMessage: %v", err)
	}
	return msg
}

// collector records what a subscription delivers.
type collector[T any] struct {
	mu     sync.Mutex
	snaps  []T
	errs   []error
	notify chan struct{}
}

func newCollector[T any]() *collector[T] {
	return &collector[T]{notify: make(chan struct{}, 1)}
}

func (c *collector[T]) onUpdate(v T) {
	c.mu.Lock()
	c.snaps = append(c.snaps, v)
	c.mu.Unlock()
	c.wake()
}

func (c *collector[T]) onError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	c.wake()
}

func (c *collector[T]) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *collector[T]) waitFor(t *testing.T, match func(T) bool) T {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		c.mu.Lock()
		for _, v := range c.snaps {
			if match(v) {
				c.mu.Unlock()
				return v
			}
		}
		if len(c.errs) > 0 {
			err := c.errs[0]
			c.mu.Unlock()
			t.Fatalf("subscription failed: %v", err)
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("no matching snapshot within %s", waitTimeout)
		}
	}
}

func (c *collector[T]) waitErr(t *testing.T) error {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		c.mu.Lock()
		if len(c.errs) > 0 {
			err := c.errs[0]
			c.mu.Unlock()
			return err
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("no error within %s", waitTimeout)
		}
	}
}

func (c *collector[T]) errCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// failingBlobs rejects every upload.
type failingBlobs struct{}

func (failingBlobs) Upload(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}
