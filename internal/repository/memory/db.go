// Package memory is an in-process document store with the same transaction,
// timestamp and live-query semantics as the networked backends.
package memory

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository/watch"
)

const (
	topicUsers = "users"
	topicRooms = "rooms"
)

func messagesTopic(roomID string) string {
	return "messages:" + roomID
}

// DB holds every collection behind one lock, so each write is applied and
// published atomically.
type DB struct {
	mu       sync.Mutex
	users    map[string]domain.User
	agents   map[string]domain.Agent
	rooms    map[string]domain.Room
	messages map[string]map[string]domain.Message

	clock func() time.Time
	last  time.Time

	broker *watch.Broker
}

type Option func(*DB)

// WithClock replaces the wall clock used for server timestamps.
func WithClock(clock func() time.Time) Option {
	return func(db *DB) {
		db.clock = clock
	}
}

func New(opts ...Option) *DB {
	db := &DB{
		users:    make(map[string]domain.User),
		agents:   make(map[string]domain.Agent),
		rooms:    make(map[string]domain.Room),
		messages: make(map[string]map[string]domain.Message),
		clock:    time.Now,
		broker:   watch.NewBroker(),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Broker exposes the change feed, mainly so tests can fail live queries.
func (db *DB) Broker() *watch.Broker {
	return db.broker
}

// serverTime returns a strictly increasing commit timestamp. Callers hold mu.
func (db *DB) serverTime() time.Time {
	now := db.clock().UTC()
	if !now.After(db.last) {
		now = db.last.Add(time.Microsecond)
	}
	db.last = now
	return now
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func clonePreview(p domain.UserPreview) domain.UserPreview {
	return domain.UserPreview{
		ID:        p.ID,
		FirstName: cloneString(p.FirstName),
		LastName:  cloneString(p.LastName),
		Image:     cloneString(p.Image),
	}
}

func cloneUser(u domain.User) domain.User {
	u.FirstName = cloneString(u.FirstName)
	u.LastName = cloneString(u.LastName)
	u.Image = cloneString(u.Image)
	u.DeviceToken = cloneString(u.DeviceToken)
	return u
}

func cloneAgent(a domain.Agent) domain.Agent {
	a.FirstName = cloneString(a.FirstName)
	a.LastName = cloneString(a.LastName)
	a.Image = cloneString(a.Image)
	a.DeviceToken = cloneString(a.DeviceToken)
	a.Tags = slices.Clone(a.Tags)
	return a
}

func cloneRoom(r domain.Room) domain.Room {
	r.UserIDs = slices.Clone(r.UserIDs)
	r.RemovedUserIDs = slices.Clone(r.RemovedUserIDs)
	if r.Users != nil {
		users := make([]domain.UserPreview, len(r.Users))
		for i, u := range r.Users {
			users[i] = clonePreview(u)
		}
		r.Users = users
	}
	r.Tag = cloneString(r.Tag)
	r.Name = cloneString(r.Name)
	if r.Agent != nil {
		agent := clonePreview(*r.Agent)
		r.Agent = &agent
	}
	if r.LastMessage != nil {
		last := *r.LastMessage
		r.LastMessage = &last
	}
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

func cloneMessage(m domain.Message) domain.Message {
	m.Text = cloneString(m.Text)
	m.Metadata = maps.Clone(m.Metadata)
	if m.File != nil {
		file := *m.File
		m.File = &file
	}
	m.ReadBy = slices.Clone(m.ReadBy)
	return m
}
