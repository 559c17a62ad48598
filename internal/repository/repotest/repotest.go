// Package repotest is a conformance suite shared by every repository
// backend. Ids are random so the suite can run against a shared database.
package repotest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
)

const waitTimeout = 10 * time.Second

// Stores is one backend's set of repositories.
type Stores struct {
	Users    repository.UserRepository
	Agents   repository.AgentRepository
	Rooms    repository.RoomRepository
	Messages repository.MessageRepository
}

// Run exercises every repository contract against the stores returned by
// open. open is called once per subtest.
func Run(t *testing.T, open func(t *testing.T) Stores) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Stores)
	}{
		{"UserLifecycle", testUserLifecycle},
		{"AgentLifecycle", testAgentLifecycle},
		{"RoomCreateIfAbsent", testRoomCreateIfAbsent},
		{"RoomMembership", testRoomMembership},
		{"RoomAssignAgent", testRoomAssignAgent},
		{"MessageFinalize", testMessageFinalize},
		{"MessageFinalizeMissingRoom", testMessageFinalizeMissingRoom},
		{"MessageTracking", testMessageTracking},
		{"WatchMessages", testWatchMessages},
		{"WatchRoomsByMember", testWatchRoomsByMember},
		{"WatchAgentRooms", testWatchAgentRooms},
		{"WatchUsers", testWatchUsers},
		{"UnsubscribeStopsDelivery", testUnsubscribeStopsDelivery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func ptr(s string) *string { return &s }

func newID() string { return uuid.NewString() }

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	return ctx
}

func mustCreateUser(t *testing.T, ctx context.Context, s Stores, first string) *domain.User {
	t.Helper()
	u := &domain.User{ID: newID(), FirstName: ptr(first)}
	if err := s.Users.Create(ctx, u); err != nil {
		t.Fatalf("Users.Create: %v", err)
	}
	return u
}

func mustCreateRoom(t *testing.T, ctx context.Context, s Stores, room *domain.Room) *domain.Room {
	t.Helper()
	if room.ID == "" {
		room.ID = newID()
	}
	if err := s.Rooms.Create(ctx, room); err != nil {
		t.Fatalf("Rooms.Create: %v", err)
	}
	return room
}

func textMessage(roomID, sender, text string) *domain.Message {
	return &domain.Message{
		ID:          newID(),
		ContentType: domain.ContentTypeText,
		CreatedBy:   sender,
		Room:        roomID,
		Text:        ptr(text),
		ReadBy:      []string{},
	}
}

func mustSend(t *testing.T, ctx context.Context, s Stores, msg *domain.Message) {
	t.Helper()
	if err := s.Messages.CreateWithRoomPreview(ctx, msg, msg.Preview()); err != nil {
		t.Fatalf("CreateWithRoomPreview: %v", err)
	}
}

func testUserLifecycle(t *testing.T, s Stores) {
	ctx := testContext(t)

	missing, err := s.Users.GetByID(ctx, newID())
	if err != nil || missing != nil {
		t.Fatalf("GetByID(missing) = %v, %v; want nil, nil", missing, err)
	}

	u := &domain.User{ID: newID(), FirstName: ptr("Ada"), LastName: ptr("Lovelace")}
	if err := s.Users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.CreatedAt.IsZero() {
		t.Fatal("Create did not set CreatedAt")
	}

	if err := s.Users.Update(ctx, u.ID, domain.ProfileUpdate{Image: ptr("https://img/ada.png")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Users.UpdateDeviceToken(ctx, u.ID, "tok-1"); err != nil {
		t.Fatalf("UpdateDeviceToken: %v", err)
	}

	got, err := s.Users.GetByID(ctx, u.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID = %v, %v", got, err)
	}
	want := domain.UserPreview{ID: u.ID, FirstName: ptr("Ada"), LastName: ptr("Lovelace"), Image: ptr("https://img/ada.png")}
	if diff := cmp.Diff(want, got.Preview()); diff != "" {
		t.Errorf("preview mismatch (-want +got):\n%s", diff)
	}
	if got.DeviceToken == nil || *got.DeviceToken != "tok-1" {
		t.Errorf("DeviceToken = %v, want tok-1", got.DeviceToken)
	}
	if !got.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, u.CreatedAt)
	}

	if err := s.Users.Update(ctx, newID(), domain.ProfileUpdate{FirstName: ptr("x")}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Update(missing) = %v, want ErrNotFound", err)
	}
}

func testAgentLifecycle(t *testing.T, s Stores) {
	ctx := testContext(t)

	a := &domain.Agent{ID: newID(), FirstName: ptr("Support"), Tags: []string{"billing", "shipping"}}
	if err := s.Agents.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Agents.UpdateDeviceToken(ctx, a.ID, "agent-tok"); err != nil {
		t.Fatalf("UpdateDeviceToken: %v", err)
	}

	got, err := s.Agents.GetByID(ctx, a.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID = %v, %v", got, err)
	}
	if diff := cmp.Diff([]string{"billing", "shipping"}, got.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if got.DeviceToken == nil || *got.DeviceToken != "agent-tok" {
		t.Errorf("DeviceToken = %v, want agent-tok", got.DeviceToken)
	}

	missing, err := s.Agents.GetByID(ctx, newID())
	if err != nil || missing != nil {
		t.Fatalf("GetByID(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func testRoomCreateIfAbsent(t *testing.T, s Stores) {
	ctx := testContext(t)
	a, b := newID(), newID()

	room := mustCreateRoom(t, ctx, s, &domain.Room{
		CreatedBy: a,
		UserIDs:   []string{a, b},
		Users:     []domain.UserPreview{{ID: a}, {ID: b}},
		Scope:     domain.RoomScopePrivate,
	})
	if !room.Materialized() {
		t.Fatal("Create did not set CreatedAt")
	}

	dup := &domain.Room{ID: room.ID, CreatedBy: b, UserIDs: []string{b, a}, Scope: domain.RoomScopePrivate}
	if err := s.Rooms.Create(ctx, dup); !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("second Create = %v, want ErrAlreadyExists", err)
	}

	got, err := s.Rooms.GetByID(ctx, room.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID = %v, %v", got, err)
	}
	if got.CreatedBy != a {
		t.Errorf("CreatedBy = %q, want %q (first write wins)", got.CreatedBy, a)
	}
	if got.LastMessage != nil {
		t.Errorf("LastMessage = %+v, want nil", got.LastMessage)
	}
}

func testRoomMembership(t *testing.T, s Stores) {
	ctx := testContext(t)
	a, b, c := newID(), newID(), newID()

	private := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: a, UserIDs: []string{a, b}, Scope: domain.RoomScopePrivate})
	mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: a, UserIDs: []string{a, b, c}, Scope: domain.RoomScopeGroup, Name: ptr("trio")})

	rooms, err := s.Rooms.ListPrivateByMember(ctx, b)
	if err != nil {
		t.Fatalf("ListPrivateByMember: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != private.ID {
		t.Fatalf("ListPrivateByMember = %v, want only %s", roomIDs(rooms), private.ID)
	}

	group := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: a, UserIDs: []string{a, b}, Scope: domain.RoomScopeGroup})
	for range 2 {
		if err := s.Rooms.AddMember(ctx, group.ID, c); err != nil {
			t.Fatalf("AddMember: %v", err)
		}
	}
	got, err := s.Rooms.GetByID(ctx, group.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID = %v, %v", got, err)
	}
	if diff := cmp.Diff([]string{a, b, c}, got.UserIDs); diff != "" {
		t.Errorf("users_ids mismatch (-want +got):\n%s", diff)
	}

	if err := s.Rooms.AddMember(ctx, newID(), c); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("AddMember(missing room) = %v, want ErrNotFound", err)
	}
}

func testRoomAssignAgent(t *testing.T, s Stores) {
	ctx := testContext(t)
	u := newID()

	room := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: u, UserIDs: []string{u}, Scope: domain.RoomScopeAgent, Tag: ptr("billing")})
	agent := domain.UserPreview{ID: newID(), FirstName: ptr("Sam")}
	if err := s.Rooms.AssignAgent(ctx, room.ID, agent); err != nil {
		t.Fatalf("AssignAgent: %v", err)
	}
	// Re-assigning the same agent refreshes its preview.
	agent.LastName = ptr("Support")
	if err := s.Rooms.AssignAgent(ctx, room.ID, agent); err != nil {
		t.Fatalf("AssignAgent(same agent): %v", err)
	}
	other := domain.UserPreview{ID: newID()}
	if err := s.Rooms.AssignAgent(ctx, room.ID, other); !errors.Is(err, repository.ErrPreconditionFailed) {
		t.Fatalf("AssignAgent(other agent) = %v, want ErrPreconditionFailed", err)
	}

	got, err := s.Rooms.GetByID(ctx, room.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID = %v, %v", got, err)
	}
	if diff := cmp.Diff(&agent, got.Agent); diff != "" {
		t.Errorf("agent mismatch (-want +got):\n%s", diff)
	}

	if err := s.Rooms.AssignAgent(ctx, newID(), agent); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("AssignAgent(missing room) = %v, want ErrNotFound", err)
	}
}

func testMessageFinalize(t *testing.T, s Stores) {
	ctx := testContext(t)
	a, b := newID(), newID()
	room := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: a, UserIDs: []string{a, b}, Scope: domain.RoomScopePrivate})

	msg := textMessage(room.ID, a, "hi")
	mustSend(t, ctx, s, msg)
	if !msg.Materialized() || !msg.UpdatedAt.Equal(msg.CreatedAt) {
		t.Fatalf("timestamps not set: created %v updated %v", msg.CreatedAt, msg.UpdatedAt)
	}

	got, err := s.Rooms.GetByID(ctx, room.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID = %v, %v", got, err)
	}
	if got.LastMessage == nil {
		t.Fatal("room has no last_message")
	}
	want := domain.LastMessage{ID: msg.ID, Text: "hi", Type: domain.ContentTypeText, SentBy: a}
	if diff := cmp.Diff(want, *got.LastMessage, cmpIgnoreSentAt()); diff != "" {
		t.Errorf("last_message mismatch (-want +got):\n%s", diff)
	}
	if !got.LastMessage.SentAt.Equal(msg.CreatedAt) {
		t.Errorf("sent_at = %v, want message created_at %v", got.LastMessage.SentAt, msg.CreatedAt)
	}

	stored, err := s.Messages.GetByID(ctx, room.ID, msg.ID)
	if err != nil || stored == nil {
		t.Fatalf("Messages.GetByID = %v, %v", stored, err)
	}
	if stored.Text == nil || *stored.Text != "hi" || stored.Delivered || len(stored.ReadBy) != 0 {
		t.Errorf("stored message = %+v", stored)
	}
}

func testMessageFinalizeMissingRoom(t *testing.T, s Stores) {
	ctx := testContext(t)
	roomID := newID()

	msg := textMessage(roomID, newID(), "orphan")
	if err := s.Messages.CreateWithRoomPreview(ctx, msg, msg.Preview()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("CreateWithRoomPreview = %v, want ErrNotFound", err)
	}
	got, err := s.Messages.GetByID(ctx, roomID, msg.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatalf("message %s was written without its room", msg.ID)
	}
}

func testMessageTracking(t *testing.T, s Stores) {
	ctx := testContext(t)
	a, b, c := newID(), newID(), newID()
	room := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: a, UserIDs: []string{a, b, c}, Scope: domain.RoomScopeGroup})
	msg := textMessage(room.ID, a, "status")
	mustSend(t, ctx, s, msg)

	if err := s.Messages.MarkDelivered(ctx, room.ID, msg.ID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	for _, reader := range []string{b, c, b} {
		if err := s.Messages.AddReader(ctx, room.ID, msg.ID, reader); err != nil {
			t.Fatalf("AddReader(%s): %v", reader, err)
		}
	}

	got, err := s.Messages.GetByID(ctx, room.ID, msg.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID = %v, %v", got, err)
	}
	if !got.Delivered {
		t.Error("Delivered = false after MarkDelivered")
	}
	readBy := slices.Clone(got.ReadBy)
	slices.Sort(readBy)
	want := []string{b, c}
	slices.Sort(want)
	if diff := cmp.Diff(want, readBy); diff != "" {
		t.Errorf("read_by mismatch (-want +got):\n%s", diff)
	}

	if err := s.Messages.AddReader(ctx, room.ID, newID(), b); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("AddReader(missing) = %v, want ErrNotFound", err)
	}

	if err := s.Messages.Delete(ctx, room.ID, msg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Messages.Delete(ctx, room.ID, msg.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	gone, err := s.Messages.GetByID(ctx, room.ID, msg.ID)
	if err != nil || gone != nil {
		t.Fatalf("GetByID after delete = %v, %v", gone, err)
	}

	after, err := s.Rooms.GetByID(ctx, room.ID)
	if err != nil || after == nil {
		t.Fatalf("Rooms.GetByID = %v, %v", after, err)
	}
	if after.LastMessage == nil || after.LastMessage.ID != msg.ID {
		t.Errorf("last_message = %+v, want stale preview of %s", after.LastMessage, msg.ID)
	}
}

func testWatchMessages(t *testing.T, s Stores) {
	ctx := testContext(t)
	a, b := newID(), newID()
	room := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: a, UserIDs: []string{a, b}, Scope: domain.RoomScopePrivate})

	snaps := newRecorder[[]domain.Message](t)
	unsub, err := s.Messages.WatchByRoom(ctx, room.ID, snaps.snapshot, snaps.fail)
	if err != nil {
		t.Fatalf("WatchByRoom: %v", err)
	}
	t.Cleanup(unsub)

	snaps.waitFor(func(ms []domain.Message) bool { return len(ms) == 0 })

	const n = 3
	for i := range n {
		mustSend(t, ctx, s, textMessage(room.ID, []string{a, b}[i%2], "m"))
	}
	snaps.waitFor(func(ms []domain.Message) bool { return len(ms) == n })

	// Another room's traffic must not leak into this query.
	other := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: a, UserIDs: []string{a}, Scope: domain.RoomScopeAgent, Tag: ptr("x")})
	mustSend(t, ctx, s, textMessage(other.ID, a, "elsewhere"))
	last := textMessage(room.ID, a, "last")
	mustSend(t, ctx, s, last)
	got := snaps.waitFor(func(ms []domain.Message) bool { return len(ms) == n+1 })
	for _, m := range got {
		if m.Room != room.ID {
			t.Errorf("snapshot contains message %s of room %s", m.ID, m.Room)
		}
	}
}

func testWatchRoomsByMember(t *testing.T, s Stores) {
	ctx := testContext(t)
	a, b, c := newID(), newID(), newID()

	snaps := newRecorder[[]domain.Room](t)
	unsub, err := s.Rooms.WatchByMember(ctx, c, snaps.snapshot, snaps.fail)
	if err != nil {
		t.Fatalf("WatchByMember: %v", err)
	}
	t.Cleanup(unsub)
	snaps.waitFor(func(rs []domain.Room) bool { return len(rs) == 0 })

	group := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: a, UserIDs: []string{a, b}, Scope: domain.RoomScopeGroup})
	if err := s.Rooms.AddMember(ctx, group.ID, c); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	snaps.waitFor(func(rs []domain.Room) bool { return len(rs) == 1 && rs[0].ID == group.ID })

	msg := textMessage(group.ID, a, "welcome")
	mustSend(t, ctx, s, msg)
	snaps.waitFor(func(rs []domain.Room) bool {
		return len(rs) == 1 && rs[0].LastMessage != nil && rs[0].LastMessage.ID == msg.ID && rs[0].Materialized()
	})
}

func testWatchAgentRooms(t *testing.T, s Stores) {
	ctx := testContext(t)
	u := newID()
	tagA, tagB, tagC := "a-"+newID(), "b-"+newID(), "c-"+newID()

	snaps := newRecorder[[]domain.Room](t)
	unsub, err := s.Rooms.WatchAgentRooms(ctx, []string{tagA, tagB}, snaps.snapshot, snaps.fail)
	if err != nil {
		t.Fatalf("WatchAgentRooms: %v", err)
	}
	t.Cleanup(unsub)

	ra := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: u, UserIDs: []string{u}, Scope: domain.RoomScopeAgent, Tag: ptr(tagA)})
	mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: u, UserIDs: []string{u}, Scope: domain.RoomScopeAgent, Tag: ptr(tagC)})
	rb := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: u, UserIDs: []string{u}, Scope: domain.RoomScopeAgent, Tag: ptr(tagB)})

	got := snaps.waitFor(func(rs []domain.Room) bool { return len(rs) == 2 })
	ids := roomIDs(got)
	slices.Sort(ids)
	want := []string{ra.ID, rb.ID}
	slices.Sort(want)
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("agent rooms mismatch (-want +got):\n%s", diff)
	}
}

func testWatchUsers(t *testing.T, s Stores) {
	ctx := testContext(t)
	u := mustCreateUser(t, ctx, s, "Grace")

	snaps := newRecorder[[]domain.User](t)
	unsub, err := s.Users.Watch(ctx, snaps.snapshot, snaps.fail)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	t.Cleanup(unsub)

	hasImage := func(img string) func([]domain.User) bool {
		return func(us []domain.User) bool {
			for _, got := range us {
				if got.ID == u.ID {
					return got.Image != nil && *got.Image == img
				}
			}
			return false
		}
	}

	if err := s.Users.Update(ctx, u.ID, domain.ProfileUpdate{Image: ptr("v1")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snaps.waitFor(hasImage("v1"))
	if err := s.Users.Update(ctx, u.ID, domain.ProfileUpdate{Image: ptr("v2")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snaps.waitFor(hasImage("v2"))
}

func testUnsubscribeStopsDelivery(t *testing.T, s Stores) {
	ctx := testContext(t)
	a := newID()
	room := mustCreateRoom(t, ctx, s, &domain.Room{CreatedBy: a, UserIDs: []string{a}, Scope: domain.RoomScopeAgent, Tag: ptr("t")})

	snaps := newRecorder[[]domain.Message](t)
	var unsub repository.Unsubscribe
	unsub, err := s.Messages.WatchByRoom(ctx, room.ID, func(ms []domain.Message) {
		snaps.snapshot(ms)
		// Unsubscribing from inside a callback must not deadlock.
		if len(ms) == 1 {
			unsub()
		}
	}, snaps.fail)
	if err != nil {
		t.Fatalf("WatchByRoom: %v", err)
	}
	t.Cleanup(unsub)
	snaps.waitFor(func(ms []domain.Message) bool { return len(ms) == 0 })

	mustSend(t, ctx, s, textMessage(room.ID, a, "one"))
	snaps.waitFor(func(ms []domain.Message) bool { return len(ms) == 1 })
	unsub()

	mustSend(t, ctx, s, textMessage(room.ID, a, "two"))
	snaps.expectNone(func(ms []domain.Message) bool { return len(ms) == 2 }, 500*time.Millisecond)
}

func roomIDs(rooms []domain.Room) []string {
	ids := make([]string, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	return ids
}
