package service

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vedran77/chatcore/internal/domain"
)

func TestProjectRooms(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	profiles := map[string]domain.UserPreview{
		"u1": {ID: "u1", FirstName: ptr("Ann")},
		"u3": {ID: "u3", FirstName: ptr("Cy")},
	}
	rooms := []domain.Room{
		{ID: "pending", UserIDs: []string{"u1"}},
		{
			ID:             "r1",
			CreatedAt:      now,
			UserIDs:        []string{"u1", "u2"},
			RemovedUserIDs: []string{"u3"},
			Users:          []domain.UserPreview{{ID: "u1", FirstName: ptr("stale")}},
		},
	}

	got := ProjectRooms(rooms, profiles)
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("rooms = %+v, want only r1", got)
	}
	want := []domain.UserPreview{profiles["u1"], {ID: "u2"}, profiles["u3"]}
	if diff := cmp.Diff(want, got[0].Users); diff != "" {
		t.Errorf("users mismatch (-want +got):\n%s", diff)
	}
	if rooms[1].Users[0].FirstName == nil || *rooms[1].Users[0].FirstName != "stale" {
		t.Error("input room was modified")
	}
}

func TestProjectMessages(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	messages := []domain.Message{
		{ID: "b", CreatedAt: t0},
		{ID: "pending"},
		{ID: "c", CreatedAt: t0.Add(time.Second)},
		{ID: "a", CreatedAt: t0},
	}

	var ids []string
	for _, m := range ProjectMessages(messages) {
		ids = append(ids, m.ID)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestUserToPreview(t *testing.T) {
	u := &domain.User{ID: "u1", FirstName: ptr("Ann"), Image: ptr("a.png"), DeviceToken: ptr("secret")}
	want := domain.UserPreview{ID: "u1", FirstName: ptr("Ann"), Image: ptr("a.png")}
	if diff := cmp.Diff(want, UserToPreview(u)); diff != "" {
		t.Errorf("preview mismatch (-want +got):\n%s", diff)
	}
}
