package domain

import (
	"time"
)

type RoomScope string

const (
	RoomScopePrivate RoomScope = "PRIVATE"
	RoomScopeGroup   RoomScope = "GROUP"
	RoomScopeAgent   RoomScope = "AGENT"
)

// LastMessage is the denormalized preview of the newest message of a room.
type LastMessage struct {
	ID     string      `json:"id" firestore:"id"`
	Text   string      `json:"text" firestore:"text"`
	Type   ContentType `json:"type" firestore:"type"`
	SentBy string      `json:"sent_by" firestore:"sent_by"`
	SentAt time.Time   `json:"sent_at" firestore:"sent_at"`
}

type Room struct {
	ID             string         `json:"id" firestore:"id"`
	CreatedBy      string         `json:"created_by" firestore:"created_by"`
	CreatedAt      time.Time      `json:"created_at" firestore:"created_at,serverTimestamp"`
	UserIDs        []string       `json:"users_ids" firestore:"users_ids"`
	RemovedUserIDs []string       `json:"removed_users_ids" firestore:"removed_users_ids"`
	Users          []UserPreview  `json:"users" firestore:"users"`
	Scope          RoomScope      `json:"scope" firestore:"scope"`
	Tag            *string        `json:"tag" firestore:"tag"`
	Name           *string        `json:"name" firestore:"name"`
	Agent          *UserPreview   `json:"agent" firestore:"agent"`
	LastMessage    *LastMessage   `json:"last_message" firestore:"last_message"`
	Metadata       map[string]any `json:"metadata" firestore:"metadata"`
}

// Materialized reports whether the store has assigned the creation
// timestamp yet.
func (r *Room) Materialized() bool {
	return !r.CreatedAt.IsZero()
}

func (r *Room) HasMember(userID string) bool {
	for _, id := range r.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CanPost reports whether id may write messages into the room: any current
// member, or the agent assigned to it.
func (r *Room) CanPost(id string) bool {
	if r.HasMember(id) {
		return true
	}
	return r.Agent != nil && r.Agent.ID == id
}

// ProfileIDs lists the ids whose previews make up Users: current members
// first, then members who left.
func (r *Room) ProfileIDs() []string {
	ids := make([]string, 0, len(r.UserIDs)+len(r.RemovedUserIDs))
	ids = append(ids, r.UserIDs...)
	return append(ids, r.RemovedUserIDs...)
}
