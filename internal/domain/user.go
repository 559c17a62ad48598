package domain

import (
	"time"
)

type User struct {
	ID          string    `json:"id" firestore:"id"`
	FirstName   *string   `json:"first_name" firestore:"first_name"`
	LastName    *string   `json:"last_name" firestore:"last_name"`
	Image       *string   `json:"image" firestore:"image"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at,serverTimestamp"`
	DeviceToken *string   `json:"device_token" firestore:"device_token"`
}

// Agent is a support identity that can be assigned to AGENT rooms whose tag
// is listed in Tags.
type Agent struct {
	ID          string    `json:"id" firestore:"id"`
	FirstName   *string   `json:"first_name" firestore:"first_name"`
	LastName    *string   `json:"last_name" firestore:"last_name"`
	Image       *string   `json:"image" firestore:"image"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at,serverTimestamp"`
	DeviceToken *string   `json:"device_token" firestore:"device_token"`
	Tags        []string  `json:"tags" firestore:"tags"`
}

// UserPreview is the reduced profile embedded into rooms. It is a snapshot
// taken at write time and is not kept in sync with the profile.
type UserPreview struct {
	ID        string  `json:"id" firestore:"id"`
	FirstName *string `json:"first_name" firestore:"first_name"`
	LastName  *string `json:"last_name" firestore:"last_name"`
	Image     *string `json:"image" firestore:"image"`
}

// ProfileUpdate carries the optional fields of a profile edit. Nil fields
// are left untouched.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Image     *string `json:"image,omitempty"`
}

func (u ProfileUpdate) IsEmpty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Image == nil
}

func (u *User) Preview() UserPreview {
	return UserPreview{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Image:     u.Image,
	}
}

func (a *Agent) Preview() UserPreview {
	return UserPreview{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Image:     a.Image,
	}
}

// ServesTag reports whether tag is one of the agent's tags.
func (a *Agent) ServesTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
