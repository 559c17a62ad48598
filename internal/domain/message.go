package domain

import (
	"path"
	"strings"
	"time"
)

type ContentType string

const (
	ContentTypeText   ContentType = "TEXT"
	ContentTypeImage  ContentType = "IMAGE"
	ContentTypeAudio  ContentType = "AUDIO"
	ContentTypeVideo  ContentType = "VIDEO"
	ContentTypeCustom ContentType = "CUSTOM"
)

// ContentTypeForMIME classifies an attachment by its MIME type prefix.
func ContentTypeForMIME(mimeType string) ContentType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return ContentTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return ContentTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return ContentTypeAudio
	default:
		return ContentTypeCustom
	}
}

// Emoji is the prefix shown in room previews. TEXT has none.
func (c ContentType) Emoji() string {
	switch c {
	case ContentTypeAudio:
		return "🎙"
	case ContentTypeImage:
		return "📷"
	case ContentTypeVideo:
		return "📹"
	case ContentTypeCustom:
		return "📎"
	default:
		return ""
	}
}

func (c ContentType) folder() string {
	switch c {
	case ContentTypeImage:
		return "images"
	case ContentTypeVideo:
		return "videos"
	case ContentTypeAudio:
		return "audios"
	default:
		return "files"
	}
}

// AttachmentPath returns the blob storage path of an attachment:
// /{roomID}/{images|videos|audios|files}/{filename}.
func AttachmentPath(roomID string, c ContentType, filename string) string {
	return "/" + roomID + "/" + c.folder() + "/" + path.Base("/"+filename)
}

type File struct {
	URI      string `json:"uri" firestore:"uri"`
	MIMEType string `json:"mimeType" firestore:"mimeType"`
	Name     string `json:"name" firestore:"name"`
}

type Message struct {
	ID          string         `json:"id" firestore:"id"`
	ContentType ContentType    `json:"content_type" firestore:"content_type"`
	CreatedBy   string         `json:"created_by" firestore:"created_by"`
	Room        string         `json:"room" firestore:"room"`
	Text        *string        `json:"text" firestore:"text"`
	Metadata    map[string]any `json:"metadata" firestore:"metadata"`
	File        *File          `json:"file,omitempty" firestore:"file,omitempty"`
	Delivered   bool           `json:"delivered" firestore:"delivered"`
	ReadBy      []string       `json:"read_by" firestore:"read_by"`
	CreatedAt   time.Time      `json:"created_at" firestore:"created_at,serverTimestamp"`
	UpdatedAt   time.Time      `json:"updated_at" firestore:"updated_at,serverTimestamp"`
}

func (m *Message) Materialized() bool {
	return !m.CreatedAt.IsZero()
}

// PreviewText renders the one-line room preview: the content type emoji, a
// space, then the text.
func (m *Message) PreviewText() string {
	text := ""
	if m.Text != nil {
		text = *m.Text
	}
	if emoji := m.ContentType.Emoji(); emoji != "" {
		return emoji + " " + text
	}
	return text
}

// Preview builds the room's last_message entry. SentAt is left for the store
// to fill with the commit timestamp.
func (m *Message) Preview() LastMessage {
	return LastMessage{
		ID:     m.ID,
		Text:   m.PreviewText(),
		Type:   m.ContentType,
		SentBy: m.CreatedBy,
		SentAt: m.CreatedAt,
	}
}

func (m *Message) ReadByUser(id string) bool {
	for _, r := range m.ReadBy {
		if r == id {
			return true
		}
	}
	return false
}
