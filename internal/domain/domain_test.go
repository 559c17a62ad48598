package domain

import "testing"

func TestContentTypeForMIME(t *testing.T) {
	tests := map[string]ContentType{
		"image/jpeg":       ContentTypeImage,
		"video/quicktime":  ContentTypeVideo,
		"audio/mpeg":       ContentTypeAudio,
		"application/json": ContentTypeCustom,
		"text/plain":       ContentTypeCustom,
		"":                 ContentTypeCustom,
	}
	for mime, want := range tests {
		if got := ContentTypeForMIME(mime); got != want {
			t.Errorf("ContentTypeForMIME(%q) = %s, want %s", mime, got, want)
		}
	}
}

func TestPreviewText(t *testing.T) {
	text := "hello"
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"text", Message{ContentType: ContentTypeText, Text: &text}, "hello"},
		{"image with caption", Message{ContentType: ContentTypeImage, Text: &text}, "📷 hello"},
		{"audio without caption", Message{ContentType: ContentTypeAudio}, "🎙 "},
		{"video", Message{ContentType: ContentTypeVideo}, "📹 "},
		{"custom", Message{ContentType: ContentTypeCustom, Text: &text}, "📎 hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.PreviewText(); got != tt.want {
				t.Errorf("PreviewText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAttachmentPath(t *testing.T) {
	tests := []struct {
		c        ContentType
		filename string
		want     string
	}{
		{ContentTypeImage, "a.png", "/r1/images/a.png"},
		{ContentTypeVideo, "b.mp4", "/r1/videos/b.mp4"},
		{ContentTypeAudio, "c.ogg", "/r1/audios/c.ogg"},
		{ContentTypeCustom, "d.pdf", "/r1/files/d.pdf"},
		{ContentTypeCustom, "../../etc/passwd", "/r1/files/passwd"},
	}
	for _, tt := range tests {
		if got := AttachmentPath("r1", tt.c, tt.filename); got != tt.want {
			t.Errorf("AttachmentPath(%s, %q) = %s, want %s", tt.c, tt.filename, got, tt.want)
		}
	}
}

func TestRoomCanPost(t *testing.T) {
	room := Room{UserIDs: []string{"u1", "u2"}, Agent: &UserPreview{ID: "agent"}}
	for id, want := range map[string]bool{"u1": true, "u2": true, "agent": true, "u3": false, "": false} {
		if got := room.CanPost(id); got != want {
			t.Errorf("CanPost(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestAgentServesTag(t *testing.T) {
	a := Agent{Tags: []string{"billing", "returns"}}
	if !a.ServesTag("returns") || a.ServesTag("shipping") {
		t.Errorf("ServesTag mismatch for tags %v", a.Tags)
	}
}
