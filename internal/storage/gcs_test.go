package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// fakeObjectWriter mimics storage.Writer: Close commits unless the writer's
// context was cancelled first.
type fakeObjectWriter struct {
	ctx         context.Context
	name        string
	contentType string
	buf         bytes.Buffer
	objects     map[string]string
}

func (w *fakeObjectWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *fakeObjectWriter) Close() error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.objects[w.name] = w.contentType + ":" + w.buf.String()
	return nil
}

func newFakeGCS(bucket string) (*GCS, map[string]string) {
	objects := make(map[string]string)
	return &GCS{
		bucket: bucket,
		newWriter: func(ctx context.Context, name, contentType string) io.WriteCloser {
			return &fakeObjectWriter{ctx: ctx, name: name, contentType: contentType, objects: objects}
		},
	}, objects
}

func TestGCSUpload(t *testing.T) {
	store, objects := newFakeGCS("chat-media")

	url, err := store.Upload(context.Background(), "/room-1/videos/clip.mp4", "video/mp4", strings.NewReader("mp4"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := "https://storage.googleapis.com/chat-media/room-1/videos/clip.mp4"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
	if got := objects["room-1/videos/clip.mp4"]; got != "video/mp4:mp4" {
		t.Errorf("stored object = %q", got)
	}
}

// truncatedReader yields some bytes and then fails.
type truncatedReader struct {
	sent bool
}

func (r *truncatedReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, io.ErrUnexpectedEOF
	}
	r.sent = true
	return copy(p, "partial"), nil
}

func TestGCSUploadReadFailureAbortsWriter(t *testing.T) {
	store, objects := newFakeGCS("chat-media")
	objects["room-1/files/report.pdf"] = "application/pdf:original"

	_, err := store.Upload(context.Background(), "/room-1/files/report.pdf", "application/pdf", &truncatedReader{})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
	if got := objects["room-1/files/report.pdf"]; got != "application/pdf:original" {
		t.Fatalf("existing object replaced by a truncated upload: %q", got)
	}
}
