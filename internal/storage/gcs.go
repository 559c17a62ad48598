// Package storage holds the blob stores attachments are uploaded to.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS uploads attachments into a public Cloud Storage bucket.
type GCS struct {
	bucket    string
	newWriter func(ctx context.Context, name, contentType string) io.WriteCloser
}

func NewGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{
		bucket: bucket,
		newWriter: func(ctx context.Context, name, contentType string) io.WriteCloser {
			w := client.Bucket(bucket).Object(name).NewWriter(ctx)
			w.ContentType = contentType
			return w
		},
	}
}

// Upload writes r to path and returns the object's public URL. A failed
// copy cancels the writer's context before closing it, which aborts the
// upload instead of committing the bytes written so far.
func (g *GCS) Upload(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	name := strings.TrimPrefix(path, "/")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wc := g.newWriter(ctx, name, contentType)
	if _, err := io.Copy(wc, r); err != nil {
		cancel()
		_ = wc.Close()
		return "", fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("storage: closing writer for %s: %w", name, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, name), nil
}
