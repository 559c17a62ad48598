package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type object struct {
	contentType string
	data        []byte
	modified    time.Time
}

// Memory keeps uploads in process and serves them over HTTP under its base
// URL. It backs development servers and tests.
type Memory struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]object
}

func NewMemory(baseURL string) *Memory {
	return &Memory{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string]object),
	}
}

func (m *Memory) Upload(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("storage: reading %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := "/" + strings.TrimPrefix(path, "/")
	m.mu.Lock()
	m.objects[name] = object{contentType: contentType, data: data, modified: time.Now()}
	m.mu.Unlock()

	return m.baseURL + name, nil
}

// Object returns the stored bytes at path.
func (m *Memory) Object(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects["/"+strings.TrimPrefix(path, "/")]
	return obj.data, ok
}

// ServeHTTP serves an uploaded object. Mount it with the base URL's path
// stripped.
func (m *Memory) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	obj, ok := m.objects["/"+strings.TrimPrefix(r.URL.Path, "/")]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	http.ServeContent(w, r, "", obj.modified, bytes.NewReader(obj.data))
}
