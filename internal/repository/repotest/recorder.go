package repotest

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/vedran77/chatcore/internal/domain"
)

func cmpIgnoreSentAt() cmp.Option {
	return cmpopts.IgnoreFields(domain.LastMessage{}, "SentAt")
}

// recorder collects the snapshots of one live query.
type recorder[T any] struct {
	t     *testing.T
	mu    sync.Mutex
	snaps []T
	err   error
	wake  chan struct{}
}

func newRecorder[T any](t *testing.T) *recorder[T] {
	return &recorder[T]{t: t, wake: make(chan struct{}, 1)}
}

func (r *recorder[T]) snapshot(v T) {
	r.mu.Lock()
	r.snaps = append(r.snaps, v)
	r.mu.Unlock()
	r.notify()
}

func (r *recorder[T]) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.notify()
}

func (r *recorder[T]) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// waitFor blocks until a delivered snapshot satisfies match and returns it.
func (r *recorder[T]) waitFor(match func(T) bool) T {
	r.t.Helper()
	deadline := time.After(waitTimeout)
	seen := 0
	for {
		r.mu.Lock()
		if r.err != nil {
			err := r.err
			r.mu.Unlock()
			r.t.Fatalf("subscription failed: %v", err)
		}
		for ; seen < len(r.snaps); seen++ {
			if match(r.snaps[seen]) {
				v := r.snaps[seen]
				r.mu.Unlock()
				return v
			}
		}
		r.mu.Unlock()

		select {
		case <-r.wake:
		case <-deadline:
			r.t.Fatalf("no matching snapshot after %s (%d delivered)", waitTimeout, seen)
		}
	}
}

// expectNone fails if a snapshot matching match arrives within d.
func (r *recorder[T]) expectNone(match func(T) bool, d time.Duration) {
	r.t.Helper()
	time.Sleep(d)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.snaps {
		if match(v) {
			r.t.Fatalf("unexpected snapshot delivered after unsubscribe")
		}
	}
}
