package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vedran77/chatcore/internal/repository"
)

// manualWatch hands snapshots to subscribe only when the test pushes them.
type manualWatch struct {
	onSnapshot func(int)
}

func (w *manualWatch) watch(_ context.Context, onSnapshot func(int), _ func(error)) (repository.Unsubscribe, error) {
	w.onSnapshot = onSnapshot
	return func() {}, nil
}

func (w *manualWatch) push(v int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.onSnapshot(v)
	}()
	return done
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("%s did not finish", what)
	}
}

func TestUnsubscribeDuringProjectionSuppressesDelivery(t *testing.T) {
	w := &manualWatch{}
	entered := make(chan struct{})
	proceed := make(chan struct{})
	project := func(_ context.Context, v int) (int, error) {
		close(entered)
		<-proceed
		return v, nil
	}

	var updates atomic.Int32
	unsub, err := subscribe(context.Background(), "test", w.watch, project,
		func(int) { updates.Add(1) }, func(err error) { t.Errorf("onError(%v)", err) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := w.push(1)
	waitClosed(t, entered, "projection")
	unsub()
	close(proceed)
	waitClosed(t, done, "delivery")

	if n := updates.Load(); n != 0 {
		t.Fatalf("onUpdate called %d times after Unsubscribe returned", n)
	}
}

func TestUnsubscribeInsideUpdate(t *testing.T) {
	w := &manualWatch{}
	identity := func(_ context.Context, v int) (int, error) { return v, nil }

	var (
		updates atomic.Int32
		unsub   repository.Unsubscribe
	)
	unsub, err := subscribe(context.Background(), "test", w.watch, identity,
		func(int) {
			updates.Add(1)
			unsub()
		}, func(err error) { t.Errorf("onError(%v)", err) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	waitClosed(t, w.push(1), "first delivery")
	waitClosed(t, w.push(2), "second delivery")

	if n := updates.Load(); n != 1 {
		t.Fatalf("onUpdate called %d times, want 1", n)
	}
	unsub()
}
