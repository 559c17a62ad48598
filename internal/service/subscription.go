package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vedran77/chatcore/internal/metrics"
	"github.com/vedran77/chatcore/internal/repository"
)

// SubscriptionError ends a live subscription. It is delivered through the
// subscriber's onError callback, never returned.
type SubscriptionError struct {
	Kind string
	Err  error
}

func (e *SubscriptionError) Error() string {
	return "subscription " + e.Kind + ": " + e.Err.Error()
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

type watchFunc[T any] func(ctx context.Context, onSnapshot func(T), onError func(error)) (repository.Unsubscribe, error)

// subscribe starts a live query and runs project over every snapshot before
// handing it to onUpdate. A projection or store failure is reported once as
// a *SubscriptionError and ends the query. The returned Unsubscribe is
// idempotent and may be called from inside either callback. No onUpdate
// starts after Unsubscribe returns; one already running is not waited for.
func subscribe[T any](
	ctx context.Context,
	kind string,
	watch watchFunc[T],
	project func(context.Context, T) (T, error),
	onUpdate func(T),
	onError func(error),
) (repository.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)

	gauge := metrics.ActiveSubscriptions.WithLabelValues(kind)
	gauge.Inc()
	release := sync.OnceFunc(func() {
		cancel()
		gauge.Dec()
	})

	var (
		closed     atomic.Bool
		inCallback atomic.Bool
		deliverMu  sync.Mutex
	)
	deliver := func(out T) {
		deliverMu.Lock()
		defer deliverMu.Unlock()
		if closed.Load() {
			return
		}
		inCallback.Store(true)
		defer inCallback.Store(false)
		metrics.SnapshotsDelivered.WithLabelValues(kind).Inc()
		onUpdate(out)
	}
	fail := func(err error) {
		if !closed.CompareAndSwap(false, true) {
			return
		}
		release()
		onError(&SubscriptionError{Kind: kind, Err: err})
	}

	stop, err := watch(ctx, func(snapshot T) {
		if closed.Load() {
			return
		}
		out, err := project(ctx, snapshot)
		if err != nil {
			if ctx.Err() == nil {
				fail(err)
			}
			return
		}
		deliver(out)
	}, fail)
	if err != nil {
		closed.Store(true)
		release()
		return nil, err
	}

	return func() {
		closed.Store(true)
		// Wait out a delivery that passed its check, unless we are inside it.
		if !inCallback.Load() {
			deliverMu.Lock()
			deliverMu.Unlock()
		}
		release()
		stop()
	}, nil
}
