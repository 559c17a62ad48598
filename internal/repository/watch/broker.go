// Package watch turns change signals into level-triggered live queries for
// stores that have no native snapshot listeners.
package watch

import (
	"context"
	"sync"

	"github.com/vedran77/chatcore/internal/repository"
)

// Broker routes change signals by topic to the live queries registered on
// it. Signals coalesce: a subscriber that is already dirty stays dirty once.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	dirty  chan struct{}
	failed chan error
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[*subscriber]struct{}),
	}
}

// Publish marks every subscriber of the given topics dirty.
func (b *Broker) Publish(topics ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, topic := range topics {
		for sub := range b.subs[topic] {
			select {
			case sub.dirty <- struct{}{}:
			default:
			}
		}
	}
}

// PublishAll marks every subscriber dirty, whatever its topic. Feeds call
// it after a gap in which signals may have been lost.
func (b *Broker) PublishAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subs {
		for sub := range subs {
			select {
			case sub.dirty <- struct{}{}:
			default:
			}
		}
	}
}

// Fail terminates the live queries registered at the time of the call with
// err. Queries started afterwards are unaffected.
func (b *Broker) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subs {
		for sub := range subs {
			select {
			case sub.failed <- err:
			default:
			}
		}
		delete(b.subs, topic)
	}
}

// Subscribers returns the number of live queries on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func (b *Broker) subscribe(topic string) *subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		dirty:  make(chan struct{}, 1),
		failed: make(chan error, 1),
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*subscriber]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	// Initial load.
	sub.dirty <- struct{}{}
	return sub
}

func (b *Broker) unsubscribe(topic string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs[topic], sub)
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

// Run starts a live query on topic. load is re-run after every signal and
// its full result handed to onSnapshot. A load error or a broker failure is
// reported once through onError and ends the query.
func Run[T any](
	ctx context.Context,
	b *Broker,
	topic string,
	load func(context.Context) (T, error),
	onSnapshot func(T),
	onError func(error),
) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	sub := b.subscribe(topic)

	go func() {
		defer b.unsubscribe(topic, sub)
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.failed:
				onError(err)
				return
			case <-sub.dirty:
			}
			// A failure queued next to a signal wins.
			select {
			case err := <-sub.failed:
				onError(err)
				return
			default:
			}

			result, err := load(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				onError(err)
				return
			}
			onSnapshot(result)
		}
	}()

	return repository.Unsubscribe(cancel)
}
