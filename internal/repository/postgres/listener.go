package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/repository/watch"
)

const (
	reconnectDelay    = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

// Listener forwards change notifications into a watch.Broker.
type Listener struct {
	pool   *pgxpool.Pool
	broker *watch.Broker
	log    zerolog.Logger
}

func NewListener(pool *pgxpool.Pool, broker *watch.Broker, log zerolog.Logger) *Listener {
	return &Listener{
		pool:   pool,
		broker: broker,
		log:    log.With().Str("component", "pg_listener").Logger(),
	}
}

// Start issues LISTEN and returns once the channel is registered; the
// notification loop keeps running until ctx is cancelled. When the
// connection is lost, the live queries open at that moment are failed and
// the listener reconnects with exponential backoff. After reconnecting every
// live query reloads, since signals sent during the gap were missed.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := l.listen(ctx)
	if err != nil {
		return err
	}
	l.log.Info().Str("channel", NotifyChannel).Msg("listening for changes")

	go func() {
		for {
			err := l.forward(ctx, conn)
			conn.Release()
			if ctx.Err() != nil {
				return
			}
			l.log.Error().Err(err).Msg("notification stream lost")
			l.broker.Fail(fmt.Errorf("change feed: %w", err))

			conn = l.reconnect(ctx)
			if conn == nil {
				return
			}
			l.broker.PublishAll()
		}
	}()
	return nil
}

func (l *Listener) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listening on %s: %w", NotifyChannel, err)
	}
	return conn, nil
}

// forward publishes notifications until the connection fails or ctx ends.
func (l *Listener) forward(ctx context.Context, conn *pgxpool.Conn) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.broker.Publish(n.Payload)
	}
}

// reconnect retries listen until it succeeds. It returns nil once ctx is
// cancelled.
func (l *Listener) reconnect(ctx context.Context) *pgxpool.Conn {
	delay := reconnectDelay
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := l.listen(ctx)
		if err == nil {
			l.log.Info().Int("attempt", attempt).Msg("change feed reconnected")
			return conn
		}
		l.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("reconnecting change feed")

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
