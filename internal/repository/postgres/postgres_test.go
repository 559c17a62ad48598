package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/database"
	"github.com/vedran77/chatcore/internal/repository/repotest"
	"github.com/vedran77/chatcore/internal/repository/watch"
)

func TestConformance(t *testing.T) {
	dsn := os.Getenv("CHATCORE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CHATCORE_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	broker := watch.NewBroker()
	if err := NewListener(pool, broker, zerolog.Nop()).Start(ctx); err != nil {
		t.Fatalf("Listener.Start: %v", err)
	}

	repotest.Run(t, func(t *testing.T) repotest.Stores {
		return repotest.Stores{
			Users:    NewUserRepo(pool, broker),
			Agents:   NewAgentRepo(pool),
			Rooms:    NewRoomRepo(pool, broker),
			Messages: NewMessageRepo(pool, broker),
		}
	})
}
