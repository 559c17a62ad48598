package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog"

	"github.com/vedran77/chatcore/internal/config"
	"github.com/vedran77/chatcore/internal/database"
	"github.com/vedran77/chatcore/internal/identity"
	"github.com/vedran77/chatcore/internal/logging"
	"github.com/vedran77/chatcore/internal/notify"
	"github.com/vedran77/chatcore/internal/repository"
	firestorerepo "github.com/vedran77/chatcore/internal/repository/firestore"
	memoryrepo "github.com/vedran77/chatcore/internal/repository/memory"
	postgresrepo "github.com/vedran77/chatcore/internal/repository/postgres"
	"github.com/vedran77/chatcore/internal/repository/watch"
	"github.com/vedran77/chatcore/internal/service"
	"github.com/vedran77/chatcore/internal/storage"
	"github.com/vedran77/chatcore/internal/transport/http/router"
	"github.com/vedran77/chatcore/internal/transport/ws"
)

type stores struct {
	users    repository.UserRepository
	agents   repository.AgentRepository
	rooms    repository.RoomRepository
	messages repository.MessageRepository
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// Firebase backs both the firestore store and the firebase token verifier.
	var fbApp *firebase.App
	if cfg.StoreBackend == "firestore" || cfg.AuthProvider == "firebase" {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.GoogleProject})
		if err != nil {
			return fmt.Errorf("creating firebase app: %w", err)
		}
		fbApp = app
	}

	// Stores
	var st stores
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info().Msg("connected to PostgreSQL")

		// The listen connection must be released before pool.Close returns.
		listenCtx, stopListening := context.WithCancel(ctx)
		defer stopListening()

		broker := watch.NewBroker()
		if err := postgresrepo.NewListener(pool, broker, logger).Start(listenCtx); err != nil {
			return err
		}
		st = stores{
			users:    postgresrepo.NewUserRepo(pool, broker),
			agents:   postgresrepo.NewAgentRepo(pool),
			rooms:    postgresrepo.NewRoomRepo(pool, broker),
			messages: postgresrepo.NewMessageRepo(pool, broker),
		}

	case "firestore":
		client, err := fbApp.Firestore(ctx)
		if err != nil {
			return fmt.Errorf("creating firestore client: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("closing firestore client")
			}
		}()
		logger.Info().Str("project", cfg.GoogleProject).Msg("connected to Firestore")

		st = stores{
			users:    firestorerepo.NewUserRepo(client),
			agents:   firestorerepo.NewAgentRepo(client),
			rooms:    firestorerepo.NewRoomRepo(client),
			messages: firestorerepo.NewMessageRepo(client),
		}

	default:
		db := memoryrepo.New()
		st = stores{
			users:    memoryrepo.NewUserRepo(db),
			agents:   memoryrepo.NewAgentRepo(db),
			rooms:    memoryrepo.NewRoomRepo(db),
			messages: memoryrepo.NewMessageRepo(db),
		}
		logger.Warn().Msg("using the in-memory store, data is lost on restart")
	}

	// Blobs
	var blobs service.BlobStore
	var blobHandler http.Handler
	switch cfg.BlobBackend {
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("creating storage client: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("closing storage client")
			}
		}()
		blobs = storage.NewGCS(client, cfg.Bucket)

	default:
		mem := storage.NewMemory(cfg.PublicBaseURL + "/blobs")
		blobs, blobHandler = mem, mem
	}

	// Identity
	var verifier identity.Verifier
	switch cfg.AuthProvider {
	case "firebase":
		fbAuth, err := fbApp.Auth(ctx)
		if err != nil {
			return fmt.Errorf("creating firebase auth client: %w", err)
		}
		verifier = identity.NewFirebaseVerifier(fbAuth)
	default:
		verifier = identity.NewJWTVerifier(cfg.JWTSecret)
	}

	// Services
	userService := service.NewUserService(st.users, logger)
	agentService := service.NewAgentService(st.agents, logger)
	roomService := service.NewRoomService(st.rooms, st.users, st.agents, logger)
	messageService := service.NewMessageService(st.messages, st.rooms, st.users, st.agents, blobs, logger)

	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		messageService.SetNotifier(publisher)
	} else {
		messageService.SetNotifier(notify.NewLogNotifier(logger))
	}

	// WebSocket hub
	hub := ws.NewHub(ws.Services{Users: userService, Rooms: roomService, Messages: messageService}, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: router.New(router.Deps{
			Log:            logger,
			Verifier:       verifier,
			Users:          userService,
			Agents:         agentService,
			Rooms:          roomService,
			Messages:       messageService,
			Hub:            hub,
			Blobs:          blobHandler,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.ServerPort).
			Str("env", cfg.Env).
			Str("store", cfg.StoreBackend).
			Str("blobs", cfg.BlobBackend).
			Msg("starting chatcore server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server...")

	// Websocket connections are hijacked and not tracked by Shutdown.
	stopHub()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
