package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vedran77/chatcore/internal/identity"
	"github.com/vedran77/chatcore/internal/service"
	"github.com/vedran77/chatcore/internal/transport/http/handlers"
	"github.com/vedran77/chatcore/internal/transport/http/middleware"
	"github.com/vedran77/chatcore/internal/transport/ws"
)

type Deps struct {
	Log      zerolog.Logger
	Verifier identity.Verifier

	Users    *service.UserService
	Agents   *service.AgentService
	Rooms    *service.RoomService
	Messages *service.MessageService
	Hub      *ws.Hub

	// Blobs serves uploaded attachments under /blobs/ when set.
	Blobs          http.Handler
	AllowedOrigins []string
}

// New creates and configures the HTTP router.
func New(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	userHandler := handlers.NewUserHandler(d.Users, d.Log)
	agentHandler := handlers.NewAgentHandler(d.Agents, d.Log)
	roomHandler := handlers.NewRoomHandler(d.Rooms, d.Log)
	messageHandler := handlers.NewMessageHandler(d.Messages, d.Log)

	// Public
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", ws.ServeWS(d.Hub, d.Verifier, d.AllowedOrigins))
	if d.Blobs != nil {
		r.Handle("/blobs/*", http.StripPrefix("/blobs", d.Blobs))
	}

	// Protected
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(d.Verifier))

		r.Post("/users", userHandler.Create)
		r.Get("/users/{id}", userHandler.Get)
		r.Patch("/users/me", userHandler.UpdateMe)
		r.Put("/users/me/device-token", userHandler.UpdateDeviceToken)

		r.Post("/agents", agentHandler.Create)
		r.Get("/agents/{id}", agentHandler.Get)
		r.Put("/agents/me/device-token", agentHandler.UpdateDeviceToken)

		r.Post("/rooms", roomHandler.Create)
		r.Post("/rooms/agent", roomHandler.CreateAgentRoom)
		r.Post("/rooms/{id}/agent", roomHandler.JoinAgent)
		r.Post("/rooms/{id}/members", roomHandler.JoinUser)

		r.Post("/rooms/{id}/messages", messageHandler.SendText)
		r.Post("/rooms/{id}/messages/file", messageHandler.SendFile)
		r.Post("/rooms/{id}/messages/file-url", messageHandler.SendFileURL)
		r.Post("/rooms/{id}/messages/{mid}/delivered", messageHandler.Delivered)
		r.Post("/rooms/{id}/messages/{mid}/read", messageHandler.Read)
		r.Delete("/rooms/{id}/messages/{mid}", messageHandler.Delete)
	})

	return r
}
