package ws

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/metrics"
	"github.com/vedran77/chatcore/internal/service"
)

// Services are the live queries a client can open.
type Services struct {
	Users    *service.UserService
	Rooms    *service.RoomService
	Messages *service.MessageService
}

// Hub tracks the open connections so they can be closed together on
// shutdown.
type Hub struct {
	services Services
	log      zerolog.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	done       chan struct{}
}

func NewHub(services Services, log zerolog.Logger) *Hub {
	return &Hub{
		services:   services,
		log:        log.With().Str("component", "ws_hub").Logger(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's main event loop. Call this in a goroutine; it returns
// after closing every client once ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			metrics.WSConnections.Inc()
			h.log.Debug().Str("user_id", client.uid).Int("total", len(h.clients)).Msg("client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				metrics.WSConnections.Dec()
				h.log.Debug().Str("user_id", client.uid).Int("total", len(h.clients)).Msg("client disconnected")
			}

		case reply := <-h.count:
			reply <- len(h.clients)

		case <-ctx.Done():
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
				metrics.WSConnections.Dec()
			}
			return
		}
	}
}

func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-ctx.Done():
		return 0
	case <-h.done:
		return 0
	}
}
