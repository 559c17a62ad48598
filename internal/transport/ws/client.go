package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
	"github.com/vedran77/chatcore/internal/service"
	"github.com/vedran77/chatcore/internal/transport/apierr"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait        = 10 * time.Second
	pingInterval     = 30 * time.Second
	maxMessageSize   = 4096
	sendBufSize      = 256
	maxSubscriptions = 32
)

// Client represents a single WebSocket connection and the live queries it
// opened. Closing the connection ends all of them.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	uid  string
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]repository.Unsubscribe

	send chan []byte
}

func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, uid string) *Client {
	ctx, cancel := context.WithCancel(ctx)
	conn.SetReadLimit(maxMessageSize)
	return &Client{
		hub:    hub,
		conn:   conn,
		uid:    uid,
		log:    hub.log.With().Str("user_id", uid).Logger(),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]repository.Unsubscribe),
		send:   make(chan []byte, sendBufSize),
	}
}

// ReadPump reads client events until the connection ends, then releases
// every subscription of the client.
func (c *Client) ReadPump() {
	defer func() {
		c.close()
		c.hub.remove(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event Event
		err := wsjson.Read(c.ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || c.ctx.Err() != nil {
				c.log.Debug().Msg("client disconnected")
			} else {
				c.log.Warn().Err(err).Msg("read error")
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes queued events to the WebSocket and keeps it alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("write error")
				c.close()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("ping error")
				c.close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// close cancels the connection context and ends every subscription.
func (c *Client) close() {
	c.cancel()

	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]repository.Unsubscribe)
	c.mu.Unlock()

	for _, unsub := range subs {
		if unsub != nil {
			unsub()
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeRoomsSubscribe:
		c.subscribe(event, "rooms", func(id string, p SubscribePayload) (repository.Unsubscribe, error) {
			return c.hub.services.Rooms.FetchRooms(c.ctx, c.uid,
				snapshotTo[[]domain.Room](c, id, EventTypeRoomsSnapshot), c.subscriptionFailed(id))
		})

	case EventTypeAgentRoomsSubscribe:
		c.subscribe(event, "agent_rooms", func(id string, p SubscribePayload) (repository.Unsubscribe, error) {
			return c.hub.services.Rooms.FetchAgentRooms(c.ctx, c.uid,
				snapshotTo[[]domain.Room](c, id, EventTypeAgentRoomsSnapshot), c.subscriptionFailed(id))
		})

	case EventTypeMessagesSubscribe:
		c.subscribe(event, "messages", func(id string, p SubscribePayload) (repository.Unsubscribe, error) {
			return c.hub.services.Messages.FetchMessages(c.ctx, c.uid, p.RoomID,
				snapshotTo[[]domain.Message](c, id, EventTypeMessagesSnapshot), c.subscriptionFailed(id))
		})

	case EventTypeUsersSubscribe:
		c.subscribe(event, "users", func(id string, p SubscribePayload) (repository.Unsubscribe, error) {
			return c.hub.services.Users.FetchUsers(c.ctx, c.uid,
				snapshotTo[[]domain.User](c, id, EventTypeUsersSnapshot), c.subscriptionFailed(id))
		})

	case EventTypeUnsubscribe:
		var p UnsubscribePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.SubscriptionID == "" {
			c.sendError("", "INVALID_PAYLOAD", "unsubscribe needs a subscription_id")
			return
		}
		c.unsubscribe(p.SubscriptionID)

	case EventTypePing:
		c.enqueue(EventTypePong, "", nil)

	default:
		c.sendError("", "UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

type startFunc func(id string, p SubscribePayload) (repository.Unsubscribe, error)

func (c *Client) subscribe(event *Event, kind string, start startFunc) {
	var p SubscribePayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("", "INVALID_PAYLOAD", "invalid "+event.Type+" payload")
			return
		}
	}
	if kind == "messages" && p.RoomID == "" {
		c.sendError(p.ID, "INVALID_PAYLOAD", "room_id is required")
		return
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}

	c.mu.Lock()
	if _, taken := c.subs[id]; taken {
		c.mu.Unlock()
		c.sendError(id, "DUPLICATE_SUBSCRIPTION", "subscription id already in use")
		return
	}
	if len(c.subs) >= maxSubscriptions {
		c.mu.Unlock()
		c.sendError(id, "TOO_MANY_SUBSCRIPTIONS", "too many open subscriptions")
		return
	}
	// Reserved until start returns.
	c.subs[id] = nil
	c.mu.Unlock()

	c.enqueue(EventTypeSubscribed, id, SubscribedPayload{Kind: kind})

	unsub, err := start(id, p)
	if err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()

		resolved, known := apierr.Resolve(err)
		if !known {
			c.log.Error().Err(err).Str("kind", kind).Msg("subscribe failed")
		}
		c.sendError(id, resolved.Code, resolved.Message)
		return
	}

	c.mu.Lock()
	_, open := c.subs[id]
	if open {
		c.subs[id] = unsub
	}
	c.mu.Unlock()
	if !open {
		// Ended by onError or by the connection closing while starting.
		unsub()
		return
	}
	c.log.Debug().Str("subscription_id", id).Str("kind", kind).Msg("subscribed")
}

func (c *Client) unsubscribe(id string) {
	c.mu.Lock()
	unsub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()

	if !ok {
		c.sendError(id, "UNKNOWN_SUBSCRIPTION", "no such subscription")
		return
	}
	if unsub != nil {
		unsub()
	}
	c.enqueue(EventTypeUnsubscribed, id, nil)
}

func snapshotTo[T any](c *Client, id, eventType string) func(T) {
	return func(snapshot T) {
		c.enqueue(eventType, id, snapshot)
	}
}

func (c *Client) subscriptionFailed(id string) func(error) {
	return func(err error) {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()

		c.log.Warn().Err(err).Str("subscription_id", id).Msg("subscription ended")
		msg := "subscription ended"
		var subErr *service.SubscriptionError
		if errors.As(err, &subErr) {
			msg = subErr.Kind + " subscription ended"
		}
		c.enqueue(EventTypeSubscriptionError, id, ErrorPayload{Code: "SUBSCRIPTION_ERROR", Message: msg})
	}
}

func (c *Client) sendError(subscriptionID, code, message string) {
	c.enqueue(EventTypeError, subscriptionID, ErrorPayload{Code: code, Message: message})
}

// enqueue hands an event to the write pump. A client that cannot keep up is
// disconnected; it resubscribes and receives full snapshots again.
func (c *Client) enqueue(eventType, subscriptionID string, payload any) {
	evt, err := NewEvent(eventType, subscriptionID, payload)
	if err != nil {
		c.log.Error().Err(err).Str("type", eventType).Msg("marshal error")
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		c.log.Error().Err(err).Str("type", eventType).Msg("marshal error")
		return
	}

	select {
	case c.send <- data:
	case <-c.ctx.Done():
	default:
		c.log.Warn().Msg("send buffer full, disconnecting")
		c.close()
	}
}
