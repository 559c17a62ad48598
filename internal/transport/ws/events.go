package ws

import (
	"encoding/json"
	"time"
)

// Event types - Client → Server
const (
	EventTypeRoomsSubscribe      = "rooms.subscribe"
	EventTypeAgentRoomsSubscribe = "agent_rooms.subscribe"
	EventTypeMessagesSubscribe   = "messages.subscribe"
	EventTypeUsersSubscribe      = "users.subscribe"
	EventTypeUnsubscribe         = "unsubscribe"
	EventTypePing                = "ping"
)

// Event types - Server → Client
const (
	EventTypeSubscribed         = "subscribed"
	EventTypeRoomsSnapshot      = "rooms.snapshot"
	EventTypeAgentRoomsSnapshot = "agent_rooms.snapshot"
	EventTypeMessagesSnapshot   = "messages.snapshot"
	EventTypeUsersSnapshot      = "users.snapshot"
	EventTypeSubscriptionError  = "subscription.error"
	EventTypeUnsubscribed       = "unsubscribed"
	EventTypePong               = "pong"
	EventTypeError              = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type           string          `json:"type"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

// SubscribePayload is accepted by every *.subscribe event. ID is optional;
// the server picks one when it is empty.
type SubscribePayload struct {
	ID     string `json:"id,omitempty"`
	RoomID string `json:"room_id,omitempty"`
}

type UnsubscribePayload struct {
	SubscriptionID string `json:"subscription_id"`
}

// --- Server → Client payloads ---

type SubscribedPayload struct {
	Kind string `json:"kind"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType, subscriptionID string, payload any) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}
	return &Event{
		Type:           eventType,
		SubscriptionID: subscriptionID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}
