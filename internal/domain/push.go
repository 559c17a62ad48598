package domain

// PushNotification describes a sent message to the devices of its
// recipients.
type PushNotification struct {
	RoomID       string      `json:"room_id"`
	MessageID    string      `json:"message_id"`
	SenderID     string      `json:"sender_id"`
	ContentType  ContentType `json:"content_type"`
	Preview      string      `json:"preview"`
	DeviceTokens []string    `json:"device_tokens"`
}
