package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/metrics"
	"github.com/vedran77/chatcore/internal/repository"
)

var (
	ErrMessageNotFound     = errors.New("message not found")
	ErrNotRoomMember       = errors.New("you are not a member of this room")
	ErrNotMessageOwner     = errors.New("only the message sender can perform this action")
	ErrMissingText         = errors.New("text is required")
	ErrInvalidAttachment   = errors.New("attachment needs a file name")
	ErrUploadFailure       = errors.New("attachment upload failed")
	ErrTransactionConflict = repository.ErrTransactionConflict
)

const defaultMIMEType = "application/octet-stream"

// BlobStore receives attachment uploads.
type BlobStore interface {
	// Upload stores r at path and returns a durable download URL.
	Upload(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Notifier hands sent messages to the push pipeline.
type Notifier interface {
	NotifyMessageSent(ctx context.Context, n domain.PushNotification) error
}

type MessageService struct {
	messages repository.MessageRepository
	rooms    repository.RoomRepository
	users    repository.UserRepository
	agents   repository.AgentRepository
	blobs    BlobStore
	notifier Notifier
	log      zerolog.Logger
}

func NewMessageService(
	messages repository.MessageRepository,
	rooms repository.RoomRepository,
	users repository.UserRepository,
	agents repository.AgentRepository,
	blobs BlobStore,
	log zerolog.Logger,
) *MessageService {
	return &MessageService{
		messages: messages,
		rooms:    rooms,
		users:    users,
		agents:   agents,
		blobs:    blobs,
		log:      log.With().Str("component", "message_service").Logger(),
	}
}

// SetNotifier sets the push notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

type SendTextInput struct {
	RoomID   string         `json:"room_id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Upload is a local attachment to be stored before it is referenced.
type Upload struct {
	Filename string
	MIMEType string
	Body     io.Reader
}

type SendFileInput struct {
	RoomID   string
	Text     *string
	File     Upload
	Metadata map[string]any
}

// RemoteFile is an attachment that already lives in durable storage.
type RemoteFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
}

type SendFileURLInput struct {
	RoomID   string         `json:"room_id"`
	Text     *string        `json:"text,omitempty"`
	File     RemoteFile     `json:"file"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *MessageService) SendTextMessage(ctx context.Context, uid string, input SendTextInput) (*domain.Message, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	if input.Text == "" {
		return nil, ErrMissingText
	}
	room, err := s.postableRoom(ctx, uid, input.RoomID)
	if err != nil {
		return nil, err
	}

	text := input.Text
	msg := newMessage(uid, room.ID, domain.ContentTypeText, &text, input.Metadata)
	return s.finalizeSendMessage(ctx, room, msg)
}

// SendFileMessage uploads the attachment, then sends a message pointing at
// its download URL. A failed upload sends nothing.
func (s *MessageService) SendFileMessage(ctx context.Context, uid string, input SendFileInput) (*domain.Message, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	filename, ok := cleanFilename(input.File.Filename)
	if !ok || input.File.Body == nil {
		return nil, ErrInvalidAttachment
	}
	room, err := s.postableRoom(ctx, uid, input.RoomID)
	if err != nil {
		return nil, err
	}

	mimeType := mimeOrDefault(input.File.MIMEType)
	contentType := domain.ContentTypeForMIME(mimeType)
	storagePath := domain.AttachmentPath(room.ID, contentType, filename)

	url, err := s.blobs.Upload(ctx, storagePath, mimeType, input.File.Body)
	if err != nil {
		metrics.Uploads.WithLabelValues("failure").Inc()
		metrics.SendFailures.WithLabelValues("upload").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrUploadFailure, storagePath, err)
	}
	metrics.Uploads.WithLabelValues("success").Inc()

	msg := newMessage(uid, room.ID, contentType, input.Text, input.Metadata)
	msg.File = &domain.File{URI: url, MIMEType: mimeType, Name: filename}
	return s.finalizeSendMessage(ctx, room, msg)
}

// SendFileMessageWithURL sends an attachment message without uploading:
// the given URL is stored as is.
func (s *MessageService) SendFileMessageWithURL(ctx context.Context, uid string, input SendFileURLInput) (*domain.Message, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	filename, ok := cleanFilename(input.File.Filename)
	if !ok || strings.TrimSpace(input.File.URL) == "" {
		return nil, ErrInvalidAttachment
	}
	room, err := s.postableRoom(ctx, uid, input.RoomID)
	if err != nil {
		return nil, err
	}

	mimeType := mimeOrDefault(input.File.MIMEType)
	msg := newMessage(uid, room.ID, domain.ContentTypeForMIME(mimeType), input.Text, input.Metadata)
	msg.File = &domain.File{URI: input.File.URL, MIMEType: mimeType, Name: filename}
	return s.finalizeSendMessage(ctx, room, msg)
}

func newMessage(uid, roomID string, contentType domain.ContentType, text *string, metadata map[string]any) *domain.Message {
	return &domain.Message{
		ContentType: contentType,
		CreatedBy:   uid,
		Room:        roomID,
		Text:        text,
		Metadata:    metadata,
		Delivered:   false,
		ReadBy:      []string{},
	}
}

func cleanFilename(name string) (string, bool) {
	base := path.Base("/" + strings.TrimSpace(name))
	if base == "/" || base == "." || base == ".." {
		return "", false
	}
	return base, true
}

func mimeOrDefault(mimeType string) string {
	if mimeType = strings.TrimSpace(mimeType); mimeType == "" {
		return defaultMIMEType
	}
	return mimeType
}

// finalizeSendMessage assigns the message id and commits the message
// together with the room's last_message preview. Nothing is retried.
func (s *MessageService) finalizeSendMessage(ctx context.Context, room *domain.Room, msg *domain.Message) (*domain.Message, error) {
	msg.ID = ulid.Make().String()
	preview := msg.Preview()

	if err := s.messages.CreateWithRoomPreview(ctx, msg, preview); err != nil {
		switch {
		case errors.Is(err, repository.ErrTransactionConflict):
			metrics.SendFailures.WithLabelValues("conflict").Inc()
			return nil, err
		case errors.Is(err, repository.ErrNotFound):
			metrics.SendFailures.WithLabelValues("room_missing").Inc()
			return nil, ErrRoomNotFound
		default:
			metrics.SendFailures.WithLabelValues("other").Inc()
			return nil, fmt.Errorf("sending message: %w", err)
		}
	}

	metrics.MessagesSent.WithLabelValues(string(msg.ContentType)).Inc()
	s.log.Debug().
		Str("room_id", msg.Room).
		Str("message_id", msg.ID).
		Str("content_type", string(msg.ContentType)).
		Msg("message sent")

	s.notifyRecipients(ctx, room, msg, preview.Text)
	return msg, nil
}

// notifyRecipients publishes a push request for every other member and the
// assigned agent that registered a device. Failures are logged only.
func (s *MessageService) notifyRecipients(ctx context.Context, room *domain.Room, msg *domain.Message, preview string) {
	if s.notifier == nil {
		return
	}

	var tokens []string
	for _, id := range room.UserIDs {
		if id == msg.CreatedBy {
			continue
		}
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", id).Msg("resolving push recipient")
			continue
		}
		if u != nil && u.DeviceToken != nil && *u.DeviceToken != "" {
			tokens = append(tokens, *u.DeviceToken)
		}
	}
	if room.Agent != nil && room.Agent.ID != msg.CreatedBy {
		a, err := s.agents.GetByID(ctx, room.Agent.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("agent_id", room.Agent.ID).Msg("resolving push recipient")
		} else if a != nil && a.DeviceToken != nil && *a.DeviceToken != "" {
			tokens = append(tokens, *a.DeviceToken)
		}
	}
	if len(tokens) == 0 {
		return
	}

	err := s.notifier.NotifyMessageSent(ctx, domain.PushNotification{
		RoomID:       msg.Room,
		MessageID:    msg.ID,
		SenderID:     msg.CreatedBy,
		ContentType:  msg.ContentType,
		Preview:      preview,
		DeviceTokens: tokens,
	})
	if err != nil {
		metrics.PushNotifications.WithLabelValues("failure").Inc()
		s.log.Error().Err(err).Str("message_id", msg.ID).Msg("push notification failed")
		return
	}
	metrics.PushNotifications.WithLabelValues("success").Inc()
}

// FetchMessages subscribes to the room's messages, newest first.
func (s *MessageService) FetchMessages(ctx context.Context, uid, roomID string, onUpdate func([]domain.Message), onError func(error)) (repository.Unsubscribe, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	if _, err := s.postableRoom(ctx, uid, roomID); err != nil {
		return nil, err
	}

	watch := func(ctx context.Context, onSnapshot func([]domain.Message), onError func(error)) (repository.Unsubscribe, error) {
		return s.messages.WatchByRoom(ctx, roomID, onSnapshot, onError)
	}
	project := func(_ context.Context, messages []domain.Message) ([]domain.Message, error) {
		return ProjectMessages(messages), nil
	}
	return subscribe(ctx, "messages", watch, project, onUpdate, onError)
}

func (s *MessageService) MessageDelivered(ctx context.Context, uid, roomID, messageID string) error {
	if uid == "" {
		return ErrNotAuthenticated
	}
	if _, err := s.postableRoom(ctx, uid, roomID); err != nil {
		return err
	}
	return mapMessageErr(s.messages.MarkDelivered(ctx, roomID, messageID), "marking delivered")
}

// MessageRead adds uid to the message's readers. Repeated reads are no-ops.
func (s *MessageService) MessageRead(ctx context.Context, uid, roomID, messageID string) error {
	if uid == "" {
		return ErrNotAuthenticated
	}
	if _, err := s.postableRoom(ctx, uid, roomID); err != nil {
		return err
	}
	return mapMessageErr(s.messages.AddReader(ctx, roomID, messageID, uid), "marking read")
}

// DeleteMessage removes a message sent by uid. The room's last_message is
// left untouched even when it previews the deleted message.
func (s *MessageService) DeleteMessage(ctx context.Context, uid, roomID, messageID string) error {
	if uid == "" {
		return ErrNotAuthenticated
	}
	msg, err := s.messages.GetByID(ctx, roomID, messageID)
	if err != nil {
		return fmt.Errorf("loading message: %w", err)
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.CreatedBy != uid {
		return ErrNotMessageOwner
	}

	if err := s.messages.Delete(ctx, roomID, messageID); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

// postableRoom loads the room and checks that uid may read and write it.
func (s *MessageService) postableRoom(ctx context.Context, uid, roomID string) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("loading room: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if !room.CanPost(uid) {
		return nil, ErrNotRoomMember
	}
	return room, nil
}

func mapMessageErr(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrMessageNotFound
	}
	return fmt.Errorf("%s: %w", action, err)
}
