package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/repository"
	"github.com/vedran77/chatcore/internal/repository/memory"
)

func TestSendAndReadScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	room := env.privateRoom(t, u1, u2)

	rooms := newCollector[[]domain.Room]()
	unsubRooms, err := env.roomSvc.FetchRooms(ctx, "u2", rooms.onUpdate, rooms.onError)
	if err != nil {
		t.Fatalf("FetchRooms: %v", err)
	}
	t.Cleanup(unsubRooms)

	messages := newCollector[[]domain.Message]()
	unsubMessages, err := env.messageSvc.FetchMessages(ctx, "u2", room.ID, messages.onUpdate, messages.onError)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	t.Cleanup(unsubMessages)

	sent := env.sendText(t, "u1", room.ID, "hi")
	if sent.ContentType != domain.ContentTypeText || sent.Delivered || len(sent.ReadBy) != 0 {
		t.Errorf("sent message = %+v", sent)
	}
	if sent.CreatedAt.IsZero() || !sent.CreatedAt.Equal(sent.UpdatedAt) {
		t.Errorf("timestamps created=%v updated=%v", sent.CreatedAt, sent.UpdatedAt)
	}

	got := rooms.waitFor(t, func(rs []domain.Room) bool { return len(rs) == 1 && rs[0].LastMessage != nil })
	want := &domain.LastMessage{ID: sent.ID, Text: "hi", Type: domain.ContentTypeText, SentBy: "u1", SentAt: sent.CreatedAt}
	if diff := cmp.Diff(want, got[0].LastMessage); diff != "" {
		t.Errorf("last_message mismatch (-want +got):\n%s", diff)
	}
	messages.waitFor(t, func(ms []domain.Message) bool { return len(ms) == 1 && ms[0].ID == sent.ID })

	if err := env.messageSvc.MessageRead(ctx, "u2", room.ID, sent.ID); err != nil {
		t.Fatalf("MessageRead: %v", err)
	}
	messages.waitFor(t, func(ms []domain.Message) bool {
		return len(ms) == 1 && ms[0].ReadByUser("u2")
	})
}

func TestFetchMessagesIsCompleteAndOrdered(t *testing.T) {
	env := newTestEnv(t)
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	room := env.privateRoom(t, u1, u2)

	const n = 12
	var ids []string
	for i := range n {
		ids = append(ids, env.sendText(t, "u1", room.ID, fmt.Sprintf("msg %d", i)).ID)
	}

	messages := newCollector[[]domain.Message]()
	unsub, err := env.messageSvc.FetchMessages(context.Background(), "u1", room.ID, messages.onUpdate, messages.onError)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	t.Cleanup(unsub)

	got := messages.waitFor(t, func(ms []domain.Message) bool { return len(ms) == n })
	for i, m := range got {
		if m.ID != ids[n-1-i] {
			t.Fatalf("position %d holds %s, want %s", i, m.ID, ids[n-1-i])
		}
		if i > 0 && got[i-1].CreatedAt.Before(m.CreatedAt) {
			t.Fatalf("messages not newest first at %d", i)
		}
	}
}

func TestSendTextMessageErrors(t *testing.T) {
	env := newTestEnv(t)
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	env.user(t, "u3", "Cy")
	room := env.privateRoom(t, u1, u2)

	tests := []struct {
		name  string
		uid   string
		input SendTextInput
		want  error
	}{
		{"no identity", "", SendTextInput{RoomID: room.ID, Text: "hi"}, ErrNotAuthenticated},
		{"empty text", "u1", SendTextInput{RoomID: room.ID, Text: ""}, ErrMissingText},
		{"missing room", "u1", SendTextInput{RoomID: "nope", Text: "hi"}, ErrRoomNotFound},
		{"not a member", "u3", SendTextInput{RoomID: room.ID, Text: "hi"}, ErrNotRoomMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.messageSvc.SendTextMessage(context.Background(), tt.uid, tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	stored, err := env.rooms.GetByID(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.LastMessage != nil {
		t.Errorf("rejected sends changed last_message to %+v", stored.LastMessage)
	}
}

func TestSendTextMessageKeepsWhitespaceText(t *testing.T) {
	env := newTestEnv(t)
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	room := env.privateRoom(t, u1, u2)

	msg := env.sendText(t, "u1", room.ID, "  \n")
	if msg.Text == nil || *msg.Text != "  \n" {
		t.Fatalf("text = %v, want it stored verbatim", msg.Text)
	}

	stored, err := env.rooms.GetByID(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.LastMessage == nil || stored.LastMessage.ID != msg.ID {
		t.Fatalf("last_message = %+v, want message %s", stored.LastMessage, msg.ID)
	}
}

func TestSendFileMessage(t *testing.T) {
	tests := []struct {
		mime     string
		filename string
		wantType domain.ContentType
		wantPath string
		wantText string
	}{
		{"image/png", "cat.png", domain.ContentTypeImage, "/images/cat.png", "📷 look"},
		{"video/mp4", "clip.mp4", domain.ContentTypeVideo, "/videos/clip.mp4", "📹 look"},
		{"audio/ogg", "note.ogg", domain.ContentTypeAudio, "/audios/note.ogg", "🎙 look"},
		{"application/pdf", "../../report.pdf", domain.ContentTypeCustom, "/files/report.pdf", "📎 look"},
		{"", "blob", domain.ContentTypeCustom, "/files/blob", "📎 look"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			env := newTestEnv(t)
			u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
			room := env.privateRoom(t, u1, u2)

			msg, err := env.messageSvc.SendFileMessage(context.Background(), "u1", SendFileInput{
				RoomID: room.ID,
				Text:   ptr("look"),
				File:   Upload{Filename: tt.filename, MIMEType: tt.mime, Body: strings.NewReader("payload")},
			})
			if err != nil {
				t.Fatalf("SendFileMessage: %v", err)
			}
			if msg.ContentType != tt.wantType {
				t.Errorf("content type = %s, want %s", msg.ContentType, tt.wantType)
			}
			objectPath := "/" + room.ID + tt.wantPath
			if msg.File == nil || msg.File.URI != "http://blobs.test"+objectPath {
				t.Fatalf("file = %+v, want uri for %s", msg.File, objectPath)
			}
			if data, ok := env.blobs.Object(objectPath); !ok || string(data) != "payload" {
				t.Errorf("stored object = %q, %v", data, ok)
			}
			if tt.mime == "" && msg.File.MIMEType != "application/octet-stream" {
				t.Errorf("mime type = %q, want application/octet-stream", msg.File.MIMEType)
			}

			stored, err := env.rooms.GetByID(context.Background(), room.ID)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if stored.LastMessage == nil || stored.LastMessage.Text != tt.wantText {
				t.Errorf("last_message = %+v, want text %q", stored.LastMessage, tt.wantText)
			}
		})
	}
}

func TestSendFileMessageUploadFailure(t *testing.T) {
	env := newTestEnv(t)
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	room := env.privateRoom(t, u1, u2)
	svc := NewMessageService(env.messages, env.rooms, env.users, env.agents, failingBlobs{}, zerolog.Nop())

	_, err := svc.SendFileMessage(context.Background(), "u1", SendFileInput{
		RoomID: room.ID,
		File:   Upload{Filename: "cat.png", MIMEType: "image/png", Body: strings.NewReader("x")},
	})
	if !errors.Is(err, ErrUploadFailure) {
		t.Fatalf("err = %v, want ErrUploadFailure", err)
	}
	if !strings.Contains(err.Error(), "/"+room.ID+"/images/cat.png") {
		t.Errorf("error %q does not name the storage path", err)
	}

	messages := newCollector[[]domain.Message]()
	unsub, err := svc.FetchMessages(context.Background(), "u1", room.ID, messages.onUpdate, messages.onError)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	t.Cleanup(unsub)
	messages.waitFor(t, func(ms []domain.Message) bool { return len(ms) == 0 })

	stored, err := env.rooms.GetByID(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.LastMessage != nil {
		t.Errorf("last_message = %+v after failed upload", stored.LastMessage)
	}
}

func TestSendFileMessageRejectsMissingFilename(t *testing.T) {
	env := newTestEnv(t)
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	room := env.privateRoom(t, u1, u2)

	_, err := env.messageSvc.SendFileMessage(context.Background(), "u1", SendFileInput{
		RoomID: room.ID,
		File:   Upload{Filename: " ", Body: strings.NewReader("x")},
	})
	if !errors.Is(err, ErrInvalidAttachment) {
		t.Fatalf("err = %v, want ErrInvalidAttachment", err)
	}
}

func TestSendFileMessageWithURL(t *testing.T) {
	env := newTestEnv(t)
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	room := env.privateRoom(t, u1, u2)

	msg, err := env.messageSvc.SendFileMessageWithURL(context.Background(), "u2", SendFileURLInput{
		RoomID: room.ID,
		File:   RemoteFile{Filename: "song.mp3", URL: "https://cdn.example.com/song.mp3", MIMEType: "audio/mpeg"},
	})
	if err != nil {
		t.Fatalf("SendFileMessageWithURL: %v", err)
	}
	want := &domain.File{URI: "https://cdn.example.com/song.mp3", MIMEType: "audio/mpeg", Name: "song.mp3"}
	if diff := cmp.Diff(want, msg.File); diff != "" {
		t.Errorf("file mismatch (-want +got):\n%s", diff)
	}
	if msg.ContentType != domain.ContentTypeAudio || msg.Text != nil {
		t.Errorf("message = %+v", msg)
	}
	if msg.PreviewText() != "🎙 " {
		t.Errorf("preview = %q", msg.PreviewText())
	}

	_, err = env.messageSvc.SendFileMessageWithURL(context.Background(), "u2", SendFileURLInput{
		RoomID: room.ID,
		File:   RemoteFile{Filename: "song.mp3"},
	})
	if !errors.Is(err, ErrInvalidAttachment) {
		t.Fatalf("missing url: err = %v, want ErrInvalidAttachment", err)
	}
}

func TestAssignedAgentCanPost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", "Ann")
	env.agent(t, "agent", "billing")

	room, err := env.roomSvc.CreateRoomWithAgent(ctx, "u1", "billing")
	if err != nil {
		t.Fatalf("CreateRoomWithAgent: %v", err)
	}
	if _, err := env.messageSvc.SendTextMessage(ctx, "agent", SendTextInput{RoomID: room.ID, Text: "hello"}); !errors.Is(err, ErrNotRoomMember) {
		t.Fatalf("before join: err = %v, want ErrNotRoomMember", err)
	}
	if _, err := env.roomSvc.JoinAgent(ctx, room.ID, "agent"); err != nil {
		t.Fatalf("JoinAgent: %v", err)
	}
	msg := env.sendText(t, "agent", room.ID, "hello")
	if msg.CreatedBy != "agent" {
		t.Errorf("created_by = %s", msg.CreatedBy)
	}
}

// conflictingMessages loses every transaction.
type conflictingMessages struct {
	*memory.MessageRepo
}

func (conflictingMessages) CreateWithRoomPreview(context.Context, *domain.Message, domain.LastMessage) error {
	return repository.ErrTransactionConflict
}

func TestSendReportsTransactionConflict(t *testing.T) {
	env := newTestEnv(t)
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	room := env.privateRoom(t, u1, u2)
	svc := NewMessageService(conflictingMessages{env.messages}, env.rooms, env.users, env.agents, env.blobs, zerolog.Nop())

	_, err := svc.SendTextMessage(context.Background(), "u1", SendTextInput{RoomID: room.ID, Text: "hi"})
	if !errors.Is(err, ErrTransactionConflict) {
		t.Fatalf("err = %v, want ErrTransactionConflict", err)
	}
}

func TestMessageDelivered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	room := env.privateRoom(t, u1, u2)
	sent := env.sendText(t, "u1", room.ID, "hi")

	if err := env.messageSvc.MessageDelivered(ctx, "u2", room.ID, sent.ID); err != nil {
		t.Fatalf("MessageDelivered: %v", err)
	}
	if err := env.messageSvc.MessageDelivered(ctx, "u2", room.ID, sent.ID); err != nil {
		t.Fatalf("second MessageDelivered: %v", err)
	}
	stored, err := env.messages.GetByID(ctx, room.ID, sent.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !stored.Delivered {
		t.Error("message not delivered")
	}
	if !stored.UpdatedAt.Equal(sent.UpdatedAt) {
		t.Errorf("updated_at moved from %v to %v", sent.UpdatedAt, stored.UpdatedAt)
	}

	if err := env.messageSvc.MessageDelivered(ctx, "u2", room.ID, "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("missing message: err = %v, want ErrMessageNotFound", err)
	}
}

func TestConcurrentReadsAreMerged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u1 := env.user(t, "u1", "Ann")
	var others []domain.User
	for i := range 8 {
		others = append(others, *env.user(t, fmt.Sprintf("r%d", i), "Reader"))
	}
	room, err := env.roomSvc.CreateRoomWithUsers(ctx, u1.ID, others, nil)
	if err != nil {
		t.Fatalf("CreateRoomWithUsers: %v", err)
	}
	sent := env.sendText(t, "u1", room.ID, "read me")

	var wg sync.WaitGroup
	for _, u := range others {
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := env.messageSvc.MessageRead(ctx, u.ID, room.ID, sent.ID); err != nil {
					t.Errorf("MessageRead(%s): %v", u.ID, err)
				}
			}()
		}
	}
	wg.Wait()

	stored, err := env.messages.GetByID(ctx, room.ID, sent.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(stored.ReadBy) != len(others) {
		t.Fatalf("read_by = %v, want %d distinct readers", stored.ReadBy, len(others))
	}
	for _, u := range others {
		if !stored.ReadByUser(u.ID) {
			t.Errorf("reader %s lost", u.ID)
		}
	}
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	room := env.privateRoom(t, u1, u2)
	sent := env.sendText(t, "u1", room.ID, "oops")

	if err := env.messageSvc.DeleteMessage(ctx, "u2", room.ID, sent.ID); !errors.Is(err, ErrNotMessageOwner) {
		t.Fatalf("non-owner: err = %v, want ErrNotMessageOwner", err)
	}
	if err := env.messageSvc.DeleteMessage(ctx, "u1", room.ID, sent.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if err := env.messageSvc.DeleteMessage(ctx, "u1", room.ID, sent.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("second delete: err = %v, want ErrMessageNotFound", err)
	}

	stored, err := env.rooms.GetByID(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.LastMessage == nil || stored.LastMessage.ID != sent.ID {
		t.Errorf("last_message = %+v, want the deleted message's preview", stored.LastMessage)
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.PushNotification
	err  error
}

func (n *recordingNotifier) NotifyMessageSent(_ context.Context, p domain.PushNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, p)
	return n.err
}

func TestSendNotifiesRecipients(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "u1", "Ann")
	env.user(t, "u2", "Ben")
	env.user(t, "u3", "Cy")
	if err := env.userSvc.UpdateDeviceToken(ctx, "u1", "dev-u1"); err != nil {
		t.Fatalf("UpdateDeviceToken: %v", err)
	}
	if err := env.userSvc.UpdateDeviceToken(ctx, "u2", "dev-u2"); err != nil {
		t.Fatalf("UpdateDeviceToken: %v", err)
	}
	room, err := env.roomSvc.CreateRoomWithUserIDs(ctx, "u1", []string{"u2", "u3"}, nil)
	if err != nil {
		t.Fatalf("CreateRoomWithUserIDs: %v", err)
	}

	notifier := &recordingNotifier{}
	env.messageSvc.SetNotifier(notifier)
	msg := env.sendText(t, "u1", room.ID, "hi all")

	want := []domain.PushNotification{{
		RoomID:       room.ID,
		MessageID:    msg.ID,
		SenderID:     "u1",
		ContentType:  domain.ContentTypeText,
		Preview:      "hi all",
		DeviceTokens: []string{"dev-u2"},
	}}
	if diff := cmp.Diff(want, notifier.sent); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifierFailureDoesNotFailSend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u1, u2 := env.user(t, "u1", "Ann"), env.user(t, "u2", "Ben")
	if err := env.userSvc.UpdateDeviceToken(ctx, "u2", "dev-u2"); err != nil {
		t.Fatalf("UpdateDeviceToken: %v", err)
	}
	room := env.privateRoom(t, u1, u2)
	env.messageSvc.SetNotifier(&recordingNotifier{err: errors.New("broker down")})

	if _, err := env.messageSvc.SendTextMessage(ctx, "u1", SendTextInput{RoomID: room.ID, Text: "hi"}); err != nil {
		t.Fatalf("SendTextMessage: %v", err)
	}
}
