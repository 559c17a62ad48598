package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/metrics"
	"github.com/vedran77/chatcore/internal/repository"
)

var (
	ErrNoRecipients        = errors.New("a room needs at least one other user")
	ErrRecipientNotFound   = errors.New("recipient not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrNotAgentRoom        = errors.New("room is not an agent room")
	ErrAgentTagMismatch    = errors.New("agent does not serve the room's tag")
	ErrRoomAlreadyAssigned = errors.New("room is already assigned to another agent")
	ErrPrivateRoomClosed   = errors.New("private rooms cannot gain members")
)

// privateRoomNamespace seeds the deterministic ids of PRIVATE rooms.
var privateRoomNamespace = uuid.MustParse("0b6c3f1e-5a2d-4c7e-9f31-8e4d2a7b6c90")

// PrivateRoomID is the id of the PRIVATE room between a and b, independent
// of argument order.
func PrivateRoomID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return uuid.NewSHA1(privateRoomNamespace, []byte(a+"\x00"+b)).String()
}

type RoomService struct {
	rooms  repository.RoomRepository
	users  repository.UserRepository
	agents repository.AgentRepository
	log    zerolog.Logger
}

func NewRoomService(
	rooms repository.RoomRepository,
	users repository.UserRepository,
	agents repository.AgentRepository,
	log zerolog.Logger,
) *RoomService {
	return &RoomService{
		rooms:  rooms,
		users:  users,
		agents: agents,
		log:    log.With().Str("component", "room_service").Logger(),
	}
}

func (s *RoomService) requireUser(ctx context.Context, uid string) (*domain.User, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	user, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *RoomService) getRoom(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading room: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// recipients drops the requester, blank ids and duplicates from others.
func recipients(uid string, others []domain.User) []domain.User {
	out := make([]domain.User, 0, len(others))
	seen := map[string]struct{}{uid: {}}
	for _, u := range others {
		if u.ID == "" {
			continue
		}
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

// CreateRoomWithUsers opens a room between uid and others: PRIVATE with a
// single other user, GROUP otherwise. At most one PRIVATE room exists per
// pair; asking again returns the existing one unchanged.
func (s *RoomService) CreateRoomWithUsers(ctx context.Context, uid string, others []domain.User, name *string) (*domain.Room, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	others = recipients(uid, others)
	if len(others) == 0 {
		return nil, ErrNoRecipients
	}
	requester, err := s.requireUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	if len(others) == 1 {
		return s.getOrCreatePrivate(ctx, requester, &others[0])
	}

	room := &domain.Room{
		ID:        uuid.NewString(),
		CreatedBy: uid,
		Scope:     domain.RoomScopeGroup,
		Name:      name,
	}
	room.UserIDs = append(room.UserIDs, uid)
	room.Users = append(room.Users, requester.Preview())
	for _, u := range others {
		room.UserIDs = append(room.UserIDs, u.ID)
		room.Users = append(room.Users, u.Preview())
	}
	room.RemovedUserIDs = []string{}

	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}
	metrics.RoomsCreated.WithLabelValues(string(room.Scope)).Inc()
	s.log.Info().Str("room_id", room.ID).Int("members", len(room.UserIDs)).Msg("group room created")
	return room, nil
}

// CreateRoomWithUserIDs resolves the profiles of userIDs and creates the
// room as CreateRoomWithUsers does.
func (s *RoomService) CreateRoomWithUserIDs(ctx context.Context, uid string, userIDs []string, name *string) (*domain.Room, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	others := make([]domain.User, 0, len(userIDs))
	for _, id := range userIDs {
		others = append(others, domain.User{ID: id})
	}
	others = recipients(uid, others)
	if len(others) == 0 {
		return nil, ErrNoRecipients
	}

	for i, u := range others {
		profile, err := s.users.GetByID(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("loading recipient: %w", err)
		}
		if profile == nil {
			return nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, u.ID)
		}
		others[i] = *profile
	}
	return s.CreateRoomWithUsers(ctx, uid, others, name)
}

func (s *RoomService) getOrCreatePrivate(ctx context.Context, requester, other *domain.User) (*domain.Room, error) {
	existing, err := s.rooms.ListPrivateByMember(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("listing private rooms: %w", err)
	}
	for i := range existing {
		if existing[i].HasMember(other.ID) {
			return &existing[i], nil
		}
	}

	room := &domain.Room{
		ID:             PrivateRoomID(requester.ID, other.ID),
		CreatedBy:      requester.ID,
		UserIDs:        []string{requester.ID, other.ID},
		RemovedUserIDs: []string{},
		Users:          []domain.UserPreview{requester.Preview(), other.Preview()},
		Scope:          domain.RoomScopePrivate,
	}
	err = s.rooms.Create(ctx, room)
	if errors.Is(err, repository.ErrAlreadyExists) {
		// Lost the race against the other side of the pair.
		return s.getRoom(ctx, room.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("creating private room: %w", err)
	}

	metrics.RoomsCreated.WithLabelValues(string(room.Scope)).Inc()
	s.log.Info().Str("room_id", room.ID).Msg("private room created")
	return room, nil
}

// CreateRoomWithAgent opens an AGENT room for uid on tag. No agent is
// assigned until one joins.
func (s *RoomService) CreateRoomWithAgent(ctx context.Context, uid, tag string) (*domain.Room, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, ErrInvalidTag
	}
	requester, err := s.requireUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	room := &domain.Room{
		ID:             uuid.NewString(),
		CreatedBy:      uid,
		UserIDs:        []string{uid},
		RemovedUserIDs: []string{},
		Users:          []domain.UserPreview{requester.Preview()},
		Scope:          domain.RoomScopeAgent,
		Tag:            &tag,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("creating agent room: %w", err)
	}

	metrics.RoomsCreated.WithLabelValues(string(room.Scope)).Inc()
	s.log.Info().Str("room_id", room.ID).Str("tag", tag).Msg("agent room created")
	return room, nil
}

// JoinAgent assigns the agent agentID to an AGENT room whose tag it serves.
// Joining again as the same agent refreshes its preview.
func (s *RoomService) JoinAgent(ctx context.Context, roomID, agentID string) (*domain.Room, error) {
	if agentID == "" {
		return nil, ErrNotAuthenticated
	}
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading agent: %w", err)
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Scope != domain.RoomScopeAgent {
		return nil, ErrNotAgentRoom
	}
	if room.Tag == nil || !agent.ServesTag(*room.Tag) {
		return nil, ErrAgentTagMismatch
	}

	err = s.rooms.AssignAgent(ctx, roomID, agent.Preview())
	switch {
	case errors.Is(err, repository.ErrPreconditionFailed):
		return nil, ErrRoomAlreadyAssigned
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrRoomNotFound
	case err != nil:
		return nil, fmt.Errorf("assigning agent: %w", err)
	}

	s.log.Info().Str("room_id", roomID).Str("agent_id", agentID).Msg("agent joined")
	return s.getRoom(ctx, roomID)
}

// JoinUser adds uid to the room's members and returns the room with users
// rebuilt from the current profiles of its members.
func (s *RoomService) JoinUser(ctx context.Context, roomID, uid string) (*domain.Room, error) {
	if _, err := s.requireUser(ctx, uid); err != nil {
		return nil, err
	}
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Scope == domain.RoomScopePrivate && !room.HasMember(uid) {
		return nil, ErrPrivateRoomClosed
	}

	if err := s.rooms.AddMember(ctx, roomID, uid); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("adding member: %w", err)
	}

	room, err = s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	profiles, err := resolvePreviews(ctx, s.users, room.UserIDs)
	if err != nil {
		return nil, err
	}
	room.Users = previewsFor(room.UserIDs, profiles)
	return room, nil
}

// FetchRooms subscribes to every room uid is a member of. Each delivery
// carries all of them with users rebuilt from current profiles.
func (s *RoomService) FetchRooms(ctx context.Context, uid string, onUpdate func([]domain.Room), onError func(error)) (repository.Unsubscribe, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	watch := func(ctx context.Context, onSnapshot func([]domain.Room), onError func(error)) (repository.Unsubscribe, error) {
		return s.rooms.WatchByMember(ctx, uid, onSnapshot, onError)
	}
	return subscribe(ctx, "rooms", watch, projectRoomsLive(s.users), onUpdate, onError)
}

// FetchAgentRooms subscribes to the AGENT rooms tagged with any of the
// agent's tags, assigned or not.
func (s *RoomService) FetchAgentRooms(ctx context.Context, agentID string, onUpdate func([]domain.Room), onError func(error)) (repository.Unsubscribe, error) {
	if agentID == "" {
		return nil, ErrNotAuthenticated
	}
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading agent: %w", err)
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	if len(agent.Tags) == 0 {
		return nil, ErrInvalidTag
	}

	watch := func(ctx context.Context, onSnapshot func([]domain.Room), onError func(error)) (repository.Unsubscribe, error) {
		return s.rooms.WatchAgentRooms(ctx, agent.Tags, onSnapshot, onError)
	}
	return subscribe(ctx, "agent_rooms", watch, projectRoomsLive(s.users), onUpdate, onError)
}
