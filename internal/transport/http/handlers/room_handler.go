package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/service"
	"github.com/vedran77/chatcore/internal/transport/http/middleware"
	"github.com/vedran77/chatcore/pkg/validator"
)

type RoomHandler struct {
	roomService *service.RoomService
	log         zerolog.Logger
}

func NewRoomHandler(roomService *service.RoomService, log zerolog.Logger) *RoomHandler {
	return &RoomHandler{roomService: roomService, log: log}
}

type createRoomRequest struct {
	UserIDs []string `json:"user_ids"`
	Name    *string  `json:"name"`
}

type createAgentRoomRequest struct {
	Tag string `json:"tag"`
}

// Create opens a PRIVATE room with one other user or a GROUP room with
// several. Asking again for an existing PRIVATE pair returns that room.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input createRoomRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateRoom(input.UserIDs, input.Name); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	room, err := h.roomService.CreateRoomWithUserIDs(r.Context(), middleware.GetUserID(r.Context()), input.UserIDs, input.Name)
	if err != nil {
		writeServiceError(w, h.log, "create room", err)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandler) CreateAgentRoom(w http.ResponseWriter, r *http.Request) {
	var input createAgentRoomRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateTag(input.Tag); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	room, err := h.roomService.CreateRoomWithAgent(r.Context(), middleware.GetUserID(r.Context()), input.Tag)
	if err != nil {
		writeServiceError(w, h.log, "create agent room", err)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

// JoinAgent assigns the calling agent to the room.
func (h *RoomHandler) JoinAgent(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomService.JoinAgent(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, "join agent", err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// JoinUser adds the caller to the room's members.
func (h *RoomHandler) JoinUser(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomService.JoinUser(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, "join user", err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}
