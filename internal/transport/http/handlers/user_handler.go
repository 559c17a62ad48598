package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/domain"
	"github.com/vedran77/chatcore/internal/service"
	"github.com/vedran77/chatcore/internal/transport/http/middleware"
	"github.com/vedran77/chatcore/pkg/validator"
)

type UserHandler struct {
	userService *service.UserService
	log         zerolog.Logger
}

func NewUserHandler(userService *service.UserService, log zerolog.Logger) *UserHandler {
	return &UserHandler{userService: userService, log: log}
}

type deviceTokenRequest struct {
	Token string `json:"token"`
}

// Create writes the caller's profile.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateUserInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateProfile(input.FirstName, input.LastName, input.Image); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	user, err := h.userService.CreateUser(r.Context(), middleware.GetUserID(r.Context()), input)
	if err != nil {
		writeServiceError(w, h.log, "create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, "get user", err)
		return
	}

	// Device tokens stay private to their owner.
	if user.ID != middleware.GetUserID(r.Context()) {
		user.DeviceToken = nil
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var input domain.ProfileUpdate
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateProfile(input.FirstName, input.LastName, input.Image); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	user, err := h.userService.UpdateUser(r.Context(), middleware.GetUserID(r.Context()), input)
	if err != nil {
		writeServiceError(w, h.log, "update user", err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateDeviceToken(w http.ResponseWriter, r *http.Request) {
	var input deviceTokenRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.userService.UpdateDeviceToken(r.Context(), middleware.GetUserID(r.Context()), input.Token); err != nil {
		writeServiceError(w, h.log, "update device token", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
