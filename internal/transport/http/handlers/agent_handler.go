package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/service"
	"github.com/vedran77/chatcore/internal/transport/http/middleware"
	"github.com/vedran77/chatcore/pkg/validator"
)

type AgentHandler struct {
	agentService *service.AgentService
	log          zerolog.Logger
}

func NewAgentHandler(agentService *service.AgentService, log zerolog.Logger) *AgentHandler {
	return &AgentHandler{agentService: agentService, log: log}
}

// Create registers the caller as an agent.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateAgentInput
	if !decodeJSON(w, r, &input) {
		return
	}
	errs := validator.ValidateProfile(input.FirstName, input.LastName, input.Image)
	for field, msg := range validator.ValidateTags(input.Tags) {
		errs.Add(field, msg)
	}
	if errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	agent, err := h.agentService.CreateAgent(r.Context(), middleware.GetUserID(r.Context()), input)
	if err != nil {
		writeServiceError(w, h.log, "create agent", err)
		return
	}

	writeJSON(w, http.StatusCreated, agent)
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent, err := h.agentService.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, "get agent", err)
		return
	}

	if agent.ID != middleware.GetUserID(r.Context()) {
		agent.DeviceToken = nil
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) UpdateDeviceToken(w http.ResponseWriter, r *http.Request) {
	var input deviceTokenRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.agentService.UpdateDeviceToken(r.Context(), middleware.GetUserID(r.Context()), input.Token); err != nil {
		writeServiceError(w, h.log, "update agent device token", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
