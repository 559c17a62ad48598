package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vedran77/chatcore/internal/service"
	"github.com/vedran77/chatcore/internal/transport/http/middleware"
	"github.com/vedran77/chatcore/pkg/validator"
)

const (
	maxUploadSize   = 32 << 20
	multipartMemory = 8 << 20
)

type MessageHandler struct {
	messageService *service.MessageService
	log            zerolog.Logger
}

func NewMessageHandler(messageService *service.MessageService, log zerolog.Logger) *MessageHandler {
	return &MessageHandler{messageService: messageService, log: log}
}

type sendTextRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

type sendFileURLRequest struct {
	Text     *string            `json:"text"`
	File     service.RemoteFile `json:"file"`
	Metadata map[string]any     `json:"metadata"`
}

func (h *MessageHandler) SendText(w http.ResponseWriter, r *http.Request) {
	var input sendTextRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateText(input.Text); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	msg, err := h.messageService.SendTextMessage(r.Context(), middleware.GetUserID(r.Context()), service.SendTextInput{
		RoomID:   chi.URLParam(r, "id"),
		Text:     input.Text,
		Metadata: input.Metadata,
	})
	if err != nil {
		writeServiceError(w, h.log, "send text message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// SendFile accepts a multipart form with the attachment in "file" and the
// optional fields "text", "mime_type" and "metadata" (a JSON object).
func (h *MessageHandler) SendFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Attachment is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidationErrors(w, validator.ValidationErrors{"file": "File is required"})
		return
	}
	defer file.Close()

	mimeType := r.FormValue("mime_type")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	var text *string
	if v, ok := r.MultipartForm.Value["text"]; ok && len(v) > 0 {
		text = &v[0]
	}
	if errs := validator.ValidateAttachment(text, header.Filename, mimeType, nil); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	var metadata map[string]any
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			writeValidationErrors(w, validator.ValidationErrors{"metadata": "Metadata must be a JSON object"})
			return
		}
	}

	msg, err := h.messageService.SendFileMessage(r.Context(), middleware.GetUserID(r.Context()), service.SendFileInput{
		RoomID:   chi.URLParam(r, "id"),
		Text:     text,
		File:     service.Upload{Filename: header.Filename, MIMEType: mimeType, Body: file},
		Metadata: metadata,
	})
	if err != nil {
		writeServiceError(w, h.log, "send file message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) SendFileURL(w http.ResponseWriter, r *http.Request) {
	var input sendFileURLRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateAttachment(input.Text, input.File.Filename, input.File.MIMEType, &input.File.URL); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	msg, err := h.messageService.SendFileMessageWithURL(r.Context(), middleware.GetUserID(r.Context()), service.SendFileURLInput{
		RoomID:   chi.URLParam(r, "id"),
		Text:     input.Text,
		File:     input.File,
		Metadata: input.Metadata,
	})
	if err != nil {
		writeServiceError(w, h.log, "send file url message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) Delivered(w http.ResponseWriter, r *http.Request) {
	err := h.messageService.MessageDelivered(r.Context(), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "mid"))
	if err != nil {
		writeServiceError(w, h.log, "mark delivered", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Read(w http.ResponseWriter, r *http.Request) {
	err := h.messageService.MessageRead(r.Context(), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "mid"))
	if err != nil {
		writeServiceError(w, h.log, "mark read", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.messageService.DeleteMessage(r.Context(), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "mid"))
	if err != nil {
		writeServiceError(w, h.log, "delete message", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
