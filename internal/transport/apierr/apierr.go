// Package apierr maps service errors to the status codes and error codes
// shared by the HTTP and websocket transports.
package apierr

import (
	"errors"
	"net/http"

	"github.com/vedran77/chatcore/internal/service"
)

type Error struct {
	Status  int
	Code    string
	Message string
}

var table = []struct {
	err error
	Error
}{
	{service.ErrNotAuthenticated, Error{http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required"}},
	{service.ErrUserNotFound, Error{http.StatusNotFound, "USER_NOT_FOUND", "User not found"}},
	{service.ErrAgentNotFound, Error{http.StatusNotFound, "AGENT_NOT_FOUND", "Agent not found"}},
	{service.ErrRoomNotFound, Error{http.StatusNotFound, "ROOM_NOT_FOUND", "Room not found"}},
	{service.ErrMessageNotFound, Error{http.StatusNotFound, "MESSAGE_NOT_FOUND", "Message not found"}},
	{service.ErrRecipientNotFound, Error{http.StatusNotFound, "RECIPIENT_NOT_FOUND", "One of the users does not exist"}},
	{service.ErrNoRecipients, Error{http.StatusBadRequest, "NO_RECIPIENTS", "A room needs at least one other user"}},
	{service.ErrInvalidTag, Error{http.StatusBadRequest, "INVALID_TAG", "A non-empty tag is required"}},
	{service.ErrEmptyUpdate, Error{http.StatusBadRequest, "EMPTY_UPDATE", "Nothing to update"}},
	{service.ErrMissingToken, Error{http.StatusBadRequest, "MISSING_TOKEN", "Device token is required"}},
	{service.ErrMissingText, Error{http.StatusBadRequest, "MISSING_TEXT", "Message text is required"}},
	{service.ErrInvalidAttachment, Error{http.StatusBadRequest, "INVALID_ATTACHMENT", "Attachment needs a file name and location"}},
	{service.ErrNotRoomMember, Error{http.StatusForbidden, "FORBIDDEN", "You are not a member of this room"}},
	{service.ErrNotMessageOwner, Error{http.StatusForbidden, "FORBIDDEN", "You can only delete your own messages"}},
	{service.ErrPrivateRoomClosed, Error{http.StatusForbidden, "PRIVATE_ROOM", "Private rooms cannot gain members"}},
	{service.ErrAgentTagMismatch, Error{http.StatusForbidden, "TAG_MISMATCH", "Agent does not serve this room's tag"}},
	{service.ErrNotAgentRoom, Error{http.StatusConflict, "NOT_AGENT_ROOM", "Room is not an agent room"}},
	{service.ErrRoomAlreadyAssigned, Error{http.StatusConflict, "ALREADY_ASSIGNED", "Room is already assigned to another agent"}},
	{service.ErrTransactionConflict, Error{http.StatusConflict, "CONFLICT", "Concurrent update, try again"}},
	{service.ErrUploadFailure, Error{http.StatusBadGateway, "UPLOAD_FAILED", "Attachment upload failed"}},
}

var internal = Error{http.StatusInternalServerError, "INTERNAL", "Something went wrong"}

// Resolve returns the public form of err and whether err was a known
// service error. Unknown errors resolve to INTERNAL.
func Resolve(err error) (Error, bool) {
	for _, entry := range table {
		if errors.Is(err, entry.err) {
			return entry.Error, true
		}
	}
	return internal, false
}
