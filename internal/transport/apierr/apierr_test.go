package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/vedran77/chatcore/internal/service"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
		known  bool
	}{
		{fmt.Errorf("loading: %w", service.ErrRoomNotFound), http.StatusNotFound, "ROOM_NOT_FOUND", true},
		{service.ErrNotRoomMember, http.StatusForbidden, "FORBIDDEN", true},
		{fmt.Errorf("%w: /r/images/a.png: timeout", service.ErrUploadFailure), http.StatusBadGateway, "UPLOAD_FAILED", true},
		{service.ErrTransactionConflict, http.StatusConflict, "CONFLICT", true},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL", false},
	}
	for _, tt := range tests {
		got, known := Resolve(tt.err)
		if got.Status != tt.status || got.Code != tt.code || known != tt.known {
			t.Errorf("Resolve(%v) = %+v, %v; want %d %s %v", tt.err, got, known, tt.status, tt.code, tt.known)
		}
	}
}
