package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vedran77/chatcore/internal/identity"
)

type contextKey string

const UserIDKey contextKey = "user_id"

func Auth(verifier identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "Missing or invalid token")
				return
			}

			uid, err := verifier.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"`+message+`"}}`, http.StatusUnauthorized)
}

// GetUserID extracts the authenticated uid from the request context. It is
// empty outside of Auth.
func GetUserID(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}
