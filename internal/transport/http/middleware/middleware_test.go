package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vedran77/chatcore/internal/identity"
)

func TestAuth(t *testing.T) {
	verifier := identity.NewJWTVerifier("test-secret")
	token, err := verifier.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var gotUID string
	handler := Auth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUID = GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + token, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUID = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusNoContent && gotUID != "user-1" {
				t.Errorf("uid = %q, want user-1", gotUID)
			}
		})
	}
}

func TestGetUserIDOutsideAuth(t *testing.T) {
	if uid := GetUserID(context.Background()); uid != "" {
		t.Fatalf("GetUserID = %q, want empty", uid)
	}
}

func TestRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	var got string
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			got = routePattern(req)
		})
	})
	r.Get("/rooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rooms/abc", nil))

	if got != "/rooms/{id}" {
		t.Fatalf("route = %q, want /rooms/{id}", got)
	}
}
