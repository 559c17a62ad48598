package ws

import (
	"net/http"
	"slices"
	"time"

	"github.com/vedran77/chatcore/internal/identity"
	"nhooyr.io/websocket"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
func ServeWS(hub *Hub, verifier identity.Verifier, allowedOrigins []string) http.HandlerFunc {
	opts := &websocket.AcceptOptions{OriginPatterns: allowedOrigins}
	if slices.Contains(allowedOrigins, "*") {
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		uid, err := verifier.Verify(r.Context(), tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		// The server's read and write timeouts would otherwise carry over to
		// the hijacked connection.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			hub.log.Warn().Err(err).Msg("accept error")
			return
		}

		client := NewClient(r.Context(), hub, conn, uid)
		if !hub.add(client) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		go client.WritePump()
		client.ReadPump()
	}
}
