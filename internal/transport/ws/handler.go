package ws

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/duet/internal/domain"
	"nhooyr.io/websocket"
)

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(token string) (domain.Identity, error)
}

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (browsers can't set headers on the
// upgrade) or an Authorization: Bearer header.
func ServeWS(hub *Hub, auth Authenticator, allowAnyOrigin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			tokenStr = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}

		identity, err := auth.Authenticate(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: allowAnyOrigin,
		})
		if err != nil {
			hub.log.Warn().Err(err).Msg("ws: accept error")
			return
		}

		client := NewClient(hub, conn, uuid.NewString(), identity, hub.cfg.SendBuffer)
		if err := hub.Register(client); err != nil {
			conn.Close(websocket.StatusTryAgainLater, err.Error())
			return
		}

		go client.WritePump()
		client.ReadPump(r.Context())
	}
}
