package websocket

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// HandleWebSocket upgrades the connection and hands it to the hub.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Origin is enforced upstream by the reverse proxy.
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}

		client := NewClient(hub, conn, logger)
		client.Run(r.Context())
	}
}
