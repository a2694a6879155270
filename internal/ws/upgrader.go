package ws

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
)

// NewUpgrader accepts websocket handshakes from the given origins. An
// empty list, or one containing "*", accepts any origin.
func NewUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 || slices.Contains(origins, "*") {
				return true
			}
			return slices.Contains(origins, origin)
		},
	}
}
