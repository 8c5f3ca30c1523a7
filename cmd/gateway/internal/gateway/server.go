package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/hub"
)

// ServeWS upgrades the request and attaches a new client to the hub.
func ServeWS(h *hub.Hub, logger *zap.Logger, sendBuffer int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("Websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(conn, h, logger, sendBuffer)
		client.Start()
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// Health reports liveness and the number of connected sessions.
func Health(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{Status: "ok", Sessions: h.Sessions()})
	}
}
