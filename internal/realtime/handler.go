package realtime

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	applog "sourverse/internal/log"
	"sourverse/internal/metrics"
)

// DefaultMoveRate bounds how often a connection's movement is applied.
// Faster input is coalesced to the latest position.
const (
	DefaultMoveRate  = 30
	DefaultMoveBurst = 30
)

type HandlerConfig struct {
	// AllowedOrigins are host patterns passed to the websocket origin check.
	// "*" accepts any origin.
	AllowedOrigins []string
	MoveRate       float64
	MoveBurst      int
	Logger         *applog.Logger
	Metrics        *metrics.Metrics
}

// Handler upgrades requests to websocket connections served by hub.
func Handler(hub *Hub, cfg HandlerConfig) http.Handler {
	logger := applog.OrDefault(cfg.Logger, applog.ComponentRealtime)
	origins := originPatterns(cfg.AllowedOrigins)
	moveRate := cfg.MoveRate
	if moveRate <= 0 {
		moveRate = DefaultMoveRate
	}
	burst := cfg.MoveBurst
	if burst <= 0 {
		burst = DefaultMoveBurst
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
		if err != nil {
			logger.Warn("Websocket upgrade failed", applog.FieldError, err)
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "bye")

		conn := newConn(hub, ws, rate.NewLimiter(rate.Limit(moveRate), burst), logger, cfg.Metrics)
		err = conn.Serve(r.Context())
		switch {
		case errors.Is(err, errDropped):
			_ = ws.Close(websocket.StatusPolicyViolation, "too slow")
		case errors.Is(err, ErrHubClosed):
			_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
		case err != nil && websocket.CloseStatus(err) == -1 && r.Context().Err() == nil:
			logger.Debug("Connection ended", applog.FieldConnID, conn.peerID, applog.FieldError, err)
		}
	})
}

func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, o)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
