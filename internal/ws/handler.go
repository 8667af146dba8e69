package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/live-poll/internal/poll"
)

const (
	outboxSize   = 16
	writeTimeout = 3 * time.Second
)

// Handler upgrades GET /ws into a push-only listener. Every frame is a
// {"type":"state","payload":...} snapshot; the first one arrives right after
// the upgrade.
//
// Browsers are accepted from the serving host, plus any origin host matching
// one of origins (path.Match patterns such as "*.example.com").
func Handler(p *poll.Poll, log *zap.Logger, origins []string) http.HandlerFunc {
	opts := &websocket.AcceptOptions{OriginPatterns: origins}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			log.Debug("upgrade rejected", zap.String("origin", r.Header.Get("Origin")), zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan []byte, outboxSize)
		clientID := uuid.NewString()
		if err := p.Join(r.Context(), clientID, out); err != nil {
			conn.Close(websocket.StatusTryAgainLater, "poll unavailable")
			return
		}
		defer p.Leave(clientID)

		// Listeners never send; CloseRead handles control frames and cancels
		// ctx once the peer goes away.
		ctx := conn.CloseRead(r.Context())

		for {
			select {
			case payload, ok := <-out:
				if !ok {
					// Dropped as slow or the server is shutting down.
					conn.Close(websocket.StatusGoingAway, "listener dropped")
					return
				}
				wctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := conn.Write(wctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					log.Debug("write failed", zap.String("client", clientID), zap.Error(err))
					return
				}
			case <-p.Done():
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
