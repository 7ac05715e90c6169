package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/dsc-prep/internal/quiz"
)

const wsWriteTimeout = 5 * time.Second

// handleWebsocket streams session updates: the current state first, then
// every tick and transition until the session closes or the client leaves.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.origins),
	})
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", sess.ID(), "error", err)
		return
	}
	defer conn.CloseNow()

	updates, cancel := sess.Subscribe()
	defer cancel()

	// Reads are only used to notice the client going away.
	ctx := conn.CloseRead(r.Context())

	if err := writeUpdate(ctx, conn, initialUpdate(sess.Snapshot())); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if err := writeUpdate(ctx, conn, u); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("websocket write failed", "session_id", sess.ID(), "error", err)
				}
				return
			}
		}
	}
}

func writeUpdate(ctx context.Context, conn *websocket.Conn, u quiz.Update) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, u)
}

func initialUpdate(snap quiz.Snapshot) quiz.Update {
	return quiz.Update{
		Kind:      quiz.UpdateState,
		Status:    snap.Status,
		Remaining: snap.Remaining,
		Clock:     snap.Clock,
		Urgency:   snap.Urgency,
		Score:     snap.Score,
	}
}

// originPatterns turns CORS origins into the host patterns the websocket
// handshake checks.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			out = append(out, o)
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
