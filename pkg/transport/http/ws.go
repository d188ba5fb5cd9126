package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/rhuss/trianswer/pkg/debug"
)

const wsWriteTimeout = 10 * time.Second

// handleWebSocket handles GET /v1/conversations/{cid}/ws. Each event is
// sent as one JSON text frame. Client frames are ignored.
func (a *Adapter) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	cid, ok := a.conversationID(w, r)
	if !ok {
		return
	}

	// Subscribed before the upgrade completes, so a client that sends a
	// submission right after dialing sees all of its events.
	events, unsubscribe := a.manager.Subscribe(r.Context(), cid)
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.config.OriginPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "conversation_id", cid, "error", err)
		return
	}
	defer conn.CloseNow()

	// CloseRead drains client frames and cancels ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())

	debug.Log("http", "websocket subscribed", "conversation_id", cid)

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.streamsDone:
			conn.Close(websocket.StatusGoingAway, "server shutdown")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutdown")
				return
			}
			if err := writeFrame(ctx, conn, ev); err != nil {
				if websocket.CloseStatus(err) == -1 {
					slog.Debug("websocket write failed", "conversation_id", cid, "error", err)
				}
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
