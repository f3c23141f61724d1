// handlers/stream.go
package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"realm-rivals/middleware"
	"realm-rivals/realtime"

	"github.com/gofiber/fiber/v2"
)

const streamKeepAlive = 15 * time.Second

// SetupStreamRoutes must run before the /api group is created so the stream route is
// matched ahead of the header-based user middleware.
func SetupStreamRoutes(app *fiber.App, h *GameHandler) {
	app.Get("/api/game/sessions/:id/stream", middleware.StreamUserMiddleware(), h.Stream)
}

// Stream is the SSE fallback of the websocket channel: a snapshot, then every session event.
func (h *GameHandler) Stream(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	userID := middleware.ActorFrom(c).UserID

	member, err := h.Players.IsMember(c.UserContext(), sessionID, userID)
	if err != nil {
		return respondServiceError(c, "STREAM", err)
	}
	if !member {
		return respondError(c, fiber.StatusForbidden, realtime.ErrNotMember.Error())
	}

	sub, seq := h.Hub.Subscribe(sessionID)
	players, err := h.Players.Snapshot(c.UserContext(), sessionID)
	if err != nil {
		sub.Close()
		return respondServiceError(c, "STREAM", err)
	}
	snapshot := realtime.Event{
		Seq:       seq,
		Type:      realtime.EventSnapshot,
		SessionID: sessionID,
		Payload:   players,
		At:        time.Now().UTC(),
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	// The writer outlives the handler, so nothing from c is touched inside it.
	touch := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Players.Touch(ctx, sessionID, userID)
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()
		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()

		if err := writeSSE(w, snapshot); err != nil {
			return
		}
		for {
			select {
			case evt, ok := <-sub.C:
				if !ok {
					// Dropped as a slow subscriber; the client reconnects and gets a new snapshot.
					return
				}
				if err := writeSSE(w, evt); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(":\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					log.Printf("🔌 [STREAM] %s disconnected from %s", userID, sessionID)
					return
				}
				touch()
			}
		}
	})
	return nil
}

func writeSSE(w *bufio.Writer, evt realtime.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Type, payload); err != nil {
		return err
	}
	return w.Flush()
}
