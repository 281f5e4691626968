package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/archery-club/internal/live"
	"github.com/trentd187/archery-club/internal/middleware"
	"github.com/trentd187/archery-club/internal/service"
)

// keepAlive is how often an idle stream sends a comment line so proxies keep it open.
// A failed ping is also how a stream notices that its client has gone away.
const keepAlive = 20 * time.Second

// LiveSession returns a handler for GET /api/v1/sessions/:id/live, a Server-Sent Events
// stream of the session's running totals. The first event is the current state; after that
// one event arrives per saved end or finalization.
//
// The order matters:
//  1. Subscribe to the hub, so nothing published from here on is missed.
//  2. Load the scorecard. This is also the read permission check.
//  3. Stream the scorecard as the first event, then forward hub messages. Messages that
//     were published before the scorecard was loaded are already part of it and skipped.
func LiveSession(svc *service.Service, hub *live.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "session id must be a positive integer")
		}

		client := hub.Subscribe(id)
		var once sync.Once
		release := func() { once.Do(func() { hub.Unsubscribe(client) }) }

		loadedAt := time.Now().UTC()
		card, err := svc.GetScorecard(c.UserContext(), middleware.Identity(c), id)
		if err != nil {
			release()
			return fail(c, err)
		}
		initial, err := json.Marshal(service.LiveUpdate{
			SessionID: card.SessionID,
			Status:    card.Status,
			Totals:    card.Totals,
			At:        loadedAt,
		})
		if err != nil {
			release()
			return fail(c, err)
		}

		log := middleware.Logger(c).With("session_id", id)

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		// fasthttp starts the stream writer on its own goroutine as soon as it is set, and
		// closes the pipe under it when the connection goes away, so the deferred release
		// runs on every path from here on.
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer release()
			log.Debug("live stream opened")
			defer log.Debug("live stream closed")

			if writeEvent(w, initial) != nil {
				return
			}
			ticker := time.NewTicker(keepAlive)
			defer ticker.Stop()

			for {
				select {
				case data, ok := <-client.Send:
					if !ok {
						// The hub dropped us or is shutting down.
						return
					}
					if publishedBefore(data, loadedAt) {
						continue
					}
					if writeEvent(w, data) != nil {
						return
					}
				case <-ticker.C:
					if _, err := w.WriteString(": ping\n\n"); err != nil {
						return
					}
					if w.Flush() != nil {
						return
					}
				}
			}
		})
		return nil
	}
}

// publishedBefore reports whether an update was published before t. Updates are published
// after their write commits, so one published before the scorecard load is already in it.
func publishedBefore(data []byte, t time.Time) bool {
	var u struct {
		At time.Time `json:"at"`
	}
	if err := json.Unmarshal(data, &u); err != nil {
		return false
	}
	return u.At.Before(t)
}

func writeEvent(w *bufio.Writer, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: score\ndata: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
