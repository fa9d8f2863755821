package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/scanhelper/scanhelper/internal/models"
)

const keepAliveInterval = 15 * time.Second

// HandleEvents relays a session's events as server-sent events. The first
// event is a "snapshot" of the session; the stream ends after the run's
// terminal event, or right after the snapshot when nothing is running.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var snapshot models.SessionView
	events, unsubscribe := session.Watch(func() {
		snapshot = models.NewSessionView(session)
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeEvent(w, "snapshot", snapshot); err != nil {
		slog.Warn("Failed to write SSE snapshot", "session_id", session.ID(), "err", err)
		return
	}
	flusher.Flush()
	if !snapshot.Loading {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, string(ev.Type), ev); err != nil {
				slog.Warn("Failed to write SSE event", "session_id", session.ID(), "err", err)
				return
			}
			flusher.Flush()
			if ev.Type.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
