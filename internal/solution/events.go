package solution

import (
	"log/slog"
	"sync"
)

// EventType names what happened in a session.
type EventType string

const (
	EventStarted   EventType = "started"
	EventDelta     EventType = "delta"
	EventDone      EventType = "done"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
	EventBookmark  EventType = "bookmark"
)

// Terminal reports whether the event ends a run.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError || t == EventCancelled
}

// Event is published to subscribers as the session changes.
type Event struct {
	Type       EventType `json:"type"`
	MessageID  string    `json:"message_id,omitempty"`
	Delta      string    `json:"delta,omitempty"`
	Text       string    `json:"text,omitempty"`
	Error      string    `json:"error,omitempty"`
	Bookmarked bool      `json:"bookmarked,omitempty"`
}

const subscriberBuffer = 256

// hub fans events out to subscribers. A subscriber that falls a full buffer
// behind is dropped: its channel is closed and it should resync from a
// snapshot.
type hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("Dropping slow event subscriber", "event", ev.Type)
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
