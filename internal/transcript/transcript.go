// Package transcript holds the ordered messages of one solution session.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Author says who wrote a message.
type Author string

const (
	User      Author = "user"
	Assistant Author = "assistant"
)

// Message is one entry of a transcript. At least one of Text or Image is set.
type Message struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Text      *string   `json:"text,omitempty"`
	Image     []byte    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool { return m.Author == User }

// TextOrEmpty returns the text, or "" for image-only messages.
func (m Message) TextOrEmpty() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

// NewText builds a text message.
func NewText(author Author, text string) Message {
	return Message{Author: author, Text: &text}
}

// NewImage builds an image message.
func NewImage(author Author, data []byte) Message {
	return Message{Author: author, Image: data}
}

// Transcript is an ordered, concurrency-safe list of messages. Messages are
// only appended, except that an assistant message may grow while streaming
// and regenerate may drop the trailing assistant messages.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty transcript, or one seeded with prior messages.
func New(prior ...Message) *Transcript {
	t := &Transcript{}
	for _, m := range prior {
		t.Append(m)
	}
	return t
}

// Append adds m to the end and returns its id. A missing id is assigned.
func (t *Transcript) Append(m Message) string {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, m)
	return m.ID
}

// UpdateText replaces the text of message id. Unknown ids are ignored: the
// session may have been reset while a stream was still delivering.
func (t *Transcript) UpdateText(id, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexLocked(id); i >= 0 {
		t.messages[i].Text = &text
	}
}

// AppendDelta concatenates fragment onto the text of message id.
func (t *Transcript) AppendDelta(id, fragment string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexLocked(id); i >= 0 {
		text := t.messages[i].TextOrEmpty() + fragment
		t.messages[i].Text = &text
	}
}

// RemoveAssistantMessagesSinceLastUser drops the trailing run of assistant
// messages and returns how many were removed.
func (t *Transcript) RemoveAssistantMessagesSinceLastUser() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.messages)
	for n > 0 && t.messages[n-1].Author == Assistant {
		n--
	}
	removed := len(t.messages) - n
	t.messages = t.messages[:n]
	return removed
}

// Remove deletes message id if present.
func (t *Transcript) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(id)
	if i < 0 {
		return false
	}
	t.messages = append(t.messages[:i], t.messages[i+1:]...)
	return true
}

// Get returns a copy of message id.
func (t *Transcript) Get(id string) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.indexLocked(id); i >= 0 {
		return t.messages[i], true
	}
	return Message{}, false
}

// Messages returns a snapshot in conversation order.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// LastAssistant returns the most recent assistant message.
func (t *Transcript) LastAssistant() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Author == Assistant {
			return t.messages[i], true
		}
	}
	return Message{}, false
}

// AssistantText joins the text of all assistant messages with blank lines.
// This is what gets copied, shared and saved as the solution.
func (t *Transcript) AssistantText() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var parts []string
	for _, m := range t.messages {
		if m.Author == Assistant && m.Text != nil {
			parts = append(parts, *m.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (t *Transcript) indexLocked(id string) int {
	for i := range t.messages {
		if t.messages[i].ID == id {
			return i
		}
	}
	return -1
}
