// Package solution runs one image-to-solution interaction: it builds the
// request, streams the reply into a transcript and saves the result.
package solution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scanhelper/scanhelper/internal/config"
	"github.com/scanhelper/scanhelper/internal/identity"
	"github.com/scanhelper/scanhelper/internal/images"
	"github.com/scanhelper/scanhelper/internal/metrics"
	"github.com/scanhelper/scanhelper/internal/providers"
	"github.com/scanhelper/scanhelper/internal/store"
	"github.com/scanhelper/scanhelper/internal/stream"
	"github.com/scanhelper/scanhelper/internal/transcript"
)

// Persister stores solutions keyed by device and image hash.
type Persister interface {
	FindByHash(ctx context.Context, deviceID identity.DeviceID, imageHash string) (*store.SolutionRecord, error)
	Upsert(ctx context.Context, rec *store.SolutionRecord) error
}

// Options configures a Controller.
type Options struct {
	Provider    providers.Provider
	Model       string
	Temperature float64
	Prompt      config.Preset
	DeviceID    identity.DeviceID
	// Persister is optional; without it completed solutions are not saved
	// and bookmarking fails with ErrNoPersister.
	Persister Persister
	// Prior seeds the transcript, e.g. when reopening a saved session.
	Prior []transcript.Message
}

// Controller owns one session's transcript and at most one in-flight run.
type Controller struct {
	id         string
	createdAt  time.Time
	opts       Options
	transcript *transcript.Transcript
	events     *hub

	// feed pairs each transcript change with the event announcing it, so a
	// Watch snapshot never overlaps the events that follow it. It is always
	// taken before mu.
	feed sync.Mutex

	mu         sync.Mutex
	image      *images.Image
	loading    bool
	activeID   string
	cancel     context.CancelFunc
	done       chan struct{}
	bookmarked bool
}

// New returns an idle controller.
func New(opts Options) *Controller {
	return &Controller{
		id:         uuid.NewString(),
		createdAt:  time.Now(),
		opts:       opts,
		transcript: transcript.New(opts.Prior...),
		events:     newHub(),
	}
}

// ID identifies the session.
func (c *Controller) ID() string { return c.id }

// DeviceID is the install that owns the session.
func (c *Controller) DeviceID() identity.DeviceID { return c.opts.DeviceID }

// CreatedAt is when the session was created.
func (c *Controller) CreatedAt() time.Time { return c.createdAt }

// Transcript returns the live transcript. Callers should only read it.
func (c *Controller) Transcript() *transcript.Transcript { return c.transcript }

// Provider returns the name of the provider serving this session.
func (c *Controller) Provider() string {
	if c.opts.Provider == nil {
		return ""
	}
	return c.opts.Provider.Name()
}

// Model returns the model requested from the provider.
func (c *Controller) Model() string { return c.opts.Model }

// Loading reports whether a run is connecting or streaming.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// ActiveMessageID returns the id of the assistant message being streamed
// into, or "" when idle.
func (c *Controller) ActiveMessageID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Bookmarked returns the last known bookmark state.
func (c *Controller) Bookmarked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bookmarked
}

// Image returns the problem image, if Start has been called.
func (c *Controller) Image() (images.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.image == nil {
		return images.Image{}, false
	}
	return *c.image, true
}

// Subscribe returns a channel of session events and a function that ends the
// subscription.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// Watch subscribes like Subscribe and calls snapshot before any further
// delta or terminal event can be published. State read inside snapshot is
// exactly the state the returned events continue from.
func (c *Controller) Watch(snapshot func()) (<-chan Event, func()) {
	c.feed.Lock()
	defer c.feed.Unlock()
	events, unsubscribe := c.events.subscribe()
	snapshot()
	return events, unsubscribe
}

// Start adds the problem image and prompt to the transcript and streams a
// solution for it. ctx bounds the whole run; it returns as soon as the run
// has been started.
func (c *Controller) Start(ctx context.Context, img images.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return ErrBusy
	}

	c.image = &img
	c.transcript.Append(transcript.NewImage(transcript.User, img.Data))
	c.transcript.Append(transcript.NewText(transcript.User, c.opts.Prompt.User))
	c.beginLocked(ctx)
	return nil
}

// Regenerate drops the assistant messages since the last user turn and
// streams a new solution for the same image.
func (c *Controller) Regenerate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return ErrBusy
	}
	if c.image == nil {
		return ErrNoImage
	}

	removed := c.transcript.RemoveAssistantMessagesSinceLastUser()
	slog.Debug("Regenerating solution", "session_id", c.id, "removed", removed)
	c.beginLocked(ctx)
	return nil
}

// Cancel aborts the in-flight run, if any. The run still finishes normally
// and clears the loading state; no error message is added.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run, if any, has finished.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close cancels any run, waits for it and disconnects all subscribers.
func (c *Controller) Close() {
	c.Cancel()
	c.Wait()
	c.events.closeAll()
}

func (c *Controller) beginLocked(ctx context.Context) {
	placeholder := c.transcript.Append(transcript.NewText(transcript.Assistant, ""))
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.loading = true
	c.activeID = placeholder
	c.cancel = cancel
	c.done = done

	req := c.buildRequest(*c.image)
	c.events.publish(Event{Type: EventStarted, MessageID: placeholder})
	slog.Info("Solution requested", "session_id", c.id, "provider", c.Provider(), "model", c.opts.Model)

	go c.run(runCtx, cancel, req, placeholder, done)
}

func (c *Controller) buildRequest(img images.Image) providers.Request {
	var msgs []providers.Message
	if c.opts.Prompt.System != "" {
		msgs = append(msgs, providers.Message{
			Role:  providers.RoleSystem,
			Parts: []providers.Part{providers.TextPart(c.opts.Prompt.System)},
		})
	}
	msgs = append(msgs, providers.Message{
		Role: providers.RoleUser,
		Parts: []providers.Part{
			providers.TextPart(c.opts.Prompt.User),
			providers.ImagePart(img),
		},
	})
	return providers.Request{
		Model:       c.opts.Model,
		Temperature: c.opts.Temperature,
		Messages:    msgs,
	}
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, req providers.Request, placeholder string, done chan struct{}) {
	defer close(done)
	defer cancel()

	provider := c.Provider()
	if provider == "" {
		provider = "none"
	}
	started := time.Now()
	metrics.RunStarted(provider)

	var res stream.Result
	if c.opts.Provider == nil {
		res = stream.Result{State: stream.Failed, Err: fmt.Errorf("%w: no provider configured", providers.ErrMissingCredential)}
	} else if s, err := c.opts.Provider.Stream(ctx, req); err != nil {
		res = stream.Result{State: stream.Failed, Err: err}
	} else {
		res = stream.Consume(s, func(fragment string) {
			c.feed.Lock()
			defer c.feed.Unlock()
			c.transcript.AppendDelta(placeholder, fragment)
			c.events.publish(Event{Type: EventDelta, MessageID: placeholder, Delta: fragment})
		})
	}

	ev := c.settle(ctx, res, placeholder)
	metrics.RunFinished(provider, string(ev.Type), time.Since(started), res.Deltas, res.ParseFailures)

	// The terminal event goes out before the session can be restarted, so
	// subscribers never see the next run's started event ahead of it.
	c.feed.Lock()
	c.mu.Lock()
	c.loading = false
	c.activeID = ""
	c.cancel = nil
	c.events.publish(ev)
	c.mu.Unlock()
	c.feed.Unlock()
}

// settle applies the terminal result to the transcript and returns the event
// describing it.
func (c *Controller) settle(ctx context.Context, res stream.Result, placeholder string) Event {
	msg, _ := c.transcript.Get(placeholder)
	text := msg.TextOrEmpty()

	err := res.Err
	if err == nil && text == "" {
		err = ErrEmptyResponse
	}

	switch {
	case err == nil:
		slog.Info("Solution completed", "session_id", c.id, "deltas", res.Deltas, "length", len(text))
		c.autoSave(context.WithoutCancel(ctx))
		return Event{Type: EventDone, MessageID: placeholder, Text: text}

	case res.Cancelled():
		slog.Info("Solution cancelled", "session_id", c.id)
		if text == "" {
			c.transcript.Remove(placeholder)
		}
		return Event{Type: EventCancelled, MessageID: placeholder}

	default:
		slog.Error("Solution failed", "session_id", c.id, "err", err)
		if text == "" {
			c.transcript.Remove(placeholder)
		}
		userText := UserMessage(err)
		id := c.appendError(userText)
		return Event{Type: EventError, MessageID: id, Error: userText}
	}
}

// appendError adds text as an assistant message unless the transcript
// already ends with the same assistant message.
func (c *Controller) appendError(text string) string {
	msgs := c.transcript.Messages()
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		if !last.IsUser() && last.TextOrEmpty() == text {
			return last.ID
		}
	}
	return c.transcript.Append(transcript.NewText(transcript.Assistant, text))
}

func (c *Controller) autoSave(ctx context.Context) {
	if c.opts.Persister == nil {
		return
	}
	rec, err := c.record(ctx)
	if err != nil {
		slog.Warn("Failed to load saved solution", "session_id", c.id, "err", err)
		return
	}
	if err := c.opts.Persister.Upsert(ctx, rec); err != nil {
		slog.Warn("Failed to save solution", "session_id", c.id, "err", err)
		return
	}
	c.mu.Lock()
	c.bookmarked = rec.Bookmarked
	c.mu.Unlock()
	slog.Debug("Saved solution", "session_id", c.id, "record_id", rec.ID, "image_hash", rec.ImageHash)
}

// record returns the stored record for this image, or a new one, filled
// with the current solution text. The stored bookmark state is kept.
func (c *Controller) record(ctx context.Context) (*store.SolutionRecord, error) {
	img, ok := c.Image()
	if !ok {
		return nil, ErrNoImage
	}
	hash := img.Hash()
	rec, err := c.opts.Persister.FindByHash(ctx, c.opts.DeviceID, hash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &store.SolutionRecord{
			DeviceID:  c.opts.DeviceID,
			ImageHash: hash,
		}
	}
	rec.ImageBase64 = img.Base64()
	rec.Solution = c.transcript.AssistantText()
	rec.CreatedAt = time.Now()
	return rec, nil
}

// OnBookmarkToggled saves the current image and solution text with the new
// bookmark state.
func (c *Controller) OnBookmarkToggled(ctx context.Context, bookmarked bool) error {
	if c.opts.Persister == nil {
		return ErrNoPersister
	}
	rec, err := c.record(ctx)
	if err != nil {
		return fmt.Errorf("failed to load solution: %w", err)
	}
	rec.Bookmarked = bookmarked
	if err := c.opts.Persister.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("failed to save bookmark: %w", err)
	}

	c.mu.Lock()
	c.bookmarked = bookmarked
	c.mu.Unlock()
	c.events.publish(Event{Type: EventBookmark, Bookmarked: bookmarked})
	slog.Info("Bookmark updated", "session_id", c.id, "bookmarked", bookmarked, "image_hash", rec.ImageHash)
	return nil
}

// CheckBookmarked refreshes the bookmark state from storage.
func (c *Controller) CheckBookmarked(ctx context.Context) (bool, error) {
	if c.opts.Persister == nil {
		return false, ErrNoPersister
	}
	img, ok := c.Image()
	if !ok {
		return false, ErrNoImage
	}
	rec, err := c.opts.Persister.FindByHash(ctx, c.opts.DeviceID, img.Hash())
	if err != nil {
		return false, fmt.Errorf("failed to load solution: %w", err)
	}
	bookmarked := rec != nil && rec.Bookmarked

	c.mu.Lock()
	c.bookmarked = bookmarked
	c.mu.Unlock()
	return bookmarked, nil
}
