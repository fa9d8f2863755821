package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/scanhelper/scanhelper/internal/config"
	"github.com/scanhelper/scanhelper/internal/crop"
	"github.com/scanhelper/scanhelper/internal/identity"
	"github.com/scanhelper/scanhelper/internal/images"
	"github.com/scanhelper/scanhelper/internal/ocr"
	"github.com/scanhelper/scanhelper/internal/providers"
	"github.com/scanhelper/scanhelper/internal/render"
	"github.com/scanhelper/scanhelper/internal/solution"
	"github.com/scanhelper/scanhelper/internal/storage"
	"github.com/scanhelper/scanhelper/internal/store"
)

// Options wires a Handler to its collaborators.
type Options struct {
	Provider    providers.Provider
	Model       string
	Temperature float64
	Prompts     *config.Prompts
	// Repo is optional; without it history and bookmarks are unavailable.
	Repo    store.Repository
	Fetcher *images.Fetcher
	// SessionTTL drops idle sessions older than this; 0 keeps them until
	// deleted.
	SessionTTL time.Duration
}

type Handler struct {
	ctx          context.Context
	opts         Options
	sessionStore *storage.SessionStore
	cropper      *crop.Executor
	fetcher      *images.Fetcher
	ocr          *ocr.Service
	renderer     *render.Renderer
}

// New returns a handler whose sessions live until ctx is done.
func New(ctx context.Context, opts Options) *Handler {
	if opts.Prompts == nil {
		opts.Prompts = config.DefaultPrompts()
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = images.NewFetcher()
	}
	h := &Handler{
		ctx:          ctx,
		opts:         opts,
		sessionStore: storage.New(),
		cropper:      crop.NewExecutor(),
		fetcher:      fetcher,
		ocr:          ocr.NewService(opts.Provider, opts.Model),
		renderer:     render.New(),
	}
	if opts.SessionTTL > 0 {
		go h.pruneSessions(opts.SessionTTL)
	}
	return h
}

// pruneSessions closes expired sessions until the handler context is done.
func (h *Handler) pruneSessions(ttl time.Duration) {
	ticker := time.NewTicker(min(ttl, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case now := <-ticker.C:
			for _, session := range h.sessionStore.Prune(now.Add(-ttl)) {
				session.Close()
				slog.Debug("Session expired", "session_id", session.ID())
			}
		}
	}
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.HandleCreateSession)
			r.Get("/", h.HandleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.HandleGetSession)
				r.Delete("/", h.HandleDeleteSession)
				r.Get("/events", h.HandleEvents)
				r.Get("/image", h.HandleImage)
				r.Get("/solution", h.HandleSolutionPage)
				r.Post("/regenerate", h.HandleRegenerate)
				r.Post("/cancel", h.HandleCancel)
				r.Put("/bookmark", h.HandleBookmark)
				r.Post("/transcribe", h.HandleTranscribe)
			})
		})
		r.Get("/history", h.HandleHistory)
		r.Delete("/history/{id}", h.HandleDeleteHistory)
	})
}

// Close cancels every live session.
func (h *Handler) Close() {
	h.sessionStore.CloseAll()
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "status", code)
	}
	http.Error(w, message, code)
}

// writeSessionError maps controller errors onto status codes.
func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, solution.ErrBusy), errors.Is(err, solution.ErrNoImage):
		h.writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, solution.ErrNoPersister):
		h.writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// Device helpers
func (h *Handler) deviceOrError(w http.ResponseWriter, r *http.Request) (identity.DeviceID, bool) {
	deviceID, err := identity.FromRequest(r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return deviceID, true
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, r *http.Request) (*solution.Controller, bool) {
	deviceID, ok := h.deviceOrError(w, r)
	if !ok {
		return nil, false
	}
	session, exists := h.sessionStore.Get(chi.URLParam(r, "id"))
	if !exists || session.DeviceID() != deviceID {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (h *Handler) newSession(deviceID identity.DeviceID, preset config.Preset) *solution.Controller {
	var persister solution.Persister
	if h.opts.Repo != nil {
		persister = h.opts.Repo
	}
	return solution.New(solution.Options{
		Provider:    h.opts.Provider,
		Model:       h.opts.Model,
		Temperature: h.opts.Temperature,
		Prompt:      preset,
		DeviceID:    deviceID,
		Persister:   persister,
	})
}
