package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scanhelper/scanhelper/internal/models"
	"github.com/scanhelper/scanhelper/internal/ocr"
	"github.com/scanhelper/scanhelper/internal/solution"
)

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceOrError(w, r)
	if !ok {
		return
	}
	sessions := h.sessionStore.ForDevice(deviceID)
	sessionList := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		sessionList = append(sessionList, models.NewSessionView(session))
	}
	h.writeJSON(w, sessionList)
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, models.NewSessionView(session))
}

func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	if err := session.Regenerate(h.ctx); err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, models.NewSessionView(session))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	session.Cancel()
	session.Wait()
	h.writeJSON(w, models.NewSessionView(session))
}

func (h *Handler) HandleBookmark(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var request models.BookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := session.OnBookmarkToggled(r.Context(), request.Bookmarked); err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, models.NewSessionView(session))
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.getSessionOrError(w, r); !ok {
		return
	}
	session, exists := h.sessionStore.Delete(chi.URLParam(r, "id"))
	if exists {
		session.Close()
		slog.Info("Session deleted", "session_id", session.ID())
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTranscribe returns the problem text read from the session image.
func (h *Handler) HandleTranscribe(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	img, ok := session.Image()
	if !ok {
		h.writeError(w, "Session has no image", http.StatusConflict)
		return
	}
	text, err := h.ocr.ExtractText(r.Context(), img)
	if errors.Is(err, ocr.ErrNoText) {
		h.writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		h.writeError(w, solution.UserMessage(err), http.StatusBadGateway)
		return
	}
	h.writeJSON(w, models.TranscriptionResponse{SessionID: session.ID(), Text: text})
}
