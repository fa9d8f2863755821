package handlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// HandleImage serves the session's (cropped) problem image.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	img, ok := session.Image()
	if !ok {
		h.writeError(w, "Session has no image", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("ETag", `"`+img.Hash()+`"`)
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(img.Data))
}

// HandleSolutionPage renders the current solution as a standalone HTML page.
func (h *Handler) HandleSolutionPage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	imageURI := ""
	if img, ok := session.Image(); ok {
		imageURI = img.DataURI()
	}
	page, err := h.renderer.Document("Solution", session.Transcript().AssistantText(), imageURI)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(page); err != nil {
		slog.Error("Unable to write solution page", "err", err)
	}
}
