package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/scanhelper/scanhelper/internal/models"
	"github.com/scanhelper/scanhelper/internal/store"
)

// HandleHistory lists the device's saved solutions, newest first.
// Query: bookmarked=true, limit=N, images=false to omit image data.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceOrError(w, r)
	if !ok {
		return
	}
	if h.opts.Repo == nil {
		h.writeError(w, "History is not available", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	opts := store.ListOptions{BookmarkedOnly: q.Get("bookmarked") == "true"}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}

	records, err := h.opts.Repo.List(r.Context(), deviceID, opts)
	if err != nil {
		h.writeError(w, "Failed to load history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if q.Get("images") == "false" {
		for i := range records {
			records[i].ImageBase64 = ""
		}
	}
	if records == nil {
		records = []store.SolutionRecord{}
	}
	h.writeJSON(w, models.HistoryResponse{Items: records, Count: len(records)})
}

func (h *Handler) HandleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceOrError(w, r)
	if !ok {
		return
	}
	if h.opts.Repo == nil {
		h.writeError(w, "History is not available", http.StatusServiceUnavailable)
		return
	}
	err := h.opts.Repo.Delete(r.Context(), deviceID, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, "Solution not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, "Failed to delete solution: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
