package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/scanhelper/scanhelper/internal/geometry"
	"github.com/scanhelper/scanhelper/internal/images"
	"github.com/scanhelper/scanhelper/internal/models"
)

// HandleCreateSession accepts a problem image, crops it and starts streaming
// a solution. The image comes either as a multipart "file" (with optional
// "crop", "frame" and "subject" fields) or as JSON with an image_url.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceOrError(w, r)
	if !ok {
		return
	}

	var (
		data     []byte
		subject  string
		cropRect *geometry.Rect
		frame    *geometry.Rect
		source   string
		err      error
	)
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		data, subject, cropRect, frame, err = h.readURLRequest(r)
		source = "url"
	} else {
		data, subject, cropRect, frame, err = h.readFileRequest(w, r)
		source = "upload"
	}
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	preset, ok := h.opts.Prompts.Get(subject)
	if !ok {
		h.writeError(w, fmt.Sprintf("Unknown subject %q", subject), http.StatusBadRequest)
		return
	}

	prepared, err := h.prepareImage(data, cropRect, frame)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	session := h.newSession(deviceID, preset)
	h.sessionStore.Set(session)
	if err := session.Start(h.ctx, prepared.Image); err != nil {
		h.sessionStore.Delete(session.ID())
		h.writeSessionError(w, err)
		return
	}
	if h.opts.Repo != nil {
		if _, err := session.CheckBookmarked(r.Context()); err != nil {
			slog.Warn("Unable to check bookmark", "session_id", session.ID(), "err", err)
		}
	}
	slog.Info("Session created", "session_id", session.ID(), "device_id", deviceID, "source", source, "cropped", prepared.Cropped)

	h.writeJSON(w, models.CreateSessionResponse{
		SessionID: session.ID(),
		Message:   "Solution requested",
		Cropped:   prepared.Cropped,
		Region:    prepared.Region,
		Source:    source,
	})
}

func (h *Handler) readURLRequest(r *http.Request) ([]byte, string, *geometry.Rect, *geometry.Rect, error) {
	var request models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		return nil, "", nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if request.ImageURL == "" {
		return nil, "", nil, nil, fmt.Errorf("image_url is required")
	}

	img, err := h.fetcher.Fetch(r.Context(), request.ImageURL)
	if err != nil {
		return nil, "", nil, nil, fmt.Errorf("failed to process image URL: %w", err)
	}
	return img.Data, request.Subject, request.Crop, request.Frame, nil
}

func (h *Handler) readFileRequest(w http.ResponseWriter, r *http.Request) ([]byte, string, *geometry.Rect, *geometry.Rect, error) {
	r.Body = http.MaxBytesReader(w, r.Body, images.MaxImageBytes+1<<20)
	file, _, err := r.FormFile("file")
	if err != nil {
		file, _, err = r.FormFile("files")
		if err != nil {
			return nil, "", nil, nil, fmt.Errorf("failed to read file: %w", err)
		}
	}
	defer file.Close()

	data, err := readUpload(file)
	if err != nil {
		return nil, "", nil, nil, err
	}
	cropRect, err := parseRectField(r.FormValue("crop"), "crop")
	if err != nil {
		return nil, "", nil, nil, err
	}
	frame, err := parseRectField(r.FormValue("frame"), "frame")
	if err != nil {
		return nil, "", nil, nil, err
	}
	return data, r.FormValue("subject"), cropRect, frame, nil
}
