package models

import (
	"time"

	"github.com/scanhelper/scanhelper/internal/geometry"
	"github.com/scanhelper/scanhelper/internal/solution"
	"github.com/scanhelper/scanhelper/internal/store"
	"github.com/scanhelper/scanhelper/internal/transcript"
)

// SessionView is the API representation of a live solution session
type SessionView struct {
	ID              string        `json:"id"`
	Provider        string        `json:"provider,omitempty"`
	Model           string        `json:"model,omitempty"`
	Loading         bool          `json:"loading"`
	ActiveMessageID string        `json:"active_message_id,omitempty"`
	Bookmarked      bool          `json:"bookmarked"`
	Image           *ImageInfo    `json:"image,omitempty"`
	Messages        []MessageView `json:"messages"`
	Solution        string        `json:"solution"`
	CreatedAt       time.Time     `json:"created_at"`
}

// ImageInfo describes the (cropped) problem image
type ImageInfo struct {
	URL      string `json:"url"`
	Hash     string `json:"hash"`
	MimeType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// MessageView is one transcript entry. Image bytes are served separately.
type MessageView struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      *string   `json:"text,omitempty"`
	HasImage  bool      `json:"has_image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSessionView snapshots c.
func NewSessionView(c *solution.Controller) SessionView {
	tr := c.Transcript()
	view := SessionView{
		ID:              c.ID(),
		Provider:        c.Provider(),
		Model:           c.Model(),
		Loading:         c.Loading(),
		ActiveMessageID: c.ActiveMessageID(),
		Bookmarked:      c.Bookmarked(),
		Messages:        NewMessageViews(tr.Messages()),
		Solution:        tr.AssistantText(),
		CreatedAt:       c.CreatedAt(),
	}
	if img, ok := c.Image(); ok {
		view.Image = &ImageInfo{
			URL:      "/api/sessions/" + c.ID() + "/image",
			Hash:     img.Hash(),
			MimeType: img.MimeType,
			Width:    img.Width,
			Height:   img.Height,
		}
	}
	return view
}

func NewMessageViews(msgs []transcript.Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageView{
			ID:        m.ID,
			Author:    string(m.Author),
			Text:      m.Text,
			HasImage:  len(m.Image) > 0,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

// CreateSessionRequest is the JSON form of POST /api/sessions. Crop and
// Frame are in display coordinates; both must be set for a crop to apply.
type CreateSessionRequest struct {
	ImageURL string         `json:"image_url"`
	Subject  string         `json:"subject,omitempty"`
	Crop     *geometry.Rect `json:"crop,omitempty"`
	Frame    *geometry.Rect `json:"frame,omitempty"`
}

// CreateSessionResponse is returned once a session has started streaming
type CreateSessionResponse struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Cropped   bool           `json:"cropped"`
	Region    *geometry.Rect `json:"region,omitempty"`
	Source    string         `json:"source"`
}

// BookmarkRequest is the body of PUT /api/sessions/{id}/bookmark
type BookmarkRequest struct {
	Bookmarked bool `json:"bookmarked"`
}

// HistoryResponse lists saved solutions
type HistoryResponse struct {
	Items []store.SolutionRecord `json:"items"`
	Count int                    `json:"count"`
}

type TranscriptionResponse struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}
