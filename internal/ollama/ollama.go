package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/scanhelper/scanhelper/internal/providers"
	"github.com/scanhelper/scanhelper/internal/stream"
)

// DefaultURL is where a local Ollama listens.
const DefaultURL = "http://localhost:11434"

// Ollama is a provider for Ollama
type Ollama struct {
	baseURL string
	client  *stream.Client
}

// New returns a new Ollama provider. An empty baseURL means DefaultURL.
func New(baseURL string, httpClient *http.Client) *Ollama {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Ollama{
		baseURL: baseURL,
		client:  stream.NewClient(httpClient),
	}
}

func (o *Ollama) Name() string { return providers.Ollama }

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Stream starts a streamed /api/chat call. Ollama needs no credential.
func (o *Ollama) Stream(ctx context.Context, req providers.Request) (*stream.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, 0, len(req.Messages)),
		Stream:   true,
		Options: map[string]any{
			"temperature": req.Temperature,
		},
	}
	for _, m := range req.Messages {
		msg := chatMessage{Role: string(m.Role), Content: m.Text()}
		for _, img := range m.Images() {
			data, err := img.JPEG()
			if err != nil {
				return nil, fmt.Errorf("%w: failed to encode image: %v", providers.ErrRequestBuild, err)
			}
			msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(data))
		}
		body.Messages = append(body.Messages, msg)
	}

	httpReq, err := stream.NewJSONRequest(o.baseURL+"/api/chat", body, stream.FramingNDJSON)
	if err != nil {
		return nil, err
	}
	return o.client.Open(ctx, httpReq), nil
}
