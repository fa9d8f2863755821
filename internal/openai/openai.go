package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/scanhelper/scanhelper/internal/providers"
	"github.com/scanhelper/scanhelper/internal/stream"
)

// DefaultBaseURL is the public OpenAI API.
const DefaultBaseURL = "https://api.openai.com/v1"

// Options configures an OpenAI provider.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAI is a provider for OpenAI-compatible chat completions
type OpenAI struct {
	apiKey  string
	baseURL string
	client  *stream.Client
}

// New returns a new OpenAI provider
func New(opts Options) *OpenAI {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OpenAI{
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		client:  stream.NewClient(opts.HTTPClient),
	}
}

func (o *OpenAI) Name() string { return providers.OpenAI }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// Stream starts a streamed chat completion.
func (o *OpenAI) Stream(ctx context.Context, req providers.Request) (*stream.Stream, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", providers.ErrMissingCredential)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := stream.NewJSONRequest(o.baseURL+"/chat/completions", body, stream.FramingSSE)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	return o.client.Open(ctx, httpReq), nil
}

func buildChatRequest(req providers.Request) (chatRequest, error) {
	out := chatRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		Stream:      true,
	}
	for _, m := range req.Messages {
		msg, err := buildMessage(m)
		if err != nil {
			return chatRequest{}, err
		}
		out.Messages = append(out.Messages, msg)
	}
	return out, nil
}

// buildMessage sends plain string content unless the message carries an
// image, in which case every part is listed.
func buildMessage(m providers.Message) (chatMessage, error) {
	if len(m.Images()) == 0 {
		return chatMessage{Role: string(m.Role), Content: m.Text()}, nil
	}

	parts := make([]contentPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Image == nil {
			parts = append(parts, contentPart{Type: "text", Text: p.Text})
			continue
		}
		data, err := p.Image.JPEG()
		if err != nil {
			return chatMessage{}, fmt.Errorf("%w: failed to encode image: %v", providers.ErrRequestBuild, err)
		}
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)},
		})
	}
	return chatMessage{Role: string(m.Role), Content: parts}, nil
}
