package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scanhelper/scanhelper/internal/images"
	"github.com/scanhelper/scanhelper/internal/stream"
)

// Supported provider names.
const (
	OpenAI = "openai"
	Ollama = "ollama"
	Gemini = "gemini"
)

var (
	// ErrMissingCredential is returned before any I/O when the provider has
	// no API key configured.
	ErrMissingCredential = errors.New("missing credential")
	// ErrRequestBuild is shared with the stream package so callers can match
	// either origin with one errors.Is.
	ErrRequestBuild = stream.ErrRequestBuild
	// ErrUnsupportedProvider is returned for unknown provider names.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// Role is the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is one piece of multimodal content: either text or an image.
type Part struct {
	Text  string
	Image *images.Image
}

// TextPart returns a text part.
func TextPart(text string) Part { return Part{Text: text} }

// ImagePart returns an image part.
func ImagePart(img images.Image) Part { return Part{Image: &img} }

// Message is a provider-neutral chat message.
type Message struct {
	Role  Role
	Parts []Part
}

// Text joins the text parts of m with newlines.
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if p.Image == nil && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Images returns the image parts of m in order.
func (m Message) Images() []images.Image {
	var out []images.Image
	for _, p := range m.Parts {
		if p.Image != nil {
			out = append(out, *p.Image)
		}
	}
	return out
}

// Request is a streamed chat completion request.
type Request struct {
	Model       string
	Temperature float64
	Messages    []Message
}

// Validate checks the fields every provider needs.
func (r Request) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("%w: model is required", ErrRequestBuild)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrRequestBuild)
	}
	for i, m := range r.Messages {
		if len(m.Parts) == 0 {
			return fmt.Errorf("%w: message %d has no content", ErrRequestBuild, i)
		}
	}
	return nil
}

// Provider streams chat completions from an LLM backend.
//
// Stream returns an error only for failures detected before any request is
// sent (missing credential, unencodable request). Everything after that is
// reported through the returned stream's Result.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (*stream.Stream, error)
}
