package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/scanhelper/scanhelper/internal/providers"
	"github.com/scanhelper/scanhelper/internal/stream"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini is a provider for Google Gemini
type Gemini struct {
	apiKey string
	opts   []option.ClientOption
}

// New returns a new Gemini provider. Extra client options are appended after
// the API key.
func New(apiKey string, opts ...option.ClientOption) *Gemini {
	return &Gemini{apiKey: apiKey, opts: opts}
}

func (g *Gemini) Name() string { return providers.Gemini }

// Stream runs GenerateContentStream on its own goroutine and forwards every
// text part as a delta.
func (g *Gemini) Stream(ctx context.Context, req providers.Request) (*stream.Stream, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY environment variable not set", providers.ErrMissingCredential)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	system, history, last, err := splitConversation(req.Messages)
	if err != nil {
		return nil, err
	}

	opts := append([]option.ClientOption{option.WithAPIKey(g.apiKey)}, g.opts...)
	return stream.Go(ctx, func(ctx context.Context, sink *stream.Sink) error {
		client, err := genai.NewClient(ctx, opts...)
		if err != nil {
			return fmt.Errorf("%w: failed to create new gemini client: %v", stream.ErrTransport, err)
		}
		defer client.Close()

		model := client.GenerativeModel(req.Model)
		model.SetTemperature(float32(req.Temperature))
		model.SystemInstruction = system

		cs := model.StartChat()
		cs.History = history
		iter := cs.SendMessageStream(ctx, last...)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return fmt.Errorf("%w: failed to generate content: %v", stream.ErrTransport, err)
			}
			sink.Streaming()
			for _, text := range responseText(resp) {
				if err := sink.Emit(text); err != nil {
					return err
				}
			}
		}
	}), nil
}

// splitConversation maps system messages onto the system instruction, all
// but the final turn onto chat history, and returns the final turn's parts.
func splitConversation(msgs []providers.Message) (*genai.Content, []*genai.Content, []genai.Part, error) {
	var system *genai.Content
	var turns []*genai.Content
	for _, m := range msgs {
		parts, err := toParts(m)
		if err != nil {
			return nil, nil, nil, err
		}
		if m.Role == providers.RoleSystem {
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, parts...)
			continue
		}
		role := "user"
		if m.Role == providers.RoleAssistant {
			role = "model"
		}
		turns = append(turns, &genai.Content{Role: role, Parts: parts})
	}
	if len(turns) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no user message to send", providers.ErrRequestBuild)
	}
	last := turns[len(turns)-1]
	if last.Role != "user" {
		return nil, nil, nil, fmt.Errorf("%w: conversation must end with a user message", providers.ErrRequestBuild)
	}
	return system, turns[:len(turns)-1], last.Parts, nil
}

func toParts(m providers.Message) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Image == nil {
			parts = append(parts, genai.Text(p.Text))
			continue
		}
		data, err := p.Image.JPEG()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode image: %v", providers.ErrRequestBuild, err)
		}
		parts = append(parts, genai.ImageData("jpeg", data))
	}
	return parts, nil
}

// responseText returns the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return nil
	}
	var out []string
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out = append(out, string(txt))
		}
	}
	return out
}
