package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scanhelper/scanhelper/internal/images"
	"github.com/scanhelper/scanhelper/internal/providers"
	"github.com/scanhelper/scanhelper/internal/stream"
)

// ErrNoText is returned when the model reports no readable text.
var ErrNoText = errors.New("no text found in image")

// Service transcribes problem images using LLM vision capabilities
type Service struct {
	provider providers.Provider
	model    string
}

// NewService creates a new OCR service
func NewService(provider providers.Provider, model string) *Service {
	return &Service{provider: provider, model: model}
}

// ExtractText returns the problem statement visible in img, exactly as
// written. It blocks until the model has finished streaming.
func (s *Service) ExtractText(ctx context.Context, img images.Image) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("%w: no provider configured", providers.ErrMissingCredential)
	}

	req := providers.Request{
		Model:       s.model,
		Temperature: 0,
		Messages: []providers.Message{{
			Role:  providers.RoleUser,
			Parts: []providers.Part{providers.ImagePart(img), providers.TextPart(buildOCRPrompt())},
		}},
	}
	st, err := s.provider.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	res := stream.Consume(st, func(fragment string) {
		sb.WriteString(fragment)
	})
	if res.Err != nil {
		return "", res.Err
	}

	text := strings.TrimSpace(sb.String())
	if text == "" || text == noTextMarker {
		return "", ErrNoText
	}
	slog.Debug("Extracted problem text", "provider", s.provider.Name(), "length", len(text))
	return text, nil
}

const noTextMarker = "[NO TEXT]"

func buildOCRPrompt() string {
	return `You are performing OCR (Optical Character Recognition) on a photo of a homework problem.

Your task is to transcribe the problem exactly as it appears, preserving:
- Line breaks and numbering
- Mathematical notation (write formulas in LaTeX, e.g. \frac{1}{2}, x^2)
- Units and symbols

INSTRUCTIONS:
1. Read the image carefully from top to bottom
2. Transcribe every piece of the problem statement, including answer choices
3. Do not solve the problem or add any commentary
4. If text is partially obscured or unclear, transcribe what you can see and use [?] for illegible portions
5. If the image contains no readable text, reply with exactly ` + noTextMarker + `

OUTPUT FORMAT:
Provide ONLY the transcribed text. Do not include phrases like "Here is the text:".`
}
