package solution

import (
	"context"
	"errors"
	"fmt"

	"github.com/scanhelper/scanhelper/internal/providers"
	"github.com/scanhelper/scanhelper/internal/stream"
)

var (
	// ErrBusy is returned when a run is already connecting or streaming.
	ErrBusy = errors.New("a solution is already in progress")
	// ErrNoImage is returned by Regenerate before Start has been called.
	ErrNoImage = errors.New("no problem image in this session")
	// ErrEmptyResponse is a run that completed without any content.
	ErrEmptyResponse = errors.New("no reply from assistant")
	// ErrNoPersister is returned by bookmark operations when nothing stores
	// solutions.
	ErrNoPersister = errors.New("solution storage is not configured")
)

// UserMessage renders err as the text of an assistant error message.
func UserMessage(err error) string {
	var statusErr *stream.StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, providers.ErrMissingCredential):
		return "API key not found. Please check your configuration."
	case errors.Is(err, providers.ErrRequestBuild):
		return fmt.Sprintf("Error encoding request: %v", err)
	case errors.As(err, &statusErr):
		if statusErr.Message != "" {
			return fmt.Sprintf("Error: %s", statusErr.Message)
		}
		return fmt.Sprintf("Error: the server responded with status %d.", statusErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "Error: the request timed out. Please try again."
	case errors.Is(err, stream.ErrTransport):
		return fmt.Sprintf("Network error: %v", err)
	case errors.Is(err, ErrEmptyResponse):
		return "Error: No reply from assistant."
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
