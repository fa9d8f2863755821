package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// LineBuffer reassembles newline-terminated lines from arbitrarily split
// chunks. The trailing partial line is kept until its newline arrives.
type LineBuffer struct {
	buf []byte
}

// Feed appends chunk and returns every line it completed, without the
// terminator. A trailing "\r" is dropped so CRLF streams work too.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.buf = append(b.buf, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimSuffix(string(b.buf[:i]), "\r"))
		b.buf = b.buf[i+1:]
	}
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return lines
}

// Flush returns the unterminated remainder, if any, and empties the buffer.
func (b *LineBuffer) Flush() (string, bool) {
	if len(b.buf) == 0 {
		return "", false
	}
	line := strings.TrimSuffix(string(b.buf), "\r")
	b.buf = nil
	return line, true
}

// Pending returns the number of buffered bytes not yet forming a line.
func (b *LineBuffer) Pending() int { return len(b.buf) }

// Frame is what one decoded line contributes to the stream.
type Frame struct {
	Delta string
	Done  bool
}

// Decoder interprets a single complete line. Errors wrapping
// ErrProtocolParse are skipped; any other error fails the stream.
type Decoder func(line string) (Frame, error)

// Framing selects the wire format of a streamed body.
type Framing int

const (
	// FramingSSE is the "data: {...}" / "data: [DONE]" format of
	// OpenAI-compatible chat completions.
	FramingSSE Framing = iota
	// FramingNDJSON is one JSON object per line with a "done" flag, as
	// produced by Ollama.
	FramingNDJSON
)

// Decoder returns the line decoder for f.
func (f Framing) Decoder() Decoder {
	if f == FramingNDJSON {
		return DecodeNDJSONLine
	}
	return DecodeSSELine
}

// Sentinel terminates an SSE stream.
const Sentinel = "[DONE]"

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

// DecodeSSELine handles one line of an OpenAI-style event stream. Blank
// lines, comments and non-data fields yield an empty frame.
func DecodeSSELine(line string) (Frame, error) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return Frame{}, nil
	}
	payload = strings.TrimPrefix(payload, " ")
	if strings.TrimSpace(payload) == Sentinel {
		return Frame{Done: true}, nil
	}
	if strings.TrimSpace(payload) == "" {
		return Frame{}, nil
	}

	var chunk chatChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrProtocolParse, err)
	}
	if chunk.Error != nil {
		return Frame{}, fmt.Errorf("%w: server error in stream: %s", ErrTransport, chunk.Error.Message)
	}

	// Only the first choice is rendered.
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil {
		return Frame{}, nil
	}
	return Frame{Delta: *chunk.Choices[0].Delta.Content}, nil
}

type ndjsonChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// DecodeNDJSONLine handles one line of an Ollama chat or generate stream.
func DecodeNDJSONLine(line string) (Frame, error) {
	if strings.TrimSpace(line) == "" {
		return Frame{}, nil
	}
	var chunk ndjsonChunk
	if err := json.Unmarshal([]byte(line), &chunk); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrProtocolParse, err)
	}
	if chunk.Error != "" {
		return Frame{}, fmt.Errorf("%w: server error in stream: %s", ErrTransport, chunk.Error)
	}
	delta := chunk.Message.Content
	if delta == "" {
		delta = chunk.Response
	}
	return Frame{Delta: delta, Done: chunk.Done}, nil
}

const readChunkSize = 4096

// Pump reads r until a frame reports Done, r is exhausted, or an error
// occurs, emitting every delta into sink. Once Done is seen no further bytes
// are processed. A final line without a newline is decoded at EOF.
func Pump(ctx context.Context, r io.Reader, decode Decoder, sink *Sink) error {
	var lines LineBuffer
	buf := make([]byte, readChunkSize)

	handle := func(line string) (bool, error) {
		frame, err := decode(line)
		if err != nil {
			if errors.Is(err, ErrProtocolParse) {
				sink.ParseFailure(line, err)
				return false, nil
			}
			return false, err
		}
		if err := sink.Emit(frame.Delta); err != nil {
			return false, err
		}
		return frame.Done, nil
	}

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			sink.Streaming()
			for _, line := range lines.Feed(buf[:n]) {
				done, err := handle(line)
				if err != nil {
					return err
				}
				if done {
					return nil
				}
			}
		}
		if readErr == io.EOF {
			if line, ok := lines.Flush(); ok {
				if _, err := handle(line); err != nil {
					return err
				}
			}
			return nil
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: reading stream: %v", ErrTransport, readErr)
		}
	}
}
