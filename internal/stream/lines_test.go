package stream

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineBuffer_KeepsPartialLine(t *testing.T) {
	var b LineBuffer
	assert.Empty(t, b.Feed([]byte("data: a")))
	assert.Equal(t, 7, b.Pending())
	assert.Equal(t, []string{"data: ab"}, b.Feed([]byte("b\r\nda")))
	assert.Equal(t, []string{"data: c", ""}, b.Feed([]byte("ta: c\n\n")))
	_, ok := b.Flush()
	assert.False(t, ok)
}

func TestLineBuffer_Flush(t *testing.T) {
	var b LineBuffer
	b.Feed([]byte("one\ntwo"))
	line, ok := b.Flush()
	require.True(t, ok)
	assert.Equal(t, "two", line)
	assert.Zero(t, b.Pending())
}

// Any split of the same bytes yields the same lines.
func TestLineBuffer_SplitInvariance(t *testing.T) {
	input := "data: {\"x\":1}\n\ndata: {\"y\":2}\r\n: comment\ndata: [DONE]\n"
	var whole LineBuffer
	want := whole.Feed([]byte(input))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		var b LineBuffer
		var got []string
		rest := []byte(input)
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			got = append(got, b.Feed(rest[:n])...)
			rest = rest[n:]
		}
		assert.Equal(t, want, got)
	}
}

func TestDecodeSSELine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Frame
		wantErr error
	}{
		{"delta", `data: {"choices":[{"delta":{"content":"Hi"}}]}`, Frame{Delta: "Hi"}, nil},
		{"no space", `data:{"choices":[{"delta":{"content":"Hi"}}]}`, Frame{Delta: "Hi"}, nil},
		{"role only", `data: {"choices":[{"delta":{"role":"assistant"}}]}`, Frame{}, nil},
		{"no choices", `data: {"choices":[]}`, Frame{}, nil},
		{"first choice only", `data: {"choices":[{"delta":{"content":"a"}},{"delta":{"content":"b"}}]}`, Frame{Delta: "a"}, nil},
		{"sentinel", "data: [DONE]", Frame{Done: true}, nil},
		{"blank", "", Frame{}, nil},
		{"comment", ": ping", Frame{}, nil},
		{"event field", "event: message", Frame{}, nil},
		{"malformed", "data: {oops", Frame{}, ErrProtocolParse},
		{"server error", `data: {"error":{"message":"rate limited"}}`, Frame{}, ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSSELine(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeNDJSONLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Frame
		wantErr error
	}{
		{"chat", `{"message":{"content":"x"},"done":false}`, Frame{Delta: "x"}, nil},
		{"generate", `{"response":"y","done":false}`, Frame{Delta: "y"}, nil},
		{"done", `{"message":{"content":""},"done":true}`, Frame{Done: true}, nil},
		{"blank", "  ", Frame{}, nil},
		{"malformed", `{"message":`, Frame{}, ErrProtocolParse},
		{"error", `{"error":"model not found"}`, Frame{}, ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeNDJSONLine(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFramingDecoder(t *testing.T) {
	f, err := FramingNDJSON.Decoder()(`{"response":"n"}`)
	require.NoError(t, err)
	assert.Equal(t, "n", f.Delta)

	f, err = FramingSSE.Decoder()("data: [DONE]")
	require.NoError(t, err)
	assert.True(t, f.Done)
}
