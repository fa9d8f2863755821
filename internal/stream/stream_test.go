package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, c := range chunks {
			_, _ = fmt.Fprint(w, c)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openSSE(t *testing.T, url string) *Stream {
	t.Helper()
	req, err := NewJSONRequest(url, map[string]any{"stream": true}, FramingSSE)
	require.NoError(t, err)
	return NewClient(nil).Open(context.Background(), req)
}

func collect(s *Stream) ([]string, Result) {
	var got []string
	res := Consume(s, func(d string) { got = append(got, d) })
	return got, res
}

func TestOpen_SplitMidLine(t *testing.T) {
	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n\ndata: {\"choi",
		"ces\":[{\"delta\":{\"content\":\"B\"}}]}\n\n",
		"data: [DONE]\n\n",
	)

	got, res := collect(openSSE(t, srv.URL))
	assert.Equal(t, []string{"A", "B"}, got)
	assert.Equal(t, Completed, res.State)
	assert.NoError(t, res.Err)
	assert.Equal(t, 2, res.Deltas)
}

func TestOpen_MalformedLineSkipped(t *testing.T) {
	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n",
		"data: {not json}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"y\"}}]}\n",
		"data: [DONE]\n",
	)

	got, res := collect(openSSE(t, srv.URL))
	assert.Equal(t, []string{"x", "y"}, got)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, 1, res.ParseFailures)
}

func TestOpen_StopsAtSentinel(t *testing.T) {
	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n",
		"data: [DONE]\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n",
	)

	got, res := collect(openSSE(t, srv.URL))
	assert.Equal(t, []string{"one"}, got)
	assert.Equal(t, Completed, res.State)
}

func TestOpen_EmptyStreamCompletes(t *testing.T) {
	srv := sseServer(t, ": keep-alive\n\n")

	got, res := collect(openSSE(t, srv.URL))
	assert.Empty(t, got)
	assert.Equal(t, Completed, res.State)
}

func TestOpen_ServerErrorInStream(t *testing.T) {
	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"part\"}}]}\n",
		"data: {\"error\":{\"message\":\"overloaded\"}}\n",
	)

	got, res := collect(openSSE(t, srv.URL))
	assert.Equal(t, []string{"part"}, got)
	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, ErrTransport)
	assert.Contains(t, res.Err.Error(), "overloaded")
}

func TestOpen_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer srv.Close()

	got, res := collect(openSSE(t, srv.URL))
	assert.Empty(t, got)
	assert.Equal(t, Failed, res.State)
	require.ErrorIs(t, res.Err, ErrTransport)

	var statusErr *StatusError
	require.True(t, errors.As(res.Err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "Incorrect API key provided", statusErr.Message)
}

func TestOpen_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, res := collect(openSSE(t, url))
	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, ErrTransport)
}

func TestOpen_NDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hi"},"done":false}`)
		_, _ = fmt.Fprintln(w, `{"message":{"role":"assistant","content":" there"},"done":false}`)
		_, _ = fmt.Fprint(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	req, err := NewJSONRequest(srv.URL, map[string]any{}, FramingNDJSON)
	require.NoError(t, err)
	got, res := collect(NewClient(nil).Open(context.Background(), req))
	assert.Equal(t, []string{"Hi", " there"}, got)
	assert.Equal(t, Completed, res.State)
}

func TestOpen_CancelTerminatesOnce(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := openSSE(t, srv.URL)
	first := <-s.Deltas()
	assert.Equal(t, "first", first)
	assert.Equal(t, Streaming, s.State())

	s.Cancel()
	s.Cancel()

	_, res := collect(s)
	assert.Equal(t, Failed, res.State)
	assert.True(t, res.Cancelled())
	assert.Equal(t, Failed, s.State())
	assert.Equal(t, res, s.Result())
}

func TestNewJSONRequest_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "not a url", "://missing-scheme", "/relative/path"} {
		_, err := NewJSONRequest(u, map[string]any{}, FramingSSE)
		assert.ErrorIs(t, err, ErrRequestBuild, u)
	}
}

func TestNewJSONRequest_UnencodableBody(t *testing.T) {
	_, err := NewJSONRequest("http://localhost", map[string]any{"c": make(chan int)}, FramingSSE)
	assert.ErrorIs(t, err, ErrRequestBuild)
}

func TestNewJSONRequest_Headers(t *testing.T) {
	req, err := NewJSONRequest("http://localhost/v1", map[string]string{"a": "b"}, FramingSSE)
	require.NoError(t, err)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", req.Header.Get("Accept"))
	assert.JSONEq(t, `{"a":"b"}`, string(req.Body))
}

func TestGo_ProducerError(t *testing.T) {
	boom := errors.New("boom")
	s := Go(context.Background(), func(ctx context.Context, sink *Sink) error {
		assert.NoError(t, sink.Emit("a"))
		return boom
	})
	got, res := collect(s)
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 1, res.Deltas)
}

func TestGo_ProducerPanic(t *testing.T) {
	s := Go(context.Background(), func(ctx context.Context, sink *Sink) error {
		panic("unexpected")
	})
	res := s.Result()
	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, ErrTransport)
}

func TestGo_EmptyFragmentsDropped(t *testing.T) {
	s := Go(context.Background(), func(ctx context.Context, sink *Sink) error {
		for _, f := range []string{"", "a", "", "b"} {
			if err := sink.Emit(f); err != nil {
				return err
			}
		}
		return nil
	})
	got, res := collect(s)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 2, res.Deltas)
}

func TestGo_ExactlyOneTerminalUnderRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := Go(context.Background(), func(ctx context.Context, sink *Sink) error {
			for {
				if err := sink.Emit("x"); err != nil {
					return err
				}
			}
		})
		go func() {
			time.Sleep(time.Millisecond)
			s.Cancel()
		}()
		for range s.Deltas() {
		}
		<-s.Done()
		res := s.Result()
		assert.Equal(t, Failed, res.State)
		assert.True(t, res.Cancelled())
	}
}

func TestNewFailed(t *testing.T) {
	s := NewFailed(ErrRequestBuild)
	got, res := collect(s)
	assert.Empty(t, got)
	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, ErrRequestBuild)
	assert.True(t, s.State().Terminal())
	s.Cancel()
}

func TestOpen_MissingURLFailsImmediately(t *testing.T) {
	s := NewClient(nil).Open(context.Background(), Request{Framing: FramingSSE})
	got, res := collect(s)
	assert.Empty(t, got)
	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, ErrRequestBuild)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "streaming", Streaming.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.False(t, Streaming.Terminal())
	assert.True(t, Completed.Terminal())
}

func TestPump_FinalLineWithoutNewline(t *testing.T) {
	s := Go(context.Background(), func(ctx context.Context, sink *Sink) error {
		r := strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}")
		return Pump(ctx, r, DecodeSSELine, sink)
	})
	got, res := collect(s)
	assert.Equal(t, []string{"tail"}, got)
	assert.Equal(t, Completed, res.State)
}
