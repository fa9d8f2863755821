package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one streamed POST.
type Request struct {
	URL     string
	Header  http.Header
	Body    []byte
	Framing Framing
}

// NewJSONRequest encodes body and validates endpoint. Both failures wrap
// ErrRequestBuild.
func NewJSONRequest(endpoint string, body any, framing Framing) (Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Request{}, fmt.Errorf("%w: invalid URL %q", ErrRequestBuild, endpoint)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Request{}, fmt.Errorf("%w: failed to marshal request body: %v", ErrRequestBuild, err)
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	if framing == FramingSSE {
		h.Set("Accept", "text/event-stream")
	}
	return Request{URL: u.String(), Header: h, Body: data, Framing: framing}, nil
}

// Client opens streamed HTTP responses.
type Client struct {
	HTTPClient *http.Client
}

// NewClient returns a client using httpClient, or a default client when nil.
// Timeouts are whatever httpClient carries.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{HTTPClient: httpClient}
}

// Open sends req and streams the decoded response body.
func (c *Client) Open(ctx context.Context, req Request) *Stream {
	if req.URL == "" {
		return NewFailed(fmt.Errorf("%w: request has no URL", ErrRequestBuild))
	}
	return Go(ctx, func(ctx context.Context, sink *Sink) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
		if err != nil {
			return fmt.Errorf("%w: failed to create request: %v", ErrRequestBuild, err)
		}
		for k, vs := range req.Header {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}

		resp, err := c.HTTPClient.Do(httpReq)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: failed to send request: %v", ErrTransport, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return statusError(resp)
		}

		slog.Debug("Stream connected", "url", req.URL, "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))
		sink.Streaming()
		return Pump(ctx, resp.Body, req.Framing.Decoder(), sink)
	})
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))

	var parsed struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && len(parsed.Error) > 0 {
		var detail apiError
		if json.Unmarshal(parsed.Error, &detail) == nil && detail.Message != "" {
			msg = detail.Message
		} else {
			var s string
			if json.Unmarshal(parsed.Error, &s) == nil && s != "" {
				msg = s
			}
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

// StatusError is a non-2xx response. It wraps ErrTransport.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: received status %d", ErrTransport, e.StatusCode)
	}
	return fmt.Sprintf("%s: received status %d - %s", ErrTransport, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrTransport }
