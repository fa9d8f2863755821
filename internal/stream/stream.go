// Package stream turns long-lived chat-completion responses into a channel
// of content deltas followed by exactly one terminal result.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

var (
	// ErrRequestBuild covers failures before anything is sent: encoding the
	// body or forming the URL.
	ErrRequestBuild = errors.New("request build failure")
	// ErrTransport covers network errors and non-2xx responses.
	ErrTransport = errors.New("transport failure")
	// ErrProtocolParse marks one undecodable line. It is logged and skipped,
	// never fatal to the stream.
	ErrProtocolParse = errors.New("protocol parse failure")
)

// State is the lifecycle position of a Stream.
type State int32

const (
	Idle State = iota
	Connecting
	Streaming
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == Completed || s == Failed }

// Result is the terminal outcome of a stream.
type Result struct {
	State         State
	Err           error
	Deltas        int
	ParseFailures int
}

// Cancelled reports whether the stream ended because its context was
// cancelled rather than because of a server or network problem.
func (r Result) Cancelled() bool {
	return errors.Is(r.Err, context.Canceled)
}

// Stream is one in-flight streamed response.
//
// Deltas must be drained until it is closed (or the stream cancelled);
// Result blocks until the terminal transition, which happens exactly once.
type Stream struct {
	state  atomic.Int32
	deltas chan string
	done   chan struct{}
	cancel context.CancelFunc
	result Result
}

// Producer reads from some source and pushes fragments into sink. Returning
// nil completes the stream; returning an error fails it.
type Producer func(ctx context.Context, sink *Sink) error

// Go starts p on its own goroutine and returns the stream it feeds.
func Go(ctx context.Context, p Producer) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		deltas: make(chan string, 64),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	s.state.Store(int32(Connecting))
	go s.run(ctx, p)
	return s
}

// NewFailed returns a stream that is already terminal with err, for errors
// detected before any I/O.
func NewFailed(err error) *Stream {
	s := &Stream{
		deltas: make(chan string),
		done:   make(chan struct{}),
		cancel: func() {},
	}
	s.finish(Result{State: Failed, Err: err})
	return s
}

func (s *Stream) run(ctx context.Context, p Producer) {
	sink := &Sink{ctx: ctx, stream: s}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: producer panic: %v", ErrTransport, r)
			}
		}()
		err = p(ctx, sink)
	}()

	res := Result{State: Completed, Deltas: sink.deltas, ParseFailures: sink.parseFailures}
	if err != nil {
		res.State = Failed
		res.Err = err
	}
	s.finish(res)
	s.cancel()
}

func (s *Stream) finish(res Result) {
	s.result = res
	s.state.Store(int32(res.State))
	close(s.deltas)
	close(s.done)
}

// Deltas yields content fragments in arrival order and is closed at the
// terminal transition.
func (s *Stream) Deltas() <-chan string { return s.deltas }

// Done is closed once the stream is terminal.
func (s *Stream) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Stream) State() State { return State(s.state.Load()) }

// Result waits for the terminal transition.
func (s *Stream) Result() Result {
	<-s.done
	return s.result
}

// Cancel aborts the underlying request. The stream still terminates
// normally, with a Failed result whose error wraps context.Canceled.
func (s *Stream) Cancel() { s.cancel() }

// Consume drains s, calling onDelta for each fragment on the caller's
// goroutine, and returns the terminal result.
func Consume(s *Stream, onDelta func(string)) Result {
	for fragment := range s.Deltas() {
		if onDelta != nil {
			onDelta(fragment)
		}
	}
	return s.Result()
}

// Sink is the producer side of a Stream.
type Sink struct {
	ctx           context.Context
	stream        *Stream
	deltas        int
	parseFailures int
}

// Streaming records that the response has started arriving.
func (k *Sink) Streaming() {
	k.stream.state.CompareAndSwap(int32(Connecting), int32(Streaming))
}

// Emit delivers one fragment, blocking until the consumer takes it or the
// stream is cancelled.
func (k *Sink) Emit(fragment string) error {
	if fragment == "" {
		return nil
	}
	k.Streaming()
	select {
	case k.stream.deltas <- fragment:
		k.deltas++
		return nil
	case <-k.ctx.Done():
		return k.ctx.Err()
	}
}

// ParseFailure logs one undecodable line and carries on.
func (k *Sink) ParseFailure(line string, err error) {
	k.parseFailures++
	if len(line) > 200 {
		line = line[:200] + "..."
	}
	slog.Warn("Skipping undecodable stream line", "error", err, "line", line)
}
