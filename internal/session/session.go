// Package session runs one chat exchange at a time: it submits a query,
// folds the answer stream into the transcript and exposes cancellation.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/markis/coach/internal/logger"
	"github.com/markis/coach/internal/stream"
	"github.com/markis/coach/internal/transcript"
)

// Streamer opens an answer stream for a query. The returned body is owned
// by the session and closed on every exit path.
type Streamer interface {
	Stream(ctx context.Context, query string) (io.ReadCloser, error)
}

// Session owns a transcript and at most one in-flight exchange.
//
// Every fold is tagged with the generation of the exchange that produced it.
// Cancel and Submit advance the generation under the same lock that guards
// folding, so a cancelled stream can never mutate the transcript again.
type Session struct {
	id       uuid.UUID
	streamer Streamer
	logger   *slog.Logger
	observer func(Snapshot)
	fallback string
	readSize int

	mu         sync.Mutex
	transcript *transcript.Transcript
	state      State
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	err        error

	// notifyMu guards the delivery queue. It is never held while the
	// observer runs, so the observer may call back into the session.
	notifyMu   sync.Mutex
	queue      []Snapshot
	delivering bool
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithObserver registers fn to receive a snapshot after every transcript or
// state change. Calls never overlap and arrive in the order of the changes.
// fn may call Cancel or Submit; the resulting snapshots are delivered after
// fn returns.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) {
		s.observer = fn
	}
}

// WithFallback sets the assistant text used when an exchange fails before
// any answer text arrived.
func WithFallback(message string) Option {
	return func(s *Session) {
		s.fallback = message
	}
}

// WithReadSize sets the buffer size for body reads.
func WithReadSize(size int) Option {
	return func(s *Session) {
		s.readSize = size
	}
}

func New(streamer Streamer, opts ...Option) *Session {
	done := make(chan struct{})
	close(done)

	s := &Session{
		id:       uuid.New(),
		streamer: streamer,
		logger:   logger.Nop(),
		state:    StateIdle,
		done:     done,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.transcript = transcript.New(s.fallback)
	s.logger = s.logger.With("session", s.id.String())
	return s
}

// ID identifies the session in logs and traces.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Submit appends the user turn and starts streaming the answer in the
// background. It fails without any change when query is blank or another
// exchange is in flight. Cancelling ctx has the same effect as Cancel.
func (s *Session) Submit(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}

	s.generation++
	gen := s.generation
	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.transcript.Begin(query)
	s.state = StateAwaiting
	s.cancel = cancel
	s.done = done
	s.err = nil
	s.mu.Unlock()

	s.logger.Info("submitting query", "generation", gen, "query_bytes", len(query))
	s.notify()

	go s.run(streamCtx, cancel, gen, query, done)
	return nil
}

// Cancel stops the in-flight exchange. Text already folded stays in the
// transcript as the closed final answer and the session returns to idle.
// Cancel is a no-op when the session is idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	if !s.state.Busy() {
		s.mu.Unlock()
		return
	}

	gen := s.generation
	s.generation++
	s.cancel()
	s.cancel = nil
	s.transcript.Abort()
	s.state = StateIdle
	s.err = nil
	s.mu.Unlock()

	s.logger.Info("exchange cancelled", "generation", gen)
	s.notify()
}

// Done returns a channel closed when the read loop of the latest exchange
// has exited and released its connection.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Close cancels any in-flight exchange and waits for it to release its
// resources.
func (s *Session) Close() {
	s.Cancel()
	<-s.Done()
}

// Snapshot returns the current transcript and state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Turns:      s.transcript.Turns(),
		State:      s.state,
		Generation: s.generation,
		Err:        s.err,
	}
}

// notify queues the current snapshot for the observer. The first goroutine
// to find the queue idle delivers until it is empty; any other caller,
// including the observer itself, only enqueues.
func (s *Session) notify() {
	if s.observer == nil {
		return
	}

	s.mu.Lock()
	s.notifyMu.Lock()
	s.queue = append(s.queue, s.snapshotLocked())
	if s.delivering {
		s.notifyMu.Unlock()
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.notifyMu.Unlock()
	s.mu.Unlock()

	for {
		s.notifyMu.Lock()
		if len(s.queue) == 0 {
			s.delivering = false
			s.notifyMu.Unlock()
			return
		}
		snap := s.queue[0]
		s.queue = s.queue[1:]
		s.notifyMu.Unlock()

		s.observer(snap)
	}
}

// run is the single read loop for one exchange.
func (s *Session) run(ctx context.Context, cancel context.CancelFunc, gen uint64, query string, done chan struct{}) {
	defer close(done)
	defer cancel()

	ctx, span := tracer.Start(ctx, "chat.exchange", trace.WithAttributes(
		attribute.String("session.id", s.id.String()),
		attribute.Int64("session.generation", int64(gen)),
		attribute.Int("query.bytes", len(query)),
	))
	defer span.End()

	logger := s.logger.With("generation", gen)

	body, err := s.streamer.Stream(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			s.abort(gen)
			return
		}
		s.fail(gen, &stream.TransportError{Err: err}, span, logger)
		return
	}

	if !s.transition(gen, StateStreaming) {
		if err := body.Close(); err != nil {
			logger.Debug("failed to close response body", "error", err)
		}
		return
	}
	span.AddEvent("stream opened")

	var deltas int
	parser := stream.NewParser(ctx, stream.WithLogger(logger), stream.WithReadSize(s.readSize))
	go parser.Process(body)
	// The parser closes its channel only after releasing body, so draining
	// it holds done open until the connection is gone.
	defer func() {
		cancel()
		for range parser.Chunks() {
		}
	}()

	for chunk := range parser.Chunks() {
		if chunk.Err != nil {
			s.fail(gen, chunk.Err, span, logger)
			return
		}

		switch chunk.Event.Kind {
		case stream.EventDelta:
			if deltas == 0 {
				span.AddEvent("first delta")
			}
			deltas++
			if !s.fold(gen, chunk.Event) {
				return
			}
		case stream.EventDone:
			s.complete(gen, deltas, span, logger)
			return
		case stream.EventError:
			s.fail(gen, &stream.ProtocolError{Message: chunk.Event.Text}, span, logger)
			return
		}
	}

	// The parser stops without a terminal chunk only when ctx is cancelled.
	s.abort(gen)
}

// fold applies a delta if gen is still current.
func (s *Session) fold(gen uint64, event stream.Event) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	s.transcript.Apply(event)
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Session) transition(gen uint64, state State) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Session) complete(gen uint64, deltas int, span trace.Span, logger *slog.Logger) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.transcript.Apply(stream.DoneEvent())
	s.state = StateIdle
	s.cancel = nil
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("response.deltas", deltas))
	span.SetStatus(codes.Ok, "")
	logger.Info("exchange completed", "deltas", deltas)
	s.notify()
}

// fail folds the failure turn, exposes StateErrored once, then returns the
// session to idle.
func (s *Session) fail(gen uint64, err error, span trace.Span, logger *slog.Logger) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.transcript.Apply(stream.ErrorEvent(err.Error()))
	s.state = StateErrored
	s.err = err
	s.mu.Unlock()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var protocolErr *stream.ProtocolError
	if errors.As(err, &protocolErr) {
		logger.Warn("service reported an error", "error", err)
	} else {
		logger.Warn("transport failure", "error", err)
	}
	s.notify()

	s.mu.Lock()
	if gen != s.generation || s.state != StateErrored {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.cancel = nil
	s.mu.Unlock()

	s.notify()
}

// abort settles an exchange whose context was cancelled by the caller of
// Submit rather than through Cancel.
func (s *Session) abort(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.transcript.Abort()
	s.state = StateIdle
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("exchange aborted", "generation", gen)
	s.notify()
}
