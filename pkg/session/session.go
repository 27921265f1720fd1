// Package session owns the request lifecycle for the single page: it
// submits normalised images to the predictor and keeps the one current
// State.
//
// Every submission gets a sequence number. A completion is applied only
// when its number is still the latest, so a slow earlier request can
// never overwrite a newer result, and Clear discards anything in flight.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-digits/internal/log"
	"github.com/teslashibe/go-digits/pkg/predict"
	"github.com/teslashibe/go-digits/pkg/raster"
)

// Stats counts session activity since start.
type Stats struct {
	Submissions uint64 `json:"submissions"`
	Successes   uint64 `json:"successes"`
	Failures    uint64 `json:"failures"`
	Stale       uint64 `json:"stale"`
	InFlight    int    `json:"in_flight"`
}

// Session is the prediction client state machine. It is safe for
// concurrent use.
type Session struct {
	predictor predict.Predictor
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     State
	seq       uint64
	stats     Stats
	listeners map[int]func(State)
	nextID    int

	wg sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock overrides time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates an idle session backed by p.
func New(p predict.Predictor, opts ...Option) *Session {
	s := &Session{
		predictor: p,
		now:       time.Now,
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Component(s.logger, "session")
	s.state = Idle(0, s.now())
	return s
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a copy of the counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Subscribe registers fn to be called after every transition, in order.
// fn runs with the session locked: it must not block or call back into
// the session. The returned func removes the listener.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Submit moves to Loading and issues exactly one request for img in the
// background. ctx bounds the request and should outlive the caller's own
// handler. It returns the sequence number of the submission.
func (s *Session) Submit(ctx context.Context, img raster.Image) uint64 {
	id := uuid.NewString()

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.stats.Submissions++
	s.stats.InFlight++
	s.transition(Loading(seq, id, s.now()))
	s.mu.Unlock()

	req, err := predict.NewImageRequest(img)
	if err != nil {
		s.complete(seq, id, nil, err)
		return seq
	}
	req.RequestID = id

	s.logger.Debug("submitting", "seq", seq, "request_id", id)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.predictor.Predict(ctx, req)
		s.complete(seq, id, res, err)
	}()
	return seq
}

// Clear returns to Idle and discards any request in flight. Clearing an
// idle session does nothing.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status == StatusIdle {
		return
	}
	s.seq++
	s.transition(Idle(s.seq, s.now()))
}

// Wait blocks until every request started so far has completed.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) complete(seq uint64, id string, res *predict.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil && res == nil {
		err = predict.ErrMalformedResponse
	}

	s.stats.InFlight--
	if err == nil {
		s.stats.Successes++
	} else {
		s.stats.Failures++
	}

	if seq != s.seq {
		s.stats.Stale++
		s.logger.Debug("discarding stale response", "seq", seq, "latest", s.seq, "request_id", id)
		return
	}

	if err != nil {
		msg := predict.Message(err)
		s.logger.Warn("prediction failed", "seq", seq, "request_id", id, "error", err)
		s.transition(Failed(seq, id, msg, s.now()))
		return
	}
	s.logger.Info("prediction", "seq", seq, "request_id", id, "label", res.Prediction, "confidence", res.Confidence)
	s.transition(Succeeded(seq, id, res, s.now()))
}

// transition installs next and notifies listeners. Caller holds mu.
func (s *Session) transition(next State) {
	s.state = next
	for _, fn := range s.listeners {
		fn(next)
	}
}
