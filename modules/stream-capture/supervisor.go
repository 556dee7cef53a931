package streamcapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/ardrone-video/modules/eventbus"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/reconnect"
)

// ReconnectConfig controls the supervisor backoff.
type ReconnectConfig struct {
	MaxRetries    int           // Maximum consecutive failed attempts (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultReconnectConfig returns the default backoff: 1s, 2s, 4s, 8s, 16s
// then give up.
func DefaultReconnectConfig() ReconnectConfig {
	d := reconnect.DefaultConfig()
	return ReconnectConfig{
		MaxRetries:    d.MaxRetries,
		RetryDelay:    d.RetryDelay,
		MaxRetryDelay: d.MaxRetryDelay,
	}
}

// Supervisor keeps a vehicle stream alive: when a session stops on a
// transport failure it is finalized and a brand-new session is initialized
// after an exponential backoff.
//
// Between sessions GetFrame returns ErrNotRunning.
type Supervisor struct {
	cfg Config
	rc  reconnect.Config
	log *slog.Logger
	bus eventbus.Bus

	state    reconnect.State
	current  atomic.Pointer[Session]
	stopping atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSupervisor validates cfg and returns an idle supervisor.
func NewSupervisor(cfg Config, rc ReconnectConfig) (*Supervisor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	def := DefaultReconnectConfig()
	if rc.MaxRetries <= 0 {
		rc.MaxRetries = def.MaxRetries
	}
	if rc.RetryDelay <= 0 {
		rc.RetryDelay = def.RetryDelay
	}
	if rc.MaxRetryDelay <= 0 {
		rc.MaxRetryDelay = def.MaxRetryDelay
	}
	if rc.MaxRetryDelay < rc.RetryDelay {
		return nil, fmt.Errorf("stream-capture: max retry delay %v below retry delay %v", rc.MaxRetryDelay, rc.RetryDelay)
	}

	if cfg.Bus == nil {
		cfg.Bus = eventbus.New()
	}

	return &Supervisor{
		cfg: cfg,
		rc: reconnect.Config{
			MaxRetries:    rc.MaxRetries,
			RetryDelay:    rc.RetryDelay,
			MaxRetryDelay: rc.MaxRetryDelay,
		},
		log: cfg.Logger,
		bus: cfg.Bus,
	}, nil
}

// Run keeps sessions alive until Stop, ctx cancellation, a resource
// failure, or too many consecutive transport failures.
//
// Returns nil after Stop, ctx.Err() on cancellation, and otherwise the last
// session error (wrapping ErrTransport or ErrResource).
func (sv *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sv.mu.Lock()
	if sv.cancel != nil {
		sv.mu.Unlock()
		return errors.New("stream-capture: supervisor already started")
	}
	sv.cancel = cancel
	sv.mu.Unlock()

	var fatal error
	attempt := func(ctx context.Context) error {
		err := sv.runSession(ctx)
		if errors.Is(err, ErrResource) {
			fatal = err
			return nil
		}
		return err
	}

	err := reconnect.Run(ctx, attempt, sv.rc, &sv.state)
	switch {
	case fatal != nil:
		return fatal
	case sv.stopping.Load():
		return nil
	default:
		return err
	}
}

// runSession runs one session to its end. nil means a requested stop.
func (sv *Supervisor) runSession(ctx context.Context) error {
	if sv.stopping.Load() {
		return nil
	}

	s, err := NewSession(sv.cfg)
	if err != nil {
		return &ResourceError{Resource: "session", Err: err}
	}
	atomic.StoreUint32(&s.reconnects, sv.state.Total())

	if err := s.Initialize(ctx); err != nil {
		s.Finalize()
		sv.announceRestart(s, err)
		return err
	}
	sv.current.Store(s)

	// Stop may have raced with Initialize
	if sv.stopping.Load() {
		s.Stop()
	}

	select {
	case <-s.Done():
	case <-ctx.Done():
	}
	if err := s.Finalize(); err != nil {
		sv.log.Warn("stream-capture: session release incomplete", "session_id", s.ID(), "error", err)
	}

	if s.StopReason() == StopRequested {
		return nil
	}

	// A session that delivered video was healthy: start the backoff over.
	if s.Stats().FramesPublished > 0 {
		sv.state.Reset()
	}
	sv.announceRestart(s, s.Err())
	return s.Err()
}

func (sv *Supervisor) announceRestart(s *Session, cause error) {
	if sv.stopping.Load() || errors.Is(cause, ErrResource) {
		return
	}
	sv.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindRestarting,
		SessionID:  s.ID(),
		Generation: sv.cfg.Generation.String(),
		Reason:     StopTransportFailure.String(),
		Err:        cause,
		Attempt:    sv.state.CurrentRetries + 1,
		Timestamp:  time.Now(),
	})
}

// Stop ends Run. Safe to call from any goroutine, any number of times.
func (sv *Supervisor) Stop() {
	sv.stopping.Store(true)
	if s := sv.current.Load(); s != nil {
		s.Stop()
	}

	sv.mu.Lock()
	cancel := sv.cancel
	sv.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Session returns the current session, nil before the first one.
func (sv *Supervisor) Session() *Session {
	return sv.current.Load()
}

// GetFrame returns the latest frame of the current session.
func (sv *Supervisor) GetFrame() (*Frame, error) {
	s := sv.current.Load()
	if s == nil {
		return nil, ErrNotRunning
	}
	return s.GetFrame()
}

// Stats returns the current session statistics with the supervisor's
// reconnect count.
func (sv *Supervisor) Stats() Stats {
	s := sv.current.Load()
	if s == nil {
		return Stats{Generation: sv.cfg.Generation, Reconnects: sv.state.Total()}
	}
	st := s.Stats()
	st.Reconnects = sv.state.Total()
	return st
}

// Events returns the bus shared by every supervised session.
func (sv *Supervisor) Events() eventbus.Bus {
	return sv.bus
}
