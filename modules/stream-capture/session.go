package streamcapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/ardrone-video/modules/eventbus"
	"github.com/e7canasta/ardrone-video/modules/frameexchange"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/warmup"
)

// ErrUnstable is returned by Warmup, together with the statistics, when
// the measured frame rate is not stable.
var ErrUnstable = warmup.ErrUnstable

// Session acquires video from one vehicle.
//
// Lifecycle:
//
//	Uninitialized --Initialize--> Running --Stop--> Stopping --> Stopped
//	                                 \--transport failure---------/
//
// Stopped is terminal. A new session must be created to reconnect.
type Session struct {
	id  string
	cfg Config
	log *slog.Logger
	bus eventbus.Bus

	// Initialize/teardown transitions
	mu         sync.Mutex
	variant    variant
	res        *resources
	width      int
	height     int
	targetW    int
	targetH    int
	started    time.Time
	reason     StopReason
	err        error
	releaseErr error

	state    atomic.Int32
	stop     atomic.Bool
	exchange atomic.Pointer[frameexchange.Exchange]

	wg           sync.WaitGroup
	done         chan struct{}
	teardownOnce sync.Once

	// Statistics (atomic for thread-safety)
	packetsRead     uint64
	bytesRead       uint64
	emptyReads      uint64
	framesDecoded   uint64
	framesPublished uint64
	decodeErrors    uint64
	lastFrameAt     atomic.Int64 // unix nanoseconds
	reconnects      uint32

	// Error telemetry (atomic for thread-safety)
	errorsNetwork  uint64
	errorsCodec    uint64
	errorsResource uint64
	errorsUnknown  uint64
}

// NewSession creates a session with fail-fast validation. Nothing is
// acquired until Initialize.
func NewSession(cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bus := cfg.Bus
	if bus == nil {
		bus = eventbus.New()
	}

	id := uuid.NewString()
	s := &Session{
		id:   id,
		cfg:  cfg,
		log:  cfg.Logger.With("session_id", id, "generation", cfg.Generation.String()),
		bus:  bus,
		done: make(chan struct{}),
	}

	s.log.Info("stream-capture: session created",
		"address", cfg.Address,
		"port", cfg.Port,
		"read_timeout", cfg.ReadTimeout,
		"replay", cfg.ReplayFile,
	)

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Generation returns the vehicle generation the session was built for.
func (s *Session) Generation() Generation {
	return s.cfg.Generation
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Initialize opens the transport and decoder, allocates the canonical
// frame and spawns the acquisition goroutine.
//
// Any failure releases whatever was acquired, spawns nothing and leaves
// the session Uninitialized. The error is a *TransportError or a
// *ResourceError.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateUninitialized {
		return fmt.Errorf("%w (state %s)", ErrAlreadyInitialized, st)
	}

	s.log.Info("stream-capture: initializing session", "decoder", s.cfg.Decoder)

	res := newResources(s.log, s.cfg.Tracker)
	v := newVariant(s.cfg, s.log)

	if err := v.open(ctx, res); err != nil {
		s.countError(err)
		if relErr := res.releaseAll(); relErr != nil {
			s.log.Warn("stream-capture: rollback incomplete", "error", relErr)
		}
		s.log.Error("stream-capture: initialize failed", "error", err)
		return err
	}

	width, height := v.resolution()
	targetW, targetH := s.cfg.Width, s.cfg.Height
	if targetW == 0 {
		targetW, targetH = width, height
	}

	ex, err := frameexchange.New(targetW, targetH)
	if err != nil {
		rerr := &ResourceError{Resource: "canonical frame", Err: err}
		s.countError(rerr)
		res.releaseAll()
		return rerr
	}
	if s.cfg.Tracker != nil {
		s.cfg.Tracker.Acquired("canonical frame")
	}

	s.variant = v
	s.res = res
	s.width, s.height = width, height
	s.targetW, s.targetH = targetW, targetH
	s.started = time.Now()
	s.exchange.Store(ex)
	s.state.Store(int32(StateRunning))

	s.wg.Add(1)
	go s.run()

	s.log.Info("stream-capture: session running",
		"resolution", fmt.Sprintf("%dx%d", width, height),
		"target_resolution", fmt.Sprintf("%dx%d", targetW, targetH),
		"decoder", v.decoderName(),
		"resources", res.len(),
	)

	s.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindStarted,
		SessionID:  s.id,
		Generation: s.cfg.Generation.String(),
		Width:      width,
		Height:     height,
		Timestamp:  time.Now(),
	})

	return nil
}

// Stop requests the acquisition goroutine to exit and returns immediately.
// The goroutine notices within one read timeout. Use Wait or Finalize to
// join it.
func (s *Session) Stop() {
	if s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		s.log.Info("stream-capture: stop requested")
	}
	s.stop.Store(true)
}

// Wait blocks until the session reached Stopped or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the session reached Stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the failure that stopped the session, nil for a requested
// stop or while running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// StopReason returns why the session stopped, StopNone while it has not.
func (s *Session) StopReason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Finalize stops the session, joins the acquisition goroutine and releases
// every resource in reverse order of acquisition, then the canonical frame.
//
// Idempotent, and safe after a failed Initialize. Returns the errors raised
// while releasing resources, if any.
func (s *Session) Finalize() error {
	s.Stop()

	joined := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
	case <-time.After(3 * time.Second):
		s.log.Warn("stream-capture: acquisition goroutine slow to exit, still waiting")
		<-joined
	}

	s.teardown(StopRequested, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseErr
}

// teardown releases everything and reports Stopped. Runs once, either from
// the acquisition goroutine or from Finalize.
func (s *Session) teardown(reason StopReason, cause error) {
	s.teardownOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))

		s.mu.Lock()
		res := s.res
		s.mu.Unlock()

		var relErr error
		if res != nil {
			relErr = res.releaseAll()
		}
		if ex := s.exchange.Load(); ex != nil {
			ex.Close()
			if s.cfg.Tracker != nil {
				s.cfg.Tracker.Released("canonical frame")
			}
		}

		s.mu.Lock()
		s.reason = reason
		s.err = cause
		s.releaseErr = relErr
		width, height := s.width, s.height
		s.mu.Unlock()

		s.state.Store(int32(StateStopped))

		stats := s.Stats()
		s.log.Info("stream-capture: session stopped",
			"reason", reason.String(),
			"error", cause,
			"packets_read", stats.PacketsRead,
			"frames_published", stats.FramesPublished,
			"decode_errors", stats.DecodeErrors,
			"uptime", stats.Uptime,
		)

		s.bus.Publish(eventbus.Event{
			Kind:       eventbus.KindStopped,
			SessionID:  s.id,
			Generation: s.cfg.Generation.String(),
			Width:      width,
			Height:     height,
			Reason:     reason.String(),
			Err:        cause,
			Timestamp:  time.Now(),
		})

		close(s.done)
	})
}

// GetFrame returns a copy of the latest decoded frame at the target
// resolution. Before the first decoded picture it is an all-black frame.
// Returns ErrNotRunning before Initialize and once the session stopped.
func (s *Session) GetFrame() (*Frame, error) {
	ex := s.exchange.Load()
	if ex == nil {
		return nil, ErrNotRunning
	}
	f, err := ex.Snapshot()
	if errors.Is(err, frameexchange.ErrClosed) {
		return nil, ErrNotRunning
	}
	return f, err
}

// GetFrameInto copies the latest frame into dst, reusing its buffer.
func (s *Session) GetFrameInto(dst *Frame) error {
	ex := s.exchange.Load()
	if ex == nil {
		return ErrNotRunning
	}
	err := ex.SnapshotInto(dst)
	if errors.Is(err, frameexchange.ErrClosed) {
		return ErrNotRunning
	}
	return err
}

// NextFrame blocks until a frame newer than after (a Frame.Seq) has been
// published, or ctx is done.
func (s *Session) NextFrame(ctx context.Context, after uint64) (*Frame, error) {
	ex := s.exchange.Load()
	if ex == nil {
		return nil, ErrNotRunning
	}
	f, err := ex.Next(ctx, after)
	if errors.Is(err, frameexchange.ErrClosed) {
		return nil, ErrNotRunning
	}
	return f, err
}

// Events returns the bus lifecycle events are published on.
func (s *Session) Events() eventbus.Bus {
	return s.bus
}

// Warmup follows published frames for duration and measures how steadily
// they arrive. On an unstable rate the statistics are returned together
// with an error wrapping ErrUnstable.
func (s *Session) Warmup(ctx context.Context, duration time.Duration) (*WarmupStats, error) {
	if s.exchange.Load() == nil {
		return nil, ErrNotRunning
	}

	next := func(ctx context.Context, after uint64) (warmup.Frame, error) {
		f, err := s.NextFrame(ctx, after)
		if err != nil {
			return warmup.Frame{}, err
		}
		return warmup.Frame{Seq: f.Seq, Timestamp: f.Timestamp}, nil
	}

	stats, err := warmup.Measure(ctx, next, duration)
	return toWarmupStats(stats), err
}

// Stats returns a snapshot of the session statistics.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	width, height := s.width, s.height
	targetW, targetH := s.targetW, s.targetH
	started := s.started
	reason := s.reason
	decoder := s.cfg.Decoder
	if s.variant != nil {
		decoder = s.variant.decoderName()
	}
	s.mu.Unlock()

	st := Stats{
		SessionID:       s.id,
		Generation:      s.cfg.Generation,
		State:           s.State(),
		StopReason:      reason,
		Decoder:         decoder,
		PacketsRead:     atomic.LoadUint64(&s.packetsRead),
		BytesRead:       atomic.LoadUint64(&s.bytesRead),
		EmptyReads:      atomic.LoadUint64(&s.emptyReads),
		FramesDecoded:   atomic.LoadUint64(&s.framesDecoded),
		FramesPublished: atomic.LoadUint64(&s.framesPublished),
		DecodeErrors:    atomic.LoadUint64(&s.decodeErrors),
		ErrorsNetwork:   atomic.LoadUint64(&s.errorsNetwork),
		ErrorsCodec:     atomic.LoadUint64(&s.errorsCodec),
		ErrorsResource:  atomic.LoadUint64(&s.errorsResource),
		ErrorsUnknown:   atomic.LoadUint64(&s.errorsUnknown),
		Reconnects:      atomic.LoadUint32(&s.reconnects),
	}
	if width > 0 {
		st.Resolution = fmt.Sprintf("%dx%d", width, height)
		st.TargetResolution = fmt.Sprintf("%dx%d", targetW, targetH)
	}

	if ex := s.exchange.Load(); ex != nil {
		exs := ex.Stats()
		st.FramesOverwritten = exs.Overwrites
		st.Snapshots = exs.Snapshots
		if w, h := ex.Resolution(); w > 0 && exs.Published > 0 {
			st.Resolution = fmt.Sprintf("%dx%d", w, h)
		}
	}

	if !started.IsZero() {
		st.Uptime = time.Since(started)
		if secs := st.Uptime.Seconds(); secs > 0 {
			st.FPSReal = float64(st.FramesPublished) / secs
		}
	}
	if last := s.lastFrameAt.Load(); last > 0 {
		st.LatencyMS = time.Since(time.Unix(0, last)).Milliseconds()
	}

	return st
}

// countError updates error telemetry.
func (s *Session) countError(err error) {
	switch ClassifyError(err) {
	case ErrCategoryNetwork:
		atomic.AddUint64(&s.errorsNetwork, 1)
	case ErrCategoryCodec:
		atomic.AddUint64(&s.errorsCodec, 1)
	case ErrCategoryResource:
		atomic.AddUint64(&s.errorsResource, 1)
	default:
		atomic.AddUint64(&s.errorsUnknown, 1)
	}
}
