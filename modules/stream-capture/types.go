package streamcapture

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/e7canasta/ardrone-video/modules/eventbus"
	"github.com/e7canasta/ardrone-video/modules/frameexchange"
)

// Frame is a packed BGR24 picture with metadata.
type Frame = frameexchange.Frame

// Event is a session lifecycle signal.
type Event = eventbus.Event

// Generation selects the vehicle protocol and codec. It is fixed for the
// lifetime of a session.
type Generation int

const (
	// GenerationLegacy is the first hardware generation: UVLC pictures over
	// request/response UDP.
	GenerationLegacy Generation = iota + 1
	// GenerationModern is the second hardware generation: PaVE framed H.264
	// over TCP.
	GenerationModern
)

// String returns "legacy" or "modern".
func (g Generation) String() string {
	switch g {
	case GenerationLegacy:
		return "legacy"
	case GenerationModern:
		return "modern"
	default:
		return fmt.Sprintf("generation(%d)", int(g))
	}
}

// ParseGeneration accepts "legacy", "modern", "1", "2" or a firmware
// version string such as "1.11.5" or "2.4.8" (major version decides).
func ParseGeneration(s string) (Generation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "legacy":
		return GenerationLegacy, nil
	case "modern":
		return GenerationModern, nil
	}

	major, _, _ := strings.Cut(s, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("stream-capture: unknown generation %q", s)
	}
	switch n {
	case 1:
		return GenerationLegacy, nil
	case 2:
		return GenerationModern, nil
	default:
		return 0, fmt.Errorf("stream-capture: unsupported firmware major version %d", n)
	}
}

// State is the session lifecycle state.
type State int32

const (
	// StateUninitialized: created, nothing acquired.
	StateUninitialized State = iota
	// StateRunning: resources acquired, acquisition goroutine running.
	StateRunning
	// StateStopping: stop requested, goroutine not yet exited.
	StateStopping
	// StateStopped: terminal; every resource has been released.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StopReason tells why a session reached StateStopped.
type StopReason int

const (
	// StopNone: the session has not stopped.
	StopNone StopReason = iota
	// StopRequested: Stop or Finalize was called.
	StopRequested
	// StopTransportFailure: a transport read failed; the session must be
	// finalized and a new one initialized to recover.
	StopTransportFailure
)

// String returns "requested_stop" or "transport_failure".
func (r StopReason) String() string {
	switch r {
	case StopNone:
		return ""
	case StopRequested:
		return "requested_stop"
	case StopTransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("stop_reason(%d)", int(r))
	}
}

// Stats contains current session statistics
type Stats struct {
	// SessionID identifies the session
	SessionID string
	// Generation is the vehicle generation
	Generation Generation
	// State is the lifecycle state
	State State
	// StopReason is set once State is StateStopped
	StopReason StopReason
	// Decoder names the decode path ("uvlc" or an H.264 backend)
	Decoder string
	// Resolution is the negotiated stream resolution (e.g., "640x360")
	Resolution string
	// TargetResolution is the resolution GetFrame returns
	TargetResolution string

	// PacketsRead counts reads that returned data
	PacketsRead uint64
	// BytesRead is the total payload bytes read
	BytesRead uint64
	// EmptyReads counts reads that returned no data within the read timeout
	EmptyReads uint64
	// FramesDecoded counts packets that produced a picture
	FramesDecoded uint64
	// FramesPublished counts pictures copied into the exchange
	FramesPublished uint64
	// FramesOverwritten counts published frames no consumer read
	FramesOverwritten uint64
	// Snapshots counts GetFrame copies
	Snapshots uint64
	// DecodeErrors counts dropped packets
	DecodeErrors uint64

	// Error telemetry by category
	ErrorsNetwork  uint64
	ErrorsCodec    uint64
	ErrorsResource uint64
	ErrorsUnknown  uint64

	// FPSReal is the measured published frame rate since start
	FPSReal float64
	// LatencyMS is the time since the last published frame in milliseconds
	LatencyMS int64
	// Uptime is the time since Initialize
	Uptime time.Duration
	// Reconnects is the number of supervisor restarts (0 for a bare session)
	Reconnects uint32
}

// WarmupStats contains statistics collected during stream warm-up phase
type WarmupStats struct {
	// FramesReceived is the number of frames received during warm-up
	FramesReceived int
	// Duration is the actual warm-up duration
	Duration time.Duration
	// FPSMean is the mean FPS across all frames
	FPSMean float64
	// FPSStdDev is the standard deviation of FPS
	FPSStdDev float64
	// FPSMin is the minimum instantaneous FPS
	FPSMin float64
	// FPSMax is the maximum instantaneous FPS
	FPSMax float64
	// IsStable is true if FPS is stable (stddev < 15% of mean AND jitter < 20%)
	IsStable bool
	// JitterMean is the average deviation from the expected frame interval (seconds)
	JitterMean float64
	// JitterStdDev is the standard deviation of jitter (seconds)
	JitterStdDev float64
	// JitterMax is the maximum jitter observed (seconds)
	JitterMax float64
}
