package streamcapture

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/ardrone-video/modules/eventbus"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/transport"
)

// Config configures a capture session.
type Config struct {
	// Address is the vehicle IP or host name (e.g., "192.168.1.1")
	Address string
	// Generation selects the protocol and codec
	Generation Generation
	// Port is the vehicle video port (default: 5555)
	Port int
	// LocalPort is the local UDP port bound by legacy sessions
	// (default: 5555, 0 = ephemeral)
	LocalPort int

	// Width and Height are the resolution GetFrame returns.
	// Zero means the negotiated stream resolution.
	Width  int
	Height int

	// ReadTimeout bounds every transport read (default: 250ms)
	ReadTimeout time.Duration
	// DialTimeout bounds the TCP connection attempt (default: 2s)
	DialTimeout time.Duration
	// ProbeTimeout bounds the search for the H.264 stream (default: 2s)
	ProbeTimeout time.Duration
	// StallTimeout ends the session when no byte arrives for this long
	// (default: 5s, 0 disables)
	StallTimeout time.Duration
	// PollInterval is the yield between loop iterations (default: 1ms)
	PollInterval time.Duration

	// Decoder names the registered H.264 backend for modern sessions
	// (default: "gstreamer")
	Decoder string
	// DecodeWait bounds how long an asynchronous backend waits for output
	// (default: 50ms)
	DecodeWait time.Duration

	// ReplayFile replaces the network with a recording: a pcap/pcapng
	// capture for legacy sessions, a raw PaVE dump for modern ones.
	ReplayFile string
	// ReplayPace replays pcap packets at their capture intervals
	ReplayPace bool

	// Logger receives session logs (default: slog.Default())
	Logger *slog.Logger
	// Bus receives lifecycle events. Nil means a private bus, see Events().
	Bus eventbus.Bus
	// Tracker observes resource acquisition and release (optional)
	Tracker ResourceTracker
}

// DefaultConfig returns a config with every timing default filled in.
func DefaultConfig() Config {
	return Config{
		Port:         transport.DefaultPort,
		LocalPort:    transport.DefaultPort,
		ReadTimeout:  250 * time.Millisecond,
		DialTimeout:  2 * time.Second,
		ProbeTimeout: 2 * time.Second,
		StallTimeout: 5 * time.Second,
		PollInterval: time.Millisecond,
		Decoder:      "gstreamer",
		DecodeWait:   50 * time.Millisecond,
	}
}

// withDefaults fills zero durations and names. LocalPort and StallTimeout
// keep their zero values, which are meaningful.
func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Decoder == "" {
		cfg.Decoder = def.Decoder
	}
	if cfg.DecodeWait == 0 {
		cfg.DecodeWait = def.DecodeWait
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Validate checks the config (fail-fast).
func (cfg Config) Validate() error {
	if cfg.Address == "" && cfg.ReplayFile == "" {
		return fmt.Errorf("stream-capture: vehicle address is required")
	}
	if cfg.Generation != GenerationLegacy && cfg.Generation != GenerationModern {
		return fmt.Errorf("stream-capture: invalid generation %v", cfg.Generation)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("stream-capture: invalid port %d", cfg.Port)
	}
	if cfg.LocalPort < 0 || cfg.LocalPort > 65535 {
		return fmt.Errorf("stream-capture: invalid local port %d", cfg.LocalPort)
	}
	if cfg.Width < 0 || cfg.Height < 0 || (cfg.Width == 0) != (cfg.Height == 0) {
		return fmt.Errorf("stream-capture: invalid target resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.ReadTimeout < 0 || cfg.DialTimeout < 0 || cfg.ProbeTimeout < 0 ||
		cfg.StallTimeout < 0 || cfg.PollInterval < 0 || cfg.DecodeWait < 0 {
		return fmt.Errorf("stream-capture: durations must not be negative")
	}
	if cfg.StallTimeout > 0 && cfg.ReadTimeout > cfg.StallTimeout {
		return fmt.Errorf("stream-capture: read timeout %v exceeds stall timeout %v",
			cfg.ReadTimeout, cfg.StallTimeout)
	}
	return nil
}

func (cfg Config) remote() string {
	return fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
}
