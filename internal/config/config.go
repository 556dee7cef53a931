// Package config loads the drone-video YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	streamcapture "github.com/e7canasta/ardrone-video/modules/stream-capture"
)

// Config represents the complete drone-video configuration
type Config struct {
	Vehicle   VehicleConfig   `yaml:"vehicle"`
	Stream    StreamConfig    `yaml:"stream"`
	Replay    ReplayConfig    `yaml:"replay"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Snapshots SnapshotConfig  `yaml:"snapshots"`
}

// VehicleConfig identifies the vehicle
type VehicleConfig struct {
	Name       string `yaml:"name"`       // used in MQTT topics (default: "ardrone")
	Address    string `yaml:"address"`    // IP or host name
	Generation string `yaml:"generation"` // legacy, modern, auto
	Firmware   string `yaml:"firmware"`   // reported firmware version, used when generation is auto
	Port       int    `yaml:"port"`       // video port (default: 5555)
	LocalPort  *int   `yaml:"local_port"` // local UDP port for legacy vehicles (default: 5555, 0 = ephemeral)
}

// StreamConfig contains acquisition settings
type StreamConfig struct {
	Width          int            `yaml:"width"`  // 0 = negotiated resolution
	Height         int            `yaml:"height"` // 0 = negotiated resolution
	Decoder        string         `yaml:"decoder"`
	ReadTimeout    time.Duration  `yaml:"read_timeout"`
	DialTimeout    time.Duration  `yaml:"dial_timeout"`
	ProbeTimeout   time.Duration  `yaml:"probe_timeout"`
	StallTimeout   *time.Duration `yaml:"stall_timeout"` // 0 disables
	PollInterval   time.Duration  `yaml:"poll_interval"`
	DecodeWait     time.Duration  `yaml:"decode_wait"`
	WarmupDuration time.Duration  `yaml:"warmup_duration"` // 0 skips warm-up
}

// ReplayConfig replaces the network with a recording
type ReplayConfig struct {
	File string `yaml:"file"`
	Pace bool   `yaml:"pace"`
}

// ReconnectConfig contains supervisor settings
type ReconnectConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// SnapshotConfig controls periodic frame dumps
type SnapshotConfig struct {
	Dir      string        `yaml:"dir"`
	Format   string        `yaml:"format"` // png, jpeg
	Interval time.Duration `yaml:"interval"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	def := streamcapture.DefaultConfig()
	rc := streamcapture.DefaultReconnectConfig()
	localPort := def.LocalPort
	stall := def.StallTimeout

	return &Config{
		Vehicle: VehicleConfig{
			Name:       "ardrone",
			Address:    "192.168.1.1",
			Generation: "auto",
			Port:       def.Port,
			LocalPort:  &localPort,
		},
		Stream: StreamConfig{
			Decoder:      def.Decoder,
			ReadTimeout:  def.ReadTimeout,
			DialTimeout:  def.DialTimeout,
			ProbeTimeout: def.ProbeTimeout,
			StallTimeout: &stall,
			PollInterval: def.PollInterval,
			DecodeWait:   def.DecodeWait,
		},
		Reconnect: ReconnectConfig{
			MaxRetries:    rc.MaxRetries,
			RetryDelay:    rc.RetryDelay,
			MaxRetryDelay: rc.MaxRetryDelay,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "drone",
		},
		Snapshots: SnapshotConfig{
			Format:   "png",
			Interval: time.Second,
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Generation resolves the configured generation, deriving it from the
// firmware version when set to auto.
func (c *Config) Generation() (streamcapture.Generation, error) {
	switch c.Vehicle.Generation {
	case "", "auto":
		if c.Vehicle.Firmware == "" {
			return 0, fmt.Errorf("vehicle.generation is auto but vehicle.firmware is empty")
		}
		return streamcapture.ParseGeneration(c.Vehicle.Firmware)
	default:
		return streamcapture.ParseGeneration(c.Vehicle.Generation)
	}
}

// SessionConfig maps the file onto a capture session config.
func (c *Config) SessionConfig() (streamcapture.Config, error) {
	gen, err := c.Generation()
	if err != nil {
		return streamcapture.Config{}, err
	}

	sc := streamcapture.DefaultConfig()
	sc.Address = c.Vehicle.Address
	sc.Generation = gen
	sc.Port = c.Vehicle.Port
	if c.Vehicle.LocalPort != nil {
		sc.LocalPort = *c.Vehicle.LocalPort
	}
	sc.Width = c.Stream.Width
	sc.Height = c.Stream.Height
	sc.Decoder = c.Stream.Decoder
	sc.ReadTimeout = c.Stream.ReadTimeout
	sc.DialTimeout = c.Stream.DialTimeout
	sc.ProbeTimeout = c.Stream.ProbeTimeout
	if c.Stream.StallTimeout != nil {
		sc.StallTimeout = *c.Stream.StallTimeout
	}
	sc.PollInterval = c.Stream.PollInterval
	sc.DecodeWait = c.Stream.DecodeWait
	sc.ReplayFile = c.Replay.File
	sc.ReplayPace = c.Replay.Pace

	return sc, nil
}

// SupervisorConfig maps the reconnect section.
func (c *Config) SupervisorConfig() streamcapture.ReconnectConfig {
	return streamcapture.ReconnectConfig{
		MaxRetries:    c.Reconnect.MaxRetries,
		RetryDelay:    c.Reconnect.RetryDelay,
		MaxRetryDelay: c.Reconnect.MaxRetryDelay,
	}
}
