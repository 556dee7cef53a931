package config

import (
	"fmt"
	"regexp"
)

var vehicleNamePattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills derived defaults
func Validate(cfg *Config) error {
	if cfg.Vehicle.Name == "" {
		cfg.Vehicle.Name = "ardrone"
	}
	if !vehicleNamePattern.MatchString(cfg.Vehicle.Name) {
		return fmt.Errorf("vehicle.name must match pattern [a-z0-9-]+")
	}

	if cfg.Vehicle.Address == "" && cfg.Replay.File == "" {
		return fmt.Errorf("vehicle.address is required")
	}

	if _, err := cfg.Generation(); err != nil {
		return fmt.Errorf("vehicle: %w", err)
	}

	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return err
	}

	if cfg.Reconnect.MaxRetries < 0 {
		return fmt.Errorf("reconnect.max_retries must be >= 0")
	}

	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = fmt.Sprintf("drone-video-%s", cfg.Vehicle.Name)
		}
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = "drone"
		}
	}

	switch cfg.Snapshots.Format {
	case "", "png", "jpeg", "jpg":
	default:
		return fmt.Errorf("snapshots.format must be png or jpeg, got %q", cfg.Snapshots.Format)
	}
	if cfg.Snapshots.Dir != "" && cfg.Snapshots.Interval <= 0 {
		return fmt.Errorf("snapshots.interval must be > 0")
	}

	return nil
}
