// Package emitter publishes capture lifecycle events and stats to MQTT.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/ardrone-video/modules/eventbus"
	streamcapture "github.com/e7canasta/ardrone-video/modules/stream-capture"
)

// ErrNotConnected is returned by publishes while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// Config configures the emitter.
type Config struct {
	Broker      string // host:port
	ClientID    string
	TopicPrefix string // default: "drone"
	Vehicle     string // vehicle name, second topic level
	QoS         byte
}

// Topics:
//
//	{prefix}/{vehicle}/status         online/offline (retained, last will)
//	{prefix}/{vehicle}/events/{kind}  lifecycle events
//	{prefix}/{vehicle}/stats          periodic session stats
func (c Config) topic(parts ...string) string {
	prefix := c.TopicPrefix
	if prefix == "" {
		prefix = "drone"
	}
	t := prefix + "/" + c.Vehicle
	for _, p := range parts {
		t += "/" + p
	}
	return t
}

// MQTTEmitter publishes capture telemetry to an MQTT broker
type MQTTEmitter struct {
	cfg       Config
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter. Nothing is dialed until Connect.
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		newClient: mqtt.NewClient,
		published: make(map[string]uint64),
	}
}

// Connect establishes connection to the MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	if e.cfg.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}

	status := e.cfg.topic("status")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(status, "offline", e.cfg.QoS, true)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
		c.Publish(status, e.cfg.QoS, true, "online")
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.client = e.newClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := e.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// PublishEvent publishes a lifecycle event to {prefix}/{vehicle}/events/{kind}.
func (e *MQTTEmitter) PublishEvent(ev eventbus.Event) error {
	payload, err := json.Marshal(newEventPayload(ev))
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return e.publish(e.cfg.topic("events", ev.Kind.String()), false, payload)
}

// PublishStats publishes a session stats snapshot to {prefix}/{vehicle}/stats.
func (e *MQTTEmitter) PublishStats(st streamcapture.Stats) error {
	payload, err := json.Marshal(newStatsPayload(st))
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return e.publish(e.cfg.topic("stats"), false, payload)
}

func (e *MQTTEmitter) publish(topic string, retained bool, payload []byte) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	token := e.client.Publish(topic, e.cfg.QoS, retained, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("emitter: published",
		"topic", topic,
		"qos", e.cfg.QoS,
		"size", len(payload),
	)
	return nil
}

// Run publishes every event received on events and, when stats is not
// nil, a stats snapshot every interval until ctx is cancelled. Events
// already queued when ctx is cancelled are still published. Publish
// failures are logged and counted; they never stop the loop.
//
// The caller subscribes events to a bus before the session starts so the
// started event is not missed.
func (e *MQTTEmitter) Run(ctx context.Context, events <-chan eventbus.Event, stats func() streamcapture.Stats, interval time.Duration) {
	var tick <-chan time.Time
	if stats != nil && interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-events:
					e.forward(ev)
				default:
					return
				}
			}
		case ev := <-events:
			e.forward(ev)
		case <-tick:
			if err := e.PublishStats(stats()); err != nil {
				slog.Debug("emitter: stats not published", "error", err)
			}
		}
	}
}

func (e *MQTTEmitter) forward(ev eventbus.Event) {
	if err := e.PublishEvent(ev); err != nil {
		slog.Warn("emitter: event not published", "kind", ev.Kind.String(), "error", err)
	}
}

// Disconnect marks the vehicle offline and closes the MQTT connection
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Publish(e.cfg.topic("status"), e.cfg.QoS, true, "offline").WaitTimeout(time.Second)
		e.client.Disconnect(250)
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected && e.client != nil
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
