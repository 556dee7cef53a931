package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/ardrone-video/modules/eventbus"
	streamcapture "github.com/e7canasta/ardrone-video/modules/stream-capture"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient records publishes. Methods the emitter never calls are left
// to the embedded nil interface.
type fakeClient struct {
	mqtt.Client

	opts       *mqtt.ClientOptions
	connectErr error
	publishErr error

	mu       sync.Mutex
	messages []message
	closed   bool
}

func (c *fakeClient) Connect() mqtt.Token {
	if c.connectErr == nil && c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	c.mu.Lock()
	c.messages = append(c.messages, message{topic, retained, data})
	c.mu.Unlock()
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) sent() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...)
}

func newTestEmitter(t *testing.T, client *fakeClient) *MQTTEmitter {
	t.Helper()
	e := NewMQTTEmitter(Config{
		Broker:      "localhost:1883",
		ClientID:    "drone-video-test",
		TopicPrefix: "drone",
		Vehicle:     "hangar-2",
		QoS:         1,
	})
	e.newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
		client.opts = opts
		return client
	}
	return e
}

func TestConnect_AnnouncesOnline(t *testing.T) {
	client := &fakeClient{}
	e := newTestEmitter(t, client)

	require.NoError(t, e.Connect(context.Background()))
	assert.True(t, e.Stats().Connected)

	sent := client.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "drone/hangar-2/status", sent[0].topic)
	assert.Equal(t, "online", string(sent[0].payload))
	assert.True(t, sent[0].retained)

	assert.True(t, client.opts.WillEnabled)
	assert.Equal(t, "drone/hangar-2/status", client.opts.WillTopic)
	assert.Equal(t, []byte("offline"), client.opts.WillPayload)

	e.Disconnect()
	assert.False(t, e.Stats().Connected)
	last := client.sent()[len(client.sent())-1]
	assert.Equal(t, "offline", string(last.payload))
}

func TestConnect_Errors(t *testing.T) {
	e := NewMQTTEmitter(Config{})
	assert.Error(t, e.Connect(context.Background()), "broker is required")

	client := &fakeClient{connectErr: errors.New("connection refused")}
	e = newTestEmitter(t, client)
	err := e.Connect(context.Background())
	assert.ErrorContains(t, err, "mqtt connection failed")
	assert.False(t, e.Stats().Connected)
}

func TestPublish_NotConnected(t *testing.T) {
	e := NewMQTTEmitter(Config{Broker: "localhost:1883", Vehicle: "x"})

	err := e.PublishEvent(eventbus.Event{Kind: eventbus.KindStarted})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, uint64(1), e.Stats().Errors)
}

func TestPublishEvent_Payload(t *testing.T) {
	client := &fakeClient{}
	e := newTestEmitter(t, client)
	require.NoError(t, e.Connect(context.Background()))

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, e.PublishEvent(eventbus.Event{
		Kind:       eventbus.KindStopped,
		SessionID:  "abc",
		Generation: "modern",
		Width:      640,
		Height:     360,
		Reason:     "transport_failure",
		Err:        errors.New("read failed: EOF"),
		Timestamp:  ts,
	}))

	sent := client.sent()
	msg := sent[len(sent)-1]
	assert.Equal(t, "drone/hangar-2/events/stopped", msg.topic)
	assert.False(t, msg.retained)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "stopped", got["kind"])
	assert.Equal(t, "abc", got["session_id"])
	assert.Equal(t, "transport_failure", got["reason"])
	assert.Equal(t, "read failed: EOF", got["error"])
	assert.Equal(t, float64(640), got["width"])
	assert.NotContains(t, got, "attempt")

	assert.Equal(t, uint64(1), e.Stats().Published["drone/hangar-2/events/stopped"])
	t.Logf("✅ Event payload: %s", msg.payload)
}

func TestPublishStats_Payload(t *testing.T) {
	client := &fakeClient{}
	e := newTestEmitter(t, client)
	require.NoError(t, e.Connect(context.Background()))

	require.NoError(t, e.PublishStats(streamcapture.Stats{
		SessionID:       "abc",
		Generation:      streamcapture.GenerationLegacy,
		State:           streamcapture.StateRunning,
		Decoder:         "uvlc",
		Resolution:      "320x240",
		FramesPublished: 42,
		FPSReal:         15,
		Uptime:          3 * time.Second,
	}))

	sent := client.sent()
	msg := sent[len(sent)-1]
	assert.Equal(t, "drone/hangar-2/stats", msg.topic)

	var got statsPayload
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "legacy", got.Generation)
	assert.Equal(t, "uvlc", got.Decoder)
	assert.Equal(t, uint64(42), got.FramesPublished)
	assert.Equal(t, 3.0, got.UptimeSeconds)
	assert.Empty(t, got.StopReason)
}

func TestPublish_FailureCounted(t *testing.T) {
	client := &fakeClient{}
	e := newTestEmitter(t, client)
	require.NoError(t, e.Connect(context.Background()))
	client.publishErr = errors.New("broker gone")

	err := e.PublishStats(streamcapture.Stats{})
	assert.ErrorContains(t, err, "publish failed")
	assert.Equal(t, uint64(1), e.Stats().Errors)
}

func TestRun_ForwardsEventsAndStats(t *testing.T) {
	client := &fakeClient{}
	e := newTestEmitter(t, client)
	require.NoError(t, e.Connect(context.Background()))

	events := make(chan eventbus.Event, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx, events, func() streamcapture.Stats {
			return streamcapture.Stats{SessionID: "abc"}
		}, 20*time.Millisecond)
	}()

	events <- eventbus.Event{Kind: eventbus.KindRestarting, Attempt: 2}

	require.Eventually(t, func() bool {
		st := e.Stats()
		return st.Published["drone/hangar-2/events/restarting"] == 1 &&
			st.Published["drone/hangar-2/stats"] >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// Queued events are flushed after cancellation.
	events <- eventbus.Event{Kind: eventbus.KindStopped}
	cancel()
	<-done
	require.Eventually(t, func() bool {
		return e.Stats().Published["drone/hangar-2/events/stopped"] == 1
	}, time.Second, 10*time.Millisecond)
}
