package streamcapture

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/ardrone-video/modules/eventbus"
)

func fastReconnect() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    3,
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: 50 * time.Millisecond,
	}
}

func TestSupervisor_RestartsAfterTransportFailure(t *testing.T) {
	// Every connection delivers a few frames then drops.
	host, port := modernVehicle(t, streamFrames(3, 5*time.Millisecond))

	sv, err := NewSupervisor(modernConfig(host, port), fastReconnect())
	require.NoError(t, err)

	events := make(chan eventbus.Event, 64)
	require.NoError(t, sv.Events().Subscribe("test", events))

	done := make(chan error, 1)
	go func() { done <- sv.Run(context.Background()) }()

	started, restarts := 0, 0
	deadline := time.After(5 * time.Second)
	for started < 3 || restarts < 2 {
		select {
		case ev := <-events:
			switch ev.Kind {
			case eventbus.KindStarted:
				started++
			case eventbus.KindRestarting:
				restarts++
				assert.ErrorIs(t, ev.Err, ErrTransport)
				assert.Equal(t, 1, ev.Attempt, "healthy sessions reset the backoff")
			}
		case <-deadline:
			t.Fatalf("saw %d starts and %d restarts", started, restarts)
		}
	}

	sv.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	assert.GreaterOrEqual(t, sv.Stats().Reconnects, uint32(2))
	t.Logf("✅ Supervisor restarted %d times", restarts)
}

func TestSupervisor_GivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	sv, err := NewSupervisor(modernConfig("127.0.0.1", port), fastReconnect())
	require.NoError(t, err)

	err = sv.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, uint32(3), sv.Stats().Reconnects)

	_, err = sv.GetFrame()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSupervisor_ResourceFailureIsFinal(t *testing.T) {
	host, port := modernVehicle(t, streamFrames(0, 10*time.Millisecond))

	cfg := modernConfig(host, port)
	cfg.Decoder = "broken"

	sv, err := NewSupervisor(cfg, fastReconnect())
	require.NoError(t, err)

	err = sv.Run(context.Background())
	assert.ErrorIs(t, err, ErrResource)
	assert.Zero(t, sv.Stats().Reconnects)
}

func TestSupervisor_StopWhileRunning(t *testing.T) {
	host, port := legacyVehicle(t, redPicture(t, 320, 240))

	sv, err := NewSupervisor(legacyConfig(host, port), ReconnectConfig{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sv.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		f, err := sv.GetFrame()
		return err == nil && f.Seq > 0
	}, 2*time.Second, 10*time.Millisecond)

	sv.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	s := sv.Session()
	require.NotNil(t, s)
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, StopRequested, s.StopReason())
}

func TestNewSupervisor_Validation(t *testing.T) {
	_, err := NewSupervisor(Config{}, ReconnectConfig{})
	assert.Error(t, err)

	cfg := legacyConfig("127.0.0.1", 5555)
	_, err = NewSupervisor(cfg, ReconnectConfig{RetryDelay: time.Second, MaxRetryDelay: time.Millisecond})
	assert.Error(t, err)
}
