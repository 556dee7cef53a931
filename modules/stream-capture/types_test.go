package streamcapture

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGeneration(t *testing.T) {
	tests := []struct {
		in      string
		want    Generation
		wantErr bool
	}{
		{"legacy", GenerationLegacy, false},
		{"Modern", GenerationModern, false},
		{"1", GenerationLegacy, false},
		{"2", GenerationModern, false},
		{"1.11.5", GenerationLegacy, false},
		{" 2.4.8 ", GenerationModern, false},
		{"3.0.0", 0, true},
		{"", 0, true},
		{"parrot", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGeneration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "legacy", GenerationLegacy.String())
	assert.Equal(t, "modern", GenerationModern.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "requested_stop", StopRequested.String())
	assert.Equal(t, "transport_failure", StopTransportFailure.String())
	assert.Equal(t, "no video stream", NoVideoStream.String())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.Address = "192.168.1.1"
		cfg.Generation = GenerationLegacy
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"replay without address", func(c *Config) { c.Address = ""; c.ReplayFile = "x.pcap" }, false},
		{"missing address", func(c *Config) { c.Address = "" }, true},
		{"no generation", func(c *Config) { c.Generation = 0 }, true},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"half resolution", func(c *Config) { c.Width = 640 }, true},
		{"negative timeout", func(c *Config) { c.ReadTimeout = -time.Second }, true},
		{"read timeout above stall", func(c *Config) { c.StallTimeout = 100 * time.Millisecond }, true},
		{"stall disabled", func(c *Config) { c.StallTimeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Address: "10.0.0.1", Generation: GenerationModern}.withDefaults()

	want := DefaultConfig()
	want.Address = "10.0.0.1"
	want.Generation = GenerationModern
	want.LocalPort = 0
	want.StallTimeout = 0

	diff := cmp.Diff(want, cfg, cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".Logger"
	}, cmp.Ignore()))
	assert.Empty(t, diff)
	assert.NotNil(t, cfg.Logger)
}

func TestNewSession_FailFast(t *testing.T) {
	_, err := NewSession(Config{Generation: GenerationLegacy})
	assert.Error(t, err)

	_, err = NewSession(Config{Address: "192.168.1.1"})
	assert.Error(t, err)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ErrCategoryUnknown},
		{"transport", &TransportError{Kind: ReadFailed, Err: io.EOF}, ErrCategoryNetwork},
		{"wrapped transport", fmt.Errorf("outer: %w", &TransportError{Kind: ConnectFailed}), ErrCategoryNetwork},
		{"decode", &DecodeError{Packet: 3, Err: errors.New("bad start code")}, ErrCategoryCodec},
		{"resource", &ResourceError{Resource: "h264 decoder", Err: errors.New("no plugin")}, ErrCategoryResource},
		{"plain", errors.New("boom"), ErrCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestErrorTypes_Unwrap(t *testing.T) {
	err := &TransportError{Kind: ReadFailed, Err: io.EOF}
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "read failed")

	var terr *TransportError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &terr)
	assert.Equal(t, ReadFailed, terr.Kind)

	bare := &TransportError{Kind: NoVideoStream}
	assert.ErrorIs(t, bare, ErrTransport)
	assert.Equal(t, "stream-capture: no video stream", bare.Error())

	derr := &DecodeError{Packet: 7}
	assert.ErrorIs(t, derr, ErrDecode)
	assert.NotErrorIs(t, derr, ErrTransport)
}

func TestCalculateFPSStats(t *testing.T) {
	start := time.Now()
	var times []time.Time
	for i := 0; i < 20; i++ {
		times = append(times, start.Add(time.Duration(i)*66*time.Millisecond))
	}

	stats := CalculateFPSStats(times, 19*66*time.Millisecond)
	require.NotNil(t, stats)
	assert.Equal(t, 20, stats.FramesReceived)
	assert.InDelta(t, 15.95, stats.FPSMean, 0.05)
	assert.True(t, stats.IsStable)
}
