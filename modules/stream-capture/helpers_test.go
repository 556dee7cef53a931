package streamcapture

import (
	"bytes"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/pave"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/uvlc"
)

// fakeDecoder paints every access unit solid blue; payloads containing
// "corrupt" fail.
type fakeDecoder struct {
	cfg    codec.Config
	pix    []byte
	closed atomic.Bool
}

func (d *fakeDecoder) Decode(au []byte) (*codec.Picture, error) {
	if d.closed.Load() {
		return nil, errors.New("fake: closed")
	}
	if bytes.Contains(au, []byte("corrupt")) {
		return nil, errors.New("fake: corrupt access unit")
	}
	for i := 0; i < len(d.pix); i += 3 {
		d.pix[i], d.pix[i+1], d.pix[i+2] = 255, 0, 0
	}
	return &codec.Picture{Width: d.cfg.Width, Height: d.cfg.Height, Pix: d.pix}, nil
}

func (d *fakeDecoder) Close() error {
	d.closed.Store(true)
	return nil
}

func init() {
	codec.Register("fake", func(cfg codec.Config) (codec.Decoder, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &fakeDecoder{cfg: cfg, pix: make([]byte, cfg.Width*cfg.Height*3)}, nil
	})
	codec.Register("broken", func(codec.Config) (codec.Decoder, error) {
		return nil, errors.New("broken: backend unavailable")
	})
}

// countingTracker records resource acquisition and release.
type countingTracker struct {
	mu       sync.Mutex
	acquired map[string]int
	released map[string]int
	order    []string
}

func newTracker() *countingTracker {
	return &countingTracker{acquired: map[string]int{}, released: map[string]int{}}
}

func (c *countingTracker) Acquired(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquired[name]++
}

func (c *countingTracker) Released(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released[name]++
	c.order = append(c.order, name)
}

func (c *countingTracker) balanced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.acquired) != len(c.released) {
		return false
	}
	for name, n := range c.acquired {
		if c.released[name] != n {
			return false
		}
	}
	return true
}

func (c *countingTracker) releaseOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// legacyVehicle answers request tokens over UDP. reply returns the datagram
// for the n-th request, or nil to stay silent.
func legacyVehicle(t *testing.T, reply func(n int) []byte) (host string, port int) {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 16)
		for n := 0; ; n++ {
			_, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if data := reply(n); data != nil {
				conn.WriteToUDP(data, from)
			}
		}
	}()

	addr := conn.LocalAddr().(*net.UDPAddr)
	return "127.0.0.1", addr.Port
}

func redPicture(t *testing.T, width, height int) func(int) []byte {
	t.Helper()
	data, err := uvlc.EncodeFlat(width, height, uvlc.FlatRed, 1)
	require.NoError(t, err)
	return func(int) []byte { return data }
}

func legacyConfig(host string, port int) Config {
	cfg := DefaultConfig()
	cfg.Address = host
	cfg.Port = port
	cfg.LocalPort = 0
	cfg.Generation = GenerationLegacy
	cfg.ReadTimeout = 50 * time.Millisecond
	return cfg
}

// modernVehicle serves PaVE frames over TCP. Each accepted connection is
// handed to serve, which owns and closes it.
func modernVehicle(t *testing.T, serve func(c net.Conn)) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(c)
		}
	}()

	_, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(p)
	require.NoError(t, err)
	return "127.0.0.1", port
}

func paveFrame(n uint32, codecID, frameType uint8, streamID uint16, payload []byte) []byte {
	return pave.AppendFrame(nil, pave.Header{
		Version:       2,
		Codec:         codecID,
		EncodedWidth:  64,
		EncodedHeight: 48,
		DisplayWidth:  64,
		DisplayHeight: 48,
		FrameNumber:   n,
		FrameType:     frameType,
		StreamID:      streamID,
	}, payload)
}

// streamFrames writes count H.264 frames (the first an IDR) then closes,
// or streams until the peer goes away when count is 0.
func streamFrames(count int, interval time.Duration) func(net.Conn) {
	return func(c net.Conn) {
		defer c.Close()
		au := []byte{0, 0, 0, 1, 0x41, 0x9a, 0x02}
		for n := 0; count == 0 || n < count; n++ {
			ft := uint8(pave.FrameTypeP)
			if n == 0 {
				ft = pave.FrameTypeIDR
			}
			if _, err := c.Write(paveFrame(uint32(n), pave.CodecH264, ft, 1, au)); err != nil {
				return
			}
			time.Sleep(interval)
		}
	}
}

func modernConfig(host string, port int) Config {
	cfg := DefaultConfig()
	cfg.Address = host
	cfg.Port = port
	cfg.Generation = GenerationModern
	cfg.Decoder = "fake"
	cfg.ReadTimeout = 50 * time.Millisecond
	cfg.ProbeTimeout = 500 * time.Millisecond
	return cfg
}
