package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/pave"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/transport"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/uvlc"
)

func startLegacy(t *testing.T, opts *legacyOptions) string {
	t.Helper()

	sim, err := newLegacySim(opts)
	require.NoError(t, err)

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.serve(ctx, conn) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return conn.LocalAddr().String()
}

func TestLegacySim_SolidRed(t *testing.T) {
	addr := startLegacy(t, &legacyOptions{width: 320, height: 240, pattern: "solid"})

	u, err := transport.DialUDP(transport.UDPConfig{Remote: addr, ReadTimeout: time.Second})
	require.NoError(t, err)
	defer u.Close()

	dec, err := uvlc.NewDecoder(320, 240)
	require.NoError(t, err)
	defer dec.Close()

	buf := make([]byte, transport.MaxDatagramSize)
	for i := 1; i <= 3; i++ {
		n, err := u.Read(buf)
		require.NoError(t, err)
		require.Positive(t, n)

		pic, err := dec.Decode(buf[:n])
		require.NoError(t, err)
		require.NotNil(t, pic)
		assert.Equal(t, []byte{0, 0, 255}, pic.Pix[:3])
		assert.Equal(t, uint32(i), dec.Header().FrameNumber)
	}
	t.Logf("✅ Simulator served 3 solid red pictures")
}

func TestLegacySim_Bars(t *testing.T) {
	addr := startLegacy(t, &legacyOptions{width: 176, height: 144, pattern: "bars", quant: 2})

	u, err := transport.DialUDP(transport.UDPConfig{Remote: addr, ReadTimeout: time.Second})
	require.NoError(t, err)
	defer u.Close()

	dec, err := uvlc.NewDecoder(320, 240)
	require.NoError(t, err)
	defer dec.Close()

	buf := make([]byte, transport.MaxDatagramSize)
	n, err := u.Read(buf)
	require.NoError(t, err)

	pic, err := dec.Decode(buf[:n])
	require.NoError(t, err)
	require.NotNil(t, pic)
	assert.Equal(t, 176, pic.Width)
	assert.Equal(t, 144, pic.Height)

	// Picture 1 is shifted one macroblock; the middle of the first bar
	// column is still white-ish after lossy coding.
	b, g, r := pic.Pix[0], pic.Pix[1], pic.Pix[2]
	assert.Greater(t, int(b)+int(g)+int(r), 3*180, "got %d,%d,%d", b, g, r)
}

func TestLegacySim_Options(t *testing.T) {
	_, err := newLegacySim(&legacyOptions{width: 320, height: 240, pattern: "noise", quant: 6})
	assert.Error(t, err)

	_, err = newLegacySim(&legacyOptions{width: 300, height: 240, pattern: "bars", quant: 6})
	assert.Error(t, err, "unsupported size")

	_, err = newLegacySim(&legacyOptions{width: 320, height: 240, pattern: "bars", quant: 40})
	assert.Error(t, err, "quantizer out of range")
}

func writeDump(t *testing.T, count int) string {
	t.Helper()
	var data []byte
	for n := 0; n < count; n++ {
		ft := uint8(pave.FrameTypeP)
		if n == 0 {
			ft = pave.FrameTypeIDR
		}
		data = pave.AppendFrame(data, pave.Header{
			Version:       2,
			Codec:         pave.CodecH264,
			EncodedWidth:  64,
			EncodedHeight: 48,
			DisplayWidth:  64,
			DisplayHeight: 48,
			FrameNumber:   uint32(100 + n),
			FrameType:     ft,
		}, []byte{0, 0, 0, 1, 0x41, byte(n)})
	}
	path := filepath.Join(t.TempDir(), "flight.pave")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestModernSim_LoopsDump(t *testing.T) {
	frames, err := loadDump(writeDump(t, 3))
	require.NoError(t, err)
	require.Len(t, frames, 3)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	sim := &modernSim{frames: frames, loop: true}
	go func() { done <- sim.serve(ctx, ln) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))

	r := pave.NewReader(c)
	for n := 1; n <= 7; n++ {
		f, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, uint32(n), f.FrameNumber, "frame numbers keep counting across loops")
		assert.Equal(t, byte((n-1)%3), f.Payload[len(f.Payload)-1])
	}
}

func TestLoadDump_Errors(t *testing.T) {
	_, err := loadDump(filepath.Join(t.TempDir(), "missing.pave"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.pave")
	require.NoError(t, os.WriteFile(empty, []byte("no frames here"), 0o644))
	_, err = loadDump(empty)
	assert.ErrorContains(t, err, "no PaVE frames")
}
