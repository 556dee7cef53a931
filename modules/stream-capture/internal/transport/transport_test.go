package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVehicle answers every request token with reply.
func fakeVehicle(t *testing.T, reply []byte) (addr string, requests <-chan []byte) {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	reqs := make(chan []byte, 16)
	go func() {
		buf := make([]byte, 64)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			select {
			case reqs <- bytes.Clone(buf[:n]):
			default:
			}
			if reply != nil {
				conn.WriteToUDP(reply, from)
			}
		}
	}()

	return conn.LocalAddr().String(), reqs
}

func TestUDP_RequestResponse(t *testing.T) {
	addr, reqs := fakeVehicle(t, []byte("picture"))

	u, err := DialUDP(UDPConfig{Remote: addr, ReadTimeout: time.Second})
	require.NoError(t, err)
	defer u.Close()

	buf := make([]byte, MaxDatagramSize)
	n, err := u.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "picture", string(buf[:n]))

	select {
	case req := <-reqs:
		assert.Equal(t, RequestToken, req)
	case <-time.After(time.Second):
		t.Fatal("vehicle never saw the request token")
	}

	stats := u.Stats()
	assert.Equal(t, uint64(1), stats.Requests)
	assert.Equal(t, uint64(1), stats.Datagrams)
}

func TestUDP_TimeoutIsNoData(t *testing.T) {
	addr, _ := fakeVehicle(t, nil)

	u, err := DialUDP(UDPConfig{Remote: addr, ReadTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer u.Close()

	start := time.Now()
	n, err := u.Read(make([]byte, 16))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUDP_ReadAfterClose(t *testing.T) {
	addr, _ := fakeVehicle(t, nil)

	u, err := DialUDP(UDPConfig{Remote: addr, ReadTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, u.Close())

	_, err = u.Read(make([]byte, 16))
	assert.Error(t, err)
}

func TestDialUDP_Errors(t *testing.T) {
	_, err := DialUDP(UDPConfig{Remote: "127.0.0.1:5555"})
	assert.Error(t, err, "zero read timeout")

	_, err = DialUDP(UDPConfig{Remote: "no-port", ReadTimeout: time.Second})
	assert.Error(t, err)

	// Binding a port already in use fails.
	taken, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	defer taken.Close()
	_, err = DialUDP(UDPConfig{
		Remote:      "127.0.0.1:5555",
		LocalPort:   taken.LocalAddr().(*net.UDPAddr).Port,
		ReadTimeout: time.Second,
	})
	assert.Error(t, err)
}

func TestTCP_ReadDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	c, err := DialTCP(context.Background(), TCPConfig{
		Address:     ln.Addr().String(),
		DialTimeout: time.Second,
		ReadTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close()

	server := <-accepted
	defer server.Close()

	_, err = c.Read(make([]byte, 8))
	assert.True(t, IsTimeout(err), "got %v", err)

	_, err = server.Write([]byte("abc"))
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))
	assert.Equal(t, uint64(3), c.BytesRead())

	server.Close()
	_, err = c.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, IsTimeout(err))
}

func TestDialTCP_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = DialTCP(context.Background(), TCPConfig{
		Address:     addr,
		DialTimeout: time.Second,
		ReadTimeout: time.Second,
	})
	assert.Error(t, err)
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, IsTimeout(nil))
	assert.False(t, IsTimeout(errors.New("boom")))
	assert.True(t, IsTimeout(os.ErrDeadlineExceeded))
}

type capturedDatagram struct {
	srcPort int
	payload []byte
	ts      time.Time
}

func writePcap(t *testing.T, datagrams []capturedDatagram) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	for _, d := range datagrams {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(192, 168, 1, 1),
			DstIP:    net.IPv4(192, 168, 1, 2),
		}
		udp := &layers.UDP{SrcPort: layers.UDPPort(d.srcPort), DstPort: 5555}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(d.payload)))

		data := buf.Bytes()
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     d.ts,
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}
	return path
}

func TestPcap_ReplaysMatchingPayloads(t *testing.T) {
	base := time.Date(2012, 6, 1, 12, 0, 0, 0, time.UTC)
	path := writePcap(t, []capturedDatagram{
		{5555, []byte("first"), base},
		{5554, []byte("navdata"), base.Add(time.Millisecond)},
		{5555, bytes.Repeat([]byte{7}, 9000), base.Add(2 * time.Millisecond)},
	})

	p, err := OpenPcap(PcapConfig{Path: path, SourcePort: 5555})
	require.NoError(t, err)
	defer p.Close()

	buf := make([]byte, MaxDatagramSize)

	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "first", string(buf[:n]))

	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 9000, n, "other ports are filtered out")

	_, err = p.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uint64(2), p.Packets())
}

func TestPcap_Paced(t *testing.T) {
	base := time.Now()
	path := writePcap(t, []capturedDatagram{
		{5555, []byte("a"), base},
		{5555, []byte("b"), base.Add(300 * time.Millisecond)},
	})

	p, err := OpenPcap(PcapConfig{Path: path, Pace: true, ReadTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer p.Close()

	buf := make([]byte, 16)
	start := time.Now()

	n, err := p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "a", string(buf[:n]))

	empty := 0
	for {
		n, err = p.Read(buf)
		require.NoError(t, err)
		if n > 0 {
			break
		}
		empty++
	}
	assert.Equal(t, "b", string(buf[:n]))
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
	assert.Positive(t, empty, "waits longer than the read timeout yield no data")
}

func TestOpenPcap_Errors(t *testing.T) {
	_, err := OpenPcap(PcapConfig{Path: filepath.Join(t.TempDir(), "missing.pcap")})
	assert.Error(t, err)

	junk := filepath.Join(t.TempDir(), "junk.pcap")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not a capture file"), 0o644))
	_, err = OpenPcap(PcapConfig{Path: junk})
	assert.Error(t, err)
}
