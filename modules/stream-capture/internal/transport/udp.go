package transport

import (
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// RequestToken asks a first generation vehicle for the next picture.
var RequestToken = []byte{0x01, 0x00, 0x00, 0x00}

// MaxDatagramSize is the largest picture datagram accepted.
const MaxDatagramSize = 122880

// UDPConfig configures a datagram video channel.
type UDPConfig struct {
	// Remote is the vehicle host:port.
	Remote string
	// LocalPort is the local port to bind; 0 picks an ephemeral port.
	LocalPort int
	// ReadTimeout bounds every receive.
	ReadTimeout time.Duration
}

// UDP is a request/response datagram channel: every Read sends the
// request token and waits for one datagram.
type UDP struct {
	conn    *net.UDPConn
	remote  *net.UDPAddr
	timeout time.Duration

	requests  uint64
	datagrams uint64
	strays    uint64
}

// DialUDP binds the local socket. No packet is exchanged yet.
func DialUDP(cfg UDPConfig) (*UDP, error) {
	if cfg.ReadTimeout <= 0 {
		return nil, fmt.Errorf("transport: read timeout must be positive, got %v", cfg.ReadTimeout)
	}

	remote, err := net.ResolveUDPAddr("udp4", cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", cfg.Remote, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.LocalPort})
	if err != nil {
		return nil, fmt.Errorf("transport: bind udp port %d: %w", cfg.LocalPort, err)
	}

	slog.Debug("transport: udp socket bound",
		"local", conn.LocalAddr().String(),
		"remote", remote.String(),
	)

	return &UDP{
		conn:    conn,
		remote:  remote,
		timeout: cfg.ReadTimeout,
	}, nil
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Read sends the request token and receives one datagram into buf.
//
// Zero bytes with a nil error means nothing arrived within the read
// timeout, or the datagram came from another host.
func (u *UDP) Read(buf []byte) (int, error) {
	if _, err := u.conn.WriteToUDP(RequestToken, u.remote); err != nil {
		return 0, fmt.Errorf("transport: send request: %w", err)
	}
	atomic.AddUint64(&u.requests, 1)

	if err := u.conn.SetReadDeadline(time.Now().Add(u.timeout)); err != nil {
		return 0, fmt.Errorf("transport: set read deadline: %w", err)
	}

	n, from, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if IsTimeout(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("transport: receive: %w", err)
	}

	if !from.IP.Equal(u.remote.IP) {
		atomic.AddUint64(&u.strays, 1)
		slog.Debug("transport: ignoring datagram from unexpected host", "from", from.String())
		return 0, nil
	}

	atomic.AddUint64(&u.datagrams, 1)
	return n, nil
}

// Close closes the socket.
func (u *UDP) Close() error {
	return u.conn.Close()
}

// UDPStats holds datagram channel counters.
type UDPStats struct {
	Requests  uint64
	Datagrams uint64
	Strays    uint64
}

// Stats returns the channel counters.
func (u *UDP) Stats() UDPStats {
	return UDPStats{
		Requests:  atomic.LoadUint64(&u.requests),
		Datagrams: atomic.LoadUint64(&u.datagrams),
		Strays:    atomic.LoadUint64(&u.strays),
	}
}
