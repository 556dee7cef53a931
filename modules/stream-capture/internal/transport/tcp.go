package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// TCPConfig configures a stream video channel.
type TCPConfig struct {
	// Address is the vehicle host:port.
	Address string
	// DialTimeout bounds the connection attempt.
	DialTimeout time.Duration
	// ReadTimeout bounds every Read.
	ReadTimeout time.Duration
}

// TCP is a stream channel whose reads expire after ReadTimeout.
type TCP struct {
	conn    net.Conn
	timeout time.Duration

	bytesRead uint64
}

// DialTCP connects to the vehicle.
func DialTCP(ctx context.Context, cfg TCPConfig) (*TCP, error) {
	if cfg.ReadTimeout <= 0 {
		return nil, fmt.Errorf("transport: read timeout must be positive, got %v", cfg.ReadTimeout)
	}

	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: connect %s: %w", cfg.Address, err)
	}

	slog.Debug("transport: tcp connected",
		"local", conn.LocalAddr().String(),
		"remote", conn.RemoteAddr().String(),
	)

	return &TCP{conn: conn, timeout: cfg.ReadTimeout}, nil
}

// Read reads into p with a fresh deadline. A deadline expiry returns an
// error satisfying IsTimeout.
func (c *TCP) Read(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(p)
	atomic.AddUint64(&c.bytesRead, uint64(n))
	return n, err
}

// BytesRead returns the number of bytes received.
func (c *TCP) BytesRead() uint64 {
	return atomic.LoadUint64(&c.bytesRead)
}

// Close closes the connection.
func (c *TCP) Close() error {
	return c.conn.Close()
}
