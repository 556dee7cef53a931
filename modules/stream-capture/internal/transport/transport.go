// Package transport opens the vehicle video channels.
//
// Every read is bounded by a deadline, so the acquisition loop never blocks
// longer than one read timeout. A timeout is reported as "no data yet"
// (zero bytes, nil error) for datagram sources and as an error satisfying
// IsTimeout for stream sources, where partial data must be kept by the
// caller.
package transport

import (
	"errors"
	"net"
	"os"
)

// DefaultPort is the video port of both vehicle generations.
const DefaultPort = 5555

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
