package eventbus

import (
	"fmt"
	"time"
)

// Kind identifies a lifecycle signal.
type Kind int

const (
	// KindStarted is emitted once a session reached Running and its
	// acquisition goroutine has been spawned.
	KindStarted Kind = iota
	// KindStopped is emitted once a session reached Stopped and every
	// resource it held has been released.
	KindStopped
	// KindRestarting is emitted by a supervisor before it re-initializes a
	// session that ended on a transport failure.
	KindRestarting
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindStopped:
		return "stopped"
	case KindRestarting:
		return "restarting"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a session lifecycle signal.
type Event struct {
	// Kind is the signal type
	Kind Kind
	// SessionID identifies the session that emitted the event
	SessionID string
	// Generation is the vehicle generation ("legacy" or "modern")
	Generation string
	// Width and Height are the negotiated stream resolution (0 when unknown)
	Width  int
	Height int
	// Reason is the stop reason for KindStopped ("requested_stop" or
	// "transport_failure"), empty otherwise
	Reason string
	// Err carries the failure behind a transport_failure stop, if any
	Err error
	// Attempt is the restart attempt number for KindRestarting
	Attempt int
	// Timestamp is when the event was emitted
	Timestamp time.Time
}
