package streamcapture

import (
	"errors"
	"fmt"
)

// Sentinel errors, usable with errors.Is.
var (
	// ErrTransport matches every *TransportError. Fatal to the session.
	ErrTransport = errors.New("stream-capture: transport failure")
	// ErrDecode matches every *DecodeError. The packet is dropped, the
	// session continues.
	ErrDecode = errors.New("stream-capture: decode failure")
	// ErrResource matches every *ResourceError. Fatal to Initialize.
	ErrResource = errors.New("stream-capture: resource failure")

	// ErrNotRunning is returned by frame accessors once the canonical frame
	// has been released, or before Initialize.
	ErrNotRunning = errors.New("stream-capture: session not running")
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("stream-capture: session already initialized")
)

// TransportErrorKind classifies transport failures.
type TransportErrorKind int

const (
	// ConnectFailed: the stream connection could not be established.
	ConnectFailed TransportErrorKind = iota
	// NoVideoStream: the connection carries no H.264 video stream.
	NoVideoStream
	// SocketOpenFailed: the datagram socket could not be opened.
	SocketOpenFailed
	// ReadTimeout: no data arrived for longer than the stall timeout.
	ReadTimeout
	// ReadFailed: a read failed outright (connection closed, end of replay).
	ReadFailed
)

// String returns a human-readable name for the kind.
func (k TransportErrorKind) String() string {
	switch k {
	case ConnectFailed:
		return "connect failed"
	case NoVideoStream:
		return "no video stream"
	case SocketOpenFailed:
		return "socket open failed"
	case ReadTimeout:
		return "read timeout"
	case ReadFailed:
		return "read failed"
	default:
		return fmt.Sprintf("transport error(%d)", int(k))
	}
}

// TransportError is a session-fatal transport failure.
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "stream-capture: " + e.Kind.String()
	}
	return fmt.Sprintf("stream-capture: %s: %v", e.Kind, e.Err)
}

// Unwrap exposes ErrTransport and the cause.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// DecodeError is a per-packet decode failure.
type DecodeError struct {
	// Packet is the index of the failing packet within the session.
	Packet uint64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("stream-capture: decode packet %d: %v", e.Packet, e.Err)
}

// Unwrap exposes ErrDecode and the cause.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}

// ResourceError is an allocation or backend failure during Initialize.
type ResourceError struct {
	// Resource names what could not be acquired.
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("stream-capture: acquire %s: %v", e.Resource, e.Err)
}

// Unwrap exposes ErrResource and the cause.
func (e *ResourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrResource}
	}
	return []error{ErrResource, e.Err}
}

// ErrorCategory represents the classification of errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryNetwork indicates transport failures (connection, timeout, socket)
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryCodec indicates decode failures (malformed packets, codec errors)
	ErrCategoryCodec
	// ErrCategoryResource indicates allocation or backend setup failures
	ErrCategoryResource
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// ClassifyError maps an error onto a telemetry category.
func ClassifyError(err error) ErrorCategory {
	switch {
	case err == nil:
		return ErrCategoryUnknown
	case errors.Is(err, ErrTransport):
		return ErrCategoryNetwork
	case errors.Is(err, ErrDecode):
		return ErrCategoryCodec
	case errors.Is(err, ErrResource):
		return ErrCategoryResource
	default:
		return ErrCategoryUnknown
	}
}
