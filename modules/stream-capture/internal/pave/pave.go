// Package pave parses the PaVE (Parrot Video Encapsulation) framing that
// second generation vehicles wrap around each H.264 access unit on the TCP
// video port.
//
// Every frame is a little-endian header of at least 64 bytes followed by
// payload_size bytes of Annex-B H.264.
package pave

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Signature opens every PaVE header.
var Signature = []byte("PaVE")

const (
	// HeaderSize is the size of the version 2 header. Later versions may
	// announce a larger header_size; the extra bytes are skipped.
	HeaderSize = 64

	// MaxPayloadSize bounds a single access unit. Larger payload sizes are
	// treated as framing corruption.
	MaxPayloadSize = 4 << 20
)

// Video codecs announced in the header.
const (
	CodecUnknown = 0
	CodecVLIB    = 1
	CodecP264    = 2
	CodecMPEG4   = 3
	CodecH264    = 4
)

// Frame types announced in the header.
const (
	FrameTypeUnknown = 0
	FrameTypeIDR     = 1
	FrameTypeI       = 2
	FrameTypeP       = 3
	FrameTypeHeaders = 4
)

var (
	// ErrBadSignature is returned by ParseHeader when b does not start with
	// "PaVE".
	ErrBadSignature = errors.New("pave: bad signature")
	// ErrShortHeader is returned by ParseHeader for fewer than HeaderSize bytes.
	ErrShortHeader = errors.New("pave: short header")
	// ErrCorrupt marks a header with impossible sizes.
	ErrCorrupt = errors.New("pave: corrupt header")
)

// Header is the decoded PaVE header.
type Header struct {
	Version        uint8
	Codec          uint8
	HeaderSize     uint16
	PayloadSize    uint32
	EncodedWidth   uint16
	EncodedHeight  uint16
	DisplayWidth   uint16
	DisplayHeight  uint16
	FrameNumber    uint32
	Timestamp      uint32 // milliseconds
	TotalChunks    uint8
	ChunkIndex     uint8
	FrameType      uint8
	Control        uint8
	StreamPosition uint64
	StreamID       uint16
	TotalSlices    uint8
	SliceIndex     uint8
	Header1Size    uint8
	Header2Size    uint8
	AdvertisedSize uint32
}

// Frame is one header plus its payload.
type Frame struct {
	Header
	Payload []byte
}

// Keyframe reports whether the header announces an IDR or I frame.
func (h Header) Keyframe() bool {
	return h.FrameType == FrameTypeIDR || h.FrameType == FrameTypeI
}

// ParseHeader decodes the header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < len(Signature) || !bytes.Equal(b[:len(Signature)], Signature) {
		return h, ErrBadSignature
	}
	if len(b) < HeaderSize {
		return h, ErrShortHeader
	}

	le := binary.LittleEndian
	h.Version = b[4]
	h.Codec = b[5]
	h.HeaderSize = le.Uint16(b[6:])
	h.PayloadSize = le.Uint32(b[8:])
	h.EncodedWidth = le.Uint16(b[12:])
	h.EncodedHeight = le.Uint16(b[14:])
	h.DisplayWidth = le.Uint16(b[16:])
	h.DisplayHeight = le.Uint16(b[18:])
	h.FrameNumber = le.Uint32(b[20:])
	h.Timestamp = le.Uint32(b[24:])
	h.TotalChunks = b[28]
	h.ChunkIndex = b[29]
	h.FrameType = b[30]
	h.Control = b[31]
	h.StreamPosition = uint64(le.Uint32(b[32:])) | uint64(le.Uint32(b[36:]))<<32
	h.StreamID = le.Uint16(b[40:])
	h.TotalSlices = b[42]
	h.SliceIndex = b[43]
	h.Header1Size = b[44]
	h.Header2Size = b[45]
	h.AdvertisedSize = le.Uint32(b[48:])

	if h.HeaderSize < HeaderSize {
		return h, fmt.Errorf("%w: header_size %d", ErrCorrupt, h.HeaderSize)
	}
	if h.PayloadSize > MaxPayloadSize {
		return h, fmt.Errorf("%w: payload_size %d", ErrCorrupt, h.PayloadSize)
	}
	return h, nil
}

// AppendFrame appends the encoded frame to dst. HeaderSize and PayloadSize
// are derived from the arguments.
func AppendFrame(dst []byte, h Header, payload []byte) []byte {
	var b [HeaderSize]byte
	le := binary.LittleEndian

	copy(b[:], Signature)
	b[4] = h.Version
	b[5] = h.Codec
	le.PutUint16(b[6:], HeaderSize)
	le.PutUint32(b[8:], uint32(len(payload)))
	le.PutUint16(b[12:], h.EncodedWidth)
	le.PutUint16(b[14:], h.EncodedHeight)
	le.PutUint16(b[16:], h.DisplayWidth)
	le.PutUint16(b[18:], h.DisplayHeight)
	le.PutUint32(b[20:], h.FrameNumber)
	le.PutUint32(b[24:], h.Timestamp)
	b[28] = h.TotalChunks
	b[29] = h.ChunkIndex
	b[30] = h.FrameType
	b[31] = h.Control
	le.PutUint32(b[32:], uint32(h.StreamPosition))
	le.PutUint32(b[36:], uint32(h.StreamPosition>>32))
	le.PutUint16(b[40:], h.StreamID)
	b[42] = h.TotalSlices
	b[43] = h.SliceIndex
	b[44] = h.Header1Size
	b[45] = h.Header2Size
	le.PutUint32(b[48:], h.AdvertisedSize)

	dst = append(dst, b[:]...)
	return append(dst, payload...)
}

// Reader extracts frames from a PaVE byte stream.
//
// Bytes already received are kept across ReadFrame calls, so a read that
// fails with a timeout can simply be retried. Garbage between frames is
// skipped by searching for the next signature.
type Reader struct {
	r       io.Reader
	buf     []byte
	chunk   []byte
	skipped uint64
}

// NewReader returns a Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:     r,
		chunk: make([]byte, 64<<10),
	}
}

// Skipped returns the number of bytes discarded while resynchronising.
func (r *Reader) Skipped() uint64 {
	return r.skipped
}

// Buffered returns the number of bytes received but not yet returned.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// ReadFrame returns the next complete frame. The payload is a fresh slice
// owned by the caller.
//
// Errors from the underlying reader are returned unchanged; any partial
// frame stays buffered.
func (r *Reader) ReadFrame() (*Frame, error) {
	for {
		f, ok := r.next()
		if ok {
			return f, nil
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
			continue
		}
		if err == nil {
			err = io.ErrNoProgress
		}
		if errors.Is(err, io.EOF) && len(r.buf) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}

// next extracts one frame from buf when a complete one is available.
func (r *Reader) next() (*Frame, bool) {
	for {
		i := bytes.Index(r.buf, Signature)
		if i < 0 {
			// Keep a tail that could be the start of a split signature.
			keep := len(Signature) - 1
			if len(r.buf) > keep {
				r.discard(len(r.buf) - keep)
			}
			return nil, false
		}
		if i > 0 {
			r.discard(i)
		}

		h, err := ParseHeader(r.buf)
		switch {
		case errors.Is(err, ErrShortHeader):
			return nil, false
		case err != nil:
			r.discard(len(Signature))
			continue
		}

		total := int(h.HeaderSize) + int(h.PayloadSize)
		if len(r.buf) < total {
			return nil, false
		}

		payload := make([]byte, h.PayloadSize)
		copy(payload, r.buf[h.HeaderSize:total])
		r.consume(total)
		return &Frame{Header: h, Payload: payload}, true
	}
}

func (r *Reader) discard(n int) {
	r.skipped += uint64(n)
	r.consume(n)
}

func (r *Reader) consume(n int) {
	rest := copy(r.buf, r.buf[n:])
	r.buf = r.buf[:rest]
}
