package frameexchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

var (
	// ErrClosed is returned once the canonical frame has been released.
	ErrClosed = errors.New("frameexchange: exchange is closed")
	// ErrInvalidDimensions is returned for non-positive widths or heights.
	ErrInvalidDimensions = errors.New("frameexchange: invalid dimensions")
	// ErrShortBuffer is returned when a published buffer holds fewer bytes
	// than width*height*3.
	ErrShortBuffer = errors.New("frameexchange: pixel buffer too short")
)

// Exchange is a single-slot, mutex guarded, latest-wins frame mailbox.
//
// The canonical frame always has the producer's resolution. Readers receive
// copies at the target resolution fixed by New.
type Exchange struct {
	mu        sync.Mutex
	cond      *sync.Cond
	canonical *Frame // nil after Close
	unread    bool   // canonical published but not yet snapshotted
	seq       uint64
	closed    bool

	targetWidth  int
	targetHeight int

	// Statistics (atomic for lock-free Stats)
	published   uint64
	snapshots   uint64
	overwrites  uint64
	resizes     uint64
	scaledReads uint64
}

// New creates an exchange whose snapshots are width x height.
//
// Until the first Publish the canonical frame is an all-zero frame of the
// target dimensions.
func New(width, height int) (*Exchange, error) {
	if err := validDims(width, height); err != nil {
		return nil, err
	}

	e := &Exchange{
		canonical:    NewFrame(width, height),
		targetWidth:  width,
		targetHeight: height,
	}
	e.cond = sync.NewCond(&e.mu)

	return e, nil
}

// Publish overwrites the canonical frame with the first width*height*3 bytes
// of pix.
//
// When the producer resolution differs from the current canonical buffer the
// buffer is re-allocated inside the same critical section, so readers never
// observe a size change half way through a copy.
//
// The caller keeps ownership of pix; it may be reused immediately.
func (e *Exchange) Publish(pix []byte, width, height int) error {
	if err := validDims(width, height); err != nil {
		return err
	}
	size := FrameSize(width, height)
	if len(pix) < size {
		return fmt.Errorf("%w: have %d bytes, need %d for %dx%d",
			ErrShortBuffer, len(pix), size, width, height)
	}

	traceID := uuid.NewString()
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if e.canonical.Width != width || e.canonical.Height != height {
		e.canonical = NewFrame(width, height)
		atomic.AddUint64(&e.resizes, 1)
	}

	if e.unread {
		atomic.AddUint64(&e.overwrites, 1)
	}

	copy(e.canonical.Pix, pix[:size])
	e.seq++
	e.canonical.Seq = e.seq
	e.canonical.Timestamp = now
	e.canonical.TraceID = traceID
	e.unread = true
	atomic.AddUint64(&e.published, 1)

	e.cond.Broadcast()

	return nil
}

// Snapshot returns a copy of the latest frame at the target resolution.
//
// Before any Publish the returned frame is all zeros. After Close it returns
// ErrClosed.
func (e *Exchange) Snapshot() (*Frame, error) {
	dst := NewFrame(e.targetWidth, e.targetHeight)
	if err := e.SnapshotInto(dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// SnapshotInto copies the latest frame into dst, reusing dst.Pix when it is
// large enough. dst is always reshaped to the target resolution.
func (e *Exchange) SnapshotInto(dst *Frame) error {
	if dst == nil {
		return fmt.Errorf("frameexchange: nil destination frame")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snapshotLocked(dst)
}

// Next blocks until a frame with Seq > after has been published, then
// returns a snapshot of it. It returns early with ctx.Err() when ctx is done,
// or ErrClosed when the exchange is closed.
func (e *Exchange) Next(ctx context.Context, after uint64) (*Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()

	dst := NewFrame(e.targetWidth, e.targetHeight)

	e.mu.Lock()
	defer e.mu.Unlock()

	for e.seq <= after && !e.closed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.cond.Wait()
	}

	if err := e.snapshotLocked(dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// snapshotLocked copies (or scales) the canonical frame into dst.
// Caller must hold e.mu.
func (e *Exchange) snapshotLocked(dst *Frame) error {
	if e.closed {
		return ErrClosed
	}

	size := FrameSize(e.targetWidth, e.targetHeight)
	if cap(dst.Pix) < size {
		dst.Pix = make([]byte, size)
	}
	dst.Pix = dst.Pix[:size]
	dst.Width = e.targetWidth
	dst.Height = e.targetHeight

	src := e.canonical
	if src.Width == dst.Width && src.Height == dst.Height {
		copy(dst.Pix, src.Pix)
	} else {
		// Stretch to the target; aspect ratio is not preserved.
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		atomic.AddUint64(&e.scaledReads, 1)
	}

	dst.Seq = src.Seq
	dst.Timestamp = src.Timestamp
	dst.TraceID = src.TraceID

	e.unread = false
	atomic.AddUint64(&e.snapshots, 1)

	return nil
}

// Resolution returns the producer resolution of the canonical frame.
func (e *Exchange) Resolution() (width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.canonical == nil {
		return 0, 0
	}
	return e.canonical.Width, e.canonical.Height
}

// Target returns the consumer resolution fixed at construction.
func (e *Exchange) Target() (width, height int) {
	return e.targetWidth, e.targetHeight
}

// Seq returns the sequence number of the latest published frame.
func (e *Exchange) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// Close releases the canonical frame and wakes every blocked Next.
//
// Idempotent.
func (e *Exchange) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.closed = true
	e.canonical = nil
	e.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (e *Exchange) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
