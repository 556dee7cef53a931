// Package frameexchange hands decoded video frames from one producer
// goroutine to one consumer goroutine with latest-wins semantics.
//
// # Philosophy
//
// "Drop frames, never queue. Latency > Completeness."
//
// The exchange owns a single canonical raster. The producer overwrites it
// under a mutex on every decoded picture; the consumer copies it out under the
// same mutex. A frame that is overwritten before anybody read it is simply
// gone (counted in Stats.Overwrites). Neither side ever sees a partially
// written frame.
//
// # Resize on read
//
// The consumer chooses its target resolution when the exchange is created.
// When the producer publishes at a different resolution, the snapshot is
// scaled during the copy (nearest neighbour, aspect ratio stretched to the
// target). The producer never pays for the resize.
//
// # Basic Usage
//
// Producer side (acquisition loop):
//
//	ex, _ := frameexchange.New(320, 240)
//	defer ex.Close()
//
//	for {
//	    pic := decode(readPacket())
//	    _ = ex.Publish(pic.Pix, pic.Width, pic.Height)
//	}
//
// Consumer side (display / tracking loop):
//
//	var seq uint64
//	for {
//	    frame, err := ex.Next(ctx, seq) // blocks until something newer exists
//	    if err != nil {
//	        return
//	    }
//	    seq = frame.Seq
//	    render(frame)
//	}
//
// # Thread Safety
//
// All methods are safe for concurrent use. The lock is never held across I/O
// or decoding; only across one memcpy (or one resize) of a single frame.
package frameexchange
