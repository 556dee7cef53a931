package streamcapture

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/e7canasta/ardrone-video/modules/frameexchange"
)

// run is the acquisition goroutine. It owns the variant until it returns,
// then tears the session down itself.
func (s *Session) run() {
	defer s.wg.Done()

	reason, err := s.acquire()
	s.teardown(reason, err)
}

// acquire loops read → decode → publish until a stop is requested or the
// transport fails. Decode failures drop the packet and keep going.
func (s *Session) acquire() (StopReason, error) {
	ex := s.exchange.Load()
	lastData := time.Now()
	var packets uint64

	for {
		if s.stop.Load() {
			return StopRequested, nil
		}

		p, err := s.variant.read()
		if err != nil {
			s.countError(err)
			s.log.Error("stream-capture: transport read failed", "error", err)
			return StopTransportFailure, err
		}

		if p.size == 0 {
			atomic.AddUint64(&s.emptyReads, 1)
			if stalled := time.Since(lastData); s.cfg.StallTimeout > 0 && stalled > s.cfg.StallTimeout {
				terr := &TransportError{Kind: ReadTimeout, Err: fmt.Errorf("no data for %v", stalled.Round(time.Millisecond))}
				s.countError(terr)
				s.log.Error("stream-capture: video stalled", "error", terr)
				return StopTransportFailure, terr
			}
			s.yield()
			continue
		}

		lastData = time.Now()
		packets++
		atomic.AddUint64(&s.packetsRead, 1)
		atomic.AddUint64(&s.bytesRead, uint64(p.size))

		if len(p.data) > 0 {
			s.decodeAndPublish(ex, p, packets)
		}

		s.yield()
	}
}

func (s *Session) decodeAndPublish(ex *frameexchange.Exchange, p packet, index uint64) {
	pic, err := s.variant.decode(p)
	if err != nil {
		derr := &DecodeError{Packet: index, Err: err}
		s.countError(derr)
		if n := atomic.AddUint64(&s.decodeErrors, 1); n == 1 || n%100 == 0 {
			s.log.Warn("stream-capture: dropping undecodable packet",
				"error", derr,
				"decode_errors", n,
			)
		} else {
			s.log.Debug("stream-capture: dropping undecodable packet", "error", derr)
		}
		return
	}
	if pic == nil {
		return
	}
	atomic.AddUint64(&s.framesDecoded, 1)

	if err := ex.Publish(pic.Pix, pic.Width, pic.Height); err != nil {
		s.countError(err)
		s.log.Warn("stream-capture: publish failed", "error", err)
		return
	}
	atomic.AddUint64(&s.framesPublished, 1)
	s.lastFrameAt.Store(time.Now().UnixNano())
}

func (s *Session) yield() {
	time.Sleep(s.cfg.PollInterval)
}
