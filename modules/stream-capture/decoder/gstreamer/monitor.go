package gstreamer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// errorCounters holds atomic counters per error category.
type errorCounters struct {
	codec    uint64
	resource uint64
	unknown  uint64
}

func (c *errorCounters) add(cat errorCategory) {
	switch cat {
	case errCategoryCodec:
		atomic.AddUint64(&c.codec, 1)
	case errCategoryResource:
		atomic.AddUint64(&c.resource, 1)
	default:
		atomic.AddUint64(&c.unknown, 1)
	}
}

// monitorBus polls the pipeline bus until ctx is cancelled.
//
// Returns nil on cancellation, or an error once the pipeline reports an
// error or an unexpected end of stream. Warnings are logged and counted.
func monitorBus(ctx context.Context, pipeline *gst.Pipeline, counters *errorCounters, log *slog.Logger) error {
	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			log.Debug("gstreamer: context cancelled, stopping bus monitor")
			return nil

		default:
			// Short timeout for responsive shutdown
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				if ctx.Err() != nil {
					return nil
				}
				log.Warn("gstreamer: unexpected end of stream")
				return fmt.Errorf("gstreamer: end of stream")

			case gst.MessageError:
				gerr := msg.ParseError()
				category := classifyGStreamerError(gerr)
				counters.add(category)

				log.Error("gstreamer: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"category", category.String(),
				)
				return fmt.Errorf("gstreamer: pipeline error [%s]: %s", category, gerr.Error())

			case gst.MessageWarning:
				gerr := msg.ParseWarning()
				category := classifyGStreamerError(gerr)
				counters.add(category)

				log.Warn("gstreamer: pipeline warning",
					"warning", gerr.Error(),
					"category", category.String(),
				)

			case gst.MessageStateChanged:
				if msg.Source() == pipeline.GetName() {
					old, new := msg.ParseStateChanged()
					log.Debug("gstreamer: pipeline state changed",
						"from", old,
						"to", new,
					)
				}
			}
		}
	}
}
