package gstreamer

import (
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
)

// onNewSample is called by GStreamer when a decoded picture is available.
//
// It copies the mapped buffer (GStreamer reuses it) and offers the picture
// to Decode, replacing any picture nobody collected yet.
func (d *Decoder) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// A single bad sample should not kill the pipeline
		d.log.Warn("gstreamer: failed to pull sample from appsink, skipping picture")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		d.log.Warn("gstreamer: failed to get buffer from sample, skipping picture")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		d.log.Warn("gstreamer: empty buffer received")
		return gst.FlowOK
	}

	pic, err := copyPicture(data, d.cfg.Width, d.cfg.Height)
	buffer.Unmap()
	if err != nil {
		d.log.Warn("gstreamer: unexpected picture size", "error", err)
		return gst.FlowOK
	}

	atomic.AddUint64(&d.decoded, 1)
	d.offer(pic)
	return gst.FlowOK
}

// offer stores pic in the single slot, dropping the older picture.
func (d *Decoder) offer(pic *codec.Picture) {
	for {
		select {
		case d.pictures <- pic:
			return
		default:
		}
		select {
		case <-d.pictures:
			atomic.AddUint64(&d.dropped, 1)
		default:
		}
	}
}
