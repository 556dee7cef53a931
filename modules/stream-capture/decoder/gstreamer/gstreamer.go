// Package gstreamer is the GStreamer H.264 backend.
//
// Access units are pushed into an appsrc; decoded pictures come out of an
// appsink already converted to BGR and scaled to the configured resolution:
//
//	appsrc → h264parse → avdec_h264 → videoconvert → videoscale →
//	capsfilter(BGR) → appsink
//
// Import it for its side effect:
//
//	import _ "github.com/e7canasta/ardrone-video/modules/stream-capture/decoder/gstreamer"
package gstreamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
)

// Name is the registry name of this backend.
const Name = "gstreamer"

func init() {
	codec.Register(Name, func(cfg codec.Config) (codec.Decoder, error) {
		return New(cfg)
	})
}

// ErrClosed is returned by Decode after Close.
var ErrClosed = errors.New("gstreamer: decoder closed")

// Decoder decodes H.264 through a GStreamer pipeline.
type Decoder struct {
	cfg      codec.Config
	log      *slog.Logger
	elements *pipelineElements

	pictures chan *codec.Picture

	// Lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	// First pipeline error reported by the bus monitor
	errMu   sync.Mutex
	busErr  error
	counter errorCounters

	// Statistics (atomic for thread-safety)
	pushed  uint64
	decoded uint64
	dropped uint64
}

// New builds the pipeline and sets it to PLAYING.
func New(cfg codec.Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DecodeWait <= 0 {
		cfg.DecodeWait = 50 * time.Millisecond
	}
	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("gstreamer: not available: %w", err)
	}

	elements, err := createPipeline(cfg)
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create pipeline: %w", err)
	}

	d := &Decoder{
		cfg:      cfg,
		log:      cfg.Log(),
		elements: elements,
		pictures: make(chan *codec.Picture, 1),
	}

	elements.appSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return d.onNewSample(sink)
		},
	})

	if err := elements.pipeline.SetState(gst.StatePlaying); err != nil {
		destroyPipeline(elements)
		return nil, fmt.Errorf("gstreamer: start pipeline: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := monitorBus(ctx, elements.pipeline, &d.counter, d.log); err != nil {
			d.errMu.Lock()
			d.busErr = err
			d.errMu.Unlock()
		}
	}()

	d.log.Info("gstreamer: decoder started",
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"decode_wait", cfg.DecodeWait,
	)

	return d, nil
}

// Decode pushes one access unit and waits up to DecodeWait for a picture.
// Pictures that complete later are returned by a following call.
func (d *Decoder) Decode(au []byte) (*codec.Picture, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if err := d.pipelineErr(); err != nil {
		return nil, err
	}

	buf := gst.NewBufferFromBytes(au)
	if ret := d.elements.appSrc.PushBuffer(buf); ret != gst.FlowOK {
		return nil, fmt.Errorf("gstreamer: push buffer: %v", ret)
	}
	atomic.AddUint64(&d.pushed, 1)

	timer := time.NewTimer(d.cfg.DecodeWait)
	defer timer.Stop()

	select {
	case pic := <-d.pictures:
		return pic, nil
	case <-timer.C:
		return nil, nil
	}
}

// Close ends the stream and tears the pipeline down. Idempotent.
func (d *Decoder) Close() error {
	var err error
	d.once.Do(func() {
		d.closed.Store(true)
		d.elements.appSrc.EndStream()
		d.cancel()
		d.wg.Wait()
		err = destroyPipeline(d.elements)

		d.log.Info("gstreamer: decoder closed",
			"pushed", atomic.LoadUint64(&d.pushed),
			"decoded", atomic.LoadUint64(&d.decoded),
			"dropped", atomic.LoadUint64(&d.dropped),
			"errors_codec", atomic.LoadUint64(&d.counter.codec),
			"errors_resource", atomic.LoadUint64(&d.counter.resource),
		)
	})
	return err
}

func (d *Decoder) pipelineErr() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.busErr
}

// checkGStreamerAvailable verifies the runtime and the elements the
// pipeline needs.
func checkGStreamerAvailable() error {
	gst.Init(nil)

	for _, name := range []string{"appsrc", "h264parse", "avdec_h264", "videoconvert", "videoscale"} {
		elem, err := gst.NewElement(name)
		if err != nil {
			return fmt.Errorf("element %s missing: %w", name, err)
		}
		elem.SetState(gst.StateNull)
	}
	return nil
}
