package gstreamer

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
)

// pipelineElements holds references needed to feed, drain and destroy the
// pipeline.
type pipelineElements struct {
	pipeline *gst.Pipeline
	appSrc   *app.Source
	appSink  *app.Sink
}

// createPipeline creates the decode pipeline. It is configured but NOT
// started (state remains NULL).
func createPipeline(cfg codec.Config) (*pipelineElements, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString("video/x-h264,stream-format=byte-stream,alignment=au"))
	src.SetProperty("is-live", true)
	src.SetProperty("do-timestamp", true)

	parser, err := gst.NewElement("h264parse")
	if err != nil {
		return nil, fmt.Errorf("failed to create h264parse: %w", err)
	}

	decoder, err := gst.NewElement("avdec_h264")
	if err != nil {
		return nil, fmt.Errorf("failed to create avdec_h264: %w", err)
	}
	decoder.SetProperty("max-threads", 0)        // 0 = auto-detect cores
	decoder.SetProperty("output-corrupt", false) // Skip corrupt frames

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0)
	converter.SetProperty("dither", 0)

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsStr := buildBGRCaps(cfg.Width, cfg.Height)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)    // No sync with clock (real-time)
	sink.SetProperty("max-buffers", 1) // Keep only latest frame
	sink.SetProperty("drop", true)     // Drop old frames

	if err := pipeline.AddMany(
		src.Element,
		parser,
		decoder,
		converter,
		scaler,
		capsfilter,
		sink.Element,
	); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}

	if err := gst.ElementLinkMany(
		src.Element,
		parser,
		decoder,
		converter,
		scaler,
		capsfilter,
		sink.Element,
	); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Debug("gstreamer: pipeline created", "caps", capsStr)

	return &pipelineElements{
		pipeline: pipeline,
		appSrc:   src,
		appSink:  sink,
	}, nil
}

// destroyPipeline sets the pipeline to NULL, releasing decoder and scaler.
// Safe to call on a nil or already destroyed pipeline.
func destroyPipeline(elements *pipelineElements) error {
	if elements == nil || elements.pipeline == nil {
		return nil
	}

	if err := elements.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	elements.pipeline = nil

	return nil
}

// buildBGRCaps locks the appsink input to packed BGR at the output size.
//
// Format: "video/x-raw,format=BGR,width=W,height=H"
func buildBGRCaps(width, height int) string {
	return fmt.Sprintf("video/x-raw,format=BGR,width=%d,height=%d", width, height)
}
