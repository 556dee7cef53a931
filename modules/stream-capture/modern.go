package streamcapture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/pave"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/transport"
)

// modernVariant reads PaVE framed H.264 from the TCP video port and hands
// every access unit to a registered H.264 backend.
type modernVariant struct {
	cfg Config
	log *slog.Logger

	rd       *pave.Reader
	dec      codec.Decoder
	streamID uint16
	width    int
	height   int

	probed  *pave.Frame // first video frame, returned by the first read
	synced  bool        // a keyframe has been seen
	skipped uint64      // frames dropped before the first keyframe or off-stream
}

func (v *modernVariant) open(ctx context.Context, res *resources) error {
	var src io.ReadCloser
	if v.cfg.ReplayFile != "" {
		f, err := transport.OpenDump(v.cfg.ReplayFile)
		if err != nil {
			return &TransportError{Kind: ConnectFailed, Err: err}
		}
		src = f
		res.push("stream dump", f.Close)
	} else {
		conn, err := transport.DialTCP(ctx, transport.TCPConfig{
			Address:     v.cfg.remote(),
			DialTimeout: v.cfg.DialTimeout,
			ReadTimeout: v.cfg.ReadTimeout,
		})
		if err != nil {
			return &TransportError{Kind: ConnectFailed, Err: err}
		}
		src = conn
		res.push("tcp connection", conn.Close)
	}
	v.rd = pave.NewReader(src)

	f, err := v.probe(ctx)
	if err != nil {
		return err
	}
	v.probed = f
	v.streamID = f.StreamID

	v.width, v.height = int(f.DisplayWidth), int(f.DisplayHeight)
	if w, h, ok := pave.SPSDimensions(f.Payload); ok {
		v.log.Debug("stream-capture: sequence parameter set",
			"sps_resolution", fmt.Sprintf("%dx%d", w, h),
			"display_resolution", fmt.Sprintf("%dx%d", v.width, v.height),
		)
		if v.width == 0 || v.height == 0 {
			v.width, v.height = w, h
		}
	}
	if v.width == 0 || v.height == 0 {
		v.width, v.height = int(f.EncodedWidth), int(f.EncodedHeight)
	}
	if v.width == 0 || v.height == 0 {
		return &TransportError{Kind: NoVideoStream, Err: errors.New("video stream announces no resolution")}
	}

	factory, err := codec.Lookup(v.cfg.Decoder)
	if err != nil {
		return &ResourceError{Resource: "h264 decoder", Err: err}
	}
	dec, err := factory(codec.Config{
		Width:      v.width,
		Height:     v.height,
		DecodeWait: v.cfg.DecodeWait,
		Logger:     v.log,
	})
	if err != nil {
		return &ResourceError{Resource: "h264 decoder " + v.cfg.Decoder, Err: err}
	}
	v.dec = dec
	res.push("h264 decoder", dec.Close)

	v.log.Info("stream-capture: modern video channel open",
		"remote", v.cfg.remote(),
		"replay", v.cfg.ReplayFile,
		"stream_id", v.streamID,
		"resolution", fmt.Sprintf("%dx%d", v.width, v.height),
		"decoder", v.cfg.Decoder,
	)
	return nil
}

// probe reads frames until the first H.264 one, within ProbeTimeout.
func (v *modernVariant) probe(ctx context.Context) (*pave.Frame, error) {
	deadline := time.Now().Add(v.cfg.ProbeTimeout)
	others := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, &TransportError{Kind: ConnectFailed, Err: err}
		}
		if time.Now().After(deadline) {
			return nil, &TransportError{
				Kind: NoVideoStream,
				Err:  fmt.Errorf("no H.264 frame within %v (%d other frames)", v.cfg.ProbeTimeout, others),
			}
		}

		f, err := v.rd.ReadFrame()
		if err != nil {
			if isNoData(err) {
				continue
			}
			return nil, &TransportError{Kind: NoVideoStream, Err: err}
		}
		if f.Codec != pave.CodecH264 {
			others++
			v.log.Debug("stream-capture: skipping non H.264 frame", "codec", f.Codec, "stream_id", f.StreamID)
			continue
		}
		return f, nil
	}
}

func (v *modernVariant) read() (packet, error) {
	f := v.probed
	v.probed = nil

	if f == nil {
		var err error
		f, err = v.rd.ReadFrame()
		if err != nil {
			if isNoData(err) {
				return packet{}, nil
			}
			return packet{}, &TransportError{Kind: ReadFailed, Err: err}
		}
	}

	p := packet{size: int(f.HeaderSize) + len(f.Payload), frameNumber: f.FrameNumber}

	if f.StreamID != v.streamID || f.Codec != pave.CodecH264 {
		v.skipped++
		return p, nil
	}
	p.keyframe = f.Keyframe()
	if !v.synced {
		if !p.keyframe {
			v.skipped++
			return p, nil
		}
		v.synced = true
		v.log.Debug("stream-capture: first keyframe", "frame", f.FrameNumber, "skipped", v.skipped)
	}

	p.data = f.Payload
	return p, nil
}

func (v *modernVariant) decode(p packet) (*codec.Picture, error) {
	pic, err := v.dec.Decode(p.data)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", p.frameNumber, err)
	}
	return pic, nil
}

func (v *modernVariant) resolution() (int, int) {
	return v.width, v.height
}

func (v *modernVariant) decoderName() string {
	return v.cfg.Decoder
}

// isNoData reports a read that ended without data but left the stream
// usable: a deadline expiry or an empty read.
func isNoData(err error) bool {
	return transport.IsTimeout(err) || errors.Is(err, io.ErrNoProgress)
}
