// Package ffmpeg is the FFmpeg (libavcodec + libswscale) H.264 backend.
//
// Import it for its side effect:
//
//	import _ "github.com/e7canasta/ardrone-video/modules/stream-capture/decoder/ffmpeg"
package ffmpeg

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
)

// Name is the registry name of this backend.
const Name = "ffmpeg"

func init() {
	astiav.SetLogLevel(astiav.LogLevelError)
	codec.Register(Name, func(cfg codec.Config) (codec.Decoder, error) {
		return New(cfg)
	})
}

// ErrClosed is returned by Decode after Close.
var ErrClosed = errors.New("ffmpeg: decoder closed")

// Decoder decodes H.264 with libavcodec and converts every picture to
// BGR24 at the configured size with libswscale.
//
// Not safe for concurrent use.
type Decoder struct {
	cfg codec.Config
	log *slog.Logger

	codecCtx *astiav.CodecContext
	pkt      *astiav.Packet
	frame    *astiav.Frame
	scaler   bgrScaler

	decoded uint64
	closed  bool
}

// New opens the H.264 decoder.
func New(cfg codec.Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dec := astiav.FindDecoder(astiav.CodecIDH264)
	if dec == nil {
		return nil, errors.New("ffmpeg: h264 decoder not found")
	}

	cc := astiav.AllocCodecContext(dec)
	if cc == nil {
		return nil, errors.New("ffmpeg: codec context is nil")
	}
	if err := cc.Open(dec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("ffmpeg: opening codec context failed: %w", err)
	}

	d := &Decoder{
		cfg:      cfg,
		log:      cfg.Log(),
		codecCtx: cc,
		pkt:      astiav.AllocPacket(),
		frame:    astiav.AllocFrame(),
		scaler:   bgrScaler{dstW: cfg.Width, dstH: cfg.Height},
	}

	d.log.Info("ffmpeg: decoder opened",
		"codec", dec.Name(),
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
	)
	return d, nil
}

// Decode sends one access unit and returns the last picture it completed,
// or (nil, nil) when the decoder needs more input.
func (d *Decoder) Decode(au []byte) (*codec.Picture, error) {
	if d.closed {
		return nil, ErrClosed
	}

	if err := d.pkt.FromData(au); err != nil {
		return nil, fmt.Errorf("ffmpeg: packet from data: %w", err)
	}
	defer d.pkt.Unref()

	if err := d.codecCtx.SendPacket(d.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return nil, fmt.Errorf("ffmpeg: send packet: %w", err)
	}

	var pic *codec.Picture
	for {
		err := d.codecCtx.ReceiveFrame(d.frame)
		// EAGAIN: no more pictures for this packet
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ffmpeg: receive frame: %w", err)
		}

		p, err := d.scaler.toBGR(d.frame)
		d.frame.Unref()
		if err != nil {
			return nil, err
		}
		pic = p
		d.decoded++
	}

	return pic, nil
}

// Close frees the frame, the packet, the scaler and the codec context, in
// that order. Idempotent.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	d.frame.Free()
	d.pkt.Free()
	d.scaler.close()
	d.codecCtx.Free()

	d.log.Info("ffmpeg: decoder closed", "decoded", d.decoded)
	return nil
}
