package streamcapture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/transport"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/uvlc"
)

// Legacy vehicles stream 320x240 until a picture header says otherwise.
const (
	legacyWidth  = 320
	legacyHeight = 240
)

type datagramSource interface {
	Read(buf []byte) (int, error)
	Close() error
}

// legacyVariant requests UVLC pictures over UDP, one datagram per picture.
type legacyVariant struct {
	cfg Config
	log *slog.Logger

	src datagramSource
	buf []byte
	dec *uvlc.Decoder
}

func (v *legacyVariant) open(_ context.Context, res *resources) error {
	var (
		src datagramSource
		err error
	)
	if v.cfg.ReplayFile != "" {
		src, err = transport.OpenPcap(transport.PcapConfig{
			Path:        v.cfg.ReplayFile,
			SourcePort:  v.cfg.Port,
			Pace:        v.cfg.ReplayPace,
			ReadTimeout: v.cfg.ReadTimeout,
		})
	} else {
		src, err = transport.DialUDP(transport.UDPConfig{
			Remote:      v.cfg.remote(),
			LocalPort:   v.cfg.LocalPort,
			ReadTimeout: v.cfg.ReadTimeout,
		})
	}
	if err != nil {
		return &TransportError{Kind: SocketOpenFailed, Err: err}
	}
	v.src = src
	res.push("udp socket", src.Close)

	v.buf = make([]byte, transport.MaxDatagramSize)
	res.push("datagram buffer", func() error {
		v.buf = nil
		return nil
	})

	dec, err := uvlc.NewDecoder(legacyWidth, legacyHeight)
	if err != nil {
		return &ResourceError{Resource: "uvlc decoder", Err: err}
	}
	v.dec = dec
	res.push("uvlc decoder", dec.Close)

	v.log.Info("stream-capture: legacy video channel open",
		"remote", v.cfg.remote(),
		"replay", v.cfg.ReplayFile,
		"resolution", "320x240",
	)
	return nil
}

func (v *legacyVariant) read() (packet, error) {
	n, err := v.src.Read(v.buf)
	if err != nil {
		return packet{}, &TransportError{Kind: ReadFailed, Err: err}
	}
	return packet{data: v.buf[:n], size: n, keyframe: true}, nil
}

func (v *legacyVariant) decode(p packet) (*codec.Picture, error) {
	w, h := v.dec.Resolution()
	pic, err := v.dec.Decode(p.data)
	if err != nil {
		return nil, err
	}
	if pic.Width != w || pic.Height != h {
		v.log.Info("stream-capture: legacy resolution changed",
			"from", fmt.Sprintf("%dx%d", w, h),
			"to", fmt.Sprintf("%dx%d", pic.Width, pic.Height),
			"frame", v.dec.Header().FrameNumber,
		)
	}
	return pic, nil
}

func (v *legacyVariant) resolution() (int, int) {
	if v.dec == nil {
		return legacyWidth, legacyHeight
	}
	return v.dec.Resolution()
}

func (v *legacyVariant) decoderName() string {
	return "uvlc"
}
