package streamcapture

import (
	"context"
	"log/slog"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
)

// packet is one compressed unit read from the transport. It is owned by the
// acquisition goroutine for the duration of one decode call.
type packet struct {
	// data is the payload to decode; empty when nothing is decodable.
	data []byte
	// size is the number of bytes received; zero means no data yet.
	size        int
	keyframe    bool
	frameNumber uint32
}

// variant is the generation specific half of a session: transport plus
// decoder. It is chosen once, at construction, from Config.Generation.
type variant interface {
	// open acquires every resource, pushing each onto res as it goes.
	// On error the caller releases res.
	open(ctx context.Context, res *resources) error
	// read returns the next packet. Errors are transport failures.
	read() (packet, error)
	// decode returns (nil, nil) when no picture completed.
	decode(p packet) (*codec.Picture, error)
	// resolution is the negotiated stream resolution, valid after open.
	resolution() (width, height int)
	// decoderName names the decode path for stats and logs.
	decoderName() string
}

func newVariant(cfg Config, logger *slog.Logger) variant {
	switch cfg.Generation {
	case GenerationModern:
		return &modernVariant{cfg: cfg, log: logger}
	default:
		return &legacyVariant{cfg: cfg, log: logger}
	}
}
