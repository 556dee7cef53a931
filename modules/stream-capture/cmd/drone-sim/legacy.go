package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/transport"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/uvlc"
)

type legacyOptions struct {
	listen  string
	width   int
	height  int
	pattern string
	quant   int
	fps     float64
}

func newLegacyCommand() *cobra.Command {
	opts := &legacyOptions{}

	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Answer UDP picture requests with UVLC test pictures",
		Example: `  drone-sim legacy --listen 127.0.0.1:5555
  drone-sim legacy --pattern solid --width 176 --height 144`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, err := newLegacySim(opts)
			if err != nil {
				return err
			}
			addr, err := net.ResolveUDPAddr("udp4", opts.listen)
			if err != nil {
				return err
			}
			conn, err := net.ListenUDP("udp4", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", opts.listen, err)
			}
			defer conn.Close()

			slog.Info("drone-sim: legacy vehicle listening",
				"addr", conn.LocalAddr().String(),
				"resolution", fmt.Sprintf("%dx%d", opts.width, opts.height),
				"pattern", opts.pattern,
			)
			return sim.serve(cmd.Context(), conn)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.listen, "listen", fmt.Sprintf(":%d", transport.DefaultPort), "UDP listen address")
	flags.IntVar(&opts.width, "width", 320, "Picture width (176 or 320)")
	flags.IntVar(&opts.height, "height", 240, "Picture height (144 or 240)")
	flags.StringVar(&opts.pattern, "pattern", "bars", "Test pattern: bars, gradient, solid")
	flags.IntVar(&opts.quant, "quant", 6, "Quantizer 1-31 (lower is sharper)")
	flags.Float64Var(&opts.fps, "fps", 15, "Maximum picture rate (0 = unlimited)")
	return cmd
}

// legacySim answers each request token with the next picture.
type legacySim struct {
	opts    *legacyOptions
	enc     *uvlc.Encoder
	paint   patternFunc
	pix     []byte
	n       uint32
	last    time.Time
	replies uint64
}

func newLegacySim(opts *legacyOptions) (*legacySim, error) {
	sim := &legacySim{opts: opts}
	if opts.pattern == "solid" {
		return sim, nil
	}

	paint, err := lookupPattern(opts.pattern)
	if err != nil {
		return nil, err
	}
	enc, err := uvlc.NewEncoder(opts.width, opts.height, opts.quant)
	if err != nil {
		return nil, err
	}
	sim.enc = enc
	sim.paint = paint
	sim.pix = make([]byte, opts.width*opts.height*3)
	return sim, nil
}

// next encodes the next picture.
func (s *legacySim) next() ([]byte, error) {
	s.n++
	if s.enc == nil {
		return uvlc.EncodeFlat(s.opts.width, s.opts.height, uvlc.FlatRed, s.n)
	}
	s.paint(s.pix, s.opts.width, s.opts.height, s.n)
	return s.enc.EncodeBGR(s.pix)
}

// pace blocks until the next picture is due.
func (s *legacySim) pace() {
	if s.opts.fps <= 0 {
		return
	}
	interval := time.Duration(float64(time.Second) / s.opts.fps)
	if wait := time.Until(s.last.Add(interval)); wait > 0 {
		time.Sleep(wait)
	}
	s.last = time.Now()
}

func (s *legacySim) serve(ctx context.Context, conn *net.UDPConn) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 64)
	for {
		_, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("drone-sim: legacy vehicle stopped", "replies", s.replies)
				return nil
			}
			return fmt.Errorf("receive request: %w", err)
		}

		s.pace()
		picture, err := s.next()
		if err != nil {
			return fmt.Errorf("encode picture %d: %w", s.n, err)
		}
		if len(picture) > transport.MaxDatagramSize {
			slog.Warn("drone-sim: picture exceeds datagram limit, lower the quality", "size", len(picture))
			continue
		}
		if _, err := conn.WriteToUDP(picture, from); err != nil {
			slog.Warn("drone-sim: reply failed", "to", from.String(), "error", err)
			continue
		}
		s.replies++
		slog.Debug("drone-sim: picture sent", "n", s.n, "size", len(picture), "to", from.String())
	}
}
