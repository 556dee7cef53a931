package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/pave"
	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/transport"
)

type modernOptions struct {
	listen string
	dump   string
	fps    float64
	loop   bool
}

func newModernCommand() *cobra.Command {
	opts := &modernOptions{}

	cmd := &cobra.Command{
		Use:     "modern",
		Short:   "Serve a recorded PaVE dump over TCP",
		Example: `  drone-sim modern --dump flight.pave --listen 127.0.0.1:5555`,
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := loadDump(opts.dump)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", opts.listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", opts.listen, err)
			}
			defer ln.Close()

			slog.Info("drone-sim: modern vehicle listening",
				"addr", ln.Addr().String(),
				"frames", len(frames),
			)
			sim := &modernSim{frames: frames, fps: opts.fps, loop: opts.loop}
			return sim.serve(cmd.Context(), ln)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.listen, "listen", fmt.Sprintf(":%d", transport.DefaultPort), "TCP listen address")
	flags.StringVar(&opts.dump, "dump", "", "PaVE stream dump to serve (required)")
	flags.Float64Var(&opts.fps, "fps", 30, "Frame rate (0 = as fast as possible)")
	flags.BoolVar(&opts.loop, "loop", true, "Restart the dump when it ends")
	cmd.MarkFlagRequired("dump")
	return cmd
}

// loadDump reads every frame of a PaVE dump.
func loadDump(path string) ([]*pave.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	defer f.Close()

	r := pave.NewReader(f)
	var frames []*pave.Frame
	for {
		fr, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("read dump: %w", err)
		}
		frames = append(frames, fr)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("dump %s holds no PaVE frames", path)
	}
	if r.Skipped() > 0 {
		slog.Warn("drone-sim: skipped garbage in dump", "bytes", r.Skipped())
	}
	return frames, nil
}

// modernSim streams the same frames to every client, one client at a time.
type modernSim struct {
	frames []*pave.Frame
	fps    float64
	loop   bool
}

func (s *modernSim) serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		slog.Info("drone-sim: client connected", "remote", conn.RemoteAddr().String())
		sent, err := s.stream(ctx, conn)
		conn.Close()
		slog.Info("drone-sim: client gone", "frames_sent", sent, "error", err)
	}
}

func (s *modernSim) stream(ctx context.Context, w io.Writer) (int, error) {
	var interval time.Duration
	if s.fps > 0 {
		interval = time.Duration(float64(time.Second) / s.fps)
	}

	sent := 0
	var buf []byte
	for {
		for _, f := range s.frames {
			if ctx.Err() != nil {
				return sent, nil
			}
			h := f.Header
			h.FrameNumber = uint32(sent + 1)
			buf = pave.AppendFrame(buf[:0], h, f.Payload)
			if _, err := w.Write(buf); err != nil {
				return sent, err
			}
			sent++
			if interval > 0 {
				time.Sleep(interval)
			}
		}
		if !s.loop {
			return sent, nil
		}
	}
}
