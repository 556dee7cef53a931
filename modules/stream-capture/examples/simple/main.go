package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	streamcapture "github.com/e7canasta/ardrone-video/modules/stream-capture"
	_ "github.com/e7canasta/ardrone-video/modules/stream-capture/decoder/gstreamer"
)

func main() {
	address := flag.String("address", "192.168.1.1", "Vehicle address")
	generation := flag.String("generation", "modern", "Vehicle generation: legacy, modern, or a firmware version")
	width := flag.Int("width", 0, "Output width (0 = stream resolution)")
	height := flag.Int("height", 0, "Output height (0 = stream resolution)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	gen, err := streamcapture.ParseGeneration(*generation)
	if err != nil {
		log.Fatalf("Invalid generation: %v", err)
	}

	cfg := streamcapture.DefaultConfig()
	cfg.Address = *address
	cfg.Generation = gen
	cfg.Width = *width
	cfg.Height = *height

	fmt.Printf("🎥 Drone Video Example\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Vehicle:    %s\n", *address)
	fmt.Printf("Generation: %s\n", gen)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	session, err := streamcapture.NewSession(cfg)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := session.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize session: %v", err)
	}
	defer func() {
		if err := session.Finalize(); err != nil {
			log.Printf("Error releasing session: %v", err)
		}
	}()

	fmt.Printf("\n✅ Session running!\n")
	fmt.Printf("Press Ctrl+C to stop\n\n")

	// Stop the blocking NextFrame wait when the session ends on its own.
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	consumed := 0
	var seq uint64
	for {
		frame, err := session.NextFrame(ctx, seq)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Info("frame wait ended", "error", err)
			}
			break
		}
		seq = frame.Seq
		consumed++

		if consumed%10 == 0 {
			fmt.Printf("📷 Frame %d: seq=%d, %dx%d, timestamp=%s, trace_id=%s\n",
				consumed,
				frame.Seq,
				frame.Width, frame.Height,
				frame.Timestamp.Format("15:04:05.000"),
				frame.TraceID[:8],
			)
		}

		select {
		case <-statsTicker.C:
			stats := session.Stats()
			fmt.Printf("📊 Statistics:\n")
			fmt.Printf("   Frames published: %d (consumed: %d)\n", stats.FramesPublished, consumed)
			fmt.Printf("   FPS (measured):   %.2f Hz\n", stats.FPSReal)
			fmt.Printf("   Resolution:       %s\n", stats.Resolution)
			fmt.Printf("   Latency:          %d ms\n", stats.LatencyMS)
			fmt.Printf("   Bytes read:       %.2f MB\n\n", float64(stats.BytesRead)/(1024*1024))
		default:
		}
	}

	if reason := session.StopReason(); reason == streamcapture.StopTransportFailure {
		fmt.Printf("\n🛑 Session stopped: %v\n", session.Err())
	}

	stats := session.Stats()
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Total frames:     %d (published) / %d (consumed)\n", stats.FramesPublished, consumed)
	fmt.Printf("Duration:         %s\n", stats.Uptime.Round(time.Second))
	fmt.Printf("Average FPS:      %.2f Hz\n", stats.FPSReal)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
}
