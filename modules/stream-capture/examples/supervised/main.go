package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/ardrone-video/modules/eventbus"
	streamcapture "github.com/e7canasta/ardrone-video/modules/stream-capture"
	_ "github.com/e7canasta/ardrone-video/modules/stream-capture/decoder/gstreamer"
)

// Keeps a vehicle connected across link drops and prints lifecycle events.
func main() {
	address := flag.String("address", "192.168.1.1", "Vehicle address")
	firmware := flag.String("firmware", "2.4.8", "Vehicle firmware version")
	retries := flag.Int("retries", 5, "Consecutive failed attempts before giving up")
	flag.Parse()

	gen, err := streamcapture.ParseGeneration(*firmware)
	if err != nil {
		log.Fatalf("Invalid firmware: %v", err)
	}

	cfg := streamcapture.DefaultConfig()
	cfg.Address = *address
	cfg.Generation = gen

	rc := streamcapture.DefaultReconnectConfig()
	rc.MaxRetries = *retries

	sup, err := streamcapture.NewSupervisor(cfg, rc)
	if err != nil {
		log.Fatalf("Failed to create supervisor: %v", err)
	}

	events := make(chan eventbus.Event, 8)
	if err := sup.Events().Subscribe("example", events); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			fmt.Printf("🔔 %-10s session=%s %s", ev.Kind, ev.SessionID, ev.Reason)
			if ev.Kind == eventbus.KindRestarting {
				fmt.Printf(" attempt=%d", ev.Attempt)
			}
			fmt.Println()

		case <-ticker.C:
			if frame, err := sup.GetFrame(); err == nil && frame.Seq > 0 {
				st := sup.Stats()
				fmt.Printf("📷 seq=%d %dx%d fps=%.1f reconnects=%d\n",
					frame.Seq, frame.Width, frame.Height, st.FPSReal, st.Reconnects)
			}

		case err := <-done:
			if err != nil {
				log.Fatalf("Supervisor gave up: %v", err)
			}
			fmt.Println("✅ Stopped")
			return
		}
	}
}
