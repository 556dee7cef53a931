package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/e7canasta/ardrone-video/internal/config"
	"github.com/e7canasta/ardrone-video/modules/eventbus"
	streamcapture "github.com/e7canasta/ardrone-video/modules/stream-capture"
)

func printBanner(out io.Writer, cfg *config.Config, sc streamcapture.Config) {
	title := color.New(color.FgCyan, color.Bold)

	fmt.Fprintf(out, "\n")
	title.Fprintf(out, "drone-video %s\n", version)
	fmt.Fprintf(out, "\nConfiguration:\n")
	if sc.ReplayFile != "" {
		fmt.Fprintf(out, "  Replay:        %s (paced: %v)\n", sc.ReplayFile, sc.ReplayPace)
	} else {
		fmt.Fprintf(out, "  Vehicle:       %s:%d\n", sc.Address, sc.Port)
	}
	fmt.Fprintf(out, "  Generation:    %s\n", sc.Generation)
	if sc.Generation == streamcapture.GenerationModern {
		fmt.Fprintf(out, "  Decoder:       %s\n", sc.Decoder)
	}
	if sc.Width > 0 {
		fmt.Fprintf(out, "  Output Size:   %dx%d\n", sc.Width, sc.Height)
	} else {
		fmt.Fprintf(out, "  Output Size:   stream resolution\n")
	}
	if cfg.Snapshots.Dir != "" {
		fmt.Fprintf(out, "  Output Dir:    %s (%s every %s)\n", cfg.Snapshots.Dir, cfg.Snapshots.Format, cfg.Snapshots.Interval)
	} else {
		fmt.Fprintf(out, "  Output Dir:    (none - frames not saved)\n")
	}
	fmt.Fprintf(out, "  Reconnect:     %v\n", cfg.Reconnect.Enabled)
	if cfg.MQTT.Broker != "" {
		fmt.Fprintf(out, "  MQTT:          %s (%s/%s)\n", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix, cfg.Vehicle.Name)
	}
	fmt.Fprintf(out, "\n")
}

func printEvent(out io.Writer, ev eventbus.Event) {
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Kind {
	case eventbus.KindStarted:
		color.New(color.FgGreen).Fprintf(out, "[%s] ● started   session=%s %s %dx%d\n",
			ts, ev.SessionID, ev.Generation, ev.Width, ev.Height)
	case eventbus.KindStopped:
		c := color.New(color.Faint)
		if ev.Reason == streamcapture.StopTransportFailure.String() {
			c = color.New(color.FgRed)
		}
		c.Fprintf(out, "[%s] ■ stopped   session=%s reason=%s", ts, ev.SessionID, ev.Reason)
		if ev.Err != nil {
			c.Fprintf(out, " error=%v", ev.Err)
		}
		fmt.Fprintln(out)
	case eventbus.KindRestarting:
		color.New(color.FgYellow).Fprintf(out, "[%s] ↻ restarting attempt=%d", ts, ev.Attempt)
		if ev.Err != nil {
			color.New(color.FgYellow).Fprintf(out, " after: %v", ev.Err)
		}
		fmt.Fprintln(out)
	}
}

func drainEvents(out io.Writer, events <-chan eventbus.Event) {
	for {
		select {
		case ev := <-events:
			printEvent(out, ev)
		default:
			return
		}
	}
}

func printWarmup(out io.Writer, ws *streamcapture.WarmupStats) {
	if ws == nil {
		return
	}
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "╭─────────────────────────────────────────────────────────╮\n")
	fmt.Fprintf(out, "│ Warmup Complete\n")
	fmt.Fprintf(out, "├─────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(out, "│ Frames Received:    %6d frames\n", ws.FramesReceived)
	fmt.Fprintf(out, "│ Duration:           %6.1f seconds\n", ws.Duration.Seconds())
	fmt.Fprintf(out, "│ FPS Mean:           %6.2f fps\n", ws.FPSMean)
	fmt.Fprintf(out, "│ FPS StdDev:         %6.2f fps\n", ws.FPSStdDev)
	fmt.Fprintf(out, "│ FPS Range:          %6.1f - %.1f fps\n", ws.FPSMin, ws.FPSMax)
	fmt.Fprintf(out, "│ Jitter Mean:        %6.3f s\n", ws.JitterMean)
	fmt.Fprintf(out, "│ Jitter Max:         %6.3f s\n", ws.JitterMax)
	fmt.Fprintf(out, "│ Stable:             %6v\n", ws.IsStable)
	fmt.Fprintf(out, "╰─────────────────────────────────────────────────────────╯\n")
	if !ws.IsStable {
		color.New(color.FgYellow).Fprintf(out, "\n⚠️  WARNING: Stream is unstable (high FPS variance or jitter)\n")
	}
	fmt.Fprintf(out, "\n")
}

func printStats(out io.Writer, st streamcapture.Stats) {
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "╭─────────────────────────────────────────────────────────╮\n")
	fmt.Fprintf(out, "│ Stream Statistics (Uptime: %s)\n", st.Uptime.Round(time.Second))
	fmt.Fprintf(out, "├─────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(out, "│ State:              %s\n", st.State)
	fmt.Fprintf(out, "│ Decoder:            %s\n", st.Decoder)
	fmt.Fprintf(out, "│ Resolution:         %s -> %s\n", st.Resolution, st.TargetResolution)
	fmt.Fprintf(out, "│ Packets Read:       %6d (%d empty)\n", st.PacketsRead, st.EmptyReads)
	fmt.Fprintf(out, "│ Frames Published:   %6d frames\n", st.FramesPublished)
	fmt.Fprintf(out, "│ Frames Overwritten: %6d frames\n", st.FramesOverwritten)
	fmt.Fprintf(out, "│ Decode Errors:      %6d\n", st.DecodeErrors)
	fmt.Fprintf(out, "│ Real FPS:           %6.2f fps\n", st.FPSReal)
	fmt.Fprintf(out, "│ Latency:            %6d ms\n", st.LatencyMS)
	fmt.Fprintf(out, "│ Bytes Read:         %6.2f MB\n", float64(st.BytesRead)/1024/1024)
	fmt.Fprintf(out, "│ Reconnects:         %6d\n", st.Reconnects)
	totalErrors := st.ErrorsNetwork + st.ErrorsCodec + st.ErrorsResource + st.ErrorsUnknown
	if totalErrors > 0 {
		fmt.Fprintf(out, "├─────────────────────────────────────────────────────────┤\n")
		fmt.Fprintf(out, "│ Network Errors:     %6d\n", st.ErrorsNetwork)
		fmt.Fprintf(out, "│ Codec Errors:       %6d\n", st.ErrorsCodec)
		fmt.Fprintf(out, "│ Resource Errors:    %6d\n", st.ErrorsResource)
		fmt.Fprintf(out, "│ Unknown Errors:     %6d\n", st.ErrorsUnknown)
	}
	fmt.Fprintf(out, "╰─────────────────────────────────────────────────────────╯\n")
	fmt.Fprintf(out, "\n")
}

func printFinal(out io.Writer, st streamcapture.Stats, snaps *snapshotWriter) {
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "                     Final Statistics                      \n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "  Stop Reason:        %s\n", st.StopReason)
	fmt.Fprintf(out, "  Total Uptime:       %s\n", st.Uptime.Round(time.Second))
	fmt.Fprintf(out, "  Frames Published:   %d frames\n", st.FramesPublished)
	if snaps != nil {
		fmt.Fprintf(out, "  Snapshots Saved:    %d\n", snaps.saved)
		fmt.Fprintf(out, "  Snapshots Failed:   %d\n", snaps.failed)
	}
	fmt.Fprintf(out, "  Average FPS:        %.2f fps\n", st.FPSReal)
	fmt.Fprintf(out, "  Bytes Read:         %.2f MB\n", float64(st.BytesRead)/1024/1024)
	fmt.Fprintf(out, "  Reconnection Count: %d\n", st.Reconnects)
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "\n")
}
