// Command drone-video acquires video from an AR.Drone and keeps the latest
// frame available for snapshots and telemetry.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/e7canasta/ardrone-video/modules/stream-capture/decoder/ffmpeg"
	_ "github.com/e7canasta/ardrone-video/modules/stream-capture/decoder/gstreamer"
)

// Version information
var version = "v0.1.0"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "drone-video",
		Short: "AR.Drone video acquisition",
		Long: `drone-video connects to an AR.Drone video channel, decodes the stream
(UVLC over UDP for first generation vehicles, PaVE framed H.264 over TCP for
second generation vehicles) and exposes the latest frame as snapshots.`,
		SilenceUsage: true,
	}

	root.AddCommand(newCaptureCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
