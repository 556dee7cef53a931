package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and available H.264 decoders",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "drone-video %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "decoders: %v\n", codec.Names())
		},
	}
}
