package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/e7canasta/ardrone-video/internal/config"
	"github.com/e7canasta/ardrone-video/internal/emitter"
	"github.com/e7canasta/ardrone-video/modules/eventbus"
	streamcapture "github.com/e7canasta/ardrone-video/modules/stream-capture"
)

type captureOptions struct {
	configPath  string
	address     string
	generation  string
	firmware    string
	decoder     string
	width       int
	height      int
	replay      string
	pace        bool
	output      string
	format      string
	jpegQuality int
	interval    time.Duration
	duration    time.Duration
	warmup      time.Duration
	reconnect   bool
	mqttBroker  string
	debug       bool
}

// frameSource is satisfied by both a bare session and a supervisor.
type frameSource interface {
	GetFrame() (*streamcapture.Frame, error)
	Stats() streamcapture.Stats
	Events() eventbus.Bus
}

func newCaptureCommand() *cobra.Command {
	return captureCommand(&captureOptions{})
}

func captureCommand(opts *captureOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Acquire video and save periodic snapshots",
		Example: `  drone-video capture --address 192.168.1.1 --firmware 2.4.8
  drone-video capture --generation legacy --output ./frames --interval 500ms
  drone-video capture --config drone-video.yaml --reconnect
  drone-video capture --generation modern --replay flight.pave --output ./frames`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&opts.address, "address", "a", "", "Vehicle address (default 192.168.1.1)")
	flags.StringVarP(&opts.generation, "generation", "g", "", "Vehicle generation: legacy, modern, auto")
	flags.StringVar(&opts.firmware, "firmware", "", "Vehicle firmware version, selects the generation when auto")
	flags.StringVar(&opts.decoder, "decoder", "", "H.264 decoder backend: gstreamer, ffmpeg")
	flags.IntVar(&opts.width, "width", 0, "Output width (0 = stream resolution)")
	flags.IntVar(&opts.height, "height", 0, "Output height (0 = stream resolution)")
	flags.StringVar(&opts.replay, "replay", "", "Replay a pcap capture (legacy) or PaVE dump (modern) instead of the network")
	flags.BoolVar(&opts.pace, "pace", false, "Replay at the recorded rate")
	flags.StringVarP(&opts.output, "output", "o", "", "Directory to save snapshots (optional)")
	flags.StringVar(&opts.format, "format", "", "Snapshot format: png, jpeg")
	flags.IntVar(&opts.jpegQuality, "jpeg-quality", 90, "JPEG quality (1-100)")
	flags.DurationVar(&opts.interval, "interval", 0, "Snapshot interval (default 1s)")
	flags.DurationVar(&opts.duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	flags.DurationVar(&opts.warmup, "warmup", 0, "Measure frame rate stability for this long before capturing")
	flags.BoolVar(&opts.reconnect, "reconnect", false, "Restart the session after transport failures")
	flags.StringVar(&opts.mqttBroker, "mqtt-broker", "", "Publish events and stats to this MQTT broker (host:port)")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.RegisterFlagCompletionFunc("generation", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"legacy", "modern", "auto"}, cobra.ShellCompDirectiveNoFileComp
	})
	cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"png", "jpeg"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// load reads the config file (or defaults) and applies every flag that was
// set explicitly on top of it.
func (o *captureOptions) load(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := flags.Changed
	if set("address") {
		cfg.Vehicle.Address = o.address
	}
	if set("generation") {
		cfg.Vehicle.Generation = o.generation
	}
	if set("firmware") {
		cfg.Vehicle.Firmware = o.firmware
		if !set("generation") {
			cfg.Vehicle.Generation = "auto"
		}
	}
	if set("decoder") {
		cfg.Stream.Decoder = o.decoder
	}
	if set("width") {
		cfg.Stream.Width = o.width
	}
	if set("height") {
		cfg.Stream.Height = o.height
	}
	if set("replay") {
		cfg.Replay.File = o.replay
	}
	if set("pace") {
		cfg.Replay.Pace = o.pace
	}
	if set("output") {
		cfg.Snapshots.Dir = o.output
	}
	if set("format") {
		cfg.Snapshots.Format = o.format
	}
	if set("interval") {
		cfg.Snapshots.Interval = o.interval
	}
	if set("warmup") {
		cfg.Stream.WarmupDuration = o.warmup
	}
	if set("reconnect") {
		cfg.Reconnect.Enabled = o.reconnect
	}
	if set("mqtt-broker") {
		cfg.MQTT.Broker = o.mqttBroker
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger writes text logs to a terminal and JSON logs otherwise, so
// redirected output stays machine readable.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func runCapture(cmd *cobra.Command, opts *captureOptions) error {
	cfg, err := opts.load(cmd.Flags())
	if err != nil {
		return err
	}

	logger := newLogger(opts.debug)
	slog.SetDefault(logger)

	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	sc.Logger = logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	printBanner(out, cfg, sc)

	var snaps *snapshotWriter
	if cfg.Snapshots.Dir != "" {
		snaps, err = newSnapshotWriter(cfg.Snapshots.Dir, cfg.Snapshots.Format, opts.jpegQuality)
		if err != nil {
			return err
		}
	}

	// Build the source first so subscribers see the started event.
	var (
		src      frameSource
		start    func() error
		finished = make(chan error, 1)
		shutdown func() error
	)
	if cfg.Reconnect.Enabled {
		sup, err := streamcapture.NewSupervisor(sc, cfg.SupervisorConfig())
		if err != nil {
			return err
		}
		src = sup
		runDone := make(chan struct{})
		start = func() error {
			go func() {
				defer close(runDone)
				finished <- sup.Run(ctx)
			}()
			return nil
		}
		shutdown = func() error {
			sup.Stop()
			<-runDone
			return nil
		}
	} else {
		sess, err := streamcapture.NewSession(sc)
		if err != nil {
			return err
		}
		src = sess
		start = func() error {
			if err := sess.Initialize(ctx); err != nil {
				sess.Finalize()
				return err
			}
			go func() {
				<-sess.Done()
				finished <- sess.Err()
			}()
			return nil
		}
		shutdown = sess.Finalize
	}

	events := make(chan eventbus.Event, 16)
	if err := src.Events().Subscribe("cli", events); err != nil {
		return err
	}

	emitCtx, stopEmitter := context.WithCancel(context.Background())
	emitDone := make(chan struct{})
	close(emitDone)
	if cfg.MQTT.Broker != "" {
		em, err := connectEmitter(ctx, cfg)
		if err != nil {
			return err
		}
		defer em.Disconnect()

		mqttEvents := make(chan eventbus.Event, 16)
		if err := src.Events().Subscribe("mqtt-emitter", mqttEvents); err != nil {
			return err
		}
		emitDone = make(chan struct{})
		go func() {
			defer close(emitDone)
			em.Run(emitCtx, mqttEvents, src.Stats, 5*time.Second)
		}()
	}
	defer func() {
		stopEmitter()
		<-emitDone
	}()

	if err := start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	if cfg.Stream.WarmupDuration > 0 {
		if sess, ok := src.(*streamcapture.Session); ok {
			fmt.Fprintf(out, "\nRunning warmup (%s) to measure stream stability...\n", cfg.Stream.WarmupDuration)
			ws, err := sess.Warmup(ctx, cfg.Stream.WarmupDuration)
			if err != nil && !errors.Is(err, streamcapture.ErrUnstable) {
				shutdown()
				return fmt.Errorf("warmup failed: %w", err)
			}
			printWarmup(out, ws)
		}
	}

	fmt.Fprintf(out, "Starting frame capture...\n")
	fmt.Fprintf(out, "Press Ctrl+C to stop gracefully\n\n")

	runErr := captureLoop(ctx, out, src, snaps, cfg.Snapshots.Interval, events, finished)

	if err := shutdown(); err != nil {
		slog.Error("capture: release failed", "error", err)
	}
	drainEvents(out, events)

	printFinal(out, src.Stats(), snaps)
	return runErr
}

func connectEmitter(ctx context.Context, cfg *config.Config) (*emitter.MQTTEmitter, error) {
	em := emitter.NewMQTTEmitter(emitter.Config{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Vehicle:     cfg.Vehicle.Name,
		QoS:         cfg.MQTT.QoS,
	})
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := em.Connect(connectCtx); err != nil {
		return nil, err
	}
	return em, nil
}

// captureLoop polls the latest frame every interval until ctx is done or
// the source finishes. Its error is the source's terminal error, if any.
func captureLoop(ctx context.Context, out io.Writer, src frameSource, snaps *snapshotWriter, interval time.Duration, events <-chan eventbus.Event, finished <-chan error) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\nStopping capture...\n")
			return nil

		case err := <-finished:
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				color.New(color.FgRed).Fprintf(out, "\nCapture ended: %v\n", err)
			}
			return err

		case ev := <-events:
			printEvent(out, ev)

		case <-statsTicker.C:
			printStats(out, src.Stats())

		case <-ticker.C:
			frame, err := src.GetFrame()
			if err != nil {
				slog.Debug("capture: no frame", "error", err)
				continue
			}
			if frame.Seq == 0 || frame.Seq == lastSeq {
				continue
			}
			lastSeq = frame.Seq

			fmt.Fprintf(out, "[%s] Frame seq %-8d | %dx%d | %s\n",
				time.Now().Format("15:04:05"),
				frame.Seq,
				frame.Width, frame.Height,
				frame.Timestamp.Format("15:04:05.000"),
			)

			if snaps != nil {
				path, err := snaps.save(frame)
				if err != nil {
					slog.Error("capture: failed to save frame", "error", err, "seq", frame.Seq)
					continue
				}
				slog.Debug("capture: snapshot saved", "path", path)
			}
		}
	}
}
