// Package warmup measures how steadily decoded frames arrive.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnstable is returned by Measure when the frame rate is not stable.
var ErrUnstable = errors.New("warmup: stream FPS unstable")

// Frame is the part of a published frame warmup looks at.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
}

// NextFunc blocks until a frame newer than after is available.
type NextFunc func(ctx context.Context, after uint64) (Frame, error)

// Stats contains statistics collected during warm-up phase
type Stats struct {
	FramesReceived int           // Number of frames received during warm-up
	Duration       time.Duration // Actual warm-up duration
	FPSMean        float64       // Mean FPS across all frames
	FPSStdDev      float64       // Standard deviation of FPS
	FPSMin         float64       // Minimum instantaneous FPS
	FPSMax         float64       // Maximum instantaneous FPS
	IsStable       bool          // True if FPS is stable (stddev < 15% of mean AND jitter < 20%)
	JitterMean     float64       // Average inter-frame interval variance (seconds)
	JitterStdDev   float64       // Standard deviation of jitter (seconds)
	JitterMax      float64       // Maximum jitter observed (seconds)
}

// Measure follows the published frames for duration and computes their
// rate statistics.
//
// Frames skipped by a latest-wins source are not seen; the measured rate
// is the rate a consumer polling as fast as it can would observe.
//
// Returns the statistics, or an error if:
//   - The source fails (stream closed)
//   - Fewer than 2 frames arrive
//   - The rate is unstable (the statistics are returned too)
func Measure(ctx context.Context, next NextFunc, duration time.Duration) (*Stats, error) {
	slog.Info("warmup: starting stream warm-up",
		"duration", duration,
		"reason", "measure real FPS before consuming frames",
	)

	start := time.Now()
	frameTimes := make([]time.Time, 0, 100)

	warmupCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var seq uint64
	for {
		f, err := next(warmupCtx, seq)
		if err != nil {
			if warmupCtx.Err() != nil && ctx.Err() == nil {
				break // duration elapsed
			}
			return nil, fmt.Errorf("warmup: %w", err)
		}
		seq = f.Seq
		frameTimes = append(frameTimes, f.Timestamp)

		slog.Debug("warmup: frame received",
			"seq", f.Seq,
			"frames_collected", len(frameTimes),
		)
	}

	elapsed := time.Since(start)

	if len(frameTimes) < 2 {
		return nil, fmt.Errorf(
			"warmup: not enough frames received (got %d, need at least 2)",
			len(frameTimes),
		)
	}

	stats := CalculateFPSStats(frameTimes, elapsed)

	slog.Info("warmup: stream warm-up complete",
		"frames", stats.FramesReceived,
		"duration", stats.Duration,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"jitter_mean", fmt.Sprintf("%.3fs", stats.JitterMean),
		"stable", stats.IsStable,
	)

	if !stats.IsStable {
		return stats, fmt.Errorf(
			"%w (mean=%.2f Hz, stddev=%.2f, jitter=%.3fs, threshold: FPS<15%%, jitter<20%%)",
			ErrUnstable,
			stats.FPSMean,
			stats.FPSStdDev,
			stats.JitterMean,
		)
	}

	return stats, nil
}
