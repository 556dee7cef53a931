package streamcapture

import (
	"time"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/internal/warmup"
)

// CalculateFPSStats calculates FPS statistics from frame timestamps
//
// Public wrapper around internal/warmup.CalculateFPSStats.
//
// Stability threshold:
//   - FPS: stddev < 15% of mean FPS
//   - Jitter: mean jitter < 20% of expected interval
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *WarmupStats {
	return toWarmupStats(warmup.CalculateFPSStats(frameTimes, totalDuration))
}

func toWarmupStats(s *warmup.Stats) *WarmupStats {
	if s == nil {
		return nil
	}
	return &WarmupStats{
		FramesReceived: s.FramesReceived,
		Duration:       s.Duration,
		FPSMean:        s.FPSMean,
		FPSStdDev:      s.FPSStdDev,
		FPSMin:         s.FPSMin,
		FPSMax:         s.FPSMax,
		IsStable:       s.IsStable,
		JitterMean:     s.JitterMean,
		JitterStdDev:   s.JitterStdDev,
		JitterMax:      s.JitterMax,
	}
}
