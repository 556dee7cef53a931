package warmup

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation as a fraction of mean FPS.
	// A stream is considered stable if stddev < 15% of mean FPS.
	// Example: 15 FPS mean → stable if stddev < 2.25 FPS
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of expected interval.
	// A stream is considered stable if mean jitter < 20% of expected inter-frame interval.
	// Example: 15 FPS (66ms interval) → stable if jitter < 13ms
	jitterStabilityThreshold = 0.20
)

// CalculateFPSStats calculates FPS statistics from frame timestamps
//
// Stability threshold:
//   - FPS: stddev of instantaneous FPS around the mean rate < 15% of mean FPS
//   - Jitter: mean |interval - expected interval| < 20% of expected interval
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *Stats {
	n := len(frameTimes)
	stats := &Stats{
		FramesReceived: n,
		Duration:       totalDuration,
	}
	if n == 0 || totalDuration <= 0 {
		return stats
	}

	stats.FPSMean = float64(n) / totalDuration.Seconds()

	intervals := make([]float64, 0, n-1)
	instantaneousFPS := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		intervals = append(intervals, interval)
		if interval > 0 {
			instantaneousFPS = append(instantaneousFPS, 1.0/interval)
		}
	}

	if len(instantaneousFPS) == 0 {
		return stats
	}

	stats.FPSMin = floats.Min(instantaneousFPS)
	stats.FPSMax = floats.Max(instantaneousFPS)
	// Spread around the overall rate, not around the sample mean.
	stats.FPSStdDev = math.Sqrt(stat.MomentAbout(2, instantaneousFPS, stats.FPSMean, nil))

	expectedInterval := 1.0 / stats.FPSMean
	jitters := make([]float64, len(intervals))
	for i, interval := range intervals {
		jitters[i] = math.Abs(interval - expectedInterval)
	}
	stats.JitterMean = stat.Mean(jitters, nil)
	stats.JitterStdDev = math.Sqrt(stat.MomentAbout(2, jitters, stats.JitterMean, nil))
	stats.JitterMax = floats.Max(jitters)

	fpsStable := stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold
	jitterStable := stats.JitterMean < expectedInterval*jitterStabilityThreshold
	stats.IsStable = fpsStable && jitterStable

	return stats
}
