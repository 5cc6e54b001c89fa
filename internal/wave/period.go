package wave

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	periodSmoothingSeconds       = 1.0
	displacementSmoothingSeconds = 0.25
)

// MovingAverage returns a new slice where each element is the mean of a
// window of samples around it. The window for index n is
// [n-window/2, n-window/2+window) clipped to the series, so edge samples
// average over a truncated, asymmetric window. A window below 1 is treated as 1.
func MovingAverage(samples []float64, window int) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}
	if window < 1 {
		window = 1
	}
	// cum[i] = sum(samples[:i]).
	cum := make([]float64, len(samples)+1)
	floats.CumSum(cum[1:], samples)

	half := window / 2
	for n := range samples {
		lo := n - half
		hi := lo + window
		if lo < 0 {
			lo = 0
		}
		if hi > len(samples) {
			hi = len(samples)
		}
		out[n] = (cum[hi] - cum[lo]) / float64(hi-lo)
	}
	return out
}

// periodWindow is the moving-average length approximating one second.
func periodWindow(samplePeriodMs uint32) int {
	if samplePeriodMs == 0 {
		return 1
	}
	return int(math.Round(periodSmoothingSeconds * 1000 / float64(samplePeriodMs)))
}

// displacementWindow is the moving-average length approximating a quarter
// second, truncated.
func displacementWindow(samplePeriodMs uint32) int {
	if samplePeriodMs == 0 {
		return 1
	}
	w := displacementSmoothingSeconds * 1000 / float64(samplePeriodMs)
	return int(math.Floor(w + 1e-9))
}

// ZeroCrossings returns every index n where samples[n] and samples[n+1] have
// strictly opposite signs. Zero values never form a crossing.
func ZeroCrossings(samples []float64) []int {
	var idx []int
	for n := 0; n+1 < len(samples); n++ {
		a, b := samples[n], samples[n+1]
		if (a < 0 && b > 0) || (a > 0 && b < 0) {
			idx = append(idx, n)
		}
	}
	return idx
}

// EstimatePeriod returns the dominant period in seconds of a 1-D acceleration
// series using the mean spacing of zero crossings after one second of
// smoothing. Fewer than two crossings yields *InsufficientDataError.
func EstimatePeriod(samples []float64, samplePeriodMs uint32) (float64, error) {
	smoothed := MovingAverage(samples, periodWindow(samplePeriodMs))
	crossings := ZeroCrossings(smoothed)
	if len(crossings) < 2 {
		return 0, &InsufficientDataError{Crossings: len(crossings), Samples: len(samples)}
	}

	// Sum of consecutive gaps telescopes to last-first.
	meanGap := float64(crossings[len(crossings)-1]-crossings[0]) / float64(len(crossings)-1)
	// A crossing-to-crossing gap is half a period.
	return meanGap * 2 * float64(samplePeriodMs) * 0.001, nil
}
