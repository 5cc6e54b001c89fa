package wave

import "math"

// Displacement converts earth-frame acceleration into a vertical displacement
// series (metres), index-aligned with acc.
//
// The vertical channel is smoothed over a quarter second. If every smoothed
// sample is below MinAcceleration the buoy is considered stationary and an
// all-zero series is returned. Otherwise each sample is divided by -w^2, with
// w taken from the estimated period: a harmonic-motion inversion that only
// holds for a single dominant frequency.
func (p Params) Displacement(acc []EarthAcceleration, samplePeriodMs uint32) ([]float64, error) {
	smoothed := MovingAverage(Vertical(acc), displacementWindow(samplePeriodMs))

	disp := make([]float64, len(smoothed))
	if p.stationary(smoothed) {
		return disp, nil
	}

	period, err := EstimatePeriod(smoothed, samplePeriodMs)
	if err != nil {
		return nil, err
	}

	w := 2 * math.Pi / period
	for i, a := range smoothed {
		disp[i] = a / -(w * w)
	}
	return disp, nil
}

func (p Params) stationary(smoothed []float64) bool {
	for _, a := range smoothed {
		if math.Abs(a) >= p.MinAcceleration {
			return false
		}
	}
	return true
}
