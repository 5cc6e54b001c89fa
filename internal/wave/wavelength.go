package wave

import "math"

// DeepWaterWavelength is the deep-water dispersion asymptote g*T^2/(2*pi).
func (p Params) DeepWaterWavelength(period float64) float64 {
	return (p.Gravity / (2 * math.Pi)) * period * period
}

// Wavelength returns the wavelength in metres for a period and water depth.
// A depth of 0 means deep water. For finite depth the dispersion relation
//
//	L = (g*T^2 / 2*pi) * tanh(2*pi*d / L)
//
// is searched on a 1 m grid in [MinWavelength, MaxWavelength]; the best n must
// beat MinAccuracy or *OutOfRangeError is returned.
func (p Params) Wavelength(period, depth float64) (float64, error) {
	if math.IsNaN(depth) || math.IsInf(depth, 0) || depth < 0 {
		return 0, ErrInvalidDepth
	}
	if depth == 0 {
		return p.DeepWaterWavelength(period), nil
	}

	k := p.Gravity * period * period / (2 * math.Pi)
	best := p.MinAccuracy
	found := -1
	for n := p.MinWavelength; n <= p.MaxWavelength; n++ {
		candidate := k * math.Tanh(2*math.Pi*depth/float64(n))
		if diff := math.Abs(candidate - float64(n)); diff < best {
			best = diff
			found = n
		}
	}
	if found < 0 {
		return 0, &OutOfRangeError{Period: period, Depth: depth, Min: p.MinWavelength, Max: p.MaxWavelength}
	}
	return float64(found), nil
}
