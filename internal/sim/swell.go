package sim

import (
	"math"
	"time"

	"wavebuoy/internal/wave"
)

// Swell generates the raw samples a level buoy would report while riding a
// single sinusoidal swell.
//
// Vertical displacement is (Height/2)*sin(wt+Phase); the accelerometer sees
// its second derivative plus 1 g. Heading is encoded in the magnetometer so
// that atan2(mx, my) returns HeadingDeg.
type Swell struct {
	HeightM      float64
	Period       time.Duration
	SamplePeriod time.Duration
	Count        int
	HeadingDeg   float64
	Phase        float64
	Gravity      float64
}

func (s Swell) withDefaults() Swell {
	if s.Period <= 0 {
		s.Period = 8 * time.Second
	}
	if s.SamplePeriod <= 0 {
		s.SamplePeriod = 100 * time.Millisecond
	}
	if s.Count <= 0 {
		s.Count = 1200
	}
	if s.Gravity <= 0 {
		s.Gravity = wave.DefaultGravity
	}
	return s
}

// VerticalAcceleration returns the earth-frame vertical acceleration in m/s^2
// at t seconds.
func (s Swell) VerticalAcceleration(t float64) float64 {
	s = s.withDefaults()
	w := 2 * math.Pi / s.Period.Seconds()
	return -(s.HeightM / 2) * w * w * math.Sin(w*t+s.Phase)
}

// Displacement returns the vertical displacement in metres at t seconds.
func (s Swell) Displacement(t float64) float64 {
	s = s.withDefaults()
	w := 2 * math.Pi / s.Period.Seconds()
	return (s.HeightM / 2) * math.Sin(w*t+s.Phase)
}

// RawSamples returns Count samples in g-units.
func (s Swell) RawSamples() []wave.RawSample {
	s = s.withDefaults()
	dt := s.SamplePeriod.Seconds()
	hs, hc := math.Sincos(s.HeadingDeg * math.Pi / 180)

	out := make([]wave.RawSample, s.Count)
	for i := range out {
		a := s.VerticalAcceleration(float64(i) * dt)
		out[i] = wave.RawSample{
			Az: float32(1 + a/s.Gravity),
			Mx: float32(hs),
			My: float32(hc),
		}
	}
	return out
}

// Frame wraps RawSamples in a frame header.
func (s Swell) Frame(timestamp, bufferID uint32) wave.Frame {
	s = s.withDefaults()
	return wave.NewFrame(timestamp, uint32(s.SamplePeriod.Milliseconds()), bufferID, s.RawSamples())
}
