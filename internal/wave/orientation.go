package wave

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Orientation is the sensor attitude in radians. Heading includes the
// magnetic declination correction and lies in (-pi, pi].
type Orientation struct {
	Roll    float64
	Pitch   float64
	Heading float64
}

// EarthAcceleration is acceleration in m/s^2 in the earth frame with gravity
// removed from Z.
type EarthAcceleration struct {
	X, Y, Z float64
}

// OrientationOf derives roll and pitch from the accelerometer (gravity vector)
// and heading from the magnetometer.
func OrientationOf(s RawSample, declinationDeg float64) Orientation {
	ax, ay, az := float64(s.Ax), float64(s.Ay), float64(s.Az)
	heading := math.Atan2(float64(s.Mx), float64(s.My)) + declinationDeg*math.Pi/180
	return Orientation{
		Roll:    math.Atan2(ay, az),
		Pitch:   math.Atan2(-ax, math.Sqrt(ay*ay+az*az)),
		Heading: wrapPi(heading),
	}
}

// wrapPi folds a into (-pi, pi] with a single 2*pi step; inputs are at most
// one turn out of range (atan2 plus a declination of at most 180 degrees).
func wrapPi(a float64) float64 {
	if a > math.Pi {
		return a - 2*math.Pi
	}
	if a <= -math.Pi {
		return a + 2*math.Pi
	}
	return a
}

// RotationMatrix returns the Z-Y-X (yaw, pitch, roll) rotation matrix.
func RotationMatrix(yaw, pitch, roll float64) *mat.Dense {
	s1, c1 := math.Sincos(yaw)
	s2, c2 := math.Sincos(pitch)
	s3, c3 := math.Sincos(roll)
	return mat.NewDense(3, 3, []float64{
		c1 * c2, c1*s2*s3 - s1*c3, c1*s2*c3 + s1*s3,
		s1 * c2, s1*s2*s3 + c1*c3, s1*s2*c3 - c1*s3,
		-s2, c2 * s3, c2 * c3,
	})
}

// Corrector rotates raw body-frame samples into the earth frame and removes
// gravity. There is no gimbal-lock handling: it is meant for the small
// roll/pitch of a floating buoy.
type Corrector struct {
	Gravity        float64
	DeclinationDeg float64
}

// Correct returns one EarthAcceleration per sample, in order.
func (c Corrector) Correct(samples []RawSample) []EarthAcceleration {
	g := c.Gravity
	if g == 0 {
		g = DefaultGravity
	}
	out := make([]EarthAcceleration, len(samples))
	a := mat.NewVecDense(3, nil)
	var r mat.VecDense
	for i, s := range samples {
		o := OrientationOf(s, c.DeclinationDeg)
		// Body -> earth uses the inverse of the measured attitude.
		rot := RotationMatrix(-o.Heading, -o.Pitch, -o.Roll)
		a.SetVec(0, float64(s.Ax))
		a.SetVec(1, float64(s.Ay))
		a.SetVec(2, float64(s.Az))
		r.MulVec(rot, a)
		out[i] = EarthAcceleration{
			X: r.AtVec(0) * g,
			Y: r.AtVec(1) * g,
			Z: r.AtVec(2)*g - g,
		}
	}
	return out
}

// Orientations returns the attitude of every sample.
func Orientations(samples []RawSample, declinationDeg float64) []Orientation {
	out := make([]Orientation, len(samples))
	for i, s := range samples {
		out[i] = OrientationOf(s, declinationDeg)
	}
	return out
}

// Vertical extracts the Z channel.
func Vertical(acc []EarthAcceleration) []float64 {
	z := make([]float64, len(acc))
	for i, a := range acc {
		z[i] = a.Z
	}
	return z
}
