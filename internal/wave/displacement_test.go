package wave

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verticalOnly(z []float64) []EarthAcceleration {
	out := make([]EarthAcceleration, len(z))
	for i, v := range z {
		out[i] = EarthAcceleration{Z: v}
	}
	return out
}

func TestDisplacementStationary(t *testing.T) {
	p := DefaultParams()
	acc := verticalOnly(sinusoid(600, 8, 100, 0.1, 0))

	disp, err := p.Displacement(acc, 100)
	require.NoError(t, err)
	require.Len(t, disp, len(acc))
	for i, d := range disp {
		require.Zerof(t, d, "disp[%d]", i)
	}

	disp, err = p.Displacement(nil, 100)
	require.NoError(t, err)
	assert.Empty(t, disp)
}

func TestDisplacementSinusoid(t *testing.T) {
	p := DefaultParams()
	const periodS, amp = 8.0, 1.0
	acc := verticalOnly(sinusoid(1200, periodS, 100, amp, 0.3))

	disp, err := p.Displacement(acc, 100)
	require.NoError(t, err)
	require.Len(t, disp, len(acc))

	w := 2 * math.Pi / periodS
	var peak float64
	for _, d := range disp {
		peak = math.Max(peak, math.Abs(d))
	}
	assert.InEpsilon(t, amp/(w*w), peak, 0.05)

	// Displacement is in antiphase with acceleration.
	for i := 100; i < len(disp)-100; i += 37 {
		if math.Abs(acc[i].Z) < 0.5 {
			continue
		}
		assert.Truef(t, disp[i]*acc[i].Z < 0, "sample %d: acc=%v disp=%v", i, acc[i].Z, disp[i])
	}
}

func TestDisplacementNoCrossings(t *testing.T) {
	p := DefaultParams()
	z := make([]float64, 300)
	for i := range z {
		z[i] = 1
	}
	_, err := p.Displacement(verticalOnly(z), 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData), "err=%v", err)
}
