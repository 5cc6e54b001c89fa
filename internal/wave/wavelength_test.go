package wave

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepWaterWavelength(t *testing.T) {
	p := DefaultParams()
	assert.InDelta(t, 99.9, p.DeepWaterWavelength(8), 0.2)
	assert.InDelta(t, 0, p.DeepWaterWavelength(0), 1e-12)

	// Deep water is not bounded by the search range.
	got, err := p.Wavelength(30, 0)
	require.NoError(t, err)
	assert.Greater(t, got, float64(p.MaxWavelength))
}

func TestWavelength_FiniteDepthSatisfiesDispersion(t *testing.T) {
	p := DefaultParams()
	for _, tc := range []struct{ period, depth float64 }{
		{8, 10},
		{6, 5},
		{10, 50},
		{12, 200},
	} {
		got, err := p.Wavelength(tc.period, tc.depth)
		require.NoError(t, err, "T=%v d=%v", tc.period, tc.depth)
		assert.Equal(t, math.Trunc(got), got, "result is a whole metre")
		assert.GreaterOrEqual(t, got, float64(p.MinWavelength))
		assert.LessOrEqual(t, got, float64(p.MaxWavelength))

		k := p.Gravity * tc.period * tc.period / (2 * math.Pi)
		resid := math.Abs(k*math.Tanh(2*math.Pi*tc.depth/got) - got)
		assert.Less(t, resid, p.MinAccuracy, "T=%v d=%v L=%v", tc.period, tc.depth, got)

		// Shallower water never yields a longer wave than deep water.
		assert.LessOrEqual(t, got, p.DeepWaterWavelength(tc.period)+1)
	}
}

func TestWavelength_OutOfRange(t *testing.T) {
	p := DefaultParams()
	_, err := p.Wavelength(30, 100)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err=%v want ErrOutOfRange", err)
	}
	var oe *OutOfRangeError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 5, oe.Min)
	assert.Equal(t, 300, oe.Max)
	assert.Equal(t, "out_of_range", Kind(err))
}

func TestWavelength_InvalidDepth(t *testing.T) {
	p := DefaultParams()
	for _, d := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := p.Wavelength(8, d)
		if !errors.Is(err, ErrInvalidDepth) {
			t.Fatalf("depth=%v err=%v want ErrInvalidDepth", d, err)
		}
	}
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.MaxWavelength = 4
	assert.EqualError(t, p.Validate(), "max wavelength must be >= min wavelength")

	p = DefaultParams()
	p.Gravity = 0
	assert.EqualError(t, p.Validate(), "gravity must be > 0")

	_, err := NewAnalyzer(p, nil)
	assert.Error(t, err)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "format", Kind(&FormatError{Reason: "x"}))
	assert.Equal(t, "insufficient_data", Kind(&InsufficientDataError{}))
	assert.Equal(t, "invalid_depth", Kind(ErrInvalidDepth))
	assert.Equal(t, "other", Kind(errors.New("boom")))
}
