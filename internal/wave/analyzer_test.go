package wave_test

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavebuoy/internal/sim"
	"wavebuoy/internal/wave"
)

func encode(f wave.Frame) []byte {
	return wave.NewDecoder(binary.LittleEndian).Encode(f)
}

func swellFrame(heightM float64, period time.Duration) []byte {
	s := sim.Swell{
		HeightM:      heightM,
		Period:       period,
		SamplePeriod: 100 * time.Millisecond,
		Count:        1200,
		HeadingDeg:   30,
		Phase:        0.3,
	}
	return encode(s.Frame(1000, 1))
}

func restFrame(n int, az float32) []byte {
	samples := make([]wave.RawSample, n)
	for i := range samples {
		samples[i] = wave.RawSample{Az: az, My: 1}
	}
	return encode(wave.NewFrame(0, 100, 0, samples))
}

func TestPipeline_SwellStatistics(t *testing.T) {
	frame := swellFrame(2, 8*time.Second)

	period, err := wave.WavePeriod(frame, 0)
	require.NoError(t, err)
	assert.InDelta(t, 8, period, 0.4)

	height, err := wave.WaveHeight(frame, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2, height, 0.1)

	length, err := wave.WaveLength(frame, 0, 0)
	require.NoError(t, err)
	want := wave.DefaultParams().DeepWaterWavelength(period)
	assert.InDelta(t, want, length, 1e-9)
	assert.InDelta(t, 99.9, length, 10)
}

func TestPipeline_DeclinationDoesNotChangeStatistics(t *testing.T) {
	frame := swellFrame(3, 10*time.Second)
	h0, err := wave.WaveHeight(frame, 0)
	require.NoError(t, err)
	h1, err := wave.WaveHeight(frame, 12.5)
	require.NoError(t, err)
	assert.InDelta(t, h0, h1, 1e-6)
}

func TestPipeline_StationaryShortCircuit(t *testing.T) {
	// Buoy at rest: zero vertical acceleration everywhere.
	frame := restFrame(200, 1)

	height, err := wave.WaveHeight(frame, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, height)

	_, err = wave.WavePeriod(frame, 0)
	assert.True(t, errors.Is(err, wave.ErrInsufficientData), "period err=%v", err)

	_, err = wave.WaveLength(frame, 0, 0)
	assert.True(t, errors.Is(err, wave.ErrInsufficientData), "length err=%v", err)
}

func TestPipeline_SmallSwellIsBelowNoiseFloor(t *testing.T) {
	// Peak acceleration (H/2)*w^2 ~ 0.31 m/s^2, under the 0.4 floor.
	frame := swellFrame(1, 8*time.Second)

	height, err := wave.WaveHeight(frame, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, height)

	// Period does not use the noise floor.
	period, err := wave.WavePeriod(frame, 0)
	require.NoError(t, err)
	assert.InDelta(t, 8, period, 0.4)
}

func TestPipeline_InsufficientDataPropagates(t *testing.T) {
	// Constant 0.1 g offset: above the noise floor but never crosses zero.
	frame := restFrame(300, 1.1)

	_, err := wave.WaveHeight(frame, 0)
	assert.True(t, errors.Is(err, wave.ErrInsufficientData), "height err=%v", err)
	_, err = wave.WavePeriod(frame, 0)
	assert.True(t, errors.Is(err, wave.ErrInsufficientData), "period err=%v", err)
	_, err = wave.WaveLength(frame, 20, 0)
	assert.True(t, errors.Is(err, wave.ErrInsufficientData), "length err=%v", err)
}

func TestPipeline_EmptyFrame(t *testing.T) {
	frame := encode(wave.NewFrame(0, 100, 0, nil))

	_, err := wave.WaveHeight(frame, 0)
	assert.EqualError(t, err, "wave: no samples")
	_, err = wave.WavePeriod(frame, 0)
	assert.True(t, errors.Is(err, wave.ErrInsufficientData))
}

func TestPipeline_FormatErrorsSurface(t *testing.T) {
	bad := []byte{1, 2, 3}
	_, err := wave.WaveHeight(bad, 0)
	assert.True(t, errors.Is(err, wave.ErrFormat))
	_, err = wave.WavePeriod(bad, 0)
	assert.True(t, errors.Is(err, wave.ErrFormat))
	_, err = wave.WaveLength(bad, 0, 0)
	assert.True(t, errors.Is(err, wave.ErrFormat))

	zeroPeriod := encode(wave.NewFrame(0, 0, 0, make([]wave.RawSample, 4)))
	_, err = wave.WavePeriod(zeroPeriod, 0)
	assert.True(t, errors.Is(err, wave.ErrFormat), "err=%v", err)
}

func TestPipeline_WavelengthErrors(t *testing.T) {
	frame := swellFrame(2, 8*time.Second)

	_, err := wave.WaveLength(frame, -3, 0)
	assert.True(t, errors.Is(err, wave.ErrInvalidDepth))

	_, err = wave.WaveLength(frame, math.NaN(), 0)
	assert.True(t, errors.Is(err, wave.ErrInvalidDepth))

	l, err := wave.WaveLength(frame, 10, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, l, 5.0)
	assert.LessOrEqual(t, l, 300.0)
	assert.Less(t, l, 99.9)
}

func TestAnalyzer_BigEndianAndAnalyze(t *testing.T) {
	a, err := wave.NewAnalyzer(wave.DefaultParams(), binary.BigEndian)
	require.NoError(t, err)

	s := sim.Swell{HeightM: 2.5, Period: 9 * time.Second, SamplePeriod: 100 * time.Millisecond, Count: 1200, Phase: 0.3}
	frame := a.Decoder().Encode(s.Frame(77, 5))

	r, err := a.Analyze(frame, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), r.Frame.Timestamp)
	assert.Equal(t, uint32(5), r.Frame.BufferID)
	require.NoError(t, r.HeightErr)
	require.NoError(t, r.PeriodErr)
	require.NoError(t, r.WavelengthErr)
	assert.InDelta(t, 2.5, r.Height, 0.15)
	assert.InDelta(t, 9, r.Period, 0.45)

	h, err := a.Height(frame, 0)
	require.NoError(t, err)
	assert.Equal(t, r.Height, h)

	// Same bytes through the little-endian default fail the size check.
	_, err = wave.WaveHeight(frame, 0)
	assert.True(t, errors.Is(err, wave.ErrFormat))
}

func TestAnalyzer_AnalyzeCarriesPerStatisticErrors(t *testing.T) {
	r, err := wave.NewAnalyzer(wave.DefaultParams(), nil)
	require.NoError(t, err)

	rep, err := r.Analyze(restFrame(100, 1.1), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "insufficient_data", wave.Kind(rep.HeightErr))
	assert.Equal(t, "insufficient_data", wave.Kind(rep.PeriodErr))
	assert.Equal(t, "insufficient_data", wave.Kind(rep.WavelengthErr))

	_, err = r.Analyze(nil, 0, 0)
	assert.Equal(t, "format", wave.Kind(err))
}
