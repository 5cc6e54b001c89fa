package wave

import (
	"encoding/binary"

	"gonum.org/v1/gonum/floats"
)

// Analyzer runs the wave pipeline on raw frames. It holds no per-frame state
// and is safe for concurrent use.
type Analyzer struct {
	params  Params
	decoder Decoder
}

// NewAnalyzer returns an analyzer using p and the given byte order (nil means
// little endian).
func NewAnalyzer(p Params, order binary.ByteOrder) (*Analyzer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{params: p, decoder: NewDecoder(order)}, nil
}

var defaultAnalyzer = &Analyzer{params: DefaultParams(), decoder: NewDecoder(binary.LittleEndian)}

func (a *Analyzer) Params() Params { return a.params }

func (a *Analyzer) Decoder() Decoder { return a.decoder }

// prepare decodes b and returns the frame with its earth-frame acceleration.
func (a *Analyzer) prepare(b []byte, declinationDeg float64) (Frame, []EarthAcceleration, error) {
	f, err := a.decoder.Decode(b)
	if err != nil {
		return Frame{}, nil, err
	}
	if f.SamplePeriodMs == 0 {
		return Frame{}, nil, &FormatError{Reason: "sample period is zero", Declared: f.SampleCount, PayloadBytes: len(b) - HeaderSize}
	}
	c := Corrector{Gravity: a.params.Gravity, DeclinationDeg: declinationDeg}
	return f, c.Correct(f.Samples), nil
}

// Height returns the peak-to-peak vertical displacement (max - min) in metres.
// A stationary buoy yields 0 with a nil error.
func (a *Analyzer) Height(frame []byte, declinationDeg float64) (float64, error) {
	f, acc, err := a.prepare(frame, declinationDeg)
	if err != nil {
		return 0, err
	}
	return a.height(f, acc)
}

func (a *Analyzer) height(f Frame, acc []EarthAcceleration) (float64, error) {
	if len(acc) == 0 {
		return 0, &InsufficientDataError{}
	}
	disp, err := a.params.Displacement(acc, f.SamplePeriodMs)
	if err != nil {
		return 0, err
	}
	return floats.Max(disp) - floats.Min(disp), nil
}

// Period returns the dominant wave period in seconds.
func (a *Analyzer) Period(frame []byte, declinationDeg float64) (float64, error) {
	f, acc, err := a.prepare(frame, declinationDeg)
	if err != nil {
		return 0, err
	}
	return EstimatePeriod(Vertical(acc), f.SamplePeriodMs)
}

// Length returns the wavelength in metres; depthMeters of 0 means deep water.
func (a *Analyzer) Length(frame []byte, depthMeters, declinationDeg float64) (float64, error) {
	f, acc, err := a.prepare(frame, declinationDeg)
	if err != nil {
		return 0, err
	}
	period, err := EstimatePeriod(Vertical(acc), f.SamplePeriodMs)
	if err != nil {
		return 0, err
	}
	return a.params.Wavelength(period, depthMeters)
}

// Report holds every statistic for one frame. A statistic is only meaningful
// when its error is nil.
type Report struct {
	Frame Frame

	Height        float64
	HeightErr     error
	Period        float64
	PeriodErr     error
	Wavelength    float64
	WavelengthErr error
}

// Analyze decodes and corrects the frame once and derives all statistics.
// The returned error is non-nil only when the frame itself is unusable.
func (a *Analyzer) Analyze(frame []byte, depthMeters, declinationDeg float64) (Report, error) {
	f, acc, err := a.prepare(frame, declinationDeg)
	if err != nil {
		return Report{}, err
	}
	r := Report{Frame: f}
	r.Height, r.HeightErr = a.height(f, acc)
	r.Period, r.PeriodErr = EstimatePeriod(Vertical(acc), f.SamplePeriodMs)
	if r.PeriodErr != nil {
		r.WavelengthErr = r.PeriodErr
	} else {
		r.Wavelength, r.WavelengthErr = a.params.Wavelength(r.Period, depthMeters)
	}
	return r, nil
}

// WaveHeight runs Height with default parameters and little-endian frames.
func WaveHeight(frame []byte, declinationDeg float64) (float64, error) {
	return defaultAnalyzer.Height(frame, declinationDeg)
}

// WavePeriod runs Period with default parameters and little-endian frames.
func WavePeriod(frame []byte, declinationDeg float64) (float64, error) {
	return defaultAnalyzer.Period(frame, declinationDeg)
}

// WaveLength runs Length with default parameters and little-endian frames.
func WaveLength(frame []byte, depthMeters, declinationDeg float64) (float64, error) {
	return defaultAnalyzer.Length(frame, depthMeters, declinationDeg)
}
