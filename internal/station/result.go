package station

import (
	"time"

	"wavebuoy/internal/wave"
)

// Result is the JSON view of one analysed frame. A statistic that could not
// be computed is null, with the reason in Errors.
type Result struct {
	ID         string    `json:"id,omitempty"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`

	Timestamp      uint32 `json:"timestamp"`
	BufferID       uint32 `json:"buffer_id"`
	SampleCount    uint32 `json:"sample_count"`
	SamplePeriodMs uint32 `json:"sample_period_ms"`

	DepthM         float64 `json:"depth_m"`
	DeclinationDeg float64 `json:"declination_deg"`

	HeightM     *float64 `json:"height_m"`
	PeriodS     *float64 `json:"period_s"`
	WavelengthM *float64 `json:"wavelength_m"`

	// Errors maps "height", "period" or "wavelength" to a failure.
	Errors map[string]StatError `json:"errors,omitempty"`

	// Error is set when the frame itself could not be decoded.
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type StatError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OK reports whether the frame decoded.
func (r Result) OK() bool { return r.Error == "" }

// Evaluate runs the full pipeline on raw and converts the report. The
// returned error is non-nil only for frame-level failures; the Result is
// populated either way.
func Evaluate(a *wave.Analyzer, raw []byte, depthM, declinationDeg float64) (Result, error) {
	res := Result{DepthM: depthM, DeclinationDeg: declinationDeg}
	rep, err := a.Analyze(raw, depthM, declinationDeg)
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = wave.Kind(err)
		return res, err
	}

	f := rep.Frame
	res.Timestamp = f.Timestamp
	res.BufferID = f.BufferID
	res.SampleCount = f.SampleCount
	res.SamplePeriodMs = f.SamplePeriodMs

	res.HeightM = res.stat("height", rep.Height, rep.HeightErr)
	res.PeriodS = res.stat("period", rep.Period, rep.PeriodErr)
	res.WavelengthM = res.stat("wavelength", rep.Wavelength, rep.WavelengthErr)
	return res, nil
}

func (r *Result) stat(name string, v float64, err error) *float64 {
	if err != nil {
		if r.Errors == nil {
			r.Errors = make(map[string]StatError, 3)
		}
		r.Errors[name] = StatError{Kind: wave.Kind(err), Message: err.Error()}
		return nil
	}
	return &v
}
