package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/stat"

	"wavebuoy/internal/station"
	"wavebuoy/internal/wave"
)

type attitudeSummary struct {
	MeanRollDeg    float64 `json:"mean_roll_deg"`
	StdRollDeg     float64 `json:"std_roll_deg"`
	MeanPitchDeg   float64 `json:"mean_pitch_deg"`
	StdPitchDeg    float64 `json:"std_pitch_deg"`
	MeanHeadingDeg float64 `json:"mean_heading_deg"`
}

type analyzeOutput struct {
	Path     string           `json:"path"`
	Result   station.Result   `json:"result"`
	Attitude *attitudeSummary `json:"attitude,omitempty"`
}

func runAnalyze(w io.Writer, path, byteOrder string, depthM, declinationDeg float64) error {
	order, err := wave.ParseByteOrder(byteOrder)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, err := analyzeFrame(raw, order, depthM, declinationDeg)
	if err != nil {
		return err
	}
	out.Path = path

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// analyzeFrame evaluates raw with default parameters. A frame that does not
// decode is still reported; only bad inputs (depth, byte order) fail.
func analyzeFrame(raw []byte, order binary.ByteOrder, depthM, declinationDeg float64) (analyzeOutput, error) {
	if math.IsNaN(depthM) || math.IsInf(depthM, 0) || depthM < 0 {
		return analyzeOutput{}, wave.ErrInvalidDepth
	}
	a, err := wave.NewAnalyzer(wave.DefaultParams(), order)
	if err != nil {
		return analyzeOutput{}, err
	}

	res, _ := station.Evaluate(a, raw, depthM, declinationDeg)
	res.Source = "file"
	out := analyzeOutput{Result: res}

	f, err := a.Decoder().Decode(raw)
	if err == nil && len(f.Samples) > 0 {
		out.Attitude = summarizeAttitude(wave.Orientations(f.Samples, declinationDeg))
	}
	return out, nil
}

func summarizeAttitude(o []wave.Orientation) *attitudeSummary {
	roll := make([]float64, len(o))
	pitch := make([]float64, len(o))
	heading := make([]float64, len(o))
	for i, v := range o {
		roll[i] = v.Roll
		pitch[i] = v.Pitch
		heading[i] = v.Heading
	}
	s := &attitudeSummary{
		MeanRollDeg:    deg(stat.Mean(roll, nil)),
		MeanPitchDeg:   deg(stat.Mean(pitch, nil)),
		MeanHeadingDeg: deg(stat.CircularMean(heading, nil)),
	}
	if len(o) > 1 {
		s.StdRollDeg = deg(stat.StdDev(roll, nil))
		s.StdPitchDeg = deg(stat.StdDev(pitch, nil))
	}
	return s
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }
