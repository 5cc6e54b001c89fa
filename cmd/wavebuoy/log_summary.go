package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"wavebuoy/internal/replay"
	"wavebuoy/internal/wave"
)

type logSummary struct {
	Segments    int
	Frames      int
	Invalid     int
	MaxDuration time.Duration
	// Keyed by the declared header values of frames that decoded.
	SampleCounts  map[uint32]int
	SamplePeriods map[uint32]int
	BufferIDGaps  int
}

func summarizeCaptureLog(records []replay.Record, dec wave.Decoder) logSummary {
	s := logSummary{SampleCounts: map[uint32]int{}, SamplePeriods: map[uint32]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasFrames := false
	segments := 0
	var lastBuffer uint32
	haveLast := false

	for _, r := range records {
		if r.Frame == nil {
			segments++
			origin = r.At
			haveLast = false
			continue
		}
		hasFrames = true

		s.Frames++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		f, err := dec.Decode(r.Frame)
		if err != nil {
			s.Invalid++
			continue
		}
		s.SampleCounts[f.SampleCount]++
		s.SamplePeriods[f.SamplePeriodMs]++
		if haveLast && f.BufferID != lastBuffer+1 {
			s.BufferIDGaps++
		}
		lastBuffer = f.BufferID
		haveLast = true
	}
	if segments == 0 && hasFrames {
		segments = 1
	}
	s.Segments = segments

	return s
}

func printLogSummary(w io.Writer, path, byteOrder string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	order, err := wave.ParseByteOrder(byteOrder)
	if err != nil {
		return err
	}

	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}

	s := summarizeCaptureLog(recs, wave.NewDecoder(order))

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "frames: %d\n", s.Frames)
	fmt.Fprintf(w, "invalid_frames: %d\n", s.Invalid)
	fmt.Fprintf(w, "buffer_id_gaps: %d\n", s.BufferIDGaps)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)

	fmt.Fprintf(w, "sample_counts:\n")
	for _, k := range slices.Sorted(maps.Keys(s.SampleCounts)) {
		fmt.Fprintf(w, "  %d: %d\n", k, s.SampleCounts[k])
	}
	fmt.Fprintf(w, "sample_periods_ms:\n")
	for _, k := range slices.Sorted(maps.Keys(s.SamplePeriods)) {
		fmt.Fprintf(w, "  %d: %d\n", k, s.SamplePeriods[k])
	}
	return nil
}
