package wave

import (
	"errors"
	"fmt"
)

var (
	ErrFormat           = errors.New("wave: malformed frame")
	ErrInsufficientData = errors.New("wave: insufficient data")
	ErrOutOfRange       = errors.New("wave: wavelength out of range")
	ErrInvalidDepth     = errors.New("wave: depth must be a finite value >= 0")
)

// FormatError reports a frame whose header or payload size is inconsistent.
type FormatError struct {
	Reason string
	// Declared is the header sample count (0 when the header was unreadable).
	Declared uint32
	// PayloadBytes is the number of bytes following the header.
	PayloadBytes int
}

func (e *FormatError) Error() string {
	if e.PayloadBytes > 0 || e.Declared > 0 {
		return fmt.Sprintf("wave: %s (declared=%d samples, payload=%d bytes)", e.Reason, e.Declared, e.PayloadBytes)
	}
	return "wave: " + e.Reason
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// InsufficientDataError means fewer than two zero crossings were found, so no
// period (and therefore no displacement or wavelength) can be derived.
type InsufficientDataError struct {
	Crossings int
	Samples   int
}

func (e *InsufficientDataError) Error() string {
	if e.Samples == 0 {
		return "wave: no samples"
	}
	return fmt.Sprintf("wave: period too long to estimate (%d zero crossings in %d samples)", e.Crossings, e.Samples)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// OutOfRangeError means no candidate wavelength satisfied the dispersion
// relation within the configured accuracy.
type OutOfRangeError struct {
	Period float64
	Depth  float64
	Min    int
	Max    int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("wave: no wavelength in [%d,%d] m for period=%.2fs depth=%.1fm", e.Min, e.Max, e.Period, e.Depth)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// Kind returns a short stable label for err, suitable for metrics and JSON.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrInvalidDepth):
		return "invalid_depth"
	default:
		return "other"
	}
}
