package wave

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Wire format:
//
//	header (16 bytes): timestamp u32, sample_period_ms u32, sample_count u32, buffer_id u32
//	sample (24 bytes, repeated sample_count times): ax ay az mx my mz as float32
//
// All fields share one byte order, which must match the sensor firmware.
const (
	HeaderSize = 16
	SampleSize = 24
)

// RawSample is one body-frame reading: acceleration in g and raw magnetometer
// components (used only for heading).
type RawSample struct {
	Ax, Ay, Az float32
	Mx, My, Mz float32
}

type Frame struct {
	Timestamp      uint32
	SamplePeriodMs uint32
	SampleCount    uint32
	BufferID       uint32
	Samples        []RawSample
}

// NewFrame builds a frame whose SampleCount matches samples.
func NewFrame(timestamp, samplePeriodMs, bufferID uint32, samples []RawSample) Frame {
	return Frame{
		Timestamp:      timestamp,
		SamplePeriodMs: samplePeriodMs,
		SampleCount:    uint32(len(samples)),
		BufferID:       bufferID,
		Samples:        samples,
	}
}

// SamplePeriod returns the sample period in seconds.
func (f Frame) SamplePeriod() float64 {
	return float64(f.SamplePeriodMs) * 0.001
}

type Decoder struct {
	Order binary.ByteOrder
}

// NewDecoder returns a decoder for the given byte order; nil means little endian.
func NewDecoder(order binary.ByteOrder) Decoder {
	if order == nil {
		order = binary.LittleEndian
	}
	return Decoder{Order: order}
}

func (d Decoder) order() binary.ByteOrder {
	if d.Order == nil {
		return binary.LittleEndian
	}
	return d.Order
}

// Decode parses a complete frame. The declared sample count is authoritative:
// any payload that is not exactly SampleCount*SampleSize bytes is rejected.
func (d Decoder) Decode(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, &FormatError{Reason: fmt.Sprintf("frame shorter than %d-byte header (got %d bytes)", HeaderSize, len(b))}
	}
	bo := d.order()
	f := Frame{
		Timestamp:      bo.Uint32(b[0:4]),
		SamplePeriodMs: bo.Uint32(b[4:8]),
		SampleCount:    bo.Uint32(b[8:12]),
		BufferID:       bo.Uint32(b[12:16]),
	}

	payload := len(b) - HeaderSize
	if uint64(payload) != uint64(f.SampleCount)*SampleSize {
		return Frame{}, &FormatError{
			Reason:       "payload size does not match sample count",
			Declared:     f.SampleCount,
			PayloadBytes: payload,
		}
	}

	f.Samples = make([]RawSample, f.SampleCount)
	for i := range f.Samples {
		rec := b[HeaderSize+i*SampleSize : HeaderSize+(i+1)*SampleSize]
		f.Samples[i] = RawSample{
			Ax: math.Float32frombits(bo.Uint32(rec[0:4])),
			Ay: math.Float32frombits(bo.Uint32(rec[4:8])),
			Az: math.Float32frombits(bo.Uint32(rec[8:12])),
			Mx: math.Float32frombits(bo.Uint32(rec[12:16])),
			My: math.Float32frombits(bo.Uint32(rec[16:20])),
			Mz: math.Float32frombits(bo.Uint32(rec[20:24])),
		}
	}
	return f, nil
}

// Encode serializes f. The header is written as given, so a frame whose
// SampleCount disagrees with len(Samples) encodes to an invalid buffer.
func (d Decoder) Encode(f Frame) []byte {
	bo := d.order()
	b := make([]byte, HeaderSize+len(f.Samples)*SampleSize)
	bo.PutUint32(b[0:4], f.Timestamp)
	bo.PutUint32(b[4:8], f.SamplePeriodMs)
	bo.PutUint32(b[8:12], f.SampleCount)
	bo.PutUint32(b[12:16], f.BufferID)
	for i, s := range f.Samples {
		rec := b[HeaderSize+i*SampleSize : HeaderSize+(i+1)*SampleSize]
		bo.PutUint32(rec[0:4], math.Float32bits(s.Ax))
		bo.PutUint32(rec[4:8], math.Float32bits(s.Ay))
		bo.PutUint32(rec[8:12], math.Float32bits(s.Az))
		bo.PutUint32(rec[12:16], math.Float32bits(s.Mx))
		bo.PutUint32(rec[16:20], math.Float32bits(s.My))
		bo.PutUint32(rec[20:24], math.Float32bits(s.Mz))
	}
	return b
}

// ParseByteOrder maps "little"/"big" (and their short forms) to a byte order.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "little", "le", "little_endian":
		return binary.LittleEndian, nil
	case "big", "be", "big_endian":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order %q", s)
	}
}
