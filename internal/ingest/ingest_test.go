package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"wavebuoy/internal/replay"
	"wavebuoy/internal/sim"
	"wavebuoy/internal/wave"
)

func encodedFrame(t *testing.T, order binary.ByteOrder, n int, bufferID uint32) []byte {
	t.Helper()
	s := sim.Swell{HeightM: 2, Period: 8 * time.Second, SamplePeriod: 100 * time.Millisecond, Count: n}
	return wave.NewDecoder(order).Encode(s.Frame(1, bufferID))
}

func TestReadFrame_BackToBack(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		a := encodedFrame(t, order, 3, 1)
		b := wave.NewDecoder(order).Encode(wave.NewFrame(1, 100, 2, nil))
		if len(b) != wave.HeaderSize {
			t.Fatalf("%v empty frame len=%d want %d", order, len(b), wave.HeaderSize)
		}
		c := encodedFrame(t, order, 5, 3)
		r := bytes.NewReader(append(append(append([]byte(nil), a...), b...), c...))

		for i, want := range [][]byte{a, b, c} {
			got, err := ReadFrame(r, order, 100)
			if err != nil {
				t.Fatalf("%v frame %d: %v", order, i, err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("%v frame %d mismatch", order, i)
			}
		}
		if _, err := ReadFrame(r, order, 100); !errors.Is(err, io.EOF) {
			t.Fatalf("%v trailing err=%v want io.EOF", order, err)
		}
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	b := encodedFrame(t, binary.LittleEndian, 4, 1)
	_, err := ReadFrame(bytes.NewReader(b[:len(b)-1]), binary.LittleEndian, 0)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err=%v want io.ErrUnexpectedEOF", err)
	}
	_, err = ReadFrame(bytes.NewReader(b[:7]), binary.LittleEndian, 0)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("short header err=%v want io.ErrUnexpectedEOF", err)
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	b := encodedFrame(t, binary.LittleEndian, 10, 1)
	_, err := ReadFrame(bytes.NewReader(b), binary.LittleEndian, 9)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err=%v want ErrFrameTooLarge", err)
	}
}

func TestReadFrame_ZeroLimitUsesDefaultCap(t *testing.T) {
	hdr := make([]byte, wave.HeaderSize)
	binary.LittleEndian.PutUint32(hdr[4:8], 100)
	binary.LittleEndian.PutUint32(hdr[8:12], math.MaxUint32)
	_, err := ReadFrame(bytes.NewReader(hdr), binary.LittleEndian, 0)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err=%v want ErrFrameTooLarge", err)
	}

	binary.LittleEndian.PutUint32(hdr[8:12], DefaultMaxSamples+1)
	if _, err := ReadFrame(bytes.NewReader(hdr), binary.LittleEndian, 0); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err=%v want ErrFrameTooLarge", err)
	}
}

func TestStreamSource_DeliversUntilEOF(t *testing.T) {
	a := encodedFrame(t, binary.LittleEndian, 2, 1)
	b := encodedFrame(t, binary.LittleEndian, 3, 2)
	stream := append(append([]byte(nil), a...), b...)

	fixed := time.Unix(1700000000, 0)
	src := &StreamSource{
		Label: "test",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(stream)), nil
		},
		now: func() time.Time { return fixed },
	}

	out := make(chan Delivery, 4)
	if err := src.Run(context.Background(), out); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	close(out)

	var got []Delivery
	for d := range out {
		got = append(got, d)
	}
	want := []Delivery{
		{Source: "test", ReceivedAt: fixed, Raw: a},
		{Source: "test", ReceivedAt: fixed, Raw: b},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamSource_OpenErrorWithoutReconnect(t *testing.T) {
	boom := errors.New("no such device")
	src := &StreamSource{Label: "x", Open: func() (io.ReadCloser, error) { return nil, boom }}
	if err := src.Run(context.Background(), make(chan Delivery)); !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
}

func TestStreamSource_ReconnectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opens := 0
	src := &StreamSource{
		Label:     "x",
		Reconnect: true,
		Open: func() (io.ReadCloser, error) {
			opens++
			cancel()
			return nil, errors.New("busy")
		},
	}
	if err := src.Run(ctx, make(chan Delivery)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if opens != 1 {
		t.Fatalf("opens=%d want 1", opens)
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestMQTTSource_CopiesPayloadAndDropsWhenFull(t *testing.T) {
	s := NewMQTTSource(MQTTConfig{Topic: "buoy/raw"})
	out := make(chan Delivery, 1)
	ch := (chan<- Delivery)(out)
	s.out.Store(&ch)

	payload := []byte{1, 2, 3}
	s.onMessage(nil, &fakeMessage{topic: "buoy/raw", payload: payload})
	payload[0] = 9
	s.onMessage(nil, &fakeMessage{topic: "buoy/raw", payload: []byte{4}})
	s.onMessage(nil, &fakeMessage{topic: "buoy/raw"})

	d := <-out
	if d.Source != "mqtt:buoy/raw" {
		t.Fatalf("source=%q", d.Source)
	}
	if !bytes.Equal(d.Raw, []byte{1, 2, 3}) {
		t.Fatalf("raw=%v want [1 2 3] (payload must be copied)", d.Raw)
	}
	if s.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", s.Dropped())
	}
}

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

func TestReplaySource_PlaysCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.log.gz")
	w, err := replay.CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	frames := [][]byte{encodedFrame(t, binary.LittleEndian, 2, 1), encodedFrame(t, binary.LittleEndian, 2, 2)}
	for _, f := range frames {
		if err := w.WriteFrame(time.Now(), f); err != nil {
			t.Fatalf("WriteFrame() error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	src := &ReplaySource{Path: path, sleeper: noSleep{}}
	out := make(chan Delivery, 2)
	if err := src.Run(context.Background(), out); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	close(out)
	i := 0
	for d := range out {
		if !bytes.Equal(d.Raw, frames[i]) {
			t.Fatalf("frame %d mismatch", i)
		}
		i++
	}
	if i != 2 {
		t.Fatalf("deliveries=%d want 2", i)
	}
}

func TestSimSource_EmitsDecodableFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &SimSource{
		Swell:    sim.Swell{HeightM: 2, Period: 8 * time.Second, SamplePeriod: 100 * time.Millisecond, Count: 64},
		Interval: time.Millisecond,
		Order:    binary.BigEndian,
	}
	out := make(chan Delivery)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	for want := uint32(0); want < 2; want++ {
		d := <-out
		f, err := wave.NewDecoder(binary.BigEndian).Decode(d.Raw)
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if f.BufferID != want || f.SampleCount != 64 {
			t.Fatalf("frame header=%+v", f)
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() err=%v want context.Canceled", err)
	}
}

type scriptedReader struct {
	readings []wave.RawSample
	errs     []error
	i        int
}

func (r *scriptedReader) Read() (wave.RawSample, error) {
	i := r.i
	r.i++
	if i < len(r.errs) && r.errs[i] != nil {
		return wave.RawSample{}, r.errs[i]
	}
	if len(r.readings) == 0 {
		return wave.RawSample{}, nil
	}
	return r.readings[i%len(r.readings)], nil
}

func TestIMUSource_BuffersReadingsIntoFrames(t *testing.T) {
	rd := &scriptedReader{readings: []wave.RawSample{{Az: 1, My: 1}, {Az: 1.1, My: 1}, {Az: 0.9, My: 1}}}
	src := &IMUSource{Reader: rd, SamplePeriod: time.Millisecond, Count: 3, Order: binary.BigEndian}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Delivery, 4)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	dec := wave.NewDecoder(binary.BigEndian)
	for want := uint32(0); want < 2; want++ {
		var d Delivery
		select {
		case d = <-out:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for frame %d", want)
		}
		if d.Source != "imu" {
			t.Fatalf("source=%q", d.Source)
		}
		f, err := dec.Decode(d.Raw)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if f.BufferID != want || f.SampleCount != 3 || f.SamplePeriodMs != 1 {
			t.Fatalf("header=%+v", f)
		}
		if diff := cmp.Diff(rd.readings, f.Samples); diff != "" {
			t.Fatalf("samples mismatch (-want +got):\n%s", diff)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err=%v", err)
	}
}

func TestIMUSource_RepeatsPreviousReadingOnError(t *testing.T) {
	boom := errors.New("nack")
	rd := &scriptedReader{
		readings: []wave.RawSample{{Az: 1}, {Az: 2}, {Az: 3}, {Az: 4}},
		errs:     []error{nil, boom, nil},
	}
	src := &IMUSource{Reader: rd, SamplePeriod: time.Millisecond, Count: 3}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Delivery, 1)
	go func() { _ = src.Run(ctx, out) }()

	var d Delivery
	select {
	case d = <-out:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out")
	}
	f, err := wave.NewDecoder(nil).Decode(d.Raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []wave.RawSample{{Az: 1}, {Az: 1}, {Az: 3}}
	if diff := cmp.Diff(want, f.Samples); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestIMUSource_GivesUpAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("bus gone")
	rd := &scriptedReader{errs: []error{boom, boom, boom, boom}}
	src := &IMUSource{Reader: rd, SamplePeriod: time.Millisecond, Count: 10, MaxReadErrors: 3}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := src.Run(ctx, make(chan Delivery, 1))
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
	if rd.i != 3 {
		t.Fatalf("reads=%d want 3", rd.i)
	}
}

func TestIMUSource_InvalidSettings(t *testing.T) {
	for _, src := range []*IMUSource{
		{SamplePeriod: time.Millisecond, Count: 1},
		{Reader: &scriptedReader{}, SamplePeriod: 0, Count: 1},
		{Reader: &scriptedReader{}, SamplePeriod: time.Millisecond, Count: 0},
	} {
		if err := src.Run(context.Background(), make(chan Delivery)); err == nil {
			t.Fatalf("expected error for %+v", src)
		}
	}
}
