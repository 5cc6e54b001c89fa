package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"wavebuoy/internal/wave"
)

// ErrFrameTooLarge is returned by ReadFrame when the declared sample count
// exceeds the reader's limit. The stream is no longer aligned afterwards.
var ErrFrameTooLarge = errors.New("ingest: declared sample count exceeds limit")

// DefaultMaxSamples is the sample count limit ReadFrame applies when the
// caller passes 0.
const DefaultMaxSamples uint32 = 1 << 16

// ReadFrame reads exactly one frame (header plus SampleCount samples) from r
// and returns its bytes. A maxSamples of 0 means DefaultMaxSamples. io.EOF
// is returned only when r ends cleanly before a header; a stream ending
// mid-frame yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, order binary.ByteOrder, maxSamples uint32) ([]byte, error) {
	if order == nil {
		order = binary.LittleEndian
	}
	var hdr [wave.HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if maxSamples == 0 {
		maxSamples = DefaultMaxSamples
	}
	count := order.Uint32(hdr[8:12])
	if count > maxSamples {
		return nil, fmt.Errorf("%w (declared=%d max=%d)", ErrFrameTooLarge, count, maxSamples)
	}

	b := make([]byte, wave.HeaderSize+int(count)*wave.SampleSize)
	copy(b, hdr[:])
	if _, err := io.ReadFull(r, b[wave.HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b, nil
}

// StreamSource reads back-to-back frames from a byte stream. With Reconnect
// set, a failed or closed stream is reopened with exponential backoff;
// otherwise Run returns when the stream ends.
type StreamSource struct {
	Label      string
	Open       func() (io.ReadCloser, error)
	Order      binary.ByteOrder
	MaxSamples uint32
	Reconnect  bool

	now func() time.Time
}

func (s *StreamSource) Name() string { return s.Label }

func (s *StreamSource) Run(ctx context.Context, out chan<- Delivery) error {
	if s.Open == nil {
		return fmt.Errorf("%s: open func is nil", s.Label)
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	backoff := 250 * time.Millisecond
	maxBackoff := 10 * time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rc, err := s.Open()
		if err != nil {
			if !s.Reconnect {
				return fmt.Errorf("%s: open: %w", s.Label, err)
			}
			log.Printf("ingest %s: open failed: %v (retry in %s)", s.Label, err, backoff)
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = 250 * time.Millisecond

		err = s.pump(ctx, rc, out, now)
		_ = rc.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.Reconnect {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		log.Printf("ingest %s: stream stopped: %v", s.Label, err)
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
	}
}

func (s *StreamSource) pump(ctx context.Context, r io.Reader, out chan<- Delivery, now func() time.Time) error {
	// Unblock a pending read when ctx is cancelled.
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}
	for {
		b, err := ReadFrame(r, s.Order, s.MaxSamples)
		if err != nil {
			return err
		}
		if err := send(ctx, out, Delivery{Source: s.Label, ReceivedAt: now(), Raw: b}); err != nil {
			return err
		}
	}
}

// NewSerialSource returns a reconnecting stream source for a serial device
// opened in raw 8N1 mode.
func NewSerialSource(device string, baud int, order binary.ByteOrder, maxSamples uint32) *StreamSource {
	return &StreamSource{
		Label:      "serial:" + device,
		Open:       func() (io.ReadCloser, error) { return openSerial(device, baud) },
		Order:      order,
		MaxSamples: maxSamples,
		Reconnect:  true,
	}
}
