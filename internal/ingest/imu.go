package ingest

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"wavebuoy/internal/wave"
)

// SampleReader returns one sensor reading. imu.Sensor implements it.
type SampleReader interface {
	Read() (wave.RawSample, error)
}

const defaultMaxReadErrors = 10

// IMUSource polls a sensor every SamplePeriod and emits a frame each time
// Count readings have been collected.
type IMUSource struct {
	Reader       SampleReader
	SamplePeriod time.Duration
	Count        int
	Order        binary.ByteOrder
	// MaxReadErrors consecutive failures end Run; 0 means 10.
	MaxReadErrors int

	now func() time.Time
}

func (s *IMUSource) Name() string { return "imu" }

func (s *IMUSource) Run(ctx context.Context, out chan<- Delivery) error {
	if s.Reader == nil {
		return fmt.Errorf("imu: reader is nil")
	}
	if s.SamplePeriod < time.Millisecond || s.Count <= 0 {
		return fmt.Errorf("imu: sample period must be >= 1ms and count > 0")
	}
	now := s.now
	if now == nil {
		now = time.Now
	}
	maxErrs := s.MaxReadErrors
	if maxErrs <= 0 {
		maxErrs = defaultMaxReadErrors
	}
	enc := wave.NewDecoder(s.Order)
	periodMs := uint32(s.SamplePeriod / time.Millisecond)

	t := time.NewTicker(s.SamplePeriod)
	defer t.Stop()

	var (
		bufferID uint32
		samples  = make([]wave.RawSample, 0, s.Count)
		start    = now()
		last     wave.RawSample
		haveLast bool
		fails    int
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		smp, err := s.Reader.Read()
		if err != nil {
			fails++
			if fails >= maxErrs {
				return fmt.Errorf("imu: %d consecutive read failures: %w", fails, err)
			}
			if fails == 1 {
				log.Printf("ingest: imu read failed: %v", err)
			}
			if !haveLast {
				continue
			}
			// Repeat the previous reading to keep the buffer on its time base.
			smp = last
		} else {
			fails = 0
			last, haveLast = smp, true
		}

		if len(samples) == 0 {
			start = now()
		}
		samples = append(samples, smp)
		if len(samples) < s.Count {
			continue
		}

		f := wave.NewFrame(uint32(start.Unix()), periodMs, bufferID, samples)
		bufferID++
		if err := send(ctx, out, Delivery{Source: s.Name(), ReceivedAt: now(), Raw: enc.Encode(f)}); err != nil {
			return err
		}
		samples = make([]wave.RawSample, 0, s.Count)
	}
}
