package ingest

import (
	"context"
	"encoding/binary"
	"time"

	"wavebuoy/internal/sim"
	"wavebuoy/internal/wave"
)

// SimSource emits a synthetic frame every Interval. When SeaState is set the
// swell follows the script (looping); otherwise Swell is used as is.
type SimSource struct {
	Swell    sim.Swell
	SeaState *sim.SeaState
	Interval time.Duration
	Order    binary.ByteOrder

	now func() time.Time
}

func (s *SimSource) Name() string { return "sim" }

func (s *SimSource) Run(ctx context.Context, out chan<- Delivery) error {
	now := s.now
	if now == nil {
		now = time.Now
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	enc := wave.NewDecoder(s.Order)
	start := now()

	t := time.NewTicker(interval)
	defer t.Stop()

	var bufferID uint32
	for {
		sw := s.swellAt(now().Sub(start))
		f := sw.Frame(uint32(now().Unix()), bufferID)
		bufferID++
		if err := send(ctx, out, Delivery{Source: s.Name(), ReceivedAt: now(), Raw: enc.Encode(f)}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *SimSource) swellAt(elapsed time.Duration) sim.Swell {
	if s.SeaState == nil {
		return s.Swell
	}
	sw := s.SeaState.SwellAt(elapsed, true)
	sw.SamplePeriod = s.Swell.SamplePeriod
	sw.Count = s.Swell.Count
	sw.Gravity = s.Swell.Gravity
	sw.Phase = s.Swell.Phase
	return sw
}
