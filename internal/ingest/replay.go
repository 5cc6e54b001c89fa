package ingest

import (
	"context"
	"fmt"
	"time"

	"wavebuoy/internal/replay"
)

// ReplaySource plays a capture log back with its recorded timing.
type ReplaySource struct {
	Path  string
	Speed float64
	Loop  bool

	sleeper replay.Sleeper
	now     func() time.Time
}

func (s *ReplaySource) Name() string { return "replay:" + s.Path }

func (s *ReplaySource) Run(ctx context.Context, out chan<- Delivery) error {
	recs, err := replay.ReadFile(s.Path)
	if err != nil {
		return fmt.Errorf("replay %s: %w", s.Path, err)
	}
	speed := s.Speed
	if speed == 0 {
		speed = 1
	}
	now := s.now
	if now == nil {
		now = time.Now
	}
	return replay.Play(ctx, recs, speed, s.Loop, s.sleeper, func(frame []byte) error {
		raw := make([]byte, len(frame))
		copy(raw, frame)
		return send(ctx, out, Delivery{Source: s.Name(), ReceivedAt: now(), Raw: raw})
	})
}
