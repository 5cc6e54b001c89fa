// Package station turns deliveries from ingest sources into results: it
// archives and records the raw frame, runs the wave pipeline, updates
// metrics and fans the result out to observers.
package station

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"wavebuoy/internal/ingest"
	"wavebuoy/internal/metrics"
	"wavebuoy/internal/replay"
	"wavebuoy/internal/wave"
)

// Archive stores raw frames and returns an ID for each.
type Archive interface {
	Put(ctx context.Context, source string, receivedAt time.Time, raw []byte) (string, error)
}

// Recorder appends raw frames to a capture log.
type Recorder interface {
	WriteFrame(now time.Time, frame []byte) error
}

// Publisher sends a result to a remote consumer.
type Publisher interface {
	Publish(v any) error
}

// Observer receives every result. Implementations must not block.
type Observer interface {
	Observe(r Result)
}

type Options struct {
	Analyzer       *wave.Analyzer
	DepthM         float64
	DeclinationDeg float64
	Workers        int

	Archive   Archive
	Recorder  Recorder
	Publisher Publisher
	Metrics   *metrics.Metrics
	Observers []Observer
}

type Station struct {
	opts Options

	recMu sync.Mutex
	now   func() time.Time
}

func New(opts Options) (*Station, error) {
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("station: analyzer is nil")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if d := opts.DepthM; math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return nil, fmt.Errorf("station: %w", wave.ErrInvalidDepth)
	}
	return &Station{opts: opts, now: time.Now}, nil
}

// Run handles deliveries from in with a fixed pool of workers until in is
// closed or ctx is done.
func (s *Station) Run(ctx context.Context, in <-chan ingest.Delivery) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.opts.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case d, ok := <-in:
					if !ok {
						return nil
					}
					s.Handle(ctx, d)
				}
			}
		})
	}
	return g.Wait()
}

// Handle processes one delivery. Failures are logged and counted; they never
// stop the station.
func (s *Station) Handle(ctx context.Context, d ingest.Delivery) Result {
	m := s.opts.Metrics
	if m != nil {
		m.FrameReceived(d.Source)
	}

	var id string
	if s.opts.Archive != nil {
		var err error
		id, err = s.opts.Archive.Put(ctx, d.Source, d.ReceivedAt, d.Raw)
		if err != nil {
			log.Printf("station: archive frame from %s: %v", d.Source, err)
		}
	}
	if s.opts.Recorder != nil {
		s.recMu.Lock()
		err := s.opts.Recorder.WriteFrame(d.ReceivedAt, d.Raw)
		s.recMu.Unlock()
		if err != nil {
			log.Printf("station: record frame from %s: %v", d.Source, err)
		}
	}

	start := s.now()
	res, err := Evaluate(s.opts.Analyzer, d.Raw, s.opts.DepthM, s.opts.DeclinationDeg)
	elapsed := s.now().Sub(start)
	res.ID = id
	res.Source = d.Source
	res.ReceivedAt = d.ReceivedAt

	if err != nil {
		log.Printf("station: frame from %s rejected (%d bytes): %v", d.Source, len(d.Raw), err)
		if m != nil {
			m.FrameRejected(res.ErrorKind)
		}
	} else {
		for name, e := range res.Errors {
			log.Printf("station: frame from %s buffer=%d: no %s: %s", d.Source, res.BufferID, name, e.Message)
			if m != nil {
				m.StatisticError(name, e.Kind)
			}
		}
		if m != nil {
			m.ObserveAnalysis(elapsed, s.now())
			if res.HeightM != nil {
				m.SetHeight(*res.HeightM)
			}
			if res.PeriodS != nil {
				m.SetPeriod(*res.PeriodS)
			}
			if res.WavelengthM != nil {
				m.SetLength(*res.WavelengthM)
			}
		}
	}

	for _, o := range s.opts.Observers {
		o.Observe(res)
	}
	if s.opts.Publisher != nil && res.OK() {
		if err := s.opts.Publisher.Publish(res); err != nil {
			log.Printf("station: publish result: %v", err)
		}
	}
	return res
}

var _ Recorder = (*replay.Writer)(nil)
