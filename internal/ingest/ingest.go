// Package ingest moves complete raw buoy frames from a transport (serial
// device, MQTT, capture log replay, simulator, on-board IMU) into the
// station queue.
//
// Every source delivers immutable byte slices; nothing downstream of a
// Delivery shares memory with the transport's buffers.
package ingest

import (
	"context"
	"time"
)

type Delivery struct {
	Source     string
	ReceivedAt time.Time
	Raw        []byte
}

// Source produces deliveries until ctx is cancelled or the transport is
// exhausted. Run returns nil on clean completion and ctx.Err() on cancellation.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- Delivery) error
}

// send blocks until d is queued or ctx is done.
func send(ctx context.Context, out chan<- Delivery, d Delivery) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- d:
		return nil
	}
}

// offer queues d without blocking and reports whether it was accepted.
func offer(out chan<- Delivery, d Delivery) bool {
	select {
	case out <- d:
		return true
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
