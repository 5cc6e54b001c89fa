package web

import (
	"sync"

	"wavebuoy/internal/station"
)

// LiveBroadcaster fans results out to /api/live subscribers. It keeps the
// most recent result so new subscribers get an immediate value. Slow
// subscribers miss results rather than blocking the station.
type LiveBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan station.Result
	nextID   int
	last     station.Result
	haveLast bool

	// onChange, when set, is called with the subscriber count after every
	// Subscribe/Unsubscribe.
	onChange func(n int)
}

func NewLiveBroadcaster(onChange func(n int)) *LiveBroadcaster {
	return &LiveBroadcaster{
		subs:     make(map[int]chan station.Result),
		onChange: onChange,
	}
}

func (b *LiveBroadcaster) Subscribe(buffer int) (int, <-chan station.Result) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan station.Result, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.haveLast {
		ch <- b.last
	}
	n := len(b.subs)
	b.mu.Unlock()
	b.notify(n)
	return id, ch
}

func (b *LiveBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	n := len(b.subs)
	b.mu.Unlock()
	if ok {
		b.notify(n)
	}
}

func (b *LiveBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Observe implements station.Observer.
func (b *LiveBroadcaster) Observe(r station.Result) {
	if b == nil {
		return
	}
	// Sends happen under the write lock so Unsubscribe cannot close a
	// channel mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- r:
		default:
		}
	}
	b.last = r
	b.haveLast = true
}

func (b *LiveBroadcaster) notify(n int) {
	if b.onChange != nil {
		b.onChange(n)
	}
}
