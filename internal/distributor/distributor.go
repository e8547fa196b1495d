// Package distributor implements the zero-copy frame broadcast described in
// spec.md §4.2: publish is non-blocking and O(1); a subscriber that falls
// more than `capacity` frames behind observes a Lagged(n) marker and
// resumes at the newest frame, never blocking the producer or any other
// subscriber.
//
// No library in the retrieved corpus implements this ring-buffer broadcast
// with lag reporting (the nearest idiom, cvpipe.Pipeline's per-subscriber
// channel fan-out, drops frames silently with no signal back to the
// subscriber). This is a from-scratch implementation on top of a mutex-
// guarded ring plus a swapped notification channel, generalizing that
// fan-out idiom to carry an explicit Lagged(n) marker.
package distributor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/n0remac/camhub/internal/frame"
)

// Distributor is a multi-producer-in-practice-single-producer,
// multi-consumer broadcast of frame.Encoded with fixed ring capacity.
type Distributor struct {
	capacity int64

	mu       sync.Mutex
	buf      []frame.Encoded
	writeSeq int64 // index of the last published frame; -1 if none yet
	closed   bool
	notify   chan struct{}

	subscriberCount int64
}

// New creates a Distributor with the given ring capacity. Capacity must be
// >= 2 per spec.md §4.2; New panics otherwise since this is a programmer
// error caught by config validation well before this point.
func New(capacity int) *Distributor {
	if capacity < 2 {
		panic("distributor: capacity must be >= 2")
	}
	return &Distributor{
		capacity: int64(capacity),
		buf:      make([]frame.Encoded, capacity),
		writeSeq: -1,
		notify:   make(chan struct{}),
	}
}

// Publish delivers frame f to every current subscriber. It never blocks;
// besides the ring slot write it allocates only a fresh notification channel.
func (d *Distributor) Publish(f frame.Encoded) {
	d.mu.Lock()
	d.writeSeq++
	d.buf[d.writeSeq%d.capacity] = f
	old := d.notify
	d.notify = make(chan struct{})
	d.mu.Unlock()
	close(old)
}

// Close marks the distributor as done; all current and future
// subscriptions observe Closed once they have drained buffered frames.
func (d *Distributor) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	old := d.notify
	d.notify = make(chan struct{})
	d.mu.Unlock()
	close(old)
}

// SubscriberCount returns the number of live subscriptions, for metrics per
// spec.md §4.2.
func (d *Distributor) SubscriberCount() int {
	return int(atomic.LoadInt64(&d.subscriberCount))
}

// Subscribe creates a new Subscription starting from the next frame
// published after this call, per spec.md §4.2.
func (d *Distributor) Subscribe() *Subscription {
	d.mu.Lock()
	start := d.writeSeq + 1
	d.mu.Unlock()
	atomic.AddInt64(&d.subscriberCount, 1)
	return &Subscription{d: d, nextSeq: start}
}

// Subscription is a single consumer's cursor into a Distributor's ring.
type Subscription struct {
	d       *Distributor
	nextSeq int64
	closed  bool
}

// Result is the tag of a Recv call's outcome.
type Result int

const (
	ResultOK Result = iota
	ResultLagged
	ResultClosed
)

// Recv blocks until a frame is available, the distributor is closed, or
// ctx is done, matching spec.md §4.2's Ok/Lagged(n)/Closed contract.
func (s *Subscription) Recv(ctx context.Context) (frame.Encoded, Result, int, error) {
	d := s.d
	for {
		d.mu.Lock()
		oldest := d.writeSeq - d.capacity + 1
		if oldest < 0 {
			oldest = 0
		}
		switch {
		case s.nextSeq < oldest && d.writeSeq >= 0:
			n := int(oldest - s.nextSeq)
			s.nextSeq = d.writeSeq // resume at newest per spec.md §4.2
			f := d.buf[d.writeSeq%d.capacity]
			d.mu.Unlock()
			s.nextSeq++
			return f, ResultLagged, n, nil
		case s.nextSeq <= d.writeSeq:
			f := d.buf[s.nextSeq%d.capacity]
			s.nextSeq++
			d.mu.Unlock()
			return f, ResultOK, 0, nil
		case d.closed:
			d.mu.Unlock()
			return frame.Encoded{}, ResultClosed, 0, nil
		}
		ch := d.notify
		d.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return frame.Encoded{}, ResultClosed, 0, ctx.Err()
		}
	}
}

// Unsubscribe decrements the distributor's subscriber count. It is
// idempotent; calling it more than once has no further effect.
func (s *Subscription) Unsubscribe() {
	if s.closed {
		return
	}
	s.closed = true
	atomic.AddInt64(&s.d.subscriberCount, -1)
}
