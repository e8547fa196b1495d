package sensorbus

import (
	"sync"

	"go.uber.org/zap"
)

// fanoutBuffer is the per-peer bounded queue depth chosen for the sensor
// data-channel fan-out; see SPEC_FULL.md §4.6's resolution of the sensor
// overflow Open Question in favor of drop-on-overflow.
const fanoutBuffer = 256

// Fanout delivers sensor-bus payloads, unmodified, to every registered
// peer sink. Unlike the frame distributor it carries no Lagged(n) semantics
// — sensor payloads are not encoded frames, and spec.md §9 leaves
// data-channel backpressure an open question. This resolves it as
// drop-on-overflow: a slow peer's channel fills, the oldest unsent message
// is dropped, and a counter increments, rather than stalling delivery to
// every other peer behind the slowest one.
type Fanout struct {
	mu       sync.RWMutex
	sinks    map[string]chan []byte
	dropped  map[string]int
	log      *zap.Logger
}

// NewFanout returns an empty Fanout.
func NewFanout(log *zap.Logger) *Fanout {
	return &Fanout{
		sinks:   make(map[string]chan []byte),
		dropped: make(map[string]int),
		log:     log,
	}
}

// Register adds peerID as a fan-out destination and returns the channel it
// should range over to forward payloads onto its data channel.
func (f *Fanout) Register(peerID string) <-chan []byte {
	ch := make(chan []byte, fanoutBuffer)
	f.mu.Lock()
	f.sinks[peerID] = ch
	f.mu.Unlock()
	return ch
}

// Unregister removes peerID and closes its channel. Idempotent.
func (f *Fanout) Unregister(peerID string) {
	f.mu.Lock()
	ch, ok := f.sinks[peerID]
	delete(f.sinks, peerID)
	delete(f.dropped, peerID)
	f.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Broadcast delivers payload to every registered peer. For any peer whose
// channel is currently full, the oldest queued payload is dropped to make
// room for the new one.
func (f *Fanout) Broadcast(payload []byte) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for peerID, ch := range f.sinks {
		select {
		case ch <- payload:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- payload:
			default:
			}
			f.dropped[peerID]++
			if f.log != nil {
				f.log.Warn("sensor fanout dropped message for slow peer",
					zap.String("peer_id", peerID),
					zap.Int("dropped_total", f.dropped[peerID]))
			}
		}
	}
}

// DroppedCount returns the number of messages dropped for peerID so far.
func (f *Fanout) DroppedCount(peerID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped[peerID]
}
