package peer

import (
	"sync"

	"github.com/n0remac/camhub/internal/mediaerr"
)

// Registry maps peer ids to live Sessions. Guarded by a short-critical-
// section lock per spec.md §5: iteration never holds the lock, it takes a
// snapshot of ids first.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Remove deregisters a session by id. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Get returns the session for id, if present.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// snapshotIDs returns a copy of the current session ids, taken under the
// lock, so callers can iterate without holding it (spec.md §5).
func (r *Registry) snapshotIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// TerminateAll terminates every currently registered session with reason,
// used when a hub restarts its encoder (spec.md §9's resolved Open
// Question: encoder restart terminates sessions rather than trying to
// resume them).
func (r *Registry) TerminateAll(reason error) {
	for _, id := range r.snapshotIDs() {
		if s, ok := r.Get(id); ok {
			s.Terminate(reason)
		}
		r.Remove(id)
	}
}

// PruneExpiredPings terminates every session whose last ping exceeds
// timeout, per spec.md §4.4's liveness contract.
func (r *Registry) PruneExpiredPings(timeout func(s *Session) bool) {
	for _, id := range r.snapshotIDs() {
		s, ok := r.Get(id)
		if !ok {
			continue
		}
		if timeout(s) {
			s.Terminate(&mediaerr.PingTimeout{PeerID: s.ID, LastPing: s.LastPing()})
			r.Remove(id)
		}
	}
}
