// Package cleanup implements the Cleanup Scope of spec.md §4.3: an ordered
// collection of idempotent release actions that runs in reverse insertion
// order on any exit path, including panic unwinding.
//
// Grounded on the teacher's sfuPeer bookkeeping in webrtc/sfu.go (its
// sendersMu+senders map, candMu+candQueue, and closed chan struct{}, each a
// distinct ad-hoc release concern scattered across the peer struct),
// generalized into a single ordered list of release actions registered at
// acquisition time.
package cleanup

import "sync"

// Scope holds the cleanup actions for one PeerSession.
type Scope struct {
	mu      sync.Mutex
	actions []func()
	ran     bool
}

// New returns an empty Scope.
func New() *Scope {
	return &Scope{}
}

// Defer registers action to run when Run is called. Actions run in the
// reverse of the order they were registered, mirroring defer semantics.
func (s *Scope) Defer(action func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ran {
		// Scope already ran; run the action immediately so a resource
		// acquired after teardown began is never leaked.
		action()
		return
	}
	s.actions = append(s.actions, action)
}

// Run executes every registered action in reverse order. It is idempotent:
// a second call is a no-op, satisfying spec.md's round-trip property 6.
func (s *Scope) Run() {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return
	}
	s.ran = true
	actions := s.actions
	s.actions = nil
	s.mu.Unlock()

	for i := len(actions) - 1; i >= 0; i-- {
		actions[i]()
	}
}

// RunProtected wraps body with a deferred recover-then-Run, so the scope
// always runs even if body panics. The recovered value, if any, is
// re-panicked after cleanup so the caller's own recovery (e.g. a top-level
// goroutine guard) still observes it.
func (s *Scope) RunProtected(body func()) {
	defer func() {
		r := recover()
		s.Run()
		if r != nil {
			panic(r)
		}
	}()
	body()
}
