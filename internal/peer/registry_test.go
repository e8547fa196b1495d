package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/n0remac/camhub/internal/config"
)

func newRegistryTestSession(t *testing.T) *Session {
	t.Helper()
	return New(config.CameraConfig{ID: "cam-1"}, zap.NewNop(), func(webrtc.ICECandidateInit) {}, func(error) {})
}

func TestRegistrySnapshotIteratesWithoutHoldingLock(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 50; i++ {
		r.Add(newRegistryTestSession(t))
	}
	require.Equal(t, 50, r.Count())

	// snapshotIDs must not hold the registry lock while the caller iterates;
	// concurrent Add/Remove during iteration must not deadlock or race.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			r.Add(newRegistryTestSession(t))
		}
	}()

	ids := r.snapshotIDs()
	for _, id := range ids {
		_, _ = r.Get(id)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, r.Count(), 50)
}

func TestTerminateAllClearsRegistryAndTerminatesSessions(t *testing.T) {
	r := NewRegistry()
	sessions := make([]*Session, 5)
	for i := range sessions {
		sessions[i] = newRegistryTestSession(t)
		r.Add(sessions[i])
	}
	require.Equal(t, 5, r.Count())

	r.TerminateAll(nil)

	assert.Equal(t, 0, r.Count())
	for _, s := range sessions {
		assert.Equal(t, StateTerminated, s.State())
	}
}

func TestTerminateAllOnEmptyRegistryIsNoop(t *testing.T) {
	r := NewRegistry()
	r.TerminateAll(nil)
	assert.Equal(t, 0, r.Count())
}

func TestPruneExpiredPingsRemovesOnlyTimedOutSessions(t *testing.T) {
	r := NewRegistry()

	fresh := newRegistryTestSession(t)
	stale := newRegistryTestSession(t)
	r.Add(fresh)
	r.Add(stale)

	// Backdate the stale session's last ping past the timeout threshold.
	stale.mu.Lock()
	stale.lastPing = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	r.PruneExpiredPings(func(s *Session) bool {
		return time.Since(s.LastPing()) > time.Minute
	})

	assert.Equal(t, 1, r.Count())
	_, freshStillPresent := r.Get(fresh.ID)
	assert.True(t, freshStillPresent)
	_, staleStillPresent := r.Get(stale.ID)
	assert.False(t, staleStillPresent)
	assert.Equal(t, StateTerminated, stale.State())
	assert.NotEqual(t, StateTerminated, fresh.State())
}
