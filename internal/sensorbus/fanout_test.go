package sensorbus

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFanoutDropsForSlowPeerWithoutBlockingOthers(t *testing.T) {
	f := NewFanout(zap.NewNop())
	slow := f.Register("slow")
	fast := f.Register("fast")

	// fast peer drains concurrently so its channel never fills; slow peer
	// never reads, so its channel fills and further sends are dropped.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range fast {
		}
	}()

	for i := 0; i < fanoutBuffer+10; i++ {
		f.Broadcast([]byte{byte(i)})
	}

	require.Greater(t, f.DroppedCount("slow"), 0)
	require.Equal(t, 0, f.DroppedCount("fast"))

	f.Unregister("fast")
	<-drained
	_ = slow
}

func TestUnregisterClosesChannel(t *testing.T) {
	f := NewFanout(zap.NewNop())
	ch := f.Register("peer")
	f.Unregister("peer")

	_, ok := <-ch
	require.False(t, ok, "channel must be closed on Unregister")

	// idempotent
	f.Unregister("peer")
}
