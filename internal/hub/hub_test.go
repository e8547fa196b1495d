package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0remac/camhub/internal/config"
)

func TestNewAPIRegistersConfiguredCodec(t *testing.T) {
	api, err := newAPI(config.CodecH264)
	require.NoError(t, err)
	require.NotNil(t, api)

	api, err = newAPI(config.CodecVP8)
	require.NoError(t, err)
	require.NotNil(t, api)
}

func TestIceServersWithoutTURN(t *testing.T) {
	h := &Hub{
		global: config.Config{STUNServers: []string{"stun:stun.example.com:3478"}},
	}
	servers := h.iceServers("peer-1")
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
}

func TestIceServersWithTURNIssuesDistinctCredentials(t *testing.T) {
	h := &Hub{
		global: config.Config{
			STUNServers: []string{"stun:stun.example.com:3478"},
			TURN: config.TURN{
				URL:    "turn:turn.example.com:3478",
				Secret: "shared-secret",
				TTL:    time.Hour,
			},
		},
	}

	serversA := h.iceServers("peer-a")
	serversB := h.iceServers("peer-b")
	require.Len(t, serversA, 2)
	require.Len(t, serversB, 2)

	turnA := serversA[1]
	turnB := serversB[1]
	assert.Equal(t, "turn:turn.example.com:3478", turnA.URLs[0])
	assert.NotEqual(t, turnA.Username, turnB.Username)
	assert.NotEqual(t, turnA.Credential, turnB.Credential)
}
