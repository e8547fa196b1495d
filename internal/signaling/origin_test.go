package signaling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOriginAllowedWildcard(t *testing.T) {
	require.True(t, OriginAllowed([]string{"*"}, "https://evil.example"))
}

func TestOriginAllowedEmptyOriginAlwaysPermitted(t *testing.T) {
	require.True(t, OriginAllowed([]string{"https://console.example"}, ""))
}

// TestOriginRejection covers scenario S2: an origin not on the allow-list
// is denied.
func TestOriginRejection(t *testing.T) {
	require.False(t, OriginAllowed([]string{"https://console.example"}, "https://evil.example"))
	require.True(t, OriginAllowed([]string{"https://console.example"}, "https://console.example"))
}
