// Package mediaerr enumerates the error kinds surfaced by the media core.
package mediaerr

import (
	"fmt"
	"time"
)

// ConfigInvalid is returned when a configuration value fails validation at
// startup. Fatal for the hub that owns the invalid field.
type ConfigInvalid struct {
	Field  string
	Reason string
}

func (e *ConfigInvalid) Error() string {
	return fmt.Sprintf("config invalid: field %q: %s", e.Field, e.Reason)
}

// CaptureStart is returned when the capture graph fails to reach the
// running state: the device could not be opened or caps negotiation failed.
// Fatal for the hub.
type CaptureStart struct {
	Camera string
	Reason string
}

func (e *CaptureStart) Error() string {
	return fmt.Sprintf("capture start failed for camera %q: %s", e.Camera, e.Reason)
}

// EncoderFault is a mid-stream encoder failure that triggers a graph
// restart with backoff.
type EncoderFault struct {
	Camera string
	Cause  error
}

func (e *EncoderFault) Error() string {
	return fmt.Sprintf("encoder fault on camera %q: %v", e.Camera, e.Cause)
}

func (e *EncoderFault) Unwrap() error { return e.Cause }

// CodecNotOffered is returned when an SDP offer lists no payload type for
// the hub's configured codec family. It is reported to the peer as an error
// reply; the session and its WebSocket stay open for another offer.
type CodecNotOffered struct {
	Family string
}

func (e *CodecNotOffered) Error() string {
	return fmt.Sprintf("offer does not list codec family %q", e.Family)
}

// SdpMalformed is returned when an SDP blob cannot be parsed.
type SdpMalformed struct {
	Cause error
}

func (e *SdpMalformed) Error() string {
	return fmt.Sprintf("malformed sdp: %v", e.Cause)
}

func (e *SdpMalformed) Unwrap() error { return e.Cause }

// WebSocketUpgradeDenied is logged when an Origin header fails the
// allow-list check at upgrade time.
type WebSocketUpgradeDenied struct {
	Origin    string
	AllowList []string
}

func (e *WebSocketUpgradeDenied) Error() string {
	return fmt.Sprintf("websocket upgrade denied for origin %q (allow-list: %v)", e.Origin, e.AllowList)
}

// SendTimeout is returned when an outbound signaling send exceeds the
// configured send timeout.
type SendTimeout struct {
	PeerID string
}

func (e *SendTimeout) Error() string {
	return fmt.Sprintf("send timeout for peer %q", e.PeerID)
}

// SlowSubscriber is returned when a session observes too many consecutive
// Lagged(n) events and terminates itself.
type SlowSubscriber struct {
	PeerID      string
	Consecutive int
}

func (e *SlowSubscriber) Error() string {
	return fmt.Sprintf("peer %q is a slow subscriber (%d consecutive lagged events)", e.PeerID, e.Consecutive)
}

// PeerFailed is returned when a peer connection transitions to the Failed
// ICE/peer-connection state.
type PeerFailed struct {
	PeerID string
}

func (e *PeerFailed) Error() string {
	return fmt.Sprintf("peer %q connection failed", e.PeerID)
}

// PingTimeout is returned when a session's last ping exceeds the
// configured liveness timeout.
type PingTimeout struct {
	PeerID   string
	LastPing time.Time
}

func (e *PingTimeout) Error() string {
	return fmt.Sprintf("peer %q ping timeout (last ping %s ago)", e.PeerID, time.Since(e.LastPing))
}
