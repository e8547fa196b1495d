// Package signaling implements the per-hub WebSocket signaling endpoint of
// spec.md §4.4: offer/answer/ICE/ping JSON messages, a bounded outbound
// send queue with a blocking-then-close timeout, an origin allow-list, and
// ping/pong liveness tracking.
//
// Grounded on the teacher's websocket.WebsocketClient/Hub ReadPump/
// WritePump pattern (websocket/websocket.go), generalized from a
// multi-room game-signaling hub into a single-hub-per-camera endpoint, and
// from the teacher's CheckOrigin (single hardcoded production origin) into
// a configurable allow-list including the `*` wildcard.
package signaling

import "encoding/json"

// MessageType is the discriminator of the JSON wire protocol in spec.md §6.
type MessageType string

const (
	TypeOffer     MessageType = "offer"
	TypeAnswer    MessageType = "answer"
	TypeCandidate MessageType = "ice-candidate"
	TypePing      MessageType = "ping"
	TypePong      MessageType = "pong"
	TypeError     MessageType = "error"
)

// SDPPayload carries an offer or answer body.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidatePayload carries a trickled ICE candidate.
type CandidatePayload struct {
	Candidate     string `json:"candidate"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// ErrorPayload carries a user-visible error message; never leaks internal
// addresses or encoded frame bytes, per spec.md §7.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Envelope is the outer {"type":"...","data":{...}} shape of spec.md §6.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode marshals a typed payload into an Envelope's wire bytes.
func Encode(t MessageType, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: t, Data: raw})
}
