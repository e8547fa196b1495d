package peer

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/n0remac/camhub/internal/codec"
	"github.com/n0remac/camhub/internal/distributor"
	"github.com/n0remac/camhub/internal/mediaerr"
)

var errNoPeerConnection = errors.New("peer: session has no peer connection attached yet")

// Deps bundles the collaborators HandleOffer needs beyond the Session
// itself: a pre-built webrtc.API (MediaEngine + interceptors registered
// once per hub, per spec.md §5's "exactly one encoder instance" analogue
// for negotiation state), ICE server list, and the camera's distributor.
type Deps struct {
	API         *webrtc.API
	ICEServers  []webrtc.ICEServer
	Distributor *distributor.Distributor
	// OnSubscriptionReleased runs after the session's subscription is
	// unsubscribed, so the hub can flush the capture graph when the
	// subscriber set becomes empty (spec.md §4.1).
	OnSubscriptionReleased func()
}

// HandleOffer implements spec.md §4.3's handle_offer: extracts the payload
// type for the hub's configured codec family, builds a payloader-backed
// outbound track, sets the remote description, creates and sets the local
// answer, and returns the answer SDP. Fails with mediaerr.CodecNotOffered
// when the offer lists no supported payload type.
func (s *Session) HandleOffer(deps Deps, offerSDP string) (answerSDP string, err error) {
	s.setState(StateOfferReceived)

	pt, err := codec.ExtractPayloadType(offerSDP, s.cfg.Codec)
	if err != nil {
		return "", err
	}

	pc, err := deps.API.NewPeerConnection(webrtc.Configuration{ICEServers: deps.ICEServers})
	if err != nil {
		return "", err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: codec.MimeType(s.cfg.Codec)},
		"video", s.ID,
	)
	if err != nil {
		_ = pc.Close()
		return "", err
	}
	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return "", err
	}

	s.AttachPeerConnection(pc, track, pt)

	sub := deps.Distributor.Subscribe()
	s.AttachSubscription(sub, deps.OnSubscriptionReleased)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		s.OnLocalICE(c.ToJSON())
	})
	pc.OnConnectionStateChange(s.OnConnectionState)

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return "", &mediaerr.SdpMalformed{Cause: err}
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", err
	}

	if err := s.SetRemoteDescriptionApplied(); err != nil {
		return "", err
	}

	return answer.SDP, nil
}

// HandleAnswer implements spec.md §4.4's handle_answer: applies a remote
// answer SDP to this session's peer connection. Used only when the hub
// itself initiated the offer (symmetric counterpart to HandleOffer); the
// current hub never does so, but the routing table commits to it for any
// future core-initiated renegotiation. Fails with errNoPeerConnection if
// called before a peer connection exists, and mediaerr.SdpMalformed if the
// answer cannot be applied.
func (s *Session) HandleAnswer(answerSDP string) error {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return errNoPeerConnection
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}); err != nil {
		return &mediaerr.SdpMalformed{Cause: err}
	}

	return s.SetRemoteDescriptionApplied()
}

// ForwardSensorPayloads creates the optional "sensors" data channel on this
// session's peer connection, for the hub whose SensorChannel.Enabled is
// true (spec.md §6), and forwards every payload received on ch onto it
// verbatim until ch closes or the session is torn down.
func (s *Session) ForwardSensorPayloads(label string, ch <-chan []byte) error {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return errNoPeerConnection
	}

	dc, err := pc.CreateDataChannel(label, nil)
	if err != nil {
		return err
	}
	s.Scope.Defer(func() { _ = dc.Close() })

	go func() {
		for payload := range ch {
			if dc.ReadyState() != webrtc.DataChannelStateOpen {
				continue
			}
			_ = dc.Send(payload)
		}
	}()
	return nil
}
