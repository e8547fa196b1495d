// Package peer implements PeerSession and its Cleanup Scope (spec.md §4.3):
// one remote browser's media and signaling state, including the panic-safe
// resource release guaranteed by internal/cleanup.
//
// Grounded on the teacher's sfuPeer in webrtc/sfu.go: its
// candMu+candQueue+remoteSet ICE-queueing fields, makingOffer atomic.Bool,
// and closed chan struct{} are generalized here into explicit state-machine
// fields plus a cleanup.Scope, and the per-peer single outbound video track
// is built the way sfu.go's OnTrack handler builds a per-subscriber relayed
// track — but simplified from the teacher's CV-relay/rewrite model to this
// spec's single-encoder-per-camera fan-out via a distributor.Subscription.
package peer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"

	"github.com/n0remac/camhub/internal/cleanup"
	"github.com/n0remac/camhub/internal/config"
	"github.com/n0remac/camhub/internal/distributor"
	"github.com/n0remac/camhub/internal/mediaerr"
)

// Session is one remote browser's media and signaling state.
type Session struct {
	ID        string
	CreatedAt time.Time

	log *zap.Logger
	cfg config.CameraConfig

	state atomic.Int32

	mu             sync.Mutex
	lastPing       time.Time
	payloadType    uint8
	pc             *webrtc.PeerConnection
	track          *webrtc.TrackLocalStaticSample
	sub            *distributor.Subscription
	remoteSet      bool
	queuedCandidates []webrtc.ICECandidateInit

	consecutiveLagged int

	sendICE func(webrtc.ICECandidateInit)
	onTerminate func(reason error)

	Scope *cleanup.Scope
}

// New creates a Fresh Session with a server-assigned UUID v4 peer id, per
// spec.md §4.4 and boundary behavior 11.
func New(cfg config.CameraConfig, log *zap.Logger, sendICE func(webrtc.ICECandidateInit), onTerminate func(reason error)) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now(),
		log:         log,
		cfg:         cfg,
		lastPing:    time.Now(),
		sendICE:     sendICE,
		onTerminate: onTerminate,
		Scope:       cleanup.New(),
	}
	s.state.Store(int32(StateFresh))
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(next State) {
	s.state.Store(int32(next))
}

// Touch records a ping timestamp, per spec.md §4.4 liveness handling.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastPing = time.Now()
	s.mu.Unlock()
}

// LastPing returns the last recorded ping timestamp.
func (s *Session) LastPing() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPing
}

// HandleICECandidate implements spec.md §4.3's handle_ice_candidate: if the
// remote description is set, the candidate is added immediately; otherwise
// it is queued and flushed, in order, once the remote description lands.
func (s *Session) HandleICECandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	if !s.remoteSet {
		s.queuedCandidates = append(s.queuedCandidates, c)
		s.mu.Unlock()
		return nil
	}
	pc := s.pc
	s.mu.Unlock()
	return pc.AddICECandidate(c)
}

// flushQueuedCandidates applies, in order, every ICE candidate queued
// before the remote description was set. Called once remoteSet becomes
// true.
func (s *Session) flushQueuedCandidates() error {
	s.mu.Lock()
	queued := s.queuedCandidates
	s.queuedCandidates = nil
	pc := s.pc
	s.mu.Unlock()

	for _, c := range queued {
		if err := pc.AddICECandidate(c); err != nil {
			return err
		}
	}
	return nil
}

// OnLocalICE pushes a local ICE candidate to the signaling endpoint, per
// spec.md §4.3's on_local_ice, in gathering order.
func (s *Session) OnLocalICE(c webrtc.ICECandidateInit) {
	if s.sendICE != nil {
		s.sendICE(c)
	}
}

// OnConnectionState drives the state machine transitions of spec.md §4.3
// from pion's ICE/peer-connection state callback.
func (s *Session) OnConnectionState(pcs webrtc.PeerConnectionState) {
	switch pcs {
	case webrtc.PeerConnectionStateConnected:
		s.setState(StateConnected)
	case webrtc.PeerConnectionStateDisconnected:
		s.setState(StateDisconnected)
		go s.disconnectGraceTimer(10 * time.Second)
	case webrtc.PeerConnectionStateFailed:
		s.setState(StateFailed)
		s.terminate(&mediaerr.PeerFailed{PeerID: s.ID})
	case webrtc.PeerConnectionStateClosed:
		s.setState(StateTerminated)
		s.terminate(nil)
	}
}

func (s *Session) disconnectGraceTimer(grace time.Duration) {
	time.Sleep(grace)
	if s.State() == StateDisconnected {
		s.setState(StateTerminated)
		s.terminate(&mediaerr.PeerFailed{PeerID: s.ID})
	}
}

// terminate runs the cleanup scope exactly once and notifies the owning
// registry/hub, satisfying spec.md invariant 2.
func (s *Session) terminate(reason error) {
	s.Scope.Run()
	if s.onTerminate != nil {
		s.onTerminate(reason)
	}
}

// Terminate is the externally triggered equivalent of terminate, used by
// the registry (e.g. PingTimeout, EncoderFault-driven TerminateAll) and by
// WriteLoop's SlowSubscriber self-termination.
func (s *Session) Terminate(reason error) {
	s.setState(StateTerminated)
	s.terminate(reason)
}

// AttachPeerConnection records the pion PeerConnection and its outbound
// video track, registering their Close with the cleanup scope at
// acquisition time per spec.md §4.3.
func (s *Session) AttachPeerConnection(pc *webrtc.PeerConnection, track *webrtc.TrackLocalStaticSample, payloadType uint8) {
	s.mu.Lock()
	s.pc = pc
	s.track = track
	s.payloadType = payloadType
	s.mu.Unlock()

	s.Scope.Defer(func() {
		_ = pc.Close()
	})
}

// SetRemoteDescriptionApplied marks the remote description as set and
// flushes queued ICE candidates, per spec.md §4.3's Answered transition.
func (s *Session) SetRemoteDescriptionApplied() error {
	s.mu.Lock()
	s.remoteSet = true
	s.mu.Unlock()
	s.setState(StateAnswered)
	return s.flushQueuedCandidates()
}

// AttachSubscription records the distributor subscription, registering its
// release with the cleanup scope at acquisition time. onReleased, if not
// nil, runs immediately after Unsubscribe — the hub uses it to flush the
// capture graph when the subscriber set transitions to empty (spec.md
// §4.1's flush() contract).
func (s *Session) AttachSubscription(sub *distributor.Subscription, onReleased func()) {
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	s.Scope.Defer(func() {
		sub.Unsubscribe()
		if onReleased != nil {
			onReleased()
		}
	})
}

// WriteLoop pulls encoded frames from the session's subscription and feeds
// them to the outbound track until ctx is done or the subscription closes.
// Implements spec.md §4.3's write_loop, including self-termination on
// SlowSubscriber once more than slowThreshold consecutive Lagged(n) events
// have been observed.
//
// The cleanup scope runs unconditionally on exit, including on panic
// unwind (via cleanup.Scope.RunProtected), satisfying invariant 2 and
// re-architecture note 1 of spec.md §9.
func (s *Session) WriteLoop(ctx context.Context, slowThreshold int) {
	s.Scope.RunProtected(func() {
		for {
			s.mu.Lock()
			sub, track := s.sub, s.track
			s.mu.Unlock()
			if sub == nil || track == nil {
				return
			}

			f, result, n, err := sub.Recv(ctx)
			if err != nil {
				return
			}
			switch result {
			case distributor.ResultClosed:
				return
			case distributor.ResultLagged:
				s.consecutiveLagged++
				if s.consecutiveLagged > slowThreshold {
					s.Terminate(&mediaerr.SlowSubscriber{PeerID: s.ID, Consecutive: s.consecutiveLagged})
					return
				}
				if s.log != nil {
					s.log.Warn("subscriber lagged",
						zap.String("peer_id", s.ID), zap.Int("skipped", n))
				}
			case distributor.ResultOK:
				s.consecutiveLagged = 0
			}

			dur := time.Second
			if s.cfg.FPS > 0 {
				dur = time.Second / time.Duration(s.cfg.FPS)
			}
			if err := track.WriteSample(media.Sample{Data: f.Payload, Duration: dur}); err != nil {
				if s.log != nil {
					s.log.Warn("track write failed", zap.String("peer_id", s.ID), zap.Error(err))
				}
				return
			}

			if s.State() == StateTerminated || s.State() == StateFailed {
				return
			}
		}
	})
}
