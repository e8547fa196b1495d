// Package hub implements CameraHub (spec.md §3/§2): the per-camera
// aggregate that exclusively owns the Capture Graph, Frame Distributor, and
// Signaling Endpoint, and maps peer ids to PeerSessions via a Peer
// Registry.
//
// Grounded on the teacher's webrtc.Server in the angkira reference file
// (other_examples/38756aa2_angkira-rpi-webrtc-streamer__go-webrtc-server.go.go):
// its Server struct (camera, signaling, peers, httpServer, streaming state)
// and Start/Stop/streamFramesToPeers lifecycle is the closest style match
// to a single-hub-per-camera aggregate, though its distributeFrame (a bare
// per-peer loop with no Lagged semantics) is replaced here by
// internal/distributor.
package hub

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/n0remac/camhub/internal/capture"
	"github.com/n0remac/camhub/internal/codec"
	"github.com/n0remac/camhub/internal/config"
	"github.com/n0remac/camhub/internal/distributor"
	"github.com/n0remac/camhub/internal/frame"
	"github.com/n0remac/camhub/internal/mediaerr"
	"github.com/n0remac/camhub/internal/peer"
	"github.com/n0remac/camhub/internal/sensorbus"
	"github.com/n0remac/camhub/internal/signaling"
	"github.com/n0remac/camhub/internal/turncred"
)

// Hub is one camera's top-level aggregate.
type Hub struct {
	cfg    config.CameraConfig
	global config.Config
	log    *zap.Logger

	graph        *capture.Graph
	distributor  *distributor.Distributor
	registry     *peer.Registry
	endpoint     *signaling.Endpoint
	api          *webrtc.API
	httpServer   *http.Server
	sensorFanout *sensorbus.Fanout
	sensorSub    sensorbus.Subscription
}

// New constructs a Hub for cfg. The capture graph and signaling server are
// not started until Start is called.
func New(cfg config.CameraConfig, global config.Config, log *zap.Logger, sensors sensorbus.Subscriber) (*Hub, error) {
	api, err := newAPI(cfg.Codec)
	if err != nil {
		return nil, err
	}

	h := &Hub{
		cfg:         cfg,
		global:      global,
		log:         log.With(zap.String("camera", cfg.ID)),
		distributor: distributor.New(global.DistributorCapacity),
		registry:    peer.NewRegistry(),
		api:         api,
	}

	h.graph = capture.New(cfg, h.log, h.onEncodedFrame, h.onEncoderFault)

	h.endpoint = signaling.NewEndpoint()
	h.endpoint.AllowedOrigins = global.AllowedOrigins
	h.endpoint.SendBufferSize = global.SendBufferSize
	h.endpoint.SendTimeout = global.SendTimeout
	h.endpoint.PingTimeout = global.PingTimeout
	h.endpoint.Registry = h.registry
	h.endpoint.Log = h.log
	h.endpoint.NewSession = h.newSession
	h.endpoint.HandleOffer = h.handleOffer

	if cfg.Sensors.Enabled {
		h.sensorFanout = sensorbus.NewFanout(h.log)
		if sensors != nil {
			sub, err := sensors.Subscribe(context.Background(), cfg.Sensors.Topic, func(payload []byte) error {
				h.sensorFanout.Broadcast(payload)
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("subscribing to sensor topic %q: %w", cfg.Sensors.Topic, err)
			}
			h.sensorSub = sub
		}
	}

	return h, nil
}

func newAPI(family config.CodecFamily) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	codecCap := webrtc.RTPCodecCapability{
		MimeType:    codec.MimeType(family),
		ClockRate:   90000,
		RTCPFeedback: []webrtc.RTCPFeedback{{Type: "nack"}, {Type: "nack", Parameter: "pli"}, {Type: "goog-remb"}},
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{RTPCodecCapability: codecCap, PayloadType: 96}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	reg := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, reg); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(reg)), nil
}

// Start brings the capture graph and signaling server up. Fails with
// mediaerr.CaptureStart if the device cannot be opened.
func (h *Hub) Start(ctx context.Context) error {
	if err := h.graph.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", h.endpoint)
	h.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", h.cfg.SignalingPort), Handler: mux}

	go func() {
		if err := h.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.log.Error("signaling server stopped", zap.Error(err))
		}
	}()

	stop := make(chan struct{})
	go h.endpoint.StartPingSweep(stop)

	h.log.Info("hub started", zap.Int("signaling_port", h.cfg.SignalingPort))
	return nil
}

// Stop brings the capture graph down, closes the signaling server, and
// terminates every live session.
func (h *Hub) Stop(ctx context.Context) {
	h.registry.TerminateAll(nil)
	if h.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = h.httpServer.Shutdown(shutdownCtx)
	}
	if h.sensorSub != nil {
		_ = h.sensorSub.Unsubscribe()
	}
	h.distributor.Close()
	h.graph.Stop()
}

func (h *Hub) onEncodedFrame(f frame.Encoded) {
	h.distributor.Publish(f)
}

// onEncoderFault implements spec.md §4.1's mid-stream failure semantics:
// terminate all sessions, then restart the graph with capped exponential
// backoff (the resolved Open Question from spec.md §9).
func (h *Hub) onEncoderFault(cause error) {
	h.log.Warn("encoder fault, restarting graph", zap.Error(cause))
	h.registry.TerminateAll(&mediaerr.EncoderFault{Camera: h.cfg.ID, Cause: cause})
	go func() {
		if err := h.graph.Restart(context.Background()); err != nil {
			h.log.Error("graph restart failed permanently", zap.Error(err))
		}
	}()
}

func (h *Hub) newSession(sendICE func(webrtc.ICECandidateInit), onTerminate func(error)) *peer.Session {
	return peer.New(h.cfg, h.log, sendICE, onTerminate)
}

func (h *Hub) handleOffer(s *peer.Session, offerSDP string) (string, error) {
	iceServers := h.iceServers(s.ID)
	deps := peer.Deps{
		API:         h.api,
		ICEServers:  iceServers,
		Distributor: h.distributor,
		OnSubscriptionReleased: func() {
			if h.distributor.SubscriberCount() == 0 {
				h.graph.Flush()
			}
		},
	}
	answer, err := s.HandleOffer(deps, offerSDP)
	if err != nil {
		return "", err
	}

	go s.WriteLoop(context.Background(), h.global.SlowThreshold)

	if h.cfg.Sensors.Enabled && h.sensorFanout != nil {
		ch := h.sensorFanout.Register(s.ID)
		s.Scope.Defer(func() { h.sensorFanout.Unregister(s.ID) })
		if err := s.ForwardSensorPayloads("sensors", ch); err != nil {
			h.log.Warn("failed to open sensor data channel", zap.String("peer_id", s.ID), zap.Error(err))
		}
	}

	return answer, nil
}

func (h *Hub) iceServers(peerID string) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(h.global.STUNServers)+1)
	for _, url := range h.global.STUNServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	if h.global.TURN.Secret != "" {
		username, password := turncred.Generate(h.global.TURN.Secret, peerID, h.global.TURN.TTL)
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{h.global.TURN.URL},
			Username:   username,
			Credential: password,
		})
	}
	return servers
}
