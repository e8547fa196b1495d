package signaling

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/n0remac/camhub/internal/mediaerr"
	"github.com/n0remac/camhub/internal/peer"
)

// HandleOfferFunc negotiates an inbound offer for a session and returns
// the answer SDP.
type HandleOfferFunc func(s *peer.Session, offerSDP string) (answerSDP string, err error)

// Endpoint is the WebSocket signaling server bound to one hub's port,
// implementing spec.md §4.4's message routing table.
type Endpoint struct {
	AllowedOrigins []string
	SendBufferSize int
	SendTimeout    time.Duration
	PingTimeout    time.Duration

	NewSession  func(sendICE func(webrtc.ICECandidateInit), onTerminate func(error)) *peer.Session
	HandleOffer HandleOfferFunc
	Registry    *peer.Registry

	Log *zap.Logger

	upgrader websocket.Upgrader
}

// NewEndpoint builds an Endpoint with its upgrader wired to the origin
// allow-list check.
func NewEndpoint() *Endpoint {
	e := &Endpoint{}
	e.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return OriginAllowed(e.AllowedOrigins, r.Header.Get("Origin"))
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return e
}

// ServeHTTP upgrades the connection. When the origin check fails it logs a
// WebSocketUpgradeDenied error and answers with an HTTP 403.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !OriginAllowed(e.AllowedOrigins, origin) {
		denied := &mediaerr.WebSocketUpgradeDenied{Origin: origin, AllowList: e.AllowedOrigins}
		if e.Log != nil {
			e.Log.Warn("websocket upgrade denied", zap.Error(denied),
				zap.String("origin", origin), zap.Strings("allow_list", e.AllowedOrigins))
		}
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if e.Log != nil {
			e.Log.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}

	var session *peer.Session
	conn := NewConn(ws, e.SendBufferSize, e.SendTimeout, e.Log, func(err error) {
		if session != nil {
			e.Registry.Remove(session.ID)
			session.Terminate(err)
		}
	})

	session = e.NewSession(
		func(c webrtc.ICECandidateInit) {
			payload, _ := json.Marshal(CandidatePayload{Candidate: c.Candidate, SDPMLineIndex: derefUint16(c.SDPMLineIndex)})
			env, _ := Encode(TypeCandidate, json.RawMessage(payload))
			_ = conn.Send(session.ID, env)
		},
		func(error) {
			conn.Close(nil)
		},
	)
	e.Registry.Add(session)

	go conn.WritePump()
	e.readPump(conn, session)
}

func derefUint16(p *uint16) uint16 {
	if p == nil {
		return 0
	}
	return *p
}

func (e *Endpoint) readPump(conn *Conn, session *peer.Session) {
	defer func() {
		e.Registry.Remove(session.ID)
		conn.Close(nil)
	}()

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			e.replyError(conn, session, "malformed message")
			continue
		}

		switch env.Type {
		case TypeOffer:
			e.handleOffer(conn, session, env)
		case TypeAnswer:
			e.handleAnswer(conn, session, env)
		case TypeCandidate:
			e.handleCandidate(conn, session, env)
		case TypePing:
			session.Touch()
			pong, _ := Encode(TypePong, nil)
			_ = conn.Send(session.ID, pong)
		default:
			e.replyError(conn, session, "unknown message type")
		}
	}
}

func (e *Endpoint) handleOffer(conn *Conn, session *peer.Session, env Envelope) {
	var payload SDPPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		e.replyError(conn, session, "malformed offer")
		return
	}

	answerSDP, err := e.HandleOffer(session, payload.SDP)
	if err != nil {
		e.replyError(conn, session, err.Error())
		return
	}

	answer, _ := json.Marshal(SDPPayload{Type: "answer", SDP: answerSDP})
	msg, _ := Encode(TypeAnswer, json.RawMessage(answer))
	_ = conn.Send(session.ID, msg)
}

// handleAnswer routes a remote answer to the session, for the symmetric
// core-initiated-offer case of spec.md §4.4's routing table. Unlike
// handleOffer, no reply is sent back.
func (e *Endpoint) handleAnswer(conn *Conn, session *peer.Session, env Envelope) {
	var payload SDPPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		e.replyError(conn, session, "malformed answer")
		return
	}

	if err := session.HandleAnswer(payload.SDP); err != nil {
		e.replyError(conn, session, err.Error())
	}
}

func (e *Endpoint) handleCandidate(conn *Conn, session *peer.Session, env Envelope) {
	var payload CandidatePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		e.replyError(conn, session, "malformed candidate")
		return
	}
	mLineIndex := payload.SDPMLineIndex
	if err := session.HandleICECandidate(webrtc.ICECandidateInit{
		Candidate:     payload.Candidate,
		SDPMLineIndex: &mLineIndex,
	}); err != nil {
		e.replyError(conn, session, err.Error())
	}
}

func (e *Endpoint) replyError(conn *Conn, session *peer.Session, message string) {
	msg, _ := Encode(TypeError, ErrorPayload{Message: message})
	_ = conn.Send(session.ID, msg)
}

// StartPingSweep periodically prunes sessions whose last ping is older
// than e.PingTimeout, per spec.md §4.4's liveness contract.
func (e *Endpoint) StartPingSweep(stop <-chan struct{}) {
	ticker := time.NewTicker(e.PingTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Registry.PruneExpiredPings(func(s *peer.Session) bool {
				return time.Since(s.LastPing()) > e.PingTimeout
			})
		case <-stop:
			return
		}
	}
}
