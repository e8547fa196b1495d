package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/n0remac/camhub/internal/mediaerr"
)

// Conn wraps one upgraded WebSocket connection with the bounded,
// blocking-with-timeout outbound send contract of spec.md §4.4: never
// silently drop a message (the teacher's own sendJSON in webrtc/sfu.go
// drops non-blockingly on a full queue — the antipattern spec.md §9 calls
// out by name — this replaces it with the mandated 5s-block-then-close).
type Conn struct {
	ws          *websocket.Conn
	send        chan []byte
	sendTimeout time.Duration
	log         *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
	onClose   func(err error)
}

// NewConn wraps ws with a bounded send queue of the given size.
func NewConn(ws *websocket.Conn, bufferSize int, sendTimeout time.Duration, log *zap.Logger, onClose func(err error)) *Conn {
	return &Conn{
		ws:          ws,
		send:        make(chan []byte, bufferSize),
		sendTimeout: sendTimeout,
		log:         log,
		closed:      make(chan struct{}),
		onClose:     onClose,
	}
}

// Send enqueues payload for delivery. It blocks for at most sendTimeout; on
// timeout the connection is closed with mediaerr.SendTimeout and the error
// is returned. No message is ever silently discarded (spec.md invariant 3).
func (c *Conn) Send(peerID string, payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return &mediaerr.SendTimeout{PeerID: peerID}
	case <-time.After(c.sendTimeout):
		err := &mediaerr.SendTimeout{PeerID: peerID}
		c.Close(err)
		return err
	}
}

// Close closes the connection exactly once, running onClose with the
// triggering error (nil for a clean close).
func (c *Conn) Close(err error) {
	first := false
	c.closeOnce.Do(func() {
		first = true
		close(c.closed)
		_ = c.ws.Close()
	})
	if first && c.onClose != nil {
		c.onClose(err)
	}
}

// WritePump drains the send queue to the underlying WebSocket until the
// connection is closed. Run this in its own goroutine; it is the single
// writer for ws, per spec.md §5's cooperative single-writer discipline.
func (c *Conn) WritePump() {
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				if c.log != nil {
					c.log.Warn("websocket write failed", zap.Error(err))
				}
				c.Close(err)
				return
			}
		case <-c.closed:
			return
		}
	}
}

// ReadMessage reads the next text frame, or returns an error once the
// connection is closed.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, msg, err := c.ws.ReadMessage()
	return msg, err
}
