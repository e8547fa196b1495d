package signaling

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startEchoServer(t *testing.T, upgrade func(*websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		upgrade(ws)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + srv.URL[len("http"):]
	return srv, url
}

// TestSendTimeoutClosesConnection covers spec.md §4.4's send-side contract:
// a full outbound queue blocks for at most sendTimeout, then closes the
// connection rather than silently dropping the message.
func TestSendTimeoutClosesConnection(t *testing.T) {
	serverDone := make(chan struct{})
	_, url := startEchoServer(t, func(ws *websocket.Conn) {
		defer close(serverDone)
		conn := NewConn(ws, 1, 50*time.Millisecond, nil, nil)
		// Deliberately do not run WritePump: nothing drains the queue, so
		// the 1-slot buffer fills after the first send and the second is
		// guaranteed to block until the timeout fires.
		require.NoError(t, conn.Send("peer-1", []byte("first")))

		err := conn.Send("peer-1", []byte("second"))
		require.Error(t, err, "second send must time out once the 1-slot buffer is full")

		select {
		case <-conn.closed:
		default:
			t.Error("connection must be closed after a send timeout")
		}
	})

	dialer := websocket.DefaultDialer
	clientConn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server handler did not complete")
	}
}
