package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport adapts a *websocket.Conn to Transport, matching the binary
// message framing the teacher's ws_stream.go already uses over the same
// library: every Write is one binary WebSocket message, and Read drains
// messages into the caller's buffer across calls.
type wsTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	readMu  sync.Mutex
	pending []byte
}

// NewWebSocketTransport wraps an established *websocket.Conn.
func NewWebSocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("websocket write: %w", err)
	}
	return len(p), nil
}

func (t *wsTransport) Read(p []byte) (int, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for len(t.pending) == 0 {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("websocket read: %w", err)
		}
		if kind != websocket.BinaryMessage {
			continue // ignore text/control frames at the transport layer
		}
		t.pending = data
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) PeerInfo() PeerInfo {
	return PeerInfo{
		Kind:       KindWebSocket,
		RemoteAddr: t.conn.RemoteAddr().String(),
		LocalAddr:  t.conn.LocalAddr().String(),
	}
}

// upgrader is shared across connections; CheckOrigin is left to the HTTP
// handler wiring this into a mux (path-based routing per §6 lets the same
// port coexist with a static file server).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// UpgradeWebSocket upgrades an HTTP(S) request to a WebSocket connection
// and returns it as a Transport.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request) (Transport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewWebSocketTransport(conn), nil
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", url, err)
	}
	return NewWebSocketTransport(conn), nil
}
