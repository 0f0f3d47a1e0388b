// Package transport implements the Transport abstraction of §4.1/§6: a
// bidirectional byte stream over TCP, TLS, Unix-domain socket, WebSocket,
// or QUIC. Chunk framing, compression, and encryption live one layer up
// in internal/wire and internal/endpoint — a Transport only moves bytes.
package transport

import (
	"fmt"
	"io"
	"net"
)

// Kind identifies which socket family a Transport was built over.
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindTLS       Kind = "tls"
	KindUnix      Kind = "unix"
	KindAbstract  Kind = "abstract"
	KindWebSocket Kind = "websocket"
	KindQUIC      Kind = "quic"
)

// PeerInfo describes the remote end of a Transport for logging and
// capability exchange (§4.4's display_info, and connection-level logs).
type PeerInfo struct {
	Kind       Kind
	RemoteAddr string
	LocalAddr  string
}

// Transport is a bidirectional byte-stream abstraction. Read/Write behave
// like io.Reader/io.Writer and block. On orderly close the net.Conn- and
// QUIC-backed kinds return io.EOF; the WebSocket kind returns the
// library's close error, wrapped.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	PeerInfo() PeerInfo
}

// netConnTransport adapts a net.Conn (TCP, TLS, Unix, abstract socket) to
// Transport.
type netConnTransport struct {
	conn net.Conn
	kind Kind
}

// NewNetConnTransport wraps an already-established net.Conn.
func NewNetConnTransport(kind Kind, conn net.Conn) Transport {
	return &netConnTransport{conn: conn, kind: kind}
}

func (t *netConnTransport) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *netConnTransport) Write(p []byte) (int, error) { return t.conn.Write(p) }
func (t *netConnTransport) Close() error                { return t.conn.Close() }

func (t *netConnTransport) PeerInfo() PeerInfo {
	info := PeerInfo{Kind: t.kind}
	if addr := t.conn.RemoteAddr(); addr != nil {
		info.RemoteAddr = addr.String()
	}
	if addr := t.conn.LocalAddr(); addr != nil {
		info.LocalAddr = addr.String()
	}
	return info
}

// ErrClosed describes a use of a closed connection. The transports in
// this package do not return it; after Close they return whatever error
// the underlying connection reports.
var ErrClosed = fmt.Errorf("transport: use of closed connection")
