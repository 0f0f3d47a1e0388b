package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/quic-go/quic-go"
)

// ALPNProtocol is the ALPN identifier negotiated for xpra-over-QUIC (§6).
const ALPNProtocol = "xpra"

// quicTransport adapts a single quic.Stream within a quic.Connection to
// Transport. One Transport is created per logical connection (session
// core owns exactly one framed byte-stream per endpoint, §4.1), backed by
// QUIC's first bidirectional stream.
type quicTransport struct {
	conn   *quic.Conn
	stream *quic.Stream
}

// DialQUIC opens a QUIC connection and its first bidirectional stream.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (Transport, error) {
	conf := tlsConf.Clone()
	conf.NextProtos = []string{ALPNProtocol}

	conn, err := quic.DialAddr(ctx, addr, conf, nil)
	if err != nil {
		return nil, fmt.Errorf("quic dial %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("quic open stream: %w", err)
	}
	return &quicTransport{conn: conn, stream: stream}, nil
}

// quicListener accepts inbound QUIC connections and hands back their
// first bidirectional stream as a Transport.
type quicListener struct {
	ln *quic.Listener
}

// ListenQUIC listens for QUIC connections on addr (UDP), advertising the
// xpra ALPN protocol.
func ListenQUIC(addr string, tlsConf *tls.Config) (Listener, error) {
	conf := tlsConf.Clone()
	conf.NextProtos = []string{ALPNProtocol}

	ln, err := quic.ListenAddr(addr, conf, nil)
	if err != nil {
		return nil, fmt.Errorf("quic listen %s: %w", addr, err)
	}
	return &quicListener{ln: ln}, nil
}

func (l *quicListener) Accept(ctx context.Context) (Transport, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("quic accept: %w", err)
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "accept stream failed")
		return nil, fmt.Errorf("quic accept stream: %w", err)
	}
	return &quicTransport{conn: conn, stream: stream}, nil
}

func (l *quicListener) Close() error   { return l.ln.Close() }
func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }

func (t *quicTransport) Read(p []byte) (int, error)  { return t.stream.Read(p) }
func (t *quicTransport) Write(p []byte) (int, error) { return t.stream.Write(p) }

func (t *quicTransport) Close() error {
	t.stream.Close()
	return t.conn.CloseWithError(0, "closed")
}

func (t *quicTransport) PeerInfo() PeerInfo {
	return PeerInfo{
		Kind:       KindQUIC,
		RemoteAddr: t.conn.RemoteAddr().String(),
		LocalAddr:  t.conn.LocalAddr().String(),
	}
}
