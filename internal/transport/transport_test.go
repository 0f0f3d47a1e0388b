package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTCPTransportRoundTrip(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serverCh := make(chan Transport, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		require.NoError(t, err)
		serverCh <- conn
	}()

	client, err := DialTCP(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := <-serverCh
	defer server.Close()

	msg := []byte("hello over tcp")
	_, err = client.Write(msg)
	require.NoError(t, err)

	buf := make([]byte, len(msg))
	_, err = server.Read(buf)
	require.NoError(t, err)
	require.Equal(t, msg, buf)

	require.Equal(t, KindTCP, server.PeerInfo().Kind)
}

func TestUnixSocketPath(t *testing.T) {
	require.Equal(t, "/run/user/1000/xpra/S1", SocketPath("/run/user/1000", "S1"))
}

func TestAbstractSocketName(t *testing.T) {
	require.Equal(t, "@xpra/S1", AbstractSocketName("S1"))
}
