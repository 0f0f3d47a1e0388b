package endpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xpra-project/session-core/internal/transport"
	"github.com/xpra-project/session-core/internal/wire"
)

type recordingHandler struct {
	mu     sync.Mutex
	pkts   []wire.Packet
	closed error
	seen   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: make(chan struct{}, 64)}
}

func (h *recordingHandler) HandlePacket(pkt wire.Packet) {
	h.mu.Lock()
	h.pkts = append(h.pkts, pkt)
	h.mu.Unlock()
	h.seen <- struct{}{}
}

func (h *recordingHandler) HandleClosed(err error) {
	h.mu.Lock()
	h.closed = err
	h.mu.Unlock()
}

func (h *recordingHandler) waitForPacket(t *testing.T) {
	t.Helper()
	select {
	case <-h.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func testConfig() Config {
	return Config{
		LargeBinaryThreshold: 512,
		MainChunkMaxBytes:    1 << 20,
		AuxChunkMaxBytes:     1 << 20,
		PreAuthChunkMaxBytes: 1 << 16,
		PingInterval:         time.Hour,
		LivenessTimeout:      time.Hour,
		ShutdownGrace:        time.Second,
		HighWaterMarkBytes:   1 << 20,
		LowWaterMarkBytes:    1 << 18,
	}
}

func pipeTransports(t *testing.T) (transport.Transport, transport.Transport) {
	t.Helper()
	ln, err := transport.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serverCh := make(chan transport.Transport, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		require.NoError(t, err)
		serverCh <- conn
	}()

	client, err := transport.DialTCP(ctx, ln.Addr().String())
	require.NoError(t, err)
	server := <-serverCh
	return client, server
}

func TestEndpointRoundTripFallbackBeforeAuth(t *testing.T) {
	clientConn, serverConn := pipeTransports(t)

	clientHandler := newRecordingHandler()
	serverHandler := newRecordingHandler()

	client := New(clientConn, clientHandler, testConfig())
	server := New(serverConn, serverHandler, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	server.Start(ctx)
	defer client.Close(wire.ReasonClientExit)
	defer server.Close(wire.ReasonServerShutdown)

	require.NoError(t, client.Enqueue(PriorityControl, wire.New(wire.PacketHello, "v1")))
	serverHandler.waitForPacket(t)

	serverHandler.mu.Lock()
	require.Len(t, serverHandler.pkts, 1)
	require.Equal(t, wire.PacketHello, serverHandler.pkts[0].Type)
	serverHandler.mu.Unlock()
}

func TestEndpointRoundTripPrimaryAfterAuth(t *testing.T) {
	clientConn, serverConn := pipeTransports(t)

	clientHandler := newRecordingHandler()
	serverHandler := newRecordingHandler()

	client := New(clientConn, clientHandler, testConfig())
	server := New(serverConn, serverHandler, testConfig())
	client.MarkAuthenticated()
	server.MarkAuthenticated()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	server.Start(ctx)
	defer client.Close(wire.ReasonClientExit)
	defer server.Close(wire.ReasonServerShutdown)

	large := make([]byte, 4096)
	for i := range large {
		large[i] = byte(i)
	}
	require.NoError(t, client.Enqueue(PriorityDraw, wire.New(wire.PacketDraw, int64(1), large)))
	serverHandler.waitForPacket(t)

	serverHandler.mu.Lock()
	defer serverHandler.mu.Unlock()
	require.Len(t, serverHandler.pkts, 1)
	require.Equal(t, wire.PacketDraw, serverHandler.pkts[0].Type)
	require.Equal(t, large, serverHandler.pkts[0].Args[1])
}

func TestEndpointCipheredRoundTrip(t *testing.T) {
	clientConn, serverConn := pipeTransports(t)

	key := wire.DeriveSessionKey("shared-secret", []byte("0123456789abcdef"), 1000)
	clientCipher, err := wire.NewCipher(wire.CipherGCM, key)
	require.NoError(t, err)
	serverCipher, err := wire.NewCipher(wire.CipherGCM, key)
	require.NoError(t, err)

	clientHandler := newRecordingHandler()
	serverHandler := newRecordingHandler()

	clientCfg := testConfig()
	clientCfg.Cipher = clientCipher
	serverCfg := testConfig()
	serverCfg.Cipher = serverCipher

	client := New(clientConn, clientHandler, clientCfg)
	server := New(serverConn, serverHandler, serverCfg)
	client.MarkAuthenticated()
	server.MarkAuthenticated()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	server.Start(ctx)
	defer client.Close(wire.ReasonClientExit)
	defer server.Close(wire.ReasonServerShutdown)

	require.NoError(t, client.Enqueue(PriorityEcho, wire.New(wire.PacketCursor, int64(7))))
	serverHandler.waitForPacket(t)

	serverHandler.mu.Lock()
	defer serverHandler.mu.Unlock()
	require.Len(t, serverHandler.pkts, 1)
	require.Equal(t, wire.PacketCursor, serverHandler.pkts[0].Type)
}

func TestEndpointClosePushesDisconnect(t *testing.T) {
	clientConn, serverConn := pipeTransports(t)

	clientHandler := newRecordingHandler()
	serverHandler := newRecordingHandler()

	client := New(clientConn, clientHandler, testConfig())
	server := New(serverConn, serverHandler, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	server.Start(ctx)
	defer server.Close(wire.ReasonServerShutdown)

	require.NoError(t, client.Close(wire.ReasonClientExit))
	serverHandler.waitForPacket(t)

	serverHandler.mu.Lock()
	defer serverHandler.mu.Unlock()
	require.Len(t, serverHandler.pkts, 1)
	require.Equal(t, wire.PacketDisconnect, serverHandler.pkts[0].Type)
	require.Equal(t, []wire.Value{string(wire.ReasonClientExit)}, serverHandler.pkts[0].Args)
}
