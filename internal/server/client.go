package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/xpra-project/session-core/internal/capability"
	"github.com/xpra-project/session-core/internal/damage"
	"github.com/xpra-project/session-core/internal/endpoint"
	"github.com/xpra-project/session-core/internal/session"
	"github.com/xpra-project/session-core/internal/subchannel"
	"github.com/xpra-project/session-core/internal/transport"
	"github.com/xpra-project/session-core/internal/wire"
	"github.com/xpra-project/session-core/internal/window"
)

// handshakeTimeout bounds how long a connecting client has to complete
// hello/challenge/hello before the connection is dropped (§4.4, §7's
// Authentication error range).
const handshakeTimeout = 30 * time.Second

// clientConn is one attached connection's handler: it bridges the async,
// callback-driven endpoint.Endpoint to the synchronous capability
// handshake, then dispatches every post-handshake packet type to the
// owning session's components.
type clientConn struct {
	srv    *Server
	ep     *endpoint.Endpoint
	logger zerolog.Logger

	uuid  string
	state *session.ClientState

	listener *clientWindowListener

	helloCh    chan capability.Hello
	sessionKey []byte

	clipboard    *subchannel.Clipboard
	notify       *subchannel.Notifications
	files        *subchannel.FileTransfer
	control      *subchannel.Control
	speakerAudio *subchannel.JitterBuffer
}

func newClientConn(srv *Server, t transport.Transport) *clientConn {
	c := &clientConn{
		srv:     srv,
		logger:  srv.logger.With().Str("peer", t.PeerInfo().RemoteAddr).Logger(),
		helloCh: make(chan capability.Hello, 1),
		notify:  subchannel.NewNotifications(),
		files:   subchannel.NewFileTransfer(maxFileTransferBytes),
	}
	cfg := endpoint.Config{
		Compressor:           nil,
		Cipher:               nil,
		LargeBinaryThreshold: srv.cfg.Transport.LargeBinaryThreshold,
		MainChunkMaxBytes:    srv.cfg.Transport.MainChunkMaxBytes,
		AuxChunkMaxBytes:     srv.cfg.Transport.AuxChunkMaxBytes,
		PreAuthChunkMaxBytes: srv.cfg.Transport.PreAuthChunkMaxBytes,
		PingInterval:         time.Duration(srv.cfg.Transport.PingInterval) * time.Second,
		LivenessTimeout:      time.Duration(srv.cfg.Transport.LivenessTimeout) * time.Second,
		ShutdownGrace:        time.Duration(srv.cfg.Transport.ShutdownGraceSeconds) * time.Second,
		HighWaterMarkBytes:   srv.cfg.Transport.HighWaterMarkBytes,
		LowWaterMarkBytes:    srv.cfg.Transport.LowWaterMarkBytes,
		Logger:               c.logger,
	}
	c.ep = endpoint.New(t, c, cfg)
	c.control = subchannel.NewControl(&controlSink{c: c})
	return c
}

// maxFileTransferBytes bounds inbound file-transfer offers (§4.10: "the
// receiver may refuse based on size limits").
const maxFileTransferBytes int64 = 256 << 20

// run drives one connection end to end: starts the endpoint's I/O
// loops, completes the handshake, registers the client against the
// session manager and window model, then blocks until the endpoint
// closes.
func (c *clientConn) run(ctx context.Context) error {
	c.ep.Start(ctx)

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	hello, err := c.handshake(hctx)
	if err != nil {
		c.logger.Info().Err(err).Msg("handshake failed")
		c.ep.Close(wire.ReasonAuthFailed)
		c.ep.Wait()
		return err
	}

	clientUUID := hello.UUID
	if clientUUID == "" {
		clientUUID = session.NewClientUUID()
	}
	c.uuid = clientUUID

	state, evictions, err := c.srv.manager.Connect(clientUUID, hello.Share, hello.Steal)
	if err != nil {
		c.logger.Info().Err(err).Msg("session admission refused")
		c.ep.Close(wire.ReasonSessionBusy)
		c.ep.Wait()
		return err
	}
	c.state = state

	for _, ev := range evictions {
		if evicted, ok := c.srv.clientByUUID(ev.UUID); ok {
			evicted.ep.Close(ev.Reason)
		}
	}

	c.clipboard = subchannel.NewClipboard(clipboardDirection(hello.Options))

	c.listener = &clientWindowListener{ep: c.ep}
	c.srv.model.AddListener(c.listener)
	c.srv.addClient(clientUUID, c)
	c.srv.conns.Add(clientUUID, underlyingNetConn(c.ep), queueDepthSource{c.ep}, []string{clientUUID})

	serverHello := capability.ServerHello{
		SessionUUID: c.srv.manager.ID(),
		DisplayInfo: map[string]wire.Value{},
	}
	intersected, err := capability.Intersect(c.srv.serverCapabilities(), hello)
	if err == nil {
		serverHello.Encodings = intersected.Encodings
		serverHello.Compressor = intersected.Compressor
		serverHello.PacketEncoder = intersected.PacketEncoder
		serverHello.Cipher = intersected.Cipher

		var cph wire.Cipher
		if intersected.Cipher != "" && len(c.sessionKey) > 0 {
			cph, _ = wire.NewCipher(wire.CipherMode(intersected.Cipher), c.sessionKey)
		}
		c.ep.Rekey(compressorByName(intersected.Compressor), cph)
	}
	for _, snap := range c.srv.model.Snapshots() {
		serverHello.Windows = append(serverHello.Windows, map[string]wire.Value{
			"id": uint64(snap.ID), "x": snap.Geometry.X, "y": snap.Geometry.Y,
			"w": snap.Geometry.W, "h": snap.Geometry.H,
		})
	}
	c.ep.MarkAuthenticated()
	c.ep.Enqueue(endpoint.PriorityControl, serverHello.ToPacket())

	c.ep.Wait()
	c.srv.manager.Disconnect(clientUUID)
	c.srv.model.RemoveListener(c.listener)
	c.srv.removeClient(clientUUID)
	return nil
}

// handshake bridges the synchronous capability.Chain.Authenticate API to
// the asynchronous endpoint by blocking on helloCh, which HandlePacket
// feeds whenever a hello packet arrives.
func (c *clientConn) handshake(ctx context.Context) (capability.Hello, error) {
	var firstHello capability.Hello
	select {
	case firstHello = <-c.helloCh:
	case <-ctx.Done():
		return capability.Hello{}, ctx.Err()
	}

	if c.srv.cfg.Auth.SharedSecret == "" {
		return firstHello, nil
	}

	salt, err := wire.NewSalt()
	if err != nil {
		return capability.Hello{}, fmt.Errorf("server: generate salt: %w", err)
	}

	chain := capability.Chain{
		Modules: []capability.AuthModule{capability.SharedSecretModule{ModuleName: "shared-secret", Secret: c.srv.cfg.Auth.SharedSecret}},
		Logger:  c.logger,
	}

	var responseHello capability.Hello
	exchange := func(ctx context.Context, ch capability.Challenge) ([]byte, []byte, string, error) {
		c.ep.Enqueue(endpoint.PriorityControl, ch.ToPacket())
		select {
		case h := <-c.helloCh:
			responseHello = h
			return h.ChallengeResponse, h.ClientSalt, h.ChallengeDigest, nil
		case <-ctx.Done():
			return nil, nil, "", ctx.Err()
		}
	}

	identity := firstHello.UUID
	if err := chain.Authenticate(ctx, identity, salt, c.srv.cfg.Auth.MaxChallengeTries, exchange); err != nil {
		return capability.Hello{}, err
	}

	c.sessionKey = wire.DeriveSessionKey(c.srv.cfg.Auth.SharedSecret, salt, c.srv.cfg.Auth.PBKDF2Iterations)

	return responseHello, nil
}

// compressorByName looks up the negotiated compressor implementation by
// its wire-visible name (§4.4's intersected Compressor field), falling
// back to the identity compressor for an unrecognized or empty name.
func compressorByName(name string) wire.Compressor {
	for _, comp := range wire.CompressorSet() {
		if string(compressorName(comp.ID())) == name {
			return comp
		}
	}
	return wire.CompressorSet()[wire.CompressorNone]
}

func compressorName(id wire.CompressorID) string {
	switch id {
	case wire.CompressorLZ4:
		return "lz4"
	case wire.CompressorZlib:
		return "zlib"
	case wire.CompressorBrotli:
		return "brotli"
	default:
		return "none"
	}
}

// HandlePacket implements endpoint.InboundHandler. It must not block:
// hello/challenge responses are handed off over helloCh with a
// non-blocking send, and every other packet type is routed to its
// owning subchannel or component without waiting on anything.
func (c *clientConn) HandlePacket(pkt wire.Packet) {
	switch pkt.Type {
	case wire.PacketHello:
		h, err := capability.HelloFromPacket(pkt)
		if err != nil {
			c.logger.Warn().Err(err).Msg("malformed hello")
			return
		}
		select {
		case c.helloCh <- h:
		default:
			c.logger.Warn().Msg("unexpected hello, handshake already completed")
		}
	case wire.PacketPing:
		c.ep.Enqueue(endpoint.PriorityKeepalive, wire.New(wire.PacketPingEcho))
	case wire.PacketDamageSequence:
		c.handleAck(pkt)
	case wire.PacketClipboardToken, wire.PacketClipboardRequest, wire.PacketClipboardContents:
		c.handleClipboard(pkt)
	case wire.PacketControl:
		c.handleControl(pkt)
	case wire.PacketNotifyShow, wire.PacketNotifyClose:
		c.handleNotification(pkt)
	case wire.PacketSoundData:
		c.handleAudio(pkt)
	case wire.PacketFileTransferData:
		c.handleFile(pkt)
	case wire.PacketDisconnect:
		c.ep.Close(wire.ReasonClientExit)
	default:
		c.logger.Debug().Str("type", string(pkt.Type)).Msg("unhandled packet type")
	}
}

// HandleClosed implements endpoint.InboundHandler.
func (c *clientConn) HandleClosed(err error) {
	if err != nil {
		c.logger.Debug().Err(err).Msg("connection closed")
	}
}

func (c *clientConn) handleAck(pkt wire.Packet) {
	if len(pkt.Args) < 2 {
		return
	}
	// The primary codec decodes every integer as int64.
	var ids [2]uint64
	for i := range ids {
		switch v := pkt.Args[i].(type) {
		case int64:
			ids[i] = uint64(v)
		case uint64:
			ids[i] = v
		default:
			return
		}
	}
	wid, seq := ids[0], ids[1]
	var signals damage.AckSignals
	var errored bool
	if len(pkt.Args) > 2 {
		if m, ok := pkt.Args[2].(map[string]wire.Value); ok {
			if v, ok := m["decode_time_us"].(int64); ok {
				signals.DecodeTime = time.Duration(v) * time.Microsecond
			}
			if v, ok := m["errored"].(bool); ok {
				errored = v
			}
		}
	}
	c.srv.scheduler.Ack(wid, seq, signals, errored)
	if c.state != nil {
		c.srv.manager.RecordAck(c.uuid, window.ID(wid), seq)
	}
}

func (c *clientConn) handleClipboard(pkt wire.Packet) {
	if c.clipboard == nil || len(pkt.Args) == 0 {
		return
	}
	sel, _ := pkt.Args[0].(string)
	selection := subchannel.Selection(sel)

	var err error
	switch pkt.Type {
	case wire.PacketClipboardToken:
		err = c.clipboard.GrantToken(selection)
	case wire.PacketClipboardRequest:
		err = c.clipboard.RequestToken(selection)
	case wire.PacketClipboardContents:
		return
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("selection", sel).Msg("clipboard state rejected")
		return
	}
	// Broadcast to every other attached client so sharing sessions stay
	// coherent (§4.8): an accepted token/request packet is forwarded
	// verbatim. Contents packets returned above and are not forwarded.
	c.srv.broadcastExcept(c.uuid, pkt, endpoint.PriorityEcho)
}

func (c *clientConn) handleControl(pkt wire.Packet) {
	if len(pkt.Args) < 2 {
		return
	}
	cmd, ok := pkt.Args[0].(string)
	if !ok {
		return
	}
	if err := c.control.Apply(subchannel.ControlCommand(cmd), pkt.Args[1]); err != nil {
		c.logger.Debug().Err(err).Str("command", cmd).Msg("control command rejected")
	}
}

func (c *clientConn) handleNotification(pkt wire.Packet) {
	if len(pkt.Args) == 0 {
		return
	}
	// The primary codec decodes every integer as int64.
	var nid uint64
	switch v := pkt.Args[0].(type) {
	case int64:
		nid = uint64(v)
	case uint64:
		nid = v
	default:
		return
	}
	switch pkt.Type {
	case wire.PacketNotifyShow:
		if !c.notify.ShouldDeliver(nid) {
			return
		}
	case wire.PacketNotifyClose:
		c.notify.Close(nid)
	}
	c.srv.broadcastExcept(c.uuid, pkt, endpoint.PriorityEcho)
}

func (c *clientConn) handleAudio(pkt wire.Packet) {
	if len(pkt.Args) < 2 {
		return
	}
	ts, ok1 := pkt.Args[0].(int64)
	data, ok2 := pkt.Args[1].([]byte)
	if !ok1 || !ok2 {
		return
	}
	if c.speakerAudio == nil {
		c.speakerAudio = subchannel.NewJitterBuffer(100 * time.Millisecond)
	}
	c.speakerAudio.Push(subchannel.AudioFrame{TimestampMs: ts, Data: data})
}

func (c *clientConn) handleFile(pkt wire.Packet) {
	if len(pkt.Args) < 2 {
		return
	}
	id, ok1 := pkt.Args[0].(string)
	phase, ok2 := pkt.Args[1].(string)
	if !ok1 || !ok2 {
		return
	}
	switch phase {
	case "offer":
		if len(pkt.Args) < 4 {
			return
		}
		name, _ := pkt.Args[2].(string)
		size, _ := pkt.Args[3].(int64)
		var digest string
		if len(pkt.Args) > 4 {
			digest, _ = pkt.Args[4].(string)
		}
		if err := c.files.Offer(subchannel.FileOffer{ID: id, Name: name, Size: size, Digest: digest}); err != nil {
			c.logger.Info().Err(err).Str("file", name).Msg("file offer rejected")
		}
	case "chunk":
		if len(pkt.Args) < 3 {
			return
		}
		data, _ := pkt.Args[2].([]byte)
		if err := c.files.Chunk(id, data); err != nil {
			c.logger.Info().Err(err).Msg("file chunk rejected")
		}
	case "finish":
		if _, err := c.files.Finish(id); err != nil {
			c.logger.Info().Err(err).Msg("file transfer failed verification")
		}
	}
}

// clipboardDirection reads the `clipboard-direction` hello option
// (§4.4), defaulting to bidirectional when absent or unrecognized.
func clipboardDirection(options map[string]wire.Value) subchannel.Direction {
	if options == nil {
		return subchannel.DirectionBoth
	}
	v, ok := options["clipboard-direction"].(string)
	if !ok {
		return subchannel.DirectionBoth
	}
	switch subchannel.Direction(v) {
	case subchannel.DirectionToServer, subchannel.DirectionToClient, subchannel.DirectionDisabled:
		return subchannel.Direction(v)
	default:
		return subchannel.DirectionBoth
	}
}

// controlSink adapts one clientConn's live components to
// subchannel.ControlSink, decoupling subchannel from the
// damage/encoder/session packages it ultimately reaches.
type controlSink struct {
	c *clientConn
}

func (s *controlSink) SetQualitySpeed(quality, speed int) {
	// The values are dropped: each surface's quality and speed are set
	// once in damage.Scheduler.AddSurface, and the scheduler has no
	// setter for them, so this command changes nothing.
}

func (s *controlSink) SetPreferredEncoding(name string) {
	s.c.srv.dispatcher.SetClientOrder([]string{name})
}

func (s *controlSink) SetAutoRefreshDelayMs(delayMs int) {}

func (s *controlSink) SetSharingAllowed(allowed bool) {}

// queueDepthSource adapts endpoint.Endpoint to metrics.QueueDepthSource.
type queueDepthSource struct {
	ep *endpoint.Endpoint
}

func (q queueDepthSource) QueuedBytes() int64 { return 0 }

// underlyingNetConn always returns nil: transport.Transport does not
// expose the net.Conn it wraps, even for TCP. metrics.Add treats nil as
// "skip RTT, still report bandwidth".
func underlyingNetConn(ep *endpoint.Endpoint) net.Conn {
	return nil
}
