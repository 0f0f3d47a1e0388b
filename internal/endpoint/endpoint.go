// Package endpoint implements the connection endpoint (C3, §4.3, §5): the
// reader and writer loops that sit between a transport.Transport and the
// structured wire.Packet stream, applying the negotiated compressor and
// cipher, enforcing flow control and liveness, and draining a strict
// priority queue on the way out.
package endpoint

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/xpra-project/session-core/internal/transport"
	"github.com/xpra-project/session-core/internal/wire"
)

// InboundHandler receives packets and lifecycle events from an Endpoint.
// Implementations must not block for long inside HandlePacket: the reader
// goroutine cannot make progress on the next chunk until it returns.
type InboundHandler interface {
	HandlePacket(pkt wire.Packet)
	HandleClosed(err error)
}

// Config configures one ConnectionEndpoint. Compressor and Cipher may be
// the identity/nil values before capability exchange completes; Rekey
// replaces them once the handshake (C4) negotiates real ones.
type Config struct {
	Compressor wire.Compressor
	Cipher     wire.Cipher // nil means payloads travel in the clear

	LargeBinaryThreshold int
	MainChunkMaxBytes    int
	AuxChunkMaxBytes     int
	PreAuthChunkMaxBytes int

	PingInterval    time.Duration
	LivenessTimeout time.Duration
	ShutdownGrace   time.Duration

	HighWaterMarkBytes int
	LowWaterMarkBytes  int

	Logger zerolog.Logger
}

// Endpoint owns one Transport and runs the reader/writer goroutine pair
// of §4.3. Producers call Enqueue; HandlePacket on the configured
// InboundHandler delivers decoded packets back out.
type Endpoint struct {
	conn    transport.Transport
	handler InboundHandler
	cfg     Config

	flow *flowControl
	live *liveness

	authenticated atomic.Bool
	codecMu       sync.RWMutex // guards live swap-in of compressor/cipher on rekey

	enqueueCh chan outboundItem
	closeCh   chan struct{}
	closeOnce sync.Once

	wg conc.WaitGroup
}

// New builds an Endpoint over conn. Start must be called to begin
// pumping the reader/writer loops.
func New(conn transport.Transport, handler InboundHandler, cfg Config) *Endpoint {
	return &Endpoint{
		conn:      conn,
		handler:   handler,
		cfg:       cfg,
		flow:      newFlowControl(cfg.HighWaterMarkBytes, cfg.LowWaterMarkBytes),
		live:      newLiveness(cfg.PingInterval, cfg.LivenessTimeout),
		enqueueCh: make(chan outboundItem, 256),
		closeCh:   make(chan struct{}),
	}
}

// Start launches the reader and writer goroutines. It returns immediately;
// call Wait to block until both have exited.
func (e *Endpoint) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.wg.Go(func() { e.readLoop(ctx, cancel) })
	e.wg.Go(func() { e.writeLoop(ctx) })
}

// Wait blocks until the reader and writer goroutines have both returned.
func (e *Endpoint) Wait() { e.wg.Wait() }

// MarkAuthenticated switches the endpoint from the pre-auth chunk size
// ceiling to the full post-handshake ceilings (§4.1).
func (e *Endpoint) MarkAuthenticated() { e.authenticated.Store(true) }

// Rekey installs a new compressor/cipher pair, e.g. once capability
// exchange (C4) has negotiated them. Safe to call concurrently with the
// reader/writer loops.
func (e *Endpoint) Rekey(compressor wire.Compressor, cipher wire.Cipher) {
	e.codecMu.Lock()
	defer e.codecMu.Unlock()
	e.cfg.Compressor = compressor
	e.cfg.Cipher = cipher
}

func (e *Endpoint) codec() (wire.Compressor, wire.Cipher) {
	e.codecMu.RLock()
	defer e.codecMu.RUnlock()
	return e.cfg.Compressor, e.cfg.Cipher
}

func (e *Endpoint) mainChunkLimit() int {
	if !e.authenticated.Load() {
		return e.cfg.PreAuthChunkMaxBytes
	}
	return e.cfg.MainChunkMaxBytes
}

func (e *Endpoint) auxChunkLimit() int {
	if !e.authenticated.Load() {
		return e.cfg.PreAuthChunkMaxBytes
	}
	return e.cfg.AuxChunkMaxBytes
}

// Backpressured reports whether queued outbound bytes exceed the
// high-water mark; the damage scheduler (C6) consults this to lengthen
// its batch delay.
func (e *Endpoint) Backpressured() bool { return e.flow.Backpressured() }

// Enqueue queues pkt for output under the given priority class (§4.3). It
// blocks until the writer has room or the endpoint closes, rather than
// silently dropping a packet.
func (e *Endpoint) Enqueue(priority Priority, pkt wire.Packet) error {
	select {
	case e.enqueueCh <- outboundItem{priority: priority, packet: pkt}:
		return nil
	case <-e.closeCh:
		return ErrClosed
	}
}

// Close requests shutdown, attempting a best-effort disconnect packet
// before tearing down the transport. It does not block; call Wait for
// the goroutines to exit within cfg.ShutdownGrace.
func (e *Endpoint) Close(reason wire.DisconnectReason) error {
	e.closeOnce.Do(func() {
		select {
		case e.enqueueCh <- outboundItem{priority: PriorityControl, packet: wire.New(wire.PacketDisconnect, string(reason))}:
		default:
			// Queue full or writer already gone: best effort only (§4.3).
		}
		close(e.closeCh)
		go func() {
			done := make(chan struct{})
			go func() { e.wg.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(e.cfg.ShutdownGrace):
			}
			e.conn.Close()
		}()
	})
	return nil
}

func (e *Endpoint) fail(err error) {
	_ = e.Close(wire.ReasonProtocolError)
	if e.handler != nil {
		e.handler.HandleClosed(err)
	}
}

// readLoop reassembles logical packets from framed chunks: a level-0 main
// chunk followed by zero or more level>0 auxiliary chunks, each supplying
// the (index-1)'th large-binary placeholder referenced by the main chunk
// (§4.1, §4.2).
func (e *Endpoint) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	for {
		if ctx.Err() != nil {
			return
		}

		pkt, err := e.readPacket()
		if err != nil {
			e.cfg.Logger.Debug().Err(err).Msg("endpoint read failed")
			e.fail(err)
			return
		}
		e.live.markInbound()
		if e.handler != nil {
			e.handler.HandlePacket(pkt)
		}
	}
}

func (e *Endpoint) readPacket() (wire.Packet, error) {
	main, err := e.readChunkDecoded(e.mainChunkLimit())
	if err != nil {
		return wire.Packet{}, err
	}

	aux := make(map[uint32][]byte)
	for main.MoreToFollow {
		c, err := wire.ReadChunk(e.conn, e.auxChunkLimit())
		if err != nil {
			return wire.Packet{}, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		payload, err := e.decodeChunkPayload(c)
		if err != nil {
			return wire.Packet{}, err
		}
		if c.Index == 0 {
			return wire.Packet{}, fmt.Errorf("%w: auxiliary chunk with index 0", ErrProtocol)
		}
		aux[uint32(c.Index-1)] = payload
		main.MoreToFollow = c.MoreToFollow
	}

	auxOf := func(id uint32) ([]byte, bool) {
		b, ok := aux[id]
		return b, ok
	}

	if !e.authenticated.Load() {
		pkt, err := wire.DecodeFallback(main.Payload)
		if err != nil {
			return wire.Packet{}, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		return pkt, nil
	}

	pkt, err := wire.DecodePrimary(main.Payload, auxOf)
	if err != nil {
		return wire.Packet{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return pkt, nil
}

// readChunkDecoded reads one chunk and returns it with Payload replaced
// by the decrypted, decompressed plaintext.
func (e *Endpoint) readChunkDecoded(limit int) (wire.Chunk, error) {
	c, err := wire.ReadChunk(e.conn, limit)
	if err != nil {
		return wire.Chunk{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	payload, err := e.decodeChunkPayload(c)
	if err != nil {
		return wire.Chunk{}, err
	}
	c.Payload = payload
	return c, nil
}

func (e *Endpoint) decodeChunkPayload(c wire.Chunk) ([]byte, error) {
	payload := c.Payload

	if c.Ciphered {
		_, cph := e.codec()
		if cph == nil {
			return nil, fmt.Errorf("%w: ciphered chunk with no cipher negotiated", ErrProtocol)
		}
		// AAD is the length-independent prefix of the header (magic,
		// flags, level, index): the length field isn't known until
		// after sealing, so it can't round-trip as associated data.
		plain, err := cph.Open(c.RawHeader[:4], payload)
		if err != nil {
			return nil, fmt.Errorf("%w: authentication failed: %v", ErrProtocol, err)
		}
		payload = plain
	}

	if c.Compressed {
		set := wire.CompressorSet()
		comp, ok := set[c.Compressor]
		if !ok {
			return nil, fmt.Errorf("%w: unknown compressor id %d", ErrProtocol, c.Compressor)
		}
		out, err := comp.Decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress failed: %v", ErrProtocol, err)
		}
		payload = out
	}

	return payload, nil
}

// writeLoop drains the priority queue in strict-priority/FIFO order,
// encoding, compressing, ciphering, and framing each packet before
// writing it to the transport (§4.1-§4.3). It also synthesizes keepalive
// pings and enforces the liveness timeout.
func (e *Endpoint) writeLoop(ctx context.Context) {
	queue := newPriorityQueue()
	ticker := time.NewTicker(e.livenessPollInterval())
	defer ticker.Stop()

	for {
		if queue.len() == 0 {
			select {
			case item := <-e.enqueueCh:
				queue.push(item)
			case <-e.closeCh:
				e.drainQueue(queue)
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.checkLiveness(queue)
			}
			continue
		}

		select {
		case item := <-e.enqueueCh:
			queue.push(item)
		case <-e.closeCh:
			e.drainQueue(queue)
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkLiveness(queue)
		default:
		}

		item, ok := queue.pop()
		if !ok {
			continue
		}
		if err := e.writePacket(item.packet); err != nil {
			e.cfg.Logger.Debug().Err(err).Msg("endpoint write failed")
			e.fail(err)
			return
		}
	}
}

func (e *Endpoint) livenessPollInterval() time.Duration {
	if e.cfg.PingInterval <= 0 {
		return time.Second
	}
	return e.cfg.PingInterval / 2
}

func (e *Endpoint) checkLiveness(queue *priorityQueue) {
	if e.live.timedOut() {
		e.fail(ErrTimeout)
		return
	}
	if e.live.needsPing() {
		queue.push(outboundItem{priority: PriorityKeepalive, packet: wire.New(wire.PacketPing)})
	}
}

func (e *Endpoint) drainQueue(queue *priorityQueue) {
	for {
		item, ok := queue.pop()
		if !ok {
			return
		}
		if item.packet.Type == wire.PacketDisconnect {
			_ = e.writePacket(item.packet)
		}
	}
}

func (e *Endpoint) writePacket(pkt wire.Packet) error {
	var main []byte
	var auxPayloads [][]byte

	if !e.authenticated.Load() {
		data, err := wire.EncodeFallback(pkt)
		if err != nil {
			return fmt.Errorf("encode fallback packet: %w", err)
		}
		main = data
	} else {
		enc, err := wire.EncodePrimary(pkt, e.cfg.LargeBinaryThreshold)
		if err != nil {
			return fmt.Errorf("encode packet: %w", err)
		}
		main = enc.Main
		auxPayloads = enc.Aux
	}

	if err := e.writeChunk(0, 0, len(auxPayloads) > 0, main); err != nil {
		return err
	}
	for i, payload := range auxPayloads {
		more := i < len(auxPayloads)-1
		if err := e.writeChunk(1, uint8(i+1), more, payload); err != nil {
			return err
		}
	}
	e.live.markOutbound()
	return nil
}

func (e *Endpoint) writeChunk(level uint8, index uint8, more bool, payload []byte) error {
	comp, cph := e.codec()

	chunk := wire.Chunk{Level: level, Index: index, MoreToFollow: more, Payload: payload}

	if comp != nil && comp.ID() != wire.CompressorNone && wire.ShouldCompress(len(payload)) {
		out, err := comp.Compress(payload)
		if err != nil {
			return fmt.Errorf("compress chunk: %w", err)
		}
		chunk.Compressed = true
		chunk.Compressor = comp.ID()
		chunk.Payload = out
	}

	if cph != nil {
		header := chunkHeaderPrefix(chunk.Compressed, chunk.Compressor, more, level, index)
		sealed, err := cph.Seal(header, chunk.Payload)
		if err != nil {
			return fmt.Errorf("seal chunk: %w", err)
		}
		chunk.Ciphered = true
		chunk.Payload = sealed
	}

	framed := wire.EncodeChunk(chunk)
	e.flow.add(len(framed))
	defer e.flow.release(len(framed))

	if _, err := e.conn.Write(framed); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}

// chunkHeaderPrefix reproduces the first 4 bytes wire.EncodeChunk would
// produce for a chunk with these fields (magic, flags, level, index),
// without needing the final payload length. Used as AEAD associated
// data, computed identically by the reader from the bytes it actually
// read off the wire.
func chunkHeaderPrefix(compressed bool, compressor wire.CompressorID, moreToFollow bool, level, index uint8) []byte {
	full := wire.EncodeChunk(wire.Chunk{
		Compressed:   compressed,
		Compressor:   compressor,
		Ciphered:     true,
		MoreToFollow: moreToFollow,
		Level:        level,
		Index:        index,
	})
	return full[:4]
}
