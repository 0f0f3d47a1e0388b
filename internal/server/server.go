// Package server composes the session core's components (wire,
// transport, capability, window, damage, encoder, session, display,
// subchannel) into one running session process, the "session thread"
// of §5 that owns every authoritative mutation, with one reader/writer
// goroutine pair per client endpoint and a shared encoder worker pool
// on the other side of well-typed interfaces.
package server

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/xpra-project/session-core/internal/capability"
	"github.com/xpra-project/session-core/internal/config"
	"github.com/xpra-project/session-core/internal/damage"
	"github.com/xpra-project/session-core/internal/display"
	"github.com/xpra-project/session-core/internal/encoder"
	"github.com/xpra-project/session-core/internal/endpoint"
	"github.com/xpra-project/session-core/internal/metrics"
	"github.com/xpra-project/session-core/internal/session"
	"github.com/xpra-project/session-core/internal/transport"
	"github.com/xpra-project/session-core/internal/wire"
	"github.com/xpra-project/session-core/internal/window"
)

// serverCompressors/Ciphers fix this core's supported sets for
// capability intersection (§4.4 step 4). Encodings come from whichever
// encoder.Encoder implementations the caller supplied and passed
// self-test.
var serverCompressors = []string{"lz4", "zlib", "brotli", "none"}
var serverCiphers = []string{string(wire.CipherGCM), string(wire.CipherCTR), string(wire.CipherCFB), string(wire.CipherCBC)}
var serverPacketEncoders = []string{"primary", "fallback"}

// Options configures one Server beyond what config.Config already
// covers: the platform capture backend and the set of encoders to
// probe, both of which are external collaborators this core only
// dispatches to.
type Options struct {
	ImageSource encoder.ImageSource // nil uses a backend that always fails captures
	Encoders    []encoder.Encoder
	MaxWorkers  int // 0 lets the pool default to GOMAXPROCS
}

// Server owns one session's full component graph and every attached
// client connection.
type Server struct {
	cfg     config.Config
	logger  zerolog.Logger
	startAt time.Time

	model      *window.Model
	manager    *session.Manager
	display    *display.Display
	registry   *encoder.Registry
	dispatcher *encoder.Dispatcher
	scheduler  *damage.Scheduler
	conns      *metrics.ConnectionCollector

	encodings []string

	mu      sync.Mutex
	clients map[string]*clientConn

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Server with an empty window model and no attached
// clients, ready to accept connections via Serve.
func New(cfg config.Config, opts Options, registerer prometheus.Registerer, logger zerolog.Logger) (*Server, error) {
	model := window.New()
	schedMetrics := damage.NewMetrics(registerer)

	shim := &requesterShim{}
	schedCfg := damage.Config{
		MinBatchDelay:         time.Duration(cfg.Damage.MinBatchDelayMS) * time.Millisecond,
		MaxBatchDelay:         time.Duration(cfg.Damage.MaxBatchDelayMS) * time.Millisecond,
		FullSurfaceThreshold:  cfg.Damage.FullSurfaceThreshold,
		ScrollMatchThreshold:  cfg.Damage.ScrollMatchThreshold,
		AutoRefreshDelay:      time.Duration(cfg.Damage.AutoRefreshDelayMS) * time.Millisecond,
		MaxInFlightVideo:      cfg.Damage.MaxInFlightVideo,
		MaxInFlightStill:      cfg.Damage.MaxInFlightStill,
		EncoderBlacklistFor:   time.Duration(cfg.Damage.EncoderErrorBlacklistSeconds) * time.Second,
	}

	srv := &Server{
		cfg:     cfg,
		logger:  logger,
		startAt: time.Now(),
		model:   model,
		display: display.New(display.Geometry{Width: 1920, Height: 1080, DPIX: 96, DPIY: 96}, display.Range{}),
		registry: encoder.NewRegistry(),
		conns: metrics.NewConnectionCollector([]string{"client"}, func(err error) {
			logger.Debug().Err(err).Msg("metrics: connection sample failed")
		}),
		clients: make(map[string]*clientConn),
		stopCh:  make(chan struct{}),
	}

	scheduler, err := damage.New(schedCfg, shim, srv, schedMetrics, logger)
	if err != nil {
		return nil, fmt.Errorf("server: build scheduler: %w", err)
	}
	srv.scheduler = scheduler
	model.AddRemovalObserver(scheduler)

	for _, enc := range opts.Encoders {
		name := enc.Capabilities().Name
		if err := srv.registry.Probe(context.Background(), enc); err != nil {
			logger.Warn().Err(err).Str("encoder", name).Msg("server: encoder self-test failed, excluding it")
			continue
		}
		srv.encodings = append(srv.encodings, name)
	}

	images := opts.ImageSource
	if images == nil {
		images = noCaptureSource{}
	}
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	srv.dispatcher = encoder.NewDispatcher(srv.registry, images, scheduler, nil, maxWorkers, logger)
	shim.bind(srv.dispatcher)

	srv.manager = session.NewManager(model, session.Config{
		ReconnectWindow: time.Duration(cfg.Session.ReconnectWindowSeconds) * time.Second,
		IdleTimeout:     time.Duration(cfg.Session.IdleTimeoutSeconds) * time.Second,
		SharingAllowed:  cfg.Session.AllowSharing,
	}, logger)

	return srv, nil
}

// serverCapabilities builds this instance's side of the §4.4 step 4
// intersection.
func (s *Server) serverCapabilities() capability.ServerCapabilities {
	return capability.ServerCapabilities{
		Encodings:      s.encodings,
		Compressors:    serverCompressors,
		PacketEncoders: serverPacketEncoders,
		Ciphers:        serverCiphers,
	}
}

// Serve accepts connections from l until ctx is canceled or Shutdown is
// called, handing each one off to a freshly built clientConn.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.handleConn(ctx, transport.NewNetConnTransport(transport.KindTCP, conn))
	}
}

func (s *Server) handleConn(ctx context.Context, t transport.Transport) {
	cc := newClientConn(s, t)
	if err := cc.run(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("client connection ended")
	}
}

// Shutdown stops accepting new work and tears down every attached
// client, waiting up to the endpoint shutdown grace for each to drain.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	clients := make([]*clientConn, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.ep.Close(wire.ReasonServerShutdown)
	}
	for _, c := range clients {
		c.ep.Wait()
	}
	s.manager.Stop()
	s.dispatcher.Wait()
}

func (s *Server) addClient(uuid string, c *clientConn) {
	s.mu.Lock()
	s.clients[uuid] = c
	s.mu.Unlock()
}

func (s *Server) removeClient(uuid string) {
	s.mu.Lock()
	delete(s.clients, uuid)
	s.mu.Unlock()
	s.conns.Remove(uuid)
}

func (s *Server) clientByUUID(uuid string) (*clientConn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[uuid]
	return c, ok
}

// SendDraw implements damage.Sender: it broadcasts an encoded frame to
// every currently connected client's endpoint (§4.8 sharing: all
// attached clients see the same surface set and its updates).
func (s *Server) SendDraw(wid uint64, sequence uint64, region damage.Rect, enc string, data []byte, clientOptions map[string]wire.Value) {
	pkt := wire.New(wire.PacketDraw, wid, sequence, region.X, region.Y, region.W, region.H, enc, data, toValueMap(clientOptions))
	s.broadcast(pkt, endpoint.PriorityDraw)
}

// SendScroll implements damage.Sender.
func (s *Server) SendScroll(wid uint64, sequence uint64, moves []damage.ScrollMove) {
	encoded := make([]wire.Value, len(moves))
	for i, m := range moves {
		encoded[i] = map[string]wire.Value{
			"src_y": m.SrcY, "dst_y": m.DstY, "height": m.Height,
		}
	}
	pkt := wire.New(wire.PacketScroll, wid, sequence, encoded)
	s.broadcast(pkt, endpoint.PriorityDraw)
}

func (s *Server) broadcast(pkt wire.Packet, priority endpoint.Priority) {
	s.broadcastExcept("", pkt, priority)
}

// broadcastExcept enqueues pkt to every attached client other than
// exceptUUID, used for subchannel fan-out among sharing clients
// (§4.8: "all attached clients see the same surface set").
func (s *Server) broadcastExcept(exceptUUID string, pkt wire.Packet, priority endpoint.Priority) {
	s.mu.Lock()
	clients := make([]*clientConn, 0, len(s.clients))
	for uuid, c := range s.clients {
		if uuid == exceptUUID {
			continue
		}
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.ep.Enqueue(priority, pkt); err != nil {
			s.logger.Debug().Err(err).Str("client", c.uuid).Msg("enqueue failed, client draining")
		}
	}
}
