package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xpra-project/session-core/internal/server"
	"github.com/xpra-project/session-core/internal/subchannel"
)

// controlRequest/controlResponse are the newline-delimited JSON
// messages exchanged over a display's control socket, carrying the
// `stop`/`info`/`list-clients`/`control` commands of §6.
type controlRequest struct {
	Command string `json:"command"`
	Arg     string `json:"arg,omitempty"`
	Value   string `json:"value,omitempty"`
}

type controlResponse struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type controlServer struct {
	srv      *server.Server
	display  string
	logger   zerolog.Logger
	ln       net.Listener
	stopped  chan struct{}
	stopOnce sync.Once
}

func newControlServer(srv *server.Server, display string, logger zerolog.Logger) (*controlServer, error) {
	path := controlPath(display)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &controlServer{srv: srv, display: display, logger: logger, ln: ln, stopped: make(chan struct{})}, nil
}

// requestStop shuts the server down and signals Stopped so the process
// that's serving it can exit, used for both `stop` (plain shutdown) and
// `upgrade` (shutdown after a rendezvous write) since neither otherwise
// touches the listeners runSession is blocked accepting on.
func (c *controlServer) requestStop() {
	go c.srv.Shutdown()
	c.stopOnce.Do(func() { close(c.stopped) })
}

// Stopped is closed once a control command has asked this session to
// shut down.
func (c *controlServer) Stopped() <-chan struct{} { return c.stopped }

func (c *controlServer) serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = c.ln.Close()
	}()
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		go c.handleConn(conn)
	}
}

func (c *controlServer) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	var req controlRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		c.logger.Debug().Err(err).Msg("control: malformed request")
		return
	}
	resp := c.handleRequest(req)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		c.logger.Debug().Err(err).Msg("control: failed to write response")
	}
}

func (c *controlServer) handleRequest(req controlRequest) controlResponse {
	switch req.Command {
	case "stop":
		c.requestStop()
		return controlResponse{OK: true}
	case "info":
		info := c.srv.Info()
		payload, _ := json.Marshal(struct {
			Display   string   `json:"display"`
			Encodings []string `json:"encodings"`
			Clients   []string `json:"clients"`
			UptimeSec float64  `json:"uptime_seconds"`
		}{Display: c.display, Encodings: info.Encodings, Clients: info.Clients, UptimeSec: info.Uptime.Seconds()})
		return controlResponse{OK: true, Payload: payload}
	case "list-clients":
		payload, _ := json.Marshal(c.srv.Info().Clients)
		return controlResponse{OK: true, Payload: payload}
	case "control":
		if err := c.applyControl(req.Arg, req.Value); err != nil {
			return controlResponse{OK: false, Error: err.Error()}
		}
		return controlResponse{OK: true}
	case "detach":
		if err := c.srv.DisconnectClient(req.Arg); err != nil {
			return controlResponse{OK: false, Error: err.Error()}
		}
		return controlResponse{OK: true}
	case "upgrade":
		if err := c.srv.WriteRendezvous(rendezvousPath(c.display, req.Arg)); err != nil {
			return controlResponse{OK: false, Error: err.Error()}
		}
		c.requestStop()
		return controlResponse{OK: true}
	default:
		return controlResponse{OK: false, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (c *controlServer) applyControl(cmd, value string) error {
	switch subchannel.ControlCommand(cmd) {
	case subchannel.ControlSpeed, subchannel.ControlQuality, subchannel.ControlRefresh:
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			return fmt.Errorf("parse integer argument for %s: %w", cmd, err)
		}
		return c.srv.Control(subchannel.ControlCommand(cmd), n)
	case subchannel.ControlEncoding:
		return c.srv.Control(subchannel.ControlEncoding, value)
	case subchannel.ControlSharePolicy:
		return c.srv.Control(subchannel.ControlSharePolicy, value == "1" || value == "true")
	default:
		return fmt.Errorf("unknown control command %q", cmd)
	}
}

// sendControlRequest dials display's control socket, sends req, and
// returns the decoded response. Used by stop/info/list-clients/control.
func sendControlRequest(display string, req controlRequest) (controlResponse, error) {
	d, err := readDotxpra(display)
	if err != nil {
		return controlResponse{}, fmt.Errorf("no running session on display %s: %w", display, err)
	}
	conn, err := net.DialTimeout("unix", d.Control, 5*time.Second)
	if err != nil {
		return controlResponse{}, fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return controlResponse{}, fmt.Errorf("send control request: %w", err)
	}
	var resp controlResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return controlResponse{}, fmt.Errorf("read control response: %w", err)
	}
	return resp, nil
}
