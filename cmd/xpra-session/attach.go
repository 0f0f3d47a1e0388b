package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xpra-project/session-core/internal/capability"
	"github.com/xpra-project/session-core/internal/endpoint"
	"github.com/xpra-project/session-core/internal/transport"
	"github.com/xpra-project/session-core/internal/wire"
)

const protocolVersion = "1.0"

func newAttachCmd() *cobra.Command {
	var share, steal bool
	cmd := &cobra.Command{
		Use:   "attach [display]",
		Short: "Attach to a running session's Unix-domain socket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			display := defaultDisplay(firstArg(args))
			return runAttach(cmd.Context(), cmd, display, share, steal)
		},
	}
	cmd.Flags().BoolVar(&share, "share", false, "allow other clients to remain attached")
	cmd.Flags().BoolVar(&steal, "steal", false, "evict any existing non-sharing client")
	return cmd
}

// attachClient is the minimal InboundHandler an `attach` run needs: it
// surfaces the server hello and every draw sequence it sees to stdout,
// standing in for the rendering backend this core dispatches to but
// does not itself implement (platform capture/render are out of scope).
type attachClient struct {
	out    *cobra.Command
	done   chan struct{}
	closed atomic.Bool
}

func (a *attachClient) HandlePacket(pkt wire.Packet) {
	switch pkt.Type {
	case wire.PacketHello:
		fmt.Fprintf(a.out.OutOrStdout(), "server hello: %v\n", pkt.Args)
	case wire.PacketNewWindow:
		fmt.Fprintf(a.out.OutOrStdout(), "new window: %v\n", pkt.Args)
	case wire.PacketDraw:
		fmt.Fprintf(a.out.OutOrStdout(), "draw: %v\n", pkt.Args[:2])
	case wire.PacketDisconnect:
		fmt.Fprintf(a.out.OutOrStdout(), "server disconnected: %v\n", pkt.Args)
	}
}

func (a *attachClient) HandleClosed(err error) {
	if a.closed.CompareAndSwap(false, true) {
		close(a.done)
	}
}

func runAttach(ctx context.Context, cmd *cobra.Command, display string, share, steal bool) error {
	d, err := readDotxpra(display)
	if err != nil {
		return fmt.Errorf("no running session on display %s: %w", display, err)
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	defer cancelDial()
	t, err := transport.DialUnix(dialCtx, d.Socket)
	if err != nil {
		return fmt.Errorf("dial session socket: %w", err)
	}

	client := &attachClient{out: cmd, done: make(chan struct{})}
	ep := endpoint.New(t, client, endpoint.Config{
		MainChunkMaxBytes:    262144,
		AuxChunkMaxBytes:     4194304,
		PreAuthChunkMaxBytes: 16384,
		LargeBinaryThreshold: 512,
		PingInterval:         5 * time.Second,
		LivenessTimeout:      90 * time.Second,
		ShutdownGrace:        2 * time.Second,
		HighWaterMarkBytes:   4194304,
		LowWaterMarkBytes:    1048576,
	})

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ep.Start(runCtx)

	hello := capability.Hello{
		Version: protocolVersion,
		UUID:    uuid.NewString(),
		Share:   share,
		Steal:   steal,
	}
	if err := ep.Enqueue(endpoint.PriorityControl, hello.ToPacket()); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	select {
	case <-client.done:
	case <-runCtx.Done():
		_ = ep.Close(wire.ReasonClientExit)
		ep.Wait()
	}
	return nil
}
