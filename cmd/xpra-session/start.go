package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xpra-project/session-core/internal/config"
	"github.com/xpra-project/session-core/internal/server"
)

// sessionMode distinguishes the three ways §6 launches a session; none
// of them change the component graph today since platform capture and
// desktop/shadow backends are external collaborators (Non-goals); the
// mode is only written to the session log, not to the dotxpra descriptor.
type sessionMode string

const (
	modeSeamless sessionMode = "seamless"
	modeDesktop  sessionMode = "desktop"
	modeShadow   sessionMode = "shadow"
)

func newStartCmd() *cobra.Command {
	return newSessionStartCmd("start", "Start a new seamless session", modeSeamless)
}

func newStartDesktopCmd() *cobra.Command {
	return newSessionStartCmd("start-desktop", "Start a new full-desktop session", modeDesktop)
}

func newShadowCmd() *cobra.Command {
	return newSessionStartCmd("shadow", "Shadow an existing desktop session", modeShadow)
}

func newSessionStartCmd(use, short string, mode sessionMode) *cobra.Command {
	var display string
	var foreground bool

	cmd := &cobra.Command{
		Use:   use + " [display]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				display = args[0]
			}
			display = defaultDisplay(display)
			if _, err := readDotxpra(display); err == nil {
				Fatal(cmd, fmt.Sprintf("session on display %s is already running", display), 30)
			}
			return runSession(cmd.Context(), display, mode, foreground)
		},
	}
	cmd.Flags().StringVar(&display, "display", "", "display to bind (defaults to $DISPLAY or :100)")
	cmd.Flags().BoolVar(&foreground, "foreground", false, "log to stderr instead of the session's server.log")
	return cmd
}

// runSession builds and serves a Server bound to both a Unix-domain
// control socket and a TCP listener, writing the dotxpra descriptor
// other commands use to find it, and blocking until the process
// receives a termination signal or the listener fails.
func runSession(ctx context.Context, display string, mode sessionMode, foreground bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logFile, err := newSessionLogger(display, foreground)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	srv, err := server.New(cfg, server.Options{}, prometheus.NewRegistry(), logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	rendezvous := rendezvousPath(display, cfg.Session.RendezvousPath)
	if _, statErr := os.Stat(rendezvous); statErr == nil {
		if err := srv.RestoreFromRendezvous(rendezvous); err != nil {
			logger.Warn().Err(err).Msg("failed to restore rendezvous state, starting clean")
		} else {
			os.Remove(rendezvous)
			logger.Info().Msg("restored session state from predecessor's upgrade hand-off")
		}
	}

	tcpLn, err := net.Listen("tcp", cfg.Transport.BindAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Transport.BindAddr, err)
	}

	sockPath := socketPath(display)
	os.MkdirAll(sessionDir(display), 0o700)
	_ = os.Remove(sockPath)
	unixLn, err := net.Listen("unix", sockPath)
	if err != nil {
		tcpLn.Close()
		return fmt.Errorf("listen %s: %w", sockPath, err)
	}
	if err := os.Chmod(sockPath, 0o600); err != nil {
		tcpLn.Close()
		unixLn.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	ctrl, err := newControlServer(srv, display, logger)
	if err != nil {
		tcpLn.Close()
		unixLn.Close()
		return fmt.Errorf("build control server: %w", err)
	}

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sessionID := uuid.NewString()
	if err := writeDotxpra(dotxpra{
		Display:   display,
		PID:       os.Getpid(),
		SessionID: sessionID,
		StartedAt: time.Now(),
		Socket:    sockPath,
		Control:   controlPath(display),
	}); err != nil {
		tcpLn.Close()
		unixLn.Close()
		return fmt.Errorf("write dotxpra descriptor: %w", err)
	}
	defer removeDotxpra(display)

	errCh := make(chan error, 3)
	go func() { errCh <- srv.Serve(runCtx, tcpLn) }()
	go func() { errCh <- srv.Serve(runCtx, unixLn) }()
	go func() { errCh <- ctrl.serve(runCtx) }()

	logger.Info().Str("display", display).Str("mode", string(mode)).Str("bind", cfg.Transport.BindAddr).Str("socket", sockPath).Msg("session started")

	select {
	case <-runCtx.Done():
	case <-ctrl.Stopped():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("listener failed")
		}
	}

	cancel()
	tcpLn.Close()
	unixLn.Close()
	srv.Shutdown()
	return nil
}

func newSessionLogger(display string, foreground bool) (zerolog.Logger, *os.File, error) {
	if foreground {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Str("display", display).Logger(), nil, nil
	}
	if err := os.MkdirAll(sessionDir(display), 0o700); err != nil {
		return zerolog.Logger{}, nil, err
	}
	f, err := os.OpenFile(logPath(display), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}
	return zerolog.New(f).With().Timestamp().Str("display", display).Logger(), f, nil
}
