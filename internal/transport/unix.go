package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// SocketPath returns the Unix-domain socket path for a display under the
// given XDG runtime directory: $XDG_RUNTIME_DIR/xpra/<display> (§6).
func SocketPath(xdgRuntimeDir, display string) string {
	return filepath.Join(xdgRuntimeDir, "xpra", display)
}

// AbstractSocketName returns the Linux abstract-socket name for a display:
// @xpra/<display> (§6).
func AbstractSocketName(display string) string {
	return "@xpra/" + display
}

// DialUnix connects to a Unix-domain socket path.
func DialUnix(ctx context.Context, path string) (Transport, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial unix %s: %w", path, err)
	}
	return NewNetConnTransport(KindUnix, conn), nil
}

// ListenUnix listens on a Unix-domain socket path, creating parent
// directories and setting the socket to mode as given (e.g. 0600, or a
// group-shared mode). An abstract socket name (leading '@', Linux only) is passed
// through to net.Listen unchanged — the kernel does not create a dentry
// for it, so no chmod is attempted.
func ListenUnix(path string, mode os.FileMode) (Listener, error) {
	isAbstract := len(path) > 0 && path[0] == '@'
	if !isAbstract {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create socket dir: %w", err)
		}
		_ = os.Remove(path) // stale socket from a prior crash
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", path, err)
	}

	if !isAbstract {
		if err := os.Chmod(path, mode); err != nil {
			ln.Close()
			return nil, fmt.Errorf("chmod socket: %w", err)
		}
	}

	return &netListener{ln: ln, kind: KindUnix}, nil
}
