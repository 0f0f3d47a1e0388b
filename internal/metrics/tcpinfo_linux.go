//go:build linux

package metrics

import (
	"net"
	"time"

	"github.com/higebu/netfd"
	"github.com/simeonmiteff/go-tcpinfo/pkg/linux"
)

// sampleTCPInfoRTT reads the kernel's smoothed RTT estimate for conn via
// getsockopt(TCP_INFO), the same netfd+go-tcpinfo pairing as the pack's
// runZeroInc-sockstats collector and internal/damage's ack-latency
// sampling.
func sampleTCPInfoRTT(conn net.Conn) (time.Duration, error) {
	fd := netfd.GetFdFromConn(conn)
	info, err := linux.GetTCPInfo(fd)
	if err != nil {
		return 0, err
	}
	return time.Duration(info.RTT) * time.Microsecond, nil
}
