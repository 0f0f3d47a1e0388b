//go:build linux

package damage

import (
	"net"
	"time"

	"github.com/higebu/netfd"
	"github.com/simeonmiteff/go-tcpinfo/pkg/linux"
)

// sampleTCPInfoRTT reads the kernel's smoothed RTT estimate for conn via
// getsockopt(TCP_INFO), grounded on the pack's own
// runZeroInc-sockstats/pkg/exporter collector (same netfd+go-tcpinfo
// pairing, generalized from a Prometheus scrape loop to a per-ack
// latency sample).
func sampleTCPInfoRTT(conn net.Conn) (time.Duration, error) {
	fd := netfd.GetFdFromConn(conn)
	info, err := linux.GetTCPInfo(fd)
	if err != nil {
		return 0, err
	}
	return time.Duration(info.RTT) * time.Microsecond, nil
}
