//go:build !linux

package damage

import (
	"errors"
	"net"
	"time"
)

var errTCPInfoUnsupported = errors.New("damage: TCP_INFO sampling unsupported on this platform")

func sampleTCPInfoRTT(net.Conn) (time.Duration, error) {
	return 0, errTCPInfoUnsupported
}
