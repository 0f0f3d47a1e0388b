//go:build !linux

package metrics

import (
	"errors"
	"net"
	"time"
)

var errTCPInfoUnsupported = errors.New("metrics: TCP_INFO sampling unsupported on this platform")

func sampleTCPInfoRTT(net.Conn) (time.Duration, error) {
	return 0, errTCPInfoUnsupported
}
