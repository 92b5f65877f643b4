//go:build !linux && !darwin

package socketserver

import (
	"syscall"
	"time"

	"github.com/codefionn/netserver/internal/consts"
)

const acceptWait = consts.Timeout1Millisecond

const unpolledWait = 10 * time.Millisecond

// waitReadable has no readiness source here, so it naps briefly and reports
// everything as ready. Reads and accepts then rely on short deadlines.
func waitReadable(listener syscall.RawConn, conns []*Connection, timeout time.Duration) (bool, []bool, error) {
	if timeout > unpolledWait {
		timeout = unpolledWait
	}
	time.Sleep(timeout)

	ready := make([]bool, len(conns))
	for i := range ready {
		ready[i] = true
	}
	return true, ready, nil
}

func reuseAddr(network, address string, raw syscall.RawConn) error {
	return nil
}
