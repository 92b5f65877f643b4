//go:build linux || darwin

package socketserver

import (
	"errors"
	"syscall"
	"time"

	"github.com/codefionn/netserver/internal/consts"
	"golang.org/x/sys/unix"
)

// acceptWait bounds Accept once poll(2) reported the listener readable
const acceptWait = consts.Timeout100Milliseconds

// unpolledWait caps the wait while a connection without a descriptor is open
const unpolledWait = 10 * time.Millisecond

const readableEvents = unix.POLLIN | unix.POLLHUP | unix.POLLERR

func rawFD(raw syscall.RawConn) (int, bool) {
	if raw == nil {
		return -1, false
	}
	fd := -1
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, false
	}
	return fd, fd >= 0
}

// waitReadable blocks for at most timeout until the listener or one of the
// connections is readable. Hang-ups and socket errors count as readable so
// the next receive observes them. Connections without a descriptor are
// always reported ready.
func waitReadable(listener syscall.RawConn, conns []*Connection, timeout time.Duration) (bool, []bool, error) {
	ready := make([]bool, len(conns))
	fds := make([]unix.PollFd, 0, len(conns)+1)
	index := make([]int, 0, len(conns)+1)

	if fd, ok := rawFD(listener); ok {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		index = append(index, -1)
	}

	unpolled := false
	for i, c := range conns {
		fd, ok := c.fd()
		if !ok {
			ready[i] = true
			unpolled = true
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		index = append(index, i)
	}

	if unpolled && timeout > unpolledWait {
		timeout = unpolledWait
	}
	if len(fds) == 0 {
		time.Sleep(timeout)
		return false, ready, nil
	}

	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, ready, nil
		}
		return false, ready, err
	}
	if n == 0 {
		return false, ready, nil
	}

	listenerReady := false
	for j, pfd := range fds {
		if pfd.Revents&readableEvents == 0 {
			continue
		}
		if index[j] < 0 {
			listenerReady = true
		} else {
			ready[index[j]] = true
		}
	}
	return listenerReady, ready, nil
}

// reuseAddr enables SO_REUSEADDR on the listening socket
func reuseAddr(network, address string, raw syscall.RawConn) error {
	var opErr error
	err := raw.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
