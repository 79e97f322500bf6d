package client

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/nainya/evqlite/pkg/evqerr"
)

// connFD extracts the underlying file descriptor from conn, for
// connections that support it (real TCP/unix sockets). Test doubles
// like net.Pipe do not implement syscall.Conn and return an error,
// in which case callers fall back to a plain blocking read.
func connFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, evqerr.New(evqerr.KindInvalidArgument, "connection has no raw fd")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, evqerr.Wrap(evqerr.KindIOError, "SyscallConn", err)
	}

	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return 0, evqerr.Wrap(evqerr.KindIOError, "raw.Control", err)
	}
	return fd, nil
}

// waitReadable blocks until fd is readable or timeoutMs elapses
// (timeoutMs < 0 blocks indefinitely), using a single unix.Poll call.
// Each connection's worker goroutine uses it to bound its blocking read.
func waitReadable(fd int, timeoutMs int) (ready bool, err error) {
	return pollFor(fd, unix.POLLIN, timeoutMs)
}

// waitWritable blocks until fd is writable or timeoutMs elapses, which
// is how a completed non-blocking connect shows up. The client does not
// call it: its Dialer hands back an already-established connection.
func waitWritable(fd int, timeoutMs int) (ready bool, err error) {
	return pollFor(fd, unix.POLLOUT, timeoutMs)
}

func pollFor(fd int, events int16, timeoutMs int) (bool, error) {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		n, err := unix.Poll(pfd, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		return pfd[0].Revents&events != 0, nil
	}
}
