//go:build linux

package labclient

import (
	"errors"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// pollWritableFor polls the socket for POLLOUT for at most timeout.
func pollWritableFor(sc syscall.Conn, timeout time.Duration) (pollResult, error) {
	rc, err := sc.SyscallConn()
	if err != nil {
		return pollWait, err
	}

	var (
		res     pollResult
		pollErr error
	)
	ms := int(timeout / time.Millisecond)
	err = rc.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		for {
			_, pollErr = unix.Poll(fds, ms)
			if !errors.Is(pollErr, unix.EINTR) {
				break
			}
		}
		if pollErr != nil {
			return
		}
		switch ev := fds[0].Revents; {
		case ev&unix.POLLOUT != 0:
			res = pollWritable
		case ev&(unix.POLLERR|unix.POLLHUP) != 0:
			res = pollHangup
		default:
			res = pollWait
		}
	})
	if err != nil {
		return pollWait, err
	}
	return res, pollErr
}
