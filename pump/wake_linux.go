//go:build linux

package pump

import (
	"time"

	"golang.org/x/sys/unix"
)

// wakeSignal is a cooperative wakeup primitive for the pump's idle wait,
// backed by an eventfd plus an epoll instance to wait on it, mirroring
// eventloop's own createWakeFd/EFD_NONBLOCK eventfd idiom and its
// EpollCreate1/EpollWait poll loop (poller_linux.go).
type wakeSignal struct {
	fd   int
	epfd int
}

func newWakeSignal() (*wakeSignal, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(fd)
		return nil, err
	}
	return &wakeSignal{fd: fd, epfd: epfd}, nil
}

// signal wakes one pending wait, coalescing with any already-pending signal.
func (w *wakeSignal) signal() {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(w.fd, buf[:])
}

// wait blocks until signaled or timeout elapses, draining the eventfd so a
// subsequent wait starts from a clean slate.
func (w *wakeSignal) wait(timeout time.Duration) {
	var events [1]unix.EpollEvent
	n, err := unix.EpollWait(w.epfd, events[:], int(timeout.Milliseconds()))
	if err != nil || n == 0 {
		return
	}
	var buf [8]byte
	_, _ = unix.Read(w.fd, buf[:])
}

func (w *wakeSignal) close() error {
	_ = unix.Close(w.epfd)
	return unix.Close(w.fd)
}
