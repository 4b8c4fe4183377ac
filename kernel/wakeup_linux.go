//go:build linux
// +build linux

// File: kernel/wakeup_linux.go
// License: Apache-2.0
//
// Linux implementation of a tile's wake notification: an eventfd
// polled through an epoll instance, grounded on the teacher's
// reactor/reactor_linux.go epoll usage (EpollCreate1/EpollCtl/EpollWait).
// wakeup_pe writes to the eventfd; the tile's wakeupSource drains it
// each reactor pass so a control-plane wakeup interrupts the idle
// backoff instead of waiting it out.

package kernel

import "golang.org/x/sys/unix"

type wakeupHandle struct {
	fd   int
	epfd int
}

func newWakeupHandle() (*wakeupHandle, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		unix.Close(fd)
		unix.Close(epfd)
		return nil, err
	}
	return &wakeupHandle{fd: fd, epfd: epfd}, nil
}

// Signal implements wakeup_pe: writes one tick to the eventfd.
func (w *wakeupHandle) Signal() error {
	buf := make([]byte, 8)
	buf[0] = 1
	_, err := unix.Write(w.fd, buf)
	return err
}

// Wait blocks up to timeoutMillis for a pending Signal and reports
// whether one was drained. A timeoutMillis of 0 polls without blocking.
func (w *wakeupHandle) Wait(timeoutMillis int) bool {
	events := make([]unix.EpollEvent, 1)
	n, err := unix.EpollWait(w.epfd, events, timeoutMillis)
	if err != nil || n == 0 {
		return false
	}
	buf := make([]byte, 8)
	unix.Read(w.fd, buf)
	return true
}

func (w *wakeupHandle) Close() error {
	unix.Close(w.fd)
	return unix.Close(w.epfd)
}
