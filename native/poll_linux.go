//go:build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>
//
// Linux epoll demultiplexer with an eventfd wakeup channel. The
// eventfd write is async-signal-safe, so wakeup may be called from
// signal handlers and foreign threads alike.

package native

import (
	"encoding/binary"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-loop/api"
)

type epollPoller struct {
	epfd   int
	wakeFd int
	events []unix.EpollEvent
	waking int32
}

func newPoller(batch int) (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, err
	}
	return &epollPoller{
		epfd:   epfd,
		wakeFd: wakeFd,
		events: make([]unix.EpollEvent, batch),
	}, nil
}

func errnoStatus(err error) api.Status {
	if errno, ok := err.(syscall.Errno); ok {
		return api.Status(-int(errno))
	}
	return StatusEIO
}

func epollMask(events api.EventMask) uint32 {
	var m uint32
	if events&api.EventRead != 0 {
		m |= unix.EPOLLIN
	}
	if events&api.EventWrite != 0 {
		m |= unix.EPOLLOUT
	}
	if events&api.EventDisconnect != 0 {
		m |= unix.EPOLLRDHUP
	}
	return m
}

func (p *epollPoller) add(fd int, events api.EventMask) api.Status {
	ev := unix.EpollEvent{Events: epollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errnoStatus(err)
	}
	return StatusOK
}

func (p *epollPoller) mod(fd int, events api.EventMask) api.Status {
	ev := unix.EpollEvent{Events: epollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return errnoStatus(err)
	}
	return StatusOK
}

func (p *epollPoller) del(fd int) api.Status {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return errnoStatus(err)
	}
	return StatusOK
}

func (p *epollPoller) wait(out []pollEvent, timeoutMS int) (int, api.Status) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return 0, StatusOK
		}
		return 0, errnoStatus(err)
	}
	written := 0
	for i := 0; i < n && written < len(out); i++ {
		ev := p.events[i]
		if int(ev.Fd) == p.wakeFd {
			p.drainWake()
			continue
		}
		var revents int
		if ev.Events&unix.EPOLLERR != 0 {
			revents = int(StatusEIO)
		} else {
			var mask api.EventMask
			if ev.Events&unix.EPOLLIN != 0 {
				mask |= api.EventRead
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				mask |= api.EventWrite
			}
			if ev.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
				mask |= api.EventDisconnect
			}
			revents = int(mask)
		}
		out[written] = pollEvent{fd: int(ev.Fd), revents: revents}
		written++
	}
	return written, StatusOK
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakeFd, buf[:]); err != nil {
			break
		}
	}
	atomic.StoreInt32(&p.waking, 0)
}

func (p *epollPoller) wakeup() {
	if !atomic.CompareAndSwapInt32(&p.waking, 0, 1) {
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(p.wakeFd, buf[:])
}

func (p *epollPoller) close() error {
	_ = unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}
