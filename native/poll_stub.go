//go:build !linux

// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Stub demultiplexer for platforms without an epoll backend. Timers,
// async wakeups, signals and fs-poll handles still work; descriptor
// polling reports ENOSYS.

package native

import (
	"time"

	"github.com/momentics/hioload-loop/api"
)

type stubPoller struct {
	wakeCh chan struct{}
}

func newPoller(int) (poller, error) {
	return &stubPoller{wakeCh: make(chan struct{}, 1)}, nil
}

func (p *stubPoller) add(int, api.EventMask) api.Status { return StatusENOSYS }

func (p *stubPoller) mod(int, api.EventMask) api.Status { return StatusENOSYS }

func (p *stubPoller) del(int) api.Status { return StatusENOSYS }

func (p *stubPoller) wait(_ []pollEvent, timeoutMS int) (int, api.Status) {
	switch {
	case timeoutMS == 0:
		select {
		case <-p.wakeCh:
		default:
		}
	case timeoutMS < 0:
		<-p.wakeCh
	default:
		select {
		case <-p.wakeCh:
		case <-time.After(time.Duration(timeoutMS) * time.Millisecond):
		}
	}
	return 0, StatusOK
}

func (p *stubPoller) wakeup() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *stubPoller) close() error { return nil }
