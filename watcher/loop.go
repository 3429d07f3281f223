// File: watcher/loop.go
// Author: momentics <momentics@gmail.com>
//
// The watcher-side loop facade: watcher constructors plus the
// loop-owned observer registries for the simulated kinds. Schedulers
// hold one of these and never touch Backend primitives directly.

package watcher

import (
	"sync"
	"time"

	"github.com/momentics/hioload-loop/api"
)

// Loop binds a backend to the watcher layer.
type Loop struct {
	backend api.Backend

	forkMu       sync.Mutex
	forkWatchers map[*Fork]struct{}

	childMu       sync.Mutex
	childWatchers map[int][]*Child

	reapOnce sync.Once
}

// NewLoop wraps a backend. One Loop per backend instance.
func NewLoop(b api.Backend) *Loop {
	return &Loop{
		backend:       b,
		forkWatchers:  make(map[*Fork]struct{}),
		childWatchers: make(map[int][]*Child),
	}
}

// Backend exposes the underlying primitive set, for code driving the
// native loop's run cycle.
func (l *Loop) Backend() api.Backend { return l.backend }

// NewIo builds a descriptor watcher for fd armed with events.
func (l *Loop) NewIo(fd int, events api.EventMask) *Io {
	w := &Io{fd: fd, events: events}
	w.base = newBase(l, api.KindPoll)
	w.initArgs = api.InitArgs{Fd: fd}
	w.startArgs = api.StartArgs{Events: events}
	w.dispatch = w.ioDispatch
	return w
}

// NewTimer builds a timer watcher. Non-zero durations below one
// millisecond are clamped up to one millisecond with a diagnostic.
// Zero-duration timers are realized as one-shot check watchers that
// fire on the next loop iteration: native backends busy-loop on
// zero-delay timers.
func (l *Loop) NewTimer(after, repeat time.Duration) TimerWatcher {
	if after <= 0 {
		t := &checkTimer{}
		t.base = newBase(l, api.KindCheck)
		return t
	}
	t := &Timer{}
	t.base = newBase(l, api.KindTimer)
	t.afterMS = clampMS(after, "after")
	if repeat > 0 {
		t.repeatMS = clampMS(repeat, "repeat")
	}
	t.startArgs = api.StartArgs{AfterMS: t.afterMS, RepeatMS: t.repeatMS}
	return t
}

// NewSignal builds a signal watcher. Signal watchers start unref'd:
// an armed signal watcher alone does not keep the loop alive.
func (l *Loop) NewSignal(signum int) *Signal {
	s := &Signal{signum: signum}
	s.base = newBase(l, api.KindSignal)
	s.wantRef = false
	s.initArgs = api.InitArgs{Signum: signum}
	s.startArgs = api.StartArgs{Signum: signum}
	return s
}

// NewIdle builds an idle-phase watcher.
func (l *Loop) NewIdle() *Idle {
	w := &Idle{}
	w.base = newBase(l, api.KindIdle)
	return w
}

// NewPrepare builds a prepare-phase watcher.
func (l *Loop) NewPrepare() *Prepare {
	w := &Prepare{}
	w.base = newBase(l, api.KindPrepare)
	return w
}

// NewCheck builds a check-phase watcher.
func (l *Loop) NewCheck() *Check {
	w := &Check{}
	w.base = newBase(l, api.KindCheck)
	return w
}

// NewOneShotCheck builds a check watcher that stops itself before its
// first delivery.
func (l *Loop) NewOneShotCheck() *OneShotCheck {
	w := &OneShotCheck{}
	w.base = newBase(l, api.KindCheck)
	return w
}

// NewStat builds a filesystem metadata watcher for path. Intervals
// below MinStatInterval are raised to it.
func (l *Loop) NewStat(path string, interval time.Duration) *Stat {
	s := &Stat{path: path, interval: interval}
	s.base = newBase(l, api.KindFSPoll)
	if s.interval < MinStatInterval {
		s.interval = MinStatInterval
	}
	s.startArgs = api.StartArgs{Path: path, IntervalMS: uint64(s.interval / time.Millisecond)}
	return s
}

// NewAsync builds a cross-thread wakeup watcher. The handle is
// initialized eagerly: Send must never race with lazy allocation, and
// a raw uninitialized slot around a send path is how processes die.
func (l *Loop) NewAsync() (*Async, error) {
	a := &Async{}
	a.base = newBase(l, api.KindAsync)
	if err := a.ensureHandle(); err != nil {
		return nil, err
	}
	a.sendHandle = a.handle
	return a, nil
}

// NewFork builds a simulated fork watcher.
func (l *Loop) NewFork() (*Fork, error) {
	doorbell, err := l.NewAsync()
	if err != nil {
		return nil, err
	}
	f := &Fork{}
	f.simulated = simulated{loop: l, doorbell: doorbell}
	f.register = func() {
		l.forkMu.Lock()
		l.forkWatchers[f] = struct{}{}
		l.forkMu.Unlock()
	}
	f.unregister = func() {
		l.forkMu.Lock()
		delete(l.forkWatchers, f)
		l.forkMu.Unlock()
	}
	return f, nil
}

// NewChild builds a simulated child-exit watcher. pid zero watches
// every child.
func (l *Loop) NewChild(pid int) (*Child, error) {
	doorbell, err := l.NewAsync()
	if err != nil {
		return nil, err
	}
	c := &Child{pid: pid}
	c.simulated = simulated{loop: l, doorbell: doorbell}
	c.register = func() {
		l.childMu.Lock()
		l.childWatchers[pid] = append(l.childWatchers[pid], c)
		l.childMu.Unlock()
	}
	c.unregister = func() {
		l.childMu.Lock()
		list := l.childWatchers[pid]
		for i, x := range list {
			if x == c {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(l.childWatchers, pid)
		} else {
			l.childWatchers[pid] = list
		}
		l.childMu.Unlock()
	}
	return c, nil
}

// NotifyFork is the post-fork hook entry point: it rings every
// registered fork watcher's doorbell. Callable from any context that
// only needs to store-and-signal.
func (l *Loop) NotifyFork() {
	l.forkMu.Lock()
	targets := make([]*Fork, 0, len(l.forkWatchers))
	for f := range l.forkWatchers {
		targets = append(targets, f)
	}
	l.forkMu.Unlock()
	for _, f := range targets {
		_ = f.doorbell.Send()
	}
}

// NotifyChildExit records a reaped child's status and rings the
// doorbells of the watchers for that pid (and the watch-all pid zero
// watchers). Only stores data and signals; safe from the reaper
// context.
func (l *Loop) NotifyChildExit(pid, status int) {
	l.childMu.Lock()
	targets := append([]*Child(nil), l.childWatchers[pid]...)
	if pid != 0 {
		targets = append(targets, l.childWatchers[0]...)
	}
	l.childMu.Unlock()
	for _, c := range targets {
		c.setWaitStatus(pid, status)
	}
}
