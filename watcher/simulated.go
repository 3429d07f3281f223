// File: watcher/simulated.go
// Author: momentics <momentics@gmail.com>
//
// Simulated watchers: event classes the backend cannot watch natively
// (process fork, child exit), synthesized from an owned async doorbell
// plus registration in a loop-owned observer collection. The external
// trigger side only stores a payload and rings the doorbell; the
// callback runs on the loop thread on the next tick, never in the
// triggering context.

package watcher

import (
	"sync"

	"github.com/momentics/hioload-loop/api"
)

type simulated struct {
	loop     *Loop
	doorbell *Async

	registered bool
	closed     bool

	register   func()
	unregister func()
}

// Start registers the watcher in its observer collection and arms the
// doorbell with the callback.
func (s *simulated) Start(cb api.Callback, args ...any) error {
	if cb == nil {
		return api.ErrNilCallback
	}
	if s.closed {
		return &api.UseAfterCloseError{Op: "start"}
	}
	if !s.registered {
		s.register()
		s.registered = true
	}
	if err := s.doorbell.Start(cb, args...); err != nil {
		s.unregister()
		s.registered = false
		return err
	}
	return nil
}

// Stop unregisters from the observer collection and disarms the
// doorbell. Idempotent.
func (s *simulated) Stop() error {
	if s.registered {
		s.unregister()
		s.registered = false
	}
	return s.doorbell.Stop()
}

// Close releases the owned doorbell handle.
func (s *simulated) Close() {
	if s.closed {
		return
	}
	if s.registered {
		s.unregister()
		s.registered = false
	}
	s.doorbell.Close()
	s.closed = true
}

// Active mirrors the doorbell's armed state.
func (s *simulated) Active() bool { return s.doorbell.Active() }

// Ref mirrors the doorbell's liveness flag; the doorbell is the only
// native handle a simulated watcher owns.
func (s *simulated) Ref() bool { return s.doorbell.Ref() }

// SetRef forwards to the doorbell.
func (s *simulated) SetRef(v bool) { s.doorbell.SetRef(v) }

// Fork fires after the process observes a fork, via Loop.NotifyFork.
type Fork struct {
	simulated
}

// Child fires when a child process exit is reported for its pid via
// Loop.NotifyChildExit. The callback receives the reaped pid and raw
// wait status prepended to its bound arguments.
type Child struct {
	simulated
	pid int

	mu      sync.Mutex
	rpid    int
	rstatus int
}

// Pid returns the pid this watcher was registered for (zero means any
// child).
func (c *Child) Pid() int { return c.pid }

// Result returns the most recently delivered pid and wait status.
func (c *Child) Result() (pid, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rpid, c.rstatus
}

// Start arms the watcher; cb is invoked as cb(pid, status, args...).
func (c *Child) Start(cb api.Callback, args ...any) error {
	if cb == nil {
		return api.ErrNilCallback
	}
	wrapped := func(extra ...any) {
		pid, status := c.Result()
		cb(append([]any{pid, status}, extra...)...)
	}
	return c.simulated.Start(wrapped, args...)
}

// setWaitStatus is the notify entry point: store the payload, ring the
// doorbell, nothing else. Safe from the reaper context; sends before
// the next tick coalesce, latest payload wins.
func (c *Child) setWaitStatus(pid, status int) {
	c.mu.Lock()
	c.rpid = pid
	c.rstatus = status
	c.mu.Unlock()
	_ = c.doorbell.Send()
}
