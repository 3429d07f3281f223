// File: watcher/async.go
// Author: momentics <momentics@gmail.com>
//
// Cross-thread wakeup watcher. Send only marks a pending wakeup; the
// callback still runs on the loop thread on the next tick.

package watcher

import (
	"sync/atomic"

	"github.com/momentics/hioload-loop/api"
)

// Async is the cross-thread wakeup primitive. Construct with
// Loop.NewAsync; the handle is initialized eagerly.
type Async struct {
	base

	// Send runs on arbitrary goroutines and must not touch the base
	// fields the loop thread mutates. It gets its own view: the handle
	// pinned at construction and an atomic closed flag.
	sendHandle api.Handle
	closed     atomic.Bool
}

// Send marks a pending wakeup from any goroutine or signal context.
// Sends coalesce until the next tick. Unlike most operations on closed
// watchers this fails loudly: a send with no live handle is a caller
// bug that would otherwise vanish silently.
func (a *Async) Send() error {
	if a.closed.Load() {
		return &api.UseAfterCloseError{Op: "send"}
	}
	b := a.backend()
	h := a.sendHandle
	if h == nil || b.IsClosing(h) {
		return &api.UseAfterCloseError{Op: "send"}
	}
	if st := b.Send(h); st < 0 {
		// close may have won the race since the checks above
		if a.closed.Load() || b.IsClosing(h) {
			return &api.UseAfterCloseError{Op: "send"}
		}
		return nativeCall("send", b, st)
	}
	return nil
}

// Close marks the send path dead before releasing the handle, so a
// concurrent Send observes the closed flag rather than torn state.
func (a *Async) Close() {
	a.closed.Store(true)
	a.base.Close()
}
