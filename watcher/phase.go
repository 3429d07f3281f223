// File: watcher/phase.go
// Author: momentics <momentics@gmail.com>
//
// Loop-phase watchers: idle, prepare, check. Thin specializations of
// the base state machine; they differ only in which tick phase the
// backend dispatches them in.

package watcher

import "github.com/momentics/hioload-loop/api"

// Idle fires every tick while the loop has nothing better to do; an
// active idle watcher keeps the poll phase from blocking.
type Idle struct {
	base
}

// Prepare fires right before the loop's poll phase.
type Prepare struct {
	base
}

// Check fires right after the loop's poll phase.
type Check struct {
	base
}

// OneShotCheck is a check watcher that self-stops before delivering
// its callback, so it fires on exactly one iteration.
type OneShotCheck struct {
	base
}

// Start arms the watcher; on delivery it stops itself first, then
// invokes cb. The stop-first ordering keeps bookkeeping correct even
// if cb panics.
func (w *OneShotCheck) Start(cb api.Callback, args ...any) error {
	if cb == nil {
		return api.ErrNilCallback
	}
	wrapped := func(extra ...any) {
		_ = w.Stop()
		cb(extra...)
	}
	return w.startWith(wrapped, args)
}
