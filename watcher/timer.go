// File: watcher/timer.go
// Author: momentics <momentics@gmail.com>
//
// Timer watchers. Native backends run at millisecond resolution, so
// sub-millisecond requests are clamped up with a diagnostic rather
// than rejected. Zero-duration timers never reach the native timer at
// all; see Loop.NewTimer.

package watcher

import (
	"time"

	"github.com/momentics/hioload-loop/api"
)

// TimerWatcher is the timer capability set: the generic watcher
// surface plus Again.
type TimerWatcher interface {
	api.Watcher
	// Again behaves as Start when the timer was never started;
	// otherwise it restarts the native timer from now with its
	// original repeat interval.
	Again(cb api.Callback, args ...any) error
}

// Timer is a native timer watcher.
type Timer struct {
	base
	afterMS  uint64
	repeatMS uint64
}

// After returns the armed delay in milliseconds.
func (t *Timer) After() uint64 { return t.afterMS }

// Repeat returns the repeat interval in milliseconds, zero for
// one-shot timers.
func (t *Timer) Repeat() uint64 { return t.repeatMS }

// Again restarts from now with the original repeat interval, or starts
// the timer when it never ran. On a non-repeating timer the native
// layer deactivates instead of rearming; the watcher state follows.
func (t *Timer) Again(cb api.Callback, args ...any) error {
	if cb == nil {
		return api.ErrNilCallback
	}
	if !t.Active() {
		return t.Start(cb, args...)
	}
	t.cb = cb
	t.args = args
	if st := t.backend().Again(t.handle); st < 0 {
		return nativeCall("timer_again", t.backend(), st)
	}
	if t.repeatMS == 0 {
		t.cb = nil
		t.args = nil
		t.state = stateStopped
	}
	return nil
}

func clampMS(d time.Duration, what string) uint64 {
	if d < time.Millisecond {
		api.Diag().Warnf(
			"timer %s of %v is below the 1ms native resolution; clamped to 1ms",
			what, d)
		return 1
	}
	return uint64(d / time.Millisecond)
}

// checkTimer realizes a zero-duration timer as a one-shot check
// watcher: it fires on the next loop iteration and stops itself.
// Again on it is simply Start.
type checkTimer struct {
	OneShotCheck
}

func (t *checkTimer) Again(cb api.Callback, args ...any) error {
	return t.Start(cb, args...)
}
