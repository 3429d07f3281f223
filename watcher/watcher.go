// File: watcher/watcher.go
// Author: momentics <momentics@gmail.com>
//
// The generic watcher state machine shared by every kind:
// uninitialized -> stopped <-> active, with closed terminal from any
// state. The native handle comes to life lazily on first start and is
// released through the deferred-close protocol in lifecycle.go.

package watcher

import "github.com/momentics/hioload-loop/api"

type watchState uint8

const (
	stateUninitialized watchState = iota
	stateStopped
	stateActive
	stateClosed
)

type base struct {
	loop   *Loop
	kind   api.HandleKind
	handle api.Handle
	state  watchState

	cb   api.Callback
	args []any

	initArgs  api.InitArgs
	startArgs api.StartArgs

	// ref intent recorded before the handle exists; applied at init
	wantRef bool

	// kind-specific dispatch hook; nil means invoke cb(args...)
	dispatch func(revents int)
}

func newBase(l *Loop, kind api.HandleKind) base {
	return base{loop: l, kind: kind, wantRef: true}
}

func (w *base) backend() api.Backend { return w.loop.backend }

func (w *base) ensureHandle() error {
	if w.handle != nil {
		return nil
	}
	h := allocHandle(w.backend(), w.kind)
	if err := initHandle(w.backend(), h, w.kind, w.initArgs); err != nil {
		return err
	}
	w.handle = h
	if !w.wantRef {
		w.backend().Unref(h)
	}
	if w.state == stateUninitialized {
		w.state = stateStopped
	}
	return nil
}

func (w *base) startWith(cb api.Callback, args []any) error {
	switch w.state {
	case stateClosed:
		return &api.UseAfterCloseError{Op: "start"}
	case stateActive:
		return nil
	}
	if err := w.ensureHandle(); err != nil {
		return err
	}
	w.cb = cb
	w.args = args
	if st := w.backend().Start(w.handle, w.trampoline, w.startArgs); st < 0 {
		w.cb = nil
		w.args = nil
		return nativeCall("start", w.backend(), st, w.kind.String())
	}
	w.state = stateActive
	return nil
}

// Start arms the watcher with cb bound to args.
func (w *base) Start(cb api.Callback, args ...any) error {
	if cb == nil {
		return api.ErrNilCallback
	}
	return w.startWith(cb, args)
}

// trampoline is the generic dispatch entry registered with the
// backend. It tolerates the watcher having been stopped or closed
// earlier in the same tick's dispatch pass.
func (w *base) trampoline(_ api.Handle, revents int) {
	if w.state != stateActive {
		return
	}
	if w.dispatch != nil {
		w.dispatch(revents)
		return
	}
	if cb := w.cb; cb != nil {
		cb(w.args...)
	}
}

// Stop disarms the watcher and clears the callback. The handle stays
// allocated for fast restart.
func (w *base) Stop() error {
	if w.state != stateActive {
		return nil
	}
	var err error
	if w.handle != nil {
		// the multiplexed io watcher drops the handle when it closes
		// down; an error handler may then stop us a second time
		if st := w.backend().Stop(w.handle); st < 0 {
			err = nativeCall("stop", w.backend(), st, w.kind.String())
		}
	}
	w.cb = nil
	w.args = nil
	w.state = stateStopped
	return err
}

// Close stops the watcher if needed and requests asynchronous release
// of the handle. Idempotent. A stop failure during close is demoted to
// a diagnostic: cleanup must still reach requestClose or the slot
// would leak from the closing set.
func (w *base) Close() {
	if w.state == stateClosed {
		return
	}
	if w.state == stateActive {
		if err := w.Stop(); err != nil {
			api.Diag().Warnf("stop during close of %s watcher: %v", w.kind, err)
		}
	}
	requestClose(w.backend(), w.handle)
	w.handle = nil
	w.state = stateClosed
}

// Active reports whether the watcher is armed.
func (w *base) Active() bool { return w.state == stateActive }

// Ref reports loop-liveness intent; once the handle exists it reflects
// the native flag.
func (w *base) Ref() bool {
	if w.handle == nil {
		return w.wantRef
	}
	return w.backend().HasRef(w.handle)
}

// SetRef toggles loop-liveness accounting. Safe to call speculatively
// before the watcher was ever started; the intent is applied when the
// handle comes to life.
func (w *base) SetRef(v bool) {
	w.wantRef = v
	if w.handle == nil {
		return
	}
	if v {
		w.backend().Ref(w.handle)
	} else {
		w.backend().Unref(w.handle)
	}
}
