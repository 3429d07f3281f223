// File: watcher/lifecycle.go
// Author: momentics <momentics@gmail.com>
//
// Deferred-close protocol for native handles. Native close is queued,
// not immediate: the backend only releases the slot in a later tick's
// close phase. The closing set below keeps each handle reachable for
// exactly that window, so the collector cannot reclaim a slot the
// native loop still references. Closes are triggered only by explicit
// application logic, never by finalizers.

package watcher

import "github.com/momentics/hioload-loop/api"

// closingHandles is process-wide state, touched only on loop threads.
// A migration to multiple loops per process must serialize access.
var closingHandles = make(map[api.Handle]struct{})

func allocHandle(b api.Backend, kind api.HandleKind) api.Handle {
	return b.Alloc(kind)
}

func initHandle(b api.Backend, h api.Handle, kind api.HandleKind, args api.InitArgs) error {
	st := b.Init(h, args)
	if st >= 0 {
		return nil
	}
	cause := nativeCall("init", b, st, kind.String(), args).(*api.NativeCallError)
	return &api.NativeInitError{Kind: kind, Cause: cause}
}

// requestClose queues release of a live handle. Idempotent: a handle
// that was never initialized, or that is already closing, is left
// alone — closing an uninitialized handle is fatal to the process in
// real backends, and a second close while one is pending would
// double-release the slot.
func requestClose(b api.Backend, h api.Handle) {
	if h == nil || !h.Initialized() || b.IsClosing(h) {
		return
	}
	closingHandles[h] = struct{}{}
	b.Close(h, onNativeClose)
}

func onNativeClose(h api.Handle) {
	delete(closingHandles, h)
}

// closingSetSize reports the pending-close population, for tests and
// debug surfaces.
func closingSetSize() int {
	return len(closingHandles)
}
