// File: api/watcher.go
// Author: momentics <momentics@gmail.com>
//
// The watcher contract exposed to schedulers. Schedulers never touch
// Backend primitives directly; everything goes through this surface.

package api

// Callback is a watcher callback with its bound arguments.
type Callback func(args ...any)

// Watcher is the capability set common to every watcher kind.
type Watcher interface {
	// Start arms the watcher and stores the callback. The native
	// handle is allocated and initialized lazily on first start; an
	// init rejection surfaces as *NativeInitError and leaves the
	// watcher uninitialized.
	Start(cb Callback, args ...any) error

	// Stop disarms the watcher and clears the callback. No-op unless
	// active. The native handle stays allocated for fast restart.
	Stop() error

	// Close stops the watcher if needed and requests asynchronous
	// release of the native handle. Idempotent; valid in any state.
	Close()

	// Active reports whether the watcher is armed.
	Active() bool

	// Ref reports whether the watcher keeps the loop alive while
	// active. Before the handle exists this returns the recorded
	// intent.
	Ref() bool

	// SetRef toggles loop-liveness accounting for this watcher.
	// Calling it before the watcher was ever started is a recorded
	// no-op, applied when the handle comes to life.
	SetRef(v bool)
}
