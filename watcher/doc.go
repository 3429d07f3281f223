// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package watcher layers a uniform watcher abstraction over a native
// callback-driven event loop (api.Backend). It owns the watcher
// lifecycle state machine, the deferred-close protocol for native
// handles, descriptor multiplexing, and the simulated watcher kinds
// (fork, child-exit) built from the cross-thread wakeup primitive.
//
// All operations except Async.Send and the Notify* entry points must
// run on the goroutine driving the backend loop.
package watcher
