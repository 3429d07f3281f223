// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package native implements the callback-driven event loop the watcher
// layer sits on: a handle table, a poll-mode reactor (epoll on Linux,
// stub elsewhere), a monotonic timer heap, signal and fs-poll handle
// kinds, and a cross-thread wakeup primitive. It implements api.Backend.
package native
