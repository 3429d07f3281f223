// File: native/handle.go
// Author: momentics <momentics@gmail.com>
//
// Handle slots. One struct backs every kind, union style, mirroring
// the layout discipline of C event-loop backends: the kind tag decides
// which fields are meaningful.

package native

import (
	"os"
	"sync/atomic"

	"github.com/momentics/hioload-loop/api"
)

const (
	flagInitialized uint32 = 1 << iota
	flagActive
	flagClosing
	flagRef
)

type handle struct {
	loop *Loop
	kind api.HandleKind
	// flag bits. The loop goroutine is the only writer, but Send
	// consults them from arbitrary threads, so access is atomic.
	flags atomic.Uint32
	cb    api.NativeCallback

	// close completion, set by Close
	onClose func(api.Handle)

	// cross-thread wakeup bookkeeping, guarded by loop.mu
	queued bool
	// async coalescing flag, CAS'd by Send from any thread
	pending int32

	// poll
	fd     int
	events api.EventMask

	// timer
	repeatMS uint64
	due      int64
	heapIdx  int

	// signal
	signum  int
	sigCh   chan os.Signal
	sigQuit chan struct{}

	// fs_poll
	path       string
	intervalMS uint64
	statDue    int64
	statFirst  bool
	lastStatus api.Status
	prev       api.StatAttr
	curr       api.StatAttr
}

func (h *handle) Kind() api.HandleKind { return h.kind }

func (h *handle) setFlags(f uint32) { h.flags.Store(h.flags.Load() | f) }

func (h *handle) clearFlags(f uint32) { h.flags.Store(h.flags.Load() &^ f) }

func (h *handle) Initialized() bool { return h.flags.Load()&flagInitialized != 0 }

func (h *handle) active() bool { return h.flags.Load()&flagActive != 0 }

func (h *handle) closing() bool { return h.flags.Load()&flagClosing != 0 }

func (h *handle) hasRef() bool { return h.flags.Load()&flagRef != 0 }

// Prev returns the snapshot taken before the most recent fs-poll
// change. Only meaningful for fs_poll handles.
func (h *handle) Prev() *api.StatAttr {
	a := h.prev
	return &a
}

// Curr returns the snapshot taken at the most recent fs-poll change.
func (h *handle) Curr() *api.StatAttr {
	a := h.curr
	return &a
}
