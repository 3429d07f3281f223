// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Package fake provides a deterministic in-memory api.Backend for
// tests: a simulated millisecond clock, manual event injection, and
// explicit flushing of the deferred close queue, so watcher semantics
// can be exercised without a platform poller.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/native"
)

// Handle is a fake handle slot. Exported so tests can reach snapshots
// and flags through type assertions where needed.
type Handle struct {
	kind        api.HandleKind
	initialized bool
	active      bool
	closing     bool
	ref         bool

	cb    api.NativeCallback
	init  api.InitArgs
	start api.StartArgs

	due     int64
	pending bool

	prevAttr *api.StatAttr
	currAttr *api.StatAttr
}

func (h *Handle) Kind() api.HandleKind { return h.kind }

func (h *Handle) Initialized() bool { return h.initialized }

// Prev implements api.StatHandle.
func (h *Handle) Prev() *api.StatAttr { return h.prevAttr }

// Curr implements api.StatHandle.
func (h *Handle) Curr() *api.StatAttr { return h.currAttr }

// StartArgs returns the arguments of the most recent start call, so
// tests can assert armed masks and timer intervals.
func (h *Handle) StartArgs() api.StartArgs { return h.start }

type closer struct {
	h       *Handle
	onClose func(api.Handle)
}

// Backend implements api.Backend entirely in memory.
type Backend struct {
	mu         sync.Mutex
	nowMS      int64
	handles    []*Handle
	closers    []closer
	closeCalls map[*Handle]int
	sendQ      []*Handle
	failInit   map[api.HandleKind]api.Status
}

// New builds an empty fake backend.
func New() *Backend {
	return &Backend{
		closeCalls: make(map[*Handle]int),
		failInit:   make(map[api.HandleKind]api.Status),
	}
}

// FailInit makes Init reject the given kind with status until cleared
// with status zero.
func (b *Backend) FailInit(kind api.HandleKind, status api.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failInit, kind)
		return
	}
	b.failInit[kind] = status
}

// Alloc reserves a slot.
func (b *Backend) Alloc(kind api.HandleKind) api.Handle {
	h := &Handle{kind: kind, ref: true}
	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.mu.Unlock()
	return h
}

// Init marks the slot live, unless a failure was injected.
func (b *Backend) Init(h api.Handle, args api.InitArgs) api.Status {
	hd := h.(*Handle)
	b.mu.Lock()
	st, fail := b.failInit[hd.kind]
	b.mu.Unlock()
	if fail {
		return st
	}
	if hd.initialized {
		return native.StatusEINVAL
	}
	if hd.kind == api.KindPoll && args.Fd < 0 {
		return native.StatusEBADF
	}
	hd.init = args
	hd.initialized = true
	return native.StatusOK
}

// Start arms the slot and records the start arguments.
func (b *Backend) Start(h api.Handle, cb api.NativeCallback, args api.StartArgs) api.Status {
	hd := h.(*Handle)
	if !hd.initialized || hd.closing {
		return native.StatusEINVAL
	}
	hd.cb = cb
	hd.start = args
	if hd.kind == api.KindTimer {
		hd.due = b.nowMS + int64(args.AfterMS)
	}
	hd.active = true
	return native.StatusOK
}

// Again reschedules a repeating timer from the simulated now.
func (b *Backend) Again(h api.Handle) api.Status {
	hd := h.(*Handle)
	if hd.kind != api.KindTimer || !hd.initialized || hd.closing || hd.cb == nil {
		return native.StatusEINVAL
	}
	if hd.start.RepeatMS > 0 {
		hd.due = b.nowMS + int64(hd.start.RepeatMS)
		hd.active = true
	} else {
		hd.active = false
	}
	return native.StatusOK
}

// Stop disarms the slot. Idempotent.
func (b *Backend) Stop(h api.Handle) api.Status {
	hd := h.(*Handle)
	b.mu.Lock()
	hd.active = false
	b.mu.Unlock()
	return native.StatusOK
}

// Close queues the release; the completion callback only runs when a
// test calls FlushClosers, mirroring the native next-iteration rule.
// The lifecycle flags change under the lock so a concurrent Send
// observes either the pre- or post-close state, never a torn one.
func (b *Backend) Close(h api.Handle, onClose func(api.Handle)) {
	hd := h.(*Handle)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !hd.initialized || hd.closing {
		return
	}
	hd.active = false
	hd.closing = true
	b.closers = append(b.closers, closer{h: hd, onClose: onClose})
	b.closeCalls[hd]++
}

// Ref sets the liveness flag.
func (b *Backend) Ref(h api.Handle) { h.(*Handle).ref = true }

// Unref clears the liveness flag.
func (b *Backend) Unref(h api.Handle) { h.(*Handle).ref = false }

// HasRef reads the liveness flag.
func (b *Backend) HasRef(h api.Handle) bool { return h.(*Handle).ref }

// IsClosing reports whether Close was called for the slot.
func (b *Backend) IsClosing(h api.Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return h.(*Handle).closing
}

// Send queues a wakeup delivery for Dispatch. Callable from any
// goroutine, like the native Send.
func (b *Backend) Send(h api.Handle) api.Status {
	hd := h.(*Handle)
	b.mu.Lock()
	defer b.mu.Unlock()
	if hd.kind != api.KindAsync || !hd.initialized || hd.closing {
		return native.StatusEINVAL
	}
	if !hd.pending {
		hd.pending = true
		b.sendQ = append(b.sendQ, hd)
	}
	return native.StatusOK
}

// ErrName delegates to the native status tables.
func (b *Backend) ErrName(s api.Status) string { return native.ErrName(s) }

// StrError delegates to the native status tables.
func (b *Backend) StrError(s api.Status) string { return native.StrError(s) }

// --- test drivers ---

// Now returns the simulated clock in milliseconds.
func (b *Backend) Now() int64 { return b.nowMS }

// Fire injects an event into an armed slot, as the loop's dispatch
// phase would.
func (b *Backend) Fire(h api.Handle, revents int) {
	hd := h.(*Handle)
	if !hd.active || hd.cb == nil {
		return
	}
	invoke(hd.cb, hd, revents)
}

// Advance moves the simulated clock and fires due timers. One-shot
// timers deactivate before their callback runs.
func (b *Backend) Advance(d time.Duration) {
	b.nowMS += d.Milliseconds()
	for {
		hd := b.dueTimer()
		if hd == nil {
			return
		}
		if hd.start.RepeatMS > 0 {
			hd.due = b.nowMS + int64(hd.start.RepeatMS)
		} else {
			hd.active = false
		}
		invoke(hd.cb, hd, 0)
	}
}

func (b *Backend) dueTimer() *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	var best *Handle
	for _, hd := range b.handles {
		if hd.kind != api.KindTimer || !hd.active || hd.cb == nil {
			continue
		}
		if hd.due <= b.nowMS && (best == nil || hd.due < best.due) {
			best = hd
		}
	}
	return best
}

// Dispatch delivers pending async sends, one callback per handle no
// matter how many sends coalesced. Returns the number delivered.
func (b *Backend) Dispatch() int {
	b.mu.Lock()
	batch := b.sendQ
	b.sendQ = nil
	for _, hd := range batch {
		hd.pending = false
	}
	b.mu.Unlock()
	n := 0
	for _, hd := range batch {
		if hd.active && hd.cb != nil {
			invoke(hd.cb, hd, 0)
			n++
		}
	}
	return n
}

// FlushClosers runs queued close completions, simulating the next
// loop iteration's close phase. Returns how many completed.
func (b *Backend) FlushClosers() int {
	b.mu.Lock()
	batch := b.closers
	b.closers = nil
	for _, c := range batch {
		c.h.initialized = false
		c.h.closing = false
		c.h.cb = nil
	}
	b.mu.Unlock()
	for _, c := range batch {
		if c.onClose != nil {
			c.onClose(c.h)
		}
	}
	return len(batch)
}

// CloseCalls reports how many times Close reached the backend for the
// slot.
func (b *Backend) CloseCalls(h api.Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeCalls[h.(*Handle)]
}

// PendingClosers reports queued, unflushed close completions.
func (b *Backend) PendingClosers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.closers)
}

// SetStat installs fs-poll snapshots for a slot.
func (b *Backend) SetStat(h api.Handle, prev, curr *api.StatAttr) {
	hd := h.(*Handle)
	hd.prevAttr = prev
	hd.currAttr = curr
}

func invoke(cb api.NativeCallback, h api.Handle, revents int) {
	// keep injection alive through panicking callbacks, as the real
	// dispatch phase does, and surface the panic the same way
	defer func() {
		if r := recover(); r != nil {
			api.Diag().Warnf("%s callback panicked: %v", h.Kind(), r)
		}
	}()
	cb(h, revents)
}
