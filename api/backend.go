// File: api/backend.go
// Author: momentics <momentics@gmail.com>
//
// The native event-loop primitive set consumed by the watcher layer.
// Every primitive reports failure as a negative Status; the watcher
// layer converts those into errors exactly once, at its call wrapper.

package api

import (
	"io/fs"
	"time"
)

// Status is a native call result. Values >= 0 are success, negative
// values are errno-style failure codes.
type Status int

// StatusOK is the zero success status.
const StatusOK Status = 0

// HandleKind identifies the native handle variant backing a watcher.
type HandleKind int

const (
	KindPoll HandleKind = iota + 1
	KindTimer
	KindSignal
	KindAsync
	KindIdle
	KindPrepare
	KindCheck
	KindFSPoll
)

var kindNames = map[HandleKind]string{
	KindPoll:    "poll",
	KindTimer:   "timer",
	KindSignal:  "signal",
	KindAsync:   "async",
	KindIdle:    "idle",
	KindPrepare: "prepare",
	KindCheck:   "check",
	KindFSPoll:  "fs_poll",
}

func (k HandleKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Handle is an opaque native handle slot. Its backing memory is owned
// by the backend; the watcher layer only holds it between allocation
// and close completion.
type Handle interface {
	// Kind reports the handle variant this slot was allocated for.
	Kind() HandleKind
	// Initialized reports whether the native init primitive succeeded
	// for this slot. Closing a never-initialized handle is fatal in
	// real backends; callers must check this first.
	Initialized() bool
}

// NativeCallback is the generic dispatch trampoline signature. For
// poll handles revents carries the readiness mask, or a negative
// Status on error. Other kinds pass kind-specific small payloads
// (signal number) or zero.
type NativeCallback func(h Handle, revents int)

// InitArgs carries the kind-specific arguments of the init primitive.
type InitArgs struct {
	// Fd is the descriptor for poll handles.
	Fd int
	// Signum is the signal number for signal handles.
	Signum int
}

// StartArgs carries the kind-specific arguments of the start primitive.
type StartArgs struct {
	// Events is the armed readiness mask for poll handles.
	Events EventMask
	// AfterMS and RepeatMS are timer delays in milliseconds.
	AfterMS  uint64
	RepeatMS uint64
	// Signum is the signal number for signal handles.
	Signum int
	// Path and IntervalMS configure fs-poll handles.
	Path       string
	IntervalMS uint64
}

// Backend is the native loop surface. All methods except Send and the
// error-string lookups must only be called on the loop thread. Send is
// safe from any goroutine or signal context.
type Backend interface {
	// Alloc reserves a handle slot of the given kind. It never arms
	// anything with the loop.
	Alloc(kind HandleKind) Handle

	// Init runs the native init primitive for the slot.
	Init(h Handle, args InitArgs) Status

	// Start arms the handle and registers the dispatch callback.
	// Poll handles may be started again while active to change the
	// armed event mask.
	Start(h Handle, cb NativeCallback, args StartArgs) Status

	// Again restarts a repeating timer handle from now using its
	// repeat interval.
	Again(h Handle) Status

	// Stop disarms the handle. Idempotent.
	Stop(h Handle) Status

	// Close queues asynchronous release of the handle. onClose fires
	// on the loop thread once the native loop has finished with the
	// slot; the slot's memory must stay valid until then.
	Close(h Handle, onClose func(Handle))

	// Ref, Unref and HasRef control whether an active handle keeps
	// the loop alive.
	Ref(h Handle)
	Unref(h Handle)
	HasRef(h Handle) bool

	// IsClosing reports whether a close has been requested for the
	// handle and has not yet completed.
	IsClosing(h Handle) bool

	// Send marks a pending wakeup on an async handle. Callable from
	// any thread; the handle's callback runs on the loop thread on
	// the next tick.
	Send(h Handle) Status

	// ErrName and StrError translate a negative status into the
	// native error name and message.
	ErrName(s Status) string
	StrError(s Status) string
}

// StatAttr is one fs-poll metadata snapshot. A zero Nlink means the
// underlying entity does not exist.
type StatAttr struct {
	Nlink   uint64
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
	Ino     uint64
}

// StatHandle is implemented by fs-poll handle slots and exposes the
// snapshots taken around the most recent change.
type StatHandle interface {
	Handle
	Prev() *StatAttr
	Curr() *StatAttr
}
