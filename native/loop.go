// File: native/loop.go
// Author: momentics <momentics@gmail.com>
//
// The event loop proper: single-threaded tick dispatch over the handle
// kinds, with deferred close completion and a cross-thread wake queue.
//
// Tick order: update cached time, run due timers and fs-poll re-stats,
// prepare callbacks, poll, io dispatch, wake-queue drain, check
// callbacks, idle callbacks, pending close callbacks. Close callbacks
// therefore never run inside the phase that requested the close; that
// window is what the watcher layer's closing set bridges.

package native

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-loop/api"
)

// Config tunes loop construction.
type Config struct {
	// PollBatch caps the io events drained per tick.
	PollBatch int
}

// DefaultConfig returns the settings used by New when a zero Config is
// given.
func DefaultConfig() Config {
	return Config{PollBatch: 128}
}

// Loop implements api.Backend. All methods except Send must run on the
// goroutine driving Run or RunOnce.
type Loop struct {
	cfg    Config
	poller poller

	timers   timerHeap
	polls    map[int]*handle
	fspolls  []*handle
	idles    []*handle
	prepares []*handle
	checks   []*handle

	// loop thread only: handles whose close completion is pending
	closeQ *queue.Queue

	// cross-thread wake queue
	mu          sync.Mutex
	wakeQ       *queue.Queue
	wakePending bool

	fsMonitor fsMonitor

	activeRefs   int
	closingCount int

	start    time.Time
	nowMS    int64
	stopFlag atomic.Bool

	pollBuf []pollEvent
}

// New builds a loop with its platform demultiplexer.
func New(cfg Config) (*Loop, error) {
	if cfg.PollBatch <= 0 {
		cfg.PollBatch = DefaultConfig().PollBatch
	}
	p, err := newPoller(cfg.PollBatch)
	if err != nil {
		return nil, err
	}
	l := &Loop{
		cfg:     cfg,
		poller:  p,
		polls:   make(map[int]*handle),
		closeQ:  queue.New(),
		wakeQ:   queue.New(),
		start:   time.Now(),
		pollBuf: make([]pollEvent, cfg.PollBatch),
	}
	l.fsMonitor.loop = l
	return l, nil
}

// Now returns the loop's cached monotonic time in milliseconds.
func (l *Loop) Now() int64 { return l.nowMS }

// Alive reports whether the loop still has work that should keep Run
// going: at least one active ref'd handle, or a pending close.
func (l *Loop) Alive() bool {
	return l.activeRefs > 0 || l.closingCount > 0
}

// Run ticks until the loop has nothing keeping it alive or Stop is
// called. Pending close completions are flushed before returning.
func (l *Loop) Run() {
	l.stopFlag.Store(false)
	for !l.stopFlag.Load() && l.Alive() {
		l.RunOnce(true)
	}
	l.runClosers()
}

// Break ends a concurrent Run at the next tick boundary. Safe from
// callbacks and from other goroutines.
func (l *Loop) Break() {
	l.stopFlag.Store(true)
	l.poller.wakeup()
}

// RunOnce performs a single tick. When block is false the poll phase
// does not wait.
func (l *Loop) RunOnce(block bool) {
	l.updateNow()
	l.runTimers()
	l.runPhase(l.prepares)
	timeout := l.pollTimeout(block)
	l.pollIO(timeout)
	l.updateNow()
	l.drainWake()
	l.runPhase(l.checks)
	l.runPhase(l.idles)
	l.runClosers()
}

// Shutdown releases the demultiplexer and the filesystem monitor. The
// loop must not be used afterwards.
func (l *Loop) Shutdown() error {
	l.runClosers()
	l.fsMonitor.shutdown()
	return l.poller.close()
}

func (l *Loop) updateNow() {
	l.nowMS = time.Since(l.start).Milliseconds()
}

// --- api.Backend ---

// Alloc reserves a handle slot. Slots default to ref'd.
func (l *Loop) Alloc(kind api.HandleKind) api.Handle {
	hd := &handle{loop: l, kind: kind, heapIdx: -1}
	hd.setFlags(flagRef)
	return hd
}

// Init validates kind arguments and marks the slot live.
func (l *Loop) Init(h api.Handle, args api.InitArgs) api.Status {
	hd, ok := h.(*handle)
	if !ok || hd.loop != l || hd.Initialized() {
		return StatusEINVAL
	}
	switch hd.kind {
	case api.KindPoll:
		if args.Fd < 0 {
			return StatusEBADF
		}
		hd.fd = args.Fd
	case api.KindTimer, api.KindSignal, api.KindAsync,
		api.KindIdle, api.KindPrepare, api.KindCheck, api.KindFSPoll:
		// no init arguments
	default:
		return StatusEINVAL
	}
	hd.setFlags(flagInitialized)
	return StatusOK
}

// Start arms the handle and registers its dispatch callback.
func (l *Loop) Start(h api.Handle, cb api.NativeCallback, args api.StartArgs) api.Status {
	hd, ok := h.(*handle)
	if !ok || !hd.Initialized() || hd.closing() {
		return StatusEINVAL
	}
	hd.cb = cb
	switch hd.kind {
	case api.KindPoll:
		return l.startPoll(hd, args.Events)
	case api.KindTimer:
		l.startTimer(hd, args.AfterMS, args.RepeatMS)
	case api.KindSignal:
		if args.Signum <= 0 {
			return StatusEINVAL
		}
		if !hd.active() {
			l.startSignal(hd, args.Signum)
		}
	case api.KindAsync:
		// armed purely in software; Send does the rest
	case api.KindIdle:
		l.idles = addPhase(l.idles, hd)
	case api.KindPrepare:
		l.prepares = addPhase(l.prepares, hd)
	case api.KindCheck:
		l.checks = addPhase(l.checks, hd)
	case api.KindFSPoll:
		if args.Path == "" {
			return StatusEINVAL
		}
		l.startFSPoll(hd, args.Path, args.IntervalMS)
	default:
		return StatusEINVAL
	}
	l.markActive(hd)
	return StatusOK
}

// Again restarts a repeating timer from now with its repeat interval.
func (l *Loop) Again(h api.Handle) api.Status {
	hd, ok := h.(*handle)
	if !ok || hd.kind != api.KindTimer || !hd.Initialized() || hd.closing() {
		return StatusEINVAL
	}
	if hd.cb == nil {
		return StatusEINVAL
	}
	if hd.active() {
		l.timers.remove(hd)
	}
	if hd.repeatMS > 0 {
		hd.due = l.nowMS + int64(hd.repeatMS)
		l.timers.push(hd)
		l.markActive(hd)
	} else {
		l.markInactive(hd)
	}
	return StatusOK
}

// Stop disarms the handle. Idempotent, also at this layer.
func (l *Loop) Stop(h api.Handle) api.Status {
	hd, ok := h.(*handle)
	if !ok {
		return StatusEINVAL
	}
	if !hd.active() {
		return StatusOK
	}
	switch hd.kind {
	case api.KindPoll:
		if l.polls[hd.fd] == hd {
			delete(l.polls, hd.fd)
			if st := l.poller.del(hd.fd); st < 0 && st != StatusENOENT && st != StatusEBADF {
				return st
			}
		}
	case api.KindTimer:
		l.timers.remove(hd)
	case api.KindSignal:
		l.stopSignal(hd)
	case api.KindAsync:
		atomic.StoreInt32(&hd.pending, 0)
	case api.KindIdle:
		l.idles = removePhase(l.idles, hd)
	case api.KindPrepare:
		l.prepares = removePhase(l.prepares, hd)
	case api.KindCheck:
		l.checks = removePhase(l.checks, hd)
	case api.KindFSPoll:
		l.fspolls = removePhase(l.fspolls, hd)
		l.fsMonitor.remove(hd)
	}
	l.markInactive(hd)
	return StatusOK
}

// Close queues asynchronous release. The completion callback runs in a
// later tick's close phase, never inside the requesting call.
func (l *Loop) Close(h api.Handle, onClose func(api.Handle)) {
	hd, ok := h.(*handle)
	if !ok || !hd.Initialized() || hd.closing() {
		return
	}
	if hd.active() {
		l.Stop(hd)
	}
	hd.setFlags(flagClosing)
	hd.onClose = onClose
	l.closeQ.Add(hd)
	l.closingCount++
	l.poller.wakeup()
}

// Ref marks the handle as keeping the loop alive while active.
func (l *Loop) Ref(h api.Handle) {
	hd, ok := h.(*handle)
	if !ok || hd.hasRef() {
		return
	}
	hd.setFlags(flagRef)
	if hd.active() {
		l.activeRefs++
	}
}

// Unref removes the handle from loop-liveness accounting.
func (l *Loop) Unref(h api.Handle) {
	hd, ok := h.(*handle)
	if !ok || !hd.hasRef() {
		return
	}
	hd.clearFlags(flagRef)
	if hd.active() {
		l.activeRefs--
	}
}

// HasRef reports the handle's liveness accounting flag.
func (l *Loop) HasRef(h api.Handle) bool {
	hd, ok := h.(*handle)
	return ok && hd.hasRef()
}

// IsClosing reports whether release has been requested for the handle.
func (l *Loop) IsClosing(h api.Handle) bool {
	hd, ok := h.(*handle)
	return ok && hd.closing()
}

// Send marks a pending wakeup on an async handle. Safe from any
// thread; multiple sends before the next tick coalesce into one
// callback invocation.
func (l *Loop) Send(h api.Handle) api.Status {
	hd, ok := h.(*handle)
	if !ok || hd.kind != api.KindAsync || !hd.Initialized() || hd.closing() {
		return StatusEINVAL
	}
	if atomic.CompareAndSwapInt32(&hd.pending, 0, 1) {
		l.postWake(hd)
	}
	return StatusOK
}

// ErrName maps a status to its errno name.
func (l *Loop) ErrName(s api.Status) string { return ErrName(s) }

// StrError maps a status to its message.
func (l *Loop) StrError(s api.Status) string { return StrError(s) }

// --- kind helpers ---

func (l *Loop) startPoll(hd *handle, events api.EventMask) api.Status {
	if existing, ok := l.polls[hd.fd]; ok && existing != hd {
		return StatusEEXIST
	}
	if hd.active() {
		if st := l.poller.mod(hd.fd, events); st < 0 {
			return st
		}
	} else {
		if st := l.poller.add(hd.fd, events); st < 0 {
			return st
		}
		l.polls[hd.fd] = hd
	}
	hd.events = events
	return StatusOK
}

func (l *Loop) startTimer(hd *handle, afterMS, repeatMS uint64) {
	if hd.active() {
		l.timers.remove(hd)
	}
	hd.repeatMS = repeatMS
	hd.due = l.nowMS + int64(afterMS)
	l.timers.push(hd)
}

func (l *Loop) startSignal(hd *handle, signum int) {
	hd.signum = signum
	hd.sigCh = make(chan os.Signal, 8)
	hd.sigQuit = make(chan struct{})
	signal.Notify(hd.sigCh, syscall.Signal(signum))
	go func(ch chan os.Signal, quit chan struct{}) {
		for {
			select {
			case <-quit:
				return
			case <-ch:
				l.postWake(hd)
			}
		}
	}(hd.sigCh, hd.sigQuit)
}

func (l *Loop) stopSignal(hd *handle) {
	signal.Stop(hd.sigCh)
	close(hd.sigQuit)
	hd.sigCh = nil
	hd.sigQuit = nil
}

func (l *Loop) startFSPoll(hd *handle, path string, intervalMS uint64) {
	if hd.active() {
		l.fspolls = removePhase(l.fspolls, hd)
		l.fsMonitor.remove(hd)
	}
	if intervalMS == 0 {
		intervalMS = 5000
	}
	hd.path = path
	hd.intervalMS = intervalMS
	hd.statFirst = true
	hd.lastStatus = StatusOK
	hd.statDue = l.nowMS + int64(intervalMS)
	l.fspollStat(hd)
	l.fspolls = addPhase(l.fspolls, hd)
	l.fsMonitor.add(hd)
}

func (l *Loop) markActive(hd *handle) {
	if hd.active() {
		return
	}
	hd.setFlags(flagActive)
	if hd.hasRef() {
		l.activeRefs++
	}
}

func (l *Loop) markInactive(hd *handle) {
	if !hd.active() {
		return
	}
	hd.clearFlags(flagActive)
	if hd.hasRef() {
		l.activeRefs--
	}
}

func addPhase(list []*handle, hd *handle) []*handle {
	for _, x := range list {
		if x == hd {
			return list
		}
	}
	return append(list, hd)
}

func removePhase(list []*handle, hd *handle) []*handle {
	for i, x := range list {
		if x == hd {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// --- tick phases ---

func (l *Loop) runTimers() {
	now := l.nowMS
	for {
		min := l.timers.min()
		if min == nil || min.due > now {
			break
		}
		hd := l.timers.popMin()
		if hd.repeatMS > 0 {
			hd.due = now + int64(hd.repeatMS)
			l.timers.push(hd)
		} else {
			// bookkeeping first, so a panicking callback cannot
			// leave the handle looking armed
			l.markInactive(hd)
		}
		l.safeInvoke(hd, 0)
	}
	for _, hd := range append([]*handle(nil), l.fspolls...) {
		if hd.active() && hd.statDue <= now {
			hd.statDue = now + int64(hd.intervalMS)
			l.fspollStat(hd)
		}
	}
}

func (l *Loop) runPhase(list []*handle) {
	for _, hd := range append([]*handle(nil), list...) {
		if hd.active() {
			l.safeInvoke(hd, 0)
		}
	}
}

func (l *Loop) pollTimeout(block bool) int {
	if !block || l.stopFlag.Load() {
		return 0
	}
	if len(l.idles) > 0 || l.closeQ.Length() > 0 {
		return 0
	}
	l.mu.Lock()
	pending := l.wakePending
	l.mu.Unlock()
	if pending {
		return 0
	}
	next := int64(-1)
	if min := l.timers.min(); min != nil {
		next = min.due
	}
	for _, hd := range l.fspolls {
		if next < 0 || hd.statDue < next {
			next = hd.statDue
		}
	}
	if next < 0 {
		return -1
	}
	d := next - l.nowMS
	if d < 0 {
		return 0
	}
	return int(d)
}

func (l *Loop) pollIO(timeoutMS int) {
	n, st := l.poller.wait(l.pollBuf, timeoutMS)
	if st < 0 {
		return
	}
	for i := 0; i < n; i++ {
		ev := l.pollBuf[i]
		hd := l.polls[ev.fd]
		if hd != nil && hd.active() {
			l.safeInvoke(hd, ev.revents)
		}
	}
}

func (l *Loop) postWake(hd *handle) {
	l.mu.Lock()
	if !hd.queued {
		hd.queued = true
		l.wakeQ.Add(hd)
	}
	l.wakePending = true
	l.mu.Unlock()
	l.poller.wakeup()
}

func (l *Loop) drainWake() {
	l.mu.Lock()
	var batch []*handle
	for l.wakeQ.Length() > 0 {
		hd := l.wakeQ.Remove().(*handle)
		hd.queued = false
		batch = append(batch, hd)
	}
	l.wakePending = false
	l.mu.Unlock()

	for _, hd := range batch {
		switch hd.kind {
		case api.KindAsync:
			if atomic.CompareAndSwapInt32(&hd.pending, 1, 0) && hd.active() {
				l.safeInvoke(hd, 0)
			}
		case api.KindSignal:
			if hd.active() {
				l.safeInvoke(hd, hd.signum)
			}
		case api.KindFSPoll:
			if hd.active() {
				l.fspollStat(hd)
			}
		}
	}
}

func (l *Loop) runClosers() {
	for l.closeQ.Length() > 0 {
		hd := l.closeQ.Remove().(*handle)
		onClose := hd.onClose
		hd.onClose = nil
		hd.cb = nil
		hd.clearFlags(flagInitialized | flagClosing)
		l.closingCount--
		if onClose != nil {
			onClose(hd)
		}
	}
}

func (l *Loop) safeInvoke(hd *handle, revents int) {
	cb := hd.cb
	if cb == nil {
		return
	}
	// Keep the tick alive if a callback panics; loop bookkeeping has
	// already completed by this point. The panic value is surfaced
	// through the diagnostic sink instead of vanishing.
	defer func() {
		if r := recover(); r != nil {
			api.Diag().Warnf("%s callback panicked: %v", hd.kind, r)
		}
	}()
	cb(hd, revents)
}
