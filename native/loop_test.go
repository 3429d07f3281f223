// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package native

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/momentics/hioload-loop/api"
)

type diagRecorder struct {
	msgs []string
}

func (d *diagRecorder) Warnf(format string, args ...any) {
	d.msgs = append(d.msgs, fmt.Sprintf(format, args...))
}

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Shutdown() })
	return l
}

func mustInit(t *testing.T, l *Loop, kind api.HandleKind, args api.InitArgs) api.Handle {
	t.Helper()
	h := l.Alloc(kind)
	if st := l.Init(h, args); st < 0 {
		t.Fatalf("init %v: %s", kind, StrError(st))
	}
	return h
}

func TestOneShotTimerFiresAndDrainsLoop(t *testing.T) {
	l := newTestLoop(t)
	h := mustInit(t, l, api.KindTimer, api.InitArgs{})

	fired := 0
	cb := func(api.Handle, int) { fired++ }
	if st := l.Start(h, cb, api.StartArgs{AfterMS: 5}); st < 0 {
		t.Fatalf("start: %s", StrError(st))
	}
	if !l.Alive() {
		t.Fatal("loop not alive with an armed ref'd timer")
	}

	start := time.Now()
	l.Run() // exits when the one-shot fires and nothing is left alive
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Fatalf("timer fired after %v, before its 5ms delay", elapsed)
	}
	if l.Alive() {
		t.Fatal("loop still alive after its only timer fired")
	}
}

func TestRepeatingTimerReschedulesUntilStopped(t *testing.T) {
	l := newTestLoop(t)
	h := mustInit(t, l, api.KindTimer, api.InitArgs{})

	fired := 0
	cb := func(hd api.Handle, _ int) {
		fired++
		if fired == 3 {
			l.Stop(hd)
		}
	}
	if st := l.Start(h, cb, api.StartArgs{AfterMS: 1, RepeatMS: 1}); st < 0 {
		t.Fatalf("start: %s", StrError(st))
	}
	l.Run()
	if fired != 3 {
		t.Fatalf("fired = %d, want 3", fired)
	}
}

func TestAgainRequiresCallback(t *testing.T) {
	l := newTestLoop(t)
	h := mustInit(t, l, api.KindTimer, api.InitArgs{})
	if st := l.Again(h); st != StatusEINVAL {
		t.Fatalf("again on never-started timer = %s, want EINVAL", ErrName(st))
	}
}

func TestAsyncSendFromAnotherGoroutine(t *testing.T) {
	l := newTestLoop(t)
	h := mustInit(t, l, api.KindAsync, api.InitArgs{})

	fired := 0
	cb := func(hd api.Handle, _ int) {
		fired++
		l.Stop(hd)
	}
	if st := l.Start(h, cb, api.StartArgs{}); st < 0 {
		t.Fatalf("start: %s", StrError(st))
	}
	go func() {
		time.Sleep(5 * time.Millisecond)
		if st := l.Send(h); st < 0 {
			panic(StrError(st))
		}
	}()
	l.Run()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestSendCoalescesWithinOneTick(t *testing.T) {
	l := newTestLoop(t)
	h := mustInit(t, l, api.KindAsync, api.InitArgs{})

	fired := 0
	if st := l.Start(h, func(api.Handle, int) { fired++ }, api.StartArgs{}); st < 0 {
		t.Fatalf("start: %s", StrError(st))
	}
	l.Send(h)
	l.Send(h)
	l.Send(h)
	l.RunOnce(false)
	if fired != 1 {
		t.Fatalf("fired = %d, want one coalesced delivery", fired)
	}
	l.Send(h)
	l.RunOnce(false)
	if fired != 2 {
		t.Fatalf("fired = %d, want delivery per tick with a send", fired)
	}
}

func TestSendConcurrentWithCloseIsSafe(t *testing.T) {
	l := newTestLoop(t)
	h := mustInit(t, l, api.KindAsync, api.InitArgs{})
	if st := l.Start(h, func(api.Handle, int) {}, api.StartArgs{}); st < 0 {
		t.Fatalf("start: %s", StrError(st))
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				l.Send(h)
			}
		}
	}()

	time.Sleep(2 * time.Millisecond)
	l.Close(h, nil)
	l.RunOnce(false)
	close(stop)
	<-done

	if st := l.Send(h); st != StatusEINVAL {
		t.Fatalf("send after close completion = %s, want EINVAL", ErrName(st))
	}
}

func TestCloseCompletionRunsInLaterTick(t *testing.T) {
	l := newTestLoop(t)
	h := mustInit(t, l, api.KindTimer, api.InitArgs{})
	if st := l.Start(h, func(api.Handle, int) {}, api.StartArgs{AfterMS: 1000}); st < 0 {
		t.Fatalf("start: %s", StrError(st))
	}

	closed := false
	l.Close(h, func(api.Handle) { closed = true })
	if closed {
		t.Fatal("close completion ran inside the requesting call")
	}
	if !l.Alive() {
		t.Fatal("pending close does not keep the loop alive")
	}
	l.RunOnce(false)
	if !closed {
		t.Fatal("close completion did not run in the next tick")
	}
	if h.Initialized() {
		t.Fatal("handle still initialized after close completion")
	}
	if l.Alive() {
		t.Fatal("loop alive with nothing armed and nothing closing")
	}
}

func TestCloseIsIdempotentAtNativeLayer(t *testing.T) {
	l := newTestLoop(t)
	h := mustInit(t, l, api.KindCheck, api.InitArgs{})
	calls := 0
	l.Close(h, func(api.Handle) { calls++ })
	l.Close(h, func(api.Handle) { calls++ })
	l.RunOnce(false)
	if calls != 1 {
		t.Fatalf("close completions = %d, want 1", calls)
	}
}

func TestCallbackPanicSurfacesDiagnostic(t *testing.T) {
	rec := &diagRecorder{}
	api.SetDiagnosticSink(rec)
	defer api.SetDiagnosticSink(nil)

	l := newTestLoop(t)
	h := mustInit(t, l, api.KindCheck, api.InitArgs{})
	if st := l.Start(h, func(api.Handle, int) { panic("kaput") }, api.StartArgs{}); st < 0 {
		t.Fatalf("start: %s", StrError(st))
	}
	l.RunOnce(false)
	if len(rec.msgs) != 1 || !strings.Contains(rec.msgs[0], "kaput") {
		t.Fatalf("diagnostics = %v, want the panic value reported", rec.msgs)
	}
	// the loop keeps ticking and keeps reporting
	l.RunOnce(false)
	if len(rec.msgs) != 2 {
		t.Fatalf("diagnostics after second tick = %v", rec.msgs)
	}
}

func TestPhaseOrderWithinTick(t *testing.T) {
	l := newTestLoop(t)
	var order []string
	record := func(name string, kind api.HandleKind) {
		h := mustInit(t, l, kind, api.InitArgs{})
		if st := l.Start(h, func(api.Handle, int) {
			order = append(order, name)
		}, api.StartArgs{}); st < 0 {
			t.Fatalf("start %s: %s", name, StrError(st))
		}
	}
	record("idle", api.KindIdle)
	record("check", api.KindCheck)
	record("prepare", api.KindPrepare)

	l.RunOnce(false)
	want := []string{"prepare", "check", "idle"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Fatalf("phase order = %v, want %v", order, want)
	}
}

func TestUnrefHandleDoesNotKeepLoopAlive(t *testing.T) {
	l := newTestLoop(t)
	h := mustInit(t, l, api.KindTimer, api.InitArgs{})
	if st := l.Start(h, func(api.Handle, int) {}, api.StartArgs{AfterMS: 1000}); st < 0 {
		t.Fatalf("start: %s", StrError(st))
	}
	l.Unref(h)
	if l.Alive() {
		t.Fatal("loop alive on an unref'd timer alone")
	}
	l.Ref(h)
	if !l.Alive() {
		t.Fatal("re-ref'd active timer does not keep the loop alive")
	}
}

func TestBreakInterruptsRun(t *testing.T) {
	l := newTestLoop(t)
	h := mustInit(t, l, api.KindTimer, api.InitArgs{})
	if st := l.Start(h, func(api.Handle, int) {}, api.StartArgs{AfterMS: 10_000}); st < 0 {
		t.Fatalf("start: %s", StrError(st))
	}
	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	l.Break()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Break did not interrupt a blocked Run")
	}
}

func TestInitRejectsBadArguments(t *testing.T) {
	l := newTestLoop(t)
	h := l.Alloc(api.KindPoll)
	if st := l.Init(h, api.InitArgs{Fd: -1}); st != StatusEBADF {
		t.Fatalf("init poll fd=-1 = %s, want EBADF", ErrName(st))
	}
	h2 := mustInit(t, l, api.KindTimer, api.InitArgs{})
	if st := l.Init(h2, api.InitArgs{}); st != StatusEINVAL {
		t.Fatalf("double init = %s, want EINVAL", ErrName(st))
	}
}

func TestErrorStrings(t *testing.T) {
	if ErrName(StatusEBADF) != "EBADF" {
		t.Fatalf("ErrName(EBADF) = %q", ErrName(StatusEBADF))
	}
	if StrError(StatusEBADF) == "" {
		t.Fatal("StrError(EBADF) empty")
	}
	if ErrName(api.Status(-9999)) == "" {
		t.Fatal("unknown status must still render a name")
	}
}
