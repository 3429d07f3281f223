// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package watcher

import (
	"errors"
	"strings"
	"testing"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/fake"
	"github.com/momentics/hioload-loop/native"
)

func TestStartStopTransitions(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	w := l.NewIdle()
	if w.Active() {
		t.Fatal("fresh watcher reports active")
	}
	if err := w.Start(func(...any) {}); err != nil {
		t.Fatal(err)
	}
	if !w.Active() {
		t.Fatal("started watcher not active")
	}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if w.Active() {
		t.Fatal("stopped watcher still active")
	}
	// stop is idempotent
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestStartRejectsNilCallback(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	w := l.NewPrepare()
	if err := w.Start(nil); !errors.Is(err, api.ErrNilCallback) {
		t.Fatalf("err = %v, want ErrNilCallback", err)
	}
}

func TestStartWhileActiveIsNoOp(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	w := l.NewCheck()
	hits := 0
	if err := w.Start(func(...any) { hits++ }); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(func(...any) { hits += 100 }); err != nil {
		t.Fatalf("restart of active watcher: %v", err)
	}
	b.Fire(w.handle, 0)
	if hits != 1 {
		t.Fatalf("hits = %d, want 1 (original callback retained)", hits)
	}
}

func TestLazyInitFailureSurfaces(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	b.FailInit(api.KindIdle, native.StatusENOMEM)
	w := l.NewIdle()
	err := w.Start(func(...any) {})
	var initErr *api.NativeInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("err = %v, want NativeInitError", err)
	}
	if w.Active() {
		t.Fatal("watcher active after failed init")
	}
	// the failure must not consume the watcher
	b.FailInit(api.KindIdle, 0)
	if err := w.Start(func(...any) {}); err != nil {
		t.Fatalf("start after cleared failure: %v", err)
	}
}

func TestCallbackArgsBoundAtStart(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	w := l.NewIdle()
	var got []any
	if err := w.Start(func(args ...any) { got = args }, "x", 7); err != nil {
		t.Fatal(err)
	}
	b.Fire(w.handle, 0)
	if len(got) != 2 || got[0] != "x" || got[1] != 7 {
		t.Fatalf("args = %v, want [x 7]", got)
	}
}

func TestStopClearsCallbackBeforeDelivery(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	w := l.NewCheck()
	hits := 0
	if err := w.Start(func(...any) { hits++ }); err != nil {
		t.Fatal(err)
	}
	h := w.handle
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	b.Fire(h, 0)
	if hits != 0 {
		t.Fatalf("stopped watcher delivered %d callbacks", hits)
	}
}

func TestCloseDuringDispatchSuppressesLaterDelivery(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	w := l.NewCheck()
	hits := 0
	if err := w.Start(func(...any) {
		hits++
		w.Close()
	}); err != nil {
		t.Fatal(err)
	}
	h := w.handle
	b.Fire(h, 0)
	b.Fire(h, 0)
	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
	if n := b.CloseCalls(h); n != 1 {
		t.Fatalf("close calls = %d, want 1", n)
	}
}

func TestCallbackPanicIsReportedAndSurvived(t *testing.T) {
	sink := &captureSink{}
	api.SetDiagnosticSink(sink)
	defer api.SetDiagnosticSink(nil)

	b := fake.New()
	l := NewLoop(b)
	w := l.NewCheck()
	if err := w.Start(func(...any) { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	b.Fire(w.handle, 0)
	if len(sink.msgs) != 1 || !strings.Contains(sink.msgs[0], "boom") {
		t.Fatalf("diagnostics = %v, want one panic report", sink.msgs)
	}
	// the watcher stays usable after the escape
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(func(...any) {}); err != nil {
		t.Fatal(err)
	}
}

func TestRefIntentAppliedAtInit(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	w := l.NewIdle()
	w.SetRef(false)
	if w.Ref() {
		t.Fatal("ref intent not recorded before init")
	}
	if err := w.Start(func(...any) {}); err != nil {
		t.Fatal(err)
	}
	if b.HasRef(w.handle) {
		t.Fatal("unref intent not applied to native handle")
	}
	w.SetRef(true)
	if !b.HasRef(w.handle) {
		t.Fatal("ref toggle not forwarded once handle exists")
	}
}

func TestSignalStartsUnreferenced(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	s := l.NewSignal(2)
	if s.Ref() {
		t.Fatal("signal watcher defaults to ref'd")
	}
	if err := s.Start(func(...any) {}); err != nil {
		t.Fatal(err)
	}
	if b.HasRef(s.handle) {
		t.Fatal("armed signal watcher holds a loop reference")
	}
	if s.Signum() != 2 {
		t.Fatalf("signum = %d, want 2", s.Signum())
	}
}
