// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package watcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/fake"
)

type captureSink struct {
	msgs []string
}

func (s *captureSink) Warnf(format string, args ...any) {
	s.msgs = append(s.msgs, fmt.Sprintf(format, args...))
}

func TestSubMillisecondTimerClampsWithDiagnostic(t *testing.T) {
	sink := &captureSink{}
	api.SetDiagnosticSink(sink)
	defer api.SetDiagnosticSink(nil)

	b := fake.New()
	l := NewLoop(b)
	tm := l.NewTimer(500*time.Microsecond, 0).(*Timer)
	if tm.After() != 1 {
		t.Fatalf("after = %dms, want 1ms clamp", tm.After())
	}
	if len(sink.msgs) != 1 {
		t.Fatalf("diagnostics = %v, want exactly one clamp warning", sink.msgs)
	}
}

func TestClampedTimerFiresNoSoonerThanOneMillisecond(t *testing.T) {
	api.SetDiagnosticSink(&captureSink{})
	defer api.SetDiagnosticSink(nil)

	b := fake.New()
	l := NewLoop(b)
	tm := l.NewTimer(100*time.Microsecond, 0).(*Timer)
	fired := 0
	if err := tm.Start(func(...any) { fired++ }); err != nil {
		t.Fatal(err)
	}
	b.Advance(900 * time.Microsecond)
	if fired != 0 {
		t.Fatal("clamped timer fired before 1ms of simulated time")
	}
	b.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestRepeatingTimerReschedules(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	tm := l.NewTimer(2*time.Millisecond, 3*time.Millisecond).(*Timer)
	fired := 0
	if err := tm.Start(func(...any) { fired++ }); err != nil {
		t.Fatal(err)
	}
	b.Advance(2 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d after the initial delay, want 1", fired)
	}
	b.Advance(3 * time.Millisecond)
	if fired != 2 {
		t.Fatalf("fired = %d after one repeat interval, want 2", fired)
	}
}

func TestAgainOnNeverStartedTimerBehavesAsStart(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	tm := l.NewTimer(2*time.Millisecond, 0)
	fired := 0
	if err := tm.Again(func(...any) { fired++ }); err != nil {
		t.Fatal(err)
	}
	if !tm.Active() {
		t.Fatal("again on a fresh timer did not arm it")
	}
	b.Advance(2 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestAgainOnActiveOneShotDeactivates(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	tm := l.NewTimer(5*time.Millisecond, 0).(*Timer)
	fired := 0
	if err := tm.Start(func(...any) { fired++ }); err != nil {
		t.Fatal(err)
	}
	// uv semantics: again on a non-repeating timer stops it
	if err := tm.Again(func(...any) { fired++ }); err != nil {
		t.Fatal(err)
	}
	if tm.Active() {
		t.Fatal("one-shot timer reports active after Again deactivated it natively")
	}
	b.Advance(time.Hour)
	if fired != 0 {
		t.Fatalf("fired = %d after Again on a one-shot, want 0", fired)
	}
	// the watcher must not be wedged: a fresh Start rearms for real
	if err := tm.Start(func(...any) { fired++ }); err != nil {
		t.Fatal(err)
	}
	if !tm.Active() {
		t.Fatal("restart after Again did not arm the timer")
	}
	b.Advance(5 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d after restart, want 1", fired)
	}
}

func TestAgainRestartsFromNow(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	tm := l.NewTimer(5*time.Millisecond, 5*time.Millisecond).(*Timer)
	fired := 0
	if err := tm.Start(func(...any) { fired++ }); err != nil {
		t.Fatal(err)
	}
	b.Advance(3 * time.Millisecond)
	if err := tm.Again(func(...any) { fired++ }); err != nil {
		t.Fatal(err)
	}
	// the original deadline (t=5ms) was superseded by t=3ms+5ms
	b.Advance(2 * time.Millisecond)
	if fired != 0 {
		t.Fatal("timer fired on the pre-Again deadline")
	}
	b.Advance(3 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestZeroDelayTimerIsOneShotCheck(t *testing.T) {
	b := fake.New()
	l := NewLoop(b)
	tm := l.NewTimer(0, 0)
	ct, ok := tm.(*checkTimer)
	if !ok {
		t.Fatalf("zero-delay timer realized as %T, want one-shot check", tm)
	}
	fired := 0
	if err := ct.Start(func(...any) { fired++ }); err != nil {
		t.Fatal(err)
	}
	if ct.handle.Kind() != api.KindCheck {
		t.Fatalf("handle kind = %v, want check", ct.handle.Kind())
	}
	h := ct.handle
	b.Fire(h, 0)
	b.Fire(h, 0)
	if fired != 1 {
		t.Fatalf("fired = %d, want exactly 1", fired)
	}
	if ct.Active() {
		t.Fatal("one-shot check still active after delivery")
	}
	// Again re-arms it for one more iteration
	if err := ct.Again(func(...any) { fired++ }); err != nil {
		t.Fatal(err)
	}
	b.Fire(ct.handle, 0)
	if fired != 2 {
		t.Fatalf("fired = %d after re-arm, want 2", fired)
	}
}
