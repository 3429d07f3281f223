// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-loop.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	// ErrWatcherActive is returned when a mutation requires the
	// watcher to be stopped first.
	ErrWatcherActive = errors.New("watcher is active")
	// ErrNilCallback is returned by Start when no callback is given.
	ErrNilCallback = errors.New("callback must not be nil")
)

// NativeCallError reports a native primitive returning a negative
// status. It carries the failing call's name and arguments alongside
// the native error name and message.
type NativeCallError struct {
	Call    string
	Status  Status
	Name    string
	Message string
	Args    []any
}

func (e *NativeCallError) Error() string {
	return fmt.Sprintf("%s %s: %s args: %v", e.Call, e.Name, e.Message, e.Args)
}

// NativeInitError reports a rejected handle initialization. The
// watcher that triggered it stays uninitialized.
type NativeInitError struct {
	Kind  HandleKind
	Cause *NativeCallError
}

func (e *NativeInitError) Error() string {
	return fmt.Sprintf("init of %s handle rejected: %v", e.Kind, e.Cause)
}

func (e *NativeInitError) Unwrap() error { return e.Cause }

// UseAfterCloseError reports an operation that fundamentally requires
// a live handle being attempted on a closed watcher. Most operations
// on closed watchers are silent no-ops; the ones that cannot be fail
// with this.
type UseAfterCloseError struct {
	Op string
}

func (e *UseAfterCloseError) Error() string {
	return fmt.Sprintf("%s on closed watcher", e.Op)
}
