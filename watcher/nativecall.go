// File: watcher/nativecall.go
// Author: momentics <momentics@gmail.com>
//
// Single chokepoint converting negative native statuses into errors.
// Every native entry point used by this package goes through here, so
// failure surfacing is uniform: error name, message, call name, args.

package watcher

import "github.com/momentics/hioload-loop/api"

func nativeCall(call string, b api.Backend, st api.Status, args ...any) error {
	if st >= 0 {
		return nil
	}
	return &api.NativeCallError{
		Call:    call,
		Status:  st,
		Name:    b.ErrName(st),
		Message: b.StrError(st),
		Args:    args,
	}
}
