// File: api/diag.go
// Author: momentics <momentics@gmail.com>
//
// Pluggable diagnostic sink for warning-level conditions that are not
// errors, such as the sub-millisecond timer clamp.

package api

import (
	"log"
	"sync/atomic"
)

// DiagnosticSink receives warning-level diagnostics from the watcher
// layer.
type DiagnosticSink interface {
	Warnf(format string, args ...any)
}

type logSink struct{}

func (logSink) Warnf(format string, args ...any) {
	log.Printf("[hioload-loop] warning: "+format, args...)
}

var diagSink atomic.Value // DiagnosticSink

func init() {
	diagSink.Store(DiagnosticSink(logSink{}))
}

// SetDiagnosticSink replaces the process-wide sink. A nil sink
// restores the default log-backed one.
func SetDiagnosticSink(s DiagnosticSink) {
	if s == nil {
		s = logSink{}
	}
	diagSink.Store(s)
}

// Diag returns the current sink.
func Diag() DiagnosticSink {
	return diagSink.Load().(DiagnosticSink)
}
