// File: watcher/signal.go
// Author: momentics <momentics@gmail.com>

package watcher

// Signal fires when the process receives its signal number.
type Signal struct {
	base
	signum int
}

// Signum returns the watched signal number.
func (s *Signal) Signum() int { return s.signum }
