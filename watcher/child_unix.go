//go:build linux || darwin

// File: watcher/child_unix.go
// Author: momentics <momentics@gmail.com>
//
// SIGCHLD reaper feeding child watchers. The handler context only
// reaps and calls NotifyChildExit, which stores and signals; user
// callbacks run on the loop thread.

package watcher

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// EnableChildReaping installs a SIGCHLD listener that waitpid's exited
// children and routes their statuses to the registered child watchers.
// Idempotent per loop. Programs that reap children themselves should
// skip this and call NotifyChildExit directly.
func (l *Loop) EnableChildReaping() {
	l.reapOnce.Do(func() {
		ch := make(chan os.Signal, 16)
		signal.Notify(ch, syscall.SIGCHLD)
		go func() {
			for range ch {
				for {
					var ws unix.WaitStatus
					pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
					if pid <= 0 || err != nil {
						break
					}
					l.NotifyChildExit(pid, int(ws))
				}
			}
		}()
	})
}
