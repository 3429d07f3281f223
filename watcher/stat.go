// File: watcher/stat.go
// Author: momentics <momentics@gmail.com>
//
// Filesystem metadata watchers over the backend's fs_poll kind.

package watcher

import (
	"time"

	"github.com/momentics/hioload-loop/api"
)

// MinStatInterval is the floor applied to stat polling intervals,
// matching the classic libev default.
const MinStatInterval = 107489100 * time.Nanosecond

// Stat watches a path for metadata changes and exposes the snapshots
// taken around the most recent one.
type Stat struct {
	base
	path     string
	interval time.Duration
}

// Path returns the watched path.
func (s *Stat) Path() string { return s.path }

// Interval returns the effective polling interval after flooring.
func (s *Stat) Interval() time.Duration { return s.interval }

// Attr returns the current metadata snapshot, or nil when the
// underlying entity does not exist (zero link count).
func (s *Stat) Attr() *api.StatAttr {
	return statSnapshot(s.handle, false)
}

// Prev returns the snapshot from before the most recent change, or
// nil when there was none or the entity did not exist.
func (s *Stat) Prev() *api.StatAttr {
	return statSnapshot(s.handle, true)
}

func statSnapshot(h api.Handle, prev bool) *api.StatAttr {
	sh, ok := h.(api.StatHandle)
	if !ok {
		return nil
	}
	var a *api.StatAttr
	if prev {
		a = sh.Prev()
	} else {
		a = sh.Curr()
	}
	if a == nil || a.Nlink == 0 {
		return nil
	}
	return a
}
