// File: native/fspoll.go
// Author: momentics <momentics@gmail.com>
//
// fs_poll handle kind: periodic re-stat of a path with prev/current
// metadata snapshots, accelerated by fsnotify change notifications
// when the platform supports them. The fsnotify event only schedules a
// re-stat through the wake queue; all snapshot mutation happens on the
// loop thread.

package native

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/momentics/hioload-loop/api"
)

// fsMonitor fans fsnotify events out to fs_poll handles by path. The
// watcher is created lazily on the first fs_poll start; when fsnotify
// is unavailable the interval re-stat still provides full (slower)
// coverage.
type fsMonitor struct {
	loop  *Loop
	mu    sync.Mutex
	fsw   *fsnotify.Watcher
	paths map[string][]*handle
}

func (m *fsMonitor) add(hd *handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paths == nil {
		m.paths = make(map[string][]*handle)
	}
	if m.fsw == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return
		}
		m.fsw = w
		go m.run(w)
	}
	m.paths[hd.path] = append(m.paths[hd.path], hd)
	// Add fails for paths that do not exist yet; the interval re-stat
	// picks those up once they appear.
	_ = m.fsw.Add(hd.path)
}

func (m *fsMonitor) remove(hd *handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.paths[hd.path]
	for i, x := range list {
		if x == hd {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.paths, hd.path)
		if m.fsw != nil {
			_ = m.fsw.Remove(hd.path)
		}
	} else {
		m.paths[hd.path] = list
	}
}

func (m *fsMonitor) run(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			m.mu.Lock()
			targets := append([]*handle(nil), m.paths[ev.Name]...)
			m.mu.Unlock()
			for _, hd := range targets {
				m.loop.postWake(hd)
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

func (m *fsMonitor) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fsw != nil {
		_ = m.fsw.Close()
		m.fsw = nil
	}
	m.paths = nil
}

// fspollStat re-stats the handle's path and fires its callback when
// the snapshot changed. The first stat after start only establishes
// the baseline.
func (l *Loop) fspollStat(hd *handle) {
	curr, st := statPath(hd.path)
	if hd.statFirst {
		hd.statFirst = false
		hd.curr = curr
		hd.lastStatus = st
		return
	}
	if st == hd.lastStatus && sameAttr(&hd.curr, &curr) {
		return
	}
	hd.prev = hd.curr
	hd.curr = curr
	hd.lastStatus = st
	l.safeInvoke(hd, int(st))
}

func statPath(path string) (api.StatAttr, api.Status) {
	fi, err := os.Stat(path)
	if err != nil {
		// Nlink zero signals "does not exist" to the watcher layer.
		return api.StatAttr{}, StatusENOENT
	}
	attr := api.StatAttr{
		Size:    fi.Size(),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
	}
	attr.Nlink, attr.Ino = nlinkIno(fi)
	return attr, StatusOK
}

func sameAttr(a, b *api.StatAttr) bool {
	return a.Nlink == b.Nlink &&
		a.Size == b.Size &&
		a.Mode == b.Mode &&
		a.Ino == b.Ino &&
		a.ModTime.Equal(b.ModTime)
}
