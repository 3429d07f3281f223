// File: watcher/io.go
// Author: momentics <momentics@gmail.com>
//
// Descriptor watchers and multiplexing. One OS descriptor gets exactly
// one native poll handle no matter how many logical readers and
// writers are interested: re-registering a descriptor under several
// native handles is undefined on some backends and wasteful on all.
// The native handle's armed mask is always the union of the registered
// multiplexes' masks.

package watcher

import "github.com/momentics/hioload-loop/api"

// Io is a readiness watcher for one file descriptor.
type Io struct {
	base
	fd         int
	events     api.EventMask
	passEvents bool

	// fanout is set while the native handle is armed on behalf of
	// multiplexes rather than a direct callback
	fanout      bool
	multiplexes []*MultiplexHandle
}

// Fd returns the watched descriptor.
func (w *Io) Fd() int { return w.fd }

// Events returns the currently armed mask.
func (w *Io) Events() api.EventMask { return w.events }

// SetEvents changes the armed mask. While active the native poll
// handle is restarted in place; backends define start-while-active for
// poll handles exactly for this.
func (w *Io) SetEvents(events api.EventMask) error {
	if events == w.events {
		return nil
	}
	w.events = events
	w.startArgs.Events = events
	if w.Active() {
		if st := w.backend().Start(w.handle, w.trampoline, w.startArgs); st < 0 {
			return nativeCall("poll_start", w.backend(), st, w.fd, events.String())
		}
	}
	return nil
}

// Start arms the watcher with a direct callback; delivered events are
// suppressed.
func (w *Io) Start(cb api.Callback, args ...any) error {
	if cb == nil {
		return api.ErrNilCallback
	}
	w.fanout = false
	w.passEvents = false
	return w.startWith(cb, args)
}

// StartPassingEvents arms like Start but prepends the delivered event
// mask (or negative status) to the callback arguments.
func (w *Io) StartPassingEvents(cb api.Callback, args ...any) error {
	if cb == nil {
		return api.ErrNilCallback
	}
	w.fanout = false
	w.passEvents = true
	return w.startWith(cb, args)
}

// Multiplex registers a new logical sub-watcher and re-arms the native
// handle with the widened union mask.
func (w *Io) Multiplex(events api.EventMask) (*MultiplexHandle, error) {
	if w.state == stateClosed {
		return nil, &api.UseAfterCloseError{Op: "multiplex"}
	}
	m := &MultiplexHandle{owner: w, events: events}
	w.multiplexes = append(w.multiplexes, m)
	if err := w.updateEvents(); err != nil {
		w.multiplexes = w.multiplexes[:len(w.multiplexes)-1]
		return nil, err
	}
	return m, nil
}

// Close tears down the watcher and detaches every multiplex. The
// multiplexes hold only non-owning back-references, so dropping them
// here severs both directions deterministically.
func (w *Io) Close() {
	if w.state == stateClosed {
		return
	}
	ms := w.multiplexes
	w.multiplexes = nil
	for _, m := range ms {
		m.owner = nil
		m.callback = nil
		m.args = nil
	}
	w.base.Close()
}

func (w *Io) updateEvents() error {
	var union api.EventMask
	for _, m := range w.multiplexes {
		union |= m.events
	}
	return w.SetEvents(union)
}

func (w *Io) ioStart() error {
	w.fanout = true
	return w.startWith(nil, nil)
}

func (w *Io) ioMaybeStop() {
	for _, m := range w.multiplexes {
		if m.callback != nil {
			// still started; we stay in the polling set
			return
		}
	}
	_ = w.Stop()
}

func (w *Io) multiplexClosed(m *MultiplexHandle) {
	for i, x := range w.multiplexes {
		if x == m {
			w.multiplexes = append(w.multiplexes[:i], w.multiplexes[i+1:]...)
			break
		}
	}
	if len(w.multiplexes) == 0 {
		// The last logical interest is gone. The native close must
		// happen synchronously with this call: closing a poll handle
		// invalidates undelivered events for the fd and removes it
		// from the poll set, and the fd number may already belong to
		// a new watcher by the time any deferred pass would run.
		_ = w.Stop()
		w.Close()
	} else {
		_ = w.updateEvents()
	}
}

// ioDispatch fans a readiness event (or negative status) out to the
// interested multiplexes, or to the direct callback when not
// multiplexing. Multiplexes are iterated over a snapshot: a callback
// stopping or closing a sibling mid-pass must not corrupt iteration.
func (w *Io) ioDispatch(revents int) {
	if w.fanout {
		for _, m := range append([]*MultiplexHandle(nil), w.multiplexes...) {
			cb := m.callback
			if cb == nil {
				// stopped
				continue
			}
			// a negative status cannot be attributed to one logical
			// interest, so it is delivered to all of them
			if revents < 0 || api.EventMask(revents)&m.events != 0 {
				if m.passEvents {
					cb(append([]any{revents}, m.args...)...)
				} else {
					cb(m.args...)
				}
			}
		}
		return
	}
	cb := w.cb
	if cb == nil {
		return
	}
	if w.passEvents {
		cb(append([]any{revents}, w.args...)...)
	} else {
		cb(w.args...)
	}
}

// MultiplexHandle is one logical sub-watcher sharing its owner's
// native poll handle. Its back-reference to the owner is non-owning:
// owner lifetime is controlled solely by explicit Close calls, never
// by collector behavior.
type MultiplexHandle struct {
	owner      *Io // nil once closed
	events     api.EventMask
	callback   api.Callback
	args       []any
	passEvents bool
}

// Start marks the sub-watcher active; the owner starts polling if it
// was not already.
func (m *MultiplexHandle) Start(cb api.Callback, args ...any) error {
	return m.start(cb, args, false)
}

// StartPassingEvents is Start with the event mask prepended to the
// callback arguments on delivery.
func (m *MultiplexHandle) StartPassingEvents(cb api.Callback, args ...any) error {
	return m.start(cb, args, true)
}

func (m *MultiplexHandle) start(cb api.Callback, args []any, passEvents bool) error {
	if cb == nil {
		return api.ErrNilCallback
	}
	if m.owner == nil {
		return &api.UseAfterCloseError{Op: "start"}
	}
	m.callback = cb
	m.args = args
	m.passEvents = passEvents
	if !m.owner.Active() {
		return m.owner.ioStart()
	}
	return nil
}

// Stop marks the sub-watcher inactive. It stays registered, so the
// owner's armed mask is unchanged; if no sub-watcher remains started
// the owner leaves the polling set (handle kept for fast restart).
func (m *MultiplexHandle) Stop() error {
	m.callback = nil
	m.args = nil
	m.passEvents = false
	if m.owner != nil {
		m.owner.ioMaybeStop()
	}
	return nil
}

// Close removes the sub-watcher from its owner. Closing the last one
// closes the owner's native handle synchronously.
func (m *MultiplexHandle) Close() {
	if m.owner == nil {
		return
	}
	owner := m.owner
	m.owner = nil
	m.callback = nil
	m.args = nil
	owner.multiplexClosed(m)
}

// Active reports whether the sub-watcher has a callback installed.
func (m *MultiplexHandle) Active() bool { return m.callback != nil }

// Events returns this sub-watcher's interest mask.
func (m *MultiplexHandle) Events() api.EventMask { return m.events }

// SetEvents changes the interest mask; rejected while active.
func (m *MultiplexHandle) SetEvents(events api.EventMask) error {
	if m.Active() {
		return api.ErrWatcherActive
	}
	m.events = events
	return nil
}

// Fd returns the owner's descriptor, or -1 once closed.
func (m *MultiplexHandle) Fd() int {
	if m.owner != nil {
		return m.owner.fd
	}
	return -1
}
