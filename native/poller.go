// File: native/poller.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral poll-mode demultiplexer interface, implemented by
// epoll on Linux and a timed-wait stub elsewhere.

package native

import "github.com/momentics/hioload-loop/api"

// pollEvent is one readiness notification from the demultiplexer.
// revents is an api.EventMask, or a negative api.Status when the
// descriptor is in an error state the mask cannot express.
type pollEvent struct {
	fd      int
	revents int
}

type poller interface {
	// add arms a descriptor with the given mask.
	add(fd int, events api.EventMask) api.Status

	// mod changes the armed mask of a registered descriptor.
	mod(fd int, events api.EventMask) api.Status

	// del removes a descriptor from the poll set.
	del(fd int) api.Status

	// wait blocks up to timeoutMS (-1 blocks indefinitely, 0 polls)
	// and fills events with ready descriptors. Wakeups interrupt the
	// wait and are consumed internally.
	wait(events []pollEvent, timeoutMS int) (int, api.Status)

	// wakeup interrupts a concurrent wait. Safe from any thread.
	wakeup()

	// close releases the demultiplexer resources.
	close() error
}
