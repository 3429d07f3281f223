// File: api/events.go
// Author: momentics <momentics@gmail.com>
//
// Readiness event masks for descriptor watchers.

package api

import "strings"

// EventMask is a bitset of descriptor readiness conditions.
type EventMask int32

const (
	// EventRead indicates the descriptor is readable.
	EventRead EventMask = 0x1
	// EventWrite indicates the descriptor is writable.
	EventWrite EventMask = 0x2
	// EventDisconnect indicates the peer hung up.
	EventDisconnect EventMask = 0x4
)

// EventMaskAll is every condition a poll handle can be armed for.
const EventMaskAll = EventRead | EventWrite | EventDisconnect

var eventNames = []struct {
	bit  EventMask
	name string
}{
	{EventRead, "READ"},
	{EventWrite, "WRITE"},
	{EventDisconnect, "DISCONNECT"},
}

// String renders the mask as "READ|WRITE" style text.
func (m EventMask) String() string {
	if m == 0 {
		return "NONE"
	}
	var parts []string
	rest := m
	for _, e := range eventNames {
		if rest&e.bit != 0 {
			parts = append(parts, e.name)
			rest &^= e.bit
		}
	}
	if rest != 0 {
		parts = append(parts, "UNKNOWN")
	}
	return strings.Join(parts, "|")
}
