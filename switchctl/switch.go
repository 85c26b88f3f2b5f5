// Package switchctl implements the switch controller: it ingests raw
// switch transitions, normalises NO/NC polarity, tracks per-switch dwell
// time, and dispatches immediate and delayed callbacks plus tag-based
// events.
package switchctl

import "github.com/tiltframe/pincore/tick"

// Polarity is the physical wiring of a switch.
type Polarity int

const (
	// NO (normally-open): raw 1 means the circuit is closed, no inversion.
	NO Polarity = iota
	// NC (normally-closed): raw reading is inverted to get logical state.
	NC
)

// Switch is a single registered input, identified by a stable name.
type Switch struct {
	Name   string
	Number string // platform identifier (board-local channel/pin id)
	Type   Polarity
	Tags   []string

	State          int // logical state, 0 or 1
	LastChangeTick tick.Tick
	everSet        bool // false until the first process_switch call lands
}
