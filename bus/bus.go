// Package bus implements the thin, synchronous event bus collaborator
// consumed by the switch controller and accelerometer processor.
//
// Posting is synchronous: every registered handler for an event name runs
// to completion, in priority order, before Post returns. There is no
// queue and no goroutine.
package bus

import "sort"

// Handler receives a posted event's payload. The payload shape is
// whatever the poster chose to send (tag events and accelerometer hit
// events post nil; accelerometer level events post a struct with
// deviation fields).
type Handler func(payload any)

type subscriber struct {
	handler  Handler
	priority int
	seq      int // insertion order, used to break priority ties
}

// Bus is a process-local synchronous publish-subscribe registry keyed by
// event name.
type Bus struct {
	subs map[string][]subscriber
	seq  int
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]subscriber)}
}

// AddHandler registers handler for eventName. Higher priority handlers
// run first; handlers registered at the same priority run in
// registration order. The switch controller subscribes to "timer_tick"
// and "machine_init_complete" at priority 1000 so its synchronous work
// runs before lower-priority application subscribers.
func (b *Bus) AddHandler(eventName string, handler Handler, priority int) {
	b.seq++
	subs := append(b.subs[eventName], subscriber{handler: handler, priority: priority, seq: b.seq})
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority > subs[j].priority
		}
		return subs[i].seq < subs[j].seq
	})
	b.subs[eventName] = subs
}

// Post synchronously invokes every handler registered for eventName, in
// priority order. A panicking handler propagates out of Post; handlers
// after it in the dispatch order do not run.
func (b *Bus) Post(eventName string, payload any) {
	for _, s := range b.subs[eventName] {
		s.handler(payload)
	}
}

// HandlerCount returns the number of handlers registered for eventName,
// useful for tests asserting wiring without invoking callbacks.
func (b *Bus) HandlerCount(eventName string) int {
	return len(b.subs[eventName])
}
