// Package pinerr defines the error kinds shared across the core: timing,
// switch controller, and accelerometer processor.
package pinerr

import "fmt"

// Misconfigured reports a setup-time mistake, such as a bad tick rate, a
// re-configuration attempt with a different value, a negative dwell, an
// empty, duplicate or unknown switch name, or an unparsable duration.
// It is always a caller bug, never triggered by hardware input.
type Misconfigured struct {
	Reason string
}

func (e *Misconfigured) Error() string {
	return fmt.Sprintf("misconfigured: %s", e.Reason)
}

// NewMisconfigured builds a Misconfigured error with a formatted reason.
func NewMisconfigured(format string, args ...any) error {
	return &Misconfigured{Reason: fmt.Sprintf(format, args...)}
}

// UnknownSwitch reports that process_switch was called for a name not
// present in the switch table. Policy: dropped, never fatal — hardware
// noise during boot or a flaky connector shouldn't take the machine down.
// The switch controller neither logs nor returns the drop; callers that
// want to observe (or log) drops install an OnUnknownSwitch hook rather
// than trapping this type.
type UnknownSwitch struct {
	Name string
}

func (e *UnknownSwitch) Error() string {
	return fmt.Sprintf("unknown switch: %q", e.Name)
}

// CallbackFailure wraps a recovered panic from a user-supplied callback
// with the switch/timer identity that triggered it. The core re-panics
// after attaching this context; it never swallows a callback failure.
type CallbackFailure struct {
	Source string // e.g. "switch:flipper_l/state=1" or "timer:tilt_bob"
	Cause  any
}

func (e *CallbackFailure) Error() string {
	return fmt.Sprintf("callback failure in %s: %v", e.Source, e.Cause)
}

// Unwrap supports errors.As/errors.Is when Cause is itself an error.
func (e *CallbackFailure) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// Guard invokes fn and, if it panics, re-panics with a *CallbackFailure
// identifying source wrapped around the recovered value. Every point
// where the core hands control to a caller-supplied switch or timer
// callback runs it through Guard, so a panicking handler is traceable to
// the switch/timer that triggered it instead of surfacing as a bare,
// unattributed panic.
func Guard(source string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			panic(&CallbackFailure{Source: source, Cause: r})
		}
	}()
	fn()
}
