// Package tick implements the timing service: the global discrete-time
// clock against which all durations in the core are expressed.
//
// The service is single-threaded cooperative: every call into Configure,
// Add, Remove, and Tick must happen on the control thread. No internal
// locking is performed.
package tick

import (
	"strconv"
	"strings"

	"github.com/tiltframe/pincore/pinerr"
)

// Tick is the unsigned monotonically increasing clock value. Zero at
// startup, advanced by exactly one on every Tick() call.
type Tick uint64

// Timer is a callback scheduled against the tick clock rather than wall
// time. A Timer with Periodic == false fires once and then goes dormant;
// it stays in the timer set until Remove is called, so re-arming it
// takes Remove followed by Add. A Timer with
// Periodic == true reschedules itself FrequencyTicks ticks out every
// time it fires.
type Timer struct {
	Callback       func()
	FrequencyTicks uint64
	Periodic       bool

	// Name optionally identifies the timer for diagnostics (the
	// CallbackFailure raised if Callback panics). Empty is fine; the
	// timing service has no need for unique names to function.
	Name string

	wakeup Tick
	active bool
}

// Due reports whether the timer's wakeup has arrived as of `now`.
func (t *Timer) Due(now Tick) bool {
	return t.active && t.wakeup <= now
}

// Service owns current_tick and the set of active Timers.
type Service struct {
	hz           int
	secsPerTick  float64
	configured   bool
	configuredAt int

	current Tick
	timers  []*Timer
}

// New returns an unconfigured Service. Configure must be called once
// before any timer is added.
func New() *Service {
	return &Service{}
}

// Configure sets the tick rate. Fails with a Misconfigured error if hz is
// not positive, or if called again with a different value than before —
// the tick rate is immutable once fixed.
func (s *Service) Configure(hz int) error {
	if hz <= 0 {
		return pinerr.NewMisconfigured("tick rate must be positive, got %d", hz)
	}
	if s.configured && s.configuredAt != hz {
		return pinerr.NewMisconfigured("tick rate already configured at %d HZ, cannot change to %d", s.configuredAt, hz)
	}
	s.hz = hz
	s.secsPerTick = 1.0 / float64(hz)
	s.configured = true
	s.configuredAt = hz
	return nil
}

// Now returns the current tick.
func (s *Service) Now() Tick {
	return s.current
}

// Add initialises the timer's wakeup relative to the current tick and
// inserts it into the timer set. Re-adding the same Timer value is a
// caller error (not guarded against — duplicates are the caller's
// responsibility).
func (s *Service) Add(t *Timer) {
	t.wakeup = s.current + Tick(t.FrequencyTicks)
	t.active = true
	s.timers = append(s.timers, t)
}

// Remove drops the timer from the active set. No-op if absent.
func (s *Service) Remove(t *Timer) {
	for i, other := range s.timers {
		if other == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return
		}
	}
}

// Tick advances current_tick by one and fires every timer whose wakeup
// has arrived, exactly once each, in insertion order. Firing order is
// computed from a snapshot taken before any callback runs, so a timer
// added by another timer's callback during this call does not fire
// until a later Tick.
//
// A callback panic propagates out of Tick after the timer's own
// rescheduling has already been applied (periodic timers keep running
// on schedule even if one invocation panics); it arrives wrapped in a
// pinerr.CallbackFailure identifying the timer, and the caller decides
// whether to recover.
func (s *Service) Tick() {
	s.current++
	now := s.current

	due := make([]*Timer, 0, len(s.timers))
	for _, t := range s.timers {
		if t.Due(now) {
			due = append(due, t)
		}
	}

	for _, t := range due {
		if t.Periodic {
			t.wakeup += Tick(t.FrequencyTicks)
		} else {
			t.active = false
		}
		name := t.Name
		if name == "" {
			name = "unnamed"
		}
		pinerr.Guard("timer:"+name, t.Callback)
	}
}

// Msecs converts a millisecond duration to ticks, rounding toward zero.
func (s *Service) Msecs(ms int) Tick {
	return Tick(int64(float64(ms) / 1000.0 / s.secsPerTick))
}

// CeilMsecs converts a millisecond duration to ticks, rounding up. Used by
// the switch controller's handler registration: a caller asking for a
// dwell of "at least 100ms" should never get fewer ticks than that
// implies because of truncation.
func (s *Service) CeilMsecs(ms int) Tick {
	exact := float64(ms) / 1000.0 / s.secsPerTick
	whole := int64(exact)
	if exact > float64(whole) {
		whole++
	}
	return Tick(whole)
}

// Secs converts a second duration to ticks, rounding toward zero.
func (s *Service) Secs(sec float64) Tick {
	return Tick(int64(sec / s.secsPerTick))
}

// ParseDuration parses a duration string: a trailing "ms" or "msec"
// denotes milliseconds, anything else (including a bare number) is
// seconds. "200ms" -> Msecs(200); "2s" and "2" -> Secs(2).
func (s *Service) ParseDuration(str string) (Tick, error) {
	str = strings.TrimSpace(str)
	switch {
	case strings.HasSuffix(str, "msec"):
		ms, err := strconv.ParseFloat(strings.TrimSuffix(str, "msec"), 64)
		if err != nil {
			return 0, pinerr.NewMisconfigured("invalid duration %q: %v", str, err)
		}
		return s.Msecs(int(ms)), nil
	case strings.HasSuffix(str, "ms"):
		ms, err := strconv.ParseFloat(strings.TrimSuffix(str, "ms"), 64)
		if err != nil {
			return 0, pinerr.NewMisconfigured("invalid duration %q: %v", str, err)
		}
		return s.Msecs(int(ms)), nil
	case strings.HasSuffix(str, "s"):
		sec, err := strconv.ParseFloat(strings.TrimSuffix(str, "s"), 64)
		if err != nil {
			return 0, pinerr.NewMisconfigured("invalid duration %q: %v", str, err)
		}
		return s.Secs(sec), nil
	default:
		sec, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return 0, pinerr.NewMisconfigured("invalid duration %q: %v", str, err)
		}
		return s.Secs(sec), nil
	}
}
