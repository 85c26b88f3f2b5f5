package switchctl

import (
	"fmt"
	"sort"

	"github.com/tiltframe/pincore/bus"
	"github.com/tiltframe/pincore/pinerr"
	"github.com/tiltframe/pincore/status"
	"github.com/tiltframe/pincore/tick"
)

// HandlerRegistration is a single (switch, target state) -> callback
// binding, keyed by (SwitchName, TargetState). Multiple registrations per
// key are allowed and all run.
type HandlerRegistration struct {
	SwitchName  string
	TargetState int
	DwellTicks  uint64
	Callback    func()
}

// PendingFire is a scheduled delayed handler invocation, created when a
// matching transition occurs with DwellTicks > 0. It is cancelled if the
// switch leaves the target state before FireTick is reached.
type PendingFire struct {
	FireTick    tick.Tick
	SwitchName  string
	TargetState int
	Callback    func()
}

type regKey struct {
	name  string
	state int
}

// Controller owns the switch roster, the handler registrations keyed by
// (name, target state), and the pending delayed fires.
type Controller struct {
	ts  *tick.Service
	bus *bus.Bus

	switches    map[string]*Switch
	numberIndex map[string]string
	initialRaw  map[string]int

	registered map[regKey][]*HandlerRegistration
	pending    map[tick.Tick][]*PendingFire

	initialized bool
	initErr     error

	// OnUnknownSwitch, if set, is invoked whenever ProcessSwitch is
	// called for a name not in the switch table. The event is dropped,
	// never fatal, since transient hardware noise during boot is
	// expected; the controller writes no log of its own, so this hook is
	// the only way to observe or log a drop.
	OnUnknownSwitch func(name string)

	// Stats, if set, receives runtime counters. Nil is safe: every use
	// is guarded.
	Stats *status.Registry
}

// New returns a Controller bound to the timing service and event bus it
// depends on.
func New(ts *tick.Service, eb *bus.Bus) *Controller {
	return &Controller{
		ts:          ts,
		bus:         eb,
		switches:    make(map[string]*Switch),
		numberIndex: make(map[string]string),
		initialRaw:  make(map[string]int),
		registered:  make(map[regKey][]*HandlerRegistration),
		pending:     make(map[tick.Tick][]*PendingFire),
	}
}

// RegisterSwitch adds a switch to the roster with its initial raw
// (pre-inversion) hardware reading, to be applied by InitializeHWStates.
func (c *Controller) RegisterSwitch(name, number string, typ Polarity, tags []string, initialRawState int) error {
	if name == "" {
		return pinerr.NewMisconfigured("switch name must not be empty")
	}
	if _, exists := c.switches[name]; exists {
		return pinerr.NewMisconfigured("switch %q already registered", name)
	}
	c.switches[name] = &Switch{Name: name, Number: number, Type: typ, Tags: tags}
	if number != "" {
		c.numberIndex[number] = name
	}
	c.initialRaw[name] = initialRawState
	return nil
}

// InitializeHWStates replays every registered switch's initial hardware
// reading through ProcessSwitch. Must run exactly once, after all
// switches are registered.
func (c *Controller) InitializeHWStates() error {
	if c.initialized {
		return pinerr.NewMisconfigured("InitializeHWStates already ran")
	}
	c.initialized = true

	names := make([]string, 0, len(c.switches))
	for name := range c.switches {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := c.ProcessSwitch(name, c.initialRaw[name], false); err != nil {
			return err
		}
	}
	if c.Stats != nil {
		c.Stats.Bools.Get(status.KeyMachineInitialized).Store(true)
	}
	return nil
}

// AddSwitchHandler registers callback to fire when switchName reaches
// state, after dwelling there for at least ms milliseconds; ms == 0
// fires immediately on the transition. Both parameters must be passed
// explicitly. ms is converted to ticks via the timing service, rounding
// up.
func (c *Controller) AddSwitchHandler(switchName string, callback func(), state int, ms int) error {
	if _, ok := c.switches[switchName]; !ok {
		return pinerr.NewMisconfigured("cannot register handler: unknown switch %q", switchName)
	}
	if ms < 0 {
		return pinerr.NewMisconfigured("dwell must not be negative, got %dms", ms)
	}
	key := regKey{name: switchName, state: state}
	c.registered[key] = append(c.registered[key], &HandlerRegistration{
		SwitchName:  switchName,
		TargetState: state,
		DwellTicks:  uint64(c.ts.CeilMsecs(ms)),
		Callback:    callback,
	})
	return nil
}

// resolveName maps a name, platform number, or *Switch to a registered
// switch name.
func (c *Controller) resolveName(ident any) (string, bool) {
	switch v := ident.(type) {
	case string:
		if _, ok := c.switches[v]; ok {
			return v, true
		}
		if name, ok := c.numberIndex[v]; ok {
			return name, true
		}
		return v, false
	case *Switch:
		_, ok := c.switches[v.Name]
		return v.Name, ok
	default:
		return "", false
	}
}

// ProcessSwitch is the canonical ingress from the platform driver.
// identOrName may be a switch name, a platform number, or a *Switch.
// When logical is false and the switch is NC, rawState is inverted
// before being treated as the logical state.
func (c *Controller) ProcessSwitch(identOrName any, rawState int, logical bool) error {
	name, ok := c.resolveName(identOrName)
	if !ok {
		if c.OnUnknownSwitch != nil {
			c.OnUnknownSwitch(name)
		}
		return nil
	}
	sw := c.switches[name]

	newState := rawState
	if !logical && sw.Type == NC {
		newState = 1 - rawState
	}

	prev := sw.State
	transitioned := !sw.everSet || newState != prev
	sw.State = newState
	sw.everSet = true

	if !transitioned {
		return nil
	}

	now := c.ts.Now()
	sw.LastChangeTick = now
	if c.Stats != nil {
		c.Stats.Ints.Get(status.KeySwitchTransitions).Add(1)
	}

	// Immediate and delayed handler dispatch. Each callback runs under
	// pinerr.Guard so a panicking handler is traceable to the switch and
	// state that triggered it rather than surfacing as a bare panic.
	for _, reg := range c.registered[regKey{name: name, state: newState}] {
		if reg.DwellTicks == 0 {
			pinerr.Guard(fmt.Sprintf("switch:%s/state=%d", name, newState), reg.Callback)
			continue
		}
		fireTick := now + tick.Tick(reg.DwellTicks)
		c.pending[fireTick] = append(c.pending[fireTick], &PendingFire{
			FireTick:    fireTick,
			SwitchName:  name,
			TargetState: newState,
			Callback:    reg.Callback,
		})
	}

	// Cancellation sweep: drop only the individual PendingFire entries
	// waiting on the opposite state for this switch, leaving unrelated
	// fires (other switches, or this switch's fires for the state it
	// just entered) intact. The original source deleted whole buckets
	// by fire tick, which also destroyed unrelated switches' pending
	// fires that happened to share a tick — see DESIGN.md.
	opposite := 1 - newState
	for ft, fires := range c.pending {
		kept := fires[:0]
		for _, pf := range fires {
			if pf.SwitchName == name && pf.TargetState == opposite {
				continue
			}
			kept = append(kept, pf)
		}
		if len(kept) == 0 {
			delete(c.pending, ft)
		} else {
			c.pending[ft] = kept
		}
	}

	// Tag-derived events: only on activation, reserved for extension on
	// deactivation.
	if newState == 1 {
		for _, t := range sw.Tags {
			c.bus.Post("sw_"+t, nil)
			if c.Stats != nil {
				c.Stats.Strings.Get(status.KeySwitchLastTag).Store(t)
			}
		}
	}

	c.reportPendingCount()
	return nil
}

// reportPendingCount publishes the number of pending delayed fires, if a
// Stats registry is attached.
func (c *Controller) reportPendingCount() {
	if c.Stats == nil {
		return
	}
	total := int64(0)
	for _, fires := range c.pending {
		total += int64(len(fires))
	}
	c.Stats.Ints.Get(status.KeySwitchPendingFires).Store(total)
}

// TickHook is invoked once per tick by the timing service. Every
// PendingFire whose FireTick has arrived fires exactly once and its
// bucket is removed; iteration snapshots the due keys first so a
// callback scheduling a new pending fire during this call does not
// retrigger within the same TickHook.
func (c *Controller) TickHook() {
	now := c.ts.Now()

	due := make([]tick.Tick, 0)
	for ft := range c.pending {
		if ft <= now {
			due = append(due, ft)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	for _, ft := range due {
		fires := c.pending[ft]
		delete(c.pending, ft)
		for _, pf := range fires {
			pinerr.Guard(fmt.Sprintf("switch:%s/state=%d", pf.SwitchName, pf.TargetState), pf.Callback)
		}
	}
	c.reportPendingCount()
}

// Wire subscribes the controller to the event bus: "timer_tick" drives
// TickHook, "machine_init_complete" drives InitializeHWStates, both at
// priority 1000 so the controller's synchronous work runs before
// lower-priority application subscribers. Both events are posted by
// machine.Machine (Advance and New respectively) rather than by the
// controller itself, which only consumes them.
func (c *Controller) Wire(eb *bus.Bus) {
	eb.AddHandler("timer_tick", func(any) { c.TickHook() }, 1000)
	eb.AddHandler("machine_init_complete", func(any) {
		c.initErr = c.InitializeHWStates()
	}, 1000)
}

// InitErr returns the error (if any) raised by the machine_init_complete
// handler's call to InitializeHWStates. Callers that drive initialization
// through Wire's bus subscription rather than a direct call check this
// after posting the event.
func (c *Controller) InitErr() error {
	return c.initErr
}

// IsState reports whether name is currently in state and has been for at
// least minTicks ticks.
func (c *Controller) IsState(name string, state int, minTicks uint64) bool {
	sw, ok := c.switches[name]
	if !ok || sw.State != state {
		return false
	}
	return uint64(c.ts.Now()-sw.LastChangeTick) >= minTicks
}

// IsActive is sugar for IsState(name, 1, minTicks).
func (c *Controller) IsActive(name string, minTicks uint64) bool {
	return c.IsState(name, 1, minTicks)
}

// IsInactive is sugar for IsState(name, 0, minTicks).
func (c *Controller) IsInactive(name string, minTicks uint64) bool {
	return c.IsState(name, 0, minTicks)
}

// TicksSinceChange returns how many ticks have elapsed since name last
// transitioned. Returns 0 for an unknown switch.
func (c *Controller) TicksSinceChange(name string) uint64 {
	sw, ok := c.switches[name]
	if !ok {
		return 0
	}
	return uint64(c.ts.Now() - sw.LastChangeTick)
}

// Switches returns the registered switch for name, for inspection (tests,
// status dashboards). The returned pointer must not be mutated.
func (c *Controller) Switches(name string) (*Switch, bool) {
	sw, ok := c.switches[name]
	return sw, ok
}
