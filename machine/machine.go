// Package machine bootstraps the three core subsystems — timing, switch
// controller, accelerometer processor — from a parsed config.MachineConfig
// and wires them together in dependency order: Timing -> Event bus ->
// Switch controller; Timing + Event bus -> Accelerometer.
//
// This is the one place the core itself constructs its collaborators;
// everything below machine.New is a pure library with no global state.
package machine

import (
	"strings"

	"github.com/tiltframe/pincore/accel"
	"github.com/tiltframe/pincore/bus"
	"github.com/tiltframe/pincore/config"
	"github.com/tiltframe/pincore/pinerr"
	"github.com/tiltframe/pincore/status"
	"github.com/tiltframe/pincore/switchctl"
	"github.com/tiltframe/pincore/tick"
	"github.com/tiltframe/pincore/vecf"
)

// Machine is a fully wired core instance: one timing service, one event
// bus, one switch controller, one accelerometer processor.
type Machine struct {
	Tick     *tick.Service
	Bus      *bus.Bus
	Switches *switchctl.Controller
	Accel    *accel.Processor
	Stats    *status.Registry
}

// New builds a Machine from a parsed machine.toml document. It registers
// every switch in cfg.Switches, replays their initial hardware readings
// via InitializeHWStates, and constructs the accelerometer processor
// from cfg.Accelerometer. Returns a Misconfigured error from any
// downstream Configure/RegisterSwitch/InitializeHWStates call.
func New(cfg *config.MachineConfig) (*Machine, error) {
	ts := tick.New()
	if err := ts.Configure(cfg.HZ); err != nil {
		return nil, err
	}

	eb := bus.New()
	stats := status.NewRegistry()
	sc := switchctl.New(ts, eb)
	sc.Stats = stats

	for _, def := range cfg.Switches {
		typ := switchctl.NO
		if strings.EqualFold(def.Type, "NC") {
			typ = switchctl.NC
		}
		if err := sc.RegisterSwitch(def.Name, def.Number, typ, def.Tags, def.Initial); err != nil {
			return nil, err
		}
	}
	sc.Wire(eb)
	eb.Post("machine_init_complete", nil)
	if err := sc.InitErr(); err != nil {
		return nil, err
	}

	ap := accel.New(eb, accelConfigFrom(cfg.Accelerometer))
	ap.Stats = stats

	return &Machine{Tick: ts, Bus: eb, Switches: sc, Accel: ap, Stats: stats}, nil
}

// accelConfigFrom converts the TOML-decoded accelerometer section into
// the accel package's runtime Config.
func accelConfigFrom(def config.AccelDef) accel.Config {
	var ref vecf.Vec3
	if len(def.LevelRef) == 3 {
		ref = vecf.Vec3{X: def.LevelRef[0], Y: def.LevelRef[1], Z: def.LevelRef[2]}
	}

	levelLimits := make([]accel.Threshold, len(def.LevelLimits))
	for i, t := range def.LevelLimits {
		levelLimits[i] = accel.Threshold{Value: t.Value, Event: t.Event}
	}

	hitLimits := make([]accel.Threshold, len(def.HitLimits))
	for i, t := range def.HitLimits {
		hitLimits[i] = accel.Threshold{Value: t.Value, Event: t.Event}
	}

	return accel.Config{
		LevelRef:    ref,
		LevelLimits: levelLimits,
		HitLimits:   hitLimits,
		Alpha:       def.Alpha,
	}
}

// Advance drives the control loop by one tick: the timing service
// advances current_tick and fires due periodic timers, then a
// "timer_tick" event is posted on the bus, which the switch controller's
// Wire subscription turns into a TickHook call firing matured delayed
// handlers.
func (m *Machine) Advance() {
	m.Tick.Tick()
	m.Bus.Post("timer_tick", nil)
	m.Stats.Ints.Get(status.KeyEngineTicks).Store(int64(m.Tick.Now()))
}

// AddTimer registers a periodic or one-shot timer with the machine's
// timing service, returning a Misconfigured error if ms is not positive.
func (m *Machine) AddTimer(ms int, periodic bool, callback func()) (*tick.Timer, error) {
	if ms <= 0 {
		return nil, pinerr.NewMisconfigured("timer interval must be positive, got %dms", ms)
	}
	t := &tick.Timer{
		Callback:       callback,
		FrequencyTicks: uint64(m.Tick.CeilMsecs(ms)),
		Periodic:       periodic,
	}
	m.Tick.Add(t)
	return t, nil
}
