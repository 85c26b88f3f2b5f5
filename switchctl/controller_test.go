package switchctl

import (
	"testing"

	"github.com/tiltframe/pincore/bus"
	"github.com/tiltframe/pincore/pinerr"
	"github.com/tiltframe/pincore/tick"
)

func newFixture(t *testing.T, hz int) (*tick.Service, *bus.Bus, *Controller) {
	t.Helper()
	ts := tick.New()
	if err := ts.Configure(hz); err != nil {
		t.Fatalf("configure: %v", err)
	}
	eb := bus.New()
	c := New(ts, eb)
	return ts, eb, c
}

func TestNCSwitchInversion(t *testing.T) {
	_, _, c := newFixture(t, 50)
	if err := c.RegisterSwitch("S", "", NC, nil, 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.ProcessSwitch("S", 1, false); err != nil {
		t.Fatalf("process: %v", err)
	}
	sw, _ := c.Switches("S")
	if sw.State != 0 {
		t.Fatalf("NC switch fed raw=1 should read logical state 0, got %d", sw.State)
	}
}

func TestNOSwitchNoInversion(t *testing.T) {
	_, _, c := newFixture(t, 50)
	c.RegisterSwitch("S", "", NO, nil, 0)
	c.ProcessSwitch("S", 1, false)
	sw, _ := c.Switches("S")
	if sw.State != 1 {
		t.Fatalf("NO switch fed raw=1 should read logical state 1, got %d", sw.State)
	}
}

func TestLogicalBypassesInversion(t *testing.T) {
	_, _, c := newFixture(t, 50)
	c.RegisterSwitch("S", "", NC, nil, 0)
	c.ProcessSwitch("S", 1, true)
	sw, _ := c.Switches("S")
	if sw.State != 1 {
		t.Fatalf("logical=true must bypass NC inversion, got state %d", sw.State)
	}
}

func TestDelayedFireAtExactTick(t *testing.T) {
	ts, eb, c := newFixture(t, 50) // 20ms/tick
	c.Wire(eb)
	c.RegisterSwitch("S", "", NO, nil, 0)

	fires := 0
	if err := c.AddSwitchHandler("S", func() { fires++ }, 1, 100); err != nil { // 100ms = 5 ticks
		t.Fatalf("add handler: %v", err)
	}

	c.ProcessSwitch("S", 1, false) // tick 0
	for i := 0; i < 4; i++ {
		ts.Tick()
		c.TickHook()
		if fires != 0 {
			t.Fatalf("handler fired early at tick %d", ts.Now())
		}
	}
	ts.Tick() // tick 5
	c.TickHook()
	if fires != 1 {
		t.Fatalf("expected exactly 1 fire at tick 5, got %d", fires)
	}
}

func TestCancellationOnEarlyRelease(t *testing.T) {
	ts, eb, c := newFixture(t, 50)
	c.Wire(eb)
	c.RegisterSwitch("S", "", NO, nil, 0)

	fires := 0
	c.AddSwitchHandler("S", func() { fires++ }, 1, 100) // 5 ticks

	c.ProcessSwitch("S", 1, false) // tick 0
	for i := 0; i < 3; i++ {
		ts.Tick()
		c.TickHook()
	}
	c.ProcessSwitch("S", 0, false) // tick 3, cancels the pending fire

	for i := 0; i < 3; i++ {
		ts.Tick()
		c.TickHook()
	}
	if fires != 0 {
		t.Fatalf("cancelled handler fired, fires=%d", fires)
	}
}

func TestCancellationLeavesUnrelatedPendingFiresIntact(t *testing.T) {
	ts, eb, c := newFixture(t, 50)
	c.Wire(eb)
	c.RegisterSwitch("A", "", NO, nil, 0)
	c.RegisterSwitch("B", "", NO, nil, 0)

	aFires, bFires := 0, 0
	c.AddSwitchHandler("A", func() { aFires++ }, 1, 100) // 5 ticks
	c.AddSwitchHandler("B", func() { bFires++ }, 1, 100) // 5 ticks, same fire tick as A

	c.ProcessSwitch("A", 1, false) // tick 0, scheduled to fire at tick 5
	c.ProcessSwitch("B", 1, false) // tick 0, scheduled to fire at tick 5 too

	ts.Tick()
	c.TickHook()
	c.ProcessSwitch("A", 0, false) // cancels only A's pending fire at tick 5

	for i := 0; i < 4; i++ {
		ts.Tick()
		c.TickHook()
	}
	if aFires != 0 {
		t.Fatalf("A's cancelled handler fired, aFires=%d", aFires)
	}
	if bFires != 1 {
		t.Fatalf("B's unrelated pending fire was destroyed by A's cancellation, bFires=%d", bFires)
	}
}

func TestTagEventOnlyOnActivation(t *testing.T) {
	_, eb, c := newFixture(t, 50)
	c.RegisterSwitch("S", "", NO, []string{"left_flipper"}, 0)

	var posted []string
	eb.AddHandler("sw_left_flipper", func(any) { posted = append(posted, "sw_left_flipper") }, 0)

	c.ProcessSwitch("S", 1, false)
	if len(posted) != 1 {
		t.Fatalf("expected tag event on activation, got %v", posted)
	}

	c.ProcessSwitch("S", 0, false)
	if len(posted) != 1 {
		t.Fatalf("deactivation must not post a tag event, got %v", posted)
	}
}

func TestImmediateHandlerFiresOncePerTransition(t *testing.T) {
	_, _, c := newFixture(t, 50)
	c.RegisterSwitch("S", "", NO, nil, 0)

	fires := 0
	c.AddSwitchHandler("S", func() { fires++ }, 1, 0)

	c.ProcessSwitch("S", 1, false)
	c.ProcessSwitch("S", 1, false) // duplicate report, not a transition
	if fires != 1 {
		t.Fatalf("expected 1 fire for 1 transition plus 1 duplicate report, got %d", fires)
	}

	c.ProcessSwitch("S", 0, false)
	c.ProcessSwitch("S", 1, false)
	if fires != 2 {
		t.Fatalf("expected a second fire on the second genuine transition, got %d", fires)
	}
}

func TestDuplicateReportDoesNotResetLastChangeTick(t *testing.T) {
	ts, _, c := newFixture(t, 50)
	c.RegisterSwitch("S", "", NO, nil, 0)

	c.ProcessSwitch("S", 1, false) // tick 0, transition
	ts.Tick()
	ts.Tick()
	c.ProcessSwitch("S", 1, false) // tick 2, duplicate report

	if got := c.TicksSinceChange("S"); got != 2 {
		t.Fatalf("duplicate report must not reset last_change_tick, ticks_since_change=%d, want 2", got)
	}
}

func TestIsStateRespectsMinDwell(t *testing.T) {
	ts, _, c := newFixture(t, 50)
	c.RegisterSwitch("S", "", NO, nil, 0)
	c.ProcessSwitch("S", 1, false)

	if !c.IsState("S", 1, 0) {
		t.Fatal("expected IsState true with minTicks=0 immediately after transition")
	}
	if c.IsState("S", 1, 3) {
		t.Fatal("expected IsState false before minTicks has elapsed")
	}
	for i := 0; i < 3; i++ {
		ts.Tick()
	}
	if !c.IsState("S", 1, 3) {
		t.Fatal("expected IsState true once minTicks has elapsed")
	}
}

func TestIsActiveIsInactive(t *testing.T) {
	_, _, c := newFixture(t, 50)
	c.RegisterSwitch("S", "", NO, nil, 0)
	c.ProcessSwitch("S", 0, false)
	if !c.IsInactive("S", 0) {
		t.Fatal("expected IsInactive true")
	}
	c.ProcessSwitch("S", 1, false)
	if !c.IsActive("S", 0) {
		t.Fatal("expected IsActive true")
	}
}

func TestUnknownSwitchIsLoggedAndDropped(t *testing.T) {
	_, _, c := newFixture(t, 50)
	var dropped string
	c.OnUnknownSwitch = func(name string) { dropped = name }

	if err := c.ProcessSwitch("ghost", 1, false); err != nil {
		t.Fatalf("unknown switch must not be a fatal error, got %v", err)
	}
	if dropped != "ghost" {
		t.Fatalf("expected OnUnknownSwitch to observe %q, got %q", "ghost", dropped)
	}
}

func TestInitializeHWStatesRunsOnce(t *testing.T) {
	_, _, c := newFixture(t, 50)
	c.RegisterSwitch("S", "", NO, nil, 1)

	if err := c.InitializeHWStates(); err != nil {
		t.Fatalf("first call: %v", err)
	}
	sw, _ := c.Switches("S")
	if sw.State != 1 {
		t.Fatalf("expected initial hw state replayed, got %d", sw.State)
	}
	if err := c.InitializeHWStates(); err == nil {
		t.Fatal("expected error calling InitializeHWStates a second time")
	}
}

func TestWireDispatchesTimerTickToTickHook(t *testing.T) {
	ts, eb, c := newFixture(t, 50)
	c.Wire(eb)
	c.RegisterSwitch("S", "", NO, nil, 0)

	fires := 0
	c.AddSwitchHandler("S", func() { fires++ }, 1, 40) // 2 ticks
	c.ProcessSwitch("S", 1, false)

	// Posting "timer_tick" on the bus, not calling TickHook directly,
	// is what exercises Wire's subscription.
	ts.Tick()
	eb.Post("timer_tick", nil)
	if fires != 0 {
		t.Fatalf("fired early via bus dispatch, fires=%d", fires)
	}
	ts.Tick()
	eb.Post("timer_tick", nil)
	if fires != 1 {
		t.Fatalf("expected timer_tick bus dispatch to reach TickHook and fire, got %d", fires)
	}
}

func TestWireDispatchesMachineInitCompleteToInitializeHWStates(t *testing.T) {
	_, eb, c := newFixture(t, 50)
	c.Wire(eb)
	c.RegisterSwitch("S", "", NO, nil, 1)

	eb.Post("machine_init_complete", nil)
	if err := c.InitErr(); err != nil {
		t.Fatalf("unexpected InitErr after first machine_init_complete: %v", err)
	}
	sw, _ := c.Switches("S")
	if sw.State != 1 {
		t.Fatalf("expected initial hw state replayed via bus dispatch, got %d", sw.State)
	}

	eb.Post("machine_init_complete", nil)
	if c.InitErr() == nil {
		t.Fatal("expected InitErr to report the second InitializeHWStates call")
	}
}

func TestImmediateCallbackPanicWrappedInCallbackFailure(t *testing.T) {
	_, _, c := newFixture(t, 50)
	c.RegisterSwitch("S", "", NO, nil, 0)
	c.AddSwitchHandler("S", func() { panic("boom") }, 1, 0)

	defer func() {
		r := recover()
		cf, ok := r.(*pinerr.CallbackFailure)
		if !ok {
			t.Fatalf("got panic value of type %T, want *pinerr.CallbackFailure", r)
		}
		if cf.Source != "switch:S/state=1" {
			t.Fatalf("got Source %q, want %q", cf.Source, "switch:S/state=1")
		}
	}()
	c.ProcessSwitch("S", 1, false)
}

func TestDelayedCallbackPanicWrappedInCallbackFailure(t *testing.T) {
	ts, _, c := newFixture(t, 50)
	c.RegisterSwitch("S", "", NO, nil, 0)
	c.AddSwitchHandler("S", func() { panic("boom") }, 1, 20) // 1 tick
	c.ProcessSwitch("S", 1, false)
	ts.Tick()

	defer func() {
		r := recover()
		cf, ok := r.(*pinerr.CallbackFailure)
		if !ok {
			t.Fatalf("got panic value of type %T, want *pinerr.CallbackFailure", r)
		}
		if cf.Source != "switch:S/state=1" {
			t.Fatalf("got Source %q, want %q", cf.Source, "switch:S/state=1")
		}
	}()
	c.TickHook()
}

func TestResolveByPlatformNumber(t *testing.T) {
	_, _, c := newFixture(t, 50)
	c.RegisterSwitch("S", "42", NO, nil, 0)
	if err := c.ProcessSwitch("42", 1, false); err != nil {
		t.Fatalf("process by number: %v", err)
	}
	sw, _ := c.Switches("S")
	if sw.State != 1 {
		t.Fatalf("expected resolution by platform number to update switch S, got state %d", sw.State)
	}
}
