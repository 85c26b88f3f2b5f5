package status

// Metric keys shared by every subsystem that reports into a Registry.
// Centralizing them here keeps switchctl/accel/machine from retyping ad
// hoc strings, and gives a dashboard a documented, known set of names to
// read instead of discovering them at runtime.
const (
	KeyEngineTicks         = "engine.ticks"
	KeySwitchTransitions   = "switch.transitions"
	KeySwitchPendingFires  = "switch.pending_fires"
	KeySwitchLastTag       = "switch.last_tag"
	KeyMachineInitialized  = "machine.initialized"
	KeyAccelHits           = "accel.hits"
	KeyAccelTilts          = "accel.tilts"
	KeyAccelFilteredMag    = "accel.filtered_mag"
	KeyAccelDeviationTotal = "accel.deviation_total"
)
