// Package accel implements the accelerometer processor: it filters a
// three-axis signal, derives impact and tilt events, and posts them to
// the event bus.
package accel

import (
	"math"

	"github.com/tiltframe/pincore/bus"
	"github.com/tiltframe/pincore/status"
	"github.com/tiltframe/pincore/vecf"
)

// Threshold pairs a crossing value with the event name to publish when
// a sample exceeds it. Config stores these as ordered slices rather than
// maps so iteration order — and therefore which events fire first when
// several thresholds cross on the same sample — is deterministic.
type Threshold struct {
	Value float64
	Event string
}

// Config holds the processor's tuning: the upright reference vector,
// angle and magnitude thresholds, and the low-pass filter coefficient.
type Config struct {
	LevelRef    vecf.Vec3
	LevelLimits []Threshold // degrees
	HitLimits   []Threshold // delta magnitude
	Alpha       float64     // smoothing coefficient in [0,1]
}

// DefaultAlpha is the default smoothing coefficient.
const DefaultAlpha = 0.95

// LevelEvent is the payload posted for a level/tilt threshold crossing.
// Angles are in radians.
type LevelEvent struct {
	DeviationTotal float64
	DeviationX     float64
	DeviationY     float64
}

// Processor holds the running filter state for one accelerometer.
type Processor struct {
	bus *bus.Bus
	cfg Config

	latest      vecf.Vec3
	filtered    vecf.Vec3
	filteredSet bool

	// Stats, if set, receives runtime counters. Nil is safe.
	Stats *status.Registry
}

// New returns a Processor posting to eb. If cfg.Alpha is zero it defaults
// to DefaultAlpha (0.95).
func New(eb *bus.Bus, cfg Config) *Processor {
	if cfg.Alpha == 0 {
		cfg.Alpha = DefaultAlpha
	}
	return &Processor{bus: eb, cfg: cfg}
}

// UpdateAcceleration is the entry point called by the platform driver
// with a raw three-axis sample.
func (p *Processor) UpdateAcceleration(x, y, z float64) {
	sample := vecf.Vec3{X: x, Y: y, Z: z}
	p.latest = sample

	var delta vecf.Vec3
	if !p.filteredSet {
		p.filtered = sample
		p.filteredSet = true
		// delta stays zero: no prior filtered state to diff against.
	} else {
		// The raw sample is subtracted from the pre-update filtered
		// state; delta is the high-frequency residual.
		delta = vecf.Sub(sample, p.filtered)
		p.filtered = vecf.Lerp(p.filtered, sample, 1-p.cfg.Alpha)
	}

	p.detectHit(delta)
	p.detectLevel(sample)

	if p.Stats != nil {
		p.Stats.Floats.Get(status.KeyAccelFilteredMag).Set(vecf.Mag(p.filtered))
	}
}

// detectHit publishes every hit_limits event whose threshold the delta
// magnitude exceeds. Multiple thresholds may fire for one sample.
func (p *Processor) detectHit(delta vecf.Vec3) {
	mag := vecf.Mag(delta)
	for _, th := range p.cfg.HitLimits {
		if mag > th.Value {
			p.bus.Post(th.Event, nil)
			if p.Stats != nil {
				p.Stats.Ints.Get(status.KeyAccelHits).Add(1)
			}
		}
	}
}

// detectLevel publishes every level_limits event whose degree threshold
// the total deviation from the upright reference exceeds. Skips entirely
// if either vector has zero magnitude, since no direction is defined to
// compare.
func (p *Processor) detectLevel(sample vecf.Vec3) {
	ref := p.cfg.LevelRef
	if vecf.Mag(ref) == 0 || vecf.Mag(sample) == 0 {
		return
	}

	thetaTotal := vecf.Angle(ref, sample)
	if p.Stats != nil {
		p.Stats.Floats.Get(status.KeyAccelDeviationTotal).Set(thetaTotal)
	}
	thetaX := vecf.Angle(
		vecf.Vec3{X: 0, Y: ref.Y, Z: ref.Z},
		vecf.Vec3{X: 0, Y: sample.Y, Z: sample.Z},
	)
	thetaY := vecf.Angle(
		vecf.Vec3{X: ref.X, Y: 0, Z: ref.Z},
		vecf.Vec3{X: sample.X, Y: 0, Z: sample.Z},
	)

	degrees := thetaTotal * 180 / math.Pi
	for _, th := range p.cfg.LevelLimits {
		if degrees > th.Value {
			p.bus.Post(th.Event, LevelEvent{
				DeviationTotal: thetaTotal,
				DeviationX:     thetaX,
				DeviationY:     thetaY,
			})
			if p.Stats != nil {
				p.Stats.Ints.Get(status.KeyAccelTilts).Add(1)
			}
		}
	}
}

// Latest returns the most recent raw sample.
func (p *Processor) Latest() vecf.Vec3 {
	return p.latest
}

// Filtered returns the current exponentially smoothed signal. The second
// return value is false until the first sample has been processed.
func (p *Processor) Filtered() (vecf.Vec3, bool) {
	return p.filtered, p.filteredSet
}
