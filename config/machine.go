package config

import "fmt"

// SwitchDef describes one roster entry as read from machine.toml.
type SwitchDef struct {
	Name    string   `toml:"name"`
	Number  string   `toml:"number"`
	Type    string   `toml:"type"` // "NO" or "NC"
	Tags    []string `toml:"tags"`
	Initial int      `toml:"initial"` // raw hardware reading at boot
}

// ThresholdDef is one (value, event name) pair for either the
// accelerometer's hit or level limits.
type ThresholdDef struct {
	Value float64 `toml:"value"`
	Event string  `toml:"event"`
}

// AccelDef describes the accelerometer processor's tuning.
type AccelDef struct {
	LevelRef    []float64      `toml:"level_ref"` // [x, y, z]
	LevelLimits []ThresholdDef `toml:"level_limits"`
	HitLimits   []ThresholdDef `toml:"hit_limits"`
	Alpha       float64        `toml:"alpha"`
}

// MachineConfig is the top-level machine.toml document: tick rate,
// switch roster, and accelerometer tuning.
type MachineConfig struct {
	HZ            int         `toml:"hz"`
	Switches      []SwitchDef `toml:"switches"`
	Accelerometer AccelDef    `toml:"accelerometer"`
}

// LoadMachineConfig parses a machine.toml document.
func LoadMachineConfig(data []byte) (*MachineConfig, error) {
	var mc MachineConfig
	if err := Unmarshal(data, &mc); err != nil {
		return nil, fmt.Errorf("load machine config: %w", err)
	}
	return &mc, nil
}
