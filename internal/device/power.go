// Package device samples the power and network conditions the scheduler
// uses to size its batches. The sysfs/procfs readers fail soft: an
// unreadable source reports the most permissive condition so a desktop or
// container deployment without a battery is treated as mains-powered.
package device

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fieldsync/internal/config"
)

// PowerState is one sample of the device power condition.
type PowerState struct {
	BatteryPercent int
	Charging       bool
	PowerSave      bool
}

// PowerObserver supplies power condition snapshots.
type PowerObserver interface {
	Snapshot() PowerState
}

// NetState is one sample of the network condition.
type NetState struct {
	Connected bool
	Metered   bool
	Interface string
}

// NetworkObserver supplies network condition snapshots.
type NetworkObserver interface {
	Snapshot() NetState
}

const powerSupplyRoot = "/sys/class/power_supply"

// SysfsPower reads battery state from the kernel power-supply class.
type SysfsPower struct {
	root           string
	battery        string
	forcePowerSave bool
}

// NewSysfsPower builds a power observer from device configuration. When no
// battery name is configured the first BAT* entry is used.
func NewSysfsPower(cfg *config.Config) *SysfsPower {
	observer := &SysfsPower{root: powerSupplyRoot}
	if cfg != nil {
		observer.battery = cfg.Device.Battery
		observer.forcePowerSave = cfg.Device.ForcePowerSave
	}
	return observer
}

// Snapshot samples the battery. Missing or unreadable sysfs entries report
// a fully charged, charging device.
func (o *SysfsPower) Snapshot() PowerState {
	state := PowerState{BatteryPercent: 100, Charging: true, PowerSave: o.forcePowerSave}

	battery := o.battery
	if battery == "" {
		battery = o.detectBattery()
	}
	if battery == "" {
		return state
	}

	if capacity, ok := readInt(filepath.Join(o.root, battery, "capacity")); ok {
		state.BatteryPercent = capacity
	}
	if status, ok := readString(filepath.Join(o.root, battery, "status")); ok {
		switch strings.ToLower(status) {
		case "charging", "full":
			state.Charging = true
		default:
			state.Charging = false
		}
	}
	return state
}

func (o *SysfsPower) detectBattery() string {
	entries, err := os.ReadDir(o.root)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "BAT") {
			return entry.Name()
		}
	}
	return ""
}

func readInt(path string) (int, bool) {
	value, ok := readString(path)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func readString(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// StaticPower returns a fixed power condition, used by tests and CLI flags.
type StaticPower struct {
	State PowerState
}

func (s StaticPower) Snapshot() PowerState { return s.State }
