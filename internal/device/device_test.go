package device

import (
	"os"
	"path/filepath"
	"testing"
)

func writeBattery(t *testing.T, root, name, capacity, status string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "capacity"), []byte(capacity+"\n"), 0o644); err != nil {
		t.Fatalf("write capacity: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0o644); err != nil {
		t.Fatalf("write status: %v", err)
	}
}

func TestSysfsPowerReadsBattery(t *testing.T) {
	root := t.TempDir()
	writeBattery(t, root, "BAT0", "37", "Discharging")

	observer := &SysfsPower{root: root}
	state := observer.Snapshot()
	if state.BatteryPercent != 37 || state.Charging {
		t.Fatalf("state = %+v", state)
	}

	writeBattery(t, root, "BAT0", "90", "Charging")
	state = observer.Snapshot()
	if state.BatteryPercent != 90 || !state.Charging {
		t.Fatalf("state = %+v", state)
	}

	writeBattery(t, root, "BAT0", "100", "Full")
	if state := observer.Snapshot(); !state.Charging {
		t.Fatalf("full battery reported discharging: %+v", state)
	}
}

func TestSysfsPowerFailsSoftWithoutBattery(t *testing.T) {
	observer := &SysfsPower{root: t.TempDir()}
	state := observer.Snapshot()
	if state.BatteryPercent != 100 || !state.Charging {
		t.Fatalf("batteryless host not treated as mains-powered: %+v", state)
	}
}

func TestSysfsPowerForcePowerSave(t *testing.T) {
	observer := &SysfsPower{root: t.TempDir(), forcePowerSave: true}
	if state := observer.Snapshot(); !state.PowerSave {
		t.Fatal("forced power save not reported")
	}
}

const routeHeader = "Iface\tDestination\tGateway\tFlags\tRefCnt\tUse\tMetric\tMask\tMTU\tWindow\tIRTT\n"

func writeRoutes(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "route")
	if err := os.WriteFile(path, []byte(routeHeader+lines), 0o644); err != nil {
		t.Fatalf("write route table: %v", err)
	}
	return path
}

func TestProcNetworkDetectsDefaultRoute(t *testing.T) {
	path := writeRoutes(t,
		"wlan0\t00000000\t0101A8C0\t0003\t0\t0\t600\t00000000\t0\t0\t0\n"+
			"wlan0\t0001A8C0\t00000000\t0001\t0\t0\t600\t00FFFFFF\t0\t0\t0\n")

	observer := &ProcNetwork{routePath: path, meteredIfaces: map[string]struct{}{}}
	state := observer.Snapshot()
	if !state.Connected || state.Metered || state.Interface != "wlan0" {
		t.Fatalf("state = %+v", state)
	}
}

func TestProcNetworkFlagsMeteredInterface(t *testing.T) {
	path := writeRoutes(t, "wwan0\t00000000\t0101A8C0\t0003\t0\t0\t100\t00000000\t0\t0\t0\n")

	observer := &ProcNetwork{routePath: path, meteredIfaces: map[string]struct{}{"wwan0": {}}}
	state := observer.Snapshot()
	if !state.Connected || !state.Metered {
		t.Fatalf("state = %+v", state)
	}
}

func TestProcNetworkReportsOfflineWithoutDefaultRoute(t *testing.T) {
	path := writeRoutes(t, "eth0\t0001A8C0\t00000000\t0001\t0\t0\t100\t00FFFFFF\t0\t0\t0\n")

	observer := &ProcNetwork{routePath: path, meteredIfaces: map[string]struct{}{}}
	if state := observer.Snapshot(); state.Connected {
		t.Fatalf("no default route but connected: %+v", state)
	}

	missing := &ProcNetwork{routePath: filepath.Join(t.TempDir(), "absent"), meteredIfaces: map[string]struct{}{}}
	if state := missing.Snapshot(); state.Connected {
		t.Fatalf("unreadable table but connected: %+v", state)
	}
}
