package device

import (
	"bufio"
	"os"
	"strings"

	"fieldsync/internal/config"
)

const procRoutePath = "/proc/net/route"

// ProcNetwork derives the network condition from the kernel routing table:
// connected when a default route exists, metered when that route leaves
// through a configured metered interface (typically a cellular modem).
type ProcNetwork struct {
	routePath     string
	meteredIfaces map[string]struct{}
}

// NewProcNetwork builds a network observer from device configuration.
func NewProcNetwork(cfg *config.Config) *ProcNetwork {
	observer := &ProcNetwork{
		routePath:     procRoutePath,
		meteredIfaces: make(map[string]struct{}),
	}
	if cfg != nil {
		for _, iface := range cfg.Device.MeteredInterfaces {
			observer.meteredIfaces[iface] = struct{}{}
		}
	}
	return observer
}

// Snapshot samples the routing table. An unreadable table reports offline,
// which keeps retry budgets untouched rather than burning attempts into a
// broken network stack.
func (o *ProcNetwork) Snapshot() NetState {
	file, err := os.Open(o.routePath)
	if err != nil {
		return NetState{}
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	// Skip the header row.
	if !scanner.Scan() {
		return NetState{}
	}
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		iface, destination := fields[0], fields[1]
		if destination != "00000000" {
			continue
		}
		_, metered := o.meteredIfaces[iface]
		return NetState{Connected: true, Metered: metered, Interface: iface}
	}
	return NetState{}
}

// StaticNetwork returns a fixed network condition, used by tests and CLI flags.
type StaticNetwork struct {
	State NetState
}

func (s StaticNetwork) Snapshot() NetState { return s.State }
