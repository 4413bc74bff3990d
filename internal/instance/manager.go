package instance

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	"torfetch/internal/model"
)

// DiscoverOptions configures instance discovery.
type DiscoverOptions struct {
	// Host is the daemon host, normally 127.0.0.1.
	Host string

	// BaseSocksPort is the first SOCKS port to probe.
	BaseSocksPort int

	// BaseControlPort is the control port paired with BaseSocksPort.
	BaseControlPort int

	// PortIncrement is the port gap between instances.
	PortIncrement int

	// MaxInstances caps how many ports are probed.
	MaxInstances int

	// ProbeTimeout bounds each port probe.
	ProbeTimeout time.Duration

	// Logger receives discovery progress. Defaults to slog.Default().
	Logger *slog.Logger

	// probe overrides the port check in tests.
	probe func(host string, port int, timeout time.Duration) bool
}

// Manager holds the discovered instance list and assigns workers to
// instances. Discovery runs once; the manager is immutable afterward,
// so Assign is safe for concurrent use without locking.
type Manager struct {
	instances []model.Instance
	logger    *slog.Logger
}

// Discover probes sequential SOCKS ports starting at BaseSocksPort,
// spaced by PortIncrement, and stops at the first unreachable port:
// instances are assumed contiguous, so a gap means no more exist.
// When no port answers, a single default instance is synthesized so the
// system still functions against a daemon that has not started yet.
func Discover(opts DiscoverOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	probe := opts.probe
	if probe == nil {
		probe = isPortOpen
	}

	logger.Debug("detecting tor instances",
		"base_socks_port", opts.BaseSocksPort,
		"max_instances", opts.MaxInstances,
	)

	var discovered []model.Instance
	for i := 0; i < opts.MaxInstances; i++ {
		inst := model.Instance{
			ID:          i + 1,
			SocksPort:   opts.BaseSocksPort + i*opts.PortIncrement,
			ControlPort: opts.BaseControlPort + i*opts.PortIncrement,
			Host:        opts.Host,
		}

		if !probe(opts.Host, inst.SocksPort, opts.ProbeTimeout) {
			break
		}

		logger.Debug("detected tor instance",
			"instance_id", inst.ID,
			"socks_port", inst.SocksPort,
			"control_port", inst.ControlPort,
		)
		discovered = append(discovered, inst)
	}

	if len(discovered) == 0 {
		logger.Warn("no tor instances detected, using default",
			"socks_port", opts.BaseSocksPort,
			"control_port", opts.BaseControlPort,
		)
		discovered = []model.Instance{{
			ID:          1,
			SocksPort:   opts.BaseSocksPort,
			ControlPort: opts.BaseControlPort,
			Host:        opts.Host,
		}}
	}

	return &Manager{instances: discovered, logger: logger}
}

// NewManager builds a Manager around an explicit instance list, used
// when the daemon address is known (external proxy flag, embedded
// daemon) and discovery would be wrong.
func NewManager(instances []model.Instance, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{instances: instances, logger: logger}
}

// isPortOpen reports whether a TCP connection to host:port succeeds
// within the timeout.
func isPortOpen(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Assign returns the instance for the given worker, round-robin over
// the discovered list. Pure modulo arithmetic: the same worker id always
// maps to the same instance.
func (m *Manager) Assign(workerID int) model.Instance {
	return m.instances[workerID%len(m.instances)]
}

// Instances returns a copy of the discovered instance list.
func (m *Manager) Instances() []model.Instance {
	out := make([]model.Instance, len(m.instances))
	copy(out, m.instances)
	return out
}

// Count returns the number of discovered instances.
func (m *Manager) Count() int {
	return len(m.instances)
}

// MultiInstance reports whether more than one instance is available.
func (m *Manager) MultiInstance() bool {
	return len(m.instances) > 1
}
