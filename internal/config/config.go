package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"torfetch/internal/model"
)

// Default configuration values. The Tor-facing defaults mirror the
// standard single-daemon setup (SOCKS 9050, control 9051); multi-instance
// setups space daemons two ports apart, which is where the increment of 2
// comes from.
const (
	// DefaultHost is the Tor daemon host. We use 127.0.0.1 instead of
	// localhost to avoid DNS resolution and IPv6 ambiguity.
	DefaultHost = "127.0.0.1"

	// DefaultBaseSocksPort is the first SOCKS port probed during
	// instance discovery.
	DefaultBaseSocksPort = 9050

	// DefaultBaseControlPort is the first control port. Control ports
	// sit one above the paired SOCKS port.
	DefaultBaseControlPort = 9051

	// DefaultPortIncrement is the port gap between daemon instances.
	DefaultPortIncrement = 2

	// DefaultMaxInstances caps how many ports discovery probes.
	DefaultMaxInstances = 10

	// DefaultProbeTimeout is the per-port timeout during discovery.
	// Probes hit the loopback interface, so a short timeout is enough.
	DefaultProbeTimeout = time.Second

	// DefaultWorkers is the number of concurrent fetch workers in
	// batch mode.
	DefaultWorkers = 3

	// DefaultIdentityProbeURL is the echo service used to resolve the
	// current exit identity.
	DefaultIdentityProbeURL = "https://api.ipify.org"

	// DefaultUserAgent identifies torfetch in HTTP requests.
	DefaultUserAgent = "torfetch/1.0"

	// DefaultTorStartupTimeout is the maximum wait for the embedded Tor
	// daemon to bootstrap. First bootstrap downloads directory info and
	// builds circuits, which routinely takes over a minute.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultTrackerFileName is the identity-tracking JSON file name
	// inside the data directory.
	DefaultTrackerFileName = "daily_exit_tracking.json"

	// AppName is used for XDG directory paths.
	AppName = "torfetch"
)

// DefaultLanguages is the caption language preference when none is given.
func DefaultLanguages() []string { return []string{"en"} }

// Config holds all options for a torfetch run. It is populated from CLI
// flags plus the optional .torfetch file and passed by dependency
// injection; nothing in the program reads configuration from globals.
type Config struct {
	// Host is the Tor daemon host for discovery and connections.
	Host string

	// BaseSocksPort is the first SOCKS port probed during discovery.
	BaseSocksPort int

	// BaseControlPort is the first control port.
	BaseControlPort int

	// PortIncrement is the port spacing between instances.
	PortIncrement int

	// MaxInstances caps instance discovery.
	MaxInstances int

	// ProbeTimeout is the per-port discovery timeout.
	ProbeTimeout time.Duration

	// ExternalTor, when non-empty, is an explicit "host:port" SOCKS
	// address to use instead of discovery. The control port is assumed
	// to be one above the SOCKS port.
	ExternalTor string

	// EmbeddedTor starts an embedded Tor daemon via tornago instead of
	// discovering an external one.
	EmbeddedTor bool

	// TorStartupTimeout bounds embedded daemon bootstrap.
	TorStartupTimeout time.Duration

	// ControlPassword authenticates to the control port. Empty means
	// the daemon accepts unauthenticated AUTHENTICATE, which is the
	// default Tor configuration.
	ControlPassword string

	// Languages is the caption language preference order.
	Languages []string

	// Policy is the retry policy applied to each fetch.
	Policy model.RetryPolicy

	// Workers is the batch-mode concurrency.
	Workers int

	// UsePool pre-allocates unique exit identities before workers start.
	UsePool bool

	// PoolSize is the pre-allocation target; zero means Workers.
	PoolSize int

	// PoolTimeout bounds pool pre-allocation.
	PoolTimeout time.Duration

	// IdentityProbeURL is the exit-identity echo endpoint.
	IdentityProbeURL string

	// UserAgent is sent with all HTTP requests.
	UserAgent string

	// TrackerFile is the identity-tracking JSON path. Empty selects
	// the XDG data directory default.
	TrackerFile string

	// DBDir is the SQLite attempt-history directory. Empty disables
	// history persistence.
	DBDir string

	// DirectFallback enables the direct-connection secondary fetcher
	// after primary exhaustion.
	DirectFallback bool

	// JSONReport selects JSON report output. Mutually exclusive with
	// MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown report output.
	MarkdownReport bool

	// ReportFile, when set, writes the report there instead of stdout.
	ReportFile string

	// Verbose enables slog.LevelDebug output.
	Verbose bool

	// VideoIDs are the resource identifiers to fetch.
	VideoIDs []string
}

// NewConfig returns a Config with all defaults applied. Many defaults are
// non-zero, so relying on zero values would be error-prone; this also
// documents what the defaults are.
func NewConfig() *Config {
	return &Config{
		Host:              DefaultHost,
		BaseSocksPort:     DefaultBaseSocksPort,
		BaseControlPort:   DefaultBaseControlPort,
		PortIncrement:     DefaultPortIncrement,
		MaxInstances:      DefaultMaxInstances,
		ProbeTimeout:      DefaultProbeTimeout,
		TorStartupTimeout: DefaultTorStartupTimeout,
		Languages:         DefaultLanguages(),
		Policy:            model.DefaultRetryPolicy(),
		Workers:           DefaultWorkers,
		PoolTimeout:       2 * time.Minute,
		IdentityProbeURL:  DefaultIdentityProbeURL,
		UserAgent:         DefaultUserAgent,
		DirectFallback:    true,
	}
}

// XDGDataDir returns the XDG data directory for torfetch
// (~/.local/share/torfetch on Linux).
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for torfetch.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// TrackerPath returns the effective identity-tracking file path.
func (c *Config) TrackerPath() string {
	if c.TrackerFile != "" {
		return c.TrackerFile
	}
	return filepath.Join(XDGDataDir(), DefaultTrackerFileName)
}

// EffectivePoolSize returns PoolSize, defaulting to Workers.
func (c *Config) EffectivePoolSize() int {
	if c.PoolSize > 0 {
		return c.PoolSize
	}
	return c.Workers
}

// Validate checks the configuration and returns the first problem found.
// It runs once after flag parsing so later code can assume a sane config.
func (c *Config) Validate() error {
	if len(c.VideoIDs) == 0 {
		return ErrNoVideoID
	}
	if c.Policy.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}
	if c.Policy.BaseTimeout <= 0 || c.Policy.MaxTimeout < c.Policy.BaseTimeout {
		return ErrInvalidTimeout
	}
	if c.Policy.Cooldown < 0 {
		return ErrInvalidCooldown
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if len(c.Languages) == 0 {
		return ErrNoLanguages
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.ExternalTor != "" && c.EmbeddedTor {
		return ErrConflictingTorModes
	}
	return nil
}
