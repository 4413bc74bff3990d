package tor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// Embedded manages an embedded Tor daemon via tornago, for setups
// without an external daemon. Bootstrapping takes one to three minutes:
// the daemon has to download directory information and build initial
// circuits before the SOCKS and control listeners are useful.
//
// An embedded daemon is always a single instance; multi-instance
// discovery does not apply to it.
type Embedded struct {
	// process is the running daemon, nil before Start and after Stop.
	process *tornago.TorProcess

	// socksAddr and controlAddr are set after a successful Start.
	socksAddr   string
	controlAddr string

	// startupTimeout bounds the bootstrap wait.
	startupTimeout time.Duration
}

// EmbeddedOption configures an Embedded daemon manager.
type EmbeddedOption func(*Embedded)

// WithStartupTimeout sets the maximum bootstrap wait.
func WithStartupTimeout(timeout time.Duration) EmbeddedOption {
	return func(e *Embedded) {
		e.startupTimeout = timeout
	}
}

// NewEmbedded creates an embedded daemon manager. Call Start to launch.
func NewEmbedded(opts ...EmbeddedOption) *Embedded {
	e := &Embedded{
		startupTimeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon and blocks until it bootstraps or the
// timeout expires. ":0" port specs let the OS pick free ports, so an
// embedded daemon never collides with an external one.
func (e *Embedded) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = process.Stop() //nolint:errcheck // Best effort cleanup
		return ctx.Err()
	default:
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	e.controlAddr = process.ControlAddr()
	return nil
}

// Stop shuts the daemon down. Safe to call repeatedly or before Start.
func (e *Embedded) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// SocksAddr returns the data-channel address, empty when not running.
func (e *Embedded) SocksAddr() string {
	return e.socksAddr
}

// ControlAddr returns the control-channel address, empty when not running.
func (e *Embedded) ControlAddr() string {
	return e.controlAddr
}

// IsRunning reports whether the daemon is up.
func (e *Embedded) IsRunning() bool {
	return e.process != nil
}

// NewClient creates a data-channel Client against the embedded daemon.
func (e *Embedded) NewClient(userAgent string) (*Client, error) {
	if !e.IsRunning() {
		return nil, errors.New("embedded Tor daemon is not running")
	}
	return NewClient(e.socksAddr, userAgent)
}
