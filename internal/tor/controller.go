package tor

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"
)

// Control-channel timing defaults.
const (
	// minSettleTime is the floor on the post-NEWNYM wait. Signaling a
	// new circuit does not make it instantly usable; requests issued
	// before the circuit is built ride the old one or fail.
	minSettleTime = 3 * time.Second

	// defaultConnectRetries is how many times a refused control port is
	// retried before the controller degrades.
	defaultConnectRetries = 3

	// defaultRetryDelay is the wait between control connection retries.
	defaultRetryDelay = 2 * time.Second

	// controlDialTimeout bounds each control-port dial.
	controlDialTimeout = 5 * time.Second

	// controlIOTimeout bounds each control command round-trip.
	controlIOTimeout = 10 * time.Second
)

// ControllerState tracks whether rotation is still possible.
type ControllerState int

const (
	// StateOperational means the control channel is usable.
	StateOperational ControllerState = iota

	// StateDegraded means the control channel failed permanently.
	// The transition is one-way for the process lifetime: repeated
	// reconnect storms against a dead control port help nobody, and the
	// engine can keep fetching on a fixed exit identity.
	StateDegraded
)

// String returns a human-readable state name.
func (s ControllerState) String() string {
	switch s {
	case StateOperational:
		return "operational"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// IdentityResolver reports the externally visible exit identity of the
// current circuit. Implementations probe an echo service through the
// data channel.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context) (string, error)
}

// Controller drives one Tor daemon's control channel. It authenticates,
// signals NEWNYM to request new circuits, and tracks its own degraded
// state. A Controller serializes its rotations internally; when several
// workers share one daemon instance the caller must additionally hold
// the per-instance coordination lock, because a rotation changes the
// circuit for every connection on that daemon.
type Controller struct {
	mu sync.Mutex

	// addr is the control channel address in host:port form.
	addr string

	// password authenticates AUTHENTICATE; empty sends a bare
	// AUTHENTICATE, which default Tor configurations accept.
	password string

	// state is the one-way Operational -> Degraded flag.
	state ControllerState

	// resolver probes the exit identity after a rotation.
	resolver IdentityResolver

	// onNewCircuit runs after every NEWNYM signal. The engine uses it
	// to tear down and rebuild its HTTP transport: a pooled connection
	// reused after the signal still rides the old circuit.
	onNewCircuit func()

	// settle is the post-NEWNYM wait, floored at minSettleTime.
	settle time.Duration

	connectRetries int
	retryDelay     time.Duration

	logger *slog.Logger

	// sleep and dial are indirected for tests.
	sleep func(time.Duration)
	dial  func(ctx context.Context, addr string) (net.Conn, error)
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithPassword sets the control-port password.
func WithPassword(password string) ControllerOption {
	return func(c *Controller) {
		c.password = password
	}
}

// WithSettleTime sets the post-rotation settle wait. Values below the
// 3-second floor are raised to it.
func WithSettleTime(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.settle = d
	}
}

// WithOnNewCircuit registers the transport-rebuild hook run after every
// NEWNYM signal.
func WithOnNewCircuit(fn func()) ControllerOption {
	return func(c *Controller) {
		c.onNewCircuit = fn
	}
}

// WithControllerLogger sets the logger. Defaults to slog.Default().
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// withSleep overrides the sleep function. Test-only.
func withSleep(fn func(time.Duration)) ControllerOption {
	return func(c *Controller) {
		c.sleep = fn
	}
}

// NewController creates a Controller for the control channel at addr
// (host:port) using resolver to confirm rotated identities.
func NewController(addr string, resolver IdentityResolver, opts ...ControllerOption) *Controller {
	c := &Controller{
		addr:           addr,
		state:          StateOperational,
		resolver:       resolver,
		settle:         minSettleTime,
		connectRetries: defaultConnectRetries,
		retryDelay:     defaultRetryDelay,
		sleep:          time.Sleep,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			dialCtx, cancel := context.WithTimeout(ctx, controlDialTimeout)
			defer cancel()
			return d.DialContext(dialCtx, "tcp", addr)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.settle < minSettleTime {
		c.settle = minSettleTime
	}
	return c
}

// State returns the controller state.
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// degrade transitions to Degraded. One-way; later Rotate calls return
// ErrRotationDisabled without touching the network.
func (c *Controller) degrade(reason string, err error) {
	c.state = StateDegraded
	c.logger.Warn("circuit rotation disabled for process lifetime",
		"reason", reason,
		"control_addr", c.addr,
		"error", err,
	)
}

// Rotate requests a new circuit, avoiding the identities in avoid when
// possible. It returns the confirmed new identity, or an empty string
// with nil error when the rotation happened but the identity probe
// failed (tentative success: the rotation occurred, the identity simply
// could not be confirmed).
//
// When maxAttempts rotations all land inside the avoid set, the last
// identity is returned together with ErrAvoidedIdentity: accepting the
// least-bad option beats stalling indefinitely, but the caller should
// compensate with extra delay.
//
// Channel-level failures degrade the controller: connection errors after
// the retry budget, authentication rejections and protocol violations
// immediately.
func (c *Controller) Rotate(ctx context.Context, avoid map[string]struct{}, maxAttempts int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDegraded {
		return "", ErrRotationDisabled
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	reader := textproto.NewReader(bufio.NewReader(conn))
	if err := c.authenticate(conn, reader); err != nil {
		return "", err
	}

	if len(avoid) > 0 {
		c.logger.Debug("rotating circuit with avoid set",
			"avoided_identities", len(avoid),
		)
	}

	lastIdentity := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if err := c.command(conn, reader, "SIGNAL NEWNYM"); err != nil {
			c.degrade("protocol error on SIGNAL NEWNYM", err)
			return "", fmt.Errorf("%w: %v", ErrControlProtocol, err)
		}

		if c.onNewCircuit != nil {
			c.onNewCircuit()
		}

		c.sleep(c.settle)

		identity, err := c.resolver.ResolveIdentity(ctx)
		if err != nil {
			// Tentative success: the rotation occurred, the identity
			// simply could not be confirmed.
			c.logger.Warn("circuit rotated but identity unconfirmed",
				"error", err,
			)
			return "", nil
		}
		lastIdentity = identity

		if _, avoided := avoid[identity]; avoided {
			c.logger.Debug("rotation landed on avoided identity, retrying",
				"identity", identity,
				"attempt", attempt,
				"max_attempts", maxAttempts,
			)
			continue
		}

		c.logger.Debug("circuit rotated",
			"identity", identity,
			"attempts", attempt,
		)
		return identity, nil
	}

	c.logger.Warn("rotation exhausted avoid attempts, accepting avoided identity",
		"identity", lastIdentity,
		"attempts", maxAttempts,
	)
	return lastIdentity, ErrAvoidedIdentity
}

// connect dials the control port, retrying connection-level failures a
// small fixed number of times. Exhaustion degrades the controller.
func (c *Controller) connect(ctx context.Context) (net.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.connectRetries; attempt++ {
		conn, err := c.dial(ctx, c.addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if attempt < c.connectRetries {
			c.logger.Debug("tor control port not ready, retrying",
				"attempt", attempt,
				"max_attempts", c.connectRetries,
			)
			c.sleep(c.retryDelay)
		}
	}

	c.degrade("control port unreachable", lastErr)
	return nil, fmt.Errorf("%w: %v", ErrControlUnreachable, lastErr)
}

// authenticate issues AUTHENTICATE with or without the password.
// Rejection is not retried; a wrong password stays wrong.
func (c *Controller) authenticate(conn net.Conn, reader *textproto.Reader) error {
	cmd := "AUTHENTICATE"
	if c.password != "" {
		cmd = fmt.Sprintf("AUTHENTICATE %q", c.password)
	}
	if err := c.command(conn, reader, cmd); err != nil {
		c.degrade("authentication rejected", err)
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return nil
}

// command sends one control command and requires a 250 reply.
func (c *Controller) command(conn net.Conn, reader *textproto.Reader, cmd string) error {
	if err := conn.SetDeadline(time.Now().Add(controlIOTimeout)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(conn, "%s\r\n", cmd); err != nil {
		return err
	}
	line, err := reader.ReadLine()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "250") {
		return fmt.Errorf("control reply %q", line)
	}
	return nil
}
