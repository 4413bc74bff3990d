package tor

import "errors"

// Connectivity and control-channel errors. Specific error values rather
// than generic wrapping let callers distinguish failure modes: retry on
// timeout, fail fast on a wrong proxy type, stop rotating after the
// controller degrades.
var (
	// ErrProxyNotTor is returned when the configured proxy address
	// responds but does not speak SOCKS5 the way a Tor daemon does.
	ErrProxyNotTor = errors.New("proxy is not a Tor SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection can be
	// established to the proxy address. Tor is likely not running.
	ErrProxyCannotConnect = errors.New("cannot connect to Tor proxy")

	// ErrProxyTimeout is returned when the proxy connection times out.
	ErrProxyTimeout = errors.New("timeout connecting to Tor proxy")

	// ErrInvalidProxyAddress is returned when the proxy address is not
	// in host:port form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrRotationDisabled is returned by Rotate after the controller has
	// entered degraded mode. Degradation is one-way for the process
	// lifetime; callers fall back to a fixed exit identity.
	ErrRotationDisabled = errors.New("circuit rotation disabled: control channel degraded")

	// ErrControlUnreachable is returned when the control port cannot be
	// reached after the retry budget. The controller degrades.
	ErrControlUnreachable = errors.New("tor control port unreachable")

	// ErrAuthenticationFailed is returned when AUTHENTICATE is rejected.
	// Not retried: a wrong password stays wrong. The controller degrades.
	ErrAuthenticationFailed = errors.New("tor control authentication failed")

	// ErrControlProtocol is returned on an unexpected control-channel
	// response. The controller degrades.
	ErrControlProtocol = errors.New("unexpected tor control protocol response")

	// ErrAvoidedIdentity is returned alongside an identity when rotation
	// ran out of attempts and had to accept an identity from the avoid
	// set. Callers treat this as a soft failure: the rotation happened,
	// but extra rate-limit delay is warranted.
	ErrAvoidedIdentity = errors.New("rotation landed on an avoided identity")
)

// ProxyStatus is the result of checking the SOCKS5 data channel.
type ProxyStatus int

const (
	// ProxyStatusOK indicates a working Tor SOCKS5 proxy.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates something answered that is not a
	// Tor SOCKS5 proxy.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates no connection could be made.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the connection attempt timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not Tor)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotTor
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
