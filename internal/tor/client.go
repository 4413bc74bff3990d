package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout is the timeout for checking if the Tor proxy is
// available. This is just a connectivity check against a local daemon,
// not a request through Tor, so it can be short.
const checkProxyTimeout = 2 * time.Second

// Client provides Tor data-channel connectivity. It wraps a SOCKS5
// dialer and builds HTTP clients whose requests route through the proxy.
//
// Design decision: the constructor does not connect to the proxy.
// Creating a Client while Tor is still bootstrapping must work, and
// separating construction from network activity keeps tests simple.
// Call CheckConnection to verify the daemon is actually there.
type Client struct {
	// proxyAddress is the SOCKS5 address in host:port form.
	proxyAddress string

	// dialer is the cached SOCKS5 dialer.
	dialer proxy.Dialer

	// userAgent is injected into every HTTP request.
	userAgent string
}

// NewClient creates a Client for the SOCKS5 proxy at proxyAddress
// (host:port). The address format is validated but the proxy is not
// contacted.
func NewClient(proxyAddress, userAgent string) (*Client, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	// Tor's SOCKS port does not require auth by default.
	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Client{
		proxyAddress: proxyAddress,
		dialer:       dialer,
		userAgent:    userAgent,
	}, nil
}

// isValidProxyAddress checks host:port form without a full URL parser;
// the format has no scheme and no path.
func isValidProxyAddress(address string) bool {
	parts := strings.Split(address, ":")
	if len(parts) != 2 {
		return false
	}

	host, port := parts[0], parts[1]
	if host == "" || port == "" {
		return false
	}

	portNum := 0
	for _, c := range port {
		if c < '0' || c > '9' {
			return false
		}
		portNum = portNum*10 + int(c-'0')
		if portNum > 65535 {
			return false
		}
	}
	return portNum >= 1
}

// SOCKS5 protocol constants used by the connectivity check.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
	socks5CmdConnect   = 0x01
	socks5AddrDomain   = 0x03

	// socks5TestHost is a synthetic hostname for the CONNECT probe.
	// The connection is expected to fail; the point is that the proxy
	// processes the SOCKS5 request at all.
	socks5TestHost = "connectivity-check.invalid"
)

// CheckConnection verifies the proxy is a reachable SOCKS5 daemon by
// performing a protocol handshake: version negotiation, no-auth
// acceptance, and a CONNECT request to a synthetic host. Any well-formed
// SOCKS5 reply (including a failure code for the bogus host) counts as a
// working proxy.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Version negotiation: offer no-auth only.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if authResp[0] != socks5Version || authResp[1] == socks5AuthNoAccept || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	// CONNECT to a synthetic host; any SOCKS5-framed reply is fine.
	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrDomain, byte(len(socks5TestHost))}
	req = append(req, []byte(socks5TestHost)...)
	req = append(req, 0x00, 0x50) // port 80
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}

	return ProxyStatusOK
}

// NewHTTPClient builds an HTTP client routed through the proxy with the
// given request timeout.
//
// Each call builds a fresh transport. This matters for circuit rotation:
// a pooled connection reused after SIGNAL NEWNYM still rides the old
// circuit, so after every rotation the caller must discard the old
// client and request a new one here.
func (c *Client) NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
			return c.dialer.Dial(network, addr)
		},
		// Circuits are a limited resource; keep the idle pool small.
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		// Compressed response sizes are a side channel; for traffic
		// that exists to be unlinkable, the bandwidth is not worth it.
		DisableCompression: true,
	}

	return &http.Client{
		Transport: &userAgentTransport{base: transport, userAgent: c.userAgent},
		Timeout:   timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// Dial establishes a TCP connection through the proxy.
func (c *Client) Dial(network, address string) (net.Conn, error) {
	return c.dialer.Dial(network, address)
}

// DialContext is Dial with context support. The proxy.Dialer interface
// has no context variant, so the dial runs in a goroutine; on
// cancellation the underlying attempt may continue briefly.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProxyAddress returns the configured proxy address.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// userAgentTransport injects the configured User-Agent into every
// request, including redirects, without mutating the caller's request.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
