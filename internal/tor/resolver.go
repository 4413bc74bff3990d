package tor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// resolveTimeout bounds the identity probe. The probe is a tiny request
// to an echo service; if it cannot finish quickly the circuit is not
// worth confirming anyway.
const resolveTimeout = 10 * time.Second

// maxIdentityLength guards against an echo service returning garbage.
// An IPv6 address tops out at 45 characters.
const maxIdentityLength = 64

// Resolver probes the externally visible exit identity by asking an echo
// service ("what is my IP") through the data channel. The HTTP client is
// obtained per probe through clientFunc so the probe always rides the
// current transport, including right after a rotation rebuilt it.
type Resolver struct {
	// probeURL is the echo endpoint, e.g. https://api.ipify.org.
	probeURL string

	// clientFunc returns the HTTP client to probe through.
	clientFunc func() *http.Client
}

// NewResolver creates a Resolver against probeURL using clients from
// clientFunc.
func NewResolver(probeURL string, clientFunc func() *http.Client) *Resolver {
	return &Resolver{
		probeURL:   probeURL,
		clientFunc: clientFunc,
	}
}

// ResolveIdentity returns the current exit identity. Errors are returned
// explicitly rather than swallowed; callers decide whether to record the
// attempt under the unknown identity.
func (r *Resolver) ResolveIdentity(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.probeURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build identity probe request: %w", err)
	}

	resp, err := r.clientFunc().Do(req)
	if err != nil {
		return "", fmt.Errorf("identity probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity probe returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdentityLength+1))
	if err != nil {
		return "", fmt.Errorf("failed to read identity probe response: %w", err)
	}

	identity := strings.TrimSpace(string(body))
	if identity == "" || len(identity) > maxIdentityLength {
		return "", fmt.Errorf("identity probe returned implausible body (%d bytes)", len(body))
	}
	return identity, nil
}
