// Package tor provides Tor daemon connectivity for torfetch.
//
// It covers both channels of a Tor daemon: the SOCKS5 data channel
// (Client, which wraps a golang.org/x/net/proxy dialer and builds HTTP
// clients routed through it) and the control channel (Controller, which
// speaks the AUTHENTICATE / SIGNAL NEWNYM line protocol to rotate
// circuits). Resolver probes the externally visible exit identity through
// a given HTTP client.
//
// The package also supports running an embedded Tor daemon via tornago
// for setups without an external daemon.
//
// Everything here is designed for dependency injection: create a Client
// or Controller and pass it to components that need it rather than
// sharing global state.
package tor
