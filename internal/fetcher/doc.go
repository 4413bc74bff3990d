// Package fetcher implements the retry engine that drives transcript
// fetches through the Tor data channel.
//
// One Engine call handles one video id: it checks availability, attempts
// the fetch through the current circuit, classifies failures, rotates the
// circuit between attempts while avoiding recently failed identities,
// backs off with jitter, and finally falls back to an independent
// secondary fetch path. Every attempt is recorded in the identity
// tracker, resolved identity or not.
//
// The engine performs no internal fan-out. Concurrency is imposed by the
// caller running several Engine invocations in parallel; within one fetch
// the attempts are strictly sequential.
package fetcher
