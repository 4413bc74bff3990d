// Package pool pre-allocates verified exit identities before workers
// start.
//
// Live rotation during a batch makes workers race each other for the
// shared circuit. The pool removes that contention from the hot path:
// it rotates circuits up front, possibly across several daemon
// instances, until a target number of mutually unique, cooldown-clear
// identities are bound to ready-to-use connections. Workers then pull
// pre-verified connections instead of rotating mid-fetch.
package pool
