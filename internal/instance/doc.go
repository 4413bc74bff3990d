// Package instance discovers running Tor daemon instances and assigns
// fetch workers to them.
//
// Multi-instance setups run several daemons on spaced ports (9050/9051,
// 9052/9053, ...). Each daemon has its own circuit, so binding workers
// to distinct instances is the only way to give parallel workers truly
// independent exit identities: a single daemon means one circuit shared
// by everyone.
package instance
