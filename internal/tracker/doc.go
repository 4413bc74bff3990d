// Package tracker records exit-identity usage across fetch attempts.
//
// The tracker is the persistent memory of the fetch engine: every
// attempt, success or failure, lands here, and rotation decisions consult
// it to avoid identities that failed recently. State lives in a single
// JSON document keyed by identity string. Persistence is explicit and
// decoupled from mutation so bursts of attempts do not each incur I/O,
// and a corrupt or unreadable file starts fresh rather than failing:
// this system prioritizes availability over perfect history.
package tracker
