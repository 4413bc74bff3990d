// Package batch runs transcript fetches for many videos concurrently.
//
// Each video is processed by one worker slot; slots are bound to daemon
// instances round-robin so that, when several instances run, parallel
// workers ride independent circuits. Workers sharing one instance share
// a per-instance rotation lock, because a rotation changes the circuit
// for every connection on that instance.
package batch
