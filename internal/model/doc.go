// Package model defines the core data types shared across torfetch:
// exit identities, fetch attempts and results, Tor daemon instances,
// and the retry policy that governs the fetch engine.
//
// The types here are plain values with no behavior beyond small helpers.
// They are designed to be passed by value or pointer between packages
// rather than hidden behind global state.
package model
