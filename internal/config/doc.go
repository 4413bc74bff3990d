// Package config provides configuration structures and defaults for
// torfetch. It defines the retry policy knobs, Tor daemon discovery
// settings, tracker/database paths, and report preferences, populated
// from CLI flags and an optional .torfetch YAML file.
package config
