package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched for in the
// current directory and then the home directory.
const DefaultConfigFile = ".torfetch"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// Duration is a time.Duration that YAML-decodes from strings like "30m"
// or "2h". yaml.v3 only decodes integers into time.Duration, which would
// force users to write cooldowns in nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// File is the on-disk shape of the .torfetch configuration file. Every
// field is optional; zero values leave the corresponding Config default
// untouched.
type File struct {
	// Host overrides the Tor daemon host.
	Host string `yaml:"host,omitempty"`

	// ControlPassword is the Tor control-port password.
	ControlPassword string `yaml:"controlPassword,omitempty"`

	// Languages overrides the caption language preference order.
	Languages []string `yaml:"languages,omitempty"`

	// Cooldown overrides the identity cooldown period, e.g. "1h".
	Cooldown Duration `yaml:"cooldown,omitempty"`

	// MaxRetries overrides the primary attempt budget.
	MaxRetries int `yaml:"maxRetries,omitempty"`

	// IdentityProbeURL overrides the exit-identity echo endpoint.
	IdentityProbeURL string `yaml:"identityProbeURL,omitempty"`

	// UserAgent overrides the HTTP User-Agent.
	UserAgent string `yaml:"userAgent,omitempty"`

	// TrackerFile overrides the identity-tracking JSON path.
	TrackerFile string `yaml:"trackerFile,omitempty"`

	// DBDir overrides the attempt-history database directory.
	DBDir string `yaml:"dbDir,omitempty"`
}

// LoadConfigFile loads the YAML configuration file at path.
// If the file does not exist, it returns ErrConfigNotFound; callers
// decide whether that matters based on whether the path was explicit.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindConfigFile searches for the configuration file:
// an explicit path wins, then .torfetch in the current directory,
// then .torfetch in the home directory. Returns "" when none exists.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// Apply overlays the file's non-zero values onto cfg.
func (f *File) Apply(cfg *Config) {
	if f.Host != "" {
		cfg.Host = f.Host
	}
	if f.ControlPassword != "" {
		cfg.ControlPassword = f.ControlPassword
	}
	if len(f.Languages) > 0 {
		cfg.Languages = f.Languages
	}
	if f.Cooldown > 0 {
		cfg.Policy.Cooldown = time.Duration(f.Cooldown)
	}
	if f.MaxRetries > 0 {
		cfg.Policy.MaxRetries = f.MaxRetries
	}
	if f.IdentityProbeURL != "" {
		cfg.IdentityProbeURL = f.IdentityProbeURL
	}
	if f.UserAgent != "" {
		cfg.UserAgent = f.UserAgent
	}
	if f.TrackerFile != "" {
		cfg.TrackerFile = f.TrackerFile
	}
	if f.DBDir != "" {
		cfg.DBDir = f.DBDir
	}
}
