// Package config provides settings loading and validation for gobridge
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default settings values
const (
	// DefaultPollTimeout bounds each per-port receive. The event loop wakes
	// at least every port-count × poll-timeout.
	DefaultPollTimeout = 1 * time.Millisecond

	// DefaultAnnounceInterval is how often the current BPDU is re-broadcast.
	DefaultAnnounceInterval = 2 * time.Second

	// DefaultStartupWindow is the one-shot Learning period after engine start.
	DefaultStartupWindow = 1 * time.Second

	// MinStartupWindow / MaxStartupWindow bound the Learning period.
	MinStartupWindow = 500 * time.Millisecond
	MaxStartupWindow = 2 * time.Second

	// DefaultTrapCommunity is the SNMP community used for topology traps.
	DefaultTrapCommunity = "public"

	// StorageDisabled is the sentinel database path meaning "do not persist".
	StorageDisabled = "disabled"
)

// Duration wraps time.Duration with YAML support for values like "2s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Settings holds the bridge runtime configuration
type Settings struct {
	PollTimeout      Duration `yaml:"poll_timeout"`
	AnnounceInterval Duration `yaml:"announce_interval"`
	StartupWindow    Duration `yaml:"startup_window"`

	// Database is a bbolt path for the topology event journal, or "disabled".
	Database string `yaml:"database"`

	// TrapReceivers lists SNMP trap destinations as host or host:port.
	TrapReceivers []string `yaml:"trap_receivers"`
	TrapCommunity string   `yaml:"trap_community"`

	// APIListen is the HTTP status API address, empty to disable.
	APIListen string `yaml:"api_listen"`

	// Debug is the global debug level (0-3).
	Debug int `yaml:"debug"`

	// DebugAreas overrides the global level per engine area (STP, FORWARD, LOOP).
	DebugAreas map[string]int `yaml:"debug_areas"`
}

// Defaults returns the settings used when no file or flag overrides them.
func Defaults() Settings {
	return Settings{
		PollTimeout:      Duration(DefaultPollTimeout),
		AnnounceInterval: Duration(DefaultAnnounceInterval),
		StartupWindow:    Duration(DefaultStartupWindow),
		Database:         StorageDisabled,
		TrapCommunity:    DefaultTrapCommunity,
		Debug:            1,
	}
}

// Load reads a YAML settings file over the defaults.
func Load(path string) (Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return s, s.Validate()
}

// Validate checks timer bounds and debug levels.
func (s *Settings) Validate() error {
	if time.Duration(s.PollTimeout) <= 0 {
		return fmt.Errorf("poll_timeout must be positive, got %s", time.Duration(s.PollTimeout))
	}
	if time.Duration(s.AnnounceInterval) <= 0 {
		return fmt.Errorf("announce_interval must be positive, got %s", time.Duration(s.AnnounceInterval))
	}
	window := time.Duration(s.StartupWindow)
	if window < MinStartupWindow || window > MaxStartupWindow {
		return fmt.Errorf("startup_window must be within [%s, %s], got %s", MinStartupWindow, MaxStartupWindow, window)
	}
	if s.Debug < 0 || s.Debug > 3 {
		return fmt.Errorf("debug level must be 0-3, got %d", s.Debug)
	}
	for area, level := range s.DebugAreas {
		if level < 0 || level > 3 {
			return fmt.Errorf("debug level for %s must be 0-3, got %d", area, level)
		}
	}
	return nil
}

// StorageEnabled reports whether an event journal path is configured.
func (s *Settings) StorageEnabled() bool {
	return s.Database != "" && s.Database != StorageDisabled
}
