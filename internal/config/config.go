// Package config loads, validates and publishes the daemon configuration.
// The configuration file is authored by the external control application;
// this package owns parsing, validation, per-application resolution and the
// hot-reload watch.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/mgrindstad/replayd/internal/domain"
)

const (
	MinBufferLengthSecs     = 5
	MaxBufferLengthSecs     = 120
	DefaultBufferLengthSecs = 15
	DefaultHotkey           = "F8"
)

// Application is one watched-application entry. Entries are ordered; the
// first entry whose executable is found running wins.
type Application struct {
	DisplayName    string `toml:"display_name"`
	ExecutableName string `toml:"executable_name"`
	ExecutablePath string `toml:"executable_path,omitempty"` // informational; matching is by name

	// Optional per-application overrides. Omitted overrides fall back to
	// the global values.
	BufferLengthSecs *int    `toml:"buffer_length_secs,omitempty"`
	Hotkey           *string `toml:"hotkey,omitempty"`
}

// Config is the full daemon configuration. Published as an immutable
// snapshot; never mutated after load.
type Config struct {
	BufferLengthSecs int           `toml:"buffer_length_secs"`
	Hotkey           string        `toml:"hotkey"`
	ClipOutputDir    string        `toml:"clip_output_dir"`
	Applications     []Application `toml:"applications,omitempty"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		BufferLengthSecs: DefaultBufferLengthSecs,
		Hotkey:           DefaultHotkey,
		ClipOutputDir:    filepath.Join(home, "Videos", "Replayd"),
	}
}

// Load reads, parses and validates the configuration file. Fields absent
// from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewConfigError("read config file", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, domain.NewConfigError("parse config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrCreate loads the configuration, writing the defaults to disk first
// if no file exists yet (first-run provisioning).
func LoadOrCreate(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

// Save writes the configuration, creating parent directories as needed.
// Used only for first-run provisioning; the external control application
// owns the file afterwards.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.NewConfigError("create config directory", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return domain.NewConfigError("encode config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.NewConfigError("write config file", err)
	}
	return nil
}

// Validate rejects configurations that would misbehave at runtime. A
// rejected update keeps the previously accepted configuration active.
func (c *Config) Validate() error {
	if c.BufferLengthSecs < MinBufferLengthSecs || c.BufferLengthSecs > MaxBufferLengthSecs {
		return domain.NewConfigError("validate",
			fmt.Errorf("buffer_length_secs %d outside [%d,%d]",
				c.BufferLengthSecs, MinBufferLengthSecs, MaxBufferLengthSecs))
	}
	if strings.TrimSpace(c.ClipOutputDir) == "" {
		return domain.NewConfigError("validate", errors.New("clip_output_dir is empty"))
	}
	for i, app := range c.Applications {
		if strings.TrimSpace(app.DisplayName) == "" {
			return domain.NewConfigError("validate",
				fmt.Errorf("applications[%d]: display_name is empty", i))
		}
		if strings.TrimSpace(app.ExecutableName) == "" {
			return domain.NewConfigError("validate",
				fmt.Errorf("applications[%d]: executable_name is empty", i))
		}
		if app.BufferLengthSecs != nil &&
			(*app.BufferLengthSecs < MinBufferLengthSecs || *app.BufferLengthSecs > MaxBufferLengthSecs) {
			return domain.NewConfigError("validate",
				fmt.Errorf("applications[%d]: buffer_length_secs %d outside [%d,%d]",
					i, *app.BufferLengthSecs, MinBufferLengthSecs, MaxBufferLengthSecs))
		}
	}
	return nil
}

// FindApplication returns the first entry matching the executable name
// (case-insensitive), or nil when the executable is not configured.
func (c *Config) FindApplication(executableName string) *Application {
	for _, app := range c.Applications {
		if strings.EqualFold(app.ExecutableName, executableName) {
			found := app
			return &found
		}
	}
	return nil
}

// Resolve derives effective settings for one application: override where
// present, global value otherwise. Buffer lengths outside the valid range
// are clamped. Resolve does not assume the config passed Validate.
func Resolve(c *Config, app *Application) domain.EffectiveSettings {
	settings := domain.EffectiveSettings{
		BufferLengthSecs: clampBufferLength(c.BufferLengthSecs),
		Hotkey:           c.Hotkey,
	}
	if app == nil {
		return settings
	}
	if app.BufferLengthSecs != nil {
		settings.BufferLengthSecs = clampBufferLength(*app.BufferLengthSecs)
	}
	if app.Hotkey != nil && *app.Hotkey != "" {
		settings.Hotkey = *app.Hotkey
	}
	return settings
}

func clampBufferLength(secs int) int {
	if secs < MinBufferLengthSecs {
		return MinBufferLengthSecs
	}
	if secs > MaxBufferLengthSecs {
		return MaxBufferLengthSecs
	}
	return secs
}
