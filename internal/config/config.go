// Package config loads daemon settings from defaults, an optional YAML file
// and SMARTNOTIFIER_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/gate"
)

// Speech backends.
const (
	BackendAzure   = "azure"
	BackendCommand = "command"
	BackendLog     = "log"
)

// Config holds runtime configuration for the daemon and the CLI.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `json:"db_path" yaml:"db_path"`
	// ListenAddr is the local HTTP control and ingest address.
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	// SelfPackage identifies notifications posted by SmartNotifier itself.
	SelfPackage string `json:"self_package" yaml:"self_package"`
	LogLimit    int    `json:"log_limit" yaml:"log_limit"`
	LogFile     string `json:"log_file" yaml:"log_file"`

	Speech SpeechConfig `json:"speech" yaml:"speech"`
	Gate   GateConfig   `json:"gate" yaml:"gate"`

	// Apps maps package names to display labels for packages that post
	// without one.
	Apps map[string]string `json:"apps" yaml:"apps"`
}

// SpeechConfig selects and tunes the speaker and the voice queue.
type SpeechConfig struct {
	Backend      string        `json:"backend" yaml:"backend"` // "azure", "command", "log"
	Delay        time.Duration `json:"delay" yaml:"delay"`
	Cleanup      time.Duration `json:"cleanup" yaml:"cleanup"`
	ReadyTimeout time.Duration `json:"ready_timeout" yaml:"ready_timeout"`
	Command      []string      `json:"command" yaml:"command"`

	AzureKey    string `json:"azure_key" yaml:"azure_key"`
	AzureRegion string `json:"azure_region" yaml:"azure_region"`
	AzureVoice  string `json:"azure_voice" yaml:"azure_voice"`
	CacheDir    string `json:"cache_dir" yaml:"cache_dir"`
	DiskCache   bool   `json:"disk_cache" yaml:"disk_cache"`
}

// GateConfig holds the initial speaking conditions.
type GateConfig struct {
	RingerMode   string `json:"ringer_mode" yaml:"ringer_mode"`
	DoNotDisturb bool   `json:"do_not_disturb" yaml:"do_not_disturb"`
	// QuietHours is "HH:MM-HH:MM" local time, may wrap midnight.
	QuietHours string `json:"quiet_hours" yaml:"quiet_hours"`
}

// DefaultConfig returns a configuration that works out of the box.
func DefaultConfig() *Config {
	return &Config{
		DBPath:      filepath.Join(".smartnotifier", "smartnotifier.db"),
		ListenAddr:  "127.0.0.1:7070",
		SelfPackage: domain.DefaultSelfPackage,
		LogLimit:    domain.DefaultLogLimit,
		LogFile:     filepath.Join(".smartnotifier", "smartnotifier.log"),
		Speech: SpeechConfig{
			Backend:      BackendLog,
			Delay:        3 * time.Second,
			Cleanup:      5 * time.Second,
			ReadyTimeout: 3 * time.Second,
			Command:      []string{"espeak-ng"},
			AzureVoice:   "en-US-AvaNeural",
			CacheDir:     filepath.Join(".smartnotifier", "audio"),
			DiskCache:    true,
		},
		Gate: GateConfig{
			RingerMode: string(gate.RingerNormal),
		},
		Apps: map[string]string{},
	}
}

// Validate returns an error for settings the daemon cannot run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must be set")
	}
	if c.SelfPackage == "" {
		return fmt.Errorf("self_package must be set")
	}
	if c.LogLimit <= 0 {
		return fmt.Errorf("log_limit must be positive, got %d", c.LogLimit)
	}
	switch c.Speech.Backend {
	case BackendAzure:
		if c.Speech.AzureKey == "" || c.Speech.AzureRegion == "" {
			return fmt.Errorf("azure backend needs azure_key and azure_region")
		}
	case BackendCommand:
		if len(c.Speech.Command) == 0 {
			return fmt.Errorf("command backend needs a command")
		}
	case BackendLog:
	default:
		return fmt.Errorf("unknown speech backend %q", c.Speech.Backend)
	}
	if c.Speech.Delay < 0 || c.Speech.Cleanup < 0 || c.Speech.ReadyTimeout < 0 {
		return fmt.Errorf("speech durations must not be negative")
	}
	if _, err := gate.ParseRingerMode(c.Gate.RingerMode); err != nil {
		return err
	}
	if _, err := gate.ParseWindow(c.Gate.QuietHours); err != nil {
		return fmt.Errorf("quiet_hours: %w", err)
	}
	return nil
}

// Warnings returns non-fatal configuration problems.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Speech.Backend != BackendAzure && c.Speech.AzureKey != "" {
		warnings = append(warnings, "azure_key is set but the speech backend is "+c.Speech.Backend)
	}
	if c.Speech.Cleanup < c.Speech.Delay {
		warnings = append(warnings, "speech cleanup is shorter than the delay; repeats may be spoken back to back")
	}
	return warnings
}

// LoadConfigFromFile loads config from a YAML file on top of the defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then path when it is
// not empty, then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadConfigFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
