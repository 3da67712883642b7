package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// Environment variables supported:
//   - SMARTNOTIFIER_DB_PATH, SMARTNOTIFIER_LISTEN_ADDR, SMARTNOTIFIER_SELF_PACKAGE
//   - SMARTNOTIFIER_LOG_LIMIT (int), SMARTNOTIFIER_LOG_FILE
//   - SMARTNOTIFIER_SPEECH_BACKEND ("azure", "command", "log")
//   - SMARTNOTIFIER_SPEECH_DELAY, _CLEANUP, _READY_TIMEOUT (durations)
//   - SMARTNOTIFIER_SPEECH_COMMAND (space separated, e.g. "espeak-ng -s 150")
//   - SMARTNOTIFIER_CACHE_DIR, SMARTNOTIFIER_DISK_CACHE (bool)
//   - AZURE_SPEECH_KEY, AZURE_SPEECH_REGION, SMARTNOTIFIER_AZURE_VOICE
//   - SMARTNOTIFIER_RINGER_MODE, SMARTNOTIFIER_DND (bool), SMARTNOTIFIER_QUIET_HOURS
//   - SMARTNOTIFIER_APPS ("pkg=Label,pkg2=Label 2")
func ApplyEnvOverrides(cfg *Config) error {
	if err := applyBasicEnv(cfg); err != nil {
		return err
	}
	if err := applySpeechEnv(cfg); err != nil {
		return err
	}
	if err := applyGateEnv(cfg); err != nil {
		return err
	}
	return applyAppsEnv(cfg)
}

func applyBasicEnv(cfg *Config) error {
	setStringEnv("SMARTNOTIFIER_DB_PATH", &cfg.DBPath)
	setStringEnv("SMARTNOTIFIER_LISTEN_ADDR", &cfg.ListenAddr)
	setStringEnv("SMARTNOTIFIER_SELF_PACKAGE", &cfg.SelfPackage)
	setStringEnv("SMARTNOTIFIER_LOG_FILE", &cfg.LogFile)
	if v := os.Getenv("SMARTNOTIFIER_LOG_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SMARTNOTIFIER_LOG_LIMIT: %w", err)
		}
		cfg.LogLimit = n
	}
	return nil
}

func applySpeechEnv(cfg *Config) error {
	s := &cfg.Speech
	setStringEnv("SMARTNOTIFIER_SPEECH_BACKEND", &s.Backend)
	setStringEnv("SMARTNOTIFIER_CACHE_DIR", &s.CacheDir)
	setStringEnv("AZURE_SPEECH_KEY", &s.AzureKey)
	setStringEnv("AZURE_SPEECH_REGION", &s.AzureRegion)
	setStringEnv("SMARTNOTIFIER_AZURE_VOICE", &s.AzureVoice)
	if v := os.Getenv("SMARTNOTIFIER_SPEECH_COMMAND"); v != "" {
		s.Command = strings.Fields(v)
	}
	for env, dst := range map[string]*time.Duration{
		"SMARTNOTIFIER_SPEECH_DELAY":         &s.Delay,
		"SMARTNOTIFIER_SPEECH_CLEANUP":       &s.Cleanup,
		"SMARTNOTIFIER_SPEECH_READY_TIMEOUT": &s.ReadyTimeout,
	} {
		if err := setDurationEnv(env, dst); err != nil {
			return err
		}
	}
	return setBoolEnv("SMARTNOTIFIER_DISK_CACHE", func(b bool) { s.DiskCache = b })
}

func applyGateEnv(cfg *Config) error {
	setStringEnv("SMARTNOTIFIER_RINGER_MODE", &cfg.Gate.RingerMode)
	setStringEnv("SMARTNOTIFIER_QUIET_HOURS", &cfg.Gate.QuietHours)
	return setBoolEnv("SMARTNOTIFIER_DND", func(b bool) { cfg.Gate.DoNotDisturb = b })
}

func applyAppsEnv(cfg *Config) error {
	v := os.Getenv("SMARTNOTIFIER_APPS")
	if v == "" {
		return nil
	}
	if cfg.Apps == nil {
		cfg.Apps = make(map[string]string)
	}
	for _, pair := range strings.Split(v, ",") {
		pkg, label, ok := strings.Cut(pair, "=")
		pkg, label = strings.TrimSpace(pkg), strings.TrimSpace(label)
		if !ok || pkg == "" || label == "" {
			return fmt.Errorf("invalid SMARTNOTIFIER_APPS entry %q (expected pkg=Label)", pair)
		}
		cfg.Apps[pkg] = label
	}
	return nil
}

func setStringEnv(env string, dst *string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setDurationEnv(env string, dst *time.Duration) error {
	if v := os.Getenv(env); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		*dst = d
	}
	return nil
}

// setBoolEnv is a small helper to parse boolean environment variables
func setBoolEnv(env string, setter func(bool)) error {
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(b)
	}
	return nil
}
