package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for Deskbot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Storage   StorageConfig   `json:"storage"`
	Telegram  TelegramConfig  `json:"telegram"`
	Engine    EngineConfig    `json:"engine"`
	Flows     FlowsConfig     `json:"flows"`
	Dashboard DashboardConfig `json:"dashboard"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"` // debug | info | warn | error
	DataDir  string `json:"dataDir"`
}

type StorageConfig struct {
	DBPath string `json:"dbPath"`
}

type TelegramConfig struct {
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token"`
	ParseMode string `json:"parseMode"`
}

type EngineConfig struct {
	SessionTTLMinutes  int  `json:"sessionTTLMinutes"`
	SweepIntervalSec   int  `json:"sweepIntervalSeconds"`
	DedupeInbound      bool `json:"dedupeInbound"`
	DedupeWindowSec    int  `json:"dedupeWindowSeconds"`
	BusBufferSize      int  `json:"busBufferSize"`
	RefreshIntervalSec int  `json:"refreshIntervalSeconds"` // Q/A and flow cache refresh
}

type FlowsConfig struct {
	Dir string `json:"dir"`
	// OnDeactivate decides what happens to sessions mid-flow when
	// their flow is deactivated: "finish" lets them run to completion,
	// "abort" ends them on the next turn.
	OnDeactivate string `json:"onDeactivate"`
}

type DashboardConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// DefaultConfigDir returns the default config directory (~/.deskbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deskbot"
	}
	return filepath.Join(home, ".deskbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.Storage.DBPath = ExpandPath(cfg.Storage.DBPath)
	cfg.Flows.Dir = ExpandPath(cfg.Flows.Dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Engine.SessionTTLMinutes < 1 {
		errs = append(errs, "engine.sessionTTLMinutes must be >= 1")
	}
	if cfg.Engine.SweepIntervalSec < 1 {
		errs = append(errs, "engine.sweepIntervalSeconds must be >= 1")
	}
	if cfg.Engine.DedupeInbound && cfg.Engine.DedupeWindowSec < 1 {
		errs = append(errs, "engine.dedupeWindowSeconds must be >= 1 when dedupeInbound is on")
	}
	if cfg.Engine.RefreshIntervalSec < 1 {
		errs = append(errs, "engine.refreshIntervalSeconds must be >= 1")
	}

	switch cfg.Flows.OnDeactivate {
	case "finish", "abort":
		// valid
	default:
		errs = append(errs, "flows.onDeactivate must be one of: finish, abort")
	}

	if cfg.Dashboard.Port < 0 || cfg.Dashboard.Port > 65535 {
		errs = append(errs, "dashboard.port must be between 0 and 65535")
	}

	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required when telegram is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
