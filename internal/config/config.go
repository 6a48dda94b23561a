package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and credential file configuration.
type Paths struct {
	DataDir         string `toml:"data_dir"`
	LogDir          string `toml:"log_dir"`
	CredentialsFile string `toml:"credentials_file"`
}

// Ledger contains connection settings for the relational record store.
type Ledger struct {
	BaseURL        string `toml:"base_url"`
	EventsEndpoint string `toml:"events_endpoint"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Proof contains connection settings for the attestation service.
type Proof struct {
	BaseURL        string `toml:"base_url"`
	SchemaUID      string `toml:"schema_uid"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Retry contains the two-phase backoff constants shared by the ledger
// and proof delivery state machines.
type Retry struct {
	MaxFastRetries           int `toml:"max_fast_retries"`
	CooldownMinutes          int `toml:"cooldown_minutes"`
	MaxAgeDays               int `toml:"max_age_days"`
	ProcessingTimeoutSeconds int `toml:"processing_timeout_seconds"`
	DebounceSeconds          int `toml:"debounce_seconds"`
}

// Scheduler contains pass timing and condition-aware batch sizing.
type Scheduler struct {
	PollIntervalSeconds       int `toml:"poll_interval_seconds"`
	BackgroundIntervalMinutes int `toml:"background_interval_minutes"`
	BatchOptimal              int `toml:"batch_optimal"`
	BatchNormal               int `toml:"batch_normal"`
	BatchConservative         int `toml:"batch_conservative"`
	BatchCritical             int `toml:"batch_critical"`
	LowBatteryPercent         int `toml:"low_battery_percent"`
}

// Device contains condition sampling configuration.
type Device struct {
	Battery           string   `toml:"battery"`
	MeteredInterfaces []string `toml:"metered_interfaces"`
	ForcePowerSave    bool     `toml:"force_power_save"`
}

// Storage contains completed-partition retention settings.
type Storage struct {
	RetentionDays int `toml:"retention_days"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for fieldsync.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and the credentials file
//   - Ledger: record store endpoint and timeouts
//   - Proof: attestation service endpoint and schema
//   - Retry: fast/slow backoff constants
//   - Scheduler: pass intervals and batch sizing
//   - Device: battery and network sampling sources
//   - Storage: completed item retention
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Ledger    Ledger    `toml:"ledger"`
	Proof     Proof     `toml:"proof"`
	Retry     Retry     `toml:"retry"`
	Scheduler Scheduler `toml:"scheduler"`
	Device    Device    `toml:"device"`
	Storage   Storage   `toml:"storage"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fieldsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fieldsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon needs at startup.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// ExpandPath resolves ~ and relative segments to an absolute path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
