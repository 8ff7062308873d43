package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vortexdl/vortex/internal/errs"
)

// Config is the validated runtime configuration consumed by the download
// engine. Loading from disk and env happens here; credential encryption is
// the host's concern.
type Config struct {
	OutputDirectory string `yaml:"output_directory"`
	BackupEnabled   bool   `yaml:"backup_enabled"`
	ForceBackup     bool   `yaml:"force_backup"`
	DryRun          bool   `yaml:"dry_run"`
	// RandomSleepMax is the upper bound in seconds of the anti-bot pause
	// before each fetch; zero or negative disables it.
	RandomSleepMax  int    `yaml:"random_sleep_max"`
	DefaultProvider string `yaml:"default_provider"`

	// CoverageToleranceDays is the slack allowed when deciding whether
	// on-disk data already covers a job window.
	CoverageToleranceDays int `yaml:"coverage_tolerance_days"`

	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig carries per-provider credentials and limits.
type ProviderConfig struct {
	DailyLimit int    `yaml:"daily_limit"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`

	// IBKR gateway connection parameters.
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	ClientID int           `yaml:"client_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Provider returns the config block for a provider name, zero value if absent.
func (c Config) Provider(name string) ProviderConfig {
	return c.Providers[name]
}

// CoverageTolerance returns the coverage slack as a duration.
func (c Config) CoverageTolerance() time.Duration {
	return time.Duration(c.CoverageToleranceDays) * 24 * time.Hour
}

// Load reads and validates a YAML config file, applying defaults.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errs.Wrap(errs.KindConfiguration, "CONFIG_READ",
			fmt.Sprintf("failed to read config file %s", path), err).
			WithHelp("check that the file exists and is readable", "fix the --config path")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errs.Wrap(errs.KindConfiguration, "CONFIG_PARSE",
			fmt.Sprintf("failed to parse config file %s", path), err).
			WithHelp("the file must be valid YAML", "fix the YAML syntax")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OutputDirectory == "" {
		c.OutputDirectory = "data"
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = "barchart"
	}
	if c.CoverageToleranceDays == 0 {
		c.CoverageToleranceDays = 7
	}
	for name, pc := range c.Providers {
		if pc.Timeout == 0 {
			pc.Timeout = 30 * time.Second
		}
		c.Providers[name] = pc
	}
}

// Validate checks the configuration invariants the engine depends on.
func (c Config) Validate() error {
	if c.OutputDirectory == "" {
		return errs.New(errs.KindConfiguration, "CONFIG_OUTPUT_DIR",
			"output_directory must not be empty")
	}
	if c.CoverageToleranceDays < 0 {
		return errs.New(errs.KindConfiguration, "CONFIG_TOLERANCE",
			"coverage_tolerance_days must not be negative")
	}
	for name, pc := range c.Providers {
		if pc.DailyLimit < 0 {
			return errs.New(errs.KindConfiguration, "CONFIG_DAILY_LIMIT",
				fmt.Sprintf("provider %s: daily_limit must not be negative", name))
		}
	}
	return nil
}

// Default returns the built-in configuration used when no file is given.
func Default() Config {
	cfg := Config{Providers: map[string]ProviderConfig{}}
	cfg.applyDefaults()
	return cfg
}
