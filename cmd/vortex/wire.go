package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vortexdl/vortex/internal/config"
	"github.com/vortexdl/vortex/internal/download"
	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/plan"
	"github.com/vortexdl/vortex/internal/provider"
	"github.com/vortexdl/vortex/internal/ratelimit"
	"github.com/vortexdl/vortex/internal/resilience"
	"github.com/vortexdl/vortex/internal/storage"
)

// defaultRPS paces outbound provider requests; scraping endpoints throttle
// well under this.
const (
	defaultRPS   = 2.0
	defaultBurst = 1
)

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildRegistry constructs every provider the config has credentials for.
// Yahoo needs none and is always available.
func buildRegistry(cfg config.Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()

	if err := reg.Register(provider.NewYahoo(providerTimeout(cfg, "yahoo"))); err != nil {
		return nil, err
	}
	if pc := cfg.Provider("barchart"); pc.Username != "" {
		bc := provider.NewBarchart(pc.Username, pc.Password, pc.DailyLimit, providerTimeout(cfg, "barchart"))
		if err := reg.Register(bc); err != nil {
			return nil, err
		}
	}
	if pc := cfg.Provider("ibkr"); pc.Host != "" {
		ib := provider.NewIBKR(pc.Host, pc.Port, pc.ClientID, providerTimeout(cfg, "ibkr"))
		if err := reg.Register(ib); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func providerTimeout(cfg config.Config, name string) time.Duration {
	if t := cfg.Provider(name).Timeout; t > 0 {
		return t
	}
	return 30 * time.Second
}

func selectProvider(reg *provider.Registry, cfg config.Config, override string) (provider.Provider, error) {
	name := cfg.DefaultProvider
	if override != "" {
		name = override
	}
	p, err := reg.Get(name)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "PROVIDER_UNAVAILABLE",
			fmt.Sprintf("provider %s is not configured", name), err).
			WithHelp("available providers need credentials in the config file",
				"add the provider's credentials or pick one from `vortex providers`")
	}
	return p, nil
}

// buildStorages returns the primary store plus the backup store when backups
// are enabled. CSV is primary, Parquet is the backup tier.
func buildStorages(cfg config.Config) (storage.Storage, storage.Storage) {
	primary := storage.NewCSV(cfg.OutputDirectory)
	if !cfg.BackupEnabled {
		return primary, nil
	}
	return primary, storage.NewParquet(cfg.OutputDirectory)
}

func buildDownloader(cfg config.Config, backfill bool) *download.Downloader {
	exec := resilience.NewExecutor(
		resilience.DefaultRetryPolicy(),
		resilience.DefaultBreakerConfig(),
		ratelimit.NewLimiter(defaultRPS, defaultBurst),
	)
	d := download.NewDownloader(exec)
	if backfill {
		d.Mode = download.ModeBackfilling
	}
	d.DryRun = cfg.DryRun
	d.ForceBackup = cfg.ForceBackup
	d.RandomSleepMax = cfg.RandomSleepMax
	if tol := cfg.CoverageTolerance(); tol > 0 {
		d.CoverageTolerance = tol
	}
	return d
}

func buildPlanner(p provider.Provider, cfg config.Config) *plan.Planner {
	primary, backup := buildStorages(cfg)
	return &plan.Planner{Provider: p, Storage: primary, Backup: backup}
}
