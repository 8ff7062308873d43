package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vortexdl/vortex/internal/download"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/plan"
)

func newDownloadCmd() *cobra.Command {
	var (
		instrumentsPath string
		startYear       int
		endYear         int
		providerName    string
		backfill        bool
		dryRun          bool
		forceBackup     bool
		parallel        int
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Plan and run historical data downloads",
		Long: `Expands the instrument file into per-contract download jobs, schedules
them fairly across instruments, and runs them against the selected provider.
Existing local data is only topped up unless --backfill forces a re-fetch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.DryRun = true
			}
			if forceBackup {
				cfg.ForceBackup = true
			}

			configs, err := instrument.LoadConfigs(instrumentsPath)
			if err != nil {
				return err
			}

			reg, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			prov, err := selectProvider(reg, cfg, providerName)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := prov.Login(ctx); err != nil {
				return err
			}
			defer func() {
				if err := prov.Logout(context.Background()); err != nil {
					log.Warn().Err(err).Msg("logout failed")
				}
			}()

			planner := buildPlanner(prov, cfg)
			jobs := plan.Schedule(planner.Plan(configs, startYear, endYear))
			if len(jobs) == 0 {
				log.Info().Msg("nothing to download")
				return nil
			}

			proc := &download.Processor{
				Downloader:  buildDownloader(cfg, backfill),
				Parallelism: parallel,
			}
			report, err := proc.RunParallel(ctx, jobs)
			printReport(report)
			return err
		},
	}

	year := time.Now().UTC().Year()
	cmd.Flags().StringVar(&instrumentsPath, "instruments", "instruments.json", "Instrument definition file (JSON)")
	cmd.Flags().IntVar(&startYear, "start-year", year, "First contract year to download")
	cmd.Flags().IntVar(&endYear, "end-year", year, "Last contract year to download (inclusive)")
	cmd.Flags().StringVar(&providerName, "provider", "", "Provider override (barchart|yahoo|ibkr)")
	cmd.Flags().BoolVar(&backfill, "backfill", false, "Re-fetch full windows instead of topping up")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch but do not write any files")
	cmd.Flags().BoolVar(&forceBackup, "force-backup", false, "Re-write backups even for covered windows")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Concurrent instruments (1 = sequential)")
	return cmd
}

func printReport(r *download.RunReport) {
	if r == nil {
		return
	}
	fmt.Printf("\n%d/%d jobs processed in %s: %d downloaded, %d already covered, %d failed\n",
		r.Processed, r.Total, r.Duration().Round(time.Second), r.Succeeded, r.Existing, len(r.Failed))
	printJobList("insufficient data", r.LowData)
	printJobList("no data found", r.NotFound)
	printJobList("failed", r.Failed)
	if r.Aborted {
		fmt.Printf("run aborted early: %s\n", r.Reason)
	}
}

func printJobList(label string, jobs []string) {
	if len(jobs) == 0 {
		return
	}
	fmt.Printf("%s (%d):\n", label, len(jobs))
	for _, j := range jobs {
		fmt.Printf("  %s\n", j)
	}
}
