package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vortexdl/vortex/internal/download"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/plan"
)

func newPlanCmd() *cobra.Command {
	var (
		instrumentsPath string
		startYear       int
		endYear         int
		providerName    string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the scheduled job list without downloading",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
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

			jobs := plan.Schedule(buildPlanner(prov, cfg).Plan(configs, startYear, endYear))
			for i, job := range jobs {
				fmt.Printf("%4d  %-12s %s\n", i+1, job.InstrumentKey, download.JobLabel(job))
			}
			fmt.Printf("\n%d jobs planned against %s\n", len(jobs), prov.Name())
			return nil
		},
	}

	year := time.Now().UTC().Year()
	cmd.Flags().StringVar(&instrumentsPath, "instruments", "instruments.json", "Instrument definition file (JSON)")
	cmd.Flags().IntVar(&startYear, "start-year", year, "First contract year to plan")
	cmd.Flags().IntVar(&endYear, "end-year", year, "Last contract year to plan (inclusive)")
	cmd.Flags().StringVar(&providerName, "provider", "", "Provider override (barchart|yahoo|ibkr)")
	return cmd
}
