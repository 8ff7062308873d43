package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their supported frequencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg)
			if err != nil {
				return err
			}

			for _, name := range reg.Names() {
				p, err := reg.Get(name)
				if err != nil {
					return err
				}
				freqs := make([]string, 0)
				for _, fa := range p.SupportedFrequencies() {
					freqs = append(freqs, fa.Frequency.String())
				}
				marker := " "
				if name == cfg.DefaultProvider {
					marker = "*"
				}
				fmt.Printf("%s %-10s %s\n", marker, name, strings.Join(freqs, " "))
			}
			return nil
		},
	}
}
