package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration against the CUE schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: OK\n", configPath)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "well\t%s\n", cfg.WellID)
		fmt.Fprintf(tw, "data tick\t%s\n", cfg.DataTickInterval)
		fmt.Fprintf(tw, "timer tick\t%s\n", cfg.TimerTickInterval)
		fmt.Fprintf(tw, "seed points\t%d\n", cfg.SeedPoints)
		fmt.Fprintf(tw, "max points\t%d\n", cfg.MaxPoints)
		fmt.Fprintf(tw, "position\t%s %s\n", cfg.Position.Backend, cfg.Position.Path)
		for _, spec := range cfg.ChannelSpecs() {
			for _, f := range spec.Fields {
				fmt.Fprintf(tw, "%s.%s\t%g [%g, %g] step %g %s\n", spec.Channel, f.Name, f.Initial, f.Min, f.Max, f.Step, f.Unit)
			}
		}
		return tw.Flush()
	},
}
