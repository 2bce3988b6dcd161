package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mpd-sim/internal/dashboard"
)

var grafanaOut string

var grafanaCmd = &cobra.Command{
	Use:   "grafana",
	Short: "Render a Grafana dashboard for the simulator metrics",
	Long:  "Render grafana-dashboard.json for the configured channels. PROMETHEUS_DATASOURCE_UID must be set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, err := dashboard.Render(grafanaOut, cfg.WellID, cfg.ChannelSpecs())
		if err != nil {
			return fmt.Errorf("render dashboard: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	grafanaCmd.Flags().StringVar(&grafanaOut, "out", "build", "Output directory")
}
