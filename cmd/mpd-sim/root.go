package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mpd-sim/internal/config"
)

var (
	configPath string
	schemaPath string
)

var rootCmd = &cobra.Command{
	Use:           "mpd-sim",
	Short:         "Managed pressure drilling telemetry simulator",
	Long:          "mpd-sim fabricates MPD channel telemetry and serves it to a live monitoring dashboard.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.SimulationConfig, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "schemas/simulation.cue", "Path to CUE schema file")
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(positionCmd)
	rootCmd.AddCommand(grafanaCmd)
}
