package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mpd-sim/internal/position"
)

var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Inspect or change the remembered timer widget position",
}

var positionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored position, or the default when none is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPositions(cmd, func(m *position.Memory) error {
			p, saved := m.Get(cmd.Context())
			out := struct {
				position.Position
				Saved bool `json:"saved"`
			}{p, saved}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(out)
		})
	},
}

var positionSetCmd = &cobra.Command{
	Use:   "set X Y",
	Short: "Store a position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid x %q: %w", args[0], err)
		}
		y, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid y %q: %w", args[1], err)
		}
		return withPositions(cmd, func(m *position.Memory) error {
			return m.Set(cmd.Context(), position.Position{X: x, Y: y})
		})
	},
}

var positionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the stored position",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPositions(cmd, func(m *position.Memory) error {
			return m.Reset(cmd.Context())
		})
	},
}

func withPositions(cmd *cobra.Command, fn func(*position.Memory) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := position.Open(cmd.Context(), cfg.Position)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(position.NewMemory(cmd.Context(), store, position.Position{X: cfg.Position.DefaultX, Y: cfg.Position.DefaultY}))
}

func init() {
	positionCmd.AddCommand(positionShowCmd, positionSetCmd, positionClearCmd)
}
