package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"mpd-sim/internal/admin"
	"mpd-sim/internal/logging"
	"mpd-sim/internal/position"
	"mpd-sim/internal/sim"
)

var (
	simOutput    string
	simAdminAddr string
	simNoAdmin   bool
	simAutostart bool
	simLogLevel  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the real-time MPD simulator",
	Long:  "simulate seeds the channel datasets, serves the dashboard and generates samples while the run flag is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("autostart") {
			cfg.Autostart = simAutostart
		}
		if simAdminAddr != "" {
			cfg.Admin.Addr = simAdminAddr
		}
		if simLogLevel != "" {
			cfg.LogLevel = simLogLevel
		}

		writer, cleanup, err := newWriter(cfg, simOutput, os.Stdout)
		if err != nil {
			return err
		}
		defer cleanup()

		var logOut io.Writer = os.Stderr
		if simOutput == outputTUI {
			logOut = io.Discard
		}
		log := logging.NewWithWriter(logOut, cfg.LogLevel)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		simulator := sim.NewSimulator(cfg, writer, sim.WithLogger(log), sim.WithMetrics(sim.NewMetrics(reg)))

		store, err := position.Open(ctx, cfg.Position)
		if err != nil {
			return err
		}
		defer store.Close()
		mem := position.NewMemory(ctx, store, position.Position{X: cfg.Position.DefaultX, Y: cfg.Position.DefaultY})

		var serve func(context.Context) error
		if !simNoAdmin {
			opts := []admin.Option{
				admin.WithGatherer(reg),
				admin.WithCORSOrigins(cfg.Admin.CORSOrigins),
				admin.WithLogger(log),
			}
			if aw, ok := writer.(sim.AdminStatusWriter); ok {
				opts = append(opts, admin.WithStatusHook(aw.SetAdminStatus))
			}
			srv := admin.NewServer(simulator, mem, opts...)
			serve = func(ctx context.Context) error { return srv.Start(ctx, cfg.Admin.Addr) }
		}

		err = runSimulation(ctx, stop, simulator, serve)
		log.Info("MPD simulation stopped")
		return err
	},
}

// runSimulation runs runner and serve until ctx is done or serve fails, then
// waits for both to return. serve may be nil.
func runSimulation(ctx context.Context, stop context.CancelFunc, runner interface{ Run(context.Context) }, serve func(context.Context) error) error {
	errCh := make(chan error, 1)
	if serve != nil {
		go func() { errCh <- serve(ctx) }()
	}
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	var err error
	select {
	case <-ctx.Done():
		if serve != nil {
			err = <-errCh
		}
	case err = <-errCh:
		stop()
	}
	<-done
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func init() {
	simulateCmd.Flags().StringVar(&simOutput, "output", outputAuto, "Sample output: auto, json, color, tui or none")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin-addr", "", "Admin server listen address (overrides config)")
	simulateCmd.Flags().BoolVar(&simNoAdmin, "no-admin", false, "Do not start the admin server")
	simulateCmd.Flags().BoolVar(&simAutostart, "autostart", false, "Set the run flag on startup")
	simulateCmd.Flags().StringVar(&simLogLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
}
