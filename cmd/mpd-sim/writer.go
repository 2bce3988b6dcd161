package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"mpd-sim/internal/config"
	"mpd-sim/internal/sim"
)

// Output modes accepted by --output.
const (
	outputAuto  = "auto"
	outputJSON  = "json"
	outputColor = "color"
	outputTUI   = "tui"
	outputNone  = "none"
)

// stdoutIsTerminal is replaced in tests.
var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// resolveOutput turns "auto" into color on a terminal and JSON otherwise.
func resolveOutput(mode string, isTTY bool) (string, error) {
	switch mode {
	case "", outputAuto:
		if isTTY {
			return outputColor, nil
		}
		return outputJSON, nil
	case outputJSON, outputColor, outputTUI, outputNone:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown output %q (want auto, json, color, tui or none)", mode)
	}
}

// newWriter sets up the sample writer for mode. It returns the writer and a
// cleanup function to close any resources. A nil writer means samples are
// only served through the admin API.
func newWriter(cfg *config.SimulationConfig, mode string, out io.Writer) (sim.SampleWriter, func(), error) {
	cleanup := func() {}
	resolved, err := resolveOutput(mode, stdoutIsTerminal())
	if err != nil {
		return nil, nil, err
	}
	switch resolved {
	case outputNone:
		return nil, cleanup, nil
	case outputTUI:
		tw := sim.NewTUIWriter(cfg)
		return sim.NewMultiWriter(tw), func() { tw.Close() }, nil
	case outputColor:
		return sim.NewMultiWriter(sim.NewStdoutWriter(cfg, out, true)), cleanup, nil
	default:
		return sim.NewMultiWriter(sim.NewStdoutWriter(cfg, out, false)), cleanup, nil
	}
}
