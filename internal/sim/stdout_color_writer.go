// ColorStdoutWriter prints human-friendly, colorized samples to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"mpd-sim/internal/config"
	"mpd-sim/internal/telemetry"
)

func newColor(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	c.EnableColor()
	return c
}

var (
	colorGray      = newColor(color.FgHiBlack)
	colorBlue      = newColor(color.FgBlue)
	colorGreen     = newColor(color.FgGreen)
	colorRed       = newColor(color.FgRed)
	colorBold      = newColor(color.Bold)
	channelPalette = []*color.Color{
		newColor(color.FgCyan),
		newColor(color.FgYellow),
		newColor(color.FgMagenta),
		newColor(color.FgGreen),
		newColor(color.FgBlue),
		newColor(color.FgRed),
	}
)

// ColorStdoutWriter prints sample rows using ANSI colors.
type ColorStdoutWriter struct {
	cfg           *config.SimulationConfig
	out           io.Writer
	mu            sync.Mutex
	once          sync.Once
	channelColors map[telemetry.Channel]*color.Color
	units         map[telemetry.Channel]telemetry.ChannelSpec
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(cfg *config.SimulationConfig) *ColorStdoutWriter {
	return newColorWriter(cfg, os.Stdout)
}

func newColorWriter(cfg *config.SimulationConfig, out io.Writer) *ColorStdoutWriter {
	w := &ColorStdoutWriter{
		cfg:           cfg,
		out:           out,
		channelColors: make(map[telemetry.Channel]*color.Color),
		units:         make(map[telemetry.Channel]telemetry.ChannelSpec),
	}
	if cfg != nil {
		for i, spec := range cfg.ChannelSpecs() {
			w.channelColors[spec.Channel] = channelPalette[i%len(channelPalette)]
			w.units[spec.Channel] = spec
		}
	}
	return w
}

func (w *ColorStdoutWriter) channelColor(ch telemetry.Channel) *color.Color {
	if c, ok := w.channelColors[ch]; ok {
		return c
	}
	c := channelPalette[len(w.channelColors)%len(channelPalette)]
	w.channelColors[ch] = c
	return c
}

func (w *ColorStdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}

	fmt.Fprintln(w.out, colorBold.Sprint("Simulation Configuration:"))
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Well:\t%s\n", w.cfg.WellID)
	fmt.Fprintf(tw, "Data Tick:\t%s\n", w.cfg.DataTickInterval)
	fmt.Fprintf(tw, "Timer Tick:\t%s\n", w.cfg.TimerTickInterval)
	fmt.Fprintf(tw, "Seed Points:\t%d\n", w.cfg.SeedPoints)
	fmt.Fprintf(tw, "Max Points:\t%d\n", w.cfg.MaxPoints)
	tw.Flush()

	fmt.Fprintln(w.out, colorBold.Sprint("\nChannels:"))
	tw = tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Channel\tField\tUnit\tRange\n")
	for _, spec := range w.cfg.ChannelSpecs() {
		col := w.channelColor(spec.Channel)
		for _, f := range spec.Fields {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%g..%g\n", col.Sprint(spec.Channel), f.Name, f.Unit, f.Min, f.Max)
		}
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single sample row in colorized format.
func (w *ColorStdoutWriter) Write(row telemetry.SampleRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)

	var b strings.Builder
	b.WriteString(colorGray.Sprintf("[%s]", row.Timestamp.Format(time.RFC3339)))
	b.WriteString(" ")
	b.WriteString(colorBlue.Sprintf("well=%s", row.WellID))
	b.WriteString(" ")
	b.WriteString(w.channelColor(row.Channel).Sprintf("%-18s", row.Channel))
	spec := w.units[row.Channel]
	fields := make([]string, 0, len(row.Values))
	for name := range row.Values {
		fields = append(fields, name)
	}
	slices.Sort(fields)
	for _, name := range fields {
		fmt.Fprintf(&b, " %s=%.2f", name, row.Values[name])
		if unit := spec.Unit(name); unit != "" {
			b.WriteString(colorGray.Sprint(unit))
		}
	}
	_, err := fmt.Fprintln(w.out, b.String())
	return err
}

// WriteBatch outputs multiple sample rows.
func (w *ColorStdoutWriter) WriteBatch(rows []telemetry.SampleRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteState prints a run flag change to STDOUT.
func (w *ColorStdoutWriter) WriteState(row telemetry.RunStateRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)
	label := colorRed.Sprint("STOPPED")
	if row.Running {
		label = colorGreen.Sprint("RUNNING")
	}
	_, err := fmt.Fprintf(w.out, "%s %s well=%s run=%s\n",
		colorGray.Sprintf("[%s]", row.Timestamp.Format(time.RFC3339)), label, row.WellID, row.RunID)
	return err
}
