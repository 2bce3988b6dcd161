// Writer selection for STDOUT
package sim

import (
	"io"

	"mpd-sim/internal/config"
)

// StdoutWriter is the STDOUT sink: samples, batches and run state rows.
type StdoutWriter interface {
	SampleWriter
	batchWriter
	StateWriter
}

// NewStdoutWriter returns a colorized writer when colorize is set and a JSON
// lines writer otherwise, both writing to out. A nil out means os.Stdout.
func NewStdoutWriter(cfg *config.SimulationConfig, out io.Writer, colorize bool) StdoutWriter {
	switch {
	case out == nil && colorize:
		return NewColorStdoutWriter(cfg)
	case out == nil:
		return NewJSONStdoutWriter()
	case colorize:
		return newColorWriter(cfg, out)
	default:
		return &JSONStdoutWriter{out: out}
	}
}
