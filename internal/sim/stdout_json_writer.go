package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"mpd-sim/internal/telemetry"
)

// JSONStdoutWriter prints samples and run state rows as JSON lines to STDOUT.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// Write outputs a sample row in JSON format.
func (w *JSONStdoutWriter) Write(row telemetry.SampleRow) error {
	return w.writeLine(row)
}

// WriteBatch outputs multiple sample rows in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []telemetry.SampleRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteState outputs a run state row in JSON format.
func (w *JSONStdoutWriter) WriteState(row telemetry.RunStateRow) error {
	return w.writeLine(row)
}
