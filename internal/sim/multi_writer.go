package sim

import (
	"errors"

	"mpd-sim/internal/telemetry"
)

// MultiWriter fans sample and run state rows out to multiple writers.
type MultiWriter struct {
	writers []SampleWriter
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...SampleWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Write sends a sample row to all writers. A failing writer does not stop the
// others; their errors are joined.
func (mw *MultiWriter) Write(row telemetry.SampleRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple sample rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.SampleRow) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// WriteState sends a run state row to every writer that accepts one.
func (mw *MultiWriter) WriteState(row telemetry.RunStateRow) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(StateWriter); ok {
			if err := sw.WriteState(row); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// SetController forwards c to writers that drive the run flag.
func (mw *MultiWriter) SetController(c Controller) {
	for _, w := range mw.writers {
		if cw, ok := w.(ControlWriter); ok {
			cw.SetController(c)
		}
	}
}

// SetAdminStatus forwards the admin server status.
func (mw *MultiWriter) SetAdminStatus(addr string, listening bool) {
	for _, w := range mw.writers {
		if aw, ok := w.(AdminStatusWriter); ok {
			aw.SetAdminStatus(addr, listening)
		}
	}
}

// Close closes every writer that can be closed.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
