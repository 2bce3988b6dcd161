package sim

import "mpd-sim/internal/telemetry"

// StateWriter receives a row every time the run flag is set.
type StateWriter interface {
	WriteState(telemetry.RunStateRow) error
}
