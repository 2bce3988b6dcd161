package sim

// Controller drives the run flag from a consumer such as the TUI.
type Controller interface {
	Running() bool
	SetRunning(bool)
	FormattedElapsed() string
}

// ControlWriter is implemented by writers that accept a Controller.
// NewSimulator hands itself to such writers.
type ControlWriter interface {
	SetController(Controller)
}
