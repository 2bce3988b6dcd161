// Simulator driving the MPD run flag, elapsed timer and channel datasets
package sim

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mpd-sim/internal/config"
	"mpd-sim/internal/telemetry"
)

// SampleWriter is an interface to support different sample sinks.
type SampleWriter interface {
	Write(telemetry.SampleRow) error
}

// Optional: Writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.SampleRow) error
}

// ControlState is the control facet: the run flag and the current run.
type ControlState struct {
	Running bool   `json:"running"`
	RunID   string `json:"run_id,omitempty"`
}

// DataState is the data facet: the elapsed timer and every channel dataset.
// Charts is nil when the datasets did not change since the state passed to
// DataSince; it must not be modified.
type DataState struct {
	ElapsedSeconds int64                     `json:"elapsed_seconds"`
	Elapsed        string                    `json:"elapsed"`
	Charts         *telemetry.ChartDataState `json:"charts,omitempty"`
}

// Simulator owns the run flag, the elapsed counter and the channel datasets.
type Simulator struct {
	wellID        string
	specs         []telemetry.ChannelSpec
	gen           *telemetry.Generator
	series        map[telemetry.Channel]*telemetry.Series
	writer        SampleWriter
	dataInterval  time.Duration
	timerInterval time.Duration
	autostart     bool

	newTicker func(time.Duration) ticker
	now       func() time.Time
	log       *slog.Logger
	metrics   *Metrics

	mu        sync.Mutex
	running   bool
	runID     string
	dataTask  *task
	timerTask *task
	closed    bool

	// elapsedMu pairs counter updates with the elapsed gauge.
	elapsedMu sync.Mutex
	elapsed   atomic.Int64
	state     atomic.Pointer[telemetry.ChartDataState]
	control   *hub
	data      *hub
}

// Option customizes a Simulator.
type Option func(*Simulator)

// WithLogger sets the logger used by the periodic tasks.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records engine activity in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Simulator) { s.metrics = m }
}

// WithClock replaces time.Now for point timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

func withTicker(f func(time.Duration) ticker) Option {
	return func(s *Simulator) { s.newTicker = f }
}

// NewSimulator creates a stopped simulator whose datasets are seeded with
// cfg.SeedPoints historical points per channel.
func NewSimulator(cfg *config.SimulationConfig, writer SampleWriter, opts ...Option) *Simulator {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Simulator{
		wellID:        cfg.WellID,
		specs:         cfg.ChannelSpecs(),
		gen:           telemetry.NewGenerator(cfg.Seed),
		series:        make(map[telemetry.Channel]*telemetry.Series),
		writer:        writer,
		dataInterval:  cfg.DataTickInterval,
		timerInterval: cfg.TimerTickInterval,
		autostart:     cfg.Autostart,
		newTicker:     newTimeTicker,
		now:           time.Now,
		log:           slog.Default(),
		control:       newHub(),
		data:          newHub(),
	}
	if s.dataInterval <= 0 {
		s.dataInterval = config.DefaultDataTickInterval
	}
	if s.timerInterval <= 0 {
		s.timerInterval = config.DefaultTimerTickInterval
	}
	for _, o := range opts {
		o(s)
	}

	end := s.now()
	sets := make([]telemetry.ChartDataset, 0, len(s.specs))
	for _, spec := range s.specs {
		seed := s.gen.Seed(spec, cfg.SeedPoints, end, s.dataInterval)
		ser := telemetry.NewSeries(spec.Channel, seed, cfg.MaxPoints)
		s.series[spec.Channel] = ser
		sets = append(sets, ser.Snapshot())
		if last, ok := ser.Last(); ok {
			s.metrics.observeSample(spec.Channel, ser.Len(), last.Values)
		}
	}
	state := telemetry.NewChartDataState(sets...)
	s.state.Store(&state)
	s.metrics.setRunning(false)
	s.metrics.setElapsed(0)
	if cw, ok := writer.(ControlWriter); ok {
		cw.SetController(s)
	}
	return s
}

// SetRunning sets the run flag and resets the elapsed timer to zero. Starting
// launches the data and timer tasks; stopping cancels both and waits for them
// to exit. Repeating the current value only resets the timer.
func (s *Simulator) SetRunning(running bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := s.running != running
	switch {
	case changed && running:
		s.runID = uuid.NewString()
		s.running = true
		s.resetElapsed()
		s.startTasks(s.runID)
		s.metrics.incRuns()
	case changed:
		s.stopTasks()
		s.running = false
		s.resetElapsed()
	default:
		s.resetElapsed()
	}
	row := telemetry.RunStateRow{
		WellID:    s.wellID,
		RunID:     s.runID,
		Running:   s.running,
		Timestamp: s.now().UTC(),
	}
	s.mu.Unlock()

	s.metrics.setRunning(row.Running)
	s.log.Info("run flag set", "running", row.Running, "changed", changed, "run_id", row.RunID)
	if changed {
		s.control.notify()
	}
	s.data.notify()
	s.writeState(row)
}

// Running reports the run flag.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ControlState returns the control facet.
func (s *Simulator) ControlState() ControlState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ControlState{Running: s.running, RunID: s.runID}
}

// ElapsedSeconds returns the seconds counted since the last SetRunning call.
func (s *Simulator) ElapsedSeconds() int64 {
	return s.elapsed.Load()
}

// FormattedElapsed returns ElapsedSeconds as a clock string.
func (s *Simulator) FormattedElapsed() string {
	return FormatElapsed(s.ElapsedSeconds())
}

// ChartData returns the current datasets. The value is never mutated afterwards.
func (s *Simulator) ChartData() telemetry.ChartDataState {
	return *s.state.Load()
}

// DataState returns the data facet with every dataset.
func (s *Simulator) DataState() DataState {
	return s.DataSince(nil)
}

// DataSince returns the data facet, leaving Charts nil when the datasets are
// still prev. Data ticks publish a new Charts value each time.
func (s *Simulator) DataSince(prev *telemetry.ChartDataState) DataState {
	sec := s.ElapsedSeconds()
	d := DataState{ElapsedSeconds: sec, Elapsed: FormatElapsed(sec)}
	if charts := s.state.Load(); charts != prev {
		d.Charts = charts
	}
	return d
}

// WatchControl notifies when the run flag changes. Notifications coalesce;
// receivers re-read ControlState. cancel releases the subscription.
func (s *Simulator) WatchControl() (<-chan struct{}, func()) {
	return s.control.subscribe()
}

// WatchData notifies on data ticks, timer ticks and timer resets.
func (s *Simulator) WatchData() (<-chan struct{}, func()) {
	return s.data.subscribe()
}

// WellID returns the simulated well identifier.
func (s *Simulator) WellID() string { return s.wellID }

// Channels returns the channel specs in display order.
func (s *Simulator) Channels() []telemetry.ChannelSpec {
	out := make([]telemetry.ChannelSpec, len(s.specs))
	copy(out, s.specs)
	return out
}

// Close stops any running tasks and ends all watch subscriptions. Later
// SetRunning calls are ignored.
func (s *Simulator) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.running {
		s.stopTasks()
		s.running = false
	}
	s.mu.Unlock()
	s.metrics.setRunning(false)
	s.control.close()
	s.data.close()
}

// FormatElapsed renders seconds as MM:SS, or HH:MM:SS from one hour on.
func FormatElapsed(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	h, m, r := sec/3600, (sec%3600)/60, sec%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, r)
	}
	return fmt.Sprintf("%02d:%02d", m, r)
}

func (s *Simulator) resetElapsed() {
	s.elapsedMu.Lock()
	defer s.elapsedMu.Unlock()
	s.elapsed.Store(0)
	s.metrics.setElapsed(0)
}

func (s *Simulator) writeState(row telemetry.RunStateRow) {
	sw, ok := s.writer.(StateWriter)
	if !ok {
		return
	}
	if err := sw.WriteState(row); err != nil {
		s.log.Warn("state write failed", "run_id", row.RunID, "err", err)
	}
}
