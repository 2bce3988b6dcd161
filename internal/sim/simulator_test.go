package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpd-sim/internal/config"
	"mpd-sim/internal/logging"
	"mpd-sim/internal/telemetry"
)

const (
	waitFor = 2 * time.Second
	pollInt = 5 * time.Millisecond
)

// fakeTicker delivers ticks only when the test sends them.
type fakeTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) Chan() <-chan time.Time { return f.c }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fakeClock records every ticker the simulator creates, keyed by interval.
type fakeClock struct {
	mu      sync.Mutex
	tickers map[time.Duration][]*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{tickers: make(map[time.Duration][]*fakeTicker)}
}

func (c *fakeClock) newTicker(d time.Duration) ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	c.tickers[d] = append(c.tickers[d], t)
	return t
}

func (c *fakeClock) latest(t *testing.T, d time.Duration) *fakeTicker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.tickers[d]
	require.NotEmpty(t, ts, "no ticker for %s", d)
	return ts[len(ts)-1]
}

func (c *fakeClock) created(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers[d])
}

// fire delivers n ticks. Each send returns once the task loop has received
// the tick, so at most the last tick can still be in progress.
func fire(t *testing.T, ft *fakeTicker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case ft.c <- time.Now():
		case <-time.After(waitFor):
			t.Fatalf("tick %d not received", i+1)
		}
	}
}

// MockWriter collects sample and state rows for validation
type MockWriter struct {
	mu     sync.Mutex
	Rows   []telemetry.SampleRow
	States []telemetry.RunStateRow
}

func (w *MockWriter) Write(row telemetry.SampleRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Rows = append(w.Rows, row)
	return nil
}

func (w *MockWriter) WriteState(row telemetry.RunStateRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.States = append(w.States, row)
	return nil
}

func (w *MockWriter) rows() []telemetry.SampleRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]telemetry.SampleRow(nil), w.Rows...)
}

func (w *MockWriter) states() []telemetry.RunStateRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]telemetry.RunStateRow(nil), w.States...)
}

func testConfig() *config.SimulationConfig {
	cfg := config.Default()
	cfg.Seed = 42
	return cfg
}

func newTestSimulator(t *testing.T, cfg *config.SimulationConfig, w SampleWriter, opts ...Option) (*Simulator, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{withTicker(clock.newTicker)}, opts...)
	s := NewSimulator(cfg, w, opts...)
	t.Cleanup(s.Close)
	return s, clock
}

func datasetLen(t *testing.T, s *Simulator, ch telemetry.Channel) int {
	t.Helper()
	d, ok := s.ChartData().Dataset(ch)
	require.True(t, ok, "missing channel %s", ch)
	return d.Len()
}

func TestNewSimulatorSeedsEveryChannel(t *testing.T) {
	s, _ := newTestSimulator(t, testConfig(), nil)

	assert.False(t, s.Running())
	assert.Equal(t, int64(0), s.ElapsedSeconds())
	state := s.ChartData()
	require.Equal(t, 6, state.Len())
	assert.Equal(t, []telemetry.Channel{
		telemetry.ChannelFlow,
		telemetry.ChannelDensity,
		telemetry.ChannelSurfacePressure,
		telemetry.ChannelStandpipePressure,
		telemetry.ChannelBottomHolePressure,
		telemetry.ChannelChoke,
	}, state.Channels())
	for _, ch := range state.Channels() {
		assert.Equal(t, config.DefaultSeedPoints, datasetLen(t, s, ch))
	}
}

func TestSeedEndsAtStartupTime(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSimulator(t, testConfig(), nil, WithClock(func() time.Time { return start }))

	d, _ := s.ChartData().Dataset(telemetry.ChannelFlow)
	last, ok := d.Last()
	require.True(t, ok)
	assert.Equal(t, "12:00:00", last.Label)
	assert.Equal(t, "11:58:22", d.Points()[0].Label)
}

func TestStartResetsTimer(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)

	s.SetRunning(true)
	fire(t, clock.latest(t, time.Second), 3)
	require.Eventually(t, func() bool { return s.ElapsedSeconds() == 3 }, waitFor, pollInt)

	s.SetRunning(true)
	assert.Equal(t, int64(0), s.ElapsedSeconds())
	assert.True(t, s.Running())
	assert.Equal(t, 1, clock.created(time.Second), "repeated start must not restart tasks")
	assert.Equal(t, 1, clock.created(2*time.Second))
}

func TestStopResetsTimer(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)

	s.SetRunning(true)
	fire(t, clock.latest(t, time.Second), 4)
	require.Eventually(t, func() bool { return s.ElapsedSeconds() == 4 }, waitFor, pollInt)

	s.SetRunning(false)
	assert.False(t, s.Running())
	assert.Equal(t, int64(0), s.ElapsedSeconds())
}

func TestTimerAccumulatesWhileRunning(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)

	s.SetRunning(true)
	timer := clock.latest(t, time.Second)
	for i := int64(1); i <= 5; i++ {
		fire(t, timer, 1)
		require.Eventually(t, func() bool { return s.ElapsedSeconds() == i }, waitFor, pollInt)
	}
	assert.Equal(t, "00:05", s.FormattedElapsed())
}

func TestNoAccumulationWhileStopped(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)
	assert.Zero(t, clock.created(time.Second), "no tasks before the first start")

	s.SetRunning(true)
	timer := clock.latest(t, time.Second)
	data := clock.latest(t, 2*time.Second)
	s.SetRunning(false)

	assert.True(t, timer.isStopped())
	assert.True(t, data.isStopped())
	select {
	case timer.c <- time.Now():
		t.Fatal("timer task still receiving after stop")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, int64(0), s.ElapsedSeconds())
}

func TestDataTickAppendsOnePointPerChannel(t *testing.T) {
	w := &MockWriter{}
	s, clock := newTestSimulator(t, testConfig(), w)

	s.SetRunning(true)
	fire(t, clock.latest(t, 2*time.Second), 1)
	require.Eventually(t, func() bool { return len(w.rows()) == 6 }, waitFor, pollInt)

	for _, ch := range s.ChartData().Channels() {
		assert.Equal(t, config.DefaultSeedPoints+1, datasetLen(t, s, ch))
	}
	run := s.ControlState().RunID
	require.NotEmpty(t, run)
	for _, r := range w.rows() {
		assert.Equal(t, run, r.RunID)
		assert.Equal(t, config.DefaultWellID, r.WellID)
		assert.NotEmpty(t, r.Values)
	}
}

func TestSnapshotsAreIndependent(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)
	before := s.ChartData()
	flowBefore, _ := before.Dataset(telemetry.ChannelFlow)
	firstBefore := flowBefore.Points()[0]

	s.SetRunning(true)
	fire(t, clock.latest(t, 2*time.Second), 2)
	require.Eventually(t, func() bool {
		return datasetLen(t, s, telemetry.ChannelFlow) == config.DefaultSeedPoints+2
	}, waitFor, pollInt)

	for _, ch := range before.Channels() {
		d, _ := before.Dataset(ch)
		assert.Equal(t, config.DefaultSeedPoints, d.Len(), "old snapshot of %s changed", ch)
	}
	flowAfter, _ := s.ChartData().Dataset(telemetry.ChannelFlow)
	assert.Equal(t, firstBefore.Label, flowAfter.Points()[0].Label)
}

func TestTicksOnlyTouchTheirOwnFacet(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)
	s.SetRunning(true)
	before := s.ChartData()

	fire(t, clock.latest(t, 2*time.Second), 1)
	require.Eventually(t, func() bool {
		return datasetLen(t, s, telemetry.ChannelFlow) == config.DefaultSeedPoints+1
	}, waitFor, pollInt)
	assert.Equal(t, int64(0), s.ElapsedSeconds(), "data tick changed the timer")
	assert.True(t, s.Running(), "data tick changed the run flag")
	afterData := s.ChartData()
	for _, ch := range before.Channels() {
		d, _ := afterData.Dataset(ch)
		assert.Equal(t, config.DefaultSeedPoints+1, d.Len(), "channel %s", ch)
	}

	fire(t, clock.latest(t, time.Second), 1)
	require.Eventually(t, func() bool { return s.ElapsedSeconds() == 1 }, waitFor, pollInt)
	afterTimer := s.ChartData()
	for _, ch := range afterData.Channels() {
		d, _ := afterData.Dataset(ch)
		e, _ := afterTimer.Dataset(ch)
		require.Equal(t, d.Len(), e.Len(), "timer tick changed %s", ch)
		assert.Same(t, &d.Points()[0], &e.Points()[0], "timer tick replaced %s", ch)
	}
}

func TestDataSinceSkipsUnchangedCharts(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)
	s.SetRunning(true)

	full := s.DataState()
	require.NotNil(t, full.Charts)
	assert.Equal(t, 6, full.Charts.Len())

	fire(t, clock.latest(t, time.Second), 1)
	require.Eventually(t, func() bool { return s.ElapsedSeconds() == 1 }, waitFor, pollInt)
	d := s.DataSince(full.Charts)
	assert.Nil(t, d.Charts)
	assert.Equal(t, "00:01", d.Elapsed)

	fire(t, clock.latest(t, 2*time.Second), 1)
	require.Eventually(t, func() bool { return s.DataSince(full.Charts).Charts != nil }, waitFor, pollInt)
	flow, _ := s.DataSince(full.Charts).Charts.Dataset(telemetry.ChannelFlow)
	assert.Equal(t, config.DefaultSeedPoints+1, flow.Len())
}

func TestBasicRunCycle(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)
	require.Equal(t, 50, datasetLen(t, s, telemetry.ChannelFlow))

	s.SetRunning(true)
	data := clock.latest(t, 2*time.Second)
	timer := clock.latest(t, time.Second)
	fire(t, data, 3)
	fire(t, timer, 6)

	require.Eventually(t, func() bool {
		return datasetLen(t, s, telemetry.ChannelFlow) == 53 && s.ElapsedSeconds() == 6
	}, waitFor, pollInt)
	for _, ch := range s.ChartData().Channels() {
		assert.Equal(t, 53, datasetLen(t, s, ch))
	}

	s.SetRunning(false)
	assert.False(t, s.Running())
	assert.Equal(t, int64(0), s.ElapsedSeconds())
	for _, ch := range s.ChartData().Channels() {
		assert.Equal(t, 53, datasetLen(t, s, ch), "stop must not clear %s", ch)
	}
}

func TestIdempotentStop(t *testing.T) {
	w := &MockWriter{}
	s, clock := newTestSimulator(t, testConfig(), w)
	before := s.ChartData()

	s.SetRunning(false)

	assert.False(t, s.Running())
	assert.Equal(t, int64(0), s.ElapsedSeconds())
	assert.Zero(t, clock.created(time.Second))
	assert.Zero(t, clock.created(2*time.Second))
	for _, ch := range before.Channels() {
		assert.Equal(t, config.DefaultSeedPoints, datasetLen(t, s, ch))
	}
	require.Len(t, w.states(), 1)
	assert.False(t, w.states()[0].Running)
}

func TestRestartStartsFreshTasks(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)

	s.SetRunning(true)
	first := s.ControlState().RunID
	s.SetRunning(false)
	s.SetRunning(true)

	assert.NotEqual(t, first, s.ControlState().RunID)
	assert.Equal(t, 2, clock.created(time.Second))
	fire(t, clock.latest(t, time.Second), 2)
	require.Eventually(t, func() bool { return s.ElapsedSeconds() == 2 }, waitFor, pollInt)
}

func TestStateRowsOnEveryCall(t *testing.T) {
	w := &MockWriter{}
	s, _ := newTestSimulator(t, testConfig(), w)

	s.SetRunning(true)
	s.SetRunning(true)
	s.SetRunning(false)

	states := w.states()
	require.Len(t, states, 3)
	assert.True(t, states[0].Running)
	assert.True(t, states[1].Running)
	assert.False(t, states[2].Running)
	assert.Equal(t, states[0].RunID, states[2].RunID)
}

func TestWatchControlFiresOnFlagChange(t *testing.T) {
	s, _ := newTestSimulator(t, testConfig(), nil)
	ch, cancel := s.WatchControl()
	defer cancel()

	s.SetRunning(false)
	select {
	case <-ch:
		t.Fatal("control facet fired without a flag change")
	default:
	}

	s.SetRunning(true)
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("control facet did not fire on start")
	}
	assert.True(t, s.ControlState().Running)
}

func TestWatchDataFiresOnTicksAndReset(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)
	ch, cancel := s.WatchData()
	defer cancel()

	s.SetRunning(false)
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("data facet did not fire on reset")
	}

	s.SetRunning(true)
	<-ch
	fire(t, clock.latest(t, time.Second), 1)
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("data facet did not fire on timer tick")
	}
	require.Eventually(t, func() bool { return s.DataState().ElapsedSeconds == 1 }, waitFor, pollInt)
	assert.Equal(t, "00:01", s.DataState().Elapsed)
}

func TestCloseEndsWatchers(t *testing.T) {
	s, clock := newTestSimulator(t, testConfig(), nil)
	ch, _ := s.WatchControl()
	s.SetRunning(true)
	<-ch

	s.Close()
	_, open := <-ch
	assert.False(t, open)
	assert.True(t, clock.latest(t, time.Second).isStopped())

	s.SetRunning(true)
	assert.False(t, s.Running(), "closed simulator must ignore SetRunning")
}

func TestRunAutostartAndTeardown(t *testing.T) {
	cfg := testConfig()
	cfg.Autostart = true
	cfg.DataTickInterval = 10 * time.Millisecond
	cfg.TimerTickInterval = 5 * time.Millisecond
	w := &MockWriter{}
	s := NewSimulator(cfg, w)

	ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), logging.New("error")))
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(w.rows()) >= 12 && s.ElapsedSeconds() >= 2 }, waitFor, pollInt)
	cancel()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, s.Running())
	n := len(w.rows())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(w.rows()), "rows written after teardown")
}

func TestMaxPointsBoundsSeries(t *testing.T) {
	cfg := testConfig()
	cfg.SeedPoints = 5
	cfg.MaxPoints = 5
	s, clock := newTestSimulator(t, cfg, nil)
	d, _ := s.ChartData().Dataset(telemetry.ChannelChoke)
	oldest := d.Points()[0].Time

	s.SetRunning(true)
	fire(t, clock.latest(t, 2*time.Second), 2)
	require.Eventually(t, func() bool {
		d, _ := s.ChartData().Dataset(telemetry.ChannelChoke)
		return d.Points()[0].Time.After(oldest)
	}, waitFor, pollInt)
	assert.Equal(t, 5, datasetLen(t, s, telemetry.ChannelChoke))
}

func TestGeneratedValuesStayInBounds(t *testing.T) {
	s, _ := newTestSimulator(t, testConfig(), nil)
	for i := 0; i < 200; i++ {
		s.dataTick(context.Background(), "run")
	}
	state := s.ChartData()
	for _, spec := range s.Channels() {
		d, _ := state.Dataset(spec.Channel)
		for _, p := range d.Points() {
			for _, f := range spec.Fields {
				v := p.Values[f.Name]
				assert.GreaterOrEqual(t, v, f.Min, "%s.%s", spec.Channel, f.Name)
				assert.LessOrEqual(t, v, f.Max, "%s.%s", spec.Channel, f.Name)
			}
		}
	}
}

func TestMetricsTrackEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s, clock := newTestSimulator(t, testConfig(), nil, WithMetrics(m))

	assert.Equal(t, float64(50), testutil.ToFloat64(m.ChannelPoints.WithLabelValues("flow")))
	s.SetRunning(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Running))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs))

	fire(t, clock.latest(t, 2*time.Second), 1)
	fire(t, clock.latest(t, time.Second), 2)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.DataTicks) == 1 && testutil.ToFloat64(m.TimerTicks) == 2
	}, waitFor, pollInt)
	assert.Equal(t, float64(51), testutil.ToFloat64(m.ChannelPoints.WithLabelValues("flow")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Elapsed))

	s.SetRunning(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Running))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Elapsed))
}

func TestElapsedGaugeMatchesCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s, clock := newTestSimulator(t, testConfig(), nil, WithMetrics(m))
	s.SetRunning(true)
	timer := clock.latest(t, time.Second)

	for i := 1; i <= 50; i++ {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SetRunning(true)
		}()
		fire(t, timer, 1)
		wg.Wait()
		require.Eventually(t, func() bool {
			return testutil.ToFloat64(m.TimerTicks) == float64(i)
		}, waitFor, pollInt)
		assert.Equal(t, float64(s.ElapsedSeconds()), testutil.ToFloat64(m.Elapsed), "iteration %d", i)
	}
}

func TestNegativeSeedPointsWithoutDefaults(t *testing.T) {
	cfg := &config.SimulationConfig{SeedPoints: -1, Seed: 1}
	s, _ := newTestSimulator(t, cfg, nil)
	for _, ch := range s.ChartData().Channels() {
		assert.Zero(t, datasetLen(t, s, ch))
	}
}

func TestFormatElapsed(t *testing.T) {
	cases := map[int64]string{
		0:    "00:00",
		6:    "00:06",
		65:   "01:05",
		3599: "59:59",
		3600: "01:00:00",
		3725: "01:02:05",
		-3:   "00:00",
	}
	for sec, want := range cases {
		assert.Equal(t, want, FormatElapsed(sec), "FormatElapsed(%d)", sec)
	}
}
