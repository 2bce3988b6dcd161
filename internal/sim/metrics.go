package sim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mpd-sim/internal/telemetry"
)

// Metrics exposes engine activity to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	Running       prometheus.Gauge
	Elapsed       prometheus.Gauge
	DataTicks     prometheus.Counter
	TimerTicks    prometheus.Counter
	Runs          prometheus.Counter
	ChannelPoints *prometheus.GaugeVec
	ChannelValue  *prometheus.GaugeVec
}

// NewMetrics registers the engine metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Running: f.NewGauge(prometheus.GaugeOpts{
			Name: "mpd_sim_running",
			Help: "1 while the simulation run flag is set",
		}),
		Elapsed: f.NewGauge(prometheus.GaugeOpts{
			Name: "mpd_sim_elapsed_seconds",
			Help: "Seconds counted since the run flag was last set",
		}),
		DataTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "mpd_sim_data_ticks_total",
			Help: "Total number of data ticks",
		}),
		TimerTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "mpd_sim_timer_ticks_total",
			Help: "Total number of timer ticks",
		}),
		Runs: f.NewCounter(prometheus.CounterOpts{
			Name: "mpd_sim_runs_total",
			Help: "Total number of started runs",
		}),
		ChannelPoints: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mpd_sim_channel_points",
			Help: "Number of buffered points per channel",
		}, []string{"channel"}),
		ChannelValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mpd_sim_channel_value",
			Help: "Latest generated value per channel field",
		}, []string{"channel", "field"}),
	}
}

func (m *Metrics) setRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.Running.Set(1)
		return
	}
	m.Running.Set(0)
}

func (m *Metrics) setElapsed(sec int64) {
	if m == nil {
		return
	}
	m.Elapsed.Set(float64(sec))
}

func (m *Metrics) incRuns() {
	if m == nil {
		return
	}
	m.Runs.Inc()
}

func (m *Metrics) incDataTicks() {
	if m == nil {
		return
	}
	m.DataTicks.Inc()
}

func (m *Metrics) incTimerTicks() {
	if m == nil {
		return
	}
	m.TimerTicks.Inc()
}

func (m *Metrics) observeSample(ch telemetry.Channel, points int, values map[string]float64) {
	if m == nil {
		return
	}
	m.ChannelPoints.WithLabelValues(string(ch)).Set(float64(points))
	for field, v := range values {
		m.ChannelValue.WithLabelValues(string(ch), field).Set(v)
	}
}
