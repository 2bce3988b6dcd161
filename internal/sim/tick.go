package sim

import (
	"context"
	"time"

	"mpd-sim/internal/logging"
	"mpd-sim/internal/telemetry"
)

// ticker is the part of time.Ticker the periodic tasks use.
type ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) Chan() <-chan time.Time { return t.C }

func newTimeTicker(d time.Duration) ticker { return timeTicker{time.NewTicker(d)} }

// task is one running periodic loop.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// stop cancels the loop and waits until it has returned.
func (t *task) stop() {
	t.cancel()
	<-t.done
}

// Run blocks until ctx is done, then stops the periodic tasks.
func (s *Simulator) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting simulator",
		"well_id", s.wellID,
		"data_tick_interval", s.dataInterval,
		"timer_tick_interval", s.timerInterval,
		"autostart", s.autostart)
	if s.autostart {
		s.SetRunning(true)
	}
	<-ctx.Done()
	log.Info("stopping simulator")
	s.Close()
}

// startTasks launches the data and timer loops. Callers hold s.mu.
func (s *Simulator) startTasks(runID string) {
	s.dataTask = s.startTask(s.dataInterval, func(ctx context.Context) {
		s.dataTick(ctx, runID)
	})
	s.timerTask = s.startTask(s.timerInterval, s.timerTick)
}

// stopTasks cancels both loops and waits for them. Callers hold s.mu.
func (s *Simulator) stopTasks() {
	for _, t := range []*task{s.dataTask, s.timerTask} {
		if t != nil {
			t.stop()
		}
	}
	s.dataTask, s.timerTask = nil, nil
}

func (s *Simulator) startTask(interval time.Duration, fn func(context.Context)) *task {
	ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), s.log))
	t := &task{cancel: cancel, done: make(chan struct{})}
	tk := s.newTicker(interval)
	go func() {
		defer close(t.done)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.Chan():
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()
	return t
}

// dataTick appends one generated point to every channel and publishes the
// new datasets. Only one data loop runs at a time, so the series buffers
// have a single writer.
func (s *Simulator) dataTick(ctx context.Context, runID string) {
	now := s.now()
	rows := make([]telemetry.SampleRow, 0, len(s.specs))
	updates := make([]telemetry.ChartDataset, 0, len(s.specs))
	for _, spec := range s.specs {
		ser := s.series[spec.Channel]
		prev, _ := ser.Last()
		p := s.gen.Next(spec, prev, now)
		ser.Append(p)
		updates = append(updates, ser.Snapshot())
		rows = append(rows, telemetry.SampleRow{
			WellID:    s.wellID,
			RunID:     runID,
			Channel:   spec.Channel,
			Label:     p.Label,
			Values:    p.Values,
			Timestamp: now.UTC(),
		})
		s.metrics.observeSample(spec.Channel, ser.Len(), p.Values)
	}
	next := s.state.Load().With(updates...)
	s.state.Store(&next)
	s.metrics.incDataTicks()
	s.data.notify()
	s.writeSamples(ctx, rows)
}

// timerTick advances the elapsed counter by one second.
func (s *Simulator) timerTick(context.Context) {
	s.elapsedMu.Lock()
	sec := s.elapsed.Add(1)
	s.metrics.setElapsed(sec)
	s.elapsedMu.Unlock()
	s.metrics.incTimerTicks()
	s.data.notify()
}

func (s *Simulator) writeSamples(ctx context.Context, rows []telemetry.SampleRow) {
	if s.writer == nil || len(rows) == 0 {
		return
	}
	log := logging.FromContext(ctx)
	// Batch support if writer implements WriteBatch
	if bw, ok := s.writer.(batchWriter); ok {
		if err := bw.WriteBatch(rows); err != nil {
			log.Warn("batch write failed", "err", err)
		}
		return
	}
	for _, row := range rows {
		if err := s.writer.Write(row); err != nil {
			log.Warn("write failed", "channel", row.Channel, "err", err)
		}
	}
}
