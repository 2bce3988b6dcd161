// Chart model shared by the engine and its consumers
package telemetry

import (
	"encoding/json"
	"time"
)

// Channel names one drilling time-series.
type Channel string

// Channels rendered by the dashboard.
const (
	ChannelFlow               Channel = "flow"
	ChannelDensity            Channel = "density"
	ChannelSurfacePressure    Channel = "surfacePressure"
	ChannelStandpipePressure  Channel = "standpipePressure"
	ChannelBottomHolePressure Channel = "bottomHolePressure"
	ChannelChoke              Channel = "choke"
)

// LabelLayout formats point timestamps for chart axes.
const LabelLayout = "15:04:05"

// ChartPoint is one sample of a channel. Values holds the channel's named fields.
type ChartPoint struct {
	Label  string
	Time   time.Time
	Values map[string]float64
}

// NewChartPoint stamps values with t and its axis label.
func NewChartPoint(t time.Time, values map[string]float64) ChartPoint {
	return ChartPoint{Label: t.Format(LabelLayout), Time: t, Values: values}
}

// MarshalJSON flattens the point to {"time": label, field: value, ...}.
func (p ChartPoint) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Values)+1)
	for k, v := range p.Values {
		m[k] = v
	}
	m["time"] = p.Label
	return json.Marshal(m)
}

// ChartDataset is an immutable view of one channel's points in chronological order.
type ChartDataset struct {
	Channel Channel
	points  []ChartPoint
}

// NewChartDataset copies points into a dataset for ch.
func NewChartDataset(ch Channel, points []ChartPoint) ChartDataset {
	cp := make([]ChartPoint, len(points))
	copy(cp, points)
	return ChartDataset{Channel: ch, points: cp}
}

// Len returns the number of points.
func (d ChartDataset) Len() int { return len(d.points) }

// Points returns the points. The slice is capped so appending to it never
// touches the engine's buffer; callers must not modify the elements.
func (d ChartDataset) Points() []ChartPoint {
	return d.points[:len(d.points):len(d.points)]
}

// Last returns the newest point.
func (d ChartDataset) Last() (ChartPoint, bool) {
	if len(d.points) == 0 {
		return ChartPoint{}, false
	}
	return d.points[len(d.points)-1], true
}

// MarshalJSON encodes the dataset as an array of points.
func (d ChartDataset) MarshalJSON() ([]byte, error) {
	if d.points == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d.points)
}

// ChartDataState maps every channel to its dataset. Values are never mutated
// after construction; updates produce a new state with With.
type ChartDataState struct {
	sets  map[Channel]ChartDataset
	order []Channel
}

// NewChartDataState builds a state whose key set and order follow sets.
func NewChartDataState(sets ...ChartDataset) ChartDataState {
	s := ChartDataState{sets: make(map[Channel]ChartDataset, len(sets))}
	for _, d := range sets {
		if _, dup := s.sets[d.Channel]; !dup {
			s.order = append(s.order, d.Channel)
		}
		s.sets[d.Channel] = d
	}
	return s
}

// With returns a copy of s with the given datasets replaced. Channels outside
// the fixed key set are ignored; untouched channels keep their dataset.
func (s ChartDataState) With(updates ...ChartDataset) ChartDataState {
	next := ChartDataState{sets: make(map[Channel]ChartDataset, len(s.sets)), order: s.order}
	for ch, d := range s.sets {
		next.sets[ch] = d
	}
	for _, d := range updates {
		if _, ok := next.sets[d.Channel]; ok {
			next.sets[d.Channel] = d
		}
	}
	return next
}

// Dataset returns the dataset of ch.
func (s ChartDataState) Dataset(ch Channel) (ChartDataset, bool) {
	d, ok := s.sets[ch]
	return d, ok
}

// Channels returns the channel names in display order.
func (s ChartDataState) Channels() []Channel {
	out := make([]Channel, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of channels.
func (s ChartDataState) Len() int { return len(s.order) }

// MarshalJSON encodes the state as {"channel": [points...], ...}.
func (s ChartDataState) MarshalJSON() ([]byte, error) {
	m := make(map[Channel]ChartDataset, len(s.sets))
	for ch, d := range s.sets {
		m[ch] = d
	}
	return json.Marshal(m)
}

// SampleRow is one generated point as handed to live writers.
type SampleRow struct {
	WellID    string             `json:"well_id"`
	RunID     string             `json:"run_id"`
	Channel   Channel            `json:"channel"`
	Label     string             `json:"time"`
	Values    map[string]float64 `json:"values"`
	Timestamp time.Time          `json:"ts"`
}

// RunStateRow records a run flag change or timer reset.
type RunStateRow struct {
	WellID         string    `json:"well_id"`
	RunID          string    `json:"run_id"`
	Running        bool      `json:"running"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	Timestamp      time.Time `json:"ts"`
}
