package telemetry

// Series is the writer-side buffer behind a ChartDataset. It is owned by a
// single goroutine; Snapshot hands out views that stay valid after later appends.
type Series struct {
	channel Channel
	points  []ChartPoint
	max     int
}

// NewSeries creates a series seeded with points. max <= 0 means unbounded.
func NewSeries(ch Channel, seed []ChartPoint, max int) *Series {
	s := &Series{channel: ch, max: max}
	s.points = make([]ChartPoint, 0, len(seed)+1)
	for _, p := range seed {
		s.Append(p)
	}
	return s
}

// Len returns the number of buffered points.
func (s *Series) Len() int { return len(s.points) }

// Last returns the newest point.
func (s *Series) Last() (ChartPoint, bool) {
	if len(s.points) == 0 {
		return ChartPoint{}, false
	}
	return s.points[len(s.points)-1], true
}

// Append adds p, dropping the oldest point when the series is full.
// Indexes already visible to earlier snapshots are never rewritten.
func (s *Series) Append(p ChartPoint) {
	if s.max > 0 && len(s.points) >= s.max {
		s.points = s.points[len(s.points)-s.max+1:]
	}
	s.points = append(s.points, p)
}

// Snapshot returns an immutable view of the current points.
func (s *Series) Snapshot() ChartDataset {
	return ChartDataset{Channel: s.channel, points: s.points[:len(s.points):len(s.points)]}
}
