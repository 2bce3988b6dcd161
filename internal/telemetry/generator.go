package telemetry

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// Generator produces synthetic channel samples. Each channel draws from its
// own random source so channels never influence one another. A Generator is
// not safe for concurrent use.
type Generator struct {
	rands map[Channel]*rand.Rand
	seed  int64
}

// NewGenerator creates a generator. A zero seed picks a time-based one.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rands: make(map[Channel]*rand.Rand), seed: seed}
}

func (g *Generator) randFor(ch Channel) *rand.Rand {
	if r, ok := g.rands[ch]; ok {
		return r
	}
	h := fnv.New64a()
	h.Write([]byte(ch))
	r := rand.New(rand.NewSource(g.seed ^ int64(h.Sum64())))
	g.rands[ch] = r
	return r
}

// Next returns the point following prev for spec, stamped with now. A zero
// prev (no Values) starts every field at its initial value.
func (g *Generator) Next(spec ChannelSpec, prev ChartPoint, now time.Time) ChartPoint {
	r := g.randFor(spec.Channel)
	values := make(map[string]float64, len(spec.Fields))
	for _, f := range spec.Fields {
		last, ok := prev.Values[f.Name]
		if !ok {
			values[f.Name] = clamp(f.Initial, f)
			continue
		}
		values[f.Name] = randomWalk(last, f, r)
	}
	return NewChartPoint(now, values)
}

// Seed fabricates n historical points ending at end, spaced interval apart.
// A negative n yields no points.
func (g *Generator) Seed(spec ChannelSpec, n int, end time.Time, interval time.Duration) []ChartPoint {
	n = max(n, 0)
	points := make([]ChartPoint, 0, n)
	var prev ChartPoint
	for i := n - 1; i >= 0; i-- {
		p := g.Next(spec, prev, end.Add(-time.Duration(i)*interval))
		points = append(points, p)
		prev = p
	}
	return points
}

// randomWalk moves v by at most f.Step and keeps it inside [f.Min, f.Max].
func randomWalk(v float64, f FieldSpec, r *rand.Rand) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = f.Initial
	}
	delta := (r.Float64()*2 - 1) * f.Step
	return clamp(v+delta, f)
}

func clamp(v float64, f FieldSpec) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = f.Initial
	}
	if v < f.Min {
		return f.Min
	}
	if v > f.Max {
		return f.Max
	}
	return v
}
