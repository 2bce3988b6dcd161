package telemetry

// FieldSpec bounds the random walk of one numeric field.
type FieldSpec struct {
	Name    string
	Unit    string
	Initial float64
	Min     float64
	Max     float64
	Step    float64
}

// ChannelSpec lists the fields generated for a channel.
type ChannelSpec struct {
	Channel Channel
	Fields  []FieldSpec
}

// DefaultChannelSpecs returns the built-in MPD channel set in display order.
func DefaultChannelSpecs() []ChannelSpec {
	return []ChannelSpec{
		{Channel: ChannelFlow, Fields: []FieldSpec{
			{Name: "in", Unit: "gpm", Initial: 600, Min: 400, Max: 800, Step: 15},
			{Name: "out", Unit: "gpm", Initial: 600, Min: 380, Max: 820, Step: 18},
		}},
		{Channel: ChannelDensity, Fields: []FieldSpec{
			{Name: "in", Unit: "ppg", Initial: 10.5, Min: 9.5, Max: 12.0, Step: 0.05},
			{Name: "out", Unit: "ppg", Initial: 10.6, Min: 9.5, Max: 12.2, Step: 0.06},
		}},
		{Channel: ChannelSurfacePressure, Fields: []FieldSpec{
			{Name: "sbp", Unit: "psi", Initial: 250, Min: 0, Max: 600, Step: 12},
			{Name: "setpoint", Unit: "psi", Initial: 250, Min: 0, Max: 600, Step: 5},
		}},
		{Channel: ChannelStandpipePressure, Fields: []FieldSpec{
			{Name: "spp", Unit: "psi", Initial: 3200, Min: 2500, Max: 4000, Step: 40},
		}},
		{Channel: ChannelBottomHolePressure, Fields: []FieldSpec{
			{Name: "bhp", Unit: "psi", Initial: 6200, Min: 5800, Max: 6800, Step: 25},
			{Name: "ecd", Unit: "ppg", Initial: 11.2, Min: 10.5, Max: 12.5, Step: 0.03},
		}},
		{Channel: ChannelChoke, Fields: []FieldSpec{
			{Name: "a", Unit: "%", Initial: 45, Min: 0, Max: 100, Step: 2},
			{Name: "b", Unit: "%", Initial: 40, Min: 0, Max: 100, Step: 2},
		}},
	}
}

// IsKnownChannel reports whether ch belongs to the built-in channel set.
func IsKnownChannel(ch Channel) bool {
	for _, s := range DefaultChannelSpecs() {
		if s.Channel == ch {
			return true
		}
	}
	return false
}

// Unit returns the unit of field name, or "" if the channel has no such field.
func (c ChannelSpec) Unit(name string) string {
	for _, f := range c.Fields {
		if f.Name == name {
			return f.Unit
		}
	}
	return ""
}
