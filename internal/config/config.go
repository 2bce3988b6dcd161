// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"mpd-sim/internal/telemetry"
)

// Defaults applied when the YAML omits a value.
const (
	DefaultWellID            = "well-01"
	DefaultDataTickInterval  = 2 * time.Second
	DefaultTimerTickInterval = time.Second
	DefaultSeedPoints        = 50
	DefaultAdminAddr         = ":8080"
	DefaultPositionBackend   = "file"
	DefaultPositionPath      = "timer-position.json"
	DefaultPositionX         = 24
	DefaultPositionY         = 24
)

// Field overrides the random-walk parameters of one channel field.
type Field struct {
	Initial float64 `yaml:"initial"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Step    float64 `yaml:"step"`
	Unit    string  `yaml:"unit"`
}

// Channel overrides fields of a built-in channel.
type Channel struct {
	Name   string           `yaml:"name"`
	Fields map[string]Field `yaml:"fields"`
}

// Admin configures the HTTP dashboard server.
type Admin struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Position configures where the timer widget position is remembered.
type Position struct {
	Backend  string  `yaml:"backend"`
	Path     string  `yaml:"path"`
	DefaultX float64 `yaml:"default_x"`
	DefaultY float64 `yaml:"default_y"`
}

// SimulationConfig is the root configuration of the simulator.
type SimulationConfig struct {
	WellID            string        `yaml:"well_id"`
	LogLevel          string        `yaml:"log_level"`
	DataTickInterval  time.Duration `yaml:"data_tick_interval"`
	TimerTickInterval time.Duration `yaml:"timer_tick_interval"`
	SeedPoints        int           `yaml:"seed_points"`
	MaxPoints         int           `yaml:"max_points"`
	Seed              int64         `yaml:"seed"`
	Autostart         bool          `yaml:"autostart"`
	Admin             Admin         `yaml:"admin"`
	Position          Position      `yaml:"position"`
	Channels          []Channel     `yaml:"channels"`
}

// Default returns a configuration with every default applied.
func Default() *SimulationConfig {
	cfg := &SimulationConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// Load loads YAML config and validates it against a CUE schema
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	// Validate with CUE first
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg SimulationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides values from WELL_ID and DATA_TICK_INTERVAL.
func (c *SimulationConfig) ApplyEnv() error {
	if v := os.Getenv("WELL_ID"); v != "" {
		c.WellID = v
	}
	if v := os.Getenv("DATA_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DATA_TICK_INTERVAL: %w", err)
		}
		c.DataTickInterval = d
	}
	return nil
}

// ApplyDefaults fills zero values.
func (c *SimulationConfig) ApplyDefaults() {
	if c.WellID == "" {
		c.WellID = DefaultWellID
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataTickInterval <= 0 {
		c.DataTickInterval = DefaultDataTickInterval
	}
	if c.TimerTickInterval <= 0 {
		c.TimerTickInterval = DefaultTimerTickInterval
	}
	if c.SeedPoints <= 0 {
		c.SeedPoints = DefaultSeedPoints
	}
	if c.MaxPoints < 0 {
		c.MaxPoints = 0
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = DefaultAdminAddr
	}
	if c.Position.Backend == "" {
		c.Position.Backend = DefaultPositionBackend
	}
	if c.Position.Path == "" {
		c.Position.Path = DefaultPositionPath
	}
	if c.Position.DefaultX == 0 && c.Position.DefaultY == 0 {
		c.Position.DefaultX = DefaultPositionX
		c.Position.DefaultY = DefaultPositionY
	}
}

// Validate checks constraints the CUE schema cannot express.
func (c *SimulationConfig) Validate() error {
	if c.MaxPoints > 0 && c.MaxPoints < c.SeedPoints {
		return fmt.Errorf("max_points (%d) must be 0 or at least seed_points (%d)", c.MaxPoints, c.SeedPoints)
	}
	switch c.Position.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown position backend %q", c.Position.Backend)
	}
	seen := make(map[string]bool)
	for _, ch := range c.Channels {
		if !telemetry.IsKnownChannel(telemetry.Channel(ch.Name)) {
			return fmt.Errorf("unknown channel %q", ch.Name)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channel %q configured twice", ch.Name)
		}
		seen[ch.Name] = true
		for name, f := range ch.Fields {
			if f.Min > f.Max {
				return fmt.Errorf("channel %s field %s: min %v > max %v", ch.Name, name, f.Min, f.Max)
			}
			if f.Initial < f.Min || f.Initial > f.Max {
				return fmt.Errorf("channel %s field %s: initial %v outside [%v, %v]", ch.Name, name, f.Initial, f.Min, f.Max)
			}
			if f.Step < 0 {
				return fmt.Errorf("channel %s field %s: negative step", ch.Name, name)
			}
		}
	}
	return nil
}

// ChannelSpecs merges the configured overrides into the built-in channel set.
// Configured fields a channel does not have are added to it.
func (c *SimulationConfig) ChannelSpecs() []telemetry.ChannelSpec {
	specs := telemetry.DefaultChannelSpecs()
	overrides := make(map[telemetry.Channel]Channel, len(c.Channels))
	for _, ch := range c.Channels {
		overrides[telemetry.Channel(ch.Name)] = ch
	}
	for i, spec := range specs {
		o, ok := overrides[spec.Channel]
		if !ok {
			continue
		}
		applied := make(map[string]bool)
		for j, f := range spec.Fields {
			if of, ok := o.Fields[f.Name]; ok {
				specs[i].Fields[j] = fieldSpec(f.Name, of, f.Unit)
				applied[f.Name] = true
			}
		}
		for _, name := range slices.Sorted(maps.Keys(o.Fields)) {
			if !applied[name] {
				specs[i].Fields = append(specs[i].Fields, fieldSpec(name, o.Fields[name], ""))
			}
		}
	}
	return specs
}

func fieldSpec(name string, f Field, fallbackUnit string) telemetry.FieldSpec {
	unit := f.Unit
	if unit == "" {
		unit = fallbackUnit
	}
	return telemetry.FieldSpec{Name: name, Unit: unit, Initial: f.Initial, Min: f.Min, Max: f.Max, Step: f.Step}
}
