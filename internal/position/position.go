// Package position remembers where the dashboard timer widget was dropped.
package position

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"mpd-sim/internal/config"
	"mpd-sim/internal/logging"
)

// Key names the stored position in key-value backends.
const Key = "timer-position"

// Position is the top-left corner of the timer widget in CSS pixels.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates are finite numbers.
func (p Position) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Store persists a single Position. Load reports false when nothing usable is
// stored; malformed data is treated the same as no data.
type Store interface {
	Load(ctx context.Context) (Position, bool)
	Save(ctx context.Context, p Position) error
	Clear(ctx context.Context) error
	Close() error
}

// Decode parses a stored position. Anything that is not an object with
// finite numeric x and y yields false.
func Decode(data []byte) (Position, bool) {
	var raw struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw.X == nil || raw.Y == nil {
		return Position{}, false
	}
	p := Position{X: *raw.X, Y: *raw.Y}
	if !p.Valid() {
		return Position{}, false
	}
	return p, true
}

// Encode serializes p for storage.
func Encode(p Position) ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("position (%v, %v) is not finite", p.X, p.Y)
	}
	return json.Marshal(p)
}

// Open returns the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Position) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Path), nil
	case "sqlite":
		return OpenSQLiteStore(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown position backend %q", cfg.Backend)
	}
}

// Memory pairs a Store with the position used when nothing is saved.
type Memory struct {
	store Store
	def   Position
	log   *slog.Logger
}

// NewMemory wraps store. def is returned whenever Load reports false.
func NewMemory(ctx context.Context, store Store, def Position) *Memory {
	return &Memory{store: store, def: def, log: logging.FromContext(ctx)}
}

// Default returns the fallback position.
func (m *Memory) Default() Position { return m.def }

// Get returns the saved position or the default.
func (m *Memory) Get(ctx context.Context) (Position, bool) {
	if p, ok := m.store.Load(ctx); ok {
		return p, true
	}
	m.log.Debug("no stored timer position, using default", "x", m.def.X, "y", m.def.Y)
	return m.def, false
}

// Set saves p.
func (m *Memory) Set(ctx context.Context, p Position) error {
	if err := m.store.Save(ctx, p); err != nil {
		return fmt.Errorf("save timer position: %w", err)
	}
	return nil
}

// Reset forgets the saved position.
func (m *Memory) Reset(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear timer position: %w", err)
	}
	return nil
}
