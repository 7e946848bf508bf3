package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// BoundaryPolicy selects how the lattice resolves neighbors that fall outside
// the grid.
type BoundaryPolicy string

const (
	BoundaryReflective BoundaryPolicy = "reflective"
	BoundaryPeriodic   BoundaryPolicy = "periodic"
	BoundaryAbsorbing  BoundaryPolicy = "absorbing"
)

// ErrInvalidConfig wraps every validation failure so callers can distinguish
// fatal configuration errors from runtime conditions.
var ErrInvalidConfig = errors.New("invalid configuration")

// Source injects emission into one cell across a tick window. UntilTick of 0
// means the source never expires.
type Source struct {
	Cell      []int   `json:"cell"`
	Strength  float64 `json:"strength"`
	FromTick  uint64  `json:"from_tick"`
	UntilTick uint64  `json:"until_tick,omitempty"`
}

// Seed assigns an initial raw value to one cell before the first tick.
type Seed struct {
	Cell  []int   `json:"cell"`
	Value float64 `json:"value"`
}

// Config is loaded once at startup and immutable afterwards.
type Config struct {
	Dims []int `json:"dims"`

	Gamma float64 `json:"gamma"`
	Alpha float64 `json:"alpha"`
	Omega float64 `json:"omega"`
	Delta float64 `json:"delta"`

	Epsilon float64 `json:"epsilon"`
	PsiMax  float64 `json:"psi_max"`

	DriveMin float64 `json:"drive_min"`
	DriveMax float64 `json:"drive_max"`

	DetectThreshold   float64 `json:"detect_threshold"`
	DissolveThreshold float64 `json:"dissolve_threshold"`
	LostTickLimit     int     `json:"lost_tick_limit"`
	SearchRadius      int     `json:"search_radius"`
	MaxDisplacement   float64 `json:"max_displacement"`

	MaxLag   int            `json:"max_lag"`
	Boundary BoundaryPolicy `json:"boundary"`

	// Seed is recorded with the run for reproducibility bookkeeping. The
	// pipeline is fully deterministic and draws no randomness today; the
	// knob is reserved for stochastic sources.
	Seed    int64    `json:"seed"`
	Seeds   []Seed   `json:"seeds,omitempty"`
	Sources []Source `json:"sources,omitempty"`
}

// Default returns a runnable 2D configuration. Values mirror the reference
// experiment setup and are meant to be overridden per run.
func Default() Config {
	return Config{
		Dims:              []int{32, 32},
		Gamma:             0.25,
		Alpha:             1.0,
		Omega:             0.1,
		Delta:             0.05,
		Epsilon:           1e-9,
		PsiMax:            100,
		DriveMin:          1e-6,
		DriveMax:          1.0,
		DetectThreshold:   0.5,
		DissolveThreshold: 0.05,
		LostTickLimit:     3,
		SearchRadius:      2,
		MaxDisplacement:   3,
		MaxLag:            16,
		Boundary:          BoundaryReflective,
		Seed:              1,
	}
}

// Load reads and validates a JSON config file. Unknown fields are rejected so
// typos fail loudly instead of silently falling back to defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes and validates raw JSON config bytes.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every parameter bound from the configuration contract.
func (c Config) Validate() error {
	if len(c.Dims) == 0 {
		return fmt.Errorf("%w: dims must not be empty", ErrInvalidConfig)
	}
	for i, n := range c.Dims {
		if n <= 0 {
			return fmt.Errorf("%w: dims[%d] must be > 0, got %d", ErrInvalidConfig, i, n)
		}
	}
	if c.Gamma <= 0 || c.Gamma >= 1 {
		return fmt.Errorf("%w: gamma must be in (0, 1), got %g", ErrInvalidConfig, c.Gamma)
	}
	if c.Alpha < 0 {
		return fmt.Errorf("%w: alpha must be >= 0, got %g", ErrInvalidConfig, c.Alpha)
	}
	if c.Omega <= 0 {
		return fmt.Errorf("%w: omega must be > 0, got %g", ErrInvalidConfig, c.Omega)
	}
	if c.Delta <= 0 || c.Delta >= 1 {
		return fmt.Errorf("%w: delta must be in (0, 1), got %g", ErrInvalidConfig, c.Delta)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("%w: epsilon must be > 0, got %g", ErrInvalidConfig, c.Epsilon)
	}
	if c.PsiMax <= c.Epsilon {
		return fmt.Errorf("%w: psi_max must be > epsilon, got %g", ErrInvalidConfig, c.PsiMax)
	}
	if c.DriveMin <= 0 || c.DriveMax < c.DriveMin {
		return fmt.Errorf("%w: drive bounds require 0 < drive_min <= drive_max, got [%g, %g]", ErrInvalidConfig, c.DriveMin, c.DriveMax)
	}
	if c.DetectThreshold <= 0 {
		return fmt.Errorf("%w: detect_threshold must be > 0, got %g", ErrInvalidConfig, c.DetectThreshold)
	}
	if c.DissolveThreshold < 0 || c.DissolveThreshold > c.DetectThreshold {
		return fmt.Errorf("%w: dissolve_threshold must be in [0, detect_threshold], got %g", ErrInvalidConfig, c.DissolveThreshold)
	}
	if c.LostTickLimit < 1 {
		return fmt.Errorf("%w: lost_tick_limit must be >= 1, got %d", ErrInvalidConfig, c.LostTickLimit)
	}
	if c.SearchRadius < 1 {
		return fmt.Errorf("%w: search_radius must be >= 1, got %d", ErrInvalidConfig, c.SearchRadius)
	}
	if c.MaxDisplacement <= 0 {
		return fmt.Errorf("%w: max_displacement must be > 0, got %g", ErrInvalidConfig, c.MaxDisplacement)
	}
	if c.MaxLag < 0 {
		return fmt.Errorf("%w: max_lag must be >= 0, got %d", ErrInvalidConfig, c.MaxLag)
	}
	switch c.Boundary {
	case BoundaryReflective, BoundaryPeriodic, BoundaryAbsorbing:
	default:
		return fmt.Errorf("%w: unsupported boundary policy: %s", ErrInvalidConfig, c.Boundary)
	}
	for i, s := range c.Seeds {
		if len(s.Cell) != len(c.Dims) {
			return fmt.Errorf("%w: seeds[%d] cell rank %d does not match dims rank %d", ErrInvalidConfig, i, len(s.Cell), len(c.Dims))
		}
		if err := c.checkCell(s.Cell); err != nil {
			return fmt.Errorf("%w: seeds[%d]: %v", ErrInvalidConfig, i, err)
		}
	}
	for i, s := range c.Sources {
		if len(s.Cell) != len(c.Dims) {
			return fmt.Errorf("%w: sources[%d] cell rank %d does not match dims rank %d", ErrInvalidConfig, i, len(s.Cell), len(c.Dims))
		}
		if err := c.checkCell(s.Cell); err != nil {
			return fmt.Errorf("%w: sources[%d]: %v", ErrInvalidConfig, i, err)
		}
		if s.Strength < 0 {
			return fmt.Errorf("%w: sources[%d] strength must be >= 0, got %g", ErrInvalidConfig, i, s.Strength)
		}
		if s.UntilTick != 0 && s.UntilTick < s.FromTick {
			return fmt.Errorf("%w: sources[%d] until_tick %d precedes from_tick %d", ErrInvalidConfig, i, s.UntilTick, s.FromTick)
		}
	}
	return nil
}

func (c Config) checkCell(cell []int) error {
	for axis, v := range cell {
		if v < 0 || v >= c.Dims[axis] {
			return fmt.Errorf("cell coordinate %d out of range [0, %d) on axis %d", v, c.Dims[axis], axis)
		}
	}
	return nil
}
