// Package disturbance implements the stochastic inlet-flow process
// (spec.md §3, §4.E): either Constant (no disturbance) or Brownian, a
// bounded random walk applied to the inlet flow each tick.
package disturbance

import (
	"math"
	"math/rand"

	"github.com/kallisto-labs/tanksim/internal/simerr"
)

// Mode tags the disturbance process.
type Mode int

const (
	ModeConstant Mode = iota
	ModeBrownian
)

func (m Mode) String() string {
	switch m {
	case ModeConstant:
		return "constant"
	case ModeBrownian:
		return "brownian"
	default:
		return "unknown"
	}
}

// Config is the tagged disturbance configuration. Min/Max/Sigma are only
// meaningful when Mode is ModeBrownian.
type Config struct {
	Mode Mode
	Min  float64
	Max  float64
	// Sigma is the standard deviation of the per-tick increment, not of the
	// stationary distribution (spec.md §4.E numeric details).
	Sigma float64
}

// Validate checks structural constraints for Brownian mode. Constant mode
// has no fields to validate.
func (c Config) Validate() error {
	if c.Mode != ModeBrownian {
		return nil
	}
	if !finite(c.Min) || !finite(c.Max) || !finite(c.Sigma) {
		return simerr.Validation("brownian disturbance bounds and sigma must be finite")
	}
	if !(0 <= c.Min && c.Min < c.Max) {
		return simerr.Validation("brownian disturbance requires 0 <= min (%v) < max (%v)", c.Min, c.Max)
	}
	if c.Sigma < 0 {
		return simerr.Validation("brownian disturbance sigma must be >= 0, got %v", c.Sigma)
	}
	return nil
}

// Generator owns the pseudo-random source and the current disturbance
// configuration. It is seeded once at construction; Reset() reseeds it so
// that a repeated command trace reproduces the prior trajectory
// byte-for-byte (spec.md invariant 11).
type Generator struct {
	cfg  Config
	seed int64
	rng  *rand.Rand
}

// New builds a Generator for cfg, seeded with seed.
func New(cfg Config, seed int64) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		cfg:  cfg,
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}, nil
}

// SetConfig changes the disturbance mode/parameters. The rng stream is not
// reset: switching modes mid-run does not induce a discontinuity, and the
// replacement process, if any, continues from whatever value the caller
// passes into the next Next() call (spec.md §4.E).
func (g *Generator) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

// Config returns the generator's current configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Reset reseeds the rng from the construction-time seed, so a re-run of the
// same command trace is reproducible.
func (g *Generator) Reset() {
	g.rng = rand.New(rand.NewSource(g.seed))
}

// Next returns the inlet flow for the next tick given the current value.
// In Constant mode it returns current unchanged. In Brownian mode it draws
// xi ~ N(0, sigma), adds it to current, and hard-clips to [min, max];
// sigma=0 degenerates to a constant (no drift).
func (g *Generator) Next(current float64) float64 {
	if g.cfg.Mode != ModeBrownian {
		return current
	}
	xi := g.rng.NormFloat64() * g.cfg.Sigma
	return clip(current+xi, g.cfg.Min, g.cfg.Max)
}

func clip(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
