// Package modifier applies actuator nonlinearities to a controller's raw
// output before it reaches a plant, for offline what-if analysis (e.g. a
// valve's stiction/deadzone around its closed position).
package modifier

import "math"

type Modifier interface {
	Modify(u float64) float64
}

// DeadzoneModifier models a symmetric actuator deadzone: commands with
// magnitude below Threshold produce no physical movement.
type DeadzoneModifier struct {
	Threshold float64
}

func (m *DeadzoneModifier) Modify(u float64) float64 {
	absU := math.Abs(u)
	if absU < m.Threshold {
		return 0
	}
	if u > 0 {
		return absU - m.Threshold
	}
	return -(absU - m.Threshold)
}

type chain struct {
	modifiers []Modifier
}

func (c *chain) Modify(u float64) float64 {
	for _, mod := range c.modifiers {
		u = mod.Modify(u)
	}
	return u
}

func Chain(mods ...Modifier) Modifier {
	return &chain{modifiers: mods}
}
