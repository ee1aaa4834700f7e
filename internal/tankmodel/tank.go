// Package tankmodel implements the gravity-drained single-tank plant: a
// stateless mapping from (state, inputs) to a state derivative, plus the
// algebraic outlet-flow relation it shares with the historian for reporting.
package tankmodel

import (
	"math"

	"github.com/kallisto-labs/tanksim/internal/simerr"
)

// Params are the tank's immutable physical parameters.
type Params struct {
	Area           float64 // m^2, cross-sectional area, > 0
	DischargeCoeff float64 // m^2.5/s, k_v, > 0
	MaxHeight      float64 // m, H_max, > 0
}

// Validate rejects non-finite or non-positive parameters.
func (p Params) Validate() error {
	if !finite(p.Area) || p.Area <= 0 {
		return simerr.Construction("tank area must be finite and > 0, got %v", p.Area)
	}
	if !finite(p.DischargeCoeff) || p.DischargeCoeff <= 0 {
		return simerr.Construction("tank discharge coefficient must be finite and > 0, got %v", p.DischargeCoeff)
	}
	if !finite(p.MaxHeight) || p.MaxHeight <= 0 {
		return simerr.Construction("tank max height must be finite and > 0, got %v", p.MaxHeight)
	}
	return nil
}

// Model is the pure gravity-drained tank: state x = [h], input u = [q_in, v].
type Model struct {
	Params Params
}

// NewModel builds a Model from already-validated Params.
func NewModel(p Params) Model {
	return Model{Params: p}
}

// StateLen and InputLen are the dimensions this model expects. Only the
// single-tank configuration (n=1) is exercised, but Simulator validates
// against these rather than hardcoding 1 so the door stays open for the
// arbitrary-n design described in spec.md §3.
const (
	StateLen = 1
	InputLen = 2
)

// Derivative returns xdot = [(q_in - q_out)/A]. q_out is 0 whenever h <= 0,
// which also covers the negative-h sub-stage case RK4 can produce between
// stages: sqrt(max(h,0)) is 0 there too, so the formula is already safe.
func (m Model) Derivative(t float64, x, u []float64) []float64 {
	qIn := u[0]
	qOut := m.OutletFlow(x, u)
	return []float64{(qIn - qOut) / m.Params.Area}
}

// OutletFlow computes q_out = k_v * v * sqrt(max(h, 0)), exposed separately
// so the engine can report it in historian snapshots without recomputing
// the derivative.
func (m Model) OutletFlow(x, u []float64) float64 {
	h := x[0]
	v := u[1]
	hh := math.Max(h, 0)
	return m.Params.DischargeCoeff * v * math.Sqrt(hh)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
