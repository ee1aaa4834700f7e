// Package integrate implements the fixed-step classical Runge-Kutta (RK4)
// stepper used to advance the tank's state vector across one tick while
// inputs are held constant (zero-order hold), per spec.md §4.B.
package integrate

import (
	"github.com/kallisto-labs/tanksim/internal/simerr"
	"gonum.org/v1/gonum/floats"
)

// DerivFunc is the plant's derivative callback: xdot = f(t, x, u).
type DerivFunc func(t float64, x, u []float64) []float64

// RK4Stepper advances an n-dimensional state vector by dt using the
// classical fourth-order Runge-Kutta update. It owns its own scratch
// buffers so that Step allocates no heap memory after construction, and it
// is not safe to share across goroutines (spec.md §4.B resource model).
type RK4Stepper struct {
	n int

	k1, k2, k3, k4 []float64
	xtmp           []float64
	out            []float64
}

// NewRK4Stepper preallocates scratch buffers sized for an n-dimensional
// state vector.
func NewRK4Stepper(n int) *RK4Stepper {
	return &RK4Stepper{
		n:    n,
		k1:   make([]float64, n),
		k2:   make([]float64, n),
		k3:   make([]float64, n),
		k4:   make([]float64, n),
		xtmp: make([]float64, n),
		out:  make([]float64, n),
	}
}

// Step computes the classical RK4 update:
//
//	k1 = f(t, x, u)
//	k2 = f(t+dt/2, x+dt/2*k1, u)
//	k3 = f(t+dt/2, x+dt/2*k2, u)
//	k4 = f(t+dt, x+dt*k3, u)
//	x' = x + dt*(k1 + 2*k2 + 2*k3 + k4)/6
//
// u is held constant across all four stages: the controller action applies
// only at step boundaries. The returned slice is owned by the stepper and
// is overwritten by the next call; callers that need to retain a value
// across ticks must copy it (the Simulator does this).
func (s *RK4Stepper) Step(t, dt float64, x, u []float64, f DerivFunc) []float64 {
	if len(x) != s.n {
		panic("integrate: state vector length does not match stepper dimension")
	}

	half := dt / 2

	k1 := f(t, x, u)
	copy(s.k1, k1)

	copy(s.xtmp, x)
	floats.AddScaled(s.xtmp, half, s.k1)
	k2 := f(t+half, s.xtmp, u)
	copy(s.k2, k2)

	copy(s.xtmp, x)
	floats.AddScaled(s.xtmp, half, s.k2)
	k3 := f(t+half, s.xtmp, u)
	copy(s.k3, k3)

	copy(s.xtmp, x)
	floats.AddScaled(s.xtmp, dt, s.k3)
	k4 := f(t+dt, s.xtmp, u)
	copy(s.k4, k4)

	copy(s.out, x)
	for i := 0; i < s.n; i++ {
		sum := s.k1[i] + 2*s.k2[i] + 2*s.k3[i] + s.k4[i]
		s.out[i] += dt * sum / 6
	}
	return s.out
}

// ValidateDT rejects a non-positive or implausibly large tick period.
func ValidateDT(dt float64) error {
	if dt <= 0 {
		return simerr.Construction("dt must be > 0, got %v", dt)
	}
	if dt > 3600 {
		return simerr.Construction("dt %v exceeds the platform-sane bound of 3600s", dt)
	}
	return nil
}
