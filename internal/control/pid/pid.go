// Package pid implements a discrete-time positional PID controller with
// bias, output saturation, and conditional-integration anti-windup.
//
// Anti-windup strategy: the integral accumulator is updated only when the
// raw (pre-clamp) output was not saturated. This is a different rule from
// predicting saturation ahead of the integral update: it decides strictly
// from this step's own raw-vs-clamped comparison, which is what spec.md
// §4.C calls for and what keeps the controller's behavior exhaustively
// testable against the integral clamp invariant.
package pid

import (
	"math"

	"github.com/kallisto-labs/tanksim/internal/simerr"
)

// Gains are the tunable parameters of a controller. Kc is sign-carrying:
// this tank is reverse-acting (opening the outlet valve lowers the level),
// so correct tuning requires Kc < 0 — a positive error (level below
// setpoint) must produce a *decrease* in the valve command. Implementers
// must not hide that sign behind an absolute value.
type Gains struct {
	Kc   float64 // proportional gain, sign-carrying
	TauI float64 // seconds; 0 disables the integral term
	TauD float64 // seconds
}

// Validate rejects a negative integral or derivative time constant.
func (g Gains) Validate() error {
	if g.TauI < 0 {
		return simerr.Validation("tau_I must be >= 0, got %v", g.TauI)
	}
	if g.TauD < 0 {
		return simerr.Validation("tau_D must be >= 0, got %v", g.TauD)
	}
	return nil
}

// Limits bound the controller's output and integral accumulator.
type Limits struct {
	OutMin float64
	OutMax float64
	IMax   float64 // >= 0, clamp magnitude for the integral accumulator
}

// Validate rejects inverted output bounds or a negative clamp magnitude.
func (l Limits) Validate() error {
	if !(l.OutMin < l.OutMax) {
		return simerr.Construction("u_min (%v) must be < u_max (%v)", l.OutMin, l.OutMax)
	}
	if l.IMax < 0 {
		return simerr.Construction("I_max must be >= 0, got %v", l.IMax)
	}
	return nil
}

// Trace captures the term breakdown of one Compute call, for historian
// reporting and tests. OutRaw is the sum before clamping; Out is the
// clamped output.
type Trace struct {
	Error float64

	P float64
	I float64
	D float64

	OutRaw     float64
	Out        float64
	Saturated  bool
	Integrated bool // whether the integral accumulator was updated this step
}

// Controller is a single PID loop: bias, gains, output/integral limits, and
// the two pieces of runtime state spec.md §3 calls out explicitly — the
// integral accumulator and the last error — both starting at 0.
type Controller struct {
	Gains
	Bias float64
	Limits

	integral float64
	ePrev    float64
}

// New constructs a Controller with the given gains, bias and limits. It
// does not validate; the Simulator validates once at construction and
// again on every SetGains call (spec.md §4.D, §4.E).
func New(gains Gains, bias float64, limits Limits) *Controller {
	return &Controller{Gains: gains, Bias: bias, Limits: limits}
}

// Compute implements the per-invocation contract: compute(e, edot, dt) -> u_cmd.
//
//  1. P = Kc*e, I_term = (Kc/tau_I)*I when tau_I > 0 else 0, D = Kc*tau_D*edot.
//  2. u_raw = bias + P + I_term + D.
//  3. u_cmd = clip(u_raw, u_min, u_max).
//  4. The integral accumulator is updated by +e*dt only if u_raw was not
//     saturated (equivalently, only when u_raw == u_cmd), then clamped to
//     |I| <= I_max.
func (c *Controller) Compute(e, edot, dt float64, tr *Trace) float64 {
	p := c.Kc * e

	iTerm := 0.0
	if c.TauI > 0 {
		iTerm = (c.Kc / c.TauI) * c.integral
	}

	d := c.Kc * c.TauD * edot

	uRaw := c.Bias + p + iTerm + d
	uCmd := clamp(uRaw, c.OutMin, c.OutMax)

	integrated := uRaw == uCmd
	if integrated {
		c.integral += e * dt
		c.integral = clamp(c.integral, -c.IMax, c.IMax)
	}

	c.ePrev = e

	if tr != nil {
		*tr = Trace{
			Error:      e,
			P:          p,
			I:          iTerm,
			D:          d,
			OutRaw:     uRaw,
			Out:        uCmd,
			Saturated:  uRaw != uCmd,
			Integrated: integrated,
		}
	}

	return uCmd
}

// SetGains mutates Kc/tau_I/tau_D but preserves the integral accumulator,
// giving bumpless transfer: a gain change produces no output jump beyond
// what the saturator itself would already produce.
func (c *Controller) SetGains(g Gains) error {
	if err := g.Validate(); err != nil {
		return err
	}
	c.Gains = g
	return nil
}

// Reset zeroes the integral accumulator and the last-error memory.
func (c *Controller) Reset() {
	c.integral = 0
	c.ePrev = 0
}

// IntegralState exposes the integral accumulator for observability.
func (c *Controller) IntegralState() float64 {
	return c.integral
}

// LastError returns the error recorded on the previous Compute call.
func (c *Controller) LastError() float64 {
	return c.ePrev
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}
