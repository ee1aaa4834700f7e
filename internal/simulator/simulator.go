// Package simulator owns a single tank's model, stepper, controllers,
// mutable state, and setpoints, and executes one tick at a time
// (spec.md §4.D). It has no wall-clock relationship; the engine package
// drives it at cadence.
package simulator

import (
	"github.com/kallisto-labs/tanksim/internal/control/pid"
	"github.com/kallisto-labs/tanksim/internal/integrate"
	"github.com/kallisto-labs/tanksim/internal/simerr"
	"github.com/kallisto-labs/tanksim/internal/tankmodel"
)

// ControllerConfig is a controller's immutable shape plus its initial,
// mutable gains (spec.md §3).
type ControllerConfig struct {
	Gains  pid.Gains
	Bias   float64
	Limits pid.Limits

	MeasuredIndex int // index into x that this controller reads as PV
	OutputIndex   int // index into u that this controller writes as OP

	InitialSetpoint float64
}

// Config is the immutable configuration a Simulator is constructed from.
type Config struct {
	Tank         tankmodel.Params
	DT           float64
	Controllers  []ControllerConfig
	InitialState []float64 // length must match tankmodel.StateLen
	InitialInput []float64 // length must match tankmodel.InputLen
}

// Validate runs the construction-time checks from spec.md §4.D, in order,
// and returns a descriptive *simerr.Error on the first failure. That error
// is KindConstruction, except for a negative gain time constant, which
// pid.Gains.Validate reports as KindValidation.
func (c Config) Validate() error {
	if err := c.Tank.Validate(); err != nil {
		return err
	}
	if len(c.InitialState) != tankmodel.StateLen {
		return simerr.Construction("initial state has length %d, want %d", len(c.InitialState), tankmodel.StateLen)
	}
	if len(c.InitialInput) != tankmodel.InputLen {
		return simerr.Construction("initial input has length %d, want %d", len(c.InitialInput), tankmodel.InputLen)
	}
	if err := integrate.ValidateDT(c.DT); err != nil {
		return err
	}
	for i, cc := range c.Controllers {
		if cc.MeasuredIndex < 0 || cc.MeasuredIndex >= len(c.InitialState) {
			return simerr.Construction("controller %d: measured_index %d out of range [0,%d)", i, cc.MeasuredIndex, len(c.InitialState))
		}
		if cc.OutputIndex < 0 || cc.OutputIndex >= len(c.InitialInput) {
			return simerr.Construction("controller %d: output_index %d out of range [0,%d)", i, cc.OutputIndex, len(c.InitialInput))
		}
		if err := cc.Limits.Validate(); err != nil {
			return err
		}
		if err := cc.Gains.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// controllerState is the per-controller runtime bookkeeping the Simulator
// owns on top of the pid.Controller itself.
type controllerState struct {
	ctrl      *pid.Controller
	cfg       ControllerConfig
	setpoint  float64
	ePrev     float64
	lastOut   float64
	lastTrace pid.Trace
}

// Simulator owns one tank model, one RK4 stepper, a set of controllers, and
// the mutable state/input vectors and simulation clock.
type Simulator struct {
	model   tankmodel.Model
	stepper *integrate.RK4Stepper
	dt      float64

	t float64
	x []float64
	u []float64

	controllers []*controllerState

	// construction-time values, used by Reset.
	x0         []float64
	u0         []float64
	setpoints0 []float64
}

// New validates cfg and constructs a Simulator, or returns the first
// construction error encountered.
func New(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		model:   tankmodel.NewModel(cfg.Tank),
		stepper: integrate.NewRK4Stepper(tankmodel.StateLen),
		dt:      cfg.DT,
		t:       0,
		x:       append([]float64{}, cfg.InitialState...),
		u:       append([]float64{}, cfg.InitialInput...),
		x0:      append([]float64{}, cfg.InitialState...),
		u0:      append([]float64{}, cfg.InitialInput...),
	}

	for _, cc := range cfg.Controllers {
		s.controllers = append(s.controllers, &controllerState{
			ctrl:     pid.New(cc.Gains, cc.Bias, cc.Limits),
			cfg:      cc,
			setpoint: cc.InitialSetpoint,
		})
		s.setpoints0 = append(s.setpoints0, cc.InitialSetpoint)
	}

	return s, nil
}

// Step advances the simulator by one dt:
//  1. Integrate x using the stepper over the tank model, holding u constant.
//  2. Advance the clock by dt.
//  3. For each controller, in declaration order, recompute its output from
//     the new measurement and write it into u — this is the zero-order
//     hold: controller action applies only at step boundaries, after
//     integration.
func (s *Simulator) Step() {
	f := func(t float64, x, u []float64) []float64 {
		return s.model.Derivative(t, x, u)
	}
	xNew := s.stepper.Step(s.t, s.dt, s.x, s.u, f)
	s.x = append(s.x[:0], xNew...)
	s.t += s.dt

	for _, cs := range s.controllers {
		y := s.x[cs.cfg.MeasuredIndex]
		e := cs.setpoint - y
		edot := (e - cs.ePrev) / s.dt

		var tr pid.Trace
		uCmd := cs.ctrl.Compute(e, edot, s.dt, &tr)

		s.u[cs.cfg.OutputIndex] = uCmd
		cs.ePrev = e
		cs.lastOut = uCmd
		cs.lastTrace = tr
	}
}

// SetSetpoint updates controller i's setpoint. It takes effect starting
// with the next Step() call and does not reset the integral accumulator.
func (s *Simulator) SetSetpoint(i int, v float64) error {
	cs, err := s.controllerAt(i)
	if err != nil {
		return err
	}
	cs.setpoint = v
	return nil
}

// SetInput overrides input component j (e.g. an exogenous inlet-flow
// driver). It takes effect on the next Step() call.
func (s *Simulator) SetInput(j int, v float64) error {
	if j < 0 || j >= len(s.u) {
		return simerr.Range("input index %d out of range [0,%d)", j, len(s.u))
	}
	s.u[j] = v
	return nil
}

// SetGains forwards to controller i's SetGains (bumpless transfer).
func (s *Simulator) SetGains(i int, g pid.Gains) error {
	cs, err := s.controllerAt(i)
	if err != nil {
		return err
	}
	return cs.ctrl.SetGains(g)
}

// Reset restores t, x, u, the integral accumulators, last errors, and
// setpoints to their construction-time values. Gains and limits are
// preserved.
func (s *Simulator) Reset() {
	s.t = 0
	s.x = append(s.x[:0], s.x0...)
	s.u = append(s.u[:0], s.u0...)
	for i, cs := range s.controllers {
		cs.ctrl.Reset()
		cs.ePrev = 0
		cs.setpoint = s.setpoints0[i]
		cs.lastOut = 0
	}
}

// Time returns the simulator's current clock value.
func (s *Simulator) Time() float64 { return s.t }

// DT returns the fixed integration step this simulator was constructed with.
func (s *Simulator) DT() float64 { return s.dt }

// State returns a copy of the current state vector.
func (s *Simulator) State() []float64 { return append([]float64{}, s.x...) }

// Input returns a copy of the current input vector.
func (s *Simulator) Input() []float64 { return append([]float64{}, s.u...) }

// OutletFlow reports the algebraic outlet flow for the current state/input.
func (s *Simulator) OutletFlow() float64 { return s.model.OutletFlow(s.x, s.u) }

// ControllerCount returns the number of configured controllers.
func (s *Simulator) ControllerCount() int { return len(s.controllers) }

// Setpoint returns controller i's current setpoint.
func (s *Simulator) Setpoint(i int) (float64, error) {
	cs, err := s.controllerAt(i)
	if err != nil {
		return 0, err
	}
	return cs.setpoint, nil
}

// Error returns controller i's last computed error (SP - PV).
func (s *Simulator) Error(i int) (float64, error) {
	cs, err := s.controllerAt(i)
	if err != nil {
		return 0, err
	}
	return cs.ePrev, nil
}

// Output returns controller i's last emitted command.
func (s *Simulator) Output(i int) (float64, error) {
	cs, err := s.controllerAt(i)
	if err != nil {
		return 0, err
	}
	return cs.lastOut, nil
}

// IntegralState returns controller i's integral accumulator.
func (s *Simulator) IntegralState(i int) (float64, error) {
	cs, err := s.controllerAt(i)
	if err != nil {
		return 0, err
	}
	return cs.ctrl.IntegralState(), nil
}

// OutputIndex returns the index into Input() that controller i writes.
func (s *Simulator) OutputIndex(i int) (int, error) {
	cs, err := s.controllerAt(i)
	if err != nil {
		return 0, err
	}
	return cs.cfg.OutputIndex, nil
}

// Trace returns controller i's term breakdown from the most recent Step().
func (s *Simulator) Trace(i int) (pid.Trace, error) {
	cs, err := s.controllerAt(i)
	if err != nil {
		return pid.Trace{}, err
	}
	return cs.lastTrace, nil
}

func (s *Simulator) controllerAt(i int) (*controllerState, error) {
	if i < 0 || i >= len(s.controllers) {
		return nil, simerr.Range("controller index %d out of range [0,%d)", i, len(s.controllers))
	}
	return s.controllers[i], nil
}
