// Package experiment drives a Simulator tick-by-tick for offline batch
// analysis (the "sim step" CLI), independent of the engine's real-time
// loop: a batch run has no wall-clock relationship and should finish as
// fast as the host can compute it.
package experiment

import (
	"time"

	"github.com/kallisto-labs/tanksim/internal/experiment/modifier"
	"github.com/kallisto-labs/tanksim/internal/simulator"
)

// StepDisturbance is a deterministic, time-windowed disturbance schedule
// for batch step-response analysis: it adds Magnitude to the baseline
// inlet flow starting at StartS, for DurationS seconds (0 means until the
// run ends). Unlike internal/disturbance's stochastic process, this is
// reproducible by construction and exists only for offline experiments
// that want a clean, one-shot disturbance at a known time.
type StepDisturbance struct {
	Enabled   bool
	StartS    float64
	DurationS float64 // 0 means infinite
	Magnitude float64
}

func (d StepDisturbance) at(t float64) float64 {
	if !d.Enabled || d.Magnitude == 0 {
		return 0
	}
	if t < d.StartS {
		return 0
	}
	if d.DurationS > 0 && t >= d.StartS+d.DurationS {
		return 0
	}
	return d.Magnitude
}

// BatchConfig defines one offline run: how long to simulate, an optional
// scheduled inlet disturbance, and an optional actuator modifier applied
// to the primary controller's output before it reaches the plant.
type BatchConfig struct {
	Duration    float64
	Disturbance StepDisturbance
	Modifier    modifier.Modifier
	// PrimaryController is the index whose output the Modifier (if any)
	// applies to, and whose setpoint/error/output populate Sample's
	// top-level fields.
	PrimaryController int
}

// ControllerSample is one controller's term breakdown at a single tick.
type ControllerSample struct {
	Setpoint float64
	Output   float64

	P float64
	I float64
	D float64

	OutRaw     float64
	Saturated  bool
	Integrated bool
}

// Sample is a single recorded tick of a batch run. The top-level
// Target/Actual/Error/U/Saturated fields mirror BatchConfig.PrimaryController
// for compatibility with analysis.Compute and the CSV/plot writers;
// Controllers holds every configured controller's own trace.
type Sample struct {
	T  float64
	DT float64

	Level         float64
	InletFlow     float64
	OutletFlow    float64
	ValvePosition float64

	// Primary-controller view.
	Target float64
	Actual float64
	Error  float64
	U      float64

	P          float64
	I          float64
	D          float64
	OutRaw     float64
	Saturated  bool
	Integrated bool

	Controllers []ControllerSample
}

// RunBatch executes sim tick-by-tick for cfg.Duration seconds, applying the
// scheduled disturbance to input 0 (inlet flow) before each step and the
// configured modifier to the primary controller's output after each step,
// and returns the full recorded time series plus the wall-clock time taken.
func RunBatch(sim *simulator.Simulator, cfg BatchConfig) ([]Sample, time.Duration) {
	start := time.Now()

	if cfg.Duration <= 0 {
		return nil, time.Since(start)
	}

	out := make([]Sample, 0)
	baseline := sim.Input()[0]

	for sim.Time() < cfg.Duration {
		d := cfg.Disturbance.at(sim.Time())
		_ = sim.SetInput(0, baseline+d)

		sim.Step()

		if cfg.Modifier != nil {
			raw, errOut := sim.Output(cfg.PrimaryController)
			idx, errIdx := sim.OutputIndex(cfg.PrimaryController)
			if errOut == nil && errIdx == nil {
				_ = sim.SetInput(idx, cfg.Modifier.Modify(raw))
			}
		}

		out = append(out, buildSample(sim, cfg.PrimaryController))
	}

	return out, time.Since(start)
}

func buildSample(sim *simulator.Simulator, primary int) Sample {
	x := sim.State()
	u := sim.Input()

	n := sim.ControllerCount()
	controllers := make([]ControllerSample, n)
	for i := 0; i < n; i++ {
		tr, _ := sim.Trace(i)
		sp, _ := sim.Setpoint(i)
		out, _ := sim.Output(i)
		controllers[i] = ControllerSample{
			Setpoint:   sp,
			Output:     out,
			P:          tr.P,
			I:          tr.I,
			D:          tr.D,
			OutRaw:     tr.OutRaw,
			Saturated:  tr.Saturated,
			Integrated: tr.Integrated,
		}
	}

	s := Sample{
		T:             sim.Time(),
		DT:            sim.DT(),
		Level:         x[0],
		InletFlow:     u[0],
		OutletFlow:    sim.OutletFlow(),
		ValvePosition: valvePosition(u),
		Controllers:   controllers,
	}

	if primary >= 0 && primary < n {
		cs := controllers[primary]
		err, _ := sim.Error(primary)
		s.Target = cs.Setpoint
		s.Actual = x[0]
		s.Error = err
		s.U = cs.Output
		s.P, s.I, s.D = cs.P, cs.I, cs.D
		s.OutRaw = cs.OutRaw
		s.Saturated = cs.Saturated
		s.Integrated = cs.Integrated
	}

	return s
}

func valvePosition(u []float64) float64 {
	if len(u) > 1 {
		return u[1]
	}
	return 0
}
