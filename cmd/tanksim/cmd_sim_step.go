package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kallisto-labs/tanksim/internal/analysis"
	"github.com/kallisto-labs/tanksim/internal/artifacts"
	"github.com/kallisto-labs/tanksim/internal/control/pid"
	"github.com/kallisto-labs/tanksim/internal/experiment"
	"github.com/kallisto-labs/tanksim/internal/experiment/modifier"
	"github.com/kallisto-labs/tanksim/internal/plotting"
	"github.com/kallisto-labs/tanksim/internal/simulator"
	"github.com/kallisto-labs/tanksim/internal/tankmodel"
)

var (
	area           float64
	dischargeCoeff float64
	maxHeight      float64
	initialLevel   float64
	initialInlet   float64
	initialValve   float64

	kc   float64
	tauI float64
	tauD float64
	bias float64
	uMin float64
	uMax float64
	iMax float64

	setpoint float64
	duration float64
	dt       float64
	deadzone float64

	disturbanceEnabled bool
	disturbanceStart   float64
	disturbanceDur     float64
	disturbanceMag     float64

	outBase string
)

func newSimStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Run a tank level step response simulation",
		Long:  "Run an offline step-response simulation of a single tank under PID level control.",
		RunE:  runSimStep,
	}

	cmd.Flags().Float64Var(&area, "area", 1.0, "tank cross-sectional area (m^2)")
	cmd.Flags().Float64Var(&dischargeCoeff, "discharge-coeff", 0.6, "outlet valve discharge coefficient")
	cmd.Flags().Float64Var(&maxHeight, "max-height", 5.0, "tank maximum height (m)")
	cmd.Flags().Float64Var(&initialLevel, "initial-level", 2.0, "initial tank level (m)")
	cmd.Flags().Float64Var(&initialInlet, "initial-inlet", 1.0, "initial inlet flow (m^3/s)")
	cmd.Flags().Float64Var(&initialValve, "initial-valve", 0.5, "initial valve position [0,1]")

	cmd.Flags().Float64Var(&kc, "kc", -2.0, "proportional gain (reverse-acting: negative)")
	cmd.Flags().Float64Var(&tauI, "tau-i", 20.0, "integral time constant (s); 0 disables the integral term")
	cmd.Flags().Float64Var(&tauD, "tau-d", 0.0, "derivative time constant (s)")
	cmd.Flags().Float64Var(&bias, "bias", 0.5, "controller bias")
	cmd.Flags().Float64Var(&uMin, "u-min", 0.0, "minimum valve position")
	cmd.Flags().Float64Var(&uMax, "u-max", 1.0, "maximum valve position")
	cmd.Flags().Float64Var(&iMax, "i-max", 2.0, "integral accumulator clamp magnitude")

	cmd.Flags().Float64Var(&setpoint, "setpoint", 2.5, "target level (m)")
	cmd.Flags().Float64Var(&duration, "duration", 600.0, "simulation duration (s)")
	cmd.Flags().Float64Var(&dt, "dt", 1.0, "simulation timestep (s)")
	cmd.Flags().Float64Var(&deadzone, "deadzone", 0.0, "valve actuator deadzone threshold")

	cmd.Flags().BoolVar(&disturbanceEnabled, "disturbance-enabled", false, "enable a scheduled inlet flow disturbance")
	cmd.Flags().Float64Var(&disturbanceStart, "disturbance-start", 200.0, "disturbance start time (s)")
	cmd.Flags().Float64Var(&disturbanceDur, "disturbance-duration", 100.0, "disturbance duration (s, 0 = infinite)")
	cmd.Flags().Float64Var(&disturbanceMag, "disturbance-magnitude", 0.3, "disturbance magnitude added to inlet flow (m^3/s)")

	cmd.Flags().StringVar(&outBase, "out", "runs", "base output directory")

	return cmd
}

func runSimStep(cmd *cobra.Command, args []string) error {
	sim, err := simulator.New(simulator.Config{
		Tank: tankmodel.Params{Area: area, DischargeCoeff: dischargeCoeff, MaxHeight: maxHeight},
		DT:   dt,
		Controllers: []simulator.ControllerConfig{
			{
				Gains:           pid.Gains{Kc: kc, TauI: tauI, TauD: tauD},
				Bias:            bias,
				Limits:          pid.Limits{OutMin: uMin, OutMax: uMax, IMax: iMax},
				MeasuredIndex:   0,
				OutputIndex:     1,
				InitialSetpoint: setpoint,
			},
		},
		InitialState: []float64{initialLevel},
		InitialInput: []float64{initialInlet, initialValve},
	})
	if err != nil {
		return fmt.Errorf("constructing simulator: %w", err)
	}

	var mod modifier.Modifier
	if deadzone > 0 {
		mod = modifier.Chain(&modifier.DeadzoneModifier{Threshold: deadzone})
	}

	cfg := experiment.BatchConfig{
		Duration: duration,
		Disturbance: experiment.StepDisturbance{
			Enabled:   disturbanceEnabled,
			StartS:    disturbanceStart,
			DurationS: disturbanceDur,
			Magnitude: disturbanceMag,
		},
		Modifier:          mod,
		PrimaryController: 0,
	}
	samples, wall := experiment.RunBatch(sim, cfg)
	if len(samples) == 0 {
		return fmt.Errorf("no samples produced")
	}

	params := map[string]any{
		"area":                   area,
		"discharge_coeff":        dischargeCoeff,
		"max_height":             maxHeight,
		"kc":                     kc,
		"tau_i":                  tauI,
		"tau_d":                  tauD,
		"bias":                   bias,
		"setpoint":               setpoint,
		"duration_s":             duration,
		"dt_s":                   dt,
		"deadzone":               deadzone,
		"disturbance_enabled":    disturbanceEnabled,
		"disturbance_start_s":    disturbanceStart,
		"disturbance_duration_s": disturbanceDur,
		"disturbance_magnitude":  disturbanceMag,
	}

	run, md, err := artifacts.Create(outBase, "sim", "tank", "step", params)
	if err != nil {
		return err
	}
	defer func() {
		if err := run.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close run directory: %v\n", err)
		}
	}()

	if err := run.WriteSamplesCSV(samples); err != nil {
		return err
	}

	metrics := analysis.Compute(samples, 0.02)
	if err := artifacts.WriteJSON(filepath.Join(run.Dir, "metrics.json"), metrics); err != nil {
		return err
	}

	if err := plotting.WriteLevelPlot(run.Dir, samples); err != nil {
		return err
	}
	if err := plotting.WriteValvePlot(run.Dir, samples); err != nil {
		return err
	}

	last := samples[len(samples)-1]
	_, _ = fmt.Fprintf(run.Out(), "run_id=%s\n", md.RunID)
	_, _ = fmt.Fprintf(run.Out(), "wall_time=%s\n", wall)
	_, _ = fmt.Fprintf(run.Out(), "final_level=%.3f\n", last.Level)
	_, _ = fmt.Fprintf(run.Out(), "final_error=%.3f\n", last.Error)
	_, _ = fmt.Fprintf(run.Out(), "overshoot_percent=%.3f\n", metrics.OvershootPercent)
	_, _ = fmt.Fprintf(run.Out(), "settling_time_seconds=%v\n", metrics.SettlingTimeSeconds)
	_, _ = fmt.Fprintf(run.Out(), "iae=%.6f\n", metrics.IAE)

	fmt.Println("Run:", md.RunID)
	fmt.Println("Artifacts:", run.Dir)
	fmt.Printf("Final: level=%.3fm err=%.3f valve=%.3f\n", last.Level, last.Error, last.ValvePosition)
	fmt.Printf("Metrics: overshoot=%.2f%% settling=%v iae=%.3f\n", metrics.OvershootPercent, metrics.SettlingTimeSeconds, metrics.IAE)

	return nil
}
