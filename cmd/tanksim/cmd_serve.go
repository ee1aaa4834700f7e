package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kallisto-labs/tanksim/internal/control/pid"
	"github.com/kallisto-labs/tanksim/internal/disturbance"
	"github.com/kallisto-labs/tanksim/internal/engine"
	"github.com/kallisto-labs/tanksim/internal/simulator"
	"github.com/kallisto-labs/tanksim/internal/tankmodel"
)

var (
	serveArea           float64
	serveDischargeCoeff float64
	serveMaxHeight      float64
	serveInitialLevel   float64
	serveInitialInlet   float64
	serveInitialValve   float64

	serveKc   float64
	serveTauI float64
	serveTauD float64
	serveBias float64
	serveUMin float64
	serveUMax float64
	serveIMax float64

	serveSetpoint float64
	serveDT       float64

	serveDisturbanceMode  string
	serveDisturbanceMin   float64
	serveDisturbanceMax   float64
	serveDisturbanceSigma float64
	serveDisturbanceSeed  int64

	serveHistorianCapacity        int
	serveCommandQueueCapacity     int
	serveSubscriberBufferCapacity int

	serveLogInterval int
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tank simulation in real time",
		Long:  "Run the tank level simulator at fixed real-time cadence until interrupted, logging periodic snapshots.",
		RunE:  runServe,
	}

	cmd.Flags().Float64Var(&serveArea, "area", 1.0, "tank cross-sectional area (m^2)")
	cmd.Flags().Float64Var(&serveDischargeCoeff, "discharge-coeff", 0.6, "outlet valve discharge coefficient")
	cmd.Flags().Float64Var(&serveMaxHeight, "max-height", 5.0, "tank maximum height (m)")
	cmd.Flags().Float64Var(&serveInitialLevel, "initial-level", 2.0, "initial tank level (m)")
	cmd.Flags().Float64Var(&serveInitialInlet, "initial-inlet", 1.0, "initial inlet flow (m^3/s)")
	cmd.Flags().Float64Var(&serveInitialValve, "initial-valve", 0.5, "initial valve position [0,1]")

	cmd.Flags().Float64Var(&serveKc, "kc", -2.0, "proportional gain (reverse-acting: negative)")
	cmd.Flags().Float64Var(&serveTauI, "tau-i", 20.0, "integral time constant (s); 0 disables the integral term")
	cmd.Flags().Float64Var(&serveTauD, "tau-d", 0.0, "derivative time constant (s)")
	cmd.Flags().Float64Var(&serveBias, "bias", 0.5, "controller bias")
	cmd.Flags().Float64Var(&serveUMin, "u-min", 0.0, "minimum valve position")
	cmd.Flags().Float64Var(&serveUMax, "u-max", 1.0, "maximum valve position")
	cmd.Flags().Float64Var(&serveIMax, "i-max", 2.0, "integral accumulator clamp magnitude")

	cmd.Flags().Float64Var(&serveSetpoint, "setpoint", 2.5, "target level (m)")
	cmd.Flags().Float64Var(&serveDT, "dt", 1.0, "tick period (s)")

	cmd.Flags().StringVar(&serveDisturbanceMode, "disturbance-mode", "constant", "inlet disturbance mode: constant|brownian")
	cmd.Flags().Float64Var(&serveDisturbanceMin, "disturbance-min", 0.5, "brownian disturbance lower bound (m^3/s)")
	cmd.Flags().Float64Var(&serveDisturbanceMax, "disturbance-max", 1.5, "brownian disturbance upper bound (m^3/s)")
	cmd.Flags().Float64Var(&serveDisturbanceSigma, "disturbance-sigma", 0.02, "brownian disturbance per-tick increment stddev")
	cmd.Flags().Int64Var(&serveDisturbanceSeed, "disturbance-seed", 1, "disturbance rng seed")

	cmd.Flags().IntVar(&serveHistorianCapacity, "historian-capacity", engine.DefaultHistorianCapacity, "number of snapshots retained")
	cmd.Flags().IntVar(&serveCommandQueueCapacity, "command-queue-capacity", engine.DefaultCommandQueueCapacity, "command queue depth")
	cmd.Flags().IntVar(&serveSubscriberBufferCapacity, "subscriber-buffer-capacity", engine.DefaultSubscriberBufferCapacity, "per-subscriber channel depth")

	cmd.Flags().IntVar(&serveLogInterval, "log-every", 10, "log a snapshot every N ticks (0 disables periodic logging)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	mode := disturbance.ModeConstant
	if serveDisturbanceMode == "brownian" {
		mode = disturbance.ModeBrownian
	}

	cfg := engine.Config{
		Tank: tankmodel.Params{Area: serveArea, DischargeCoeff: serveDischargeCoeff, MaxHeight: serveMaxHeight},
		DT:   serveDT,
		Controllers: []simulator.ControllerConfig{
			{
				Gains:           pid.Gains{Kc: serveKc, TauI: serveTauI, TauD: serveTauD},
				Bias:            serveBias,
				Limits:          pid.Limits{OutMin: serveUMin, OutMax: serveUMax, IMax: serveIMax},
				MeasuredIndex:   0,
				OutputIndex:     1,
				InitialSetpoint: serveSetpoint,
			},
		},
		InitialState: []float64{serveInitialLevel},
		InitialInput: []float64{serveInitialInlet, serveInitialValve},
		Disturbance: disturbance.Config{
			Mode:  mode,
			Min:   serveDisturbanceMin,
			Max:   serveDisturbanceMax,
			Sigma: serveDisturbanceSigma,
		},
		DisturbanceSeed:          serveDisturbanceSeed,
		HistorianCapacity:        serveHistorianCapacity,
		CommandQueueCapacity:     serveCommandQueueCapacity,
		SubscriberBufferCapacity: serveSubscriberBufferCapacity,
		Logger:                   log.Logger,
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})

	if serveLogInterval > 0 {
		g.Go(func() error {
			return logSnapshots(gctx, eng, time.Duration(serveDT*float64(time.Second)), serveLogInterval)
		})
	}

	log.Info().
		Float64("dt", serveDT).
		Float64("setpoint", serveSetpoint).
		Str("disturbance_mode", mode.String()).
		Msg("engine started, press ctrl-c to stop")

	return g.Wait()
}

// logSnapshots polls the engine's latest snapshot every interval*every and
// logs it, independent of the tick loop itself.
func logSnapshots(ctx context.Context, eng *engine.Engine, interval time.Duration, every int) error {
	ticker := time.NewTicker(interval * time.Duration(every))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap, ok := eng.Snapshot()
			if !ok {
				continue
			}
			logger := log.Info().
				Float64("t", snap.T).
				Float64("level", snap.Level).
				Float64("inlet_flow", snap.InletFlow).
				Float64("outlet_flow", snap.OutletFlow).
				Float64("valve_position", snap.ValvePosition).
				Str("disturbance_mode", snap.DisturbanceMode)
			for _, c := range snap.Controllers {
				logger = logger.Float64("setpoint", c.Setpoint).Float64("error", c.Error)
			}
			logger.Msg("tick")
		}
	}
}
