// Package engine drives a Simulator at fixed real-time cadence on a single
// goroutine, fans its snapshots out to subscribers, and accepts commands
// through a bounded queue (spec.md §4.E, §5, §6).
package engine

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kallisto-labs/tanksim/internal/control/pid"
	"github.com/kallisto-labs/tanksim/internal/disturbance"
	"github.com/kallisto-labs/tanksim/internal/historian"
	"github.com/kallisto-labs/tanksim/internal/simerr"
	"github.com/kallisto-labs/tanksim/internal/simulator"
	"github.com/rs/zerolog"
)

const integralClampEpsilon = 1e-9

// Engine owns a Simulator, a Historian, a disturbance Generator, and the
// goroutine that ticks them all together at cfg.DT cadence. All mutation of
// simulator/historian/disturbance state happens on the Run goroutine.
// Other methods either send commands to it through the queue, read the
// historian (which has its own lock), or touch the subscriber set under
// subsMu, so an Engine is safe to call from any number of goroutines.
type Engine struct {
	cfg  Config
	sim  *simulator.Simulator
	hist *historian.Historian
	dist *disturbance.Generator

	commands chan Command

	subsMu sync.Mutex
	subs   map[uuid.UUID]chan historian.Snapshot

	logger  zerolog.Logger
	metrics *Metrics
}

// New validates cfg, constructs the Simulator/Historian/Generator, and
// returns a ready, not-yet-running Engine.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	sim, err := simulator.New(simulator.Config{
		Tank:         cfg.Tank,
		DT:           cfg.DT,
		Controllers:  cfg.Controllers,
		InitialState: cfg.InitialState,
		InitialInput: cfg.InitialInput,
	})
	if err != nil {
		return nil, err
	}

	dist, err := disturbance.New(cfg.Disturbance, cfg.DisturbanceSeed)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		sim:      sim,
		hist:     historian.New(cfg.HistorianCapacity),
		dist:     dist,
		commands: make(chan Command, cfg.CommandQueueCapacity),
		subs:     make(map[uuid.UUID]chan historian.Snapshot),
		logger:   cfg.Logger.With().Str("component", "engine").Logger(),
		metrics:  NewMetrics(),
	}, nil
}

// Metrics exposes the Engine's private prometheus registry and counters.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Submit validates cmd and enqueues it. It returns a typed error
// immediately on validation failure or a full queue (spec.md §6's
// ack/fail contract), without waiting for the command to be applied.
func (e *Engine) Submit(cmd Command) error {
	if err := cmd.validate(e.cfg.Tank.MaxHeight, e.hist.Capacity()); err != nil {
		e.metrics.CommandsRejected.WithLabelValues(string(cmd.Kind)).Inc()
		return err
	}
	select {
	case e.commands <- cmd:
		e.metrics.CommandsAccepted.WithLabelValues(string(cmd.Kind)).Inc()
		return nil
	default:
		e.metrics.CommandsRejected.WithLabelValues(string(cmd.Kind)).Inc()
		return simerr.Busy("command queue full")
	}
}

// RequestHistory is a convenience that submits a KindHistory command and
// waits for its reply or ctx cancellation, whichever comes first.
func (e *Engine) RequestHistory(ctx context.Context, durationS int) ([]historian.Snapshot, error) {
	cmd := RequestHistory(durationS)
	if err := e.Submit(cmd); err != nil {
		return nil, err
	}
	select {
	case reply := <-cmd.Reply:
		return reply.Entries, reply.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns the most recent historian entry directly, bypassing the
// command queue (spec.md §6: read-only queries need not serialize through
// the engine goroutine since the historian is independently thread-safe).
func (e *Engine) Snapshot() (historian.Snapshot, bool) {
	return e.hist.Snapshot()
}

// History returns the historian's tail directly, bypassing the command
// queue.
func (e *Engine) History(durationS float64) []historian.Snapshot {
	return e.hist.Range(durationS)
}

// Config returns a descriptor of the engine's immutable configuration plus
// the historian's current size.
func (e *Engine) Config() ConfigDescriptor {
	controllers := make([]ControllerDescriptor, len(e.cfg.Controllers))
	for i, cc := range e.cfg.Controllers {
		controllers[i] = ControllerDescriptor{
			Gains:           cc.Gains,
			Bias:            cc.Bias,
			Limits:          cc.Limits,
			MeasuredIndex:   cc.MeasuredIndex,
			OutputIndex:     cc.OutputIndex,
			InitialSetpoint: cc.InitialSetpoint,
		}
	}
	return ConfigDescriptor{
		Tank:              e.cfg.Tank,
		DT:                e.cfg.DT,
		Controllers:       controllers,
		InitialState:      append([]float64{}, e.cfg.InitialState...),
		InitialInput:      append([]float64{}, e.cfg.InitialInput...),
		HistorianCapacity: e.hist.Capacity(),
		HistorianSize:     e.hist.Len(),
	}
}

// Subscribe registers a new subscriber and returns its id, its receive-only
// snapshot channel, and an unsubscribe function. The channel is bounded;
// a slow subscriber that falls behind has its oldest buffered snapshot
// dropped to make room, rather than blocking the engine (spec.md §4.E).
func (e *Engine) Subscribe() (uuid.UUID, <-chan historian.Snapshot, func()) {
	id := uuid.New()
	ch := make(chan historian.Snapshot, e.cfg.SubscriberBufferCapacity)

	e.subsMu.Lock()
	e.subs[id] = ch
	e.subsMu.Unlock()

	return id, ch, func() { e.unsubscribe(id) }
}

func (e *Engine) unsubscribe(id uuid.UUID) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	if ch, ok := e.subs[id]; ok {
		delete(e.subs, id)
		close(ch)
	}
}

func (e *Engine) publish(snap historian.Snapshot) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
			// Drop the oldest buffered snapshot to make room, then retry
			// once. A subscriber reading concurrently may have already
			// drained it; either way the attempted send below is
			// non-blocking and cannot deadlock against the reader.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
				e.metrics.SubscriberDropsTotal.Inc()
			}
		}
	}
}

// Run drives the tick loop until ctx is cancelled, returning nil. Each tick:
// drains pending commands, advances the disturbance process, steps the
// simulator, appends a snapshot to the historian, publishes it to
// subscribers, and sleeps until the next tick deadline computed from this
// tick's start time (not cumulative sleep, so the cadence does not drift).
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.DT * float64(time.Second))
	ticker := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}

		e.drainCommands()
		e.applyDisturbance()
		e.sim.Step()
		e.checkIntegralClamps()

		snap := e.buildSnapshot()
		if snap.Level < 0 {
			e.logger.Warn().Float64("level", snap.Level).Msg("tank level drifted below zero")
		}
		e.hist.Append(snap)
		e.metrics.TicksTotal.Inc()
		e.publish(snap)

		e.logger.Debug().Float64("t", snap.T).Float64("level", snap.Level).Msg("tick complete")

		ticker = ticker.Add(interval)
		sleep := time.Until(ticker)
		if sleep < 0 {
			e.logger.Warn().Dur("behind_by", -sleep).Msg("tick running behind cadence")
			ticker = time.Now()
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// drainCommands applies every command currently queued, without blocking.
// Commands were already validated in Submit; apply trusts that and only
// reports the runtime (bounds-against-current-state) errors that depend on
// engine state the caller couldn't have checked synchronously.
func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.commands:
			e.apply(cmd)
		default:
			return
		}
	}
}

func (e *Engine) apply(cmd Command) {
	switch cmd.Kind {
	case KindSetSetpoint:
		if err := e.sim.SetSetpoint(cmd.Controller, cmd.Value); err != nil {
			e.logger.Warn().Err(err).Int("controller", cmd.Controller).Msg("setpoint command rejected")
			return
		}
		e.logger.Info().Int("controller", cmd.Controller).Float64("setpoint", cmd.Value).Msg("setpoint command applied")
	case KindSetGains:
		g := pid.Gains{Kc: cmd.Gains.Kc, TauI: cmd.Gains.TauI, TauD: cmd.Gains.TauD}
		if err := e.sim.SetGains(cmd.Controller, g); err != nil {
			e.logger.Warn().Err(err).Int("controller", cmd.Controller).Msg("gains command rejected")
			return
		}
		e.logger.Info().Int("controller", cmd.Controller).Interface("gains", g).Msg("gains command applied")
	case KindSetInletFlow:
		if err := e.dist.SetConfig(disturbance.Config{Mode: disturbance.ModeConstant}); err != nil {
			e.logger.Error().Err(err).Msg("unexpected failure forcing constant disturbance mode")
			return
		}
		if err := e.sim.SetInput(0, cmd.Value); err != nil {
			e.logger.Warn().Err(err).Msg("inlet flow command rejected")
			return
		}
		e.logger.Info().Float64("inlet_flow", cmd.Value).Msg("inlet flow command applied")
	case KindSetInletMode:
		if err := e.dist.SetConfig(cmd.Disturbance); err != nil {
			e.logger.Warn().Err(err).Msg("inlet mode command rejected")
			return
		}
		e.logger.Info().Str("mode", cmd.Disturbance.Mode.String()).Msg("inlet mode command applied")
	case KindReset:
		e.sim.Reset()
		e.dist.Reset()
		e.hist.Clear()
		e.logger.Info().Msg("reset command applied")
	case KindHistory:
		entries := e.hist.Range(float64(cmd.DurationS))
		select {
		case cmd.Reply <- HistoryReply{Entries: entries}:
		default:
		}
		e.logger.Info().Int("duration_s", cmd.DurationS).Int("entries", len(entries)).Msg("history command applied")
	}
}

// applyDisturbance draws the next inlet flow and writes it to input
// component 0 (the tank model's q_in), which is then held constant by the
// stepper's zero-order hold across the tick's RK4 sub-stages.
func (e *Engine) applyDisturbance() {
	current := e.sim.Input()[0]
	next := e.dist.Next(current)
	_ = e.sim.SetInput(0, next)
}

func (e *Engine) checkIntegralClamps() {
	for i, cc := range e.cfg.Controllers {
		v, err := e.sim.IntegralState(i)
		if err != nil {
			continue
		}
		if cc.Limits.IMax > 0 && math.Abs(v) >= cc.Limits.IMax-integralClampEpsilon {
			e.metrics.IntegralClampTotal.WithLabelValues(strconv.Itoa(i)).Inc()
			e.logger.Warn().Int("controller", i).Float64("integral", v).Msg("integral clamp engaged")
		}
	}
}

func (e *Engine) buildSnapshot() historian.Snapshot {
	x := e.sim.State()
	u := e.sim.Input()

	controllers := make([]historian.ControllerSnapshot, e.sim.ControllerCount())
	for i := range controllers {
		sp, _ := e.sim.Setpoint(i)
		er, _ := e.sim.Error(i)
		out, _ := e.sim.Output(i)
		controllers[i] = historian.ControllerSnapshot{Setpoint: sp, Error: er, Output: out}
	}

	valvePosition := 0.0
	if len(u) > 1 {
		valvePosition = u[1]
	}

	return historian.Snapshot{
		T:               e.sim.Time(),
		Level:           x[0],
		InletFlow:       u[0],
		OutletFlow:      e.sim.OutletFlow(),
		ValvePosition:   valvePosition,
		Controllers:     controllers,
		DisturbanceMode: e.dist.Config().Mode.String(),
	}
}
