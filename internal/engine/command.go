package engine

import (
	"math"

	"github.com/kallisto-labs/tanksim/internal/disturbance"
	"github.com/kallisto-labs/tanksim/internal/historian"
	"github.com/kallisto-labs/tanksim/internal/simerr"
)

// Kind names a command, using the same token spec.md §6 uses on the wire
// (a transport collaborator maps its message schema onto these).
type Kind string

const (
	KindSetSetpoint  Kind = "setpoint"
	KindSetGains     Kind = "pid"
	KindSetInletFlow Kind = "inlet_flow"
	KindSetInletMode Kind = "inlet_mode"
	KindReset        Kind = "reset"
	KindHistory      Kind = "history"
)

// HistoryReply answers a Command{Kind: KindHistory} out-of-band, as
// spec.md §4.E requires. Requesters must treat the absence of a reply (the
// channel never receiving and ctx being cancelled) as cancellation, since
// an in-flight reply may be dropped on shutdown.
type HistoryReply struct {
	Entries []historian.Snapshot
	Err     error
}

// Command is a tagged union of every message the engine's queue accepts.
// Only the fields relevant to Kind are meaningful; Validate is exhaustive
// by construction over Kind so a malformed or unsupported payload is always
// a typed error rather than a silent no-op.
type Command struct {
	Kind Kind

	// setpoint, pid
	Controller int

	// setpoint, inlet_flow
	Value float64

	// pid
	Gains struct {
		Kc, TauI, TauD float64
	}

	// inlet_mode
	Disturbance disturbance.Config

	// history
	DurationS int
	Reply     chan HistoryReply
}

// SetSetpoint builds a KindSetSetpoint command.
func SetSetpoint(controller int, value float64) Command {
	return Command{Kind: KindSetSetpoint, Controller: controller, Value: value}
}

// SetGains builds a KindSetGains command.
func SetGains(controller int, kc, tauI, tauD float64) Command {
	c := Command{Kind: KindSetGains, Controller: controller}
	c.Gains.Kc, c.Gains.TauI, c.Gains.TauD = kc, tauI, tauD
	return c
}

// SetInletFlow builds a KindSetInletFlow command.
func SetInletFlow(value float64) Command {
	return Command{Kind: KindSetInletFlow, Value: value}
}

// SetInletMode builds a KindSetInletMode command.
func SetInletMode(cfg disturbance.Config) Command {
	return Command{Kind: KindSetInletMode, Disturbance: cfg}
}

// Reset builds a KindReset command.
func Reset() Command {
	return Command{Kind: KindReset}
}

// RequestHistory builds a KindHistory command with a fresh reply channel.
func RequestHistory(durationS int) Command {
	return Command{Kind: KindHistory, DurationS: durationS, Reply: make(chan HistoryReply, 1)}
}

// validate checks a command's payload against the rules in spec.md §4.E /
// §5, given the tank's max height (needed to bound a setpoint) and the
// historian capacity (needed to bound a history request). It never
// inspects engine state beyond these two immutable construction-time
// values, so it can run synchronously in Submit before the command is
// queued.
func (c Command) validate(maxHeight float64, histCapacity int) error {
	switch c.Kind {
	case KindSetSetpoint:
		if !finite(c.Value) || c.Value < 0 || c.Value > maxHeight {
			return simerr.Range("setpoint %v outside [0, %v]", c.Value, maxHeight)
		}
		return nil
	case KindSetGains:
		if !finite(c.Gains.Kc) {
			return simerr.Validation("Kc must be finite")
		}
		if c.Gains.TauI < 0 {
			return simerr.Validation("tau_I must be >= 0, got %v", c.Gains.TauI)
		}
		if c.Gains.TauD < 0 {
			return simerr.Validation("tau_D must be >= 0, got %v", c.Gains.TauD)
		}
		return nil
	case KindSetInletFlow:
		if !finite(c.Value) || c.Value < 0 {
			return simerr.Validation("inlet flow must be finite and >= 0, got %v", c.Value)
		}
		return nil
	case KindSetInletMode:
		return c.Disturbance.Validate()
	case KindReset:
		return nil
	case KindHistory:
		if c.DurationS < 1 || c.DurationS > histCapacity {
			return simerr.Range("history duration_s %d outside [1, %d]", c.DurationS, histCapacity)
		}
		return nil
	default:
		return simerr.Validation("unknown command kind %q", c.Kind)
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
