package engine

import (
	"reflect"

	"github.com/kallisto-labs/tanksim/internal/control/pid"
	"github.com/kallisto-labs/tanksim/internal/disturbance"
	"github.com/kallisto-labs/tanksim/internal/simulator"
	"github.com/kallisto-labs/tanksim/internal/tankmodel"
	"github.com/rs/zerolog"
)

const (
	// DefaultHistorianCapacity is N_hist from spec.md §3: 2 hours at 1 Hz.
	DefaultHistorianCapacity = 7200
	// DefaultCommandQueueCapacity bounds the MPSC command queue (spec.md §5).
	DefaultCommandQueueCapacity = 64
	// DefaultSubscriberBufferCapacity bounds each subscriber's channel.
	DefaultSubscriberBufferCapacity = 32
)

// Config is everything an Engine is built from: the tank and controller
// shape, the initial disturbance process, and the operational bounds for
// the queue, subscribers, and historian.
type Config struct {
	Tank        tankmodel.Params
	DT          float64
	Controllers []simulator.ControllerConfig

	InitialState []float64
	InitialInput []float64

	Disturbance     disturbance.Config
	DisturbanceSeed int64

	HistorianCapacity        int
	CommandQueueCapacity     int
	SubscriberBufferCapacity int

	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.HistorianCapacity <= 0 {
		c.HistorianCapacity = DefaultHistorianCapacity
	}
	if c.CommandQueueCapacity <= 0 {
		c.CommandQueueCapacity = DefaultCommandQueueCapacity
	}
	if c.SubscriberBufferCapacity <= 0 {
		c.SubscriberBufferCapacity = DefaultSubscriberBufferCapacity
	}
	if reflect.DeepEqual(c.Logger, zerolog.Logger{}) {
		c.Logger = zerolog.Nop()
	}
	return c
}

// ControllerDescriptor is a controller's initial gains, bias, and limits as
// reported by the read-only configuration surface (spec.md §6).
type ControllerDescriptor struct {
	Gains           pid.Gains
	Bias            float64
	Limits          pid.Limits
	MeasuredIndex   int
	OutputIndex     int
	InitialSetpoint float64
}

// ConfigDescriptor is the structured, read-only-after-start descriptor
// spec.md §6 defines: tank parameters, dt, per-controller initial gains and
// limits, initial state/inputs, historian capacity, and current historian
// size.
type ConfigDescriptor struct {
	Tank        tankmodel.Params
	DT          float64
	Controllers []ControllerDescriptor

	InitialState []float64
	InitialInput []float64

	HistorianCapacity int
	HistorianSize     int
}
