package intcode

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

type machineOpts struct {
	name         string
	logger       *slog.Logger
	msink        metrics.MetricSink
	metricLabels []metrics.Label
	trace        bool
}

// MachineOption customises a single Machine.
type MachineOption func(*machineOpts)

// WithName sets the name used in logs and metric labels.
func WithName(name string) MachineOption {
	return func(o *machineOpts) {
		o.name = name
	}
}

// WithLogger sets the logger of the machine.
func WithLogger(logger *slog.Logger) MachineOption {
	return func(o *machineOpts) {
		o.logger = logger
	}
}

// WithMetrics sets where the machine emits its metrics, and static labels
// to add to every one of them.
func WithMetrics(ms metrics.MetricSink, labels ...metrics.Label) MachineOption {
	return func(o *machineOpts) {
		o.msink = ms
		o.metricLabels = labels
	}
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(enabled bool) MachineOption {
	return func(o *machineOpts) {
		o.trace = enabled
	}
}
