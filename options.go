package intcode

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

// Scheduling selects how the machines of a Network are run.
type Scheduling uint8

const (
	// Concurrent runs every machine in its own goroutine. It is required
	// as soon as the ring feeds signals back to the first machine.
	Concurrent Scheduling = iota
	// Sequential runs machines one after another on the caller
	// goroutine. It only terminates for programs without feedback.
	Sequential
)

func (s Scheduling) String() string {
	switch s {
	case Concurrent:
		return "concurrent"
	case Sequential:
		return "sequential"
	default:
		return "unknown"
	}
}

// ParseScheduling is the inverse of Scheduling.String.
func ParseScheduling(s string) (Scheduling, error) {
	switch s {
	case "", "concurrent":
		return Concurrent, nil
	case "sequential":
		return Sequential, nil
	default:
		return 0, fmt.Errorf("unknown scheduling %q", s)
	}
}

type config struct {
	logHandler   slog.Handler
	msink        metrics.MetricSink
	metricLabels []metrics.Label
	scheduling   Scheduling
	seed         int64
	parallelism  int
	trace        bool
}

// Option to pass to `NewNetwork`.
type Option func(*config) error

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithMetricSink allows you to chose how to collect the metrics emitted by
// the machines of the network.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the
// network.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithScheduling selects sequential or concurrent execution.
func WithScheduling(s Scheduling) Option {
	return func(c *config) error {
		if s != Concurrent && s != Sequential {
			return fmt.Errorf("unknown scheduling %d", s)
		}
		c.scheduling = s
		return nil
	}
}

// WithSeed sets the external signal pushed to the first machine after its
// phase setting. Defaults to 0.
func WithSeed(seed int64) Option {
	return func(c *config) error {
		c.seed = seed
		return nil
	}
}

// WithParallelism controls how many permutations a phase search evaluates
// at once. Zero means one.
func WithParallelism(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("parallelism must be positive, got %d", n)
		}
		if n == 0 {
			n = 1
		}
		c.parallelism = n
		return nil
	}
}

// WithTracing logs every instruction executed by every machine at debug
// level. It is really verbose.
func WithTracing(enabled bool) Option {
	return func(c *config) error {
		c.trace = enabled
		return nil
	}
}
