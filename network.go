package intcode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/intcode/pkg/flow"
	"golang.org/x/sync/errgroup"
)

// Network wires copies of one program into a ring of amplifiers: machine
// i reads queue i and writes queue (i+1) mod N, so the last machine feeds
// the first one back.
//
// A Network is immutable once created and can run many times, including
// concurrently, every run allocating its own machines and queues.
type Network struct {
	program Program
	config  config
	logger  *slog.Logger
	msink   metrics.MetricSink
}

func NewNetwork(program Program, opts ...Option) (*Network, error) {
	if len(program) == 0 {
		return nil, ErrEmptyProgram
	}

	n := &Network{
		program: Program(program.Clone()),
	}
	n.config.parallelism = 1

	for _, opt := range opts {
		if err := opt(&n.config); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	if n.config.logHandler != nil {
		n.logger = slog.New(n.config.logHandler)
	} else {
		n.logger = slog.Default()
	}

	if n.config.msink == nil {
		n.msink = metrics.Default()
	} else {
		n.msink = n.config.msink
	}

	return n, nil
}

// RunNetwork is a one-shot `Network.Run`.
func RunNetwork(ctx context.Context, program Program, phases []int64, s Scheduling, opts ...Option) (int64, error) {
	n, err := NewNetwork(program, append(opts, WithScheduling(s))...)
	if err != nil {
		return 0, err
	}
	return n.Run(ctx, phases)
}

// Scheduling returns how the machines of the network are run.
func (n *Network) Scheduling() Scheduling {
	return n.config.scheduling
}

// Run wires one machine per phase setting, pushes phase i to queue i, then
// the seed to queue 0, and runs the ring until every machine halts. The
// result is the last value left unread in queue 0.
//
// The first machine fault aborts the whole run and is returned.
func (n *Network) Run(ctx context.Context, phases []int64) (int64, error) {
	if len(phases) == 0 {
		return 0, ErrInvalidPhases
	}

	runID := uuid.NewString()
	logger := n.logger.With(
		LabelRunID.L(runID),
		LabelScheduling.L(n.config.scheduling.String()),
	)
	mLabels := withLabels(n.config.metricLabels, LabelScheduling.M(n.config.scheduling.String()))
	start := time.Now()

	size := len(phases)
	queues := make([]*flow.Queue, size)
	for i, phase := range phases {
		queues[i] = flow.NewQueue(phase)
	}
	// Only after queue 0 got its phase setting.
	if err := queues[0].Push(n.config.seed); err != nil {
		return 0, err
	}

	machines := make([]*Machine, size)
	for i := range machines {
		machines[i] = NewMachine(
			n.program,
			queues[i],
			queues[(i+1)%size],
			WithName(fmt.Sprintf("amp-%d", i)),
			WithLogger(logger),
			WithMetrics(n.msink, n.config.metricLabels...),
			WithTrace(n.config.trace),
		)
	}

	logger.Debug("network starting", "machines", size, "phases", phases)

	var err error
	switch n.config.scheduling {
	case Sequential:
		err = runSequential(ctx, machines)
	default:
		err = runConcurrent(ctx, machines)
	}

	n.msink.IncrCounterWithLabels(MetricNetworkRunCount, 1.0, mLabels)
	n.msink.AddSampleWithLabels(MetricNetworkRunMillis, float32(time.Since(start).Milliseconds()), mLabels)

	if err != nil {
		n.msink.IncrCounterWithLabels(
			MetricNetworkRunErrors,
			1.0,
			withLabels(mLabels, LabelError.M(errorKind(err))),
		)
		logger.Error("network run aborted", LabelError.L(err))
		return 0, err
	}

	left := queues[0].Drain()
	if len(left) == 0 {
		return 0, ErrNoSignal
	}

	signal := left[len(left)-1]
	logger.Debug("network halted", "signal", signal, "took", time.Since(start))
	return signal, nil
}

func runSequential(ctx context.Context, machines []*Machine) error {
	for _, m := range machines {
		if err := m.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", m.Name(), err)
		}
	}
	return nil
}

// runConcurrent gives each machine its own goroutine. A machine failing
// cancels the others, which are most likely blocked on input.
func runConcurrent(ctx context.Context, machines []*Machine) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, m := range machines {
		g.Go(func() error {
			if err := m.Run(gCtx); err != nil {
				return fmt.Errorf("%s: %w", m.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
