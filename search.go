package intcode

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// MaxPhases bounds the size of a phase set, 10! runs being already a lot.
const MaxPhases = 10

// SearchResult is the outcome of a phase search.
type SearchResult struct {
	// Signal is the highest final signal found.
	Signal int64
	// Phases is the first permutation, in enumeration order, producing
	// Signal.
	Phases []int64
	// Evaluated is the number of permutations run.
	Evaluated int
}

// Permutations yields every ordering of values exactly once, using Heap's
// algorithm. Each yielded slice is a fresh copy the caller may keep.
func Permutations(values []int64) iter.Seq[[]int64] {
	return func(yield func([]int64) bool) {
		a := slices.Clone(values)
		if !yield(slices.Clone(a)) {
			return
		}

		c := make([]int, len(a))
		i := 1
		for i < len(a) {
			if c[i] < i {
				if i%2 == 0 {
					a[0], a[i] = a[i], a[0]
				} else {
					a[c[i]], a[i] = a[i], a[c[i]]
				}
				if !yield(slices.Clone(a)) {
					return
				}
				c[i]++
				i = 1
			} else {
				c[i] = 0
				i++
			}
		}
	}
}

// PhaseRange returns the contiguous phase set [lo, hi].
func PhaseRange(lo, hi int64) []int64 {
	if hi < lo {
		return nil
	}
	out := make([]int64, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		out = append(out, v)
	}
	return out
}

// Search runs the network once per permutation of phases and returns the
// best final signal. Any run failing aborts the search.
func (n *Network) Search(ctx context.Context, phases []int64) (SearchResult, error) {
	if err := validatePhases(phases); err != nil {
		return SearchResult{}, err
	}

	var (
		lk      sync.Mutex
		best    SearchResult
		bestIdx = -1
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(n.config.parallelism)

	idx := 0
	for perm := range Permutations(phases) {
		if gCtx.Err() != nil {
			break
		}
		i := idx
		idx++

		g.Go(func() error {
			signal, err := n.Run(gCtx, perm)
			if err != nil {
				return fmt.Errorf("phases %v: %w", perm, err)
			}

			lk.Lock()
			defer lk.Unlock()
			best.Evaluated++
			if bestIdx < 0 || signal > best.Signal || (signal == best.Signal && i < bestIdx) {
				best.Signal = signal
				best.Phases = perm
				bestIdx = i
			}
			return nil
		})
	}

	err := g.Wait()
	n.msink.IncrCounterWithLabels(MetricSearchPermutations, float32(best.Evaluated), n.config.metricLabels)
	if err != nil {
		return SearchResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return SearchResult{}, err
	}

	n.logger.Info("phase search done",
		"signal", best.Signal,
		"phases", best.Phases,
		"evaluated", best.Evaluated,
	)
	return best, nil
}

// MaxSignal is Search reporting the signal only.
func (n *Network) MaxSignal(ctx context.Context, phases []int64) (int64, error) {
	res, err := n.Search(ctx, phases)
	if err != nil {
		return 0, err
	}
	return res.Signal, nil
}

// MaxSignal is a one-shot `Network.MaxSignal`.
func MaxSignal(ctx context.Context, program Program, phases []int64, opts ...Option) (int64, error) {
	n, err := NewNetwork(program, opts...)
	if err != nil {
		return 0, err
	}
	return n.MaxSignal(ctx, phases)
}

func validatePhases(phases []int64) error {
	if len(phases) == 0 || len(phases) > MaxPhases {
		return fmt.Errorf("%w: got %d values", ErrInvalidPhases, len(phases))
	}
	seen := make(map[int64]struct{}, len(phases))
	for _, p := range phases {
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: %d appears twice", ErrInvalidPhases, p)
		}
		seen[p] = struct{}{}
	}
	return nil
}
