package intcode

import (
	"context"

	"github.com/raskyld/intcode/pkg/flow"
)

// Execute runs a program which performs no I/O and returns the value left
// at address 0 once it halts.
func Execute(ctx context.Context, program Program, opts ...MachineOption) (int64, error) {
	if len(program) == 0 {
		return 0, ErrEmptyProgram
	}

	m := NewMachine(program, nil, nil, opts...)
	if err := m.Run(ctx); err != nil {
		return 0, err
	}
	return m.mem[0], nil
}

// Diagnose runs a program fed with inputs and returns every value it
// wrote, in order. A program reading more values than provided blocks
// until ctx ends.
func Diagnose(ctx context.Context, program Program, inputs []int64, opts ...MachineOption) ([]int64, error) {
	if len(program) == 0 {
		return nil, ErrEmptyProgram
	}

	in := flow.NewQueue(inputs...)
	out := flow.NewQueue()
	if err := Run(ctx, program, in, out, opts...); err != nil {
		return out.Drain(), err
	}
	return out.Drain(), nil
}
