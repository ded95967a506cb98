package intcode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/intcode/pkg/flow"
)

// ctxCheckInterval is how many instructions run between two context
// checks when the program does not block on input.
const ctxCheckInterval = 1 << 12

// State of a Machine.
type State uint8

const (
	Running State = iota
	Halted
	// Faulted machines stopped on an invalid opcode, mode or memory
	// access. Like Halted, it is terminal.
	Faulted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Machine executes one program to completion. It owns its memory and
// program counter, the flows it reads from and writes to are the only
// state it shares.
//
// A Machine MUST NOT be stepped from several goroutines at once.
type Machine struct {
	name  string
	mem   Memory
	pc    int
	state State
	fault error
	steps uint64

	in  flow.Reader
	out flow.Writer

	logger       *slog.Logger
	msink        metrics.MetricSink
	metricLabels []metrics.Label
	trace        bool
}

// NewMachine loads a private copy of program. in may be nil for programs
// which never read, out may be nil for programs which never write.
func NewMachine(program Program, in flow.Reader, out flow.Writer, opts ...MachineOption) *Machine {
	var o machineOpts
	for _, opt := range opts {
		opt(&o)
	}

	m := &Machine{
		name:         o.name,
		mem:          program.Clone(),
		in:           in,
		out:          out,
		logger:       o.logger,
		msink:        o.msink,
		metricLabels: o.metricLabels,
		trace:        o.trace,
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.name != "" {
		m.logger = m.logger.With(LabelMachine.L(m.name))
		m.metricLabels = withLabels(m.metricLabels, LabelMachine.M(m.name))
	}
	if m.msink == nil {
		m.msink = metrics.Default()
	}
	return m
}

// Run executes the program until it halts. It returns nil on halt, the
// fault if the program is malformed, or the context error if ctx ends
// while the machine waits for input.
func Run(ctx context.Context, program Program, in flow.Reader, out flow.Writer, opts ...MachineOption) error {
	return NewMachine(program, in, out, opts...).Run(ctx)
}

func (m *Machine) Run(ctx context.Context) error {
	for {
		if m.steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		state, err := m.Step(ctx)
		if err != nil {
			return err
		}
		if state == Halted {
			return nil
		}
	}
}

// Step executes a single instruction.
func (m *Machine) Step(ctx context.Context) (State, error) {
	switch m.state {
	case Halted:
		return m.state, ErrMachineHalted
	case Faulted:
		return m.state, m.fault
	}

	raw, err := m.mem.Load(int64(m.pc), m.pc)
	if err != nil {
		return m.failed(err)
	}
	ins, err := Decode(raw, m.pc)
	if err != nil {
		return m.failed(err)
	}

	if m.trace {
		m.logger.Debug("exec",
			"pc", m.pc,
			"op", ins.Op.String(),
			"raw", ins.Raw,
		)
	}

	switch ins.Op {
	case OpAdd, OpMultiply, OpLessThan, OpEquals:
		a, err := m.param(ins, 0)
		if err != nil {
			return m.failed(err)
		}
		b, err := m.param(ins, 1)
		if err != nil {
			return m.failed(err)
		}
		dst, err := m.operand(ins, 2)
		if err != nil {
			return m.failed(err)
		}

		var result int64
		switch ins.Op {
		case OpAdd:
			result = a + b
		case OpMultiply:
			result = a * b
		case OpLessThan:
			result = boolWord(a < b)
		case OpEquals:
			result = boolWord(a == b)
		}

		if err := m.mem.Store(dst, result, m.pc); err != nil {
			return m.failed(err)
		}
		m.pc += ins.Width()

	case OpInput:
		dst, err := m.operand(ins, 0)
		if err != nil {
			return m.failed(err)
		}
		if m.in == nil {
			return m.failed(fmt.Errorf("machine %s: input instruction at %d but no input flow", m.name, m.pc))
		}
		value, err := m.in.Recv(ctx)
		if err != nil {
			// not a fault, the same step can be retried with a live context.
			return m.state, fmt.Errorf("machine %s: read input at %d: %w", m.name, m.pc, err)
		}
		if err := m.mem.Store(dst, value, m.pc); err != nil {
			return m.failed(err)
		}
		m.pc += ins.Width()

	case OpOutput:
		value, err := m.param(ins, 0)
		if err != nil {
			return m.failed(err)
		}
		if m.out == nil {
			return m.failed(fmt.Errorf("machine %s: output instruction at %d but no output flow", m.name, m.pc))
		}
		if err := m.out.Send(ctx, value); err != nil {
			return m.state, fmt.Errorf("machine %s: write output at %d: %w", m.name, m.pc, err)
		}
		m.msink.IncrCounterWithLabels(MetricMachineOutputCount, 1.0, m.metricLabels)
		m.pc += ins.Width()

	case OpJumpIfTrue, OpJumpIfFalse:
		cond, err := m.param(ins, 0)
		if err != nil {
			return m.failed(err)
		}
		target, err := m.param(ins, 1)
		if err != nil {
			return m.failed(err)
		}
		if (ins.Op == OpJumpIfTrue) == (cond != 0) {
			// an out of range target faults on the next fetch.
			m.pc = int(target)
		} else {
			m.pc += ins.Width()
		}

	case OpHalt:
		m.pc += ins.Width()
		m.state = Halted
		m.steps++
		m.logger.Debug("machine halted", "steps", m.steps)
		m.msink.IncrCounterWithLabels(MetricMachineHaltCount, 1.0, m.metricLabels)
		m.msink.IncrCounterWithLabels(MetricMachineInstructions, float32(m.steps), m.metricLabels)
		return m.state, nil
	}

	m.steps++
	return m.state, nil
}

func (m *Machine) Name() string {
	return m.name
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) PC() int {
	return m.pc
}

// Steps is the number of instructions executed so far.
func (m *Machine) Steps() uint64 {
	return m.steps
}

// Err is the fault which stopped the machine, if any.
func (m *Machine) Err() error {
	return m.fault
}

// Memory returns a snapshot of the machine memory.
func (m *Machine) Memory() Memory {
	snapshot := make(Memory, len(m.mem))
	copy(snapshot, m.mem)
	return snapshot
}

// operand returns the raw i-th operand of ins.
func (m *Machine) operand(ins Instruction, i int) (int64, error) {
	return m.mem.Load(int64(ins.Addr+1+i), ins.Addr)
}

// param returns the i-th operand of ins resolved through its mode.
func (m *Machine) param(ins Instruction, i int) (int64, error) {
	raw, err := m.operand(ins, i)
	if err != nil {
		return 0, err
	}
	return ins.Modes[i].Resolve(m.mem, raw, ins.Addr)
}

func (m *Machine) failed(err error) (State, error) {
	m.state = Faulted
	m.fault = err
	m.logger.Warn("machine faulted", "pc", m.pc, "steps", m.steps, LabelError.L(err))
	m.msink.IncrCounterWithLabels(
		MetricMachineFaultCount,
		1.0,
		withLabels(m.metricLabels, LabelError.M(errorKind(err))),
	)
	m.msink.IncrCounterWithLabels(MetricMachineInstructions, float32(m.steps), m.metricLabels)
	return m.state, err
}

func boolWord(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
