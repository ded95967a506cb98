package intcode

// ParamMode tells how an instruction operand is turned into a value.
type ParamMode uint8

const (
	// PositionMode dereferences the operand as an address.
	PositionMode ParamMode = 0
	// ImmediateMode uses the operand as is.
	ImmediateMode ParamMode = 1
)

func (m ParamMode) String() string {
	switch m {
	case PositionMode:
		return "position"
	case ImmediateMode:
		return "immediate"
	default:
		return "unknown"
	}
}

// Resolve returns the effective value of operand. pc is only used to
// annotate a memory fault.
func (m ParamMode) Resolve(mem Memory, operand int64, pc int) (int64, error) {
	if m == ImmediateMode {
		return operand, nil
	}
	return mem.Load(operand, pc)
}

func parseMode(digit int64, param int, raw int64, addr int) (ParamMode, error) {
	switch digit {
	case 0:
		return PositionMode, nil
	case 1:
		return ImmediateMode, nil
	default:
		return 0, &ModeError{Digit: digit, Param: param, Raw: raw, Addr: addr}
	}
}
