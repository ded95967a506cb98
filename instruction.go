package intcode

import "fmt"

// Opcode is the two low decimal digits of an instruction word.
type Opcode uint8

const (
	OpAdd         Opcode = 1  // [c] = a + b
	OpMultiply    Opcode = 2  // [c] = a * b
	OpInput       Opcode = 3  // [a] = next input, blocking
	OpOutput      Opcode = 4  // emit a
	OpJumpIfTrue  Opcode = 5  // pc = b if a != 0
	OpJumpIfFalse Opcode = 6  // pc = b if a == 0
	OpLessThan    Opcode = 7  // [c] = a < b
	OpEquals      Opcode = 8  // [c] = a == b
	OpHalt        Opcode = 99 // stop for good
)

// OpcodeInfo provides metadata about each opcode for decoding and
// disassembly.
type OpcodeInfo struct {
	Name   string // Human-readable name
	Params int    // Operands following the opcode word
	Writes bool   // Last operand is a write target
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpAdd:         {"ADD", 3, true},
	OpMultiply:    {"MUL", 3, true},
	OpInput:       {"IN", 1, true},
	OpOutput:      {"OUT", 1, false},
	OpJumpIfTrue:  {"JNZ", 2, false},
	OpJumpIfFalse: {"JZ", 2, false},
	OpLessThan:    {"LT", 3, true},
	OpEquals:      {"EQ", 3, true},
	OpHalt:        {"HALT", 0, false},
}

// GetOpcodeInfo returns metadata for an opcode and whether it is known.
func GetOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfoTable[op]
	if !ok {
		return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(%d)", op)}, false
	}
	return info, true
}

func (op Opcode) String() string {
	info, _ := GetOpcodeInfo(op)
	return info.Name
}

// Width is the number of memory words the instruction occupies.
func (op Opcode) Width() int {
	info, _ := GetOpcodeInfo(op)
	return 1 + info.Params
}

// AllOpcodes returns every defined opcode in ascending order.
func AllOpcodes() []Opcode {
	return []Opcode{
		OpAdd, OpMultiply, OpInput, OpOutput,
		OpJumpIfTrue, OpJumpIfFalse, OpLessThan, OpEquals,
		OpHalt,
	}
}

// Instruction is the decoded view of one instruction word. It is derived
// fresh from memory at every step and never stored.
type Instruction struct {
	Op    Opcode
	Modes [3]ParamMode
	Raw   int64
	Addr  int
}

// Decode splits raw, read at addr, into an opcode and three parameter
// modes.
func Decode(raw int64, addr int) (Instruction, error) {
	code := raw % 100
	if code < 0 {
		return Instruction{}, &InvalidOpcodeError{Opcode: code, Raw: raw, Addr: addr}
	}
	op := Opcode(code)
	if _, ok := opcodeInfoTable[op]; !ok {
		return Instruction{}, &InvalidOpcodeError{Opcode: code, Raw: raw, Addr: addr}
	}

	ins := Instruction{Op: op, Raw: raw, Addr: addr}
	divisor := int64(100)
	for i := range ins.Modes {
		mode, err := parseMode(raw/divisor%10, i, raw, addr)
		if err != nil {
			return Instruction{}, err
		}
		ins.Modes[i] = mode
		divisor *= 10
	}
	return ins, nil
}

// Width is the number of memory words the instruction occupies.
func (ins Instruction) Width() int {
	return ins.Op.Width()
}

func (ins Instruction) String() string {
	return fmt.Sprintf("%s@%d(%d)", ins.Op, ins.Addr, ins.Raw)
}
