package intcode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of program.
//
// The listing is linear: words which do not decode into a complete
// instruction are printed as DATA and skipped one at a time, so data
// areas placed after a HALT show up as such.
//
//	0000  IN    ->[18]
//	0002  IN    ->[19]
//	0004  ADD   [19] [18] ->[19]
func Disassemble(program Program) string {
	var sb strings.Builder
	addr := 0
	for addr < len(program) {
		line, width := disassembleAt(program, addr)
		sb.WriteString(fmt.Sprintf("%04d  %s\n", addr, line))
		addr += width
	}
	return sb.String()
}

func disassembleAt(program Program, addr int) (string, int) {
	raw := program[addr]
	ins, err := Decode(raw, addr)
	if err != nil || addr+ins.Width() > len(program) {
		return fmt.Sprintf("DATA  %d", raw), 1
	}

	info, _ := GetOpcodeInfo(ins.Op)
	operands := make([]string, 0, info.Params)
	for i := 0; i < info.Params; i++ {
		v := program[addr+1+i]
		switch {
		case info.Writes && i == info.Params-1:
			operands = append(operands, fmt.Sprintf("->[%d]", v))
		case ins.Modes[i] == ImmediateMode:
			operands = append(operands, fmt.Sprintf("#%d", v))
		default:
			operands = append(operands, fmt.Sprintf("[%d]", v))
		}
	}

	if len(operands) == 0 {
		return info.Name, ins.Width()
	}
	return fmt.Sprintf("%-5s %s", info.Name, strings.Join(operands, " ")), ins.Width()
}
