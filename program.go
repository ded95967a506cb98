package intcode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Program is the initial memory image of a machine. Machines never write
// to it, they work on their own Memory copy.
type Program []int64

// Memory is the mutable, machine-owned copy of a Program.
type Memory []int64

// ParseProgram reads comma-separated decimal integers. Surrounding
// whitespace and newlines are ignored.
func ParseProgram(r io.Reader) (Program, error) {
	raw, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseProgram, err)
	}

	text := bytes.TrimSpace(raw)
	if len(text) == 0 {
		return nil, ErrEmptyProgram
	}

	fields := strings.Split(string(text), ",")
	prog := make(Program, 0, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d (%q): %w", ErrParseProgram, i, field, err)
		}
		prog = append(prog, v)
	}
	return prog, nil
}

// MustParse is ParseProgram for literals known to be valid.
func MustParse(text string) Program {
	prog, err := ParseProgram(strings.NewReader(text))
	if err != nil {
		panic(err)
	}
	return prog
}

func (p Program) String() string {
	var sb strings.Builder
	for i, v := range p {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(v, 10))
	}
	return sb.String()
}

// Clone returns a memory image owned by the caller.
func (p Program) Clone() Memory {
	mem := make(Memory, len(p))
	copy(mem, p)
	return mem
}

// Patch returns a copy of the program with addresses 1 and 2 replaced by
// noun and verb.
func (p Program) Patch(noun, verb int64) (Program, error) {
	if len(p) < 3 {
		return nil, &MemoryFaultError{Addr: 2, Size: len(p), Write: true}
	}
	patched := Program(p.Clone())
	patched[1] = noun
	patched[2] = verb
	return patched, nil
}

// Load reads addr for the instruction at pc.
func (m Memory) Load(addr int64, pc int) (int64, error) {
	if addr < 0 || addr >= int64(len(m)) {
		return 0, &MemoryFaultError{Addr: addr, PC: pc, Size: len(m)}
	}
	return m[addr], nil
}

// Store writes value at addr for the instruction at pc.
func (m Memory) Store(addr int64, value int64, pc int) error {
	if addr < 0 || addr >= int64(len(m)) {
		return &MemoryFaultError{Addr: addr, PC: pc, Size: len(m), Write: true}
	}
	m[addr] = value
	return nil
}
