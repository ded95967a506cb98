package intcode

import (
	"errors"
	"fmt"

	"github.com/quic-go/quic-go"
)

var (
	ErrInvalidOpcode = errors.New("machine: invalid opcode")
	ErrMemoryFault   = errors.New("machine: memory fault")
	ErrInvalidMode   = errors.New("machine: invalid addressing mode")
	ErrMachineHalted = errors.New("machine: already halted")

	ErrEmptyProgram = errors.New("program: empty program")
	ErrParseProgram = errors.New("program: could not parse program")

	ErrInvalidCfg    = errors.New("network: invalid options")
	ErrInvalidPhases = errors.New("network: phase settings must be 1 to 10 distinct values")
	ErrNoSignal      = errors.New("network: no signal left in the loop after all machines halted")

	ErrNoTLSConfig       = errors.New("transport: TlsConfig is required")
	ErrInvalidAddr       = errors.New("transport: the IP you provided is invalid")
	ErrShutdown          = errors.New("transport: shutting down")
	ErrExportExists      = errors.New("transport: export name already in use")
	ErrExportUnknown     = errors.New("transport: export does not exist")
	ErrExportName        = errors.New("transport: export names must only contain alphanum, dashes, dots and be less than 128 chars")
	ErrProtocolViolation = errors.New("transport: protocol violation")
)

var (
	QErrStreamUnknownExport = quic.StreamErrorCode(0x10)
	QErrStreamProtocol      = quic.StreamErrorCode(0xFF)
)

var (
	QErrShutdown = QuicApplicationError{
		Code:   0x3,
		Prefix: "shutdown",
	}
)

type QuicApplicationError struct {
	Code   uint64
	Prefix string
}

func (qerr *QuicApplicationError) Close(conn quic.Connection, msg string) error {
	if conn != nil {
		return conn.CloseWithError(
			quic.ApplicationErrorCode(qerr.Code),
			fmt.Sprintf("%s: %s", qerr.Prefix, msg),
		)
	}
	return nil
}

// InvalidOpcodeError reports an instruction whose two low digits are not
// a known opcode.
type InvalidOpcodeError struct {
	Opcode int64
	Raw    int64
	Addr   int
}

func (e *InvalidOpcodeError) Error() string {
	return fmt.Sprintf("%s %d (raw %d) at address %d", ErrInvalidOpcode, e.Opcode, e.Raw, e.Addr)
}

func (e *InvalidOpcodeError) Unwrap() error {
	return ErrInvalidOpcode
}

// MemoryFaultError reports an access outside of the machine memory.
type MemoryFaultError struct {
	Addr  int64
	PC    int
	Size  int
	Write bool
}

func (e *MemoryFaultError) Error() string {
	access := "read"
	if e.Write {
		access = "write"
	}
	return fmt.Sprintf("%s: %s of address %d by instruction at %d (memory size %d)",
		ErrMemoryFault, access, e.Addr, e.PC, e.Size)
}

func (e *MemoryFaultError) Unwrap() error {
	return ErrMemoryFault
}

// ModeError reports a parameter mode digit other than 0 or 1.
type ModeError struct {
	Digit int64
	Param int
	Raw   int64
	Addr  int
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("%s %d for parameter %d of %d at address %d",
		ErrInvalidMode, e.Digit, e.Param+1, e.Raw, e.Addr)
}

func (e *ModeError) Unwrap() error {
	return ErrInvalidMode
}
