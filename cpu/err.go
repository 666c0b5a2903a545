package cpu

import (
	"errors"

	"github.com/ezrec/armemu/translate"
)

var f = translate.From

var (
	// Cpu errors
	ErrMemoryAccess  = errors.New(f("memory access"))
	ErrMemoryAlign   = errors.New(f("memory alignment"))
	ErrMemoryMissing = errors.New(f("memory missing"))

	// Instruction decode errors
	ErrOpcodeDecode        = errors.New(f("decode"))
	ErrOpcodeFetch         = errors.New(f("fetch"))
	ErrOpcodeTransfer      = errors.New(f("data transfer"))
	ErrTransferUnsupported = errors.New(f("transfer mode unsupported"))

	// Assembler errors
	ErrEquateSyntax       = errors.New(f(".equ syntax"))
	ErrEquateDuplicate    = errors.New(f(".equ duplicated"))
	ErrLabelDuplicate     = errors.New(f("label duplicated"))
	ErrMacroSyntax        = errors.New(f(".macro syntax"))
	ErrMacroNesting       = errors.New(f(".macro in .macro prohibited"))
	ErrMacroDuplicate     = errors.New(f(".macro duplicated"))
	ErrMacroLonely        = errors.New(f(".macro without .endm"))
	ErrMacroLonelyEndm    = errors.New(f(".endm without .macro"))
	ErrOpcodeExtraArgs    = errors.New(f("excessive arguments"))
	ErrOpcodeMissing      = errors.New(f("opcode missing"))
	ErrOpcodeValueMissing = errors.New(f("value missing"))
	ErrRegisterInvalid    = errors.New(f("register invalid"))
	ErrImmediateRange     = errors.New(f("immediate out of range"))
	ErrShiftRange         = errors.New(f("shift out of range"))
	ErrAddressSyntax      = errors.New(f("address syntax"))
	ErrBranchRange        = errors.New(f("branch out of range"))
	ErrInstructionInvalid = errors.New(f("instruction invalid"))
)

type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

// ErrOpcode identifies the instruction word that failed to execute.
type ErrOpcode Code

func (eo ErrOpcode) Error() string {
	return f("bad opcode 0x%08x %v", uint32(eo), Code(eo).String())
}

func (eo ErrOpcode) Is(err error) (ok bool) {
	_, ok = err.(ErrOpcode)
	return
}

type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

type ErrMacro struct {
	Macro string
	Line  int
	Err   error
}

func (err ErrMacro) Error() string {
	return f("macro %v line %v %v", err.Macro, err.Line, err.Err.Error())
}

func (err ErrMacro) Unwrap() error {
	return err.Err
}
