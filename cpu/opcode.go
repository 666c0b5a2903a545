package cpu

import (
	"fmt"
)

// CodeClass is the instruction family of an instruction word.
type CodeClass int

//go:generate go tool stringer -linecomment -type=CodeClass
const (
	OP_UNKNOWN = CodeClass(0) // ?
	OP_BX      = CodeClass(1) // bx
	OP_B       = CodeClass(2) // b
	OP_DP      = CodeClass(3) // dp
	OP_SDT     = CodeClass(4) // sdt
)

// CodeDataOp is a data processing operation.
type CodeDataOp int

//go:generate go tool stringer -linecomment -type=CodeDataOp
const (
	DATA_OP_SUB = CodeDataOp(0b0010) // sub
	DATA_OP_ADD = CodeDataOp(0b0100) // add
	DATA_OP_CMP = CodeDataOp(0b1010) // cmp
	DATA_OP_MOV = CodeDataOp(0b1101) // mov
)

// Defined returns true for the operations the executor implements.
func (op CodeDataOp) Defined() bool {
	switch op {
	case DATA_OP_SUB, DATA_OP_ADD, DATA_OP_CMP, DATA_OP_MOV:
		return true
	}
	return false
}

// Fixed bits of the branch-and-exchange encoding, bits [27:4].
const BX_PATTERN = 0x12fff1

// Single data transfer mode bits.
const (
	SDT_PRE   = uint32(1 << 24) // Pre-indexed.
	SDT_UP    = uint32(1 << 23) // Offset is added.
	SDT_BYTE  = uint32(1 << 22) // Byte transfer.
	SDT_WBACK = uint32(1 << 21) // Write back the address.

	SDT_MODE_MASK      = SDT_PRE | SDT_UP | SDT_BYTE | SDT_WBACK
	SDT_MODE_SUPPORTED = SDT_PRE | SDT_UP
)

// Code is a single 32-bit instruction word.
type Code uint32

// IsBranchExchange returns true for the branch-and-exchange encoding.
func (code Code) IsBranchExchange() bool {
	return (uint32(code)>>4)&0xffffff == BX_PATTERN
}

// IsBranch returns true for the branch and branch-with-link encodings.
func (code Code) IsBranch() bool {
	return (uint32(code)>>25)&0b111 == 0b101
}

// IsDataProcessing returns true for the data processing encodings.
func (code Code) IsDataProcessing() bool {
	return (uint32(code)>>26)&0b11 == 0b00
}

// IsSingleDataTransfer returns true for the single data transfer encodings.
func (code Code) IsSingleDataTransfer() bool {
	return (uint32(code)>>26)&0b11 == 0b01
}

// Class returns the instruction family. The most constrained encoding is
// tested first, as branch-and-exchange is also a data processing pattern.
func (code Code) Class() CodeClass {
	switch {
	case code.IsBranchExchange():
		return OP_BX
	case code.IsBranch():
		return OP_B
	case code.IsDataProcessing():
		return OP_DP
	case code.IsSingleDataTransfer():
		return OP_SDT
	}
	return OP_UNKNOWN
}

// Cond returns the condition field, bits [31:28].
func (code Code) Cond() CodeCond {
	return CodeCond((uint32(code) >> 28) & 0xf)
}

// BranchExchangeDecode decodes and returns the target register.
func (code Code) BranchExchangeDecode() (rn int) {
	return int(uint32(code) & 0xf)
}

// BranchDecode decodes and returns the condition, link flag, and the byte
// offset to add to the address of the branch when taken.
func (code Code) BranchDecode() (cond CodeCond, link bool, offset uint32) {
	word := uint32(code)
	cond = code.Cond()
	link = (word>>24)&1 == 1
	// Sign extend the 24-bit word offset, then scale to bytes.
	offset = uint32(int32(word<<8)>>6) + 8
	return
}

// DataDecode decodes and returns the data processing fields.
func (code Code) DataDecode() (op CodeDataOp, immediate bool, rn, rd, rm int, imm uint32) {
	word := uint32(code)
	immediate = (word>>25)&1 == 1
	op = CodeDataOp((word >> 21) & 0xf)
	rn = int((word >> 16) & 0xf)
	rd = int((word >> 12) & 0xf)
	rm = int(word & 0xf)
	imm = word & 0xff
	return
}

// TransferDecode decodes and returns the single data transfer fields.
func (code Code) TransferDecode() (load, register bool, rn, rd, rm int, shift, imm uint32, mode uint32) {
	word := uint32(code)
	register = (word>>25)&1 == 1
	load = (word>>20)&1 == 1
	rn = int((word >> 16) & 0xf)
	rd = int((word >> 12) & 0xf)
	rm = int(word & 0xf)
	shift = (word >> 7) & 0x1f
	imm = word & 0xff
	mode = word & SDT_MODE_MASK
	return
}

// MakeCodeBx creates a branch-and-exchange instruction.
func MakeCodeBx(rn int) Code {
	return Code(uint32(COND_AL)<<28 | BX_PATTERN<<4 | uint32(rn&0xf))
}

// MakeCodeBranch creates a conditional branch to a byte offset relative to
// the branch instruction.
func MakeCodeBranch(cond CodeCond, link bool, offset int32) Code {
	word := uint32(cond&0xf)<<28 | 0b101<<25
	if link {
		word |= 1 << 24
	}
	word |= uint32((offset-8)>>2) & 0xffffff
	return Code(word)
}

// MakeCodeData creates a data processing instruction with a register
// second operand.
func MakeCodeData(op CodeDataOp, rd, rn, rm int) Code {
	return makeData(op, rd, rn) | Code(rm&0xf)
}

// MakeCodeDataImm creates a data processing instruction with an 8-bit
// immediate second operand.
func MakeCodeDataImm(op CodeDataOp, rd, rn int, imm uint8) Code {
	return makeData(op, rd, rn) | Code(1<<25) | Code(imm)
}

func makeData(op CodeDataOp, rd, rn int) Code {
	word := uint32(COND_AL)<<28 | uint32(op&0xf)<<21 | uint32(rn&0xf)<<16 | uint32(rd&0xf)<<12
	if op == DATA_OP_CMP {
		// Set condition codes.
		word |= 1 << 20
	}
	return Code(word)
}

// MakeCodeTransfer creates a single data transfer with an 8-bit immediate
// offset.
func MakeCodeTransfer(load bool, rd, rn int, imm uint8) Code {
	return makeTransfer(load, rd, rn) | Code(imm)
}

// MakeCodeTransferReg creates a single data transfer with a shifted
// register offset.
func MakeCodeTransferReg(load bool, rd, rn, rm int, shift uint8) Code {
	return makeTransfer(load, rd, rn) | Code(1<<25) | Code(uint32(shift&0x1f)<<7) | Code(rm&0xf)
}

func makeTransfer(load bool, rd, rn int) Code {
	word := uint32(COND_AL)<<28 | 0b01<<26 | SDT_MODE_SUPPORTED | uint32(rn&0xf)<<16 | uint32(rd&0xf)<<12
	if load {
		word |= 1 << 20
	}
	return Code(word)
}

// String returns the assembly language representation of this instruction.
func (code Code) String() string {
	switch code.Class() {
	case OP_BX:
		return fmt.Sprintf("bx %v", RegisterName(code.BranchExchangeDecode()))
	case OP_B:
		cond, link, offset := code.BranchDecode()
		mnemonic := "b"
		if link {
			mnemonic = "bl"
		}
		return fmt.Sprintf("%v%v .%+d", mnemonic, cond.Suffix(), int32(offset))
	case OP_DP:
		op, immediate, rn, rd, rm, imm := code.DataDecode()
		oper2 := RegisterName(rm)
		if immediate {
			oper2 = fmt.Sprintf("#%d", imm)
		}
		mnemonic := op.String()
		switch {
		case op == DATA_OP_MOV:
			return fmt.Sprintf("mov %v, %v", RegisterName(rd), oper2)
		case op == DATA_OP_CMP:
			return fmt.Sprintf("cmp %v, %v", RegisterName(rn), oper2)
		case !op.Defined():
			mnemonic = fmt.Sprintf("dp%x", int(op))
		}
		return fmt.Sprintf("%v %v, %v, %v", mnemonic, RegisterName(rd), RegisterName(rn), oper2)
	case OP_SDT:
		load, register, rn, rd, rm, shift, imm, _ := code.TransferDecode()
		mnemonic := "str"
		if load {
			mnemonic = "ldr"
		}
		var addr string
		switch {
		case register && shift != 0:
			addr = fmt.Sprintf("[%v, %v, lsl #%d]", RegisterName(rn), RegisterName(rm), shift)
		case register:
			addr = fmt.Sprintf("[%v, %v]", RegisterName(rn), RegisterName(rm))
		case imm != 0:
			addr = fmt.Sprintf("[%v, #%d]", RegisterName(rn), imm)
		default:
			addr = fmt.Sprintf("[%v]", RegisterName(rn))
		}
		return fmt.Sprintf("%v %v, %v", mnemonic, RegisterName(rd), addr)
	}

	return fmt.Sprintf(".word 0x%08x", uint32(code))
}
