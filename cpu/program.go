package cpu

import (
	"iter"
)

// LinkKind selects how a label reference is resolved into an instruction.
type LinkKind int

const (
	LINK_NONE     = LinkKind(0) // No label.
	LINK_BRANCH   = LinkKind(1) // Branch offset, relative to the branch.
	LINK_ABSOLUTE = LinkKind(2) // Absolute address, as a data word.
	LINK_PCREL    = LinkKind(3) // Immediate offset from pc, for ldr.
)

// Opcode is a line of assembled code with its source location and
// generated instruction words.
type Opcode struct {
	LineNo    int
	Addr      uint32
	Words     []string
	Codes     []Code
	LinkLabel string
	LinkKind  LinkKind
}

// Program is an assembled program, to be loaded at Base.
type Program struct {
	Base    uint32
	Opcodes []Opcode
}

type Debug struct {
	*Opcode
	Index int
}

// Debug returns the opcode that generated the word at addr.
func (prog *Program) Debug(addr uint32) (dbg Debug) {
	for n, op := range prog.Opcodes {
		if addr >= op.Addr && addr < op.Addr+4*uint32(len(op.Codes)) {
			dbg = Debug{
				Opcode: &prog.Opcodes[n],
				Index:  int(addr-op.Addr) / 4,
			}
			break
		}
	}

	return
}

// Binary returns the program image, as words starting at Base.
func (prog *Program) Binary() (bins []uint32) {
	for addr, code := range prog.Codes() {
		index := int(addr-prog.Base) / 4
		for len(bins) <= index {
			bins = append(bins, 0)
		}
		bins[index] = uint32(code)
	}

	return
}

// Codes iterates over the instruction words and their addresses.
func (prog *Program) Codes() iter.Seq2[uint32, Code] {
	return func(yield func(addr uint32, code Code) bool) {
		for _, op := range prog.Opcodes {
			for n, code := range op.Codes {
				if !yield(op.Addr+4*uint32(n), code) {
					return
				}
			}
		}
	}
}
