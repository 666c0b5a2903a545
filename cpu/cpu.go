// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"maps"
)

// Memory is the word addressable memory the CPU fetches from, loads from,
// and stores to. Implementations reject addresses they do not map.
type Memory interface {
	ReadWord(addr uint32) (value uint32, err error)
	WriteWord(addr uint32, value uint32) (err error)
}

var _cpu_defines = map[string]string{
	"STACK_SIZE": fmt.Sprintf("%v", STACK_SIZE),
	"STACK_BASE": fmt.Sprintf("0x%x", STACK_BASE),
	"STACK_TOP":  fmt.Sprintf("0x%x", STACK_TOP),
}

// Cpu is the execution engine. It holds no machine state of its own; each
// run operates on a caller owned State.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Memory Memory // Memory outside of the stack window.

	Ticks int // Instructions executed.
}

// NewCpu creates a new CPU attached to a memory.
func NewCpu(memory Memory) (cpu *Cpu) {
	cpu = &Cpu{
		Memory: memory,
	}

	return
}

// Defines for the cpu
func (cpu *Cpu) Defines() iter.Seq2[string, string] {
	return maps.All(_cpu_defines)
}

// ReadWord reads a word, from the state's stack when the address is inside
// the stack window, otherwise from memory.
func (cpu *Cpu) ReadWord(st *State, addr uint32) (value uint32, err error) {
	index, ok, err := stackIndex(addr)
	if err != nil {
		err = errors.Join(ErrMemoryAccess, err)
		return
	}
	if ok {
		value = st.Stack[index]
		return
	}

	if cpu.Memory == nil {
		err = errors.Join(ErrMemoryAccess, ErrMemoryMissing)
		return
	}

	value, err = cpu.Memory.ReadWord(addr)
	if err != nil {
		err = errors.Join(ErrMemoryAccess, err)
	}
	return
}

// WriteWord writes a word, to the state's stack when the address is inside
// the stack window, otherwise to memory.
func (cpu *Cpu) WriteWord(st *State, addr uint32, value uint32) (err error) {
	index, ok, err := stackIndex(addr)
	if err != nil {
		err = errors.Join(ErrMemoryAccess, err)
		return
	}
	if ok {
		st.Stack[index] = value
		return
	}

	if cpu.Memory == nil {
		err = errors.Join(ErrMemoryAccess, ErrMemoryMissing)
		return
	}

	err = cpu.Memory.WriteWord(addr, value)
	if err != nil {
		err = errors.Join(ErrMemoryAccess, err)
	}
	return
}

// FetchCode fetches the instruction at the program counter.
func (cpu *Cpu) FetchCode(st *State) (code Code, err error) {
	word, err := cpu.ReadWord(st, st.Register[PC])
	if err != nil {
		err = errors.Join(ErrOpcodeFetch, err)
		return
	}

	code = Code(word)
	return
}

// Run executes instructions until the program counter reaches the halt
// address, and returns r0. Execution stops at the first error.
func (cpu *Cpu) Run(st *State) (result uint32, err error) {
	for !st.Halted() {
		err = cpu.Step(st)
		if err != nil {
			return
		}
	}

	if cpu.Verbose {
		log.Printf("cpu: halt r0=0x%08x after %d ticks", st.Register[0], cpu.Ticks)
	}

	result = st.Register[0]
	return
}

// Step executes a single fetch, decode, and execute cycle.
func (cpu *Cpu) Step(st *State) (err error) {
	code, err := cpu.FetchCode(st)
	if err != nil {
		return
	}

	err = cpu.Execute(st, code)
	if err != nil {
		return
	}

	cpu.Ticks += 1
	return
}

// Execute executes a single instruction word against the state.
func (cpu *Cpu) Execute(st *State, code Code) (err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrOpcode(code), err)
		}
	}()
	if cpu.Verbose {
		log.Printf("%08x: %v", st.Register[PC], code)
	}

	switch code.Class() {
	case OP_BX:
		cpu.branchExchange(st, code)
	case OP_B:
		cpu.branch(st, code)
	case OP_DP:
		cpu.dataProcessing(st, code)
	case OP_SDT:
		err = cpu.singleDataTransfer(st, code)
	case OP_UNKNOWN:
		err = errors.Join(ErrOpcodeDecode, ErrInstructionInvalid)
	default:
		panic("unknown code class")
	}

	return
}

// branchExchange jumps to the address held in a register.
func (cpu *Cpu) branchExchange(st *State, code Code) {
	rn := code.BranchExchangeDecode()
	st.Register[PC] = st.Register[rn]
}

// branch performs a conditional branch, optionally saving the return
// address. The link register is written whether or not the branch is taken.
func (cpu *Cpu) branch(st *State, code Code) {
	cond, link, offset := code.BranchDecode()

	if link {
		st.Register[LR] = st.Register[PC] + 4
	}

	taken, defined := st.Flags.Passed(cond)
	if !defined && cpu.Verbose {
		log.Printf("%08x: condition 0x%x undefined, not taken", st.Register[PC], int(cond))
	}

	if taken {
		st.Register[PC] += offset
	} else {
		st.Register[PC] += 4
	}
}

// dataProcessing performs ADD, SUB, CMP, or MOV. Any other operation
// leaves registers and flags alone.
func (cpu *Cpu) dataProcessing(st *State, code Code) {
	op, immediate, rn, rd, rm, imm := code.DataDecode()

	oper2 := st.Register[rm]
	if immediate {
		oper2 = imm
	}
	oper1 := st.Register[rn]

	switch op {
	case DATA_OP_ADD:
		st.Register[rd] = oper1 + oper2
	case DATA_OP_SUB:
		st.Register[rd] = oper1 - oper2
	case DATA_OP_CMP:
		st.Flags = Compare(oper1, oper2)
	case DATA_OP_MOV:
		st.Register[rd] = oper2
	default:
		if cpu.Verbose {
			log.Printf("%08x: data opcode 0x%x unsupported, ignored", st.Register[PC], int(op))
		}
	}

	// CMP has no destination.
	if rd != PC || op == DATA_OP_CMP {
		st.Register[PC] += 4
	}
}

// singleDataTransfer loads or stores one word at base plus offset.
func (cpu *Cpu) singleDataTransfer(st *State, code Code) (err error) {
	load, register, rn, rd, rm, shift, imm, mode := code.TransferDecode()

	if mode != SDT_MODE_SUPPORTED {
		err = errors.Join(ErrOpcodeTransfer, ErrTransferUnsupported)
		return
	}

	offset := imm
	if register {
		offset = st.Register[rm] << shift
	}
	addr := st.Register[rn] + offset

	if load {
		var value uint32
		value, err = cpu.ReadWord(st, addr)
		if err != nil {
			err = errors.Join(ErrOpcodeTransfer, err)
			return
		}
		st.Register[rd] = value
	} else {
		err = cpu.WriteWord(st, addr, st.Register[rd])
		if err != nil {
			err = errors.Join(ErrOpcodeTransfer, err)
			return
		}
	}

	// Only a load has a destination.
	if rd != PC || !load {
		st.Register[PC] += 4
	}

	return
}
