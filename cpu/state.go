package cpu

import (
	"fmt"
)

// Register indexes with a dedicated role.
const (
	SP = 13 // Stack pointer.
	LR = 14 // Link register.
	PC = 15 // Program counter.

	REGISTER_COUNT = 16
)

// Stack window, as seen by the executing program.
const (
	STACK_SIZE = 1024                      // Stack depth, in words.
	STACK_BASE = uint32(0x7fff_0000)       // Lowest stack address.
	STACK_TOP  = STACK_BASE + 4*STACK_SIZE // Initial SP, one past the highest slot.
	PC_HALT    = uint32(0)                 // PC value that ends a run.
)

// State is the machine state of a single run: the register file, the
// condition flags, and the stack backing store.
type State struct {
	Register [REGISTER_COUNT]uint32 // Register file.
	Flags    Flags                  // Condition flags.
	Stack    [STACK_SIZE]uint32     // Stack backing store, at STACK_BASE.
}

// Init overwrites the state for a new run entering at entry, with the
// arguments in r0-r3.
func (st *State) Init(entry uint32, a0, a1, a2, a3 uint32) {
	clear(st.Register[:])
	st.Flags = 0
	clear(st.Stack[:])

	st.Register[PC] = entry
	st.Register[LR] = 0
	st.Register[SP] = STACK_TOP

	st.Register[0] = a0
	st.Register[1] = a1
	st.Register[2] = a2
	st.Register[3] = a3
}

// Halted returns true when the program counter holds the halt address.
func (st *State) Halted() bool {
	return st.Register[PC] == PC_HALT
}

// stackIndex maps an address inside the stack window to a stack slot.
func stackIndex(addr uint32) (index int, ok bool, err error) {
	if addr < STACK_BASE || addr >= STACK_TOP {
		return
	}

	ok = true
	if addr&3 != 0 {
		err = ErrMemoryAlign
		return
	}

	index = int((addr - STACK_BASE) / 4)
	return
}

// RegisterName returns the assembler name of a register index.
func RegisterName(reg int) string {
	switch reg {
	case SP:
		return "sp"
	case LR:
		return "lr"
	case PC:
		return "pc"
	}
	return fmt.Sprintf("r%d", reg)
}

// String returns the machine state as a string.
func (st *State) String() (text string) {
	for n, val := range st.Register {
		text += fmt.Sprintf("% 5s: %04X_%04X\n", RegisterName(n), val>>16, val&0xffff)
	}
	text += fmt.Sprintf("% 5s: %v\n", "flags", st.Flags)

	return
}
