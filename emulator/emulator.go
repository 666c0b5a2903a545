// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"fmt"
	"io"
	"iter"
	"log"
	"maps"

	"github.com/ezrec/armemu/cpu"
	"github.com/ezrec/armemu/internal"
	"github.com/ezrec/armemu/memory"
)

const (
	CODE_BASE = uint32(0x0001_0000) // Load address of the program text.
	DATA_BASE = uint32(0x0010_0000) // Start of the data RAM.
	DATA_SIZE = 64 * 1024           // Size of the data RAM, in bytes.
)

var _emulator_defines = map[string]string{
	"CODE_BASE": fmt.Sprintf("0x%x", CODE_BASE),
	"DATA_BASE": fmt.Sprintf("0x%x", DATA_BASE),
	"DATA_SIZE": fmt.Sprintf("%v", DATA_SIZE),
}

// Emulator state. CPU + machine state + memory.
type Emulator struct {
	Verbose  bool         // If set, enables verbose logging.
	*cpu.Cpu              // Reference to the CPU simulation.
	State    cpu.State    // Machine state of the current run.
	Program  *cpu.Program // Reference to the currently loaded program listing.

	Rom memory.Rom  // Program text.
	Ram *memory.Ram // Data memory.
	Bus memory.Bus  // Address space seen by the CPU.
}

// NewEmulator creates a new emulator.
func NewEmulator() (emu *Emulator) {
	emu = &Emulator{
		Program: &cpu.Program{Base: CODE_BASE},
		Ram:     memory.NewRam(DATA_BASE, DATA_SIZE),
	}

	emu.Rom.Base = CODE_BASE

	emu.Bus.Map(&emu.Rom)
	emu.Bus.Map(emu.Ram)

	emu.Cpu = cpu.NewCpu(&emu.Bus)

	return
}

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.Concat2(maps.All(_emulator_defines), emu.Cpu.Defines())
}

// Assemble assembles source text as the program, with the emulator
// defines predefined.
func (emu *Emulator) Assemble(input io.Reader) (err error) {
	asm := &cpu.Assembler{
		Verbose: emu.Verbose,
		Base:    CODE_BASE,
	}
	for key, value := range emu.Defines() {
		asm.Predefine(key, value)
	}

	prog, err := asm.Parse(input)
	if err != nil {
		return
	}

	emu.Program = prog
	return
}

// Load sets the program to a raw image of instruction words.
func (emu *Emulator) Load(words []uint32) {
	codes := make([]cpu.Code, len(words))
	for n, word := range words {
		codes[n] = cpu.Code(word)
	}

	emu.Program = &cpu.Program{
		Base:    CODE_BASE,
		Opcodes: []cpu.Opcode{{Addr: CODE_BASE, Codes: codes}},
	}
}

// Reset loads the program, clears memory, and initializes the machine state
// to enter the program with up to four arguments.
func (emu *Emulator) Reset(args ...uint32) (err error) {
	if len(args) > 4 {
		err = ErrArguments
		return
	}

	var arg [4]uint32
	copy(arg[:], args)

	emu.Rom.Base = emu.Program.Base
	emu.Rom.Data = emu.Program.Binary()
	emu.Bus.Reset()

	emu.Cpu.Ticks = 0
	emu.State.Init(emu.Program.Base, arg[0], arg[1], arg[2], arg[3])

	if emu.Verbose {
		log.Printf("emulator: reset, %d words at 0x%08x", len(emu.Rom.Data), emu.Rom.Base)
	}

	return
}

// Ticks returns the total ticks since a reset.
func (emu *Emulator) Ticks() int {
	return emu.Cpu.Ticks
}

// Pc returns the current program counter.
func (emu *Emulator) Pc() uint32 {
	return emu.State.Register[cpu.PC]
}

// Code returns the current instruction code.
func (emu *Emulator) Code() cpu.Code {
	for addr, code := range emu.Program.Codes() {
		if addr == emu.Pc() {
			return code
		}
	}

	return cpu.Code(0)
}

// LineNo returns the current line number for the executing opcode.
func (emu *Emulator) LineNo() int {
	dbg := emu.Program.Debug(emu.Pc())
	if dbg.Opcode == nil {
		return 0
	}

	return dbg.LineNo
}

// Tick performs a single instruction of the emulator.
func (emu *Emulator) Tick() (done bool, err error) {
	emu.Cpu.Verbose = emu.Verbose

	if emu.State.Halted() {
		done = true
		return
	}

	lineno := emu.LineNo()
	pc := emu.Pc()
	defer func() {
		if err != nil {
			err = &ErrRuntime{LineNo: lineno, Addr: pc, Err: err}
		}
	}()

	err = emu.Cpu.Step(&emu.State)
	if err != nil {
		return
	}

	done = emu.State.Halted()
	return
}

// Run ticks the emulator until the program returns, and returns r0.
func (emu *Emulator) Run() (result uint32, err error) {
	for done := false; !done; {
		done, err = emu.Tick()
		if err != nil {
			return
		}
	}

	result = emu.State.Register[0]
	return
}
