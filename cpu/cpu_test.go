package cpu

import (
	"bytes"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ezrec/armemu/memory"
)

const (
	testCodeBase = uint32(0x1000)
	testDataBase = uint32(0x2000)
)

// newTestCpu creates a CPU executing codes from testCodeBase, with a small
// RAM at testDataBase.
func newTestCpu(codes ...Code) (cpu *Cpu, st *State, ram *memory.Ram) {
	rom := &memory.Rom{Base: testCodeBase}
	for _, code := range codes {
		rom.Data = append(rom.Data, uint32(code))
	}
	ram = memory.NewRam(testDataBase, 256)

	bus := &memory.Bus{}
	bus.Map(rom)
	bus.Map(ram)

	cpu = NewCpu(bus)
	st = &State{}
	st.Init(testCodeBase, 0, 0, 0, 0)

	return
}

func TestRun_ReturnArgument(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu(MakeCodeBx(LR))
	st.Init(testCodeBase, 0x1234, 2, 3, 4)

	result, err := cpu.Run(st)
	assert.NoError(err)
	assert.Equal(uint32(0x1234), result)
	assert.Equal(1, cpu.Ticks)
}

func TestRun_AddImmediate(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu(
		MakeCodeDataImm(DATA_OP_MOV, 0, 0, 5),
		MakeCodeDataImm(DATA_OP_ADD, 0, 0, 3),
		MakeCodeBx(LR),
	)

	result, err := cpu.Run(st)
	assert.NoError(err)
	assert.Equal(uint32(8), result)
	assert.Equal(3, cpu.Ticks)
}

func TestRun_CompareBranch(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu(
		MakeCodeDataImm(DATA_OP_MOV, 0, 0, 10), // 0x00
		MakeCodeDataImm(DATA_OP_CMP, 0, 0, 10), // 0x04
		MakeCodeBranch(COND_EQ, false, 8),      // 0x08 -> 0x10
		MakeCodeDataImm(DATA_OP_MOV, 0, 0, 2),  // 0x0c
		MakeCodeDataImm(DATA_OP_MOV, 0, 0, 1),  // 0x10
		MakeCodeBx(LR),                         // 0x14
	)

	result, err := cpu.Run(st)
	assert.NoError(err)
	assert.Equal(uint32(1), result)
}

func TestRun_Loop(t *testing.T) {
	assert := assert.New(t)

	// r0 = sum of 1..r1
	cpu, st, _ := newTestCpu(
		MakeCodeDataImm(DATA_OP_MOV, 0, 0, 0), // 0x00
		MakeCodeDataImm(DATA_OP_CMP, 0, 1, 0), // 0x04 loop:
		MakeCodeBranch(COND_LE, false, 16),    // 0x08 -> done
		MakeCodeData(DATA_OP_ADD, 0, 0, 1),    // 0x0c
		MakeCodeDataImm(DATA_OP_SUB, 1, 1, 1), // 0x10
		MakeCodeBranch(COND_AL, false, -16),   // 0x14 -> loop
		MakeCodeBx(LR),                        // 0x18 done:
	)
	st.Init(testCodeBase, 0, 10, 0, 0)

	result, err := cpu.Run(st)
	assert.NoError(err)
	assert.Equal(uint32(55), result)
}

func TestRun_CallReturn(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu(
		MakeCodeData(DATA_OP_MOV, 4, 0, LR), // 0x00 save lr
		MakeCodeBranch(COND_AL, true, 12),   // 0x04 bl double
		MakeCodeBranch(COND_AL, true, 8),    // 0x08 bl double
		MakeCodeData(DATA_OP_MOV, PC, 0, 4), // 0x0c return to saved lr
		MakeCodeData(DATA_OP_ADD, 0, 0, 0),  // 0x10 double:
		MakeCodeBx(LR),                      // 0x14
	)
	st.Init(testCodeBase, 3, 0, 0, 0)

	result, err := cpu.Run(st)
	assert.NoError(err)
	assert.Equal(uint32(12), result)
	assert.Equal(testCodeBase+0x0c, st.Register[LR])
}

func TestRun_Stack(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu(
		MakeCodeDataImm(DATA_OP_SUB, SP, SP, 8), // push two words
		MakeCodeTransfer(false, 0, SP, 0),       // str r0, [sp]
		MakeCodeTransfer(false, 1, SP, 4),       // str r1, [sp, #4]
		MakeCodeTransfer(true, 2, SP, 4),        // ldr r2, [sp, #4]
		MakeCodeTransfer(true, 3, SP, 0),        // ldr r3, [sp]
		MakeCodeDataImm(DATA_OP_ADD, SP, SP, 8), // pop
		MakeCodeData(DATA_OP_SUB, 0, 2, 3),      // r0 = r2 - r3
		MakeCodeBx(LR),
	)
	st.Init(testCodeBase, 7, 100, 0, 0)

	result, err := cpu.Run(st)
	assert.NoError(err)
	assert.Equal(uint32(93), result)
	assert.Equal(STACK_TOP, st.Register[SP])
	assert.Equal(uint32(7), st.Stack[STACK_SIZE-2])
	assert.Equal(uint32(100), st.Stack[STACK_SIZE-1])
}

func TestRun_InvalidInstruction(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu(
		MakeCodeDataImm(DATA_OP_MOV, 0, 0, 1),
		Code(0xe8bd_0001), // ldm
		MakeCodeDataImm(DATA_OP_MOV, 0, 0, 2),
		MakeCodeBx(LR),
	)

	_, err := cpu.Run(st)
	assert.Error(err)
	assert.True(errors.Is(err, ErrInstructionInvalid))
	assert.True(errors.Is(err, ErrOpcode(0)))
	assert.Equal(testCodeBase+4, st.Register[PC])
	assert.Equal(uint32(1), st.Register[0])
	assert.Equal(1, cpu.Ticks)
}

func TestRun_MemoryFault(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu(
		MakeCodeTransfer(true, 0, 1, 0), // ldr r0, [r1]
		MakeCodeBx(LR),
	)
	st.Init(testCodeBase, 0, 0x9000, 0, 0)

	_, err := cpu.Run(st)
	assert.True(errors.Is(err, ErrMemoryAccess))
	assert.True(errors.Is(err, ErrOpcodeTransfer))
	assert.True(errors.Is(err, memory.ErrUnmapped))
	assert.Equal(testCodeBase, st.Register[PC])
}

func TestRun_FetchFault(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu(
		MakeCodeBx(1),
	)
	st.Init(testCodeBase, 0, 0x9000, 0, 0)

	_, err := cpu.Run(st)
	assert.True(errors.Is(err, ErrOpcodeFetch))
	assert.True(errors.Is(err, memory.ErrUnmapped))
	assert.Equal(uint32(0x9000), st.Register[PC])
}

func TestRun_NoMemory(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(nil)
	st := &State{}
	st.Init(testCodeBase, 0, 0, 0, 0)

	_, err := cpu.Run(st)
	assert.True(errors.Is(err, ErrMemoryMissing))
}

func TestRun_Halted(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(nil)
	st := &State{}
	st.Init(0, 42, 0, 0, 0)

	result, err := cpu.Run(st)
	assert.NoError(err)
	assert.Equal(uint32(42), result)
	assert.Equal(0, cpu.Ticks)
}

func TestExecute_BranchExchange(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu()
	for n := range REGISTER_COUNT - 1 {
		st.Register[n] = uint32(0x100 * n)
	}
	st.Flags = FLAG_Z | FLAG_C

	err := cpu.Execute(st, MakeCodeBx(7))
	assert.NoError(err)
	assert.Equal(uint32(0x700), st.Register[PC])
	assert.Equal(uint32(0xe00), st.Register[LR])
	assert.Equal(FLAG_Z|FLAG_C, st.Flags)
}

func TestExecute_DataPreservesFlags(t *testing.T) {
	assert := assert.New(t)

	codes := []Code{
		MakeCodeDataImm(DATA_OP_ADD, 0, 1, 200),
		MakeCodeData(DATA_OP_SUB, 2, 1, 3),
		MakeCodeDataImm(DATA_OP_MOV, 4, 0, 0),
	}

	for _, code := range codes {
		for fl := range Flags(16) {
			cpu, st, _ := newTestCpu()
			st.Flags = fl
			st.Register[1] = 5
			st.Register[3] = 7

			err := cpu.Execute(st, code)
			assert.NoError(err)
			assert.Equal(fl, st.Flags, code.String())
			assert.Equal(testCodeBase+4, st.Register[PC], code.String())
		}
	}
}

func TestExecute_DataResults(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		code   Code
		rd     int
		result uint32
	}){
		{MakeCodeDataImm(DATA_OP_ADD, 0, 1, 200), 0, 205},
		{MakeCodeData(DATA_OP_ADD, 0, 1, 2), 0, 0x0000_0004},
		{MakeCodeData(DATA_OP_SUB, 2, 1, 3), 2, 0xffff_fffe},
		{MakeCodeDataImm(DATA_OP_SUB, 2, 1, 5), 2, 0},
		{MakeCodeDataImm(DATA_OP_MOV, 4, 1, 0xff), 4, 0xff},
		{MakeCodeData(DATA_OP_MOV, 4, 1, 2), 4, 0xffff_ffff},
	}

	for _, entry := range table {
		cpu, st, _ := newTestCpu()
		st.Register[1] = 5
		st.Register[2] = 0xffff_ffff
		st.Register[3] = 7

		err := cpu.Execute(st, entry.code)
		assert.NoError(err)
		assert.Equal(entry.result, st.Register[entry.rd], entry.code.String())
	}
}

func TestExecute_ComparePreservesRegisters(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu()
	for n := range REGISTER_COUNT - 1 {
		st.Register[n] = uint32(n)
	}
	before := st.Register

	err := cpu.Execute(st, MakeCodeDataImm(DATA_OP_CMP, 0, 3, 5))
	assert.NoError(err)
	assert.Equal(FLAG_N|FLAG_C, st.Flags)

	before[PC] += 4
	assert.Equal(before, st.Register)

	err = cpu.Execute(st, MakeCodeData(DATA_OP_CMP, 0, 5, 5))
	assert.NoError(err)
	assert.Equal(FLAG_Z, st.Flags)
}

func TestExecute_DataToPc(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu()
	st.Register[1] = 0x4000

	err := cpu.Execute(st, MakeCodeData(DATA_OP_MOV, PC, 0, 1))
	assert.NoError(err)
	assert.Equal(uint32(0x4000), st.Register[PC])

	err = cpu.Execute(st, MakeCodeDataImm(DATA_OP_ADD, PC, PC, 0x20))
	assert.NoError(err)
	assert.Equal(uint32(0x4020), st.Register[PC])

	err = cpu.Execute(st, MakeCodeDataImm(DATA_OP_SUB, PC, PC, 0x10))
	assert.NoError(err)
	assert.Equal(uint32(0x4010), st.Register[PC])
}

func TestExecute_DataUnsupported(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu()

	st.Register[0] = 7
	st.Flags = FLAG_C

	// and r0, r0, r0
	err := cpu.Execute(st, Code(0xe000_0000))
	assert.NoError(err)
	assert.Equal(uint32(7), st.Register[0])
	assert.Equal(FLAG_C, st.Flags)
	assert.Equal(testCodeBase+4, st.Register[PC])

	// orr pc, r0, #1
	err = cpu.Execute(st, Code(0xe380_f001))
	assert.NoError(err)
	assert.Equal(testCodeBase+4, st.Register[PC])
}

func TestRun_DataUnsupported(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu(
		Code(0xe380_0001), // orr r0, r0, #1
		MakeCodeBx(LR),
	)
	st.Register[0] = 7

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	cpu.Verbose = true

	result, err := cpu.Run(st)
	assert.NoError(err)
	assert.Equal(uint32(7), result)
	assert.Equal(2, cpu.Ticks)
	assert.Contains(buf.String(), "00001000: data opcode 0xc unsupported, ignored")
}

func TestExecute_BranchAlways(t *testing.T) {
	assert := assert.New(t)

	for fl := range Flags(16) {
		for _, offset := range []int32{-0x100, -4, 0, 8, 0x1000} {
			cpu, st, _ := newTestCpu()
			st.Flags = fl

			err := cpu.Execute(st, MakeCodeBranch(COND_AL, false, offset))
			assert.NoError(err)
			assert.Equal(testCodeBase+uint32(offset), st.Register[PC])
			assert.Equal(uint32(0), st.Register[LR])
		}
	}
}

func TestExecute_BranchEqual(t *testing.T) {
	assert := assert.New(t)

	for fl := range Flags(16) {
		cpu, st, _ := newTestCpu()
		st.Flags = fl

		err := cpu.Execute(st, MakeCodeBranch(COND_EQ, false, 0x40))
		assert.NoError(err)
		if fl.Z() {
			assert.Equal(testCodeBase+0x40, st.Register[PC])
		} else {
			assert.Equal(testCodeBase+4, st.Register[PC])
		}

		st.Register[PC] = testCodeBase
		err = cpu.Execute(st, MakeCodeBranch(COND_NE, false, 0x40))
		assert.NoError(err)
		if fl.Z() {
			assert.Equal(testCodeBase+4, st.Register[PC])
		} else {
			assert.Equal(testCodeBase+0x40, st.Register[PC])
		}
	}
}

func TestExecute_BranchLink(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu()

	err := cpu.Execute(st, MakeCodeBranch(COND_AL, true, 0x80))
	assert.NoError(err)
	assert.Equal(testCodeBase+0x80, st.Register[PC])
	assert.Equal(testCodeBase+4, st.Register[LR])

	// Link is written even when not taken.
	st.Flags = 0
	err = cpu.Execute(st, MakeCodeBranch(COND_EQ, true, 0x80))
	assert.NoError(err)
	assert.Equal(testCodeBase+0x84, st.Register[PC])
	assert.Equal(testCodeBase+0x84, st.Register[LR])
}

func TestExecute_BranchUndefined(t *testing.T) {
	assert := assert.New(t)

	for _, cond := range []CodeCond{0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8, 0x9, 0xf} {
		for fl := range Flags(16) {
			cpu, st, _ := newTestCpu()
			st.Flags = fl

			err := cpu.Execute(st, MakeCodeBranch(cond, false, 0x40))
			assert.NoError(err)
			assert.Equal(testCodeBase+4, st.Register[PC])
		}
	}
}

func TestExecute_Transfer(t *testing.T) {
	assert := assert.New(t)

	cpu, st, ram := newTestCpu()
	st.Register[1] = testDataBase
	st.Register[2] = 0xcafe_f00d
	st.Register[3] = 3

	// str r2, [r1, #8]
	err := cpu.Execute(st, MakeCodeTransfer(false, 2, 1, 8))
	assert.NoError(err)
	value, err := ram.ReadWord(testDataBase + 8)
	assert.NoError(err)
	assert.Equal(uint32(0xcafe_f00d), value)
	assert.Equal(testCodeBase+4, st.Register[PC])

	// ldr r4, [r1, r3, lsl #2] => [r1 + 12]
	ram.WriteWord(testDataBase+12, 0x1234_5678)
	err = cpu.Execute(st, MakeCodeTransferReg(true, 4, 1, 3, 2))
	assert.NoError(err)
	assert.Equal(uint32(0x1234_5678), st.Register[4])
	assert.Equal(testCodeBase+8, st.Register[PC])

	// ldr r5, [r1, r6] => [r1 + 10], unaligned
	st.Register[6] = 10
	err = cpu.Execute(st, MakeCodeTransferReg(true, 5, 1, 6, 0))
	assert.NoError(err)
	assert.Equal(uint32(0x5678_cafe), st.Register[5])
}

func TestExecute_TransferIdempotent(t *testing.T) {
	assert := assert.New(t)

	cpu, st, ram := newTestCpu()
	st.Register[1] = testDataBase
	ram.WriteWord(testDataBase+0x10, 0xdead_beef)

	err := cpu.Execute(st, MakeCodeTransfer(true, 0, 1, 0x10))
	assert.NoError(err)
	err = cpu.Execute(st, MakeCodeTransfer(false, 0, 1, 0x10))
	assert.NoError(err)

	value, err := ram.ReadWord(testDataBase + 0x10)
	assert.NoError(err)
	assert.Equal(uint32(0xdead_beef), value)
}

func TestExecute_TransferToPc(t *testing.T) {
	assert := assert.New(t)

	cpu, st, ram := newTestCpu()
	st.Register[1] = testDataBase
	ram.WriteWord(testDataBase, 0x3000)

	err := cpu.Execute(st, MakeCodeTransfer(true, PC, 1, 0))
	assert.NoError(err)
	assert.Equal(uint32(0x3000), st.Register[PC])

	// Storing pc advances.
	err = cpu.Execute(st, MakeCodeTransfer(false, PC, 1, 4))
	assert.NoError(err)
	assert.Equal(uint32(0x3004), st.Register[PC])
	value, _ := ram.ReadWord(testDataBase + 4)
	assert.Equal(uint32(0x3000), value)
}

func TestExecute_TransferUnsupported(t *testing.T) {
	assert := assert.New(t)

	table := []Code{
		Code(0xe491_0004), // ldr r0, [r1], #4
		Code(0xe511_0004), // ldr r0, [r1, #-4]
		Code(0xe5d1_0004), // ldrb r0, [r1, #4]
		Code(0xe5b1_0004), // ldr r0, [r1, #4]!
	}

	for _, code := range table {
		cpu, st, _ := newTestCpu()
		st.Register[1] = testDataBase

		err := cpu.Execute(st, code)
		assert.True(errors.Is(err, ErrTransferUnsupported), code.String())
		assert.Equal(testCodeBase, st.Register[PC])
		assert.Equal(uint32(0), st.Register[0])
	}
}

func TestExecute_StackAlignment(t *testing.T) {
	assert := assert.New(t)

	cpu, st, _ := newTestCpu()
	st.Register[1] = STACK_TOP - 6

	err := cpu.Execute(st, MakeCodeTransfer(true, 0, 1, 0))
	assert.True(errors.Is(err, ErrMemoryAlign))
}
