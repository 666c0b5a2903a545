// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Macro represents a macro definition in the assembly language.
type Macro struct {
	LineNo int      // Line number of the macro definition.
	Args   []string // Arguments for the macro.
	Lines  []string // Lines of macro text to expand.
}

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO":     "0",
	"STACK_SIZE": fmt.Sprintf("%v", STACK_SIZE),
	"STACK_BASE": fmt.Sprintf("%#x", STACK_BASE),
	"STACK_TOP":  fmt.Sprintf("%#x", STACK_TOP),
}

// Assembler is a single pass macro assembler for the instruction subset.
type Assembler struct {
	Verbose bool     // If set, verbosely logs the assembler actions.
	Base    uint32   // Load address of the first instruction.
	Opcode  []Opcode // List of generated opcodes.

	predefine  map[string]string   // Predefines
	expansions int                 // Count of macro expansions.
	Label      map[string]uint32   // Map of labels to addresses.
	Equate     map[string]string   // Map of equates.
	Macro      map[string](*Macro) // Map of macros.
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// regMap is a map of register names to register indexes.
var regMap = map[string]int{
	"r0": 0, "r1": 1, "r2": 2, "r3": 3,
	"r4": 4, "r5": 5, "r6": 6, "r7": 7,
	"r8": 8, "r9": 9, "r10": 10, "r11": 11,
	"r12": 12, "r13": SP, "r14": LR, "r15": PC,
	"fp": 11, "ip": 12, "sp": SP, "lr": LR, "pc": PC,
}

// dataMap maps data processing mnemonics.
var dataMap = map[string]CodeDataOp{
	"add": DATA_OP_ADD,
	"sub": DATA_OP_SUB,
	"cmp": DATA_OP_CMP,
	"mov": DATA_OP_MOV,
}

// condMap maps branch mnemonic suffixes to condition codes.
var condMap = map[string]CodeCond{
	"":   COND_AL,
	"al": COND_AL,
	"eq": COND_EQ,
	"ne": COND_NE,
	"ge": COND_GE,
	"lt": COND_LT,
	"gt": COND_GT,
	"le": COND_LE,
}

// valueOf returns the value of a simple word.
func (asm *Assembler) valueOf(word string) (value uint32, err error) {
	invert := false
	if strings.HasPrefix(word, "~") {
		invert = true
		word = word[1:]
	}
	v64, err := strconv.ParseInt(word, 0, 34)
	if err != nil || v64 > 0xffffffff || v64 < -int64(0x80000000) {
		err = ErrParseNumber(word)
		return
	}

	value = uint32(v64)
	if invert {
		value = ^value
	}

	return
}

// register returns the register index of a word.
func (asm *Assembler) register(word string) (reg int, err error) {
	reg, ok := regMap[strings.ToLower(word)]
	if !ok {
		err = ErrRegisterInvalid
	}
	return
}

// immediate returns the value of a '#' prefixed word, limited to max.
func (asm *Assembler) immediate(word string, max uint32) (value uint32, err error) {
	if !strings.HasPrefix(word, "#") {
		err = ErrOpcodeValueMissing
		return
	}
	value, err = asm.valueOf(word[1:])
	if err != nil {
		return
	}
	if value > max {
		err = ErrImmediateRange
		return
	}
	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value uint32, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range asm.Equate {
		var value32 uint32
		value32, err = asm.valueOf(str)
		if err != nil {
			// Registers and labels are not integers.
			err = nil
			continue
		}
		pred[key] = starlark.MakeUint(uint(value32))
	}
	for key, addr := range asm.Label {
		if _, ok := pred[key]; !ok {
			pred[key] = starlark.MakeUint(uint(addr))
		}
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_int, ok := dict["rc"].(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value = uint32(st_int64)
	return
}

// splitWords splits a line at spaces and commas, keeping address brackets
// as separate words.
func splitWords(line string) []string {
	line = strings.NewReplacer(",", " ", "[", " [ ", "]", " ] ").Replace(line)
	return strings.Fields(line)
}

// parseLine parses a single line into opcode words.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	// Do $() evaluations
	re := regexp.MustCompile(`\$\([^\$]*\)`)
	line = re.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := asm.parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return fmt.Sprintf("%#x", value)
	})
	if err != nil {
		return
	}

	words = splitWords(line)
	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if words[0] == ".equ" {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[words[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[1]] = words[2]
		words = nil
		return
	}

	for n, word := range words {
		prefix := ""
		if strings.HasPrefix(word, "#") {
			prefix = "#"
			word = word[1:]
		}
		equate, ok := asm.Equate[word]
		if ok {
			words[n] = prefix + equate
		}
	}

	for strings.HasSuffix(words[0], ":") {
		label := strings.TrimSuffix(words[0], ":")
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}
		asm.Label[label] = asm.currentAddr()
		words = words[1:]
		if len(words) == 0 {
			return
		}
	}

	// .macro processing
	macro, ok := asm.Macro[words[0]]
	if ok {
		name := words[0]

		args := words[1:]
		if len(args) != len(macro.Args) {
			err = ErrMacroSyntax
			return
		}
		// Macro arguments are scoped equates.
		old_equate := maps.Clone(asm.Equate)
		for n, arg := range macro.Args {
			asm.Equate[arg] = args[n]
		}
		defer func() { asm.Equate = old_equate }()

		// '@' makes labels unique per expansion.
		asm.expansions++
		unique := fmt.Sprintf("%v_%v_", name, asm.expansions)

		for n, line := range macro.Lines {
			lineno := macro.LineNo + n

			line = strings.ReplaceAll(line, "@", unique)
			words, err = asm.parseLine(line, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}

			err = asm.parseWords(words, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}
		}

		words = nil
		return
	}

	return
}

// currentAddr gets the address of the next instruction.
func (asm *Assembler) currentAddr() uint32 {
	if len(asm.Opcode) == 0 {
		return asm.Base
	}

	last := asm.Opcode[len(asm.Opcode)-1]

	return last.Addr + 4*uint32(len(last.Codes))
}

// Parse parses an input stream into a Program.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {
	scanner := bufio.NewScanner(input)

	var line string
	var lineno int
	var macro *Macro

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	asm.Label = make(map[string]uint32)
	asm.expansions = 0
	asm.Opcode = asm.Opcode[:0]
	asm.Macro = make(map[string](*Macro))
	asm.Equate = maps.Clone(sysEquate)
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		line, _, _ = strings.Cut(text, ";")
		line = strings.TrimSpace(line)
		words := splitWords(line)

		// .macro NAME arg...
		if len(words) > 0 && words[0] == ".macro" {
			if macro != nil {
				err = ErrMacroNesting
				return
			}
			if len(words) < 2 {
				err = ErrMacroSyntax
				return
			}
			_, ok := asm.Macro[words[1]]
			if ok {
				err = ErrMacroDuplicate
				return
			}
			macro = &Macro{
				LineNo: lineno + 1,
				Args:   words[2:],
			}
			asm.Macro[words[1]] = macro
			continue
		}

		if len(words) > 0 && words[0] == ".endm" {
			if macro == nil {
				err = ErrMacroLonelyEndm
				return
			}
			macro = nil
			continue
		}

		if macro != nil {
			macro.Lines = append(macro.Lines, line)
			continue
		}

		words, err = asm.parseLine(line, lineno)
		if err != nil {
			return
		}

		err = asm.parseWords(words, lineno)
		if err != nil {
			return
		}
	}

	if macro != nil {
		err = ErrMacroLonely
		return
	}

	// Final linking of labels.
	for n := range asm.Opcode {
		op := &asm.Opcode[n]

		if op.LinkKind == LINK_NONE {
			continue
		}
		lineno = op.LineNo
		line = strings.Join(op.Words, " ")
		err = asm.link(op)
		if err != nil {
			return
		}
	}

	prog = &Program{
		Base:    asm.Base,
		Opcodes: slices.Clone(asm.Opcode),
	}

	return
}

// link resolves the label reference of an opcode.
func (asm *Assembler) link(op *Opcode) (err error) {
	target, ok := asm.Label[op.LinkLabel]
	if !ok {
		err = ErrLabelMissing(op.LinkLabel)
		return
	}

	linked := &op.Codes[len(op.Codes)-1]
	here := op.Addr + 4*uint32(len(op.Codes)-1)

	switch op.LinkKind {
	case LINK_BRANCH:
		offset := int64(target) - int64(here)
		if offset < -(1<<25)+8 || offset >= (1<<25)+8 {
			err = ErrBranchRange
			return
		}
		cond, link, _ := linked.BranchDecode()
		*linked = MakeCodeBranch(cond, link, int32(offset))
	case LINK_ABSOLUTE:
		*linked = Code(target)
	case LINK_PCREL:
		offset := int64(target) - int64(here)
		if offset < 0 || offset > 0xff {
			err = ErrImmediateRange
			return
		}
		load, _, _, rd, _, _, _, _ := linked.TransferDecode()
		*linked = MakeCodeTransfer(load, rd, PC, uint8(offset))
	}

	return
}

// parseBranch splits a branch mnemonic into its link flag and condition.
func parseBranch(mnemonic string) (link bool, cond CodeCond, ok bool) {
	if !strings.HasPrefix(mnemonic, "b") {
		return
	}
	cond, ok = condMap[mnemonic[1:]]
	if ok {
		return
	}
	if strings.HasPrefix(mnemonic, "bl") {
		link = true
		cond, ok = condMap[mnemonic[2:]]
	}
	return
}

// parseAddress parses the '[' rn, offset ']' words of a data transfer.
func (asm *Assembler) parseAddress(load bool, rd int, words []string) (code Code, err error) {
	if len(words) < 3 || words[0] != "[" || words[len(words)-1] != "]" {
		err = ErrAddressSyntax
		return
	}
	words = words[1 : len(words)-1]

	rn, err := asm.register(words[0])
	if err != nil {
		return
	}
	words = words[1:]

	switch {
	case len(words) == 0:
		code = MakeCodeTransfer(load, rd, rn, 0)
	case len(words) == 1 && strings.HasPrefix(words[0], "#"):
		var imm uint32
		imm, err = asm.immediate(words[0], 0xff)
		if err != nil {
			return
		}
		code = MakeCodeTransfer(load, rd, rn, uint8(imm))
	case len(words) == 1:
		var rm int
		rm, err = asm.register(words[0])
		if err != nil {
			return
		}
		code = MakeCodeTransferReg(load, rd, rn, rm, 0)
	case len(words) == 3 && strings.ToLower(words[1]) == "lsl":
		var rm int
		rm, err = asm.register(words[0])
		if err != nil {
			return
		}
		var shift uint32
		shift, err = asm.immediate(words[2], 31)
		if err != nil {
			err = ErrShiftRange
			return
		}
		code = MakeCodeTransferReg(load, rd, rn, rm, uint8(shift))
	default:
		err = ErrAddressSyntax
	}

	return
}

// operand2 parses a register or '#' immediate second operand.
func (asm *Assembler) operand2(op CodeDataOp, rd, rn int, word string) (code Code, err error) {
	if strings.HasPrefix(word, "#") {
		var imm uint32
		imm, err = asm.immediate(word, 0xff)
		if err != nil {
			return
		}
		code = MakeCodeDataImm(op, rd, rn, uint8(imm))
		return
	}

	rm, err := asm.register(word)
	if err != nil {
		return
	}
	code = MakeCodeData(op, rd, rn, rm)
	return
}

// parseWords evaluates the words in a line of assembly text.
func (asm *Assembler) parseWords(words []string, lineno int) (err error) {
	var codes []Code
	var label string
	var kind LinkKind

	// no-op
	if len(words) == 0 {
		return
	}

	initial_words := words

	defer func() {
		if len(codes) == 0 {
			return
		}
		opcode := Opcode{
			LineNo:    lineno,
			Addr:      asm.currentAddr(),
			Words:     initial_words,
			Codes:     codes,
			LinkLabel: label,
			LinkKind:  kind,
		}
		asm.Opcode = append(asm.Opcode, opcode)
	}()

	mnemonic := strings.ToLower(words[0])
	args := words[1:]

	if op, ok := dataMap[mnemonic]; ok {
		var code Code
		switch {
		case op == DATA_OP_MOV && len(args) == 2:
			// mov rd, op2
			var rd int
			rd, err = asm.register(args[0])
			if err != nil {
				return
			}
			code, err = asm.operand2(op, rd, 0, args[1])
		case op == DATA_OP_CMP && len(args) == 2:
			// cmp rn, op2
			var rn int
			rn, err = asm.register(args[0])
			if err != nil {
				return
			}
			code, err = asm.operand2(op, 0, rn, args[1])
		case (op == DATA_OP_ADD || op == DATA_OP_SUB) && (len(args) == 2 || len(args) == 3):
			// add rd, [rn,] op2
			var rd, rn int
			rd, err = asm.register(args[0])
			if err != nil {
				return
			}
			rn = rd
			if len(args) == 3 {
				rn, err = asm.register(args[1])
				if err != nil {
					return
				}
			}
			code, err = asm.operand2(op, rd, rn, args[len(args)-1])
		case len(args) < 2:
			err = ErrOpcodeValueMissing
		default:
			err = ErrOpcodeExtraArgs
		}
		if err != nil {
			return
		}
		codes = append(codes, code)
		return
	}

	switch mnemonic {
	case ".word":
		if len(args) == 0 {
			err = ErrOpcodeValueMissing
			return
		}
		for _, arg := range args {
			value, _err := asm.valueOf(arg)
			if _err != nil {
				// A single label is linked to its address.
				if len(args) != 1 {
					err = _err
					return
				}
				label = arg
				kind = LINK_ABSOLUTE
			}
			codes = append(codes, Code(value))
		}
	case "bx":
		if len(args) != 1 {
			err = ErrOpcodeValueMissing
			return
		}
		var rn int
		rn, err = asm.register(args[0])
		if err != nil {
			return
		}
		codes = append(codes, MakeCodeBx(rn))
	case "ldr", "str":
		load := mnemonic == "ldr"
		if len(args) < 2 {
			err = ErrOpcodeValueMissing
			return
		}
		var rd int
		rd, err = asm.register(args[0])
		if err != nil {
			return
		}
		if load && len(args) == 2 && args[1] != "[" {
			// ldr rd, label
			label = args[1]
			kind = LINK_PCREL
			codes = append(codes, MakeCodeTransfer(load, rd, PC, 0))
			return
		}
		var code Code
		code, err = asm.parseAddress(load, rd, args[1:])
		if err != nil {
			return
		}
		codes = append(codes, code)
	default:
		link, cond, ok := parseBranch(mnemonic)
		if !ok {
			err = ErrInstructionInvalid
			return
		}
		if len(args) < 1 {
			err = ErrOpcodeMissing
			return
		}
		if len(args) > 1 {
			err = ErrOpcodeExtraArgs
			return
		}
		label = args[0]
		kind = LINK_BRANCH
		codes = append(codes, MakeCodeBranch(cond, link, 8))
	}

	return
}
