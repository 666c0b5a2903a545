package cpu

// Flags is the condition flag word.
type Flags uint32

// Condition flag bits.
const (
	FLAG_V = Flags(1 << 0) // Overflow.
	FLAG_C = Flags(1 << 1) // Carry (borrow, for compare).
	FLAG_N = Flags(1 << 2) // Negative.
	FLAG_Z = Flags(1 << 3) // Zero.
)

// CodeCond is a branch condition code.
type CodeCond int

//go:generate go tool stringer -linecomment -type=CodeCond
const (
	COND_EQ = CodeCond(0x0) // eq
	COND_NE = CodeCond(0x1) // ne
	COND_GE = CodeCond(0xa) // ge
	COND_LT = CodeCond(0xb) // lt
	COND_GT = CodeCond(0xc) // gt
	COND_LE = CodeCond(0xd) // le
	COND_AL = CodeCond(0xe) // al
)

// Defined returns true if the condition code has an evaluation rule.
func (cond CodeCond) Defined() bool {
	switch cond {
	case COND_EQ, COND_NE, COND_GE, COND_LT, COND_GT, COND_LE, COND_AL:
		return true
	}
	return false
}

// Suffix returns the mnemonic suffix of the condition; empty for always.
func (cond CodeCond) Suffix() string {
	if cond == COND_AL {
		return ""
	}
	return cond.String()
}

// Compare computes the flags of op1 - op2.
func Compare(op1, op2 uint32) (flags Flags) {
	result := op1 - op2

	neg1 := int32(op1) < 0
	neg2 := int32(op2) < 0
	negr := int32(result) < 0

	if result == 0 {
		flags |= FLAG_Z
	}
	if negr {
		flags |= FLAG_N
	}
	if op2 > op1 {
		flags |= FLAG_C
	}
	if neg1 != neg2 && neg2 == negr {
		flags |= FLAG_V
	}

	return
}

func (fl Flags) Z() bool { return fl&FLAG_Z != 0 }
func (fl Flags) N() bool { return fl&FLAG_N != 0 }
func (fl Flags) C() bool { return fl&FLAG_C != 0 }
func (fl Flags) V() bool { return fl&FLAG_V != 0 }

// Passed evaluates a condition against the flags.
// Undefined condition codes are never taken.
func (fl Flags) Passed(cond CodeCond) (taken bool, defined bool) {
	defined = true

	switch cond {
	case COND_EQ:
		taken = fl.Z()
	case COND_NE:
		taken = !fl.Z()
	case COND_GE:
		taken = fl.N() == fl.V()
	case COND_LT:
		taken = fl.N() != fl.V()
	case COND_GT:
		taken = !fl.Z() && fl.N() == fl.V()
	case COND_LE:
		taken = fl.Z() || fl.N() != fl.V()
	case COND_AL:
		taken = true
	default:
		defined = false
	}

	return
}

// String returns the flags as "ZNCV", with '-' for clear bits.
func (fl Flags) String() string {
	out := []byte("----")
	for n, bit := range []Flags{FLAG_Z, FLAG_N, FLAG_C, FLAG_V} {
		if fl&bit != 0 {
			out[n] = "ZNCV"[n]
		}
	}
	return string(out)
}
