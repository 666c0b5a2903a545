// Package cpu implements the processor core and assembler for a small
// subset of the 32-bit ARM instruction set.
//
// The processor has sixteen 32-bit registers (r0-r15, where r13 is the stack
// pointer, r14 the link register and r15 the program counter), a flag word
// holding the Z, N, C and V condition bits, and a fixed size stack held
// inline in the machine state. Four instruction families are decoded:
// branch-and-exchange, conditional branch (with optional link), data
// processing (ADD, SUB, CMP, MOV) and single data transfer (LDR, STR).
//
// Execution runs until the program counter becomes zero, at which point the
// value of r0 is the result.
//
// The assembler provides a small assembly language for the subset,
// supporting macros, labels, equates, and compile-time expression evaluation.
package cpu
