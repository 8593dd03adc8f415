// Package bytecode defines the frozen Corvid bytecode format.
//
// This package contains:
//   - the 32-bit instruction codec (ABC, ABx, Ax, sAx layouts)
//   - opcode numbering and operand metadata
//   - the Module, Function and constant model
//   - the big-endian binary writer and reader
//   - an assembler with label back-patching, and a disassembler
package bytecode
