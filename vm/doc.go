// Package vm executes Corvid bytecode on a register machine.
//
// This package contains:
//   - the tagged Value representation with copy-on-write collections
//   - the load-time validator that turns a bytecode.Module into a Program
//   - the dispatch loop, call frames and upvalues
//   - algebraic effects with one-shot continuations
//   - cooperative futures with eager or FIFO scheduling
//   - the capability boundary (tool calls, schema checks) and tracing
//   - the intrinsic table
//
// A Program is immutable and may be shared by many machines. A Machine is
// not safe for concurrent use.
package vm
