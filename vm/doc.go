// Package vm executes the flat instruction list codegen produces.
//
// The machine has four pieces of state: IP (instruction pointer), AX (a
// single accumulator register), BP (a base pointer into the runtime stack)
// and SS (the runtime stack itself, holding globals, locals, parameters and
// call frames). There is no general-purpose register file and no heap -
// every value CMM code manipulates either passes through AX or lives at a
// fixed slot in SS.
//
// IN and OUT are the machine's only I/O: IN reads one whitespace-delimited
// decimal integer from the configured input, OUT writes AX as a decimal
// integer followed by a newline to the configured output.
package vm
