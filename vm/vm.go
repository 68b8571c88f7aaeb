package vm

import (
	"bufio"
	"io"
	"os"

	"github.com/cmm-lang/cmm/isa"
)

const defaultStackSize = 1024

// Option configures an Instance at construction time.
type Option func(*Instance) error

// StackSize sets the initial capacity of the runtime stack SS. The stack
// grows past this capacity as needed; it only preallocates.
func StackSize(size int) Option {
	return func(i *Instance) error { i.SS = make([]int32, 0, size); return nil }
}

// Input sets the reader IN consumes decimal integers from. Defaults to
// os.Stdin.
func Input(r io.Reader) Option {
	return func(i *Instance) error { i.in = bufio.NewReader(r); return nil }
}

// Output sets the writer OUT prints decimal integers to. Defaults to
// os.Stdout.
func Output(w io.Writer) Option {
	return func(i *Instance) error { i.out = w; return nil }
}

// Instance is a single CMM virtual machine: a fetch/execute loop over a
// fixed instruction list plus the IP/AX/BP/SS state spec'd for it.
type Instance struct {
	IP int
	AX int32
	BP int
	SS []int32

	code     []isa.Instruction
	in       *bufio.Reader
	out      io.Writer
	insCount int64
}

// New creates a VM ready to execute code. code is never modified.
func New(code []isa.Instruction, opts ...Option) (*Instance, error) {
	i := &Instance{code: code}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	if i.SS == nil {
		i.SS = make([]int32, 0, defaultStackSize)
	}
	if i.in == nil {
		i.in = bufio.NewReader(os.Stdin)
	}
	if i.out == nil {
		i.out = os.Stdout
	}
	return i, nil
}

// InstructionCount returns the number of instructions executed so far.
func (i *Instance) InstructionCount() int64 {
	return i.insCount
}
