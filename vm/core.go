package vm

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/cmm-lang/cmm/isa"
)

// Run executes code from the current IP until IP reaches len(code).
//
// Division by zero, stack underflow and out-of-bounds addressing are
// undefined behavior per the instruction set; this implementation traps
// them as a recovered Go panic rather than corrupting VM state or crashing
// the host process.
func (i *Instance) Run() (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.Wrapf(fmt.Errorf("%v", e), "recovered error @ip=%d/%d, stack depth %d", i.IP, len(i.code), len(i.SS))
		}
	}()

	for i.IP < len(i.code) {
		instr := i.code[i.IP]
		switch instr.Op {
		case isa.LDC:
			i.AX = int32(instr.Operand)
		case isa.LD:
			i.AX = i.SS[i.BP-int(i.AX)]
		case isa.ALD:
			i.AX = i.SS[i.AX]
		case isa.ST:
			i.SS[i.BP-int(i.AX)] = i.top()
		case isa.AST:
			i.SS[i.AX] = i.top()
		case isa.PUSH:
			i.SS = append(i.SS, i.AX)
		case isa.POP:
			i.SS = i.SS[:len(i.SS)-1]
		case isa.JMP:
			i.IP += instr.Operand - 1
		case isa.JZ:
			if i.AX == 0 {
				i.IP += instr.Operand - 1
			}
		case isa.ADD:
			i.AX = i.top() + i.AX
		case isa.SUB:
			i.AX = i.top() - i.AX
		case isa.MUL:
			i.AX = i.top() * i.AX
		case isa.DIV:
			i.AX = i.top() / i.AX
		case isa.LT:
			i.AX = boolCell(i.top() < i.AX)
		case isa.LE:
			i.AX = boolCell(i.top() <= i.AX)
		case isa.GT:
			i.AX = boolCell(i.top() > i.AX)
		case isa.GE:
			i.AX = boolCell(i.top() >= i.AX)
		case isa.EQ:
			i.AX = boolCell(i.top() == i.AX)
		case isa.NE:
			i.AX = boolCell(i.top() != i.AX)
		case isa.IN:
			var v int32
			if _, err := fmt.Fscan(i.in, &v); err != nil {
				return errors.Wrap(err, "IN")
			}
			i.AX = v
		case isa.OUT:
			if _, err := fmt.Fprintf(i.out, "%d\n", i.AX); err != nil {
				return errors.Wrap(err, "OUT")
			}
		case isa.ADDR:
			i.AX = int32(len(i.SS) - instr.Operand)
		case isa.CALL:
			i.SS = append(i.SS, int32(i.BP))
			i.BP = len(i.SS) - 2
			i.SS = append(i.SS, int32(i.IP))
			i.IP += instr.Operand - 1
		case isa.RET:
			ip, bp := i.top(), i.SS[len(i.SS)-2]
			i.SS = i.SS[:len(i.SS)-2]
			i.IP, i.BP = int(ip), int(bp)
		}
		i.IP++
		i.insCount++
	}
	return nil
}

// top returns the value at the top of SS without removing it.
func (i *Instance) top() int32 {
	return i.SS[len(i.SS)-1]
}

func boolCell(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
