// Package asmtext reads and writes the CMM instruction file format: one
// instruction per line, each line either a bare mnemonic or a mnemonic
// followed by a single space and a decimal integer operand.
//
// Every CALL/JMP/JZ operand has already been resolved to a final integer by
// codegen before it reaches this package - unlike an assembler that resolves
// labels, this is a flat line scanner with no symbolic references to
// resolve.
package asmtext

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/cmm-lang/cmm/isa"
)

// Write serializes code as one line per instruction.
func Write(w io.Writer, code []isa.Instruction) error {
	bw := bufio.NewWriter(w)
	for _, instr := range code {
		var err error
		if instr.Op.HasOperand() {
			_, err = bw.WriteString(instr.Op.String() + " " + strconv.Itoa(instr.Operand) + "\n")
		} else {
			_, err = bw.WriteString(instr.Op.String() + "\n")
		}
		if err != nil {
			return errors.Wrap(err, "asmtext: write")
		}
	}
	return errors.Wrap(bw.Flush(), "asmtext: flush")
}

// Read parses an instruction file previously produced by Write.
func Read(r io.Reader) ([]isa.Instruction, error) {
	var code []isa.Instruction
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		op, ok := isa.Lookup(fields[0])
		if !ok {
			return nil, errors.Errorf("asmtext: line %d: unknown mnemonic %q", lineNo, fields[0])
		}

		var operand int
		switch {
		case op.HasOperand() && len(fields) == 2:
			v, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, errors.Wrapf(err, "asmtext: line %d: invalid operand %q", lineNo, fields[1])
			}
			operand = v
		case op.HasOperand():
			return nil, errors.Errorf("asmtext: line %d: %s requires an operand", lineNo, fields[0])
		case len(fields) != 1:
			return nil, errors.Errorf("asmtext: line %d: %s takes no operand", lineNo, fields[0])
		}

		code = append(code, isa.Instruction{Op: op, Operand: operand})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "asmtext: scan")
	}
	return code, nil
}
