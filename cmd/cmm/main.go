// Command cmm compiles and runs CMM source: -c compiles a source file to an
// instruction file, -r executes a previously compiled instruction file.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/cmm-lang/cmm/asmtext"
	"github.com/cmm-lang/cmm/codegen"
	"github.com/cmm-lang/cmm/lexer"
	"github.com/cmm-lang/cmm/parser"
	"github.com/cmm-lang/cmm/symtab"
	"github.com/cmm-lang/cmm/token"
	"github.com/cmm-lang/cmm/vm"
)

var log = slog.New(slog.NewTextHandler(os.Stderr, nil))

func main() {
	srcPath := flag.String("c", "", "compile the CMM source file at `path`")
	outPath := flag.String("o", "a.out", "write the compiled instruction file to `path`")
	runPath := flag.String("r", "", "execute the instruction file at `path`")
	flag.Parse()

	if *srcPath == "" && *runPath == "" {
		fmt.Fprintln(os.Stderr, "cmm: one of -c or -r is required")
		os.Exit(1)
	}

	if *srcPath != "" {
		if err := compile(*srcPath, *outPath); err != nil {
			log.Error(err.Error())
			os.Exit(1)
		}
	}

	if *runPath != "" {
		if err := run(*runPath); err != nil {
			log.Error(err.Error())
			os.Exit(1)
		}
	}
}

// compile reads the CMM source at srcPath, runs it through every compiler
// stage, and writes the resulting instruction list to outPath.
func compile(srcPath, outPath string) error {
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return errors.Wrap(err, "cmm")
	}

	toks, err := lex(string(src))
	if err != nil {
		return err
	}

	prog, err := parser.Parse(toks)
	if err != nil {
		return errors.Wrap(err, "cmm: parse")
	}

	tbl := symtab.Build(prog)

	code, err := codegen.Generate(prog, tbl)
	if err != nil {
		return errors.Wrap(err, "cmm: codegen")
	}

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(err, "cmm")
	}
	defer out.Close()

	if err := asmtext.Write(out, code); err != nil {
		return errors.Wrap(err, "cmm: write")
	}

	log.Info("compiled", "source", srcPath, "out", outPath, "instructions", len(code))
	return nil
}

// lex tokenizes src in full, surfacing the first lexical error it hits.
func lex(src string) ([]token.Token, error) {
	l := lexer.New(src)
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, errors.Wrap(err, "cmm: lex")
		}
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks, nil
		}
	}
}

// run loads a previously compiled instruction file and executes it against
// stdin/stdout.
func run(runPath string) error {
	f, err := os.Open(runPath)
	if err != nil {
		return errors.Wrap(err, "cmm")
	}
	defer f.Close()

	code, err := asmtext.Read(f)
	if err != nil {
		return errors.Wrap(err, "cmm: read")
	}

	inst, err := vm.New(code, vm.Input(os.Stdin), vm.Output(os.Stdout))
	if err != nil {
		return errors.Wrap(err, "cmm")
	}

	// The OUT opcode itself wraps any stdout write failure (see vm/core.go),
	// so there is nothing left to check here beyond the run's own error.
	if err := inst.Run(); err != nil {
		return errors.Wrap(err, "cmm: run")
	}

	log.Info("ran", "path", runPath, "instructions", inst.InstructionCount())
	return nil
}
