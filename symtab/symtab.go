// Package symtab builds the two-level symbol table the code generator reads
// variable slots from: function name -> variable name -> (slot, length).
//
// The builder performs a single pass over top-level declarations and
// performs no semantic validation - redeclaration, use-before-declaration,
// and arity checks are explicitly out of scope; it accepts whatever the
// parser accepted.
package symtab

import "github.com/cmm-lang/cmm/ast"

// Global is the synthetic function name holding top-level variables.
const Global = "__GLOBAL__"

// Symbol records a single variable's stack slot and array length (0 for a
// scalar).
type Symbol struct {
	Slot   int
	Length int
}

// Scope is one function's (or __GLOBAL__'s) variable table.
type Scope map[string]Symbol

// Table is the whole program's symbol table, keyed by function name.
type Table map[string]Scope

// Build walks a Program node's top-level declarations once and returns the
// resulting Table. Children are visited in textual order, so slot
// assignment matches declaration order exactly as spec.md §4.3 requires.
func Build(prog *ast.Node) Table {
	t := Table{Global: Scope{}}
	globalIdx := 0

	for _, decl := range prog.Children {
		switch decl.Kind {
		case ast.VarDecl:
			name, length := varDeclInfo(decl)
			t[Global][name] = Symbol{Slot: globalIdx, Length: length}
			globalIdx += length + 1

		case ast.FuncDecl:
			fn := decl.Child(1).Lexeme
			scope := Scope{}
			varIdx := 0

			if params := decl.Child(2); params != nil {
				for _, p := range params.Children {
					name := p.Child(1).Lexeme
					// Arrays decay to a pointer parameter: length is always
					// 0 here (the parser does not keep the '[]' marker).
					scope[name] = Symbol{Slot: varIdx, Length: 0}
					varIdx++
				}
			}

			if locals := decl.Child(3); locals != nil {
				for _, local := range locals.Children {
					name, length := varDeclInfo(local)
					scope[name] = Symbol{Slot: varIdx, Length: length}
					varIdx += length + 1
				}
			}

			t[fn] = scope
		}
	}

	return t
}

// varDeclInfo extracts a VarDecl node's variable name and array length (0
// for scalars).
func varDeclInfo(decl *ast.Node) (name string, length int) {
	name = decl.Child(1).Lexeme
	if lenNode := decl.Child(2); lenNode != nil {
		length = atoi(lenNode.Lexeme)
	}
	return name, length
}

// atoi parses a decimal integer lexeme. The lexer guarantees digit-only
// input, so this never needs to report an error.
func atoi(s string) int {
	n := 0
	for _, ch := range s {
		n = n*10 + int(ch-'0')
	}
	return n
}

// Lookup resolves name within fn's scope, falling back to Global - a local
// shadows a global of the same name, matching spec.md §4.3's disjoint-
// namespace-with-shadowing rule.
func (t Table) Lookup(fn, name string) (sym Symbol, local bool, ok bool) {
	if scope, found := t[fn]; found {
		if sym, ok := scope[name]; ok {
			return sym, true, true
		}
	}
	if sym, ok := t[Global][name]; ok {
		return sym, false, true
	}
	return Symbol{}, false, false
}
