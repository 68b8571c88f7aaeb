// Package codegen translates a syntax tree into a flat list of stack-machine
// instructions (isa.Instruction), given the symbol table symtab.Build
// produced for the same tree.
//
// The emitted instruction stream is laid out in three sections, in order:
// the synthetic __GLOBAL__ prologue (global allocation followed by a call
// into main), every non-main function body, and finally main's body. Every
// CALL instruction is emitted with a placeholder operand of 0, its callee's
// name recorded alongside, and patched to a relative offset once every
// function's start offset is known.
package codegen

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/cmm-lang/cmm/ast"
	"github.com/cmm-lang/cmm/isa"
	"github.com/cmm-lang/cmm/symtab"
)

// Generate walks prog and returns the linear instruction list described by
// the package doc. tbl must be the table symtab.Build produced for prog.
func Generate(prog *ast.Node, tbl symtab.Table) ([]isa.Instruction, error) {
	g := &generator{tbl: tbl}

	g.genGlobalPrologue(prog)

	var mainDecl *ast.Node
	for _, decl := range prog.Children {
		if decl.Kind != ast.FuncDecl {
			continue
		}
		name := decl.Child(1).Lexeme
		if name == "main" {
			mainDecl = decl
			continue
		}
		g.funcOffset[name] = len(g.code)
		g.genFunctionBody(decl, name)
		g.emit(isa.RET, 0)
	}

	if mainDecl != nil {
		g.funcOffset["main"] = len(g.code)
		g.genFunctionBody(mainDecl, "main")
		// main falls off the end of the program; it gets no trailing RET.
	}

	for i, ip := range g.callSites {
		target := g.callTargets[i]
		off, ok := g.funcOffset[target]
		if !ok {
			return nil, errors.Errorf("call to undefined function %q", target)
		}
		g.code[ip].Operand = off - ip
	}

	return g.code, nil
}

// generator holds the state threaded through a single Generate call.
type generator struct {
	tbl         symtab.Table
	code        []isa.Instruction
	funcOffset  map[string]int
	callSites   []int
	callTargets []string
}

func (g *generator) emit(op isa.Opcode, operand int) int {
	g.code = append(g.code, isa.Instruction{Op: op, Operand: operand})
	return len(g.code) - 1
}

// ---------------------------------------------------------------------------
// __GLOBAL__ prologue
// ---------------------------------------------------------------------------

func (g *generator) genGlobalPrologue(prog *ast.Node) {
	g.funcOffset = map[string]int{}

	for _, decl := range prog.Children {
		if decl.Kind != ast.VarDecl {
			continue
		}
		name := decl.Child(1).Lexeme
		sym := g.tbl[symtab.Global][name]
		if sym.Length > 0 {
			// The global's address is fixed at compile time, so the pointer
			// slot is simply the literal address rather than an ADDR
			// computation (unlike a local array's per-call prologue).
			g.emit(isa.LDC, sym.Slot+1)
			g.emit(isa.PUSH, 0)
			for i := 0; i < sym.Length; i++ {
				g.emit(isa.PUSH, 0)
			}
		} else {
			g.emit(isa.PUSH, 0)
		}
	}

	// main's own locals are allocated here, exactly like an ordinary call
	// site, but main takes no arguments and never returns to this frame, so
	// there are no reclaiming POPs after the CALL.
	g.pushCalleeLocals("main", nil)
	idx := g.emit(isa.CALL, 0)
	g.callSites = append(g.callSites, idx)
	g.callTargets = append(g.callTargets, "main")
}

// ---------------------------------------------------------------------------
// Functions, statements
// ---------------------------------------------------------------------------

func (g *generator) genFunctionBody(decl *ast.Node, fn string) {
	g.genStmtList(decl.Child(4), fn)
}

func (g *generator) genStmtList(list *ast.Node, fn string) {
	if list == nil {
		return
	}
	for _, stmt := range list.Children {
		g.genStmt(stmt, fn)
	}
}

func (g *generator) genStmt(n *ast.Node, fn string) {
	switch n.Kind {
	case ast.ExprStmt, ast.ReturnStmt:
		if e := n.Child(0); e != nil {
			g.genExpr(e, fn)
		}
	case ast.IfStmt:
		g.genIf(n, fn)
	case ast.WhileStmt:
		g.genWhile(n, fn)
	}
}

// genIf emits:
//
//	<cond>; JZ end; <then>; end:
//
// or, with an else branch:
//
//	<cond>; JZ else; <then>; JMP end; else: <else>; end:
//
// Jump operands are computed directly from instruction positions (target −
// site), which is equivalent to, and simpler than, re-deriving the
// then/else/body length arithmetic by hand.
func (g *generator) genIf(n *ast.Node, fn string) {
	g.genExpr(n.Child(0), fn)
	jz := g.emit(isa.JZ, 0)
	g.genStmtList(n.Child(1), fn)

	if elseList := n.Child(2); elseList == nil {
		end := len(g.code)
		g.code[jz].Operand = end - jz
		return
	}

	jmp := g.emit(isa.JMP, 0)
	elseStart := len(g.code)
	g.code[jz].Operand = elseStart - jz
	g.genStmtList(n.Child(2), fn)
	end := len(g.code)
	g.code[jmp].Operand = end - jmp
}

// genWhile emits: start: <cond>; JZ end; <body>; JMP start; end:
func (g *generator) genWhile(n *ast.Node, fn string) {
	start := len(g.code)
	g.genExpr(n.Child(0), fn)
	jz := g.emit(isa.JZ, 0)
	g.genStmtList(n.Child(1), fn)
	jmp := g.emit(isa.JMP, 0)
	g.code[jmp].Operand = start - jmp
	end := len(g.code)
	g.code[jz].Operand = end - jz
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// genExpr emits code for an Expr node: either an assignment (two children,
// Var and Expr) or a plain value (one child, SimpleExpr). An assignment
// leaves the assigned variable's slot/address in AX afterward, not the
// assigned value, so an assignment used as a value inside a larger
// expression (the right-hand side of a chained `a = b = 1`, or a
// parenthesized `(a = 1)`) yields that slot/address.
func (g *generator) genExpr(n *ast.Node, fn string) {
	if len(n.Children) == 2 {
		g.genExpr(n.Child(1), fn) // RHS -> AX
		g.genAssign(n.Child(0), fn)
		return
	}
	g.genSimpleExpr(n.Child(0), fn)
}

func (g *generator) genSimpleExpr(n *ast.Node, fn string) {
	g.genAddExpr(n.Child(0), fn)
	if len(n.Children) != 3 {
		return
	}
	g.emit(isa.PUSH, 0)
	g.genAddExpr(n.Child(2), fn)
	g.emit(relOpcode(n.Child(1).Lexeme), 0)
	g.emit(isa.POP, 0)
}

func (g *generator) genAddExpr(n *ast.Node, fn string) {
	g.genTerm(n.Child(0), fn)
	for i := 1; i < len(n.Children); i += 2 {
		op := n.Children[i].Lexeme
		g.emit(isa.PUSH, 0)
		g.genTerm(n.Children[i+1], fn)
		if op == "+" {
			g.emit(isa.ADD, 0)
		} else {
			g.emit(isa.SUB, 0)
		}
		g.emit(isa.POP, 0)
	}
}

func (g *generator) genTerm(n *ast.Node, fn string) {
	g.genFactor(n.Child(0), fn)
	for i := 1; i < len(n.Children); i += 2 {
		op := n.Children[i].Lexeme
		g.emit(isa.PUSH, 0)
		g.genFactor(n.Children[i+1], fn)
		if op == "*" {
			g.emit(isa.MUL, 0)
		} else {
			g.emit(isa.DIV, 0)
		}
		g.emit(isa.POP, 0)
	}
}

func (g *generator) genFactor(n *ast.Node, fn string) {
	switch n.Kind {
	case ast.IntLit:
		v, _ := strconv.Atoi(n.Lexeme)
		g.emit(isa.LDC, v)
	case ast.Var:
		g.genVarLoad(n, fn)
	case ast.Call:
		g.genCall(n, fn)
	case ast.Expr:
		g.genExpr(n, fn)
	}
}

func relOpcode(lexeme string) isa.Opcode {
	switch lexeme {
	case "<":
		return isa.LT
	case "<=":
		return isa.LE
	case ">":
		return isa.GT
	case ">=":
		return isa.GE
	case "==":
		return isa.EQ
	default:
		return isa.NE
	}
}

// genVarLoad emits code to load a Var node's value into AX: LDC slot; LD (a
// local, BP-relative) or LDC slot; ALD (a global, absolute), optionally
// followed by an index computation that turns the loaded base pointer into
// an absolute element address via ALD.
func (g *generator) genVarLoad(n *ast.Node, fn string) {
	sym, local, _ := g.tbl.Lookup(fn, n.Child(0).Lexeme)
	g.emit(isa.LDC, sym.Slot)
	if local {
		g.emit(isa.LD, 0)
	} else {
		g.emit(isa.ALD, 0)
	}
	if idx := n.Child(1); idx != nil {
		g.emit(isa.PUSH, 0)
		g.genExpr(idx, fn)
		g.emit(isa.ADD, 0)
		g.emit(isa.POP, 0)
		g.emit(isa.ALD, 0)
	}
}

// genAssign emits a store to v, assuming AX already holds the value to
// store (genExpr evaluates the RHS immediately before calling this). It
// pushes that value first so it survives the address computation, which
// itself needs AX as scratch space.
func (g *generator) genAssign(v *ast.Node, fn string) {
	g.emit(isa.PUSH, 0) // preserve the value across the address computation
	sym, local, _ := g.tbl.Lookup(fn, v.Child(0).Lexeme)
	g.emit(isa.LDC, sym.Slot)

	if idx := v.Child(1); idx == nil {
		if local {
			g.emit(isa.ST, 0)
		} else {
			g.emit(isa.AST, 0)
		}
	} else {
		if local {
			g.emit(isa.LD, 0)
		} else {
			g.emit(isa.ALD, 0)
		}
		g.emit(isa.PUSH, 0)
		g.genExpr(idx, fn)
		g.emit(isa.ADD, 0)
		g.emit(isa.POP, 0)
		g.emit(isa.AST, 0)
	}

	g.emit(isa.POP, 0)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (g *generator) genCall(n *ast.Node, fn string) {
	name := n.Child(0).Lexeme
	var args []*ast.Node
	if list := n.Child(1); list != nil {
		args = list.Children
	}

	switch name {
	case "input":
		g.emit(isa.IN, 0)
	case "output":
		g.genExpr(args[0], fn)
		g.emit(isa.OUT, 0)
	default:
		g.pushCalleeLocals(name, args)
		for i := len(args) - 1; i >= 0; i-- {
			g.genExpr(args[i], fn)
			g.emit(isa.PUSH, 0)
		}
		idx := g.emit(isa.CALL, 0)
		g.callSites = append(g.callSites, idx)
		g.callTargets = append(g.callTargets, name)

		total := 0
		for _, sym := range g.tbl[name] {
			total += sym.Length + 1
		}
		for i := 0; i < total; i++ {
			g.emit(isa.POP, 0)
		}
	}
}

// pushCalleeLocals pushes placeholder slots for callee's local variables
// only (not its parameters - those are pushed by the argument evaluation
// that follows), in descending slot order so the lowest-slot local ends up
// immediately below the last-declared parameter (the deepest one, since
// arguments are pushed in reverse). args is the call site's actual
// argument list; its length, not the callee's declared parameter count,
// determines how many of the lowest-slot scope entries are skipped here
// (an arity mismatch is accepted, per the language's documented non-goal).
func (g *generator) pushCalleeLocals(callee string, args []*ast.Node) {
	scope := g.tbl[callee]
	type entry struct {
		sym symtab.Symbol
	}
	entries := make([]entry, 0, len(scope))
	for _, sym := range scope {
		entries = append(entries, entry{sym})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].sym.Slot > entries[j].sym.Slot })

	topIdx := len(entries) - len(args)
	if topIdx < 0 {
		topIdx = 0
	}

	for i := 0; i < topIdx; i++ {
		sym := entries[i].sym
		if sym.Length > 0 {
			for k := 0; k < sym.Length; k++ {
				g.emit(isa.PUSH, 0)
			}
			g.emit(isa.ADDR, sym.Length)
			g.emit(isa.PUSH, 0)
		} else {
			g.emit(isa.PUSH, 0)
		}
	}
}
