// Package irgen lowers a type-checked AST into the three-address IR the
// optimizer and emitter consume.
package irgen

import (
	"github.com/skx/tinyc/ast"
	"github.com/skx/tinyc/ir"
)

// Generate lowers prog's functions in order into a single IR program,
// each function body preceded by a function-entry label.
func Generate(prog *ast.Program) *ir.Program {
	g := &generator{prog: ir.NewProgram()}
	for _, fn := range prog.Functions {
		g.function(fn)
	}
	return g.prog
}

type generator struct {
	prog     *ir.Program
	funcName string
}

func (g *generator) function(fn *ast.FunctionDecl) {
	g.funcName = fn.Name
	g.prog.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: fn.Name, Number: -1}})
	for _, p := range fn.Params {
		g.prog.Emit(ir.Instr{Op: ir.OpParam, Dest: p.Name})
	}
	g.compound(fn.Body)
}

func (g *generator) compound(stmt *ast.CompoundStmt) {
	for _, s := range stmt.Stmts {
		g.statement(s)
	}
}

func (g *generator) statement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		if s.Initializer != nil {
			v := g.expression(s.Initializer)
			g.prog.Emit(ir.Instr{Op: ir.OpAssign, Dest: s.Name, Src1: v})
		}

	case *ast.Assignment:
		v := g.expression(s.Value)
		g.prog.Emit(ir.Instr{Op: ir.OpAssign, Dest: s.Target.Name, Src1: v})

	case *ast.If:
		c := g.expression(s.Cond)
		lElse := g.prog.NewLabel(g.funcName)
		lEnd := lElse
		if s.Else != nil {
			lEnd = g.prog.NewLabel(g.funcName)
		}
		g.prog.Emit(ir.Instr{Op: ir.OpJumpZ, Src1: c, Label: lElse})
		g.statement(s.Then)
		if s.Else != nil {
			g.prog.Emit(ir.Instr{Op: ir.OpJump, Label: lEnd})
			g.prog.Emit(ir.Instr{Op: ir.OpLabel, Label: lElse})
			g.statement(s.Else)
		}
		g.prog.Emit(ir.Instr{Op: ir.OpLabel, Label: lEnd})

	case *ast.While:
		lHead := g.prog.NewLabel(g.funcName)
		lEnd := g.prog.NewLabel(g.funcName)
		g.prog.Emit(ir.Instr{Op: ir.OpLabel, Label: lHead})
		c := g.expression(s.Cond)
		g.prog.Emit(ir.Instr{Op: ir.OpJumpZ, Src1: c, Label: lEnd})
		g.statement(s.Body)
		g.prog.Emit(ir.Instr{Op: ir.OpJump, Label: lHead})
		g.prog.Emit(ir.Instr{Op: ir.OpLabel, Label: lEnd})

	case *ast.Return:
		v := g.expression(s.Value)
		g.prog.Emit(ir.Instr{Op: ir.OpReturn, Src1: v})

	case *ast.CompoundStmt:
		g.compound(s)

	case *ast.ExpressionStmt:
		g.expression(s.Expr)
	}
}

// expression lowers an expression and returns the operand holding its
// result: an existing name for an Identifier, a freshly allocated temp
// for everything else.
func (g *generator) expression(expr ast.Expression) string {
	switch e := expr.(type) {
	case *ast.Number:
		t := g.prog.NewTemp()
		g.prog.Emit(ir.Instr{Op: ir.OpAssign, Dest: t, Immediate: e.Value})
		return t

	case *ast.Identifier:
		return e.Name

	case *ast.BinaryOp:
		l := g.expression(e.Left)
		r := g.expression(e.Right)
		t := g.prog.NewTemp()
		g.prog.Emit(ir.Instr{Op: binaryOp(e.Op), Dest: t, Src1: l, Src2: r})
		return t

	case *ast.Comparison:
		l := g.expression(e.Left)
		r := g.expression(e.Right)
		t := g.prog.NewTemp()
		g.prog.Emit(ir.Instr{
			Op: ir.OpCompare, Dest: t, Src1: l, Src2: r,
			Immediate: int64(ir.CompareKindFromSymbol(e.Op)),
		})
		return t

	case *ast.FunctionCall:
		for _, arg := range e.Args {
			v := g.expression(arg)
			g.prog.Emit(ir.Instr{Op: ir.OpArg, Src1: v})
		}
		t := g.prog.NewTemp()
		g.prog.Emit(ir.Instr{Op: ir.OpCall, Dest: t, Src1: e.Name, Immediate: int64(len(e.Args))})
		return t
	}
	return ""
}

func binaryOp(op string) ir.Op {
	switch op {
	case "+":
		return ir.OpAdd
	case "-":
		return ir.OpSub
	case "*":
		return ir.OpMul
	case "/":
		return ir.OpDiv
	}
	return ir.OpAdd
}
