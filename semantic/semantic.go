// Package semantic validates a parsed program against the language's
// scoping and typing rules, using a scoped symbol table that it builds
// and checks names against as it goes.
package semantic

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/skx/tinyc/ast"
	"github.com/skx/tinyc/symtab"
)

// ErrorKind distinguishes the sub-kinds of SemanticError.
type ErrorKind string

const (
	Redeclaration         ErrorKind = "Redeclaration"
	UndefinedVariable     ErrorKind = "UndefinedVariable"
	UndefinedFunction     ErrorKind = "UndefinedFunction"
	ArityMismatch         ErrorKind = "ArityMismatch"
	ReturnOutsideFunction ErrorKind = "ReturnOutsideFunction"
	MissingReturn         ErrorKind = "MissingReturn"
)

// SemanticError reports a single analysis failure.
type SemanticError struct {
	Kind   ErrorKind
	Detail string
}

// Error implements the error interface.
func (e *SemanticError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("SemanticError: %s", e.Kind)
	}
	return fmt.Sprintf("SemanticError: %s: %s", e.Kind, e.Detail)
}

func newErr(kind ErrorKind, detail string) error {
	return errors.WithStack(&SemanticError{Kind: kind, Detail: detail})
}

// Analyzer walks a Program, populating a symtab.Table and reporting the
// first SemanticError it finds. Analysis is fail-fast: Analyze returns on
// the first error rather than continuing to collect more.
type Analyzer struct {
	table           *symtab.Table
	currentFunction *ast.FunctionDecl
	hasReturn       bool
}

// New returns an Analyzer with a fresh, empty symbol table.
func New() *Analyzer {
	return &Analyzer{table: symtab.New()}
}

// Table returns the symbol table built during Analyze. After a successful
// run every scope has been exited and this is empty: every variable
// reference resolved to a uniquely determined declaration and no scope
// was left open.
func (a *Analyzer) Table() *symtab.Table {
	return a.table
}

// Analyze runs the declaration pass then the body pass over prog.
func (a *Analyzer) Analyze(prog *ast.Program) error {
	for _, fn := range prog.Functions {
		paramTypes := make([]string, len(fn.Params))
		for i, p := range fn.Params {
			paramTypes[i] = p.TypeName
		}
		a.table.Declare(fn.Name, "int", symtab.Function, paramTypes)
	}

	for _, fn := range prog.Functions {
		if err := a.analyzeFunction(fn); err != nil {
			return err
		}
	}

	// Retire the global scope: a successful analysis leaves the table
	// empty, with every reference already resolved.
	a.table.Exit()
	return nil
}

func (a *Analyzer) analyzeFunction(fn *ast.FunctionDecl) error {
	a.table.Enter()
	defer a.table.Exit()

	prevFunction, prevHasReturn := a.currentFunction, a.hasReturn
	a.currentFunction = fn
	a.hasReturn = false
	defer func() {
		a.currentFunction, a.hasReturn = prevFunction, prevHasReturn
	}()

	for _, param := range fn.Params {
		a.table.Declare(param.Name, param.TypeName, symtab.Variable, nil)
	}

	for _, stmt := range fn.Body.Stmts {
		if err := a.analyzeStatement(stmt); err != nil {
			return err
		}
	}

	if !a.hasReturn && fn.Name != "main" {
		return newErr(MissingReturn, fn.Name)
	}
	return nil
}

func (a *Analyzer) analyzeStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		// A declaration clashes with any visible symbol, not just one
		// at the current level: there is no shadowing in this language.
		if _, exists := a.table.Lookup(s.Name); exists {
			return newErr(Redeclaration, s.Name)
		}
		if s.Initializer != nil {
			if err := a.analyzeExpression(s.Initializer); err != nil {
				return err
			}
		}
		a.table.Declare(s.Name, s.TypeName, symtab.Variable, nil)
		return nil

	case *ast.Assignment:
		sym, ok := a.table.Lookup(s.Target.Name)
		if !ok {
			return newErr(UndefinedVariable, s.Target.Name)
		}
		if sym.Kind != symtab.Variable {
			return newErr(UndefinedVariable, s.Target.Name)
		}
		return a.analyzeExpression(s.Value)

	case *ast.If:
		if err := a.analyzeExpression(s.Cond); err != nil {
			return err
		}
		if err := a.analyzeScopedStatement(s.Then); err != nil {
			return err
		}
		if s.Else != nil {
			return a.analyzeScopedStatement(s.Else)
		}
		return nil

	case *ast.While:
		if err := a.analyzeExpression(s.Cond); err != nil {
			return err
		}
		return a.analyzeScopedStatement(s.Body)

	case *ast.Return:
		if a.currentFunction == nil {
			return newErr(ReturnOutsideFunction, "")
		}
		a.hasReturn = true
		return a.analyzeExpression(s.Value)

	case *ast.CompoundStmt:
		return a.analyzeScopedStatement(s)

	case *ast.ExpressionStmt:
		return a.analyzeExpression(s.Expr)
	}
	return nil
}

// analyzeScopedStatement opens a fresh scope around stmt: If, While, and
// CompoundStmt each get their own scope, and each arm of an If gets its
// own rather than sharing one.
func (a *Analyzer) analyzeScopedStatement(stmt ast.Statement) error {
	a.table.Enter()
	defer a.table.Exit()

	if compound, ok := stmt.(*ast.CompoundStmt); ok {
		for _, inner := range compound.Stmts {
			if err := a.analyzeStatement(inner); err != nil {
				return err
			}
		}
		return nil
	}
	return a.analyzeStatement(stmt)
}

func (a *Analyzer) analyzeExpression(expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.Number:
		return nil

	case *ast.Identifier:
		if _, ok := a.table.Lookup(e.Name); !ok {
			return newErr(UndefinedVariable, e.Name)
		}
		return nil

	case *ast.BinaryOp:
		if err := a.analyzeExpression(e.Left); err != nil {
			return err
		}
		return a.analyzeExpression(e.Right)

	case *ast.Comparison:
		if err := a.analyzeExpression(e.Left); err != nil {
			return err
		}
		return a.analyzeExpression(e.Right)

	case *ast.FunctionCall:
		sym, ok := a.table.Lookup(e.Name)
		if !ok || sym.Kind != symtab.Function {
			return newErr(UndefinedFunction, e.Name)
		}
		if len(e.Args) != len(sym.ParamTypes) {
			return newErr(ArityMismatch, fmt.Sprintf("%s: want %d, got %d", e.Name, len(sym.ParamTypes), len(e.Args)))
		}
		for _, arg := range e.Args {
			if err := a.analyzeExpression(arg); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}
