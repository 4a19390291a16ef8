// Package diagnostics holds the read-only, phase-by-phase pretty-printers
// for every stage's output: source echo, token dump, AST tree, symbol
// table, IR listing (before and after optimization), and the final
// assembly listing. None of these ever mutate what they print.
package diagnostics

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"

	"github.com/skx/tinyc/ast"
	"github.com/skx/tinyc/ir"
	"github.com/skx/tinyc/symtab"
	"github.com/skx/tinyc/token"
)

// Source echoes the program text as given, unmodified.
func Source(w io.Writer, src string) {
	fmt.Fprintln(w, "--- source ---")
	fmt.Fprintln(w, src)
}

// Tokens prints the token stream the lexer produced, one token per line.
func Tokens(w io.Writer, toks []token.Token) {
	fmt.Fprintln(w, "--- tokens ---")
	for _, t := range toks {
		fmt.Fprintf(w, "%-8s %q\n", t.Type, t.Literal)
	}
}

// AST prints the parsed program using its own pretty-printer.
func AST(w io.Writer, prog *ast.Program) {
	fmt.Fprintln(w, "--- ast ---")
	fmt.Fprintln(w, prog.String())
}

// Symbols dumps the symbol table's structure, including the symbols left
// over from any scope the caller has not yet exited. Reflection-based
// (spew), since symtab.Table keeps its fields unexported on purpose: this
// is a debug aid, not an API other packages should depend on.
func Symbols(w io.Writer, tab *symtab.Table) {
	fmt.Fprintln(w, "--- symbols ---")
	spew.Fdump(w, tab)
}

// IR prints every instruction in prog, one per line, labelled with the
// phase that produced this snapshot ("pre-optimization" or
// "post-optimization").
func IR(w io.Writer, phase string, prog *ir.Program) {
	fmt.Fprintf(w, "--- ir (%s) ---\n", phase)
	for _, instr := range prog.Instructions {
		fmt.Fprintln(w, instr.String())
	}
}

// Assembly prints the final emitted assembly text verbatim.
func Assembly(w io.Writer, asm string) {
	fmt.Fprintln(w, "--- assembly ---")
	fmt.Fprint(w, asm)
}
