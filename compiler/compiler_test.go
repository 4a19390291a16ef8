package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skx/tinyc/optimizer"
	"github.com/skx/tinyc/semantic"
)

func TestCompileReturnLiteral(t *testing.T) {
	c := New(`int main() { return 42; }`)
	asm, err := c.Compile()
	require.NoError(t, err)
	require.Contains(t, asm, "main:")
	require.Contains(t, asm, "pushq %rbp")
	require.Contains(t, asm, "movq $42, %rax")
	require.Contains(t, asm, "ret")
}

func TestCompileConstantFoldedInitializer(t *testing.T) {
	c := New(`int main() { int x = 2 + 3 * 4; return x; }`)
	c.SetOptLevel(optimizer.O2)
	asm, err := c.Compile()
	require.NoError(t, err)
	require.Contains(t, asm, "movq $14, %rax")
}

func TestCompileFunctionCall(t *testing.T) {
	c := New(`int f(int n) { return n; } int main() { return f(7); }`)
	asm, err := c.Compile()
	require.NoError(t, err)
	require.Contains(t, asm, "call f")
	require.Contains(t, asm, "movq $7, %rax")
}

func TestCompileUndefinedVariable(t *testing.T) {
	c := New(`int main() { int x = y; return x; }`)
	_, err := c.Compile()
	require.Error(t, err)

	var semErr *semantic.SemanticError
	require.ErrorAs(t, err, &semErr)
	require.Equal(t, semantic.UndefinedVariable, semErr.Kind)
}

func TestCompileArityMismatch(t *testing.T) {
	c := New(`int f(int a, int b) { return a; } int main() { return f(1); }`)
	_, err := c.Compile()
	require.Error(t, err)

	var semErr *semantic.SemanticError
	require.ErrorAs(t, err, &semErr)
	require.Equal(t, semantic.ArityMismatch, semErr.Kind)
}

func TestCompileTailRecursiveFunctionJumpsInsteadOfCalling(t *testing.T) {
	src := `
		int countdown(int n) {
			if (n == 0) { return 0; }
			return countdown(n - 1);
		}
		int main() { return countdown(3); }
	`
	c := New(src)
	c.SetOptLevel(optimizer.O3)
	asm, err := c.Compile()
	require.NoError(t, err)
	require.Contains(t, asm, "jmp countdown")
}

func TestCompileNonTailRecursiveFunctionStillCalls(t *testing.T) {
	src := `
		int fact(int n) {
			if (n) { return n * fact(n); } else { return 1; }
		}
		int main() { return fact(5); }
	`
	c := New(src)
	c.SetOptLevel(optimizer.O3)
	asm, err := c.Compile()
	require.NoError(t, err)
	require.Contains(t, asm, "call fact")
}

func TestCompileParseErrorAbortsBeforeLaterStages(t *testing.T) {
	c := New(`int main( { return 1; }`)
	_, err := c.Compile()
	require.Error(t, err)
}

func TestCompileMainWithoutReturnIsAllowed(t *testing.T) {
	c := New(`int main() { int x = 1; }`)
	asm, err := c.Compile()
	require.NoError(t, err)
	require.Contains(t, asm, "main:")
}

func TestCompileNonMainWithoutReturnFails(t *testing.T) {
	c := New(`int f() { int x = 1; } int main() { return f(); }`)
	_, err := c.Compile()
	require.Error(t, err)

	var semErr *semantic.SemanticError
	require.ErrorAs(t, err, &semErr)
	require.Equal(t, semantic.MissingReturn, semErr.Kind)
}
