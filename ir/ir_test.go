package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTempNeverReused(t *testing.T) {
	p := NewProgram()
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		temp := p.NewTemp()
		require.False(t, seen[temp], "temp %q reused", temp)
		seen[temp] = true
	}
}

func TestNewLabelMonotonic(t *testing.T) {
	p := NewProgram()
	a := p.NewLabel("main")
	b := p.NewLabel("main")
	require.Equal(t, 0, a.Number)
	require.Equal(t, 1, b.Number)
	require.False(t, a.IsFunctionEntry())
}

func TestFunctionEntryLabel(t *testing.T) {
	l := Label{Name: "main", Number: -1}
	require.True(t, l.IsFunctionEntry())
	require.Equal(t, "main", l.String())
}

func TestEmitReturnsIndex(t *testing.T) {
	p := NewProgram()
	i0 := p.Emit(Instr{Op: OpAssign, Dest: "t0", Immediate: 1})
	i1 := p.Emit(Instr{Op: OpReturn, Src1: "t0"})
	require.Equal(t, 0, i0)
	require.Equal(t, 1, i1)
	require.Len(t, p.Instructions, 2)
}

func TestIsConstantAssign(t *testing.T) {
	require.True(t, Instr{Op: OpAssign, Dest: "t0", Immediate: 5}.IsConstantAssign())
	require.False(t, Instr{Op: OpAssign, Dest: "t0", Src1: "x"}.IsConstantAssign())
	require.False(t, Instr{Op: OpAdd, Dest: "t0", Src1: "a", Src2: "b"}.IsConstantAssign())
}

func TestCompareKindRoundTrip(t *testing.T) {
	for sym, kind := range map[string]CompareKind{
		"==": CmpEQ, "!=": CmpNE, "<": CmpLT, "<=": CmpLE, ">": CmpGT, ">=": CmpGE,
	} {
		require.Equal(t, kind, CompareKindFromSymbol(sym))
		require.Equal(t, sym, kind.String())
	}
}
