package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skx/tinyc/ir"
)

func num(p *ir.Program, v int64) string {
	t := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpAssign, Dest: t, Immediate: v})
	return t
}

func TestConstantFoldSimpleAdd(t *testing.T) {
	p := ir.NewProgram()
	a := num(p, 2)
	b := num(p, 3)
	dest := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpAdd, Dest: dest, Src1: a, Src2: b})

	changed, err := ConstantFold(p)
	require.NoError(t, err)
	require.True(t, changed)

	last := p.Instructions[len(p.Instructions)-1]
	require.Equal(t, ir.OpAssign, last.Op)
	require.Equal(t, int64(5), last.Immediate)
}

func TestConstantFoldChain(t *testing.T) {
	// x = 2 + 3 * 4 lowers to: t0=2 t1=3 t2=4 t3=MUL t1,t2 t4=ADD t0,t3
	p := ir.NewProgram()
	t0 := num(p, 2)
	t1 := num(p, 3)
	t2 := num(p, 4)
	t3 := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpMul, Dest: t3, Src1: t1, Src2: t2})
	t4 := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpAdd, Dest: t4, Src1: t0, Src2: t3})

	for {
		changed, err := ConstantFold(p)
		require.NoError(t, err)
		if !changed {
			break
		}
	}

	last := p.Instructions[len(p.Instructions)-1]
	require.Equal(t, ir.OpAssign, last.Op)
	require.Equal(t, int64(14), last.Immediate)
}

func TestConstantFoldIdempotent(t *testing.T) {
	p := ir.NewProgram()
	a := num(p, 2)
	b := num(p, 3)
	dest := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpAdd, Dest: dest, Src1: a, Src2: b})

	_, err := ConstantFold(p)
	require.NoError(t, err)
	snapshot := append([]ir.Instr(nil), p.Instructions...)

	changed, err := ConstantFold(p)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, snapshot, p.Instructions)
}

func TestConstantFoldDivisionByZero(t *testing.T) {
	p := ir.NewProgram()
	a := num(p, 4)
	b := num(p, 0)
	dest := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpDiv, Dest: dest, Src1: a, Src2: b})

	_, err := ConstantFold(p)
	require.Error(t, err)
	var optErr *OptError
	require.ErrorAs(t, err, &optErr)
}

func TestConstantFoldDoesNotFoldNonConstant(t *testing.T) {
	p := ir.NewProgram()
	x := "x" // a named local, never assigned a literal
	a := num(p, 2)
	dest := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpAdd, Dest: dest, Src1: x, Src2: a})

	changed, err := ConstantFold(p)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestPartitionSimple(t *testing.T) {
	p := ir.NewProgram()
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "main", Number: -1}})
	p.Emit(ir.Instr{Op: ir.OpJump, Label: ir.Label{Name: "main", Number: 1}})
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "main", Number: 0}}) // unreachable block
	p.Emit(ir.Instr{Op: ir.OpAssign, Dest: "dead", Immediate: 1})
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "main", Number: 1}})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: "t0"})

	blocks := Partition(p)
	require.Len(t, blocks, 3)
	require.Equal(t, 0, blocks[0].Start)
	require.Equal(t, 1, blocks[0].End)
}

func TestDeadCodeEliminateDropsUnreachableBlock(t *testing.T) {
	p := ir.NewProgram()
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "main", Number: -1}})
	p.Emit(ir.Instr{Op: ir.OpJump, Label: ir.Label{Name: "main", Number: 1}})
	// Block starting at this label is never jumped to: unreachable.
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "main", Number: 0}})
	p.Emit(ir.Instr{Op: ir.OpAssign, Dest: "dead", Immediate: 1})
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "main", Number: 1}})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: "t0"})

	changed := DeadCodeEliminate(p)
	require.True(t, changed)
	for _, instr := range p.Instructions {
		require.NotEqual(t, "dead", instr.Dest)
	}
}

func TestDeadCodeEliminateNeverDropsBlockZero(t *testing.T) {
	p := ir.NewProgram()
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "main", Number: -1}})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: "t0"})

	changed := DeadCodeEliminate(p)
	require.False(t, changed)
	require.Len(t, p.Instructions, 2)
}

func TestPartitionSplitsAfterConditionalJump(t *testing.T) {
	// A JUMPZ ends its block even when no LABEL follows: the
	// fall-through instructions form a block of their own, reachable
	// through the conditional's fall-through edge.
	p := ir.NewProgram()
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "f", Number: -1}})
	p.Emit(ir.Instr{Op: ir.OpJumpZ, Src1: "t0", Label: ir.Label{Name: "f", Number: 0}})
	p.Emit(ir.Instr{Op: ir.OpAssign, Dest: "t1", Immediate: 1})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: "t1"})
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "f", Number: 0}})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: "t0"})

	blocks := Partition(p)
	require.Len(t, blocks, 3)
	require.Equal(t, []int{2, 1}, blocks[0].Successors)
	require.Empty(t, blocks[1].Successors)
}

func TestDeadCodeKeepsFallThroughOfConditional(t *testing.T) {
	p := ir.NewProgram()
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "f", Number: -1}})
	p.Emit(ir.Instr{Op: ir.OpJumpZ, Src1: "t0", Label: ir.Label{Name: "f", Number: 0}})
	p.Emit(ir.Instr{Op: ir.OpAssign, Dest: "t1", Immediate: 1})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: "t1"})
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "f", Number: 0}})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: "t0"})

	changed := DeadCodeEliminate(p)
	require.False(t, changed)
	require.Len(t, p.Instructions, 6)
}

func TestDeadCodeKeepsEveryFunction(t *testing.T) {
	// CALL is not a control-flow edge, so each function entry is a
	// reachability root of its own; a second function must not be swept
	// away just because the first one ends in RETURN.
	p := ir.NewProgram()
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "f", Number: -1}})
	p.Emit(ir.Instr{Op: ir.OpParam, Dest: "n"})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: "n"})
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "main", Number: -1}})
	p.Emit(ir.Instr{Op: ir.OpAssign, Dest: "t0", Immediate: 7})
	p.Emit(ir.Instr{Op: ir.OpArg, Src1: "t0"})
	p.Emit(ir.Instr{Op: ir.OpCall, Dest: "t1", Src1: "f", Immediate: 1})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: "t1"})

	changed := DeadCodeEliminate(p)
	require.False(t, changed)

	haveMain := false
	for _, instr := range p.Instructions {
		if instr.Op == ir.OpLabel && instr.Label.Name == "main" {
			haveMain = true
		}
	}
	require.True(t, haveMain)
}

func TestDeadCodeDropsCodeAfterUnconditionalJump(t *testing.T) {
	// Instructions between an unconditional JUMP and the next label can
	// never execute; they form an unlabelled, unreachable block.
	p := ir.NewProgram()
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "f", Number: -1}})
	p.Emit(ir.Instr{Op: ir.OpJump, Label: ir.Label{Name: "f", Number: 0}})
	p.Emit(ir.Instr{Op: ir.OpAssign, Dest: "dead", Immediate: 1})
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "f", Number: 0}})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: "t0"})

	changed := DeadCodeEliminate(p)
	require.True(t, changed)
	for _, instr := range p.Instructions {
		require.NotEqual(t, "dead", instr.Dest)
	}
}

func TestCSERewritesRedundantComputation(t *testing.T) {
	p := ir.NewProgram()
	t0 := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpAdd, Dest: t0, Src1: "a", Src2: "b"})
	t1 := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpAdd, Dest: t1, Src1: "a", Src2: "b"})

	changed := CSE(p)
	require.True(t, changed)
	require.Equal(t, ir.OpAssign, p.Instructions[1].Op)
	require.Equal(t, t0, p.Instructions[1].Src1)
}

func TestCSEGuardsAgainstIntermediateRedefinition(t *testing.T) {
	p := ir.NewProgram()
	t0 := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpAdd, Dest: t0, Src1: "a", Src2: "b"})
	// "a" is reassigned between the two computations, so the second ADD
	// a,b must NOT be rewritten to reuse t0's stale value.
	p.Emit(ir.Instr{Op: ir.OpAssign, Dest: "a", Immediate: 99})
	t1 := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpAdd, Dest: t1, Src1: "a", Src2: "b"})

	changed := CSE(p)
	require.False(t, changed)
	require.Equal(t, ir.OpAdd, p.Instructions[2].Op)
}

func TestStrengthReduceMultiplyByTwo(t *testing.T) {
	p := ir.NewProgram()
	two := num(p, 2)
	dest := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpMul, Dest: dest, Src1: "x", Src2: two})

	changed := StrengthReduce(p)
	require.True(t, changed)

	last := p.Instructions[len(p.Instructions)-1]
	require.Equal(t, ir.OpAdd, last.Op)
	require.Equal(t, "x", last.Src1)
	require.Equal(t, "x", last.Src2)
}

func TestStrengthReduceDivideByTwo(t *testing.T) {
	p := ir.NewProgram()
	two := num(p, 2)
	dest := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpDiv, Dest: dest, Src1: "x", Src2: two})

	changed := StrengthReduce(p)
	require.True(t, changed)

	last := p.Instructions[len(p.Instructions)-1]
	require.Equal(t, ir.OpShr, last.Op)
	require.Equal(t, "1", last.Src2)
}

func TestStrengthReduceLeavesOtherDivisorsAlone(t *testing.T) {
	p := ir.NewProgram()
	three := num(p, 3)
	dest := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpDiv, Dest: dest, Src1: "x", Src2: three})

	changed := StrengthReduce(p)
	require.False(t, changed)
}

func TestTailCallEliminateRewritesTrueTailCall(t *testing.T) {
	p := ir.NewProgram()
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "fact", Number: -1}})
	p.Emit(ir.Instr{Op: ir.OpParam, Dest: "n"})
	p.Emit(ir.Instr{Op: ir.OpArg, Src1: "n"})
	t0 := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpCall, Dest: t0, Src1: "fact", Immediate: 1})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: t0})

	changed := TailCallEliminate(p)
	require.True(t, changed)

	for _, instr := range p.Instructions {
		require.NotEqual(t, ir.OpReturn, instr.Op)
	}
	last := p.Instructions[len(p.Instructions)-1]
	require.Equal(t, ir.OpJump, last.Op)
	require.Equal(t, "fact", last.Label.Name)
	require.True(t, last.Label.IsFunctionEntry())
}

func TestTailCallEliminateLeavesNonTailCallAlone(t *testing.T) {
	// return n * fact(n): the call's result feeds a MUL, not a direct
	// RETURN, so this is not a tail call and must survive untouched.
	p := ir.NewProgram()
	p.Emit(ir.Instr{Op: ir.OpLabel, Label: ir.Label{Name: "fact", Number: -1}})
	p.Emit(ir.Instr{Op: ir.OpParam, Dest: "n"})
	p.Emit(ir.Instr{Op: ir.OpArg, Src1: "n"})
	t0 := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpCall, Dest: t0, Src1: "fact", Immediate: 1})
	t1 := p.NewTemp()
	p.Emit(ir.Instr{Op: ir.OpMul, Dest: t1, Src1: "n", Src2: t0})
	p.Emit(ir.Instr{Op: ir.OpReturn, Src1: t1})

	changed := TailCallEliminate(p)
	require.False(t, changed)

	haveCall, haveReturn := false, false
	for _, instr := range p.Instructions {
		if instr.Op == ir.OpCall {
			haveCall = true
		}
		if instr.Op == ir.OpReturn {
			haveReturn = true
		}
	}
	require.True(t, haveCall)
	require.True(t, haveReturn)
}

func TestFlagsForLevel(t *testing.T) {
	require.Equal(t, Flags{}, FlagsForLevel(OptNone))
	require.True(t, FlagsForLevel(O1).ConstantFold)
	require.True(t, FlagsForLevel(O2).CSE)
	require.True(t, FlagsForLevel(O3).TailCall)
}
