// Package optimizer rewrites IR programs in place, each pass preserving
// the semantics of the program it is given. Passes are selected by a
// Flags value the caller builds (from an optimization Level or by hand);
// there is no package-level "current level" global, since a batch
// compiler has no business sharing mutable state across compilations.
package optimizer

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/skx/tinyc/ir"
)

// OptError reports an optimizer invariant violation, such as a constant
// fold that would divide by zero.
type OptError struct {
	Detail string
}

// Error implements the error interface.
func (e *OptError) Error() string {
	return fmt.Sprintf("OptError: %s", e.Detail)
}

// Level selects a canned bundle of passes: OPT_NONE/O1/O2/O3, in
// increasing order of how much the optimizer is allowed to rewrite.
type Level int

const (
	OptNone Level = iota
	O1
	O2
	O3
)

// Flags selects which passes Optimize runs. The caller builds one from a
// Level (FlagsForLevel) or assembles it directly for finer control.
type Flags struct {
	ConstantFold      bool
	DeadCode          bool
	CSE               bool
	StrengthReduction bool
	TailCall          bool
}

// FlagsForLevel maps an optimization level to the passes it enables.
func FlagsForLevel(level Level) Flags {
	switch level {
	case O1:
		return Flags{ConstantFold: true, DeadCode: true}
	case O2:
		return Flags{ConstantFold: true, DeadCode: true, CSE: true, StrengthReduction: true}
	case O3:
		return Flags{ConstantFold: true, DeadCode: true, CSE: true, StrengthReduction: true, TailCall: true}
	default:
		return Flags{}
	}
}

// Optimize runs the passes flags selects, in a fixed order: constant
// folding to a fixpoint, dead-code elimination, common-subexpression
// elimination, strength reduction, then tail-call elimination. Loop
// unrolling and function inlining are future work (see unrollLoops and
// inlineFunctions below) and are never invoked here.
func Optimize(prog *ir.Program, flags Flags) error {
	if flags.ConstantFold {
		for {
			changed, err := ConstantFold(prog)
			if err != nil {
				return err
			}
			if !changed {
				break
			}
		}
	}
	if flags.DeadCode {
		DeadCodeEliminate(prog)
	}
	if flags.CSE {
		CSE(prog)
	}
	if flags.StrengthReduction {
		StrengthReduce(prog)
	}
	if flags.TailCall {
		TailCallEliminate(prog)
	}
	return nil
}

func isTerminator(op ir.Op) bool {
	switch op {
	case ir.OpJump, ir.OpJumpZ, ir.OpJumpNZ, ir.OpReturn:
		return true
	}
	return false
}

func isComputation(op ir.Op) bool {
	switch op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
		return true
	}
	return false
}

// ConstantFold performs one pass over prog, replacing any ADD/SUB/MUL/DIV
// whose two operands are both known-constant (defined earlier in the
// instruction stream by a literal ASSIGN) with a single ASSIGN of the
// computed result. It reports whether anything changed, so callers can
// iterate it to a fixpoint as spec requires. Division by a constant zero
// is an OptError, not a silently wrong answer.
func ConstantFold(prog *ir.Program) (bool, error) {
	changed := false
	known := map[string]int64{}

	for i, instr := range prog.Instructions {
		dest := instr.Dest

		switch instr.Op {
		case ir.OpAssign:
			if instr.Src1 == "" {
				known[dest] = instr.Immediate
			} else if dest != "" {
				delete(known, dest)
			}

		case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
			a, aok := known[instr.Src1]
			b, bok := known[instr.Src2]
			if aok && bok {
				result, err := fold(instr.Op, a, b)
				if err != nil {
					return changed, errors.WithStack(err)
				}
				prog.Instructions[i] = ir.Instr{Op: ir.OpAssign, Dest: dest, Immediate: result}
				known[dest] = result
				changed = true
			} else if dest != "" {
				delete(known, dest)
			}

		default:
			if dest != "" {
				delete(known, dest)
			}
		}
	}
	return changed, nil
}

func fold(op ir.Op, a, b int64) (int64, error) {
	switch op {
	case ir.OpAdd:
		return a + b, nil
	case ir.OpSub:
		return a - b, nil
	case ir.OpMul:
		return a * b, nil
	case ir.OpDiv:
		if b == 0 {
			return 0, &OptError{Detail: fmt.Sprintf("constant division by zero (%d / %d)", a, b)}
		}
		return a / b, nil
	}
	return 0, &OptError{Detail: fmt.Sprintf("cannot fold opcode %s", op)}
}

// Partition splits prog's instruction stream into basic blocks: a block
// begins at index 0, at any LABEL, or immediately after a jump or return,
// so every block has a single exit at its final instruction. Successors
// are derived from that terminating instruction. This is read-only with
// respect to prog.Instructions; it does not mutate the program.
func Partition(prog *ir.Program) []ir.Block {
	n := len(prog.Instructions)
	if n == 0 {
		return nil
	}

	var starts []int
	for i, instr := range prog.Instructions {
		if i == 0 || instr.Op == ir.OpLabel || isTerminator(prog.Instructions[i-1].Op) {
			starts = append(starts, i)
		}
	}

	blocks := make([]ir.Block, len(starts))
	for bi, s := range starts {
		end := n - 1
		if bi+1 < len(starts) {
			end = starts[bi+1] - 1
		}
		blocks[bi] = ir.Block{Start: s, End: end}
	}

	labelBlock := map[string]int{}
	for bi, b := range blocks {
		first := prog.Instructions[b.Start]
		if first.Op == ir.OpLabel {
			labelBlock[first.Label.String()] = bi
		}
	}

	for bi := range blocks {
		last := prog.Instructions[blocks[bi].End]
		switch last.Op {
		case ir.OpJump:
			if target, ok := labelBlock[last.Label.String()]; ok {
				blocks[bi].Successors = []int{target}
			}
		case ir.OpJumpZ, ir.OpJumpNZ:
			var succ []int
			if target, ok := labelBlock[last.Label.String()]; ok {
				succ = append(succ, target)
			}
			if bi+1 < len(blocks) {
				succ = append(succ, bi+1)
			}
			blocks[bi].Successors = succ
		case ir.OpReturn:
			// No successor: control leaves the function here.
		default:
			if bi+1 < len(blocks) {
				blocks[bi].Successors = []int{bi + 1}
			}
		}
	}

	return blocks
}

// markReachable runs the reachability fixpoint. Roots are block 0 and
// every function-entry block: CALL is not a control-flow edge here, so
// without entry roots every function after the first would sit downstream
// of a RETURN and be swept away as unreachable.
func markReachable(prog *ir.Program, blocks []ir.Block) {
	if len(blocks) == 0 {
		return
	}
	blocks[0].Reachable = true
	for bi, b := range blocks {
		first := prog.Instructions[b.Start]
		if first.Op == ir.OpLabel && first.Label.IsFunctionEntry() {
			blocks[bi].Reachable = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, b := range blocks {
			if !b.Reachable {
				continue
			}
			for _, s := range b.Successors {
				if !blocks[s].Reachable {
					blocks[s].Reachable = true
					changed = true
				}
			}
		}
	}
}

// DeadCodeEliminate partitions prog into basic blocks, marks the blocks
// reachable from block 0 or from any function-entry block, and deletes every instruction belonging to an
// unreachable block, compacting the instruction stream. Block indices
// computed before this call (including prog.Blocks) are invalidated by
// the compaction, so prog.Blocks is cleared rather than left stale.
func DeadCodeEliminate(prog *ir.Program) bool {
	blocks := Partition(prog)
	markReachable(prog, blocks)

	changed := false
	kept := make([]ir.Instr, 0, len(prog.Instructions))
	for _, b := range blocks {
		if !b.Reachable {
			changed = true
			continue
		}
		kept = append(kept, prog.Instructions[b.Start:b.End+1]...)
	}
	if changed {
		prog.Instructions = kept
	}
	prog.Blocks = nil
	return changed
}

// CSE rewrites each redundant ADD/SUB/MUL/DIV (same opcode, same operand
// names as an earlier computation) into a copy of the earlier
// computation's result. This is sound only because temps are
// single-assignment (see irgen); for named locals, which can be
// reassigned, the scan stops looking past any instruction that redefines
// one of the two operands, so a stale value is never reused.
func CSE(prog *ir.Program) bool {
	changed := false
	instrs := prog.Instructions

	for i := 0; i < len(instrs); i++ {
		if !isComputation(instrs[i].Op) {
			continue
		}
		op, src1, src2, dest := instrs[i].Op, instrs[i].Src1, instrs[i].Src2, instrs[i].Dest

		for j := i + 1; j < len(instrs); j++ {
			if isComputation(instrs[j].Op) && instrs[j].Op == op &&
				instrs[j].Src1 == src1 && instrs[j].Src2 == src2 {
				instrs[j] = ir.Instr{Op: ir.OpAssign, Dest: instrs[j].Dest, Src1: dest}
				changed = true
			}
			if d := instrs[j].Dest; d != "" && (d == src1 || d == src2) {
				break
			}
		}
	}
	return changed
}

// StrengthReduce replaces multiplication/division by two with cheaper
// shift/add forms. The literal 2 may appear either directly as an
// operand name (if some producer ever names an operand that way) or, far
// more commonly in this IR, as the value of an earlier constant ASSIGN
// that a prior ConstantFold pass has already resolved -- irgen always
// routes numeric literals through a temp (see irgen.expression), so the
// operand string itself is almost never a bare digit. StrengthReduce
// therefore tracks the same known-constant map ConstantFold does and
// resolves through it.
func StrengthReduce(prog *ir.Program) bool {
	changed := false
	known := map[string]int64{}

	for i, instr := range prog.Instructions {
		if instr.Op == ir.OpAssign && instr.Src1 == "" {
			known[instr.Dest] = instr.Immediate
		} else if instr.Dest != "" {
			delete(known, instr.Dest)
		}

		switch instr.Op {
		case ir.OpMul:
			if n, ok := literalValue(instr.Src2, known); ok && n == 2 {
				prog.Instructions[i] = ir.Instr{Op: ir.OpAdd, Dest: instr.Dest, Src1: instr.Src1, Src2: instr.Src1}
				changed = true
			} else if n, ok := literalValue(instr.Src1, known); ok && n == 2 {
				prog.Instructions[i] = ir.Instr{Op: ir.OpAdd, Dest: instr.Dest, Src1: instr.Src2, Src2: instr.Src2}
				changed = true
			}
		case ir.OpDiv:
			if n, ok := literalValue(instr.Src2, known); ok && n == 2 {
				prog.Instructions[i] = ir.Instr{Op: ir.OpShr, Dest: instr.Dest, Src1: instr.Src1, Src2: "1"}
				changed = true
			}
		}
	}
	return changed
}

func literalValue(operand string, known map[string]int64) (int64, bool) {
	if n, err := strconv.ParseInt(operand, 10, 64); err == nil {
		return n, true
	}
	if v, ok := known[operand]; ok {
		return v, true
	}
	return 0, false
}

// TailCallEliminate rewrites a CALL immediately followed by a RETURN of
// exactly that call's result, when the callee is the enclosing function
// itself, into a JUMP back to the function's entry label. The enclosing
// function is whichever function-entry LABEL was most recently seen.
func TailCallEliminate(prog *ir.Program) bool {
	changed := false
	enclosing := ""
	out := make([]ir.Instr, 0, len(prog.Instructions))

	instrs := prog.Instructions
	for i := 0; i < len(instrs); i++ {
		instr := instrs[i]
		if instr.Op == ir.OpLabel && instr.Label.IsFunctionEntry() {
			enclosing = instr.Label.Name
		}

		if instr.Op == ir.OpCall && instr.Src1 == enclosing && i+1 < len(instrs) {
			next := instrs[i+1]
			if next.Op == ir.OpReturn && next.Src1 == instr.Dest {
				out = append(out, ir.Instr{Op: ir.OpJump, Label: ir.Label{Name: enclosing, Number: -1}})
				changed = true
				i++ // consume the RETURN too
				continue
			}
		}
		out = append(out, instr)
	}

	if changed {
		prog.Instructions = out
	}
	return changed
}

// unrollLoops is a stub: loop unrolling is future work (spec §4.5). It is
// never called by Optimize, since it cannot yet insert instructions.
func unrollLoops(prog *ir.Program) bool { return false } //nolint:unused

// inlineFunctions is a stub: cross-function inlining is future work
// beyond the tail-call elimination this package already performs. It is
// never called by Optimize.
func inlineFunctions(prog *ir.Program) bool { return false } //nolint:unused
