// Package emitter renders a three-address IR program as GNU-assembler
// x86-64 System V assembly text. Every named operand -- temp, local, or
// parameter -- lives in its own stack slot; this is a naive stack-spill
// allocation scheme, not a real register allocator.
package emitter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/skx/tinyc/ir"
	"github.com/skx/tinyc/stack"
)

// EmitError reports an IR opcode the emitter has no mapping for. Since
// every opcode in ir.Op has a mapping below, this should never actually
// fire against output the irgen package produces; it exists so a future
// IR opcode added without a matching emission is caught rather than
// silently dropped.
type EmitError struct {
	Detail string
}

// Error implements the error interface.
func (e *EmitError) Error() string {
	return fmt.Sprintf("EmitError: %s", e.Detail)
}

// argRegisters lists the System V AMD64 integer argument registers in
// calling order.
var argRegisters = []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}

// Emit renders prog as a complete assembly file: a .text section with
// one label per source function plus the compiler-generated block
// labels, entry point main.
func Emit(prog *ir.Program) (string, error) {
	e := &emitter{prog: prog}
	return e.run()
}

type emitter struct {
	prog *ir.Program
	out  strings.Builder

	slots     map[string]int // operand name -> byte offset from %rbp
	frameSize int
	paramIdx  int
	args      *stack.Stack // pending ARG operands, buffered until CALL
}

func (e *emitter) run() (string, error) {
	e.out.WriteString(".global main\n")
	e.out.WriteString(".text\n")

	instrs := e.prog.Instructions
	i := 0
	for i < len(instrs) {
		instr := instrs[i]
		if instr.Op == ir.OpLabel && instr.Label.IsFunctionEntry() {
			end := i + 1
			for end < len(instrs) && !(instrs[end].Op == ir.OpLabel && instrs[end].Label.IsFunctionEntry()) {
				end++
			}
			if err := e.function(instrs[i:end]); err != nil {
				return "", err
			}
			i = end
			continue
		}
		if err := e.instr(instr); err != nil {
			return "", err
		}
		i++
	}
	return e.out.String(), nil
}

// function emits one function's prologue, body, and (if the body falls
// off the end without an explicit RETURN, which is only legal for main)
// a default epilogue returning zero.
func (e *emitter) function(body []ir.Instr) error {
	e.slots = map[string]int{}
	e.frameSize = 0
	e.paramIdx = 0
	e.args = stack.New()

	for _, instr := range body {
		e.reserve(instr.Dest)
		// Source operands need slots too: a local that is read but
		// never assigned (legal, if useless, in this language) would
		// otherwise have no home. CALL's Src1 is the callee name, not
		// a value, so it is skipped.
		if instr.Op != ir.OpCall {
			e.reserve(instr.Src1)
		}
		e.reserve(instr.Src2)
	}

	lastOp := ir.Op(-1)
	for idx, instr := range body {
		if idx == 0 {
			e.out.WriteString(instr.Label.Name + ":\n")
			e.out.WriteString("        pushq %rbp\n")
			e.out.WriteString("        movq %rsp, %rbp\n")
			// The stack reservation is emitted right after the
			// prologue, not after the body.
			if e.frameSize > 0 {
				fmt.Fprintf(&e.out, "        subq $%d, %%rsp\n", e.frameSize)
			}
			lastOp = instr.Op
			continue
		}
		if err := e.instr(instr); err != nil {
			return err
		}
		lastOp = instr.Op
	}

	if lastOp != ir.OpReturn {
		e.out.WriteString("        movq $0, %rax\n")
		e.epilogue()
	}
	return nil
}

func (e *emitter) epilogue() {
	e.out.WriteString("        movq %rbp, %rsp\n")
	e.out.WriteString("        popq %rbp\n")
	e.out.WriteString("        ret\n")
}

// reserve assigns name its own stack slot, in first-seen order, unless it
// already has one. Literal operands (SHR's shift count) need no slot.
func (e *emitter) reserve(name string) {
	if name == "" {
		return
	}
	if _, err := strconv.ParseInt(name, 10, 64); err == nil {
		return
	}
	if _, ok := e.slots[name]; ok {
		return
	}
	e.frameSize += 8
	e.slots[name] = -e.frameSize
}

// operand renders name as its stack-slot address, or, for names with no
// slot (a callee name in CALL/JUMP), returns it unchanged.
func (e *emitter) operand(name string) string {
	if off, ok := e.slots[name]; ok {
		return fmt.Sprintf("%d(%%rbp)", off)
	}
	return name
}

var setcc = map[ir.CompareKind]string{
	ir.CmpEQ: "sete", ir.CmpNE: "setne",
	ir.CmpLT: "setl", ir.CmpLE: "setle",
	ir.CmpGT: "setg", ir.CmpGE: "setge",
}

func (e *emitter) instr(instr ir.Instr) error {
	switch instr.Op {
	case ir.OpLabel:
		e.out.WriteString(instr.Label.String() + ":\n")

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
		a, b, dest := e.operand(instr.Src1), e.operand(instr.Src2), e.operand(instr.Dest)
		fmt.Fprintf(&e.out, "        movq %s, %%rax\n", a)
		switch instr.Op {
		case ir.OpAdd:
			fmt.Fprintf(&e.out, "        addq %s, %%rax\n", b)
		case ir.OpSub:
			fmt.Fprintf(&e.out, "        subq %s, %%rax\n", b)
		case ir.OpMul:
			fmt.Fprintf(&e.out, "        imulq %s, %%rax\n", b)
		case ir.OpDiv:
			e.out.WriteString("        cqto\n")
			fmt.Fprintf(&e.out, "        idivq %s\n", b)
		}
		fmt.Fprintf(&e.out, "        movq %%rax, %s\n", dest)

	case ir.OpShr:
		a, dest := e.operand(instr.Src1), e.operand(instr.Dest)
		fmt.Fprintf(&e.out, "        movq %s, %%rax\n", a)
		if n, err := strconv.ParseInt(instr.Src2, 10, 64); err == nil {
			fmt.Fprintf(&e.out, "        shrq $%d, %%rax\n", n)
		} else {
			fmt.Fprintf(&e.out, "        movq %s, %%rcx\n", e.operand(instr.Src2))
			e.out.WriteString("        shrq %cl, %rax\n")
		}
		fmt.Fprintf(&e.out, "        movq %%rax, %s\n", dest)

	case ir.OpAssign:
		dest := e.operand(instr.Dest)
		if instr.Src1 == "" {
			fmt.Fprintf(&e.out, "        movq $%d, %%rax\n", instr.Immediate)
		} else {
			fmt.Fprintf(&e.out, "        movq %s, %%rax\n", e.operand(instr.Src1))
		}
		fmt.Fprintf(&e.out, "        movq %%rax, %s\n", dest)

	case ir.OpJump:
		fmt.Fprintf(&e.out, "        jmp %s\n", instr.Label.String())

	case ir.OpJumpZ:
		fmt.Fprintf(&e.out, "        cmpq $0, %s\n", e.operand(instr.Src1))
		fmt.Fprintf(&e.out, "        je %s\n", instr.Label.String())

	case ir.OpJumpNZ:
		fmt.Fprintf(&e.out, "        cmpq $0, %s\n", e.operand(instr.Src1))
		fmt.Fprintf(&e.out, "        jne %s\n", instr.Label.String())

	case ir.OpReturn:
		fmt.Fprintf(&e.out, "        movq %s, %%rax\n", e.operand(instr.Src1))
		e.epilogue()

	case ir.OpParam:
		if e.paramIdx < len(argRegisters) {
			fmt.Fprintf(&e.out, "        movq %s, %s\n", argRegisters[e.paramIdx], e.operand(instr.Dest))
		}
		e.paramIdx++

	case ir.OpArg:
		e.args.Push(instr.Src1)

	case ir.OpCall:
		// Pop exactly this call's own argument count, not the whole
		// buffer: a call nested inside another call's argument list
		// (e.g. f(1, g(2))) pushes g's ARGs on top of f's still-pending
		// ones, and draining everything here would steal them.
		argc := int(instr.Immediate)
		reversed := make([]string, 0, argc)
		for j := 0; j < argc; j++ {
			v, err := e.args.Pop()
			if err != nil {
				return errors.WithStack(&EmitError{Detail: "ARG buffer underflow"})
			}
			reversed = append(reversed, v)
		}
		n := len(reversed)
		for i := 0; i < n && i < len(argRegisters); i++ {
			fmt.Fprintf(&e.out, "        movq %s, %s\n", e.operand(reversed[n-1-i]), argRegisters[i])
		}
		fmt.Fprintf(&e.out, "        call %s\n", instr.Src1)
		fmt.Fprintf(&e.out, "        movq %%rax, %s\n", e.operand(instr.Dest))

	case ir.OpCompare:
		cc, ok := setcc[ir.CompareKind(instr.Immediate)]
		if !ok {
			return errors.WithStack(&EmitError{Detail: fmt.Sprintf("unknown comparison kind %d", instr.Immediate)})
		}
		fmt.Fprintf(&e.out, "        movq %s, %%rax\n", e.operand(instr.Src1))
		fmt.Fprintf(&e.out, "        cmpq %s, %%rax\n", e.operand(instr.Src2))
		fmt.Fprintf(&e.out, "        %s %%al\n", cc)
		e.out.WriteString("        movzbq %al, %rax\n")
		fmt.Fprintf(&e.out, "        movq %%rax, %s\n", e.operand(instr.Dest))

	case ir.OpLoad:
		// No pointer/array syntax in the source language reaches this
		// opcode (Non-goal), but the mapping is total: Src1 is the base
		// address, Immediate the byte offset.
		fmt.Fprintf(&e.out, "        movq %s, %%rax\n", e.operand(instr.Src1))
		fmt.Fprintf(&e.out, "        movq %d(%%rax), %%rax\n", instr.Immediate)
		fmt.Fprintf(&e.out, "        movq %%rax, %s\n", e.operand(instr.Dest))

	case ir.OpStore:
		// Src1 is the base address, Src2 the value, mirroring LOAD.
		fmt.Fprintf(&e.out, "        movq %s, %%rax\n", e.operand(instr.Src1))
		fmt.Fprintf(&e.out, "        movq %s, %%rcx\n", e.operand(instr.Src2))
		fmt.Fprintf(&e.out, "        movq %%rcx, %d(%%rax)\n", instr.Immediate)

	default:
		return errors.WithStack(&EmitError{Detail: fmt.Sprintf("unmapped opcode %s", instr.Op)})
	}
	return nil
}
