package ir

import (
	"fmt"
	"strings"

	"vslc/src/ast"
	"vslc/src/ir/lir/types"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Op discriminates the closed set of IR instruction kinds. Terminators (Jmp, CondBranch, Switch,
// Return) may only be the last instruction of a Block; every other Op is a body instruction.
type Op int

const (
	OpMath Op = iota
	OpLoad
	OpStore
	OpArrayAccess
	OpFieldAccess
	OpCall
	OpAlloc
	OpZeroInit
	OpBitcast
	OpStackSave
	OpStackRestore
	OpPhi2
	OpLLVMAsm
	OpFree

	OpJmp
	OpCondBranch
	OpSwitch
	OpReturn
)

// IsTerminator reports whether op may only appear as a Block's last instruction.
func (op Op) IsTerminator() bool {
	return op == OpJmp || op == OpCondBranch || op == OpSwitch || op == OpReturn
}

// SwitchCase pairs a constant IR value with its target Block in a Switch terminator.
type SwitchCase struct {
	Value  Value
	Target *Block
}

// PhiRelocation records a Phi2 created before both incoming values were available, per the
// two-pass phi resolution design note: it is resolved by Builder.ResolvePhis once both blocks and
// operand placeholders exist.
type PhiRelocation struct {
	Result  *Instruction
	BlockA  *Block
	ValueA  Value
	BlockB  *Block
	ValueB  Value
}

// Instruction is a tagged record with an optional result type, operands, and an optional source
// location, matching the data model's "IR instruction" entity.
type Instruction struct {
	id     int
	Op     Op
	Result Type // nil ("void") for instructions with no result (Store, terminators)

	// Generic operand slots; interpretation depends on Op.
	Math    types.ArithmeticOperation
	Rel     types.RelationalOperation
	IsRel   bool // OpMath carries a RelationalOperation (produces bool) instead of an ArithmeticOperation
	Operand []Value

	// OpLoad/OpStore/OpArrayAccess/OpFieldAccess/OpBitcast/OpAlloc/OpZeroInit/OpStackSave/OpStackRestore/OpFree.
	Addr  Value
	Elem  Type // element/pointee type, when relevant
	Field int  // OpFieldAccess: struct field index
	FieldName string // OpFieldAccess: field name, for the printer

	// OpCall.
	Callee    *Function
	Args      []Value

	// OpLLVMAsm.
	Assembly    string
	Constraints string
	Intel       bool
	SideEffects bool
	AlignStack  bool

	// OpJmp.
	Target *Block

	// OpCondBranch.
	Cond  Value
	True  *Block
	False *Block

	// OpSwitch.
	SwitchCond    Value
	Cases         []SwitchCase
	DefaultTarget *Block

	// OpReturn. Value is nil for a void return.
	RetValue *Value

	// OpPhi2: two incoming (block, value) edges. Placeholders may be filled lazily; see
	// Builder.ResolvePhis.
	PhiA Value
	PhiB Value

	Span ast.SourceSpan
}

// ID returns the instruction's unique id within its owning function's block.
func (i *Instruction) ID() int {
	return i.id
}

// Value returns a Value referencing this instruction's result, for instructions that produce one.
func (i *Instruction) Value(blockID int) Value {
	return Value{Kind: ValueInstructionResult, Typ: i.Result, BlockID: blockID, InstrID: i.id}
}

// String renders one instruction line of the canonical IR printer.
func (i *Instruction) String() string {
	switch i.Op {
	case OpMath:
		if i.IsRel {
			return fmt.Sprintf("%s %s, %s", i.Rel.String(), i.Operand[0].String(), i.Operand[1].String())
		}
		return fmt.Sprintf("%s %s, %s", i.Math.String(), i.Operand[0].String(), i.Operand[1].String())
	case OpLoad:
		return fmt.Sprintf("load %s", i.Addr.String())
	case OpStore:
		return fmt.Sprintf("store %s, %s", i.Addr.String(), i.Operand[0].String())
	case OpArrayAccess:
		return fmt.Sprintf("gep %s[%s]", i.Addr.String(), i.Operand[0].String())
	case OpFieldAccess:
		return fmt.Sprintf("gep %s.%s", i.Addr.String(), i.FieldName)
	case OpCall:
		parts := make([]string, len(i.Args))
		for j, a := range i.Args {
			parts[j] = a.String()
		}
		return fmt.Sprintf("call %s(%s)", i.Callee.Name, strings.Join(parts, ", "))
	case OpAlloc:
		return fmt.Sprintf("alloc %s", i.Elem.String())
	case OpZeroInit:
		return fmt.Sprintf("zeroinit %s", i.Addr.String())
	case OpBitcast:
		return fmt.Sprintf("bitcast %s to %s", i.Operand[0].String(), i.Result.String())
	case OpStackSave:
		return "stacksave"
	case OpStackRestore:
		return fmt.Sprintf("stackrestore %s", i.Operand[0].String())
	case OpFree:
		return fmt.Sprintf("free %s", i.Operand[0].String())
	case OpPhi2:
		return fmt.Sprintf("phi [%s, %s]", i.PhiA.String(), i.PhiB.String())
	case OpLLVMAsm:
		return fmt.Sprintf("asm %q", i.Assembly)
	case OpJmp:
		return fmt.Sprintf("br %s", i.Target.Name())
	case OpCondBranch:
		return fmt.Sprintf("br %s, %s, %s", i.Cond.String(), i.True.Name(), i.False.Name())
	case OpSwitch:
		return fmt.Sprintf("switch %s, default %s", i.SwitchCond.String(), i.DefaultTarget.Name())
	case OpReturn:
		if i.RetValue == nil {
			return "ret void"
		}
		return fmt.Sprintf("ret %s", i.RetValue.String())
	default:
		return "<invalid instruction>"
	}
}
