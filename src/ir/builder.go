package ir

import (
	"fmt"

	"vslc/src/ast"
	"vslc/src/ir/lir/types"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Builder appends typed instructions to a current basic block, tracking the current function and
// block the way the teacher's lir.Block/Function builder methods do, generalized across the
// richer instruction set (C5: IR Builder).
type Builder struct {
	Module *Module

	fn  *Function
	blk *Block

	relocations []PhiRelocation
}

// ---------------------
// ----- Functions -----
// ---------------------

// NewBuilder returns a Builder targeting m.
func NewBuilder(m *Module) *Builder {
	return &Builder{Module: m}
}

// UseFunction sets the Function subsequent NewBlock/Append calls target.
func (b *Builder) UseFunction(f *Function) {
	b.fn = f
	b.blk = nil
}

// CurrentFunction returns the Function currently being built.
func (b *Builder) CurrentFunction() *Function {
	return b.fn
}

// NewBlock creates a new basic block in the current function and returns it without switching the
// builder's current block.
func (b *Builder) NewBlock() *Block {
	if b.fn == nil {
		panic("NewBlock: no current function")
	}
	return b.fn.CreateBlock()
}

// UseBlock sets bl as the block subsequent Append/terminate calls target.
func (b *Builder) UseBlock(bl *Block) {
	b.blk = bl
}

// CurrentBlock returns the block currently being appended to.
func (b *Builder) CurrentBlock() *Block {
	return b.blk
}

// Append appends inst to the current block; panics if the current block is already terminated
// (invariant 1), matching the teacher's fail-fast builder idiom.
func (b *Builder) Append(inst *Instruction) *Instruction {
	if b.blk == nil {
		panic("Append: no current block")
	}
	return b.blk.append(inst)
}

// resultValue returns a Value referencing inst's result in the current block.
func (b *Builder) resultValue(inst *Instruction) Value {
	return inst.Value(b.blk.id)
}

// ----- Terminators -----

// TerminateJmp appends an unconditional branch to target.
func (b *Builder) TerminateJmp(target *Block) {
	b.Append(&Instruction{Op: OpJmp, Target: target})
}

// TerminateCond appends a conditional branch on cond.
func (b *Builder) TerminateCond(cond Value, t, f *Block) {
	if !IsBoolType(cond.Type()) {
		panic("TerminateCond: condition is not bool")
	}
	b.Append(&Instruction{Op: OpCondBranch, Cond: cond, True: t, False: f})
}

// TerminateSwitch appends a switch over cond with the given cases and default target.
func (b *Builder) TerminateSwitch(cond Value, cases []SwitchCase, def *Block) {
	b.Append(&Instruction{Op: OpSwitch, SwitchCond: cond, Cases: cases, DefaultTarget: def})
}

// TerminateReturn appends a return of v (v may be nil for a void return).
func (b *Builder) TerminateReturn(v *Value) {
	b.Append(&Instruction{Op: OpReturn, RetValue: v})
}

// IsBoolType reports whether t is the canonical bool type.
func IsBoolType(t Type) bool {
	it, ok := t.(*IntType)
	return ok && it.Bool
}

// ----- Value constructors -----

// Alloc reserves stack storage for elem and returns a pointer Value to it.
func (b *Builder) Alloc(elem Type, span ast.SourceSpan) Value {
	inst := b.Append(&Instruction{Op: OpAlloc, Result: &PointerType{Elem: elem}, Elem: elem, Span: span})
	return b.resultValue(inst)
}

// ZeroInit zero-initializes the storage addr points to.
func (b *Builder) ZeroInit(addr Value, span ast.SourceSpan) {
	b.Append(&Instruction{Op: OpZeroInit, Addr: addr, Span: span})
}

// StackSave snapshots the current stack pointer, for the stack-save/restore rvalue-address trick.
func (b *Builder) StackSave(span ast.SourceSpan) Value {
	inst := b.Append(&Instruction{Op: OpStackSave, Result: Ptr, Span: span})
	return b.resultValue(inst)
}

// StackRestore restores a stack pointer snapshot taken by StackSave.
func (b *Builder) StackRestore(saved Value, span ast.SourceSpan) {
	b.Append(&Instruction{Op: OpStackRestore, Operand: []Value{saved}, Span: span})
}

// Bitcast reinterprets v's bits as type to.
func (b *Builder) Bitcast(v Value, to Type, span ast.SourceSpan) Value {
	inst := b.Append(&Instruction{Op: OpBitcast, Result: to, Operand: []Value{v}, Span: span})
	return b.resultValue(inst)
}

// Load loads the value addr points to.
func (b *Builder) Load(addr Value, elem Type, span ast.SourceSpan) Value {
	if _, ok := addr.Type().(*PointerType); !ok {
		panic(fmt.Sprintf("Load: operand %s is not a pointer", addr.String()))
	}
	inst := b.Append(&Instruction{Op: OpLoad, Result: elem, Addr: addr, Span: span})
	return b.resultValue(inst)
}

// Store stores v into the storage addr points to (invariant 3: addr's pointee must match v's
// type; callers are expected to have conformed v already).
func (b *Builder) Store(addr, v Value, span ast.SourceSpan) {
	if _, ok := addr.Type().(*PointerType); !ok {
		panic(fmt.Sprintf("Store: operand %s is not a pointer", addr.String()))
	}
	b.Append(&Instruction{Op: OpStore, Addr: addr, Operand: []Value{v}, Span: span})
}

// ArrayAccess computes the address of addr[index] for a pointer or fixed-array addr.
func (b *Builder) ArrayAccess(addr, index Value, elem Type, span ast.SourceSpan) Value {
	inst := b.Append(&Instruction{Op: OpArrayAccess, Result: &PointerType{Elem: elem}, Addr: addr, Operand: []Value{index}, Span: span})
	return b.resultValue(inst)
}

// FieldAccess computes the address of addr's field at index idx (a struct field access).
func (b *Builder) FieldAccess(addr Value, idx int, name string, elem Type, span ast.SourceSpan) Value {
	inst := b.Append(&Instruction{Op: OpFieldAccess, Result: &PointerType{Elem: elem}, Addr: addr, Field: idx, FieldName: name, Span: span})
	return b.resultValue(inst)
}

// Math emits an arithmetic instruction selected by op over lhs/rhs, both already conformed to a
// common operand type. Panics on an invalid operand type, matching the teacher's
// Create{Add,Sub,...} idiom in lir/block.go.
func (b *Builder) Math(op types.ArithmeticOperation, lhs, rhs Value, result Type, span ast.SourceSpan) Value {
	if !IsInteger(result) && !IsFloat(result) {
		panic(fmt.Sprintf("Math: invalid result type %s for operation %s", result.String(), op.String()))
	}
	inst := b.Append(&Instruction{Op: OpMath, Math: op, Operand: []Value{lhs, rhs}, Result: result, Span: span})
	return b.resultValue(inst)
}

// Compare emits a relational instruction selected by op over lhs/rhs, both already conformed to a
// common operand type, producing a bool result.
func (b *Builder) Compare(op types.RelationalOperation, lhs, rhs Value, span ast.SourceSpan) Value {
	inst := b.Append(&Instruction{Op: OpMath, Rel: op, IsRel: true, Operand: []Value{lhs, rhs}, Result: Bool, Span: span})
	return b.resultValue(inst)
}

// Call emits a call to target with the given (already-conformed) arguments.
func (b *Builder) Call(target *Function, args []Value, span ast.SourceSpan) Value {
	inst := b.Append(&Instruction{Op: OpCall, Callee: target, Args: args, Result: target.Ret, Span: span})
	return b.resultValue(inst)
}

// Free emits a free instruction over a pointer value, the IR-level effect of a delete statement.
func (b *Builder) Free(ptr Value, span ast.SourceSpan) {
	if _, ok := ptr.Type().(*PointerType); !ok {
		if _, ok2 := ptr.Type().(*PointerToBytesType); !ok2 {
			panic("Free: operand is not a pointer")
		}
	}
	b.Append(&Instruction{Op: OpFree, Operand: []Value{ptr}, Span: span})
}

// LLVMAsm emits an inline-assembly instruction.
func (b *Builder) LLVMAsm(asm, constraints string, args []Value, intel, sideEffects, alignStack bool, span ast.SourceSpan) {
	b.Append(&Instruction{
		Op: OpLLVMAsm, Assembly: asm, Constraints: constraints, Args: args,
		Intel: intel, SideEffects: sideEffects, AlignStack: alignStack, Span: span,
	})
}

// Phi2 creates a two-incoming-edge phi node. When one or both incoming values are not yet
// available (the producing block hasn't been built yet), pass the zero Value and register a
// PhiRelocation via DeferPhi; ResolvePhis patches it in a second pass before handoff to the
// backend, per the two-pass phi resolution design note.
func (b *Builder) Phi2(t Type, blockA *Block, a Value, blockB *Block, bb Value, span ast.SourceSpan) *Instruction {
	inst := b.Append(&Instruction{Op: OpPhi2, Result: t, PhiA: a, PhiB: bb, Span: span})
	_ = blockA
	_ = blockB
	return inst
}

// DeferPhi records a PhiRelocation to be patched by ResolvePhis.
func (b *Builder) DeferPhi(rel PhiRelocation) {
	b.relocations = append(b.relocations, rel)
}

// ResolvePhis patches every deferred phi operand recorded via DeferPhi. It must run exactly once,
// after the function's blocks are fully built and before the module is handed to the backend.
func (b *Builder) ResolvePhis() {
	for _, r := range b.relocations {
		r.Result.PhiA = r.ValueA
		r.Result.PhiB = r.ValueB
	}
	b.relocations = b.relocations[:0]
}
