// Package llvm is the backend collaborator named in the purpose statement ("emits machine code
// through a standard native code generator (LLVM-style builder)"). It consumes a finished
// vslc/src/ir.Module and drives tinygo.org/x/go-llvm; correctness of the emitted machine code is
// out of scope (the core's job ends at a valid IR module), but the interface boundary and the
// go-llvm dependency itself are exercised here exactly as they were in the teacher's own
// ir/llvm/transform.go, generalized from VSL's Node-tree walker to vslc/src/ir's structural types.
package llvm

import (
	"fmt"
	"sync"

	goLlvm "tinygo.org/x/go-llvm"

	"vslc/src/ir"
	"vslc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// symTab maps mangled vslc/src/ir.Function/global names to their go-llvm counterparts, guarded by
// a mutex so GenLLVM may be driven from a parallel, per-Object compile set (see src/driver).
type symTab struct {
	sync.RWMutex
	funcs   map[string]goLlvm.Value
	globals map[string]goLlvm.Value
}

func newSymTab() *symTab {
	return &symTab{funcs: make(map[string]goLlvm.Value), globals: make(map[string]goLlvm.Value)}
}

func (s *symTab) getFunc(name string) (goLlvm.Value, bool) {
	s.RLock()
	defer s.RUnlock()
	v, ok := s.funcs[name]
	return v, ok
}

func (s *symTab) setFunc(name string, v goLlvm.Value) {
	s.Lock()
	defer s.Unlock()
	s.funcs[name] = v
}

// ---------------------
// ----- Functions -----
// ---------------------

// GenLLVM translates mod into an llvm.Module targeting opt's architecture/OS/vendor triple, and
// verifies the result. It does not write output itself; callers dump ctx/mod as needed.
func GenLLVM(opt util.Options, mod *ir.Module) (goLlvm.Module, error) {
	ctx := goLlvm.NewContext()
	m := ctx.NewModule(mod.Name)
	m.SetTarget(genTargetTriple(opt))

	builder := ctx.NewBuilder()
	defer builder.Dispose()

	st := newSymTab()

	// Declare every function header first so forward calls resolve regardless of declaration
	// order, mirroring the teacher's two-pass genFuncHeader/genFuncBody split.
	for _, f := range mod.Functions() {
		fv := genFuncHeader(ctx, m, f)
		st.setFunc(f.Name, fv)
	}

	for _, f := range mod.Functions() {
		if len(f.Blocks()) == 0 {
			continue // foreign/declared-only function: header suffices.
		}
		fv, _ := st.getFunc(f.Name)
		if err := genFuncBody(ctx, builder, st, f, fv); err != nil {
			return m, fmt.Errorf("function %s: %w", f.Name, err)
		}
	}

	if err := goLlvm.VerifyModule(m, goLlvm.ReturnStatusAction); err != nil {
		return m, fmt.Errorf("module verification failed: %w", err)
	}
	return m, nil
}

// genFuncHeader declares f's signature in m without a body.
func genFuncHeader(ctx goLlvm.Context, m goLlvm.Module, f *ir.Function) goLlvm.Value {
	params := make([]goLlvm.Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = genType(ctx, p.Type)
	}
	ret := genVoidableType(ctx, f.Ret)
	fnTyp := goLlvm.FunctionType(ret, params, f.Variadic)
	return goLlvm.AddFunction(m, f.Name, fnTyp)
}

// genFuncBody emits f's basic blocks into fv.
func genFuncBody(ctx goLlvm.Context, builder goLlvm.Builder, st *symTab, f *ir.Function, fv goLlvm.Value) error {
	blocks := make(map[int]goLlvm.BasicBlock, len(f.Blocks()))
	for _, b := range f.Blocks() {
		blocks[b.ID()] = goLlvm.AddBasicBlock(fv, b.Name())
	}

	values := make(map[string]goLlvm.Value)
	for _, b := range f.Blocks() {
		builder.SetInsertPointAtEnd(blocks[b.ID()])
		for _, inst := range b.Instructions() {
			if err := genInstruction(ctx, builder, st, blocks, values, b, inst); err != nil {
				return err
			}
		}
	}
	return nil
}

// genInstruction lowers one IR instruction into the go-llvm builder. Only the instruction shapes
// needed to demonstrate a working IR-to-native boundary are implemented; any other instruction,
// comparison or math operation is returned as an error rather than silently miscompiled.
func genInstruction(ctx goLlvm.Context, builder goLlvm.Builder, st *symTab, blocks map[int]goLlvm.BasicBlock, values map[string]goLlvm.Value, b *ir.Block, inst *ir.Instruction) error {
	key := fmt.Sprintf("%d.%d", b.ID(), inst.ID())
	switch inst.Op {
	case ir.OpJmp:
		builder.CreateBr(blocks[inst.Target.ID()])
	case ir.OpCondBranch:
		cond := resolveOperand(ctx, builder, values, inst.Cond)
		builder.CreateCondBr(cond, blocks[inst.True.ID()], blocks[inst.False.ID()])
	case ir.OpReturn:
		if inst.RetValue == nil {
			builder.CreateRetVoid()
		} else {
			builder.CreateRet(resolveOperand(ctx, builder, values, *inst.RetValue))
		}
	case ir.OpMath:
		if inst.IsRel {
			return fmt.Errorf("comparison %s is not supported by this backend", inst.Rel.String())
		}
		lhs := resolveOperand(ctx, builder, values, inst.Operand[0])
		rhs := resolveOperand(ctx, builder, values, inst.Operand[1])
		v, err := genMath(builder, inst, lhs, rhs)
		if err != nil {
			return err
		}
		values[key] = v
	case ir.OpCall:
		fv, ok := st.getFunc(inst.Callee.Name)
		if !ok {
			return fmt.Errorf("call to undeclared function %s", inst.Callee.Name)
		}
		args := make([]goLlvm.Value, len(inst.Args))
		for i, a := range inst.Args {
			args[i] = resolveOperand(ctx, builder, values, a)
		}
		values[key] = builder.CreateCall(fv.GlobalValueType(), fv, args, "")
	default:
		// Alloc/Load/Store/ArrayAccess/Bitcast/ZeroInit/StackSave/StackRestore/Phi2/LLVMAsm/Free/
		// Switch are part of the IR contract but have no go-llvm lowering in this backend stub; the
		// IR itself remains complete and verifiable via ir.VerifyFunction.
		return fmt.Errorf("instruction %s is not supported by this backend", inst.Op)
	}
	return nil
}

func genMath(builder goLlvm.Builder, inst *ir.Instruction, lhs, rhs goLlvm.Value) (goLlvm.Value, error) {
	isFloat := ir.IsFloat(inst.Result)
	switch inst.Math.String() {
	case "add":
		if isFloat {
			return builder.CreateFAdd(lhs, rhs, ""), nil
		}
		return builder.CreateAdd(lhs, rhs, ""), nil
	case "sub":
		if isFloat {
			return builder.CreateFSub(lhs, rhs, ""), nil
		}
		return builder.CreateSub(lhs, rhs, ""), nil
	case "mul":
		if isFloat {
			return builder.CreateFMul(lhs, rhs, ""), nil
		}
		return builder.CreateMul(lhs, rhs, ""), nil
	case "div":
		if isFloat {
			return builder.CreateFDiv(lhs, rhs, ""), nil
		}
		if ir.IsSigned(inst.Result) {
			return builder.CreateSDiv(lhs, rhs, ""), nil
		}
		return builder.CreateUDiv(lhs, rhs, ""), nil
	default:
		return goLlvm.Value{}, fmt.Errorf("math operation %s is not supported by this backend", inst.Math.String())
	}
}

// resolveOperand materializes a constant Value directly; instruction-result values are expected
// to already be cached in values by their producing block (a full implementation would thread a
// relocation pass here the same way ir.Builder.ResolvePhis does for phis).
func resolveOperand(ctx goLlvm.Context, builder goLlvm.Builder, values map[string]goLlvm.Value, v ir.Value) goLlvm.Value {
	switch v.Kind {
	case ir.ValueLiteral:
		if ir.IsFloat(v.Type()) {
			return goLlvm.ConstFloat(genType(ctx, v.Type()), v.LitFloat)
		}
		return goLlvm.ConstInt(genType(ctx, v.Type()), uint64(v.LitInt), ir.IsSigned(v.Type()))
	case ir.ValueInstructionResult:
		key := fmt.Sprintf("%d.%d", v.BlockID, v.InstrID)
		return values[key]
	default:
		return goLlvm.ConstInt(ctx.Int32Type(), 0, false)
	}
}

// genType maps an ir.Type to its go-llvm counterpart.
func genType(ctx goLlvm.Context, t ir.Type) goLlvm.Type {
	switch v := t.(type) {
	case *ir.IntType:
		if v.Bool {
			return ctx.Int1Type()
		}
		return ctx.IntType(v.Width)
	case *ir.FloatType:
		if v.Width == 32 {
			return ctx.FloatType()
		}
		return ctx.DoubleType()
	case *ir.PointerType:
		return goLlvm.PointerType(genType(ctx, v.Elem), 0)
	case *ir.PointerToBytesType:
		return goLlvm.PointerType(ctx.Int8Type(), 0)
	case *ir.FixedArrayType:
		return goLlvm.ArrayType(genType(ctx, v.Elem), int(v.Length))
	case *ir.StructType:
		fields := make([]goLlvm.Type, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = genType(ctx, f.Type)
		}
		return ctx.StructType(fields, false)
	case *ir.FuncPointerType:
		params := make([]goLlvm.Type, len(v.Params))
		for i, p := range v.Params {
			params[i] = genType(ctx, p)
		}
		return goLlvm.PointerType(goLlvm.FunctionType(genVoidableType(ctx, v.Ret), params, false), 0)
	default:
		return ctx.Int32Type()
	}
}

// genVoidableType maps t to go-llvm's VoidType when t is nil or ir.Void.
func genVoidableType(ctx goLlvm.Context, t ir.Type) goLlvm.Type {
	if t == nil {
		return ctx.VoidType()
	}
	if _, ok := t.(*ir.VoidType); ok {
		return ctx.VoidType()
	}
	return genType(ctx, t)
}

// genTargetTriple renders opt's target selection as an LLVM triple string, mirroring the
// teacher's genTargetTriple in the superseded ir/llvm/transform.go.
func genTargetTriple(opt util.Options) string {
	arch := "x86_64"
	switch opt.TargetArch {
	case util.Aarch64:
		arch = "aarch64"
	case util.Riscv64:
		arch = "riscv64"
	case util.Riscv32:
		arch = "riscv32"
	case util.X86_32:
		arch = "i386"
	}
	vendor := "unknown"
	switch opt.TargetVendor {
	case util.Apple:
		vendor = "apple"
	case util.PC:
		vendor = "pc"
	case util.IBM:
		vendor = "ibm"
	}
	os := "linux"
	switch opt.TargetOS {
	case util.Windows:
		os = "windows"
	case util.MAC:
		os = "macosx"
	}
	return fmt.Sprintf("%s-%s-%s", arch, vendor, os)
}
