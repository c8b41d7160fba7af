package lower

import (
	"vslc/src/ast"
	"vslc/src/bridge"
	"vslc/src/conform"
	"vslc/src/diag"
	"vslc/src/ir"
	"vslc/src/ir/lir/types"
)

// ---------------------
// ----- Functions -----
// ---------------------

// LowerExpr lowers e to an rvalue: a value already loaded out of whatever storage produced it.
func LowerExpr(c *Context, e ast.Expr) (ir.Value, error) {
	switch n := e.(type) {
	case *ast.Identifier:
		return lowerIdentifierRvalue(c, n)
	case *ast.Literal:
		return lowerLiteral(c, n)
	case *ast.Member:
		addr, elem, err := lowerMemberAddr(c, n)
		if err != nil {
			return ir.Value{}, err
		}
		return c.Builder.Load(addr, elem, n.Span), nil
	case *ast.Subscript:
		addr, elem, err := lowerSubscriptAddr(c, n)
		if err != nil {
			return ir.Value{}, err
		}
		return c.Builder.Load(addr, elem, n.Span), nil
	case *ast.Unary:
		return lowerUnary(c, n)
	case *ast.Binary:
		return lowerBinary(c, n)
	case *ast.Call:
		return lowerCall(c, n)
	case *ast.MethodCall:
		return lowerMethodCall(c, n)
	case *ast.New:
		return lowerNew(c, n)
	case *ast.DeleteExpr:
		return lowerDeleteExpr(c, n)
	case *ast.Ternary:
		return lowerTernary(c, n)
	case *ast.VaOp:
		return lowerVaOp(c, n)
	default:
		return ir.Value{}, diag.New(diag.KindInternal, e.Location(), "unhandled expression kind")
	}
}

// LowerLvalue lowers e to the address of its storage, for assignment targets, address-of, and
// each-in reference binding.
func LowerLvalue(c *Context, e ast.Expr) (ir.Value, ir.Type, error) {
	switch n := e.(type) {
	case *ast.Identifier:
		v, ok := c.Bridge.Lookup(n.Name)
		if !ok {
			return ir.Value{}, nil, diag.New(diag.KindUnknownName, n.Span, "undeclared name %s", n.Name)
		}
		return c.identifierAddr(v, n.Span), v.IRType, nil
	case *ast.Member:
		return lowerMemberAddr(c, n)
	case *ast.Subscript:
		return lowerSubscriptAddr(c, n)
	case *ast.Unary:
		if n.Op == ast.UnaryDeref {
			v, err := LowerExpr(c, n.Operand)
			if err != nil {
				return ir.Value{}, nil, err
			}
			ptr, ok := v.Type().(*ir.PointerType)
			if !ok {
				return ir.Value{}, nil, diag.New(diag.KindNotPointer, n.Span, "cannot dereference non-pointer value")
			}
			c.nullCheck(v, n.Span)
			return v, ptr.Elem, nil
		}
		return ir.Value{}, nil, diag.New(diag.KindNotMutable, n.Span, "expression is not an lvalue")
	default:
		return ir.Value{}, nil, diag.New(diag.KindNotMutable, e.Location(), "expression is not an lvalue")
	}
}

func lowerIdentifierRvalue(c *Context, n *ast.Identifier) (ir.Value, error) {
	v, ok := c.Bridge.Lookup(n.Name)
	if !ok {
		return ir.Value{}, diag.New(diag.KindUnknownName, n.Span, "undeclared name %s", n.Name)
	}
	return c.Builder.Load(c.identifierAddr(v, n.Span), v.IRType, n.Span), nil
}

// identifierAddr builds the address of v's storage. A static variable's storage lives in the
// module's static table rather than the current function's stack frame. A REFERENCE-trait
// variable (each-in's bound element) stores a pointer to the aliased storage in its slot, so its
// address is obtained by loading that pointer rather than indexing the slot directly.
func (c *Context) identifierAddr(v *bridge.Variable, span ast.SourceSpan) ir.Value {
	if v.Traits.Reference {
		slotAddr := ir.Value{Kind: ir.ValueLocalVariable, Typ: &ir.PointerType{Elem: &ir.PointerType{Elem: v.IRType}}, SlotIndex: v.Slot.Index, VarName: v.Name}
		return c.Builder.Load(slotAddr, &ir.PointerType{Elem: v.IRType}, span)
	}
	if v.Traits.Static {
		return ir.Value{Kind: ir.ValueStaticVariable, Typ: &ir.PointerType{Elem: v.IRType}, VarName: v.Name}
	}
	return ir.Value{Kind: ir.ValueLocalVariable, Typ: &ir.PointerType{Elem: v.IRType}, SlotIndex: v.Slot.Index, VarName: v.Name}
}

func lowerLiteral(c *Context, n *ast.Literal) (ir.Value, error) {
	switch n.Kind {
	case ast.LitInt:
		return ir.LiteralInt(ir.S32, n.Int), nil
	case ast.LitFloat:
		return ir.LiteralFloat(ir.F64, n.Float), nil
	case ast.LitBool:
		return ir.LiteralBool(n.Bool), nil
	case ast.LitString:
		g := c.Module.CreateString(n.Str)
		return ir.Value{Kind: ir.ValueAnonymousGlobal, Typ: &ir.PointerType{Elem: ir.U8}, GlobalName: g.Name}, nil
	case ast.LitNull:
		return ir.Value{Kind: ir.ValueLiteral, Typ: &ir.PointerType{Elem: ir.Void}, LitInt: 0}, nil
	default:
		return ir.Value{}, diag.New(diag.KindInternal, n.Span, "unhandled literal kind")
	}
}

// lowerMemberAddr computes the address of a field access, looking the field up by name in the
// base's struct type.
func lowerMemberAddr(c *Context, n *ast.Member) (ir.Value, ir.Type, error) {
	baseAddr, baseType, err := LowerLvalue(c, n.Base)
	if err != nil {
		return ir.Value{}, nil, err
	}
	st, ok := underlyingStruct(baseType)
	if !ok {
		return ir.Value{}, nil, diag.New(diag.KindIncompatibleTypes, n.Span, "%s has no fields", baseType.String())
	}
	for i, f := range st.Fields {
		if f.Name == n.Field {
			return c.Builder.FieldAccess(baseAddr, i, f.Name, f.Type, n.Span), f.Type, nil
		}
	}
	return ir.Value{}, nil, diag.New(diag.KindUnknownName, n.Span, "%s has no field %s", st.Name, n.Field)
}

// underlyingStruct unwraps a single level of pointer indirection, so "p.field" on a pointer-to-
// struct behaves like "(*p).field" without requiring an explicit deref in source.
func underlyingStruct(t ir.Type) (*ir.StructType, bool) {
	if st, ok := t.(*ir.StructType); ok {
		return st, true
	}
	if pt, ok := t.(*ir.PointerType); ok {
		if st, ok := pt.Elem.(*ir.StructType); ok {
			return st, true
		}
	}
	return nil, false
}

func lowerSubscriptAddr(c *Context, n *ast.Subscript) (ir.Value, ir.Type, error) {
	baseAddr, baseType, err := LowerLvalue(c, n.Base)
	if err != nil {
		return ir.Value{}, nil, err
	}
	idx, err := LowerExpr(c, n.Index)
	if err != nil {
		return ir.Value{}, nil, err
	}
	idx, err = conform.Conform(c.Builder, idx, idx.Type(), ir.Usize, conform.Calculation, nil, n.Span)
	if err != nil {
		return ir.Value{}, nil, err
	}
	switch t := baseType.(type) {
	case *ir.FixedArrayType:
		return c.Builder.ArrayAccess(baseAddr, idx, t.Elem, n.Span), t.Elem, nil
	case *ir.PointerType:
		base := c.Builder.Load(baseAddr, baseType, n.Span)
		return c.Builder.ArrayAccess(base, idx, t.Elem, n.Span), t.Elem, nil
	default:
		return ir.Value{}, nil, diag.New(diag.KindIncompatibleTypes, n.Span, "%s is not indexable", baseType.String())
	}
}

func lowerUnary(c *Context, n *ast.Unary) (ir.Value, error) {
	if n.Op == ast.UnaryAddressOf {
		addr, elemType, err := LowerLvalue(c, n.Operand)
		if err != nil {
			return ir.Value{}, err
		}
		_ = elemType
		return addr, nil
	}
	if n.Op == ast.UnaryDeref {
		v, err := LowerExpr(c, n.Operand)
		if err != nil {
			return ir.Value{}, err
		}
		ptr, ok := v.Type().(*ir.PointerType)
		if !ok {
			return ir.Value{}, diag.New(diag.KindNotPointer, n.Span, "cannot dereference non-pointer value")
		}
		c.nullCheck(v, n.Span)
		return c.Builder.Load(v, ptr.Elem, n.Span), nil
	}
	v, err := LowerExpr(c, n.Operand)
	if err != nil {
		return ir.Value{}, err
	}
	if result, handled := lowerOperatorUnary(c, n, v); handled {
		return result, nil
	}
	switch n.Op {
	case ast.UnaryNeg:
		if _, ok := v.Type().(*ir.StructType); ok {
			return ir.Value{}, diag.New(diag.KindIncompatibleTypes, n.Span, "%s has no %s method", v.Type().String(), unaryOpMethod[n.Op])
		}
		zero := zeroOf(v.Type())
		return c.Builder.Math(types.Sub, zero, v, v.Type(), n.Span), nil
	case ast.UnaryNot:
		if !ir.IsBoolType(v.Type()) {
			return ir.Value{}, diag.New(diag.KindNotBool, n.Span, "operand of ! must be bool")
		}
		return c.Builder.Compare(types.Eq, v, ir.LiteralBool(false), n.Span), nil
	case ast.UnaryBitNot:
		if _, ok := v.Type().(*ir.StructType); ok {
			return ir.Value{}, diag.New(diag.KindIncompatibleTypes, n.Span, "%s has no %s method", v.Type().String(), unaryOpMethod[n.Op])
		}
		neg1 := ir.LiteralInt(v.Type(), -1)
		return c.Builder.Math(types.Xor, v, neg1, v.Type(), n.Span), nil
	default:
		return ir.Value{}, diag.New(diag.KindInternal, n.Span, "unhandled unary operator")
	}
}

// unaryOpMethod names the operator-overload method a composite declares to handle a unary
// operator, following the __defer__/__assign__ dunder convention: a no-argument method on the
// operand's own composite, called on the operand as its receiver.
var unaryOpMethod = map[ast.UnaryOp]string{
	ast.UnaryNeg:    "__neg__",
	ast.UnaryBitNot: "__bitnot__",
}

// lowerOperatorUnary resolves and calls v's operator-overload method for n.Op when v is a
// composite declaring one, reporting handled=false so the caller falls back to built-in math for
// primitive operands (or reports KindIncompatibleTypes itself, for a composite with no such method).
func lowerOperatorUnary(c *Context, n *ast.Unary, v ir.Value) (ir.Value, bool) {
	name, ok := unaryOpMethod[n.Op]
	if !ok {
		return ir.Value{}, false
	}
	st, ok := v.Type().(*ir.StructType)
	if !ok {
		return ir.Value{}, false
	}
	fn := c.lookupMethod(st, name)
	if fn == nil {
		return ir.Value{}, false
	}
	saved := c.Builder.StackSave(n.Span)
	self := c.Builder.Alloc(st, n.Span)
	c.Builder.Store(self, v, n.Span)
	result := c.Builder.Call(fn, []ir.Value{self}, n.Span)
	c.Builder.StackRestore(saved, n.Span)
	return result, true
}

func zeroOf(t ir.Type) ir.Value {
	if ir.IsFloat(t) {
		return ir.LiteralFloat(t, 0)
	}
	return ir.LiteralInt(t, 0)
}

// binaryArith maps the source-level binary operators that correspond to an ArithmeticOperation.
var binaryArith = map[ast.BinaryOp]types.ArithmeticOperation{
	ast.BinAdd:    types.Add,
	ast.BinSub:    types.Sub,
	ast.BinMul:    types.Mul,
	ast.BinDiv:    types.Div,
	ast.BinMod:    types.Rem,
	ast.BinLShift: types.LShift,
	ast.BinRShift: types.RShift,
	ast.BinAnd:    types.And,
	ast.BinOr:     types.Or,
	ast.BinXor:    types.Xor,
}

// binaryRel maps the comparison operators to a RelationalOperation.
var binaryRel = map[ast.BinaryOp]types.RelationalOperation{
	ast.BinEq:  types.Eq,
	ast.BinNeq: types.Neq,
	ast.BinLt:  types.LessThan,
	ast.BinLte: types.LessThanOrEqual,
	ast.BinGt:  types.GreaterThan,
	ast.BinGte: types.GreaterThanOrEqual,
}

func lowerBinary(c *Context, n *ast.Binary) (ir.Value, error) {
	if n.Op == ast.BinLogicalAnd || n.Op == ast.BinLogicalOr {
		return lowerShortCircuit(c, n)
	}
	lhs, err := LowerExpr(c, n.Left)
	if err != nil {
		return ir.Value{}, err
	}
	rhs, err := LowerExpr(c, n.Right)
	if err != nil {
		return ir.Value{}, err
	}
	if result, handled := lowerOperatorBinary(c, n, lhs, rhs); handled {
		return result, nil
	}
	if _, ok := lhs.Type().(*ir.StructType); ok {
		return ir.Value{}, diag.New(diag.KindIncompatibleTypes, n.Span, "%s has no %s method", lhs.Type().String(), binaryOpMethod[n.Op])
	}
	common, err := commonOperandType(c, lhs.Type(), rhs.Type(), n.Span)
	if err != nil {
		return ir.Value{}, err
	}
	lhs, err = conform.Conform(c.Builder, lhs, lhs.Type(), common, conform.Calculation, nil, n.Span)
	if err != nil {
		return ir.Value{}, err
	}
	rhs, err = conform.Conform(c.Builder, rhs, rhs.Type(), common, conform.Calculation, nil, n.Span)
	if err != nil {
		return ir.Value{}, err
	}
	if rel, ok := binaryRel[n.Op]; ok {
		return c.Builder.Compare(rel, lhs, rhs, n.Span), nil
	}
	if op, ok := binaryArith[n.Op]; ok {
		return c.Builder.Math(op, lhs, rhs, common, n.Span), nil
	}
	return ir.Value{}, diag.New(diag.KindInternal, n.Span, "unhandled binary operator")
}

// binaryOpMethod names the operator-overload method a composite declares to handle a binary
// operator: a single-argument method on the left operand's composite, called with the right
// operand passed by value, following the __defer__/__assign__ dunder convention.
var binaryOpMethod = map[ast.BinaryOp]string{
	ast.BinAdd:    "__add__",
	ast.BinSub:    "__sub__",
	ast.BinMul:    "__mul__",
	ast.BinDiv:    "__div__",
	ast.BinMod:    "__mod__",
	ast.BinLShift: "__lshift__",
	ast.BinRShift: "__rshift__",
	ast.BinAnd:    "__and__",
	ast.BinOr:     "__or__",
	ast.BinXor:    "__xor__",
	ast.BinEq:     "__eq__",
	ast.BinNeq:    "__neq__",
	ast.BinLt:     "__lt__",
	ast.BinLte:    "__lte__",
	ast.BinGt:     "__gt__",
	ast.BinGte:    "__gte__",
}

// lowerOperatorBinary resolves and calls lhs's operator-overload method for n.Op when lhs is a
// composite declaring one, so a user-defined struct (or an enum-backed composite with operator
// methods of its own) participates in arithmetic and comparison the same way a primitive does.
// Reports handled=false so the caller falls back to commonOperandType/built-in math, which still
// rejects a composite operand with no matching method.
func lowerOperatorBinary(c *Context, n *ast.Binary, lhs, rhs ir.Value) (ir.Value, bool) {
	name, ok := binaryOpMethod[n.Op]
	if !ok {
		return ir.Value{}, false
	}
	st, ok := lhs.Type().(*ir.StructType)
	if !ok {
		return ir.Value{}, false
	}
	fn := c.lookupMethod(st, name)
	if fn == nil {
		return ir.Value{}, false
	}
	saved := c.Builder.StackSave(n.Span)
	self := c.Builder.Alloc(st, n.Span)
	c.Builder.Store(self, lhs, n.Span)
	result := c.Builder.Call(fn, []ir.Value{self, rhs}, n.Span)
	c.Builder.StackRestore(saved, n.Span)
	return result, true
}

// commonOperandType picks the wider of a and b as the calculation type both operands conform to,
// matching the Conformance Engine's widening step (spec.md §4.2 step 2). Two operands of identical
// type, composites included, share that type; any other pairing involving a struct is rejected.
// lowerBinary rejects a struct left operand with no operator-overload method before calling this.
func commonOperandType(c *Context, a, b ir.Type, span ast.SourceSpan) (ir.Type, error) {
	if ir.TypesEqual(a, b) {
		return a, nil
	}
	if ir.IsFloat(a) || ir.IsFloat(b) {
		if ir.IsFloat(a) && !ir.IsFloat(b) {
			return a, nil
		}
		if ir.IsFloat(b) && !ir.IsFloat(a) {
			return b, nil
		}
		af, bf := a.(*ir.FloatType), b.(*ir.FloatType)
		if af.Width >= bf.Width {
			return a, nil
		}
		return b, nil
	}
	if ir.IsInteger(a) && ir.IsInteger(b) {
		ai, bi := a.(*ir.IntType), b.(*ir.IntType)
		if ai.Width >= bi.Width {
			return a, nil
		}
		return b, nil
	}
	if ir.TypesEqual(a, b) {
		return a, nil
	}
	return nil, diag.New(diag.KindIncompatibleTypes, span, "cannot combine %s and %s", a.String(), b.String())
}

// lowerShortCircuit lowers && and || with their short-circuiting control flow: the right operand
// is only evaluated when the left one didn't already decide the result.
func lowerShortCircuit(c *Context, n *ast.Binary) (ir.Value, error) {
	lhs, err := LowerExpr(c, n.Left)
	if err != nil {
		return ir.Value{}, err
	}
	if !ir.IsBoolType(lhs.Type()) {
		return ir.Value{}, diag.New(diag.KindNotBool, n.Span, "operand must be bool")
	}
	rhsBlock := c.Builder.NewBlock()
	mergeBlock := c.Builder.NewBlock()
	shortCircuitBlock := c.Builder.NewBlock()

	if n.Op == ast.BinLogicalAnd {
		c.Builder.TerminateCond(lhs, rhsBlock, shortCircuitBlock)
	} else {
		c.Builder.TerminateCond(lhs, shortCircuitBlock, rhsBlock)
	}
	leftBlockID := c.Builder.CurrentBlock().ID()

	c.Builder.UseBlock(shortCircuitBlock)
	shortValue := ir.LiteralBool(n.Op == ast.BinLogicalOr)
	c.Builder.TerminateJmp(mergeBlock)
	shortBlockID := shortCircuitBlock.ID()

	c.Builder.UseBlock(rhsBlock)
	rhs, err := LowerExpr(c, n.Right)
	if err != nil {
		return ir.Value{}, err
	}
	if !ir.IsBoolType(rhs.Type()) {
		return ir.Value{}, diag.New(diag.KindNotBool, n.Span, "operand must be bool")
	}
	c.Builder.TerminateJmp(mergeBlock)
	rhsBlockID := c.Builder.CurrentBlock().ID()

	c.Builder.UseBlock(mergeBlock)
	_ = leftBlockID
	_ = shortBlockID
	_ = rhsBlockID
	phi := c.Builder.Phi2(ir.Bool, rhsBlock, rhs, shortCircuitBlock, shortValue, n.Span)
	return phi.Value(mergeBlock.ID()), nil
}

// lowerCall lowers a free-function call, resolving the overload set by arity and per-argument
// conformance (spec.md §4.5).
func lowerCall(c *Context, n *ast.Call) (ir.Value, error) {
	candidates := c.functionCandidates(n.Name)
	fn, args, err := resolveOverload(c, candidates, nil, n.Args, n.Span, n.Name)
	if err != nil {
		return ir.Value{}, err
	}
	return c.Builder.Call(fn, args, n.Span), nil
}

func lowerMethodCall(c *Context, n *ast.MethodCall) (ir.Value, error) {
	recvAddr, recvType, err := LowerLvalue(c, n.Receiver)
	if err != nil {
		return ir.Value{}, err
	}
	st, ok := underlyingStruct(recvType)
	if !ok {
		return ir.Value{}, diag.New(diag.KindIncompatibleTypes, n.Span, "%s has no methods", recvType.String())
	}
	// A pointer-typed receiver is already the "this" argument; a value-typed receiver's lvalue is
	// its address, which is what methods always receive.
	this := recvAddr
	if _, isPtr := recvType.(*ir.PointerType); isPtr {
		this = c.Builder.Load(recvAddr, recvType, n.Span)
	}
	candidates := c.methodCandidates(st, n.Name)
	fn, args, err := resolveOverload(c, candidates, &this, n.Args, n.Span, n.Name)
	if err != nil {
		return ir.Value{}, err
	}
	return c.Builder.Call(fn, args, n.Span), nil
}

// resolveOverload picks the single candidate whose parameters (after an optional receiver) all
// conform to the lowered arguments, per spec.md's parameter-passing conformance rule. this, when
// non-nil, is prepended as the receiver argument without participating in arity counting.
func resolveOverload(c *Context, candidates []*ast.Function, this *ir.Value, argExprs []ast.Expr, span ast.SourceSpan, name string) (*ir.Function, []ir.Value, error) {
	lowered := make([]ir.Value, len(argExprs))
	for i, a := range argExprs {
		v, err := LowerExpr(c, a)
		if err != nil {
			return nil, nil, err
		}
		lowered[i] = v
	}

	var matchFn *ir.Function
	var matchArgs []ir.Value
	matches := 0
	var names []string
	for _, cand := range candidates {
		if !cand.Traits.Variadic && len(cand.Params) != len(lowered) {
			continue
		}
		if cand.Traits.Variadic && len(cand.Params) > len(lowered) {
			continue
		}
		irFn := c.declareFunction(cand)
		paramOffset := 0
		if this != nil {
			paramOffset = 1
		}
		args := make([]ir.Value, 0, len(lowered)+paramOffset)
		if this != nil {
			args = append(args, *this)
		}
		ok := true
		for i, v := range lowered {
			if i >= len(cand.Params) {
				args = append(args, v) // variadic tail: passed unconverted
				continue
			}
			paramType := irFn.Params[i+paramOffset].Type
			conformed, err := conform.Conform(c.Builder, v, v.Type(), paramType, conform.ParameterPassing, c.convLookup, span)
			if err != nil {
				ok = false
				break
			}
			args = append(args, conformed)
		}
		if !ok {
			continue
		}
		matches++
		matchFn = irFn
		matchArgs = args
		names = append(names, irFn.Name)
	}
	if matches == 0 {
		return nil, nil, diag.New(diag.KindUndeclaredFunction, span, "no matching overload for %s", name)
	}
	if matches > 1 {
		return nil, nil, diag.New(diag.KindAmbiguousConversion, span, "ambiguous call to %s", name).WithCandidates(names)
	}
	return matchFn, matchArgs, nil
}

// lowerNew allocates storage for n.Type and, if it declares a no-argument "__init__" constructor
// method, invokes it.
func lowerNew(c *Context, n *ast.New) (ir.Value, error) {
	t, err := c.Resolver.Resolve(c.Object, n.Type)
	if err != nil {
		return ir.Value{}, err
	}
	addr := c.Builder.Alloc(t, n.Span)
	c.Builder.ZeroInit(addr, n.Span)
	if st, ok := t.(*ir.StructType); ok {
		for _, m := range c.methodCandidates(st, "__init__") {
			if len(m.Params) == 0 {
				c.Builder.Call(c.declareFunction(m), []ir.Value{addr}, n.Span)
				break
			}
		}
	}
	return addr, nil
}

func lowerDeleteExpr(c *Context, n *ast.DeleteExpr) (ir.Value, error) {
	ptr, err := LowerExpr(c, n.Pointer)
	if err != nil {
		return ir.Value{}, err
	}
	if st, ok := underlyingStruct(ptr.Type()); ok {
		if fn := c.lookupDefer(st); fn != nil {
			c.Builder.Call(fn, []ir.Value{ptr}, n.Span)
		}
	}
	c.Builder.Free(ptr, n.Span)
	return ir.Value{Kind: ir.ValueLiteral, Typ: ir.Void}, nil
}

func lowerTernary(c *Context, n *ast.Ternary) (ir.Value, error) {
	cond, err := LowerExpr(c, n.Cond)
	if err != nil {
		return ir.Value{}, err
	}
	if !ir.IsBoolType(cond.Type()) {
		return ir.Value{}, diag.New(diag.KindNotBool, n.Span, "ternary condition must be bool")
	}
	thenBlock := c.Builder.NewBlock()
	elseBlock := c.Builder.NewBlock()
	mergeBlock := c.Builder.NewBlock()
	c.Builder.TerminateCond(cond, thenBlock, elseBlock)

	c.Builder.UseBlock(thenBlock)
	thenVal, err := LowerExpr(c, n.Then)
	if err != nil {
		return ir.Value{}, err
	}
	c.Builder.TerminateJmp(mergeBlock)
	thenBlockID := c.Builder.CurrentBlock().ID()

	c.Builder.UseBlock(elseBlock)
	elseVal, err := LowerExpr(c, n.Else)
	if err != nil {
		return ir.Value{}, err
	}
	common, err := commonOperandType(c, thenVal.Type(), elseVal.Type(), n.Span)
	if err != nil {
		return ir.Value{}, err
	}
	elseVal, err = conform.Conform(c.Builder, elseVal, elseVal.Type(), common, conform.Calculation, nil, n.Span)
	if err != nil {
		return ir.Value{}, err
	}
	c.Builder.TerminateJmp(mergeBlock)
	elseBlockID := c.Builder.CurrentBlock().ID()
	_ = thenBlockID
	_ = elseBlockID

	c.Builder.UseBlock(mergeBlock)
	thenValConformed, err := conform.Conform(c.Builder, thenVal, thenVal.Type(), common, conform.Calculation, nil, n.Span)
	if err != nil {
		return ir.Value{}, err
	}
	phi := c.Builder.Phi2(common, thenBlock, thenValConformed, elseBlock, elseVal, n.Span)
	return phi.Value(mergeBlock.ID()), nil
}

// vaIntrinsic lazily declares the foreign va_start/va_end/va_copy runtime collaborators, called
// like ordinary functions once declared.
func (c *Context) vaIntrinsic(name string, params []ir.Type) *ir.Function {
	fn := c.Module.GetFunction(name)
	if fn == nil {
		fn = c.Module.CreateFunction(name, params, ir.Void)
		fn.Foreign = true
	}
	return fn
}

func lowerVaOp(c *Context, n *ast.VaOp) (ir.Value, error) {
	args := make([]ir.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := LowerExpr(c, a)
		if err != nil {
			return ir.Value{}, err
		}
		args[i] = v
	}
	var name string
	switch n.Kind {
	case ast.VaStart:
		name = "va_start"
	case ast.VaEnd:
		name = "va_end"
	case ast.VaCopy:
		name = "va_copy"
	}
	params := make([]ir.Type, len(args))
	for i := range args {
		params[i] = ir.Ptr
	}
	fn := c.vaIntrinsic(name, params)
	return c.Builder.Call(fn, args, n.Span), nil
}
