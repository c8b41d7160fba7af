// Package destruct implements the Deferred-Destructor Protocol (C8): __defer__ dispatch on scope
// exit, POD/STATIC/REFERENCE exemptions, module-wide deinit ordering, and PASS/DEFER autogen.
package destruct

import (
	"vslc/src/ast"
	"vslc/src/bridge"
	"vslc/src/ir"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// MethodLookup resolves the `__defer__(this *T)` method for an IR struct type, returning nil if T
// declares none. Supplied by the caller (expression/statement lowering), since method resolution
// belongs to the overload-resolution machinery, not to this package.
type MethodLookup func(t *ir.StructType) *ir.Function

// Context bundles the pieces RunScopeExit/DispatchOnRvalue/Autogen need, avoiding a dependency
// from this package back onto the lowering package that calls into it.
type Context struct {
	Builder   *ir.Builder
	LookupDefer MethodLookup
	LookupAssign func(t *ir.StructType) *ir.Function // __assign__/__copy_assign__, for Autogen's pass side
	Span      ast.SourceSpan
}

// ---------------------
// ----- Functions -----
// ---------------------

// RunScopeExit dispatches __defer__ for every non-POD, non-REFERENCE variable in sc, in reverse
// declaration order (data model invariant 5 and spec.md §4.7). STATIC variables are exempted here
// and instead appended once to the module's deinit function (see RegisterStatic).
func RunScopeExit(c *Context, sc *bridge.Scope) error {
	for _, v := range sc.ReverseVariables() {
		if v.Traits.POD || v.Traits.Reference || v.Traits.Static {
			continue
		}
		st, ok := v.IRType.(*ir.StructType)
		if !ok {
			continue
		}
		fn := c.LookupDefer(st)
		if fn == nil {
			continue
		}
		addr := ir.Value{Kind: ir.ValueLocalVariable, Typ: &ir.PointerType{Elem: v.IRType}, SlotIndex: v.Slot.Index, VarName: v.Name}
		c.Builder.Call(fn, []ir.Value{addr}, c.Span)
	}
	return nil
}

// RegisterStatic appends one static variable's __defer__ call to the module's deinit function
// (spec.md: "STATIC variables are not destructed at scope exit; they are appended to a
// module-wide deinit function emitted at program exit"), in declaration order.
func RegisterStatic(c *Context, deinit *ir.Function, name string, t ir.Type) {
	st, ok := t.(*ir.StructType)
	if !ok {
		return
	}
	fn := c.LookupDefer(st)
	if fn == nil {
		return
	}
	deinitBuilder := ir.NewBuilder(c.Builder.Module)
	deinitBuilder.UseFunction(deinit)
	blocks := deinit.Blocks()
	if len(blocks) == 0 {
		deinitBuilder.UseBlock(deinitBuilder.NewBlock())
	} else {
		deinitBuilder.UseBlock(blocks[len(blocks)-1])
	}
	addr := ir.Value{Kind: ir.ValueStaticVariable, Typ: &ir.PointerType{Elem: t}, VarName: name}
	deinitBuilder.Call(fn, []ir.Value{addr}, c.Span)
}

// DispatchOnRvalue runs the stack-save/alloc/store/__defer__/stack-restore trick documented as the
// canonical pattern for taking the address of an rvalue for destructor dispatch (spec.md Design
// Notes, third open question): used both for call-like statements whose discarded result is a
// non-POD declared type, and for each-in's end-of-loop cleanup of a non-mutable iterable.
func DispatchOnRvalue(c *Context, v ir.Value, t ir.Type, span ast.SourceSpan) {
	st, ok := t.(*ir.StructType)
	if !ok {
		return
	}
	fn := c.LookupDefer(st)
	if fn == nil {
		return
	}
	saved := c.Builder.StackSave(span)
	addr := c.Builder.Alloc(t, span)
	c.Builder.Store(addr, v, span)
	c.Builder.Call(fn, []ir.Value{addr}, span)
	c.Builder.StackRestore(saved, span)
}

// Autogen synthesizes a PASS or DEFER trait function's body: recurse into the receiver
// composite's fields, forwarding a pass (copy) call to each composite field in declaration order,
// or a defer (destructor) call to each composite field in reverse declaration order, per spec.md
// §4.7. Fields whose composite declares no such method are skipped.
func Autogen(c *Context, fn *ast.Function, receiver *ir.StructType, self ir.Value) error {
	if fn.Traits.Pass {
		for _, f := range receiver.Fields {
			st, ok := f.Type.(*ir.StructType)
			if !ok {
				continue
			}
			assignFn := c.LookupAssign(st)
			if assignFn == nil {
				continue
			}
			fieldAddr := ir.Value{Kind: ir.ValueLocalVariable, Typ: &ir.PointerType{Elem: f.Type}, VarName: self.VarName + "." + f.Name}
			c.Builder.Call(assignFn, []ir.Value{fieldAddr}, c.Span)
		}
	}
	if fn.Traits.Defer {
		for i := len(receiver.Fields) - 1; i >= 0; i-- {
			f := receiver.Fields[i]
			st, ok := f.Type.(*ir.StructType)
			if !ok {
				continue
			}
			deferFn := c.LookupDefer(st)
			if deferFn == nil {
				continue
			}
			fieldAddr := ir.Value{Kind: ir.ValueLocalVariable, Typ: &ir.PointerType{Elem: f.Type}, VarName: self.VarName + "." + f.Name}
			c.Builder.Call(deferFn, []ir.Value{fieldAddr}, c.Span)
		}
	}
	return nil
}
