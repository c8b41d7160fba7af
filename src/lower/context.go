// Package lower implements Expression Lowering (C6) and Statement Lowering (C7): the walk that
// turns AST expressions and statements into IR values and control flow.
package lower

import (
	"vslc/src/ast"
	"vslc/src/bridge"
	"vslc/src/destruct"
	"vslc/src/diag"
	"vslc/src/ir"
	"vslc/src/ir/lir/types"
	"vslc/src/resolve"
	"vslc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// FuncEntry binds an ast.Function to its lowered ir.Function, once declared.
type FuncEntry struct {
	AST *ast.Function
	IR  *ir.Function
}

// Context threads every service C6/C7 consume through one function lowering: the IR builder
// (C5), the type resolver (C2), the bridge scope stack (C4), and lookup tables for overload
// resolution built once per compile set.
type Context struct {
	Module   *ir.Module
	Builder  *ir.Builder
	Resolver *resolve.Resolver
	Bridge   *bridge.Stack
	Object   *ast.Object
	Func     *ast.Function
	IRFunc   *ir.Function
	Reporter diag.Reporter
	Options  util.Options

	ReturnType ir.Type
	InMain     bool

	Functions  map[string]*FuncEntry
	Composites map[string]*ast.Composite // keyed by mangled name, for method/defer/assign lookup
	Enums      map[string]*ast.Enum

	Destruct *destruct.Context

	// Statics records every static-variable declaration lowered so far. RegisterStatic and main's
	// deinit call do not read it.
	Statics []StaticVar
}

// StaticVar is one lowered static-variable declaration.
type StaticVar struct {
	Name string
	Type ir.Type
}

// ---------------------
// ----- Functions -----
// ---------------------

// NewContext builds a Context for lowering obj's functions into mod.
func NewContext(mod *ir.Module, objects []*ast.Object, obj *ast.Object, reporter diag.Reporter, opt util.Options) *Context {
	r := resolve.NewResolver(mod, objects)
	b := ir.NewBuilder(mod)
	c := &Context{
		Module:     mod,
		Builder:    b,
		Resolver:   r,
		Bridge:     bridge.NewStack(),
		Object:     obj,
		Reporter:   reporter,
		Options:    opt,
		Functions:  make(map[string]*FuncEntry),
		Composites: make(map[string]*ast.Composite),
		Enums:      make(map[string]*ast.Enum),
	}
	for _, o := range objects {
		for _, comp := range o.Composites {
			c.Composites[ir.Mangle(nsList(o.Namespace), comp.Name)] = comp
		}
		for _, e := range o.Enums {
			c.Enums[ir.Mangle(nsList(o.Namespace), e.Name)] = e
		}
	}
	c.Destruct = &destruct.Context{
		Builder:      b,
		LookupDefer:  c.lookupDefer,
		LookupAssign: c.lookupAssign,
	}
	return c
}

func nsList(ns string) []string {
	if ns == "" {
		return nil
	}
	return []string{ns}
}

// lookupDefer resolves the __defer__ method of a struct type by its method list.
func (c *Context) lookupDefer(t *ir.StructType) *ir.Function {
	return c.lookupMethod(t, "__defer__")
}

// lookupAssign resolves the __assign__/__copy_assign__ method of a struct type.
func (c *Context) lookupAssign(t *ir.StructType) *ir.Function {
	if fn := c.lookupMethod(t, "__copy_assign__"); fn != nil {
		return fn
	}
	return c.lookupMethod(t, "__assign__")
}

// lookupMethod finds comp's method named name and returns its already-lowered (or lazily
// declared) IR function header. Overload resolution here is by name only: a composite declares at
// most one method per protocol name (__defer__, __assign__, __copy_assign__), which is a
// documented simplification of the full candidate-set overload resolution C6 applies to ordinary
// method calls (see methodCandidates below).
func (c *Context) lookupMethod(t *ir.StructType, name string) *ir.Function {
	comp, ok := c.Composites[t.Name]
	if !ok {
		return nil
	}
	for _, m := range comp.Methods {
		if m.Name == name {
			return c.declareFunction(m)
		}
	}
	return nil
}

// nullCheck emits, when c.Options.NullChecks is set, a guard that calls the foreign "abort"
// function (declared lazily, the same way declareFunction declares any other foreign header) if
// ptr is null, before control resumes. A no-op when the trait is off, so dereference sites pay
// nothing for it by default.
func (c *Context) nullCheck(ptr ir.Value, span ast.SourceSpan) {
	if !c.Options.NullChecks {
		return
	}
	abortFn := c.Module.GetFunction("abort")
	if abortFn == nil {
		abortFn = c.Module.CreateFunction("abort", nil, ir.Void)
		abortFn.Foreign = true
	}
	isNull := c.Builder.Compare(types.Eq, ptr, ir.Value{Kind: ir.ValueLiteral, Typ: ptr.Type()}, span)
	failBlock := c.Builder.NewBlock()
	okBlock := c.Builder.NewBlock()
	c.Builder.TerminateCond(isNull, failBlock, okBlock)
	c.Builder.UseBlock(failBlock)
	c.Builder.Call(abortFn, nil, span)
	c.Builder.TerminateJmp(okBlock)
	c.Builder.UseBlock(okBlock)
}

// convLookup implements conform.ConversionLookup over the composite method tables: a target
// composite's single-argument "__init__" constructor (the same protocol name lowerNew uses for
// its no-argument form) converts a primitive or other composite into it, and a source composite's
// "__convert__" method converts it into whatever its declared return type names. Both are
// candidate sets gathered the same way methodCandidates gathers ordinary overloads, so ambiguity
// between two same-shaped constructors/converters is reported rather than silently picked.
func (c *Context) convLookup(from, to ir.Type) (int, func(b *ir.Builder, v ir.Value) ir.Value) {
	var applies []func(b *ir.Builder, v ir.Value) ir.Value

	if toStruct, ok := to.(*ir.StructType); ok {
		for _, m := range c.methodCandidates(toStruct, "__init__") {
			if len(m.Params) != 1 {
				continue
			}
			pt, err := c.Resolver.Resolve(c.Object, m.Params[0].Type)
			if err != nil || !ir.TypesEqual(pt, from) {
				continue
			}
			fn := c.declareFunction(m)
			applies = append(applies, func(b *ir.Builder, v ir.Value) ir.Value {
				saved := b.StackSave(ast.SourceSpan{})
				self := b.Alloc(to, ast.SourceSpan{})
				b.Call(fn, []ir.Value{self, v}, ast.SourceSpan{})
				result := b.Load(self, to, ast.SourceSpan{})
				b.StackRestore(saved, ast.SourceSpan{})
				return result
			})
		}
	}

	if fromStruct, ok := from.(*ir.StructType); ok {
		for _, m := range c.methodCandidates(fromStruct, "__convert__") {
			if len(m.Params) != 0 {
				continue
			}
			rt, err := c.Resolver.Resolve(c.Object, m.Return)
			if err != nil || !ir.TypesEqual(rt, to) {
				continue
			}
			fn := c.declareFunction(m)
			applies = append(applies, func(b *ir.Builder, v ir.Value) ir.Value {
				saved := b.StackSave(ast.SourceSpan{})
				self := b.Alloc(from, ast.SourceSpan{})
				b.Store(self, v, ast.SourceSpan{})
				result := b.Call(fn, []ir.Value{self}, ast.SourceSpan{})
				b.StackRestore(saved, ast.SourceSpan{})
				return result
			})
		}
	}

	if len(applies) != 1 {
		return len(applies), nil
	}
	return 1, applies[0]
}

// declareFunction lazily declares (or returns the already-declared) ir.Function for fn.
func (c *Context) declareFunction(fn *ast.Function) *ir.Function {
	mangled := mangledFuncName(fn)
	if entry, ok := c.Functions[mangled]; ok {
		return entry.IR
	}
	params := make([]ir.Type, 0, len(fn.Params)+1)
	if fn.This != nil {
		t, err := c.Resolver.Resolve(c.Object, *fn.This)
		if err == nil {
			params = append(params, &ir.PointerType{Elem: t})
		}
	}
	for _, p := range fn.Params {
		t, err := c.Resolver.Resolve(c.Object, p.Type)
		if err != nil {
			continue
		}
		params = append(params, t)
	}
	var ret ir.Type = ir.Void
	if len(fn.Return.Elements) > 0 {
		if t, err := c.Resolver.Resolve(c.Object, fn.Return); err == nil {
			ret = t
		}
	}
	irFn := c.Module.GetFunction(mangled)
	if irFn == nil {
		irFn = c.Module.CreateFunction(mangled, params, ret)
	}
	irFn.Foreign = fn.Traits.Foreign
	irFn.Variadic = fn.Traits.Variadic
	c.Functions[mangled] = &FuncEntry{AST: fn, IR: irFn}
	return irFn
}

// mangledFuncName applies the name-mangling scheme to fn.
func mangledFuncName(fn *ast.Function) string {
	if fn.This != nil && len(fn.This.Elements) > 0 {
		return ir.MangleMethod(nsList(fn.Namespace), fn.This.Elements[0].Name, fn.Name)
	}
	return ir.Mangle(nsList(fn.Namespace), fn.Name)
}

// methodCandidates returns every method named name declared on receiverType's composite, the
// candidate set ordinary (non-protocol) method calls resolve against via the Conformance Engine
// per argument (spec.md §4.5 "Call / method call").
func (c *Context) methodCandidates(t *ir.StructType, name string) []*ast.Function {
	comp, ok := c.Composites[t.Name]
	if !ok {
		return nil
	}
	var out []*ast.Function
	for _, m := range comp.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// functionCandidates returns every free function named name visible from c.Object's namespace
// search order.
func (c *Context) functionCandidates(name string) []*ast.Function {
	var out []*ast.Function
	seen := map[string]bool{}
	order := append([]string{c.Object.Namespace}, c.Object.Using...)
	order = append(order, "")
	for _, ns := range order {
		if seen[ns] {
			continue
		}
		seen[ns] = true
		for _, o := range allObjectsInNamespace(c, ns) {
			if f := o.FindFunction(name); f != nil {
				out = append(out, f)
			}
		}
	}
	return out
}

func allObjectsInNamespace(c *Context, ns string) []*ast.Object {
	var out []*ast.Object
	for _, o := range c.Resolver.Objects {
		if o.Namespace == ns {
			out = append(out, o)
		}
	}
	return out
}
