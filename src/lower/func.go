package lower

import (
	"vslc/src/ast"
	"vslc/src/bridge"
	"vslc/src/destruct"
	"vslc/src/ir"
)

// ---------------------
// ----- Functions -----
// ---------------------

// LowerObject lowers every function declared directly in obj into c.Module, in two passes: first
// every header is declared (so mutually recursive calls resolve), then every body is lowered.
func LowerObject(c *Context) error {
	for _, fn := range c.Object.Functions {
		c.declareFunction(fn)
	}
	for _, comp := range c.Object.Composites {
		for _, m := range comp.Methods {
			c.declareFunction(m)
		}
	}
	for _, fn := range c.Object.Functions {
		if fn.Traits.Foreign {
			continue
		}
		if err := LowerFunction(c, fn); err != nil {
			return err
		}
	}
	for _, comp := range c.Object.Composites {
		for _, m := range comp.Methods {
			if m.Traits.Foreign {
				continue
			}
			if err := lowerMethodBody(c, comp, m); err != nil {
				return err
			}
		}
	}
	return nil
}

// LowerFunction lowers one free function's body: it opens the entry scope, binds parameters, runs
// the body, and closes out with an implicit void return if control falls off the end.
func LowerFunction(c *Context, fn *ast.Function) error {
	irFn := c.declareFunction(fn)
	return lowerBody(c, fn, irFn, nil, "")
}

// lowerMethodBody lowers a method body with its receiver bound as "this" in the entry scope. A
// method with the Autogen trait gets its body synthesized by destruct.Autogen (which acts on the
// method's Pass/Defer traits) instead of lowering a (likely absent) user body.
func lowerMethodBody(c *Context, comp *ast.Composite, fn *ast.Function) error {
	irFn := c.declareFunction(fn)
	if fn.Traits.Autogen {
		return lowerAutogenBody(c, comp, fn, irFn)
	}
	return lowerBody(c, fn, irFn, fn.This, "this")
}

func lowerAutogenBody(c *Context, comp *ast.Composite, fn *ast.Function, irFn *ir.Function) error {
	block := irFn.CreateBlock()
	b := c.Builder
	b.UseFunction(irFn)
	b.UseBlock(block)

	recvType, err := c.Resolver.Resolve(c.Object, *fn.This)
	if err != nil {
		return err
	}
	st, ok := recvType.(*ir.StructType)
	if !ok {
		b.TerminateReturn(nil)
		return nil
	}
	self := ir.Value{Kind: ir.ValueLocalVariable, Typ: &ir.PointerType{Elem: st}, SlotIndex: 0, VarName: "this"}
	destructCtx := &destruct.Context{Builder: b, LookupDefer: c.lookupDefer, LookupAssign: c.lookupAssign, Span: fn.Span}
	if err := destruct.Autogen(destructCtx, fn, st, self); err != nil {
		return err
	}
	b.TerminateReturn(nil)
	return nil
}

// lowerBody is the common body-lowering path shared by free functions and methods. receiverType,
// when non-nil, binds receiverName as the function's implicit first parameter.
func lowerBody(c *Context, fn *ast.Function, irFn *ir.Function, receiverType *ast.Type, receiverName string) error {
	savedFn, savedReturn, savedMain := c.Func, c.ReturnType, c.InMain
	savedBridge := c.Bridge
	c.Func = fn
	c.IRFunc = irFn
	c.InMain = fn.Traits.Main
	c.Bridge = bridge.NewStack()
	defer func() {
		c.Func, c.ReturnType, c.InMain = savedFn, savedReturn, savedMain
		c.Bridge = savedBridge
	}()

	if len(fn.Return.Elements) > 0 {
		rt, err := c.Resolver.Resolve(c.Object, fn.Return)
		if err != nil {
			return err
		}
		c.ReturnType = rt
	} else {
		c.ReturnType = ir.Void
	}

	block := irFn.CreateBlock()
	c.Builder.UseFunction(irFn)
	c.Builder.UseBlock(block)

	root := c.Bridge.Open()
	if receiverType != nil {
		rt, err := c.Resolver.Resolve(c.Object, *receiverType)
		if err != nil {
			return err
		}
		ptrType := &ir.PointerType{Elem: rt}
		slot := irFn.AddParam(receiverName, ptrType)
		root.Add(receiverName, *receiverType, ptrType, slot, bridge.Traits{POD: true})
	}
	for _, p := range fn.Params {
		pt, err := c.Resolver.Resolve(c.Object, p.Type)
		if err != nil {
			return err
		}
		slot := irFn.AddParam(p.Name, pt)
		root.Add(p.Name, p.Type, pt, slot, bridge.Traits{})
	}

	terminated, err := LowerStmts(c, fn.Body)
	if err != nil {
		c.Bridge.Close(root)
		return err
	}
	if !terminated {
		if err := destruct.RunScopeExit(c.Destruct, root); err != nil {
			c.Bridge.Close(root)
			return err
		}
		if fn.Traits.Main {
			c.Builder.Call(c.Module.Deinit, nil, fn.Span)
		}
		c.Builder.TerminateReturn(nil)
	}
	c.Bridge.Close(root)
	c.Builder.ResolvePhis()
	return nil
}
