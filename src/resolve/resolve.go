// Package resolve implements the Type Resolver (C2): it maps AST types to IR types, interns them,
// and resolves named composites/enums through namespaces.
package resolve

import (
	"vslc/src/ast"
	"vslc/src/diag"
	"vslc/src/ir"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// primitives maps the source language's primitive base-type spellings to their canonical IR
// types. Extending the surface language's primitive set only ever touches this table.
var primitives = map[string]ir.Type{
	"bool":  ir.Bool,
	"s8":    ir.S8,
	"s16":   ir.S16,
	"s32":   ir.S32,
	"s64":   ir.S64,
	"int":   ir.S32,
	"u8":    ir.U8,
	"u16":   ir.U16,
	"u32":   ir.U32,
	"u64":   ir.U64,
	"usize": ir.Usize,
	"float": ir.F32,
	"f32":   ir.F32,
	"f64":   ir.F64,
	"ptr":   ir.Ptr,
}

// Resolver resolves AST types against a fixed universe of Objects (the compile set), so namespace
// lookups can cross translation-unit boundaries the way spec.md's "global namespace" fallback
// requires.
type Resolver struct {
	Module  *ir.Module
	Objects []*ast.Object

	// substitution, when non-nil, maps a polymorph-variable name to its IR type during a
	// polymorphic composite instantiation (hygienic: it never escapes one instantiate call).
	substitution map[string]ir.Type
}

// NewResolver returns a Resolver backed by m, resolving composite/enum names across objects.
func NewResolver(m *ir.Module, objects []*ast.Object) *Resolver {
	return &Resolver{Module: m, Objects: objects}
}

// ---------------------
// ----- Functions -----
// ---------------------

// Resolve maps an AST type to its IR type in the context of obj (whose current namespace and
// using-list govern composite/enum lookup).
func (r *Resolver) Resolve(obj *ast.Object, t ast.Type) (ir.Type, error) {
	if len(t.Elements) == 0 {
		return nil, diag.New(diag.KindUnknownType, ast.SourceSpan{}, "empty type")
	}
	return r.resolveElement(obj, t.Head(), t.Tail())
}

func (r *Resolver) resolveElement(obj *ast.Object, head ast.TypeElement, rest ast.Type) (ir.Type, error) {
	switch head.Kind {
	case ast.ElemBase:
		return r.resolveBase(obj, head)
	case ast.ElemPointer:
		elem, err := r.Resolve(obj, rest)
		if err != nil {
			return nil, err
		}
		return &ir.PointerType{Elem: elem}, nil
	case ast.ElemFixedArray:
		if head.Length < 0 {
			return nil, diag.New(diag.KindUnknownType, ast.SourceSpan{}, "fixed array length must be a non-negative constant")
		}
		elem, err := r.Resolve(obj, rest)
		if err != nil {
			return nil, err
		}
		return &ir.FixedArrayType{Elem: elem, Length: head.Length}, nil
	case ast.ElemGenericBase:
		return r.instantiate(obj, head)
	case ast.ElemFuncPointer:
		params := make([]ir.Type, len(head.Params))
		for i, p := range head.Params {
			pt, err := r.Resolve(obj, p)
			if err != nil {
				return nil, err
			}
			params[i] = pt
		}
		var ret ir.Type = ir.Void
		if head.Ret != nil {
			rt, err := r.Resolve(obj, *head.Ret)
			if err != nil {
				return nil, err
			}
			ret = rt
		}
		return &ir.FuncPointerType{Params: params, Ret: ret}, nil
	case ast.ElemPolymorphVar:
		if r.substitution != nil {
			if t, ok := r.substitution[head.Name]; ok {
				return t, nil
			}
		}
		return nil, diag.New(diag.KindUnknownType, ast.SourceSpan{}, "unresolved polymorph variable %s", head.Name)
	default:
		return nil, diag.New(diag.KindUnknownType, ast.SourceSpan{}, "unknown type element kind")
	}
}

// resolveBase looks up a base type name: primitive table first, then composite/enum lookup
// through the namespace chain (current namespace, each using-namespace in order, global
// namespace).
func (r *Resolver) resolveBase(obj *ast.Object, head ast.TypeElement) (ir.Type, error) {
	if t, ok := primitives[head.Name]; ok {
		return t, nil
	}
	if c, ns := r.lookupComposite(obj, head.Name); c != nil {
		return r.structType(ns, c, nil)
	}
	if e, _ := r.lookupEnum(obj, head.Name); e != nil {
		return ir.S32, nil // enums lower to their canonical underlying integer kind.
	}
	return nil, diag.New(diag.KindUnknownType, ast.SourceSpan{}, "unknown type %s", head.Name)
}

// lookupComposite searches obj's current namespace, then each using namespace in declaration
// order, then the global namespace, returning the first hit.
func (r *Resolver) lookupComposite(obj *ast.Object, name string) (*ast.Composite, string) {
	for _, ns := range r.searchOrder(obj) {
		for _, o := range r.Objects {
			if o.Namespace != ns {
				continue
			}
			if c := o.FindComposite(name); c != nil {
				return c, ns
			}
		}
	}
	return nil, ""
}

// lookupEnum mirrors lookupComposite for AST enums.
func (r *Resolver) lookupEnum(obj *ast.Object, name string) (*ast.Enum, string) {
	for _, ns := range r.searchOrder(obj) {
		for _, o := range r.Objects {
			if o.Namespace != ns {
				continue
			}
			if e := o.FindEnum(name); e != nil {
				return e, ns
			}
		}
	}
	return nil, ""
}

// LookupEnum exposes lookupEnum for callers outside the package (e.g. switch exhaustiveness).
func (r *Resolver) LookupEnum(obj *ast.Object, name string) *ast.Enum {
	e, _ := r.lookupEnum(obj, name)
	return e
}

// searchOrder returns the namespace search chain: current, then using namespaces in declaration
// order, then the global ("") namespace unless the current namespace is already global. Using
// entries are taken as listed, so a repeated or current namespace in them appears again.
func (r *Resolver) searchOrder(obj *ast.Object) []string {
	order := []string{obj.Namespace}
	for _, u := range obj.Using {
		order = append(order, u)
	}
	if obj.Namespace != "" {
		order = append(order, "")
	}
	return order
}

// structType resolves a (possibly already-instantiated) composite's IR shape, interning it in the
// module by a structural key.
func (r *Resolver) structType(ns string, c *ast.Composite, args []ir.Type) (*ir.StructType, error) {
	key := ir.Mangle(splitNamespace(ns), c.Name)
	for _, a := range args {
		key += "<" + a.String() + ">"
	}
	var resolveErr error
	st := r.Module.InternStruct(key, func() *ir.StructType {
		fields := make([]ir.StructField, len(c.Fields))
		for i, f := range c.Fields {
			ft, err := r.Resolve(&ast.Object{Namespace: ns}, f.Type)
			if err != nil {
				resolveErr = err
				continue
			}
			fields[i] = ir.StructField{Name: f.Name, Type: ft}
		}
		return &ir.StructType{Name: ir.Mangle(splitNamespace(ns), c.Name), Fields: fields, Args: args}
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return st, nil
}

// instantiate resolves a generic-base type element by substituting the composite's polymorph
// variables with the element's type arguments, hygienically (the substitution table is scoped to
// this call and never leaks into nested Resolve calls for unrelated types).
func (r *Resolver) instantiate(obj *ast.Object, head ast.TypeElement) (ir.Type, error) {
	c, ns := r.lookupComposite(obj, head.Name)
	if c == nil {
		return nil, diag.New(diag.KindUnknownType, ast.SourceSpan{}, "unknown generic composite %s", head.Name)
	}
	if len(head.Args) != len(c.PolymorphVars) {
		return nil, diag.New(diag.KindUnknownType, ast.SourceSpan{}, "composite %s expects %d type arguments, got %d", c.Name, len(c.PolymorphVars), len(head.Args))
	}
	args := make([]ir.Type, len(head.Args))
	for i, a := range head.Args {
		at, err := r.Resolve(obj, a)
		if err != nil {
			return nil, err
		}
		args[i] = at
	}

	saved := r.substitution
	sub := make(map[string]ir.Type, len(c.PolymorphVars))
	for i, v := range c.PolymorphVars {
		sub[v] = args[i]
	}
	r.substitution = sub
	defer func() { r.substitution = saved }()

	return r.structType(ns, c, args)
}

func splitNamespace(ns string) []string {
	if ns == "" {
		return nil
	}
	return []string{ns}
}
