// Package ir is the IR Module & Pool (C1) together with the IR Builder (C5): it owns IR types,
// values, instructions, basic blocks and functions, and the per-module allocation sequence that
// plays the role of the bump pool named in the data model.
//
// The type system here supersedes the flat types.DataType enum in vslc/src/ir/lir/types (kept for
// its ArithmeticOperation/RelationalOperation enums only): a lowering engine for value-semantic
// composites, pointers, fixed arrays and generics needs a structural type, not five primitive
// buckets, so Type is a small sum type (an interface with a closed set of implementations) per the
// re-architecture guidance on tagged unions.
package ir

import (
	"fmt"
	"strings"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Type is the IR's structural type. It is discriminated by the concrete Go type implementing it,
// not by an integer tag, per the sum-type re-architecture note.
type Type interface {
	String() string
	typeNode()
}

// IntType is a signed or unsigned integer of a fixed bit width (8, 16, 32 or 64) or the bool kind.
type IntType struct {
	Width  int
	Signed bool
	Bool   bool
}

func (*IntType) typeNode() {}

// String renders e.g. "s32", "u8" or "bool".
func (t *IntType) String() string {
	if t.Bool {
		return "bool"
	}
	if t.Signed {
		return fmt.Sprintf("s%d", t.Width)
	}
	return fmt.Sprintf("u%d", t.Width)
}

// FloatType is a 32 or 64 bit floating point type.
type FloatType struct {
	Width int
}

func (*FloatType) typeNode() {}
func (t *FloatType) String() string {
	return fmt.Sprintf("f%d", t.Width)
}

// PointerType is a pointer to another IR type.
type PointerType struct {
	Elem Type
}

func (*PointerType) typeNode() {}
func (t *PointerType) String() string {
	return "*" + t.Elem.String()
}

// FixedArrayType is an array of a known element type and constant length.
type FixedArrayType struct {
	Elem   Type
	Length int64
}

func (*FixedArrayType) typeNode() {}
func (t *FixedArrayType) String() string {
	return fmt.Sprintf("[%d]%s", t.Length, t.Elem.String())
}

// StructField is one named, typed field of a StructType.
type StructField struct {
	Name string
	Type Type
}

// StructType is an ordered-field composite, either a plain record or a generic instantiation
// (Args records the type arguments used to instantiate it, empty for non-generic composites).
type StructType struct {
	Name   string
	Fields []StructField
	Args   []Type
}

func (*StructType) typeNode() {}
func (t *StructType) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s<%s>", t.Name, strings.Join(parts, ", "))
}

// FuncPointerType is a pointer-to-function value type.
type FuncPointerType struct {
	Params []Type
	Ret    Type
}

func (*FuncPointerType) typeNode() {}
func (t *FuncPointerType) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	ret := "void"
	if t.Ret != nil {
		ret = t.Ret.String()
	}
	return fmt.Sprintf("func(%s): %s", strings.Join(parts, ", "), ret)
}

// PointerToBytesType is the opaque pointer type used for variadic lists (va_list) and untyped
// pointer bitcasts.
type PointerToBytesType struct{}

func (*PointerToBytesType) typeNode() {}
func (*PointerToBytesType) String() string {
	return "ptr"
}

// VoidType marks the absence of a result/return value.
type VoidType struct{}

func (*VoidType) typeNode() {}
func (*VoidType) String() string {
	return "void"
}

// ---------------------
// ----- Functions -----
// ---------------------

// Predefined canonical primitive types, shared across modules since they carry no per-module
// state (unlike StructType instantiations, which are interned per Module).
var (
	S8    = &IntType{Width: 8, Signed: true}
	S16   = &IntType{Width: 16, Signed: true}
	S32   = &IntType{Width: 32, Signed: true}
	S64   = &IntType{Width: 64, Signed: true}
	U8    = &IntType{Width: 8, Signed: false}
	U16   = &IntType{Width: 16, Signed: false}
	U32   = &IntType{Width: 32, Signed: false}
	U64   = &IntType{Width: 64, Signed: false}
	Bool  = &IntType{Bool: true, Width: 1}
	F32   = &FloatType{Width: 32}
	F64   = &FloatType{Width: 64}
	Usize = U64
	Ptr   = &PointerToBytesType{}
	Void  = &VoidType{}
)

// IsInteger reports whether t is one of s8..s64, u8..u64 (not bool).
func IsInteger(t Type) bool {
	it, ok := t.(*IntType)
	return ok && !it.Bool
}

// IsFloat reports whether t is f32 or f64.
func IsFloat(t Type) bool {
	_, ok := t.(*FloatType)
	return ok
}

// IsSigned reports whether t is a signed integer type.
func IsSigned(t Type) bool {
	it, ok := t.(*IntType)
	return ok && it.Signed && !it.Bool
}

// TypesEqual reports whether a and b are structurally identical, the interning key used by the
// Type Resolver (C2).
func TypesEqual(a, b Type) bool {
	return a.String() == b.String()
}
