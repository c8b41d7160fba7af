package ir

import "fmt"

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// ValueKind discriminates the closed set of IR value kinds named in the data model.
type ValueKind int

const (
	ValueLiteral ValueKind = iota
	ValueInstructionResult
	ValueLocalVariable
	ValueStaticVariable
	ValueGlobal
	ValueAnonymousGlobal
	ValueConstExpr
)

// Value is a pair (kind, IR type), with a payload that depends on Kind. It is produced by every
// expression lowering and consumed by every instruction operand.
type Value struct {
	Kind ValueKind
	Typ  Type

	// ValueLiteral payload.
	LitInt   int64
	LitFloat float64
	LitBool  bool
	LitStr   string

	// ValueInstructionResult payload: identifies the producing instruction.
	BlockID int
	InstrID int

	// ValueLocalVariable / ValueStaticVariable payload.
	SlotIndex int
	VarName   string

	// ValueGlobal / ValueAnonymousGlobal payload.
	GlobalName string
}

// Type returns v's IR type.
func (v Value) Type() Type {
	return v.Typ
}

// String renders v for diagnostics and the canonical printer.
func (v Value) String() string {
	switch v.Kind {
	case ValueLiteral:
		switch t := v.Typ.(type) {
		case *FloatType:
			return fmt.Sprintf("%g", v.LitFloat)
		case *IntType:
			if t.Bool {
				return fmt.Sprintf("%t", v.LitBool)
			}
			return fmt.Sprintf("%d", v.LitInt)
		default:
			if v.LitStr != "" {
				return fmt.Sprintf("%q", v.LitStr)
			}
			return fmt.Sprintf("%d", v.LitInt)
		}
	case ValueInstructionResult:
		return fmt.Sprintf("%%b%d.%d", v.BlockID, v.InstrID)
	case ValueLocalVariable:
		return fmt.Sprintf("%%%s", v.VarName)
	case ValueStaticVariable:
		return fmt.Sprintf("@static.%s", v.VarName)
	case ValueGlobal:
		return fmt.Sprintf("@%s", v.GlobalName)
	case ValueAnonymousGlobal:
		return fmt.Sprintf("@.anon.%s", v.GlobalName)
	case ValueConstExpr:
		return fmt.Sprintf("const(%d)", v.LitInt)
	default:
		return "<invalid value>"
	}
}

// ---------------------
// ----- Functions -----
// ---------------------

// LiteralInt builds an integer literal Value of type t.
func LiteralInt(t Type, v int64) Value {
	return Value{Kind: ValueLiteral, Typ: t, LitInt: v}
}

// LiteralFloat builds a float literal Value of type t.
func LiteralFloat(t Type, v float64) Value {
	return Value{Kind: ValueLiteral, Typ: t, LitFloat: v}
}

// LiteralBool builds a bool literal Value.
func LiteralBool(v bool) Value {
	return Value{Kind: ValueLiteral, Typ: Bool, LitBool: v}
}

// LiteralUsize builds a usize literal Value, used for fixed-array lengths and indices.
func LiteralUsize(v int64) Value {
	return Value{Kind: ValueLiteral, Typ: Usize, LitInt: v}
}
