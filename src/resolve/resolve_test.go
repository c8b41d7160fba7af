package resolve

import (
	"testing"

	"vslc/src/ast"
	"vslc/src/ir"
)

func baseType(name string) ast.Type {
	return ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemBase, Name: name}}}
}

func TestResolvePrimitives(t *testing.T) {
	m := ir.NewModule("test")
	obj := &ast.Object{Namespace: "main"}
	r := NewResolver(m, []*ast.Object{obj})

	tests := []struct {
		name string
		want ir.Type
	}{
		{"bool", ir.Bool},
		{"s32", ir.S32},
		{"int", ir.S32},
		{"u64", ir.U64},
		{"usize", ir.Usize},
		{"f64", ir.F64},
		{"ptr", ir.Ptr},
	}
	for _, tt := range tests {
		got, err := r.Resolve(obj, baseType(tt.name))
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tt.name, err)
		}
		if !ir.TypesEqual(got, tt.want) {
			t.Fatalf("Resolve(%s) = %s, want %s", tt.name, got.String(), tt.want.String())
		}
	}
}

func TestResolveUnknownType(t *testing.T) {
	m := ir.NewModule("test")
	obj := &ast.Object{Namespace: "main"}
	r := NewResolver(m, []*ast.Object{obj})

	if _, err := r.Resolve(obj, baseType("Nonexistent")); err == nil {
		t.Fatalf("expected an unknown-type error")
	}
}

func TestResolvePointerAndFixedArray(t *testing.T) {
	m := ir.NewModule("test")
	obj := &ast.Object{Namespace: "main"}
	r := NewResolver(m, []*ast.Object{obj})

	ptrType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemPointer}, {Kind: ast.ElemBase, Name: "s32"}}}
	got, err := r.Resolve(obj, ptrType)
	if err != nil {
		t.Fatalf("Resolve(pointer): %v", err)
	}
	pt, ok := got.(*ir.PointerType)
	if !ok || !ir.TypesEqual(pt.Elem, ir.S32) {
		t.Fatalf("expected *s32, got %s", got.String())
	}

	arrType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemFixedArray, Length: 4}, {Kind: ast.ElemBase, Name: "s32"}}}
	got, err = r.Resolve(obj, arrType)
	if err != nil {
		t.Fatalf("Resolve(fixed array): %v", err)
	}
	at, ok := got.(*ir.FixedArrayType)
	if !ok || at.Length != 4 || !ir.TypesEqual(at.Elem, ir.S32) {
		t.Fatalf("expected [4]s32, got %s", got.String())
	}
}

func TestResolveFixedArrayNegativeLengthRejected(t *testing.T) {
	m := ir.NewModule("test")
	obj := &ast.Object{Namespace: "main"}
	r := NewResolver(m, []*ast.Object{obj})

	arrType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemFixedArray, Length: -1}, {Kind: ast.ElemBase, Name: "s32"}}}
	if _, err := r.Resolve(obj, arrType); err == nil {
		t.Fatalf("expected an error for a negative fixed-array length")
	}
}

func TestResolveCompositeInterning(t *testing.T) {
	m := ir.NewModule("test")
	composite := &ast.Composite{Name: "Point", Namespace: "main", Fields: []ast.Field{
		{Name: "x", Type: baseType("s32")},
		{Name: "y", Type: baseType("s32")},
	}}
	obj := &ast.Object{Namespace: "main", Composites: []*ast.Composite{composite}}
	r := NewResolver(m, []*ast.Object{obj})

	t1, err := r.Resolve(obj, baseType("Point"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	t2, err := r.Resolve(obj, baseType("Point"))
	if err != nil {
		t.Fatalf("Resolve (second call): %v", err)
	}
	st1, ok1 := t1.(*ir.StructType)
	st2, ok2 := t2.(*ir.StructType)
	if !ok1 || !ok2 {
		t.Fatalf("expected both resolutions to be struct types")
	}
	if st1 != st2 {
		t.Fatalf("expected structurally identical composite resolutions to be interned to the same pointer")
	}
	if len(st1.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(st1.Fields))
	}
}

func TestResolveNamespaceSearchOrder(t *testing.T) {
	m := ir.NewModule("test")
	libComposite := &ast.Composite{Name: "Vec", Namespace: "lib"}
	globalComposite := &ast.Composite{Name: "Vec", Namespace: ""}
	libObj := &ast.Object{Namespace: "lib", Composites: []*ast.Composite{libComposite}}
	globalObj := &ast.Object{Namespace: "", Composites: []*ast.Composite{globalComposite}}
	mainObj := &ast.Object{Namespace: "main", Using: []string{"lib"}}

	r := NewResolver(m, []*ast.Object{libObj, globalObj, mainObj})

	got, err := r.Resolve(mainObj, baseType("Vec"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	st, ok := got.(*ir.StructType)
	if !ok {
		t.Fatalf("expected a struct type")
	}
	if st.Name != ir.Mangle([]string{"lib"}, "Vec") {
		t.Fatalf("expected the using-namespace's Vec to win over the global one, got %s", st.Name)
	}
}

func TestResolveEnumLowersToS32(t *testing.T) {
	m := ir.NewModule("test")
	enum := &ast.Enum{Name: "Color", Namespace: "main", Kinds: []string{"Red", "Green", "Blue"}}
	obj := &ast.Object{Namespace: "main", Enums: []*ast.Enum{enum}}
	r := NewResolver(m, []*ast.Object{obj})

	got, err := r.Resolve(obj, baseType("Color"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ir.TypesEqual(got, ir.S32) {
		t.Fatalf("expected Color to lower to s32, got %s", got.String())
	}
	if e := r.LookupEnum(obj, "Color"); e != enum {
		t.Fatalf("expected LookupEnum to find the declared enum")
	}
}

func TestInstantiateGenericComposite(t *testing.T) {
	m := ir.NewModule("test")
	box := &ast.Composite{
		Name:          "Box",
		Namespace:     "main",
		PolymorphVars: []string{"T"},
		Fields: []ast.Field{
			{Name: "value", Type: ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemPolymorphVar, Name: "T"}}}},
		},
	}
	obj := &ast.Object{Namespace: "main", Composites: []*ast.Composite{box}}
	r := NewResolver(m, []*ast.Object{obj})

	generic := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemGenericBase, Name: "Box", Args: []ast.Type{baseType("s32")}}}}
	got, err := r.Resolve(obj, generic)
	if err != nil {
		t.Fatalf("Resolve(Box<s32>): %v", err)
	}
	st, ok := got.(*ir.StructType)
	if !ok {
		t.Fatalf("expected a struct type, got %T", got)
	}
	if len(st.Fields) != 1 || !ir.TypesEqual(st.Fields[0].Type, ir.S32) {
		t.Fatalf("expected Box<s32>.value to resolve to s32, got %+v", st.Fields)
	}

	// A second, unrelated instantiation must not see T bound to the first call's argument
	// (hygiene): Box<f32> must resolve its own field to f32, not s32.
	generic2 := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemGenericBase, Name: "Box", Args: []ast.Type{baseType("f32")}}}}
	got2, err := r.Resolve(obj, generic2)
	if err != nil {
		t.Fatalf("Resolve(Box<f32>): %v", err)
	}
	st2 := got2.(*ir.StructType)
	if !ir.TypesEqual(st2.Fields[0].Type, ir.F32) {
		t.Fatalf("expected Box<f32>.value to resolve to f32, got %s", st2.Fields[0].Type.String())
	}
}

func TestInstantiateWrongArgCount(t *testing.T) {
	m := ir.NewModule("test")
	box := &ast.Composite{Name: "Box", Namespace: "main", PolymorphVars: []string{"T"}}
	obj := &ast.Object{Namespace: "main", Composites: []*ast.Composite{box}}
	r := NewResolver(m, []*ast.Object{obj})

	generic := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemGenericBase, Name: "Box", Args: []ast.Type{}}}}
	if _, err := r.Resolve(obj, generic); err == nil {
		t.Fatalf("expected an error for a generic composite instantiated with the wrong argument count")
	}
}

func TestResolveFuncPointer(t *testing.T) {
	m := ir.NewModule("test")
	obj := &ast.Object{Namespace: "main"}
	r := NewResolver(m, []*ast.Object{obj})

	ret := baseType("s32")
	fp := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemFuncPointer, Params: []ast.Type{baseType("s32"), baseType("bool")}, Ret: &ret}}}
	got, err := r.Resolve(obj, fp)
	if err != nil {
		t.Fatalf("Resolve(func pointer): %v", err)
	}
	ft, ok := got.(*ir.FuncPointerType)
	if !ok {
		t.Fatalf("expected a func-pointer type, got %T", got)
	}
	if len(ft.Params) != 2 || !ir.TypesEqual(ft.Ret, ir.S32) {
		t.Fatalf("unexpected func-pointer shape: %+v", ft)
	}
}
