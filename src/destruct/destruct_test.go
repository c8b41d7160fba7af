package destruct

import (
	"strings"
	"testing"

	"vslc/src/ast"
	"vslc/src/bridge"
	"vslc/src/ir"
)

func freshContext(t *testing.T, lookupDefer MethodLookup) (*Context, *ir.Builder, *ir.Function) {
	t.Helper()
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	fn := m.CreateFunction("f", nil, ir.Void)
	b.UseFunction(fn)
	b.UseBlock(b.NewBlock())
	return &Context{Builder: b, LookupDefer: lookupDefer}, b, fn
}

func TestRunScopeExitSkipsExemptTraits(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	wd := m.CreateFunction("Widget____defer__", nil, ir.Void)
	fn := m.CreateFunction("caller", nil, ir.Void)
	b.UseFunction(fn)
	b.UseBlock(b.NewBlock())

	widget := &ir.StructType{Name: "Widget"}
	c := &Context{Builder: b, LookupDefer: func(st *ir.StructType) *ir.Function {
		if st == widget {
			return wd
		}
		return nil
	}}

	s := bridge.NewStack()
	sc := s.Open()
	sc.Add("pod", ast.Type{}, widget, ir.Slot{Index: 0}, bridge.Traits{POD: true})
	sc.Add("ref", ast.Type{}, widget, ir.Slot{Index: 1}, bridge.Traits{Reference: true})
	sc.Add("stat", ast.Type{}, widget, ir.Slot{Index: 2}, bridge.Traits{Static: true})
	sc.Add("owned", ast.Type{}, widget, ir.Slot{Index: 3}, bridge.Traits{})

	if err := RunScopeExit(c, sc); err != nil {
		t.Fatalf("RunScopeExit: %v", err)
	}
	s.Close(sc)

	text := b.Module.GetFunction("caller").Blocks()[0].String()
	count := strings.Count(text, "call")
	if count != 1 {
		t.Fatalf("expected exactly one __defer__ call for the sole owned variable, got %d in:\n%s", count, text)
	}
}

func TestRunScopeExitReverseOrder(t *testing.T) {
	widget := &ir.StructType{Name: "Widget"}
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	wd := m.CreateFunction("Widget____defer__", nil, ir.Void)
	fn := m.CreateFunction("caller", nil, ir.Void)
	b.UseFunction(fn)
	b.UseBlock(b.NewBlock())

	c := &Context{Builder: b, LookupDefer: func(st *ir.StructType) *ir.Function { return wd }}

	s := bridge.NewStack()
	sc := s.Open()
	sc.Add("a", ast.Type{}, widget, ir.Slot{Index: 0, Name: "a"}, bridge.Traits{})
	sc.Add("b", ast.Type{}, widget, ir.Slot{Index: 1, Name: "b"}, bridge.Traits{})
	sc.Add("c", ast.Type{}, widget, ir.Slot{Index: 2, Name: "c"}, bridge.Traits{})

	if err := RunScopeExit(c, sc); err != nil {
		t.Fatalf("RunScopeExit: %v", err)
	}
	s.Close(sc)

	blk := m.GetFunction("caller").Blocks()[0]
	text := blk.String()
	ia := strings.Index(text, "%c")
	ib := strings.Index(text, "%b")
	ic := strings.Index(text, "%a")
	if !(ia < ib && ib < ic) {
		t.Fatalf("expected __defer__ dispatched in reverse declaration order (c, b, a), got:\n%s", text)
	}
}

func TestRunScopeExitSkipsNonStructAndUndeclaredDefer(t *testing.T) {
	c, b, fn := freshContext(t, func(st *ir.StructType) *ir.Function { return nil })
	s := bridge.NewStack()
	sc := s.Open()
	sc.Add("n", ast.Type{}, ir.S32, ir.Slot{Index: 0}, bridge.Traits{})
	sc.Add("plain", ast.Type{}, &ir.StructType{Name: "Plain"}, ir.Slot{Index: 1}, bridge.Traits{})

	if err := RunScopeExit(c, sc); err != nil {
		t.Fatalf("RunScopeExit: %v", err)
	}
	s.Close(sc)

	text := fn.Blocks()[0].String()
	if strings.Contains(text, "call") {
		t.Fatalf("expected no __defer__ calls when no defer method is registered, got:\n%s", text)
	}
	_ = b
}

func TestDispatchOnRvalueEmitsStackSaveRestore(t *testing.T) {
	widget := &ir.StructType{Name: "Widget"}
	var b *ir.Builder
	c, b, fn := freshContext(t, func(st *ir.StructType) *ir.Function {
		return b.Module.CreateFunction("Widget____defer__", nil, ir.Void)
	})

	v := ir.Value{Kind: ir.ValueLiteral, Typ: widget}
	DispatchOnRvalue(c, v, widget, ast.SourceSpan{})

	text := fn.Blocks()[0].String()
	if !strings.Contains(text, "stacksave") {
		t.Fatalf("expected a stack-save instruction, got:\n%s", text)
	}
	if !strings.Contains(text, "stackrestore") {
		t.Fatalf("expected a stack-restore instruction, got:\n%s", text)
	}
	if !strings.Contains(text, "alloc") {
		t.Fatalf("expected an alloc instruction for the rvalue's temporary storage, got:\n%s", text)
	}
}

func TestDispatchOnRvalueNoopForNonStructOrUnregistered(t *testing.T) {
	c, b, fn := freshContext(t, func(st *ir.StructType) *ir.Function { return nil })
	DispatchOnRvalue(c, ir.Value{Kind: ir.ValueLiteral, Typ: ir.S32}, ir.S32, ast.SourceSpan{})
	if len(fn.Blocks()[0].Instructions()) != 0 {
		t.Fatalf("expected no instructions emitted for a non-struct rvalue, got:\n%s", fn.Blocks()[0].String())
	}
	_ = b
}

func TestAutogenDeferVisitsFieldsInReverse(t *testing.T) {
	innerA := &ir.StructType{Name: "A"}
	innerB := &ir.StructType{Name: "B"}
	receiver := &ir.StructType{Name: "Outer", Fields: []ir.StructField{
		{Name: "a", Type: innerA},
		{Name: "b", Type: innerB},
	}}

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	deferA := m.CreateFunction("A____defer__", nil, ir.Void)
	deferB := m.CreateFunction("B____defer__", nil, ir.Void)
	fn := m.CreateFunction("Outer____defer__", nil, ir.Void)
	b.UseFunction(fn)
	b.UseBlock(b.NewBlock())

	c := &Context{Builder: b, LookupDefer: func(st *ir.StructType) *ir.Function {
		switch st.Name {
		case "A":
			return deferA
		case "B":
			return deferB
		}
		return nil
	}}

	astFn := &ast.Function{Name: "__defer__", Traits: ast.FuncTraits{Defer: true, Autogen: true}}
	self := ir.Value{Kind: ir.ValueLocalVariable, VarName: "this"}
	if err := Autogen(c, astFn, receiver, self); err != nil {
		t.Fatalf("Autogen: %v", err)
	}

	text := fn.Blocks()[0].String()
	ib := strings.Index(text, "this.b")
	ia := strings.Index(text, "this.a")
	if ib == -1 || ia == -1 {
		t.Fatalf("expected both field defers present, got:\n%s", text)
	}
	if !(ib < ia) {
		t.Fatalf("expected field b destructed before field a (reverse declaration order), got:\n%s", text)
	}
}

func TestAutogenPassVisitsFieldsInOrder(t *testing.T) {
	innerA := &ir.StructType{Name: "A"}
	innerB := &ir.StructType{Name: "B"}
	receiver := &ir.StructType{Name: "Outer", Fields: []ir.StructField{
		{Name: "a", Type: innerA},
		{Name: "b", Type: innerB},
	}}

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	assignA := m.CreateFunction("A____assign__", nil, ir.Void)
	assignB := m.CreateFunction("B____assign__", nil, ir.Void)
	fn := m.CreateFunction("Outer____assign__", nil, ir.Void)
	b.UseFunction(fn)
	b.UseBlock(b.NewBlock())

	c := &Context{Builder: b, LookupAssign: func(st *ir.StructType) *ir.Function {
		switch st.Name {
		case "A":
			return assignA
		case "B":
			return assignB
		}
		return nil
	}}

	astFn := &ast.Function{Name: "__assign__", Traits: ast.FuncTraits{Pass: true, Autogen: true}}
	self := ir.Value{Kind: ir.ValueLocalVariable, VarName: "this"}
	if err := Autogen(c, astFn, receiver, self); err != nil {
		t.Fatalf("Autogen: %v", err)
	}

	text := fn.Blocks()[0].String()
	ia := strings.Index(text, "this.a")
	ib := strings.Index(text, "this.b")
	if ia == -1 || ib == -1 {
		t.Fatalf("expected both field copy-assigns present, got:\n%s", text)
	}
	if !(ia < ib) {
		t.Fatalf("expected field a assigned before field b (declaration order), got:\n%s", text)
	}
}
