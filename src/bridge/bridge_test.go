package bridge

import (
	"testing"

	"vslc/src/ast"
	"vslc/src/ir"
)

func TestScopeLookupShadowing(t *testing.T) {
	s := NewStack()
	outer := s.Open()
	outer.Add("x", ast.Type{}, ir.S32, ir.Slot{Index: 0}, Traits{})

	inner := s.Open()
	inner.Add("x", ast.Type{}, ir.S32, ir.Slot{Index: 1}, Traits{})

	v, ok := s.Lookup("x")
	if !ok {
		t.Fatalf("expected to find x")
	}
	if v.Slot.Index != 1 {
		t.Fatalf("expected inner shadowing binding (slot 1), got slot %d", v.Slot.Index)
	}

	s.Close(inner)
	v, ok = s.Lookup("x")
	if !ok || v.Slot.Index != 0 {
		t.Fatalf("expected outer binding (slot 0) visible after inner scope closed, got %+v ok=%v", v, ok)
	}
	s.Close(outer)
}

func TestScopeAlreadyInListIsPerScope(t *testing.T) {
	s := NewStack()
	outer := s.Open()
	outer.Add("x", ast.Type{}, ir.S32, ir.Slot{Index: 0}, Traits{})

	inner := s.Open()
	if inner.AlreadyInList("x") {
		t.Fatalf("AlreadyInList must only check the innermost scope, not enclosing ones")
	}
	if !outer.AlreadyInList("x") {
		t.Fatalf("expected x to be registered in outer")
	}
	s.Close(inner)
	s.Close(outer)
}

func TestReverseVariablesOrder(t *testing.T) {
	s := NewStack()
	sc := s.Open()
	sc.Add("a", ast.Type{}, ir.S32, ir.Slot{Index: 0}, Traits{})
	sc.Add("b", ast.Type{}, ir.S32, ir.Slot{Index: 1}, Traits{})
	sc.Add("c", ast.Type{}, ir.S32, ir.Slot{Index: 2}, Traits{})

	rev := sc.ReverseVariables()
	want := []string{"c", "b", "a"}
	for i, name := range want {
		if rev[i].Name != name {
			t.Fatalf("ReverseVariables()[%d] = %s, want %s", i, rev[i].Name, name)
		}
	}
	s.Close(sc)
}

func TestLoopLabelStack(t *testing.T) {
	s := NewStack()
	outerScope := s.Open()
	outerBreak, outerCont := &ir.Block{}, &ir.Block{}
	s.PushLoop(Loop{Label: "outer", BreakBlock: outerBreak, ContinueBlock: outerCont, Scope: outerScope})

	innerScope := s.Open()
	innerBreak, innerCont := &ir.Block{}, &ir.Block{}
	s.PushLoop(Loop{BreakBlock: innerBreak, ContinueBlock: innerCont, Scope: innerScope})

	innermost, ok := s.InnermostLoop()
	if !ok || innermost.BreakBlock != innerBreak {
		t.Fatalf("expected innermost loop to be the unlabeled inner loop")
	}

	found, ok := s.FindLabel("outer")
	if !ok || found.BreakBlock != outerBreak {
		t.Fatalf("expected FindLabel(\"outer\") to resolve the labeled outer loop")
	}

	if _, ok := s.FindLabel("nonexistent"); ok {
		t.Fatalf("expected no match for an undeclared label")
	}

	between := s.ScopesBetween(outerScope)
	if len(between) != 1 || between[0] != innerScope {
		t.Fatalf("expected ScopesBetween(outerScope) to return just the inner scope, got %v", between)
	}

	s.PopLoop()
	s.Close(innerScope)
	s.PopLoop()
	s.Close(outerScope)
}
