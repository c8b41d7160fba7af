package lower

import (
	"strings"
	"testing"

	"vslc/src/ast"
	"vslc/src/diag"
	"vslc/src/ir"
	"vslc/src/util"
)

func intType() ast.Type {
	return ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemBase, Name: "int"}}}
}

func boolExpr() ast.Type {
	return ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemBase, Name: "bool"}}}
}

func newTestContext(obj *ast.Object) *Context {
	mod := ir.NewModule(obj.Namespace)
	return NewContext(mod, []*ast.Object{obj}, obj, &diag.SliceReporter{}, util.Options{})
}

// Scenario 1 (spec.md §8): func f() int { return 2 + 3 }
func TestPipelineSimpleReturn(t *testing.T) {
	fn := &ast.Function{
		Name:   "f",
		Return: intType(),
		Body: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.Binary{
				Op:    ast.BinAdd,
				Left:  &ast.Literal{Kind: ast.LitInt, Int: 2},
				Right: &ast.Literal{Kind: ast.LitInt, Int: 3},
			}},
		},
	}
	obj := &ast.Object{Functions: []*ast.Function{fn}}
	c := newTestContext(obj)

	if err := LowerFunction(c, fn); err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}
	irFn := c.Functions[mangledFuncName(fn)].IR
	if err := ir.VerifyFunction(irFn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	blocks := irFn.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("expected one block, got %d", len(blocks))
	}
	text := blocks[0].String()
	if !strings.Contains(text, "add") || !strings.Contains(text, "ret") {
		t.Fatalf("expected add+ret in block text, got:\n%s", text)
	}
}

// Scenario 2 (spec.md §8): func g(x int) int { if x > 0 { return 1 } else { return -1 } }
func TestPipelineIfElse(t *testing.T) {
	fn := &ast.Function{
		Name:   "g",
		Params: []ast.Param{{Name: "x", Type: intType()}},
		Return: intType(),
		Body: []ast.Stmt{
			&ast.IfStmt{
				Cond: &ast.Binary{Op: ast.BinGt, Left: &ast.Identifier{Name: "x"}, Right: &ast.Literal{Kind: ast.LitInt, Int: 0}},
				Then: []ast.Stmt{&ast.ReturnStmt{Value: &ast.Literal{Kind: ast.LitInt, Int: 1}}},
				Else: []ast.Stmt{&ast.ReturnStmt{Value: &ast.Unary{Op: ast.UnaryNeg, Operand: &ast.Literal{Kind: ast.LitInt, Int: 1}}}},
			},
		},
	}
	obj := &ast.Object{Functions: []*ast.Function{fn}}
	c := newTestContext(obj)

	if err := LowerFunction(c, fn); err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}
	irFn := c.Functions[mangledFuncName(fn)].IR
	if err := ir.VerifyFunction(irFn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	// entry, then and else; lowerIf creates no resume block when both branches terminate.
	if got := len(irFn.Blocks()); got < 3 {
		t.Fatalf("expected at least 3 blocks for if/else, got %d", got)
	}
}

// Scenario 4 (spec.md §8): each int in static [4]int {10,20,30,40} { sum += it }
func TestPipelineEachInFixedArray(t *testing.T) {
	arrType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemFixedArray, Length: 4}, {Kind: ast.ElemBase, Name: "int"}}}
	fn := &ast.Function{
		Name:   "sumAll",
		Return: intType(),
		Body: []ast.Stmt{
			&ast.DeclareStmt{Name: "arr", Type: arrType, POD: true},
			&ast.DeclareStmt{Name: "sum", Type: intType(), POD: true, Init: &ast.Literal{Kind: ast.LitInt, Int: 0}},
			&ast.EachInStmt{
				Form:     ast.EachInFixedArray,
				ElemName: "it",
				ElemType: intType(),
				Iterable: &ast.Identifier{Name: "arr"},
				Body: []ast.Stmt{
					&ast.CompoundAssignStmt{Op: ast.BinAdd, Dst: &ast.Identifier{Name: "sum"}, Src: &ast.Identifier{Name: "it"}},
				},
			},
			&ast.ReturnStmt{Value: &ast.Identifier{Name: "sum"}},
		},
	}
	obj := &ast.Object{Functions: []*ast.Function{fn}}
	c := newTestContext(obj)

	if err := LowerFunction(c, fn); err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}
	irFn := c.Functions[mangledFuncName(fn)].IR
	if err := ir.VerifyFunction(irFn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	var full strings.Builder
	for _, b := range irFn.Blocks() {
		full.WriteString(b.String())
	}
	text := full.String()
	if !strings.Contains(text, "gep") {
		t.Fatalf("expected an array-access instruction in each-in body, got:\n%s", text)
	}
	if strings.Contains(text, "__defer__") {
		t.Fatalf("fixed array each-in must not dispatch __defer__, got:\n%s", text)
	}
}

// Scenario 5 (spec.md §8): exhaustive switch over enum Color{Red,Green,Blue} missing Green fails.
func TestPipelineExhaustiveSwitchMissingCase(t *testing.T) {
	enum := &ast.Enum{Name: "Color", Kinds: []string{"Red", "Green", "Blue"}}
	colorType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemBase, Name: "Color"}}}
	// enumNameOf resolves a switch condition's enum type only through a bare identifier whose own
	// name matches the enum (no type-checking pass is in scope to look this up any other way), so
	// the condition variable here is named after the enum itself.
	fn := &ast.Function{
		Name:   "describe",
		Params: []ast.Param{{Name: "Color", Type: colorType}},
		Body: []ast.Stmt{
			&ast.SwitchStmt{
				Cond:       &ast.Identifier{Name: "Color"},
				Exhaustive: true,
				Cases: []ast.SwitchCase{
					{Values: []ast.Expr{&ast.Identifier{Name: "Red"}}},
					{Values: []ast.Expr{&ast.Identifier{Name: "Blue"}}},
				},
			},
		},
	}
	obj := &ast.Object{Enums: []*ast.Enum{enum}, Functions: []*ast.Function{fn}}
	c := newTestContext(obj)

	err := LowerFunction(c, fn)
	if err == nil {
		t.Fatalf("expected ExhaustiveSwitchMissingCase error, got nil")
	}
	diagErr, ok := err.(*diag.Error)
	if !ok || diagErr.Kind != diag.KindExhaustiveSwitchMissingCase {
		t.Fatalf("expected KindExhaustiveSwitchMissingCase, got %v", err)
	}
}

// An exhaustive switch over an enum condition, with one case per kind written by name rather than
// by integer literal, must still lower every kind into a real ir.SwitchCase (each resolved to its
// kind's index), not silently drop the identifier-shaped cases from the terminator.
func TestPipelineExhaustiveSwitchEnumIdentifierCases(t *testing.T) {
	enum := &ast.Enum{Name: "Color", Kinds: []string{"Red", "Green", "Blue"}}
	colorType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemBase, Name: "Color"}}}
	fn := &ast.Function{
		Name:   "describe",
		Params: []ast.Param{{Name: "Color", Type: colorType}},
		Body: []ast.Stmt{
			&ast.SwitchStmt{
				Cond:       &ast.Identifier{Name: "Color"},
				Exhaustive: true,
				Cases: []ast.SwitchCase{
					{Values: []ast.Expr{&ast.Identifier{Name: "Red"}}},
					{Values: []ast.Expr{&ast.Identifier{Name: "Green"}}},
					{Values: []ast.Expr{&ast.Identifier{Name: "Blue"}}},
				},
			},
		},
	}
	obj := &ast.Object{Enums: []*ast.Enum{enum}, Functions: []*ast.Function{fn}}
	c := newTestContext(obj)

	if err := LowerFunction(c, fn); err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}
	irFn := c.Functions[mangledFuncName(fn)].IR
	if err := ir.VerifyFunction(irFn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}

	entry := irFn.Blocks()[0]
	insts := entry.Instructions()
	last := insts[len(insts)-1]
	if last.Op != ir.OpSwitch {
		t.Fatalf("expected the entry block to end in a switch, got %v", last.Op)
	}
	if len(last.Cases) != len(enum.Kinds) {
		t.Fatalf("expected %d switch cases (one per enum kind), got %d", len(enum.Kinds), len(last.Cases))
	}
	seen := map[int64]bool{}
	for _, cs := range last.Cases {
		seen[cs.Value.LitInt] = true
	}
	for i := range enum.Kinds {
		if !seen[int64(i)] {
			t.Fatalf("missing switch case for enum kind index %d among %v", i, last.Cases)
		}
	}
}

// each-in over a dynamic (__length__/__array__) iterable must dispatch the iterable's own
// __defer__ once the loop finishes, not just restore the stack saved around the setup-time calls
// to __length__/__array__: those are two separate temporaries with two separate lifetimes.
func TestPipelineEachInDynamicDispatchesDefer(t *testing.T) {
	bagType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemBase, Name: "Bag"}}}
	usizeType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemBase, Name: "usize"}}}
	ptrIntType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemPointer}, {Kind: ast.ElemBase, Name: "int"}}}
	bag := &ast.Composite{
		Name: "Bag",
		Methods: []*ast.Function{
			{Name: "__length__", This: &bagType, Return: usizeType, Traits: ast.FuncTraits{Foreign: true, Method: true}},
			{Name: "__array__", This: &bagType, Return: ptrIntType, Traits: ast.FuncTraits{Foreign: true, Method: true}},
			{Name: "__defer__", This: &bagType, Traits: ast.FuncTraits{Foreign: true, Method: true}},
		},
	}
	fn := &ast.Function{
		Name: "consume",
		Body: []ast.Stmt{
			&ast.DeclareStmt{Name: "bag", Type: bagType, POD: true},
			&ast.EachInStmt{
				Form:     ast.EachInDynamic,
				ElemName: "it",
				ElemType: intType(),
				Iterable: &ast.Identifier{Name: "bag"},
				Body:     nil,
			},
			&ast.ReturnStmt{},
		},
	}
	obj := &ast.Object{Composites: []*ast.Composite{bag}, Functions: []*ast.Function{fn}}
	c := newTestContext(obj)

	if err := LowerFunction(c, fn); err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}
	irFn := c.Functions[mangledFuncName(fn)].IR
	if err := ir.VerifyFunction(irFn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	var full strings.Builder
	for _, b := range irFn.Blocks() {
		full.WriteString(b.String())
	}
	text := full.String()
	deferCall := `call Bag\__defer__`
	if strings.Count(text, deferCall) != 1 {
		t.Fatalf("expected exactly one %s call after the each-in loop, got:\n%s", deferCall, text)
	}
}

// A composite operand declaring an __add__ method must route "+" through it rather than falling
// into commonOperandType's built-in-numeric path, which has no branch for struct operands at all.
func TestPipelineBinaryOperatorOverload(t *testing.T) {
	vecType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemBase, Name: "Vector2"}}}
	vec := &ast.Composite{
		Name:   "Vector2",
		Fields: []ast.Field{{Name: "x", Type: intType()}, {Name: "y", Type: intType()}},
		Methods: []*ast.Function{
			{
				Name:   "__add__",
				This:   &vecType,
				Params: []ast.Param{{Name: "rhs", Type: vecType}},
				Return: vecType,
				Traits: ast.FuncTraits{Foreign: true, Method: true},
			},
		},
	}
	fn := &ast.Function{
		Name: "combine",
		Body: []ast.Stmt{
			&ast.DeclareStmt{Name: "a", Type: vecType, POD: true},
			&ast.DeclareStmt{Name: "b", Type: vecType, POD: true},
			&ast.ExprStmt{Value: &ast.Binary{Op: ast.BinAdd, Left: &ast.Identifier{Name: "a"}, Right: &ast.Identifier{Name: "b"}}},
			&ast.ReturnStmt{},
		},
	}
	obj := &ast.Object{Composites: []*ast.Composite{vec}, Functions: []*ast.Function{fn}}
	c := newTestContext(obj)

	if err := LowerFunction(c, fn); err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}
	irFn := c.Functions[mangledFuncName(fn)].IR
	if err := ir.VerifyFunction(irFn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	var full strings.Builder
	for _, b := range irFn.Blocks() {
		full.WriteString(b.String())
	}
	text := full.String()
	if !strings.Contains(text, `call Vector2\__add__`) {
		t.Fatalf("expected a call to Vector2's __add__ method, got:\n%s", text)
	}
}

// Initializing a composite-typed local from a plain int, where the composite declares a
// single-argument __init__ taking that int, must route through it: conform.Conform's lookup
// parameter can no longer be the literal nil that leaves user-defined conversions unreachable.
func TestPipelineAssigningConstructorConversion(t *testing.T) {
	widgetType := ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemBase, Name: "Widget"}}}
	widget := &ast.Composite{
		Name:   "Widget",
		Fields: []ast.Field{{Name: "n", Type: intType()}},
		Methods: []*ast.Function{
			{
				Name:   "__init__",
				This:   &widgetType,
				Params: []ast.Param{{Name: "n", Type: intType()}},
				Traits: ast.FuncTraits{Foreign: true, Method: true},
			},
		},
	}
	fn := &ast.Function{
		Name: "makeWidget",
		Body: []ast.Stmt{
			&ast.DeclareStmt{Name: "w", Type: widgetType, POD: true, Init: &ast.Literal{Kind: ast.LitInt, Int: 5}},
			&ast.ReturnStmt{},
		},
	}
	obj := &ast.Object{Composites: []*ast.Composite{widget}, Functions: []*ast.Function{fn}}
	c := newTestContext(obj)

	if err := LowerFunction(c, fn); err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}
	irFn := c.Functions[mangledFuncName(fn)].IR
	if err := ir.VerifyFunction(irFn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	var full strings.Builder
	for _, b := range irFn.Blocks() {
		full.WriteString(b.String())
	}
	text := full.String()
	if !strings.Contains(text, `call Widget\__init__`) {
		t.Fatalf("expected the int initializer to route through Widget's __init__ constructor, got:\n%s", text)
	}
}

// Scenario 3 (spec.md §8): switch k { case 1 { a(); fallthrough } case 2 { b() } } — case 1's body
// must end with an unconditional branch straight into case 2's block rather than to the switch's
// resume block.
func TestPipelineSwitchFallthrough(t *testing.T) {
	aFn := &ast.Function{Name: "a", Traits: ast.FuncTraits{Foreign: true}}
	bFn := &ast.Function{Name: "b", Traits: ast.FuncTraits{Foreign: true}}
	fn := &ast.Function{
		Name:   "dispatch",
		Params: []ast.Param{{Name: "k", Type: intType()}},
		Body: []ast.Stmt{
			&ast.SwitchStmt{
				Cond: &ast.Identifier{Name: "k"},
				Cases: []ast.SwitchCase{
					{
						Values:      []ast.Expr{&ast.Literal{Kind: ast.LitInt, Int: 1}},
						Body:        []ast.Stmt{&ast.ExprStmt{Value: &ast.Call{Name: "a"}}},
						Fallthrough: true,
					},
					{
						Values: []ast.Expr{&ast.Literal{Kind: ast.LitInt, Int: 2}},
						Body:   []ast.Stmt{&ast.ExprStmt{Value: &ast.Call{Name: "b"}}},
					},
				},
			},
		},
	}
	obj := &ast.Object{Functions: []*ast.Function{aFn, bFn, fn}}
	c := newTestContext(obj)

	if err := LowerFunction(c, fn); err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}
	irFn := c.Functions[mangledFuncName(fn)].IR
	if err := ir.VerifyFunction(irFn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	blocks := irFn.Blocks()
	var caseOneBlock *ir.Block
	for _, b := range blocks {
		if strings.Contains(b.String(), "call a") {
			caseOneBlock = b
			break
		}
	}
	if caseOneBlock == nil {
		t.Fatalf("could not find case-1 block among:\n%v", blocks)
	}
	var caseTwoBlock *ir.Block
	for _, b := range blocks {
		if strings.Contains(b.String(), "call b") {
			caseTwoBlock = b
			break
		}
	}
	if caseTwoBlock == nil {
		t.Fatalf("could not find case-2 block among:\n%v", blocks)
	}
	lines := strings.Split(strings.TrimRight(caseOneBlock.String(), "\n"), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last != "br "+caseTwoBlock.Name() {
		t.Fatalf("expected case-1 block to end with an unconditional branch to case-2's block %s, got:\n%s", caseTwoBlock.Name(), last)
	}
}

// Scenario 6 (spec.md §8): outer: while true { while true { break outer } } — the inner break must
// branch straight to the outer loop's after-block. The loops declare no variables, so no __defer__
// calls are emitted on the way out.
func TestPipelineLabeledBreak(t *testing.T) {
	fn := &ast.Function{
		Name: "nested",
		Body: []ast.Stmt{
			&ast.WhileStmt{
				Kind:  ast.WhileNormal,
				Label: "outer",
				Cond:  &ast.Literal{Kind: ast.LitBool, Bool: true},
				Body: []ast.Stmt{
					&ast.WhileStmt{
						Kind: ast.WhileNormal,
						Cond: &ast.Literal{Kind: ast.LitBool, Bool: true},
						Body: []ast.Stmt{
							&ast.JumpStmt{Kind: ast.JumpBreak, Label: "outer"},
						},
					},
				},
			},
		},
	}
	obj := &ast.Object{Functions: []*ast.Function{fn}}
	c := newTestContext(obj)

	if err := LowerFunction(c, fn); err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}
	irFn := c.Functions[mangledFuncName(fn)].IR
	if err := ir.VerifyFunction(irFn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	// The function's implicit void return lives in the outer loop's after-block, which the outer
	// test's false edge and the labeled break both reach; the break is the only unconditional jump
	// to it. VerifyFunction does not check reachability, so the jump is checked here directly.
	if got := len(irFn.Blocks()); got < 5 {
		t.Fatalf("expected at least 5 blocks for nested labeled loops, got %d", got)
	}
	var afterOuter *ir.Block
	for _, b := range irFn.Blocks() {
		insts := b.Instructions()
		if insts[len(insts)-1].Op == ir.OpReturn {
			afterOuter = b
		}
	}
	brokeOut := false
	for _, b := range irFn.Blocks() {
		insts := b.Instructions()
		if last := insts[len(insts)-1]; last.Op == ir.OpJmp && last.Target == afterOuter {
			brokeOut = true
		}
	}
	if afterOuter == nil || !brokeOut {
		t.Fatalf("expected the labeled break to jump straight to the outer loop's after-block")
	}
}
