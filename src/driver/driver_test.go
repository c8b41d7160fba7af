package driver

import (
	"testing"

	"vslc/src/ast"
	"vslc/src/diag"
	"vslc/src/util"
)

func intType() ast.Type {
	return ast.Type{Elements: []ast.TypeElement{{Kind: ast.ElemBase, Name: "int"}}}
}

func simpleObject(namespace string) *ast.Object {
	return &ast.Object{
		Namespace: namespace,
		Functions: []*ast.Function{
			{
				Name:   "f",
				Return: intType(),
				Body: []ast.Stmt{
					&ast.ReturnStmt{Value: &ast.Literal{Kind: ast.LitInt, Int: 1}},
				},
			},
		},
	}
}

func TestRunSequential(t *testing.T) {
	objects := []*ast.Object{simpleObject("a"), simpleObject("b")}
	results, err := Run(objects, &diag.SliceReporter{}, util.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Object != objects[i] {
			t.Fatalf("result %d paired with the wrong object", i)
		}
		if r.Module.GetFunction("f") == nil {
			t.Fatalf("expected lowered module %d to contain function f", i)
		}
	}
}

func TestRunParallelMatchesSequentialObjectPairing(t *testing.T) {
	var objects []*ast.Object
	for i := 0; i < 8; i++ {
		objects = append(objects, simpleObject(string(rune('a'+i))))
	}
	results, err := Run(objects, &diag.SliceReporter{}, util.Options{Threads: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(objects) {
		t.Fatalf("expected %d results, got %d", len(objects), len(results))
	}
	for i, r := range results {
		if r.Object != objects[i] {
			t.Fatalf("result %d should stay paired with objects[%d] despite parallel lowering", i, i)
		}
	}
}

func TestRunPropagatesLoweringError(t *testing.T) {
	bad := &ast.Object{
		Namespace: "bad",
		Functions: []*ast.Function{
			{
				Name: "g",
				Body: []ast.Stmt{
					&ast.ReturnStmt{Value: &ast.Identifier{Name: "undeclared"}},
				},
			},
		},
	}
	_, err := Run([]*ast.Object{bad}, &diag.SliceReporter{}, util.Options{})
	if err == nil {
		t.Fatalf("expected an error referencing an undeclared identifier")
	}
}
