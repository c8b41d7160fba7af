// Package frontend is the lexer/parser boundary the lowering core (src/lower) is driven from. The
// lexer and parser themselves are out of scope here; this package only fixes the contract a real
// frontend must satisfy: source text in, a compile set of src/ast.Objects out.
package frontend

import (
	"errors"

	"vslc/src/ast"
)

// ErrNotImplemented is returned by Parse: this repository carries the AST-to-IR core, not a
// lexer/parser, so source text can only reach src/lower through a hand-built []*ast.Object (see
// src/lower/pipeline_test.go for worked examples) or a Frontend implementation supplied by a
// caller outside this module.
var ErrNotImplemented = errors.New("frontend: no lexer/parser wired; build an []*ast.Object directly")

// Frontend turns source text into a compile set of Objects, one per translation unit, ready to be
// handed to src/driver.Run. A real implementation would tokenize, parse, and resolve Object/Using
// declarations; this package declares only the boundary.
type Frontend interface {
	Parse(src string) ([]*ast.Object, error)
}

// Parse is the package-level entry point src/main.go calls. It always fails with
// ErrNotImplemented; callers that have their own Frontend should call it directly instead of going
// through this package.
func Parse(src string) ([]*ast.Object, error) {
	return nil, ErrNotImplemented
}
