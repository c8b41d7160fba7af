// Package diag carries the core's diagnostics output contract: structured records reported at an
// originating AST span, never recovered from within the core itself.
package diag

import (
	"fmt"
	"sync"

	"vslc/src/ast"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Severity classifies a Record.
type Severity int

const (
	SeverityError Severity = iota
	Warning
	Note
)

// Kind enumerates the closed set of error kinds the core recognizes.
type Kind int

const (
	KindUnknownType Kind = iota
	KindUnknownName
	KindUnknownLabel
	KindUndeclaredFunction
	KindDuplicateDeclaration
	KindDuplicateCase
	KindIncompatibleTypes
	KindAmbiguousConversion
	KindNarrowingInAssignment
	KindNotMutable
	KindNotPointer
	KindNotBool
	KindNotInteger
	KindTerminatorInBeforeStatements
	KindExhaustiveSwitchMissingCase
	KindExhaustiveSwitchExtraneousCase
	KindOutOfBoundsCaseValue
	KindEachInElementTypeMismatch
	KindFixedArrayNotMutable
	KindStaticWithoutMain
	KindEarlyReturnDeadCode // warning
	KindInternal
)

var kindNames = [...]string{
	"UnknownType",
	"UnknownName",
	"UnknownLabel",
	"UndeclaredFunction",
	"DuplicateDeclaration",
	"DuplicateCase",
	"IncompatibleTypes",
	"AmbiguousConversion",
	"NarrowingInAssignment",
	"NotMutable",
	"NotPointer",
	"NotBool",
	"NotInteger",
	"TerminatorInBeforeStatements",
	"ExhaustiveSwitchMissingCase",
	"ExhaustiveSwitchExtraneousCase",
	"OutOfBoundsCaseValue",
	"EachInElementTypeMismatch",
	"FixedArrayNotMutable",
	"StaticWithoutMain",
	"EarlyReturnDeadCode",
	"Internal",
}

// String gives the kind's canonical name, used both in messages and tests.
func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// Error is the only error type the core returns for expected, user-facing failures.
type Error struct {
	Kind       Kind
	Span       ast.SourceSpan
	Message    string
	Candidates []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Candidates) > 0 {
		return fmt.Sprintf("%s: %s (candidates: %v)", e.Kind, e.Message, e.Candidates)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an *Error for kind at span with a formatted message.
func New(kind Kind, span ast.SourceSpan, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)}
}

// WithCandidates attaches a candidate list to e and returns it for chaining.
func (e *Error) WithCandidates(candidates []string) *Error {
	e.Candidates = candidates
	return e
}

// Record is one diagnostic handed to a Reporter: an error, warning, or note at a source span.
type Record struct {
	Severity   Severity
	Span       ast.SourceSpan
	Message    string
	Candidates []string
}

// Reporter accumulates diagnostics. Implementations must be safe for concurrent use, since
// inter-Object parallelism may report from multiple goroutines at once.
type Reporter interface {
	Report(r Record)
	Records() []Record
}

// ---------------------
// ----- Functions -----
// ---------------------

// SliceReporter is a thread-safe in-memory Reporter, used by tests and as a scratch accumulator.
type SliceReporter struct {
	mu      sync.Mutex
	records []Record
}

// Report appends r under lock.
func (s *SliceReporter) Report(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// Records returns a snapshot of all reported records.
func (s *SliceReporter) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// StderrReporter prints each Record to stdout as it arrives, mirroring the teacher's main.run
// style of surfacing errors directly rather than batching them.
type StderrReporter struct {
	mu sync.Mutex
}

// Report prints r immediately.
func (s *StderrReporter) Report(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s: %s\n", severityName(r.Severity), r.Message)
}

// Records always returns nil for StderrReporter; it does not retain history.
func (s *StderrReporter) Records() []Record {
	return nil
}

func severityName(s Severity) string {
	switch s {
	case SeverityError:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// FromError converts err into a Record if it is a *Error, promoting its Kind to a Warning
// severity only for KindEarlyReturnDeadCode.
func FromError(err error) (Record, bool) {
	e, ok := err.(*Error)
	if !ok {
		return Record{}, false
	}
	sev := SeverityError
	if e.Kind == KindEarlyReturnDeadCode {
		sev = Warning
	}
	return Record{Severity: sev, Span: e.Span, Message: e.Message, Candidates: e.Candidates}, true
}
