// Package errors defines the closed set of compile errors KernelScript can
// raise, per the error handling design in SPEC_FULL.md. Every error carries
// the position of the offending node; the driver is the only place that
// formats or exits on them.
package errors

import (
	"fmt"

	"github.com/SiyuanSun0736/kernelscript/internal/position"
)

// Kind identifies one member of the closed error taxonomy.
type Kind string

const (
	KindParseError           Kind = "parse error"
	KindDuplicateSymbol      Kind = "duplicate symbol"
	KindUnresolvedSymbol     Kind = "unresolved symbol"
	KindTypeMismatch         Kind = "type mismatch"
	KindNotCallable          Kind = "not callable"
	KindArityMismatch        Kind = "arity mismatch"
	KindInvalidMainSignature Kind = "invalid main signature"
	KindMissingMain          Kind = "missing main"
	KindMultipleMain         Kind = "multiple main"
	KindPrivateNotExposed    Kind = "private not exposed"
	KindAttributeMisuse      Kind = "attribute misuse"
	KindUnknownAttribute     Kind = "unknown attribute"
	KindMapMisuse            Kind = "map misuse"
	KindVerifierWouldReject  Kind = "verifier would reject"
)

// CompileError is satisfied by every error the pipeline can produce. The
// driver type-switches on Kind() only to pick an exit code; the message is
// always pre-formatted.
type CompileError interface {
	error
	Pos() position.Position
	Kind() Kind
}

// E is the single concrete CompileError implementation; Kind is the only
// axis of variation the rest of the pipeline inspects, so one struct
// suffices instead of one type per Kind.
type E struct {
	At      position.Position
	K       Kind
	Message string
}

func (e *E) Pos() position.Position { return e.At }
func (e *E) Kind() Kind             { return e.K }

func (e *E) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.At.String(), e.K, e.Message)
}

func New(pos position.Position, kind Kind, format string, args ...interface{}) *E {
	return &E{At: pos, K: kind, Message: fmt.Sprintf(format, args...)}
}

// Exit code rules from spec.md §6: every CompileError is a compilation
// failure (exit 1); I/O failures are signaled separately by the driver.
const (
	ExitSuccess = 0
	ExitCompile = 1
	ExitIO      = 2
)
