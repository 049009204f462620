// Package symtab builds and queries the KernelScript scope tree: a root
// scope holding every top-level declaration, one function scope per
// function (parameters + locals), and nested block scopes within each
// function body. Scopes are an arena of entries keyed by a stable integer
// ID, the parent link is non-owning, consistent with the re-architecture
// guidance in spec.md §9.
package symtab

import (
	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
	"github.com/SiyuanSun0736/kernelscript/internal/position"
)

// Kind classifies what an Entry names.
type Kind int

const (
	KindType Kind = iota
	KindStruct
	KindEnum
	KindConfig
	KindMap
	KindFunction
	KindParam
	KindVar
)

// ScopeKind classifies a Scope.
type ScopeKind int

const (
	ScopeRoot ScopeKind = iota
	ScopeFunction
	ScopeBlock
)

// Entry is one named thing visible in some scope.
type Entry struct {
	Name string
	Kind Kind
	Decl ast.Node // the declaring AST node: Decl, Param, or a synthetic include entry
	Type ast.Type // declared/resolved type, when applicable
	Span position.Span
}

// ScopeID identifies a Scope within a Table's arena.
type ScopeID int

// Scope is one lexical frame: a name->Entry map plus a non-owning parent
// link. Root's ParentID is -1.
type Scope struct {
	ID       ScopeID
	Kind     ScopeKind
	ParentID ScopeID
	Entries  map[string]*Entry
}

// Table is the scope tree plus the bracketed enter/exit cursor used while
// building it.
type Table struct {
	scopes  map[ScopeID]*Scope
	counter ScopeID
	root    ScopeID
	current ScopeID
	stack   []ScopeID
}

// NewTable creates a table with just the root scope, current scope sitting
// at root.
func NewTable() *Table {
	t := &Table{scopes: make(map[ScopeID]*Scope), counter: -1}
	t.root = t.push(ScopeRoot, -1)
	t.current = t.root
	return t
}

func (t *Table) push(kind ScopeKind, parent ScopeID) ScopeID {
	t.counter++
	id := t.counter
	t.scopes[id] = &Scope{ID: id, Kind: kind, ParentID: parent, Entries: make(map[string]*Entry)}
	return id
}

func (t *Table) Root() ScopeID    { return t.root }
func (t *Table) Current() ScopeID { return t.current }

// EnterScope creates a new child of the current scope, makes it current,
// and returns its ID. Callers must pair this with ExitScope.
func (t *Table) EnterScope(kind ScopeKind) ScopeID {
	id := t.push(kind, t.current)
	t.stack = append(t.stack, t.current)
	t.current = id
	return id
}

// ExitScope pops back to the parent of the current scope. It panics if
// called without a matching EnterScope — block entry/exit must be
// balanced by construction (spec.md §4.2), so an imbalance is a compiler
// bug, not a user-facing error.
func (t *Table) ExitScope() {
	if len(t.stack) == 0 {
		panic("symtab: ExitScope without matching EnterScope")
	}
	n := len(t.stack) - 1
	t.current = t.stack[n]
	t.stack = t.stack[:n]
}

// Define adds an entry to the current scope. A duplicate name in the same
// scope is reported by the caller as errors.KindDuplicateSymbol; Define
// itself just reports whether the name was already bound.
func (t *Table) Define(e *Entry) (existing *Entry, duplicate bool) {
	scope := t.scopes[t.current]
	if prev, ok := scope.Entries[e.Name]; ok {
		return prev, true
	}
	scope.Entries[e.Name] = e
	return nil, false
}

// DefineIn adds an entry directly to a named scope, regardless of current
// cursor position; used to inject include-provided root entries before
// user declarations are walked (spec.md §4.2).
func (t *Table) DefineIn(scopeID ScopeID, e *Entry) (existing *Entry, duplicate bool) {
	scope := t.scopes[scopeID]
	if prev, ok := scope.Entries[e.Name]; ok {
		return prev, true
	}
	scope.Entries[e.Name] = e
	return nil, false
}

// Resolve walks from scopeID outward to the root looking for name.
func (t *Table) Resolve(scopeID ScopeID, name string) (*Entry, bool) {
	for id := scopeID; ; {
		scope, ok := t.scopes[id]
		if !ok {
			return nil, false
		}
		if e, ok := scope.Entries[name]; ok {
			return e, true
		}
		if scope.ParentID < 0 {
			return nil, false
		}
		id = scope.ParentID
	}
}

// ResolveCurrent resolves name starting from the current scope.
func (t *Table) ResolveCurrent(name string) (*Entry, bool) {
	return t.Resolve(t.current, name)
}

// RootEntries returns every entry defined directly at root scope.
func (t *Table) RootEntries() map[string]*Entry {
	return t.scopes[t.root].Entries
}

// DuplicateError builds the standard diagnostic for a repeated top-level
// or in-scope name.
func DuplicateError(name string, at position.Position) *kerrors.E {
	return kerrors.New(at, kerrors.KindDuplicateSymbol, "%q is already declared in this scope", name)
}

// UnresolvedError builds the standard diagnostic for a name lookup miss.
func UnresolvedError(name string, at position.Position) *kerrors.E {
	return kerrors.New(at, kerrors.KindUnresolvedSymbol, "undefined name %q", name)
}
