// Package ast defines the KernelScript abstract syntax tree: a closed set
// of tagged-variant nodes for declarations, statements, expressions and
// types, each carrying a source Span. There is no visitor; passes switch
// on the concrete node type.
//
// The type checker (internal/types) re-uses these same expression nodes
// rather than building a second tree: it fills in each expression's Typ
// field in place, so "typed AST" here means "this AST, post-check".
package ast

import (
	"fmt"
	"strings"

	"github.com/SiyuanSun0736/kernelscript/internal/position"
)

// Node is implemented by every AST node.
type Node interface {
	Span() position.Span
	String() string
}

// Decl is implemented by top-level declarations.
type Decl interface {
	Node
	declNode()
}

// Stmt is implemented by statements.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by expressions. GetType/SetType let the checker
// annotate a node in place without a second tree.
type Expr interface {
	Node
	exprNode()
	GetType() Type
	SetType(Type)
}

// Type is implemented by type nodes.
type Type interface {
	Node
	TypeNode()
}

// typed is embedded by every Expr implementation to supply GetType/SetType.
type typed struct {
	Typ Type
}

func (t *typed) GetType() Type   { return t.Typ }
func (t *typed) SetType(ty Type) { t.Typ = ty }

// ===== Program =====

type Program struct {
	Decls []Decl
	Sp    position.Span
}

func (p *Program) Span() position.Span { return p.Sp }
func (p *Program) String() string {
	var parts []string
	for _, d := range p.Decls {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, "\n")
}

// ===== Declarations =====

type Include struct {
	Header string
	Sp     position.Span
}

func (d *Include) Span() position.Span { return d.Sp }
func (d *Include) declNode()           {}
func (d *Include) String() string      { return fmt.Sprintf("include %q", d.Header) }

// Pragma is a `require <name> <value>` line, e.g. `require kernel ">=5.8.0"`.
type Pragma struct {
	Name  string
	Value string
	Sp    position.Span
}

func (d *Pragma) Span() position.Span { return d.Sp }
func (d *Pragma) declNode()           {}
func (d *Pragma) String() string      { return fmt.Sprintf("require %s %q", d.Name, d.Value) }

type StructField struct {
	Name string
	Type Type
	Sp   position.Span
}

type StructDecl struct {
	Name   string
	Fields []StructField
	Packed bool
	Sp     position.Span
}

func (d *StructDecl) Span() position.Span { return d.Sp }
func (d *StructDecl) declNode()           {}
func (d *StructDecl) String() string {
	var fs []string
	for _, f := range d.Fields {
		fs = append(fs, fmt.Sprintf("%s: %s", f.Name, f.Type.String()))
	}
	return fmt.Sprintf("struct %s { %s }", d.Name, strings.Join(fs, ", "))
}

type TypeAlias struct {
	Name    string
	Aliased Type
	Sp      position.Span
}

func (d *TypeAlias) Span() position.Span { return d.Sp }
func (d *TypeAlias) declNode()           {}
func (d *TypeAlias) String() string      { return fmt.Sprintf("type %s = %s", d.Name, d.Aliased.String()) }

type EnumMember struct {
	Name  string
	Value *int64 // nil when not explicitly assigned
}

type EnumDecl struct {
	Name    string
	Members []EnumMember
	Sp      position.Span
}

func (d *EnumDecl) Span() position.Span { return d.Sp }
func (d *EnumDecl) declNode()           {}
func (d *EnumDecl) String() string      { return fmt.Sprintf("enum %s { ... }", d.Name) }

type ConfigField struct {
	Name    string
	Type    Type
	Default Expr // nil when no default
	Sp      position.Span
}

type ConfigDecl struct {
	Name   string
	Fields []ConfigField
	Sp     position.Span
}

func (d *ConfigDecl) Span() position.Span { return d.Sp }
func (d *ConfigDecl) declNode()           {}
func (d *ConfigDecl) String() string      { return fmt.Sprintf("config %s { ... }", d.Name) }

// MapType describes a `Kind<K,V>(N, flag=expr, ...)` map type.
type MapType struct {
	Kind        string // hash | lru_hash | array | percpu_hash | percpu_array | ringbuf | perf_event_array
	Key         Type
	Value       Type
	MaxEntries  int64
	KeySize     *int64
	ValueSize   *int64
	Flags       map[string]Expr
	Sp          position.Span
}

func (t *MapType) Span() position.Span { return t.Sp }
func (t *MapType) TypeNode()           {}
func (t *MapType) String() string {
	return fmt.Sprintf("%s<%s,%s>(%d)", t.Kind, t.Key.String(), t.Value.String(), t.MaxEntries)
}

// MapDecl is a root-level map declaration, either written directly as
// `var m : hash<K,V>(N)` or promoted from a GlobalVarDecl whose type is a
// MapType (spec.md §3: "no map may be locally scoped; all maps are
// promoted to root").
type MapDecl struct {
	Name    string
	MapType *MapType
	Pinned  bool
	Global  bool
	Sp      position.Span
}

func (d *MapDecl) Span() position.Span { return d.Sp }
func (d *MapDecl) declNode()           {}
func (d *MapDecl) String() string {
	pin := ""
	if d.Pinned {
		pin = "pin "
	}
	return fmt.Sprintf("%svar %s : %s", pin, d.Name, d.MapType.String())
}

type GlobalVarDecl struct {
	Name    string
	Type    Type // may be nil, inferred from Init
	Init    Expr // may be nil
	Pinned  bool
	Sp      position.Span
}

func (d *GlobalVarDecl) Span() position.Span { return d.Sp }
func (d *GlobalVarDecl) declNode()           {}
func (d *GlobalVarDecl) String() string {
	pin := ""
	if d.Pinned {
		pin = "pin "
	}
	return fmt.Sprintf("%svar %s", pin, d.Name)
}

type Attribute struct {
	Name string // xdp | tc | kprobe | kfunc | helper | private
	Args []Expr
	Sp   position.Span
}

type Param struct {
	Name string
	Type Type
	Sp   position.Span
}

// FunctionDecl covers main, plain global functions, and attributed
// functions alike; Attributes is empty for the first two. Keeping one
// node (rather than a separate AttributedFunction variant) means the
// checker's visibility pass doesn't need to special-case which kind of
// function it's looking at beyond inspecting Attributes.
type FunctionDecl struct {
	Name       string
	Attributes []Attribute
	Params     []Param
	ReturnType Type // nil for void
	Body       *BlockStmt
	Sp         position.Span
}

func (d *FunctionDecl) Span() position.Span { return d.Sp }
func (d *FunctionDecl) declNode()           {}

func (d *FunctionDecl) HasAttribute(name string) bool {
	for _, a := range d.Attributes {
		if a.Name == name {
			return true
		}
	}
	return false
}

func (d *FunctionDecl) Attribute(name string) (Attribute, bool) {
	for _, a := range d.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// IsAttributed reports whether this function carries an eBPF-side
// attribute (xdp/tc/kprobe/kfunc/helper/private) as opposed to being a
// plain user-space function or main.
func (d *FunctionDecl) IsAttributed() bool {
	return len(d.Attributes) > 0
}

func (d *FunctionDecl) String() string {
	var ps []string
	for _, p := range d.Params {
		ps = append(ps, fmt.Sprintf("%s: %s", p.Name, p.Type.String()))
	}
	ret := ""
	if d.ReturnType != nil {
		ret = " -> " + d.ReturnType.String()
	}
	return fmt.Sprintf("fn %s(%s)%s { ... }", d.Name, strings.Join(ps, ", "), ret)
}

// ===== Types =====

type PrimitiveType struct {
	Name string // u8,u16,u32,u64,i8,i16,i32,i64,bool
	Sp   position.Span
}

func (t *PrimitiveType) Span() position.Span { return t.Sp }
func (t *PrimitiveType) TypeNode()           {}
func (t *PrimitiveType) String() string      { return t.Name }

// StrType is the fixed-capacity string type `str(N)`.
type StrType struct {
	Cap int64
	Sp  position.Span
}

func (t *StrType) Span() position.Span { return t.Sp }
func (t *StrType) TypeNode()           {}
func (t *StrType) String() string      { return fmt.Sprintf("str(%d)", t.Cap) }

type NamedType struct {
	Name string
	Sp   position.Span
}

func (t *NamedType) Span() position.Span { return t.Sp }
func (t *NamedType) TypeNode()           {}
func (t *NamedType) String() string      { return t.Name }

type PointerType struct {
	Elem Type
	Sp   position.Span
}

func (t *PointerType) Span() position.Span { return t.Sp }
func (t *PointerType) TypeNode()           {}
func (t *PointerType) String() string      { return "*" + t.Elem.String() }

type ArrayType struct {
	Elem Type
	Size int64
	Sp   position.Span
}

func (t *ArrayType) Span() position.Span { return t.Sp }
func (t *ArrayType) TypeNode()           {}
func (t *ArrayType) String() string      { return fmt.Sprintf("%s[%d]", t.Elem.String(), t.Size) }

// ===== Statements =====

type BlockStmt struct {
	Stmts []Stmt
	Sp    position.Span
}

func (s *BlockStmt) Span() position.Span { return s.Sp }
func (s *BlockStmt) stmtNode()           {}
func (s *BlockStmt) String() string      { return "{ ... }" }

// LocalVarDecl is a `var name [: T] = expr` statement inside a function
// body. A MapType annotation here is a checker error (spec.md: no map may
// be locally scoped), not a parse error.
type LocalVarDecl struct {
	Name string
	Type Type // nil if inferred
	Init Expr // nil if no initializer
	Sp   position.Span
}

func (s *LocalVarDecl) Span() position.Span { return s.Sp }
func (s *LocalVarDecl) stmtNode()           {}
func (s *LocalVarDecl) String() string      { return fmt.Sprintf("var %s = ...", s.Name) }

type AssignStmt struct {
	Target Expr
	Op     string // "=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<=", ">>="
	Value  Expr
	Sp     position.Span
}

func (s *AssignStmt) Span() position.Span { return s.Sp }
func (s *AssignStmt) stmtNode()           {}
func (s *AssignStmt) String() string {
	return fmt.Sprintf("%s %s %s", s.Target.String(), s.Op, s.Value.String())
}

type ExprStmt struct {
	X  Expr
	Sp position.Span
}

func (s *ExprStmt) Span() position.Span { return s.Sp }
func (s *ExprStmt) stmtNode()           {}
func (s *ExprStmt) String() string      { return s.X.String() }

type IfStmt struct {
	Cond Expr
	Then *BlockStmt
	Else Stmt // *BlockStmt or *IfStmt, nil if no else
	Sp   position.Span
}

func (s *IfStmt) Span() position.Span { return s.Sp }
func (s *IfStmt) stmtNode()           {}
func (s *IfStmt) String() string      { return fmt.Sprintf("if %s { ... }", s.Cond.String()) }

// ForStmt covers both forms in spec.md §4.4: the C-style `for i in lo..hi`
// (Start/End set, Iter nil) and the iterator form `for x in iter` (Iter
// set, Start/End nil), which loop analysis always treats as Unbounded.
type ForStmt struct {
	Var   string
	Start Expr // range form
	End   Expr // range form
	Iter  Expr // iterator form
	Body  *BlockStmt
	Sp    position.Span
}

func (s *ForStmt) Span() position.Span { return s.Sp }
func (s *ForStmt) stmtNode()           {}
func (s *ForStmt) IsRangeForm() bool   { return s.Start != nil && s.End != nil }
func (s *ForStmt) String() string      { return fmt.Sprintf("for %s in ... { ... }", s.Var) }

type ReturnStmt struct {
	Value Expr // nil for bare `return`
	Sp    position.Span
}

func (s *ReturnStmt) Span() position.Span { return s.Sp }
func (s *ReturnStmt) stmtNode()           {}
func (s *ReturnStmt) String() string      { return "return" }

type BreakStmt struct{ Sp position.Span }

func (s *BreakStmt) Span() position.Span { return s.Sp }
func (s *BreakStmt) stmtNode()           {}
func (s *BreakStmt) String() string      { return "break" }

type ContinueStmt struct{ Sp position.Span }

func (s *ContinueStmt) Span() position.Span { return s.Sp }
func (s *ContinueStmt) stmtNode()           {}
func (s *ContinueStmt) String() string      { return "continue" }

// DeleteStmt implements `delete m[k]`.
type DeleteStmt struct {
	Target *IndexExpr
	Sp     position.Span
}

func (s *DeleteStmt) Span() position.Span { return s.Sp }
func (s *DeleteStmt) stmtNode()           {}
func (s *DeleteStmt) String() string      { return "delete " + s.Target.String() }

// ===== Expressions =====

type Identifier struct {
	Name string
	Sp   position.Span
	typed
}

func (e *Identifier) Span() position.Span { return e.Sp }
func (e *Identifier) exprNode()           {}
func (e *Identifier) String() string      { return e.Name }

// IntLiteral carries the width-tagged integer literal the data model
// calls for: Width is the suffix as written ("u32", "i64", ...) or "" when
// unsuffixed, and Value is the canonical signed 64-bit widening used for
// constant folding. Raw preserves the original text for re-emission.
type IntLiteral struct {
	Value int64
	Width string
	Raw   string
	Sp    position.Span
	typed
}

func (e *IntLiteral) Span() position.Span { return e.Sp }
func (e *IntLiteral) exprNode()           {}
func (e *IntLiteral) String() string      { return e.Raw }

type StringLiteral struct {
	Value string
	Sp    position.Span
	typed
}

func (e *StringLiteral) Span() position.Span { return e.Sp }
func (e *StringLiteral) exprNode()           {}
func (e *StringLiteral) String() string      { return fmt.Sprintf("%q", e.Value) }

type BoolLiteral struct {
	Value bool
	Sp    position.Span
	typed
}

func (e *BoolLiteral) Span() position.Span { return e.Sp }
func (e *BoolLiteral) exprNode()           {}
func (e *BoolLiteral) String() string      { return fmt.Sprintf("%t", e.Value) }

// NoneLiteral is the `none` sentinel for a missing map value (spec.md
// §4.3: the result of `m[k]` is `V | none`).
type NoneLiteral struct {
	Sp position.Span
	typed
}

func (e *NoneLiteral) Span() position.Span { return e.Sp }
func (e *NoneLiteral) exprNode()           {}
func (e *NoneLiteral) String() string      { return "none" }

type UnaryExpr struct {
	Op string // "-", "!", "~", "*", "&"
	X  Expr
	Sp position.Span
	typed
}

func (e *UnaryExpr) Span() position.Span { return e.Sp }
func (e *UnaryExpr) exprNode()           {}
func (e *UnaryExpr) String() string      { return e.Op + e.X.String() }

type BinaryExpr struct {
	Op string
	L  Expr
	R  Expr
	Sp position.Span
	typed
}

func (e *BinaryExpr) Span() position.Span { return e.Sp }
func (e *BinaryExpr) exprNode()           {}
func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.L.String(), e.Op, e.R.String())
}

type CallExpr struct {
	Callee Expr
	Args   []Expr
	Sp     position.Span
	typed
}

func (e *CallExpr) Span() position.Span { return e.Sp }
func (e *CallExpr) exprNode()           {}
func (e *CallExpr) String() string {
	var args []string
	for _, a := range e.Args {
		args = append(args, a.String())
	}
	return fmt.Sprintf("%s(%s)", e.Callee.String(), strings.Join(args, ", "))
}

// IndexExpr implements `m[k]` (map read/write/delete target).
type IndexExpr struct {
	Map Expr
	Key Expr
	Sp  position.Span
	typed
}

func (e *IndexExpr) Span() position.Span { return e.Sp }
func (e *IndexExpr) exprNode()           {}
func (e *IndexExpr) String() string      { return fmt.Sprintf("%s[%s]", e.Map.String(), e.Key.String()) }

// FieldExpr implements `a.b`.
type FieldExpr struct {
	X     Expr
	Field string
	Sp    position.Span
	typed
}

func (e *FieldExpr) Span() position.Span { return e.Sp }
func (e *FieldExpr) exprNode()           {}
func (e *FieldExpr) String() string      { return fmt.Sprintf("%s.%s", e.X.String(), e.Field) }

// ArrowExpr implements `p->b` (field access through a pointer).
type ArrowExpr struct {
	X     Expr
	Field string
	Sp    position.Span
	typed
}

func (e *ArrowExpr) Span() position.Span { return e.Sp }
func (e *ArrowExpr) exprNode()           {}
func (e *ArrowExpr) String() string      { return fmt.Sprintf("%s->%s", e.X.String(), e.Field) }

// AllFunctions returns every FunctionDecl in the program, in source order.
// Every pass that needs to walk functions (the checker's visibility pass,
// the IR generator's kernel/userspace partition) starts from this instead
// of re-implementing the top-level type switch.
func (p *Program) AllFunctions() []*FunctionDecl {
	var fns []*FunctionDecl
	for _, d := range p.Decls {
		if fn, ok := d.(*FunctionDecl); ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
