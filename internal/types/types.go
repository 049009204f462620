// Package types implements the KernelScript type checker: type
// inference/annotation over the untyped AST, attribute and main-signature
// validation, call-graph visibility enforcement, map access typing, and
// constant folding (spec.md §4.3).
package types

import (
	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	"github.com/SiyuanSun0736/kernelscript/internal/position"
)

// VoidType is the implicit type of a function with no declared return
// type and of statements that produce no value. Like Optional below, it's
// synthetic: never produced by the parser, only by the checker, so its
// Span is always zero-valued — nothing ever reports a diagnostic anchored
// to it.
type VoidType struct{}

func (VoidType) Span() position.Span { return position.Span{} }
func (VoidType) TypeNode()           {}
func (VoidType) String() string      { return "void" }

// Optional wraps a map's value type as the `V | none` union spec.md §4.3
// describes: the type of `m[k]` before it's narrowed or compared to none.
type Optional struct {
	Value ast.Type
}

func (Optional) Span() position.Span { return position.Span{} }
func (Optional) TypeNode()           {}
func (o Optional) String() string    { return o.Value.String() + " | none" }

// NoneType is the type of the `none` literal itself: distinct from Optional
// so the checker can special-case `x == none` / `x != none` narrowing
// without requiring the two sides to satisfy Equal.
type NoneType struct{}

func (NoneType) Span() position.Span { return position.Span{} }
func (NoneType) TypeNode()           {}
func (NoneType) String() string      { return "none" }

// IsInteger reports whether t is one of the integer primitive types. The
// caller is expected to have already resolved any type alias with
// ResolveAlias: this function only recognizes a literal PrimitiveType.
func IsInteger(t ast.Type) bool {
	p, ok := t.(*ast.PrimitiveType)
	if !ok {
		return false
	}
	switch p.Name {
	case "u8", "u16", "u32", "u64", "i8", "i16", "i32", "i64":
		return true
	}
	return false
}

// IsBool reports whether t (already alias-resolved) is the bool primitive.
func IsBool(t ast.Type) bool {
	p, ok := t.(*ast.PrimitiveType)
	return ok && p.Name == "bool"
}

// ResolveAlias follows a chain of `type Name = Other` aliases to their
// underlying type, using lookup to find each alias's definition. A name
// lookup() doesn't recognize, or a cycle, stops the walk and returns the
// last NamedType seen rather than looping forever.
func ResolveAlias(lookup func(name string) (ast.Type, bool), t ast.Type) ast.Type {
	seen := make(map[string]bool)
	for {
		nt, ok := t.(*ast.NamedType)
		if !ok {
			return t
		}
		if seen[nt.Name] {
			return t
		}
		seen[nt.Name] = true
		under, ok := lookup(nt.Name)
		if !ok {
			return t
		}
		t = under
	}
}

// Equal reports whether two resolved types are the same type. Named types
// compare by name (struct/enum/alias identity is nominal, matching the
// surface syntax's one-struct-one-name model).
func Equal(a, b ast.Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch x := a.(type) {
	case *ast.PrimitiveType:
		y, ok := b.(*ast.PrimitiveType)
		return ok && x.Name == y.Name
	case *ast.StrType:
		y, ok := b.(*ast.StrType)
		return ok && x.Cap == y.Cap
	case *ast.NamedType:
		y, ok := b.(*ast.NamedType)
		return ok && x.Name == y.Name
	case *ast.PointerType:
		y, ok := b.(*ast.PointerType)
		return ok && Equal(x.Elem, y.Elem)
	case *ast.ArrayType:
		y, ok := b.(*ast.ArrayType)
		return ok && x.Size == y.Size && Equal(x.Elem, y.Elem)
	case *ast.MapType:
		y, ok := b.(*ast.MapType)
		return ok && x.Kind == y.Kind && Equal(x.Key, y.Key) && Equal(x.Value, y.Value)
	case VoidType:
		_, ok := b.(VoidType)
		return ok
	case Optional:
		y, ok := b.(Optional)
		return ok && Equal(x.Value, y.Value)
	default:
		return false
	}
}

// AssignableTo reports whether a value of type from can be assigned/passed
// where a value of type to is expected. Integers of different widths are
// not silently inter-assignable: the checker requires an exact primitive
// match, matching the teacher's conservative no-implicit-widening stance.
func AssignableTo(from, to ast.Type) bool {
	if Equal(from, to) {
		return true
	}
	// An Optional narrows to its Value type once compared against none;
	// the checker itself performs that narrowing, so by the time
	// AssignableTo is consulted for a plain assignment, an Optional RHS
	// must already match the Value type directly.
	if opt, ok := from.(Optional); ok {
		return Equal(opt.Value, to)
	}
	return false
}
