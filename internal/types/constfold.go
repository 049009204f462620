package types

import "github.com/SiyuanSun0736/kernelscript/internal/ast"

// ConstEnv is the rolling constant environment spec.md §4.3 and §9
// describe: an immutable-enough association list, since KernelScript
// functions are small, where reassigning a name simply shadows the old
// binding by prepending a fresh head entry. It is never mutated in place:
// Bind returns a new head, so bindings made in one branch do not reach an
// environment another branch still holds.
type ConstEnv struct {
	parent *ConstEnv
	name   string
	value  int64
}

// Lookup walks from this environment outward, returning the innermost
// binding for name.
func (e *ConstEnv) Lookup(name string) (int64, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.value, true
		}
	}
	return 0, false
}

// Bind returns a new environment with name bound to value, shadowing any
// existing binding. The receiver is left untouched, so callers that need
// to "undo" a reassignment (e.g. when analyzing two branches of an if)
// can keep their own reference to the prior environment.
func (e *ConstEnv) Bind(name string, value int64) *ConstEnv {
	return &ConstEnv{parent: e, name: name, value: value}
}

// FoldInt attempts to reduce expr to a compile-time integer constant under
// env, folding literal arithmetic and resolving identifiers bound in env.
// It returns ok=false for anything that depends on runtime state (a map
// read, a function call, an unbound identifier).
func FoldInt(env *ConstEnv, expr ast.Expr) (int64, bool) {
	switch e := expr.(type) {
	case *ast.IntLiteral:
		return e.Value, true
	case *ast.Identifier:
		return env.Lookup(e.Name)
	case *ast.UnaryExpr:
		x, ok := FoldInt(env, e.X)
		if !ok {
			return 0, false
		}
		switch e.Op {
		case "-":
			return -x, true
		case "~":
			return ^x, true
		}
		return 0, false
	case *ast.BinaryExpr:
		l, ok := FoldInt(env, e.L)
		if !ok {
			return 0, false
		}
		r, ok := FoldInt(env, e.R)
		if !ok {
			return 0, false
		}
		switch e.Op {
		case "+":
			return l + r, true
		case "-":
			return l - r, true
		case "*":
			return l * r, true
		case "/":
			if r == 0 {
				return 0, false
			}
			return l / r, true
		case "%":
			if r == 0 {
				return 0, false
			}
			return l % r, true
		case "&":
			return l & r, true
		case "|":
			return l | r, true
		case "^":
			return l ^ r, true
		case "<<":
			return l << uint(r), true
		case ">>":
			return l >> uint(r), true
		}
		return 0, false
	default:
		return 0, false
	}
}
