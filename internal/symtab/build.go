package symtab

import (
	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
	"github.com/SiyuanSun0736/kernelscript/internal/includes"
	"github.com/SiyuanSun0736/kernelscript/internal/position"
)

// Build normalizes prog in place (map-typed globals become MapDecls),
// injects every include's synthetic declarations at root scope ahead of
// user declarations, then registers every top-level declaration. It
// returns the populated Table and the first DuplicateSymbol error
// encountered, if any — the spec treats this as a hard-abort error like
// any other (spec.md §7).
func Build(prog *ast.Program) (*Table, *kerrors.E) {
	ast.NormalizeMaps(prog)

	t := NewTable()

	var headers []string
	for _, d := range prog.Decls {
		if inc, ok := d.(*ast.Include); ok {
			headers = append(headers, inc.Header)
		}
	}
	injected := includes.ResolveAll(headers)
	for _, d := range injected {
		if err := defineDecl(t, d); err != nil {
			return t, err
		}
	}

	for _, d := range prog.Decls {
		if _, ok := d.(*ast.Include); ok {
			continue
		}
		if err := defineDecl(t, d); err != nil {
			return t, err
		}
	}

	return t, nil
}

func defineDecl(t *Table, d ast.Decl) *kerrors.E {
	switch n := d.(type) {
	case *ast.StructDecl:
		return define(t, n.Name, KindStruct, n, nil, n.Span())
	case *ast.TypeAlias:
		return define(t, n.Name, KindType, n, n.Aliased, n.Span())
	case *ast.EnumDecl:
		return define(t, n.Name, KindEnum, n, nil, n.Span())
	case *ast.ConfigDecl:
		return define(t, n.Name, KindConfig, n, nil, n.Span())
	case *ast.MapDecl:
		return define(t, n.Name, KindMap, n, n.MapType, n.Span())
	case *ast.GlobalVarDecl:
		return define(t, n.Name, KindVar, n, n.Type, n.Span())
	case *ast.FunctionDecl:
		return define(t, n.Name, KindFunction, n, n.ReturnType, n.Span())
	case *ast.Pragma:
		return nil
	default:
		return nil
	}
}

func define(t *Table, name string, kind Kind, decl ast.Node, typ ast.Type, span position.Span) *kerrors.E {
	entry := &Entry{Name: name, Kind: kind, Decl: decl, Type: typ, Span: span}
	if existing, dup := t.DefineIn(t.Root(), entry); dup {
		_ = existing
		return DuplicateError(name, span.Start)
	}
	return nil
}
