package ir

import (
	"testing"

	"github.com/SiyuanSun0736/kernelscript/internal/ast"
)

func fn(name string, attrs ...string) *ast.FunctionDecl {
	d := &ast.FunctionDecl{Name: name, Body: &ast.BlockStmt{}}
	for _, a := range attrs {
		d.Attributes = append(d.Attributes, ast.Attribute{Name: a})
	}
	return d
}

func TestBuildAssignsStableMapSlots(t *testing.T) {
	m1 := &ast.MapDecl{Name: "counts", MapType: &ast.MapType{Kind: "hash"}}
	m2 := &ast.MapDecl{Name: "events", MapType: &ast.MapType{Kind: "ringbuf"}, Pinned: true}

	prog := &ast.Program{Decls: []ast.Decl{m1, m2, fn("main")}}
	p := Build(prog)

	if len(p.Maps) != 2 {
		t.Fatalf("len(Maps) = %d, want 2", len(p.Maps))
	}
	if p.Maps[0].Name != "counts" || p.Maps[0].Index != 0 {
		t.Errorf("Maps[0] = %+v, want counts at index 0", p.Maps[0])
	}
	if p.Maps[1].Name != "events" || p.Maps[1].Index != 1 {
		t.Errorf("Maps[1] = %+v, want events at index 1", p.Maps[1])
	}
	if len(p.PinnedGlobals) != 1 || p.PinnedGlobals[0].Name != "events" {
		t.Errorf("PinnedGlobals = %+v, want only events", p.PinnedGlobals)
	}

	slot, ok := p.MapSlot("counts")
	if !ok || slot.Index != 0 {
		t.Errorf("MapSlot(counts) = %+v, %v", slot, ok)
	}
	if _, ok := p.MapSlot("missing"); ok {
		t.Errorf("MapSlot(missing) found a slot, want none")
	}
}

func TestBuildPartitionsFunctionsByAttribute(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Decl{
		fn("main"),
		fn("drop", "xdp"),
		fn("classify", "tc"),
		fn("probe", "kprobe"),
		fn("wrapper", "kfunc"),
		fn("util", "helper"),
		fn("secret", "private"),
		fn("helperFn"),
	}}
	p := Build(prog)

	if p.Userspace.Main == nil || p.Userspace.Main.Name != "main" {
		t.Fatalf("Userspace.Main = %+v", p.Userspace.Main)
	}
	if len(p.Kernel.Attributed) != 3 {
		t.Errorf("len(Attributed) = %d, want 3 (xdp, tc, kprobe)", len(p.Kernel.Attributed))
	}
	if len(p.Kernel.KFuncs) != 1 || p.Kernel.KFuncs[0].Name != "wrapper" {
		t.Errorf("KFuncs = %+v", p.Kernel.KFuncs)
	}
	if len(p.Kernel.Helpers) != 1 || p.Kernel.Helpers[0].Name != "util" {
		t.Errorf("Helpers = %+v", p.Kernel.Helpers)
	}
	if len(p.Kernel.Private) != 1 || p.Kernel.Private[0].Name != "secret" {
		t.Errorf("Private = %+v", p.Kernel.Private)
	}
	if len(p.Userspace.Funcs) != 1 || p.Userspace.Funcs[0].Name != "helperFn" {
		t.Errorf("Userspace.Funcs = %+v, want just helperFn", p.Userspace.Funcs)
	}
}

func TestBuildCollectsConfigDecls(t *testing.T) {
	cfg := &ast.ConfigDecl{Name: "Settings"}
	prog := &ast.Program{Decls: []ast.Decl{cfg, fn("main")}}
	p := Build(prog)

	if len(p.Userspace.Configs) != 1 || p.Userspace.Configs[0] != cfg {
		t.Errorf("Userspace.Configs = %+v", p.Userspace.Configs)
	}
}

func TestBuildCollectsLoadCallsFromMainAndFuncs(t *testing.T) {
	loadCall := &ast.CallExpr{
		Callee: &ast.Identifier{Name: "load"},
		Args:   []ast.Expr{&ast.StringLiteral{Value: "program.bpf.o"}},
	}
	main := fn("main")
	main.Body = &ast.BlockStmt{Stmts: []ast.Stmt{
		&ast.LocalVarDecl{Name: "obj", Init: loadCall},
	}}

	prog := &ast.Program{Decls: []ast.Decl{main}}
	p := Build(prog)

	if len(p.Userspace.Loads) != 1 {
		t.Fatalf("len(Loads) = %d, want 1", len(p.Userspace.Loads))
	}
	if p.Userspace.Loads[0].Arg != "program.bpf.o" {
		t.Errorf("Loads[0].Arg = %q, want program.bpf.o", p.Userspace.Loads[0].Arg)
	}
}

func TestBuildCollectsLoadCallsNestedInsideIfAndFor(t *testing.T) {
	loadCall := func(name string) *ast.CallExpr {
		return &ast.CallExpr{
			Callee: &ast.Identifier{Name: "load"},
			Args:   []ast.Expr{&ast.StringLiteral{Value: name}},
		}
	}

	main := fn("main")
	main.Body = &ast.BlockStmt{Stmts: []ast.Stmt{
		&ast.IfStmt{
			Cond: &ast.BoolLiteral{Value: true},
			Then: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.ExprStmt{X: loadCall("a.bpf.o")},
			}},
			Else: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.ExprStmt{X: loadCall("b.bpf.o")},
			}},
		},
		&ast.ForStmt{
			Var: "i", Start: &ast.IntLiteral{Value: 0}, End: &ast.IntLiteral{Value: 1},
			Body: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.ExprStmt{X: loadCall("c.bpf.o")},
			}},
		},
	}}

	prog := &ast.Program{Decls: []ast.Decl{main}}
	p := Build(prog)

	if len(p.Userspace.Loads) != 3 {
		t.Fatalf("len(Loads) = %d, want 3, got %+v", len(p.Userspace.Loads), p.Userspace.Loads)
	}
}

func TestBuildIgnoresCallsNamedLoadWithWrongArity(t *testing.T) {
	badCall := &ast.CallExpr{
		Callee: &ast.Identifier{Name: "load"},
		Args:   []ast.Expr{&ast.StringLiteral{Value: "a"}, &ast.StringLiteral{Value: "b"}},
	}
	main := fn("main")
	main.Body = &ast.BlockStmt{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: badCall},
	}}

	prog := &ast.Program{Decls: []ast.Decl{main}}
	p := Build(prog)

	if len(p.Userspace.Loads) != 0 {
		t.Errorf("len(Loads) = %d, want 0 for a load() call with the wrong arity", len(p.Userspace.Loads))
	}
}
