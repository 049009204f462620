package ast

import "testing"

func TestFunctionDeclAttributeHelpers(t *testing.T) {
	fn := &FunctionDecl{
		Name: "handle",
		Attributes: []Attribute{
			{Name: "tc", Args: []Expr{&StringLiteral{Value: "ingress"}}},
		},
	}

	if !fn.HasAttribute("tc") {
		t.Errorf("HasAttribute(tc) = false, want true")
	}
	if fn.HasAttribute("xdp") {
		t.Errorf("HasAttribute(xdp) = true, want false")
	}
	if !fn.IsAttributed() {
		t.Errorf("IsAttributed() = false, want true")
	}

	attr, ok := fn.Attribute("tc")
	if !ok || len(attr.Args) != 1 {
		t.Errorf("Attribute(tc) = %+v, %v", attr, ok)
	}

	plain := &FunctionDecl{Name: "main"}
	if plain.IsAttributed() {
		t.Errorf("unattributed function reports IsAttributed() = true")
	}
}

func TestForStmtIsRangeForm(t *testing.T) {
	rangeForm := &ForStmt{Var: "i", Start: &IntLiteral{Value: 0}, End: &IntLiteral{Value: 4}}
	if !rangeForm.IsRangeForm() {
		t.Errorf("range-form loop reports IsRangeForm() = false")
	}

	iterForm := &ForStmt{Var: "k", Iter: &Identifier{Name: "m"}}
	if iterForm.IsRangeForm() {
		t.Errorf("iterator-form loop reports IsRangeForm() = true")
	}
}

func TestTypedGetSetType(t *testing.T) {
	id := &Identifier{Name: "x"}
	if id.GetType() != nil {
		t.Fatalf("fresh identifier should have nil type")
	}
	want := &PrimitiveType{Name: "u32"}
	id.SetType(want)
	if id.GetType() != Type(want) {
		t.Errorf("GetType() after SetType() = %v, want %v", id.GetType(), want)
	}
}

func TestAllFunctionsFiltersNonFunctionDecls(t *testing.T) {
	prog := &Program{Decls: []Decl{
		&StructDecl{Name: "S"},
		&FunctionDecl{Name: "main"},
		&MapDecl{Name: "counts"},
		&FunctionDecl{Name: "helper"},
	}}

	fns := prog.AllFunctions()
	if len(fns) != 2 {
		t.Fatalf("AllFunctions() returned %d functions, want 2", len(fns))
	}
	if fns[0].Name != "main" || fns[1].Name != "helper" {
		t.Errorf("AllFunctions() = %v, want [main helper] in source order", fns)
	}
}

func TestNormalizeMapsPromotesGlobalVarDecl(t *testing.T) {
	mt := &MapType{Kind: "hash", Key: &PrimitiveType{Name: "u32"}, Value: &PrimitiveType{Name: "u64"}, MaxEntries: 1024}
	prog := &Program{Decls: []Decl{
		&GlobalVarDecl{Name: "counts", Type: mt, Pinned: true},
		&StructDecl{Name: "S"},
	}}

	NormalizeMaps(prog)

	md, ok := prog.Decls[0].(*MapDecl)
	if !ok {
		t.Fatalf("Decls[0] = %T, want *MapDecl", prog.Decls[0])
	}
	if md.Name != "counts" || !md.Pinned || !md.Global || md.MapType != mt {
		t.Errorf("promoted MapDecl = %+v", md)
	}
	if _, ok := prog.Decls[1].(*StructDecl); !ok {
		t.Errorf("non-map declaration was altered: %T", prog.Decls[1])
	}
}

func TestNormalizeMapsLeavesPlainGlobalsAlone(t *testing.T) {
	prog := &Program{Decls: []Decl{
		&GlobalVarDecl{Name: "limit", Type: &PrimitiveType{Name: "u32"}},
	}}

	NormalizeMaps(prog)

	if _, ok := prog.Decls[0].(*GlobalVarDecl); !ok {
		t.Errorf("non-map global was promoted: %T", prog.Decls[0])
	}
}
