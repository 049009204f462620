package parser

import (
	"testing"

	"github.com/SiyuanSun0736/kernelscript/internal/ast"
)

func parseOK(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := New("t.ks", src)
	prog, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", src, err)
	}
	return prog
}

func TestParseMainFunction(t *testing.T) {
	prog := parseOK(t, "fn main() {\n}\n")
	if len(prog.Decls) != 1 {
		t.Fatalf("len(Decls) = %d, want 1", len(prog.Decls))
	}
	fn, ok := prog.Decls[0].(*ast.FunctionDecl)
	if !ok {
		t.Fatalf("Decls[0] = %T, want *ast.FunctionDecl", prog.Decls[0])
	}
	if fn.Name != "main" || len(fn.Params) != 0 || fn.ReturnType != nil {
		t.Errorf("main decl = %+v", fn)
	}
}

func TestParseAttributedFunction(t *testing.T) {
	prog := parseOK(t, `
@xdp
fn drop(ctx: *xdp_md) -> xdp_action {
	return XDP_DROP
}
`)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	if !fn.HasAttribute("xdp") {
		t.Fatalf("expected @xdp attribute, got %+v", fn.Attributes)
	}
	if len(fn.Params) != 1 || fn.Params[0].Name != "ctx" {
		t.Errorf("params = %+v", fn.Params)
	}
	if _, ok := fn.Params[0].Type.(*ast.PointerType); !ok {
		t.Errorf("param type = %T, want *ast.PointerType", fn.Params[0].Type)
	}
}

func TestParseTCAttributeWithStringArg(t *testing.T) {
	prog := parseOK(t, `
@tc("ingress")
fn classify(skb: *__sk_buff) -> i32 {
	return TC_ACT_OK
}
`)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	attr, ok := fn.Attribute("tc")
	if !ok || len(attr.Args) != 1 {
		t.Fatalf("tc attribute = %+v, %v", attr, ok)
	}
	lit, ok := attr.Args[0].(*ast.StringLiteral)
	if !ok || lit.Value != "ingress" {
		t.Errorf("tc arg = %+v", attr.Args[0])
	}
}

func TestParseMapDeclaration(t *testing.T) {
	prog := parseOK(t, `var counts : hash<u32, u64>(1024)`)
	md, ok := prog.Decls[0].(*ast.MapDecl)
	if !ok {
		t.Fatalf("Decls[0] = %T, want *ast.MapDecl", prog.Decls[0])
	}
	if md.MapType.Kind != "hash" || md.MapType.MaxEntries != 1024 {
		t.Errorf("map type = %+v", md.MapType)
	}
}

func TestParsePinnedMap(t *testing.T) {
	prog := parseOK(t, `pin var counts : hash<u32, u64>(16)`)
	md := prog.Decls[0].(*ast.MapDecl)
	if !md.Pinned {
		t.Errorf("expected pinned map")
	}
}

func TestParseRequirePragma(t *testing.T) {
	prog := parseOK(t, `require kernel ">=5.17.0"`)
	pg, ok := prog.Decls[0].(*ast.Pragma)
	if !ok {
		t.Fatalf("Decls[0] = %T, want *ast.Pragma", prog.Decls[0])
	}
	if pg.Name != "kernel" || pg.Value != ">=5.17.0" {
		t.Errorf("pragma = %+v", pg)
	}
}

func TestParseRangeForLoop(t *testing.T) {
	prog := parseOK(t, `
fn main() {
	for i in 0..4 {
		print("%d", i)
	}
}
`)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	forStmt := fn.Body.Stmts[0].(*ast.ForStmt)
	if !forStmt.IsRangeForm() {
		t.Fatalf("expected range-form for loop")
	}
}

func TestParseIteratorForLoop(t *testing.T) {
	prog := parseOK(t, `
fn main() {
	for k in m {
		delete m[k]
	}
}
`)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	forStmt := fn.Body.Stmts[0].(*ast.ForStmt)
	if forStmt.IsRangeForm() {
		t.Fatalf("expected iterator-form for loop")
	}
	if _, ok := forStmt.Body.Stmts[0].(*ast.DeleteStmt); !ok {
		t.Errorf("loop body stmt[0] = %T, want *ast.DeleteStmt", forStmt.Body.Stmts[0])
	}
}

func TestParseBinaryExprPrecedence(t *testing.T) {
	prog := parseOK(t, `
fn main() {
	var x = 1 + 2 * 3
}
`)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	decl := fn.Body.Stmts[0].(*ast.LocalVarDecl)
	bin := decl.Init.(*ast.BinaryExpr)
	if bin.Op != "+" {
		t.Fatalf("top-level op = %q, want +", bin.Op)
	}
	rhs, ok := bin.R.(*ast.BinaryExpr)
	if !ok || rhs.Op != "*" {
		t.Errorf("rhs = %+v, want a '*' expression", bin.R)
	}
}

func TestParseIntLiteralSuffix(t *testing.T) {
	prog := parseOK(t, `
fn main() {
	var x = 123u32
}
`)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	decl := fn.Body.Stmts[0].(*ast.LocalVarDecl)
	lit := decl.Init.(*ast.IntLiteral)
	if lit.Value != 123 || lit.Width != "u32" {
		t.Errorf("literal = %+v, want Value=123 Width=u32", lit)
	}
}

func TestParseMapIndexAndAssign(t *testing.T) {
	prog := parseOK(t, `
fn main() {
	counts[k] = 1
}
`)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	assign := fn.Body.Stmts[0].(*ast.AssignStmt)
	idx, ok := assign.Target.(*ast.IndexExpr)
	if !ok {
		t.Fatalf("target = %T, want *ast.IndexExpr", assign.Target)
	}
	if idx.Map.(*ast.Identifier).Name != "counts" {
		t.Errorf("map ident = %+v", idx.Map)
	}
}

func TestParseCompoundAssignOps(t *testing.T) {
	prog := parseOK(t, `
fn main() {
	var x = 0
	x += 1
}
`)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	assign := fn.Body.Stmts[1].(*ast.AssignStmt)
	if assign.Op != "+=" {
		t.Errorf("Op = %q, want +=", assign.Op)
	}
}

func TestParseStructDeclPacked(t *testing.T) {
	prog := parseOK(t, `
struct Event packed {
	pid: u32
	ts: u64
}
`)
	sd := prog.Decls[0].(*ast.StructDecl)
	if !sd.Packed {
		t.Errorf("expected Packed=true")
	}
	if len(sd.Fields) != 2 {
		t.Fatalf("len(Fields) = %d, want 2", len(sd.Fields))
	}
}

func TestParseErrorOnBadTopLevelToken(t *testing.T) {
	p := New("t.ks", `123`)
	if _, err := p.Parse(); err == nil {
		t.Fatalf("expected a parse error for a bare integer at top level")
	}
}

func TestParseDeleteRequiresIndexExpr(t *testing.T) {
	p := New("t.ks", `
fn main() {
	delete x
}
`)
	if _, err := p.Parse(); err == nil {
		t.Fatalf("expected a parse error: delete requires a map index expression")
	}
}

func TestParseConfigDeclWithDefaults(t *testing.T) {
	prog := parseOK(t, `
config Settings {
	limit: u32 = 100
	enabled: bool
}
`)
	cd := prog.Decls[0].(*ast.ConfigDecl)
	if len(cd.Fields) != 2 {
		t.Fatalf("len(Fields) = %d, want 2", len(cd.Fields))
	}
	if cd.Fields[0].Default == nil {
		t.Errorf("expected a default for 'limit'")
	}
	if cd.Fields[1].Default != nil {
		t.Errorf("expected no default for 'enabled'")
	}
}
