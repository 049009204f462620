package types

import (
	"testing"

	"github.com/SiyuanSun0736/kernelscript/internal/ast"
)

func intLit(v int64) *ast.IntLiteral { return &ast.IntLiteral{Value: v, Raw: "lit"} }

func ident(name string) *ast.Identifier { return &ast.Identifier{Name: name} }

func TestFoldIntLiteral(t *testing.T) {
	v, ok := FoldInt(nil, intLit(42))
	if !ok || v != 42 {
		t.Fatalf("FoldInt(42) = %d, %v", v, ok)
	}
}

func TestFoldIntIdentifierBound(t *testing.T) {
	env := (&ConstEnv{}).Bind("n", 10)
	v, ok := FoldInt(env, ident("n"))
	if !ok || v != 10 {
		t.Fatalf("FoldInt(n) = %d, %v, want 10 true", v, ok)
	}
}

func TestFoldIntIdentifierUnbound(t *testing.T) {
	_, ok := FoldInt(nil, ident("mystery"))
	if ok {
		t.Errorf("FoldInt on unbound identifier succeeded, want failure")
	}
}

func TestFoldIntUnaryOps(t *testing.T) {
	v, ok := FoldInt(nil, &ast.UnaryExpr{Op: "-", X: intLit(5)})
	if !ok || v != -5 {
		t.Errorf("FoldInt(-5) = %d, %v", v, ok)
	}
	v, ok = FoldInt(nil, &ast.UnaryExpr{Op: "~", X: intLit(0)})
	if !ok || v != ^int64(0) {
		t.Errorf("FoldInt(~0) = %d, %v", v, ok)
	}
}

func TestFoldIntBinaryOps(t *testing.T) {
	tests := []struct {
		op   string
		l, r int64
		want int64
	}{
		{"+", 2, 3, 5},
		{"-", 10, 4, 6},
		{"*", 6, 7, 42},
		{"/", 20, 4, 5},
		{"%", 10, 3, 1},
		{"&", 0b1100, 0b1010, 0b1000},
		{"|", 0b1100, 0b1010, 0b1110},
		{"^", 0b1100, 0b1010, 0b0110},
		{"<<", 1, 4, 16},
		{">>", 16, 4, 1},
	}
	for _, tt := range tests {
		v, ok := FoldInt(nil, &ast.BinaryExpr{Op: tt.op, L: intLit(tt.l), R: intLit(tt.r)})
		if !ok || v != tt.want {
			t.Errorf("FoldInt(%d %s %d) = %d, %v, want %d", tt.l, tt.op, tt.r, v, ok, tt.want)
		}
	}
}

func TestFoldIntDivisionByZeroFails(t *testing.T) {
	if _, ok := FoldInt(nil, &ast.BinaryExpr{Op: "/", L: intLit(1), R: intLit(0)}); ok {
		t.Errorf("FoldInt division by zero succeeded, want failure")
	}
	if _, ok := FoldInt(nil, &ast.BinaryExpr{Op: "%", L: intLit(1), R: intLit(0)}); ok {
		t.Errorf("FoldInt modulo by zero succeeded, want failure")
	}
}

func TestFoldIntNonFoldableExpressionFails(t *testing.T) {
	call := &ast.CallExpr{Callee: ident("f")}
	if _, ok := FoldInt(nil, call); ok {
		t.Errorf("FoldInt on a call expression succeeded, want failure")
	}
}

func TestConstEnvBindIsNonDestructive(t *testing.T) {
	base := (&ConstEnv{}).Bind("n", 1)
	extended := base.Bind("m", 2)

	if _, ok := base.Lookup("m"); ok {
		t.Errorf("binding m on extended env leaked back into base env")
	}
	if v, ok := extended.Lookup("n"); !ok || v != 1 {
		t.Errorf("extended env lost access to base binding n: %d, %v", v, ok)
	}
}

func TestConstEnvShadowing(t *testing.T) {
	base := (&ConstEnv{}).Bind("n", 1)
	shadowed := base.Bind("n", 2)

	if v, ok := shadowed.Lookup("n"); !ok || v != 2 {
		t.Errorf("shadowed env Lookup(n) = %d, %v, want 2 true", v, ok)
	}
}
