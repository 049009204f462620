package includes

import (
	"testing"

	"github.com/SiyuanSun0736/kernelscript/internal/ast"
)

func TestResolveKnownHeaders(t *testing.T) {
	tests := []struct {
		header string
		want   string // a name expected among the returned decls
	}{
		{"xdp.kh", "xdp_md"},
		{"tc.kh", "__sk_buff"},
		{"bpf.kh", "BPF_ANY"},
	}
	for _, tt := range tests {
		decls, ok := Resolve(tt.header)
		if !ok {
			t.Fatalf("Resolve(%q) ok = false", tt.header)
		}
		if !containsDeclNamed(decls, tt.want) {
			t.Errorf("Resolve(%q) missing expected declaration %q", tt.header, tt.want)
		}
	}
}

func TestResolveUnknownHeader(t *testing.T) {
	decls, ok := Resolve("nonexistent.kh")
	if ok {
		t.Errorf("Resolve(unknown) ok = true, want false")
	}
	if decls != nil {
		t.Errorf("Resolve(unknown) decls = %v, want nil", decls)
	}
}

func TestResolveAllFlattensAndSkipsUnknown(t *testing.T) {
	decls := ResolveAll([]string{"xdp.kh", "unknown.kh", "bpf.kh"})

	if !containsDeclNamed(decls, "xdp_md") || !containsDeclNamed(decls, "BPF_ANY") {
		t.Errorf("ResolveAll() missing expected declarations: %v", decls)
	}
}

func TestResolveAllEmpty(t *testing.T) {
	if got := ResolveAll(nil); got != nil {
		t.Errorf("ResolveAll(nil) = %v, want nil", got)
	}
}

func declName(d ast.Decl) (string, bool) {
	switch n := d.(type) {
	case *ast.StructDecl:
		return n.Name, true
	case *ast.EnumDecl:
		return n.Name, true
	case *ast.GlobalVarDecl:
		return n.Name, true
	default:
		return "", false
	}
}

func containsDeclNamed(decls []ast.Decl, name string) bool {
	for _, d := range decls {
		if n, ok := declName(d); ok && n == name {
			return true
		}
	}
	return false
}
