// Package includes resolves `include "x.kh"` directives into synthetic
// root-scope declarations. It is a pure function from a header name to a
// list of declarations: the rest of the pipeline never learns whether a
// type or constant came from user source or from an include, which keeps
// header provenance out of every later stage (spec.md §9).
package includes

import (
	"fmt"

	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	"github.com/SiyuanSun0736/kernelscript/internal/position"
)

func synthSpan() position.Span {
	p := position.Position{File: "<builtin>", Line: 1, Column: 1}
	return position.Span{Start: p, End: p}
}

func field(name string, typ ast.Type) ast.StructField {
	return ast.StructField{Name: name, Type: typ}
}

func prim(name string) ast.Type {
	return &ast.PrimitiveType{Name: name}
}

func constDecl(name, typeName string, value int64) ast.Decl {
	var typ ast.Type = &ast.NamedType{Name: typeName}
	switch typeName {
	case "u8", "u16", "u32", "u64", "i8", "i16", "i32", "i64", "bool":
		typ = prim(typeName)
	}
	return &ast.GlobalVarDecl{
		Name: name,
		Type: typ,
		Init: &ast.IntLiteral{Value: value, Raw: fmt.Sprintf("%d", value)},
		Sp:   synthSpan(),
	}
}

// xdpHeader provides the xdp_md context struct and the xdp_action enum
// with its five conventional return values.
func xdpHeader() []ast.Decl {
	sp := synthSpan()
	return []ast.Decl{
		&ast.StructDecl{
			Name: "xdp_md",
			Sp:   sp,
			Fields: []ast.StructField{
				field("data", prim("u64")),
				field("data_end", prim("u64")),
				field("data_meta", prim("u64")),
				field("ingress_ifindex", prim("u32")),
				field("rx_queue_index", prim("u32")),
				field("egress_ifindex", prim("u32")),
			},
		},
		&ast.EnumDecl{Name: "xdp_action", Sp: sp},
		constDecl("XDP_ABORTED", "xdp_action", 0),
		constDecl("XDP_DROP", "xdp_action", 1),
		constDecl("XDP_PASS", "xdp_action", 2),
		constDecl("XDP_TX", "xdp_action", 3),
		constDecl("XDP_REDIRECT", "xdp_action", 4),
	}
}

// tcHeader provides the __sk_buff context struct and the TC_ACT_* verdict
// constants used as an i32 return value from a @tc function.
func tcHeader() []ast.Decl {
	sp := synthSpan()
	return []ast.Decl{
		&ast.StructDecl{
			Name: "__sk_buff",
			Sp:   sp,
			Fields: []ast.StructField{
				field("len", prim("u32")),
				field("protocol", prim("u32")),
				field("mark", prim("u32")),
				field("ifindex", prim("u32")),
				field("priority", prim("u32")),
				field("data", prim("u64")),
				field("data_end", prim("u64")),
			},
		},
		constDecl("TC_ACT_UNSPEC", "i32", -1),
		constDecl("TC_ACT_OK", "i32", 0),
		constDecl("TC_ACT_RECLASSIFY", "i32", 1),
		constDecl("TC_ACT_SHOT", "i32", 2),
		constDecl("TC_ACT_PIPE", "i32", 3),
		constDecl("TC_ACT_REDIRECT", "i32", 7),
	}
}

// bpfHeader provides generic helper constants shared across attach types.
func bpfHeader() []ast.Decl {
	return []ast.Decl{
		constDecl("BPF_ANY", "u64", 0),
		constDecl("BPF_NOEXIST", "u64", 1),
		constDecl("BPF_EXIST", "u64", 2),
	}
}

var registry = map[string]func() []ast.Decl{
	"xdp.kh":  xdpHeader,
	"tc.kh":   tcHeader,
	"bpf.kh":  bpfHeader,
}

// Resolve returns the synthetic declarations a header name injects, or nil
// with ok=false for a header KernelScript doesn't know about (user-defined
// *.kh headers that only declare struct shims the parser already handles
// as ordinary source text are out of scope here per spec.md §1).
func Resolve(header string) ([]ast.Decl, bool) {
	fn, ok := registry[header]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// ResolveAll resolves every include directive's header, in order,
// flattening the result into one declaration list ready for injection at
// root scope ahead of user declarations.
func ResolveAll(headers []string) []ast.Decl {
	var out []ast.Decl
	for _, h := range headers {
		if decls, ok := Resolve(h); ok {
			out = append(out, decls...)
		}
	}
	return out
}
