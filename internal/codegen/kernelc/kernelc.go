// Package kernelc lowers the kernel side of the IR (internal/ir) into the
// eBPF-targeted C a libbpf skeleton build compiles: BTF map definitions,
// one SEC()-annotated function per attach point, and the kfunc/helper/
// private functions they call, with loops lowered per the strategy
// internal/loopanalysis picked for each of them (spec.md §4.5, §4.7).
package kernelc

import (
	"fmt"
	"strings"

	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
	"github.com/SiyuanSun0736/kernelscript/internal/ir"
	"github.com/SiyuanSun0736/kernelscript/internal/loopanalysis"
)

// Generate emits the complete kernel-side C translation unit for prog. It
// aborts on the first construct the verifier could never accept, the same
// hard-abort contract parsing and symbol resolution use.
func Generate(prog *ast.Program, irProg *ir.Program) (string, *kerrors.E) {
	g := &generator{prog: prog, ir: irProg}
	g.preamble()
	for _, d := range prog.Decls {
		switch n := d.(type) {
		case *ast.StructDecl:
			g.genStruct(n)
		case *ast.EnumDecl:
			g.genEnum(n)
		case *ast.TypeAlias:
			g.genTypeAlias(n)
		}
	}
	for _, slot := range irProg.Maps {
		g.genMap(slot)
	}
	for _, fn := range irProg.Kernel.Private {
		if err := g.genFunction(fn, ""); err != nil {
			return "", err
		}
	}
	for _, fn := range irProg.Kernel.Helpers {
		if err := g.genFunction(fn, ""); err != nil {
			return "", err
		}
	}
	for _, fn := range irProg.Kernel.KFuncs {
		if err := g.genFunction(fn, ""); err != nil {
			return "", err
		}
	}
	for _, fn := range irProg.Kernel.Attributed {
		sec, err := attachSection(fn)
		if err != nil {
			return "", err
		}
		if err := g.genFunction(fn, sec); err != nil {
			return "", err
		}
	}
	g.flushCallbacks()
	return g.sb.String(), nil
}

// pendingCallback is a bpf_loop() callback body queued by genFor, emitted
// as its own top-level static function once the enclosing function is
// done. The callback only has access to global maps, not its caller's
// locals — C has no closures — so a loop lowered this way may only
// reference globals in its body; the checker doesn't yet enforce that
// restriction itself (see DESIGN.md).
type pendingCallback struct {
	name  string
	loop  *ast.ForStmt
	loops map[*ast.ForStmt]loopanalysis.Analysis
	depth int
}

func (g *generator) flushCallbacks() {
	for len(g.pending) > 0 {
		cb := g.pending[0]
		g.pending = g.pending[1:]
		g.line("static long %s(__u32 %s, void *__ctx)", cb.name, cb.loop.Var)
		g.line("{")
		for _, inner := range cb.loop.Body.Stmts {
			g.genStmt(inner, 1, cb.loops)
		}
		g.line("\treturn 0;")
		g.line("}")
		g.line("")
	}
}

type generator struct {
	pending    []pendingCallback
	prog       *ast.Program
	ir         *ir.Program
	sb         strings.Builder
	tmpCounter int
}

func (g *generator) line(format string, args ...interface{}) {
	fmt.Fprintf(&g.sb, format+"\n", args...)
}

// freshTmp names a scratch variable used to hold a map key or value before
// its address is taken. spec.md §8 property 6 forbids `&(<literal>)` ever
// appearing in generated C: every map operation's key/value goes through
// one of these named temporaries first, literal or not.
func (g *generator) freshTmp(prefix string) string {
	g.tmpCounter++
	return fmt.Sprintf("%s_tmp%d", prefix, g.tmpCounter)
}

func (g *generator) mapType(name string) (*ast.MapType, bool) {
	slot, ok := g.ir.MapSlot(name)
	if !ok {
		return nil, false
	}
	return slot.Decl.MapType, true
}

func (g *generator) preamble() {
	g.line("// Code generated by the kernelscript compiler. DO NOT EDIT.")
	g.line("#include <linux/bpf.h>")
	g.line("#include <linux/types.h>")
	g.line("#include <bpf/bpf_helpers.h>")
	g.line("")
}

func attachSection(fn *ast.FunctionDecl) (string, *kerrors.E) {
	if fn.HasAttribute("xdp") {
		return "xdp", nil
	}
	if a, ok := fn.Attribute("tc"); ok {
		if len(a.Args) == 1 {
			if lit, ok := a.Args[0].(*ast.StringLiteral); ok {
				return "tc/" + lit.Value, nil
			}
		}
		return "", kerrors.New(fn.Span().Start, kerrors.KindAttributeMisuse, "@tc requires a literal direction")
	}
	if a, ok := fn.Attribute("kprobe"); ok {
		if len(a.Args) == 1 {
			if lit, ok := a.Args[0].(*ast.StringLiteral); ok {
				return "kprobe/" + lit.Value, nil
			}
		}
		return "", kerrors.New(fn.Span().Start, kerrors.KindAttributeMisuse, "@kprobe requires a literal symbol name")
	}
	return "", kerrors.New(fn.Span().Start, kerrors.KindAttributeMisuse, "function has no recognized attach-point attribute")
}

func (g *generator) genStruct(d *ast.StructDecl) {
	g.line("struct %s {", d.Name)
	for _, f := range d.Fields {
		g.line("\t%s;", cDecl(f.Type, f.Name))
	}
	if d.Packed {
		g.line("} __attribute__((packed));")
	} else {
		g.line("};")
	}
	g.line("")
}

func (g *generator) genEnum(d *ast.EnumDecl) {
	g.line("enum %s {", d.Name)
	for _, m := range d.Members {
		if m.Value != nil {
			g.line("\t%s = %d,", m.Name, *m.Value)
		} else {
			g.line("\t%s,", m.Name)
		}
	}
	g.line("};")
	g.line("")
}

func (g *generator) genTypeAlias(d *ast.TypeAlias) {
	g.line("typedef %s;", cDecl(d.Aliased, d.Name))
}

// genMap emits a BTF-style map definition section (spec.md §4.7): struct
// of four pointer-typed members describing type/max_entries/key/value,
// which is the convention libbpf's skeleton generator recognizes.
func (g *generator) genMap(slot *ir.MapSlot) {
	mt := slot.Decl.MapType
	g.line("struct {")
	g.line("\t__uint(type, BPF_MAP_TYPE_%s);", strings.ToUpper(mt.Kind))
	g.line("\t__uint(max_entries, %d);", mt.MaxEntries)
	if mt.Kind != "ringbuf" && mt.Kind != "perf_event_array" {
		g.line("\t__type(key, %s);", cTypeName(mt.Key))
		g.line("\t__type(value, %s);", cTypeName(mt.Value))
	}
	if slot.Decl.Pinned {
		g.line("\t__uint(pinning, LIBBPF_PIN_BY_NAME);")
	}
	g.line("} %s SEC(\".maps\");", slot.Name)
	g.line("")
}

func (g *generator) genFunction(fn *ast.FunctionDecl, section string) *kerrors.E {
	if section != "" {
		g.line("SEC(%q)", section)
	}
	retC := "void"
	if fn.ReturnType != nil {
		retC = cTypeName(fn.ReturnType)
	}
	var params []string
	for _, p := range fn.Params {
		params = append(params, cDecl(p.Type, p.Name))
	}
	if fn.HasAttribute("kfunc") {
		g.line("__bpf_kfunc %s %s(%s)", retC, fn.Name, strings.Join(params, ", "))
	} else {
		g.line("static __always_inline %s %s(%s)", retC, fn.Name, strings.Join(params, ", "))
	}
	g.line("{")
	loops := make(map[*ast.ForStmt]loopanalysis.Analysis)
	for _, a := range loopanalysis.ClassifyFunction(fn.Body) {
		loops[a.Loop] = a
	}
	for _, s := range fn.Body.Stmts {
		if err := g.genStmt(s, 1, loops); err != nil {
			return err
		}
	}
	g.line("}")
	g.line("")
	return nil
}

func (g *generator) genStmt(stmt ast.Stmt, depth int, loops map[*ast.ForStmt]loopanalysis.Analysis) *kerrors.E {
	ind := strings.Repeat("\t", depth)
	switch s := stmt.(type) {
	case *ast.LocalVarDecl:
		if s.Init != nil {
			g.line("%s%s = %s;", ind, cDecl(declType(s), s.Name), g.cExpr(s.Init))
		} else {
			g.line("%s%s;", ind, cDecl(declType(s), s.Name))
		}
	case *ast.AssignStmt:
		if idx, ok := s.Target.(*ast.IndexExpr); ok {
			g.genMapAssign(ind, idx, s.Op, s.Value)
		} else {
			g.line("%s%s %s %s;", ind, g.cExpr(s.Target), s.Op, g.cExpr(s.Value))
		}
	case *ast.ExprStmt:
		g.line("%s%s;", ind, g.cExpr(s.X))
	case *ast.IfStmt:
		g.line("%sif (%s) {", ind, g.cExpr(s.Cond))
		for _, inner := range s.Then.Stmts {
			if err := g.genStmt(inner, depth+1, loops); err != nil {
				return err
			}
		}
		if s.Else != nil {
			g.line("%s} else {", ind)
			switch e := s.Else.(type) {
			case *ast.BlockStmt:
				for _, inner := range e.Stmts {
					if err := g.genStmt(inner, depth+1, loops); err != nil {
						return err
					}
				}
			default:
				if err := g.genStmt(s.Else, depth+1, loops); err != nil {
					return err
				}
			}
		}
		g.line("%s}", ind)
	case *ast.ForStmt:
		return g.genFor(s, depth, loops[s])
	case *ast.ReturnStmt:
		if s.Value == nil {
			g.line("%sreturn;", ind)
		} else {
			g.line("%sreturn %s;", ind, g.cExpr(s.Value))
		}
	case *ast.BreakStmt:
		g.line("%sbreak;", ind)
	case *ast.ContinueStmt:
		g.line("%scontinue;", ind)
	case *ast.DeleteStmt:
		g.genMapDelete(ind, s.Target)
	case *ast.BlockStmt:
		g.line("%s{", ind)
		for _, inner := range s.Stmts {
			if err := g.genStmt(inner, depth+1, loops); err != nil {
				return err
			}
		}
		g.line("%s}", ind)
	}
	return nil
}

// genMapAssign lowers `m[k] = v` (and compound forms like `m[k] += v`) to
// a key/value temporary pair followed by bpf_map_update_elem, never taking
// the address of a literal directly (spec.md §8 property 6).
func (g *generator) genMapAssign(ind string, idx *ast.IndexExpr, op string, value ast.Expr) {
	mapName := g.cExpr(idx.Map)
	keyC, valC := "__u64", "__u64"
	if mt, ok := g.mapType(mapName); ok {
		keyC = cTypeName(mt.Key)
		valC = cTypeName(mt.Value)
	}
	kTmp := g.freshTmp("k")
	vTmp := g.freshTmp("v")
	g.line("%s{", ind)
	g.line("%s\t%s %s = %s;", ind, keyC, kTmp, g.cExpr(idx.Key))
	if op == "=" {
		g.line("%s\t%s %s = %s;", ind, valC, vTmp, g.cExpr(value))
	} else {
		binOp := strings.TrimSuffix(op, "=")
		curPtr := vTmp + "_cur"
		g.line("%s\t%s *%s = bpf_map_lookup_elem(&%s, &%s);", ind, valC, curPtr, mapName, kTmp)
		g.line("%s\t%s %s = %s ? (*%s %s (%s)) : (%s);", ind, valC, vTmp, curPtr, curPtr, binOp, g.cExpr(value), g.cExpr(value))
	}
	g.line("%s\tbpf_map_update_elem(&%s, &%s, &%s, BPF_ANY);", ind, mapName, kTmp, vTmp)
	g.line("%s}", ind)
}

// genMapDelete lowers `delete m[k]` the same way: a named key temporary,
// never a literal's address.
func (g *generator) genMapDelete(ind string, idx *ast.IndexExpr) {
	mapName := g.cExpr(idx.Map)
	keyC := "__u64"
	if mt, ok := g.mapType(mapName); ok {
		keyC = cTypeName(mt.Key)
	}
	kTmp := g.freshTmp("k")
	g.line("%s{", ind)
	g.line("%s\t%s %s = %s;", ind, keyC, kTmp, g.cExpr(idx.Key))
	g.line("%s\tbpf_map_delete_elem(&%s, &%s);", ind, mapName, kTmp)
	g.line("%s}", ind)
}

func declType(s *ast.LocalVarDecl) ast.Type {
	if s.Type != nil {
		return s.Type
	}
	if s.Init != nil {
		return s.Init.GetType()
	}
	return &ast.PrimitiveType{Name: "i64"}
}

// genFor lowers a loop according to the strategy loopanalysis picked:
// unrolled inline repetition for small static trip counts, a plain C for
// for moderate static counts, and a bpf_loop() helper call for anything
// unbounded — the only loop shape the verifier accepts without a
// compile-time bound (spec.md §4.4, §9).
func (g *generator) genFor(s *ast.ForStmt, depth int, analysis loopanalysis.Analysis) *kerrors.E {
	ind := strings.Repeat("\t", depth)
	loops := map[*ast.ForStmt]loopanalysis.Analysis{}
	for _, nested := range loopanalysis.ClassifyFunction(s.Body) {
		loops[nested.Loop] = nested
	}

	switch analysis.Strategy {
	case loopanalysis.UnrolledLoop:
		for i := analysis.Bound.Lo; i < analysis.Bound.Hi; i++ {
			g.line("%s{", ind)
			g.line("%s\tconst __s64 %s = %d;", ind, s.Var, i)
			for _, inner := range s.Body.Stmts {
				if err := g.genStmt(inner, depth+1, loops); err != nil {
					return err
				}
			}
			g.line("%s}", ind)
		}
		return nil

	case loopanalysis.SimpleLoop:
		g.line("%sfor (__s64 %s = %d; %s < %d; %s++) {", ind, s.Var, analysis.Bound.Lo, s.Var, analysis.Bound.Hi, s.Var)
		for _, inner := range s.Body.Stmts {
			if err := g.genStmt(inner, depth+1, loops); err != nil {
				return err
			}
		}
		g.line("%s}", ind)
		return nil

	default: // BpfLoopHelper
		cbName := s.Var + "_loop_cb"
		g.line("%s{", ind)
		g.line("%s\tstatic long %s(__u32 %s, void *__ctx);", ind, cbName, s.Var)
		g.line("%s\tlong __count = %s;", ind, loopBound(s, analysis))
		g.line("%s\tbpf_loop(__count, %s, NULL, 0);", ind, cbName)
		g.line("%s}", ind)
		g.pending = append(g.pending, pendingCallback{name: cbName, loop: s, loops: loops, depth: depth})
		return nil
	}
}

func loopBound(s *ast.ForStmt, a loopanalysis.Analysis) string {
	if a.Bound.Bounded {
		return fmt.Sprintf("%d", a.Bound.Hi-a.Bound.Lo)
	}
	return "BPF_LOOP_MAX_ITERS"
}

// cTypeName lowers a KernelScript type to its C spelling, using the
// <linux/types.h> fixed-width aliases the kernel headers define.
func cTypeName(t ast.Type) string {
	switch x := t.(type) {
	case *ast.PrimitiveType:
		switch x.Name {
		case "u8":
			return "__u8"
		case "u16":
			return "__u16"
		case "u32":
			return "__u32"
		case "u64":
			return "__u64"
		case "i8":
			return "__s8"
		case "i16":
			return "__s16"
		case "i32":
			return "__s32"
		case "i64":
			return "__s64"
		case "bool":
			return "bool"
		}
		return x.Name
	case *ast.StrType:
		return fmt.Sprintf("char[%d]", x.Cap+1)
	case *ast.NamedType:
		return "struct " + x.Name
	case *ast.PointerType:
		return cTypeName(x.Elem) + " *"
	case *ast.ArrayType:
		return cTypeName(x.Elem)
	default:
		return "void"
	}
}

// cDecl formats a C variable declaration, putting array and fixed-string
// dimensions after the identifier the way C requires.
func cDecl(t ast.Type, name string) string {
	if at, ok := t.(*ast.ArrayType); ok {
		return fmt.Sprintf("%s %s[%d]", cTypeName(at.Elem), name, at.Size)
	}
	if st, ok := t.(*ast.StrType); ok {
		return fmt.Sprintf("char %s[%d]", name, st.Cap+1)
	}
	return cTypeName(t) + " " + name
}

func (g *generator) cExpr(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Identifier:
		return x.Name
	case *ast.IntLiteral:
		return x.Raw
	case *ast.StringLiteral:
		return fmt.Sprintf("%q", x.Value)
	case *ast.BoolLiteral:
		if x.Value {
			return "true"
		}
		return "false"
	case *ast.NoneLiteral:
		return "0"
	case *ast.UnaryExpr:
		return x.Op + g.cExpr(x.X)
	case *ast.BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", g.cExpr(x.L), x.Op, g.cExpr(x.R))
	case *ast.CallExpr:
		return g.cCall(x)
	case *ast.IndexExpr:
		return g.genMapRead(x)
	case *ast.FieldExpr:
		return fmt.Sprintf("%s.%s", g.cExpr(x.X), x.Field)
	case *ast.ArrowExpr:
		return fmt.Sprintf("%s->%s", g.cExpr(x.X), x.Field)
	default:
		return ""
	}
}

// genMapRead lowers a map-index expression `m[k]` to a GNU statement
// expression that looks the key up through a named temporary, never the
// literal itself (spec.md §8 property 6), yielding the stored value or a
// zeroed one if the key was absent — the C-side mirror of the `V | none`
// the checker gives this expression (internal/types' Optional).
func (g *generator) genMapRead(x *ast.IndexExpr) string {
	mapName := g.cExpr(x.Map)
	keyC, valC := "__u64", "__u64"
	if mt, ok := g.mapType(mapName); ok {
		keyC = cTypeName(mt.Key)
		valC = cTypeName(mt.Value)
	}
	kTmp := g.freshTmp("k")
	vPtr := kTmp + "_vp"
	return fmt.Sprintf("({ %s %s = %s; %s *%s = bpf_map_lookup_elem(&%s, &%s); %s ? *%s : (%s){0}; })",
		keyC, kTmp, g.cExpr(x.Key), valC, vPtr, mapName, kTmp, vPtr, vPtr, valC)
}

func (g *generator) cCall(x *ast.CallExpr) string {
	id, ok := x.Callee.(*ast.Identifier)
	name := ""
	if ok {
		name = id.Name
	}
	var args []string
	for _, a := range x.Args {
		args = append(args, g.cExpr(a))
	}
	switch name {
	case "print":
		if len(args) == 0 {
			return "bpf_printk(\"\\n\")"
		}
		rest := args[1:]
		if len(rest) == 0 {
			return fmt.Sprintf("bpf_printk(%s \"\\n\")", args[0])
		}
		return fmt.Sprintf("bpf_printk(%s \"\\n\", %s)", args[0], strings.Join(rest, ", "))
	case "printf":
		if len(args) == 0 {
			return "bpf_printk(\"\")"
		}
		return fmt.Sprintf("bpf_printk(%s)", strings.Join(args, ", "))
	default:
		return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
	}
}
