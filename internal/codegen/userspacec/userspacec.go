// Package userspacec lowers the userspace side of the IR (internal/ir)
// into the orchestrator C a libbpf skeleton links against: the generated
// object's open/load/attach lifecycle, map file descriptors (including
// the pinned-globals map), config writes, and main's own logic translated
// the same way kernelc translates kernel-side bodies (spec.md §4.7).
package userspacec

import (
	"fmt"
	"strings"

	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
	"github.com/SiyuanSun0736/kernelscript/internal/ir"
)

// Generate emits the complete userspace C translation unit for prog.
func Generate(prog *ast.Program, irProg *ir.Program) (string, *kerrors.E) {
	g := &generator{prog: prog, ir: irProg}
	g.preamble()
	if irProg.Userspace.ArgsStruct != nil {
		g.line("#include <getopt.h>")
		g.line("")
	}

	for _, d := range prog.Decls {
		switch n := d.(type) {
		case *ast.StructDecl:
			g.genStruct(n)
		case *ast.ConfigDecl:
			g.genConfigStruct(n)
		}
	}

	g.genMapFDs()

	for _, fn := range irProg.Userspace.Funcs {
		if err := g.genFunction(fn); err != nil {
			return "", err
		}
	}
	if irProg.Userspace.Main != nil {
		if err := g.genMain(irProg); err != nil {
			return "", err
		}
	}

	return g.sb.String(), nil
}

type generator struct {
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
	g.line("#include <stdio.h>")
	g.line("#include <stdlib.h>")
	g.line("#include <string.h>")
	g.line("#include <bpf/libbpf.h>")
	g.line("#include \"program.skel.h\"")
	g.line("")
}

func (g *generator) genStruct(d *ast.StructDecl) {
	g.line("struct %s {", d.Name)
	for _, f := range d.Fields {
		g.line("\t%s;", cDecl(f.Type, f.Name))
	}
	g.line("};")
	g.line("")
}

func (g *generator) genConfigStruct(d *ast.ConfigDecl) {
	g.line("struct %s_config {", d.Name)
	for _, f := range d.Fields {
		g.line("\t%s;", cDecl(f.Type, f.Name))
	}
	g.line("};")
	g.line("")
}

// genMapFDs declares one file-descriptor global per map slot, plus the
// single shared pinned_globals_map_fd set spec.md §4.5/§4.7 requires
// every pinned map's fd to live in: one identifier, indexed by each
// pinned map's position among PinnedGlobals, rather than a dedicated
// variable per pinned map name.
func (g *generator) genMapFDs() {
	for _, slot := range g.ir.Maps {
		g.line("static int %s_fd = -1;", slot.Name)
	}
	if len(g.ir.PinnedGlobals) > 0 {
		g.line("static int pinned_globals_map_fd[%d];", len(g.ir.PinnedGlobals))
	}
	g.line("")
}

// fdExpr is the C expression a map read/write/delete call site uses to
// reach a map's file descriptor: a pinned map dispatches through its
// slot in the shared pinned_globals_map_fd set (spec.md §8 property 7),
// everything else through its own plain <name>_fd.
func (g *generator) fdExpr(mapName string) string {
	if idx, ok := g.pinnedIndex(mapName); ok {
		return fmt.Sprintf("pinned_globals_map_fd[%d]", idx)
	}
	return mapName + "_fd"
}

func (g *generator) pinnedIndex(mapName string) (int, bool) {
	for i, slot := range g.ir.PinnedGlobals {
		if slot.Name == mapName {
			return i, true
		}
	}
	return 0, false
}

func (g *generator) genFunction(fn *ast.FunctionDecl) *kerrors.E {
	retC := "void"
	if fn.ReturnType != nil {
		retC = cTypeName(fn.ReturnType)
	}
	var params []string
	for _, p := range fn.Params {
		params = append(params, cDecl(p.Type, p.Name))
	}
	g.line("static %s %s(%s)", retC, fn.Name, strings.Join(params, ", "))
	g.line("{")
	for _, s := range fn.Body.Stmts {
		if err := g.genStmt(s, 1); err != nil {
			return err
		}
	}
	g.line("}")
	g.line("")
	return nil
}

// genMain emits the userspace entry point: object open/load/attach via
// the libbpf skeleton, one *_fd assignment per map slot, each pinned map's
// fd copied into its pinned_globals_map_fd slot (the pin path itself is
// not opened), then main's own statements translated
// verbatim, and a teardown block on the way out. The skeleton lifecycle
// itself only appears when main actually calls load(...) (spec.md §8
// property 8: `program_bpf__open_and_load` is conditioned on that call,
// not unconditionally emitted for every program).
func (g *generator) genMain(irProg *ir.Program) *kerrors.E {
	hasLoad := len(irProg.Userspace.Loads) > 0

	g.line("int main(int argc, char **argv)")
	g.line("{")
	if irProg.Userspace.ArgsStruct != nil {
		g.genArgsParsing(irProg.Userspace.ArgsParam, irProg.Userspace.ArgsStruct)
	}
	if !hasLoad {
		for _, s := range irProg.Userspace.Main.Body.Stmts {
			if err := g.genStmt(s, 1); err != nil {
				return err
			}
		}
		g.line("\treturn 0;")
		g.line("}")
		return nil
	}

	g.line("\tstruct program_bpf *skel;")
	g.line("\tint err;")
	g.line("")
	g.line("\tskel = program_bpf__open_and_load();")
	g.line("\tif (!skel) {")
	g.line("\t\tfprintf(stderr, \"failed to open and load skeleton\\n\");")
	g.line("\t\treturn 1;")
	g.line("\t}")
	g.line("")
	g.line("\terr = program_bpf__attach(skel);")
	g.line("\tif (err) {")
	g.line("\t\tfprintf(stderr, \"failed to attach skeleton: %%d\\n\", err);")
	g.line("\t\tgoto cleanup;")
	g.line("\t}")
	g.line("")
	for _, slot := range irProg.Maps {
		g.line("\t%s_fd = bpf_map__fd(skel->maps.%s);", slot.Name, slot.Name)
	}
	for i, slot := range irProg.PinnedGlobals {
		g.line("\tpinned_globals_map_fd[%d] = %s_fd;", i, slot.Name)
	}
	g.line("")

	for _, l := range irProg.Userspace.Loads {
		g.line("\t// load(%q) resolved to the program_bpf__open_and_load() call above", l.Arg)
	}

	for _, s := range irProg.Userspace.Main.Body.Stmts {
		if err := g.genStmt(s, 1); err != nil {
			return err
		}
	}

	g.line("")
	g.line("\terr = 0;")
	g.line("cleanup:")
	g.line("\tprogram_bpf__destroy(skel);")
	g.line("\treturn err < 0 ? -err : err;")
	g.line("}")
	return nil
}

// genArgsParsing emits getopt_long-based long-option parsing into an
// instance of main's declared args struct, ahead of main's own body
// (spec.md §4.7, the rate-limiter `main(args: S) -> i32` CLI scenario):
// every struct field becomes a `--<field>` long option, coerced per its
// declared type. A str(N) field that overflows its bound rejects with
// exit code 1 rather than silently truncating.
func (g *generator) genArgsParsing(param *ast.Param, sd *ast.StructDecl) {
	g.line("\tstruct %s %s;", sd.Name, param.Name)
	g.line("\tmemset(&%s, 0, sizeof(%s));", param.Name, param.Name)
	g.line("\tstatic struct option long_options[] = {")
	for _, f := range sd.Fields {
		g.line("\t\t{%q, required_argument, 0, 0},", f.Name)
	}
	g.line("\t\t{0, 0, 0, 0},")
	g.line("\t};")
	g.line("\t{")
	g.line("\t\tint opt_index = 0;")
	g.line("\t\tint c;")
	g.line("\t\twhile ((c = getopt_long(argc, argv, \"\", long_options, &opt_index)) != -1) {")
	g.line("\t\t\tif (c != 0) {")
	g.line("\t\t\t\tcontinue;")
	g.line("\t\t\t}")
	g.line("\t\t\tswitch (opt_index) {")
	for i, f := range sd.Fields {
		g.line("\t\t\tcase %d:", i)
		g.genArgFieldAssign(param.Name, f)
		g.line("\t\t\t\tbreak;")
	}
	g.line("\t\t\t}")
	g.line("\t\t}")
	g.line("\t}")
	g.line("")
}

// genArgFieldAssign coerces optarg into one args-struct field, per spec.md
// §9's resolved ambiguity: a str(N) field rejects (exit 1) rather than
// truncating when the argument is too long.
func (g *generator) genArgFieldAssign(paramName string, f ast.StructField) {
	target := fmt.Sprintf("%s.%s", paramName, f.Name)
	if st, ok := f.Type.(*ast.StrType); ok {
		g.line("\t\t\t\tif (strlen(optarg) > %d) {", st.Cap)
		g.line("\t\t\t\t\tfprintf(stderr, \"argument --%s exceeds maximum length %d\\n\");", f.Name, st.Cap)
		g.line("\t\t\t\t\texit(1);")
		g.line("\t\t\t\t}")
		g.line("\t\t\t\tstrncpy(%s, optarg, sizeof(%s) - 1);", target, target)
		return
	}
	if pt, ok := f.Type.(*ast.PrimitiveType); ok && pt.Name == "bool" {
		g.line("\t\t\t\t%s = (strcmp(optarg, \"true\") == 0 || strcmp(optarg, \"1\") == 0);", target)
		return
	}
	if pt, ok := f.Type.(*ast.PrimitiveType); ok && strings.HasPrefix(pt.Name, "u") {
		g.line("\t\t\t\t%s = (%s)strtoul(optarg, NULL, 10);", target, cTypeName(f.Type))
		return
	}
	g.line("\t\t\t\t%s = (%s)strtol(optarg, NULL, 10);", target, cTypeName(f.Type))
}

func (g *generator) genStmt(stmt ast.Stmt, depth int) *kerrors.E {
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
		if isLoadCall(s.X) {
			return nil
		}
		g.line("%s%s;", ind, g.cExpr(s.X))
	case *ast.IfStmt:
		g.line("%sif (%s) {", ind, g.cExpr(s.Cond))
		for _, inner := range s.Then.Stmts {
			if err := g.genStmt(inner, depth+1); err != nil {
				return err
			}
		}
		if s.Else != nil {
			g.line("%s} else {", ind)
			switch e := s.Else.(type) {
			case *ast.BlockStmt:
				for _, inner := range e.Stmts {
					if err := g.genStmt(inner, depth+1); err != nil {
						return err
					}
				}
			default:
				if err := g.genStmt(s.Else, depth+1); err != nil {
					return err
				}
			}
		}
		g.line("%s}", ind)
	case *ast.ForStmt:
		if s.IsRangeForm() {
			g.line("%sfor (long %s = %s; %s < %s; %s++) {", ind, s.Var, g.cExpr(s.Start), s.Var, g.cExpr(s.End), s.Var)
		} else {
			g.line("%sfor (long %s = 0; %s < (long)%s; %s++) {", ind, s.Var, s.Var, g.cExpr(s.Iter), s.Var)
		}
		for _, inner := range s.Body.Stmts {
			if err := g.genStmt(inner, depth+1); err != nil {
				return err
			}
		}
		g.line("%s}", ind)
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
			if err := g.genStmt(inner, depth+1); err != nil {
				return err
			}
		}
		g.line("%s}", ind)
	}
	return nil
}

// genMapAssign lowers `m[k] = v` (and compound forms like `m[k] += v`)
// through the map's fd and named key/value temporaries, never the address
// of a literal directly (spec.md §8 property 6 and the S1 scenario's
// `bpf_map_update_elem(packet_counts_fd, &k_tmpN, &v_tmpN, 0)` shape).
func (g *generator) genMapAssign(ind string, idx *ast.IndexExpr, op string, value ast.Expr) {
	mapName := g.cExpr(idx.Map)
	keyC, valC := "uint64_t", "uint64_t"
	if mt, ok := g.mapType(mapName); ok {
		keyC = cTypeName(mt.Key)
		valC = cTypeName(mt.Value)
	}
	kTmp := g.freshTmp("k")
	vTmp := g.freshTmp("v")
	fd := g.fdExpr(mapName)
	g.line("%s{", ind)
	g.line("%s\t%s %s = %s;", ind, keyC, kTmp, g.cExpr(idx.Key))
	if op == "=" {
		g.line("%s\t%s %s = %s;", ind, valC, vTmp, g.cExpr(value))
	} else {
		binOp := strings.TrimSuffix(op, "=")
		curTmp := vTmp + "_cur"
		g.line("%s\t%s %s = 0;", ind, valC, curTmp)
		g.line("%s\tbpf_map_lookup_elem(%s, &%s, &%s);", ind, fd, kTmp, curTmp)
		g.line("%s\t%s %s = %s %s (%s);", ind, valC, vTmp, curTmp, binOp, g.cExpr(value))
	}
	g.line("%s\tbpf_map_update_elem(%s, &%s, &%s, 0);", ind, fd, kTmp, vTmp)
	g.line("%s}", ind)
}

// genMapDelete lowers `delete m[k]` the same way: a named key temporary,
// never a literal's address.
func (g *generator) genMapDelete(ind string, idx *ast.IndexExpr) {
	mapName := g.cExpr(idx.Map)
	keyC := "uint64_t"
	if mt, ok := g.mapType(mapName); ok {
		keyC = cTypeName(mt.Key)
	}
	kTmp := g.freshTmp("k")
	g.line("%s{", ind)
	g.line("%s\t%s %s = %s;", ind, keyC, kTmp, g.cExpr(idx.Key))
	g.line("%s\tbpf_map_delete_elem(%s, &%s);", ind, g.fdExpr(mapName), kTmp)
	g.line("%s}", ind)
}

func isLoadCall(e ast.Expr) bool {
	call, ok := e.(*ast.CallExpr)
	if !ok {
		return false
	}
	id, ok := call.Callee.(*ast.Identifier)
	return ok && id.Name == "load"
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

func cTypeName(t ast.Type) string {
	switch x := t.(type) {
	case *ast.PrimitiveType:
		switch x.Name {
		case "u8":
			return "uint8_t"
		case "u16":
			return "uint16_t"
		case "u32":
			return "uint32_t"
		case "u64":
			return "uint64_t"
		case "i8":
			return "int8_t"
		case "i16":
			return "int16_t"
		case "i32":
			return "int32_t"
		case "i64":
			return "int64_t"
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
		return "NULL"
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
// expression over the map's fd, keyed through a named temporary rather
// than a literal's address (spec.md §8 property 6), yielding the stored
// value or a zeroed one if the lookup syscall failed.
func (g *generator) genMapRead(x *ast.IndexExpr) string {
	mapName := g.cExpr(x.Map)
	keyC, valC := "uint64_t", "uint64_t"
	if mt, ok := g.mapType(mapName); ok {
		keyC = cTypeName(mt.Key)
		valC = cTypeName(mt.Value)
	}
	kTmp := g.freshTmp("k")
	vTmp := kTmp + "_val"
	return fmt.Sprintf("({ %s %s = %s; %s %s = 0; bpf_map_lookup_elem(%s, &%s, &%s); %s; })",
		keyC, kTmp, g.cExpr(x.Key), valC, vTmp, g.fdExpr(mapName), kTmp, vTmp, vTmp)
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
			return "printf(\"\\n\")"
		}
		rest := args[1:]
		if len(rest) == 0 {
			return fmt.Sprintf("printf(%s \"\\n\")", args[0])
		}
		return fmt.Sprintf("printf(%s \"\\n\", %s)", args[0], strings.Join(rest, ", "))
	case "printf":
		if len(args) == 0 {
			return "printf(\"\")"
		}
		return fmt.Sprintf("printf(%s)", strings.Join(args, ", "))
	default:
		return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
	}
}
