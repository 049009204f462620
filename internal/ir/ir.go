// Package ir builds KernelScript's two-sided intermediate representation:
// one partition of the checked program destined for kernel-side C codegen
// (internal/codegen/kernelc), the other for userspace C codegen
// (internal/codegen/userspacec). Splitting happens once, right after type
// checking, so neither codegen package has to re-derive which function
// belongs on which side of the boundary (spec.md §4.5, §9).
package ir

import "github.com/SiyuanSun0736/kernelscript/internal/ast"

// MapSlot gives a declared map a stable index, used as its file
// descriptor slot in the userspace skeleton's map table.
type MapSlot struct {
	Name  string
	Decl  *ast.MapDecl
	Index int
}

// LoadRef is a `load("name")` call found in userspace code: the point
// where the generated orchestrator opens and loads the compiled BPF
// object's skeleton.
type LoadRef struct {
	Arg  string
	Call *ast.CallExpr
}

// KernelIR is the subset of the program that runs in-kernel: attach-point
// functions plus every function reachable only from the kernel side
// (kfunc, helper, private).
type KernelIR struct {
	Attributed []*ast.FunctionDecl
	KFuncs     []*ast.FunctionDecl
	Helpers    []*ast.FunctionDecl
	Private    []*ast.FunctionDecl
}

// UserspaceIR is the subset of the program that runs as the userspace
// control-plane binary: main, every unattributed function (whether or not
// main calls it), config blocks, and the load(...) calls found in main and
// those functions. Maps are held on Program, not here.
type UserspaceIR struct {
	Main    *ast.FunctionDecl
	Funcs   []*ast.FunctionDecl
	Configs []*ast.ConfigDecl
	Loads   []LoadRef

	// ArgsParam and ArgsStruct are set when main takes the `(args: S) -> i32`
	// form: ArgsParam is main's own parameter (its name is the identifier
	// the generated body refers to), ArgsStruct is S's declaration, used to
	// drive the CLI long-option parsing userspacec emits ahead of main's
	// body (spec.md §4.7).
	ArgsParam  *ast.Param
	ArgsStruct *ast.StructDecl
}

// Program is the full split: every map gets one stable slot shared by
// both sides, and pinned maps are collected separately since the
// userspace codegen needs a dedicated pinned_globals_map_fd entry for
// them (spec.md §4.7).
type Program struct {
	Maps          []*MapSlot
	PinnedGlobals []*MapSlot
	Kernel        *KernelIR
	Userspace     *UserspaceIR

	bySlotName map[string]*MapSlot
}

// Build partitions a type-checked Program into kernel and userspace IR.
func Build(prog *ast.Program) *Program {
	out := &Program{bySlotName: make(map[string]*MapSlot)}

	for _, d := range prog.Decls {
		md, ok := d.(*ast.MapDecl)
		if !ok {
			continue
		}
		slot := &MapSlot{Name: md.Name, Decl: md, Index: len(out.Maps)}
		out.Maps = append(out.Maps, slot)
		out.bySlotName[md.Name] = slot
		if md.Pinned {
			out.PinnedGlobals = append(out.PinnedGlobals, slot)
		}
	}

	k := &KernelIR{}
	u := &UserspaceIR{}
	for _, fn := range prog.AllFunctions() {
		switch {
		case fn.Name == "main":
			u.Main = fn
		case fn.HasAttribute("xdp"), fn.HasAttribute("tc"), fn.HasAttribute("kprobe"):
			k.Attributed = append(k.Attributed, fn)
		case fn.HasAttribute("kfunc"):
			k.KFuncs = append(k.KFuncs, fn)
		case fn.HasAttribute("helper"):
			k.Helpers = append(k.Helpers, fn)
		case fn.HasAttribute("private"):
			k.Private = append(k.Private, fn)
		default:
			u.Funcs = append(u.Funcs, fn)
		}
	}

	for _, d := range prog.Decls {
		if cd, ok := d.(*ast.ConfigDecl); ok {
			u.Configs = append(u.Configs, cd)
		}
	}

	if u.Main != nil {
		u.Loads = append(u.Loads, collectLoads(u.Main.Body)...)
		if len(u.Main.Params) == 1 {
			if nt, ok := u.Main.Params[0].Type.(*ast.NamedType); ok {
				for _, d := range prog.Decls {
					if sd, ok := d.(*ast.StructDecl); ok && sd.Name == nt.Name {
						u.ArgsParam = &u.Main.Params[0]
						u.ArgsStruct = sd
						break
					}
				}
			}
		}
	}
	for _, fn := range u.Funcs {
		u.Loads = append(u.Loads, collectLoads(fn.Body)...)
	}

	out.Kernel = k
	out.Userspace = u
	return out
}

// MapSlot looks up a map's stable slot by name.
func (p *Program) MapSlot(name string) (*MapSlot, bool) {
	s, ok := p.bySlotName[name]
	return s, ok
}

func collectLoads(body *ast.BlockStmt) []LoadRef {
	if body == nil {
		return nil
	}
	var out []LoadRef
	var walkStmts func([]ast.Stmt)
	var walkExpr func(ast.Expr)

	walkExpr = func(e ast.Expr) {
		switch x := e.(type) {
		case *ast.CallExpr:
			if id, ok := x.Callee.(*ast.Identifier); ok && id.Name == "load" && len(x.Args) == 1 {
				if lit, ok := x.Args[0].(*ast.StringLiteral); ok {
					out = append(out, LoadRef{Arg: lit.Value, Call: x})
				}
			}
			walkExpr(x.Callee)
			for _, a := range x.Args {
				walkExpr(a)
			}
		case *ast.BinaryExpr:
			walkExpr(x.L)
			walkExpr(x.R)
		case *ast.UnaryExpr:
			walkExpr(x.X)
		case *ast.IndexExpr:
			walkExpr(x.Map)
			walkExpr(x.Key)
		case *ast.FieldExpr:
			walkExpr(x.X)
		case *ast.ArrowExpr:
			walkExpr(x.X)
		}
	}

	walkStmts = func(stmts []ast.Stmt) {
		for _, s := range stmts {
			switch st := s.(type) {
			case *ast.LocalVarDecl:
				if st.Init != nil {
					walkExpr(st.Init)
				}
			case *ast.AssignStmt:
				walkExpr(st.Target)
				walkExpr(st.Value)
			case *ast.ExprStmt:
				walkExpr(st.X)
			case *ast.IfStmt:
				walkExpr(st.Cond)
				walkStmts(st.Then.Stmts)
				if st.Else != nil {
					walkStmts([]ast.Stmt{st.Else})
				}
			case *ast.ForStmt:
				walkStmts(st.Body.Stmts)
			case *ast.ReturnStmt:
				if st.Value != nil {
					walkExpr(st.Value)
				}
			case *ast.BlockStmt:
				walkStmts(st.Stmts)
			}
		}
	}

	walkStmts(body.Stmts)
	return out
}
