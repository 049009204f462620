package types

import (
	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	"github.com/SiyuanSun0736/kernelscript/internal/diagnostic"
	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
	"github.com/SiyuanSun0736/kernelscript/internal/position"
	"github.com/SiyuanSun0736/kernelscript/internal/symtab"
)

// entryPointAttrs names the attributes that make a function an eBPF
// attach point rather than a plain in-kernel helper. A function carrying
// one of these can never be called directly from another KernelScript
// function (spec.md §4.3): the kernel invokes it through the attach
// mechanism named by the attribute.
var entryPointAttrs = map[string]bool{"xdp": true, "tc": true, "kprobe": true}

var knownAttrs = map[string]bool{
	"xdp": true, "tc": true, "kprobe": true, "kfunc": true, "helper": true, "private": true,
}

// Checker walks a parsed, symbol-resolved Program and annotates every
// expression's type in place, collecting every diagnostic it finds into a
// Bag rather than aborting on the first one: spec.md §7 singles out type
// checking as the one stage permitted to report more than one error before
// the pipeline gives up.
type Checker struct {
	table     *symtab.Table
	bag       *diagnostic.Bag
	callGraph map[string]map[string]bool // callee name -> set of caller names
	currentFn *ast.FunctionDecl
	retType   ast.Type
}

// Check runs every checking pass over prog against the scopes in table and
// returns the accumulated diagnostics. An empty Bag (HasErrors() == false)
// means the program is well-typed.
func Check(prog *ast.Program, table *symtab.Table) *diagnostic.Bag {
	c := &Checker{table: table, bag: diagnostic.NewBag(), callGraph: make(map[string]map[string]bool)}

	c.checkMain(prog)
	for _, fn := range prog.AllFunctions() {
		c.checkAttributes(fn)
	}
	for _, fn := range prog.AllFunctions() {
		c.checkFunctionBody(fn)
	}
	c.checkVisibility(prog)
	c.checkRecursion(prog)

	return c.bag
}

// ===== main validation =====

func (c *Checker) checkMain(prog *ast.Program) {
	var mains []*ast.FunctionDecl
	for _, fn := range prog.AllFunctions() {
		if fn.Name == "main" {
			mains = append(mains, fn)
		}
	}
	switch len(mains) {
	case 0:
		c.bag.Add(kerrors.New(prog.Span().Start, kerrors.KindMissingMain, "program has no main function"))
	case 1:
		c.checkMainSignature(mains[0])
	default:
		for _, m := range mains[1:] {
			c.bag.Add(kerrors.New(m.Span().Start, kerrors.KindMultipleMain, "main is already declared"))
		}
		c.checkMainSignature(mains[0])
	}
}

// checkMainSignature enforces spec.md §3/§4.3's two accepted shapes for
// main: `() -> i32` or `(args: S) -> i32` for some struct S, the latter
// driving the CLI long-option parsing userspacec generates ahead of
// main's own body.
func (c *Checker) checkMainSignature(fn *ast.FunctionDecl) {
	if fn.IsAttributed() {
		c.bag.Add(kerrors.New(fn.Span().Start, kerrors.KindInvalidMainSignature, "main must not carry an attribute"))
	}
	if !isPrimitive(fn.ReturnType, "i32") {
		c.bag.Add(kerrors.New(fn.Span().Start, kerrors.KindInvalidMainSignature, "main must return i32"))
	}
	switch len(fn.Params) {
	case 0:
	case 1:
		if !c.isStructType(fn.Params[0].Type) {
			c.bag.Add(kerrors.New(fn.Span().Start, kerrors.KindInvalidMainSignature,
				"main's single parameter must be a struct-typed args value"))
		}
	default:
		c.bag.Add(kerrors.New(fn.Span().Start, kerrors.KindInvalidMainSignature,
			"main takes zero parameters or a single struct-typed args parameter"))
	}
}

// ===== attribute validation =====

func (c *Checker) checkAttributes(fn *ast.FunctionDecl) {
	seen := map[string]bool{}
	for _, a := range fn.Attributes {
		if !knownAttrs[a.Name] {
			c.bag.Add(kerrors.New(a.Sp.Start, kerrors.KindUnknownAttribute, "unknown attribute %q", a.Name))
			continue
		}
		seen[a.Name] = true
		switch a.Name {
		case "xdp":
			c.checkXDPSignature(fn)
		case "tc":
			c.checkTCSignature(fn, a)
		case "kprobe":
			c.checkKprobeSignature(a)
		}
	}
	entryCount := 0
	for name := range seen {
		if entryPointAttrs[name] {
			entryCount++
		}
	}
	if entryCount > 1 {
		c.bag.Add(kerrors.New(fn.Span().Start, kerrors.KindAttributeMisuse,
			"%s cannot carry more than one attach-point attribute", fn.Name))
	}
}

func isPointerToNamed(t ast.Type, name string) bool {
	pt, ok := t.(*ast.PointerType)
	if !ok {
		return false
	}
	nt, ok := pt.Elem.(*ast.NamedType)
	return ok && nt.Name == name
}

func isNamed(t ast.Type, name string) bool {
	nt, ok := t.(*ast.NamedType)
	return ok && nt.Name == name
}

// isStructType reports whether t names a root-scope struct declaration,
// the shape main's single CLI-args parameter must have.
func (c *Checker) isStructType(t ast.Type) bool {
	nt, ok := t.(*ast.NamedType)
	if !ok {
		return false
	}
	entry, ok := c.table.Resolve(c.table.Root(), nt.Name)
	if !ok {
		return false
	}
	_, ok = entry.Decl.(*ast.StructDecl)
	return ok
}

func isPrimitive(t ast.Type, name string) bool {
	p, ok := t.(*ast.PrimitiveType)
	return ok && p.Name == name
}

func (c *Checker) checkXDPSignature(fn *ast.FunctionDecl) {
	if len(fn.Params) != 1 || !isPointerToNamed(fn.Params[0].Type, "xdp_md") {
		c.bag.Add(kerrors.New(fn.Span().Start, kerrors.KindAttributeMisuse,
			"@xdp function %s must take a single *xdp_md parameter", fn.Name))
	}
	if fn.ReturnType == nil || !isNamed(fn.ReturnType, "xdp_action") {
		c.bag.Add(kerrors.New(fn.Span().Start, kerrors.KindAttributeMisuse,
			"@xdp function %s must return xdp_action", fn.Name))
	}
}

func (c *Checker) checkTCSignature(fn *ast.FunctionDecl, a ast.Attribute) {
	if len(a.Args) != 1 {
		c.bag.Add(kerrors.New(a.Sp.Start, kerrors.KindAttributeMisuse, "@tc requires a single direction argument"))
	} else if lit, ok := a.Args[0].(*ast.StringLiteral); !ok || (lit.Value != "ingress" && lit.Value != "egress") {
		c.bag.Add(kerrors.New(a.Sp.Start, kerrors.KindAttributeMisuse, `@tc direction must be "ingress" or "egress"`))
	}
	if len(fn.Params) != 1 || !isPointerToNamed(fn.Params[0].Type, "__sk_buff") {
		c.bag.Add(kerrors.New(fn.Span().Start, kerrors.KindAttributeMisuse,
			"@tc function %s must take a single *__sk_buff parameter", fn.Name))
	}
	if fn.ReturnType == nil || !isPrimitive(fn.ReturnType, "i32") {
		c.bag.Add(kerrors.New(fn.Span().Start, kerrors.KindAttributeMisuse,
			"@tc function %s must return i32", fn.Name))
	}
}

func (c *Checker) checkKprobeSignature(a ast.Attribute) {
	if len(a.Args) != 1 {
		c.bag.Add(kerrors.New(a.Sp.Start, kerrors.KindAttributeMisuse, "@kprobe requires a symbol name argument"))
		return
	}
	if _, ok := a.Args[0].(*ast.StringLiteral); !ok {
		c.bag.Add(kerrors.New(a.Sp.Start, kerrors.KindAttributeMisuse, "@kprobe symbol argument must be a string literal"))
	}
}

// ===== function bodies =====

func (c *Checker) checkFunctionBody(fn *ast.FunctionDecl) {
	if fn.Body == nil {
		return
	}
	scope := c.table.EnterScope(symtab.ScopeFunction)
	for _, p := range fn.Params {
		entry := &symtab.Entry{Name: p.Name, Kind: symtab.KindParam, Decl: fn, Type: p.Type, Span: p.Sp}
		if existing, dup := c.table.DefineIn(scope, entry); dup {
			_ = existing
			c.bag.Add(symtab.DuplicateError(p.Name, p.Sp.Start))
		}
	}

	prevFn, prevRet := c.currentFn, c.retType
	c.currentFn = fn
	if fn.ReturnType != nil {
		c.retType = fn.ReturnType
	} else {
		c.retType = VoidType{}
	}

	c.checkStmts(fn.Body.Stmts)

	c.currentFn, c.retType = prevFn, prevRet
	c.table.ExitScope()
}

func (c *Checker) checkBlock(b *ast.BlockStmt) {
	c.table.EnterScope(symtab.ScopeBlock)
	c.checkStmts(b.Stmts)
	c.table.ExitScope()
}

func (c *Checker) checkStmts(stmts []ast.Stmt) {
	for _, s := range stmts {
		c.checkStmt(s)
	}
}

func (c *Checker) checkStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		c.checkBlock(s)

	case *ast.LocalVarDecl:
		c.checkLocalVarDecl(s)

	case *ast.AssignStmt:
		c.checkAssign(s)

	case *ast.ExprStmt:
		c.checkExpr(s.X)

	case *ast.IfStmt:
		condType := c.checkExpr(s.Cond)
		if !IsBool(condType) {
			c.bag.Add(kerrors.New(s.Sp.Start, kerrors.KindTypeMismatch, "if condition must be bool, got %s", typeString(condType)))
		}
		c.checkBlock(s.Then)
		if s.Else != nil {
			c.checkStmt(s.Else)
		}

	case *ast.ForStmt:
		c.checkFor(s)

	case *ast.ReturnStmt:
		c.checkReturn(s)

	case *ast.BreakStmt, *ast.ContinueStmt:
		// loop-nesting validity is enforced structurally by the parser's
		// grammar; nothing left to type-check here.

	case *ast.DeleteStmt:
		c.checkDelete(s)
	}
}

func (c *Checker) checkLocalVarDecl(s *ast.LocalVarDecl) {
	if _, isMap := s.Type.(*ast.MapType); isMap {
		c.bag.Add(kerrors.New(s.Sp.Start, kerrors.KindMapMisuse,
			"map %q cannot be locally scoped; declare it at top level", s.Name))
	}

	declType := s.Type
	if s.Init != nil {
		initType := c.checkExpr(s.Init)
		if s.Type != nil {
			if !AssignableTo(initType, s.Type) {
				c.bag.Add(kerrors.New(s.Sp.Start, kerrors.KindTypeMismatch,
					"cannot initialize %q of type %s with %s", s.Name, s.Type.String(), typeString(initType)))
			}
		} else {
			declType = initType
		}
	}

	entry := &symtab.Entry{Name: s.Name, Kind: symtab.KindVar, Decl: s, Type: declType, Span: s.Sp}
	if _, dup := c.table.Define(entry); dup {
		c.bag.Add(symtab.DuplicateError(s.Name, s.Sp.Start))
	}
}

func (c *Checker) checkAssign(s *ast.AssignStmt) {
	var targetType ast.Type
	if idx, ok := s.Target.(*ast.IndexExpr); ok {
		t := c.checkExpr(idx)
		if opt, ok := t.(Optional); ok {
			targetType = opt.Value
		} else {
			targetType = t
		}
	} else {
		targetType = c.checkExpr(s.Target)
	}

	valueType := c.checkExpr(s.Value)

	if s.Op == "=" {
		if !AssignableTo(valueType, targetType) {
			c.bag.Add(kerrors.New(s.Sp.Start, kerrors.KindTypeMismatch,
				"cannot assign %s to %s", typeString(valueType), typeString(targetType)))
		}
		return
	}
	if !IsInteger(targetType) || !IsInteger(valueType) {
		c.bag.Add(kerrors.New(s.Sp.Start, kerrors.KindTypeMismatch, "operator %s requires integer operands", s.Op))
	}
}

func (c *Checker) checkFor(s *ast.ForStmt) {
	id := c.table.EnterScope(symtab.ScopeBlock)

	var varType ast.Type
	if s.IsRangeForm() {
		startType := c.checkExpr(s.Start)
		endType := c.checkExpr(s.End)
		if !IsInteger(startType) || !IsInteger(endType) {
			c.bag.Add(kerrors.New(s.Sp.Start, kerrors.KindTypeMismatch, "for range bounds must be integers"))
		}
		varType = startType
		if varType == nil {
			varType = &ast.PrimitiveType{Name: "i64"}
		}
	} else {
		if mt, ok := c.resolveMapType(s.Iter); ok {
			varType = mt.Key
		} else {
			c.checkExpr(s.Iter)
			varType = &ast.PrimitiveType{Name: "u32"}
		}
	}
	c.table.DefineIn(id, &symtab.Entry{Name: s.Var, Kind: symtab.KindVar, Decl: s, Type: varType, Span: s.Sp})

	c.checkStmts(s.Body.Stmts)
	c.table.ExitScope()
}

func (c *Checker) checkReturn(s *ast.ReturnStmt) {
	if s.Value == nil {
		if _, ok := c.retType.(VoidType); !ok {
			c.bag.Add(kerrors.New(s.Sp.Start, kerrors.KindTypeMismatch, "missing return value"))
		}
		return
	}
	valType := c.checkExpr(s.Value)
	if !AssignableTo(valType, c.retType) {
		c.bag.Add(kerrors.New(s.Sp.Start, kerrors.KindTypeMismatch,
			"cannot return %s, function returns %s", typeString(valType), typeString(c.retType)))
	}
}

func (c *Checker) checkDelete(s *ast.DeleteStmt) {
	mt, ok := c.resolveMapType(s.Target.Map)
	if !ok {
		c.bag.Add(kerrors.New(s.Sp.Start, kerrors.KindMapMisuse, "%s is not a map", s.Target.Map.String()))
		return
	}
	keyType := c.checkExpr(s.Target.Key)
	if !AssignableTo(keyType, mt.Key) {
		c.bag.Add(kerrors.New(s.Sp.Start, kerrors.KindTypeMismatch,
			"delete key must be %s, got %s", mt.Key.String(), typeString(keyType)))
	}
}

// resolveMapType reports the MapType e names, if e is a bare identifier
// bound to a map in the current scope.
func (c *Checker) resolveMapType(e ast.Expr) (*ast.MapType, bool) {
	id, ok := e.(*ast.Identifier)
	if !ok {
		return nil, false
	}
	entry, ok := c.table.ResolveCurrent(id.Name)
	if !ok || entry.Kind != symtab.KindMap {
		return nil, false
	}
	mt, ok := entry.Type.(*ast.MapType)
	return mt, ok
}

// ===== expressions =====

func (c *Checker) checkExpr(expr ast.Expr) ast.Type {
	switch e := expr.(type) {
	case *ast.Identifier:
		entry, ok := c.table.ResolveCurrent(e.Name)
		if !ok {
			c.bag.Add(symtab.UnresolvedError(e.Name, e.Sp.Start))
			return c.settle(e, VoidType{})
		}
		t := entry.Type
		if t == nil {
			t = VoidType{}
		}
		return c.settle(e, t)

	case *ast.IntLiteral:
		name := e.Width
		if name == "" {
			name = "i64"
		}
		return c.settle(e, &ast.PrimitiveType{Name: name})

	case *ast.StringLiteral:
		return c.settle(e, &ast.StrType{Cap: int64(len(e.Value))})

	case *ast.BoolLiteral:
		return c.settle(e, &ast.PrimitiveType{Name: "bool"})

	case *ast.NoneLiteral:
		return c.settle(e, NoneType{})

	case *ast.UnaryExpr:
		return c.checkUnary(e)

	case *ast.BinaryExpr:
		return c.checkBinary(e)

	case *ast.CallExpr:
		return c.checkCall(e)

	case *ast.IndexExpr:
		return c.checkIndex(e)

	case *ast.FieldExpr:
		xt := c.checkExpr(e.X)
		return c.settle(e, c.fieldType(xt, e.Field, e.Sp))

	case *ast.ArrowExpr:
		xt := c.checkExpr(e.X)
		pt, ok := xt.(*ast.PointerType)
		if !ok {
			c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindTypeMismatch, "-> requires a pointer, got %s", typeString(xt)))
			return c.settle(e, VoidType{})
		}
		return c.settle(e, c.fieldType(pt.Elem, e.Field, e.Sp))
	}
	return VoidType{}
}

func (c *Checker) settle(e ast.Expr, t ast.Type) ast.Type {
	e.SetType(t)
	return t
}

func (c *Checker) checkUnary(e *ast.UnaryExpr) ast.Type {
	xt := c.checkExpr(e.X)
	switch e.Op {
	case "-", "~":
		if !IsInteger(xt) {
			c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindTypeMismatch, "operator %s requires an integer operand", e.Op))
		}
		return c.settle(e, xt)
	case "!":
		if !IsBool(xt) {
			c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindTypeMismatch, "operator ! requires a bool operand"))
		}
		return c.settle(e, &ast.PrimitiveType{Name: "bool"})
	case "&":
		return c.settle(e, &ast.PointerType{Elem: xt})
	case "*":
		if pt, ok := xt.(*ast.PointerType); ok {
			return c.settle(e, pt.Elem)
		}
		c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindTypeMismatch, "cannot dereference non-pointer type %s", typeString(xt)))
		return c.settle(e, VoidType{})
	default:
		return c.settle(e, xt)
	}
}

func (c *Checker) checkBinary(e *ast.BinaryExpr) ast.Type {
	lt := c.checkExpr(e.L)

	if _, isNone := e.R.(*ast.NoneLiteral); isNone && (e.Op == "==" || e.Op == "!=") {
		c.checkExpr(e.R)
		if _, ok := lt.(Optional); !ok {
			c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindTypeMismatch, "%s is never none", e.L.String()))
		}
		return c.settle(e, &ast.PrimitiveType{Name: "bool"})
	}

	rt := c.checkExpr(e.R)
	switch e.Op {
	case "+", "-", "*", "/", "%", "&", "|", "^", "<<", ">>":
		if !IsInteger(lt) || !IsInteger(rt) {
			c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindTypeMismatch, "operator %s requires integer operands", e.Op))
		}
		return c.settle(e, lt)
	case "==", "!=", "<", "<=", ">", ">=":
		if !Equal(lt, rt) {
			c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindTypeMismatch, "cannot compare %s with %s", typeString(lt), typeString(rt)))
		}
		return c.settle(e, &ast.PrimitiveType{Name: "bool"})
	case "&&", "||":
		if !IsBool(lt) || !IsBool(rt) {
			c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindTypeMismatch, "operator %s requires bool operands", e.Op))
		}
		return c.settle(e, &ast.PrimitiveType{Name: "bool"})
	default:
		return c.settle(e, lt)
	}
}

// builtins are the free-standing functions the surface syntax provides
// without a user declaration (SPEC_FULL.md §C): print(args...) is sugar for
// a printf call with an appended newline, printf(fmt, args...) takes the
// format string directly, and load("path") marks the point in main where
// the compiled BPF object is opened/loaded/attached — userspacec elides the
// call itself and emits the skeleton lifecycle in its place. None of the
// three returns a value.
var builtins = map[string]bool{"print": true, "printf": true, "load": true}

func (c *Checker) checkCall(e *ast.CallExpr) ast.Type {
	id, ok := e.Callee.(*ast.Identifier)
	if !ok {
		c.checkExpr(e.Callee)
		for _, a := range e.Args {
			c.checkExpr(a)
		}
		c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindNotCallable, "expression is not callable"))
		return c.settle(e, VoidType{})
	}

	if builtins[id.Name] {
		for _, a := range e.Args {
			c.checkExpr(a)
		}
		return c.settle(e, VoidType{})
	}

	entry, ok := c.table.ResolveCurrent(id.Name)
	if !ok {
		c.bag.Add(symtab.UnresolvedError(id.Name, id.Sp.Start))
		return c.settle(e, VoidType{})
	}
	fn, ok := entry.Decl.(*ast.FunctionDecl)
	if !ok || entry.Kind != symtab.KindFunction {
		c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindNotCallable, "%s is not a function", id.Name))
		return c.settle(e, VoidType{})
	}

	if len(e.Args) != len(fn.Params) {
		c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindArityMismatch,
			"%s expects %d argument(s), got %d", id.Name, len(fn.Params), len(e.Args)))
	}
	for i, a := range e.Args {
		at := c.checkExpr(a)
		if i < len(fn.Params) && !AssignableTo(at, fn.Params[i].Type) {
			c.bag.Add(kerrors.New(a.Span().Start, kerrors.KindTypeMismatch,
				"argument %d to %s: cannot use %s as %s", i+1, id.Name, typeString(at), fn.Params[i].Type.String()))
		}
	}

	if c.currentFn != nil {
		c.recordCall(c.currentFn.Name, id.Name)
	}

	rt := fn.ReturnType
	if rt == nil {
		rt = VoidType{}
	}
	return c.settle(e, rt)
}

func (c *Checker) checkIndex(e *ast.IndexExpr) ast.Type {
	mt, ok := c.resolveMapType(e.Map)
	if !ok {
		c.checkExpr(e.Map)
		c.checkExpr(e.Key)
		c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindMapMisuse, "%s is not a map", e.Map.String()))
		return c.settle(e, VoidType{})
	}
	keyType := c.checkExpr(e.Key)
	if !AssignableTo(keyType, mt.Key) {
		c.bag.Add(kerrors.New(e.Sp.Start, kerrors.KindTypeMismatch,
			"map key must be %s, got %s", mt.Key.String(), typeString(keyType)))
	}
	return c.settle(e, Optional{Value: mt.Value})
}

func (c *Checker) fieldType(base ast.Type, field string, sp position.Span) ast.Type {
	nt, ok := base.(*ast.NamedType)
	if !ok {
		c.bag.Add(kerrors.New(sp.Start, kerrors.KindTypeMismatch, "%s has no fields", typeString(base)))
		return VoidType{}
	}
	entry, ok := c.table.Resolve(c.table.Root(), nt.Name)
	if !ok {
		c.bag.Add(symtab.UnresolvedError(nt.Name, sp.Start))
		return VoidType{}
	}
	sd, ok := entry.Decl.(*ast.StructDecl)
	if !ok {
		c.bag.Add(kerrors.New(sp.Start, kerrors.KindTypeMismatch, "%s is not a struct", nt.Name))
		return VoidType{}
	}
	for _, f := range sd.Fields {
		if f.Name == field {
			return f.Type
		}
	}
	c.bag.Add(kerrors.New(sp.Start, kerrors.KindUnresolvedSymbol, "struct %s has no field %q", nt.Name, field))
	return VoidType{}
}

func (c *Checker) recordCall(caller, callee string) {
	if c.callGraph[callee] == nil {
		c.callGraph[callee] = make(map[string]bool)
	}
	c.callGraph[callee][caller] = true
}

// ===== visibility =====

// checkVisibility enforces spec.md §4.3's call-graph rules once every
// function body has been walked and the call graph is complete: a private
// function may only be called from another private function or a kfunc,
// and an attach-point function (xdp/tc/kprobe) can never be called
// directly — the kernel invokes it through the attach mechanism, not
// through a KernelScript call expression.
func (c *Checker) checkVisibility(prog *ast.Program) {
	fnByName := make(map[string]*ast.FunctionDecl)
	for _, fn := range prog.AllFunctions() {
		fnByName[fn.Name] = fn
	}

	for name, callers := range c.callGraph {
		callee, ok := fnByName[name]
		if !ok {
			continue
		}
		switch {
		case callee.HasAttribute("private"):
			for caller := range callers {
				cfn := fnByName[caller]
				if cfn == nil || cfn.HasAttribute("private") || cfn.HasAttribute("kfunc") {
					continue
				}
				c.bag.Add(kerrors.New(cfn.Span().Start, kerrors.KindPrivateNotExposed,
					"%s is private and cannot be called from %s", name, caller))
			}
		case entryPointAttrs[attrNameOf(callee)]:
			for caller := range callers {
				cfn := fnByName[caller]
				if cfn == nil {
					continue
				}
				c.bag.Add(kerrors.New(cfn.Span().Start, kerrors.KindAttributeMisuse,
					"%s is an attach-point function and cannot be called directly", name))
			}
		}
	}
}

// checkRecursion rejects kernel-side recursion: a kernel-side function
// (attributed, kfunc, helper, or private) that is reachable from itself
// through any chain of calls could never compile to C the verifier
// accepts, since the verifier has no general recursion support — reject
// it up front with the same Kind an unverifiable loop bound uses, rather
// than letting it reach codegen.
func (c *Checker) checkRecursion(prog *ast.Program) {
	edges := make(map[string]map[string]bool) // caller -> callees
	for callee, callers := range c.callGraph {
		for caller := range callers {
			if edges[caller] == nil {
				edges[caller] = make(map[string]bool)
			}
			edges[caller][callee] = true
		}
	}

	for _, fn := range prog.AllFunctions() {
		if !isKernelSide(fn) {
			continue
		}
		if reachesSelf(fn.Name, edges) {
			c.bag.Add(kerrors.New(fn.Span().Start, kerrors.KindVerifierWouldReject,
				"%s is recursive; the verifier rejects unbounded kernel-side call depth", fn.Name))
		}
	}
}

func isKernelSide(fn *ast.FunctionDecl) bool {
	return fn.HasAttribute("xdp") || fn.HasAttribute("tc") || fn.HasAttribute("kprobe") ||
		fn.HasAttribute("kfunc") || fn.HasAttribute("helper") || fn.HasAttribute("private")
}

// reachesSelf reports whether start participates in a call cycle: a
// direct self-call, or a chain of calls through other functions that
// eventually calls back into start.
func reachesSelf(start string, edges map[string]map[string]bool) bool {
	visited := make(map[string]bool)
	stack := make([]string, 0, len(edges[start]))
	for callee := range edges[start] {
		stack = append(stack, callee)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == start {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		for callee := range edges[n] {
			stack = append(stack, callee)
		}
	}
	return false
}

func attrNameOf(fn *ast.FunctionDecl) string {
	for _, a := range fn.Attributes {
		if entryPointAttrs[a.Name] {
			return a.Name
		}
	}
	return ""
}

func typeString(t ast.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}
