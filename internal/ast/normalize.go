package ast

// NormalizeMaps promotes any GlobalVarDecl whose declared type is a
// MapType into a MapDecl, in place, per spec.md §3: "GlobalVarDecl ...
// may carry a Map(...) type, in which case it is promoted to a MapDecl
// during normalization." This must run before the symbol table is built
// so every map — however it was spelled in source — is registered as one
// root-scope MapDecl entry.
func NormalizeMaps(prog *Program) {
	for i, d := range prog.Decls {
		gv, ok := d.(*GlobalVarDecl)
		if !ok {
			continue
		}
		mt, ok := gv.Type.(*MapType)
		if !ok {
			continue
		}
		prog.Decls[i] = &MapDecl{
			Name:    gv.Name,
			MapType: mt,
			Pinned:  gv.Pinned,
			Global:  true,
			Sp:      gv.Sp,
		}
	}
}
