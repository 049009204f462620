// Package diagnostic collects and formats CompileErrors produced during
// type checking. Parsing, loop analysis, IR generation and codegen all
// abort on the first error; the type checker is the one stage permitted to
// gather several before the pipeline gives up (spec.md §7).
package diagnostic

import (
	"sort"
	"strings"

	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
)

// Bag accumulates errors in report order, then can sort and render them.
type Bag struct {
	errs []kerrors.CompileError
}

func NewBag() *Bag {
	return &Bag{}
}

func (b *Bag) Add(err kerrors.CompileError) {
	b.errs = append(b.errs, err)
}

func (b *Bag) HasErrors() bool {
	return len(b.errs) > 0
}

func (b *Bag) Count() int {
	return len(b.errs)
}

func (b *Bag) Errors() []kerrors.CompileError {
	return b.errs
}

// Sorted returns errors ordered by source position so diagnostics read
// top-to-bottom regardless of the order the checker discovered them in.
func (b *Bag) Sorted() []kerrors.CompileError {
	out := make([]kerrors.CompileError, len(b.errs))
	copy(out, b.errs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Pos().Before(out[j].Pos())
	})
	return out
}

// Render formats every error as "file:line:col: kind: message", one per
// line, in source order.
func (b *Bag) Render() string {
	var sb strings.Builder
	for _, e := range b.Sorted() {
		sb.WriteString(e.Error())
		sb.WriteByte('\n')
	}
	return sb.String()
}
