// Package driver ties every compiler stage together: lex, parse, resolve
// symbols, type-check, verify the declared kernel floor covers whatever
// gated features the program uses, validate pinned-map targets actually
// sit on a bpffs mount, split into kernel/userspace IR, and lower each
// side to C. It is the one package cmd/kernelscriptc calls into, mirroring
// how the teacher's CLI front end is a thin flag parser over a single
// compileFile-style entry point.
package driver

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	"github.com/SiyuanSun0736/kernelscript/internal/codegen/kernelc"
	"github.com/SiyuanSun0736/kernelscript/internal/codegen/userspacec"
	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
	"github.com/SiyuanSun0736/kernelscript/internal/ir"
	"github.com/SiyuanSun0736/kernelscript/internal/loopanalysis"
	"github.com/SiyuanSun0736/kernelscript/internal/parser"
	"github.com/SiyuanSun0736/kernelscript/internal/symtab"
	"github.com/SiyuanSun0736/kernelscript/internal/types"
	"github.com/SiyuanSun0736/kernelscript/internal/version"
)

// bpfFSMagic is the f_type Statfs reports for a bpffs mount
// (linux/magic.h's BPF_FS_MAGIC).
const bpfFSMagic = 0xcafe4a11

// IOError wraps a filesystem or environment failure, as opposed to a
// CompileError produced by the language pipeline itself. main.go uses
// this distinction to choose between the two non-zero exit codes spec.md
// §6 defines.
type IOError struct{ Err error }

func (e *IOError) Error() string { return e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// Options configures one compile pass.
type Options struct {
	OutDir string // if set, kernel/userspace C is written here
}

// Result holds a successful compile's artifacts.
type Result struct {
	KernelC    string
	UserspaceC string
	IR         *ir.Program
}

// Compile reads, checks, and lowers one KernelScript source file, writing
// generated C to opts.OutDir if set. It returns the first error
// encountered — an *IOError for anything filesystem-related, or a
// errors.CompileError (possibly a rendered diagnostic.Bag) otherwise —
// with nothing partially written on failure.
func Compile(path string, opts Options) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Err: fmt.Errorf("cannot read %s: %w", path, err)}
	}

	pr := parser.New(path, string(src))
	prog, perr := pr.Parse()
	if perr != nil {
		return nil, perr
	}

	table, serr := symtab.Build(prog)
	if serr != nil {
		return nil, serr
	}

	bag := types.Check(prog, table)
	if bag.HasErrors() {
		// Every collected error is rendered into one CompileError carrying
		// the first error's position and kind.
		errs := bag.Sorted()
		first, ok := errs[0].(*kerrors.E)
		if !ok {
			return nil, errs[0]
		}
		msg := first.Message
		for _, e := range errs[1:] {
			msg += "\n" + e.Error()
		}
		return nil, kerrors.New(first.At, first.K, "%s", msg)
	}

	if err := checkKernelFloor(prog); err != nil {
		return nil, err
	}
	if err := validatePins(prog); err != nil {
		return nil, err
	}

	irProg := ir.Build(prog)

	kernelSrc, kerr := kernelc.Generate(prog, irProg)
	if kerr != nil {
		return nil, kerr
	}
	userSrc, uerr := userspacec.Generate(prog, irProg)
	if uerr != nil {
		return nil, uerr
	}

	res := &Result{KernelC: kernelSrc, UserspaceC: userSrc, IR: irProg}

	if opts.OutDir != "" {
		if err := writeOutputs(opts.OutDir, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func checkKernelFloor(prog *ast.Program) error {
	var pragma *version.Pragma
	for _, d := range prog.Decls {
		pg, ok := d.(*ast.Pragma)
		if !ok || pg.Name != "kernel" {
			continue
		}
		parsed, perr := version.ParsePragma(pg.Value, pg.Span().Start)
		if perr != nil {
			return perr
		}
		pragma = parsed
	}

	for _, d := range prog.Decls {
		md, ok := d.(*ast.MapDecl)
		if !ok {
			continue
		}
		var feature string
		switch md.MapType.Kind {
		case "ringbuf":
			feature = "ringbuf"
		case "perf_event_array":
			feature = "perf_event_array"
		}
		if feature == "" {
			continue
		}
		if err := version.RequireFeature(pragma, feature, md.Span().Start); err != nil {
			return err
		}
	}

	for _, fn := range prog.AllFunctions() {
		if fn.HasAttribute("kfunc") {
			if err := version.RequireFeature(pragma, "kfunc", fn.Span().Start); err != nil {
				return err
			}
		}
		if fn.Body == nil {
			continue
		}
		for _, a := range loopanalysis.ClassifyFunction(fn.Body) {
			if a.Strategy != loopanalysis.BpfLoopHelper {
				continue
			}
			if err := version.RequireFeature(pragma, "bpf_loop", a.Loop.Span().Start); err != nil {
				return err
			}
		}
	}
	return nil
}

// validatePins confirms /sys/fs/bpf is a real bpffs mount whenever the
// program declares at least one pinned map; a pinned map with nowhere
// real to pin to fails loudly at compile time rather than at load time.
func validatePins(prog *ast.Program) error {
	hasPinned := false
	for _, d := range prog.Decls {
		if md, ok := d.(*ast.MapDecl); ok && md.Pinned {
			hasPinned = true
		}
	}
	if !hasPinned {
		return nil
	}

	const bpffsRoot = "/sys/fs/bpf"
	var stat unix.Statfs_t
	if err := unix.Statfs(bpffsRoot, &stat); err != nil {
		return &IOError{Err: fmt.Errorf("pinned maps require %s to be a mounted bpffs: %w", bpffsRoot, err)}
	}
	if int64(stat.Type) != bpfFSMagic {
		return &IOError{Err: fmt.Errorf("%s is not a bpffs mount; pinned maps need one", bpffsRoot)}
	}
	return nil
}

func writeOutputs(outDir string, res *Result) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return &IOError{Err: err}
	}
	kPath := filepath.Join(outDir, "program.bpf.c")
	uPath := filepath.Join(outDir, "program.c")
	if err := os.WriteFile(kPath, []byte(res.KernelC), 0o644); err != nil {
		return &IOError{Err: err}
	}
	if err := os.WriteFile(uPath, []byte(res.UserspaceC), 0o644); err != nil {
		return &IOError{Err: err}
	}
	return nil
}

// DumpIR renders a human-readable summary of the kernel/userspace split,
// for the CLI's -emit-ir debug flag.
func DumpIR(p *ir.Program) string {
	var s string
	s += fmt.Sprintf("maps: %d (pinned: %d)\n", len(p.Maps), len(p.PinnedGlobals))
	for _, slot := range p.Maps {
		s += fmt.Sprintf("  [%d] %s : %s\n", slot.Index, slot.Name, slot.Decl.MapType.String())
	}
	s += fmt.Sprintf("kernel: %d attributed, %d kfunc, %d helper, %d private\n",
		len(p.Kernel.Attributed), len(p.Kernel.KFuncs), len(p.Kernel.Helpers), len(p.Kernel.Private))
	for _, fn := range p.Kernel.Attributed {
		s += fmt.Sprintf("  + %s\n", fn.Name)
	}
	if p.Userspace.Main != nil {
		s += "userspace: main"
		if len(p.Userspace.Funcs) > 0 {
			s += fmt.Sprintf(" + %d helper function(s)", len(p.Userspace.Funcs))
		}
		s += "\n"
	}
	for _, l := range p.Userspace.Loads {
		s += fmt.Sprintf("  load(%q)\n", l.Arg)
	}
	return s
}
