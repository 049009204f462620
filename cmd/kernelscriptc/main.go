// Command kernelscriptc compiles a KernelScript source file into a pair of
// eBPF-targeted C translation units: one for the kernel side, one for the
// userspace orchestrator that loads and drives it.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/SiyuanSun0736/kernelscript/internal/driver"
	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
	"github.com/SiyuanSun0736/kernelscript/internal/watch"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		showHelp    = flag.Bool("help", false, "show help information")
		outDir      = flag.String("o", "", "directory to write generated C into")
		watchMode   = flag.Bool("watch", false, "recompile on every source file change")
		emitIR      = flag.Bool("emit-ir", false, "print the kernel/userspace IR split after compiling (C is still generated)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("kernelscriptc %s (%s)\n", version, commit)
		return
	}
	if *showHelp {
		usage()
		return
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "error: expected exactly one input file")
		usage()
		os.Exit(kerrors.ExitCompile)
	}
	input := args[0]
	opts := driver.Options{OutDir: *outDir}

	runOnce := func() (bool, int) {
		res, err := driver.Compile(input, opts)
		if err != nil {
			return false, exitCodeFor(err)
		}
		if *emitIR {
			fmt.Print(driver.DumpIR(res.IR))
		} else {
			fmt.Printf("compiled %s\n", input)
		}
		return true, kerrors.ExitSuccess
	}

	if !*watchMode {
		if ok, code := runOnce(); !ok {
			os.Exit(code)
		}
		return
	}

	w, err := watch.New(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot watch %s: %v\n", input, err)
		os.Exit(kerrors.ExitIO)
	}
	defer w.Close()
	if err := w.Run(func() bool {
		runOnce()
		return true // keep watching even after a failed compile
	}); err != nil {
		fmt.Fprintf(os.Stderr, "error: watch failed: %v\n", err)
		os.Exit(kerrors.ExitIO)
	}
}

func exitCodeFor(err error) int {
	var ioErr *driver.IOError
	if errors.As(err, &ioErr) {
		fmt.Fprintln(os.Stderr, err)
		return kerrors.ExitIO
	}
	fmt.Fprintln(os.Stderr, err)
	return kerrors.ExitCompile
}

func usage() {
	fmt.Println("kernelscriptc - compile KernelScript to eBPF C")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("    kernelscriptc [OPTIONS] <INPUT_FILE>")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("    -o DIR       Write generated kernel/userspace C into DIR")
	fmt.Println("    -watch       Recompile every time the input file changes")
	fmt.Println("    -emit-ir     Print the kernel/userspace IR split after compiling")
	fmt.Println("    -version     Show version information")
	fmt.Println("    -help        Show this help message")
}
