// Package loopanalysis classifies every `for` loop in an attributed
// function body as Bounded or Unbounded, and picks a lowering strategy for
// the kernel codegen stage accordingly (spec.md §4.4, §9). The verifier
// rejects unbounded loops outright unless they go through the bpf_loop
// helper, so this classification has to happen before codegen ever emits a
// line of C.
package loopanalysis

import (
	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	"github.com/SiyuanSun0736/kernelscript/internal/types"
)

// Bound describes the iteration count the checker could establish for a
// loop. Unbounded means no compile-time bound exists, either because the
// loop uses the iterator form or because one of its range endpoints didn't
// fold to a constant.
type Bound struct {
	Bounded bool
	Lo, Hi  int64 // valid only when Bounded
}

// Strategy is the lowering approach kernelc codegen uses for a loop.
type Strategy int

const (
	// UnrolledLoop emits the body N times inline; chosen for small,
	// statically-known trip counts where unrolling avoids a branch the
	// verifier has to re-prove bounded on every iteration.
	UnrolledLoop Strategy = iota
	// SimpleLoop emits a plain C for loop; the verifier can still prove
	// it terminates from the literal bounds in the generated C.
	SimpleLoop
	// BpfLoopHelper lowers to a bpf_loop(count, callback, ctx, 0) call,
	// the only construct the verifier accepts for a loop it can't unroll
	// or bound-check itself.
	BpfLoopHelper
)

func (s Strategy) String() string {
	switch s {
	case UnrolledLoop:
		return "unrolled"
	case SimpleLoop:
		return "simple"
	case BpfLoopHelper:
		return "bpf_loop"
	default:
		return "unknown"
	}
}

// Analysis is the result of classifying one ForStmt.
type Analysis struct {
	Loop            *ast.ForStmt
	Bound           Bound
	EstimatedIters  int64
	Strategy        Strategy
}

const (
	unrollCeiling  = 4
	bpfLoopFloor   = 100
)

// Classify analyzes a single loop under env, the constant environment
// accumulated from the enclosing function up to this point.
func Classify(loop *ast.ForStmt, env *types.ConstEnv) Analysis {
	if !loop.IsRangeForm() {
		return Analysis{Loop: loop, Bound: Bound{Bounded: false}, Strategy: BpfLoopHelper}
	}

	lo, loOK := types.FoldInt(env, loop.Start)
	hi, hiOK := types.FoldInt(env, loop.End)
	if !loOK || !hiOK {
		return Analysis{Loop: loop, Bound: Bound{Bounded: false}, Strategy: BpfLoopHelper}
	}

	var iters int64
	if hi > lo {
		iters = hi - lo
	}

	a := Analysis{
		Loop:           loop,
		Bound:          Bound{Bounded: true, Lo: lo, Hi: hi},
		EstimatedIters: iters,
	}

	switch {
	case iters <= unrollCeiling:
		a.Strategy = UnrolledLoop
	case iters > bpfLoopFloor:
		a.Strategy = BpfLoopHelper
	default:
		a.Strategy = SimpleLoop
	}
	return a
}

// ClassifyFunction walks every top-level loop in a function body — nested
// loops are analyzed independently the same way, each against the
// environment accumulated up to its own position — and returns one
// Analysis per ForStmt encountered, in source order.
func ClassifyFunction(body *ast.BlockStmt) []Analysis {
	var out []Analysis
	var walkStmts func(stmts []ast.Stmt, env *types.ConstEnv)
	walkStmts = func(stmts []ast.Stmt, env *types.ConstEnv) {
		for _, s := range stmts {
			switch st := s.(type) {
			case *ast.LocalVarDecl:
				if st.Init != nil {
					if v, ok := types.FoldInt(env, st.Init); ok {
						env = env.Bind(st.Name, v)
					}
				}
			case *ast.AssignStmt:
				if id, ok := st.Target.(*ast.Identifier); ok && st.Op == "=" {
					if v, ok := types.FoldInt(env, st.Value); ok {
						env = env.Bind(id.Name, v)
					}
				}
			case *ast.IfStmt:
				walkStmts(st.Then.Stmts, env)
				if elseBlock, ok := st.Else.(*ast.BlockStmt); ok {
					walkStmts(elseBlock.Stmts, env)
				}
			case *ast.ForStmt:
				out = append(out, Classify(st, env))
				walkStmts(st.Body.Stmts, env)
			case *ast.BlockStmt:
				walkStmts(st.Stmts, env)
			}
		}
	}
	walkStmts(body.Stmts, nil)
	return out
}
