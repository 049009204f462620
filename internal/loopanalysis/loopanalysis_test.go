package loopanalysis

import (
	"testing"

	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	"github.com/SiyuanSun0736/kernelscript/internal/types"
)

func intLit(v int64) *ast.IntLiteral { return &ast.IntLiteral{Value: v} }

func rangeLoop(lo, hi int64) *ast.ForStmt {
	return &ast.ForStmt{Var: "i", Start: intLit(lo), End: intLit(hi), Body: &ast.BlockStmt{}}
}

func TestClassifyUnrolledForSmallTripCount(t *testing.T) {
	a := Classify(rangeLoop(0, 4), nil)
	if a.Strategy != UnrolledLoop {
		t.Errorf("Strategy = %s, want unrolled", a.Strategy)
	}
	if !a.Bound.Bounded || a.EstimatedIters != 4 {
		t.Errorf("Bound = %+v, EstimatedIters = %d, want Bounded Hi-Lo=4", a.Bound, a.EstimatedIters)
	}
}

func TestClassifySimpleLoopForMidRange(t *testing.T) {
	a := Classify(rangeLoop(0, 50), nil)
	if a.Strategy != SimpleLoop {
		t.Errorf("Strategy = %s, want simple", a.Strategy)
	}
}

func TestClassifyBpfLoopHelperForLargeRange(t *testing.T) {
	a := Classify(rangeLoop(0, 1000), nil)
	if a.Strategy != BpfLoopHelper {
		t.Errorf("Strategy = %s, want bpf_loop", a.Strategy)
	}
}

func TestClassifyThresholdBoundaries(t *testing.T) {
	tests := []struct {
		iters int64
		want  Strategy
	}{
		{4, UnrolledLoop},
		{5, SimpleLoop},
		{100, SimpleLoop},
		{101, BpfLoopHelper},
	}
	for _, tt := range tests {
		a := Classify(rangeLoop(0, tt.iters), nil)
		if a.Strategy != tt.want {
			t.Errorf("iters=%d: Strategy = %s, want %s", tt.iters, a.Strategy, tt.want)
		}
	}
}

func TestClassifyIteratorFormIsAlwaysUnbounded(t *testing.T) {
	loop := &ast.ForStmt{Var: "k", Iter: &ast.Identifier{Name: "m"}, Body: &ast.BlockStmt{}}
	a := Classify(loop, nil)
	if a.Strategy != BpfLoopHelper || a.Bound.Bounded {
		t.Errorf("iterator-form loop = %+v, want unbounded bpf_loop", a)
	}
}

func TestClassifyUnfoldableBoundIsUnbounded(t *testing.T) {
	loop := &ast.ForStmt{Var: "i", Start: intLit(0), End: &ast.Identifier{Name: "n"}, Body: &ast.BlockStmt{}}
	a := Classify(loop, nil)
	if a.Strategy != BpfLoopHelper || a.Bound.Bounded {
		t.Errorf("unfoldable-bound loop = %+v, want unbounded bpf_loop", a)
	}
}

func TestClassifyFoldsBoundFromEnv(t *testing.T) {
	env := (&types.ConstEnv{}).Bind("n", 4)
	loop := &ast.ForStmt{Var: "i", Start: intLit(0), End: &ast.Identifier{Name: "n"}, Body: &ast.BlockStmt{}}
	a := Classify(loop, env)
	if !a.Bound.Bounded || a.Strategy != UnrolledLoop {
		t.Errorf("env-bound loop = %+v, want bounded+unrolled", a)
	}
}

func TestClassifyFunctionFoldsLocalConstIntoLoopBound(t *testing.T) {
	body := &ast.BlockStmt{Stmts: []ast.Stmt{
		&ast.LocalVarDecl{Name: "n", Init: intLit(4)},
		&ast.ForStmt{Var: "i", Start: intLit(0), End: &ast.Identifier{Name: "n"}, Body: &ast.BlockStmt{}},
	}}

	analyses := ClassifyFunction(body)
	if len(analyses) != 1 {
		t.Fatalf("len(analyses) = %d, want 1", len(analyses))
	}
	if !analyses[0].Bound.Bounded || analyses[0].Strategy != UnrolledLoop {
		t.Errorf("analysis = %+v, want bounded+unrolled via folded local", analyses[0])
	}
}

func TestClassifyFunctionWalksNestedLoopsInSourceOrder(t *testing.T) {
	inner := &ast.ForStmt{Var: "j", Start: intLit(0), End: intLit(2), Body: &ast.BlockStmt{}}
	outer := &ast.ForStmt{Var: "i", Start: intLit(0), End: intLit(3), Body: &ast.BlockStmt{Stmts: []ast.Stmt{inner}}}

	analyses := ClassifyFunction(&ast.BlockStmt{Stmts: []ast.Stmt{outer}})
	if len(analyses) != 2 {
		t.Fatalf("len(analyses) = %d, want 2 (outer + inner)", len(analyses))
	}
	if analyses[0].Loop != outer || analyses[1].Loop != inner {
		t.Errorf("analyses out of source order: %+v", analyses)
	}
}

func TestClassifyFunctionDoesNotLeakAssignmentsAcrossIfBranches(t *testing.T) {
	// Each branch forks the rolling env independently; the reassignment in
	// one branch must not be visible once the walk returns to the shared
	// parent statement list.
	body := &ast.BlockStmt{Stmts: []ast.Stmt{
		&ast.LocalVarDecl{Name: "n", Init: intLit(4)},
		&ast.IfStmt{
			Cond: &ast.BoolLiteral{Value: true},
			Then: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.AssignStmt{Target: &ast.Identifier{Name: "n"}, Op: "=", Value: intLit(1000)},
			}},
		},
		&ast.ForStmt{Var: "i", Start: intLit(0), End: &ast.Identifier{Name: "n"}, Body: &ast.BlockStmt{}},
	}}

	analyses := ClassifyFunction(body)
	if len(analyses) != 1 {
		t.Fatalf("len(analyses) = %d, want 1", len(analyses))
	}
	if analyses[0].Bound.Hi != 4 {
		t.Errorf("Hi = %d, want 4 (branch reassignment should not leak)", analyses[0].Bound.Hi)
	}
}

func TestStrategyString(t *testing.T) {
	tests := map[Strategy]string{
		UnrolledLoop:  "unrolled",
		SimpleLoop:    "simple",
		BpfLoopHelper: "bpf_loop",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Strategy(%d).String() = %q, want %q", s, got, want)
		}
	}
}
