package optimize

import (
	"math"
	"testing"
)

func runBLMVM(t *testing.T, q *quadratic, bounds *BoundsT[float64], x0 []float64) ([]float64, float64, error) {
	t.Helper()
	n := len(x0)
	ls, err := NewLineSearch(1e-4, 0.9, 1e-10, 1e-20, 1e20)
	if err != nil {
		t.Fatalf("NewLineSearch: %v", err)
	}
	opt, err := NewBLMVM(bounds, 5, ls, 1e-10, 1e-8)
	if err != nil {
		t.Fatalf("NewBLMVM: %v", err)
	}

	g0 := make([]float64, n)
	f0 := q.eval(x0, g0)
	status, x, err := opt.Start(x0, g0, f0)

	g := make([]float64, n)
	var f float64
	for i := 0; i < 1000; i++ {
		switch status {
		case ComputeFG:
			f = q.eval(x, g)
			status, x, err = opt.Iterate(f, g)
		case NewX:
			status, x, err = opt.Continue()
		case Converged:
			return x, f, nil
		case Warning:
			return x, f, nil
		case Error:
			return nil, 0, err
		}
		if err != nil && status == Error {
			return nil, 0, err
		}
	}
	t.Fatalf("BLMVM did not terminate in 1000 steps")
	return nil, 0, nil
}

func TestBLMVMConvergesToInteriorMinimumWhenUnconstrained(t *testing.T) {
	q := &quadratic{target: []float64{1, 2}, weight: []float64{1, 1}}
	bounds, err := NewBounds[float64](2, nil, nil)
	if err != nil {
		t.Fatalf("NewBounds: %v", err)
	}
	x, _, err := runBLMVM(t, q, bounds, []float64{0, 0})
	if err != nil {
		t.Fatalf("runBLMVM: %v", err)
	}
	for i, xi := range x {
		if math.Abs(xi-q.target[i]) > 1e-4 {
			t.Errorf("x[%d] = %v, want close to %v", i, xi, q.target[i])
		}
	}
}

func TestBLMVMConvergesToActiveBound(t *testing.T) {
	// Unconstrained minimum is x1 = 2, but the upper bound clamps it to 1.5.
	q := &quadratic{target: []float64{1, 2}, weight: []float64{1, 1}}
	bounds, err := NewBounds[float64](2, nil, []float64{10, 1.5})
	if err != nil {
		t.Fatalf("NewBounds: %v", err)
	}
	x, _, err := runBLMVM(t, q, bounds, []float64{0, 0})
	if err != nil {
		t.Fatalf("runBLMVM: %v", err)
	}
	if math.Abs(x[0]-1) > 1e-4 {
		t.Errorf("x[0] = %v, want close to 1 (unconstrained)", x[0])
	}
	if math.Abs(x[1]-1.5) > 1e-4 {
		t.Errorf("x[1] = %v, want close to the active bound 1.5", x[1])
	}
}

func TestBLMVMClampsInfeasibleStartingPoint(t *testing.T) {
	q := &quadratic{target: []float64{0}, weight: []float64{1}}
	bounds, err := NewBounds[float64](1, []float64{-1}, []float64{1})
	if err != nil {
		t.Fatalf("NewBounds: %v", err)
	}
	ls, err := NewLineSearch(1e-4, 0.9, 1e-10, 1e-20, 1e20)
	if err != nil {
		t.Fatalf("NewLineSearch: %v", err)
	}
	opt, err := NewBLMVM(bounds, 5, ls, 1e-10, 1e-8)
	if err != nil {
		t.Fatalf("NewBLMVM: %v", err)
	}
	x0 := []float64{5}
	g0 := make([]float64, 1)
	f0 := q.eval(x0, g0)
	_, x, err := opt.Start(x0, g0, f0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if x[0] > 1 {
		t.Fatalf("x[0] = %v, want clamped to <= 1", x[0])
	}
}

func TestNewBoundsRejectsInconsistentBounds(t *testing.T) {
	if _, err := NewBounds(1, []float64{1}, []float64{0}); err == nil {
		t.Fatalf("expected error for lower > upper")
	}
	if _, err := NewBounds[float64](1, []float64{1, 2}, nil); err == nil {
		t.Fatalf("expected error for mismatched lower length")
	}
}

func TestBoundsProjectGradientZeroesOutwardComponentsOnly(t *testing.T) {
	bounds, err := NewBounds[float64](2, []float64{0, 0}, []float64{1, 1})
	if err != nil {
		t.Fatalf("NewBounds: %v", err)
	}
	x := []float64{0, 1}
	g := []float64{1, -1} // at lower bound -g points further down; at upper bound -g points further up
	gProj := make([]float64, 2)
	bounds.ProjectGradient(g, x, gProj)
	if gProj[0] != 0 {
		t.Errorf("gProj[0] = %v, want 0 (blocked by lower bound)", gProj[0])
	}
	if gProj[1] != 0 {
		t.Errorf("gProj[1] = %v, want 0 (blocked by upper bound)", gProj[1])
	}

	g2 := []float64{-1, 1} // -g points back into the interior at both bounds
	gProj2 := make([]float64, 2)
	bounds.ProjectGradient(g2, x, gProj2)
	if gProj2[0] != -1 || gProj2[1] != 1 {
		t.Errorf("gProj2 = %v, want unchanged (%v)", gProj2, g2)
	}
}
