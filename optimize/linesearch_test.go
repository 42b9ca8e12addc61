package optimize

import (
	"math"
	"testing"
)

// runLineSearch drives a reverse-communication LineSearchT against a 1-D
// merit function phi, returning the accepted step and iteration count.
func runLineSearch(t *testing.T, ls *LineSearchT[float64], phi func(step float64) (f, dg float64), step0 float64) (float64, Status) {
	t.Helper()
	f0, dg0 := phi(0)
	status, step, err := ls.Start(step0, f0, dg0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 100; i++ {
		if status != ComputeFG {
			return step, status
		}
		f, dg := phi(step)
		status, step, err = ls.Iterate(f, dg)
		if err != nil && status == Error {
			t.Fatalf("Iterate: %v", err)
		}
	}
	t.Fatalf("line search did not terminate in 100 iterations")
	return 0, Error
}

func TestLineSearchFindsMinimumOfQuadratic(t *testing.T) {
	// gtol = 0.1 rejects the first trial step (|phi'(1)| = 4 > 0.1*6), so the
	// search has to interpolate toward the minimizer at 3.
	ls, err := NewLineSearch(1e-4, 0.1, 1e-10, 1e-20, 1e20)
	if err != nil {
		t.Fatalf("NewLineSearch: %v", err)
	}
	phi := func(step float64) (float64, float64) {
		d := step - 3
		return d * d, 2 * d
	}
	step, status := runLineSearch(t, ls, phi, 1)
	if status != Converged {
		t.Fatalf("status = %v, want Converged", status)
	}
	if math.Abs(step-3) > 1e-3 {
		t.Fatalf("step = %v, want close to 3", step)
	}
}

func TestLineSearchRejectsNonDescentDirection(t *testing.T) {
	ls, err := NewLineSearch(1e-4, 0.9, 1e-10, 1e-20, 1e20)
	if err != nil {
		t.Fatalf("NewLineSearch: %v", err)
	}
	status, _, err := ls.Start(1, 0, 1) // dg0 = 1 >= 0
	if status != Error || err != ErrNotDescent {
		t.Fatalf("Start = (%v, %v), want (Error, ErrNotDescent)", status, err)
	}
}

func TestLineSearchSatisfiesStrongWolfe(t *testing.T) {
	ls, err := NewLineSearch(1e-4, 0.1, 1e-10, 1e-20, 1e20)
	if err != nil {
		t.Fatalf("NewLineSearch: %v", err)
	}
	f0, dg0 := 0.0, -1.0
	phi := func(step float64) (float64, float64) {
		return -step + 0.5*step*step, -1 + step
	}
	status, step, err := ls.Start(1, f0, dg0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	var fStep, dgStep float64
	for i := 0; i < 100 && status == ComputeFG; i++ {
		fStep, dgStep = phi(step)
		status, step, err = ls.Iterate(fStep, dgStep)
		if err != nil && status == Error {
			t.Fatalf("Iterate: %v", err)
		}
	}
	if status != Converged {
		t.Fatalf("status = %v, want Converged", status)
	}
	if fStep > f0+1e-4*step*dg0 {
		t.Fatalf("Armijo condition violated: f(step)=%v", fStep)
	}
	if math.Abs(dgStep) > 0.1*math.Abs(dg0) {
		t.Fatalf("curvature condition violated: dg(step)=%v", dgStep)
	}
}

func TestNewLineSearchRejectsBadParameters(t *testing.T) {
	cases := []struct {
		ftol, gtol, xtol, stepMin, stepMax float64
	}{
		{0, 0.9, 1e-10, 1e-20, 1e20},
		{0.5, 0.9, 1e-10, 1e-20, 1e20},
		{1e-4, 1e-5, 1e-10, 1e-20, 1e20},
		{1e-4, 0.9, 0, 1e-20, 1e20},
		{1e-4, 0.9, 1e-10, 1e20, 1e-20},
	}
	for i, c := range cases {
		if _, err := NewLineSearch(c.ftol, c.gtol, c.xtol, c.stepMin, c.stepMax); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
