package optimize

import (
	"fmt"

	"tipi/pkg/shape"
)

// BLMVMT is the bound-constrained counterpart of LBFGST: the same
// history and line-search machinery, driven by the projected gradient
// instead of the raw gradient, with every trial point clamped back into
// the feasible box before the caller evaluates it.
type BLMVMT[F shape.Real] struct {
	n      int
	bounds *BoundsT[F]
	hist   *historyRing[F]
	ls     *LineSearchT[F]

	gatol, grtol float64
	g0norm       float64

	x, g, gProj, d, xPrev, gProjPrev []F
	f                                float64
	phase                            lbfgsPhase
	iter                             int
}

// NewBLMVM builds a box-constrained L-BFGS engine over bounds, with m
// memorized pairs, driven by ls.
func NewBLMVM[F shape.Real](bounds *BoundsT[F], m int, ls *LineSearchT[F], gatol, grtol F) (*BLMVMT[F], error) {
	if bounds == nil {
		return nil, fmt.Errorf("%w: bounds must not be nil", ErrInvalidArgument)
	}
	if m < 1 {
		return nil, fmt.Errorf("%w: m must be >= 1", ErrInvalidArgument)
	}
	if ls == nil {
		return nil, fmt.Errorf("%w: line search must not be nil", ErrInvalidArgument)
	}
	n := bounds.n
	return &BLMVMT[F]{
		n: n, bounds: bounds, hist: newHistoryRing[F](n, m), ls: ls,
		gatol: float64(gatol), grtol: float64(grtol),
		x: make([]F, n), g: make([]F, n), gProj: make([]F, n), d: make([]F, n),
		xPrev: make([]F, n), gProjPrev: make([]F, n),
	}, nil
}

// Iteration returns the number of accepted steps so far.
func (o *BLMVMT[F]) Iteration() int { return o.iter }

// Start begins optimization at x0 (clamped into the feasible box) with its
// already-evaluated cost f0 and gradient g0.
func (o *BLMVMT[F]) Start(x0, g0 []F, f0 float64) (Status, []F, error) {
	if len(x0) != o.n || len(g0) != o.n {
		return Error, nil, fmt.Errorf("%w: vector length != %d", ErrInvalidArgument, o.n)
	}
	o.bounds.ProjectVariables(x0, o.x)
	copy(o.g, g0)
	o.bounds.ProjectGradient(o.g, o.x, o.gProj)
	o.f = f0
	o.g0norm = norm2F(o.gProj)
	o.hist.reset()
	o.iter = 0

	if o.g0norm <= max64(o.gatol, o.grtol*o.g0norm) {
		o.phase = phaseDone
		return Converged, o.x, nil
	}

	return o.startLineSearchFrom(steepestDescent(o.gProj, o.g0norm), o.f)
}

// Iterate feeds the cost and gradient evaluated at the vector last
// returned and advances the line search.
func (o *BLMVMT[F]) Iterate(f float64, g []F) (Status, []F, error) {
	if o.phase != phaseLineSearch {
		return Error, nil, fmt.Errorf("%w: Iterate called outside a line search", ErrInvalidArgument)
	}
	if len(g) != o.n {
		return Error, nil, fmt.Errorf("%w: gradient length != %d", ErrInvalidArgument, o.n)
	}
	copy(o.g, g)
	o.bounds.ProjectGradient(o.g, o.x, o.gProj)

	dg := dotF(o.d, o.gProj)
	status, step, err := o.ls.Iterate(F(f), F(dg))

	switch status {
	case ComputeFG:
		o.candidate(step)
		return ComputeFG, o.x, nil

	case Converged:
		s := make([]F, o.n)
		y := make([]F, o.n)
		for i := range s {
			s[i] = o.x[i] - o.xPrev[i]
			y[i] = o.gProj[i] - o.gProjPrev[i]
		}
		o.hist.admit(s, y)
		o.f = f
		o.iter++

		gnorm := norm2F(o.gProj)
		if gnorm <= max64(o.gatol, o.grtol*o.g0norm) {
			o.phase = phaseDone
			return Converged, o.x, nil
		}
		o.phase = phaseNeedDirection
		return NewX, o.x, nil

	case Warning:
		o.phase = phaseDone
		return Warning, o.x, nil

	default: // Error
		o.phase = phaseDone
		return Error, o.x, err
	}
}

// Continue proceeds after a NewX status, computing the next direction
// from the projected-gradient history and starting the next line search.
func (o *BLMVMT[F]) Continue() (Status, []F, error) {
	if o.phase != phaseNeedDirection {
		return Error, nil, fmt.Errorf("%w: Continue called without a pending NewX", ErrInvalidArgument)
	}

	d := make([]F, o.n)
	if o.hist.count > 0 {
		o.hist.twoLoopRecursion(o.gProj, d)
		if dotF(d, o.gProj) >= 0 {
			d = steepestDescent(o.gProj, norm2F(o.gProj))
		}
	} else {
		d = steepestDescent(o.gProj, norm2F(o.gProj))
	}

	return o.startLineSearchFrom(d, o.f)
}

func (o *BLMVMT[F]) startLineSearchFrom(d []F, f0 float64) (Status, []F, error) {
	dg := dotF(d, o.gProj)
	status, step, err := o.ls.Start(1, F(f0), F(dg))
	if status == Error {
		o.phase = phaseDone
		if err == nil {
			err = ErrNotDescent
		}
		return Error, nil, err
	}

	o.d = d
	copy(o.xPrev, o.x)
	copy(o.gProjPrev, o.gProj)
	o.candidate(step)
	o.phase = phaseLineSearch
	return ComputeFG, o.x, nil
}

// candidate sets o.x to the line-search trial point along o.d from
// o.xPrev, clamped into the feasible box.
func (o *BLMVMT[F]) candidate(step F) {
	for i := range o.x {
		o.x[i] = o.xPrev[i] + step*o.d[i]
	}
	o.bounds.ProjectVariables(o.x, o.x)
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
