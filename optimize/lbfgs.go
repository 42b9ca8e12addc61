package optimize

import (
	"fmt"
	"math"

	"tipi/pkg/shape"
)

type lbfgsPhase int

const (
	phaseLineSearch lbfgsPhase = iota
	phaseNeedDirection
	phaseDone
)

// LBFGST is the unconstrained limited-memory quasi-Newton engine, driven
// by reverse communication: the caller evaluates the objective at the
// vector the optimizer hands back and feeds the result to Iterate, until
// a terminal status (Converged, Warning, Error) is reported.
type LBFGST[F shape.Real] struct {
	n    int
	hist *historyRing[F]
	ls   *LineSearchT[F]

	gatol, grtol float64
	g0norm       float64

	x, g, d, xPrev, gPrev []F
	f                     float64
	phase                 lbfgsPhase
	iter                  int
}

// NewLBFGS builds an L-BFGS engine over an n-dimensional variable space
// with m memorized (s, y) pairs, driven by ls, converging when
// ‖g‖ <= max(gatol, grtol*‖g0‖).
func NewLBFGS[F shape.Real](n, m int, ls *LineSearchT[F], gatol, grtol F) (*LBFGST[F], error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: n must be >= 1", ErrInvalidArgument)
	}
	if m < 1 {
		return nil, fmt.Errorf("%w: m must be >= 1", ErrInvalidArgument)
	}
	if ls == nil {
		return nil, fmt.Errorf("%w: line search must not be nil", ErrInvalidArgument)
	}
	return &LBFGST[F]{
		n: n, hist: newHistoryRing[F](n, m), ls: ls,
		gatol: float64(gatol), grtol: float64(grtol),
		x: make([]F, n), g: make([]F, n), d: make([]F, n),
		xPrev: make([]F, n), gPrev: make([]F, n),
	}, nil
}

// Iteration returns the number of accepted steps so far.
func (o *LBFGST[F]) Iteration() int { return o.iter }

func dotF[F shape.Real](a, b []F) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm2F[F shape.Real](a []F) float64 {
	return math.Sqrt(dotF(a, a))
}

// Start begins optimization at x0 with its already-evaluated cost f0 and
// gradient g0. Returns Converged immediately if g0 already satisfies the
// convergence test; otherwise ComputeFG with the first line-search trial
// point (the optimizer's own buffer, valid until the next call).
func (o *LBFGST[F]) Start(x0, g0 []F, f0 float64) (Status, []F, error) {
	if len(x0) != o.n || len(g0) != o.n {
		return Error, nil, fmt.Errorf("%w: vector length != %d", ErrInvalidArgument, o.n)
	}
	copy(o.x, x0)
	copy(o.g, g0)
	o.f = f0
	o.g0norm = norm2F(g0)
	o.hist.reset()
	o.iter = 0

	if o.g0norm <= math.Max(o.gatol, o.grtol*o.g0norm) {
		o.phase = phaseDone
		return Converged, o.x, nil
	}

	return o.startLineSearchFrom(steepestDescent(o.g, o.g0norm), o.f)
}

// Iterate feeds the cost and gradient evaluated at the vector last
// returned (by Start, Iterate, or Continue) and advances the line search.
func (o *LBFGST[F]) Iterate(f float64, g []F) (Status, []F, error) {
	if o.phase != phaseLineSearch {
		return Error, nil, fmt.Errorf("%w: Iterate called outside a line search", ErrInvalidArgument)
	}
	if len(g) != o.n {
		return Error, nil, fmt.Errorf("%w: gradient length != %d", ErrInvalidArgument, o.n)
	}

	dg := dotF(o.d, g)
	status, step, err := o.ls.Iterate(F(f), F(dg))

	switch status {
	case ComputeFG:
		for i := range o.x {
			o.x[i] = o.xPrev[i] + step*o.d[i]
		}
		return ComputeFG, o.x, nil

	case Converged:
		s := make([]F, o.n)
		y := make([]F, o.n)
		for i := range s {
			s[i] = o.x[i] - o.xPrev[i]
			y[i] = g[i] - o.gPrev[i]
		}
		o.hist.admit(s, y)
		copy(o.g, g)
		o.f = f
		o.iter++

		gnorm := norm2F(g)
		if gnorm <= math.Max(o.gatol, o.grtol*o.g0norm) {
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

// Continue proceeds after a NewX status: it computes the next search
// direction from the history (falling back to steepest descent if the
// history is empty or the recursion direction isn't a descent direction)
// and starts the next line search.
func (o *LBFGST[F]) Continue() (Status, []F, error) {
	if o.phase != phaseNeedDirection {
		return Error, nil, fmt.Errorf("%w: Continue called without a pending NewX", ErrInvalidArgument)
	}

	d := make([]F, o.n)
	if o.hist.count > 0 {
		o.hist.twoLoopRecursion(o.g, d)
		if dotF(d, o.g) >= 0 {
			d = steepestDescent(o.g, norm2F(o.g))
		}
	} else {
		d = steepestDescent(o.g, norm2F(o.g))
	}

	return o.startLineSearchFrom(d, o.f)
}

// startLineSearchFrom starts a line search along d and records the
// pre-step point for the next s/y pair.
func (o *LBFGST[F]) startLineSearchFrom(d []F, f0 float64) (Status, []F, error) {
	dg := dotF(d, o.g)
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
	copy(o.gPrev, o.g)
	for i := range o.x {
		o.x[i] = o.xPrev[i] + step*d[i]
	}
	o.phase = phaseLineSearch
	return ComputeFG, o.x, nil
}

func steepestDescent[F shape.Real](g []F, gnorm float64) []F {
	d := make([]F, len(g))
	if gnorm == 0 {
		return d
	}
	inv := F(1 / gnorm)
	for i := range g {
		d[i] = -g[i] * inv
	}
	return d
}
