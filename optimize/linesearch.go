package optimize

import (
	"fmt"
	"math"

	"tipi/pkg/shape"
)

// defaultMaxLineSearchIterations bounds a single line search in case the
// bracket never tightens to xtol, the safeguard every Moré–Thuente
// implementation carries.
const defaultMaxLineSearchIterations = 40

// LineSearchT implements the Moré–Thuente line search: a safeguarded
// cubic/quadratic bracketing search for a step satisfying the strong
// Wolfe conditions. The bracket arithmetic runs in float64 regardless of
// F, since the safeguards (case analysis on tiny derivative differences)
// are numerically delicate; only the public Start/Iterate boundary
// converts to and from F.
type LineSearchT[F shape.Real] struct {
	ftol, gtol, xtol float64
	stepMin, stepMax float64
	maxIter          int

	brackt bool
	stage1 bool

	stx, fx, dx float64
	sty, fy, dy float64
	stmin, stmax float64
	width, prevWidth float64

	finit, dginit, dgtest float64
	step                   float64
	count                  int
}

// NewLineSearch builds a line search with the given strong-Wolfe
// parameters and step bounds. Requires 0 < ftol < 0.5, ftol < gtol < 1,
// 0 < xtol, and 0 < stepMin <= stepMax.
func NewLineSearch[F shape.Real](ftol, gtol, xtol, stepMin, stepMax F) (*LineSearchT[F], error) {
	ft, gt, xt := float64(ftol), float64(gtol), float64(xtol)
	smin, smax := float64(stepMin), float64(stepMax)
	if !(0 < ft && ft < 0.5) {
		return nil, fmt.Errorf("%w: ftol must be in (0, 0.5)", ErrInvalidArgument)
	}
	if !(ft < gt && gt < 1) {
		return nil, fmt.Errorf("%w: gtol must be in (ftol, 1)", ErrInvalidArgument)
	}
	if xt <= 0 {
		return nil, fmt.Errorf("%w: xtol must be > 0", ErrInvalidArgument)
	}
	if !(0 < smin && smin <= smax) {
		return nil, fmt.Errorf("%w: step bounds must satisfy 0 < stepMin <= stepMax", ErrInvalidArgument)
	}
	return &LineSearchT[F]{
		ftol: ft, gtol: gt, xtol: xt,
		stepMin: smin, stepMax: smax,
		maxIter: defaultMaxLineSearchIterations,
	}, nil
}

// Start begins a search from step0 along the direction whose directional
// derivative at the origin is dg0 and whose cost there is f0. Returns
// Error immediately if dg0 >= 0 (not a descent direction).
func (ls *LineSearchT[F]) Start(step0, f0, dg0 F) (Status, F, error) {
	step := float64(step0)
	dg := float64(dg0)
	if step <= 0 {
		return Error, 0, fmt.Errorf("%w: initial step must be > 0", ErrInvalidArgument)
	}
	if dg >= 0 {
		return Error, 0, ErrNotDescent
	}

	ls.brackt = false
	ls.stage1 = true
	ls.finit = float64(f0)
	ls.dginit = dg
	ls.dgtest = ls.ftol * dg
	ls.width = ls.stepMax - ls.stepMin
	ls.prevWidth = 2 * ls.width
	ls.stx, ls.fx, ls.dx = 0, ls.finit, ls.dginit
	ls.sty, ls.fy, ls.dy = 0, ls.finit, ls.dginit
	ls.step = step
	ls.count = 0

	return ComputeFG, F(ls.step), nil
}

// Iterate feeds the cost and directional derivative evaluated at the step
// last returned, and reports the next status: ComputeFG with a new trial
// step, Converged, Warning (a step bound was hit without satisfying the
// Wolfe conditions, the bracket shrank below xtol, or the iteration limit
// was reached), or Error.
func (ls *LineSearchT[F]) Iterate(fAt, dgAt F) (Status, F, error) {
	f := float64(fAt)
	dg := float64(dgAt)

	if ls.brackt {
		ls.stmin = math.Min(ls.stx, ls.sty)
		ls.stmax = math.Max(ls.stx, ls.sty)
	} else {
		ls.stmin = ls.stx
		ls.stmax = ls.step + 4*(ls.step-ls.stx)
	}
	if ls.step < ls.stepMin {
		ls.step = ls.stepMin
	}
	if ls.step > ls.stepMax {
		ls.step = ls.stepMax
	}

	ftest1 := ls.finit + ls.step*ls.dgtest
	ls.count++

	switch {
	case ls.brackt && (ls.step <= ls.stmin || ls.stmax <= ls.step):
		return Error, F(ls.stx), ErrLineSearchFailed
	case ls.step == ls.stepMax && f <= ftest1 && dg <= ls.dgtest:
		return Warning, F(ls.step), nil
	case ls.step == ls.stepMin && (ftest1 < f || ls.dgtest <= dg):
		return Warning, F(ls.step), nil
	case ls.brackt && (ls.stmax-ls.stmin) <= ls.xtol*ls.stmax:
		return Warning, F(ls.step), nil
	case ls.maxIter <= ls.count:
		return Warning, F(ls.step), nil
	case f <= ftest1 && math.Abs(dg) <= ls.gtol*(-ls.dginit):
		return Converged, F(ls.step), nil
	}

	if ls.stage1 && f <= ftest1 && math.Min(ls.ftol, ls.gtol)*ls.dginit <= dg {
		ls.stage1 = false
	}

	if ls.stage1 && ftest1 < f && f <= ls.fx {
		fm := f - ls.step*ls.dgtest
		fxm := ls.fx - ls.stx*ls.dgtest
		fym := ls.fy - ls.sty*ls.dgtest
		dgm := dg - ls.dgtest
		dgxm := ls.dx - ls.dgtest
		dgym := ls.dy - ls.dgtest

		newStep := updateTrialInterval(&ls.stx, &fxm, &dgxm, &ls.sty, &fym, &dgym, ls.step, fm, dgm, ls.stmin, ls.stmax, &ls.brackt)

		ls.fx = fxm + ls.stx*ls.dgtest
		ls.fy = fym + ls.sty*ls.dgtest
		ls.dx = dgxm + ls.dgtest
		ls.dy = dgym + ls.dgtest
		ls.step = newStep
	} else {
		ls.step = updateTrialInterval(&ls.stx, &ls.fx, &ls.dx, &ls.sty, &ls.fy, &ls.dy, ls.step, f, dg, ls.stmin, ls.stmax, &ls.brackt)
	}

	if ls.brackt {
		if 0.66*ls.prevWidth <= math.Abs(ls.sty-ls.stx) {
			ls.step = ls.stx + 0.5*(ls.sty-ls.stx)
		}
		ls.prevWidth = ls.width
		ls.width = math.Abs(ls.sty - ls.stx)
	}

	return ComputeFG, F(ls.step), nil
}

// updateTrialInterval is the Moré–Thuente safeguarded cubic/quadratic step
// selection (MINPACK's dcstep), choosing a new trial step t and narrowing
// the bracket [x, y] (or [stx, sty] before a bracket exists).
func updateTrialInterval(x, fx, dx, y, fy, dy *float64, t, ft, dt, tmin, tmax float64, brackt *bool) float64 {
	dsign := dt*(*dx) < 0

	var newt float64
	var bound bool

	switch {
	case *fx < ft:
		*brackt = true
		bound = true
		mc := cubicMinimizer(*x, *fx, *dx, t, ft, dt)
		mq := quadMinimizer(*x, *fx, *dx, t, ft)
		if math.Abs(mc-*x) < math.Abs(mq-*x) {
			newt = mc
		} else {
			newt = mc + 0.5*(mq-mc)
		}
	case dsign:
		*brackt = true
		bound = false
		mc := cubicMinimizer(*x, *fx, *dx, t, ft, dt)
		mq := quadMinimizer2(*x, *dx, t, dt)
		if math.Abs(mc-t) > math.Abs(mq-t) {
			newt = mc
		} else {
			newt = mq
		}
	case math.Abs(dt) < math.Abs(*dx):
		bound = true
		mc := cubicMinimizer2(*x, *fx, *dx, t, ft, dt, tmin, tmax)
		mq := quadMinimizer2(*x, *dx, t, dt)
		if *brackt {
			if math.Abs(t-mc) < math.Abs(t-mq) {
				newt = mc
			} else {
				newt = mq
			}
		} else {
			if math.Abs(t-mc) > math.Abs(t-mq) {
				newt = mc
			} else {
				newt = mq
			}
		}
	default:
		bound = false
		if *brackt {
			newt = cubicMinimizer(t, ft, dt, *y, *fy, *dy)
		} else if *x < t {
			newt = tmax
		} else {
			newt = tmin
		}
	}

	if *fx < ft {
		*y, *fy, *dy = t, ft, dt
	} else {
		if dsign {
			*y, *fy, *dy = *x, *fx, *dx
		}
		*x, *fx, *dx = t, ft, dt
	}

	if newt > tmax {
		newt = tmax
	}
	if newt < tmin {
		newt = tmin
	}

	if *brackt && bound {
		mq := *x + 0.66*(*y-*x)
		if *x < *y {
			if mq < newt {
				newt = mq
			}
		} else {
			if newt < mq {
				newt = mq
			}
		}
	}

	return newt
}

func cubicMinimizer(u, fu, du, v, fv, dv float64) float64 {
	d := v - u
	theta := (fu-fv)*3/d + du + dv
	s := max3(math.Abs(theta), math.Abs(du), math.Abs(dv))
	a := theta / s
	gamma := s * math.Sqrt(a*a-(du/s)*(dv/s))
	if v < u {
		gamma = -gamma
	}
	p := gamma - du + theta
	q := gamma - du + gamma + dv
	return u + (p/q)*d
}

func cubicMinimizer2(u, fu, du, v, fv, dv, xmin, xmax float64) float64 {
	d := v - u
	theta := (fu-fv)*3/d + du + dv
	s := max3(math.Abs(theta), math.Abs(du), math.Abs(dv))
	a := theta / s
	inner := a*a - (du/s)*(dv/s)
	if inner < 0 {
		inner = 0
	}
	gamma := s * math.Sqrt(inner)
	if u < v {
		gamma = -gamma
	}
	p := gamma - dv + theta
	q := gamma - dv + gamma + du
	r := p / q
	if r < 0 && gamma != 0 {
		return v - r*d
	}
	if d > 0 {
		return xmax
	}
	return xmin
}

func quadMinimizer(u, fu, du, v, fv float64) float64 {
	a := v - u
	return u + (du/((fu-fv)/a+du)/2)*a
}

func quadMinimizer2(u, du, v, dv float64) float64 {
	a := u - v
	return v + (dv/(dv-du))*a
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}
