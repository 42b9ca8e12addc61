package optimize

import (
	"fmt"

	"tipi/pkg/shape"
)

// BoundsT is a box-constraint projector: a per-component lower bound,
// upper bound, both, or neither. A nil bound on either side means
// unbounded on that side.
type BoundsT[F shape.Real] struct {
	n     int
	lower []F
	upper []F
}

// NewBounds builds a box constraint over n variables. Either lower or
// upper may be nil (no bound on that side); a non-nil slice must have
// length n, and where both are given, lower[i] <= upper[i].
func NewBounds[F shape.Real](n int, lower, upper []F) (*BoundsT[F], error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: n must be >= 1", ErrInvalidArgument)
	}
	if lower != nil && len(lower) != n {
		return nil, fmt.Errorf("%w: lower bound length != %d", ErrInvalidArgument, n)
	}
	if upper != nil && len(upper) != n {
		return nil, fmt.Errorf("%w: upper bound length != %d", ErrInvalidArgument, n)
	}
	if lower != nil && upper != nil {
		for i := range lower {
			if lower[i] > upper[i] {
				return nil, fmt.Errorf("%w: lower bound exceeds upper bound at index %d", ErrInvalidArgument, i)
			}
		}
	}
	b := &BoundsT[F]{n: n}
	if lower != nil {
		b.lower = append([]F(nil), lower...)
	}
	if upper != nil {
		b.upper = append([]F(nil), upper...)
	}
	return b, nil
}

// HasLower reports whether a lower bound is active.
func (b *BoundsT[F]) HasLower() bool { return b.lower != nil }

// HasUpper reports whether an upper bound is active.
func (b *BoundsT[F]) HasUpper() bool { return b.upper != nil }

// ProjectVariables clamps x elementwise into the feasible box, writing the
// result into y (which may alias x).
func (b *BoundsT[F]) ProjectVariables(x, y []F) {
	for i := range x {
		v := x[i]
		if b.lower != nil && v < b.lower[i] {
			v = b.lower[i]
		}
		if b.upper != nil && v > b.upper[i] {
			v = b.upper[i]
		}
		y[i] = v
	}
}

// ProjectGradient zeroes components of g where x sits on an active bound
// and g points outward (i.e. following -g would leave the feasible set),
// writing the result into gProj (which may alias g). This is the gradient
// used by BLMVM's convergence test and two-loop recursion in place of the
// raw gradient.
func (b *BoundsT[F]) ProjectGradient(g, x []F, gProj []F) {
	for i := range g {
		v := g[i]
		if b.lower != nil && x[i] <= b.lower[i] && v > 0 {
			v = 0
		}
		if b.upper != nil && x[i] >= b.upper[i] && v < 0 {
			v = 0
		}
		gProj[i] = v
	}
}
