package cost

import (
	"fmt"
	"math"

	"tipi/pkg/shape"
)

type weightedTerm[F shape.Real] struct {
	weight F
	cost   DifferentiableCost[F]
}

// CompositeT is a weighted sum of differentiable costs sharing one input
// space.
type CompositeT[F shape.Real] struct {
	space shape.Shape
	terms []weightedTerm[F]
}

// NewComposite starts an empty composite cost over space.
func NewComposite[F shape.Real](space shape.Shape) *CompositeT[F] {
	return &CompositeT[F]{space: space}
}

// AddTerm adds weight*f to the sum. weight must be finite and nonnegative;
// f must share the composite's input space.
func (c *CompositeT[F]) AddTerm(weight F, f DifferentiableCost[F]) error {
	wf := float64(weight)
	if math.IsNaN(wf) || math.IsInf(wf, 0) || weight < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeRegularWeight, weight)
	}
	if !f.InputShape().Equals(c.space) {
		return fmt.Errorf("%w: term shape %v != composite shape %v", ErrShapeMismatch, f.InputShape(), c.space)
	}
	c.terms = append(c.terms, weightedTerm[F]{weight: weight, cost: f})
	return nil
}

// InputShape returns the shared variable space.
func (c *CompositeT[F]) InputShape() shape.Shape { return c.space }

// Evaluate returns alpha * Σ wk*fk(x) without computing a gradient.
func (c *CompositeT[F]) Evaluate(alpha F, x []F) float64 {
	return c.ComputeCostAndGradient(alpha, x, nil, true)
}

// ComputeCostAndGradient threads alpha*weight[k] into each subterm and the
// clear flag so only the first nonzero-weight term clears g; the rest
// accumulate.
func (c *CompositeT[F]) ComputeCostAndGradient(alpha F, x, g []F, clear bool) float64 {
	var sum float64
	cleared := false
	for _, term := range c.terms {
		if term.weight == 0 {
			continue
		}
		subAlpha := alpha * term.weight
		sum += term.cost.ComputeCostAndGradient(subAlpha, x, g, clear && !cleared)
		cleared = true
	}
	if !cleared && clear && g != nil {
		for i := range g {
			g[i] = 0
		}
	}
	return sum
}
