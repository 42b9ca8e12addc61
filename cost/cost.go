// Package cost implements the smooth differentiable cost-function
// framework: weighted Gaussian data fidelity, hyperbolic total-variation
// regularization, and their weighted composition.
package cost

import (
	"errors"

	"tipi/pkg/shape"
)

// Errors shared across the cost framework.
var (
	ErrInvalidWeights        = errors.New("cost: invalid weights")
	ErrInconsistentMasking   = errors.New("cost: inconsistent masking")
	ErrWeightsAlreadySet     = errors.New("cost: weights already finalized")
	ErrDataAlreadySet        = errors.New("cost: data already set")
	ErrUnsupportedRank       = errors.New("cost: unsupported rank")
	ErrShapeMismatch         = errors.New("cost: shape mismatch")
	ErrInvalidArgument       = errors.New("cost: invalid argument")
	ErrNegativeRegularWeight = errors.New("cost: negative or non-finite term weight")
)

// DifferentiableCost is the capability-set interface every concrete cost
// in this package implements, allowing data-fidelity and regularization
// terms to compose polymorphically into a weighted sum.
type DifferentiableCost[F shape.Real] interface {
	// InputShape returns the vector space this cost is defined over.
	InputShape() shape.Shape

	// Evaluate returns alpha * f(x) without touching any gradient buffer.
	Evaluate(alpha F, x []F) float64

	// ComputeCostAndGradient returns alpha * f(x) and either overwrites
	// (clear == true) or accumulates into g the value alpha * grad f(x).
	ComputeCostAndGradient(alpha F, x, g []F, clear bool) float64
}
