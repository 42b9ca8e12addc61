package cost

import (
	"fmt"
	"math"

	"tipi/pkg/shape"
)

// WeightedDataT pairs a data vector with nonnegative weights in the same
// space. As a DifferentiableCost it is the quadratic
// f(x) = ½ Σ w_i (x_i - y_i)².
type WeightedDataT[F shape.Real] struct {
	space shape.Shape

	data    []F
	weights []F

	weightsFromData bool // compute_weights_from_data was used
	weightsSet      bool // set_weights or compute_weights_from_data was called
	writableData    bool
	writableWeights bool

	finalized bool
	nValid    int64
}

// NewWeightedData records data (which must match s.Count()) as the weighted
// data's measurement vector. If writable, the data buffer may be mutated
// in place during finalize (non-finite entries zeroed).
func NewWeightedData[F shape.Real](s shape.Shape, data []F, writable bool) (*WeightedDataT[F], error) {
	if int64(len(data)) != s.Count() {
		return nil, fmt.Errorf("%w: data length %d != shape count %d", ErrShapeMismatch, len(data), s.Count())
	}
	return &WeightedDataT[F]{space: s, data: data, writableData: writable}, nil
}

// InputShape returns the space y and w live in.
func (w *WeightedDataT[F]) InputShape() shape.Shape { return w.space }

// SetWeights records an explicit weight vector. Rejected once weights have
// already been finalized or otherwise set.
func (w *WeightedDataT[F]) SetWeights(weights []F, writable bool) error {
	if w.weightsSet || w.finalized {
		return ErrWeightsAlreadySet
	}
	if int64(len(weights)) != w.space.Count() {
		return fmt.Errorf("%w: weights length %d != shape count %d", ErrShapeMismatch, len(weights), w.space.Count())
	}
	w.weights = weights
	w.writableWeights = writable
	w.weightsSet = true
	return nil
}

// ComputeWeightsFromData sets w[i] = 1/(alpha*max(0,y[i]) + beta) where
// alpha, beta >= 0 and beta > 0 or alpha*y[i] > 0; otherwise w[i] = 0.
// Mutually exclusive with SetWeights.
func (w *WeightedDataT[F]) ComputeWeightsFromData(alpha, beta F) error {
	if w.weightsSet {
		return ErrWeightsAlreadySet
	}
	if alpha < 0 || beta < 0 {
		return fmt.Errorf("%w: alpha and beta must be >= 0", ErrInvalidArgument)
	}
	out := make([]F, len(w.data))
	for i, y := range w.data {
		pos := y
		if pos < 0 {
			pos = 0
		}
		denom := alpha*pos + beta
		if beta > 0 || alpha*y > 0 {
			out[i] = 1 / denom
		}
	}
	w.weights = out
	w.writableWeights = true
	w.weightsSet = true
	w.weightsFromData = true
	return nil
}

// MarkBadData sets w[i] = 0 wherever mask[i] is true. Idempotent and
// monotonic: it only ever lowers weights. If no weights
// exist yet, it creates one that is 1 for good indices and 0 for bad.
func (w *WeightedDataT[F]) MarkBadData(mask []bool) error {
	if int64(len(mask)) != w.space.Count() {
		return fmt.Errorf("%w: mask length %d != shape count %d", ErrShapeMismatch, len(mask), w.space.Count())
	}
	if w.weights == nil {
		out := make([]F, len(mask))
		for i, bad := range mask {
			if !bad {
				out[i] = 1
			}
		}
		w.weights = out
		w.writableWeights = true
		w.weightsSet = true
		return nil
	}
	if !w.writableWeights {
		w.weights = append([]F(nil), w.weights...)
		w.writableWeights = true
	}
	for i, bad := range mask {
		if bad {
			w.weights[i] = 0
		}
	}
	return nil
}

// finalize walks data and weights once, enforcing consistency between
// them (finite data wherever its weight is positive, nonnegative finite
// weights throughout). When no weights were set, each defaults to 1 for
// finite data and 0 for non-finite data. It runs lazily on the first call
// to GetData, GetWeights, or ValidDataNumber.
func (w *WeightedDataT[F]) finalize() error {
	if w.finalized {
		return nil
	}
	if w.weights == nil {
		w.weights = make([]F, len(w.data))
		for i := range w.weights {
			if isFinite(w.data[i]) {
				w.weights[i] = 1
			}
		}
		w.writableWeights = true
	}

	dataOwned := w.writableData

	var nValid int64
	for i := range w.data {
		y := w.data[i]
		wt := w.weights[i]

		if wt < 0 || math.IsNaN(float64(wt)) || math.IsInf(float64(wt), 0) {
			return fmt.Errorf("%w: w[%d]=%v", ErrInvalidWeights, i, wt)
		}

		if !isFinite(y) {
			if wt > 0 {
				return fmt.Errorf("%w: data[%d] is non-finite but weight %v > 0", ErrInconsistentMasking, i, wt)
			}
			if !dataOwned {
				w.data = append([]F(nil), w.data...)
				dataOwned = true
			}
			w.data[i] = 0
			continue
		}

		if wt > 0 {
			nValid++
		}
	}
	w.writableData = dataOwned
	w.nValid = nValid
	w.finalized = true
	return nil
}

func isFinite[F shape.Real](v F) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// GetData returns the finalized data buffer. Panics if finalize fails,
// since a failure here indicates a caller-supplied invariant violation
// that should have been caught earlier.
func (w *WeightedDataT[F]) GetData() []F {
	if err := w.finalize(); err != nil {
		panic(err)
	}
	return w.data
}

// GetWeights returns the finalized weight buffer.
func (w *WeightedDataT[F]) GetWeights() []F {
	if err := w.finalize(); err != nil {
		panic(err)
	}
	return w.weights
}

// ValidDataNumber returns #{i : w[i] > 0} after finalization.
func (w *WeightedDataT[F]) ValidDataNumber() int64 {
	if err := w.finalize(); err != nil {
		panic(err)
	}
	return w.nValid
}

// Evaluate returns alpha * ½ Σ w_i (x_i - y_i)².
func (w *WeightedDataT[F]) Evaluate(alpha F, x []F) float64 {
	return w.ComputeCostAndGradient(alpha, x, nil, true)
}

// ComputeCostAndGradient implements DifferentiableCost for the weighted
// quadratic f(x) = ½ Σ w_i (x_i - y_i)².
func (w *WeightedDataT[F]) ComputeCostAndGradient(alpha F, x, g []F, clear bool) float64 {
	data := w.GetData()
	weights := w.GetWeights()
	if len(x) != len(data) {
		panic(fmt.Sprintf("cost: x length %d != data length %d", len(x), len(data)))
	}

	if alpha == 0 {
		if clear && g != nil {
			for i := range g {
				g[i] = 0
			}
		}
		return 0
	}

	var sum float64
	for i := range x {
		r := x[i] - data[i]
		wr := weights[i] * r
		sum += float64(r) * float64(wr)
		if g != nil {
			contrib := alpha * wr
			if clear {
				g[i] = contrib
			} else {
				g[i] += contrib
			}
		}
	}
	return float64(alpha) * 0.5 * sum
}
