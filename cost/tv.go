package cost

import (
	"fmt"
	"math"

	"tipi/pkg/shape"
)

// HyperbolicTotalVariationT is a smooth, convex, edge-preserving prior,
// evaluated over 2-corner (rank 1), 2x2 (rank 2), or 2x2x2 (rank 3)
// sliding blocks.
type HyperbolicTotalVariationT[F shape.Real] struct {
	space shape.Shape
	rank  int
	eps   F
	delta []F
	w     []F // derived per-axis block weight

	strides []int
	dims    []int
}

// NewHyperbolicTotalVariation builds the regularizer over s (rank 1, 2, or
// 3). eps must be strictly positive. delta is a per-axis positive scale; if
// nil, every axis defaults to 1.
func NewHyperbolicTotalVariation[F shape.Real](s shape.Shape, eps F, delta []F) (*HyperbolicTotalVariationT[F], error) {
	rank := s.Rank()
	if rank < 1 || rank > 3 {
		return nil, fmt.Errorf("%w: rank %d", ErrUnsupportedRank, rank)
	}
	if eps <= 0 {
		return nil, fmt.Errorf("%w: eps must be > 0", ErrInvalidArgument)
	}

	d := delta
	if d == nil {
		d = make([]F, rank)
		for k := range d {
			d[k] = 1
		}
	} else if len(d) != rank {
		return nil, fmt.Errorf("%w: delta length %d != rank %d", ErrInvalidArgument, len(d), rank)
	}
	for k, dk := range d {
		if dk <= 0 {
			return nil, fmt.Errorf("%w: delta[%d]=%v must be > 0", ErrInvalidArgument, k, dk)
		}
	}

	// Per-axis block weight is 1/(2^(rank-1) * delta^2): each sliding
	// block has 2^(rank-1) corner-pairs differenced along a given axis,
	// so rank 1 (a single pair) gets divisor 1, rank 2 (2x2, two pairs
	// per axis) gets divisor 2, rank 3 (2x2x2, four pairs per axis)
	// gets divisor 4.
	blockPairs := 1 << (rank - 1)
	divisor := F(blockPairs)
	w := make([]F, rank)
	for k, dk := range d {
		w[k] = 1 / (divisor * dk * dk)
	}

	dims := s.Dims()
	strides := make([]int, rank)
	step := 1
	for k := 0; k < rank; k++ {
		strides[k] = step
		step *= dims[k]
	}

	return &HyperbolicTotalVariationT[F]{
		space: s, rank: rank, eps: eps, delta: d, w: w,
		strides: strides, dims: dims,
	}, nil
}

func unflattenBlock(flat int, dims, out []int) {
	for k := 0; k < len(dims); k++ {
		out[k] = flat % dims[k]
		flat /= dims[k]
	}
}

// InputShape returns the object space.
func (t *HyperbolicTotalVariationT[F]) InputShape() shape.Shape { return t.space }

// Evaluate returns alpha * f(x) without computing a gradient.
func (t *HyperbolicTotalVariationT[F]) Evaluate(alpha F, x []F) float64 {
	return t.ComputeCostAndGradient(alpha, x, nil, true)
}

// ComputeCostAndGradient accumulates, for every sliding block, the
// hyperbolic edge cost and (if g != nil) its gradient, then subtracts
// the bias (interior block count) * eps and clamps at zero.
func (t *HyperbolicTotalVariationT[F]) ComputeCostAndGradient(alpha F, x, g []F, clear bool) float64 {
	if int64(len(x)) != t.space.Count() {
		panic(fmt.Sprintf("cost: x length %d != shape count %d", len(x), t.space.Count()))
	}
	if g != nil && clear {
		for i := range g {
			g[i] = 0
		}
	}
	if alpha == 0 {
		return 0
	}

	rank := t.rank
	corners := 1 << rank
	blockDims := make([]int, rank)
	biasCount := int64(1)
	for k := 0; k < rank; k++ {
		blockDims[k] = t.dims[k] - 1
		biasCount *= int64(blockDims[k])
	}
	if biasCount == 0 {
		return float64(alpha) * 0 // a degenerate (size-1) axis has no interior blocks
	}

	anchor := make([]int, rank)
	cornerIdx := make([]int, corners)
	diffs := make([]float64, corners/2*rank)

	var costSum float64
	totalBlocks := int(biasCount)
	for block := 0; block < totalBlocks; block++ {
		unflattenBlock(block, blockDims, anchor)

		for m := 0; m < corners; m++ {
			flat := 0
			for k := 0; k < rank; k++ {
				bit := (m >> k) & 1
				flat += (anchor[k] + bit) * t.strides[k]
			}
			cornerIdx[m] = flat
		}

		var sumSq float64
		for a := 0; a < rank; a++ {
			pair := 0
			for m := 0; m < corners; m++ {
				if (m>>a)&1 != 0 {
					continue
				}
				h := m | (1 << a)
				d := float64(x[cornerIdx[h]] - x[cornerIdx[m]])
				diffs[a*(corners/2)+pair] = d
				sumSq += float64(t.w[a]) * d * d
				pair++
			}
		}

		r := math.Sqrt(sumSq + float64(t.eps)*float64(t.eps))
		costSum += r

		if g != nil {
			p := float64(alpha) / r
			for a := 0; a < rank; a++ {
				pa := float64(t.w[a]) * p
				pair := 0
				for m := 0; m < corners; m++ {
					if (m>>a)&1 != 0 {
						continue
					}
					h := m | (1 << a)
					d := diffs[a*(corners/2)+pair]
					pair++
					contrib := F(pa * d)
					g[cornerIdx[h]] += contrib
					g[cornerIdx[m]] -= contrib
				}
			}
		}
	}

	costSum -= float64(biasCount) * float64(t.eps)
	if costSum < 0 {
		costSum = 0
	}
	return float64(alpha) * costSum
}
