package cost

import (
	"fmt"

	"tipi/conv"
	"tipi/pkg/shape"
)

// ConvolutionOperator is the narrow view of conv.ConvolutionT[F, C] this
// package needs: just enough to push/convolve/pull without dragging the
// FFT complex-type parameter C into the cost layer's generic signature.
// conv.ConvolutionT[F, C] satisfies this interface for any C, since none of
// these methods mention C.
type ConvolutionOperator[F shape.Real] interface {
	InputShape() shape.Shape
	OutputShape() shape.Shape
	Apply(dst, src shape.Vector[F], job conv.Job) error
}

// WeightedConvolutionCostT is the data-fidelity term
// f(x) = ½ (H·x - y)ᵀ diag(w) (H·x - y).
type WeightedConvolutionCostT[F shape.Real] struct {
	h    ConvolutionOperator[F]
	data *WeightedDataT[F]

	r    shape.Vector[F] // reusable output-space residual
	wr   shape.Vector[F] // reusable output-space weighted residual
	gTmp shape.Vector[F] // reusable input-space adjoint buffer
}

// NewWeightedConvolutionCost binds h and data, which must share h's output
// space.
func NewWeightedConvolutionCost[F shape.Real](h ConvolutionOperator[F], data *WeightedDataT[F]) (*WeightedConvolutionCostT[F], error) {
	if !h.OutputShape().Equals(data.InputShape()) {
		return nil, fmt.Errorf("%w: operator output shape %v != data shape %v", ErrShapeMismatch, h.OutputShape(), data.InputShape())
	}
	return &WeightedConvolutionCostT[F]{
		h:    h,
		data: data,
		r:    shape.NewVector[F](h.OutputShape()),
		wr:   shape.NewVector[F](h.OutputShape()),
		gTmp: shape.NewVector[F](h.InputShape()),
	}, nil
}

// InputShape returns the variable (object) space.
func (f *WeightedConvolutionCostT[F]) InputShape() shape.Shape { return f.h.InputShape() }

// Evaluate returns alpha * f(x) without computing a gradient.
func (f *WeightedConvolutionCostT[F]) Evaluate(alpha F, x []F) float64 {
	return f.ComputeCostAndGradient(alpha, x, nil, true)
}

// ComputeCostAndGradient applies H to x, forms the weighted residual
// against the bound data, accumulates the cost, and (if g != nil)
// back-projects the weighted residual through H's adjoint into g.
func (f *WeightedConvolutionCostT[F]) ComputeCostAndGradient(alpha F, x, g []F, clear bool) float64 {
	if alpha == 0 {
		if clear && g != nil {
			for i := range g {
				g[i] = 0
			}
		}
		return 0
	}

	inputShape := f.h.InputShape()
	if int64(len(x)) != inputShape.Count() {
		panic(fmt.Sprintf("cost: x length %d != input shape count %d", len(x), inputShape.Count()))
	}

	xVec, err := shape.NewVectorFrom[F](inputShape, x)
	if err != nil {
		panic(err)
	}
	if err := f.h.Apply(f.r, xVec, conv.Direct); err != nil {
		panic(fmt.Sprintf("cost: H.Apply(Direct): %v", err))
	}

	data := f.data.GetData()
	weights := f.data.GetWeights()

	var sum float64
	for i := range f.r.Data {
		r := f.r.Data[i] - data[i]
		f.r.Data[i] = r
		wr := weights[i] * r
		f.wr.Data[i] = wr
		sum += float64(r) * float64(wr)
	}

	if g != nil {
		if err := f.h.Apply(f.gTmp, f.wr, conv.Adjoint); err != nil {
			panic(fmt.Sprintf("cost: H.Apply(Adjoint): %v", err))
		}
		if clear {
			for i := range g {
				g[i] = alpha * f.gTmp.Data[i]
			}
		} else {
			for i := range g {
				g[i] += alpha * f.gTmp.Data[i]
			}
		}
	}

	return float64(alpha) * 0.5 * sum
}
