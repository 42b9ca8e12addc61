// Package conv implements the FFT-based cyclic convolution operator with
// zero-padded work space: H = R * F* * diag(F*h) * F * S, plus its
// adjoint, push/pull embedding, and the MTF/workspace it owns.
package conv

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"tipi/internal/xfft"
	"tipi/pkg/shape"
)

// Errors returned by the convolution operator.
var (
	ErrShapeMismatch       = errors.New("conv: shape mismatch")
	ErrBadOffset           = errors.New("conv: offset out of range")
	ErrTooManyFrequencies  = errors.New("conv: work space too large")
	ErrMtfNotSet           = errors.New("conv: MTF not set")
	ErrUnsupportedRank     = errors.New("conv: unsupported rank")
	ErrInvalidArgument     = errors.New("conv: invalid argument")
)

// Job selects the direct or adjoint operator in Apply.
type Job int

const (
	// Direct applies H = R F* diag(mtf) F S.
	Direct Job = iota
	// Adjoint applies H* = S* F* diag(conj(mtf)) F R*.
	Adjoint
)

// maxFrequencies bounds Nw so that 2*Nw (the interleaved real buffer length)
// stays a legal index: overflow is rejected only at the boundary with FFT
// buffers, not earlier in shape construction.
const maxFrequencies = (math.MaxInt32 - 1) / 2

// ConvolutionT is the generic convolution operator, parameterized by the
// real element type F and its paired complex type C (F=float64/C=complex128
// or F=float32/C=complex64).
type ConvolutionT[F algofft.Float, C algofft.Complex] struct {
	inputShape  shape.Shape
	outputShape shape.Shape
	workShape   shape.Shape

	inpOff []int
	outOff []int

	fastInput  bool // input region == work region exactly
	fastOutput bool // output region == work region exactly

	xplan *xfft.PlanT[F, C]

	mtf    []C
	mtfSet bool
	work   []C
}

// Convolution is the double-precision specialization.
type Convolution = ConvolutionT[float64, complex128]

// Convolution32 is the single-precision specialization.
type Convolution32 = ConvolutionT[float32, complex64]

// NewConvolution builds a double-precision convolution operator.
func NewConvolution(inputSpace, outputSpace shape.Shape, opts ...Option) (*Convolution, error) {
	return New[float64, complex128](inputSpace, outputSpace, opts...)
}

// NewConvolution32 builds a single-precision convolution operator.
func NewConvolution32(inputSpace, outputSpace shape.Shape, opts ...Option) (*Convolution32, error) {
	return New[float32, complex64](inputSpace, outputSpace, opts...)
}

// Option configures ConvolutionT construction (work shape, region offsets),
// following the functional-options idiom used by the pack's algo-pde plans.
type Option func(*buildConfig)

type buildConfig struct {
	workShape    *shape.Shape
	inputOffset  []int
	outputOffset []int
}

// WithWorkShape pins the FFT work shape explicitly instead of deriving it
// from best_fft_dim.
func WithWorkShape(s shape.Shape) Option {
	return func(c *buildConfig) { c.workShape = &s }
}

// WithInputOffset pins the input region's offset inside the work shape
// instead of centering it.
func WithInputOffset(off []int) Option {
	return func(c *buildConfig) { c.inputOffset = off }
}

// WithOutputOffset pins the output region's offset inside the work shape
// instead of centering it.
func WithOutputOffset(off []int) Option {
	return func(c *buildConfig) { c.outputOffset = off }
}

// New builds a convolution operator over inputSpace -> outputSpace.
func New[F algofft.Float, C algofft.Complex](inputSpace, outputSpace shape.Shape, opts ...Option) (*ConvolutionT[F, C], error) {
	rank := inputSpace.Rank()
	if rank < 1 || rank > 3 {
		return nil, fmt.Errorf("%w: rank %d", ErrUnsupportedRank, rank)
	}
	if outputSpace.Rank() != rank {
		return nil, fmt.Errorf("%w: input rank %d != output rank %d", ErrShapeMismatch, rank, outputSpace.Rank())
	}

	cfg := &buildConfig{}
	for _, o := range opts {
		o(cfg)
	}

	workDims := make([]int, rank)
	if cfg.workShape != nil {
		ws := *cfg.workShape
		if ws.Rank() != rank {
			return nil, fmt.Errorf("%w: work rank %d != %d", ErrShapeMismatch, ws.Rank(), rank)
		}
		for k := 0; k < rank; k++ {
			need := max(inputSpace.Dim(k), outputSpace.Dim(k))
			if ws.Dim(k) < need {
				return nil, fmt.Errorf("%w: work_shape[%d]=%d < %d", ErrShapeMismatch, k, ws.Dim(k), need)
			}
			workDims[k] = ws.Dim(k)
		}
	} else {
		for k := 0; k < rank; k++ {
			workDims[k] = bestFFTDim(max(inputSpace.Dim(k), outputSpace.Dim(k)))
		}
	}
	workShape, err := shape.New(workDims...)
	if err != nil {
		return nil, err
	}

	inpOff, err := resolveOffset(cfg.inputOffset, inputSpace, workShape)
	if err != nil {
		return nil, err
	}
	outOff, err := resolveOffset(cfg.outputOffset, outputSpace, workShape)
	if err != nil {
		return nil, err
	}

	if workShape.Count() > maxFrequencies {
		return nil, fmt.Errorf("%w: Nw=%d", ErrTooManyFrequencies, workShape.Count())
	}

	xplan, err := xfft.New[F, C](workDims)
	if err != nil {
		return nil, fmt.Errorf("conv: building FFT plan: %w", err)
	}

	op := &ConvolutionT[F, C]{
		inputShape:  inputSpace,
		outputShape: outputSpace,
		workShape:   workShape,
		inpOff:      inpOff,
		outOff:      outOff,
		fastInput:   regionIsWork(inpOff, inputSpace, workShape),
		fastOutput:  regionIsWork(outOff, outputSpace, workShape),
		xplan:       xplan,
	}
	return op, nil
}

func resolveOffset(off []int, region, work shape.Shape) ([]int, error) {
	rank := region.Rank()
	if off != nil {
		if len(off) != rank {
			return nil, fmt.Errorf("%w: offset length %d != rank %d", ErrBadOffset, len(off), rank)
		}
		out := make([]int, rank)
		for k := 0; k < rank; k++ {
			maxOff := work.Dim(k) - region.Dim(k)
			if off[k] < 0 || off[k] > maxOff {
				return nil, fmt.Errorf("%w: axis %d offset %d not in [0,%d]", ErrBadOffset, k, off[k], maxOff)
			}
			out[k] = off[k]
		}
		return out, nil
	}
	out := make([]int, rank)
	for k := 0; k < rank; k++ {
		out[k] = (work.Dim(k) - region.Dim(k)) / 2
	}
	return out, nil
}

func regionIsWork(off []int, region, work shape.Shape) bool {
	for k := 0; k < region.Rank(); k++ {
		if off[k] != 0 || region.Dim(k) != work.Dim(k) {
			return false
		}
	}
	return true
}

// InputShape returns the operator's input (object/variables) space.
func (c *ConvolutionT[F, C]) InputShape() shape.Shape { return c.inputShape }

// OutputShape returns the operator's output (data/measurements) space.
func (c *ConvolutionT[F, C]) OutputShape() shape.Shape { return c.outputShape }

// WorkShape returns the FFT work domain.
func (c *ConvolutionT[F, C]) WorkShape() shape.Shape { return c.workShape }

func (c *ConvolutionT[F, C]) ensureWork() []C {
	if c.work == nil {
		c.work = make([]C, c.workShape.Count())
	}
	return c.work
}

// fftRadices are the prime factors algo-fft's mixed-radix engine supports
// efficiently; bestFFTDim rounds n up to the nearest 7-smooth integer, a
// good work size for a cyclic FFT convolution.
var fftRadices = [...]int{2, 3, 5, 7}

// BestFFTDim returns the smallest m >= n whose prime factorization uses
// only 2, 3, 5, 7, the work-size rule the driver uses to size the default
// object space from data and PSF extents.
func BestFFTDim(n int) int { return bestFFTDim(n) }

// bestFFTDim returns the smallest m >= n whose prime factorization uses only
// fftRadices.
func bestFFTDim(n int) int {
	if n < 1 {
		n = 1
	}
	for m := n; ; m++ {
		if isSmooth(m) {
			return m
		}
	}
}

func isSmooth(m int) bool {
	for _, r := range fftRadices {
		for m%r == 0 {
			m /= r
		}
	}
	return m == 1
}
