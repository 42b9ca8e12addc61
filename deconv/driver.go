// Package deconv binds the convolution operator, the differentiable cost
// framework, and the quasi-Newton optimizers into a single driver:
// construct once from a PSF and a data array, then iterate to
// convergence.
package deconv

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"tipi/conv"
	"tipi/cost"
	"tipi/optimize"
	"tipi/pkg/shape"
)

// ErrMaxEvalExceeded reports that the configured evaluation budget was
// spent before the optimizer converged.
var ErrMaxEvalExceeded = errors.New("deconv: max evaluation budget exceeded")

// engine is the reverse-communication contract both LBFGST and BLMVMT
// satisfy; the driver is agnostic to which one it holds.
type engine[F shape.Real] interface {
	Start(x0, g0 []F, f0 float64) (optimize.Status, []F, error)
	Iterate(f float64, g []F) (optimize.Status, []F, error)
	Continue() (optimize.Status, []F, error)
	Iteration() int
}

// SmoothInverseProblemT is the driver: it owns the operator, the composite
// cost, and the optimizer, and drives the cost evaluation loop internally
// so the caller only sees accepted-iterate and terminal statuses.
type SmoothInverseProblemT[F shape.Real, C algofft.Complex] struct {
	objectSpace shape.Shape
	dataSpace   shape.Shape
	n           int

	operator *conv.ConvolutionT[F, C]
	fData    *cost.WeightedConvolutionCostT[F]
	fPrior   *cost.HyperbolicTotalVariationT[F]
	costFn   cost.DifferentiableCost[F]

	bounds  *optimize.BoundsT[F]
	bounded bool
	opt     engine[F]

	x      []F
	g      []F
	f      float64
	status optimize.Status

	maxEval int
	nEval   int
}

// SmoothInverseProblem is the double-precision specialization.
type SmoothInverseProblem = SmoothInverseProblemT[float64, complex128]

// SmoothInverseProblem32 is the single-precision specialization.
type SmoothInverseProblem32 = SmoothInverseProblemT[float32, complex64]

// NewSmoothInverseProblem builds a double-precision driver.
func NewSmoothInverseProblem(psf, data shape.Vector[float64], opts ...Option[float64]) (*SmoothInverseProblem, error) {
	return New[float64, complex128](psf, data, opts...)
}

// NewSmoothInverseProblem32 builds a single-precision driver.
func NewSmoothInverseProblem32(psf, data shape.Vector[float32], opts ...Option[float32]) (*SmoothInverseProblem32, error) {
	return New[float32, complex64](psf, data, opts...)
}

// New builds a driver from a PSF and a measured data array in nine steps:
// validate shapes, resolve the object space, build the operator and its
// MTF, wire the data-fidelity and (optional) regularization terms into a
// composite cost, build the bound projector if needed, and construct the
// optimizer. The element type is chosen by the caller at the type level
// (F, C) rather than at runtime, since Go has no runtime generic
// dispatch; NewSmoothInverseProblem/32 cover the two concrete
// instantiations.
func New[F shape.Real, C algofft.Complex](psf, data shape.Vector[F], opts ...Option[F]) (*SmoothInverseProblemT[F, C], error) {
	rank := data.Shape.Rank()
	if rank < 1 || rank > 3 {
		return nil, fmt.Errorf("%w: rank %d", cost.ErrUnsupportedRank, rank)
	}
	if psf.Shape.Rank() != rank {
		return nil, fmt.Errorf("%w: psf rank %d != data rank %d", cost.ErrShapeMismatch, psf.Shape.Rank(), rank)
	}

	cfg := defaultConfig[F]()
	for _, o := range opts {
		o(cfg)
	}

	objectSpace, err := resolveObjectShape(cfg, data.Shape, psf.Shape)
	if err != nil {
		return nil, err
	}

	operator, err := conv.New[F, C](objectSpace, data.Shape)
	if err != nil {
		return nil, fmt.Errorf("deconv: building operator: %w", err)
	}
	if err := operator.SetPSFArray(psf.Shape, psf.Data, cfg.centerOff, cfg.normalize); err != nil {
		return nil, fmt.Errorf("deconv: setting PSF: %w", err)
	}

	wd, err := cost.NewWeightedData[F](data.Shape, data.Data, false)
	if err != nil {
		return nil, fmt.Errorf("deconv: building weighted data: %w", err)
	}
	if cfg.weights != nil {
		if err := wd.SetWeights(cfg.weights, cfg.weightsWritable); err != nil {
			return nil, fmt.Errorf("deconv: setting weights: %w", err)
		}
	}

	fData, err := cost.NewWeightedConvolutionCost[F](operator, wd)
	if err != nil {
		return nil, fmt.Errorf("deconv: building data fidelity term: %w", err)
	}

	fPrior, err := cost.NewHyperbolicTotalVariation[F](objectSpace, cfg.eps, cfg.delta)
	if err != nil {
		return nil, fmt.Errorf("deconv: building regularizer: %w", err)
	}

	var costFn cost.DifferentiableCost[F]
	if cfg.mu > 0 {
		comp := cost.NewComposite[F](objectSpace)
		if err := comp.AddTerm(1, fData); err != nil {
			return nil, fmt.Errorf("deconv: composing data term: %w", err)
		}
		if err := comp.AddTerm(cfg.mu, fPrior); err != nil {
			return nil, fmt.Errorf("deconv: composing prior term: %w", err)
		}
		costFn = comp
	} else {
		costFn = fData
	}

	n := int(objectSpace.Count())
	m := cfg.memory
	if m <= 0 {
		m = 5
	}

	ls, err := optimize.NewLineSearch(cfg.ftol, cfg.gtol, cfg.xtol, cfg.stepMin, cfg.stepMax)
	if err != nil {
		return nil, fmt.Errorf("deconv: building line search: %w", err)
	}

	p := &SmoothInverseProblemT[F, C]{
		objectSpace: objectSpace,
		dataSpace:   data.Shape,
		n:           n,
		operator:    operator,
		fData:       fData,
		fPrior:      fPrior,
		costFn:      costFn,
		x:           make([]F, n),
		g:           make([]F, n),
		maxEval:     cfg.maxEval,
	}

	if cfg.lower != nil || cfg.upper != nil {
		bounds, err := optimize.NewBounds(n, cfg.lower, cfg.upper)
		if err != nil {
			return nil, fmt.Errorf("deconv: building bounds: %w", err)
		}
		opt, err := optimize.NewBLMVM(bounds, m, ls, cfg.gatol, cfg.grtol)
		if err != nil {
			return nil, fmt.Errorf("deconv: building BLMVM: %w", err)
		}
		p.bounds = bounds
		p.bounded = true
		p.opt = opt
	} else {
		opt, err := optimize.NewLBFGS[F](n, m, ls, cfg.gatol, cfg.grtol)
		if err != nil {
			return nil, fmt.Errorf("deconv: building L-BFGS: %w", err)
		}
		p.opt = opt
	}

	return p, nil
}

func resolveObjectShape[F shape.Real](cfg *config[F], dataShape, psfShape shape.Shape) (shape.Shape, error) {
	if cfg.objectShape != nil {
		if cfg.objectShape.Rank() != dataShape.Rank() {
			return shape.Shape{}, fmt.Errorf("%w: object rank %d != data rank %d", cost.ErrShapeMismatch, cfg.objectShape.Rank(), dataShape.Rank())
		}
		return *cfg.objectShape, nil
	}
	rank := dataShape.Rank()
	dims := make([]int, rank)
	for k := 0; k < rank; k++ {
		dims[k] = conv.BestFFTDim(dataShape.Dim(k) + psfShape.Dim(k) - 1)
	}
	return shape.New(dims...)
}

// ObjectShape returns the recovered object's space.
func (p *SmoothInverseProblemT[F, C]) ObjectShape() shape.Shape { return p.objectSpace }

// DataSpace returns the measured-data space.
func (p *SmoothInverseProblemT[F, C]) DataSpace() shape.Shape { return p.dataSpace }

// Bounded reports whether the driver is running BLMVM under box
// constraints rather than plain L-BFGS.
func (p *SmoothInverseProblemT[F, C]) Bounded() bool { return p.bounded }

// Status returns the status of the last Start/Iterate call.
func (p *SmoothInverseProblemT[F, C]) Status() optimize.Status { return p.status }

// StatusString returns the status of the last Start/Iterate call as
// text, for callers (e.g. monitor) that don't depend on the optimize
// package.
func (p *SmoothInverseProblemT[F, C]) StatusString() string { return p.status.String() }

// Iteration returns the number of accepted steps so far.
func (p *SmoothInverseProblemT[F, C]) Iteration() int { return p.opt.Iteration() }

// Cost returns the cost at the current iterate.
func (p *SmoothInverseProblemT[F, C]) Cost() float64 { return p.f }

// Object returns a copy of the current best iterate.
func (p *SmoothInverseProblemT[F, C]) Object() []F { return append([]F(nil), p.x...) }

// GradientNorm returns the Euclidean norm of the gradient at the current
// iterate, for progress reporting (e.g. by monitor).
func (p *SmoothInverseProblemT[F, C]) GradientNorm() float64 {
	var sum float64
	for _, v := range p.g {
		fv := float64(v)
		sum += fv * fv
	}
	return math.Sqrt(sum)
}

// Start evaluates the cost at x0 (the zero vector, unless the caller has
// mutated Object() and fed it back via a custom loop) and begins the
// optimizer. It is only valid to call once, before any Iterate call.
func (p *SmoothInverseProblemT[F, C]) Start() (optimize.Status, error) {
	p.f = p.costFn.ComputeCostAndGradient(1, p.x, p.g, true)
	p.nEval++
	status, x, err := p.opt.Start(p.x, p.g, p.f)
	return p.drive(status, x, err)
}

// Iterate proceeds after a NewX status, computing the next search
// direction and running its line search to completion (or to a terminal
// status) before returning.
func (p *SmoothInverseProblemT[F, C]) Iterate() (optimize.Status, error) {
	if p.status != optimize.NewX {
		return optimize.Error, fmt.Errorf("deconv: Iterate called without a pending NewX")
	}
	status, x, err := p.opt.Continue()
	return p.drive(status, x, err)
}

// drive runs the internal ComputeFG loop the underlying optimizer needs
// between accepted iterates, evaluating the driver's own cost function at
// each trial point, and stops once a NewX or terminal status is reached.
func (p *SmoothInverseProblemT[F, C]) drive(status optimize.Status, x []F, err error) (optimize.Status, error) {
	for status == optimize.ComputeFG {
		if p.maxEval > 0 && p.nEval >= p.maxEval {
			p.status = optimize.Warning
			return optimize.Warning, ErrMaxEvalExceeded
		}
		p.f = p.costFn.ComputeCostAndGradient(1, x, p.g, true)
		p.nEval++
		status, x, err = p.opt.Iterate(p.f, p.g)
	}
	p.status = status
	if status == optimize.NewX || status == optimize.Converged {
		copy(p.x, x)
	}
	return status, err
}

// Run drives Start and then Iterate to a terminal status (Converged,
// Warning, or Error), returning the recovered object.
func (p *SmoothInverseProblemT[F, C]) Run() ([]F, optimize.Status, error) {
	status, err := p.Start()
	for status == optimize.NewX {
		status, err = p.Iterate()
	}
	if status == optimize.Error {
		return nil, status, err
	}
	return p.Object(), status, err
}
