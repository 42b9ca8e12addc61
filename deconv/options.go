package deconv

import (
	"tipi/pkg/shape"
)

// config collects the driver's construction parameters, applied via
// functional options, following the ApplyOptions(DefaultOptions(), opts)
// idiom used elsewhere in the pack for plan construction.
type config[F shape.Real] struct {
	objectShape *shape.Shape
	centerOff   []int
	normalize   bool

	weights         []F
	weightsWritable bool

	mu    F
	eps   F
	delta []F

	lower, upper []F

	memory       int
	gatol, grtol F

	ftol, gtol, xtol     F
	stepMin, stepMax     F
	maxEval              int
}

// Option configures a SmoothInverseProblemT at construction.
type Option[F shape.Real] func(*config[F])

func defaultConfig[F shape.Real]() *config[F] {
	return &config[F]{
		normalize: false,
		mu:        0,
		eps:       F(0.01),
		memory:    5,
		gatol:     F(1e-10),
		grtol:     F(1e-8),
		ftol:      F(1e-3),
		gtol:      F(0.9),
		xtol:      F(1e-12),
		stepMin:   F(1e-20),
		stepMax:   F(1e20),
		maxEval:   0,
	}
}

// WithObjectShape pins the recovered object's shape instead of deriving it
// from best_fft_dim(data_dim + psf_dim - 1).
func WithObjectShape[F shape.Real](s shape.Shape) Option[F] {
	return func(c *config[F]) { c.objectShape = &s }
}

// WithPSFCenter overrides the PSF's designated center (default: geometric
// center dim/2 per axis).
func WithPSFCenter[F shape.Real](off []int) Option[F] {
	return func(c *config[F]) { c.centerOff = off }
}

// WithPSFNormalization turns on sum-to-one PSF normalization (off by
// default per spec).
func WithPSFNormalization[F shape.Real](normalize bool) Option[F] {
	return func(c *config[F]) { c.normalize = normalize }
}

// WithWeights attaches explicit per-datum weights (mutually exclusive with
// the default all-ones weighting WeightedDataT falls back to).
func WithWeights[F shape.Real](weights []F, writable bool) Option[F] {
	return func(c *config[F]) { c.weights = weights; c.weightsWritable = writable }
}

// WithRegularization sets the hyperbolic-TV weight mu (0 disables the
// prior term entirely), edge threshold eps, and per-axis scale delta (nil
// defaults to 1 on every axis).
func WithRegularization[F shape.Real](mu, eps F, delta []F) Option[F] {
	return func(c *config[F]) { c.mu = mu; c.eps = eps; c.delta = delta }
}

// WithBounds constrains the recovered object to a box, selecting BLMVM
// over plain L-BFGS. Either lower or upper may be nil.
func WithBounds[F shape.Real](lower, upper []F) Option[F] {
	return func(c *config[F]) { c.lower = lower; c.upper = upper }
}

// WithMemory sets the number of (s, y) pairs retained by the optimizer
// (defaults to 5 if m <= 0, per spec).
func WithMemory[F shape.Real](m int) Option[F] {
	return func(c *config[F]) { c.memory = m }
}

// WithConvergence sets the gradient-norm convergence tolerances.
func WithConvergence[F shape.Real](gatol, grtol F) Option[F] {
	return func(c *config[F]) { c.gatol = gatol; c.grtol = grtol }
}

// WithLineSearch overrides the Moré–Thuente line search parameters.
func WithLineSearch[F shape.Real](ftol, gtol, xtol, stepMin, stepMax F) Option[F] {
	return func(c *config[F]) {
		c.ftol, c.gtol, c.xtol = ftol, gtol, xtol
		c.stepMin, c.stepMax = stepMin, stepMax
	}
}

// WithMaxEval bounds the number of cost-and-gradient evaluations Run will
// perform before giving up (0 means unbounded; the caller drives Iterate
// directly for finer control).
func WithMaxEval[F shape.Real](maxEval int) Option[F] {
	return func(c *config[F]) { c.maxEval = maxEval }
}
