package conv

import (
	"fmt"

	"tipi/pkg/shape"
)

// SetPSF sets the point-spread function from a vector already living in the
// input space and already in FFT-centered layout (its own index 0 is the
// logical center). No normalization, no shift.
func (c *ConvolutionT[F, C]) SetPSF(psf shape.Vector[F]) error {
	if !psf.Shape.Equals(c.inputShape) {
		return fmt.Errorf("%w: psf shape %v != input shape %v", ErrShapeMismatch, psf.Shape, c.inputShape)
	}
	zero := make([]int, psf.Shape.Rank())
	return c.buildMTF(psf.Shape, psf.Data, zero, false)
}

// SetPSFArray sets the point-spread function from an arbitrary-shape array.
// If centerOff is nil, the geometric center floor(dim/2) is used per axis.
// If normalize, psf is divided by the sum of its values before use.
func (c *ConvolutionT[F, C]) SetPSFArray(psfShape shape.Shape, psfData []F, centerOff []int, normalize bool) error {
	if psfShape.Rank() != c.inputShape.Rank() {
		return fmt.Errorf("%w: psf rank %d != %d", ErrShapeMismatch, psfShape.Rank(), c.inputShape.Rank())
	}
	if int64(len(psfData)) != psfShape.Count() {
		return fmt.Errorf("%w: psf data length %d != shape count %d", ErrInvalidArgument, len(psfData), psfShape.Count())
	}

	center := centerOff
	if center == nil {
		center = make([]int, psfShape.Rank())
		for k := range center {
			center[k] = psfShape.Dim(k) / 2
		}
	} else if len(center) != psfShape.Rank() {
		return fmt.Errorf("%w: center offset length %d != rank %d", ErrInvalidArgument, len(center), psfShape.Rank())
	}

	return c.buildMTF(psfShape, psfData, center, normalize)
}

// buildMTF zero-pads psfData (shape psfShape) into the work domain,
// circularly shifting so that centerOff lands at index 0 of every axis,
// forward-transforms it, and scales the result by 1/Nw so that a later
// forward-multiply-backward sequence (see ConvolutionT.convolve) needs no
// further normalization.
func (c *ConvolutionT[F, C]) buildMTF(psfShape shape.Shape, psfData []F, centerOff []int, normalize bool) error {
	rank := psfShape.Rank()
	for k := 0; k < rank; k++ {
		if psfShape.Dim(k) > c.workShape.Dim(k) {
			return fmt.Errorf("%w: psf dim[%d]=%d exceeds work dim %d", ErrShapeMismatch, k, psfShape.Dim(k), c.workShape.Dim(k))
		}
	}

	var scale F = 1
	if normalize {
		var sum float64
		for _, v := range psfData {
			sum += float64(v)
		}
		if sum == 0 {
			return fmt.Errorf("%w: PSF values sum to zero, cannot normalize", ErrInvalidArgument)
		}
		scale = F(1 / sum)
	}

	work := c.ensureWork()
	for i := range work {
		work[i] = 0
	}

	workDims := c.workShape.Dims()
	psfDims := psfShape.Dims()
	srcIdx := make([]int, rank)
	dstIdx := make([]int, rank)

	count := int(psfShape.Count())
	for flat := 0; flat < count; flat++ {
		unflatten(flat, psfDims, srcIdx)
		for k := 0; k < rank; k++ {
			dstIdx[k] = mod(srcIdx[k]-centerOff[k], workDims[k])
		}
		dst := flattenStrides(dstIdx, c.workStrides())
		v := psfData[flat] * scale
		work[dst] = C(complex(float64(v), 0))
	}

	if err := c.xplan.Forward(work); err != nil {
		return fmt.Errorf("conv: PSF forward transform: %w", err)
	}

	nw := float64(c.workShape.Count())
	mtf := make([]C, len(work))
	invNw := C(complex(1/nw, 0))
	for i, v := range work {
		mtf[i] = v * invNw
	}
	c.mtf = mtf
	c.mtfSet = true
	return nil
}

func (c *ConvolutionT[F, C]) workStrides() []int {
	dims := c.workShape.Dims()
	stride := make([]int, len(dims))
	step := 1
	for i := 0; i < len(dims); i++ {
		stride[i] = step
		step *= dims[i]
	}
	return stride
}

func unflatten(flat int, dims, out []int) {
	for k := 0; k < len(dims); k++ {
		out[k] = flat % dims[k]
		flat /= dims[k]
	}
}

func flattenStrides(idx, stride []int) int {
	sum := 0
	for k := range idx {
		sum += idx[k] * stride[k]
	}
	return sum
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
