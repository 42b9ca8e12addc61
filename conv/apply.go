package conv

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"

	"tipi/pkg/shape"
)

// Apply runs the forward (job == Direct) or adjoint (job == Adjoint)
// operator: push -> convolve -> pull.
func (c *ConvolutionT[F, C]) Apply(dst, src shape.Vector[F], job Job) error {
	switch job {
	case Direct:
		if !src.Shape.Equals(c.inputShape) {
			return fmt.Errorf("%w: src shape %v != input shape %v", ErrShapeMismatch, src.Shape, c.inputShape)
		}
		if !dst.Shape.Equals(c.outputShape) {
			return fmt.Errorf("%w: dst shape %v != output shape %v", ErrShapeMismatch, dst.Shape, c.outputShape)
		}
		c.push(src, c.inpOff, c.fastInput)
		if err := c.convolve(false); err != nil {
			return err
		}
		c.pull(dst, c.outOff, c.fastOutput)
		return nil
	case Adjoint:
		if !src.Shape.Equals(c.outputShape) {
			return fmt.Errorf("%w: src shape %v != output shape %v", ErrShapeMismatch, src.Shape, c.outputShape)
		}
		if !dst.Shape.Equals(c.inputShape) {
			return fmt.Errorf("%w: dst shape %v != input shape %v", ErrShapeMismatch, dst.Shape, c.inputShape)
		}
		c.push(src, c.outOff, c.fastOutput)
		if err := c.convolve(true); err != nil {
			return err
		}
		c.pull(dst, c.inpOff, c.fastInput)
		return nil
	default:
		return fmt.Errorf("%w: job %d", ErrInvalidArgument, job)
	}
}

// push embeds src into the work buffer's real parts at the region starting
// at off, zeroing the imaginary parts and every padding cell outside the
// region.
func (c *ConvolutionT[F, C]) push(src shape.Vector[F], off []int, fast bool) {
	work := c.ensureWork()
	for i := range work {
		work[i] = 0
	}

	if fast {
		for i, v := range src.Data {
			work[i] = C(complex(float64(v), 0))
		}
		return
	}

	dims := src.Shape.Dims()
	strides := c.workStrides()
	idx := make([]int, len(dims))
	dstIdx := make([]int, len(dims))
	count := int(src.Shape.Count())
	for flat := 0; flat < count; flat++ {
		unflatten(flat, dims, idx)
		for k := range idx {
			dstIdx[k] = idx[k] + off[k]
		}
		dst := flattenStrides(dstIdx, strides)
		work[dst] = C(complex(float64(src.Data[flat]), 0))
	}
}

// convolve performs the forward FFT, the pointwise MTF multiply (conjugated
// for the adjoint), and the backward FFT, in place over the work buffer.
func (c *ConvolutionT[F, C]) convolve(adjoint bool) error {
	if !c.mtfSet {
		return ErrMtfNotSet
	}
	work := c.work
	if err := c.xplan.Forward(work); err != nil {
		return fmt.Errorf("conv: forward transform: %w", err)
	}
	if adjoint {
		for i := range work {
			work[i] *= conjugate(c.mtf[i])
		}
	} else {
		for i := range work {
			work[i] *= c.mtf[i]
		}
	}
	if err := c.xplan.Backward(work); err != nil {
		return fmt.Errorf("conv: backward transform: %w", err)
	}
	return nil
}

// pull extracts the real parts of the work buffer's region starting at off
// into dst.
func (c *ConvolutionT[F, C]) pull(dst shape.Vector[F], off []int, fast bool) {
	work := c.work

	if fast {
		for i := range dst.Data {
			dst.Data[i] = F(realPart(work[i]))
		}
		return
	}

	dims := dst.Shape.Dims()
	strides := c.workStrides()
	idx := make([]int, len(dims))
	srcIdx := make([]int, len(dims))
	count := int(dst.Shape.Count())
	for flat := 0; flat < count; flat++ {
		unflatten(flat, dims, idx)
		for k := range idx {
			srcIdx[k] = idx[k] + off[k]
		}
		src := flattenStrides(srcIdx, strides)
		dst.Data[flat] = F(realPart(work[src]))
	}
}

// realPart and conjugate dispatch on C's concrete underlying type, mirroring
// xfft.newComplexPlan's any(zero).(type) pattern: algofft.Complex's type set
// has no core type, so real/imag/conj aren't directly usable on a bare type
// parameter.
func realPart[C algofft.Complex](v C) float64 {
	switch x := any(v).(type) {
	case complex128:
		return real(x)
	case complex64:
		return float64(real(x))
	default:
		return 0
	}
}

func conjugate[C algofft.Complex](v C) C {
	switch x := any(v).(type) {
	case complex128:
		return any(complex(real(x), -imag(x))).(C)
	case complex64:
		return any(complex64(complex(real(x), -imag(x)))).(C)
	default:
		var zero C
		return zero
	}
}
