// Package xfft drives algo-fft's one-dimensional complex plans, one axis at
// a time, to realize the N-dimensional cyclic transform the convolution
// operator (package conv) needs over its work buffer. It is not part of the
// public API: it is purely the N-D wiring around a 1-D FFT primitive.
//
// The per-axis traversal mirrors MeKo-Christian/algo-pde's
// poisson-periodic_nd.go: a flattened buffer with column-major strides
// (axis 0 fastest) recomputed per axis, and a strided line extracted into scratch
// for the 1-D transform.
package xfft

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// PlanT drives an N-dimensional in-place transform over a flattened
// interleaved-complex work buffer of length Nw = prod(dims).
//
// algofft.Plan.Inverse normalizes by 1/n per axis automatically. The
// convolution operator assumes an unnormalized forward/backward DFT pair
// and bakes the 1/Nw normalization into the MTF instead, so Backward here
// multiplies each axis back by n right after algo-fft's Inverse to cancel
// that built-in scaling, presenting callers with the unnormalized
// transform the convolution operator expects.
type PlanT[F algofft.Float, C algofft.Complex] struct {
	dims   []int
	count  int64
	stride []int
	axes   []*axisPlan[C]
}

// New builds a PlanT over the given work shape (axis 0 first; the first
// index varies fastest per the column-major convention used
// throughout, which puts axis 0 at the smallest stride).
func New[F algofft.Float, C algofft.Complex](dims []int) (*PlanT[F, C], error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("xfft: rank must be >= 1")
	}
	count := int64(1)
	for _, n := range dims {
		if n < 1 {
			return nil, fmt.Errorf("xfft: invalid dimension %d", n)
		}
		count *= int64(n)
	}

	stride := make([]int, len(dims))
	step := 1
	for i := 0; i < len(dims); i++ {
		stride[i] = step
		step *= dims[i]
	}

	axes := make([]*axisPlan[C], len(dims))
	seen := map[int]*axisPlan[C]{}
	for i, n := range dims {
		if ap, ok := seen[n]; ok {
			axes[i] = ap
			continue
		}
		ap, err := newAxisPlan[C](n)
		if err != nil {
			return nil, fmt.Errorf("xfft: building axis %d (n=%d): %w", i, n, err)
		}
		seen[n] = ap
		axes[i] = ap
	}

	d := make([]int, len(dims))
	copy(d, dims)

	return &PlanT[F, C]{dims: d, count: count, stride: stride, axes: axes}, nil
}

// Count returns Nw.
func (p *PlanT[F, C]) Count() int64 { return p.count }

// Forward runs the unnormalized forward DFT over every axis, in place.
func (p *PlanT[F, C]) Forward(buf []C) error {
	return p.transform(buf, false)
}

// Backward runs the unnormalized backward DFT over every axis, in place.
func (p *PlanT[F, C]) Backward(buf []C) error {
	if err := p.transform(buf, true); err != nil {
		return err
	}
	for _, n := range p.dims {
		scaleAll(buf, float64(n))
	}
	return nil
}

func (p *PlanT[F, C]) transform(buf []C, inverse bool) error {
	if int64(len(buf)) != p.count {
		return fmt.Errorf("xfft: buffer length %d does not match Nw %d", len(buf), p.count)
	}
	for axis := range p.dims {
		if err := p.transformAxis(buf, axis, inverse); err != nil {
			return fmt.Errorf("xfft: axis %d: %w", axis, err)
		}
	}
	return nil
}

// transformAxis runs the 1-D transform on every line parallel to axis.
func (p *PlanT[F, C]) transformAxis(buf []C, axis int, inverse bool) error {
	lineLen := p.dims[axis]
	lineStride := p.stride[axis]
	totalLines := int(p.count) / lineLen

	reduced := make([]int, 0, len(p.dims)-1)
	for d := range p.dims {
		if d != axis {
			reduced = append(reduced, p.dims[d])
		}
	}

	indices := make([]int, len(reduced))
	ap := p.axes[axis]
	for range totalLines {
		start := 0
		other := 0
		for d := range p.dims {
			if d == axis {
				continue
			}
			start += indices[other] * p.stride[d]
			other++
		}

		if err := ap.transformLine(buf, start, lineStride, inverse); err != nil {
			return err
		}

		for i := len(indices) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < reduced[i] {
				break
			}
			indices[i] = 0
		}
	}
	return nil
}

// axisPlan wraps a single 1-D algofft.Plan[C] and the scratch it needs to
// run strided lines through algo-fft's contiguous Forward/Inverse entry
// points when the axis length isn't a size TransformStrided handles
// directly.
type axisPlan[C algofft.Complex] struct {
	n        int
	pow2     bool
	plan     *algofft.Plan[C]
	scratchA []C
	scratchB []C
}

func newAxisPlan[C algofft.Complex](n int) (*axisPlan[C], error) {
	plan, err := newComplexPlan[C](n)
	if err != nil {
		return nil, err
	}
	return &axisPlan[C]{
		n:        n,
		pow2:     isPowerOfTwo(n),
		plan:     plan,
		scratchA: make([]C, n),
		scratchB: make([]C, n),
	}, nil
}

func (a *axisPlan[C]) transformLine(data []C, start, stride int, inverse bool) error {
	if a.pow2 {
		return a.plan.TransformStrided(data[start:], data[start:], stride, inverse)
	}

	if stride == 1 {
		line := data[start : start+a.n]
		var err error
		if inverse {
			err = a.plan.Inverse(a.scratchB, line)
		} else {
			err = a.plan.Forward(a.scratchB, line)
		}
		if err != nil {
			return err
		}
		copy(line, a.scratchB)
		return nil
	}

	for i := 0; i < a.n; i++ {
		a.scratchA[i] = data[start+i*stride]
	}

	var err error
	if inverse {
		err = a.plan.Inverse(a.scratchB, a.scratchA)
	} else {
		err = a.plan.Forward(a.scratchB, a.scratchA)
	}
	if err != nil {
		return err
	}

	for i := 0; i < a.n; i++ {
		data[start+i*stride] = a.scratchB[i]
	}
	return nil
}

// newComplexPlan dispatches to algo-fft's concrete constructor for C's
// underlying type, since algo-fft exposes NewPlan64/NewPlan32 rather than a
// single generic constructor.
func newComplexPlan[C algofft.Complex](n int) (*algofft.Plan[C], error) {
	var zero C
	switch any(zero).(type) {
	case complex128:
		p, err := algofft.NewPlan64(n)
		if err != nil {
			return nil, err
		}
		return any(p).(*algofft.Plan[C]), nil
	case complex64:
		p, err := algofft.NewPlan32(n)
		if err != nil {
			return nil, err
		}
		return any(p).(*algofft.Plan[C]), nil
	default:
		return nil, fmt.Errorf("xfft: unsupported complex type %T", zero)
	}
}

func scaleAll[C algofft.Complex](buf []C, factor float64) {
	f := C(complex(factor, 0))
	for i := range buf {
		buf[i] *= f
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
