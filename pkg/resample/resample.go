// Package resample provides windowed-sinc resampling of a point-spread
// function along one or more axes, for when a measured PSF's pixel
// pitch doesn't match the data array it will be convolved against.
package resample

import (
	"fmt"
	"math"

	"tipi/pkg/shape"
)

// Resampler resamples 1-D float64 sequences using windowed sinc
// interpolation.
type Resampler struct {
	// sincLobes is the number of sinc lobes on each side of the filter.
	sincLobes int
}

// New creates a Resampler with default quality.
func New() *Resampler {
	return &Resampler{sincLobes: 16}
}

// NewWithQuality creates a Resampler with the given number of sinc
// lobes, clamped to [4, 64]. More lobes trade speed for less ringing.
func NewWithQuality(lobes int) *Resampler {
	if lobes < 4 {
		lobes = 4
	}
	if lobes > 64 {
		lobes = 64
	}
	return &Resampler{sincLobes: lobes}
}

func sinc(x float64) float64 {
	if math.Abs(x) < 1e-10 {
		return 1.0
	}
	pix := math.Pi * x
	return math.Sin(pix) / pix
}

// blackmanWindow computes the Blackman window value at x in [-1,1],
// returning 0 outside that range.
func blackmanWindow(x float64) float64 {
	if x < -1.0 || x > 1.0 {
		return 0.0
	}
	t := (x + 1.0) / 2.0
	return 0.42 - 0.5*math.Cos(2*math.Pi*t) + 0.08*math.Cos(4*math.Pi*t)
}

// Resample1D resamples one line of a PSF array from its native pixel
// count to newCount pixels via windowed-sinc interpolation, then
// rescales the whole line so its total sum (the line's share of the
// PSF's energy) is preserved across the change in pixel count. A PSF
// must keep representing the same physical flux after resampling, not
// just the same per-pixel amplitude the way an interpolated audio
// sample would; conv.SetPSFArray's own normalize step only fixes up the
// array's grand total, so each resampled line must already be
// internally consistent before that step runs.
func (r *Resampler) Resample1D(line []float64, newCount int) []float64 {
	oldCount := len(line)
	if oldCount == 0 || newCount == 0 {
		return make([]float64, newCount)
	}
	if newCount == oldCount {
		out := make([]float64, oldCount)
		copy(out, line)
		return out
	}

	pitchRatio := float64(newCount) / float64(oldCount)
	out := make([]float64, newCount)

	// lobeScale widens the filter footprint when downsampling (more
	// input pixels fold into one output pixel), exactly as it would for
	// an anti-aliased audio resample, since the aliasing math is the
	// same regardless of what the samples represent physically.
	lobeScale := 1.0
	if pitchRatio < 1.0 {
		lobeScale = pitchRatio
	}
	radius := float64(r.sincLobes) / lobeScale

	for i := 0; i < newCount; i++ {
		center := float64(i) / pitchRatio
		lo := clampIndex(int(math.Floor(center-radius)), oldCount)
		hi := clampIndex(int(math.Ceil(center+radius)), oldCount)

		var weighted, wSum float64
		for j := lo; j <= hi; j++ {
			offset := center - float64(j)
			weight := sinc(offset*lobeScale) * blackmanWindow(offset/radius)
			weighted += line[j] * weight
			wSum += weight
		}
		if wSum > 0 {
			out[i] = weighted / wSum
		}
	}

	rescaleToPreserveSum(out, line)
	return out
}

func clampIndex(idx, count int) int {
	if idx < 0 {
		return 0
	}
	if idx >= count {
		return count - 1
	}
	return idx
}

// rescaleToPreserveSum scales out in place so sum(out) == sum(in),
// unless either side sums to (near) zero, in which case no meaningful
// scale factor exists and out is left as the plain interpolated values.
func rescaleToPreserveSum(out, in []float64) {
	var outSum, inSum float64
	for _, v := range in {
		inSum += v
	}
	for _, v := range out {
		outSum += v
	}
	if math.Abs(outSum) < 1e-15 || math.Abs(inSum) < 1e-15 {
		return
	}
	scale := inSum / outSum
	for i := range out {
		out[i] *= scale
	}
}

// Axis resamples a row-major array along one axis, leaving every other
// axis's extent unchanged. It returns the resampled data and its new
// shape.
func (r *Resampler) Axis(data []float64, in shape.Shape, axis, newSize int) ([]float64, shape.Shape, error) {
	rank := in.Rank()
	if axis < 0 || axis >= rank {
		return nil, shape.Shape{}, fmt.Errorf("resample: axis %d out of range for rank %d", axis, rank)
	}
	if int64(len(data)) != in.Count() {
		return nil, shape.Shape{}, fmt.Errorf("resample: data length %d does not match shape count %d", len(data), in.Count())
	}

	dims := in.Dims()
	outDims := make([]int, rank)
	copy(outDims, dims)
	outDims[axis] = newSize
	out, err := shape.New(outDims...)
	if err != nil {
		return nil, shape.Shape{}, err
	}

	// Strides in row-major order.
	inStride := strides(dims)
	outStride := strides(outDims)

	outData := make([]float64, out.Count())
	lineLen := dims[axis]
	line := make([]float64, lineLen)

	// Iterate over every index vector with axis held fixed, by counting
	// through the "outer" index space (all axes except axis).
	outerDims := make([]int, 0, rank-1)
	outerAxes := make([]int, 0, rank-1)
	for k := 0; k < rank; k++ {
		if k == axis {
			continue
		}
		outerDims = append(outerDims, dims[k])
		outerAxes = append(outerAxes, k)
	}

	outerCount := 1
	for _, d := range outerDims {
		outerCount *= d
	}

	idx := make([]int, len(outerDims))
	for outer := 0; outer < outerCount; outer++ {
		base := int64(0)
		outBase := int64(0)
		for i, k := range outerAxes {
			base += int64(idx[i]) * inStride[k]
			outBase += int64(idx[i]) * outStride[k]
		}

		for j := 0; j < lineLen; j++ {
			line[j] = data[base+int64(j)*inStride[axis]]
		}
		resampled := r.Resample1D(line, newSize)
		for j := 0; j < newSize; j++ {
			outData[outBase+int64(j)*outStride[axis]] = resampled[j]
		}

		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < outerDims[i] {
				break
			}
			idx[i] = 0
		}
	}

	return outData, out, nil
}

// PSF resamples a point-spread function from in to out, axis by axis,
// so its sampling grid matches the object space it will be convolved
// against. in and out must share a rank.
func (r *Resampler) PSF(data []float64, in, out shape.Shape) ([]float64, error) {
	if in.Rank() != out.Rank() {
		return nil, fmt.Errorf("resample: rank mismatch: in=%d out=%d", in.Rank(), out.Rank())
	}
	cur := data
	curShape := in
	for axis := 0; axis < in.Rank(); axis++ {
		target := out.Dim(axis)
		if target == curShape.Dim(axis) {
			continue
		}
		resampled, newShape, err := r.Axis(cur, curShape, axis, target)
		if err != nil {
			return nil, err
		}
		cur = resampled
		curShape = newShape
	}
	return cur, nil
}

func strides(dims []int) []int64 {
	s := make([]int64, len(dims))
	acc := int64(1)
	for k := len(dims) - 1; k >= 0; k-- {
		s[k] = acc
		acc *= int64(dims[k])
	}
	return s
}
