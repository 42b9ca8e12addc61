package resample

import (
	"math"
	"testing"

	"tipi/pkg/shape"
)

func TestResample1DPreservesLengthWhenUnchanged(t *testing.T) {
	r := New()
	in := []float64{1, 2, 3, 4, 5}
	out := r.Resample1D(in, len(in))
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestResample1DChangesLength(t *testing.T) {
	r := New()
	in := make([]float64, 64)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * float64(i) / 64)
	}
	out := r.Resample1D(in, 128)
	if len(out) != 128 {
		t.Fatalf("len(out) = %d, want 128", len(out))
	}
}

func TestResample1DPreservesTotalSum(t *testing.T) {
	r := New()
	in := make([]float64, 32)
	sum := 0.0
	for i := range in {
		in[i] = math.Exp(-float64(i*i) / 200)
		sum += in[i]
	}

	for _, newCount := range []int{16, 48} {
		out := r.Resample1D(in, newCount)
		outSum := 0.0
		for _, v := range out {
			outSum += v
		}
		if math.Abs(outSum-sum) > 1e-9 {
			t.Errorf("newCount=%d: sum(out)=%v, want %v", newCount, outSum, sum)
		}
	}
}

func TestNewWithQualityClampsLobes(t *testing.T) {
	r := NewWithQuality(0)
	if r.sincLobes != 4 {
		t.Errorf("sincLobes = %d, want 4", r.sincLobes)
	}
	r = NewWithQuality(1000)
	if r.sincLobes != 64 {
		t.Errorf("sincLobes = %d, want 64", r.sincLobes)
	}
}

func TestAxisResamplesOnlyTargetAxis(t *testing.T) {
	r := New()
	in, err := shape.New(4, 8)
	if err != nil {
		t.Fatalf("shape.New: %v", err)
	}
	data := make([]float64, in.Count())
	for i := range data {
		data[i] = float64(i)
	}

	out, outShape, err := r.Axis(data, in, 1, 16)
	if err != nil {
		t.Fatalf("Axis: %v", err)
	}
	if outShape.Dim(0) != 4 || outShape.Dim(1) != 16 {
		t.Fatalf("outShape = %v, want [4 16]", outShape.Dims())
	}
	if len(out) != int(outShape.Count()) {
		t.Fatalf("len(out) = %d, want %d", len(out), outShape.Count())
	}
}

func TestPSFResamplesEveryAxis(t *testing.T) {
	r := New()
	in, _ := shape.New(3, 3)
	out, _ := shape.New(5, 7)
	data := make([]float64, in.Count())
	for i := range data {
		data[i] = 1.0 / float64(len(data))
	}

	resampled, err := r.PSF(data, in, out)
	if err != nil {
		t.Fatalf("PSF: %v", err)
	}
	if int64(len(resampled)) != out.Count() {
		t.Fatalf("len(resampled) = %d, want %d", len(resampled), out.Count())
	}
}

func TestPSFRejectsRankMismatch(t *testing.T) {
	r := New()
	in, _ := shape.New(4)
	out, _ := shape.New(4, 4)
	if _, err := r.PSF(make([]float64, 4), in, out); err == nil {
		t.Errorf("expected rank mismatch error")
	}
}
