package cost

import (
	"math"
	"testing"

	"tipi/conv"
	"tipi/pkg/shape"
)

func buildIdentityOperator(t *testing.T, n int) *conv.Convolution {
	t.Helper()
	sp, err := shape.New(n)
	if err != nil {
		t.Fatalf("shape.New: %v", err)
	}
	h, err := conv.NewConvolution(sp, sp)
	if err != nil {
		t.Fatalf("NewConvolution: %v", err)
	}
	psf := shape.NewVector[float64](sp)
	psf.Data[0] = 1
	if err := h.SetPSF(psf); err != nil {
		t.Fatalf("SetPSF: %v", err)
	}
	return h
}

func TestWeightedConvolutionCostWithIdentityMatchesWeightedData(t *testing.T) {
	n := 8
	h := buildIdentityOperator(t, n)
	sp := h.InputShape()

	dataVec := make([]float64, n)
	for i := range dataVec {
		dataVec[i] = float64(i)
	}
	wd, err := NewWeightedData[float64](sp, dataVec, false)
	if err != nil {
		t.Fatalf("NewWeightedData: %v", err)
	}
	if err := wd.SetWeights([]float64{1, 1, 1, 1, 1, 1, 1, 1}, false); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}

	f, err := NewWeightedConvolutionCost[float64](h, wd)
	if err != nil {
		t.Fatalf("NewWeightedConvolutionCost: %v", err)
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i) + 1
	}
	g := make([]float64, n)
	cost := f.ComputeCostAndGradient(1, x, g, true)

	// H is identity, so this must match WeightedDataT's own cost/gradient.
	wdCost := wd.ComputeCostAndGradient(1, x, make([]float64, n), true)
	if math.Abs(cost-wdCost) > 1e-9 {
		t.Fatalf("cost = %v, want %v (identity operator)", cost, wdCost)
	}
	for i := range g {
		want := x[i] - dataVec[i]
		if math.Abs(g[i]-want) > 1e-9 {
			t.Fatalf("g[%d] = %v, want %v", i, g[i], want)
		}
	}
}

func TestWeightedConvolutionCostZeroAlpha(t *testing.T) {
	n := 4
	h := buildIdentityOperator(t, n)
	sp := h.InputShape()
	wd, _ := NewWeightedData[float64](sp, make([]float64, n), false)
	f, err := NewWeightedConvolutionCost[float64](h, wd)
	if err != nil {
		t.Fatalf("NewWeightedConvolutionCost: %v", err)
	}
	g := []float64{1, 2, 3, 4}
	cost := f.ComputeCostAndGradient(0, make([]float64, n), g, true)
	if cost != 0 {
		t.Fatalf("cost = %v, want 0", cost)
	}
	for _, v := range g {
		if v != 0 {
			t.Fatalf("g = %v, want all zero", g)
		}
	}
}
