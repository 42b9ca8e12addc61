package cost

import (
	"errors"
	"math"
	"testing"

	"tipi/pkg/shape"
)

func TestWeightedDataEvaluateQuadratic(t *testing.T) {
	s, _ := shape.New(3)
	wd, err := NewWeightedData[float64](s, []float64{1, 2, 3}, false)
	if err != nil {
		t.Fatalf("NewWeightedData: %v", err)
	}
	x := []float64{2, 2, 2}
	got := wd.Evaluate(1, x)
	// residuals: 1, 0, -1; weights default to 1 -> ½*(1+0+1) = 1
	if math.Abs(got-1) > 1e-12 {
		t.Fatalf("Evaluate() = %v, want 1", got)
	}
}

func TestWeightedDataGradient(t *testing.T) {
	s, _ := shape.New(2)
	wd, _ := NewWeightedData[float64](s, []float64{1, 1}, false)
	if err := wd.SetWeights([]float64{2, 3}, false); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}
	x := []float64{3, 5}
	g := make([]float64, 2)
	cost := wd.ComputeCostAndGradient(1, x, g, true)
	// r = (2,4); wr=(4,12); sum=2*4+4*12=8+48=56; cost=28
	if math.Abs(cost-28) > 1e-9 {
		t.Fatalf("cost = %v, want 28", cost)
	}
	want := []float64{4, 12}
	for i := range g {
		if math.Abs(g[i]-want[i]) > 1e-9 {
			t.Fatalf("g[%d] = %v, want %v", i, g[i], want[i])
		}
	}
}

func TestWeightedDataComputeWeightsFromData(t *testing.T) {
	s, _ := shape.New(3)
	wd, _ := NewWeightedData[float64](s, []float64{4, -1, 0}, false)
	if err := wd.ComputeWeightsFromData(1, 1); err != nil {
		t.Fatalf("ComputeWeightsFromData: %v", err)
	}
	w := wd.GetWeights()
	// y=4: w=1/(1*4+1)=0.2; y=-1: max(0,-1)=0, beta=1>0 -> w=1/(0+1)=1; y=0: beta>0 -> w=1
	want := []float64{0.2, 1, 1}
	for i := range w {
		if math.Abs(w[i]-want[i]) > 1e-12 {
			t.Fatalf("w[%d] = %v, want %v", i, w[i], want[i])
		}
	}
}

func TestWeightedDataComputeWeightsFromDataZeroCase(t *testing.T) {
	s, _ := shape.New(1)
	wd, _ := NewWeightedData[float64](s, []float64{-5}, false)
	if err := wd.ComputeWeightsFromData(1, 0); err != nil {
		t.Fatalf("ComputeWeightsFromData: %v", err)
	}
	// beta=0, alpha*y = -5 <= 0 -> w=0
	if w := wd.GetWeights()[0]; w != 0 {
		t.Fatalf("w[0] = %v, want 0", w)
	}
}

func TestWeightedDataSetWeightsTwiceRejected(t *testing.T) {
	s, _ := shape.New(2)
	wd, _ := NewWeightedData[float64](s, []float64{1, 2}, false)
	if err := wd.SetWeights([]float64{1, 1}, false); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}
	if err := wd.SetWeights([]float64{1, 1}, false); !errors.Is(err, ErrWeightsAlreadySet) {
		t.Fatalf("err = %v, want ErrWeightsAlreadySet", err)
	}
}

func TestWeightedDataMarkBadDataIsMonotonic(t *testing.T) {
	s, _ := shape.New(3)
	wd, _ := NewWeightedData[float64](s, []float64{1, 2, 3}, false)
	if err := wd.SetWeights([]float64{1, 1, 1}, true); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}
	if err := wd.MarkBadData([]bool{false, true, false}); err != nil {
		t.Fatalf("MarkBadData: %v", err)
	}
	w := wd.GetWeights()
	if w[0] != 1 || w[1] != 0 || w[2] != 1 {
		t.Fatalf("weights after mask = %v, want [1 0 1]", w)
	}
	if err := wd.MarkBadData([]bool{true, false, false}); err != nil {
		t.Fatalf("MarkBadData: %v", err)
	}
	w = wd.GetWeights()
	if w[0] != 0 || w[1] != 0 || w[2] != 1 {
		t.Fatalf("weights after second mask = %v, want [0 0 1]", w)
	}
}

func TestWeightedDataFinalizeZeroesNonFiniteData(t *testing.T) {
	s, _ := shape.New(2)
	wd, _ := NewWeightedData[float64](s, []float64{math.Inf(1), 3}, false)
	data := wd.GetData()
	w := wd.GetWeights()
	if data[0] != 0 || w[0] != 0 {
		t.Fatalf("non-finite entry should be zeroed with zero weight, got data=%v w=%v", data, w)
	}
	if wd.ValidDataNumber() != 1 {
		t.Fatalf("ValidDataNumber() = %d, want 1", wd.ValidDataNumber())
	}
}

func TestWeightedDataFinalizeRejectsInconsistentMasking(t *testing.T) {
	s, _ := shape.New(1)
	wd, _ := NewWeightedData[float64](s, []float64{math.NaN()}, false)
	if err := wd.SetWeights([]float64{1}, false); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic from finalize on inconsistent masking")
		}
	}()
	_ = wd.GetData()
}
