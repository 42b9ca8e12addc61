package cost

import (
	"math"
	"testing"

	"tipi/pkg/shape"
)

func TestCompositeAdditivity(t *testing.T) {
	s, _ := shape.New(4)
	wd1, _ := NewWeightedData[float64](s, []float64{1, 1, 1, 1}, false)
	wd2, _ := NewWeightedData[float64](s, []float64{0, 0, 0, 0}, false)

	comp := NewComposite[float64](s)
	if err := comp.AddTerm(2, wd1); err != nil {
		t.Fatalf("AddTerm: %v", err)
	}
	if err := comp.AddTerm(3, wd2); err != nil {
		t.Fatalf("AddTerm: %v", err)
	}

	x := []float64{1, 1, 1, 1}
	got := comp.Evaluate(1, x)

	want := 2*wd1.Evaluate(1, x) + 3*wd2.Evaluate(1, x)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("Evaluate() = %v, want %v", got, want)
	}
}

func TestCompositeGradientAccumulatesAcrossTerms(t *testing.T) {
	s, _ := shape.New(3)
	wd1, _ := NewWeightedData[float64](s, []float64{0, 0, 0}, false)
	wd2, _ := NewWeightedData[float64](s, []float64{1, 1, 1}, false)

	comp := NewComposite[float64](s)
	if err := comp.AddTerm(1, wd1); err != nil {
		t.Fatalf("AddTerm: %v", err)
	}
	if err := comp.AddTerm(1, wd2); err != nil {
		t.Fatalf("AddTerm: %v", err)
	}

	x := []float64{2, 2, 2}
	g := make([]float64, 3)
	comp.ComputeCostAndGradient(1, x, g, true)

	// grad wd1 = x-0 = 2; grad wd2 = x-1 = 1; sum = 3
	for i, v := range g {
		if math.Abs(v-3) > 1e-12 {
			t.Fatalf("g[%d] = %v, want 3", i, v)
		}
	}
}

func TestCompositeZeroWeightTermSkipped(t *testing.T) {
	s, _ := shape.New(2)
	wd1, _ := NewWeightedData[float64](s, []float64{0, 0}, false)

	comp := NewComposite[float64](s)
	if err := comp.AddTerm(0, wd1); err != nil {
		t.Fatalf("AddTerm: %v", err)
	}

	g := []float64{9, 9}
	cost := comp.ComputeCostAndGradient(1, []float64{1, 1}, g, true)
	if cost != 0 {
		t.Fatalf("cost = %v, want 0", cost)
	}
	for _, v := range g {
		if v != 0 {
			t.Fatalf("g = %v, want zeroed even though the only term had zero weight", g)
		}
	}
}

func TestCompositeRejectsNegativeWeight(t *testing.T) {
	s, _ := shape.New(2)
	wd, _ := NewWeightedData[float64](s, []float64{0, 0}, false)
	comp := NewComposite[float64](s)
	if err := comp.AddTerm(-1, wd); err == nil {
		t.Fatal("expected error for negative weight")
	}
}

func TestCompositeRejectsShapeMismatch(t *testing.T) {
	s1, _ := shape.New(2)
	s2, _ := shape.New(3)
	wd, _ := NewWeightedData[float64](s2, []float64{0, 0, 0}, false)
	comp := NewComposite[float64](s1)
	if err := comp.AddTerm(1, wd); err == nil {
		t.Fatal("expected error for shape mismatch")
	}
}
