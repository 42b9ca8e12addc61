package deconv

import (
	"math"
	"testing"

	"tipi/optimize"
	"tipi/pkg/shape"
)

func TestResolveObjectShapeDerivesFromDataAndPSF(t *testing.T) {
	dataShape, err := shape.New(4)
	if err != nil {
		t.Fatalf("shape.New: %v", err)
	}
	psfShape, err := shape.New(3)
	if err != nil {
		t.Fatalf("shape.New: %v", err)
	}
	cfg := defaultConfig[float64]()
	obj, err := resolveObjectShape(cfg, dataShape, psfShape)
	if err != nil {
		t.Fatalf("resolveObjectShape: %v", err)
	}
	// data_dim + psf_dim - 1 = 4+3-1 = 6, already 5-smooth.
	if obj.Dim(0) != 6 {
		t.Errorf("obj.Dim(0) = %d, want 6", obj.Dim(0))
	}
}

func TestSmoothInverseProblemRecoversTrueObjectWithoutNoise(t *testing.T) {
	s, err := shape.New(4, 4)
	if err != nil {
		t.Fatalf("shape.New: %v", err)
	}
	xTrue := shape.NewVector[float64](s)
	for i := range xTrue.Data {
		xTrue.Data[i] = float64(i%5) + 1
	}

	psfShape, err := shape.New(3, 3)
	if err != nil {
		t.Fatalf("shape.New: %v", err)
	}
	psf := shape.NewVector[float64](psfShape)
	psf.Data[4] = 1 // delta at the geometric center of a 3x3 stamp

	problem, err := New[float64, complex128](psf, shape.NewVector[float64](s), WithObjectShape[float64](s))
	if err != nil {
		t.Fatalf("New (for building H only): %v", err)
	}
	data := shape.NewVector[float64](s)
	if err := problem.operator.Apply(data, xTrue, 0); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	p, err := New[float64, complex128](psf, data, WithObjectShape[float64](s), WithRegularization[float64](0, 0.01, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	x, status, err := p.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != optimize.Converged {
		t.Fatalf("status = %v, want Converged", status)
	}
	for i := range x {
		if math.Abs(x[i]-xTrue.Data[i]) > 1e-4 {
			t.Errorf("x[%d] = %v, want close to %v", i, x[i], xTrue.Data[i])
		}
	}
}

func TestSmoothInverseProblemUsesBLMVMWhenBoundsSet(t *testing.T) {
	s, err := shape.New(4)
	if err != nil {
		t.Fatalf("shape.New: %v", err)
	}
	psfShape, err := shape.New(1)
	if err != nil {
		t.Fatalf("shape.New: %v", err)
	}
	psf := shape.NewVector[float64](psfShape)
	psf.Data[0] = 1

	data := shape.NewVector[float64](s)
	for i := range data.Data {
		data.Data[i] = -1 // unconstrained minimum is negative everywhere
	}

	lower := make([]float64, s.Count())
	p, err := New[float64, complex128](psf, data,
		WithObjectShape[float64](s),
		WithRegularization[float64](0, 0.01, nil),
		WithBounds[float64](lower, nil),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !p.Bounded() {
		t.Fatalf("expected Bounded() to be true")
	}

	x, status, err := p.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != optimize.Converged {
		t.Fatalf("status = %v, want Converged", status)
	}
	for i, xi := range x {
		if xi < -1e-9 {
			t.Errorf("x[%d] = %v, want >= 0 (bound active)", i, xi)
		}
	}
}

func TestNewRejectsRankMismatch(t *testing.T) {
	dataShape, _ := shape.New(4, 4)
	psfShape, _ := shape.New(3)
	data := shape.NewVector[float64](dataShape)
	psf := shape.NewVector[float64](psfShape)
	if _, err := New[float64, complex128](psf, data); err == nil {
		t.Fatalf("expected error for rank mismatch")
	}
}
