package shape

import (
	"fmt"
	"math"
)

// Real is the element-type constraint shared by every generic tipi
// component: a shaped vector holds either float32 or float64 samples.
type Real interface {
	~float32 | ~float64
}

// Vector pairs a Shape with the flat buffer that realizes it. buffer.len
// must equal shape.Count(); multi-dimensional indexing is column-major
// (first index varies fastest) except where a consumer (the regularizer)
// indexes 2x2/2x2x2 blocks explicitly.
type Vector[F Real] struct {
	Shape Shape
	Data  []F
}

// NewVector allocates a zeroed vector over s.
func NewVector[F Real](s Shape) Vector[F] {
	return Vector[F]{Shape: s, Data: make([]F, s.Count())}
}

// NewVectorFrom wraps an existing buffer, which must already match s.Count().
func NewVectorFrom[F Real](s Shape, data []F) (Vector[F], error) {
	if int64(len(data)) != s.Count() {
		return Vector[F]{}, fmt.Errorf("shape: buffer length %d does not match shape count %d", len(data), s.Count())
	}
	return Vector[F]{Shape: s, Data: data}, nil
}

// Like allocates a new zeroed vector in the same space as v.
func (v Vector[F]) Like() Vector[F] {
	return NewVector[F](v.Shape)
}

// SameSpace reports whether v and o share (element type, shape).
func (v Vector[F]) SameSpace(o Vector[F]) bool {
	return v.Shape.Equals(o.Shape)
}

// Clear zeros the buffer.
func (v Vector[F]) Clear() {
	for i := range v.Data {
		v.Data[i] = 0
	}
}

// Fill sets every element to c.
func (v Vector[F]) Fill(c F) {
	for i := range v.Data {
		v.Data[i] = c
	}
}

// CopyFrom copies o's data into v. Panics on a space mismatch.
func (v Vector[F]) CopyFrom(o Vector[F]) {
	mustSameSpace(v, o)
	copy(v.Data, o.Data)
}

// Clone returns a deep copy.
func (v Vector[F]) Clone() Vector[F] {
	out := v.Like()
	copy(out.Data, v.Data)
	return out
}

// AXPY computes v += a*x in place.
func AXPY[F Real](v Vector[F], a F, x Vector[F]) {
	mustSameSpace(v, x)
	for i := range v.Data {
		v.Data[i] += a * x.Data[i]
	}
}

// Dot returns <v, o> accumulated in float64 for numerical stability,
// regardless of F, the convention used throughout the cost layer.
func Dot[F Real](v, o Vector[F]) float64 {
	mustSameSpace(v, o)
	var sum float64
	for i := range v.Data {
		sum += float64(v.Data[i]) * float64(o.Data[i])
	}
	return sum
}

// Norm2 returns the Euclidean norm of v, accumulated in float64.
func Norm2[F Real](v Vector[F]) float64 {
	return math.Sqrt(Dot(v, v))
}

func mustSameSpace[F Real](a, b Vector[F]) {
	if !a.Shape.Equals(b.Shape) {
		panic(fmt.Sprintf("shape: vector space mismatch %v vs %v", a.Shape, b.Shape))
	}
}
