package optimize

import (
	"math"

	"tipi/pkg/shape"
)

// historyRing is the L-BFGS (s, y, rho) ring shared by LBFGST and BLMVMT.
type historyRing[F shape.Real] struct {
	m     int
	n     int
	s     [][]F
	y     [][]F
	rho   []float64
	count int // number of admitted pairs, <= m
	head  int // index of the most recently admitted pair
	gamma float64
}

func newHistoryRing[F shape.Real](n, m int) *historyRing[F] {
	s := make([][]F, m)
	y := make([][]F, m)
	for i := range s {
		s[i] = make([]F, n)
		y[i] = make([]F, n)
	}
	return &historyRing[F]{
		m: m, n: n,
		s: s, y: y,
		rho:   make([]float64, m),
		head:  -1,
		gamma: 1,
	}
}

// admit records the pair (s, y) if sᵀy > ε·‖s‖·‖y‖ is sufficiently
// positive, evicting the oldest pair if the ring is full and updating
// γ = (sᵀy)/(yᵀy); otherwise it skips the pair and returns false.
func (h *historyRing[F]) admit(s, y []F) bool {
	var sy, ss, yy float64
	for i := range s {
		fs, fy := float64(s[i]), float64(y[i])
		sy += fs * fy
		ss += fs * fs
		yy += fy * fy
	}
	const curvatureEps = 1e-10
	if sy <= curvatureEps*math.Sqrt(ss)*math.Sqrt(yy) {
		return false
	}

	h.head = (h.head + 1) % h.m
	copy(h.s[h.head], s)
	copy(h.y[h.head], y)
	h.rho[h.head] = 1 / sy
	if h.count < h.m {
		h.count++
	}
	h.gamma = sy / yy
	return true
}

// twoLoopRecursion computes d = -H*g via the standard L-BFGS two-loop
// recursion over the admitted history, writing the result into d. With no
// admitted pairs it yields d = -gamma*g; callers check count themselves and
// use steepest descent instead.
func (h *historyRing[F]) twoLoopRecursion(g []F, d []F) {
	q := make([]float64, h.n)
	for i, v := range g {
		q[i] = float64(v)
	}

	a := make([]float64, h.count)
	idx := h.head
	for k := 0; k < h.count; k++ {
		sk, yk, rk := h.s[idx], h.y[idx], h.rho[idx]
		var sq float64
		for i := range q {
			sq += float64(sk[i]) * q[i]
		}
		ak := rk * sq
		a[k] = ak
		for i := range q {
			q[i] -= ak * float64(yk[i])
		}
		idx = (idx - 1 + h.m) % h.m
	}

	for i := range q {
		q[i] *= h.gamma
	}

	idx = (h.head - h.count + 1 + h.m) % h.m
	for k := h.count - 1; k >= 0; k-- {
		sk, yk, rk := h.s[idx], h.y[idx], h.rho[idx]
		var yr float64
		for i := range q {
			yr += float64(yk[i]) * q[i]
		}
		beta := rk * yr
		coef := a[k] - beta
		for i := range q {
			q[i] += coef * float64(sk[i])
		}
		idx = (idx + 1) % h.m
	}

	for i := range d {
		d[i] = -F(q[i])
	}
}

func (h *historyRing[F]) reset() {
	h.count = 0
	h.head = -1
	h.gamma = 1
}
