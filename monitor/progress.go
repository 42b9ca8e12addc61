// Package monitor exposes a running deconvolution driver's progress over
// a terminal dashboard and a WebSocket-fed web dashboard, so a long
// deblurring run can be watched without stopping it.
package monitor

// Driver is the subset of deconv.SmoothInverseProblemT's reporting
// methods monitor needs; it is satisfied by both the float64 and
// float32 specializations without depending on their element type.
type Driver interface {
	Iteration() int
	Cost() float64
	GradientNorm() float64
	StatusString() string
}

// Progress is a snapshot of a driver's state at one iteration, the unit
// broadcast to both the console and the web dashboard.
type Progress struct {
	Iteration    int     `json:"iteration"`
	Cost         float64 `json:"cost"`
	GradientNorm float64 `json:"gradientNorm"`
	Status       string  `json:"status"`
}

// Snapshot reads a Driver's current state into a Progress value.
func Snapshot(d Driver) Progress {
	return Progress{
		Iteration:    d.Iteration(),
		Cost:         d.Cost(),
		GradientNorm: d.GradientNorm(),
		Status:       d.StatusString(),
	}
}
