package sdof

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Response is the sampled displacement, velocity and acceleration of an
// oscillator. A is nil for methods that do not produce accelerations.
type Response struct {
	Time []float64 `json:"time"`
	U    []float64 `json:"displacement"`
	V    []float64 `json:"velocity"`
	A    []float64 `json:"acceleration,omitempty"`
}

// NewResponse allocates a response over a copy of time.
func NewResponse(time []float64, withAcceleration bool) *Response {
	n := len(time)
	r := &Response{
		Time: append([]float64(nil), time...),
		U:    make([]float64, n),
		V:    make([]float64, n),
	}
	if withAcceleration {
		r.A = make([]float64, n)
	}
	return r
}

// Len returns the number of samples.
func (r *Response) Len() int {
	return len(r.Time)
}

// HasAcceleration reports whether accelerations were computed.
func (r *Response) HasAcceleration() bool {
	return r.A != nil
}

// Peaks holds the largest absolute value of each response quantity.
type Peaks struct {
	Displacement float64 `json:"displacement"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration,omitempty"`
}

// Peaks returns max|u|, max|v| and, when present, max|a|.
func (r *Response) Peaks() Peaks {
	p := Peaks{
		Displacement: PeakAbs(r.U),
		Velocity:     PeakAbs(r.V),
	}
	if r.HasAcceleration() {
		p.Acceleration = PeakAbs(r.A)
	}
	return p
}

// Table returns column headers and columns for tabular output.
func (r *Response) Table() ([]string, [][]float64) {
	header := []string{"time", "displacement", "velocity"}
	cols := [][]float64{r.Time, r.U, r.V}
	if r.HasAcceleration() {
		header = append(header, "acceleration")
		cols = append(cols, r.A)
	}
	return header, cols
}

// PeakAbs returns max|x|, or 0 for an empty slice.
func PeakAbs(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, math.Inf(1))
}
