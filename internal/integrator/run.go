package integrator

import (
	"fmt"
	"math"

	"github.com/chrissnell/sdofresponse/internal/sdof"
	"gonum.org/v1/gonum/floats"
)

// Forces returns the base-excitation force history f(i) = −m·accel(i).
func Forces(mass float64, accel []float64) []float64 {
	f := make([]float64, len(accel))
	floats.ScaleTo(f, -mass, accel)
	return f
}

// TimeStep checks that time and accel describe a usable uniform record and
// returns its step time[1] − time[0].
func TimeStep(time, accel []float64) (float64, error) {
	if len(time) != len(accel) {
		return 0, fmt.Errorf("%w: %d times, %d accelerations", sdof.ErrLengthMismatch, len(time), len(accel))
	}
	if len(time) < 2 {
		return 0, fmt.Errorf("%w: got %d", sdof.ErrTooFewSamples, len(time))
	}
	dt := time[1] - time[0]
	if !(dt > 0) {
		return 0, fmt.Errorf("%w: time[1] = %g follows %g", sdof.ErrNonMonotonicTime, time[1], time[0])
	}
	return dt, nil
}

// March advances st through the force history f, calling visit with every
// state including the initial one, and returns the final state.
func March(st Stepper, f []float64, visit func(i int, s State)) State {
	s := st.Start(f[0])
	visit(0, s)
	for i := 0; i < len(f)-1; i++ {
		s = st.Step(s, f[i], f[i+1])
		visit(i+1, s)
	}
	return s
}

// PeakDisplacement returns max|u| over the march without keeping the history.
func PeakDisplacement(st Stepper, f []float64) float64 {
	peak := 0.0
	March(st, f, func(_ int, s State) {
		if a := math.Abs(s.U); a > peak || math.IsNaN(a) {
			peak = a
		}
	})
	return peak
}

// Integrate runs method m for system sys over the ground acceleration accel
// (m/s²) sampled at the uniform times time.
func Integrate(m Method, sys sdof.System, p Params, accel, time []float64) (*sdof.Response, error) {
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	dt, err := TimeStep(time, accel)
	if err != nil {
		return nil, err
	}
	st, err := New(m, Setup{System: sys, Dt: dt, Params: p})
	if err != nil {
		return nil, err
	}

	_, omitA := st.(accelerationOmitter)
	resp := sdof.NewResponse(time, !omitA)

	var start State
	March(st, Forces(sys.Mass, accel), func(i int, s State) {
		if i == 0 {
			start = s
		}
		resp.U[i] = s.U
		resp.V[i] = s.V
		if resp.A != nil {
			resp.A[i] = s.A
		}
	})

	if d, ok := st.(Differentiator); ok {
		d.Differentiate(resp, start)
	}
	return resp, nil
}
