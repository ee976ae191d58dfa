package integrator

import (
	"fmt"
	"math"

	"github.com/chrissnell/sdofresponse/internal/sdof"
)

func init() {
	allocators[InterpolationExcitation] = newInterpolation
}

// interpolation is exact for excitation varying linearly within each step.
// It produces displacement and velocity only.
type interpolation struct {
	k float64

	a, b, c, d     float64
	ap, bp, cp, dp float64
}

func newInterpolation(st Setup) (Stepper, error) {
	spring, ok := st.Spring.(Linear)
	if !ok {
		return nil, fmt.Errorf("%w: interpolation of excitation integrates linear springs only", sdof.ErrUnsupportedMethod)
	}
	z := st.System.Damping
	if !(z < 1) {
		return nil, fmt.Errorf("%w: interpolation of excitation needs an underdamped system, got ζ = %g", sdof.ErrDomain, z)
	}

	k, dt := spring.K, st.Dt
	wn := st.System.Omega()
	wd := wn * math.Sqrt(1-z*z)
	e := math.Exp(-z * wn * dt)
	sin, cos := math.Sincos(wd * dt)
	r := z / math.Sqrt(1-z*z)

	it := &interpolation{k: k}
	it.a = e * (r*sin + cos)
	it.b = e * sin / wd
	it.c = (2*z/(wn*dt) + e*(((1-2*z*z)/(wd*dt)-r)*sin-(1+2*z/(wn*dt))*cos)) / k
	it.d = (1 - 2*z/(wn*dt) + e*((2*z*z-1)/(wd*dt)*sin+2*z/(wn*dt)*cos)) / k

	it.ap = -e * wn / math.Sqrt(1-z*z) * sin
	it.bp = e * (cos - r*sin)
	it.cp = (-1/dt + e*((wn/math.Sqrt(1-z*z)+r/dt)*sin+cos/dt)) / k
	it.dp = (1 - e*(r*sin+cos)) / (k * dt)
	return it, nil
}

func (it *interpolation) omitsAcceleration() {}

func (it *interpolation) Start(float64) State {
	return State{}
}

func (it *interpolation) Step(s State, fi, fi1 float64) State {
	u := it.a*s.U + it.b*s.V + it.c*fi + it.d*fi1
	return State{
		U:  u,
		V:  it.ap*s.U + it.bp*s.V + it.cp*fi + it.dp*fi1,
		Fs: it.k * u,
	}
}
