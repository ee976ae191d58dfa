package integrator

import (
	"fmt"

	"github.com/chrissnell/sdofresponse/internal/sdof"
)

func init() {
	allocators[CentralDifference] = newCentralDifference
}

// CentralDifferenceStable reports whether dt satisfies dt < 2/ωn.
func CentralDifferenceStable(sys sdof.System, dt float64) bool {
	return dt < 2/sys.Omega()
}

type centralDifference struct {
	m, dt  float64
	spring Spring

	kHat float64 // m/dt² + c/(2dt)
	a    float64 // m/dt² − c/(2dt)
	b    float64 // 2m/dt²
}

func newCentralDifference(st Setup) (Stepper, error) {
	if !CentralDifferenceStable(st.System, st.Dt) {
		return nil, fmt.Errorf("%w: central difference needs dt < 2/ωn = %g, got %g",
			sdof.ErrUnstable, 2/st.System.Omega(), st.Dt)
	}

	m, c, dt := st.System.Mass, st.System.DampingCoefficient(), st.Dt
	return &centralDifference{
		m:      m,
		dt:     dt,
		spring: st.Spring,
		kHat:   m/(dt*dt) + c/(2*dt),
		a:      m/(dt*dt) - c/(2*dt),
		b:      2 * m / (dt * dt),
	}, nil
}

func (cd *centralDifference) Start(f0 float64) State {
	a0 := f0 / cd.m
	return State{
		A:     a0,
		UPrev: 0.5 * cd.dt * cd.dt * a0,
	}
}

func (cd *centralDifference) Step(s State, fi, _ float64) State {
	u := (fi - cd.a*s.UPrev - s.Fs + cd.b*s.U) / cd.kHat
	fs := cd.spring.Force(s.Fs, s.U, u)

	// Backward estimates; Differentiate replaces them for interior samples.
	v := (u - s.U) / cd.dt
	return State{
		U:     u,
		V:     v,
		A:     (u - 2*s.U + s.UPrev) / (cd.dt * cd.dt),
		Fs:    fs,
		UPrev: s.U,
	}
}

// Differentiate recovers v and a at interior samples by central differences
// of the displacement. The first sample keeps v0 = 0 and a0 from the equation
// of motion; the last keeps one-sided differences.
func (cd *centralDifference) Differentiate(resp *sdof.Response, start State) {
	u := resp.U
	n := len(u)
	if n == 0 {
		return
	}

	resp.V[0] = start.V
	if resp.A != nil {
		resp.A[0] = start.A
	}
	dt2 := cd.dt * cd.dt
	for i := 1; i < n-1; i++ {
		resp.V[i] = (u[i+1] - u[i-1]) / (2 * cd.dt)
		if resp.A != nil {
			resp.A[i] = (u[i+1] - 2*u[i] + u[i-1]) / dt2
		}
	}
}
