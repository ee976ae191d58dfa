package integrator

import (
	"fmt"
	"math"

	"github.com/chrissnell/sdofresponse/internal/sdof"
)

const (
	// maxCorrections bounds the modified-Newton loop of a single step.
	maxCorrections = 50
	// correctionTol is the residual tolerance relative to the force scale.
	correctionTol = 1e-10
)

func init() {
	allocators[Newmark] = newNewmark
}

type newmark struct {
	m, dt, gamma, beta float64
	spring             Spring

	a1, a2, a3 float64
	kHat       float64
}

func newNewmark(st Setup) (Stepper, error) {
	g, b := st.Params.Gamma, st.Params.Beta
	sys, dt := st.System, st.Dt

	// Undamped stability limit of the conditionally stable variants.
	if 2*b < g {
		limit := 1 / math.Sqrt(g/2-b)
		if sys.Omega()*dt >= limit {
			return nil, fmt.Errorf("%w: Newmark γ=%g β=%g needs ωn·dt < %g, got %g",
				sdof.ErrUnstable, g, b, limit, sys.Omega()*dt)
		}
	}

	m, c := sys.Mass, sys.DampingCoefficient()
	a1 := m/(b*dt*dt) + g*c/(b*dt)
	return &newmark{
		m:      m,
		dt:     dt,
		gamma:  g,
		beta:   b,
		spring: st.Spring,
		a1:     a1,
		a2:     m/(b*dt) + (g/b-1)*c,
		a3:     (1/(2*b)-1)*m + dt*(g/(2*b)-1)*c,
		kHat:   st.Spring.Stiffness() + a1,
	}, nil
}

func (nm *newmark) Start(f0 float64) State {
	return State{A: f0 / nm.m}
}

// Step solves fs(u) + a1·u = p̂ by modified Newton iteration on the initial
// tangent k + a1. A linear spring converges on the first correction.
func (nm *newmark) Step(s State, _, fi1 float64) State {
	pHat := fi1 + nm.a1*s.U + nm.a2*s.V + nm.a3*s.A

	u := s.U
	var fs float64
	for iter := 0; ; iter++ {
		fs = nm.spring.Force(s.Fs, s.U, u)
		r := pHat - fs - nm.a1*u
		scale := math.Abs(pHat) + math.Abs(fs) + math.Abs(nm.a1*u)
		if math.Abs(r) <= correctionTol*scale || iter == maxCorrections {
			break
		}
		u += r / nm.kHat
	}

	g, b, dt := nm.gamma, nm.beta, nm.dt
	du := u - s.U
	return State{
		U:  u,
		V:  g/(b*dt)*du + (1-g/b)*s.V + dt*(1-g/(2*b))*s.A,
		A:  du/(b*dt*dt) - s.V/(b*dt) - (1/(2*b)-1)*s.A,
		Fs: fs,
	}
}
