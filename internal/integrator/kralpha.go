package integrator

func init() {
	allocators[KRAlpha] = newKRAlpha
}

// krAlpha is the explicit generalized-α scheme parameterized by the spectral
// radius at infinite frequency ρ∞. ρ∞ = 1 gives no numerical dissipation.
type krAlpha struct {
	m, c, dt float64
	spring   Spring

	alphaF                 float64
	alpha1, alpha2, alpha3 float64
}

func newKRAlpha(st Setup) (Stepper, error) {
	rho := st.Params.Rho
	alphaM := (2*rho - 1) / (rho + 1)
	alphaF := rho / (rho + 1)
	gamma := 0.5 - alphaM + alphaF
	beta := 0.25 * (1 - alphaM + alphaF) * (1 - alphaM + alphaF)

	m, c, dt := st.System.Mass, st.System.DampingCoefficient(), st.Dt
	k := st.Spring.Stiffness()
	alpha := m + gamma*dt*c + beta*dt*dt*k

	return &krAlpha{
		m:      m,
		c:      c,
		dt:     dt,
		spring: st.Spring,
		alphaF: alphaF,
		alpha1: m / alpha,
		alpha2: (0.5 + gamma) * m / alpha,
		alpha3: (alphaM*m + alphaF*gamma*dt*c + alphaF*beta*dt*dt*k) / alpha,
	}, nil
}

func (kr *krAlpha) Start(f0 float64) State {
	return State{A: f0 / kr.m}
}

func (kr *krAlpha) Step(s State, fi, fi1 float64) State {
	dt, af := kr.dt, kr.alphaF

	v := s.V + dt*kr.alpha1*s.A
	u := s.U + dt*s.V + dt*dt*kr.alpha2*s.A
	fs := kr.spring.Force(s.Fs, s.U, u)

	// Equilibrium at the generalized mid-step.
	vMid := (1-af)*v + af*s.V
	fsMid := (1-af)*fs + af*s.Fs
	pMid := (1-af)*fi1 + af*fi
	aHat := (pMid - kr.c*vMid - fsMid) / kr.m

	return State{
		U:  u,
		V:  v,
		A:  (aHat - kr.alpha3*s.A) / (1 - kr.alpha3),
		Fs: fs,
	}
}
