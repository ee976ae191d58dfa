package integrator

// Spring evaluates the oscillator's restoring force.
type Spring interface {
	// Stiffness returns the initial elastic stiffness.
	Stiffness() float64
	// Force returns the restoring force once the displacement moves from
	// uOld to uNew, starting from the committed force fsOld.
	Force(fsOld, uOld, uNew float64) float64
}

// Linear is the elastic spring fs = k·u.
type Linear struct {
	K float64
}

// NewLinear returns a linear spring of stiffness k.
func NewLinear(k float64) Linear {
	return Linear{K: k}
}

func (l Linear) Stiffness() float64 {
	return l.K
}

func (l Linear) Force(_, _, uNew float64) float64 {
	return l.K * uNew
}
