// Package epp adds an elastic-perfectly-plastic restoring force to the
// integrators and runs the two-stage inelastic analysis: a linear pass that
// calibrates the yield strength from the elastic demand, then a nonlinear pass
// with that strength.
package epp

import (
	"math"

	"github.com/chrissnell/sdofresponse/internal/integrator"
)

// Bilinear wraps an elastic spring and holds the force at ±Fy once the
// incremental trial force would exceed it. Unloading is elastic from the
// committed force.
type Bilinear struct {
	Elastic integrator.Spring
	Fy      float64
}

// NewBilinear returns an elastic-perfectly-plastic spring with yield force fy.
func NewBilinear(elastic integrator.Spring, fy float64) *Bilinear {
	return &Bilinear{Elastic: elastic, Fy: fy}
}

func (b *Bilinear) Stiffness() float64 {
	return b.Elastic.Stiffness()
}

func (b *Bilinear) Force(fsOld, uOld, uNew float64) float64 {
	trial := fsOld + b.Elastic.Stiffness()*(uNew-uOld)
	if math.Abs(trial) > b.Fy {
		return math.Copysign(b.Fy, trial)
	}
	return trial
}

// Supported reports whether method m has an inelastic formulation.
func Supported(m integrator.Method) bool {
	switch m {
	case integrator.CentralDifference, integrator.Newmark, integrator.KRAlpha:
		return true
	}
	return false
}
