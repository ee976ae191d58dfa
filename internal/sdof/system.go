// Package sdof holds the single-degree-of-freedom oscillator model shared by
// the integrators, the inelastic layer and the spectrum sweep.
package sdof

import (
	"math"

	"go.uber.org/multierr"
)

// System is a linear oscillator described by its mass, damping ratio and
// natural period. Stiffness and the viscous damping coefficient are derived.
type System struct {
	Mass    float64 `json:"mass" yaml:"mass"`
	Damping float64 `json:"damping" yaml:"damping"`
	Period  float64 `json:"period" yaml:"period"`
}

// Omega returns the natural circular frequency 2π/Tn.
func (s System) Omega() float64 {
	return 2 * math.Pi / s.Period
}

// Stiffness returns k = ωn²·m.
func (s System) Stiffness() float64 {
	w := s.Omega()
	return w * w * s.Mass
}

// DampingCoefficient returns c = 2ζ√(k·m).
func (s System) DampingCoefficient() float64 {
	return 2 * s.Damping * math.Sqrt(s.Stiffness()*s.Mass)
}

// Validate checks every field and reports all violations at once.
func (s System) Validate() error {
	var err error
	err = multierr.Append(err, Positive("mass", s.Mass))
	err = multierr.Append(err, Positive("period", s.Period))
	if !(s.Damping >= 0 && s.Damping < 1) {
		err = multierr.Append(err, Invalid("damping", s.Damping, "must lie in [0, 1)"))
	}
	return err
}

// Positive rejects values that are not finite and strictly positive.
func Positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return Invalid(name, v, "must be a positive finite number")
	}
	return nil
}

// ValidateStrengthReduction checks the strength reduction factor Ry.
func ValidateStrengthReduction(ry float64) error {
	return Positive("strength_reduction", ry)
}
