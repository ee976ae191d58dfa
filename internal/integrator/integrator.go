// Package integrator advances a single-degree-of-freedom oscillator through a
// sampled force history one step at a time. Each method is a Stepper built
// from a Setup through the registry; the restoring force comes from a Spring
// so the same algorithm serves linear and inelastic analyses.
package integrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chrissnell/sdofresponse/internal/sdof"
	"go.uber.org/multierr"
)

// Method names an integration scheme.
type Method string

const (
	CentralDifference       Method = "central_difference"
	Newmark                 Method = "newmark"
	InterpolationExcitation Method = "interpolation_excitation"
	KRAlpha                 Method = "kr_alpha"
)

var aliases = map[string]Method{
	"central_difference":       CentralDifference,
	"central":                  CentralDifference,
	"cdm":                      CentralDifference,
	"newmark":                  Newmark,
	"newmark_beta":             Newmark,
	"interpolation_excitation": InterpolationExcitation,
	"interpolation":            InterpolationExcitation,
	"exact":                    InterpolationExcitation,
	"kr_alpha":                 KRAlpha,
	"kralpha":                  KRAlpha,
	"generalized_alpha":        KRAlpha,
}

// ParseMethod resolves a method name. Case, hyphens and spaces are ignored.
func ParseMethod(s string) (Method, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if m, ok := aliases[key]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", sdof.ErrUnsupportedMethod, s)
}

// Params carries method-specific constants. Zero fields take defaults.
type Params struct {
	Gamma float64 `json:"gamma,omitempty" yaml:"gamma"`
	Beta  float64 `json:"beta,omitempty" yaml:"beta"`
	Rho   float64 `json:"rho,omitempty" yaml:"rho"`
}

// AverageAcceleration is the unconditionally stable Newmark variant.
func AverageAcceleration() Params {
	return Params{Gamma: 0.5, Beta: 0.25}
}

// LinearAcceleration is the conditionally stable Newmark variant.
func LinearAcceleration() Params {
	return Params{Gamma: 0.5, Beta: 1.0 / 6.0}
}

// NewmarkPreset returns the named Newmark variant: "average" or "linear".
func NewmarkPreset(name string) (Params, error) {
	switch strings.ToLower(name) {
	case "", "average", "constant":
		return AverageAcceleration(), nil
	case "linear":
		return LinearAcceleration(), nil
	}
	return Params{}, fmt.Errorf("%w: unknown Newmark variant %q", sdof.ErrInvalidParameter, name)
}

// WithDefaults fills unset fields with γ = 1/2, β = 1/4 and ρ∞ = 1.
func (p Params) WithDefaults() Params {
	if p.Gamma == 0 {
		p.Gamma = 0.5
	}
	if p.Beta == 0 {
		p.Beta = 0.25
	}
	if p.Rho == 0 {
		p.Rho = 1
	}
	return p
}

// Validate checks the constants method m reads.
func (p Params) Validate(m Method) error {
	var err error
	switch m {
	case Newmark:
		err = multierr.Append(err, sdof.Positive("beta", p.Beta))
		err = multierr.Append(err, sdof.Positive("gamma", p.Gamma))
	case KRAlpha:
		if !(p.Rho > 0 && p.Rho <= 1) {
			err = multierr.Append(err, sdof.Invalid("rho", p.Rho, "must lie in (0, 1]"))
		}
	}
	return err
}

// State is the oscillator at one sample.
type State struct {
	U  float64
	V  float64
	A  float64
	Fs float64 // restoring force

	// UPrev is the displacement one step back, carried by explicit methods.
	UPrev float64
}

// Stepper advances the oscillator by one time step.
type Stepper interface {
	// Start returns the at-rest state at the first sample under force f0.
	Start(f0 float64) State
	// Step returns the state at sample i+1 from the state at i and the
	// forces at samples i and i+1.
	Step(s State, fi, fi1 float64) State
}

// Differentiator is implemented by steppers whose velocities and
// accelerations are recovered from the displacement history once the march
// is complete.
type Differentiator interface {
	Differentiate(resp *sdof.Response, start State)
}

// accelerationOmitter marks steppers that do not produce accelerations.
type accelerationOmitter interface {
	omitsAcceleration()
}

// Setup is everything a Stepper is built from.
type Setup struct {
	System sdof.System
	Dt     float64
	Params Params

	// Spring defaults to the linear spring of System when nil.
	Spring Spring
}

type allocator func(Setup) (Stepper, error)

var allocators = make(map[Method]allocator)

// New builds the stepper for method m.
func New(m Method, st Setup) (Stepper, error) {
	alloc, ok := allocators[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", sdof.ErrUnsupportedMethod, m)
	}
	if err := sdof.Positive("dt", st.Dt); err != nil {
		return nil, err
	}
	if st.Spring == nil {
		st.Spring = NewLinear(st.System.Stiffness())
	}
	st.Params = st.Params.WithDefaults()
	if err := st.Params.Validate(m); err != nil {
		return nil, err
	}
	return alloc(st)
}

// Methods lists the registered methods in name order.
func Methods() []Method {
	out := make([]Method, 0, len(allocators))
	for m := range allocators {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
