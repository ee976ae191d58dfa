package epp

import (
	"fmt"

	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"go.uber.org/multierr"
)

// Capacity is the strength of the inelastic system derived from the peak
// elastic restoring force.
type Capacity struct {
	Stiffness         float64 `json:"stiffness"`
	ElasticForce      float64 `json:"elastic_force"`
	StrengthReduction float64 `json:"strength_reduction"`
	YieldForce        float64 `json:"yield_force"`
	YieldDisplacement float64 `json:"yield_displacement"`
}

// Stage holds what both passes share.
type Stage struct {
	Method integrator.Method
	System sdof.System
	Params integrator.Params
}

// CalibrationStage integrates the linear system over the whole record.
type CalibrationStage Stage

// Run returns the capacity for strength reduction factor ry:
// Fy = max|k·u_lin| / ry and uy = Fy / k.
func (c CalibrationStage) Run(ry float64, accel, time []float64) (Capacity, error) {
	dt, err := integrator.TimeStep(time, accel)
	if err != nil {
		return Capacity{}, err
	}
	st, err := integrator.New(c.Method, integrator.Setup{System: c.System, Dt: dt, Params: c.Params})
	if err != nil {
		return Capacity{}, err
	}

	k := c.System.Stiffness()
	f0 := k * integrator.PeakDisplacement(st, integrator.Forces(c.System.Mass, accel))
	if f0 == 0 {
		return Capacity{}, sdof.ErrNoElasticDemand
	}

	fy := f0 / ry
	return Capacity{
		Stiffness:         k,
		ElasticForce:      f0,
		StrengthReduction: ry,
		YieldForce:        fy,
		YieldDisplacement: fy / k,
	}, nil
}

// NonlinearStage integrates the system with an elastic-perfectly-plastic
// spring of the calibrated capacity.
type NonlinearStage Stage

// Run returns the raw and normalized histories and the demand metrics.
func (n NonlinearStage) Run(c Capacity, accel, time []float64) (*Result, error) {
	dt, err := integrator.TimeStep(time, accel)
	if err != nil {
		return nil, err
	}
	spring := NewBilinear(integrator.NewLinear(c.Stiffness), c.YieldForce)
	st, err := integrator.New(n.Method, integrator.Setup{
		System: n.System,
		Dt:     dt,
		Params: n.Params,
		Spring: spring,
	})
	if err != nil {
		return nil, err
	}

	res := newResult(time, c)
	integrator.March(st, integrator.Forces(n.System.Mass, accel), func(i int, s integrator.State) {
		res.Displacement[i] = s.U
		res.RestoringForce[i] = s.Fs
	})
	res.normalize()
	return res, nil
}

// Pipeline chains calibration and the nonlinear pass.
type Pipeline struct {
	Calibration CalibrationStage
	Nonlinear   NonlinearStage
}

// NewPipeline builds both stages for the same method and system.
func NewPipeline(m integrator.Method, sys sdof.System, p integrator.Params) Pipeline {
	s := Stage{Method: m, System: sys, Params: p}
	return Pipeline{Calibration: CalibrationStage(s), Nonlinear: NonlinearStage(s)}
}

// Run validates the inputs and executes both stages.
func (p Pipeline) Run(ry float64, accel, time []float64) (*Result, error) {
	m := p.Nonlinear.Method
	if !Supported(m) {
		return nil, fmt.Errorf("%w: %q has no inelastic formulation", sdof.ErrUnsupportedMethod, m)
	}
	if err := multierr.Combine(p.Nonlinear.System.Validate(), sdof.ValidateStrengthReduction(ry)); err != nil {
		return nil, err
	}

	c, err := p.Calibration.Run(ry, accel, time)
	if err != nil {
		return nil, err
	}
	return p.Nonlinear.Run(c, accel, time)
}

// Integrate runs the inelastic analysis of sys under accel with method m.
func Integrate(m integrator.Method, sys sdof.System, ry float64, p integrator.Params, accel, time []float64) (*Result, error) {
	return NewPipeline(m, sys, p).Run(ry, accel, time)
}
