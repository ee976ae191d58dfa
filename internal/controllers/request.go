// Package controllers holds the wire types shared by the REST and gRPC
// controllers and their conversion into engine requests.
package controllers

import (
	"context"
	"fmt"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/chrissnell/sdofresponse/internal/groundmotion"
	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/chrissnell/sdofresponse/internal/storage/archive"
	"github.com/google/uuid"
)

// RunStore reads archived runs.
type RunStore interface {
	Get(ctx context.Context, id uuid.UUID) (*archive.RunRecord, error)
	List(ctx context.Context, kind string, limit int) ([]archive.RunRecord, error)
}

// RecordData is a ground-motion record on the wire. Exactly one of Accel
// (m/s²) and AccelG (g) must be given.
type RecordData struct {
	Time   []float64 `json:"time"`
	Accel  []float64 `json:"accel,omitempty"`
	AccelG []float64 `json:"accel_g,omitempty"`
}

// Record validates d and converts it to m/s².
func (d RecordData) Record(gravity float64) (*groundmotion.Record, error) {
	switch {
	case d.Accel != nil && d.AccelG != nil:
		return nil, fmt.Errorf("%w: record has both accel and accel_g", sdof.ErrInvalidParameter)
	case d.AccelG != nil:
		return groundmotion.FromG(d.Time, d.AccelG, gravity)
	case d.Accel != nil:
		return groundmotion.New(d.Time, d.Accel)
	}
	return nil, fmt.Errorf("%w: record has no accel or accel_g", sdof.ErrInvalidParameter)
}

// ParamsData selects the method constants. A non-empty Preset names a
// Newmark variant and overrides Gamma and Beta.
type ParamsData struct {
	Preset string  `json:"preset,omitempty"`
	Gamma  float64 `json:"gamma,omitempty"`
	Beta   float64 `json:"beta,omitempty"`
	Rho    float64 `json:"rho,omitempty"`
}

// Params resolves d, filling unset constants with their defaults.
func (d ParamsData) Params() (integrator.Params, error) {
	p := integrator.Params{Gamma: d.Gamma, Beta: d.Beta, Rho: d.Rho}
	if d.Preset != "" {
		preset, err := integrator.NewmarkPreset(d.Preset)
		if err != nil {
			return integrator.Params{}, err
		}
		p.Gamma, p.Beta = preset.Gamma, preset.Beta
	}
	return p.WithDefaults(), nil
}

// method resolves a method name. Newmark is used when none is given.
func method(name string) (integrator.Method, error) {
	if name == "" {
		return integrator.Newmark, nil
	}
	return integrator.ParseMethod(name)
}

// TimeHistoryRequest asks for a linear time history.
type TimeHistoryRequest struct {
	Record RecordData  `json:"record"`
	Method string      `json:"method,omitempty"`
	System sdof.System `json:"system"`
	Params ParamsData  `json:"params"`
}

// Analysis converts r into an engine request.
func (r TimeHistoryRequest) Analysis(gravity float64) (analysis.TimeHistoryRequest, error) {
	var out analysis.TimeHistoryRequest
	m, err := method(r.Method)
	if err != nil {
		return out, err
	}
	p, err := r.Params.Params()
	if err != nil {
		return out, err
	}
	rec, err := r.Record.Record(gravity)
	if err != nil {
		return out, err
	}
	return analysis.TimeHistoryRequest{Record: rec, Method: m, System: r.System, Params: p}, nil
}

// SpectrumRequest asks for a displacement response spectrum.
type SpectrumRequest struct {
	Record  RecordData `json:"record"`
	Method  string     `json:"method,omitempty"`
	Damping float64    `json:"damping"`
	Params  ParamsData `json:"params"`
}

// Analysis converts r into an engine request.
func (r SpectrumRequest) Analysis(gravity float64) (analysis.SpectrumRequest, error) {
	var out analysis.SpectrumRequest
	m, err := method(r.Method)
	if err != nil {
		return out, err
	}
	p, err := r.Params.Params()
	if err != nil {
		return out, err
	}
	rec, err := r.Record.Record(gravity)
	if err != nil {
		return out, err
	}
	return analysis.SpectrumRequest{Record: rec, Method: m, Damping: r.Damping, Params: p}, nil
}

// InelasticRequest asks for an elastic-perfectly-plastic time history.
type InelasticRequest struct {
	Record            RecordData  `json:"record"`
	Method            string      `json:"method,omitempty"`
	System            sdof.System `json:"system"`
	StrengthReduction float64     `json:"strength_reduction"`
	Params            ParamsData  `json:"params"`
}

// Analysis converts r into an engine request.
func (r InelasticRequest) Analysis(gravity float64) (analysis.InelasticRequest, error) {
	var out analysis.InelasticRequest
	m, err := method(r.Method)
	if err != nil {
		return out, err
	}
	p, err := r.Params.Params()
	if err != nil {
		return out, err
	}
	rec, err := r.Record.Record(gravity)
	if err != nil {
		return out, err
	}
	return analysis.InelasticRequest{
		Record:            rec,
		Method:            m,
		System:            r.System,
		StrengthReduction: r.StrengthReduction,
		Params:            p,
	}, nil
}

// ResampleRequest asks for a record on a uniform grid.
type ResampleRequest struct {
	Record RecordData `json:"record"`
	Dt     float64    `json:"dt"`
}

// ResampleResponse is a resampled record.
type ResampleResponse struct {
	Stats groundmotion.Stats `json:"stats"`
	*groundmotion.Record
}

// MethodInfo describes one integration method.
type MethodInfo struct {
	Name      integrator.Method `json:"name"`
	Inelastic bool              `json:"inelastic"`
}
