// Package archive stores finished analysis runs in PostgreSQL through gorm.
// Scalar results and parameters are queryable columns; the full histories are
// kept as a MessagePack blob.
package archive

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/chrissnell/sdofresponse/internal/epp"
	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/chrissnell/sdofresponse/internal/spectrum"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
)

// RunRecord is one archived run.
type RunRecord struct {
	ID                   uuid.UUID          `gorm:"type:uuid;primaryKey"`
	CreatedAt            time.Time          `gorm:"index"`
	Kind                 string             `gorm:"type:text;index;not null"`
	Method               string             `gorm:"type:text;not null"`
	Parameters           pgtype.JSONB       `gorm:"type:jsonb"`
	ElapsedMS            int64              `gorm:"not null"`
	Samples              int                `gorm:"not null"`
	PeakDisplacement     float64            `gorm:"not null"`
	Ductility            *float64           `gorm:"type:double precision"`
	NormalizedResidual   *float64           `gorm:"type:double precision"`
	Periods              pgtype.Float8Array `gorm:"type:double precision[]"`
	SpectralDisplacement pgtype.Float8Array `gorm:"type:double precision[]"`
	Series               []byte             `gorm:"type:bytea"`
}

// TableName overrides gorm's pluralized default.
func (RunRecord) TableName() string {
	return "sdof_runs"
}

// Parameters are the inputs of a run, stored as JSONB.
type Parameters struct {
	System            sdof.System       `json:"system"`
	Params            integrator.Params `json:"params"`
	StrengthReduction float64           `json:"strength_reduction,omitempty"`
	Capacity          *epp.Capacity     `json:"capacity,omitempty"`
}

// FromRun converts a finished run into its archived form.
func FromRun(run *analysis.Run) (*RunRecord, error) {
	params := Parameters{
		System:            run.System,
		Params:            run.Params,
		StrengthReduction: run.StrengthReduction,
	}

	rec := &RunRecord{
		ID:               run.ID,
		CreatedAt:        run.Started,
		Kind:             string(run.Kind),
		Method:           string(run.Method),
		ElapsedMS:        run.Elapsed.Milliseconds(),
		PeakDisplacement: run.PeakDisplacement(),
	}

	var table tabular
	switch run.Kind {
	case analysis.KindTimeHistory:
		if run.TimeHistory == nil {
			return nil, fmt.Errorf("time history run %s has no result", run.ID)
		}
		table = run.TimeHistory
		rec.Samples = run.TimeHistory.Len()
	case analysis.KindSpectrum:
		if run.Spectrum == nil {
			return nil, fmt.Errorf("spectrum run %s has no result", run.ID)
		}
		sp := run.Spectrum
		if err := rec.Periods.Set(sp.Periods); err != nil {
			return nil, fmt.Errorf("could not encode periods: %w", err)
		}
		if err := rec.SpectralDisplacement.Set([]float64(sp.Displacement)); err != nil {
			return nil, fmt.Errorf("could not encode spectral displacement: %w", err)
		}
		table = sp
		rec.Samples = len(sp.Periods)
	case analysis.KindInelastic:
		if run.Inelastic == nil {
			return nil, fmt.Errorf("inelastic run %s has no result", run.ID)
		}
		in := run.Inelastic
		ductility, residual := in.Metrics.Ductility, in.Metrics.NormalizedResidual
		rec.Ductility = &ductility
		rec.NormalizedResidual = &residual
		params.Capacity = &in.Capacity
		table = in
		rec.Samples = len(in.Time)
	default:
		return nil, fmt.Errorf("unknown run kind %q", run.Kind)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("could not encode parameters: %w", err)
	}
	if err := rec.Parameters.Set(raw); err != nil {
		return nil, fmt.Errorf("could not encode parameters: %w", err)
	}

	if rec.Series, err = encodeSeries(table); err != nil {
		return nil, err
	}
	return rec, nil
}

// RunView is the API representation of an archived run.
type RunView struct {
	ID                   uuid.UUID       `json:"id"`
	CreatedAt            time.Time       `json:"created_at"`
	Kind                 string          `json:"kind"`
	Method               string          `json:"method"`
	Parameters           json.RawMessage `json:"parameters"`
	ElapsedMS            int64           `json:"elapsed_ms"`
	Samples              int             `json:"samples"`
	PeakDisplacement     float64         `json:"peak_displacement"`
	Ductility            *float64        `json:"ductility_demand,omitempty"`
	NormalizedResidual   *float64        `json:"normalized_residual,omitempty"`
	Periods              []float64       `json:"periods,omitempty"`
	SpectralDisplacement spectrum.Values `json:"spectral_displacement,omitempty"`
	Series               *Series         `json:"series,omitempty"`
}

// View decodes the record. withSeries also decodes the stored histories.
func (r *RunRecord) View(withSeries bool) (*RunView, error) {
	v := &RunView{
		ID:                 r.ID,
		CreatedAt:          r.CreatedAt,
		Kind:               r.Kind,
		Method:             r.Method,
		ElapsedMS:          r.ElapsedMS,
		Samples:            r.Samples,
		PeakDisplacement:   r.PeakDisplacement,
		Ductility:          r.Ductility,
		NormalizedResidual: r.NormalizedResidual,
	}
	if r.Parameters.Status == pgtype.Present {
		v.Parameters = json.RawMessage(r.Parameters.Bytes)
	}
	if r.Periods.Status == pgtype.Present {
		if err := r.Periods.AssignTo(&v.Periods); err != nil {
			return nil, fmt.Errorf("could not decode periods: %w", err)
		}
	}
	if r.SpectralDisplacement.Status == pgtype.Present {
		var sd []float64
		if err := r.SpectralDisplacement.AssignTo(&sd); err != nil {
			return nil, fmt.Errorf("could not decode spectral displacement: %w", err)
		}
		v.SpectralDisplacement = sd
	}
	if withSeries && len(r.Series) > 0 {
		s, err := decodeSeries(r.Series)
		if err != nil {
			return nil, err
		}
		v.Series = s
	}
	return v, nil
}
