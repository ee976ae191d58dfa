package analysis

import (
	"time"

	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/google/uuid"
)

// Kind names an analysis.
type Kind string

const (
	KindTimeHistory Kind = "timehistory"
	KindSpectrum    Kind = "spectrum"
	KindInelastic   Kind = "inelastic"
)

// Run is a finished analysis handed to the Recorder. Exactly one of the
// result fields is set, matching Kind.
type Run struct {
	ID                uuid.UUID
	Kind              Kind
	Method            integrator.Method
	System            sdof.System
	Params            integrator.Params
	StrengthReduction float64
	Started           time.Time
	Elapsed           time.Duration

	TimeHistory *TimeHistoryResult
	Spectrum    *SpectrumResult
	Inelastic   *InelasticResult
}

// PeakDisplacement returns the headline displacement of the run.
func (r *Run) PeakDisplacement() float64 {
	switch {
	case r.TimeHistory != nil:
		return r.TimeHistory.Peaks.Displacement
	case r.Spectrum != nil:
		return r.Spectrum.Summary.PeakDisplacement
	case r.Inelastic != nil:
		return sdof.PeakAbs(r.Inelastic.Displacement)
	}
	return 0
}
