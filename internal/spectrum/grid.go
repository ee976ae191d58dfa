package spectrum

import (
	"github.com/chrissnell/sdofresponse/internal/constants"
	"github.com/chrissnell/sdofresponse/internal/groundmotion"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"
)

// Grid is the half-open period range [Start, End) sampled every Step seconds.
type Grid struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Step  float64 `json:"step" yaml:"step"`
}

// DefaultGrid is 0.01 s to 2.99 s in 0.01 s steps: 299 periods.
func DefaultGrid() Grid {
	return Grid{
		Start: constants.DefaultPeriodStart,
		End:   constants.DefaultPeriodEnd,
		Step:  constants.DefaultPeriodStep,
	}
}

// Validate checks that the grid holds at least one positive period.
func (g Grid) Validate() error {
	var err error
	err = multierr.Append(err, sdof.Positive("period_start", g.Start))
	err = multierr.Append(err, sdof.Positive("period_step", g.Step))
	if !(g.End > g.Start) {
		err = multierr.Append(err, sdof.Invalid("period_end", g.End, "must exceed period_start"))
	}
	return err
}

// Periods returns the grid points.
func (g Grid) Periods() []float64 {
	n := groundmotion.GridLen(g.Start, g.End, g.Step)
	switch n {
	case 0:
		return nil
	case 1:
		return []float64{g.Start}
	}
	return floats.Span(make([]float64, n), g.Start, g.Start+float64(n-1)*g.Step)
}
