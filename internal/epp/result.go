package epp

import (
	"math"

	"github.com/chrissnell/sdofresponse/internal/sdof"
	"gonum.org/v1/gonum/floats"
)

// Result is the outcome of an inelastic run. Normalized histories are
// u/uy and fs/Fy.
type Result struct {
	Time                   []float64 `json:"time"`
	Displacement           []float64 `json:"displacement"`
	RestoringForce         []float64 `json:"restoring_force"`
	NormalizedDisplacement []float64 `json:"normalized_displacement"`
	NormalizedForce        []float64 `json:"normalized_force"`

	Capacity Capacity      `json:"capacity"`
	Metrics  DemandMetrics `json:"metrics"`
}

// DemandMetrics summarizes the inelastic demand.
type DemandMetrics struct {
	// Ductility is max|u| / uy.
	Ductility float64 `json:"ductility_demand"`
	// ResidualDeformation is the plastic offset u_end − fs_end/k.
	ResidualDeformation float64 `json:"residual_deformation"`
	// NormalizedResidual is |u_end − fs_end/k| / uy.
	NormalizedResidual  float64 `json:"normalized_residual"`
	PeakNormalizedForce float64 `json:"peak_normalized_force"`
	// YieldExcursions counts entries into the yield plateau.
	YieldExcursions int `json:"yield_excursions"`
}

func newResult(time []float64, c Capacity) *Result {
	n := len(time)
	return &Result{
		Time:                   append([]float64(nil), time...),
		Displacement:           make([]float64, n),
		RestoringForce:         make([]float64, n),
		NormalizedDisplacement: make([]float64, n),
		NormalizedForce:        make([]float64, n),
		Capacity:               c,
	}
}

func (r *Result) normalize() {
	floats.ScaleTo(r.NormalizedDisplacement, 1/r.Capacity.YieldDisplacement, r.Displacement)
	floats.ScaleTo(r.NormalizedForce, 1/r.Capacity.YieldForce, r.RestoringForce)
	r.Metrics = Demand(r.Displacement, r.RestoringForce, r.Capacity)
}

// Demand computes the demand metrics of the histories u and fs.
func Demand(u, fs []float64, c Capacity) DemandMetrics {
	if len(u) == 0 {
		return DemandMetrics{}
	}
	end := len(u) - 1
	residual := u[end] - fs[end]/c.Stiffness

	excursions := 0
	yielded := false
	for _, f := range fs {
		atYield := math.Abs(f) >= c.YieldForce
		if atYield && !yielded {
			excursions++
		}
		yielded = atYield
	}

	return DemandMetrics{
		Ductility:           sdof.PeakAbs(u) / c.YieldDisplacement,
		ResidualDeformation: residual,
		NormalizedResidual:  math.Abs(residual) / c.YieldDisplacement,
		PeakNormalizedForce: sdof.PeakAbs(fs) / c.YieldForce,
		YieldExcursions:     excursions,
	}
}

// Table returns column headers and columns for tabular output.
func (r *Result) Table() ([]string, [][]float64) {
	return []string{"time", "displacement", "restoring_force", "normalized_displacement", "normalized_force"},
		[][]float64{r.Time, r.Displacement, r.RestoringForce, r.NormalizedDisplacement, r.NormalizedForce}
}
