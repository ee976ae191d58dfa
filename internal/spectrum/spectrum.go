// Package spectrum sweeps a grid of natural periods and records the peak
// displacement of a unit-mass oscillator at each one, together with the
// pseudo-velocity and pseudo-acceleration derived from it.
package spectrum

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/stat"
)

// Result is a displacement response spectrum. Periods where the method is
// unstable hold NaN in every ordinate.
type Result struct {
	Method             integrator.Method `json:"method"`
	Damping            float64           `json:"damping"`
	Periods            []float64         `json:"periods"`
	Displacement       Values            `json:"displacement"`
	PseudoVelocity     Values            `json:"pseudo_velocity"`
	PseudoAcceleration Values            `json:"pseudo_acceleration"`
}

// Valid reports whether period i produced a result.
func (r *Result) Valid(i int) bool {
	return !math.IsNaN(r.Displacement[i])
}

// Summary condenses a spectrum.
type Summary struct {
	PeakDisplacement float64 `json:"peak_displacement"`
	PeakPeriod       float64 `json:"peak_period"`
	MeanDisplacement float64 `json:"mean_displacement"`
	Unstable         int     `json:"unstable_periods"`
}

// Summary returns the largest ordinate, its period, the mean over valid
// periods and the number of unstable periods.
func (r *Result) Summary() Summary {
	var s Summary
	valid := make([]float64, 0, len(r.Periods))
	for i, d := range r.Displacement {
		if !r.Valid(i) {
			s.Unstable++
			continue
		}
		valid = append(valid, d)
		if d > s.PeakDisplacement {
			s.PeakDisplacement, s.PeakPeriod = d, r.Periods[i]
		}
	}
	if len(valid) > 0 {
		s.MeanDisplacement = stat.Mean(valid, nil)
	}
	return s
}

// Table returns column headers and columns for tabular output.
func (r *Result) Table() ([]string, [][]float64) {
	return []string{"period", "displacement", "pseudo_velocity", "pseudo_acceleration"},
		[][]float64{r.Periods, r.Displacement, r.PseudoVelocity, r.PseudoAcceleration}
}

// Sweeper computes spectra on a bounded pool of workers shared by all calls.
type Sweeper struct {
	pool *ants.Pool
	grid Grid
}

// NewSweeper starts a pool of workers. workers <= 0 uses GOMAXPROCS.
func NewSweeper(workers int, grid Grid) (*Sweeper, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("could not start spectrum workers: %w", err)
	}
	return &Sweeper{pool: pool, grid: grid}, nil
}

// Grid returns the period grid the sweeper evaluates.
func (s *Sweeper) Grid() Grid {
	return s.grid
}

// Release stops the workers.
func (s *Sweeper) Release() {
	s.pool.Release()
}

// Compute sweeps the grid for method m at damping ratio zeta over the ground
// acceleration accel (m/s²) sampled at the uniform times time. It returns
// ctx.Err() if ctx ends before the sweep completes.
func (s *Sweeper) Compute(ctx context.Context, m integrator.Method, zeta float64, p integrator.Params, accel, time []float64) (*Result, error) {
	if err := (sdof.System{Mass: 1, Damping: zeta, Period: 1}).Validate(); err != nil {
		return nil, err
	}
	dt, err := integrator.TimeStep(time, accel)
	if err != nil {
		return nil, err
	}
	// Surface configuration errors once instead of at every period.
	if _, err := integrator.New(m, integrator.Setup{System: sdof.System{Mass: 1, Damping: zeta, Period: 1e6}, Dt: dt, Params: p}); err != nil {
		return nil, err
	}

	periods := s.grid.Periods()
	res := &Result{
		Method:             m,
		Damping:            zeta,
		Periods:            periods,
		Displacement:       make(Values, len(periods)),
		PseudoVelocity:     make(Values, len(periods)),
		PseudoAcceleration: make(Values, len(periods)),
	}

	f := integrator.Forces(1, accel)
	errs := make([]error, len(periods))
	var wg sync.WaitGroup
	for i, tn := range periods {
		if ctx.Err() != nil {
			break
		}
		i, tn := i, tn
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			res.Displacement[i], errs[i] = peak(m, sdof.System{Mass: 1, Damping: zeta, Period: tn}, p, dt, f)
		})
		if err != nil {
			wg.Done()
			errs[i] = err
			break
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := multierr.Combine(errs...); err != nil {
		return nil, err
	}

	for i, tn := range periods {
		w := 2 * math.Pi / tn
		res.PseudoVelocity[i] = w * res.Displacement[i]
		res.PseudoAcceleration[i] = w * w * res.Displacement[i]
	}
	return res, nil
}

// peak integrates one period. An unstable period yields NaN rather than an error.
func peak(m integrator.Method, sys sdof.System, p integrator.Params, dt float64, f []float64) (float64, error) {
	st, err := integrator.New(m, integrator.Setup{System: sys, Dt: dt, Params: p})
	if errors.Is(err, sdof.ErrUnstable) {
		return math.NaN(), nil
	}
	if err != nil {
		return 0, err
	}
	return integrator.PeakDisplacement(st, f), nil
}

// Compute sweeps the default grid on a temporary pool.
func Compute(ctx context.Context, m integrator.Method, zeta float64, p integrator.Params, accel, time []float64) (*Result, error) {
	s, err := NewSweeper(0, DefaultGrid())
	if err != nil {
		return nil, err
	}
	defer s.Release()
	return s.Compute(ctx, m, zeta, p, accel, time)
}
