package spectrum

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/sdof"
)

func decayingSine(n int, dt float64) (time, accel []float64) {
	time = make([]float64, n)
	accel = make([]float64, n)
	for i := range time {
		t := float64(i) * dt
		time[i] = t
		accel[i] = 2 * math.Sin(2*math.Pi*t/0.6) * math.Exp(-0.5*t)
	}
	return time, accel
}

func TestDefaultGrid(t *testing.T) {
	p := DefaultGrid().Periods()
	if len(p) != 299 {
		t.Fatalf("len(Periods()) = %d, want 299", len(p))
	}
	if math.Abs(p[0]-0.01) > 1e-12 || math.Abs(p[len(p)-1]-2.99) > 1e-9 {
		t.Errorf("grid spans %v to %v", p[0], p[len(p)-1])
	}
	if err := (Grid{Start: 1, End: 0.5, Step: 0.1}).Validate(); !errors.Is(err, sdof.ErrInvalidParameter) {
		t.Errorf("inverted grid: Validate() = %v", err)
	}
}

func TestZeroRecordGivesZeroSpectrum(t *testing.T) {
	time := make([]float64, 1000)
	for i := range time {
		time[i] = float64(i) * 0.001
	}
	accel := make([]float64, len(time))

	res, err := Compute(context.Background(), integrator.Newmark, 0.05, integrator.Params{}, accel, time)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if len(res.Displacement) != 299 {
		t.Fatalf("len(Displacement) = %d, want 299", len(res.Displacement))
	}
	for i, d := range res.Displacement {
		if d != 0 {
			t.Fatalf("Sd(%v) = %v, want 0", res.Periods[i], d)
		}
	}
}

func TestCentralDifferenceUnstablePeriods(t *testing.T) {
	time, accel := decayingSine(500, 0.02)

	s, err := NewSweeper(4, Grid{Start: 0.01, End: 0.2, Step: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Release()

	res, err := s.Compute(context.Background(), integrator.CentralDifference, 0.05, integrator.Params{}, accel, time)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	for i, tn := range res.Periods {
		stable := 0.02 < tn/math.Pi
		if res.Valid(i) != stable {
			t.Errorf("Tn = %v: valid = %v, want %v (Sd = %v)", tn, res.Valid(i), stable, res.Displacement[i])
		}
		if !stable && !math.IsNaN(res.PseudoAcceleration[i]) {
			t.Errorf("Tn = %v: PSA = %v, want NaN", tn, res.PseudoAcceleration[i])
		}
	}

	sum := res.Summary()
	if sum.Unstable != 6 {
		t.Errorf("Summary().Unstable = %d, want 6", sum.Unstable)
	}
	if sum.PeakDisplacement <= 0 || math.IsNaN(sum.MeanDisplacement) {
		t.Errorf("Summary() = %+v", sum)
	}
}

func TestMethodsAgree(t *testing.T) {
	time, accel := decayingSine(4000, 0.001)

	s, err := NewSweeper(2, Grid{Start: 0.1, End: 2, Step: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Release()

	ref, err := s.Compute(context.Background(), integrator.InterpolationExcitation, 0.05, integrator.Params{}, accel, time)
	if err != nil {
		t.Fatal(err)
	}

	for _, m := range []integrator.Method{integrator.CentralDifference, integrator.Newmark, integrator.KRAlpha} {
		res, err := s.Compute(context.Background(), m, 0.05, integrator.Params{}, accel, time)
		if err != nil {
			t.Fatalf("%s: Compute() error = %v", m, err)
		}
		for i := range res.Periods {
			if math.Abs(res.Displacement[i]-ref.Displacement[i]) > 0.01*ref.Displacement[i] {
				t.Errorf("%s at Tn = %v: Sd = %v, interpolation Sd = %v", m, res.Periods[i], res.Displacement[i], ref.Displacement[i])
			}
			w := 2 * math.Pi / res.Periods[i]
			if math.Abs(res.PseudoAcceleration[i]-w*w*res.Displacement[i]) > 1e-9*res.PseudoAcceleration[i] {
				t.Errorf("%s at Tn = %v: PSA = %v inconsistent with Sd", m, res.Periods[i], res.PseudoAcceleration[i])
			}
		}
	}
}

func TestComputeHonoursCancellation(t *testing.T) {
	time, accel := decayingSine(2000, 0.001)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Compute(ctx, integrator.Newmark, 0.05, integrator.Params{}, accel, time); !errors.Is(err, context.Canceled) {
		t.Errorf("Compute() error = %v, want context.Canceled", err)
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	time, accel := decayingSine(100, 0.01)

	if _, err := Compute(context.Background(), integrator.Newmark, 1.2, integrator.Params{}, accel, time); !errors.Is(err, sdof.ErrInvalidParameter) {
		t.Errorf("damping 1.2: error = %v", err)
	}
	if _, err := Compute(context.Background(), integrator.Method("euler"), 0.05, integrator.Params{}, accel, time); !errors.Is(err, sdof.ErrUnsupportedMethod) {
		t.Errorf("unknown method: error = %v", err)
	}
	if _, err := Compute(context.Background(), integrator.Newmark, 0.05, integrator.Params{}, accel[:1], time[:1]); !errors.Is(err, sdof.ErrTooFewSamples) {
		t.Errorf("single sample: error = %v", err)
	}
}

func TestValuesJSON(t *testing.T) {
	in := Values{0.5, math.NaN(), 2}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != "[0.5,null,2]" {
		t.Errorf("Marshal() = %s", data)
	}

	var out Values
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(out) != 3 || out[0] != 0.5 || !math.IsNaN(out[1]) || out[2] != 2 {
		t.Errorf("Unmarshal() = %v", out)
	}
}
