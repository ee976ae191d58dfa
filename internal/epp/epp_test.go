package epp

import (
	"errors"
	"math"
	"testing"

	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/sdof"
)

// pulseRecord is a two-cycle sine pulse followed by free vibration.
func pulseRecord(dt, duration, amplitude float64) (time, accel []float64) {
	n := int(duration / dt)
	time = make([]float64, n)
	accel = make([]float64, n)
	for i := range time {
		t := float64(i) * dt
		time[i] = t
		if t < 1.0 {
			accel[i] = amplitude * math.Sin(2*math.Pi*2*t)
		}
	}
	return time, accel
}

var inelasticMethods = []struct {
	method integrator.Method
	params integrator.Params
}{
	{integrator.CentralDifference, integrator.Params{}},
	{integrator.Newmark, integrator.AverageAcceleration()},
	{integrator.KRAlpha, integrator.Params{Rho: 1}},
}

func TestBilinearForce(t *testing.T) {
	b := NewBilinear(integrator.NewLinear(100), 5)

	tests := []struct {
		name              string
		fsOld, uOld, uNew float64
		want              float64
	}{
		{"elastic loading", 0, 0, 0.02, 2},
		{"yields in tension", 4, 0.04, 0.06, 5},
		{"yields in compression", -4, -0.04, -0.1, -5},
		{"stays on the plateau", 5, 0.2, 0.3, 5},
		{"unloads elastically from the plateau", 5, 0.3, 0.28, 3},
		{"reverses through zero", 5, 0.3, 0.2, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Force(tt.fsOld, tt.uOld, tt.uNew); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Force(%v, %v, %v) = %v, want %v", tt.fsOld, tt.uOld, tt.uNew, got, tt.want)
			}
		})
	}
	if b.Stiffness() != 100 {
		t.Errorf("Stiffness() = %v", b.Stiffness())
	}
}

func TestUnitStrengthReductionStaysElastic(t *testing.T) {
	sys := sdof.System{Mass: 1, Damping: 0.05, Period: 0.5}
	time, accel := pulseRecord(0.001, 4, 3)

	for _, m := range inelasticMethods {
		t.Run(string(m.method), func(t *testing.T) {
			res, err := Integrate(m.method, sys, 1, m.params, accel, time)
			if err != nil {
				t.Fatalf("Integrate() error = %v", err)
			}
			if math.Abs(res.Metrics.Ductility-1) > 1e-6 {
				t.Errorf("ductility = %v, want 1", res.Metrics.Ductility)
			}
			if res.Metrics.NormalizedResidual > 1e-6 {
				t.Errorf("normalized residual = %v, want 0", res.Metrics.NormalizedResidual)
			}
		})
	}
}

func TestYieldingSystem(t *testing.T) {
	sys := sdof.System{Mass: 1, Damping: 0.05, Period: 0.5}
	time, accel := pulseRecord(0.001, 6, 3)

	ductility := make(map[integrator.Method]float64)
	for _, m := range inelasticMethods {
		t.Run(string(m.method), func(t *testing.T) {
			res, err := Integrate(m.method, sys, 4, m.params, accel, time)
			if err != nil {
				t.Fatalf("Integrate() error = %v", err)
			}

			c := res.Capacity
			if math.Abs(c.YieldForce*4-c.ElasticForce) > 1e-9*c.ElasticForce {
				t.Errorf("Fy = %v, elastic force = %v", c.YieldForce, c.ElasticForce)
			}
			if math.Abs(c.YieldDisplacement*c.Stiffness-c.YieldForce) > 1e-9*c.YieldForce {
				t.Errorf("uy = %v inconsistent with Fy = %v", c.YieldDisplacement, c.YieldForce)
			}

			for i, f := range res.NormalizedForce {
				if math.Abs(f) > 1+1e-12 {
					t.Fatalf("|fs/Fy| = %v at sample %d", math.Abs(f), i)
				}
			}
			if math.Abs(res.Metrics.PeakNormalizedForce-1) > 1e-12 {
				t.Errorf("peak normalized force = %v, want 1", res.Metrics.PeakNormalizedForce)
			}
			if res.Metrics.Ductility <= 1 {
				t.Errorf("ductility = %v, want > 1", res.Metrics.Ductility)
			}
			if res.Metrics.YieldExcursions == 0 {
				t.Error("no yield excursions recorded")
			}
			if len(res.NormalizedDisplacement) != len(time) {
				t.Errorf("history length = %d, want %d", len(res.NormalizedDisplacement), len(time))
			}
			ductility[m.method] = res.Metrics.Ductility
		})
	}

	ref := ductility[integrator.Newmark]
	for m, mu := range ductility {
		if math.Abs(mu-ref)/ref > 0.1 {
			t.Errorf("%s ductility %v differs from Newmark %v", m, mu, ref)
		}
	}
}

func TestInelasticRejects(t *testing.T) {
	sys := sdof.System{Mass: 1, Damping: 0.05, Period: 0.5}
	time, accel := pulseRecord(0.001, 2, 1)
	quiet := make([]float64, len(time))

	tests := []struct {
		name   string
		method integrator.Method
		ry     float64
		accel  []float64
		target error
	}{
		{"zero strength reduction", integrator.Newmark, 0, accel, sdof.ErrInvalidParameter},
		{"negative strength reduction", integrator.KRAlpha, -2, accel, sdof.ErrInvalidParameter},
		{"interpolation has no inelastic form", integrator.InterpolationExcitation, 2, accel, sdof.ErrUnsupportedMethod},
		{"no ground motion", integrator.CentralDifference, 2, quiet, sdof.ErrNoElasticDemand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Integrate(tt.method, sys, tt.ry, integrator.Params{}, tt.accel, time); !errors.Is(err, tt.target) {
				t.Errorf("Integrate() error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestDemand(t *testing.T) {
	c := Capacity{Stiffness: 10, YieldForce: 1, YieldDisplacement: 0.1}
	u := []float64{0, 0.1, 0.3, 0.25, 0.05, -0.2, -0.15}
	fs := []float64{0, 1, 1, 0.5, -1, -1, -0.5}

	d := Demand(u, fs, c)
	if math.Abs(d.Ductility-3) > 1e-12 {
		t.Errorf("Ductility = %v, want 3", d.Ductility)
	}
	if math.Abs(d.ResidualDeformation-(-0.1)) > 1e-12 {
		t.Errorf("ResidualDeformation = %v, want -0.1", d.ResidualDeformation)
	}
	if math.Abs(d.NormalizedResidual-1) > 1e-12 {
		t.Errorf("NormalizedResidual = %v, want 1", d.NormalizedResidual)
	}
	if d.YieldExcursions != 2 {
		t.Errorf("YieldExcursions = %d, want 2", d.YieldExcursions)
	}
}
