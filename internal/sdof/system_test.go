package sdof

import (
	"errors"
	"math"
	"testing"

	"go.uber.org/multierr"
)

func TestSystemDerivedQuantities(t *testing.T) {
	tests := []struct {
		name    string
		sys     System
		omega   float64
		k       float64
		c       float64
		epsilon float64
	}{
		{
			name:    "unit mass one second",
			sys:     System{Mass: 1, Damping: 0.05, Period: 1},
			omega:   2 * math.Pi,
			k:       4 * math.Pi * math.Pi,
			c:       2 * 0.05 * 2 * math.Pi,
			epsilon: 1e-12,
		},
		{
			name:    "heavy undamped",
			sys:     System{Mass: 250, Damping: 0, Period: 0.5},
			omega:   4 * math.Pi,
			k:       16 * math.Pi * math.Pi * 250,
			c:       0,
			epsilon: 1e-9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sys.Omega(); math.Abs(got-tt.omega) > tt.epsilon {
				t.Errorf("Omega() = %v, want %v", got, tt.omega)
			}
			if got := tt.sys.Stiffness(); math.Abs(got-tt.k) > tt.epsilon {
				t.Errorf("Stiffness() = %v, want %v", got, tt.k)
			}
			if got := tt.sys.DampingCoefficient(); math.Abs(got-tt.c) > tt.epsilon {
				t.Errorf("DampingCoefficient() = %v, want %v", got, tt.c)
			}
		})
	}
}

func TestSystemValidate(t *testing.T) {
	tests := []struct {
		name       string
		sys        System
		violations int
	}{
		{"valid", System{Mass: 1, Damping: 0.05, Period: 1}, 0},
		{"zero damping allowed", System{Mass: 1, Damping: 0, Period: 1}, 0},
		{"critical damping rejected", System{Mass: 1, Damping: 1, Period: 1}, 1},
		{"negative mass", System{Mass: -1, Damping: 0.05, Period: 1}, 1},
		{"nan period", System{Mass: 1, Damping: 0.05, Period: math.NaN()}, 1},
		{"everything wrong", System{Mass: 0, Damping: -0.1, Period: math.Inf(1)}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sys.Validate()
			if got := len(multierr.Errors(err)); got != tt.violations {
				t.Fatalf("Validate() reported %d violations (%v), want %d", got, err, tt.violations)
			}
			if tt.violations > 0 && !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("Validate() error %v does not match ErrInvalidParameter", err)
			}
		})
	}
}

func TestParameterErrorMatching(t *testing.T) {
	err := ValidateStrengthReduction(0)
	var perr *ParameterError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParameterError, got %T", err)
	}
	if perr.Name != "strength_reduction" {
		t.Errorf("Name = %q", perr.Name)
	}
	if !IsInputError(err) {
		t.Error("IsInputError() = false for a rejected parameter")
	}
	if IsInputError(errors.New("disk full")) {
		t.Error("IsInputError() = true for an unrelated error")
	}
}

func TestResponsePeaks(t *testing.T) {
	r := NewResponse([]float64{0, 1, 2}, false)
	copy(r.U, []float64{0.5, -2, 1})
	copy(r.V, []float64{0, 3, -4})

	p := r.Peaks()
	if p.Displacement != 2 || p.Velocity != 4 || p.Acceleration != 0 {
		t.Errorf("Peaks() = %+v", p)
	}

	header, cols := r.Table()
	if len(header) != 3 || len(cols) != 3 {
		t.Errorf("Table() without acceleration returned %d headers, %d columns", len(header), len(cols))
	}
}
