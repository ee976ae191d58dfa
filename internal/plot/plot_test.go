package plot

import (
	"bytes"
	"math"
	"testing"

	"github.com/chrissnell/sdofresponse/internal/epp"
	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/chrissnell/sdofresponse/internal/spectrum"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestTimeHistory(t *testing.T) {
	resp := sdof.NewResponse(make([]float64, 10000), true)
	for i := range resp.Time {
		resp.Time[i] = float64(i) * 0.001
		resp.U[i] = math.Sin(resp.Time[i])
		resp.V[i] = math.Cos(resp.Time[i])
		resp.A[i] = -resp.U[i]
	}

	var buf bytes.Buffer
	if err := TimeHistory(&buf, resp); err != nil {
		t.Fatalf("TimeHistory() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
		t.Error("output is not a PNG")
	}
}

func TestSpectrumSkipsUnstablePeriods(t *testing.T) {
	res := &spectrum.Result{
		Method:       integrator.CentralDifference,
		Damping:      0.05,
		Periods:      []float64{0.01, 0.02, 0.5, 1.0},
		Displacement: spectrum.Values{math.NaN(), math.NaN(), 0.01, 0.03},
	}

	var buf bytes.Buffer
	if err := Spectrum(&buf, res); err != nil {
		t.Fatalf("Spectrum() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
		t.Error("output is not a PNG")
	}

	res.Displacement = spectrum.Values{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	if err := Spectrum(&buf, res); err == nil {
		t.Error("Spectrum() with no stable periods succeeded")
	}
}

func TestHysteresis(t *testing.T) {
	res := &epp.Result{
		Time:                   []float64{0, 0.1, 0.2, 0.3},
		NormalizedDisplacement: []float64{0, 1, 2, 1},
		NormalizedForce:        []float64{0, 1, 1, 0},
		Capacity:               epp.Capacity{StrengthReduction: 2},
		Metrics:                epp.DemandMetrics{Ductility: 2},
	}

	var buf bytes.Buffer
	if err := Hysteresis(&buf, res); err != nil {
		t.Fatalf("Hysteresis() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
		t.Error("output is not a PNG")
	}
}

func TestDecimate(t *testing.T) {
	xs := make([]float64, 10)
	for i := range xs {
		xs[i] = float64(i)
	}

	pts := decimate(xs, xs, 4)
	if len(pts) != 4 {
		t.Fatalf("len = %d, want 4", len(pts))
	}
	if pts[len(pts)-1].X != 9 {
		t.Errorf("last point = %v, want 9", pts[len(pts)-1].X)
	}
	if got := decimate(xs, xs, 100); len(got) != 10 {
		t.Errorf("no decimation expected, got %d points", len(got))
	}
}
