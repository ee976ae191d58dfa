// Package plot renders analysis results as PNG figures.
package plot

import (
	"fmt"
	"io"
	"math"

	"github.com/chrissnell/sdofresponse/internal/epp"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/chrissnell/sdofresponse/internal/spectrum"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	// maxPoints bounds the vertices drawn per line.
	maxPoints = 4000
	dpi       = 96
)

var (
	panelWidth  = 8 * vg.Inch
	panelHeight = 3 * vg.Inch
)

// TimeHistory draws displacement, velocity and, when present, acceleration
// against time in stacked panels.
func TimeHistory(w io.Writer, resp *sdof.Response) error {
	type panel struct {
		label string
		ys    []float64
	}
	panels := []panel{
		{"u (m)", resp.U},
		{"v (m/s)", resp.V},
	}
	if resp.HasAcceleration() {
		panels = append(panels, panel{"a (m/s²)", resp.A})
	}

	plots := make([][]*plot.Plot, len(panels))
	for i, panel := range panels {
		p, err := linePlot("", "t (s)", panel.label, resp.Time, panel.ys)
		if err != nil {
			return err
		}
		plots[i] = []*plot.Plot{p}
	}
	plots[0][0].Title.Text = "Time history"
	return writeTiles(w, plots)
}

// Spectrum draws the displacement spectrum. Unstable periods are left out.
func Spectrum(w io.Writer, res *spectrum.Result) error {
	var xs, ys []float64
	for i, tn := range res.Periods {
		if res.Valid(i) {
			xs = append(xs, tn)
			ys = append(ys, res.Displacement[i])
		}
	}
	if len(xs) == 0 {
		return fmt.Errorf("spectrum has no stable periods to draw")
	}

	title := fmt.Sprintf("Displacement spectrum, %s, ζ = %g", res.Method, res.Damping)
	p, err := linePlot(title, "Tn (s)", "Sd (m)", xs, ys)
	if err != nil {
		return err
	}
	return writeTiles(w, [][]*plot.Plot{{p}})
}

// Hysteresis draws the normalized displacement history above the normalized
// force-displacement loop.
func Hysteresis(w io.Writer, res *epp.Result) error {
	title := fmt.Sprintf("Ry = %g, μ = %.3g", res.Capacity.StrengthReduction, res.Metrics.Ductility)
	history, err := linePlot(title, "t (s)", "u/uy", res.Time, res.NormalizedDisplacement)
	if err != nil {
		return err
	}
	loop, err := linePlot("", "u/uy", "fs/Fy", res.NormalizedDisplacement, res.NormalizedForce)
	if err != nil {
		return err
	}
	return writeTiles(w, [][]*plot.Plot{{history}, {loop}})
}

func linePlot(title, xlabel, ylabel string, xs, ys []float64) (*plot.Plot, error) {
	if len(xs) != len(ys) || len(xs) == 0 {
		return nil, fmt.Errorf("plot data invalid: %d x values, %d y values", len(xs), len(ys))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(decimate(xs, ys, maxPoints))
	if err != nil {
		return nil, err
	}
	line.LineStyle.Width = vg.Points(1)
	p.Add(line)
	return p, nil
}

// decimate keeps every k-th point so at most limit points remain, always
// keeping the last one.
func decimate(xs, ys []float64, limit int) plotter.XYs {
	stride := int(math.Ceil(float64(len(xs)) / float64(limit)))
	if stride < 1 {
		stride = 1
	}
	pts := make(plotter.XYs, 0, len(xs)/stride+1)
	for i := 0; i < len(xs); i += stride {
		pts = append(pts, plotter.XY{X: xs[i], Y: ys[i]})
	}
	if last := len(xs) - 1; last%stride != 0 {
		pts = append(pts, plotter.XY{X: xs[last], Y: ys[last]})
	}
	return pts
}

func writeTiles(w io.Writer, plots [][]*plot.Plot) error {
	rows := len(plots)
	c := vgimg.NewWith(
		vgimg.UseWH(panelWidth, panelHeight*vg.Length(rows)),
		vgimg.UseDPI(dpi),
	)
	dc := draw.New(c)

	tiles := draw.Tiles{
		Rows: rows,
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter * 3,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return nil
}
