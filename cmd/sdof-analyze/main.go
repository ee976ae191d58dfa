// sdof-analyze runs a single analysis on a ground-motion record file and
// writes the result as JSON, CSV or a terminal summary, optionally with a
// PNG chart.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/chrissnell/sdofresponse/internal/constants"
	"github.com/chrissnell/sdofresponse/internal/groundmotion"
	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/log"
	"github.com/chrissnell/sdofresponse/internal/plot"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/chrissnell/sdofresponse/pkg/responseformat"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
)

type options struct {
	record   string
	units    string
	gravity  float64
	kind     string
	method   string
	system   sdof.System
	ry       float64
	preset   string
	params   integrator.Params
	dt       float64
	periods  string
	format   string
	out      string
	plotFile string
	debug    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("sdof-analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.record, "record", "", "Path to the ground-motion record: two columns, time and acceleration (required)")
	fs.StringVar(&o.units, "units", "g", "Acceleration units of the record: 'g' or 'ms2'")
	fs.Float64Var(&o.gravity, "gravity", constants.Gravity, "Gravitational acceleration used to convert records in g")
	fs.StringVar(&o.kind, "analysis", "timehistory", "Analysis to run: timehistory, spectrum, inelastic or resample")
	fs.StringVar(&o.method, "method", "newmark", "Integration method: central_difference, newmark, interpolation_excitation or kr_alpha")
	fs.Float64Var(&o.system.Mass, "mass", 1, "Oscillator mass")
	fs.Float64Var(&o.system.Damping, "damping", 0.05, "Damping ratio")
	fs.Float64Var(&o.system.Period, "period", 1, "Natural period in seconds")
	fs.Float64Var(&o.ry, "ry", 4, "Strength reduction factor for inelastic analysis")
	fs.StringVar(&o.preset, "newmark", "", "Newmark variant: 'average' or 'linear'")
	fs.Float64Var(&o.params.Gamma, "gamma", 0, "Newmark gamma (default 1/2)")
	fs.Float64Var(&o.params.Beta, "beta", 0, "Newmark beta (default 1/4)")
	fs.Float64Var(&o.params.Rho, "rho", 0, "KR-alpha spectral radius at infinite frequency (default 1)")
	fs.Float64Var(&o.dt, "dt", 0, "Working time step; defaults to the analysis default")
	fs.StringVar(&o.periods, "periods", "", "Spectrum period grid as start:end:step")
	fs.StringVar(&o.format, "format", "", "Output format: json, csv or summary (default summary on a terminal, json otherwise)")
	fs.StringVar(&o.out, "out", "", "Write the result to this file instead of stdout")
	fs.StringVar(&o.plotFile, "plot", "", "Also write a PNG chart to this file")
	fs.BoolVar(&o.debug, "debug", false, "Turn on debugging output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.record == "" {
		fs.Usage()
		return nil, fmt.Errorf("-record is required")
	}
	if o.preset != "" {
		p, err := integrator.NewmarkPreset(o.preset)
		if err != nil {
			return nil, err
		}
		o.params.Gamma, o.params.Beta = p.Gamma, p.Beta
	}
	o.params = o.params.WithDefaults()
	return o, nil
}

func (o *options) settings() (analysis.Settings, error) {
	s := analysis.DefaultSettings()
	if o.dt > 0 {
		s.TimeHistoryDt, s.SpectrumDt, s.InelasticDt = o.dt, o.dt, o.dt
	}
	if o.periods != "" {
		var err error
		if _, err = fmt.Sscanf(strings.ReplaceAll(o.periods, ":", " "), "%g %g %g", &s.Grid.Start, &s.Grid.End, &s.Grid.Step); err != nil {
			return s, fmt.Errorf("invalid -periods %q: want start:end:step", o.periods)
		}
	}
	return s, nil
}

func (o *options) load() (*groundmotion.Record, error) {
	switch o.units {
	case "g":
		return groundmotion.ParseFile(o.record, o.gravity)
	case "ms2", "m/s2":
		return groundmotion.ParseFile(o.record, 1)
	}
	return nil, fmt.Errorf("unknown units %q: use 'g' or 'ms2'", o.units)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	logger := zap.NewNop().Sugar()
	if o.debug {
		if err := log.Init(true); err != nil {
			return err
		}
		defer log.Sync()
		logger = log.GetSugaredLogger()
	}

	rec, err := o.load()
	if err != nil {
		return err
	}
	settings, err := o.settings()
	if err != nil {
		return err
	}
	engine, err := analysis.NewEngine(settings, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	m, err := integrator.ParseMethod(o.method)
	if err != nil {
		return err
	}

	started := time.Now()
	var result responseformat.Tabular
	var chart func(io.Writer) error
	var summary [][2]string

	switch o.kind {
	case "timehistory":
		res, err := engine.TimeHistory(ctx, analysis.TimeHistoryRequest{Record: rec, Method: m, System: o.system, Params: o.params})
		if err != nil {
			return err
		}
		result = res
		chart = func(w io.Writer) error { return plot.TimeHistory(w, res.Response) }
		summary = [][2]string{
			{"samples", humanize.Comma(int64(res.Len()))},
			{"peak displacement", humanize.SIWithDigits(res.Peaks.Displacement, 3, "m")},
			{"peak velocity", humanize.SIWithDigits(res.Peaks.Velocity, 3, "m/s")},
		}
		if res.HasAcceleration() {
			summary = append(summary, [2]string{"peak acceleration", humanize.SIWithDigits(res.Peaks.Acceleration, 3, "m/s²")})
		}
	case "spectrum":
		res, err := engine.Spectrum(ctx, analysis.SpectrumRequest{Record: rec, Method: m, Damping: o.system.Damping, Params: o.params})
		if err != nil {
			return err
		}
		result = res
		chart = func(w io.Writer) error { return plot.Spectrum(w, res.Result) }
		summary = [][2]string{
			{"periods", humanize.Comma(int64(len(res.Periods)))},
			{"peak Sd", humanize.SIWithDigits(res.Summary.PeakDisplacement, 3, "m")},
			{"at period", humanize.FtoaWithDigits(res.Summary.PeakPeriod, 3) + " s"},
			{"mean Sd", humanize.SIWithDigits(res.Summary.MeanDisplacement, 3, "m")},
			{"unstable periods", humanize.Comma(int64(res.Summary.Unstable))},
		}
	case "inelastic":
		res, err := engine.Inelastic(ctx, analysis.InelasticRequest{Record: rec, Method: m, System: o.system, StrengthReduction: o.ry, Params: o.params})
		if err != nil {
			return err
		}
		result = res
		chart = func(w io.Writer) error { return plot.Hysteresis(w, res.Result) }
		summary = [][2]string{
			{"samples", humanize.Comma(int64(len(res.Time)))},
			{"yield force", humanize.SIWithDigits(res.Capacity.YieldForce, 3, "N")},
			{"yield displacement", humanize.SIWithDigits(res.Capacity.YieldDisplacement, 3, "m")},
			{"ductility demand", humanize.FtoaWithDigits(res.Metrics.Ductility, 3)},
			{"normalized residual", humanize.FtoaWithDigits(res.Metrics.NormalizedResidual, 3)},
			{"yield excursions", humanize.Comma(int64(res.Metrics.YieldExcursions))},
		}
	case "resample":
		dt := o.dt
		if dt == 0 {
			dt = settings.TimeHistoryDt
		}
		res, err := engine.Resample(rec, dt)
		if err != nil {
			return err
		}
		result = res
		st := res.Stats()
		summary = [][2]string{
			{"samples", humanize.Comma(int64(st.Samples))},
			{"duration", humanize.FtoaWithDigits(st.Duration, 4) + " s"},
			{"peak acceleration", humanize.SIWithDigits(st.PeakAccel, 3, "m/s²")},
			{"rms acceleration", humanize.SIWithDigits(st.RMSAccel, 3, "m/s²")},
		}
	default:
		return fmt.Errorf("unknown analysis %q", o.kind)
	}
	summary = append(summary, [2]string{"elapsed", time.Since(started).Round(time.Millisecond).String()})

	if o.plotFile != "" {
		if chart == nil {
			return fmt.Errorf("no chart for %s", o.kind)
		}
		if err := writeFile(o.plotFile, chart); err != nil {
			return err
		}
	}

	write := func(w io.Writer) error { return output(w, o.format, result, summary) }
	if o.out != "" {
		return writeFile(o.out, write)
	}
	if o.format == "" && !isTerminal(stdout) {
		o.format = "json"
	}
	return write(stdout)
}

func output(w io.Writer, format string, result responseformat.Tabular, summary [][2]string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "csv":
		return responseformat.WriteCSV(w, result)
	case "", "summary":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, line := range summary {
			fmt.Fprintf(tw, "%s:\t%s\n", line[0], line[1])
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown format %q", format)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "wrote %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
