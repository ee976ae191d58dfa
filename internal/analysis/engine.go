// Package analysis is the entry point shared by the REST and gRPC
// controllers and the command-line tools. It resamples records onto each
// analysis's working step, runs the integrators and hands finished runs to
// an optional archive.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/chrissnell/sdofresponse/internal/constants"
	"github.com/chrissnell/sdofresponse/internal/epp"
	"github.com/chrissnell/sdofresponse/internal/groundmotion"
	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/chrissnell/sdofresponse/internal/spectrum"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Settings are the working steps and sweep limits of the engine.
type Settings struct {
	TimeHistoryDt float64
	SpectrumDt    float64
	InelasticDt   float64
	TailSeconds   float64
	Grid          spectrum.Grid
	Workers       int
}

// DefaultSettings returns the standard working steps and period grid.
func DefaultSettings() Settings {
	return Settings{
		TimeHistoryDt: constants.DefaultTimeHistoryDt,
		SpectrumDt:    constants.DefaultSpectrumDt,
		InelasticDt:   constants.DefaultInelasticDt,
		TailSeconds:   constants.DefaultTailSeconds,
		Grid:          spectrum.DefaultGrid(),
	}
}

// Validate reports every invalid setting.
func (s Settings) Validate() error {
	var err error
	err = multierr.Append(err, sdof.Positive("time_history_dt", s.TimeHistoryDt))
	err = multierr.Append(err, sdof.Positive("spectrum_dt", s.SpectrumDt))
	err = multierr.Append(err, sdof.Positive("inelastic_dt", s.InelasticDt))
	if !(s.TailSeconds >= 0) {
		err = multierr.Append(err, sdof.Invalid("tail_seconds", s.TailSeconds, "must not be negative"))
	}
	err = multierr.Append(err, s.Grid.Validate())
	return err
}

// Recorder archives finished runs.
type Recorder interface {
	Record(ctx context.Context, run *Run) error
}

// Engine runs analyses. It is safe for concurrent use.
type Engine struct {
	settings Settings
	sweeper  *spectrum.Sweeper
	recorder Recorder
	logger   *zap.SugaredLogger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRecorder archives every successful run through r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine validates settings and starts the spectrum workers.
func NewEngine(settings Settings, logger *zap.SugaredLogger, opts ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis settings: %w", err)
	}
	sweeper, err := spectrum.NewSweeper(settings.Workers, settings.Grid)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		settings: settings,
		sweeper:  sweeper,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close stops the spectrum workers.
func (e *Engine) Close() {
	e.sweeper.Release()
}

// Settings returns the engine's settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Resample places rec on a uniform grid of step dt.
func (e *Engine) Resample(rec *groundmotion.Record, dt float64) (*groundmotion.Record, error) {
	return groundmotion.Resample(rec, dt)
}

// TimeHistoryRequest asks for the linear response of one oscillator.
type TimeHistoryRequest struct {
	Record *groundmotion.Record
	Method integrator.Method
	System sdof.System
	Params integrator.Params
}

// TimeHistoryResult is a linear time history.
type TimeHistoryResult struct {
	RunID  uuid.UUID         `json:"run_id"`
	Method integrator.Method `json:"method"`
	System sdof.System       `json:"system"`
	Peaks  sdof.Peaks        `json:"peaks"`
	*sdof.Response
}

// TimeHistory resamples the record at the time-history step and integrates it.
func (e *Engine) TimeHistory(ctx context.Context, req TimeHistoryRequest) (*TimeHistoryResult, error) {
	started := time.Now()
	res, err := abandonable(ctx, func() (*TimeHistoryResult, error) {
		rec, err := groundmotion.Resample(req.Record, e.settings.TimeHistoryDt)
		if err != nil {
			return nil, err
		}
		resp, err := integrator.Integrate(req.Method, req.System, req.Params, rec.Accel, rec.Time)
		if err != nil {
			return nil, err
		}
		return &TimeHistoryResult{
			RunID:    uuid.New(),
			Method:   req.Method,
			System:   req.System,
			Peaks:    resp.Peaks(),
			Response: resp,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Infow("time history complete",
		"run", res.RunID, "method", req.Method, "period", req.System.Period,
		"samples", res.Len(), "peak_displacement", res.Peaks.Displacement,
		"elapsed", time.Since(started))
	e.archive(ctx, &Run{
		ID:          res.RunID,
		Kind:        KindTimeHistory,
		Method:      req.Method,
		System:      req.System,
		Params:      req.Params,
		Started:     started,
		Elapsed:     time.Since(started),
		TimeHistory: res,
	})
	return res, nil
}

// SpectrumRequest asks for a displacement response spectrum.
type SpectrumRequest struct {
	Record  *groundmotion.Record
	Method  integrator.Method
	Damping float64
	Params  integrator.Params
}

// SpectrumResult is a response spectrum.
type SpectrumResult struct {
	RunID   uuid.UUID        `json:"run_id"`
	Summary spectrum.Summary `json:"summary"`
	*spectrum.Result
}

// Spectrum resamples the record at the spectrum step and sweeps the period grid.
func (e *Engine) Spectrum(ctx context.Context, req SpectrumRequest) (*SpectrumResult, error) {
	started := time.Now()
	rec, err := groundmotion.Resample(req.Record, e.settings.SpectrumDt)
	if err != nil {
		return nil, err
	}
	sp, err := e.sweeper.Compute(ctx, req.Method, req.Damping, req.Params, rec.Accel, rec.Time)
	if err != nil {
		return nil, err
	}
	res := &SpectrumResult{RunID: uuid.New(), Summary: sp.Summary(), Result: sp}

	e.logger.Infow("spectrum complete",
		"run", res.RunID, "method", req.Method, "damping", req.Damping,
		"periods", len(sp.Periods), "unstable", res.Summary.Unstable,
		"elapsed", time.Since(started))
	e.archive(ctx, &Run{
		ID:       res.RunID,
		Kind:     KindSpectrum,
		Method:   req.Method,
		System:   sdof.System{Mass: 1, Damping: req.Damping},
		Params:   req.Params,
		Started:  started,
		Elapsed:  time.Since(started),
		Spectrum: res,
	})
	return res, nil
}

// InelasticRequest asks for an elastic-perfectly-plastic time history.
type InelasticRequest struct {
	Record            *groundmotion.Record
	Method            integrator.Method
	System            sdof.System
	StrengthReduction float64
	Params            integrator.Params
}

// InelasticResult is an elastic-perfectly-plastic time history.
type InelasticResult struct {
	RunID  uuid.UUID         `json:"run_id"`
	Method integrator.Method `json:"method"`
	System sdof.System       `json:"system"`
	*epp.Result
}

// Inelastic resamples the record at the inelastic step, pads a tail of zero
// acceleration, and runs calibration followed by the nonlinear pass.
func (e *Engine) Inelastic(ctx context.Context, req InelasticRequest) (*InelasticResult, error) {
	started := time.Now()
	res, err := abandonable(ctx, func() (*InelasticResult, error) {
		rec, err := groundmotion.Resample(req.Record, e.settings.InelasticDt)
		if err != nil {
			return nil, err
		}
		if rec, err = groundmotion.PadTail(rec, e.settings.TailSeconds); err != nil {
			return nil, err
		}
		r, err := epp.Integrate(req.Method, req.System, req.StrengthReduction, req.Params, rec.Accel, rec.Time)
		if err != nil {
			return nil, err
		}
		return &InelasticResult{RunID: uuid.New(), Method: req.Method, System: req.System, Result: r}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Infow("inelastic analysis complete",
		"run", res.RunID, "method", req.Method, "period", req.System.Period,
		"ry", req.StrengthReduction, "ductility", res.Metrics.Ductility,
		"elapsed", time.Since(started))
	e.archive(ctx, &Run{
		ID:                res.RunID,
		Kind:              KindInelastic,
		Method:            req.Method,
		System:            req.System,
		Params:            req.Params,
		StrengthReduction: req.StrengthReduction,
		Started:           started,
		Elapsed:           time.Since(started),
		Inelastic:         res,
	})
	return res, nil
}

// archive hands a run to the recorder. Archive failures never fail the analysis.
func (e *Engine) archive(ctx context.Context, run *Run) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, run); err != nil {
		e.logger.Warnw("could not archive run", "run", run.ID, "kind", run.Kind, "error", err)
	}
}

// abandonable runs fn and returns early with ctx.Err() if ctx ends first.
// The abandoned computation finishes in the background and is discarded.
func abandonable[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn()
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
