package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/chrissnell/sdofresponse/internal/constants"
	"github.com/chrissnell/sdofresponse/internal/controllers"
	"github.com/chrissnell/sdofresponse/internal/epp"
	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/log"
	"github.com/chrissnell/sdofresponse/internal/plot"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/chrissnell/sdofresponse/internal/storage/archive"
	"github.com/chrissnell/sdofresponse/pkg/responseformat"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	maxBodyBytes     = 64 << 20
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// errArchiveDisabled is returned by the run endpoints when no archive is configured.
var errArchiveDisabled = errors.New("run archive is not configured")

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(ctrl.config.EnableCORS),
	}
}

// Health reports that the server is up.
func (h *Handlers) Health(w http.ResponseWriter, req *http.Request) {
	h.respond(w, req, map[string]any{
		"status":  "ok",
		"version": constants.Version,
		"archive": h.controller.runs != nil,
	})
}

// GetMethods lists the integration methods and whether each supports
// inelastic analysis.
func (h *Handlers) GetMethods(w http.ResponseWriter, req *http.Request) {
	methods := integrator.Methods()
	out := make([]controllers.MethodInfo, len(methods))
	for i, m := range methods {
		out[i] = controllers.MethodInfo{Name: m, Inelastic: epp.Supported(m)}
	}
	h.respond(w, req, out)
}

// Resample places the posted record on a uniform grid.
func (h *Handlers) Resample(w http.ResponseWriter, req *http.Request) {
	var body controllers.ResampleRequest
	if !h.decode(w, req, &body) {
		return
	}
	rec, err := body.Record.Record(h.controller.gravity)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	out, err := h.controller.engine.Resample(rec, body.Dt)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.respond(w, req, controllers.ResampleResponse{Stats: out.Stats(), Record: out})
}

// TimeHistory runs a linear time history.
func (h *Handlers) TimeHistory(w http.ResponseWriter, req *http.Request) {
	res, err := h.timeHistory(w, req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	if res != nil {
		h.respond(w, req, res)
	}
}

// Spectrum computes a displacement response spectrum.
func (h *Handlers) Spectrum(w http.ResponseWriter, req *http.Request) {
	res, err := h.spectrum(w, req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	if res != nil {
		h.respond(w, req, res)
	}
}

// Inelastic runs an elastic-perfectly-plastic time history.
func (h *Handlers) Inelastic(w http.ResponseWriter, req *http.Request) {
	res, err := h.inelastic(w, req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	if res != nil {
		h.respond(w, req, res)
	}
}

// Plot runs the analysis named in the path and answers with a PNG chart.
func (h *Handlers) Plot(w http.ResponseWriter, req *http.Request) {
	var buf bytes.Buffer
	var err error

	switch mux.Vars(req)["analysis"] {
	case "timehistory":
		var res *analysis.TimeHistoryResult
		if res, err = h.timeHistory(w, req); res != nil {
			err = plot.TimeHistory(&buf, res.Response)
		}
	case "spectrum":
		var res *analysis.SpectrumResult
		if res, err = h.spectrum(w, req); res != nil {
			err = plot.Spectrum(&buf, res.Result)
		}
	case "inelastic":
		var res *analysis.InelasticResult
		if res, err = h.inelastic(w, req); res != nil {
			err = plot.Hysteresis(&buf, res.Result)
		}
	default:
		http.NotFound(w, req)
		return
	}
	if err != nil {
		h.fail(w, req, err)
		return
	}
	if buf.Len() == 0 {
		// the request body was rejected and answered already
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		h.controller.logger.Warnf("could not write plot: %v", err)
	}
}

// GetRun returns one archived run. series=false omits the stored histories.
func (h *Handlers) GetRun(w http.ResponseWriter, req *http.Request) {
	if h.controller.runs == nil {
		h.writeError(w, req, http.StatusServiceUnavailable, errArchiveDisabled)
		return
	}
	id, err := uuid.Parse(mux.Vars(req)["id"])
	if err != nil {
		h.writeError(w, req, http.StatusBadRequest, fmt.Errorf("invalid run id: %w", err))
		return
	}

	rec, err := h.controller.runs.Get(req.Context(), id)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	view, err := rec.View(req.URL.Query().Get("series") != "false")
	if err != nil {
		h.fail(w, req, err)
		return
	}
	if req.URL.Query().Get("format") == "csv" && view.Series != nil {
		h.respond(w, req, view.Series)
		return
	}
	h.respond(w, req, view)
}

// ListRuns returns the most recent archived runs without their histories.
func (h *Handlers) ListRuns(w http.ResponseWriter, req *http.Request) {
	if h.controller.runs == nil {
		h.writeError(w, req, http.StatusServiceUnavailable, errArchiveDisabled)
		return
	}

	q := req.URL.Query()
	kind := q.Get("kind")
	switch analysis.Kind(kind) {
	case "", analysis.KindTimeHistory, analysis.KindSpectrum, analysis.KindInelastic:
	default:
		h.writeError(w, req, http.StatusBadRequest, fmt.Errorf("unknown run kind %q", kind))
		return
	}

	limit := defaultRunsLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxRunsLimit {
			h.writeError(w, req, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxRunsLimit))
			return
		}
		limit = n
	}

	recs, err := h.controller.runs.List(req.Context(), kind, limit)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	views := make([]*archive.RunView, 0, len(recs))
	for i := range recs {
		v, err := recs[i].View(false)
		if err != nil {
			h.fail(w, req, err)
			return
		}
		views = append(views, v)
	}
	h.respond(w, req, views)
}

// GetHTTPLogs returns the recent HTTP request log, oldest first.
func (h *Handlers) GetHTTPLogs(w http.ResponseWriter, req *http.Request) {
	h.respond(w, req, log.GetHTTPLogBuffer().GetEntries())
}

// The analysis helpers return (nil, nil) when the body was rejected and the
// error response has already been written.

func (h *Handlers) timeHistory(w http.ResponseWriter, req *http.Request) (*analysis.TimeHistoryResult, error) {
	var body controllers.TimeHistoryRequest
	if !h.decode(w, req, &body) {
		return nil, nil
	}
	ar, err := body.Analysis(h.controller.gravity)
	if err != nil {
		return nil, err
	}
	return h.controller.engine.TimeHistory(req.Context(), ar)
}

func (h *Handlers) spectrum(w http.ResponseWriter, req *http.Request) (*analysis.SpectrumResult, error) {
	var body controllers.SpectrumRequest
	if !h.decode(w, req, &body) {
		return nil, nil
	}
	ar, err := body.Analysis(h.controller.gravity)
	if err != nil {
		return nil, err
	}
	return h.controller.engine.Spectrum(req.Context(), ar)
}

func (h *Handlers) inelastic(w http.ResponseWriter, req *http.Request) (*analysis.InelasticResult, error) {
	var body controllers.InelasticRequest
	if !h.decode(w, req, &body) {
		return nil, nil
	}
	ar, err := body.Analysis(h.controller.gravity)
	if err != nil {
		return nil, err
	}
	return h.controller.engine.Inelastic(req.Context(), ar)
}

// decode reads a JSON or MessagePack request body into v. On failure it
// writes a 400 response and returns false.
func (h *Handlers) decode(w http.ResponseWriter, req *http.Request, v any) bool {
	body := http.MaxBytesReader(w, req.Body, maxBodyBytes)

	var err error
	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/x-msgpack") {
		dec := msgpack.NewDecoder(body)
		dec.SetCustomStructTag("json")
		err = dec.Decode(v)
	} else {
		dec := json.NewDecoder(body)
		dec.DisallowUnknownFields()
		err = dec.Decode(v)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		h.writeError(w, req, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func (h *Handlers) respond(w http.ResponseWriter, req *http.Request, data any) {
	if err := h.formatter.WriteResponse(w, req, data, nil); err != nil {
		h.controller.logger.Warnf("could not write response to %s: %v", req.URL.Path, err)
	}
}

func (h *Handlers) fail(w http.ResponseWriter, req *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.controller.logger.Errorw("request failed", "path", req.URL.Path, "status", status, "error", err)
	}
	h.writeError(w, req, status, err)
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, status int, err error) {
	if werr := h.formatter.WriteError(w, req, status, err); werr != nil {
		h.controller.logger.Warnf("could not write error response to %s: %v", req.URL.Path, werr)
	}
}

// errorStatus maps an analysis error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case sdof.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, archive.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
