package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/chrissnell/sdofresponse/internal/controllers"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/chrissnell/sdofresponse/internal/spectrum"
	"github.com/chrissnell/sdofresponse/internal/storage/archive"
	"github.com/chrissnell/sdofresponse/pkg/config"
	"github.com/chrissnell/sdofresponse/pkg/responseformat"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// memStore archives runs in memory.
type memStore struct {
	mu   sync.Mutex
	runs []*archive.RunRecord
}

func (m *memStore) Record(_ context.Context, run *analysis.Run) error {
	rec, err := archive.FromRun(run)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*archive.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, archive.ErrRunNotFound
}

func (m *memStore) List(_ context.Context, kind string, limit int) ([]archive.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []archive.RunRecord
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if kind == "" || m.runs[i].Kind == kind {
			out = append(out, *m.runs[i])
		}
	}
	return out, nil
}

func newTestController(t *testing.T, sc config.ServerData, withStore bool) (*Controller, *memStore) {
	t.Helper()

	var store *memStore
	var opts []analysis.Option
	if withStore {
		store = &memStore{}
		opts = append(opts, analysis.WithRecorder(store))
	}

	settings := analysis.DefaultSettings()
	settings.TimeHistoryDt = 0.001
	settings.TailSeconds = 1
	settings.Grid = spectrum.Grid{Start: 0.1, End: 1, Step: 0.1}
	settings.Workers = 2
	engine, err := analysis.NewEngine(settings, zap.NewNop().Sugar(), opts...)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(engine.Close)

	var runs controllers.RunStore
	if store != nil {
		runs = store
	}
	ctrl, err := NewController(context.Background(), &sync.WaitGroup{}, sc, 9.81, engine, runs, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return ctrl, store
}

// testRecord is one second of a 2.5 Hz sine at 0.2 g sampled every 10 ms.
func testRecord() controllers.RecordData {
	n := 101
	d := controllers.RecordData{Time: make([]float64, n), AccelG: make([]float64, n)}
	for i := range d.Time {
		d.Time[i] = float64(i) * 0.01
		d.AccelG[i] = 0.2 * math.Sin(2*math.Pi*d.Time[i]/0.4)
	}
	return d
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("could not decode response %q: %v", rr.Body.String(), err)
	}
}

func TestGetMethods(t *testing.T) {
	ctrl, _ := newTestController(t, config.ServerData{}, false)

	rr := do(t, ctrl.Handler(), "GET", "/api/v1/methods", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var methods []controllers.MethodInfo
	decodeBody(t, rr, &methods)

	got := map[string]bool{}
	for _, m := range methods {
		got[string(m.Name)] = m.Inelastic
	}
	want := map[string]bool{
		"central_difference":       true,
		"interpolation_excitation": false,
		"kr_alpha":                 true,
		"newmark":                  true,
	}
	if len(got) != len(want) {
		t.Fatalf("methods = %v", got)
	}
	for name, inelastic := range want {
		if v, ok := got[name]; !ok || v != inelastic {
			t.Errorf("method %s: inelastic = %v, present = %v", name, v, ok)
		}
	}
}

func TestTimeHistoryArchivesRun(t *testing.T) {
	ctrl, store := newTestController(t, config.ServerData{}, true)
	h := ctrl.Handler()

	rr := do(t, h, "POST", "/api/v1/timehistory", controllers.TimeHistoryRequest{
		Record: testRecord(),
		Method: "newmark",
		System: sdof.System{Mass: 1, Damping: 0.05, Period: 0.5},
		Params: controllers.ParamsData{Preset: "linear"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var res struct {
		RunID        uuid.UUID  `json:"run_id"`
		Peaks        sdof.Peaks `json:"peaks"`
		Time         []float64  `json:"time"`
		Displacement []float64  `json:"displacement"`
	}
	decodeBody(t, rr, &res)
	if len(res.Time) == 0 || len(res.Time) != len(res.Displacement) {
		t.Fatalf("time/displacement lengths = %d/%d", len(res.Time), len(res.Displacement))
	}
	if res.Peaks.Displacement <= 0 {
		t.Errorf("peak displacement = %v", res.Peaks.Displacement)
	}
	if len(store.runs) != 1 {
		t.Fatalf("archived %d runs, want 1", len(store.runs))
	}

	rr = do(t, h, "GET", "/api/v1/runs/"+res.RunID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET run status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var view archive.RunView
	decodeBody(t, rr, &view)
	if view.Kind != "timehistory" || view.Series == nil {
		t.Errorf("run view = %+v", view)
	}
	var params archive.Parameters
	if err := json.Unmarshal(view.Parameters, &params); err != nil {
		t.Fatal(err)
	}
	if math.Abs(params.Params.Beta-1.0/6.0) > 1e-12 {
		t.Errorf("archived beta = %v, want 1/6", params.Params.Beta)
	}

	rr = do(t, h, "GET", "/api/v1/runs?kind=timehistory&limit=5", nil)
	var views []archive.RunView
	decodeBody(t, rr, &views)
	if len(views) != 1 || views[0].Series != nil {
		t.Errorf("list = %+v", views)
	}
}

func TestTimeHistoryCSV(t *testing.T) {
	ctrl, _ := newTestController(t, config.ServerData{}, false)

	rr := do(t, ctrl.Handler(), "POST", "/api/v1/timehistory?format=csv", controllers.TimeHistoryRequest{
		Record: testRecord(),
		Method: "kr_alpha",
		System: sdof.System{Mass: 1, Damping: 0.05, Period: 0.5},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	first, _, _ := strings.Cut(rr.Body.String(), "\n")
	if first != "time,displacement,velocity,acceleration" {
		t.Errorf("header = %q", first)
	}
}

func TestSpectrumAndInelastic(t *testing.T) {
	ctrl, _ := newTestController(t, config.ServerData{}, false)
	h := ctrl.Handler()

	rr := do(t, h, "POST", "/api/v1/spectrum", controllers.SpectrumRequest{
		Record:  testRecord(),
		Method:  "interpolation",
		Damping: 0.05,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("spectrum status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var sp struct {
		Summary      spectrum.Summary `json:"summary"`
		Periods      []float64        `json:"periods"`
		Displacement spectrum.Values  `json:"displacement"`
	}
	decodeBody(t, rr, &sp)
	if len(sp.Periods) != 9 || len(sp.Displacement) != 9 {
		t.Errorf("spectrum has %d periods and %d ordinates, want 9", len(sp.Periods), len(sp.Displacement))
	}
	if sp.Summary.PeakDisplacement <= 0 {
		t.Errorf("summary = %+v", sp.Summary)
	}

	rr = do(t, h, "POST", "/api/v1/inelastic", controllers.InelasticRequest{
		Record:            testRecord(),
		Method:            "central_difference",
		System:            sdof.System{Mass: 1, Damping: 0.05, Period: 0.5},
		StrengthReduction: 4,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("inelastic status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var in struct {
		Metrics struct {
			Ductility float64 `json:"ductility_demand"`
		} `json:"metrics"`
	}
	decodeBody(t, rr, &in)
	if in.Metrics.Ductility <= 1 {
		t.Errorf("ductility = %v, want yielding", in.Metrics.Ductility)
	}
}

func TestPlot(t *testing.T) {
	ctrl, _ := newTestController(t, config.ServerData{}, false)

	rr := do(t, ctrl.Handler(), "POST", "/api/v1/spectrum/plot", controllers.SpectrumRequest{
		Record:  testRecord(),
		Damping: 0.02,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	rr = do(t, ctrl.Handler(), "POST", "/api/v1/modal/plot", controllers.SpectrumRequest{Record: testRecord()})
	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("unknown analysis status = %d", rr.Code)
	}
}

func TestBadRequests(t *testing.T) {
	ctrl, _ := newTestController(t, config.ServerData{}, false)
	h := ctrl.Handler()

	tests := []struct {
		name        string
		path        string
		body        any
		wantDetails int
	}{
		{"empty body", "/api/v1/timehistory", nil, 0},
		{"unknown field", "/api/v1/timehistory", `{"record":{},"bogus":1}`, 0},
		{"unknown method", "/api/v1/timehistory", controllers.TimeHistoryRequest{
			Record: testRecord(), Method: "runge_kutta", System: sdof.System{Mass: 1, Period: 1},
		}, 0},
		{"both accel units", "/api/v1/timehistory", controllers.TimeHistoryRequest{
			Record: controllers.RecordData{Time: []float64{0, 1}, Accel: []float64{0, 1}, AccelG: []float64{0, 1}},
			System: sdof.System{Mass: 1, Period: 1},
		}, 0},
		{"invalid system", "/api/v1/timehistory", controllers.TimeHistoryRequest{
			Record: testRecord(), System: sdof.System{Mass: -1, Damping: 1.5, Period: 0},
		}, 3},
		{"interpolation is linear only", "/api/v1/inelastic", controllers.InelasticRequest{
			Record: testRecord(), Method: "interpolation", System: sdof.System{Mass: 1, Damping: 0.05, Period: 0.5}, StrengthReduction: 2,
		}, 0},
		{"too few samples", "/api/v1/resample", controllers.ResampleRequest{
			Record: controllers.RecordData{Time: []float64{0}, Accel: []float64{0}}, Dt: 0.01,
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, "POST", tt.path, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
			}
			var body responseformat.ErrorBody
			decodeBody(t, rr, &body)
			if body.Error == "" || len(body.Details) != tt.wantDetails {
				t.Errorf("error body = %+v, want %d details", body, tt.wantDetails)
			}
		})
	}
}

func TestResample(t *testing.T) {
	ctrl, _ := newTestController(t, config.ServerData{}, false)

	rr := do(t, ctrl.Handler(), "POST", "/api/v1/resample", controllers.ResampleRequest{
		Record: controllers.RecordData{Time: []float64{0, 0.1, 0.2}, Accel: []float64{0, 1, 0}},
		Dt:     0.05,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var res struct {
		Stats struct {
			Samples int `json:"samples"`
		} `json:"stats"`
		Time  []float64 `json:"time"`
		Accel []float64 `json:"accel"`
	}
	decodeBody(t, rr, &res)
	if res.Stats.Samples != len(res.Time) || len(res.Time) != len(res.Accel) {
		t.Fatalf("stats = %+v, %d times, %d accels", res.Stats, len(res.Time), len(res.Accel))
	}
	if math.Abs(res.Accel[1]-0.5) > 1e-12 {
		t.Errorf("accel at 0.05 s = %v, want 0.5", res.Accel[1])
	}
}

func TestRunsEndpoints(t *testing.T) {
	t.Run("archive disabled", func(t *testing.T) {
		ctrl, _ := newTestController(t, config.ServerData{}, false)
		for _, path := range []string{"/api/v1/runs", "/api/v1/runs/" + uuid.NewString()} {
			if rr := do(t, ctrl.Handler(), "GET", path, nil); rr.Code != http.StatusServiceUnavailable {
				t.Errorf("GET %s status = %d", path, rr.Code)
			}
		}
	})

	ctrl, _ := newTestController(t, config.ServerData{}, true)
	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/runs/" + uuid.NewString(), http.StatusNotFound},
		{"/api/v1/runs/not-a-uuid", http.StatusBadRequest},
		{"/api/v1/runs?kind=modal", http.StatusBadRequest},
		{"/api/v1/runs?limit=0", http.StatusBadRequest},
		{"/api/v1/runs", http.StatusOK},
	}
	for _, tt := range tests {
		if rr := do(t, ctrl.Handler(), "GET", tt.path, nil); rr.Code != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, rr.Code, tt.want)
		}
	}
}

func TestHTTPLogAndCORS(t *testing.T) {
	ctrl, _ := newTestController(t, config.ServerData{EnableCORS: true}, false)
	h := ctrl.Handler()

	path := fmt.Sprintf("/healthz?probe=%s", uuid.NewString())
	rr := do(t, h, "GET", path, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}

	rr = do(t, h, "GET", "/api/v1/logs/http", nil)
	var entries []struct {
		Message string         `json:"message"`
		Fields  map[string]any `json:"fields"`
	}
	decodeBody(t, rr, &entries)
	var paths []string
	for _, e := range entries {
		if p, ok := e.Fields["path"].(string); ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	if i := sort.SearchStrings(paths, "/healthz"); i == len(paths) || paths[i] != "/healthz" {
		t.Errorf("health request not in HTTP log: %v", paths)
	}
	for _, p := range paths {
		if p == httpLogPath {
			t.Error("HTTP log request was logged")
		}
	}

	req := httptest.NewRequest("OPTIONS", "/api/v1/spectrum", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", "POST")
	pre := httptest.NewRecorder()
	h.ServeHTTP(pre, req)
	if pre.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Errorf("preflight not answered: %d %v", pre.Code, pre.Header())
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{sdof.Invalid("mass", -1, "must be positive"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", sdof.ErrUnstable), http.StatusBadRequest},
		{archive.ErrRunNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
