package restserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/chrissnell/sdofresponse/internal/controllers"
	"github.com/chrissnell/sdofresponse/internal/log"
	"github.com/chrissnell/sdofresponse/pkg/config"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// httpLogPath is left out of the HTTP request log so that reading the log
// does not fill it.
const httpLogPath = "/api/v1/logs/http"

// Controller represents the REST server controller
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	config   config.ServerData
	gravity  float64
	engine   *analysis.Engine
	runs     controllers.RunStore
	Server   http.Server
	logger   *zap.SugaredLogger
	handlers *Handlers
}

// NewController creates a new REST server controller. runs may be nil when
// no archive is configured; the run endpoints then answer 503.
func NewController(ctx context.Context, wg *sync.WaitGroup, sc config.ServerData, gravity float64, engine *analysis.Engine, runs controllers.RunStore, logger *zap.SugaredLogger) (*Controller, error) {
	if engine == nil {
		return nil, fmt.Errorf("REST server needs an analysis engine")
	}

	ctrl := &Controller{
		ctx:     ctx,
		wg:      wg,
		config:  sc,
		gravity: gravity,
		engine:  engine,
		runs:    runs,
		logger:  logger,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if sc.ListenAddr == "" {
		logger.Info("server.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		ctrl.config.ListenAddr = "0.0.0.0"
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", ctrl.config.ListenAddr, ctrl.config.Port)
	ctrl.Server.Handler = ctrl.Handler()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// Handler returns the complete HTTP handler, middleware included.
func (c *Controller) Handler() http.Handler {
	var h http.Handler = c.setupRouter()

	if c.config.EnableCORS {
		h = handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(h)
	}

	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(c.logger.Desugar())),
		handlers.PrintRecoveryStack(true),
	)(h)
}

// StartController starts the REST server on its own listener
func (c *Controller) StartController() error {
	c.logger.Infof("Starting REST server on %s", c.Server.Addr)
	l, err := net.Listen("tcp", c.Server.Addr)
	if err != nil {
		return fmt.Errorf("REST server could not create listener: %w", err)
	}
	c.Serve(l)
	return nil
}

// Serve serves HTTP on l until the controller's context ends.
func (c *Controller) Serve(l net.Listener) {
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if err := c.Server.Serve(l); err != nil && err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.Use(c.loggingMiddleware)
	router.Use(c.timeoutMiddleware)

	router.HandleFunc("/healthz", c.handlers.Health).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/methods", c.handlers.GetMethods).Methods("GET")
	api.HandleFunc("/resample", c.handlers.Resample).Methods("POST")
	api.HandleFunc("/timehistory", c.handlers.TimeHistory).Methods("POST")
	api.HandleFunc("/spectrum", c.handlers.Spectrum).Methods("POST")
	api.HandleFunc("/inelastic", c.handlers.Inelastic).Methods("POST")
	api.HandleFunc("/{analysis:timehistory|spectrum|inelastic}/plot", c.handlers.Plot).Methods("POST")
	api.HandleFunc("/runs", c.handlers.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", c.handlers.GetRun).Methods("GET")
	api.HandleFunc("/logs/http", c.handlers.GetHTTPLogs).Methods("GET")

	return router
}

// loggingMiddleware records every request in the HTTP log buffer
func (c *Controller) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		if r.URL.Path == httpLogPath {
			return
		}
		c.logger.Debugf("%s %s %s %d %v", r.Method, r.RequestURI, r.RemoteAddr, m.Code, m.Duration)
		entry := log.HTTPRequest{
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     m.Code,
			Duration:   m.Duration,
			Size:       m.Written,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		}
		if route := mux.CurrentRoute(r); route != nil {
			entry.Route, _ = route.GetPathTemplate()
		}
		log.LogHTTPRequest(entry)
	})
}

// timeoutMiddleware bounds each request by the configured timeout. Analyses
// that outlive it are abandoned.
func (c *Controller) timeoutMiddleware(next http.Handler) http.Handler {
	timeout := c.config.Timeout()
	if timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
