package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/chrissnell/sdofresponse/internal/controllers"
	grpcctl "github.com/chrissnell/sdofresponse/internal/controllers/grpc"
	"github.com/chrissnell/sdofresponse/internal/controllers/restserver"
	"github.com/chrissnell/sdofresponse/internal/spectrum"
	"github.com/chrissnell/sdofresponse/internal/storage/archive"
	"github.com/chrissnell/sdofresponse/pkg/config"
	"github.com/soheilhy/cmux"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Settings converts the analysis section of the configuration into engine settings.
func Settings(ac config.AnalysisData) analysis.Settings {
	return analysis.Settings{
		TimeHistoryDt: ac.TimeHistoryDt,
		SpectrumDt:    ac.SpectrumDt,
		InelasticDt:   ac.InelasticDt,
		TailSeconds:   ac.TailSeconds,
		Grid: spectrum.Grid{
			Start: ac.PeriodStart,
			End:   ac.PeriodEnd,
			Step:  ac.PeriodStep,
		},
		Workers: ac.Workers,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := a.listen(cfg.Server)
	if err != nil {
		return err
	}
	return a.serve(ctx, cfg, l)
}

// serve runs the controllers on l until ctx ends. It owns l.
func (a *App) serve(ctx context.Context, cfg *config.ConfigData, l net.Listener) error {
	repo, err := OpenArchive(ctx, cfg.Archive, a.logger)
	if err != nil {
		l.Close()
		return err
	}
	var runs controllers.RunStore
	var opts []analysis.Option
	if repo != nil {
		defer repo.Close()
		runs = repo
		opts = append(opts, analysis.WithRecorder(repo))
	}

	engine, err := analysis.NewEngine(Settings(cfg.Analysis), a.logger, opts...)
	if err != nil {
		l.Close()
		return err
	}
	defer engine.Close()

	var wg sync.WaitGroup
	eg, egCtx := errgroup.WithContext(ctx)

	rest, err := restserver.NewController(egCtx, &wg, cfg.Server, cfg.Analysis.Gravity, engine, runs, a.logger)
	if err != nil {
		l.Close()
		return err
	}
	rest.Server.Handler = h2c.NewHandler(rest.Server.Handler, &http2.Server{})

	if cfg.Server.EnableGRPC {
		g, err := grpcctl.NewController(egCtx, &wg, cfg.Analysis.Gravity, engine, runs, a.logger)
		if err != nil {
			l.Close()
			return err
		}

		// gRPC and REST share the port; gRPC connections are recognised by
		// their HTTP/2 content-type.
		m := cmux.New(l)
		grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
		httpL := m.Match(cmux.Any())

		g.Serve(grpcL)
		rest.Serve(httpL)

		eg.Go(func() error {
			if err := m.Serve(); err != nil && egCtx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("connection multiplexer failed: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			m.Close()
			return nil
		})
	} else {
		rest.Serve(l)
	}

	a.logger.Infow("sdofresponse started", "addr", l.Addr().String(),
		"grpc", cfg.Server.EnableGRPC, "archive", repo != nil)

	<-egCtx.Done()
	a.logger.Info("shutdown signal received, initiating graceful shutdown...")

	err = eg.Wait()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return err
}

// listen opens the server's TCP listener, terminating TLS on it when a
// certificate is configured.
func (a *App) listen(sc config.ServerData) (net.Listener, error) {
	addr := fmt.Sprintf("%s:%d", sc.ListenAddr, sc.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen on %s: %w", addr, err)
	}
	if sc.Cert == "" || sc.Key == "" {
		return l, nil
	}

	cert, err := tls.LoadX509KeyPair(sc.Cert, sc.Key)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("could not load TLS keypair: %w", err)
	}
	a.logger.Info("serving with TLS")
	return tls.NewListener(l, &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{http2.NextProtoTLS, "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// OpenArchive connects to the run archive, creating its database first when
// configured to. It returns nil when no archive is configured.
func OpenArchive(ctx context.Context, ac *config.ArchiveData, logger *zap.SugaredLogger) (*archive.Repository, error) {
	if ac == nil || ac.ConnectionString == "" {
		return nil, nil
	}

	if ac.CreateDatabase {
		name, err := archive.DatabaseName(ac.ConnectionString)
		if err != nil {
			return nil, err
		}
		created, err := archive.EnsureDatabase(ctx, ac.AdminConnectionString, name)
		if err != nil {
			return nil, err
		}
		if created {
			logger.Infof("created archive database %s", name)
		}
	}

	db, err := archive.Connect(ac.ConnectionString, logger.Desugar())
	if err != nil {
		return nil, err
	}
	repo, err := archive.New(db, logger)
	if err != nil {
		return nil, err
	}
	if err := repo.Ping(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}
