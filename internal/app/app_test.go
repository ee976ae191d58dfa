package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/chrissnell/sdofresponse/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func testConfig() *config.ConfigData {
	cfg := &config.ConfigData{}
	cfg.ApplyDefaults()
	cfg.Analysis.PeriodEnd = 0.5
	cfg.Analysis.PeriodStep = 0.1
	cfg.Server.EnableGRPC = true
	return cfg
}

func TestSettings(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.Workers = 3

	s := Settings(cfg.Analysis)
	if err := s.Validate(); err != nil {
		t.Fatalf("Settings() produced invalid settings: %v", err)
	}
	def := analysis.DefaultSettings()
	if s.TimeHistoryDt != def.TimeHistoryDt || s.SpectrumDt != def.SpectrumDt || s.TailSeconds != def.TailSeconds {
		t.Errorf("settings = %+v, want the defaults", s)
	}
	if s.Grid.End != 0.5 || s.Grid.Step != 0.1 || s.Workers != 3 {
		t.Errorf("grid = %+v, workers = %d", s.Grid, s.Workers)
	}
}

func TestOpenArchiveDisabled(t *testing.T) {
	repo, err := OpenArchive(context.Background(), nil, zap.NewNop().Sugar())
	if repo != nil || err != nil {
		t.Errorf("OpenArchive(nil) = %v, %v", repo, err)
	}
}

func TestServeSharesPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()

	a := New(nil, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, testConfig(), l) }()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		cancel()
		t.Fatalf("GET /healthz error = %v", err)
	}
	var health struct {
		Status string `json:"status"`
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil || health.Status != "ok" {
		t.Errorf("health = %+v, %v", health, err)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		cancel()
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	rpcCtx, rpcCancel := context.WithTimeout(context.Background(), 5*time.Second)
	hc, err := healthpb.NewHealthClient(conn).Check(rpcCtx, &healthpb.HealthCheckRequest{})
	rpcCancel()
	conn.Close()
	if err != nil {
		t.Errorf("gRPC health check error = %v", err)
	} else if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("gRPC health = %v", hc.GetStatus())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve() did not return after cancellation")
	}
}
