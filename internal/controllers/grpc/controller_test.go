package grpc

import (
	"bytes"
	"context"
	"math"
	"net"
	"sync"
	"testing"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/chrissnell/sdofresponse/internal/spectrum"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestClient(t *testing.T) (*Client, *grpc.ClientConn) {
	t.Helper()

	settings := analysis.DefaultSettings()
	settings.TimeHistoryDt = 0.001
	settings.TailSeconds = 1
	settings.Grid = spectrum.Grid{Start: 0.1, End: 1, Step: 0.1}
	settings.Workers = 2
	engine, err := analysis.NewEngine(settings, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(engine.Close)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	ctrl, err := NewController(ctx, &wg, 9.81, engine, nil, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	ctrl.Serve(lis)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn), conn
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// sineRecord is one second of a 2.5 Hz sine at 0.2 g sampled every 10 ms.
func sineRecord() map[string]any {
	n := 101
	times := make([]any, n)
	accel := make([]any, n)
	for i := range times {
		ti := float64(i) * 0.01
		times[i] = ti
		accel[i] = 0.2 * math.Sin(2*math.Pi*ti/0.4)
	}
	return map[string]any{"time": times, "accel_g": accel}
}

func TestListMethodsAndHealth(t *testing.T) {
	client, conn := newTestClient(t)
	ctx := context.Background()

	out, err := client.ListMethods(ctx)
	if err != nil {
		t.Fatalf("ListMethods() error = %v", err)
	}
	if n := len(out.GetFields()["methods"].GetListValue().GetValues()); n != 4 {
		t.Errorf("got %d methods, want 4", n)
	}

	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check error = %v", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v", hc.GetStatus())
	}
}

func TestAnalyses(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	system := map[string]any{"mass": 1.0, "damping": 0.05, "period": 0.5}

	th, err := client.TimeHistory(ctx, mustStruct(t, map[string]any{
		"record": sineRecord(),
		"method": "central_difference",
		"system": system,
	}))
	if err != nil {
		t.Fatalf("TimeHistory() error = %v", err)
	}
	peak := th.GetFields()["peaks"].GetStructValue().GetFields()["displacement"].GetNumberValue()
	if peak <= 0 {
		t.Errorf("peak displacement = %v", peak)
	}
	if th.GetFields()["run_id"].GetStringValue() == "" {
		t.Error("run_id missing")
	}

	sp, err := client.Spectrum(ctx, mustStruct(t, map[string]any{
		"record":  sineRecord(),
		"damping": 0.05,
	}))
	if err != nil {
		t.Fatalf("Spectrum() error = %v", err)
	}
	if n := len(sp.GetFields()["displacement"].GetListValue().GetValues()); n != 9 {
		t.Errorf("spectrum has %d ordinates, want 9", n)
	}

	in, err := client.Inelastic(ctx, mustStruct(t, map[string]any{
		"record":             sineRecord(),
		"method":             "kr_alpha",
		"system":             system,
		"strength_reduction": 3.0,
		"params":             map[string]any{"rho": 0.8},
	}))
	if err != nil {
		t.Fatalf("Inelastic() error = %v", err)
	}
	mu := in.GetFields()["metrics"].GetStructValue().GetFields()["ductility_demand"].GetNumberValue()
	if mu <= 1 {
		t.Errorf("ductility = %v, want yielding", mu)
	}

	img, err := client.Plot(ctx, mustStruct(t, map[string]any{
		"analysis": "timehistory",
		"request":  map[string]any{"record": sineRecord(), "system": system},
	}))
	if err != nil {
		t.Fatalf("Plot() error = %v", err)
	}
	if img.GetContentType() != "image/png" || !bytes.HasPrefix(img.GetData(), []byte("\x89PNG")) {
		t.Errorf("plot is %q with %d bytes", img.GetContentType(), len(img.GetData()))
	}
}

func TestStatusCodes(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"invalid system", func() error {
			_, err := client.TimeHistory(ctx, mustStruct(t, map[string]any{
				"record": sineRecord(),
				"system": map[string]any{"mass": 1.0, "damping": 1.0, "period": 0.5},
			}))
			return err
		}, codes.InvalidArgument},
		{"unknown field", func() error {
			_, err := client.Spectrum(ctx, mustStruct(t, map[string]any{"record": sineRecord(), "zeta": 0.05}))
			return err
		}, codes.InvalidArgument},
		{"unknown plot", func() error {
			_, err := client.Plot(ctx, mustStruct(t, map[string]any{
				"analysis": "modal",
				"request":  map[string]any{},
			}))
			return err
		}, codes.InvalidArgument},
		{"archive disabled", func() error {
			_, err := client.GetRun(ctx, mustStruct(t, map[string]any{"id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}))
			return err
		}, codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(tt.call()); got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGRPCError(t *testing.T) {
	if got := status.Code(grpcError(context.DeadlineExceeded)); got != codes.DeadlineExceeded {
		t.Errorf("deadline maps to %v", got)
	}
	if got := status.Code(grpcError(net.ErrClosed)); got != codes.Internal {
		t.Errorf("internal failure maps to %v", got)
	}
}
