// Package grpc serves the analysis engine over gRPC. Requests and responses
// are google.protobuf.Struct documents with the same shape as the REST API's
// JSON bodies; plots come back as google.api.HttpBody.
package grpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/chrissnell/sdofresponse/internal/controllers"
	"github.com/chrissnell/sdofresponse/internal/epp"
	"github.com/chrissnell/sdofresponse/internal/integrator"
	"github.com/chrissnell/sdofresponse/internal/plot"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"github.com/chrissnell/sdofresponse/internal/storage/archive"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Controller represents the gRPC controller
type Controller struct {
	ctx     context.Context
	wg      *sync.WaitGroup
	Server  *grpc.Server
	gravity float64
	engine  *analysis.Engine
	runs    controllers.RunStore
	health  *health.Server
	logger  *zap.SugaredLogger
}

// NewController creates a new gRPC controller instance. runs may be nil when
// no archive is configured.
func NewController(ctx context.Context, wg *sync.WaitGroup, gravity float64, engine *analysis.Engine, runs controllers.RunStore, logger *zap.SugaredLogger, opts ...grpc.ServerOption) (*Controller, error) {
	if engine == nil {
		return nil, fmt.Errorf("gRPC controller needs an analysis engine")
	}

	ctrl := &Controller{
		ctx:     ctx,
		wg:      wg,
		gravity: gravity,
		engine:  engine,
		runs:    runs,
		health:  health.NewServer(),
		logger:  logger,
	}

	opts = append(opts, grpc.ChainUnaryInterceptor(ctrl.logInterceptor))
	ctrl.Server = grpc.NewServer(opts...)

	// Register the analysis service, health checks and reflection
	ctrl.Server.RegisterService(&serviceDesc, ctrl)
	healthpb.RegisterHealthServer(ctrl.Server, ctrl.health)
	ctrl.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(ctrl.Server)

	return ctrl, nil
}

// StartController starts the gRPC controller on its own listener
func (c *Controller) StartController(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gRPC controller could not create listener: %w", err)
	}
	c.logger.Infof("gRPC controller listening on %s", addr)
	c.Serve(l)
	return nil
}

// Serve serves gRPC on l until the controller's context ends.
func (c *Controller) Serve(l net.Listener) {
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.Serve(l); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			c.logger.Errorf("gRPC controller serve error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.StopController()
	}()
}

// StopController stops the gRPC controller
func (c *Controller) StopController() {
	c.logger.Info("Stopping gRPC controller...")
	c.health.Shutdown()
	c.Server.GracefulStop()
}

func (c *Controller) logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	c.logger.Debugw("gRPC request", "method", info.FullMethod, "code", status.Code(err), "elapsed", time.Since(start))
	return resp, err
}

// ListMethods lists the integration methods.
func (c *Controller) ListMethods(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	methods := integrator.Methods()
	out := make([]controllers.MethodInfo, len(methods))
	for i, m := range methods {
		out[i] = controllers.MethodInfo{Name: m, Inelastic: epp.Supported(m)}
	}
	return toStruct(map[string]any{"methods": out})
}

// Resample places a record on a uniform grid.
func (c *Controller) Resample(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req controllers.ResampleRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	rec, err := req.Record.Record(c.gravity)
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := c.engine.Resample(rec, req.Dt)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(controllers.ResampleResponse{Stats: out.Stats(), Record: out})
}

// TimeHistory runs a linear time history.
func (c *Controller) TimeHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := c.timeHistory(ctx, in)
	if err != nil {
		return nil, err
	}
	return toStruct(res)
}

// Spectrum computes a displacement response spectrum.
func (c *Controller) Spectrum(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := c.spectrum(ctx, in)
	if err != nil {
		return nil, err
	}
	return toStruct(res)
}

// Inelastic runs an elastic-perfectly-plastic time history.
func (c *Controller) Inelastic(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := c.inelastic(ctx, in)
	if err != nil {
		return nil, err
	}
	return toStruct(res)
}

// Plot runs the analysis named by the "analysis" field on the document in
// "request" and returns a PNG chart.
func (c *Controller) Plot(ctx context.Context, in *structpb.Struct) (*httpbody.HttpBody, error) {
	name := in.GetFields()["analysis"].GetStringValue()
	inner := in.GetFields()["request"].GetStructValue()
	if inner == nil {
		return nil, status.Error(codes.InvalidArgument, "plot request needs a request document")
	}

	var buf bytes.Buffer
	switch name {
	case "timehistory":
		res, err := c.timeHistory(ctx, inner)
		if err != nil {
			return nil, err
		}
		if err := plot.TimeHistory(&buf, res.Response); err != nil {
			return nil, grpcError(err)
		}
	case "spectrum":
		res, err := c.spectrum(ctx, inner)
		if err != nil {
			return nil, err
		}
		if err := plot.Spectrum(&buf, res.Result); err != nil {
			return nil, grpcError(err)
		}
	case "inelastic":
		res, err := c.inelastic(ctx, inner)
		if err != nil {
			return nil, err
		}
		if err := plot.Hysteresis(&buf, res.Result); err != nil {
			return nil, grpcError(err)
		}
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown analysis %q", name)
	}

	return &httpbody.HttpBody{ContentType: "image/png", Data: buf.Bytes()}, nil
}

// GetRun returns an archived run. {"id": "...", "series": false} omits the
// stored histories.
func (c *Controller) GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if c.runs == nil {
		return nil, status.Error(codes.Unavailable, "run archive is not configured")
	}
	id, err := uuid.Parse(in.GetFields()["id"].GetStringValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid run id: %v", err)
	}
	withSeries := true
	if v, ok := in.GetFields()["series"]; ok {
		withSeries = v.GetBoolValue()
	}

	rec, err := c.runs.Get(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	view, err := rec.View(withSeries)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(view)
}

func (c *Controller) timeHistory(ctx context.Context, in *structpb.Struct) (*analysis.TimeHistoryResult, error) {
	var req controllers.TimeHistoryRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	ar, err := req.Analysis(c.gravity)
	if err != nil {
		return nil, grpcError(err)
	}
	res, err := c.engine.TimeHistory(ctx, ar)
	if err != nil {
		return nil, grpcError(err)
	}
	return res, nil
}

func (c *Controller) spectrum(ctx context.Context, in *structpb.Struct) (*analysis.SpectrumResult, error) {
	var req controllers.SpectrumRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	ar, err := req.Analysis(c.gravity)
	if err != nil {
		return nil, grpcError(err)
	}
	res, err := c.engine.Spectrum(ctx, ar)
	if err != nil {
		return nil, grpcError(err)
	}
	return res, nil
}

func (c *Controller) inelastic(ctx context.Context, in *structpb.Struct) (*analysis.InelasticResult, error) {
	var req controllers.InelasticRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	ar, err := req.Analysis(c.gravity)
	if err != nil {
		return nil, grpcError(err)
	}
	res, err := c.engine.Inelastic(ctx, ar)
	if err != nil {
		return nil, grpcError(err)
	}
	return res, nil
}

// fromStruct decodes a request document into v.
func fromStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// toStruct encodes v as a response document. NaN values become null.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "could not encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "could not encode response: %v", err)
	}
	return out, nil
}

// grpcError maps an analysis error to a gRPC status.
func grpcError(err error) error {
	switch {
	case sdof.IsInputError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, archive.ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
