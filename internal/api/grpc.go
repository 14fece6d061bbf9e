package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"tradesim/internal/config"
	"tradesim/internal/engine"
)

// SimulationsServiceName is the fully qualified gRPC service name.
const SimulationsServiceName = "tradesim.v1.Simulations"

// SimulationsServer is the server side of tradesim.v1.Simulations. Every
// message is a google.protobuf.Struct with the same shape as the HTTP JSON.
type SimulationsServer interface {
	// Run takes a simulation config and returns {run_id, state}.
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// GetResult takes {run_id} and returns the run.
	GetResult(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// List returns {runs: [...]}.
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterSimulationsServer registers srv on s.
func RegisterSimulationsServer(s grpc.ServiceRegistrar, srv SimulationsServer) {
	s.RegisterService(&simulationsServiceDesc, srv)
}

var simulationsServiceDesc = grpc.ServiceDesc{
	ServiceName: SimulationsServiceName,
	HandlerType: (*SimulationsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: unaryHandler("Run", SimulationsServer.Run)},
		{MethodName: "GetResult", Handler: unaryHandler("GetResult", SimulationsServer.GetResult)},
		{MethodName: "List", Handler: unaryHandler("List", SimulationsServer.List)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tradesim/v1/simulations.proto",
}

type unaryMethod func(SimulationsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + SimulationsServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SimulationsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SimulationsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ---------------------------------------------------------------------------
// Server implementation
// ---------------------------------------------------------------------------

// GRPCService implements SimulationsServer on top of the run manager.
type GRPCService struct {
	manager  *engine.Manager
	defaults config.Simulation
	log      *slog.Logger
}

var _ SimulationsServer = (*GRPCService)(nil)

// NewGRPCService creates the gRPC simulation service.
func NewGRPCService(m *engine.Manager, defaults config.Simulation, log *slog.Logger) *GRPCService {
	if log == nil {
		log = slog.Default()
	}
	return &GRPCService{manager: m, defaults: defaults, log: log}
}

// Run starts a simulation.
func (s *GRPCService) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	body, err := json.Marshal(req.AsMap())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encoding request: %v", err)
	}
	cfg, err := decodeSimulation(s.defaults, func(v any) error { return json.Unmarshal(body, v) })
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding config: %v", err)
	}
	id, err := s.manager.Run(ctx, cfg)
	var invalid *engine.InvalidConfigError
	if errors.As(err, &invalid) {
		return nil, invalidConfigStatus(id, invalid)
	}
	if err != nil {
		return nil, grpcError(err)
	}
	state := string(engine.StateConfigured)
	if run, err := s.manager.Result(ctx, id); err == nil {
		state = string(run.State)
	}
	s.log.Info("simulation submitted", "run_id", id, "strategy", cfg.Strategy, "transport", "grpc")
	return toStruct(SimulationResponse{RunID: id, State: state})
}

// GetResult returns the run named by run_id.
func (s *GRPCService) GetResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["run_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id is required")
	}
	run, err := s.manager.Result(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(run)
}

// List returns the run summaries, newest first.
func (s *GRPCService) List(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	runs, err := s.manager.List(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"runs": runs})
}

// toStruct converts v through its JSON form so that gRPC and HTTP clients
// see the same field names.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

// invalidConfigStatus reports a rejected config with the id of the failed
// run recorded for it, mirroring the HTTP error details.
func invalidConfigStatus(id string, invalid *engine.InvalidConfigError) error {
	st := status.New(codes.InvalidArgument, fmt.Sprintf("run %s: %v", id, invalid))
	details, err := toStruct(map[string]any{"run_id": id, "problems": invalid.Problems})
	if err != nil {
		return st.Err()
	}
	if withDetails, err := st.WithDetails(details); err == nil {
		st = withDetails
	}
	return st.Err()
}

// RunIDFromError returns the run id carried by a Run error, if any.
func RunIDFromError(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			if id := s.GetFields()["run_id"].GetStringValue(); id != "" {
				return id
			}
		}
	}
	return ""
}

func grpcError(err error) error {
	var invalid *engine.InvalidConfigError
	switch {
	case errors.As(err, &invalid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, engine.ErrNotReady):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// SimulationsClient calls tradesim.v1.Simulations.
type SimulationsClient struct {
	cc grpc.ClientConnInterface
}

// NewSimulationsClient wraps an established connection.
func NewSimulationsClient(cc grpc.ClientConnInterface) *SimulationsClient {
	return &SimulationsClient{cc: cc}
}

func (c *SimulationsClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (map[string]any, error) {
	body := &structpb.Struct{}
	if in != nil {
		var err error
		if body, err = toStruct(in); err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", method, err)
		}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+SimulationsServiceName+"/"+method, body, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// decodeInto re-encodes a Struct map into v.
func decodeInto(m map[string]any, v any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Run submits cfg and returns the run id. The id is also returned with an
// InvalidArgument error when the server recorded the rejected run.
func (c *SimulationsClient) Run(ctx context.Context, cfg config.Simulation, opts ...grpc.CallOption) (string, error) {
	m, err := c.invoke(ctx, "Run", cfg, opts...)
	if err != nil {
		// A rejected config still records a failed run.
		return RunIDFromError(err), err
	}
	var resp SimulationResponse
	if err := decodeInto(m, &resp); err != nil {
		return "", fmt.Errorf("decoding Run response: %w", err)
	}
	return resp.RunID, nil
}

// GetResult fetches a run.
func (c *SimulationsClient) GetResult(ctx context.Context, id string, opts ...grpc.CallOption) (*engine.Run, error) {
	m, err := c.invoke(ctx, "GetResult", map[string]string{"run_id": id}, opts...)
	if err != nil {
		return nil, err
	}
	var run engine.Run
	if err := decodeInto(m, &run); err != nil {
		return nil, fmt.Errorf("decoding GetResult response: %w", err)
	}
	return &run, nil
}

// List fetches the run summaries.
func (c *SimulationsClient) List(ctx context.Context, opts ...grpc.CallOption) ([]engine.Summary, error) {
	m, err := c.invoke(ctx, "List", nil, opts...)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Runs []engine.Summary `json:"runs"`
	}
	if err := decodeInto(m, &resp); err != nil {
		return nil, fmt.Errorf("decoding List response: %w", err)
	}
	return resp.Runs, nil
}
