package api

import (
	"context"
	"math"
	"net"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"tradesim/internal/engine"
	"tradesim/internal/util"
)

func newGRPCClient(t *testing.T, f *fixture) *SimulationsClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterSimulationsServer(srv, NewGRPCService(f.manager, f.defaults, util.Discard()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewSimulationsClient(conn)
}

func TestGRPCRunAndFetch(t *testing.T) {
	f := newFixture(t)
	client := newGRPCClient(t, f)
	ctx := context.Background()

	id, err := client.Run(ctx, f.defaults)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if id == "" {
		t.Fatal("Run returned an empty id")
	}
	f.manager.Wait()

	run, err := client.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if run.State != engine.StateCompleted || run.Result == nil {
		t.Fatalf("state = %s, want completed", run.State)
	}
	if math.Abs(run.Result.FinalCapital-10276.903) > 1e-6 {
		t.Errorf("final capital = %v, want 10276.903", run.Result.FinalCapital)
	}
	if len(run.Result.Trades) != 2 {
		t.Errorf("got %d trades, want 2", len(run.Result.Trades))
	}

	runs, err := client.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Errorf("List = %+v, want the one run", runs)
	}
}

func TestGRPCErrors(t *testing.T) {
	f := newFixture(t)
	client := newGRPCClient(t, f)
	ctx := context.Background()

	_, err := client.GetResult(ctx, "missing")
	if got := status.Code(err); got != codes.NotFound {
		t.Errorf("GetResult(missing) code = %v, want NotFound", got)
	}

	_, err = client.GetResult(ctx, "")
	if got := status.Code(err); got != codes.InvalidArgument {
		t.Errorf("GetResult(\"\") code = %v, want InvalidArgument", got)
	}

	bad := f.defaults
	bad.Strategy = "astrology"
	id, err := client.Run(ctx, bad)
	if got := status.Code(err); got != codes.InvalidArgument {
		t.Errorf("Run(invalid) code = %v, want InvalidArgument", got)
	}
	if id == "" {
		t.Fatal("Run(invalid) returned no run id")
	}
	if !strings.Contains(status.Convert(err).Message(), id) {
		t.Errorf("message %q does not name run %s", status.Convert(err).Message(), id)
	}
	run, err := client.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult(%s): %v", id, err)
	}
	if run.State != engine.StateFailed || run.Error == nil || run.Error.Code != engine.CodeInvalidConfig {
		t.Errorf("run = state %s error %+v, want failed with invalid_config", run.State, run.Error)
	}
}
