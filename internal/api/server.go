// Package api exposes the simulation manager over HTTP (gin) and gRPC.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"tradesim/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Server hosts the HTTP and gRPC listeners.
type Server struct {
	httpAddr string
	grpcAddr string
	http     *http.Server
	grpc     *grpc.Server
	log      *slog.Logger
}

// NewServer wires h and svc onto listeners taken from cfg. A zero gRPC
// port disables the gRPC listener.
func NewServer(cfg config.Server, h *Handler, svc SimulationsServer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		httpAddr: net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		http: &http.Server{
			Handler:           NewRouter(h, cfg.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
	if cfg.GRPCPort > 0 && svc != nil {
		s.grpcAddr = net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.GRPCPort))
		s.grpc = grpc.NewServer()
		RegisterSimulationsServer(s.grpc, svc)
	}
	return s
}

// ListenAndServe starts the listeners and blocks until ctx is cancelled or
// a listener fails, then shuts both down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	var grpcLn net.Listener
	if s.grpc != nil {
		if grpcLn, err = net.Listen("tcp", s.grpcAddr); err != nil {
			httpLn.Close()
			return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
		}
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve runs on the given listeners. grpcLn may be nil.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http listening", "addr", httpLn.Addr().String())
		if err := s.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if s.grpc != nil && grpcLn != nil {
		g.Go(func() error {
			s.log.Info("grpc listening", "addr", grpcLn.Addr().String())
			if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits up to five seconds for
// in-flight requests.
func (s *Server) Shutdown() error {
	s.log.Info("shutting down api server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.grpc != nil {
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpc.Stop()
		}
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
