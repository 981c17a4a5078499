// Package server runs the HTTP API and the gRPC health service side by side
// and shuts both down when the context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	HTTPAddr string
	GRPCAddr string
	Handler  http.Handler
	Health   *health.Server
	Logger   zerolog.Logger
	// OnShutdown runs after both listeners have stopped.
	OnShutdown func(ctx context.Context) error
}

type Server struct {
	cfg  Config
	http *http.Server
	grpc *grpc.Server
}

func New(cfg Config) *Server {
	g := grpc.NewServer()
	if cfg.Health != nil {
		grpc_health_v1.RegisterHealthServer(g, cfg.Health)
	}
	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		grpc: g,
	}
}

// Run serves until ctx is cancelled or a listener fails, then drains.
func (s *Server) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http on %s: %w", s.cfg.HTTPAddr, err)
	}
	grpcLn, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		_ = httpLn.Close()
		return fmt.Errorf("listen grpc on %s: %w", s.cfg.GRPCAddr, err)
	}
	return s.serve(ctx, httpLn, grpcLn)
}

func (s *Server) serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	logger := s.cfg.Logger
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", httpLn.Addr().String()).Msg("http server listening")
		if err := s.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", grpcLn.Addr().String()).Msg("grpc server listening")
		if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		if s.cfg.Health != nil {
			s.cfg.Health.Shutdown()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		s.grpc.GracefulStop()
		if s.cfg.OnShutdown != nil {
			if err := s.cfg.OnShutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// LocalHealthClient exposes an in-process health server through the client
// interface, so the HTTP /healthz endpoint needs no loopback connection.
func LocalHealthClient(h *health.Server) grpc_health_v1.HealthClient {
	return localHealth{srv: h}
}

type localHealth struct {
	srv *health.Server
}

func (l localHealth) Check(ctx context.Context, in *grpc_health_v1.HealthCheckRequest, _ ...grpc.CallOption) (*grpc_health_v1.HealthCheckResponse, error) {
	return l.srv.Check(ctx, in)
}

func (l localHealth) Watch(context.Context, *grpc_health_v1.HealthCheckRequest, ...grpc.CallOption) (grpc_health_v1.Health_WatchClient, error) {
	return nil, status.Error(codes.Unimplemented, "watch is only served over gRPC")
}
