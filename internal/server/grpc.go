package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"time"

	"BasketLedger/internal/ingestion"
	"BasketLedger/internal/observability"
	"BasketLedger/internal/query"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GRPCServer wraps the gRPC server and the HTTP/JSON gateway.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	health        *health.Server
	grpcAddr      string
	httpAddr      string
	healthChecker *observability.HealthChecker
	http          *basketService
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

// ServerDeps holds all dependencies needed by the services.
type ServerDeps struct {
	Gateway       *ingestion.Gateway
	Queries       *query.Service
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
}

// NewGRPCServer creates a gRPC server with the basket service, health and
// reflection registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	logger := observability.NewLogger("server")
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(metricsInterceptor(deps.Metrics, logger)))

	grpcServer.RegisterService(&ServiceDesc, &basketService{
		gateway:   deps.Gateway,
		queries:   deps.Queries,
		transport: ingestion.TransportGRPC,
	})

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		health:        healthServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: deps.HealthChecker,
		http: &basketService{
			gateway:   deps.Gateway,
			queries:   deps.Queries,
			transport: ingestion.TransportHTTP,
		},
		metrics: deps.Metrics,
		logger:  logger,
	}
}

// SetServing flips the gRPC health status once recovery has completed.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve runs the gRPC server on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartGRPC listens on the configured address and serves (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// StartHTTPGateway serves the HTTP/JSON routes and health endpoints
// (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	handler, err := s.HTTPHandler()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// metricsInterceptor records request count, latency and error codes for
// every unary call.
func metricsInterceptor(metrics *observability.Metrics, logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		method := path.Base(info.FullMethod)
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(metrics, method, start, err)
		if err != nil {
			logger.Debug().Str("method", method).Err(err).Msg("request failed")
		}
		return resp, err
	}
}

func observe(metrics *observability.Metrics, method string, start time.Time, err error) {
	if metrics == nil {
		return
	}
	metrics.QueryRequests.WithLabelValues(method).Inc()
	metrics.QueryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueryErrors.WithLabelValues(method, status.Code(err).String()).Inc()
	}
}
