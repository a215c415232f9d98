package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/gate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported to health checks.
const ServiceName = "authkeeper"

type GRPCServer struct {
	address  string
	gate     *gate.Gate
	logger   logging.Logger
	health   *health.Server
	services []func(grpc.ServiceRegistrar)
}

type Option func(*GRPCServer)

// WithService registers an additional service on the server. Every
// registered service sees the principal established by the gate.
func WithService(register func(grpc.ServiceRegistrar)) Option {
	return func(s *GRPCServer) { s.services = append(s.services, register) }
}

func NewGRPCServer(a string, l logging.Logger, g *gate.Gate, opts ...Option) *GRPCServer {
	s := &GRPCServer{
		address: a,
		gate:    g,
		logger:  l.With("module", "grpc_server"),
		health:  health.NewServer(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	interceptors := []grpc.UnaryServerInterceptor{s.errorInterceptor}
	if s.gate != nil {
		interceptors = append([]grpc.UnaryServerInterceptor{s.gate.UnaryServerInterceptor()}, interceptors...)
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))

	healthpb.RegisterHealthServer(srv, s.health)
	for _, register := range s.services {
		register(srv)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
