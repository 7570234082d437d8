package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/RezaEskandarii/hostfire/internal/host"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const healthServiceName = "hostfire.Worker"

// newHealthService serves the gRPC health protocol on lis until stopped.
func newHealthService(lis net.Listener) *host.Blocking {
	return host.NewBlocking("grpc-health", func(ctx context.Context) error {
		grpcServer := grpc.NewServer()
		healthSrv := health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthSrv)
		healthSrv.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)
		reflection.Register(grpcServer)

		go func() {
			<-ctx.Done()
			healthSrv.Shutdown()
			grpcServer.GracefulStop()
		}()

		slog.Info("grpc health server listening", "addr", lis.Addr().String())
		return grpcServer.Serve(lis)
	})
}
