package rpc

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/roundtable/logger"
)

// SweeperService is the health service name that tracks the background sweep.
const SweeperService = "roundtable.sweeper"

// HealthServer serves the standard gRPC health protocol. The overall status
// is SERVING while the process runs; SweeperService follows SetServing.
type HealthServer struct {
	listener net.Listener
	grpc     *grpc.Server
	health   *health.Server
}

func NewHealthServer(addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(SweeperService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{listener: listener, grpc: grpcServer, health: healthServer}, nil
}

func (h *HealthServer) Addr() string {
	return h.listener.Addr().String()
}

// SetServing reports the sweeper's status.
func (h *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(SweeperService, status)
}

// Run serves until ctx is done, then shuts down gracefully.
func (h *HealthServer) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- h.grpc.Serve(h.listener)
	}()
	logger.Log.Infof("Health server listening at %v", h.listener.Addr())

	select {
	case <-ctx.Done():
		h.health.Shutdown()
		h.grpc.GracefulStop()
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
