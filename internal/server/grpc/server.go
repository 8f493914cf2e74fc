// Package grpc exposes the standard gRPC health service reflecting model readiness.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name that tracks the default TTS model.
const ServiceName = "ttsd.tts"

// ReadinessFunc reports whether the default model can serve requests.
type ReadinessFunc func() bool

// Server serves gRPC health and reflection.
type Server struct {
	gs     *grpc.Server
	health *health.Server
	ready  ReadinessFunc
	port   int
}

// NewServer creates a server on port. ready is consulted by Refresh.
func NewServer(port int, ready ReadinessFunc) *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()

	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{
		gs:     gs,
		health: hs,
		ready:  ready,
		port:   port,
	}
	s.Refresh()

	return s
}

// Refresh updates the serving status from the readiness function.
func (s *Server) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.ready != nil && s.ready() {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)

	slog.Debug("gRPC health refreshed", "service", ServiceName, "status", status.String())
}

// Start listens on the configured port and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("grpc: failed to listen on port %d: %w", s.port, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("gRPC server listening", "addr", ln.Addr().String())

	if err := s.gs.Serve(ln); err != nil {
		return fmt.Errorf("grpc: server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully, forcing a stop when ctx is done first.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.gs.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.gs.Stop()
	}
}
