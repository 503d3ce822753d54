package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// GRPCConfig describes a gRPC endpoint.
type GRPCConfig struct {
	Name    string
	Target  string
	Timeout time.Duration
	// Service is the name passed to the standard health service. Empty
	// checks the server as a whole.
	Service string
}

// GRPCEndpoint wraps a client connection. Errors keep their gRPC status so
// the classifier can map status codes.
type GRPCEndpoint struct {
	name    string
	target  string
	service string
	timeout time.Duration
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
}

var _ Endpoint = (*GRPCEndpoint)(nil)

// NewGRPCEndpoint creates a client for target. The connection is established
// lazily on the first call.
func NewGRPCEndpoint(cfg GRPCConfig) (*GRPCEndpoint, error) {
	target := cfg.Target
	var opts []grpc.DialOption

	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GRPCEndpoint{
		name:    cfg.Name,
		target:  target,
		service: cfg.Service,
		timeout: timeout,
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
	}, nil
}

// Name returns the endpoint name.
func (e *GRPCEndpoint) Name() string {
	return e.name
}

// Conn returns the underlying connection for generated clients.
func (e *GRPCEndpoint) Conn() *grpc.ClientConn {
	return e.conn
}

// Check calls the standard health service. A reachable server that reports
// anything but SERVING yields an Unavailable status error.
func (e *GRPCEndpoint) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.health.Check(ctx, &healthpb.HealthCheckRequest{Service: e.service})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return status.Errorf(codes.Unavailable, "%s reports %s", e.target, resp.GetStatus())
	}
	return nil
}

// Close tears down the connection.
func (e *GRPCEndpoint) Close() error {
	return e.conn.Close()
}
