// Package transport holds the outbound clients whose failures feed the
// classifier: plain HTTP services and gRPC services.
package transport

import "context"

// Endpoint is a named dependency that can be health-checked.
type Endpoint interface {
	Name() string
	// Check makes one lightweight call and returns the raw transport error.
	Check(ctx context.Context) error
	Close() error
}
