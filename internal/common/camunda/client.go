// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm-intake-workers/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client wraps the Zeebe gRPC client. The intake workers poll jobs
// through the raw client; this wrapper owns the connection lifecycle
// and maps broker failures onto the standard error codes so the
// worker-manager can log and escalate them consistently.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

// ClientConfig carries the broker connection parameters.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
}

// NewClient dials the broker with defaults suitable for local
// development: plaintext gRPC and a 10 second connect timeout.
func NewClient(address string) (*Client, error) {
	return NewClientWithConfig(&ClientConfig{
		GatewayAddress:         address,
		UsePlaintextConnection: true,
		ConnectionTimeout:      10 * time.Second,
	})
}

// NewClientWithConfig dials the broker and verifies it answers a
// topology request before returning. A broker that accepts the gRPC
// connection but cannot serve topology is still starting up.
func NewClientWithConfig(config *ClientConfig) (*Client, error) {
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = 10 * time.Second
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         config.GatewayAddress,
		UsePlaintextConnection: config.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("create zeebe client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectionTimeout)
	defer cancel()

	if _, err := zeebeClient.NewTopologyCommand().Send(ctx); err != nil {
		zeebeClient.Close()
		return nil, MapBrokerError(err, "connect")
	}

	return &Client{client: zeebeClient, config: config}, nil
}

// GetClient exposes the raw Zeebe client for job polling.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck sends a topology request, bounded by the connection
// timeout. Wired into the worker-manager readiness endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return MapBrokerError(err, "topology")
	}
	return nil
}

// MapBrokerError converts a raw broker error into a StandardError so
// callers get a stable code instead of a gRPC status string.
func MapBrokerError(err error, operation string) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	wrapped := fmt.Errorf("zeebe %s: %s", operation, msg)

	switch {
	case strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded"):
		return errors.NewTimeoutError("zeebe", wrapped)

	case strings.Contains(lower, "not found"):
		return errors.NewResourceNotFoundError("zeebe", wrapped.Error())

	case strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "unauthorized"):
		return errors.NewGatewayAuthError(wrapped.Error())

	default:
		return errors.NewExternalServiceError("zeebe", wrapped)
	}
}
