// internal/common/http/client.go
package http

import (
	"context"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client is the shared outbound HTTP client. The gateway token service and
// the CRM client both go through it so connection pooling and the transport
// timeout are set in one place.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// DoWithContext binds the request to ctx so a caller deadline cancels the
// in-flight call, not just the dial.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}
