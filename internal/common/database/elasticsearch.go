// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"fmt"
	"time"

	"crm-intake-workers/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticsearchClient holds the connection used by the submission
// history search index. The raw client is exposed so the history
// package can issue its own index and search requests.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

// NewElasticsearch connects to the cluster named in the database
// config. Credentials are optional; unauthenticated local clusters
// are common in development.
func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &ElasticsearchClient{Client: es}, nil
}

// Ping verifies the cluster answers within 5 seconds. Used by the
// worker-manager startup retry loop and the readiness endpoint.
func (c *ElasticsearchClient) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}
