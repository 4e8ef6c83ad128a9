// internal/intake/history/search.go
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
)

// DefaultIndex is the Elasticsearch index submissions are mirrored into.
const DefaultIndex = "submissions"

// SearchIndex mirrors archived submissions into Elasticsearch and answers
// free-text queries over them.
type SearchIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewSearchIndex(client *elasticsearch.Client, index string) *SearchIndex {
	if index == "" {
		index = DefaultIndex
	}
	return &SearchIndex{client: client, index: index}
}

// Index writes one record, keyed by submission id so re-archiving a run is
// an overwrite, not a duplicate.
func (x *SearchIndex) Index(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	res, err := x.client.Index(
		x.index,
		bytes.NewReader(body),
		x.client.Index.WithDocumentID(rec.ID),
		x.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index submission: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index submission: %s", res.Status())
	}
	return nil
}

// SearchResult carries the matching records and the usual search metadata.
type SearchResult struct {
	Hits      []map[string]interface{} `json:"hits"`
	TotalHits int64                    `json:"totalHits"`
	MaxScore  float64                  `json:"maxScore"`
}

// SearchBody builds the multi-match query over the archived fields.
func SearchBody(query string, size int) map[string]interface{} {
	if size <= 0 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	return map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"customer_code^3", "customer_name^2", "raw_text"},
				"type":   "best_fields",
			},
		},
		"size": size,
	}
}

// Search runs a free-text query over customer code, customer name, and the
// raw note text.
func (x *SearchIndex) Search(ctx context.Context, query string, size int) (*SearchResult, error) {
	return x.SearchWith(ctx, SearchBody(query, size))
}

// SearchWith runs an arbitrary query body against the index.
func (x *SearchIndex) SearchWith(ctx context.Context, queryBody map[string]interface{}) (*SearchResult, error) {
	body, err := json.Marshal(queryBody)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.index),
		x.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search submissions: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search submissions: %s", res.Status())
	}

	return ParseSearchResponse(res.Body)
}

// ParseSearchResponse decodes the standard search envelope down to the hit
// sources.
func ParseSearchResponse(body io.Reader) (*SearchResult, error) {
	var r map[string]interface{}
	if err := json.NewDecoder(body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits, ok := r["hits"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("search response has no hits section")
	}

	result := &SearchResult{}
	if total, ok := hits["total"].(map[string]interface{}); ok {
		if value, ok := total["value"].(float64); ok {
			result.TotalHits = int64(value)
		}
	}
	if maxScore, ok := hits["max_score"].(float64); ok {
		result.MaxScore = maxScore
	}
	if entries, ok := hits["hits"].([]interface{}); ok {
		for _, entry := range entries {
			hit, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			if source, ok := hit["_source"].(map[string]interface{}); ok {
				result.Hits = append(result.Hits, source)
			}
		}
	}
	return result, nil
}
