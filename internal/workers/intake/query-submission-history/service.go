package querysubmissionhistory

import (
	"context"
	"strings"

	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/intake/history"
	"crm-intake-workers/internal/models"
)

// SearchBackend is the slice of the search index the worker needs, extracted
// so tests can substitute a fake.
type SearchBackend interface {
	SearchWith(ctx context.Context, queryBody map[string]interface{}) (*history.SearchResult, error)
}

// queryBuilder renders one named query into an Elasticsearch request body.
type queryBuilder func(query string, size int) map[string]interface{}

// queryBuilders is the registry of named queries the worker answers. Adding
// a query means adding an entry here and a value to the input schema enum.
var queryBuilders = map[models.HistoryQueryType]queryBuilder{
	models.HistoryQueryText: func(query string, size int) map[string]interface{} {
		return history.SearchBody(query, size)
	},

	models.HistoryQueryCustomerCode: func(query string, size int) map[string]interface{} {
		return map[string]interface{}{
			"query": map[string]interface{}{
				"match": map[string]interface{}{
					"customer_code": strings.ToUpper(strings.TrimSpace(query)),
				},
			},
			"sort": []map[string]interface{}{
				{"submitted_at": map[string]interface{}{"order": "desc"}},
			},
			"size": size,
		}
	},

	models.HistoryQueryRecent: func(_ string, size int) map[string]interface{} {
		return map[string]interface{}{
			"query": map[string]interface{}{"match_all": map[string]interface{}{}},
			"sort": []map[string]interface{}{
				{"submitted_at": map[string]interface{}{"order": "desc"}},
			},
			"size": size,
		}
	},
}

type Service struct {
	config *Config
	logger logger.Logger
	search SearchBackend
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config: config,
		logger: deps.Logger,
		search: deps.Search,
	}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if s.search == nil {
		return nil, errors.NewConfigurationError("query-submission-history has no search index wired")
	}

	queryType := input.QueryType
	if queryType == "" {
		queryType = models.HistoryQueryText
	}

	builder, ok := queryBuilders[queryType]
	if !ok {
		return nil, errors.NewValidationError(
			"Unknown query type",
			"no query builder registered for: "+string(queryType),
		)
	}

	query := strings.TrimSpace(input.Query)
	if query == "" && queryType != models.HistoryQueryRecent {
		return nil, errors.NewValidationError(
			"Missing query",
			string(queryType)+" queries need a non-empty query value",
		)
	}

	size := input.Size
	if size <= 0 {
		size = s.config.DefaultSize
	}
	if size > s.config.MaxSize {
		size = s.config.MaxSize
	}

	result, err := s.search.SearchWith(ctx, builder(query, size))
	if err != nil {
		return nil, errors.NewSearchQueryFailedError(string(queryType), err)
	}

	hits := make([]models.SubmissionHit, 0, len(result.Hits))
	for _, source := range result.Hits {
		hits = append(hits, hitFromSource(source))
	}

	s.logger.Info("Submission history query answered", map[string]interface{}{
		"queryType": string(queryType),
		"hits":      len(hits),
		"totalHits": result.TotalHits,
	})

	return &Output{
		Success:   true,
		Hits:      hits,
		TotalHits: result.TotalHits,
	}, nil
}

// hitFromSource maps one indexed record onto the job-variable hit shape.
// Index documents carry the archive's snake_case field names.
func hitFromSource(source map[string]interface{}) models.SubmissionHit {
	hit := models.SubmissionHit{
		ID:           asString(source["id"]),
		CustomerCode: asString(source["customer_code"]),
		CustomerName: asString(source["customer_name"]),
		SubmittedAt:  asString(source["submitted_at"]),
	}
	if success, ok := source["success"].(bool); ok {
		hit.Success = success
	}

	steps, ok := source["steps"].([]interface{})
	if !ok {
		return hit
	}
	for _, raw := range steps {
		step, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		outcome := models.StepOutcome{
			StepName: asString(step["stepName"]),
			Error:    asString(step["error"]),
		}
		if success, ok := step["success"].(bool); ok {
			outcome.Success = success
		}
		if skipped, ok := step["skipped"].(bool); ok {
			outcome.Skipped = skipped
		}
		hit.Steps = append(hit.Steps, outcome)
	}
	return hit
}

func asString(value interface{}) string {
	text, _ := value.(string)
	return text
}
