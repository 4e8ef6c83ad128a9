package querysubmissionhistory

import (
	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/models"
)

type Input struct {
	QueryType models.HistoryQueryType `json:"queryType,omitempty"`
	Query     string                  `json:"query,omitempty"`
	Size      int                     `json:"size,omitempty"`
}

type Output struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message,omitempty"`
	Hits      []models.SubmissionHit `json:"hits"`
	TotalHits int64                  `json:"totalHits"`
}

type ServiceDependencies struct {
	Logger logger.Logger
	Search SearchBackend
}
