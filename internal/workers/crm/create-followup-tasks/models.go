package createfollowuptasks

import (
	"crm-intake-workers/internal/common/logger"
)

// Input carries the job variables for a follow-up task creation request.
type Input struct {
	CustomerCode string `json:"customerCode"`
	RawText      string `json:"rawText,omitempty"`
}

// Output is written back to the process as job variables.
type Output struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Created []string `json:"created"`
	Count   int      `json:"count"`
}

type ServiceDependencies struct {
	Logger   logger.Logger
	Tasks    TaskCreator
	RawTexts RawTextSource
}
