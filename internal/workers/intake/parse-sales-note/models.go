package parsesalesnote

import (
	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/payload"
	"crm-intake-workers/internal/models"
)

type Input struct {
	NoteText      string             `json:"noteText"`
	PriorRecord   models.PriorRecord `json:"priorRecord,omitempty"`
	ReferenceDate string             `json:"referenceDate,omitempty"`
}

type Output struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message,omitempty"`
	Context  map[string]string `json:"context"`
	Warnings []note.Warning    `json:"warnings,omitempty"`

	OpportunityDraft payload.Payload `json:"opportunityDraft"`
	CustomerDraft    payload.Payload `json:"customerDraft"`
	DuplicateProbe   payload.Payload `json:"duplicateProbe"`
}

type ServiceDependencies struct {
	Logger logger.Logger
}
