package submitsalesnote

import (
	"go.uber.org/zap"

	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/common/observability"
	"crm-intake-workers/internal/intake/history"
	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/notify"
	"crm-intake-workers/internal/intake/orchestrate"
	"crm-intake-workers/internal/intake/session"
	"crm-intake-workers/internal/models"
)

type Input struct {
	NoteText    string                   `json:"noteText"`
	PriorRecord models.PriorRecord       `json:"priorRecord,omitempty"`
	Options     models.SubmissionOptions `json:"options,omitempty"`
}

type Output struct {
	Success      bool                 `json:"success"`
	Message      string               `json:"message,omitempty"`
	SubmissionID string               `json:"submissionId,omitempty"`
	Steps        []models.StepOutcome `json:"steps,omitempty"`
	Context      map[string]string    `json:"context,omitempty"`
	Warnings     []note.Warning       `json:"warnings,omitempty"`
}

type ServiceDependencies struct {
	Logger logger.Logger
	Zap    *zap.Logger

	Backend       orchestrate.Backend
	Sessions      *session.Store
	Archiver      *history.Archiver
	Notifier      *notify.Notifier
	Observability *observability.Observability
}
