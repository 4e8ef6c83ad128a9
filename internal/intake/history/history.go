// internal/intake/history/history.go

// Package history archives completed submissions in Postgres and mirrors
// them into Elasticsearch for operator search. Archiving is best-effort: a
// submission that reached the CRM is never failed because its record could
// not be written.
package history

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/submission"
)

// ErrNotFound marks a submission id with no archived record.
var ErrNotFound = errors.New("submission not found")

// Record is one archived submission, as stored in Postgres and indexed in
// Elasticsearch.
type Record struct {
	ID           string                  `json:"id"`
	CustomerCode string                  `json:"customer_code"`
	CustomerName string                  `json:"customer_name"`
	SubmittedAt  time.Time               `json:"submitted_at"`
	Success      bool                    `json:"success"`
	Steps        []submission.StepResult `json:"steps"`
	Warnings     []note.Warning          `json:"warnings,omitempty"`
	RawText      string                  `json:"raw_text,omitempty"`
}

// RecordFromResult snapshots a finished run into an archivable record.
func RecordFromResult(result *submission.Result, success bool, submittedAt time.Time) Record {
	rec := Record{
		ID:          result.SubmissionID,
		SubmittedAt: submittedAt.UTC(),
		Success:     success,
		Steps:       result.Steps,
		Warnings:    result.Warnings,
	}
	if result.Context != nil {
		rec.CustomerCode = result.Context[string(note.KeyCustomerCode)]
		rec.CustomerName = result.Context[string(note.KeyCustomerName)]
		rec.RawText = result.Context[string(note.KeyRawText)]
	}
	return rec
}

// Archiver fans a record out to both stores. Either store may be nil when
// its backend is not configured.
type Archiver struct {
	store  *PostgresStore
	search *SearchIndex
	logger *zap.Logger
}

func NewArchiver(store *PostgresStore, search *SearchIndex, logger *zap.Logger) *Archiver {
	return &Archiver{store: store, search: search, logger: logger}
}

// Archive writes the record wherever it can. Failures are logged, never
// returned.
func (a *Archiver) Archive(ctx context.Context, rec Record) {
	if a.store != nil {
		if err := a.store.Save(ctx, rec); err != nil {
			a.logger.Error("failed to archive submission",
				zap.String("submission_id", rec.ID),
				zap.Error(err))
		}
	}
	if a.search != nil {
		if err := a.search.Index(ctx, rec); err != nil {
			a.logger.Error("failed to index submission",
				zap.String("submission_id", rec.ID),
				zap.Error(err))
		}
	}
}
