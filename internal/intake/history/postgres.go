// internal/intake/history/postgres.go
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/submission"
)

// PostgresStore keeps the authoritative submission archive.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the submissions table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS submissions (
			id            TEXT PRIMARY KEY,
			customer_code TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			submitted_at  TIMESTAMPTZ NOT NULL,
			success       BOOLEAN NOT NULL,
			steps         JSONB NOT NULL,
			warnings      JSONB,
			raw_text      TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("ensure submissions schema: %w", err)
	}
	return nil
}

// Save inserts one archived submission.
func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	warnings, err := json.Marshal(rec.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, customer_code, customer_name, submitted_at, success, steps, warnings, raw_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.CustomerCode, rec.CustomerName, rec.SubmittedAt,
		rec.Success, steps, warnings, rec.RawText,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetByID returns the archived submission, or ErrNotFound.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_code, customer_name, submitted_at, success, steps, warnings, raw_text
		FROM submissions WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListByCustomerCode returns the most recent submissions for a customer,
// newest first.
func (s *PostgresStore) ListByCustomerCode(ctx context.Context, customerCode string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_code, customer_name, submitted_at, success, steps, warnings, raw_text
		FROM submissions WHERE customer_code = $1
		ORDER BY submitted_at DESC LIMIT $2`, customerCode, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var steps, warnings []byte

	err := row.Scan(&rec.ID, &rec.CustomerCode, &rec.CustomerName, &rec.SubmittedAt,
		&rec.Success, &steps, &warnings, &rec.RawText)
	if err != nil {
		return nil, err
	}

	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &rec.Steps); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
	}
	if len(warnings) > 0 {
		var ws []note.Warning
		if err := json.Unmarshal(warnings, &ws); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
		rec.Warnings = ws
	}
	return &rec, nil
}

// StepSummaries flattens the step outcomes for display.
func StepSummaries(steps []submission.StepResult) []string {
	summaries := make([]string, 0, len(steps))
	for _, step := range steps {
		switch {
		case step.Skipped:
			summaries = append(summaries, step.StepName+": skipped")
		case step.Success:
			summaries = append(summaries, step.StepName+": ok")
		default:
			summaries = append(summaries, step.StepName+": failed")
		}
	}
	return summaries
}
