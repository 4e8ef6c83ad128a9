package parsesalesnote

import (
	"context"
	"time"

	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/intake/normalize"
	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/payload"
	"crm-intake-workers/internal/intake/submission"
	"crm-intake-workers/internal/intake/textparse"
	"crm-intake-workers/internal/models"
)

// Service runs the read-only half of the intake pipeline: parse the note,
// normalize the fields, build the submission context, and assemble the
// gateway payload drafts. Nothing is submitted anywhere.
type Service struct {
	config *Config
	logger logger.Logger

	builder     *submission.Builder
	opportunity *payload.Assembler
	customer    *payload.Assembler
	duplicate   *payload.Assembler

	now func() time.Time
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config:      config,
		logger:      deps.Logger,
		builder:     submission.NewBuilder(config.Builder),
		opportunity: payload.NewOpportunityAssembler(),
		customer:    payload.NewCustomerApplicationAssembler(),
		duplicate:   payload.NewDuplicateCheckAssembler(),
		now:         time.Now,
	}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	referenceDate, err := s.referenceDate(input.ReferenceDate)
	if err != nil {
		return nil, err
	}

	sctx, warnings := BuildContext(s.builder, input.NoteText, input.PriorRecord, referenceDate)

	s.logger.Info("Sales note parsed", map[string]interface{}{
		"customerCode": sctx.Value(note.KeyCustomerCode),
		"customerName": sctx.Value(note.KeyCustomerName),
		"fields":       len(sctx.Keys()),
		"warnings":     len(warnings),
	})

	return &Output{
		Success:          true,
		Context:          sctx.Snapshot(),
		Warnings:         warnings,
		OpportunityDraft: s.opportunity.Assemble(sctx),
		CustomerDraft:    s.customer.Assemble(sctx),
		DuplicateProbe:   s.duplicate.Assemble(sctx),
	}, nil
}

func (s *Service) referenceDate(raw string) (time.Time, error) {
	if raw == "" {
		return s.now().UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.NewValidationError(
			"Invalid referenceDate",
			"referenceDate must be YYYY-MM-DD: "+err.Error(),
		)
	}
	return parsed, nil
}

// BuildContext runs parse, normalize, and build over one note. The reference
// date anchors relative and year-less dates; the prior record only fills
// fields the note left absent.
func BuildContext(builder *submission.Builder, noteText string, prior models.PriorRecord, referenceDate time.Time) (*submission.Context, []note.Warning) {
	tables := normalize.DefaultTables()
	tables.ReferenceYear = referenceDate.Year()

	lines, warnings := textparse.New(tables.LabelNames()).Parse(noteText)
	fields, normWarnings := normalize.New(tables).Normalize(lines)
	warnings = append(warnings, normWarnings...)

	var priorRecord *submission.PriorRecord
	if len(prior) > 0 {
		priorFields := make(map[note.Key]string, len(prior))
		for key, value := range prior {
			priorFields[note.Key(key)] = value
		}
		priorRecord = &submission.PriorRecord{Fields: priorFields}
	}

	sctx, buildWarnings := builder.Build(fields, priorRecord, submission.BuildOptions{
		ReferenceDate: referenceDate,
		RawText:       noteText,
	})
	warnings = append(warnings, buildWarnings...)

	return sctx, warnings
}
