package submitsalesnote

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/common/observability"
	"crm-intake-workers/internal/intake/history"
	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/notify"
	"crm-intake-workers/internal/intake/orchestrate"
	"crm-intake-workers/internal/intake/session"
	"crm-intake-workers/internal/intake/submission"
	"crm-intake-workers/internal/models"

	parsesalesnote "crm-intake-workers/internal/workers/intake/parse-sales-note"
)

// Service runs the full intake pipeline for one note: build the submission
// context, drive the orchestrator against the CRM backend, then archive,
// cache, and notify. Archiving and notification are best-effort; a
// submission that reached the CRM never fails because of them.
type Service struct {
	config *Config
	logger logger.Logger
	zap    *zap.Logger

	backend  orchestrate.Backend
	sessions *session.Store
	archiver *history.Archiver
	notifier *notify.Notifier
	obs      *observability.Observability

	builder *submission.Builder
	now     func() time.Time
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	zapLogger := deps.Zap
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}

	return &Service{
		config:   config,
		logger:   deps.Logger,
		zap:      zapLogger,
		backend:  deps.Backend,
		sessions: deps.Sessions,
		archiver: deps.Archiver,
		notifier: deps.Notifier,
		obs:      deps.Observability,
		builder:  submission.NewBuilder(config.Builder),
		now:      time.Now,
	}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if s.backend == nil {
		return nil, errors.NewConfigurationError("submit-sales-note has no CRM backend wired")
	}

	referenceDate := s.now().UTC()
	sctx, warnings := parsesalesnote.BuildContext(s.builder, input.NoteText, input.PriorRecord, referenceDate)

	orchestrator := orchestrate.NewOrchestrator(s.backend, s.runSettings(input.Options), s.zap)

	runCtx := ctx
	if s.obs != nil {
		spanCtx, span := s.obs.StartSpan(ctx, "submission.run",
			attribute.String("customer.code", sctx.Value(note.KeyCustomerCode)),
		)
		defer span.End()
		runCtx = spanCtx
	}

	result, runErr := orchestrator.Run(runCtx, sctx, input.NoteText)
	result.Warnings = append(warnings, result.Warnings...)

	success := result.Succeeded() && runErr == nil
	s.persist(runCtx, result, success, input.NoteText)

	if runErr != nil {
		s.logger.Error("Submission run failed", map[string]interface{}{
			"submissionId": result.SubmissionID,
			"error":        runErr.Error(),
		})
		return nil, runErr
	}

	return &Output{
		Success:      success,
		SubmissionID: result.SubmissionID,
		Steps:        stepOutcomes(result.Steps),
		Context:      result.Context,
		Warnings:     result.Warnings,
	}, nil
}

func (s *Service) runSettings(opts models.SubmissionOptions) orchestrate.Settings {
	settings := orchestrate.Settings{
		StepTimeout:        s.config.StepTimeout,
		SkipDuplicateCheck: s.config.SkipDuplicateCheck || opts.SkipDuplicateCheck,
		DisableOpportunity: s.config.DisableOpportunity || opts.DisableOpportunity,
		DisableTasks:       s.config.DisableTasks || opts.DisableTasks,
	}
	if opts.StepTimeoutMs > 0 {
		settings.StepTimeout = time.Duration(opts.StepTimeoutMs) * time.Millisecond
	}
	return settings
}

// persist records the finished run wherever recording is wired. Failures
// here are logged and swallowed.
func (s *Service) persist(ctx context.Context, result *submission.Result, success bool, rawText string) {
	rec := history.RecordFromResult(result, success, s.now())

	if s.archiver != nil {
		s.archiver.Archive(ctx, rec)
	}

	if s.sessions != nil {
		if err := s.sessions.SaveSession(ctx, result.SubmissionID, result.Context, s.config.SessionTTL); err != nil {
			s.logger.Warn("Failed to save submission session", map[string]interface{}{
				"submissionId": result.SubmissionID,
				"error":        err.Error(),
			})
		}
		if code := result.Context[string(note.KeyCustomerCode)]; code != "" {
			if err := s.sessions.RememberRawText(ctx, code, rawText, s.config.RawTextTTL); err != nil {
				s.logger.Warn("Failed to remember raw note text", map[string]interface{}{
					"customerCode": code,
					"error":        err.Error(),
				})
			}
		}
	}

	if s.notifier != nil {
		s.notifier.SubmissionOutcome(ctx, rec)
	}
}

func stepOutcomes(steps []submission.StepResult) []models.StepOutcome {
	outcomes := make([]models.StepOutcome, 0, len(steps))
	for _, step := range steps {
		outcomes = append(outcomes, models.StepOutcome{
			StepName: step.StepName,
			Success:  step.Success,
			Skipped:  step.Skipped,
			Error:    step.Error,
		})
	}
	return outcomes
}
