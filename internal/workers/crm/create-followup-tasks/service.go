package createfollowuptasks

import (
	"context"
	stderrors "errors"
	"strings"

	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/common/validation"
	"crm-intake-workers/internal/intake/session"
)

// TaskCreator is the slice of the CRM client the worker needs.
type TaskCreator interface {
	CreateTasksForCustomerCode(ctx context.Context, customerCode, rawText string) (map[string]interface{}, error)
}

// RawTextSource recalls the original note text for a customer code. A missing
// entry is reported as session.ErrNotFound.
type RawTextSource interface {
	RawText(ctx context.Context, customerCode string) (string, error)
}

type Service struct {
	config   *Config
	logger   logger.Logger
	tasks    TaskCreator
	rawTexts RawTextSource
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config:   config,
		logger:   deps.Logger,
		tasks:    deps.Tasks,
		rawTexts: deps.RawTexts,
	}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if s.tasks == nil {
		return nil, errors.NewConfigurationError("create-followup-tasks has no CRM client wired")
	}

	code := strings.ToUpper(strings.TrimSpace(input.CustomerCode))
	if !validation.ValidateCustomerCode(code) {
		return nil, errors.NewValidationError(
			"invalid customer code",
			"customerCode must be C followed by at least three digits",
		)
	}

	rawText := input.RawText
	if rawText == "" && s.rawTexts != nil {
		recalled, err := s.rawTexts.RawText(ctx, code)
		switch {
		case err == nil:
			rawText = recalled
		case stderrors.Is(err, session.ErrNotFound):
			s.logger.Debug("no archived note text for customer", map[string]interface{}{
				"customer_code": code,
			})
		default:
			// Task derivation degrades to the always-created kinds; the
			// recall failure is not worth failing the job over.
			s.logger.Warn("recalling note text failed", map[string]interface{}{
				"customer_code": code,
				"error":         err.Error(),
			})
		}
	}

	resp, err := s.tasks.CreateTasksForCustomerCode(ctx, code, rawText)
	if err != nil {
		return nil, err
	}

	created := createdCodes(resp)
	s.logger.Info("follow-up tasks created", map[string]interface{}{
		"customer_code": code,
		"count":         len(created),
	})

	return &Output{
		Success: true,
		Message: "follow-up tasks created",
		Created: created,
		Count:   len(created),
	}, nil
}

func createdCodes(resp map[string]interface{}) []string {
	raw, _ := resp["created"].([]interface{})
	codes := make([]string, 0, len(raw))
	for _, item := range raw {
		if code, ok := item.(string); ok {
			codes = append(codes, code)
		}
	}
	return codes
}
