package parsesalesnote

import (
	"context"
	"fmt"
	"time"

	"crm-intake-workers/internal/common/config"
	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/common/metrics"
	"crm-intake-workers/internal/common/validation"
	"crm-intake-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "intake.note.parse"

// Executor is the unit of work behind the handler, extracted so tests can
// substitute a mock.
type Executor interface {
	Execute(ctx context.Context, input *Input) (*Output, error)
}

type Handler struct {
	config  *Config
	logger  logger.Logger
	service Executor
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Logger       logger.Logger
	Service      Executor
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for parse-sales-note: %w", err)
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}

	handler := &Handler{
		config: workerConfig,
		logger: loggerInstance,
	}

	if opts.Service != nil {
		handler.service = opts.Service
	} else {
		handler.service = NewService(ServiceDependencies{
			Logger: loggerInstance,
		}, workerConfig)
	}

	return handler, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing sales note parse request", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"worker":             TaskType,
	})

	if !h.config.Enabled {
		h.logger.Info("Worker disabled by configuration", map[string]interface{}{
			"worker": TaskType,
		})
		h.completeJob(ctx, client, job, &Output{
			Success: false,
			Message: "Sales note parsing disabled",
		})
		return
	}

	input, err := h.parseInput(job)
	if err != nil {
		errorCode := extractErrorCode(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()
		h.failJob(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		errorCode := extractErrorCode(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// Execute runs the worker's unit of work outside the job plumbing.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.service.Execute(ctx, input)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, &errors.StandardError{
			Code:      errors.ErrCodeParseFailed,
			Message:   "Failed to parse job variables",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now(),
		}
	}

	schema := GetInputSchema()
	validationResult := validation.ValidateInput(variables, schema)
	if !validationResult.Valid {
		return nil, &errors.StandardError{
			Code:      errors.ErrCodeValidationFailed,
			Message:   "Input validation failed",
			Details:   fmt.Sprintf("Validation errors: %v", validationResult.GetErrorMessages()),
			Retryable: false,
			Timestamp: time.Now(),
		}
	}

	input := &Input{
		NoteText: variables["noteText"].(string),
	}

	if prior, ok := variables["priorRecord"].(map[string]interface{}); ok {
		input.PriorRecord = make(models.PriorRecord, len(prior))
		for key, value := range prior {
			if text, ok := value.(string); ok {
				input.PriorRecord[key] = text
			}
		}
	}

	if referenceDate, ok := variables["referenceDate"].(string); ok {
		input.ReferenceDate = referenceDate
	}

	return input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	variables := map[string]interface{}{
		"noteParsed":  output.Success,
		"noteContext": output.Context,
	}

	if output.Message != "" {
		variables["noteMessage"] = output.Message
	}

	if len(output.Warnings) > 0 {
		variables["noteWarnings"] = output.Warnings
	}

	if output.Success {
		variables["opportunityDraft"] = output.OpportunityDraft
		variables["customerDraft"] = output.CustomerDraft
		variables["duplicateProbe"] = output.DuplicateProbe
	}

	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(variables)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": TaskType,
		})
		return
	}

	_, err = request.Send(ctx)
	if err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": TaskType,
		})
	} else {
		h.logger.Info("Successfully completed sales note parse", map[string]interface{}{
			"jobKey":   job.GetKey(),
			"success":  output.Success,
			"warnings": len(output.Warnings),
			"worker":   TaskType,
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := convertToStandardError(err)
	bpmnErr := errors.ConvertToBPMNError(stdErr)

	h.logger.Error("Sales note parse job failed", map[string]interface{}{
		"jobKey":       job.GetKey(),
		"errorCode":    bpmnErr.Code,
		"errorMessage": bpmnErr.Message,
		"retryable":    bpmnErr.Retryable,
		"retries":      bpmnErr.Retries,
		"worker":       TaskType,
	})

	failCmd := client.NewFailJobCommand().
		JobKey(job.GetKey()).
		Retries(int32(bpmnErr.Retries)).
		ErrorMessage(fmt.Sprintf("[%s] %s", bpmnErr.Code, bpmnErr.Message))

	var finalCmd interface {
		Send(context.Context) (*pb.FailJobResponse, error)
	}
	if len(bpmnErr.ErrorVariables) > 0 {
		varCmd, varErr := failCmd.VariablesFromMap(bpmnErr.ToErrorVariables())
		if varErr != nil {
			h.logger.Error("Failed to set error variables, sending without them", map[string]interface{}{
				"jobKey": job.GetKey(),
				"error":  varErr.Error(),
				"worker": TaskType,
			})
			finalCmd = failCmd
		} else {
			finalCmd = varCmd
		}
	} else {
		finalCmd = failCmd
	}

	_, failErr := finalCmd.Send(ctx)
	if failErr != nil {
		h.logger.Error("Failed to send BPMN error to Camunda", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  failErr.Error(),
			"worker": TaskType,
		})
	}
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}

func (h *Handler) GetConfig() *Config {
	return h.config
}

func extractErrorCode(err error) string {
	if stdErr, ok := err.(*errors.StandardError); ok {
		return string(stdErr.Code)
	}
	return "UNKNOWN_ERROR"
}

func convertToStandardError(err error) *errors.StandardError {
	if stdErr, ok := err.(*errors.StandardError); ok {
		return stdErr
	}
	return &errors.StandardError{
		Code:      errors.ErrCodeInternal,
		Message:   "Failed to parse sales note",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now(),
	}
}
