// internal/intake/orchestrate/orchestrate.go

// Package orchestrate runs the submission pipeline: duplicate check,
// customer application, opportunity, follow-up tasks. A failed step is
// recorded and the pipeline moves on; only an unresolvable customer
// identifier escalates to the run error.
package orchestrate

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/common/metrics"
	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/payload"
	"crm-intake-workers/internal/intake/resolve"
	"crm-intake-workers/internal/intake/submission"
)

// Backend is the CRM collaborator, exactly one operation per pipeline step.
type Backend interface {
	CheckDuplicate(ctx context.Context, p payload.Payload) (map[string]interface{}, error)
	CreateCustomer(ctx context.Context, p payload.Payload) (map[string]interface{}, error)
	CreateOpportunity(ctx context.Context, p payload.Payload, sctx *submission.Context) (map[string]interface{}, error)
	CreateTasks(ctx context.Context, customerID string, sctx *submission.Context) (map[string]interface{}, error)
	LookupCustomerIDByCode(ctx context.Context, code string) (string, error)
}

// Settings gate the optional steps and bound every backend call. The zero
// value runs the full pipeline with the default step timeout.
type Settings struct {
	StepTimeout        time.Duration
	SkipDuplicateCheck bool
	DisableOpportunity bool
	DisableTasks       bool
}

const defaultStepTimeout = 15 * time.Second

// Orchestrator drives one submission through the backend. It holds no
// per-run state; a submission's state lives in its Context and Result.
type Orchestrator struct {
	backend  Backend
	settings Settings
	logger   *zap.Logger

	duplicateAssembler   *payload.Assembler
	customerAssembler    *payload.Assembler
	opportunityAssembler *payload.Assembler
}

func NewOrchestrator(backend Backend, settings Settings, logger *zap.Logger) *Orchestrator {
	if settings.StepTimeout <= 0 {
		settings.StepTimeout = defaultStepTimeout
	}
	return &Orchestrator{
		backend:  backend,
		settings: settings,
		logger:   logger,

		duplicateAssembler:   payload.NewDuplicateCheckAssembler(),
		customerAssembler:    payload.NewCustomerApplicationAssembler(),
		opportunityAssembler: payload.NewOpportunityAssembler(),
	}
}

// Run executes the pipeline over a built submission context. The returned
// Result always carries every step outcome; the error is non-nil only when
// the customer identifier could not be resolved for task creation.
func (o *Orchestrator) Run(ctx context.Context, sctx *submission.Context, rawText string) (*submission.Result, error) {
	start := time.Now()
	result := &submission.Result{SubmissionID: uuid.New().String()}

	if rawText != "" {
		sctx.SetIfAbsent(note.KeyRawText, rawText)
	}

	o.logger.Info("submission started",
		zap.String("submission_id", result.SubmissionID),
		zap.String("customer_code", sctx.Value(note.KeyCustomerCode)))

	duplicate := o.runCheckDuplicate(ctx, sctx, result)
	o.runCreateCustomer(ctx, sctx, result, duplicate)
	opportunityResp := o.runCreateOpportunity(ctx, sctx, result)
	err := o.runCreateTasks(ctx, sctx, result, opportunityResp)

	result.Context = sctx.Snapshot()

	succeeded := result.Succeeded() && err == nil
	metrics.SubmissionDuration.WithLabelValues(strconv.FormatBool(succeeded)).Observe(time.Since(start).Seconds())
	o.logger.Info("submission finished",
		zap.String("submission_id", result.SubmissionID),
		zap.Bool("success", succeeded),
		zap.Int("steps", len(result.Steps)))

	return result, err
}

// runCheckDuplicate reports whether an existing customer matched. A matched
// customer's identifier is reused so the rest of the pipeline attaches to
// the existing record. A transport failure is recorded but does not stop the
// run; the application step decides for itself.
func (o *Orchestrator) runCheckDuplicate(ctx context.Context, sctx *submission.Context, result *submission.Result) bool {
	if o.settings.SkipDuplicateCheck {
		o.record(result, submission.StepResult{StepName: submission.StepCheckDuplicate, Skipped: true})
		return false
	}

	p := o.duplicateAssembler.Assemble(sctx)
	resp, err := o.call(ctx, func(stepCtx context.Context) (map[string]interface{}, error) {
		return o.backend.CheckDuplicate(stepCtx, p)
	})
	if err != nil {
		o.record(result, failedStep(submission.StepCheckDuplicate, err))
		return false
	}

	match, found := duplicateMatch(resp)
	if found {
		if id := duplicateCustomerID(match); id != "" {
			sctx.SetIfAbsent(note.KeyCustomerID, id)
			sctx.SetIfAbsent(note.KeyCustomerRef, id)
			o.logger.Info("duplicate customer matched, reusing identifier",
				zap.String("customer_id", id))
		}
	}
	o.record(result, submission.StepResult{
		StepName:     submission.StepCheckDuplicate,
		Success:      true,
		ResponseData: resp,
	})
	return found
}

func (o *Orchestrator) runCreateCustomer(ctx context.Context, sctx *submission.Context, result *submission.Result, duplicate bool) {
	if duplicate {
		o.logger.Info("customer application skipped, duplicate matched")
		o.record(result, submission.StepResult{StepName: submission.StepCreateCustomer, Skipped: true})
		return
	}

	p := o.customerAssembler.Assemble(sctx)
	resp, err := o.call(ctx, func(stepCtx context.Context) (map[string]interface{}, error) {
		return o.backend.CreateCustomer(stepCtx, p)
	})
	if err != nil {
		o.record(result, failedStep(submission.StepCreateCustomer, err))
		return
	}

	if id, ok := resolve.ApplicationCustomerID(resp); ok {
		sctx.SetIfAbsent(note.KeyCustomerID, id)
	}
	o.record(result, submission.StepResult{
		StepName:     submission.StepCreateCustomer,
		Success:      true,
		ResponseData: resp,
	})
}

// runCreateOpportunity returns the opportunity response envelope; the task
// step resolves the customer identifier against it.
func (o *Orchestrator) runCreateOpportunity(ctx context.Context, sctx *submission.Context, result *submission.Result) map[string]interface{} {
	if o.settings.DisableOpportunity {
		o.record(result, submission.StepResult{StepName: submission.StepCreateOpportunity, Skipped: true})
		return nil
	}

	if !sctx.Has(note.KeyCustomerRef) {
		err := errors.NewValidationError(
			"customer reference required for opportunity",
			"neither customerCode nor customerId is set")
		o.record(result, failedStep(submission.StepCreateOpportunity, err))
		return nil
	}

	p := o.opportunityAssembler.Assemble(sctx)
	resp, err := o.call(ctx, func(stepCtx context.Context) (map[string]interface{}, error) {
		return o.backend.CreateOpportunity(stepCtx, p, sctx)
	})
	if err != nil {
		o.record(result, failedStep(submission.StepCreateOpportunity, err))
		return nil
	}

	if data, ok := resp["data"].(map[string]interface{}); ok {
		if id := scalarString(data["id"]); id != "" {
			sctx.SetIfAbsent(note.KeyOpptID, id)
		}
		if stage := scalarString(data["opptStage"]); stage != "" {
			sctx.SetIfAbsent(note.KeyOpptStage, stage)
		}
	}
	o.warnOnCustomerDivergence(sctx, result, resp)

	o.record(result, submission.StepResult{
		StepName:     submission.StepCreateOpportunity,
		Success:      true,
		ResponseData: resp,
	})
	return resp
}

// warnOnCustomerDivergence flags responses that echo a different customer
// than the one the submission holds. The context value stays authoritative.
func (o *Orchestrator) warnOnCustomerDivergence(sctx *submission.Context, result *submission.Result, resp map[string]interface{}) {
	echoed, ok := resolve.ResponseCustomerID(resp)
	if !ok {
		return
	}
	have := sctx.Value(note.KeyCustomerID)
	if have == "" || echoed == have {
		return
	}
	o.logger.Warn("opportunity response echoed a different customer",
		zap.String("context_customer_id", have),
		zap.String("echoed_customer_id", echoed))
	result.Warnings = append(result.Warnings, note.NewWarning(
		note.StageSubmit,
		string(note.KeyCustomerID),
		"opportunity response echoed customer "+echoed+", context has "+have))
}

// runCreateTasks resolves the customer identifier and saves the follow-up
// task series. An unresolved identifier is the one failure that escalates to
// the Run error; the caller needs to know no tasks exist for this customer.
func (o *Orchestrator) runCreateTasks(ctx context.Context, sctx *submission.Context, result *submission.Result, opportunityResp map[string]interface{}) error {
	if o.settings.DisableTasks {
		o.record(result, submission.StepResult{StepName: submission.StepCreateTasks, Skipped: true})
		return nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, o.settings.StepTimeout)
	defer cancel()

	chain := resolve.CustomerIDChain(func(code string) (string, bool) {
		id, err := o.backend.LookupCustomerIDByCode(resolveCtx, code)
		if err != nil {
			o.logger.Warn("customer lookup failed", zap.String("customer_code", code), zap.Error(err))
			return "", false
		}
		return id, id != ""
	})

	customerID, err := chain.Resolve(sctx, opportunityResp)
	if err != nil {
		// A deadline hit during resolution is a transport problem, not a
		// missing identifier.
		if resolveCtx.Err() != nil {
			o.record(result, failedStep(submission.StepCreateTasks,
				errors.NewExternalServiceError("crm-gateway", resolveCtx.Err())))
			return nil
		}
		o.record(result, failedStep(submission.StepCreateTasks, err))
		return err
	}
	sctx.SetIfAbsent(note.KeyCustomerID, customerID)

	resp, err := o.call(ctx, func(stepCtx context.Context) (map[string]interface{}, error) {
		return o.backend.CreateTasks(stepCtx, customerID, sctx)
	})
	if err != nil {
		o.record(result, failedStep(submission.StepCreateTasks, err))
		return nil
	}

	o.record(result, submission.StepResult{
		StepName:     submission.StepCreateTasks,
		Success:      true,
		ResponseData: resp,
	})
	return nil
}

// call runs one backend operation under the step timeout. Errors that are
// not already structured surface as retryable external-service errors.
func (o *Orchestrator) call(ctx context.Context, fn func(context.Context) (map[string]interface{}, error)) (map[string]interface{}, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.settings.StepTimeout)
	defer cancel()

	resp, err := fn(stepCtx)
	if err == nil {
		return resp, nil
	}
	var stdErr *errors.StandardError
	if !goerrors.As(err, &stdErr) {
		err = errors.NewExternalServiceError("crm-gateway", err)
	}
	return nil, err
}

func (o *Orchestrator) record(result *submission.Result, step submission.StepResult) {
	status := "success"
	switch {
	case step.Skipped:
		status = "skipped"
	case !step.Success:
		status = "failed"
	}
	metrics.SubmissionSteps.WithLabelValues(step.StepName, status).Inc()

	if status == "failed" {
		o.logger.Warn("submission step failed",
			zap.String("step", step.StepName),
			zap.String("error", step.Error))
	} else {
		o.logger.Info("submission step finished",
			zap.String("step", step.StepName),
			zap.String("status", status))
	}
	result.Append(step)
}

func failedStep(name string, err error) submission.StepResult {
	return submission.StepResult{StepName: name, Error: err.Error()}
}

// duplicateMatch interprets a duplicate-check envelope. The gateway answers
// with a list of matching customer cards, a recordList object, or an empty
// data value when the customer is new. A bare data object counts as a match
// only when it carries a customer identifier; informational fields alone
// never skip the customer application.
func duplicateMatch(resp map[string]interface{}) (map[string]interface{}, bool) {
	switch data := resp["data"].(type) {
	case []interface{}:
		for _, entry := range data {
			if record, ok := entry.(map[string]interface{}); ok {
				return record, true
			}
		}
		return nil, len(data) > 0
	case map[string]interface{}:
		if raw, ok := data["recordList"].([]interface{}); ok {
			for _, entry := range raw {
				if record, ok := entry.(map[string]interface{}); ok {
					return record, true
				}
			}
			return nil, len(raw) > 0
		}
		if duplicateCustomerID(data) != "" {
			return data, true
		}
	}
	return nil, false
}

func duplicateCustomerID(record map[string]interface{}) string {
	for _, key := range []string{"id", "customerId", "customer_id", "custId"} {
		if id := scalarString(record[key]); id != "" {
			return id
		}
	}
	return ""
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
