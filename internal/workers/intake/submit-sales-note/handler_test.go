package submitsalesnote

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/intake/payload"
	"crm-intake-workers/internal/intake/session"
	"crm-intake-workers/internal/intake/submission"
	"crm-intake-workers/internal/models"
)

// ==========================
// Test Backend
// ==========================

// fakeBackend answers every pipeline step with a benign success envelope
// unless a per-step override is set.
type fakeBackend struct {
	checkDuplicate    func(ctx context.Context, p payload.Payload) (map[string]interface{}, error)
	createOpportunity func(ctx context.Context, p payload.Payload, sctx *submission.Context) (map[string]interface{}, error)
	lookup            func(ctx context.Context, code string) (string, error)

	calls []string
}

func (f *fakeBackend) CheckDuplicate(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
	f.calls = append(f.calls, submission.StepCheckDuplicate)
	if f.checkDuplicate != nil {
		return f.checkDuplicate(ctx, p)
	}
	return envelope([]interface{}{}), nil
}

func (f *fakeBackend) CreateCustomer(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
	f.calls = append(f.calls, submission.StepCreateCustomer)
	return envelope(map[string]interface{}{
		"id":         json.Number("900"),
		"customerId": json.Number("77001"),
	}), nil
}

func (f *fakeBackend) CreateOpportunity(ctx context.Context, p payload.Payload, sctx *submission.Context) (map[string]interface{}, error) {
	f.calls = append(f.calls, submission.StepCreateOpportunity)
	if f.createOpportunity != nil {
		return f.createOpportunity(ctx, p, sctx)
	}
	return envelope(map[string]interface{}{"id": json.Number("1705112066885419012")}), nil
}

func (f *fakeBackend) CreateTasks(ctx context.Context, customerID string, sctx *submission.Context) (map[string]interface{}, error) {
	f.calls = append(f.calls, submission.StepCreateTasks)
	return map[string]interface{}{"created": []string{"TASKNEW20251125000000"}, "count": 1}, nil
}

func (f *fakeBackend) LookupCustomerIDByCode(ctx context.Context, code string) (string, error) {
	f.calls = append(f.calls, "lookup")
	if f.lookup != nil {
		return f.lookup(ctx, code)
	}
	return "", nil
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"code":    "00000",
		"message": "操作成功",
		"data":    data,
	}
}

// ==========================
// Test Helpers
// ==========================

const sampleNote = `客戶：C45636 測試餐飲有限公司
安裝位置：澳門新馬路33號金利大廈5樓A座
使用方式：租用
月費金額：288
合約年期：2年
合約開始日：2025-11-25`

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     TaskType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_SubmitSalesNote",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Deadline:                 0,
		Variables:                string(variablesJSON),
	}

	return entities.Job{ActivatedJob: activatedJob}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Builder.StageRentID = "stage-rent"
	cfg.Builder.StageBuyID = "stage-buy"
	cfg.Builder.StageDefaultID = "stage-default"
	cfg.Builder.ServiceOwner = submission.OwnerRef{ID: "owner-service", Name: "客服003"}
	return cfg
}

func newTestHandler(t *testing.T, backend *fakeBackend, sessions *session.Store) *Handler {
	t.Helper()
	handler, err := NewHandler(HandlerOptions{
		CustomConfig: testConfig(),
		Logger:       logger.NewStructured("error", "json"),
		Dependencies: ServiceDependencies{
			Backend:  backend,
			Sessions: sessions,
		},
	})
	require.NoError(t, err)
	handler.service.(*Service).now = func() time.Time {
		return time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	}
	return handler
}

func newTestSessions(t *testing.T) (*session.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return session.NewStore(client), mr
}

// ==========================
// Handler Creation Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		handler, err := NewHandler(HandlerOptions{CustomConfig: testConfig()})
		require.NoError(t, err)
		assert.Equal(t, TaskType, handler.GetTaskType())
	})

	t.Run("invalid step timeout", func(t *testing.T) {
		cfg := testConfig()
		cfg.StepTimeout = 0
		_, err := NewHandler(HandlerOptions{CustomConfig: cfg})
		assert.ErrorContains(t, err, "step_timeout must be positive")
	})
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	handler := newTestHandler(t, &fakeBackend{}, nil)

	t.Run("options decoded", func(t *testing.T) {
		job := createMockJob(1, map[string]interface{}{
			"noteText": sampleNote,
			"options": map[string]interface{}{
				"skipDuplicateCheck": true,
				"stepTimeoutMs":      5000,
			},
		})

		input, err := handler.parseInput(job)
		require.NoError(t, err)
		assert.True(t, input.Options.SkipDuplicateCheck)
		assert.Equal(t, 5000, input.Options.StepTimeoutMs)
		assert.False(t, input.Options.DisableTasks)
	})

	t.Run("missing note text", func(t *testing.T) {
		job := createMockJob(2, map[string]interface{}{})

		_, err := handler.parseInput(job)
		require.Error(t, err)
		stdErr, ok := err.(*errors.StandardError)
		require.True(t, ok)
		assert.Equal(t, errors.ErrCodeValidationFailed, stdErr.Code)
	})
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute_FullPipeline(t *testing.T) {
	backend := &fakeBackend{}
	sessions, mr := newTestSessions(t)
	handler := newTestHandler(t, backend, sessions)

	output, err := handler.Execute(context.Background(), &Input{NoteText: sampleNote})
	require.NoError(t, err)

	assert.True(t, output.Success)
	assert.NotEmpty(t, output.SubmissionID)
	assert.Equal(t, "C45636", output.Context["customerCode"])

	require.Len(t, output.Steps, 4)
	stepNames := make([]string, 0, 4)
	for _, step := range output.Steps {
		stepNames = append(stepNames, step.StepName)
		assert.True(t, step.Success, step.StepName)
	}
	assert.Equal(t, []string{
		submission.StepCheckDuplicate,
		submission.StepCreateCustomer,
		submission.StepCreateOpportunity,
		submission.StepCreateTasks,
	}, stepNames)

	// The run is cached for later inspection and the raw note is remembered
	// for the follow-up task worker.
	assert.True(t, mr.Exists("intake:session:"+output.SubmissionID))
	assert.True(t, mr.Exists("intake:rawtext:C45636"))
}

func TestHandler_Execute_StepFailureDoesNotAbort(t *testing.T) {
	backend := &fakeBackend{
		createOpportunity: func(ctx context.Context, p payload.Payload, sctx *submission.Context) (map[string]interface{}, error) {
			return nil, errors.NewExternalServiceError("crm-gateway", context.DeadlineExceeded)
		},
	}
	handler := newTestHandler(t, backend, nil)

	output, err := handler.Execute(context.Background(), &Input{NoteText: sampleNote})
	require.NoError(t, err)

	assert.False(t, output.Success)

	var opportunityFailed, tasksRan bool
	for _, step := range output.Steps {
		if step.StepName == submission.StepCreateOpportunity && !step.Success {
			opportunityFailed = true
		}
		if step.StepName == submission.StepCreateTasks && step.Success {
			tasksRan = true
		}
	}
	assert.True(t, opportunityFailed, "opportunity step should be recorded as failed")
	assert.True(t, tasksRan, "task creation must still run after an opportunity failure")
}

func TestHandler_Execute_OptionsGateSteps(t *testing.T) {
	backend := &fakeBackend{}
	handler := newTestHandler(t, backend, nil)

	output, err := handler.Execute(context.Background(), &Input{
		NoteText: sampleNote,
		Options: models.SubmissionOptions{
			SkipDuplicateCheck: true,
			DisableOpportunity: true,
			DisableTasks:       true,
		},
	})
	require.NoError(t, err)

	assert.True(t, output.Success)
	for _, step := range output.Steps {
		if step.StepName != submission.StepCreateCustomer {
			assert.True(t, step.Skipped, step.StepName)
		}
	}
	assert.Equal(t, []string{submission.StepCreateCustomer}, backend.calls)
}

func TestHandler_Execute_IdentifierUnresolvedEscalates(t *testing.T) {
	handler := newTestHandler(t, &fakeBackend{}, nil)

	// Every step succeeds, but no response carries a customer identifier
	// and the code lookup finds nothing: task creation cannot proceed.
	handler.service.(*Service).backend = noIDBackend{}

	_, err := handler.Execute(context.Background(), &Input{NoteText: sampleNote})
	require.Error(t, err)

	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeIdentifierUnresolved, stdErr.Code)
	assert.False(t, stdErr.Retryable)
}

// noIDBackend succeeds every step but never yields a customer identifier.
type noIDBackend struct{}

func (noIDBackend) CheckDuplicate(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
	return envelope([]interface{}{}), nil
}

func (noIDBackend) CreateCustomer(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
	return envelope(map[string]interface{}{}), nil
}

func (noIDBackend) CreateOpportunity(ctx context.Context, p payload.Payload, sctx *submission.Context) (map[string]interface{}, error) {
	return envelope(map[string]interface{}{}), nil
}

func (noIDBackend) CreateTasks(ctx context.Context, customerID string, sctx *submission.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"created": []string{}}, nil
}

func (noIDBackend) LookupCustomerIDByCode(ctx context.Context, code string) (string, error) {
	return "", nil
}
