// internal/intake/orchestrate/orchestrate_test.go
package orchestrate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/payload"
	"crm-intake-workers/internal/intake/submission"
)

// ==========================
// Test Backend
// ==========================

// mockBackend counts calls in order and delegates to per-step functions.
// A nil function answers with a benign success envelope.
type mockBackend struct {
	checkDuplicate    func(ctx context.Context, p payload.Payload) (map[string]interface{}, error)
	createCustomer    func(ctx context.Context, p payload.Payload) (map[string]interface{}, error)
	createOpportunity func(ctx context.Context, p payload.Payload, sctx *submission.Context) (map[string]interface{}, error)
	createTasks       func(ctx context.Context, customerID string, sctx *submission.Context) (map[string]interface{}, error)
	lookup            func(ctx context.Context, code string) (string, error)

	calls           []string
	tasksCustomerID string
}

func (m *mockBackend) CheckDuplicate(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
	m.calls = append(m.calls, submission.StepCheckDuplicate)
	if m.checkDuplicate != nil {
		return m.checkDuplicate(ctx, p)
	}
	return envelope([]interface{}{}), nil
}

func (m *mockBackend) CreateCustomer(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
	m.calls = append(m.calls, submission.StepCreateCustomer)
	if m.createCustomer != nil {
		return m.createCustomer(ctx, p)
	}
	return envelope(map[string]interface{}{
		"id":         json.Number("900"),
		"customerId": json.Number("77001"),
	}), nil
}

func (m *mockBackend) CreateOpportunity(ctx context.Context, p payload.Payload, sctx *submission.Context) (map[string]interface{}, error) {
	m.calls = append(m.calls, submission.StepCreateOpportunity)
	if m.createOpportunity != nil {
		return m.createOpportunity(ctx, p, sctx)
	}
	return envelope(map[string]interface{}{
		"id":        json.Number("1705112066885419012"),
		"opptStage": json.Number("1587859872035110919"),
	}), nil
}

func (m *mockBackend) CreateTasks(ctx context.Context, customerID string, sctx *submission.Context) (map[string]interface{}, error) {
	m.calls = append(m.calls, submission.StepCreateTasks)
	m.tasksCustomerID = customerID
	if m.createTasks != nil {
		return m.createTasks(ctx, customerID, sctx)
	}
	return map[string]interface{}{"created": []string{"TASKNEW20251120103000"}, "count": 1}, nil
}

func (m *mockBackend) LookupCustomerIDByCode(ctx context.Context, code string) (string, error) {
	m.calls = append(m.calls, "lookup")
	if m.lookup != nil {
		return m.lookup(ctx, code)
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

func builtContext() *submission.Context {
	sctx := submission.NewContext()
	sctx.Set(note.KeyCustomerCode, "C45636")
	sctx.Set(note.KeyCustomerName, "大豐銀行")
	sctx.Set(note.KeyCustomerRef, "C45636")
	sctx.Set(note.KeyContactTel, "66778899")
	return sctx
}

func newTestOrchestrator(backend Backend, settings Settings) *Orchestrator {
	return NewOrchestrator(backend, settings, zap.NewNop())
}

// ==========================
// Pipeline Tests
// ==========================

func TestRun_FullPipeline(t *testing.T) {
	backend := &mockBackend{}
	orch := newTestOrchestrator(backend, Settings{})
	sctx := builtContext()

	result, err := orch.Run(context.Background(), sctx, "C45636 大豐銀行 66778899")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.SubmissionID)
	assert.True(t, result.Succeeded())

	require.Len(t, result.Steps, 4)
	assert.Equal(t, submission.StepCheckDuplicate, result.Steps[0].StepName)
	assert.Equal(t, submission.StepCreateCustomer, result.Steps[1].StepName)
	assert.Equal(t, submission.StepCreateOpportunity, result.Steps[2].StepName)
	assert.Equal(t, submission.StepCreateTasks, result.Steps[3].StepName)
	for _, step := range result.Steps {
		assert.True(t, step.Success, step.StepName)
		assert.False(t, step.Skipped, step.StepName)
	}

	// identifiers propagate from the responses into the context
	assert.Equal(t, "77001", sctx.Value(note.KeyCustomerID))
	assert.Equal(t, "1705112066885419012", sctx.Value(note.KeyOpptID))
	assert.Equal(t, "1587859872035110919", sctx.Value(note.KeyOpptStage))
	assert.Equal(t, "77001", backend.tasksCustomerID)

	// the raw note lands in the context and the result snapshot
	assert.Equal(t, "C45636 大豐銀行 66778899", result.Context["rawText"])

	// the customer id came from the application step, never the lookup
	assert.Equal(t, []string{
		submission.StepCheckDuplicate,
		submission.StepCreateCustomer,
		submission.StepCreateOpportunity,
		submission.StepCreateTasks,
	}, backend.calls)
}

func TestRun_DuplicateReusesExistingCustomer(t *testing.T) {
	backend := &mockBackend{
		checkDuplicate: func(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
			return envelope([]interface{}{
				map[string]interface{}{
					"id":   json.Number("1587859872035110919"),
					"name": "大豐銀行",
				},
			}), nil
		},
	}
	orch := newTestOrchestrator(backend, Settings{})
	sctx := builtContext()

	result, err := orch.Run(context.Background(), sctx, "")

	require.NoError(t, err)
	assert.True(t, result.Succeeded())

	step, ok := result.Step(submission.StepCreateCustomer)
	require.True(t, ok)
	assert.True(t, step.Skipped)
	assert.NotContains(t, backend.calls, submission.StepCreateCustomer)

	assert.Equal(t, "1587859872035110919", sctx.Value(note.KeyCustomerID))
	assert.Equal(t, "1587859872035110919", backend.tasksCustomerID)
}

func TestRun_DuplicateCheckFailureContinues(t *testing.T) {
	backend := &mockBackend{
		checkDuplicate: func(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
			return nil, errors.NewExternalServiceError("crm-gateway", context.DeadlineExceeded)
		},
	}
	orch := newTestOrchestrator(backend, Settings{})
	sctx := builtContext()

	result, err := orch.Run(context.Background(), sctx, "")

	require.NoError(t, err)
	assert.False(t, result.Succeeded())

	step, ok := result.Step(submission.StepCheckDuplicate)
	require.True(t, ok)
	assert.False(t, step.Success)
	assert.Contains(t, step.Error, "EXTERNAL_SERVICE_ERROR")

	// the application still runs; a flaky duplicate probe must not block intake
	assert.Contains(t, backend.calls, submission.StepCreateCustomer)
	assert.Contains(t, backend.calls, submission.StepCreateTasks)
}

func TestRun_OpportunityRequiresCustomerReference(t *testing.T) {
	backend := &mockBackend{}
	orch := newTestOrchestrator(backend, Settings{SkipDuplicateCheck: true})

	// a context built without code or id carries no customerRef
	sctx := submission.NewContext()
	sctx.Set(note.KeyCustomerName, "散客")
	sctx.Set(note.KeyCustomerID, "555")

	result, err := orch.Run(context.Background(), sctx, "")

	require.NoError(t, err)

	step, ok := result.Step(submission.StepCreateOpportunity)
	require.True(t, ok)
	assert.False(t, step.Success)
	assert.Contains(t, step.Error, "VALIDATION_ERROR")
	assert.NotContains(t, backend.calls, submission.StepCreateOpportunity)

	// tasks still run off the context identifier
	assert.Equal(t, "555", backend.tasksCustomerID)
}

func TestRun_UnresolvedCustomerIsTheRunError(t *testing.T) {
	backend := &mockBackend{
		createCustomer: func(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
			// application accepted but no customer id anywhere in the response
			return envelope(map[string]interface{}{"id": json.Number("900")}), nil
		},
	}
	orch := newTestOrchestrator(backend, Settings{DisableOpportunity: true})

	sctx := submission.NewContext()
	sctx.Set(note.KeyCustomerName, "無編號客戶")

	result, err := orch.Run(context.Background(), sctx, "")

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeIdentifierUnresolved, stdErr.Code)

	// the result still carries every step up to and including the failure
	require.Len(t, result.Steps, 4)
	step, ok := result.Step(submission.StepCreateTasks)
	require.True(t, ok)
	assert.False(t, step.Success)
	assert.NotContains(t, backend.calls, submission.StepCreateTasks)
	assert.NotNil(t, result.Context)
}

func TestRun_LookupDeadlineIsExternalNotUnresolved(t *testing.T) {
	backend := &mockBackend{
		lookup: func(ctx context.Context, code string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	orch := newTestOrchestrator(backend, Settings{
		StepTimeout:        30 * time.Millisecond,
		SkipDuplicateCheck: true,
		DisableOpportunity: true,
	})
	backend.createCustomer = func(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
		return envelope(map[string]interface{}{"id": json.Number("900")}), nil
	}

	sctx := submission.NewContext()
	sctx.Set(note.KeyCustomerCode, "C45636")
	sctx.Set(note.KeyCustomerRef, "C45636")

	result, err := orch.Run(context.Background(), sctx, "")

	require.NoError(t, err)

	step, ok := result.Step(submission.StepCreateTasks)
	require.True(t, ok)
	assert.False(t, step.Success)
	assert.Contains(t, step.Error, "EXTERNAL_SERVICE_ERROR")
	assert.NotContains(t, step.Error, "IDENTIFIER_UNRESOLVED")
	assert.NotContains(t, backend.calls, submission.StepCreateTasks)
}

func TestRun_TasksResolveViaLookup(t *testing.T) {
	backend := &mockBackend{
		createCustomer: func(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
			return envelope(map[string]interface{}{"id": json.Number("900")}), nil
		},
		createOpportunity: func(ctx context.Context, p payload.Payload, sctx *submission.Context) (map[string]interface{}, error) {
			return envelope(map[string]interface{}{"id": json.Number("8001")}), nil
		},
		lookup: func(ctx context.Context, code string) (string, error) {
			if code == "C45636" {
				return "1587859872035110919", nil
			}
			return "", nil
		},
	}
	orch := newTestOrchestrator(backend, Settings{})
	sctx := builtContext()

	result, err := orch.Run(context.Background(), sctx, "")

	require.NoError(t, err)
	assert.Contains(t, backend.calls, "lookup")
	assert.Equal(t, "1587859872035110919", backend.tasksCustomerID)
	assert.Equal(t, "1587859872035110919", sctx.Value(note.KeyCustomerID))
	assert.True(t, result.Succeeded())
}

func TestRun_TaskSaveFailureDoesNotEscalate(t *testing.T) {
	backend := &mockBackend{
		createTasks: func(ctx context.Context, customerID string, sctx *submission.Context) (map[string]interface{}, error) {
			return nil, errors.NewExternalServiceError("crm-gateway", context.DeadlineExceeded)
		},
	}
	orch := newTestOrchestrator(backend, Settings{})
	sctx := builtContext()

	result, err := orch.Run(context.Background(), sctx, "")

	require.NoError(t, err)
	step, ok := result.Step(submission.StepCreateTasks)
	require.True(t, ok)
	assert.False(t, step.Success)
	assert.False(t, result.Succeeded())
}

func TestRun_FlagsSkipSteps(t *testing.T) {
	backend := &mockBackend{}
	orch := newTestOrchestrator(backend, Settings{
		SkipDuplicateCheck: true,
		DisableOpportunity: true,
		DisableTasks:       true,
	})
	sctx := builtContext()

	result, err := orch.Run(context.Background(), sctx, "")

	require.NoError(t, err)
	require.Len(t, result.Steps, 4)
	assert.True(t, result.Succeeded())

	for _, name := range []string{
		submission.StepCheckDuplicate,
		submission.StepCreateOpportunity,
		submission.StepCreateTasks,
	} {
		step, ok := result.Step(name)
		require.True(t, ok, name)
		assert.True(t, step.Skipped, name)
	}

	customer, ok := result.Step(submission.StepCreateCustomer)
	require.True(t, ok)
	assert.True(t, customer.Success)
	assert.Equal(t, []string{submission.StepCreateCustomer}, backend.calls)
}

func TestRun_OpportunityCustomerDivergenceWarns(t *testing.T) {
	backend := &mockBackend{
		createOpportunity: func(ctx context.Context, p payload.Payload, sctx *submission.Context) (map[string]interface{}, error) {
			return envelope(map[string]interface{}{
				"id":       json.Number("8001"),
				"customer": json.Number("999"),
			}), nil
		},
	}
	orch := newTestOrchestrator(backend, Settings{})
	sctx := builtContext()

	result, err := orch.Run(context.Background(), sctx, "")

	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "999")
	assert.Contains(t, result.Warnings[0].Message, "77001")

	// the context value stays authoritative
	assert.Equal(t, "77001", sctx.Value(note.KeyCustomerID))
	assert.Equal(t, "77001", backend.tasksCustomerID)
}

// ==========================
// Duplicate Interpretation
// ==========================

func TestDuplicateMatch(t *testing.T) {
	tests := []struct {
		name      string
		data      interface{}
		wantFound bool
		wantID    string
	}{
		{
			name: "list of match records",
			data: []interface{}{
				map[string]interface{}{"id": json.Number("42"), "name": "大豐銀行"},
			},
			wantFound: true,
			wantID:    "42",
		},
		{
			name:      "empty list means no duplicate",
			data:      []interface{}{},
			wantFound: false,
		},
		{
			name:      "list of scalars still counts as a match",
			data:      []interface{}{"C45636"},
			wantFound: true,
		},
		{
			name: "recordList object",
			data: map[string]interface{}{
				"recordList": []interface{}{
					map[string]interface{}{"customerId": "77001"},
				},
			},
			wantFound: true,
			wantID:    "77001",
		},
		{
			name:      "empty recordList",
			data:      map[string]interface{}{"recordList": []interface{}{}},
			wantFound: false,
		},
		{
			name:      "single record object",
			data:      map[string]interface{}{"custId": json.Number("31")},
			wantFound: true,
			wantID:    "31",
		},
		{
			name:      "informational object without an id is no match",
			data:      map[string]interface{}{"checkRule": "cust_customerCard", "matched": json.Number("0")},
			wantFound: false,
		},
		{
			name:      "empty object",
			data:      map[string]interface{}{},
			wantFound: false,
		},
		{
			name:      "missing data",
			data:      nil,
			wantFound: false,
		},
		{
			name:      "scalar data",
			data:      "ok",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, found := duplicateMatch(envelope(tt.data))
			assert.Equal(t, tt.wantFound, found)
			if tt.wantID != "" {
				require.NotNil(t, match)
				assert.Equal(t, tt.wantID, duplicateCustomerID(match))
			}
		})
	}
}

func TestDuplicateCustomerID(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]interface{}
		want   string
	}{
		{"id key", map[string]interface{}{"id": json.Number("1587859872035110919")}, "1587859872035110919"},
		{"customerId key", map[string]interface{}{"customerId": "77001"}, "77001"},
		{"snake case", map[string]interface{}{"customer_id": "77002"}, "77002"},
		{"custId key", map[string]interface{}{"custId": float64(31)}, "31"},
		{"id wins over customerId", map[string]interface{}{"id": "1", "customerId": "2"}, "1"},
		{"nothing usable", map[string]interface{}{"name": "大豐銀行"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, duplicateCustomerID(tt.record))
		})
	}
}

// ==========================
// Benchmarks
// ==========================

func BenchmarkRunFullPipeline(b *testing.B) {
	backend := &mockBackend{}
	orch := newTestOrchestrator(backend, Settings{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sctx := builtContext()
		_, _ = orch.Run(context.Background(), sctx, "C45636 大豐銀行 66778899")
	}
}
