package parsesalesnote

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"crm-intake-workers/internal/common/config"
	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/common/logger"
	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/submission"
	"crm-intake-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

const sampleNote = `客戶：C45636 測試餐飲有限公司
安裝位置：澳門新馬路33號金利大廈5樓A座
使用方式：租用
月費金額：288
合約年期：2年
合約開始日：2025-11-25
負責人：liz`

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     TaskType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_ParseSalesNote",
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
	cfg.Builder.ServiceOwner.ID = "owner-service"
	cfg.Builder.ServiceOwner.Name = "客服003"
	cfg.Builder.OwnerWhitelist = map[string]submission.OwnerRef{
		"liz": {ID: "owner-liz", Name: "LIZ"},
	}
	return cfg
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	handler, err := NewHandler(HandlerOptions{
		CustomConfig: testConfig(),
		Logger:       logger.NewStructured("error", "json"),
	})
	require.NoError(t, err)
	handler.service.(*Service).now = func() time.Time {
		return time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	}
	return handler
}

// ==========================
// Handler Creation Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		handler, err := NewHandler(HandlerOptions{CustomConfig: testConfig()})
		require.NoError(t, err)
		assert.Equal(t, TaskType, handler.GetTaskType())
		assert.True(t, handler.IsEnabled())
	})

	t.Run("invalid timeout", func(t *testing.T) {
		cfg := testConfig()
		cfg.Timeout = 0
		_, err := NewHandler(HandlerOptions{CustomConfig: cfg})
		assert.ErrorContains(t, err, "timeout must be positive")
	})

	t.Run("worker config from app config", func(t *testing.T) {
		appConfig := &config.Config{
			Workers: map[string]config.WorkerConfig{
				"parse-sales-note": {Enabled: false, MaxJobsActive: 12, Timeout: 45000},
			},
		}
		handler, err := NewHandler(HandlerOptions{AppConfig: appConfig})
		require.NoError(t, err)
		assert.False(t, handler.IsEnabled())
		assert.Equal(t, 12, handler.GetConfig().MaxJobsActive)
		assert.Equal(t, 45*time.Second, handler.GetConfig().Timeout)
	})
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("full input", func(t *testing.T) {
		job := createMockJob(1, map[string]interface{}{
			"noteText":      sampleNote,
			"priorRecord":   map[string]interface{}{"installLocation": "澳門舊址"},
			"referenceDate": "2025-08-25",
		})

		input, err := handler.parseInput(job)
		require.NoError(t, err)
		assert.Equal(t, sampleNote, input.NoteText)
		assert.Equal(t, models.PriorRecord{"installLocation": "澳門舊址"}, input.PriorRecord)
		assert.Equal(t, "2025-08-25", input.ReferenceDate)
	})

	t.Run("missing note text", func(t *testing.T) {
		job := createMockJob(2, map[string]interface{}{"referenceDate": "2025-08-25"})

		_, err := handler.parseInput(job)
		require.Error(t, err)
		stdErr, ok := err.(*errors.StandardError)
		require.True(t, ok)
		assert.Equal(t, errors.ErrCodeValidationFailed, stdErr.Code)
	})

	t.Run("malformed reference date rejected by schema", func(t *testing.T) {
		job := createMockJob(3, map[string]interface{}{
			"noteText":      sampleNote,
			"referenceDate": "25/08/2025",
		})

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

func TestHandler_Execute_RentalNote(t *testing.T) {
	handler := newTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		NoteText:      sampleNote,
		ReferenceDate: "2025-08-25",
	})
	require.NoError(t, err)

	assert.True(t, output.Success)
	assert.Equal(t, "C45636", output.Context["customerCode"])
	assert.Equal(t, "測試餐飲有限公司", output.Context["customerName"])
	assert.Equal(t, "288", output.Context["monthlyFee"])
	assert.Equal(t, "2", output.Context["contractYears"])
	assert.Equal(t, "2027-11-25", output.Context["contractEndDate"])
	assert.Equal(t, "6912", output.Context["expectSignMoney"])
	assert.Equal(t, "owner-liz", output.Context["ownerId"])

	assert.NotEmpty(t, output.OpportunityDraft.FlatFields)
	assert.NotEmpty(t, output.CustomerDraft.FlatFields)
	assert.NotEmpty(t, output.DuplicateProbe.FlatFields)
}

func TestHandler_Execute_PriorRecordFillsGaps(t *testing.T) {
	handler := newTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		NoteText: "客戶：C45636 測試餐飲有限公司\n月費金額：288",
		PriorRecord: models.PriorRecord{
			"installLocation": "澳門新馬路33號金利大廈5樓",
			"contactTel":      "66001122",
		},
		ReferenceDate: "2025-08-25",
	})
	require.NoError(t, err)

	assert.Equal(t, "澳門新馬路33號金利大廈5樓", output.Context["installLocation"])
	assert.Equal(t, "66001122", output.Context["contactTel"])
	// The parsed note always wins over the prior record.
	assert.Equal(t, "288", output.Context["monthlyFee"])
}

func TestHandler_Execute_UnknownLabelWarns(t *testing.T) {
	handler := newTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		NoteText:      "客戶：C45636 測試餐飲有限公司\n神秘欄位：值\n月費金額：288",
		ReferenceDate: "2025-08-25",
	})
	require.NoError(t, err)

	assert.True(t, output.Success)
	found := false
	for _, w := range output.Warnings {
		if w.Stage == note.StageNormalize && w.Field == "神秘欄位" {
			found = true
		}
	}
	assert.True(t, found, "expected a normalize-stage warning for the unknown label")
}

func TestHandler_Execute_InvalidReferenceDate(t *testing.T) {
	handler := newTestHandler(t)

	_, err := handler.Execute(context.Background(), &Input{
		NoteText:      sampleNote,
		ReferenceDate: "2025-13-99",
	})
	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeValidationFailed, stdErr.Code)
	assert.False(t, stdErr.Retryable)
}

func TestHandler_Execute_NoReferenceDateUsesClock(t *testing.T) {
	handler := newTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		NoteText: "客戶：C45636 測試餐飲有限公司\n月費金額：288\n租用年期：2年",
	})
	require.NoError(t, err)

	// The injected clock anchors the expected sign date.
	assert.Equal(t, "2025-08-25", output.Context["expectSignDate"])
}
