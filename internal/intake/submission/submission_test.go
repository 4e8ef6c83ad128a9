// internal/intake/submission/submission_test.go
package submission

import (
	"testing"
	"time"

	"crm-intake-workers/internal/intake/note"

	"github.com/stretchr/testify/assert"
)

// ==========================
// Test Helper Functions
// ==========================

func testSettings() Settings {
	return Settings{
		DefaultPlanType:  "MAQUA方案",
		DefaultCurrency:  "MOP",
		DefaultYears:     2,
		ExtendedYears:    3,
		ExtendedKeywords: []string{"HS990", "HM190", "HM290"},
		AddressKeywords:  []string{"座", "樓", "大廈", "街", "路", "號"},
		StageRentID:      "stage-rent",
		StageBuyID:       "stage-buy",
		StageDefaultID:   "stage-default",
		ServiceOwner:     OwnerRef{ID: "owner-service", Name: "客服003"},
		OwnerWhitelist: map[string]OwnerRef{
			"liz":   {ID: "owner-liz", Name: "LIZ"},
			"james": {ID: "owner-james", Name: "James"},
			"成":     {ID: "owner-cheng", Name: "成"},
		},
	}
}

func parsed(pairs ...string) []note.ParsedField {
	var fields []note.ParsedField
	for i := 0; i+1 < len(pairs); i += 2 {
		fields = append(fields, note.ParsedField{
			Key:             note.Key(pairs[i]),
			Value:           pairs[i+1],
			SourceLineIndex: i / 2,
		})
	}
	return fields
}

var testRefDate = time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)

// ==========================
// Context Tests
// ==========================

func TestContext_SetIfAbsent(t *testing.T) {
	ctx := NewContext()

	assert.True(t, ctx.Set(note.KeyCustomerID, "123"))
	assert.False(t, ctx.Set(note.KeyCustomerID, "456"), "set keys are never overwritten")
	assert.Equal(t, "123", ctx.Value(note.KeyCustomerID))

	assert.False(t, ctx.Set(note.KeyCustomerName, ""), "empty values are not stored")
	assert.False(t, ctx.Set(note.KeyCustomerName, "   "))
	assert.False(t, ctx.Has(note.KeyCustomerName))

	assert.True(t, ctx.SetIfAbsent(note.KeyCustomerName, "測試客戶"))
	v, ok := ctx.Get(note.KeyCustomerName)
	assert.True(t, ok)
	assert.Equal(t, "測試客戶", v)
}

func TestContext_Snapshot(t *testing.T) {
	ctx := NewContext()
	ctx.Set(note.KeyCustomerCode, "C45636")
	ctx.Set(note.KeyMonthlyFee, "288")

	snap := ctx.Snapshot()
	assert.Equal(t, map[string]string{
		"customerCode": "C45636",
		"monthlyFee":   "288",
	}, snap)

	// Snapshot is a copy.
	snap["customerCode"] = "other"
	assert.Equal(t, "C45636", ctx.Value(note.KeyCustomerCode))

	assert.Equal(t, []note.Key{note.KeyCustomerCode, note.KeyMonthlyFee}, ctx.Keys())
}

// ==========================
// Builder Derivation Tests
// ==========================

func TestBuilder_Build_RentalScenario(t *testing.T) {
	fields := parsed(
		"customerCode", "C45636",
		"customerName", "測試客戶",
		"usageLabel", "租用",
		"monthlyFee", "288",
		"contractStartDate", "2025-11-25",
	)

	ctx, warnings := NewBuilder(testSettings()).Build(fields, nil, BuildOptions{ReferenceDate: testRefDate})

	assert.Empty(t, warnings)
	assert.Equal(t, "2", ctx.Value(note.KeyContractYears))
	assert.Equal(t, "2027-11-25", ctx.Value(note.KeyContractEndDate))
	assert.Equal(t, "6912", ctx.Value(note.KeyExpectSignMoney))
	assert.Equal(t, "2025-11-25", ctx.Value(note.KeyExpectSignDate))
	assert.Equal(t, "2025-11-25", ctx.Value(note.KeyOpportunityDate))
	assert.Equal(t, "MAQUA方案", ctx.Value(note.KeyPlanType))
	assert.Equal(t, "測試客戶 - MAQUA方案", ctx.Value(note.KeyOpportunityName))
	assert.Equal(t, "MOP", ctx.Value(note.KeyCurrency))
	assert.Equal(t, "C45636", ctx.Value(note.KeyCustomerRef))
	assert.Equal(t, "stage-rent", ctx.Value(note.KeyOpportunityStage))
	assert.Equal(t, "owner-service", ctx.Value(note.KeyOwnerID))
	assert.Equal(t, "客服003", ctx.Value(note.KeyOwnerName))
}

func TestBuilder_Build_ExtendedPlanYears(t *testing.T) {
	fields := parsed(
		"customerName", "測試客戶",
		"planType", "HS990尊享",
		"monthlyFee", "288",
		"contractStartDate", "2025-11-25",
	)

	ctx, _ := NewBuilder(testSettings()).Build(fields, nil, BuildOptions{ReferenceDate: testRefDate})

	assert.Equal(t, "3", ctx.Value(note.KeyContractYears))
	assert.Equal(t, "2028-11-25", ctx.Value(note.KeyContractEndDate))
	assert.Equal(t, "10368", ctx.Value(note.KeyExpectSignMoney))
	assert.Equal(t, "測試客戶 - HS990尊享", ctx.Value(note.KeyOpportunityName))
}

func TestBuilder_Build_ExplicitValuesWin(t *testing.T) {
	fields := parsed(
		"customerName", "測試客戶",
		"contractYears", "5",
		"contractStartDate", "2025-01-01",
		"contractEndDate", "2026-06-30",
		"expectSignMoney", "9999",
		"currency", "HKD",
		"opportunityName", "自定名稱",
		"usageLabel", "買斷",
		"opportunityStage", "stage-explicit",
	)

	ctx, _ := NewBuilder(testSettings()).Build(fields, nil, BuildOptions{ReferenceDate: testRefDate})

	assert.Equal(t, "5", ctx.Value(note.KeyContractYears))
	assert.Equal(t, "2026-06-30", ctx.Value(note.KeyContractEndDate))
	assert.Equal(t, "9999", ctx.Value(note.KeyExpectSignMoney))
	assert.Equal(t, "HKD", ctx.Value(note.KeyCurrency))
	assert.Equal(t, "自定名稱", ctx.Value(note.KeyOpportunityName))
	assert.Equal(t, "stage-explicit", ctx.Value(note.KeyOpportunityStage))
}

func TestBuilder_Build_SignDateFallbacks(t *testing.T) {
	t.Run("opportunity date next", func(t *testing.T) {
		ctx, _ := NewBuilder(testSettings()).Build(parsed("opportunityDate", "2025-10-01"), nil, BuildOptions{ReferenceDate: testRefDate})
		assert.Equal(t, "2025-10-01", ctx.Value(note.KeyExpectSignDate))
	})

	t.Run("reference date last", func(t *testing.T) {
		ctx, _ := NewBuilder(testSettings()).Build(nil, nil, BuildOptions{ReferenceDate: testRefDate})
		assert.Equal(t, "2025-08-25", ctx.Value(note.KeyExpectSignDate))
		assert.Equal(t, "2025-08-25", ctx.Value(note.KeyOpportunityDate))
	})

	t.Run("no anchors warns", func(t *testing.T) {
		ctx, warnings := NewBuilder(testSettings()).Build(nil, nil, BuildOptions{})
		assert.False(t, ctx.Has(note.KeyExpectSignDate))
		assert.NotEmpty(t, warnings)
	})
}

func TestBuilder_Build_StageFromUsage(t *testing.T) {
	t.Run("buyout", func(t *testing.T) {
		ctx, _ := NewBuilder(testSettings()).Build(parsed("usageLabel", "買斷"), nil, BuildOptions{ReferenceDate: testRefDate})
		assert.Equal(t, "stage-buy", ctx.Value(note.KeyOpportunityStage))
	})

	t.Run("unknown usage falls back", func(t *testing.T) {
		ctx, _ := NewBuilder(testSettings()).Build(parsed("usageLabel", "試用"), nil, BuildOptions{ReferenceDate: testRefDate})
		assert.Equal(t, "stage-default", ctx.Value(note.KeyOpportunityStage))
	})
}

func TestBuilder_Build_CustomerRef(t *testing.T) {
	t.Run("code preferred", func(t *testing.T) {
		ctx, _ := NewBuilder(testSettings()).Build(parsed("customerCode", "C45636", "customerId", "999"), nil, BuildOptions{ReferenceDate: testRefDate})
		assert.Equal(t, "C45636", ctx.Value(note.KeyCustomerRef))
	})

	t.Run("id fallback", func(t *testing.T) {
		ctx, _ := NewBuilder(testSettings()).Build(parsed("customerId", "999"), nil, BuildOptions{ReferenceDate: testRefDate})
		assert.Equal(t, "999", ctx.Value(note.KeyCustomerRef))
	})
}

// ==========================
// Owner Resolution Tests
// ==========================

func TestBuilder_Build_OwnerResolution(t *testing.T) {
	tests := []struct {
		name     string
		hint     string
		wantID   string
		wantName string
		warns    bool
	}{
		{"whitelisted exact", "liz", "owner-liz", "LIZ", false},
		{"whitelisted case-insensitive", "Liz Wong", "owner-liz", "LIZ", false},
		{"cjk contains", "陳成", "owner-cheng", "成", false},
		{"unknown hint falls back", "王小明", "owner-service", "客服003", true},
		{"absent hint falls back", "", "owner-service", "客服003", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := parsed()
			if tt.hint != "" {
				fields = parsed("ownerHint", tt.hint)
			}

			ctx, warnings := NewBuilder(testSettings()).Build(fields, nil, BuildOptions{ReferenceDate: testRefDate})

			assert.Equal(t, tt.wantID, ctx.Value(note.KeyOwnerID))
			assert.Equal(t, tt.wantName, ctx.Value(note.KeyOwnerName))
			if tt.warns {
				assert.NotEmpty(t, warnings)
			} else {
				assert.Empty(t, warnings)
			}
		})
	}
}

// ==========================
// Prior Record Tests
// ==========================

func TestBuilder_Build_PriorRecordFillsGaps(t *testing.T) {
	prior := &PriorRecord{Fields: map[note.Key]string{
		note.KeyContactTel:   "66777629",
		note.KeyCustomerName: "舊客戶名稱",
	}}

	ctx, _ := NewBuilder(testSettings()).Build(parsed("customerName", "測試客戶"), prior, BuildOptions{ReferenceDate: testRefDate})

	assert.Equal(t, "66777629", ctx.Value(note.KeyContactTel), "gap filled from the prior record")
	assert.Equal(t, "測試客戶", ctx.Value(note.KeyCustomerName), "parsed value wins over the prior record")
}

func TestBuilder_Build_PriorAddressFix(t *testing.T) {
	customerStyle := "C45641 張先生 66777629"
	prior := &PriorRecord{Fields: map[note.Key]string{
		note.KeyInstallLocation: "澳門新馬路33號2樓A",
	}}

	ctx, warnings := NewBuilder(testSettings()).Build(parsed("installLocation", customerStyle), prior, BuildOptions{ReferenceDate: testRefDate})

	assert.Equal(t, "澳門新馬路33號2樓A", ctx.Value(note.KeyInstallLocation))
	assert.NotEmpty(t, warnings)
}

func TestBuilder_Build_AddressShapedPlanReset(t *testing.T) {
	ctx, warnings := NewBuilder(testSettings()).Build(parsed("planType", "澳門新馬路33號2樓A"), nil, BuildOptions{ReferenceDate: testRefDate})

	assert.Equal(t, "MAQUA方案", ctx.Value(note.KeyPlanType))
	assert.NotEmpty(t, warnings)
}

// ==========================
// Date Arithmetic Tests
// ==========================

func TestBuilder_Build_LeapDayClamp(t *testing.T) {
	t.Run("clamps to feb 28 on non-leap targets", func(t *testing.T) {
		fields := parsed("contractStartDate", "2024-02-29", "contractYears", "1")
		ctx, _ := NewBuilder(testSettings()).Build(fields, nil, BuildOptions{ReferenceDate: testRefDate})
		assert.Equal(t, "2025-02-28", ctx.Value(note.KeyContractEndDate))
	})

	t.Run("keeps feb 29 on leap targets", func(t *testing.T) {
		fields := parsed("contractStartDate", "2024-02-29", "contractYears", "4")
		ctx, _ := NewBuilder(testSettings()).Build(fields, nil, BuildOptions{ReferenceDate: testRefDate})
		assert.Equal(t, "2028-02-29", ctx.Value(note.KeyContractEndDate))
	})
}

func TestBuilder_Build_RawText(t *testing.T) {
	ctx, _ := NewBuilder(testSettings()).Build(nil, nil, BuildOptions{ReferenceDate: testRefDate, RawText: "客戶：C45636"})

	assert.Equal(t, "客戶：C45636", ctx.Value(note.KeyRawText))
}

// ==========================
// Determinism Tests
// ==========================

func TestBuilder_Build_Deterministic(t *testing.T) {
	fields := parsed(
		"customerCode", "C45636",
		"customerName", "測試客戶",
		"usageLabel", "租用",
		"monthlyFee", "288",
		"contractStartDate", "2025-11-25",
		"ownerHint", "liz",
	)
	prior := &PriorRecord{Fields: map[note.Key]string{
		note.KeyContactTel:      "66777629",
		note.KeyInstallLocation: "澳門新馬路33號2樓A",
		note.KeySaleArea:        "澳門",
	}}

	first, _ := NewBuilder(testSettings()).Build(fields, prior, BuildOptions{ReferenceDate: testRefDate})
	for i := 0; i < 5; i++ {
		again, _ := NewBuilder(testSettings()).Build(fields, prior, BuildOptions{ReferenceDate: testRefDate})
		assert.Equal(t, first.Snapshot(), again.Snapshot())
	}
}

// ==========================
// Result Tests
// ==========================

func TestResult_StepAccumulation(t *testing.T) {
	r := &Result{SubmissionID: "sub-1"}
	r.Append(StepResult{StepName: StepCheckDuplicate, Success: true})
	r.Append(StepResult{StepName: StepCreateCustomer, Success: true, Skipped: true})
	r.Append(StepResult{StepName: StepCreateOpportunity, Success: false, Error: "boom"})

	assert.Len(t, r.Steps, 3)
	assert.False(t, r.Succeeded())

	step, ok := r.Step(StepCreateCustomer)
	assert.True(t, ok)
	assert.True(t, step.Skipped)

	_, ok = r.Step(StepCreateTasks)
	assert.False(t, ok)

	// Earlier steps survive later failures.
	first, _ := r.Step(StepCheckDuplicate)
	assert.True(t, first.Success)
}
