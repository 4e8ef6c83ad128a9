// internal/common/crm/tasks_test.go
package crm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var composeNow = time.Date(2025, 11, 20, 10, 30, 0, 0, time.UTC)

func quarterlyScenarioInput() TaskInput {
	return TaskInput{
		CustomerID:          "1587859872035110919",
		CustomerName:        "大豐銀行",
		OpportunityID:       "1705112066885419012",
		OpportunityStage:    "stage-1",
		OwnerID:             "1482551268133044232",
		OwnerName:           "客服003",
		Content:             "C45636 大豐銀行 66778899",
		InstallDate:         "2025-11-25",
		ContractStart:       "2025-11-25",
		ContractEnd:         "2027-11-25",
		PaymentCode:         "04",
		PaymentLabel:        "季度收費",
		MonthlyFee:          "288",
		TotalAmount:         "6912",
		NextReplacementDate: "2026-11-25",
		NextReplacementName: "濾芯(10吋PP)",
	}
}

func specsOfKind(specs []TaskSpec, kind string) []TaskSpec {
	var out []TaskSpec
	for _, spec := range specs {
		if spec.Kind == kind {
			out = append(out, spec)
		}
	}
	return out
}

// ==========================
// Task Composition Tests
// ==========================

func TestComposeTasks_FullQuarterlyContract(t *testing.T) {
	routing := DefaultTaskRouting()
	specs := ComposeTasks(quarterlyScenarioInput(), routing, composeNow)

	require.Len(t, specs, 10)

	install := specsOfKind(specs, TaskKindInstall)
	require.Len(t, install, 1)
	assert.Equal(t, "TASKNEW20251120103000", install[0].Code)
	assert.Equal(t, "2025-11-25", install[0].DueDate)
	assert.Equal(t, "C45636 大豐銀行 66778899", install[0].Content)
	assert.Equal(t, "6912", install[0].Amount)
	assert.Equal(t, "1984155894542237704", install[0].Route.TransType)

	quarterly := specsOfKind(specs, TaskKindQuarterly)
	require.Len(t, quarterly, 7)
	assert.Equal(t, "TASKQFEE2025112010300001", quarterly[0].Code)
	assert.Equal(t, "2026-02-25", quarterly[0].DueDate)
	assert.Equal(t, "864", quarterly[0].Amount)
	assert.Equal(t, "（季度收費）", quarterly[0].Summary)
	assert.Equal(t, "2026-02-25 — 2026-05-25", quarterly[0].Content)
	assert.Equal(t, "TASKQFEE2025112010300007", quarterly[6].Code)
	assert.Equal(t, "2027-08-25", quarterly[6].DueDate)

	filter := specsOfKind(specs, TaskKindFilter)
	require.Len(t, filter, 1)
	assert.Equal(t, "TASKFLT20251120103000", filter[0].Code)
	assert.Equal(t, "2026-11-11", filter[0].DueDate)
	assert.Equal(t, "濾芯(10吋PP)", filter[0].Content)

	renewal := specsOfKind(specs, TaskKindRenewal)
	require.Len(t, renewal, 1)
	assert.Equal(t, "TASKREN20251120103000", renewal[0].Code)
	assert.Equal(t, "2027-11-11", renewal[0].DueDate)
	assert.Equal(t, "續約", renewal[0].Content)
}

func TestComposeTasks_ExecutorRouting(t *testing.T) {
	routing := DefaultTaskRouting()
	specs := ComposeTasks(quarterlyScenarioInput(), routing, composeNow)

	names := func(route TaskRoute) []string {
		out := make([]string, 0, len(route.Executors))
		for _, executor := range route.Executors {
			out = append(out, executor.Name)
		}
		return out
	}

	assert.Equal(t, []string{"維修幫005", "出納008"}, names(specsOfKind(specs, TaskKindInstall)[0].Route))
	assert.Equal(t, []string{"出納008"}, names(specsOfKind(specs, TaskKindQuarterly)[0].Route))
	assert.Equal(t, []string{"客服003", "維修幫005"}, names(specsOfKind(specs, TaskKindFilter)[0].Route))
	assert.Equal(t, []string{"客服003", "維修幫005", "出納008"}, names(specsOfKind(specs, TaskKindRenewal)[0].Route))
}

func TestComposeTasks_MonthlyPaymentSkipsQuarterly(t *testing.T) {
	input := quarterlyScenarioInput()
	input.PaymentCode = "01"
	input.PaymentLabel = "月繳"

	specs := ComposeTasks(input, DefaultTaskRouting(), composeNow)

	assert.Empty(t, specsOfKind(specs, TaskKindQuarterly))
	assert.Len(t, specsOfKind(specs, TaskKindInstall), 1)
	assert.Len(t, specsOfKind(specs, TaskKindFilter), 1)
	assert.Len(t, specsOfKind(specs, TaskKindRenewal), 1)
}

func TestComposeTasks_QuarterlyByLabelAlone(t *testing.T) {
	input := quarterlyScenarioInput()
	input.PaymentCode = ""
	input.PaymentLabel = "季度收費"

	specs := ComposeTasks(input, DefaultTaskRouting(), composeNow)

	assert.Len(t, specsOfKind(specs, TaskKindQuarterly), 7)
}

func TestComposeTasks_InstallDateDefaultsToToday(t *testing.T) {
	input := TaskInput{Content: "note"}

	specs := ComposeTasks(input, DefaultTaskRouting(), composeNow)

	require.Len(t, specs, 1)
	assert.Equal(t, TaskKindInstall, specs[0].Kind)
	assert.Equal(t, "2025-11-20", specs[0].DueDate)
}

func TestComposeTasks_ShortContractHasNoQuarterlyRoom(t *testing.T) {
	input := quarterlyScenarioInput()
	input.ContractStart = "2025-01-01"
	input.ContractEnd = "2025-05-01"

	specs := ComposeTasks(input, DefaultTaskRouting(), composeNow)

	assert.Empty(t, specsOfKind(specs, TaskKindQuarterly))
}

func TestComposeTasks_SixMonthContractHasOneQuarter(t *testing.T) {
	input := quarterlyScenarioInput()
	input.ContractStart = "2025-01-01"
	input.ContractEnd = "2025-07-01"

	specs := ComposeTasks(input, DefaultTaskRouting(), composeNow)

	quarterly := specsOfKind(specs, TaskKindQuarterly)
	require.Len(t, quarterly, 1)
	assert.Equal(t, "2025-04-01", quarterly[0].DueDate)
	assert.Equal(t, "2025-04-01 — 2025-07-01", quarterly[0].Content)
}

func TestComposeTasks_MonthEndScheduleClamps(t *testing.T) {
	input := quarterlyScenarioInput()
	input.ContractStart = "2025-11-30"
	input.ContractEnd = "2026-11-30"

	specs := ComposeTasks(input, DefaultTaskRouting(), composeNow)

	quarterly := specsOfKind(specs, TaskKindQuarterly)
	require.Len(t, quarterly, 3)
	assert.Equal(t, "2026-02-28", quarterly[0].DueDate)
	assert.Equal(t, "2026-05-28", quarterly[1].DueDate)
	assert.Equal(t, "2026-08-28", quarterly[2].DueDate)
}

func TestComposeTasks_FilterContentFallback(t *testing.T) {
	input := quarterlyScenarioInput()
	input.NextReplacementName = ""

	specs := ComposeTasks(input, DefaultTaskRouting(), composeNow)

	filter := specsOfKind(specs, TaskKindFilter)
	require.Len(t, filter, 1)
	assert.Equal(t, "更換濾芯", filter[0].Content)
}

func TestComposeTasks_SkipsRemindersWithoutDates(t *testing.T) {
	input := quarterlyScenarioInput()
	input.NextReplacementDate = "soon"
	input.ContractEnd = ""
	input.PaymentCode = "01"
	input.PaymentLabel = ""

	specs := ComposeTasks(input, DefaultTaskRouting(), composeNow)

	require.Len(t, specs, 1)
	assert.Equal(t, TaskKindInstall, specs[0].Kind)
}

// ==========================
// Helper Tests
// ==========================

func TestComposeContentLines(t *testing.T) {
	content := ComposeContentLines([][2]string{
		{"客戶名稱", "大豐銀行"},
		{"聯繫電話", ""},
		{"方案類型", "租用"},
	})

	assert.Equal(t, "客戶名稱：大豐銀行\n方案類型：租用", content)
}

func TestIsQuarterlyPayment(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		label string
		want  bool
	}{
		{"code 04", "04", "", true},
		{"code 4", "4", "", true},
		{"code 004", "004", "", true},
		{"label only", "", "季度收費", true},
		{"monthly code", "01", "月繳", false},
		{"nothing", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isQuarterlyPayment(tt.code, tt.label))
		})
	}
}

func TestQuarterlyAmount(t *testing.T) {
	tests := []struct {
		name string
		fee  string
		want string
	}{
		{"integer fee", "288", "864"},
		{"thousands separator", "1,200", "3600"},
		{"fractional fee", "288.5", "865.5"},
		{"not numeric", "月費288", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, quarterlyAmount(tt.fee))
		})
	}
}

func TestParseISODay(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
		ok    bool
	}{
		{"dashes", "2025-11-25", "2025-11-25", true},
		{"slashes", "2025/11/25", "2025-11-25", true},
		{"dots", "2025.11.25", "2025-11-25", true},
		{"with time part", "2025-11-25 10:00:00", "2025-11-25", true},
		{"not a date", "soon", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseISODay(tt.value)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func TestAddMonthsClamped(t *testing.T) {
	tests := []struct {
		name   string
		date   string
		months int
		want   string
	}{
		{"plain add", "2025-11-25", 3, "2026-02-25"},
		{"clamps to february", "2025-11-30", 3, "2026-02-28"},
		{"clamps to leap february", "2023-11-30", 3, "2024-02-29"},
		{"negative months", "2027-11-25", -3, "2027-08-25"},
		{"negative across year", "2026-01-31", -2, "2025-11-30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, ok := parseISODay(tt.date)
			require.True(t, ok)
			assert.Equal(t, tt.want, addMonthsClamped(date, tt.months).Format("2006-01-02"))
		})
	}
}

// ==========================
// Gateway Body Tests
// ==========================

func TestTaskPayload(t *testing.T) {
	input := quarterlyScenarioInput()
	routing := DefaultTaskRouting()
	specs := ComposeTasks(input, routing, composeNow)
	install := specsOfKind(specs, TaskKindInstall)[0]

	body := taskPayload(install, input, "mt", "2816765183021312", "1482538237314465798", "客服部")

	assert.Equal(t, install.Code, body["code"])
	assert.Equal(t, install.Code, body["resubmitCheckKey"])
	assert.Equal(t, "2816765183021312", body["org"])
	assert.Equal(t, "2025-11-25 00:00:00", body["startDate"])
	assert.Equal(t, "2025-11-25 23:59:59", body["endDate"])
	assert.Equal(t, input.CustomerID, body["customer"])
	assert.Equal(t, input.CustomerName, body["customer_name"])
	assert.Equal(t, input.OpportunityID, body["oppt"])
	assert.Equal(t, input.OpportunityStage, body["opptStage"])
	assert.Equal(t, input.OwnerID, body["originator"])
	assert.Equal(t, input.OwnerID, body["ower"])
	assert.Equal(t, "1482538237314465798", body["dept"])
	assert.Equal(t, "客服部", body["dept_name"])
	assert.Equal(t, "mt", body["systemSource"])
	assert.Equal(t, statusInsert, body["_status"])

	defineCharacter := body["taskDefineCharacter"].(map[string]interface{})
	assert.Equal(t, "6912", defineCharacter["RW01"])

	executors := body["taskExecutorList"].([]map[string]interface{})
	require.Len(t, executors, 2)
	assert.Equal(t, "1655434173036888070", executors[0]["executor"])
	assert.Equal(t, "維修幫005", executors[0]["executor_name"])
	assert.Equal(t, "2025-11-25 00:00:00", executors[0]["startDate"])
	assert.Equal(t, statusInsert, executors[0]["_status"])

	reminders := body["taskRemindRuleList"].([]map[string]interface{})
	require.Len(t, reminders, 1)
	assert.Equal(t, "0", reminders[0]["remindPoint"])
}

func TestTaskPayload_NoAmountLeavesCharacterEmpty(t *testing.T) {
	input := quarterlyScenarioInput()
	routing := DefaultTaskRouting()
	spec := specsOfKind(ComposeTasks(input, routing, composeNow), TaskKindFilter)[0]

	body := taskPayload(spec, input, "mt", "org", "dept", "客服部")

	defineCharacter := body["taskDefineCharacter"].(map[string]interface{})
	assert.Empty(t, defineCharacter)
}

// ==========================
// Benchmarks
// ==========================

func BenchmarkComposeTasks(b *testing.B) {
	input := quarterlyScenarioInput()
	routing := DefaultTaskRouting()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ComposeTasks(input, routing, composeNow)
	}
}
