// internal/common/crm/tasks.go
package crm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Follow-up task kinds.
const (
	TaskKindInstall   = "install"
	TaskKindQuarterly = "quarterly_fee"
	TaskKindFilter    = "filter_replacement"
	TaskKindRenewal   = "renewal"
)

// reminderLeadDays is how far ahead of the real-world date a filter or
// renewal task is scheduled.
const reminderLeadDays = 14

// quarterlyIntervalMonths spaces the quarterly fee schedule.
const quarterlyIntervalMonths = 3

// Executor is one CRM user a task is assigned to.
type Executor struct {
	ID   string
	Name string
}

// TaskRoute carries the CRM transaction-type wiring and the executors for
// one task kind.
type TaskRoute struct {
	TransType       string
	ActionTransType string
	ActionBustype   string
	Bustype         string
	Executors       []Executor
}

// TaskRouting maps every task kind to its route.
type TaskRouting struct {
	Install   TaskRoute
	Quarterly TaskRoute
	Filter    TaskRoute
	Renewal   TaskRoute
}

// DefaultTaskRouting returns the production CRM routing.
func DefaultTaskRouting() TaskRouting {
	executorService := Executor{ID: "1482551268133044232", Name: "客服003"}
	executorRepairs := Executor{ID: "1655434173036888070", Name: "維修幫005"}
	executorCashier := Executor{ID: "1634618416471998473", Name: "出納008"}

	return TaskRouting{
		Install: TaskRoute{
			TransType:       "1984155894542237704",
			ActionTransType: "1597134252596527112",
			ActionBustype:   "1597128428638699526",
			Bustype:         "1984154580281720833",
			Executors:       []Executor{executorRepairs, executorCashier},
		},
		Quarterly: TaskRoute{
			TransType:       "1705112066885419012",
			ActionTransType: "1597134252596527112",
			ActionBustype:   "1597128428638699526",
			Bustype:         "1700013665820344329",
			Executors:       []Executor{executorCashier},
		},
		Filter: TaskRoute{
			TransType:       "1587879680409075716",
			ActionTransType: "1587879199387942917",
			ActionBustype:   "1587877885106454533",
			Bustype:         "1587876974596980738",
			Executors:       []Executor{executorService, executorRepairs},
		},
		Renewal: TaskRoute{
			TransType:       "1984155413509046278",
			ActionTransType: "1587879199387942917",
			ActionBustype:   "1587877885106454533",
			Bustype:         "1984154477184679941",
			Executors:       []Executor{executorService, executorRepairs, executorCashier},
		},
	}
}

// TaskInput is everything the composer needs about one customer's latest
// opportunity. Dates are ISO days; empty fields disable the tasks that need
// them.
type TaskInput struct {
	CustomerID          string
	CustomerName        string
	OpportunityID       string
	OpportunityStage    string
	SaleArea            string
	OwnerID             string
	OwnerName           string
	Content             string
	InstallDate         string
	ContractStart       string
	ContractEnd         string
	PaymentCode         string
	PaymentLabel        string
	MonthlyFee          string
	TotalAmount         string
	NextReplacementDate string
	NextReplacementName string
}

// TaskSpec is one follow-up task ready to be sent to the gateway.
type TaskSpec struct {
	Kind    string
	Code    string
	DueDate string
	Summary string
	Content string
	Amount  string
	Route   TaskRoute
}

// ComposeTasks turns a task input into the follow-up task series:
// an install task on the install date, a quarterly fee schedule when the
// payment mode is quarterly, a filter-replacement reminder ahead of the next
// cycle, and a renewal reminder ahead of contract end.
func ComposeTasks(input TaskInput, routing TaskRouting, now time.Time) []TaskSpec {
	var specs []TaskSpec

	installDate := input.InstallDate
	if installDate == "" {
		installDate = now.Format("2006-01-02")
	}
	stamp := now.Format("20060102150405")

	specs = append(specs, TaskSpec{
		Kind:    TaskKindInstall,
		Code:    "TASKNEW" + stamp,
		DueDate: installDate,
		Content: input.Content,
		Amount:  input.TotalAmount,
		Route:   routing.Install,
	})

	specs = append(specs, composeQuarterlySchedule(input, routing.Quarterly, stamp)...)

	if due, ok := subtractDays(input.NextReplacementDate, reminderLeadDays); ok {
		content := input.NextReplacementName
		if content == "" {
			content = "更換濾芯"
		}
		specs = append(specs, TaskSpec{
			Kind:    TaskKindFilter,
			Code:    "TASKFLT" + stamp,
			DueDate: due,
			Content: content,
			Route:   routing.Filter,
		})
	}

	if due, ok := subtractDays(input.ContractEnd, reminderLeadDays); ok {
		specs = append(specs, TaskSpec{
			Kind:    TaskKindRenewal,
			Code:    "TASKREN" + stamp,
			DueDate: due,
			Content: "續約",
			Route:   routing.Renewal,
		})
	}

	return specs
}

// composeQuarterlySchedule emits one task per quarter from contract start +3
// months through contract end -3 months when payment mode 04 (quarterly)
// applies.
func composeQuarterlySchedule(input TaskInput, route TaskRoute, stamp string) []TaskSpec {
	if !isQuarterlyPayment(input.PaymentCode, input.PaymentLabel) {
		return nil
	}
	start, startOK := parseISODay(input.ContractStart)
	end, endOK := parseISODay(input.ContractEnd)
	if !startOK || !endOK {
		return nil
	}

	amount := quarterlyAmount(input.MonthlyFee)

	var specs []TaskSpec
	current := addMonthsClamped(start, quarterlyIntervalMonths)
	last := addMonthsClamped(end, -quarterlyIntervalMonths)
	sequence := 0
	for !current.After(last) {
		periodEnd := addMonthsClamped(current, quarterlyIntervalMonths)
		sequence++
		specs = append(specs, TaskSpec{
			Kind:    TaskKindQuarterly,
			Code:    fmt.Sprintf("TASKQFEE%s%02d", stamp, sequence),
			DueDate: current.Format("2006-01-02"),
			Summary: "（季度收費）",
			Content: current.Format("2006-01-02") + " — " + periodEnd.Format("2006-01-02"),
			Amount:  amount,
			Route:   route,
		})
		current = periodEnd
	}
	return specs
}

func isQuarterlyPayment(code, label string) bool {
	switch strings.TrimSpace(code) {
	case "04", "4", "004":
		return true
	}
	return strings.TrimSpace(label) == "季度收費"
}

func quarterlyAmount(monthlyFee string) string {
	fee, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(monthlyFee), ",", ""), 64)
	if err != nil {
		return ""
	}
	return strconv.FormatFloat(fee*3, 'f', -1, 64)
}

// ComposeContentLines renders "label：value" lines, skipping empty values.
func ComposeContentLines(pairs [][2]string) string {
	lines := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if strings.TrimSpace(pair[1]) == "" {
			continue
		}
		lines = append(lines, pair[0]+"："+pair[1])
	}
	return strings.Join(lines, "\n")
}

func parseISODay(value string) (time.Time, bool) {
	text := strings.TrimSpace(value)
	if idx := strings.IndexByte(text, ' '); idx > 0 {
		text = text[:idx]
	}
	for _, layout := range []string{"2006-01-02", "2006/01/02", "2006.01.02"} {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func subtractDays(value string, days int) (string, bool) {
	t, ok := parseISODay(value)
	if !ok {
		return "", false
	}
	return t.AddDate(0, 0, -days).Format("2006-01-02"), true
}

// addMonthsClamped advances by whole months, clamping the day to the target
// month's length instead of rolling over.
func addMonthsClamped(t time.Time, months int) time.Time {
	total := int(t.Month()) - 1 + months
	year := t.Year() + total/12
	monthIndex := total % 12
	if monthIndex < 0 {
		monthIndex += 12
		year--
	}
	month := time.Month(monthIndex + 1)
	day := t.Day()
	if last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day(); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// taskPayload renders one spec into the gateway task body.
func taskPayload(spec TaskSpec, input TaskInput, systemSource, orgID, deptID, deptName string) map[string]interface{} {
	start := spec.DueDate + " 00:00:00"
	end := spec.DueDate + " 23:59:59"

	defineCharacter := map[string]interface{}{}
	if spec.Amount != "" {
		defineCharacter["RW01"] = spec.Amount
	}

	executors := make([]map[string]interface{}, 0, len(spec.Route.Executors))
	for _, executor := range spec.Route.Executors {
		executors = append(executors, map[string]interface{}{
			"executor":               executor.ID,
			"executor_name":          executor.Name,
			"executeStatus":          "0",
			"reformStatus":           "0",
			"acceptStatus":           "0",
			"isUnlock":               "0",
			"startDate":              start,
			"endDate":                end,
			"excutorDefineCharacter": map[string]interface{}{},
			"_status":                statusInsert,
		})
	}

	return map[string]interface{}{
		"code":             spec.Code,
		"resubmitCheckKey": spec.Code,
		"org":              orgID,

		"taskTransType":                        spec.Route.TransType,
		"taskTransType_actionTransType":        spec.Route.ActionTransType,
		"taskTransType_actionTransTypeBustype": spec.Route.ActionBustype,
		"bustype":                              spec.Route.Bustype,

		"startDate": start,
		"endDate":   end,

		"customer":        input.CustomerID,
		"customer_name":   input.CustomerName,
		"originator":      input.OwnerID,
		"originator_name": input.OwnerName,
		"saleArea":        input.SaleArea,
		"dept":            deptID,
		"dept_name":       deptName,

		"summary":      spec.Summary,
		"content":      spec.Content,
		"oppt":         input.OpportunityID,
		"opptStage":    input.OpportunityStage,
		"ower":         input.OwnerID,
		"ower_name":    input.OwnerName,
		"systemSource": systemSource,

		"taskDefineCharacter": defineCharacter,
		"taskExecutorList":    executors,
		"taskRemindRuleList": []map[string]interface{}{
			{"remindPoint": "0", "advanceTime": "0", "timeUnit": "0", "_status": statusInsert},
		},
		"_status": statusInsert,
	}
}
