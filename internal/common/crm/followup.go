// internal/common/crm/followup.go
package crm

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/intake/catalog"
)

// CreateTasksForCustomerCode rebuilds the follow-up task series for a
// customer outside a submission run: resolve the code to an id, find the
// latest opportunity, and compose the tasks from its detail. rawText, when
// present, becomes the task content so the operator sees the wording the
// customer originally sent.
func (s *Service) CreateTasksForCustomerCode(ctx context.Context, customerCode, rawText string) (map[string]interface{}, error) {
	code := strings.ToUpper(strings.TrimSpace(customerCode))
	if code == "" {
		return nil, errors.NewValidationError("customer code required", "customerCode is empty")
	}

	customerID, err := s.LookupCustomerIDByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, errors.NewResourceNotFoundError("crm-gateway", "no customer matches code "+code)
	}

	input, err := s.latestOpportunityTaskInput(ctx, customerID, code, rawText)
	if err != nil {
		return nil, err
	}

	specs := ComposeTasks(input, s.settings.TaskRouting, s.now())
	s.logger.Info("recomposing follow-up tasks",
		zap.String("customer_code", code),
		zap.String("customer_id", customerID),
		zap.String("opportunity_id", input.OpportunityID),
		zap.Int("tasks", len(specs)))

	return s.saveTasks(ctx, input, specs)
}

// latestOpportunityTaskInput reads the customer's newest opportunity and
// folds its detail into a task input. The list endpoint orders newest
// first; the first record wins.
func (s *Service) latestOpportunityTaskInput(ctx context.Context, customerID, customerCode, rawText string) (TaskInput, error) {
	listResp, err := s.client.ListOpportunities(ctx, &ListFilter{
		Field:    "customer",
		Operator: "eq",
		Value:    customerID,
	}, 1, 10)
	if err != nil {
		return TaskInput{}, err
	}

	records := recordList(listResp)
	if len(records) == 0 {
		return TaskInput{}, errors.NewResourceNotFoundError("crm-gateway",
			"customer "+customerCode+" has no opportunities")
	}
	opportunityID := asString(records[0]["id"])
	if opportunityID == "" {
		return TaskInput{}, errors.NewResourceNotFoundError("crm-gateway",
			"opportunity record for "+customerCode+" carries no id")
	}

	detail := records[0]
	if detailResp, err := s.client.GetOpportunityDetail(ctx, opportunityID); err == nil {
		if data, ok := detailResp["data"].(map[string]interface{}); ok {
			detail = data
		}
	} else if ctx.Err() != nil {
		return TaskInput{}, err
	}
	// A failed detail fetch falls back to the list record, which carries
	// enough for the date-driven tasks.

	return s.taskInputFromDetail(customerID, opportunityID, detail, rawText), nil
}

func (s *Service) taskInputFromDetail(customerID, opportunityID string, detail map[string]interface{}, rawText string) TaskInput {
	field := func(keys ...string) string {
		for _, key := range keys {
			if v := asString(detail[key]); v != "" {
				return v
			}
		}
		return ""
	}
	headerField := func(key string) string {
		if header, ok := detail[sectionOpportunityHeader].(map[string]interface{}); ok {
			return asString(header[key])
		}
		return ""
	}

	installDate := field("contractBeginDate", "contractStartDate", "expectSignDate", "opptDate")
	planType := firstNonEmpty(headerField("define9"), field("name"))

	content := rawText
	if content == "" {
		content = ComposeContentLines([][2]string{
			{"客戶名稱", field("customer_name", "customerName")},
			{"商機名稱", field("name")},
			{"方案類型", planType},
			{"安裝時間", installDate},
			{"聯絡地址", field("address")},
			{"月費金額", field("monthlyFee")},
		})
	}

	nextDate, nextName := nextReplacementFromPlan(s.catalog, planType, installDate)

	return TaskInput{
		CustomerID:          customerID,
		CustomerName:        field("customer_name", "customerName"),
		OpportunityID:       opportunityID,
		OpportunityStage:    field("opptStage"),
		SaleArea:            field("saleArea"),
		OwnerID:             field("ower"),
		OwnerName:           field("ower_name"),
		Content:             content,
		InstallDate:         installDate,
		ContractStart:       field("contractBeginDate", "contractStartDate"),
		ContractEnd:         field("contractEndDate", "contractEnd"),
		PaymentCode:         field("industry"),
		PaymentLabel:        field("industry_name"),
		MonthlyFee:          field("monthlyFee"),
		TotalAmount:         field("expectSignMoney"),
		NextReplacementDate: nextDate,
		NextReplacementName: nextName,
	}
}

// nextReplacementFromPlan finds the earliest upcoming consumable
// replacement among the plan's catalog items.
func nextReplacementFromPlan(cat *catalog.Catalog, planType, installDate string) (string, string) {
	if installDate == "" || planType == "" {
		return "", ""
	}
	items, _ := cat.ParseItems(planType)

	var earliest, name string
	for _, item := range items {
		if item.Product.CycleMonths <= 0 {
			continue
		}
		next, ok := catalog.NextReplacementDate(installDate, item.Product.CycleMonths)
		if !ok {
			continue
		}
		if earliest == "" || next < earliest {
			earliest = next
			name = item.Product.Name
		}
	}
	return earliest, name
}
