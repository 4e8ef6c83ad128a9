// internal/common/crm/service.go
package crm

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/intake/catalog"
	"crm-intake-workers/internal/intake/normalize"
	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/payload"
	"crm-intake-workers/internal/intake/submission"
)

// Gateway body sections and record state marker.
const (
	statusInsert = "Insert"

	sectionOpportunityHeader    = "headDef"
	sectionOpportunityCharacter = "opptDefineCharacter"
	sectionCustomerDetail       = "merchantAppliedDetail"
	sectionCustomerCharacter    = "merchantCharacter"
)

// Gateway rejection codes that get one corrected resubmit.
const (
	codePendingApplication = "090-501-200376"
	codePaymentPending     = "090-501-200377"
)

// Settings carries the gateway tenant wiring the service stamps onto every
// request body.
type Settings struct {
	SystemSource           string
	OrgID                  string
	DeptID                 string
	ServiceDeptID          string
	ServiceDeptName        string
	SalesOrgID             string
	TransTypeID            string
	OpportunityTransTypeID string
	OpportunitySource      string
	OpportunitySystemCode  string
	CustomerLevelID        string
	SearchcodePrefix       string
	DefaultCurrency        string
	AutoAudit              bool
	LookupRetries          int
	LookupRetryDelay       time.Duration
	TaskRouting            TaskRouting
}

// DefaultSettings returns the production tenant wiring.
func DefaultSettings() Settings {
	return Settings{
		SystemSource:          "mt",
		ServiceDeptName:       "客服部",
		OpportunitySystemCode: "opptOpenApIAdd",
		DefaultCurrency:       "MOP",
		AutoAudit:             true,
		LookupRetries:         3,
		LookupRetryDelay:      time.Second,
		TaskRouting:           DefaultTaskRouting(),
	}
}

// Service drives the CRM gateway for the submission pipeline. It is the
// backend the orchestrator calls, one gateway operation per pipeline step.
type Service struct {
	client   *Client
	catalog  *catalog.Catalog
	settings Settings
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a backend service over a gateway client.
func NewService(client *Client, cat *catalog.Catalog, settings Settings, logger *zap.Logger) *Service {
	if cat == nil {
		cat = catalog.Default()
	}
	if settings.LookupRetries <= 0 {
		settings.LookupRetries = 3
	}
	if settings.LookupRetryDelay <= 0 {
		settings.LookupRetryDelay = time.Second
	}
	if settings.ServiceDeptID == "" {
		settings.ServiceDeptID = settings.DeptID
	}
	return &Service{
		client:   client,
		catalog:  cat,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckDuplicate runs the customer payload through the gateway's
// duplicate-check rule.
func (s *Service) CheckDuplicate(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"systemSource": s.settings.SystemSource,
		"action":       "browse",
		"mainBillNum":  "cust_customerCard",
		"data":         p.Body("", ""),
		"tabInfo": []map[string]interface{}{
			{"billNum": "cust_customerCard", "mappingType": "0"},
		},
	}
	return s.client.CustomerDuplicateCheck(ctx, body)
}

// CreateCustomer submits the customer-add application and, when AutoAudit is
// set, approves it in the same logical operation. An audit failure is logged
// and left for manual review; the application itself already succeeded.
//
// Two gateway rejections get one corrected resubmit each: a customer code
// locked by a pending application is regenerated (after a fresh duplicate
// check on the new code), and a payment method the CRM holds for review is
// dropped from the detail section.
func (s *Service) CreateCustomer(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
	resp, err := s.submitApplication(ctx, p)
	switch {
	case err == nil:

	case isPendingApplicationError(err):
		oldCode := p.FlatFields["code"]
		newCode := regenerateCustomerCode(oldCode, s.now())
		if newCode == "" {
			return nil, err
		}
		s.logger.Warn("customer code locked by a pending application, resubmitting with a regenerated code",
			zap.String("old_code", oldCode),
			zap.String("new_code", newCode))
		retry := withCustomerCode(p, oldCode, newCode)
		if dupErr := s.checkRegeneratedCode(ctx, retry); dupErr != nil {
			return nil, dupErr
		}
		if resp, err = s.submitApplication(ctx, retry); err != nil {
			return nil, err
		}

	case isPaymentPendingError(err):
		s.logger.Warn("payment method held for review, resubmitting without it")
		if resp, err = s.submitApplication(ctx, withoutPaymentMethod(p)); err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	if s.settings.AutoAudit {
		s.auditApplication(ctx, resp)
	}

	return resp, nil
}

func (s *Service) submitApplication(ctx context.Context, p payload.Payload) (map[string]interface{}, error) {
	now := s.now()
	data := p.Body(sectionCustomerDetail, sectionCustomerCharacter)

	data["systemSource"] = s.settings.SystemSource
	data["applyTime"] = now.Format("2006-01-02 15:04:05")
	data["buildTime"] = now.Format("2006-01-02")
	data["_status"] = statusInsert
	setIfConfigured(data, "org", s.settings.OrgID)
	setIfConfigured(data, "dept", s.settings.DeptID)
	setIfConfigured(data, "transType", s.settings.TransTypeID)

	detail := stringSection(data, sectionCustomerDetail)
	setIfConfigured2(detail, "belongOrg", s.settings.SalesOrgID)
	setIfConfigured2(detail, "customerLevel", s.settings.CustomerLevelID)
	if code := p.FlatFields["code"]; code != "" {
		detail["searchcode"] = s.settings.SearchcodePrefix + code
	}
	if len(detail) > 0 {
		data[sectionCustomerDetail] = detail
	}

	return s.client.SubmitCustomerApplication(ctx, map[string]interface{}{"data": data})
}

// checkRegeneratedCode reruns the duplicate check for the replacement code.
// A check failure is tolerated; an actual duplicate stops the resubmit.
func (s *Service) checkRegeneratedCode(ctx context.Context, p payload.Payload) error {
	resp, err := s.CheckDuplicate(ctx, duplicateIdentity(p))
	if err != nil {
		s.logger.Warn("duplicate re-check failed for regenerated code", zap.Error(err))
		return nil
	}
	if len(duplicateRecords(resp)) > 0 {
		return errors.NewBusinessRuleError(
			"duplicate customer found for regenerated code "+p.FlatFields["code"],
			"customer application not resubmitted")
	}
	return nil
}

func (s *Service) auditApplication(ctx context.Context, applicationResp map[string]interface{}) {
	applicationID := applicationIDFromResponse(applicationResp)
	if applicationID == "" {
		s.logger.Warn("customer application id missing, audit skipped")
		return
	}

	body := map[string]interface{}{
		"data": []map[string]interface{}{
			{"systemSource": s.settings.SystemSource, "id": applicationID},
		},
	}
	if _, err := s.client.AuditCustomerApplication(ctx, body); err != nil {
		s.logger.Warn("customer application audit failed",
			zap.String("application_id", applicationID),
			zap.Error(err))
	}
}

// CreateOpportunity creates the sales opportunity, attaching the install
// item list parsed from the submission context.
func (s *Service) CreateOpportunity(ctx context.Context, p payload.Payload, sctx *submission.Context) (map[string]interface{}, error) {
	now := s.now()
	data := p.Body(sectionOpportunityHeader, sectionOpportunityCharacter)

	code := generateOpportunityCode(sctx.Value(note.KeyCustomerCode), now)
	data["code"] = code
	data["resubmitCheckKey"] = code
	data["opptState"] = 0
	data["_status"] = statusInsert
	data["systemCode"] = s.settings.OpportunitySystemCode
	setIfConfigured(data, "dept", s.settings.DeptID)
	setIfConfigured(data, "org", s.settings.SalesOrgID)
	setIfConfigured(data, "opptTransType", s.settings.OpportunityTransTypeID)
	setIfConfigured(data, "opptSource", s.settings.OpportunitySource)
	if _, ok := data["winningRate"]; !ok {
		data["winningRate"] = "0"
	}
	if description := firstNonEmpty(
		sctx.Value(note.KeyRemark),
		sctx.Value(note.KeyPlanType),
		sctx.Value(note.KeyInstallContent),
	); description != "" {
		data["description"] = description
	}
	data["opptItemList"] = s.buildOpportunityItems(sctx)

	return s.client.CreateOpportunity(ctx, map[string]interface{}{"data": data})
}

// buildOpportunityItems parses the install content into catalog items and
// renders them as opportunity line items with replacement-cycle fields.
func (s *Service) buildOpportunityItems(sctx *submission.Context) []map[string]interface{} {
	installDate := firstNonEmpty(
		sctx.Value(note.KeyContractStartDate),
		sctx.Value(note.KeyExpectSignDate),
		sctx.Value(note.KeyOpportunityDate),
	)
	currency := firstNonEmpty(sctx.Value(note.KeyCurrency), s.settings.DefaultCurrency)

	unitPrice := "0"
	if formatted, ok := normalize.FormatAmount(sctx.Value(note.KeyExpectSignMoney)); ok {
		unitPrice = formatted
	}

	source := firstNonEmpty(sctx.Value(note.KeyInstallContent), sctx.Value(note.KeyPlanType))
	items, warnings := s.catalog.ParseItems(source)
	for _, warning := range warnings {
		s.logger.Warn("install item not in catalog",
			zap.String("field", warning.Field),
			zap.String("reason", warning.Message))
	}
	if len(items) == 0 {
		name := firstNonEmpty(sctx.Value(note.KeyPlanType), sctx.Value(note.KeyOpportunityName))
		items = []catalog.Item{{Product: catalog.Product{Name: name}, Quantity: 1}}
	}

	built := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		entry := map[string]interface{}{
			"itemCurrency": currency,
			"unitPrice":    unitPrice,
			"num":          item.Quantity,
			"money":        multiplyAmount(unitPrice, item.Quantity),
			"remark":       "",
			"productName":  item.Product.Name,
			"_status":      statusInsert,
			"systemCode":   s.settings.OpportunitySystemCode,
		}
		if item.Product.Code != "" {
			entry["productCode"] = item.Product.Code
			if isDigits(item.Product.Code) {
				entry["product"] = item.Product.Code
			}
		}

		defineCharacter := map[string]interface{}{}
		if installDate != "" {
			defineCharacter["attrext11"] = installDate
			defineCharacter["attrext14"] = installDate
		}
		if item.Product.CycleMonths > 0 {
			defineCharacter["attrext12"] = item.Product.CycleMonths
			if next, ok := catalog.NextReplacementDate(installDate, item.Product.CycleMonths); ok {
				defineCharacter["attrext13"] = next
			}
		}
		if len(defineCharacter) > 0 {
			entry["opptItemDefineCharacter"] = defineCharacter

			bodyDef := map[string]interface{}{}
			if v, ok := defineCharacter["attrext11"]; ok {
				bodyDef["define1"] = v
			}
			if v, ok := defineCharacter["attrext12"]; ok {
				bodyDef["define2"] = v
			}
			if v, ok := defineCharacter["attrext13"]; ok {
				bodyDef["define3"] = v
			}
			if v, ok := defineCharacter["attrext14"]; ok {
				bodyDef["define4"] = v
			}
			entry["bodyDef"] = bodyDef
		}

		built = append(built, entry)
	}
	return built
}

// CreateTasks composes the follow-up task series for the submission and
// saves each task as one logical operation.
func (s *Service) CreateTasks(ctx context.Context, customerID string, sctx *submission.Context) (map[string]interface{}, error) {
	input := s.taskInputFromContext(customerID, sctx)
	specs := ComposeTasks(input, s.settings.TaskRouting, s.now())
	return s.saveTasks(ctx, input, specs)
}

// saveTasks submits composed task specs one by one. The first save failure
// aborts and reports; tasks already saved stay.
func (s *Service) saveTasks(ctx context.Context, input TaskInput, specs []TaskSpec) (map[string]interface{}, error) {
	created := make([]interface{}, 0, len(specs))
	for _, spec := range specs {
		body := map[string]interface{}{
			"data": taskPayload(spec, input, s.settings.SystemSource, s.settings.SalesOrgID, s.settings.ServiceDeptID, s.settings.ServiceDeptName),
		}
		if _, err := s.client.SaveTask(ctx, body); err != nil {
			return map[string]interface{}{"created": created}, err
		}
		created = append(created, spec.Code)
		s.logger.Info("follow-up task saved",
			zap.String("kind", spec.Kind),
			zap.String("code", spec.Code),
			zap.String("due", spec.DueDate))
	}

	return map[string]interface{}{
		"created": created,
		"count":   len(created),
	}, nil
}

func (s *Service) taskInputFromContext(customerID string, sctx *submission.Context) TaskInput {
	installDate := firstNonEmpty(
		sctx.Value(note.KeyContractStartDate),
		sctx.Value(note.KeyExpectSignDate),
		sctx.Value(note.KeyOpportunityDate),
	)

	content := sctx.Value(note.KeyRawText)
	if content == "" {
		content = ComposeContentLines([][2]string{
			{"客戶名稱", sctx.Value(note.KeyCustomerName)},
			{"聯繫電話", sctx.Value(note.KeyContactTel)},
			{"安裝時間", installDate},
			{"方案類型", sctx.Value(note.KeyPlanType)},
			{"總金額", sctx.Value(note.KeyTotalAmount)},
			{"聯絡地址", sctx.Value(note.KeyInstallLocation)},
			{"使用方式", sctx.Value(note.KeyUsageLabel)},
			{"付款方式", sctx.Value(note.KeyPaymentLabel)},
			{"月費金額", sctx.Value(note.KeyMonthlyFee)},
			{"按金", sctx.Value(note.KeyDeposit)},
			{"預繳金", sctx.Value(note.KeyPrepay)},
			{"備注", sctx.Value(note.KeyRemark)},
		})
	}

	nextDate, nextName := s.nextReplacement(sctx, installDate)

	return TaskInput{
		CustomerID:          customerID,
		CustomerName:        sctx.Value(note.KeyCustomerName),
		OpportunityID:       sctx.Value(note.KeyOpptID),
		OpportunityStage:    firstNonEmpty(sctx.Value(note.KeyOpptStage), sctx.Value(note.KeyOpportunityStage)),
		SaleArea:            sctx.Value(note.KeySaleArea),
		OwnerID:             sctx.Value(note.KeyOwnerID),
		OwnerName:           sctx.Value(note.KeyOwnerName),
		Content:             content,
		InstallDate:         installDate,
		ContractStart:       sctx.Value(note.KeyContractStartDate),
		ContractEnd:         sctx.Value(note.KeyContractEndDate),
		PaymentCode:         sctx.Value(note.KeyPaymentCode),
		PaymentLabel:        sctx.Value(note.KeyPaymentLabel),
		MonthlyFee:          sctx.Value(note.KeyMonthlyFee),
		TotalAmount:         sctx.Value(note.KeyTotalAmount),
		NextReplacementDate: nextDate,
		NextReplacementName: nextName,
	}
}

// nextReplacement finds the earliest upcoming replacement across the install
// items.
func (s *Service) nextReplacement(sctx *submission.Context, installDate string) (string, string) {
	if installDate == "" {
		return "", ""
	}
	source := firstNonEmpty(sctx.Value(note.KeyInstallContent), sctx.Value(note.KeyPlanType))
	items, _ := s.catalog.ParseItems(source)

	var (
		earliest string
		name     string
	)
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

// LookupCustomerIDByCode retries the code lookup: freshly created customers
// take a moment to appear in gateway searches.
func (s *Service) LookupCustomerIDByCode(ctx context.Context, customerCode string) (string, error) {
	if strings.TrimSpace(customerCode) == "" {
		return "", nil
	}

	var lastErr error
	for attempt := 0; attempt < s.settings.LookupRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.settings.LookupRetryDelay):
			}
		}

		id, err := s.client.LookupCustomerByCode(ctx, customerCode)
		if err != nil {
			lastErr = err
			continue
		}
		if id != "" {
			return id, nil
		}
	}
	return "", lastErr
}

// generateOpportunityCode builds a unique-enough opportunity code from the
// customer code prefix and a second-resolution timestamp.
func generateOpportunityCode(customerCode string, now time.Time) string {
	prefix := strings.ToUpper(strings.TrimSpace(customerCode))
	if prefix == "" {
		prefix = "OPPT"
	}
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return prefix + now.Format("20060102150405")
}

func isPendingApplicationError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, codePendingApplication) || strings.Contains(msg, "在申请")
}

func isPaymentPendingError(err error) bool {
	return strings.Contains(err.Error(), codePaymentPending)
}

// regenerateCustomerCode derives a replacement code from the first three
// characters of the locked one plus an MMDDHHMM stamp. Empty when no usable
// replacement exists.
func regenerateCustomerCode(current string, now time.Time) string {
	current = strings.ToUpper(strings.TrimSpace(current))
	if current == "" {
		return ""
	}
	prefix := current
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	regenerated := prefix + now.Format("01021504")
	if regenerated == current {
		return ""
	}
	return regenerated
}

// withCustomerCode rebuilds the payload around the replacement code, keeping
// the display name and search code in step where they embed the old one.
func withCustomerCode(p payload.Payload, oldCode, newCode string) payload.Payload {
	flat := make(map[string]string, len(p.FlatFields))
	for k, v := range p.FlatFields {
		if oldCode != "" && strings.Contains(v, oldCode) {
			v = strings.Replace(v, oldCode, newCode, 1)
		}
		flat[k] = v
	}
	flat["code"] = newCode
	return payload.Payload{
		FlatFields:             flat,
		HeaderDefinitionFields: p.HeaderDefinitionFields,
		CharacteristicFields:   p.CharacteristicFields,
	}
}

// withoutPaymentMethod drops the payment field the CRM holds for review.
func withoutPaymentMethod(p payload.Payload) payload.Payload {
	detail := make(map[string]string, len(p.HeaderDefinitionFields))
	for k, v := range p.HeaderDefinitionFields {
		if k == "payway" {
			continue
		}
		detail[k] = v
	}
	return payload.Payload{
		FlatFields:             p.FlatFields,
		HeaderDefinitionFields: detail,
		CharacteristicFields:   p.CharacteristicFields,
	}
}

// duplicateIdentity keeps only the identity fields the duplicate-check rule
// matches on.
func duplicateIdentity(p payload.Payload) payload.Payload {
	flat := make(map[string]string)
	for _, key := range []string{"name", "code", "contactTel", "address", "customerClass"} {
		if v := p.FlatFields[key]; v != "" {
			flat[key] = v
		}
	}
	return payload.Payload{FlatFields: flat}
}

// duplicateRecords reads the duplicate-check hit list from either response
// shape the gateway uses.
func duplicateRecords(resp map[string]interface{}) []interface{} {
	switch data := resp["data"].(type) {
	case []interface{}:
		return data
	case map[string]interface{}:
		if raw, ok := data["recordList"].([]interface{}); ok {
			return raw
		}
	}
	return nil
}

func applicationIDFromResponse(resp map[string]interface{}) string {
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		return ""
	}
	if id := asString(data["id"]); id != "" {
		return id
	}
	if nested, ok := data["newBizObject"].(map[string]interface{}); ok {
		return asString(nested["id"])
	}
	return ""
}

func stringSection(data map[string]interface{}, key string) map[string]string {
	if section, ok := data[key].(map[string]string); ok {
		return section
	}
	return map[string]string{}
}

func setIfConfigured(data map[string]interface{}, key, value string) {
	if value != "" {
		data[key] = value
	}
}

func setIfConfigured2(section map[string]string, key, value string) {
	if value != "" {
		section[key] = value
	}
}

func multiplyAmount(unitPrice string, quantity int) string {
	price, err := strconv.ParseFloat(strings.ReplaceAll(unitPrice, ",", ""), 64)
	if err != nil {
		return unitPrice
	}
	return strconv.FormatFloat(price*float64(quantity), 'f', -1, 64)
}

func isDigits(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
