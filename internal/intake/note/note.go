// Package note defines the shared vocabulary of the sales-note intake
// pipeline: raw lines, canonical field keys, parsed fields, and warnings.
package note

// Key is a canonical field key. Canonical keys are the only field names the
// pipeline stores, derives from, or maps to payload destinations.
type Key string

const (
	KeyCustomerID   Key = "customerId"
	KeyCustomerName Key = "customerName"
	KeyCustomerCode Key = "customerCode"
	// KeyCustomerRef is derived: customerCode when present, else customerId.
	KeyCustomerRef Key = "customerRef"
	KeyContactTel  Key = "contactTel"

	KeyUsageLabel   Key = "usageLabel"
	KeyPaymentCode  Key = "paymentCode"
	KeyPaymentLabel Key = "paymentLabel"
	KeyPlanType     Key = "planType"

	KeyDeposit     Key = "deposit"
	KeyPrepay      Key = "prepay"
	KeyMonthlyFee  Key = "monthlyFee"
	KeyTotalAmount Key = "totalAmount"

	KeyInstallLocation Key = "installLocation"
	KeyInstallContent  Key = "installContent"
	KeyInstallTime     Key = "installTime"

	KeyContractStartDate Key = "contractStartDate"
	KeyContractEndDate   Key = "contractEndDate"
	KeyContractYears     Key = "contractYears"

	KeyWinningRate     Key = "winningRate"
	KeyCurrency        Key = "currency"
	KeyExpectSignDate  Key = "expectSignDate"
	KeyExpectSignMoney Key = "expectSignMoney"

	KeyOpportunityDate  Key = "opportunityDate"
	KeyOpportunityName  Key = "opportunityName"
	KeyOpportunityStage Key = "opportunityStage"

	KeyRemark        Key = "remark"
	KeyOwnerHint     Key = "ownerHint"
	KeyOwnerID       Key = "ownerId"
	KeyOwnerName     Key = "ownerName"
	KeySaleArea      Key = "saleArea"
	KeyCustomerClass Key = "customerClass"
	KeyRawText       Key = "rawText"

	KeyOpptID    Key = "opptId"
	KeyOpptStage Key = "opptStage"

	// KeyCustomerLine marks the combined "code name phone" line. The
	// normalizer expands it into customerCode/customerName/contactTel and
	// never emits it as a field.
	KeyCustomerLine Key = "customerLine"
)

// RawLine is one label/value pair extracted from the note text, in input
// order.
type RawLine struct {
	Label     string `json:"label"`
	Value     string `json:"value"`
	LineIndex int    `json:"lineIndex"`
}

// ParsedField is one normalized canonical field. A single RawLine may yield
// zero or more ParsedFields.
type ParsedField struct {
	Key             Key    `json:"key"`
	Value           string `json:"value"`
	SourceLineIndex int    `json:"sourceLineIndex"`
}

// Warning is a non-fatal finding from any pipeline stage. Warnings are
// returned to the caller, never printed.
type Warning struct {
	Stage   string `json:"stage"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Warning stages.
const (
	StageParse     = "parse"
	StageNormalize = "normalize"
	StageBuild     = "build"
	StageSubmit    = "submit"
)

func NewWarning(stage, field, message string) Warning {
	return Warning{Stage: stage, Field: field, Message: message}
}
