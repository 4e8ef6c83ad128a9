// internal/intake/payload/mapping.go
package payload

import "crm-intake-workers/internal/intake/note"

// Destination lists where one canonical key lands in a request body. The
// same value often goes to several places: the CRM reads different fields
// in different screens, so redundant writes are intentional.
type Destination struct {
	Flat           []string
	Header         []string
	Characteristic []string

	// Money routes the value through FormatAmount; non-numeric values are
	// dropped instead of rendered.
	Money bool
}

// Mapping is the full canonical-key routing table for one request kind.
type Mapping map[note.Key]Destination

// OpportunityMapping routes context fields into the opportunity-save body.
func OpportunityMapping() Mapping {
	return Mapping{
		note.KeyUsageLabel: {
			Flat:           []string{"headDef!define8"},
			Header:         []string{"define8"},
			Characteristic: []string{"attrext8"},
		},
		note.KeyPaymentCode:  {Flat: []string{"industry"}},
		note.KeyPaymentLabel: {Flat: []string{"industry_name"}},
		note.KeyPlanType: {
			Header:         []string{"define9"},
			Characteristic: []string{"attrext9"},
		},
		note.KeyMonthlyFee: {
			Flat:           []string{"monthlyFee"},
			Header:         []string{"define10"},
			Characteristic: []string{"attrext10"},
			Money:          true,
		},
		note.KeyPrepay: {
			Flat:           []string{"prepay"},
			Header:         []string{"define11"},
			Characteristic: []string{"attrext16"},
			Money:          true,
		},
		note.KeyDeposit: {
			Flat:           []string{"deposit"},
			Header:         []string{"define12"},
			Characteristic: []string{"attrext17"},
			Money:          true,
		},
		note.KeyContractStartDate: {
			Flat:           []string{"contractBeginDate", "contractStartDate"},
			Header:         []string{"define17"},
			Characteristic: []string{"attrext2"},
		},
		note.KeyContractEndDate: {
			Flat:           []string{"contractEndDate", "contractEnd"},
			Header:         []string{"define18"},
			Characteristic: []string{"attrext3"},
		},
		note.KeyContractYears: {
			Flat:           []string{"contractYear", "contractYears"},
			Header:         []string{"define19"},
			Characteristic: []string{"attrext4"},
		},
		note.KeyInstallLocation:  {Flat: []string{"address"}},
		note.KeyOpportunityName:  {Flat: []string{"name"}},
		note.KeyCustomerRef:      {Flat: []string{"customer", "settleCustomer", "finalUser"}},
		note.KeyCustomerName:     {Flat: []string{"customer_name"}},
		note.KeyOpportunityStage: {Flat: []string{"opptStage"}},
		note.KeyWinningRate:      {Flat: []string{"winningRate"}},
		note.KeyCurrency:         {Flat: []string{"currency"}},
		note.KeyExpectSignDate:   {Flat: []string{"expectSignDate"}},
		note.KeyExpectSignMoney:  {Flat: []string{"expectSignMoney"}, Money: true},
		note.KeyOpportunityDate:  {Flat: []string{"opptDate"}},
		note.KeyContactTel:       {Flat: []string{"contactMethod"}},
		note.KeyOwnerID:          {Flat: []string{"ower"}},
		note.KeyOwnerName:        {Flat: []string{"ower_name"}},
		note.KeySaleArea:         {Flat: []string{"saleArea"}},
		note.KeyRawText:          {Header: []string{"define20"}},
	}
}

// CustomerApplicationMapping routes context fields into the customer-apply
// body.
func CustomerApplicationMapping() Mapping {
	return Mapping{
		note.KeyPaymentCode:    {Header: []string{"payway"}},
		note.KeyUsageLabel:     {Flat: []string{"largeText1"}},
		note.KeyInstallContent: {Flat: []string{"largeText2"}},
		note.KeyMonthlyFee:     {Flat: []string{"largeText3"}, Money: true},
		note.KeyRemark: {
			Flat:           []string{"largeText4"},
			Characteristic: []string{"customerDefine7"},
		},
		note.KeyPlanType:        {Characteristic: []string{"customerDefine6"}},
		note.KeyCustomerName:    {Flat: []string{"name"}},
		note.KeyCustomerCode:    {Flat: []string{"code"}},
		note.KeyContactTel:      {Flat: []string{"contactTel"}},
		note.KeyInstallLocation: {Flat: []string{"address"}},
		note.KeyCustomerClass:   {Flat: []string{"customerClass"}},
	}
}

// DuplicateCheckMapping routes the identity fields the duplicate check
// matches on. Flat only.
func DuplicateCheckMapping() Mapping {
	return Mapping{
		note.KeyCustomerName:    {Flat: []string{"name"}},
		note.KeyCustomerCode:    {Flat: []string{"code"}},
		note.KeyContactTel:      {Flat: []string{"contactTel"}},
		note.KeyInstallLocation: {Flat: []string{"address"}},
		note.KeyCustomerClass:   {Flat: []string{"customerClass"}},
	}
}
