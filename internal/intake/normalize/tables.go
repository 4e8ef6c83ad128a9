// internal/intake/normalize/tables.go
package normalize

import "crm-intake-workers/internal/intake/note"

// PaymentAlias maps a keyword found in the note text to a two-digit payment
// code. Aliases are matched in slice order so overlapping keywords stay
// deterministic.
type PaymentAlias struct {
	Keyword string
	Code    string
}

// YearNumeral maps a CJK numeral found in a contract-term value to a year
// count. Matched in slice order.
type YearNumeral struct {
	Numeral string
	Years   int
}

// Tables is the immutable configuration of the normalizer: label vocabulary,
// placeholder tokens, alias maps, and shape keywords. Build one with
// DefaultTables and treat it as read-only.
type Tables struct {
	Labels          map[string]note.Key
	Placeholders    map[string]struct{}
	PaymentAliases  []PaymentAlias
	PaymentLabels   map[string]string
	UsageAliases    map[string]string
	AddressKeywords []string
	YearNumerals    []YearNumeral

	// ReferenceYear resolves bare month/day dates. Zero rejects them with a
	// warning; callers inject the year at the process edge so the tables
	// themselves stay clock-free.
	ReferenceYear int
}

// LabelNames returns the label vocabulary, for parser construction.
func (t Tables) LabelNames() []string {
	names := make([]string, 0, len(t.Labels))
	for label := range t.Labels {
		names = append(names, label)
	}
	return names
}

// DefaultTables returns the production vocabulary. Traditional and simplified
// spellings both map to the same canonical keys.
func DefaultTables() Tables {
	return Tables{
		Labels: map[string]note.Key{
			"客戶名稱": note.KeyCustomerName,
			"客户名称": note.KeyCustomerName,
			"客戶":   note.KeyCustomerLine,
			"客户":   note.KeyCustomerLine,
			"客戶編碼": note.KeyCustomerCode,
			"客户编码": note.KeyCustomerCode,
			"客戶編號": note.KeyCustomerCode,
			"客户编号": note.KeyCustomerCode,

			"聯繫電話": note.KeyContactTel,
			"联系电话": note.KeyContactTel,
			"聯絡電話": note.KeyContactTel,
			"電話":   note.KeyContactTel,
			"电话":   note.KeyContactTel,

			"目前付款方式":        note.KeyPaymentCode,
			"目前付費方式":        note.KeyPaymentCode,
			"目前付款方式(01-07)": note.KeyPaymentCode,
			"付款方式":          note.KeyPaymentCode,
			"付費方式":          note.KeyPaymentCode,

			"使用方式": note.KeyUsageLabel,

			"月費金額": note.KeyMonthlyFee,
			"月费金额": note.KeyMonthlyFee,
			"月費":   note.KeyMonthlyFee,
			"按金":   note.KeyDeposit,
			"押金":   note.KeyDeposit,
			"預繳金":  note.KeyPrepay,
			"预缴金":  note.KeyPrepay,
			"預繳":   note.KeyPrepay,
			"總金額":  note.KeyTotalAmount,
			"总金额":  note.KeyTotalAmount,

			"安裝位置":       note.KeyInstallLocation,
			"安装位置":       note.KeyInstallLocation,
			"安裝位置(客戶地址)": note.KeyInstallLocation,
			"安装位置(客户地址)": note.KeyInstallLocation,
			"安裝地址":       note.KeyInstallLocation,
			"聯絡地址":       note.KeyInstallLocation,
			"联系地址":       note.KeyInstallLocation,
			"聯繫地址":       note.KeyInstallLocation,
			"地址":         note.KeyInstallLocation,
			"住址":         note.KeyInstallLocation,
			"位置":         note.KeyInstallLocation,
			"地點":         note.KeyInstallLocation,

			"安裝內容": note.KeyInstallContent,
			"安装内容": note.KeyInstallContent,
			"安裝時間": note.KeyInstallTime,
			"安装时间": note.KeyInstallTime,

			"備註": note.KeyRemark,
			"備注": note.KeyRemark,
			"备注": note.KeyRemark,

			"客戶分類": note.KeyCustomerClass,
			"客户分类": note.KeyCustomerClass,
			"客戶分類(家用客戶 商業客戶 政府專案)": note.KeyCustomerClass,
			"客户分类(家用客户 商业客户 政府专案)": note.KeyCustomerClass,

			"商機名稱": note.KeyOpportunityName,
			"商机名称": note.KeyOpportunityName,
			"商機階段": note.KeyOpportunityStage,
			"商机阶段": note.KeyOpportunityStage,
			"商機日期": note.KeyOpportunityDate,
			"商机日期": note.KeyOpportunityDate,

			"合約1開始日":  note.KeyContractStartDate,
			"合约1开始日":  note.KeyContractStartDate,
			"合約1開始日期": note.KeyContractStartDate,
			"合約開始日":   note.KeyContractStartDate,
			"合约开始日":   note.KeyContractStartDate,
			"合同開始日":   note.KeyContractStartDate,
			"合同开始日":   note.KeyContractStartDate,
			"合約1結束日期": note.KeyContractEndDate,
			"合约1结束日期": note.KeyContractEndDate,
			"合約1結束日":  note.KeyContractEndDate,
			"合約結束日":   note.KeyContractEndDate,
			"合约结束日":   note.KeyContractEndDate,
			"合同結束日":   note.KeyContractEndDate,
			"合同结束日":   note.KeyContractEndDate,
			"合約1年期":   note.KeyContractYears,
			"合约1年期":   note.KeyContractYears,
			"合約年期":    note.KeyContractYears,
			"合约年期":    note.KeyContractYears,

			"方案類型": note.KeyPlanType,
			"方案类型": note.KeyPlanType,
			"方案名稱": note.KeyPlanType,
			"方案名称": note.KeyPlanType,
			"方案":   note.KeyPlanType,

			"贏單率":    note.KeyWinningRate,
			"赢单率":    note.KeyWinningRate,
			"預計簽單日期": note.KeyExpectSignDate,
			"预计签单日期": note.KeyExpectSignDate,
			"預計簽單金額": note.KeyExpectSignMoney,
			"预计签单金额": note.KeyExpectSignMoney,

			"幣種": note.KeyCurrency,
			"币种": note.KeyCurrency,
			"幣別": note.KeyCurrency,
			"貨幣": note.KeyCurrency,

			"負責人": note.KeyOwnerHint,
			"负责人": note.KeyOwnerHint,
			"銷售":  note.KeyOwnerHint,
			"销售":  note.KeyOwnerHint,
			"業務":  note.KeyOwnerHint,

			"銷售區域": note.KeySaleArea,
			"區域":   note.KeySaleArea,
		},

		Placeholders: map[string]struct{}{
			"--":   {},
			"—":    {},
			"-":    {},
			"暫無":   {},
			"暂无":   {},
			"無":    {},
			"无":    {},
			"n/a":  {},
			"n\\a": {},
			"na":   {},
		},

		PaymentAliases: []PaymentAlias{
			{"信用卡分期", "02"},
			{"一次性全繳", "01"},
			{"一次性", "01"},
			{"全繳", "01"},
			{"季度收費", "04"},
			{"季度", "04"},
			{"年度收費", "05"},
			{"年度", "05"},
			{"試用", "06"},
			{"每月收費", "07"},
			{"月費", "07"},
			{"銀行卡自動轉賬", "03"},
			{"自動轉賬", "03"},
			{"自動扣款", "03"},
		},

		PaymentLabels: map[string]string{
			"01": "一次性全繳",
			"02": "信用卡分期",
			"03": "銀行卡自動轉賬",
			"04": "季度收費",
			"05": "年度收費",
			"06": "試用",
			"07": "每月收費",
		},

		UsageAliases: map[string]string{
			"租":    "租用",
			"租用":   "租用",
			"租賃":   "租用",
			"rent": "租用",
			"買":    "買斷",
			"買斷":   "買斷",
			"買入":   "買斷",
			"購買":   "買斷",
			"购买":   "買斷",
			"buy":  "買斷",
		},

		AddressKeywords: []string{"座", "樓", "大廈", "廣場", "中心", "花園", "苑", "邨", "街", "路", "號"},

		YearNumerals: []YearNumeral{
			{"一", 1},
			{"二", 2},
			{"兩", 2},
			{"三", 3},
			{"四", 4},
			{"五", 5},
		},
	}
}
