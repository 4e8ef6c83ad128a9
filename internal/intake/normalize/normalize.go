// internal/intake/normalize/normalize.go
package normalize

import (
	"strconv"
	"strings"

	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/textparse"
)

// Normalizer folds raw label/value lines onto canonical keys. It never
// returns an error: values it cannot read become warnings and the field
// stays absent.
type Normalizer struct {
	tables Tables
}

func New(tables Tables) *Normalizer {
	return &Normalizer{tables: tables}
}

// Normalize maps every raw line to zero or more canonical fields, then runs
// the shape corrections (misfiled addresses, derived payment defaults).
// Running it over already-normalized values yields the same fields again.
func (n *Normalizer) Normalize(lines []note.RawLine) ([]note.ParsedField, []note.Warning) {
	var (
		fields   []note.ParsedField
		warnings []note.Warning
	)

	add := func(key note.Key, value string, idx int) {
		fields = append(fields, note.ParsedField{Key: key, Value: value, SourceLineIndex: idx})
	}
	warn := func(field, message string) {
		warnings = append(warnings, note.NewWarning(note.StageNormalize, field, message))
	}

	for _, line := range lines {
		key, ok := n.tables.Labels[textparse.NormalizeLabel(line.Label)]
		if !ok {
			warn(line.Label, "no canonical key for label")
			continue
		}
		value := strings.TrimSpace(line.Value)
		if n.isPlaceholder(value) {
			warn(string(key), "placeholder value dropped: "+value)
			continue
		}
		if value == "" {
			continue
		}
		n.normalizeField(key, value, line.LineIndex, add, warn)
	}

	return n.applyCorrections(fields, warnings)
}

func (n *Normalizer) isPlaceholder(value string) bool {
	_, ok := n.tables.Placeholders[strings.ToLower(value)]
	return ok
}

func (n *Normalizer) normalizeField(key note.Key, value string, idx int, add func(note.Key, string, int), warn func(string, string)) {
	switch key {
	case note.KeyCustomerLine:
		n.expandCustomerLine(value, idx, add)

	case note.KeyCustomerCode:
		add(key, strings.ToUpper(value), idx)

	case note.KeyMonthlyFee, note.KeyDeposit, note.KeyPrepay, note.KeyTotalAmount, note.KeyExpectSignMoney:
		if amount, ok := ParseAmount(value); ok {
			add(key, amount, idx)
		} else {
			warn(string(key), "value is not numeric: "+value)
		}

	case note.KeyContractStartDate, note.KeyContractEndDate, note.KeyExpectSignDate, note.KeyOpportunityDate:
		if date, ok := ParseDate(value, n.tables.ReferenceYear); ok {
			add(key, date, idx)
		} else {
			warn(string(key), "value is not a recognizable date: "+value)
		}

	case note.KeyInstallTime:
		// Install time is free text; canonicalize only when a date is
		// actually embedded.
		if date, ok := ParseDate(value, n.tables.ReferenceYear); ok {
			add(key, date, idx)
		} else {
			add(key, value, idx)
		}

	case note.KeyContractYears:
		if years, ok := ParseContractYears(value, n.tables.YearNumerals); ok {
			add(key, strconv.Itoa(years), idx)
		} else {
			warn(string(key), "value is not a contract term: "+value)
		}

	case note.KeyCurrency:
		if currency, ok := NormalizeCurrency(value); ok {
			add(key, currency, idx)
		} else {
			warn(string(key), "unrecognized currency: "+value)
		}

	case note.KeyPaymentCode:
		n.expandPayment(value, idx, add, warn)

	case note.KeyUsageLabel:
		add(key, n.normalizeUsage(value), idx)

	case note.KeyWinningRate:
		if m := decimalRe.FindString(value); m != "" {
			add(key, m, idx)
		} else {
			add(key, value, idx)
		}

	default:
		add(key, value, idx)
	}
}

// expandCustomerLine splits a pasted "客戶" line into code, phone, and name.
func (n *Normalizer) expandCustomerLine(value string, idx int, add func(note.Key, string, int)) {
	rest := value
	if code := customerCodeRe.FindString(rest); code != "" {
		add(note.KeyCustomerCode, strings.ToUpper(code), idx)
		rest = strings.Replace(rest, code, " ", 1)
	}
	if tel := phoneRe.FindString(rest); tel != "" {
		add(note.KeyContactTel, tel, idx)
		rest = strings.Replace(rest, tel, " ", 1)
	}
	if name := strings.Join(strings.Fields(rest), " "); name != "" {
		add(note.KeyCustomerName, name, idx)
	}
}

// expandPayment turns a payment mention into paymentCode plus paymentLabel.
func (n *Normalizer) expandPayment(value string, idx int, add func(note.Key, string, int), warn func(string, string)) {
	option := value
	if parts := splitOptions(value); len(parts) > 1 {
		option = parts[0]
		warn(string(note.KeyPaymentCode), "multiple payment options, using the first: "+option)
	} else if len(parts) == 1 {
		option = parts[0]
	}

	// A bare code counts only when the whole option is the two digits and
	// they name a configured payment method. Digits embedded in a phrase
	// (分期12個月) never shadow the alias table.
	code := ""
	if compact := strings.Join(strings.Fields(option), ""); bareTwoDigitRe.MatchString(compact) {
		if _, ok := n.tables.PaymentLabels[compact]; ok {
			code = compact
		}
	}
	if code == "" {
		for _, alias := range n.tables.PaymentAliases {
			if strings.Contains(option, alias.Keyword) {
				code = alias.Code
				break
			}
		}
	}
	if code == "" {
		warn(string(note.KeyPaymentCode), "unrecognized payment method: "+option)
		add(note.KeyPaymentLabel, option, idx)
		return
	}

	add(note.KeyPaymentCode, code, idx)
	if label, ok := n.tables.PaymentLabels[code]; ok {
		add(note.KeyPaymentLabel, label, idx)
	} else {
		add(note.KeyPaymentLabel, option, idx)
	}
}

func splitOptions(value string) []string {
	raw := strings.FieldsFunc(value, func(r rune) bool {
		return r == '/' || r == '、' || r == '，' || r == ','
	})
	var parts []string
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func (n *Normalizer) normalizeUsage(value string) string {
	if canonical, ok := n.tables.UsageAliases[value]; ok {
		return canonical
	}
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(value, "租") || strings.Contains(lower, "rent"):
		return "租用"
	case strings.Contains(value, "買") || strings.Contains(value, "购") || strings.Contains(lower, "buy"):
		return "買斷"
	}
	return value
}

// applyCorrections fixes fields that parsed cleanly but landed in the wrong
// place: an installLocation that is really a pasted customer line, a missing
// payment code recoverable from usage or plan. Every correction warns.
func (n *Normalizer) applyCorrections(fields []note.ParsedField, warnings []note.Warning) ([]note.ParsedField, []note.Warning) {
	first := make(map[note.Key]int, len(fields))
	for i, f := range fields {
		if _, seen := first[f.Key]; !seen {
			first[f.Key] = i
		}
	}
	warn := func(key note.Key, message string) {
		warnings = append(warnings, note.NewWarning(note.StageNormalize, string(key), message))
	}

	locPos, hasLoc := first[note.KeyInstallLocation]
	planPos, hasPlan := first[note.KeyPlanType]
	remarkPos, hasRemark := first[note.KeyRemark]

	switch {
	case hasLoc && !n.tables.LooksLikeAddress(fields[locPos].Value) && LooksLikeCustomerLine(fields[locPos].Value):
		switch {
		case hasPlan && n.tables.LooksLikeAddress(fields[planPos].Value):
			fields[locPos].Value = fields[planPos].Value
			warn(note.KeyInstallLocation, "customer-style value replaced with address from planType")
		case hasRemark && n.tables.LooksLikeAddress(fields[remarkPos].Value):
			fields[locPos].Value = fields[remarkPos].Value
			warn(note.KeyInstallLocation, "customer-style value replaced with address from remark")
		default:
			warn(note.KeyInstallLocation, "value looks like a customer line and no address-like field is available")
		}
	case !hasLoc && hasPlan && n.tables.LooksLikeAddress(fields[planPos].Value):
		fields = append(fields, note.ParsedField{
			Key:             note.KeyInstallLocation,
			Value:           fields[planPos].Value,
			SourceLineIndex: fields[planPos].SourceLineIndex,
		})
		warn(note.KeyInstallLocation, "taken from address-like planType value")
	}

	if _, hasPayment := first[note.KeyPaymentCode]; !hasPayment {
		_, hasLabel := first[note.KeyPaymentLabel]
		addPayment := func(code string, src int, origin string) {
			fields = append(fields, note.ParsedField{Key: note.KeyPaymentCode, Value: code, SourceLineIndex: src})
			if label, ok := n.tables.PaymentLabels[code]; ok && !hasLabel {
				fields = append(fields, note.ParsedField{Key: note.KeyPaymentLabel, Value: label, SourceLineIndex: src})
			}
			warn(note.KeyPaymentCode, "defaulted from "+origin)
		}

		applied := false
		if usagePos, hasUsage := first[note.KeyUsageLabel]; hasUsage {
			switch fields[usagePos].Value {
			case "租用":
				addPayment("07", fields[usagePos].SourceLineIndex, "usage 租用")
				applied = true
			case "買斷":
				addPayment("01", fields[usagePos].SourceLineIndex, "usage 買斷")
				applied = true
			}
		}
		if !applied && hasPlan && bareCodeRe.MatchString(strings.TrimSpace(fields[planPos].Value)) {
			addPayment(strings.TrimSpace(fields[planPos].Value), fields[planPos].SourceLineIndex, "numeric planType value")
		}
	}

	return fields, warnings
}
