// internal/intake/normalize/values.go
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	customerCodeRe = regexp.MustCompile(`\b[Cc]\d{3,}\b`)
	phoneRe        = regexp.MustCompile(`\d{6,}`)

	trailingEqualsRe = regexp.MustCompile(`[=＝]\s*(-?[0-9][0-9,]*(?:\.[0-9]+)?)\s*$`)
	multiplyRe       = regexp.MustCompile(`(-?[0-9][0-9,]*(?:\.[0-9]+)?)\s*[*xX×]\s*(-?[0-9][0-9,]*(?:\.[0-9]+)?)`)
	numberRe         = regexp.MustCompile(`-?[0-9][0-9,]*(?:\.[0-9]+)?`)
	decimalRe        = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
	digitsRe         = regexp.MustCompile(`[0-9]+`)
	bareTwoDigitRe   = regexp.MustCompile(`^[0-9]{2}$`)
	bareCodeRe       = regexp.MustCompile(`^[0-9]{2,3}$`)

	standardDateRe = regexp.MustCompile(`(20\d{2})[./-](\d{1,2})[./-](\d{1,2})`)
	cjkDateRe      = regexp.MustCompile(`(20\d{2})年\s*(\d{1,2})月\s*(\d{1,2})\s*[日號号]?`)
	monthDayRe     = regexp.MustCompile(`(\d{1,2})月\s*(\d{1,2})\s*[日號号]`)
	bareMonthDayRe = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})$`)
)

// LooksLikeCustomerLine reports whether the value has the shape of a pasted
// customer line: a customer code or a long digit run.
func LooksLikeCustomerLine(value string) bool {
	return customerCodeRe.MatchString(value) || phoneRe.MatchString(value)
}

// LooksLikeAddress reports whether the value contains any address keyword.
func (t Tables) LooksLikeAddress(value string) bool {
	for _, kw := range t.AddressKeywords {
		if strings.Contains(value, kw) {
			return true
		}
	}
	return false
}

// ParseAmount extracts a monetary amount from free text. A trailing "=N"
// wins, then "X*Y" products, then the first plain number. Currency tokens
// and thousands separators are ignored.
func ParseAmount(text string) (string, bool) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return "", false
	}
	if m := trailingEqualsRe.FindStringSubmatch(clean); m != nil {
		if f, ok := parseNumber(m[1]); ok {
			return formatNumber(f), true
		}
	}
	if m := multiplyRe.FindStringSubmatch(clean); m != nil {
		a, okA := parseNumber(m[1])
		b, okB := parseNumber(m[2])
		if okA && okB {
			return formatNumber(a * b), true
		}
	}
	if m := numberRe.FindString(clean); m != "" {
		if f, ok := parseNumber(m); ok {
			return formatNumber(f), true
		}
	}
	return "", false
}

// FormatAmount renders a numeric string in canonical form: integers bare,
// decimals with significant digits only. ok is false for non-numeric input.
func FormatAmount(text string) (string, bool) {
	f, ok := parseNumber(strings.TrimSpace(text))
	if !ok {
		return "", false
	}
	return formatNumber(f), true
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseDate extracts a calendar date and renders it as YYYY-MM-DD. Bare
// month/day values resolve against refYear; refYear 0 rejects them.
func ParseDate(text string, refYear int) (string, bool) {
	clean := strings.TrimSpace(text)
	if m := standardDateRe.FindStringSubmatch(clean); m != nil {
		return canonicalDate(m[1], m[2], m[3])
	}
	if m := cjkDateRe.FindStringSubmatch(clean); m != nil {
		return canonicalDate(m[1], m[2], m[3])
	}
	if refYear > 0 {
		if m := monthDayRe.FindStringSubmatch(clean); m != nil {
			return canonicalDate(strconv.Itoa(refYear), m[1], m[2])
		}
		if m := bareMonthDayRe.FindStringSubmatch(clean); m != nil {
			return canonicalDate(strconv.Itoa(refYear), m[1], m[2])
		}
	}
	return "", false
}

func canonicalDate(ys, ms, ds string) (string, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || t.Month() != time.Month(m) || t.Day() != d {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// ParseContractYears reads a contract term from ASCII digits or CJK
// numerals.
func ParseContractYears(text string, numerals []YearNumeral) (int, bool) {
	if m := digitsRe.FindString(text); m != "" {
		if y, err := strconv.Atoi(m); err == nil && y > 0 {
			return y, true
		}
	}
	for _, n := range numerals {
		if strings.Contains(text, n.Numeral) {
			return n.Years, true
		}
	}
	return 0, false
}

// NormalizeCurrency folds free-text currency mentions onto ISO codes.
func NormalizeCurrency(text string) (string, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(text, "澳") || strings.Contains(lower, "mop"):
		return "MOP", true
	case strings.Contains(text, "港") || strings.Contains(lower, "hkd"):
		return "HKD", true
	}
	return "", false
}
