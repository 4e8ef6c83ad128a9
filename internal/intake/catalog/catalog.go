// internal/intake/catalog/catalog.go

// Package catalog maps install-content mentions onto the CRM product table
// and expands them into install line items with replacement cycles.
package catalog

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"crm-intake-workers/internal/intake/note"
)

// Product is one CRM catalog entry. Grouping entries carry Children and no
// code of their own; matching them yields the children instead.
type Product struct {
	Key         string
	Code        string
	Name        string
	CycleMonths int
	Children    []string
}

// Item is one install line: a concrete product and a quantity.
type Item struct {
	Product  Product
	Quantity int
}

// Catalog is the product table. Match order is the table order, so
// overlapping keys stay deterministic.
type Catalog struct {
	order   []string
	entries map[string]Product
}

var (
	splitRe    = regexp.MustCompile(`[+,，、；;]`)
	quantityRe = regexp.MustCompile(`[*xX×]\s*(\d+)`)
)

// New builds a catalog from products in match order.
func New(products []Product) *Catalog {
	c := &Catalog{entries: make(map[string]Product, len(products))}
	for _, p := range products {
		c.order = append(c.order, p.Key)
		c.entries[p.Key] = p
	}
	return c
}

// Default returns the production catalog.
func Default() *Catalog {
	return New([]Product{
		// Bundles expand to their consumables.
		{Key: "RO900S", Code: "1414", Name: "RO-900S E.P微電腦可調式RO純水機", Children: []string{"R-002", "R-001"}},
		{Key: "MF330", Name: "MF330 組合", Children: []string{"MF110", "MF220"}},
		{Key: "DC3000", Name: "DC3000 組合", Children: []string{"DC2000", "DC1000"}},

		// Machines.
		{Key: "HS990", Code: "1005", Name: "HS990智慧節能殺菌飲水機"},
		{Key: "HM290", Code: "1087", Name: "HM290 直立式冰溫熱飲水機(白色)"},
		{Key: "HM190", Code: "1089", Name: "HM190 桌上型冰冷熱飲水機(白)"},
		{Key: "EP298", Code: "1116", Name: "EVERPOLL- EVB-298 智能雙溫飲水機"},
		{Key: "M3", Code: "1613", Name: "HS-M3 櫥下型冰溫熱飲水機"},
		{Key: "十秒機", Code: "1194", Name: "10SM EVERPOLL-十秒機(OZONE活氧)"},

		// Filtration systems.
		{Key: "FH500", Code: "1339", Name: "EVERPOLL-FH500中央過濾系統", CycleMonths: 12},
		{Key: "FH301", Code: "1214", Name: "EVERPOLL-FH301全屋過濾系統", CycleMonths: 12},
		{Key: "FH230", Code: "1563", Name: "EVERPOLL-FH230 全屋過濾淨系統", CycleMonths: 12},
		{Key: "FH200", Code: "1578", Name: "EVERPOLL-FH200全屋過濾淨系統", CycleMonths: 12},
		{Key: "AHP150", Code: "1137", Name: "EVERPOLL-AHP150中央過濾系統", CycleMonths: 12},
		{Key: "MF110", Code: "1192", Name: "MF110 EVERPOLL商用高流量飲用水過濾系統", CycleMonths: 12},
		{Key: "MF220", Code: "1193", Name: "MF220 EVERPOLL商用高流量樹脂離子交換系統", CycleMonths: 6},
		{Key: "DC2000", Code: "1119", Name: "EVERPOLL-DC2000 英國無納離子交換樹脂系統", CycleMonths: 6},
		{Key: "DC1000", Code: "1120", Name: "EVERPOLL-DC1000 單道雙效複合式系統", CycleMonths: 12},
		{Key: "PBS400", Code: "1183", Name: "EVERPURE-PBS400直飲過濾系統", CycleMonths: 12},
		{Key: "H104", Code: "1182", Name: "EVERPURE-H104直飲過濾系統", CycleMonths: 12},
		{Key: "EF6000", Code: "1217", Name: "EVERPURE-EF6000直飲過濾系統", CycleMonths: 12},

		// Consumables.
		{Key: "R-001", Code: "1350", Name: "R-001多折式雙效復合濾芯", CycleMonths: 12},
		{Key: "R-002", Code: "1351", Name: "R-002高效抗污RO膜", CycleMonths: 24},
		{Key: "MC2", Code: "1146", Name: "EVERPURE-MC2 濾芯", CycleMonths: 12},
		{Key: "10吋PP", Code: "1101", Name: "10吋-PP過濾棉", CycleMonths: 6},
		{Key: "20吋PP", Code: "1100", Name: "20吋-PP過濾棉", CycleMonths: 6},
		{Key: "T33", Code: "1017", Name: "Filter T33 Small濾芯", CycleMonths: 12},
		{Key: "UF", Code: "1439", Name: "MAXTEC-UF超濾膜濾芯", CycleMonths: 12},

		// UV lamps.
		{Key: "1GUV", Code: "1099", Name: "PHILIPS-UV-SET 紫外線殺菌燈組-1G/6W", CycleMonths: 12},
		{Key: "2GUV", Code: "1016", Name: "PHILIPS-UV-SET 紫外線殺菌燈組-2G/16W", CycleMonths: 12},
		{Key: "4GUV", Code: "1199", Name: "PHILIPS-UV-SET 紫外線殺菌燈組-4G", CycleMonths: 12},
		{Key: "6GUV", Code: "1015", Name: "PHILIPS-UV-SET 紫外線殺菌燈組-6G/25W", CycleMonths: 12},

		// Fittings.
		{Key: "龍頭", Code: "1138", Name: "EVERPURE-TOP 原裝水龍頭"},
	})
}

// Lookup matches text against the catalog. Exact key containment wins and
// expands bundles to their children; otherwise a normalized name-containment
// pass runs. Results are deduplicated by code.
func (c *Catalog) Lookup(text string) []Product {
	lookup := strings.ToUpper(strings.TrimSpace(text))
	if lookup == "" {
		return nil
	}

	var results []Product
	seen := make(map[string]struct{})
	appendProduct := func(p Product) {
		dedupeKey := p.Code + "|" + p.Name
		if _, ok := seen[dedupeKey]; ok {
			return
		}
		seen[dedupeKey] = struct{}{}
		results = append(results, p)
	}

	for _, key := range c.order {
		if !strings.Contains(lookup, strings.ToUpper(key)) {
			continue
		}
		p := c.entries[key]
		if len(p.Children) == 0 {
			appendProduct(p)
			continue
		}
		for _, childKey := range p.Children {
			if child, ok := c.entries[childKey]; ok {
				appendProduct(child)
			}
		}
	}
	if len(results) > 0 {
		return results
	}

	// Name-containment fallback, ignoring spaces and dashes.
	normalized := normalizeForMatch(lookup)
	for _, key := range c.order {
		p := c.entries[key]
		if len(p.Children) > 0 {
			continue
		}
		name := normalizeForMatch(strings.ToUpper(p.Name))
		if name == "" {
			continue
		}
		if strings.Contains(name, normalized) || strings.Contains(normalized, name) {
			appendProduct(p)
		}
	}
	return results
}

func normalizeForMatch(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}

// ParseItems splits an install-content value into catalog items. Tokens
// split on +, commas, and semicolons; a *N or xN suffix sets the quantity.
// Unmatched tokens warn and are skipped, never failed.
func (c *Catalog) ParseItems(text string) ([]Item, []note.Warning) {
	var (
		items    []Item
		warnings []note.Warning
	)
	for _, token := range splitRe.Split(text, -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		qty := 1
		if m := quantityRe.FindStringSubmatch(token); m != nil {
			if parsed, err := strconv.Atoi(m[1]); err == nil && parsed > 0 {
				qty = parsed
			}
		}
		name := strings.TrimSpace(quantityRe.ReplaceAllString(token, ""))

		products := c.Lookup(name)
		if len(products) == 0 {
			warnings = append(warnings, note.NewWarning(note.StageBuild, string(note.KeyInstallContent), "no catalog product matches: "+token))
			continue
		}
		for _, p := range products {
			items = append(items, Item{Product: p, Quantity: qty})
		}
	}
	return items, warnings
}

// NextReplacementDate advances an ISO install date by a cycle in months,
// clamping the day to the target month's length.
func NextReplacementDate(installDate string, cycleMonths int) (string, bool) {
	if cycleMonths <= 0 {
		return "", false
	}
	base, err := time.Parse("2006-01-02", installDate)
	if err != nil {
		return "", false
	}

	months := int(base.Month()) - 1 + cycleMonths
	year := base.Year() + months/12
	month := time.Month(months%12 + 1)
	day := base.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), true
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
