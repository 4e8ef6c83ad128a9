// internal/intake/submission/builder.go
package submission

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"crm-intake-workers/internal/intake/normalize"
	"crm-intake-workers/internal/intake/note"
)

// OwnerRef is one CRM user who can own an opportunity.
type OwnerRef struct {
	ID   string
	Name string
}

// Settings are the business defaults the builder derives missing fields
// from. They come from configuration and never change during a run.
type Settings struct {
	DefaultPlanType  string
	DefaultCurrency  string
	DefaultYears     int
	ExtendedYears    int
	ExtendedKeywords []string
	AddressKeywords  []string

	StageRentID    string
	StageBuyID     string
	StageDefaultID string

	ServiceOwner   OwnerRef
	OwnerWhitelist map[string]OwnerRef
}

// PriorRecord is a previously stored submission for the same customer, used
// to fill gaps the note leaves open. Never overrides parsed values except
// through the explicit install-location fix.
type PriorRecord struct {
	Fields map[note.Key]string
}

// Address returns the prior install location, if any.
func (p *PriorRecord) Address() string {
	if p == nil {
		return ""
	}
	return p.Fields[note.KeyInstallLocation]
}

// BuildOptions carries per-run inputs. ReferenceDate anchors relative dates;
// the builder has no hidden clock.
type BuildOptions struct {
	ReferenceDate time.Time
	RawText       string
}

// Builder assembles a submission Context from normalized fields, a prior
// record, and derivation rules. Build is deterministic: same inputs, same
// context.
type Builder struct {
	settings Settings
}

func NewBuilder(settings Settings) *Builder {
	return &Builder{settings: settings}
}

// Build merges fields first (first writer of a key wins), then the prior
// record, then derives every missing business field.
func (b *Builder) Build(fields []note.ParsedField, prior *PriorRecord, opts BuildOptions) (*Context, []note.Warning) {
	ctx := NewContext()
	var warnings []note.Warning
	warn := func(field, message string) {
		warnings = append(warnings, note.NewWarning(note.StageBuild, field, message))
	}

	if opts.RawText != "" {
		ctx.Set(note.KeyRawText, opts.RawText)
	}

	// Corrections reserve their keys before the raw fields land, since a set
	// key can never be overwritten.
	b.reserveCorrections(ctx, fields, prior, warn)

	for _, f := range fields {
		ctx.Set(f.Key, f.Value)
	}

	if prior != nil {
		keys := make([]string, 0, len(prior.Fields))
		for k := range prior.Fields {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		for _, k := range keys {
			ctx.SetIfAbsent(note.Key(k), prior.Fields[note.Key(k)])
		}
	}

	b.derivePlan(ctx)
	b.deriveContractYears(ctx)
	b.deriveContractEnd(ctx)
	b.deriveMoney(ctx)
	b.deriveSignDate(ctx, opts, warn)
	b.deriveNames(ctx)
	b.deriveCurrency(ctx)
	b.deriveCustomerRef(ctx)
	b.deriveStage(ctx)
	b.deriveOwner(ctx, warn)

	return ctx, warnings
}

// reserveCorrections applies the fixes that must win over raw field values:
// a customer-line-shaped install location replaced from the prior record,
// and an address-shaped plan reset to the default plan.
func (b *Builder) reserveCorrections(ctx *Context, fields []note.ParsedField, prior *PriorRecord, warn func(string, string)) {
	for _, f := range fields {
		switch f.Key {
		case note.KeyInstallLocation:
			if normalize.LooksLikeCustomerLine(f.Value) && !b.looksLikeAddress(f.Value) {
				if addr := prior.Address(); addr != "" && ctx.Set(note.KeyInstallLocation, addr) {
					warn(string(note.KeyInstallLocation), "customer-style value replaced with the prior record address")
				}
			}
		case note.KeyPlanType:
			if b.looksLikeAddress(f.Value) && b.settings.DefaultPlanType != "" {
				if ctx.Set(note.KeyPlanType, b.settings.DefaultPlanType) {
					warn(string(note.KeyPlanType), "address-shaped plan reset to the default plan")
				}
			}
		}
	}
}

func (b *Builder) looksLikeAddress(value string) bool {
	for _, kw := range b.settings.AddressKeywords {
		if strings.Contains(value, kw) {
			return true
		}
	}
	return false
}

func (b *Builder) derivePlan(ctx *Context) {
	if b.settings.DefaultPlanType != "" {
		ctx.SetIfAbsent(note.KeyPlanType, b.settings.DefaultPlanType)
	}
}

func (b *Builder) deriveContractYears(ctx *Context) {
	if ctx.Has(note.KeyContractYears) {
		return
	}
	years := b.settings.DefaultYears
	plan := ctx.Value(note.KeyPlanType)
	for _, kw := range b.settings.ExtendedKeywords {
		if kw != "" && strings.Contains(plan, kw) {
			years = b.settings.ExtendedYears
			break
		}
	}
	if years > 0 {
		ctx.Set(note.KeyContractYears, strconv.Itoa(years))
	}
}

func (b *Builder) deriveContractEnd(ctx *Context) {
	if ctx.Has(note.KeyContractEndDate) {
		return
	}
	start, err := time.Parse("2006-01-02", ctx.Value(note.KeyContractStartDate))
	if err != nil {
		return
	}
	years := b.contractYears(ctx)
	if years <= 0 {
		return
	}
	ctx.Set(note.KeyContractEndDate, addYears(start, years).Format("2006-01-02"))
}

func (b *Builder) deriveMoney(ctx *Context) {
	if ctx.Has(note.KeyExpectSignMoney) {
		return
	}
	fee, err := strconv.ParseFloat(ctx.Value(note.KeyMonthlyFee), 64)
	if err != nil {
		return
	}
	years := b.contractYears(ctx)
	if years <= 0 {
		return
	}
	total := fee * float64(years) * 12
	ctx.Set(note.KeyExpectSignMoney, strconv.FormatFloat(total, 'f', -1, 64))
}

func (b *Builder) deriveSignDate(ctx *Context, opts BuildOptions, warn func(string, string)) {
	if !ctx.Has(note.KeyExpectSignDate) {
		switch {
		case ctx.Has(note.KeyContractStartDate):
			ctx.Set(note.KeyExpectSignDate, ctx.Value(note.KeyContractStartDate))
		case ctx.Has(note.KeyOpportunityDate):
			ctx.Set(note.KeyExpectSignDate, ctx.Value(note.KeyOpportunityDate))
		case !opts.ReferenceDate.IsZero():
			ctx.Set(note.KeyExpectSignDate, opts.ReferenceDate.Format("2006-01-02"))
		default:
			warn(string(note.KeyExpectSignDate), "no contract start, opportunity date, or reference date")
		}
	}
	if v := ctx.Value(note.KeyExpectSignDate); v != "" {
		ctx.SetIfAbsent(note.KeyOpportunityDate, v)
	}
}

func (b *Builder) deriveNames(ctx *Context) {
	if ctx.Has(note.KeyOpportunityName) {
		return
	}
	name := ctx.Value(note.KeyCustomerName)
	if name == "" {
		return
	}
	ctx.Set(note.KeyOpportunityName, name+" - "+ctx.Value(note.KeyPlanType))
}

func (b *Builder) deriveCurrency(ctx *Context) {
	if b.settings.DefaultCurrency != "" {
		ctx.SetIfAbsent(note.KeyCurrency, b.settings.DefaultCurrency)
	}
}

func (b *Builder) deriveCustomerRef(ctx *Context) {
	switch {
	case ctx.Has(note.KeyCustomerCode):
		ctx.SetIfAbsent(note.KeyCustomerRef, ctx.Value(note.KeyCustomerCode))
	case ctx.Has(note.KeyCustomerID):
		ctx.SetIfAbsent(note.KeyCustomerRef, ctx.Value(note.KeyCustomerID))
	}
}

func (b *Builder) deriveStage(ctx *Context) {
	if ctx.Has(note.KeyOpportunityStage) {
		return
	}
	stage := b.settings.StageDefaultID
	switch ctx.Value(note.KeyUsageLabel) {
	case "租用":
		stage = b.settings.StageRentID
	case "買斷":
		stage = b.settings.StageBuyID
	}
	if stage != "" {
		ctx.Set(note.KeyOpportunityStage, stage)
	}
}

func (b *Builder) deriveOwner(ctx *Context, warn func(string, string)) {
	if ctx.Has(note.KeyOwnerID) {
		ctx.SetIfAbsent(note.KeyOwnerName, b.settings.ServiceOwner.Name)
		return
	}

	hint := strings.ToLower(strings.TrimSpace(ctx.Value(note.KeyOwnerHint)))
	owner := b.settings.ServiceOwner
	matched := false
	if hint != "" {
		keys := make([]string, 0, len(b.settings.OwnerWhitelist))
		for k := range b.settings.OwnerWhitelist {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.Contains(hint, strings.ToLower(k)) {
				owner = b.settings.OwnerWhitelist[k]
				matched = true
				break
			}
		}
		if !matched {
			warn(string(note.KeyOwnerID), "owner hint not in the whitelist, assigned to the service owner: "+ctx.Value(note.KeyOwnerHint))
		}
	}

	ctx.Set(note.KeyOwnerID, owner.ID)
	ctx.Set(note.KeyOwnerName, owner.Name)
}

func (b *Builder) contractYears(ctx *Context) int {
	years, err := strconv.Atoi(ctx.Value(note.KeyContractYears))
	if err != nil {
		return b.settings.DefaultYears
	}
	return years
}

// addYears advances a date by whole years, clamping Feb 29 to Feb 28 on
// non-leap targets.
func addYears(start time.Time, years int) time.Time {
	y, m, d := start.Date()
	if m == time.February && d == 29 && !isLeapYear(y+years) {
		return time.Date(y+years, time.February, 28, 0, 0, 0, 0, start.Location())
	}
	return time.Date(y+years, m, d, 0, 0, 0, 0, start.Location())
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}
