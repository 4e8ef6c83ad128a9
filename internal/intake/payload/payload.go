// internal/intake/payload/payload.go

// Package payload renders a submission context into the three-section body
// shape the CRM gateway expects: flat fields, header-definition fields, and
// characteristic fields.
package payload

import (
	"crm-intake-workers/internal/intake/normalize"
	"crm-intake-workers/internal/intake/submission"
)

// Payload is one assembled request body, sectioned. Absent context keys
// appear nowhere; the maps never hold empty strings.
type Payload struct {
	FlatFields             map[string]string `json:"flatFields"`
	HeaderDefinitionFields map[string]string `json:"headerDefinitionFields"`
	CharacteristicFields   map[string]string `json:"characteristicFields"`
}

// Body nests the three sections into a single request body. The header and
// characteristic sections attach under the given keys and are dropped
// entirely when empty.
func (p Payload) Body(headerKey, characteristicKey string) map[string]interface{} {
	body := make(map[string]interface{}, len(p.FlatFields)+2)
	for k, v := range p.FlatFields {
		body[k] = v
	}
	if headerKey != "" && len(p.HeaderDefinitionFields) > 0 {
		body[headerKey] = copySection(p.HeaderDefinitionFields)
	}
	if characteristicKey != "" && len(p.CharacteristicFields) > 0 {
		body[characteristicKey] = copySection(p.CharacteristicFields)
	}
	return body
}

// copySection keeps callers from mutating the payload through its body.
func copySection(section map[string]string) map[string]string {
	out := make(map[string]string, len(section))
	for k, v := range section {
		out[k] = v
	}
	return out
}

// Assembler renders contexts through one immutable mapping. Assemble is
// pure: no clock, no randomness, no fallback between keys.
type Assembler struct {
	mapping Mapping
}

func NewAssembler(mapping Mapping) *Assembler {
	return &Assembler{mapping: mapping}
}

func NewOpportunityAssembler() *Assembler {
	return NewAssembler(OpportunityMapping())
}

func NewCustomerApplicationAssembler() *Assembler {
	return NewAssembler(CustomerApplicationMapping())
}

func NewDuplicateCheckAssembler() *Assembler {
	return NewAssembler(DuplicateCheckMapping())
}

// Assemble writes every mapped, present context key to all of its
// destinations. Money destinations format the value and drop it when it is
// not numeric.
func (a *Assembler) Assemble(sctx *submission.Context) Payload {
	p := Payload{
		FlatFields:             make(map[string]string),
		HeaderDefinitionFields: make(map[string]string),
		CharacteristicFields:   make(map[string]string),
	}

	for key, dest := range a.mapping {
		value, ok := sctx.Get(key)
		if !ok {
			continue
		}
		if dest.Money {
			formatted, numeric := normalize.FormatAmount(value)
			if !numeric {
				continue
			}
			value = formatted
		}
		for _, f := range dest.Flat {
			p.FlatFields[f] = value
		}
		for _, h := range dest.Header {
			p.HeaderDefinitionFields[h] = value
		}
		for _, c := range dest.Characteristic {
			p.CharacteristicFields[c] = value
		}
	}

	return p
}
