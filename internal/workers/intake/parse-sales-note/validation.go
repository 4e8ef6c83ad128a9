package parsesalesnote

import "crm-intake-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"noteText"},
		Properties: map[string]validation.Property{
			"noteText": {
				Type:        "string",
				Description: "Raw sales note text, one label per line",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(20000),
			},
			"priorRecord": {
				Type:        "object",
				Description: "Previously normalized customer fields, keyed by canonical field name",
			},
			"referenceDate": {
				Type:        "string",
				Description: "Anchor date for relative date derivation (YYYY-MM-DD)",
				Pattern:     strPtr(`^\d{4}-\d{2}-\d{2}$`),
			},
		},
		AdditionalProperties: false,
	}
}

func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"success": {
				Type:        "boolean",
				Description: "Whether the note was parsed",
			},
			"context": {
				Type:        "object",
				Description: "Built submission context, canonical key to value",
			},
			"warnings": {
				Type:        "array",
				Description: "Non-fatal findings from parse, normalize, and build",
			},
			"opportunityDraft": {
				Type:        "object",
				Description: "Assembled opportunity payload sections",
			},
			"customerDraft": {
				Type:        "object",
				Description: "Assembled customer application payload sections",
			},
			"duplicateProbe": {
				Type:        "object",
				Description: "Assembled duplicate check payload sections",
			},
		},
		AdditionalProperties: false,
	}
}

func intPtr(i int) *int {
	return &i
}

func strPtr(s string) *string {
	return &s
}
