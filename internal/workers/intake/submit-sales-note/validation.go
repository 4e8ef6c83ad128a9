package submitsalesnote

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
			"options": {
				Type:        "object",
				Description: "Per-job pipeline toggles",
				Properties: map[string]validation.Property{
					"skipDuplicateCheck": {Type: "boolean"},
					"disableOpportunity": {Type: "boolean"},
					"disableTasks":       {Type: "boolean"},
					"stepTimeoutMs": {
						Type:    "number",
						Minimum: floatPtr(0),
						Maximum: floatPtr(300000),
					},
				},
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
				Description: "Whether every pipeline step succeeded or was skipped",
			},
			"submissionId": {
				Type:        "string",
				Description: "Identifier of the submission run",
			},
			"steps": {
				Type:        "array",
				Description: "Per-step outcomes in execution order",
			},
			"context": {
				Type:        "object",
				Description: "Final submission context, canonical key to value",
			},
			"warnings": {
				Type:        "array",
				Description: "Non-fatal findings from the whole run",
			},
		},
		AdditionalProperties: false,
	}
}

func intPtr(i int) *int {
	return &i
}

func floatPtr(f float64) *float64 {
	return &f
}
