package createfollowuptasks

import "crm-intake-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"customerCode": {
				Type:        "string",
				Description: "Customer code the follow-up tasks belong to",
				MinLength:   intPtr(2),
				MaxLength:   intPtr(32),
			},
			"rawText": {
				Type:        "string",
				Description: "Original note text used to derive task kinds; falls back to the archived copy when omitted",
				MaxLength:   intPtr(20000),
			},
		},
		Required:             []string{"customerCode"},
		AdditionalProperties: false,
	}
}

func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"success": {
				Type:        "boolean",
				Description: "Whether the tasks were created",
			},
			"created": {
				Type:        "array",
				Description: "Codes of the created follow-up tasks",
			},
			"count": {
				Type:        "number",
				Description: "Number of created tasks",
			},
		},
		AdditionalProperties: false,
	}
}

func intPtr(i int) *int {
	return &i
}
