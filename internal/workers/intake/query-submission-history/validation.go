package querysubmissionhistory

import "crm-intake-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"queryType": {
				Type:        "string",
				Description: "Named query against the submission archive",
				Enum:        []string{"text", "customer_code", "recent"},
				Default:     "text",
			},
			"query": {
				Type:        "string",
				Description: "Query text; a customer code for customer_code, free text otherwise",
				MaxLength:   intPtr(500),
			},
			"size": {
				Type:        "number",
				Description: "Maximum number of hits to return",
				Minimum:     floatPtr(1),
				Maximum:     floatPtr(100),
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
				Description: "Whether the query ran",
			},
			"hits": {
				Type:        "array",
				Description: "Matching archived submissions",
			},
			"totalHits": {
				Type:        "number",
				Description: "Total matches in the index",
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
