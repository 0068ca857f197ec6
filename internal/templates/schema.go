package templates

// buildTemplateJSONSchema returns the JSON-Schema (draft 2020-12 subset)
// every stored template definition must satisfy, as a generic map. The
// field id key is permissive here ("id", "field_id" or "name"); the
// normalizer resolves the alias afterwards.
func buildTemplateJSONSchema() map[string]any {
	fieldProps := map[string]any{
		"id":       map[string]any{"type": "string"},
		"field_id": map[string]any{"type": "string"},
		"name":     map[string]any{"type": "string"},
		"label":    map[string]any{"type": "string", "minLength": 1},
		"type": map[string]any{
			"type": "string",
			"enum": []string{"text", "textarea", "number", "date", "boolean", "enum", "currency"},
		},
		"required": map[string]any{"type": "boolean"},
		"hint":     map[string]any{"type": "string"},
		"options": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "minLength": 1},
		},
		"validations": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"min_length": map[string]any{"type": "integer", "minimum": 0},
				"max_length": map[string]any{"type": "integer", "minimum": 0},
				"min_value":  map[string]any{"type": "number"},
				"max_value":  map[string]any{"type": "number"},
				"regex":      map[string]any{"type": "string"},
			},
		},
	}

	section := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"id":          map[string]any{"type": "string", "minLength": 1},
			"label":       map[string]any{"type": "string", "minLength": 1},
			"order":       map[string]any{"type": "integer"},
			"description": map[string]any{"type": "string"},
			"fields": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties":           fieldProps,
					"required":             []string{"label", "type"},
				},
			},
		},
		"required": []string{"id", "label", "fields"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"sections": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    section,
			},
		},
		"required": []string{"sections"},
	}
}
