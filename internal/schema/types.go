package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field type categories for basic type-compatibility checks.
// Field types outside these categories (status, select, linked record)
// carry structured values the shim does not attempt to model; they pass
// through unchecked.
var (
	numericTypes = map[string]bool{
		"numberfield":   true,
		"currencyfield": true,
		"percentfield":  true,
		"ratingfield":   true,
	}
	stringTypes = map[string]bool{
		"textfield":         true,
		"textareafield":     true,
		"richtextareafield": true,
		"emailfield":        true,
		"phonefield":        true,
		"linkfield":         true,
	}
	dateTypes = map[string]bool{
		"datefield":    true,
		"duedatefield": true,
	}
	booleanTypes = map[string]bool{
		"yesnofield": true,
	}
)

// dateLayouts are the accepted spellings for date-string fields.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
}

// checkType verifies a present, non-null value against the declared
// field type. A mismatch is an error, not a warning.
func checkType(field *Field, value any) string {
	switch {
	case numericTypes[field.Type]:
		if !isNumber(value) {
			return fmt.Sprintf("field %q expects a number, got %s", field.Slug, jsonKind(value))
		}
	case stringTypes[field.Type]:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("field %q expects a string, got %s", field.Slug, jsonKind(value))
		}
	case dateTypes[field.Type]:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("field %q expects a date string, got %s", field.Slug, jsonKind(value))
		}
		if !isDateString(s) {
			return fmt.Sprintf("field %q expects a date string (RFC 3339 or YYYY-MM-DD), got %q", field.Slug, s)
		}
	case booleanTypes[field.Type]:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("field %q expects a boolean, got %s", field.Slug, jsonKind(value))
		}
	}
	return ""
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, json.Number:
		return true
	}
	return false
}

func isDateString(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// jsonKind names a decoded JSON value's kind for error messages.
func jsonKind(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
