// Package schema models SmartSuite-style resource field schemas and
// validates mutation payloads against them.
package schema

import "fmt"

// Field describes a single field in a resource schema.
type Field struct {
	Slug     string `json:"slug"`
	Label    string `json:"label"`
	Type     string `json:"field_type"`
	Required bool   `json:"required"`
}

// Resource is a remote resource's field schema as returned by the
// Remote Mutation Executor's schema endpoint.
type Resource struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"structure"`
}

// FieldBySlug returns the field with the given slug, or nil.
func (r *Resource) FieldBySlug(slug string) *Field {
	for i := range r.Fields {
		if r.Fields[i].Slug == slug {
			return &r.Fields[i]
		}
	}
	return nil
}

// systemGeneratedTypes are field types whose values the remote system
// computes itself. They are exempt from required-field checks on create
// because a caller can never supply them.
var systemGeneratedTypes = map[string]bool{
	"autonumberfield":    true,
	"firstcreatedfield":  true,
	"lastupdatedfield":   true,
	"formulafield":       true,
	"rollupfield":        true,
	"lookupfield":        true,
	"countfield":         true,
	"commentscountfield": true,
}

// systemFieldSlugs are field names callers may never set directly,
// regardless of operation. The remote system owns these outright.
var systemFieldSlugs = map[string]bool{
	"id":             true,
	"autonumber":     true,
	"first_created":  true,
	"last_updated":   true,
	"followed_by":    true,
	"comments_count": true,
	"deleted_date":   true,
}

// IsSystemGeneratedType reports whether values of this field type are
// computed by the remote system.
func IsSystemGeneratedType(fieldType string) bool {
	return systemGeneratedTypes[fieldType]
}

// IsSystemFieldSlug reports whether the field name is reserved for the
// remote system.
func IsSystemFieldSlug(slug string) bool {
	return systemFieldSlugs[slug]
}

// Validate checks a mutation payload against a resource schema and
// returns the collected problems as caller-presentable strings.
//
// Rules:
//   - every payload key must exist in the schema
//   - system field slugs are rejected outright, any operation
//   - when checkRequired is set (create), every required field of a
//     non-system-generated type must be present and non-null
//   - present values must be type-compatible with the declared field type
//
// Failures are data, not errors: the gate stores and returns them from
// dry runs so callers can present them.
func Validate(res *Resource, payload map[string]any, checkRequired bool) []string {
	var problems []string

	for slug, value := range payload {
		if IsSystemFieldSlug(slug) {
			problems = append(problems,
				fmt.Sprintf("field %q is system-generated and cannot be set directly", slug))
			continue
		}

		field := res.FieldBySlug(slug)
		if field == nil {
			problems = append(problems,
				fmt.Sprintf("unknown field %q (not in schema for %s)", slug, res.Name))
			continue
		}

		if value == nil {
			// Explicit null clears a field; nothing to type-check.
			continue
		}
		if msg := checkType(field, value); msg != "" {
			problems = append(problems, msg)
		}
	}

	if checkRequired {
		for _, field := range res.Fields {
			if !field.Required || IsSystemGeneratedType(field.Type) {
				continue
			}
			if v, ok := payload[field.Slug]; !ok || v == nil {
				problems = append(problems,
					fmt.Sprintf("required field %q is missing or null", field.Slug))
			}
		}
	}

	return problems
}
