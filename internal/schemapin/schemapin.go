// Package schemapin loads pinned resource schemas from CUE files.
//
// A pinned schema is a local, reviewed copy of a remote resource's field
// schema. The gate falls back to it when the remote schema endpoint is
// unreachable, so dry runs keep validating against a known shape instead
// of silently skipping the schema phase.
package schemapin

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/schema"
)

// knownFieldTypes is the vocabulary a pinned schema may declare. It
// covers the typed categories the validator checks plus the structured
// types that pass through unchecked.
var knownFieldTypes = map[string]bool{
	"textfield":           true,
	"textareafield":       true,
	"richtextareafield":   true,
	"emailfield":          true,
	"phonefield":          true,
	"linkfield":           true,
	"numberfield":         true,
	"currencyfield":       true,
	"percentfield":        true,
	"ratingfield":         true,
	"datefield":           true,
	"duedatefield":        true,
	"yesnofield":          true,
	"statusfield":         true,
	"singleselectfield":   true,
	"multipleselectfield": true,
	"linkedrecordfield":   true,
	"userfield":           true,
	"filefield":           true,
	"addressfield":        true,

	"autonumberfield":    true,
	"firstcreatedfield":  true,
	"lastupdatedfield":   true,
	"formulafield":       true,
	"rollupfield":        true,
	"lookupfield":        true,
	"countfield":         true,
	"commentscountfield": true,
}

// PinError is a schema compilation error with source position.
type PinError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *PinError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileResource parses one CUE resource struct into a schema.Resource.
// The value is the resource body; id is its label in the enclosing
// `resource` struct, e.g.:
//
//	resource: "app-tasks": {
//		name: "Tasks"
//		field: title: {label: "Title", type: "textfield", required: true}
//	}
func CompileResource(id string, v cue.Value) (*schema.Resource, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	res := &schema.Resource{ID: id}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &PinError{
			Field:   "name",
			Message: "resource name is required",
			Pos:     v.Pos(),
		}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	res.Name = name

	res.Fields, err = parseFields(v)
	if err != nil {
		return nil, err
	}
	if len(res.Fields) == 0 {
		return nil, &PinError{
			Field:   "field",
			Message: "at least one field is required",
			Pos:     v.Pos(),
		}
	}

	return res, nil
}

// parseFields extracts the field definitions, preserving source order.
func parseFields(v cue.Value) ([]schema.Field, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("field"))
	if !fieldsVal.Exists() {
		return nil, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []schema.Field
	for iter.Next() {
		slug := iter.Label()
		field, err := parseField(slug, iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func parseField(slug string, v cue.Value) (schema.Field, error) {
	field := schema.Field{Slug: slug, Label: slug}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return field, &PinError{
			Field:   fmt.Sprintf("field.%s.type", slug),
			Message: "field type is required",
			Pos:     v.Pos(),
		}
	}
	fieldType, err := typeVal.String()
	if err != nil {
		return field, formatCUEError(err)
	}
	if !knownFieldTypes[fieldType] {
		return field, &PinError{
			Field:   fmt.Sprintf("field.%s.type", slug),
			Message: fmt.Sprintf("unknown field type %q", fieldType),
			Pos:     typeVal.Pos(),
		}
	}
	field.Type = fieldType

	labelVal := v.LookupPath(cue.ParsePath("label"))
	if labelVal.Exists() {
		label, err := labelVal.String()
		if err != nil {
			return field, formatCUEError(err)
		}
		field.Label = label
	}

	requiredVal := v.LookupPath(cue.ParsePath("required"))
	if requiredVal.Exists() {
		required, err := requiredVal.Bool()
		if err != nil {
			return field, formatCUEError(err)
		}
		field.Required = required
	}

	if schema.IsSystemFieldSlug(slug) && !schema.IsSystemGeneratedType(field.Type) {
		return field, &PinError{
			Field:   fmt.Sprintf("field.%s", slug),
			Message: fmt.Sprintf("slug %q is reserved for system-generated fields", slug),
			Pos:     v.Pos(),
		}
	}

	return field, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &PinError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
