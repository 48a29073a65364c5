package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tasksResource() *Resource {
	return &Resource{
		ID:   "app-tasks",
		Name: "Tasks",
		Fields: []Field{
			{Slug: "title", Label: "Title", Type: "textfield", Required: true},
			{Slug: "status", Label: "Status", Type: "statusfield"},
			{Slug: "priority", Label: "Priority", Type: "numberfield"},
			{Slug: "due_date", Label: "Due Date", Type: "duedatefield"},
			{Slug: "done", Label: "Done", Type: "yesnofield"},
			{Slug: "autonumber", Label: "Auto Number", Type: "autonumberfield", Required: true},
			{Slug: "total", Label: "Total", Type: "formulafield", Required: true},
		},
	}
}

// TestValidate_CleanUpdate tests that a well-formed update payload passes.
func TestValidate_CleanUpdate(t *testing.T) {
	problems := Validate(tasksResource(), map[string]any{
		"status":   "done",
		"priority": float64(2),
		"due_date": "2026-08-26",
		"done":     true,
	}, false)
	assert.Empty(t, problems)
}

// TestValidate_UnknownField tests that payload keys outside the schema error.
func TestValidate_UnknownField(t *testing.T) {
	problems := Validate(tasksResource(), map[string]any{"colour": "red"}, false)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], `unknown field "colour"`)
}

// TestValidate_SystemFieldRejected tests that system-owned slugs are
// rejected on every operation, even when the schema lists them.
func TestValidate_SystemFieldRejected(t *testing.T) {
	for _, slug := range []string{"id", "autonumber", "first_created", "last_updated"} {
		problems := Validate(tasksResource(), map[string]any{slug: "x"}, false)
		require.Len(t, problems, 1, "slug %s", slug)
		assert.Contains(t, problems[0], "system-generated")
	}
}

// TestValidate_RequiredOnCreate tests required-field enforcement with the
// system-generated-type exemption.
func TestValidate_RequiredOnCreate(t *testing.T) {
	// title (required textfield) missing; autonumber and total are
	// required but system-generated, so they must NOT be demanded.
	problems := Validate(tasksResource(), map[string]any{"status": "open"}, true)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], `required field "title"`)
}

// TestValidate_RequiredNullOnCreate tests that explicit null does not
// satisfy a required field.
func TestValidate_RequiredNullOnCreate(t *testing.T) {
	problems := Validate(tasksResource(), map[string]any{"title": nil}, true)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], `required field "title"`)
}

// TestValidate_RequiredNotCheckedOnUpdate tests that updates may omit
// required fields.
func TestValidate_RequiredNotCheckedOnUpdate(t *testing.T) {
	problems := Validate(tasksResource(), map[string]any{"status": "open"}, false)
	assert.Empty(t, problems)
}

// TestValidate_TypeMismatches tests the four basic type categories.
func TestValidate_TypeMismatches(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantIn  string
	}{
		{"number gets string", map[string]any{"priority": "high"}, "expects a number"},
		{"string gets number", map[string]any{"title": float64(1)}, "expects a string"},
		{"date gets number", map[string]any{"due_date": float64(20260826)}, "expects a date string"},
		{"date gets garbage", map[string]any{"due_date": "next tuesday"}, "expects a date string"},
		{"boolean gets string", map[string]any{"done": "yes"}, "expects a boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := Validate(tasksResource(), tt.payload, false)
			require.Len(t, problems, 1)
			assert.Contains(t, problems[0], tt.wantIn)
		})
	}
}

// TestValidate_DateSpellings tests both accepted date layouts.
func TestValidate_DateSpellings(t *testing.T) {
	for _, d := range []string{"2026-08-26", "2026-08-26T10:30:00Z"} {
		problems := Validate(tasksResource(), map[string]any{"due_date": d}, false)
		assert.Empty(t, problems, "date %s", d)
	}
}

// TestValidate_NullClearsField tests that explicit null skips type checks.
func TestValidate_NullClearsField(t *testing.T) {
	problems := Validate(tasksResource(), map[string]any{"priority": nil}, false)
	assert.Empty(t, problems)
}

// TestValidate_UncheckedTypesPassThrough tests that structured field
// types (status etc.) accept any value shape.
func TestValidate_UncheckedTypesPassThrough(t *testing.T) {
	problems := Validate(tasksResource(), map[string]any{
		"status": map[string]any{"value": "done", "updated_on": "2026-08-26"},
	}, false)
	assert.Empty(t, problems)
}

// TestValidate_CollectsMultipleProblems tests that all problems are
// reported in one pass.
func TestValidate_CollectsMultipleProblems(t *testing.T) {
	problems := Validate(tasksResource(), map[string]any{
		"colour":   "red",
		"priority": "high",
		"id":       "rec1",
	}, true)
	assert.Len(t, problems, 4) // unknown, type, system, missing title
}

// TestFieldBySlug tests schema lookup.
func TestFieldBySlug(t *testing.T) {
	res := tasksResource()
	require.NotNil(t, res.FieldBySlug("title"))
	assert.Equal(t, "textfield", res.FieldBySlug("title").Type)
	assert.Nil(t, res.FieldBySlug("nope"))
}
