package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busybee/internal/task"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func issuesOf(t *testing.T, err error) []Issue {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Issues
}

func TestParseCreate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		want       task.CreateTask
		wantIssues []Issue
	}{
		{
			name: "title and description",
			body: `{"title":"Write tests","description":"all of them"}`,
			want: task.CreateTask{Title: "Write tests", Description: strPtr("all of them")},
		},
		{
			name: "completed is ignored",
			body: `{"title":"t","completed":true}`,
			want: task.CreateTask{Title: "t"},
		},
		{
			name: "null description is absent",
			body: `{"title":"t","description":null}`,
			want: task.CreateTask{Title: "t"},
		},
		{
			name:       "missing title",
			body:       `{"description":"No title provided"}`,
			wantIssues: []Issue{{Path: []any{"title"}, Message: "Required"}},
		},
		{
			name:       "empty body",
			body:       ``,
			wantIssues: []Issue{{Path: []any{"title"}, Message: "Required"}},
		},
		{
			name:       "title is not a string",
			body:       `{"title":42}`,
			wantIssues: []Issue{{Path: []any{"title"}, Message: "Expected string, received number"}},
		},
		{
			name:       "unknown key",
			body:       `{"title":"t","priority":3}`,
			wantIssues: []Issue{{Path: []any{"priority"}, Message: `Unrecognized key "priority"`}},
		},
		{
			name:       "not an object",
			body:       `["t"]`,
			wantIssues: []Issue{{Path: []any{}, Message: "Expected object, received array"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCreate([]byte(tt.body))
			if tt.wantIssues != nil {
				if diff := cmp.Diff(tt.wantIssues, issuesOf(t, err)); diff != "" {
					t.Errorf("issues mismatch (-want +got):\n%s", diff)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCreate_MalformedJSON(t *testing.T) {
	_, err := ParseCreate([]byte(`{"title":`))
	require.ErrorIs(t, err, ErrMalformedJSON)

	_, err = ParseCreate([]byte(`{"title":"a"} {"title":"b"}`))
	require.ErrorIs(t, err, ErrMalformedJSON)
}

func TestParseUpdate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		want       task.UpdateTask
		wantIssues []Issue
	}{
		{
			name: "empty patch",
			body: `{}`,
			want: task.UpdateTask{},
		},
		{
			name: "completed only",
			body: `{"completed":true}`,
			want: task.UpdateTask{Completed: boolPtr(true)},
		},
		{
			name: "completed from string",
			body: `{"completed":"false"}`,
			want: task.UpdateTask{Completed: boolPtr(false)},
		},
		{
			name: "all fields",
			body: `{"title":"T","description":"D","completed":false}`,
			want: task.UpdateTask{Title: strPtr("T"), Description: strPtr("D"), Completed: boolPtr(false)},
		},
		{
			name:       "id is not updatable",
			body:       `{"id":4,"title":"T"}`,
			wantIssues: []Issue{{Path: []any{"id"}, Message: `Unrecognized key "id"`}},
		},
		{
			name:       "empty title",
			body:       `{"title":""}`,
			wantIssues: []Issue{{Path: []any{"title"}, Message: "String must contain at least 1 character(s)"}},
		},
		{
			name:       "completed not boolean-like",
			body:       `{"completed":"maybe"}`,
			wantIssues: []Issue{{Path: []any{"completed"}, Message: "Expected boolean, received string"}},
		},
		{
			name: "several problems are all reported",
			body: `{"title":7,"completed":[],"extra":1}`,
			wantIssues: []Issue{
				{Path: []any{"extra"}, Message: `Unrecognized key "extra"`},
				{Path: []any{"title"}, Message: "Expected string, received number"},
				{Path: []any{"completed"}, Message: "Expected boolean, received array"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUpdate([]byte(tt.body))
			if tt.wantIssues != nil {
				if diff := cmp.Diff(tt.wantIssues, issuesOf(t, err)); diff != "" {
					t.Errorf("issues mismatch (-want +got):\n%s", diff)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUpdateInput(t *testing.T) {
	id, patch, err := ParseUpdateInput([]byte(`{"id":"12","task":{"completed":true}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, task.UpdateTask{Completed: boolPtr(true)}, patch)

	_, _, err = ParseUpdateInput([]byte(`{"task":{"title":""}}`))
	want := []Issue{
		{Path: []any{"id"}, Message: "Required"},
		{Path: []any{"task", "title"}, Message: "String must contain at least 1 character(s)"},
	}
	if diff := cmp.Diff(want, issuesOf(t, err)); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTask_Coercion(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   task.Task
	}{
		{
			name:   "driver returns bool",
			fields: map[string]any{"id": int64(1), "title": "a", "completed": true},
			want:   task.Task{ID: 1, Title: "a", Completed: true},
		},
		{
			name:   "driver returns 0/1",
			fields: map[string]any{"id": int64(2), "title": "b", "completed": int64(0)},
			want:   task.Task{ID: 2, Title: "b"},
		},
		{
			name:   "string id",
			fields: map[string]any{"id": "3", "title": "c", "description": "d", "completed": int64(1)},
			want:   task.Task{ID: 3, Title: "c", Description: strPtr("d"), Completed: true},
		},
		{
			name:   "missing completed defaults to false",
			fields: map[string]any{"id": int64(4), "title": "e"},
			want:   task.Task{ID: 4, Title: "e"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTask(tt.fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTask_Invalid(t *testing.T) {
	_, err := ParseTask(map[string]any{"id": int64(0), "completed": int64(0)})
	want := []Issue{
		{Path: []any{"id"}, Message: "Number must be greater than 0"},
		{Path: []any{"title"}, Message: "Required"},
	}
	if diff := cmp.Diff(want, issuesOf(t, err)); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
}

func TestParseList(t *testing.T) {
	got, err := ParseList(nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = ParseList([]map[string]any{
		{"id": int64(1), "title": "ok"},
		{"id": int64(2), "title": ""},
	})
	want := []Issue{{Path: []any{1, "title"}, Message: "String must contain at least 1 character(s)"}}
	if diff := cmp.Diff(want, issuesOf(t, err)); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      any
		want    int64
		wantErr string
	}{
		{in: "42", want: 42},
		{in: int64(7), want: 7},
		{in: "abc", wantErr: "Expected integer, received string"},
		{in: "-1", wantErr: "Number must be greater than 0"},
		{in: nil, wantErr: "Required"},
	}

	for _, tt := range tests {
		got, err := ParseID(tt.in)
		if tt.wantErr != "" {
			issues := issuesOf(t, err)
			require.Len(t, issues, 1)
			assert.Equal(t, tt.wantErr, issues[0].Message)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseIDInput(t *testing.T) {
	id, err := ParseIDInput([]byte(`5`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = ParseIDInput(nil)
	assert.Equal(t, "Required", issuesOf(t, err)[0].Message)

	_, err = ParseIDInput([]byte(`1.5`))
	assert.Equal(t, "Expected integer, received number", issuesOf(t, err)[0].Message)
}

func TestParseCompleted(t *testing.T) {
	for raw, want := range map[string]bool{"": false, "true": true, "false": false, "1": true, "0": false} {
		got, err := ParseCompleted(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseCompleted("yes")
	issues := issuesOf(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, []any{"completed"}, issues[0].Path)
}

func TestParseListQuery(t *testing.T) {
	for body, want := range map[string]bool{
		``:                     false,
		`null`:                 false,
		`{}`:                   false,
		`{"completed":true}`:   true,
		`{"completed":"true"}`: true,
		`{"completed":null}`:   false,
	} {
		got, err := ParseListQuery([]byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, want, got, body)
	}

	_, err := ParseListQuery([]byte(`{"done":true}`))
	assert.Equal(t, []any{"done"}, issuesOf(t, err)[0].Path)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Issues: []Issue{
		{Path: []any{"task", "title"}, Message: "Required"},
		{Path: []any{}, Message: "Expected object, received array"},
	}}
	assert.Equal(t, "validation error: task.title: Required; Expected object, received array", err.Error())
}
