// Package schema validates and coerces task payloads at every boundary:
// request bodies, query strings, RPC inputs and rows read back from storage.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"busybee/internal/task"
)

// ErrMalformedJSON is returned when a payload is not JSON at all.
var ErrMalformedJSON = errors.New("malformed JSON")

type Issue struct {
	Path    []any  `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if len(i.Path) == 0 {
		return i.Message
	}
	parts := make([]string, len(i.Path))
	for n, p := range i.Path {
		parts[n] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".") + ": " + i.Message
}

type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for n, is := range e.Issues {
		parts[n] = is.String()
	}
	return "validation error: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseCreate validates a creation payload. Title is required. A completed
// key is tolerated and ignored; new tasks are never completed.
func ParseCreate(data []byte) (task.CreateTask, error) {
	var is issues
	obj, err := is.object(data, nil)
	if err != nil || obj == nil {
		return task.CreateTask{}, firstErr(err, is.err())
	}
	out := is.create(obj, nil)
	return out, is.err()
}

// ParseUpdate validates a partial update. Unknown keys, id included, are rejected.
func ParseUpdate(data []byte) (task.UpdateTask, error) {
	var is issues
	obj, err := is.object(data, nil)
	if err != nil || obj == nil {
		return task.UpdateTask{}, firstErr(err, is.err())
	}
	out := is.update(obj, nil)
	return out, is.err()
}

// ParseUpdateInput validates the RPC form of an update: {"id": ..., "task": {...}}.
func ParseUpdateInput(data []byte) (int64, task.UpdateTask, error) {
	var is issues
	obj, err := is.object(data, nil)
	if err != nil || obj == nil {
		return 0, task.UpdateTask{}, firstErr(err, is.err())
	}
	is.unknown(obj, nil, "id", "task")

	id := is.id(obj["id"], []any{"id"})

	var patch task.UpdateTask
	switch raw := obj["task"].(type) {
	case map[string]any:
		patch = is.update(raw, []any{"task"})
	case nil:
		is.add([]any{"task"}, "Required")
	default:
		is.add([]any{"task"}, "Expected object, received %s", typeName(raw))
	}
	return id, patch, is.err()
}

// ParseTask validates a full task, coercing a numeric-or-string id and a
// truthy/falsy completed flag.
func ParseTask(fields map[string]any) (task.Task, error) {
	var is issues
	out := is.task(fields, nil)
	return out, is.err()
}

// ParseList validates a list of tasks. Issue paths start with the row index.
func ParseList(rows []map[string]any) ([]task.Task, error) {
	var is issues
	out := make([]task.Task, 0, len(rows))
	for n, row := range rows {
		out = append(out, is.task(row, []any{n}))
	}
	if err := is.err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseID coerces a number or numeric string into a positive id.
func ParseID(v any) (int64, error) {
	var is issues
	id := is.id(v, []any{"id"})
	return id, is.err()
}

// ParseIDInput is ParseID for a raw JSON value. Empty input is a missing id.
func ParseIDInput(data []byte) (int64, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return ParseID(nil)
	}
	v, err := decode(data)
	if err != nil {
		return 0, err
	}
	return ParseID(v)
}

// ParseCompleted validates the list filter from a query string. An empty
// value means false.
func ParseCompleted(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		var is issues
		is.add([]any{"completed"}, "Expected boolean, received %q", raw)
		return false, is.err()
	}
	return b, nil
}

// ParseListQuery validates the RPC list input: absent, null, {} or
// {"completed": <bool-like>}.
func ParseListQuery(data []byte) (bool, error) {
	var is issues
	obj, err := is.object(data, nil)
	if err != nil || obj == nil {
		return false, firstErr(err, is.err())
	}
	is.unknown(obj, nil, "completed")
	var completed bool
	if b := is.boolean(obj, "completed", nil); b != nil {
		completed = *b
	}
	return completed, is.err()
}

type issues []Issue

func (is *issues) add(path []any, format string, args ...any) {
	*is = append(*is, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (is issues) has(path []any) bool {
	for _, i := range is {
		if reflect.DeepEqual(i.Path, path) {
			return true
		}
	}
	return false
}

func (is issues) err() error {
	if len(is) == 0 {
		return nil
	}
	return &ValidationError{Issues: is}
}

// object decodes data as a JSON object. Empty input is an empty object.
// A non-object value is recorded as an issue and yields a nil map.
func (is *issues) object(data []byte, at []any) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	v, err := decode(data)
	if err != nil {
		return nil, err
	}
	switch obj := v.(type) {
	case map[string]any:
		return obj, nil
	case nil:
		return map[string]any{}, nil
	default:
		is.add(join(at), "Expected object, received %s", typeName(v))
		return nil, nil
	}
}

func (is *issues) create(obj map[string]any, at []any) task.CreateTask {
	is.unknown(obj, at, "title", "description", "completed")
	var out task.CreateTask
	if s := is.str(obj, "title", at); s != nil {
		out.Title = *s
	}
	out.Description = is.str(obj, "description", at)
	is.check(out, at)
	return out
}

func (is *issues) update(obj map[string]any, at []any) task.UpdateTask {
	is.unknown(obj, at, "title", "description", "completed")
	out := task.UpdateTask{
		Title:       is.str(obj, "title", at),
		Description: is.str(obj, "description", at),
		Completed:   is.boolean(obj, "completed", at),
	}
	is.check(out, at)
	return out
}

func (is *issues) task(fields map[string]any, at []any) task.Task {
	var out task.Task
	out.ID = is.id(fields["id"], join(at, "id"))
	if s := is.str(fields, "title", at); s != nil {
		out.Title = *s
	} else if !is.has(join(at, "title")) {
		is.add(join(at, "title"), "Required")
	}
	if out.Title == "" && !is.has(join(at, "title")) {
		is.add(join(at, "title"), "String must contain at least 1 character(s)")
	}
	out.Description = is.str(fields, "description", at)
	if b := is.boolean(fields, "completed", at); b != nil {
		out.Completed = *b
	}
	return out
}

func (is *issues) unknown(obj map[string]any, at []any, allowed ...string) {
	var extra []string
	for key := range obj {
		found := false
		for _, a := range allowed {
			if key == a {
				found = true
				break
			}
		}
		if !found {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		is.add(join(at, key), "Unrecognized key %q", key)
	}
}

// str reads an optional string field. Absent and null both yield nil.
func (is *issues) str(obj map[string]any, key string, at []any) *string {
	switch v := obj[key].(type) {
	case nil:
		return nil
	case string:
		return &v
	case []byte:
		s := string(v)
		return &s
	default:
		is.add(join(at, key), "Expected string, received %s", typeName(v))
		return nil
	}
}

func (is *issues) boolean(obj map[string]any, key string, at []any) *bool {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	b, ok := coerceBool(v)
	if !ok {
		is.add(join(at, key), "Expected boolean, received %s", typeName(v))
		return nil
	}
	return &b
}

func (is *issues) id(v any, path []any) int64 {
	if v == nil {
		is.add(path, "Required")
		return 0
	}
	id, ok := coerceInt(v)
	if !ok {
		is.add(path, "Expected integer, received %s", typeName(v))
		return 0
	}
	if err := validate.Var(id, "gt=0"); err != nil {
		is.add(path, "Number must be greater than 0")
		return 0
	}
	return id
}

// check runs struct-tag constraints, skipping fields that already failed
// type coercion.
func (is *issues) check(v any, at []any) {
	err := validate.Struct(v)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		is.add(join(at), "%v", err)
		return
	}
	for _, fe := range fieldErrs {
		path := join(at, fe.Field())
		if is.has(path) {
			continue
		}
		is.add(path, "%s", constraintMessage(fe))
	}
}

func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "min":
		return fmt.Sprintf("String must contain at least %s character(s)", fe.Param())
	case "gt":
		return fmt.Sprintf("Number must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("Failed %q constraint", fe.Tag())
	}
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after value", ErrMalformedJSON)
	}
	return v, nil
}

func coerceBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int64:
		return b != 0, true
	case int:
		return b != 0, true
	case float64:
		return b != 0, true
	case json.Number:
		f, err := b.Float64()
		if err != nil {
			return false, false
		}
		return f != 0, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		return false, false
	}
}

func coerceInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string, []byte:
		return "string"
	case json.Number, int, int64, float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func join(at []any, keys ...any) []any {
	path := make([]any, 0, len(at)+len(keys))
	path = append(path, at...)
	return append(path, keys...)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
