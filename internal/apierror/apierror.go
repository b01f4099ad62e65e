// Package apierror turns any failure raised while serving a request into a
// stable JSON body and status code. It is the only place that picks an
// error status and the only place that logs request failures.
package apierror

import (
	"errors"
	"net/http"

	"busybee/internal/logger"
	"busybee/internal/repository"
	"busybee/internal/schema"
	"busybee/pkg"
)

const (
	CodeValidation = "VALIDATION_ERROR"
	CodeBadRequest = "BAD_REQUEST"
	CodeInternal   = "INTERNAL_SERVER_ERROR"

	MessageValidation = "Validation error"
	MessageNotFound   = "Task not found"
	MessageUnknown    = "Unknown error"
)

type Body struct {
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Errors  []schema.Issue `json:"errors,omitempty"`
}

type Problem struct {
	Status int
	Body   Body
	// Internal failures are logged before responding.
	Internal bool
}

// Classify maps v to a Problem. v is usually an error but may be any value
// recovered from a panic.
func Classify(v any) Problem {
	err, ok := v.(error)
	if !ok || err == nil {
		return Problem{
			Status:   http.StatusInternalServerError,
			Body:     Body{Message: MessageUnknown, Code: CodeInternal},
			Internal: true,
		}
	}

	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		return Problem{
			Status: http.StatusBadRequest,
			Body:   Body{Message: MessageValidation, Code: CodeValidation, Errors: verr.Issues},
		}
	case errors.Is(err, repository.ErrNotFound):
		return Problem{
			Status: http.StatusNotFound,
			Body:   Body{Message: MessageNotFound},
		}
	case errors.Is(err, schema.ErrMalformedJSON):
		return Problem{
			Status: http.StatusBadRequest,
			Body:   Body{Message: err.Error(), Code: CodeBadRequest},
		}
	default:
		return Problem{
			Status:   http.StatusInternalServerError,
			Body:     Body{Message: err.Error(), Code: CodeInternal},
			Internal: true,
		}
	}
}

// Handle classifies v, logs internal failures with the request path and
// method, and writes the response. A request without a path is a
// programming error and panics.
func Handle(w http.ResponseWriter, r *http.Request, v any) {
	if r == nil || r.URL == nil || r.URL.Path == "" {
		panic("apierror: request route is not defined")
	}

	p := Classify(v)
	if p.Internal {
		logger.FromContext(r.Context()).Error("request failed",
			"path", r.URL.Path, "method", r.Method, "message", p.Body.Message)
	}
	pkg.WriteJSON(w, p.Status, p.Body)
}

// Recover converts a panic in next into a normalized 500 response.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			Handle(w, r, v)
		}()
		next.ServeHTTP(w, r)
	})
}
