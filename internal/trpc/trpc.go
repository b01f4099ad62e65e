// Package trpc serves the task procedures over the tRPC HTTP protocol, so
// the browser client's httpBatchLink can talk to it unchanged.
//
// Queries are GET requests with the input JSON in the "input" query
// parameter; mutations are POST requests with the input as the body. With
// ?batch=1 the path holds comma-separated procedure names, the input is an
// object keyed by call index, and the response is an array in call order.
// Query batches run concurrently; mutation batches run one call at a time
// in index order.
package trpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"busybee/internal/apierror"
	"busybee/internal/logger"
	"busybee/internal/schema"
	"busybee/internal/task"
	"busybee/pkg"
)

const (
	maxBodySize        = 1 << 20
	defaultConcurrency = 4
)

type procedureType string

const (
	typeQuery    procedureType = "query"
	typeMutation procedureType = "mutation"
)

// JSON-RPC 2.0 error codes as tRPC assigns them.
const (
	codeParseError         = -32700
	codeBadRequest         = -32600
	codeInternalError      = -32603
	codeNotFound           = -32004
	codeMethodNotSupported = -32005
)

type resolver func(ctx context.Context, input []byte) (any, error)

type procedure struct {
	typ     procedureType
	resolve resolver
}

type Handler struct {
	service     task.Service
	log         logger.Logger
	procedures  map[string]procedure
	concurrency int
}

type Option func(*Handler)

// WithConcurrency bounds how many queries of one batch run at once.
// Mutations always run one at a time.
func WithConcurrency(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.concurrency = n
		}
	}
}

func NewHandler(service task.Service, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:     service,
		log:         log,
		concurrency: defaultConcurrency,
	}
	h.procedures = map[string]procedure{
		"getTasks":   {typeQuery, h.getTasks},
		"getTask":    {typeQuery, h.getTask},
		"createTask": {typeMutation, h.createTask},
		"updateTask": {typeMutation, h.updateTask},
		"deleteTask": {typeMutation, h.deleteTask},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type response struct {
	Result *result      `json:"result,omitempty"`
	Error  *errorObject `json:"error,omitempty"`
}

type result struct {
	Data any `json:"data"`
}

type errorObject struct {
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Data    errorData `json:"data"`
}

type errorData struct {
	Code       string         `json:"code"`
	HTTPStatus int            `json:"httpStatus"`
	Path       string         `json:"path,omitempty"`
	Errors     []schema.Issue `json:"errors,omitempty"`
}

// ServeHTTP expects the mount prefix to be stripped, leaving the procedure
// path (or comma-separated paths) in r.URL.Path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context()).With("where", "trpc")

	batch := r.URL.Query().Get("batch") == "1"
	joined := strings.Trim(r.URL.Path, "/")
	paths := []string{joined}
	if batch {
		paths = strings.Split(joined, ",")
	}

	typ, ok := methodType(r.Method)
	if !ok {
		msg := fmt.Sprintf("Unsupported method %s", r.Method)
		h.writeFramingError(w, batch, paths, newError(http.StatusMethodNotAllowed, codeMethodNotSupported, "METHOD_NOT_SUPPORTED", msg))
		return
	}

	inputs, err := readInputs(w, r, batch, len(paths))
	if err != nil {
		log.Debug("trpc: unreadable input", "error", err)
		h.writeFramingError(w, batch, paths, newError(http.StatusBadRequest, codeParseError, "PARSE_ERROR", err.Error()))
		return
	}

	responses := make([]response, len(paths))
	statuses := make([]int, len(paths))

	if typ == typeMutation {
		// Mutations apply in batch order so ids and effects follow the calls.
		for i, path := range paths {
			responses[i], statuses[i] = h.call(r.Context(), r.Method, typ, path, inputs[i])
		}
	} else {
		var g errgroup.Group
		g.SetLimit(h.concurrency)
		for i, path := range paths {
			i, path := i, path
			g.Go(func() error {
				responses[i], statuses[i] = h.call(r.Context(), r.Method, typ, path, inputs[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	log.Debug("trpc: calls completed", "paths", joined, "batch", batch)
	if batch {
		pkg.WriteJSON(w, batchStatus(statuses), responses)
		return
	}
	pkg.WriteJSON(w, statuses[0], responses[0])
}

// call runs one procedure. A panic in the resolver becomes an error
// response for that call only.
func (h *Handler) call(ctx context.Context, method string, typ procedureType, path string, input []byte) (resp response, status int) {
	log := logger.FromContext(ctx).With("where", "trpc", "path", path, "method", method)

	proc, ok := h.procedures[path]
	if !ok {
		msg := fmt.Sprintf("No %q-procedure on path %q", typ, path)
		return errorResponse(path, newError(http.StatusNotFound, codeNotFound, "NOT_FOUND", msg))
	}
	if proc.typ != typ {
		msg := fmt.Sprintf("Unsupported %s call to %s procedure at path %q", typ, proc.typ, path)
		return errorResponse(path, newError(http.StatusMethodNotAllowed, codeMethodNotSupported, "METHOD_NOT_SUPPORTED", msg))
	}

	fail := func(v any) (response, int) {
		p := apierror.Classify(v)
		if p.Internal {
			log.Error("procedure failed", "type", typ, "message", p.Body.Message)
		}
		return errorResponse(path, fromProblem(p))
	}
	defer func() {
		if v := recover(); v != nil {
			resp, status = fail(v)
		}
	}()

	out, err := proc.resolve(ctx, input)
	if err != nil {
		return fail(err)
	}

	log.Debug("trpc: procedure resolved", "type", typ)
	return response{Result: &result{Data: out}}, http.StatusOK
}

func (h *Handler) getTasks(ctx context.Context, input []byte) (any, error) {
	completed, err := schema.ParseListQuery(input)
	if err != nil {
		return nil, err
	}
	tasks, err := h.service.GetAllTasks(ctx, completed)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (h *Handler) getTask(ctx context.Context, input []byte) (any, error) {
	id, err := schema.ParseIDInput(input)
	if err != nil {
		return nil, err
	}
	t, err := h.service.GetTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (h *Handler) createTask(ctx context.Context, input []byte) (any, error) {
	payload, err := schema.ParseCreate(input)
	if err != nil {
		return nil, err
	}
	return nil, h.service.CreateTask(ctx, payload)
}

func (h *Handler) updateTask(ctx context.Context, input []byte) (any, error) {
	id, patch, err := schema.ParseUpdateInput(input)
	if err != nil {
		return nil, err
	}
	updated, err := h.service.UpdateTask(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (h *Handler) deleteTask(ctx context.Context, input []byte) (any, error) {
	id, err := schema.ParseIDInput(input)
	if err != nil {
		return nil, err
	}
	return nil, h.service.DeleteTask(ctx, id)
}

func (h *Handler) writeFramingError(w http.ResponseWriter, batch bool, paths []string, e *errorObject) {
	if !batch {
		resp, status := errorResponse(paths[0], e)
		pkg.WriteJSON(w, status, resp)
		return
	}
	responses := make([]response, len(paths))
	for i, path := range paths {
		responses[i], _ = errorResponse(path, e)
	}
	pkg.WriteJSON(w, e.Data.HTTPStatus, responses)
}

func methodType(method string) (procedureType, bool) {
	switch method {
	case http.MethodGet:
		return typeQuery, true
	case http.MethodPost:
		return typeMutation, true
	default:
		return "", false
	}
}

// readInputs returns one raw input per call; a missing input is nil.
func readInputs(w http.ResponseWriter, r *http.Request, batch bool, n int) ([][]byte, error) {
	var raw []byte
	if r.Method == http.MethodGet {
		raw = []byte(r.URL.Query().Get("input"))
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		raw = body
	}

	inputs := make([][]byte, n)
	if len(strings.TrimSpace(string(raw))) == 0 {
		return inputs, nil
	}
	if !batch {
		inputs[0] = raw
		return inputs, nil
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, fmt.Errorf("batch input must be an object keyed by call index: %w", err)
	}
	for key := range keyed {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= n {
			return nil, errors.New("batch input key " + strconv.Quote(key) + " does not match a call")
		}
	}
	for i := range inputs {
		inputs[i] = keyed[strconv.Itoa(i)]
	}
	return inputs, nil
}

func newError(status, code int, name, message string) *errorObject {
	return &errorObject{
		Message: message,
		Code:    code,
		Data:    errorData{Code: name, HTTPStatus: status},
	}
}

func fromProblem(p apierror.Problem) *errorObject {
	var e *errorObject
	switch {
	case p.Body.Code == apierror.CodeBadRequest:
		e = newError(p.Status, codeParseError, "PARSE_ERROR", p.Body.Message)
	case p.Status == http.StatusBadRequest:
		e = newError(p.Status, codeBadRequest, "BAD_REQUEST", p.Body.Message)
	case p.Status == http.StatusNotFound:
		e = newError(p.Status, codeNotFound, "NOT_FOUND", p.Body.Message)
	default:
		e = newError(http.StatusInternalServerError, codeInternalError, "INTERNAL_SERVER_ERROR", p.Body.Message)
	}
	e.Data.Errors = p.Body.Errors
	return e
}

func errorResponse(path string, e *errorObject) (response, int) {
	shaped := *e
	shaped.Data.Path = path
	return response{Error: &shaped}, shaped.Data.HTTPStatus
}

// batchStatus is the common status of all calls, or 207 when they differ.
func batchStatus(statuses []int) int {
	if len(statuses) == 0 {
		return http.StatusOK
	}
	for _, s := range statuses[1:] {
		if s != statuses[0] {
			return http.StatusMultiStatus
		}
	}
	return statuses[0]
}
