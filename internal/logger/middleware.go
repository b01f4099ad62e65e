package logger

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const TraceparentHeader = "traceparent"

// RequestLogger attaches a request-scoped logger carrying a W3C traceparent
// to the request context. An incoming traceparent keeps its trace id.
func RequestLogger(baseLogger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceparent := generateTraceparent(r.Header.Get(TraceparentHeader))
			reqLogger := baseLogger.With("traceparent", traceparent)
			w.Header().Set(TraceparentHeader, traceparent)

			reqLogger.Info("request started", "method", r.Method, "path", r.URL.Path)
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx := NewContext(r.Context(), reqLogger)
			next.ServeHTTP(rec, r.WithContext(ctx))

			reqLogger.Info("request completed", "status", rec.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

var requests = atomic.Int64{}

func generateTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func generateSpanID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

func generateTraceFlags() string {
	defer func() {
		requests.Add(1)
	}()

	if requests.Load()%100 == 0 {
		return "01"
	}

	return "00"
}

func generateTraceparent(incoming string) string {
	version := "00"
	traceID, ok := parseTraceID(incoming)
	if !ok {
		traceID = generateTraceID()
	}
	spanID := generateSpanID()
	traceFlags := generateTraceFlags()

	return fmt.Sprintf("%s-%s-%s-%s", version, traceID, spanID, traceFlags)
}

// parseTraceID extracts the trace id from a version-00 traceparent.
func parseTraceID(traceparent string) (string, bool) {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 || parts[0] != "00" || len(parts[1]) != 32 {
		return "", false
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return "", false
	}
	if strings.Trim(parts[1], "0") == "" {
		return "", false
	}
	return strings.ToLower(parts[1]), true
}
