package logger

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
		"":        InfoLevel,
		"chatty":  InfoLevel,
	} {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "warn", WarnLevel.String())
}

func TestFromContext_FallsBackToNoOp(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.NotPanics(t, func() { l.With("k", "v").Info("dropped") })
}

// syncBuffer guards the buffer against the flush goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewAsyncLogger_FlushesOnClose(t *testing.T) {
	out := &syncBuffer{}
	l := NewAsyncLogger(context.Background(), Config{Level: InfoLevel, IsProduction: true}, WithOutput(out))

	l.Debug("hidden")
	l.With("where", "test").Info("task created", "id", 7)
	l.Close()

	got := out.String()
	assert.NotContains(t, got, "hidden")
	assert.Contains(t, got, `"msg":"task created"`)
	assert.Contains(t, got, `"where":"test"`)
	assert.Contains(t, got, `"id":7`)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := FromZap(zap.New(core))

	var inner Logger
	h := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = FromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks", nil))

	traceparent := rec.Header().Get(TraceparentHeader)
	assert.Regexp(t, regexp.MustCompile(`^00-[0-9a-f]{32}-[0-9a-f]{16}-0[01]$`), traceparent)
	assert.NotNil(t, inner)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "request started", entries[0].Message)
	assert.Equal(t, "request completed", entries[1].Message)
	assert.Equal(t, int64(http.StatusCreated), entries[1].ContextMap()["status"])
	assert.Equal(t, traceparent, entries[1].ContextMap()["traceparent"])
}

func TestRequestLogger_KeepsIncomingTraceID(t *testing.T) {
	h := RequestLogger(NewNoOpLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set(TraceparentHeader, "00-"+strings.ToUpper(traceID)+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	parts := strings.Split(rec.Header().Get(TraceparentHeader), "-")
	require.Len(t, parts, 4)
	assert.Equal(t, traceID, parts[1])
	assert.NotEqual(t, "00f067aa0ba902b7", parts[2], "each hop gets its own span id")
}

func TestParseTraceID(t *testing.T) {
	for _, bad := range []string{
		"",
		"garbage",
		"01-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		"00-00000000000000000000000000000000-00f067aa0ba902b7-01",
		"00-zzf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		"00-4bf92f35-00f067aa0ba902b7-01",
	} {
		_, ok := parseTraceID(bad)
		assert.False(t, ok, bad)
	}
}
