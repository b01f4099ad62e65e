package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type key int

const loggerKey key = iota

func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok && l != nil {
		return l
	}

	return NewNoOpLogger()
}

// LogLevel values line up with zapcore.Level.
type LogLevel int8

const (
	DebugLevel LogLevel = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
	DPanicLevel
	PanicLevel
	FatalLevel
)

const (
	defaultBufferSize    = 4096
	defaultFlushInterval = 100 * time.Millisecond
)

type Config struct {
	Level        LogLevel
	IsProduction bool
}

type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	DPanic(msg string, fields ...interface{})
	Panic(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	With(fields ...interface{}) Logger
	Close()
}

type zapLogger struct {
	sugar *zap.SugaredLogger
	stop  func() error
}

type options struct {
	bufferSize    int
	flushInterval time.Duration
	output        io.Writer
}

type Option func(*options)

func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

func WithFlushInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.flushInterval = interval
		}
	}
}

func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// NewAsyncLogger builds a buffered zap logger. Entries are flushed when the
// buffer fills, on every flush interval, and once more when ctx is done.
func NewAsyncLogger(ctx context.Context, cfg Config, opts ...Option) Logger {
	o := options{
		bufferSize:    defaultBufferSize,
		flushInterval: defaultFlushInterval,
		output:        os.Stdout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ws := &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(o.output),
		Size:          o.bufferSize,
		FlushInterval: o.flushInterval,
	}

	var encoder zapcore.Encoder
	zapOpts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if cfg.IsProduction {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
		// DPanic panics outside production.
		zapOpts = append(zapOpts, zap.Development())
	}

	core := zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(zapcore.Level(cfg.Level)))
	l := &zapLogger{
		sugar: zap.New(core, zapOpts...).Sugar(),
		stop:  ws.Stop,
	}

	context.AfterFunc(ctx, func() {
		_ = l.sugar.Sync()
	})

	return l
}

// FromZap adapts an existing zap logger, e.g. one built by zaptest or an
// observer core.
func FromZap(z *zap.Logger) Logger {
	return &zapLogger{
		sugar: z.WithOptions(zap.AddCallerSkip(1)).Sugar(),
		stop:  func() error { return nil },
	}
}

func (l *zapLogger) Debug(msg string, fields ...interface{}) {
	l.sugar.Debugw(msg, fields...)
}

func (l *zapLogger) Info(msg string, fields ...interface{}) {
	l.sugar.Infow(msg, fields...)
}

func (l *zapLogger) Warn(msg string, fields ...interface{}) {
	l.sugar.Warnw(msg, fields...)
}

func (l *zapLogger) Error(msg string, fields ...interface{}) {
	l.sugar.Errorw(msg, fields...)
}

func (l *zapLogger) DPanic(msg string, fields ...interface{}) {
	l.sugar.DPanicw(msg, fields...)
}

func (l *zapLogger) Panic(msg string, fields ...interface{}) {
	l.sugar.Panicw(msg, fields...)
}

func (l *zapLogger) Fatal(msg string, fields ...interface{}) {
	l.sugar.Fatalw(msg, fields...)
}

func (l *zapLogger) With(fields ...interface{}) Logger {
	return &zapLogger{
		sugar: l.sugar.With(fields...),
		stop:  l.stop,
	}
}

// Close flushes buffered entries and stops the flush loop.
func (l *zapLogger) Close() {
	_ = l.sugar.Sync()
	_ = l.stop()
}

func ParseLevel(level string) LogLevel {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return WarnLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return InfoLevel
	}
	return LogLevel(lvl)
}

func (l LogLevel) String() string {
	return zapcore.Level(l).String()
}

func NewNoOpLogger() Logger {
	return FromZap(zap.NewNop())
}
