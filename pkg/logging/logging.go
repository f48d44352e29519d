// Package logging backs the latency-benchmark-common logging interface with
// zap. Components depend on the common Logger and Fields types, so the stream
// and window packages log the same way the shared library does, while output
// goes through a zap core with a shared atomic level.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	commonlog "github.com/RyanBlaney/latency-benchmark-common/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields is a set of structured key/value pairs attached to a log entry
type Fields = commonlog.Fields

// Level is a logging severity
type Level = commonlog.Level

const (
	DebugLevel = commonlog.DebugLevel
	InfoLevel  = commonlog.InfoLevel
	WarnLevel  = commonlog.WarnLevel
	ErrorLevel = commonlog.ErrorLevel
	FatalLevel = commonlog.FatalLevel
)

// Logger is the logging interface handed to every component
type Logger = commonlog.Logger

// contextFieldsKey is the context key the common loggers read fields from
const contextFieldsKey = "logger_fields"

// Options configures a logger built with New
type Options struct {
	Level  Level
	Format string // "json" or "console"
	Output io.Writer
}

var (
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	defaultMu     sync.RWMutex
	defaultLogger Logger
)

type zapLogger struct {
	z *zap.Logger
}

var _ commonlog.Logger = (*zapLogger)(nil)

// New builds a logger writing to opts.Output (stderr when nil). The level is
// shared with SetLevel so that it can be changed after construction.
func New(opts Options) Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(opts.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	atomicLevel.SetLevel(toZapLevel(opts.Level))
	core := zapcore.NewCore(enc, zapcore.AddSync(out), atomicLevel)
	return &zapLogger{z: zap.New(core)}
}

// NewDefaultLogger returns a console logger on stderr at the current level
func NewDefaultLogger() Logger {
	return &zapLogger{z: zap.New(zapcore.NewCore(
		consoleEncoder(),
		zapcore.AddSync(os.Stderr),
		atomicLevel,
	))}
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	return &commonlog.NoOpLogger{}
}

func consoleEncoder() zapcore.Encoder {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}

func (l *zapLogger) Debug(msg string, fields ...Fields) {
	l.z.Debug(msg, toZap(fields)...)
}

func (l *zapLogger) Info(msg string, fields ...Fields) {
	l.z.Info(msg, toZap(fields)...)
}

func (l *zapLogger) Warn(msg string, fields ...Fields) {
	l.z.Warn(msg, toZap(fields)...)
}

func (l *zapLogger) Error(err error, msg string, fields ...Fields) {
	l.z.Error(msg, withErr(toZap(fields), err)...)
}

// Fatal logs and exits through zap's fatal hook
func (l *zapLogger) Fatal(err error, msg string, fields ...Fields) {
	l.z.Fatal(msg, withErr(toZap(fields), err)...)
}

func (l *zapLogger) WithFields(fields Fields) Logger {
	return &zapLogger{z: l.z.With(toZap([]Fields{fields})...)}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := ctx.Value(contextFieldsKey).(Fields); ok {
		return l.WithFields(fields)
	}
	return l
}

// SetLevel moves the shared level, so it affects every zap-backed logger
func (l *zapLogger) SetLevel(level Level) {
	SetLevel(level)
}

func withErr(zf []zap.Field, err error) []zap.Field {
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	return zf
}

// toZap flattens the field maps in key order so output is stable
func toZap(fields []Fields) []zap.Field {
	n := 0
	for _, f := range fields {
		n += len(f)
	}
	if n == 0 {
		return nil
	}

	out := make([]zap.Field, 0, n)
	for _, f := range fields {
		keys := make([]string, 0, len(f))
		for k := range f {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, zap.Any(k, f[k]))
		}
	}
	return out
}

func toZapLevel(lv Level) zapcore.Level {
	switch lv {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel maps a level name (debug, info, warn, error) to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// SetLevel changes the level of every logger built by this package
func SetLevel(lv Level) {
	atomicLevel.SetLevel(toZapLevel(lv))
}

// GetLevel returns the current shared level
func GetLevel() Level {
	switch atomicLevel.Level() {
	case zapcore.DebugLevel:
		return DebugLevel
	case zapcore.WarnLevel:
		return WarnLevel
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel:
		return ErrorLevel
	case zapcore.FatalLevel:
		return FatalLevel
	default:
		return InfoLevel
	}
}

// SetDefault replaces the package-level logger. The common library's global
// logger is pointed at the same instance.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
	commonlog.SetGlobalLogger(l)
}

// Default returns the package-level logger, creating it on first use
func Default() Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewDefaultLogger()
	}
	return defaultLogger
}

// WithFields returns the default logger with fields attached
func WithFields(fields Fields) Logger {
	return Default().WithFields(fields)
}

func Debug(msg string, fields ...Fields) { Default().Debug(msg, fields...) }

func Info(msg string, fields ...Fields) { Default().Info(msg, fields...) }

func Warn(msg string, fields ...Fields) { Default().Warn(msg, fields...) }

func Error(err error, msg string, fields ...Fields) { Default().Error(err, msg, fields...) }
