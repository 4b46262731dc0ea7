package log

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootLogger *zap.Logger
var currentLogger *zap.Logger

type contextKey int

const (
	contextKeyFields contextKey = iota
)

// Output formats accepted by SetFormat
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

func onK8S() bool {
	_, err := os.Stat("/var/run/secrets/kubernetes.io")
	return !os.IsNotExist(err)
}

func init() {
	Structured()
}

func setLogger(l *zap.Logger) {
	currentLogger = l
}

func resetLogger() {
	currentLogger = rootLogger
}

// levelFromEnv returns the level set by LOGLEVEL, or debug
func levelFromEnv() zap.AtomicLevel {
	lvl := zap.NewAtomicLevelAt(zap.DebugLevel)
	if env := os.Getenv("LOGLEVEL"); env != "" {
		if err := lvl.UnmarshalText([]byte(env)); err != nil {
			lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
	}
	return lvl
}

func install(cfg zap.Config, enc zapcore.EncoderConfig) {
	enc.LevelKey = "severity"
	enc.StacktraceKey = ""
	enc.MessageKey = "message"
	cfg.EncoderConfig = enc
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.Level = levelFromEnv()
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	rootLogger = l
	currentLogger = l
}

// Structured sets output to be JSON encoded
func Structured() {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	if onK8S() {
		//log collection in k8s handles timestamps
		enc.TimeKey = ""
	} else {
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	install(zap.NewProductionConfig(), enc)
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02T15:04:05.000"))
}

// Console sets output to be human-readable
func Console() {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = timeEncoder
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	install(zap.NewDevelopmentConfig(), enc)
}

// SetFormat installs the root logger for the given output format (json or console)
func SetFormat(format string) error {
	switch format {
	case FormatJSON, "":
		Structured()
	case FormatConsole:
		Console()
	default:
		return fmt.Errorf("unknown log format %q (expected %s or %s)", format, FormatJSON, FormatConsole)
	}
	return nil
}

// Logger returns a logger that will print fields previously added to the context
func Logger(ctx context.Context) *zap.Logger {
	if flds, ok := ctx.Value(contextKeyFields).([]zapcore.Field); ok {
		return currentLogger.With(flds...)
	}
	return currentLogger
}

// With adds a key=value field to the returned context
func With(ctx context.Context, key string, value interface{}) context.Context {
	return WithFields(ctx, zap.Any(key, value))
}

// CopyContext returns a context derived from dst that contains the eventual logging
// keys that are contained in ctx
func CopyContext(ctx context.Context, dst context.Context) context.Context {
	cflds, ok := ctx.Value(contextKeyFields).([]zapcore.Field)
	if !ok {
		return dst
	}
	flds := append([]zapcore.Field{}, cflds...)
	if dflds, ok := dst.Value(contextKeyFields).([]zapcore.Field); ok {
		flds = append(flds, dflds...)
	}
	return context.WithValue(dst, contextKeyFields, flds)
}

// WithFields adds fields to the returned context
func WithFields(ctx context.Context, fields ...zapcore.Field) context.Context {
	var flds []zapcore.Field
	if cflds, ok := ctx.Value(contextKeyFields).([]zapcore.Field); ok {
		flds = append(flds, cflds...)
	}
	flds = append(flds, fields...)
	return context.WithValue(ctx, contextKeyFields, flds)
}

// Sync flushes the root logger
func Sync() {
	_ = currentLogger.Sync()
}

// Print logs at Info level
func Print(v ...interface{}) {
	currentLogger.Info(fmt.Sprint(v...))
}

// Printf logs at Info level
func Printf(format string, v ...interface{}) {
	currentLogger.Sugar().Infof(format, v...)
}

func Fatal(v ...interface{}) {
	currentLogger.Fatal(fmt.Sprint(v...))
}

func Fatalf(format string, v ...interface{}) {
	currentLogger.Sugar().Fatalf(format, v...)
}
