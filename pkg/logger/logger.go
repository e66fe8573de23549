package logger

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "requestID"
	SessionKey   ContextKey = "session"
)

func init() {
	RegisterContextKey(RequestIDKey, "request_id")
	RegisterContextKey(SessionKey, "session")
}

type LogManager interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)

	DebugF(format string, args ...any)
	InfoF(format string, args ...any)
	WarnF(format string, args ...any)
	ErrorF(format string, args ...any)

	DebugFCtx(ctx context.Context, format string, args ...any)
	InfoFCtx(ctx context.Context, format string, args ...any)
	WarnFCtx(ctx context.Context, format string, args ...any)
	ErrorFCtx(ctx context.Context, format string, args ...any)

	// Infow and Debugw log a message with structured key/value pairs.
	Infow(msg string, keyValues ...any)
	Debugw(msg string, keyValues ...any)

	With(keyValues ...any) LogManager

	Sync() error
	SetLogLevel(level string) error
}

// LoggerOptions for custom configuration
type LoggerOptions struct {
	Level        string
	Encoding     string // "json" or "console"
	OutputPaths  []string
	ErrorPaths   []string
	EnableCaller bool
	EnableStack  bool
	TimeFormat   string
	// Name is attached to every entry as the "logger" field.
	Name string
}

// NewLogger creates a zap-backed logger with options
func NewLogger(opts LoggerOptions) (LogManager, error) {
	atomicLevel := zap.NewAtomicLevel()
	if err := atomicLevel.UnmarshalText([]byte(opts.Level)); err != nil {
		atomicLevel.SetLevel(zap.InfoLevel)
	}

	timeFormat := opts.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:       "time",
		LevelKey:      "level",
		NameKey:       "logger",
		MessageKey:    "msg",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.TimeEncoderOfLayout(timeFormat),
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	if opts.EnableCaller {
		encoderCfg.CallerKey = "caller"
	}

	if opts.Encoding == "" {
		opts.Encoding = "console"
	}
	if opts.Encoding == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if len(opts.OutputPaths) == 0 {
		opts.OutputPaths = []string{"stdout"}
	}
	if len(opts.ErrorPaths) == 0 {
		opts.ErrorPaths = []string{"stderr"}
	}

	cfg := zap.Config{
		Level:            atomicLevel,
		Development:      opts.Level == "debug",
		Encoding:         opts.Encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      opts.OutputPaths,
		ErrorOutputPaths: opts.ErrorPaths,
	}

	zapOpts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if opts.EnableStack {
		zapOpts = []zap.Option{zap.AddStacktrace(zap.WarnLevel)}
	}

	zapLogger, err := cfg.Build(zapOpts...)
	if err != nil {
		return nil, err
	}
	if opts.Name != "" {
		zapLogger = zapLogger.Named(opts.Name)
	}

	return &logger{
		Log:         zapLogger.Sugar(),
		atomicLevel: atomicLevel,
	}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() LogManager {
	return &logger{
		Log:         zap.NewNop().Sugar(),
		atomicLevel: zap.NewAtomicLevel(),
	}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l LogManager) LogManager {
	if l == nil {
		return NewNop()
	}
	return l
}

// FromZap wraps an existing zap logger. Its level cannot be changed through
// SetLogLevel.
func FromZap(z *zap.Logger) LogManager {
	return &logger{
		Log:         z.Sugar(),
		atomicLevel: zap.NewAtomicLevel(),
	}
}
