package logging

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ConsoleLogger writes human-readable lines, normally to stderr so that
// stdout stays reserved for command output. A line reads
// "LEVEL [trace] message {fields}".
type ConsoleLogger struct {
	root  *zap.Logger
	zl    *zap.Logger
	level zap.AtomicLevel
}

// ConsoleLoggerConfig contains configuration for console logger
type ConsoleLoggerConfig struct {
	Writer           io.Writer
	Level            LogLevel
	ColorEnabled     bool
	TimestampEnabled bool
	RedactSensitive  bool
}

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(config ConsoleLoggerConfig) *ConsoleLogger {
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	encCfg := zapcore.EncoderConfig{
		LevelKey:         "level",
		NameKey:          "trace",
		MessageKey:       "message",
		ConsoleSeparator: " ",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeName:       encodeTraceID,
		EncodeDuration:   zapcore.StringDurationEncoder,
	}
	if config.ColorEnabled {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if config.TimestampEnabled {
		encCfg.TimeKey = "time"
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}

	level := zap.NewAtomicLevelAt(toZapLevel(config.Level))
	var core zapcore.Core = zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(config.Writer)), level)
	if config.RedactSensitive {
		core = redactingCore{core}
	}

	zl := zap.New(core)
	return &ConsoleLogger{root: zl, zl: zl, level: level}
}

// encodeTraceID trims a UUID trace ID for terminal display
func encodeTraceID(id string, enc zapcore.PrimitiveArrayEncoder) {
	if len(id) > 8 {
		id = id[:8]
	}
	enc.AppendString("[" + id + "]")
}

func consoleFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			out = append(out, zap.String(f.Key, v.Error()))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func (l *ConsoleLogger) Debug(msg string, fields ...Field) { l.zl.Debug(msg, consoleFields(fields)...) }
func (l *ConsoleLogger) Info(msg string, fields ...Field)  { l.zl.Info(msg, consoleFields(fields)...) }
func (l *ConsoleLogger) Warn(msg string, fields ...Field)  { l.zl.Warn(msg, consoleFields(fields)...) }
func (l *ConsoleLogger) Error(msg string, fields ...Field) { l.zl.Error(msg, consoleFields(fields)...) }

// WithTraceID returns a logger that prefixes lines with the trace ID. It
// shares writer and level with l.
func (l *ConsoleLogger) WithTraceID(traceID string) Logger {
	return &ConsoleLogger{root: l.root, zl: l.root.Named(traceID), level: l.level}
}

// WithContext returns a new logger that extracts trace ID from context
func (l *ConsoleLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum log level for this logger and all derived ones
func (l *ConsoleLogger) SetLevel(level LogLevel) {
	l.level.SetLevel(toZapLevel(level))
}

// Close flushes buffered output. The writer itself is left open.
func (l *ConsoleLogger) Close() error {
	_ = l.zl.Sync()
	return nil
}
