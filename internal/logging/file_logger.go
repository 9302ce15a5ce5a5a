package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileLogger writes JSON lines through a zap core. The encoder is configured
// so every line decodes into LogEntry.
type FileLogger struct {
	zl      *zap.Logger
	level   zap.AtomicLevel
	out     *rotatingFile
	traceID string
}

// FileLoggerConfig contains configuration for file logger
type FileLoggerConfig struct {
	FilePath      string
	Level         LogLevel
	MaxFileSize   int64 // in bytes, 0 means no rotation
	RotateEnabled bool
}

// NewFileLogger creates a new file logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	out, err := openRotatingFile(config.FilePath, config.MaxFileSize, config.RotateEnabled)
	if err != nil {
		return nil, err
	}

	level := zap.NewAtomicLevelAt(toZapLevel(config.Level))
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:    encodeLevel,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(out), level)

	return &FileLogger{
		zl:    zap.New(core),
		level: level,
		out:   out,
	}, nil
}

func toZapLevel(l LogLevel) zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// encodeLevel keeps level names identical to the console logger ("WARN", not "WARNING")
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.DebugLevel:
		enc.AppendString(DEBUG.String())
	case zapcore.InfoLevel:
		enc.AppendString(INFO.String())
	case zapcore.WarnLevel:
		enc.AppendString(WARN.String())
	default:
		enc.AppendString(ERROR.String())
	}
}

func zapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields)+1)
	out = append(out, zap.Namespace("fields"))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			out = append(out, zap.String(f.Key, v.Error()))
		case time.Duration:
			out = append(out, zap.Int64(f.Key, v.Milliseconds()))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func (l *FileLogger) Debug(msg string, fields ...Field) {
	l.zl.Debug(msg, zapFields(fields)...)
}

func (l *FileLogger) Info(msg string, fields ...Field) {
	l.zl.Info(msg, zapFields(fields)...)
}

func (l *FileLogger) Warn(msg string, fields ...Field) {
	l.zl.Warn(msg, zapFields(fields)...)
}

func (l *FileLogger) Error(msg string, fields ...Field) {
	l.zl.Error(msg, zapFields(fields)...)
}

// WithTraceID returns a logger sharing the same file with the trace ID attached
func (l *FileLogger) WithTraceID(traceID string) Logger {
	return &FileLogger{
		zl:      l.zl.With(zap.String("traceId", traceID)),
		level:   l.level,
		out:     l.out,
		traceID: traceID,
	}
}

// WithContext returns a new logger that extracts trace ID from context
func (l *FileLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum log level for this logger and all derived ones
func (l *FileLogger) SetLevel(level LogLevel) {
	l.level.SetLevel(toZapLevel(level))
}

// Close flushes and closes the log file
func (l *FileLogger) Close() error {
	_ = l.zl.Sync()
	return l.out.Close()
}

// rotatingFile is a size-bounded append-only file
type rotatingFile struct {
	mu          sync.Mutex
	file        *os.File
	path        string
	maxSize     int64
	currentSize int64
	rotate      bool
}

func openRotatingFile(path string, maxSize int64, rotate bool) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to close log file after stat error: %w", closeErr)
		}
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &rotatingFile{
		file:        file,
		path:        path,
		maxSize:     maxSize,
		currentSize: info.Size(),
		rotate:      rotate && maxSize > 0,
	}, nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.rotate && r.currentSize >= r.maxSize {
		if err := r.rotateLocked(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log file: %v\n", err)
		}
	}

	n, err := r.file.Write(p)
	r.currentSize += int64(n)
	return n, err
}

func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

func (r *rotatingFile) rotateLocked() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	timestamp := time.Now().UTC().Format("20060102-150405")
	rotatedPath := fmt.Sprintf("%s.%s", r.path, timestamp)
	if err := os.Rename(r.path, rotatedPath); err != nil {
		file, _ := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		r.file = file
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create new log file: %w", err)
	}

	r.file = file
	r.currentSize = 0
	return nil
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
