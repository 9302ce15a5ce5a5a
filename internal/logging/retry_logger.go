package logging

import "fmt"

// RetryLogger adapts Logger to retryablehttp.LeveledLogger
type RetryLogger struct {
	logger Logger
}

// NewRetryLogger wraps logger for use as a retryablehttp client logger
func NewRetryLogger(logger Logger) *RetryLogger {
	return &RetryLogger{logger: logger}
}

func (r *RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.logger.Error(msg, kvFields(keysAndValues)...)
}

func (r *RetryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (r *RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (r *RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.logger.Warn(msg, kvFields(keysAndValues)...)
}

func kvFields(kv []interface{}) []Field {
	fields := make([]Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		var value interface{} = "(missing)"
		if i+1 < len(kv) {
			value = kv[i+1]
		}
		if s, ok := value.(fmt.Stringer); ok {
			value = redactSensitiveData(s.String())
		}
		fields = append(fields, F(key, value))
	}
	return fields
}
