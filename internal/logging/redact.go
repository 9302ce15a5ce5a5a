package logging

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type redaction struct {
	pattern *regexp.Regexp
	replace string
}

// redactions hide credentials that end up in log text: OAuth tokens and
// secrets, and the signatures on pre-authenticated download links
var redactions = []redaction{
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(access_token|refresh_token|id_token)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)authorization["']?\s*[:=]\s*["']?[^\s"']+`), "Authorization: [REDACTED]"},
	{regexp.MustCompile(`(?i)(client_secret|clientSecret)["']?\s*[:=]\s*["']?[^\s"'&,]+`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)(sig|tempauth|X-Amz-Signature|X-Amz-Credential|X-Amz-Security-Token)=[^&\s"']+`), "$1=[REDACTED]"},
}

func redactSensitiveData(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replace)
	}
	return s
}

// redactingCore scrubs the message and every textual field before the
// wrapped core encodes them
type redactingCore struct {
	zapcore.Core
}

func (c redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return redactingCore{c.Core.With(redactFields(fields))}
}

func (c redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = redactSensitiveData(ent.Message)
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			f.String = redactSensitiveData(f.String)
		case zapcore.StringerType, zapcore.ErrorType:
			f = zap.String(f.Key, redactSensitiveData(fmt.Sprint(f.Interface)))
		}
		out[i] = f
	}
	return out
}
