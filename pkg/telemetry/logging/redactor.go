package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "***"

// Redactor masks credentials in log attributes.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// Built-in patterns, applied to every string value.
var defaultPatterns = []redactPattern{
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer ***"},
	{regexp.MustCompile(`/bot\d+:[A-Za-z0-9_-]+`), "/bot***"},
	{regexp.MustCompile(`\b\d{6,}:[A-Za-z0-9_-]{30,}\b`), redacted},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([=:]\s*)[^\s&"]+`), "$1$2***"},
}

var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "authorization",
}

// NewRedactor creates a redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: defaultPatterns}
}

// RedactString masks credentials found in value.
func (r *Redactor) RedactString(value string) string {
	if r == nil || value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr masks a single attribute. Group members are redacted
// recursively. A nil Redactor returns a unchanged.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if r == nil {
		return a
	}
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, redacted)
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		attrs := make([]any, len(group))
		for i, ga := range group {
			attrs[i] = r.RedactAttr(ga)
		}
		return slog.Group(a.Key, attrs...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// IsSensitiveKey reports whether a key names a credential.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
