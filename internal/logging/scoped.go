package logging

import (
	"fmt"
	"strings"
)

// ScopedLogger prefixes every line with a fixed bracketed context such as
// "[job=package video=7 width=480]". Background jobs use it so each line
// carries the identifiers needed to diagnose a single failed job.
type ScopedLogger struct {
	prefix string
}

// Scoped builds a ScopedLogger from alternating key/value pairs.
// A trailing key without a value is rendered as "key=?".
func Scoped(keyvals ...interface{}) *ScopedLogger {
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < len(keyvals); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fmt.Sprint(keyvals[i]))
		b.WriteByte('=')
		if i+1 < len(keyvals) {
			b.WriteString(fmt.Sprint(keyvals[i+1]))
		} else {
			b.WriteByte('?')
		}
	}
	b.WriteString("] ")
	return &ScopedLogger{prefix: b.String()}
}

// Prefix returns the rendered context prefix.
func (s *ScopedLogger) Prefix() string {
	return s.prefix
}

// Debug logs at debug level with the scope prefix.
func (s *ScopedLogger) Debug(format string, args ...interface{}) {
	Debug(s.prefix+format, args...)
}

// Info logs at info level with the scope prefix.
func (s *ScopedLogger) Info(format string, args ...interface{}) {
	Info(s.prefix+format, args...)
}

// Warn logs at warn level with the scope prefix.
func (s *ScopedLogger) Warn(format string, args ...interface{}) {
	Warn(s.prefix+format, args...)
}

// Error logs at error level with the scope prefix.
func (s *ScopedLogger) Error(format string, args ...interface{}) {
	Error(s.prefix+format, args...)
}
