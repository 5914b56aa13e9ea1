package logger

import (
	"fmt"
	"maps"
	"strings"
	"sync"
)

type TestLogEntry struct {
	Level   string
	Message string
	Fields  Fields
}

type entryBuffer struct {
	mu      sync.RWMutex
	entries []TestLogEntry
}

// TestLogger records entries in memory. Derived loggers share the buffer.
type TestLogger struct {
	buf    *entryBuffer
	fields Fields
}

func NewTestLogger() *TestLogger {
	return &TestLogger{buf: &entryBuffer{}, fields: Fields{}}
}

func (l *TestLogger) record(level string, args []any) {
	f := make(Fields, len(l.fields))
	maps.Copy(f, l.fields)

	l.buf.mu.Lock()
	defer l.buf.mu.Unlock()
	l.buf.entries = append(l.buf.entries, TestLogEntry{
		Level:   level,
		Message: fmt.Sprint(args...),
		Fields:  f,
	})
}

func (l *TestLogger) Trace(args ...any) { l.record("trace", args) }
func (l *TestLogger) Debug(args ...any) { l.record("debug", args) }
func (l *TestLogger) Info(args ...any)  { l.record("info", args) }
func (l *TestLogger) Warn(args ...any)  { l.record("warn", args) }
func (l *TestLogger) Error(args ...any) { l.record("error", args) }
func (l *TestLogger) Fatal(args ...any) { l.record("fatal", args) }

func (l *TestLogger) WithFields(fields Fields) Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	maps.Copy(merged, l.fields)
	maps.Copy(merged, fields)
	return &TestLogger{buf: l.buf, fields: merged}
}

func (l *TestLogger) WithField(key string, value any) Logger {
	return l.WithFields(Fields{key: value})
}

func (l *TestLogger) WithError(err error) Logger {
	return l.WithFields(Fields{"error": err})
}

func (l *TestLogger) Entries() []TestLogEntry {
	l.buf.mu.RLock()
	defer l.buf.mu.RUnlock()
	return append([]TestLogEntry(nil), l.buf.entries...)
}

func (l *TestLogger) Reset() {
	l.buf.mu.Lock()
	defer l.buf.mu.Unlock()
	l.buf.entries = nil
}

func (l *TestLogger) HasEntry(level, message string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && e.Message == message {
			return true
		}
	}
	return false
}

// HasEntryContaining matches on a message substring.
func (l *TestLogger) HasEntryContaining(level, substr string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func (l *TestLogger) CountLevel(level string) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}
