package logger

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one captured log line.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// TestLogger captures log lines for assertions. Derived loggers from
// WithField and friends share the same capture buffer. Safe for
// concurrent use.
type TestLogger struct {
	core   *testCore
	fields map[string]interface{}
}

type testCore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTestLogger creates an empty capturing logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{core: &testCore{}, fields: map[string]interface{}{}}
}

func (l *TestLogger) record(level, msg string, extra map[string]interface{}) {
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}

	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.entries = append(l.core.entries, Entry{Level: level, Message: msg, Fields: fields})
}

func (l *TestLogger) derive(extra map[string]interface{}) Logger {
	child := &TestLogger{
		core:   l.core,
		fields: make(map[string]interface{}, len(l.fields)+len(extra)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range extra {
		child.fields[k] = v
	}
	return child
}

func (l *TestLogger) Debug(msg string) { l.record("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.record("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, f map[string]interface{}) {
	l.record("DEBUG", msg, f)
}
func (l *TestLogger) InfoWithFields(msg string, f map[string]interface{}) { l.record("INFO", msg, f) }
func (l *TestLogger) WarnWithFields(msg string, f map[string]interface{}) { l.record("WARN", msg, f) }
func (l *TestLogger) ErrorWithFields(msg string, f map[string]interface{}) {
	l.record("ERROR", msg, f)
}
func (l *TestLogger) FatalWithFields(msg string, f map[string]interface{}) {
	l.record("FATAL", msg, f)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.derive(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return l.derive(fields)
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.derive(map[string]interface{}{"error": err.Error()})
}

func (l *TestLogger) WithContext(ctx context.Context) Logger { return l }

func (l *TestLogger) GetZerolog() *zerolog.Logger { return nil }

// Entries returns a copy of everything captured so far.
func (l *TestLogger) Entries() []Entry {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	out := make([]Entry, len(l.core.entries))
	copy(out, l.core.entries)
	return out
}

// HasMessage reports whether any captured message contains text.
func (l *TestLogger) HasMessage(text string) bool {
	for _, e := range l.Entries() {
		if strings.Contains(e.Message, text) {
			return true
		}
	}
	return false
}

// CountLevel returns how many entries were captured at the given level.
// The comparison ignores case.
func (l *TestLogger) CountLevel(level string) int {
	n := 0
	for _, e := range l.Entries() {
		if strings.EqualFold(e.Level, level) {
			n++
		}
	}
	return n
}

// Clear drops everything captured so far.
func (l *TestLogger) Clear() {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.entries = l.core.entries[:0]
}
