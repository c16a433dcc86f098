package testenv

import (
	"fmt"
	"strings"
	"sync"

	"github.com/revstore/revstore/pkg/logger"
)

// Logger records log lines as "[index] LEVEL: message k=v, k=v", without
// timestamps, so that tests can compare them.
type Logger struct {
	mu          sync.Mutex
	lines       []string
	ignoreDebug bool
}

var _ logger.Logger = (*Logger)(nil)

type LoggerOption func(*Logger)

// WithIgnoreDebug drops DEBUG lines.
func WithIgnoreDebug() LoggerOption {
	return func(l *Logger) {
		l.ignoreDebug = true
	}
}

func NewLogger(opts ...LoggerOption) *Logger {
	l := &Logger{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Logger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }

func (l *Logger) Debug(msg string, args ...any) {
	if l.ignoreDebug {
		return
	}
	l.record("DEBUG", msg, args)
}

func (l *Logger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("[%d] %s: %s", len(l.lines), level, msg)
	if attrs := formatArgs(args); attrs != "" {
		line += " " + attrs
	}
	l.lines = append(l.lines, line)
}

func formatArgs(args []any) string {
	var parts []string
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			parts = append(parts, fmt.Sprintf("!BADKEY=%v", args[i]))
			break
		}
		parts = append(parts, fmt.Sprintf("%v=%v", args[i], args[i+1]))
	}
	return strings.Join(parts, ", ")
}

// Lines returns a copy of the recorded lines.
func (l *Logger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Contains reports whether some line contains substr.
func (l *Logger) Contains(substr string) bool {
	for _, line := range l.Lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
