package core

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a Level. Unknown names map to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// HandlerFunc receives every log line that passes the logger's level filter.
type HandlerFunc func(level Level, msg string, attrs map[string]any)

var (
	loggerMu       sync.RWMutex
	loggerInstance = NewDevelopmentLogger(os.Stderr, LevelInfo)
)

// SetLogger replaces the process default logger. Components created afterwards pick it up.
func SetLogger(logger *Logger) {
	if logger == nil {
		return
	}
	loggerMu.Lock()
	loggerInstance = logger
	loggerMu.Unlock()
}

// GetLogger returns the process default logger.
func GetLogger() *Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return loggerInstance
}

// Logger is a small structured logger. Attributes attached with With are
// carried by every line written through the returned child.
type Logger struct {
	handler HandlerFunc
	level   Level
	attrs   map[string]any
}

// NewLogger creates a logger that forwards lines at or above minLevel to handler.
func NewLogger(handler HandlerFunc, minLevel Level) *Logger {
	return &Logger{
		handler: handler,
		level:   minLevel,
		attrs:   make(map[string]any),
	}
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return NewLogger(nil, LevelError+1)
}

// NewDevelopmentLogger writes human readable lines to w:
//
//	2026-01-02T15:04:05Z [INFO] connected | call_id=abc component=session
func NewDevelopmentLogger(w io.Writer, minLevel Level) *Logger {
	var mu sync.Mutex
	handler := func(level Level, msg string, attrs map[string]any) {
		var b strings.Builder
		b.WriteString(time.Now().Format(time.RFC3339))
		b.WriteString(" [")
		b.WriteString(level.String())
		b.WriteString("] ")
		b.WriteString(msg)
		if len(attrs) > 0 {
			keys := make([]string, 0, len(attrs))
			for k := range attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			b.WriteString(" |")
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%v", k, attrs[k])
			}
		}
		b.WriteByte('\n')

		mu.Lock()
		defer mu.Unlock()
		io.WriteString(w, b.String())
	}
	return NewLogger(handler, minLevel)
}

func (l *Logger) log(level Level, msg string, args ...any) {
	if l == nil || l.handler == nil || level < l.level {
		return
	}
	if len(args) == 0 {
		l.handler(level, msg, l.attrs)
		return
	}
	attrs := make(map[string]any, len(l.attrs)+len(args)/2)
	for k, v := range l.attrs {
		attrs[k] = v
	}
	// Args that are not string-keyed pairs land under "args" unformatted.
	if !isKeyValuePairs(args) {
		attrs["args"] = args
		l.handler(level, msg, attrs)
		return
	}
	for i := 0; i < len(args)-1; i += 2 {
		key := args[i].(string)
		attrs[key] = args[i+1]
	}
	l.handler(level, msg, attrs)
}

func isKeyValuePairs(args []any) bool {
	if len(args)%2 != 0 {
		return false
	}
	for i := 0; i < len(args); i += 2 {
		if _, ok := args[i].(string); !ok {
			return false
		}
	}
	return true
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }

func (l *Logger) Info(msg string, args ...any) { l.log(LevelInfo, msg, args...) }

func (l *Logger) Warn(msg string, args ...any) { l.log(LevelWarn, msg, args...) }

func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, fmt.Sprintf(format, args...)) }

func (l *Logger) Infof(format string, args ...any) { l.log(LevelInfo, fmt.Sprintf(format, args...)) }

func (l *Logger) Warnf(format string, args ...any) { l.log(LevelWarn, fmt.Sprintf(format, args...)) }

func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, fmt.Sprintf(format, args...)) }

// With returns a child logger that adds attrs to every line.
func (l *Logger) With(attrs map[string]any) *Logger {
	if l == nil {
		return nil
	}
	combined := make(map[string]any, len(l.attrs)+len(attrs))
	for k, v := range l.attrs {
		combined[k] = v
	}
	for k, v := range attrs {
		combined[k] = v
	}
	return &Logger{
		handler: l.handler,
		level:   l.level,
		attrs:   combined,
	}
}

// Component is shorthand for With(map[string]any{"component": name}).
func (l *Logger) Component(name string) *Logger {
	return l.With(map[string]any{"component": name})
}
