package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

var json = sonic.ConfigStd

// CallMetadata is the first JSON line of every call log file.
type CallMetadata struct {
	CallID    string `json:"call_id"`
	AgentID   string `json:"agent_id,omitempty"`
	StartedAt string `json:"started_at"`
}

// LogEntry is a single JSON log line written after the metadata line.
type LogEntry struct {
	Timestamp string         `json:"ts"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogWriter is a secondary destination for log lines (a file, the monitor socket).
type LogWriter interface {
	Write(level Level, msg string, attrs map[string]any)
	Close()
}

// CallLogWriter appends structured log lines to <dir>/<callID>.jsonl. While the
// writer is open a <callID>.active marker sits next to the log.
type CallLogWriter struct {
	mu     sync.Mutex
	file   *os.File
	dir    string
	callID string
}

// NewCallLogWriter creates dir if needed, opens the call log and writes the metadata line.
func NewCallLogWriter(dir, callID, agentID string) (*CallLogWriter, error) {
	if callID == "" {
		return nil, fmt.Errorf("call log: empty call id")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("call log: mkdir %q: %w", dir, err)
	}

	path := filepath.Join(dir, callID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("call log: open %q: %w", path, err)
	}

	meta, _ := json.Marshal(CallMetadata{
		CallID:    callID,
		AgentID:   agentID,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if _, err := f.Write(append(meta, '\n')); err != nil {
		f.Close()
		return nil, fmt.Errorf("call log: write metadata: %w", err)
	}

	if marker, err := os.Create(filepath.Join(dir, callID+".active")); err == nil {
		marker.Close()
	}

	return &CallLogWriter{file: f, dir: dir, callID: callID}, nil
}

// Path returns the log file location.
func (w *CallLogWriter) Path() string {
	return filepath.Join(w.dir, w.callID+".jsonl")
}

func (w *CallLogWriter) Write(level Level, msg string, attrs map[string]any) {
	data, err := json.Marshal(LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Attrs:     attrs,
	})
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Write(append(data, '\n'))
	}
}

// Close closes the file and removes the .active marker. Safe to call twice.
func (w *CallLogWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return
	}
	w.file.Close()
	w.file = nil
	os.Remove(filepath.Join(w.dir, w.callID+".active"))
}

// NewTeeLogger returns a logger that writes every line to base and to writer.
// Children created through With inherit the tee.
func NewTeeLogger(base *Logger, writer LogWriter) *Logger {
	handler := func(level Level, msg string, attrs map[string]any) {
		if base != nil && base.handler != nil && level >= base.level {
			base.handler(level, msg, attrs)
		}
		writer.Write(level, msg, attrs)
	}
	tee := NewLogger(handler, LevelDebug)
	if base != nil {
		for k, v := range base.attrs {
			tee.attrs[k] = v
		}
	}
	return tee
}
