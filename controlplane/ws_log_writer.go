package controlplane

import (
	"time"

	"callkit/core"
	"callkit/protocol"
)

// WSLogWriter implements core.LogWriter by sending log lines to the monitor.
type WSLogWriter struct {
	client *Client
	callID string
}

// NewWSLogWriter routes log lines to the monitor. An empty callID tags each
// line with the call the client currently reports.
func NewWSLogWriter(client *Client, callID string) *WSLogWriter {
	return &WSLogWriter{
		client: client,
		callID: callID,
	}
}

var _ core.LogWriter = (*WSLogWriter)(nil)

func (w *WSLogWriter) Write(level core.Level, msg string, attrs map[string]any) {
	callID := w.callID
	if callID == "" {
		callID = w.client.CallID()
	}
	w.client.SendLog(callID, protocol.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Attrs:     attrs,
	})
}

// Close signals the end of the log stream.
func (w *WSLogWriter) Close() {
	callID := w.callID
	if callID == "" {
		callID = w.client.CallID()
	}
	w.client.SendLogEnd(callID)
}
