// Package protocol holds the wire formats shared with the agent (room data
// messages) and with the monitor (relay envelopes).
package protocol

import (
	stdjson "encoding/json"
	"time"
)

// RawMessage is a delayed-decode JSON value.
type RawMessage = stdjson.RawMessage

// MessageType enumerates relay message types.
type MessageType string

const (
	// Client -> monitor
	MsgRegister  MessageType = "register"
	MsgHeartbeat MessageType = "heartbeat"
	MsgLog       MessageType = "log"
	MsgEvent     MessageType = "event"
	MsgLogEnd    MessageType = "log_end"

	// Monitor -> client
	MsgSendMessage   MessageType = "send_message"
	MsgSetMicrophone MessageType = "set_microphone"
	MsgDisconnect    MessageType = "disconnect"
	MsgAck           MessageType = "ack"
)

// Envelope is the outer JSON wrapper for every relay message.
type Envelope struct {
	Type    MessageType `json:"type"`
	Payload RawMessage  `json:"payload,omitempty"`
}

// RegisterPayload is sent once after dialing the monitor.
type RegisterPayload struct {
	ClientID  string            `json:"client_id"`
	Version   string            `json:"version,omitempty"`
	AgentID   string            `json:"agent_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// HeartbeatPayload keeps the relay connection alive and mirrors session status.
type HeartbeatPayload struct {
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
	CallID    string    `json:"call_id,omitempty"`
	Status    string    `json:"status"` // "idle", "connecting", "connected", "error"
}

// LogPayload carries one log line of a call.
type LogPayload struct {
	ClientID string   `json:"client_id"`
	CallID   string   `json:"call_id,omitempty"`
	Entry    LogEntry `json:"entry"`
}

type LogEntry struct {
	Timestamp string         `json:"ts"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// EventCategory names the session subscription an event came from.
type EventCategory string

const (
	EventTranscription   EventCategory = "transcription"
	EventStatus          EventCategory = "status"
	EventError           EventCategory = "error"
	EventAgentState      EventCategory = "agent_state"
	EventAudioLevel      EventCategory = "audio_level"
	EventMicrophoneState EventCategory = "microphone_state"
)

// EventPayload carries one session event.
type EventPayload struct {
	ClientID string        `json:"client_id"`
	CallID   string        `json:"call_id,omitempty"`
	EventID  string        `json:"event_id"`
	Category EventCategory `json:"category"`
	Data     RawMessage    `json:"data"`
}

// LogEndPayload marks the end of a call's log stream.
type LogEndPayload struct {
	ClientID string `json:"client_id"`
	CallID   string `json:"call_id"`
}

// SendMessagePayload asks the client to send chat text to the agent.
type SendMessagePayload struct {
	Text string `json:"text"`
}

// SetMicrophonePayload toggles the client microphone.
type SetMicrophonePayload struct {
	Enabled bool `json:"enabled"`
}

// DisconnectPayload asks the client to hang up.
type DisconnectPayload struct {
	Reason string `json:"reason,omitempty"`
}

// AckPayload acknowledges a monitor command.
type AckPayload struct {
	AckedType MessageType `json:"acked_type"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
}
