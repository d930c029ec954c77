package protocol

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChatTopic is the data topic carrying chat text between client and agent.
const ChatTopic = "lk.chat"

// ChatMessage is the payload published on ChatTopic.
type ChatMessage struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Message   string `json:"message"`
}

// NewChatMessage stamps text with a fresh id and the current time.
func NewChatMessage(text string, now time.Time) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Timestamp: now.UnixMilli(),
		Message:   text,
	}
}

// EncodeChat serialises msg for SendText.
func EncodeChat(msg ChatMessage) (string, error) {
	return json.MarshalToString(msg)
}

type inboundChat struct {
	Message *string `json:"message"`
	Text    *string `json:"text"`
}

// DecodeChat extracts chat text from a payload received on ChatTopic. Payloads
// that are not a JSON object with message or text are returned verbatim.
func DecodeChat(payload []byte) string {
	var in inboundChat
	if err := json.Unmarshal(payload, &in); err == nil {
		if in.Message != nil {
			return *in.Message
		}
		if in.Text != nil {
			return *in.Text
		}
	}
	return string(payload)
}

// AgentState values announced by the agent.
var agentStates = map[string]bool{
	"disconnected": true,
	"connecting":   true,
	"initializing": true,
	"listening":    true,
	"thinking":     true,
	"speaking":     true,
}

type agentStateAnnouncement struct {
	Type       string `json:"type"`
	AgentState string `json:"agent_state"`
	State      string `json:"state"`
}

// DecodeAgentState reads an explicit agent-state announcement. It accepts
// {"agent_state": s} or {"type": "agent_state", "state": s}. Unknown states
// are rejected.
func DecodeAgentState(payload []byte) (string, bool) {
	var a agentStateAnnouncement
	if err := json.Unmarshal(payload, &a); err != nil {
		return "", false
	}
	state := a.AgentState
	if state == "" && a.Type == "agent_state" {
		state = a.State
	}
	state = strings.ToLower(strings.TrimSpace(state))
	if !agentStates[state] {
		return "", false
	}
	return state, true
}
