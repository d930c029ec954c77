package session

import (
	"time"

	"callkit/audio"
	"callkit/connection"
	"callkit/transports"
)

// Status is the connection status of a session. Connected and Connecting are
// never both true.
type Status struct {
	Connected  bool   `json:"connected"`
	Connecting bool   `json:"connecting"`
	Error      string `json:"error,omitempty"`
	CallID     string `json:"call_id,omitempty"`
}

// AgentState is the lifecycle state of the remote agent.
type AgentState string

const (
	AgentDisconnected AgentState = "disconnected"
	AgentConnecting   AgentState = "connecting"
	AgentInitializing AgentState = "initializing"
	AgentListening    AgentState = "listening"
	AgentThinking     AgentState = "thinking"
	AgentSpeaking     AgentState = "speaking"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptionSegment is one utterance. Partial and final updates of the same
// utterance share an ID.
type TranscriptionSegment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	IsFinal   bool      `json:"is_final"`
}

type (
	AudioLevelInfo  = audio.LevelInfo
	MicrophoneState = transports.MicrophoneState
)

// ConnectOptions describe one Connect call.
type ConnectOptions struct {
	AgentID string
	// APIKey overrides the session key for negotiation.
	APIKey string
	// Metadata is sent verbatim; Config is JSON-serialized when Metadata is empty.
	Metadata    string
	Config      any
	Environment any
	// Test negotiates against the preview endpoint.
	Test bool

	// ServerURL and ParticipantToken together skip negotiation.
	ServerURL        string
	ParticipantToken string
	CallID           string

	Audio *audio.CaptureOverrides
}

func (o ConnectOptions) resolveOptions() connection.Options {
	return connection.Options{
		ServerURL:        o.ServerURL,
		ParticipantToken: o.ParticipantToken,
		CallID:           o.CallID,
		AgentID:          o.AgentID,
		APIKey:           o.APIKey,
		Metadata:         o.Metadata,
		Config:           o.Config,
		Environment:      o.Environment,
		Test:             o.Test,
	}
}

// Playback renders remote audio. Attach is called for every subscribed remote
// audio track and Detach when it goes away.
type Playback interface {
	Attach(track transports.RemoteTrack, p transports.Participant)
	Detach(trackID string)
}
