// Package transports defines the boundary between a session and the real-time
// media library that carries it.
package transports

import (
	"context"
	"time"

	"callkit/audio"
)

// TrackKind distinguishes remote media tracks.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Participant identifies a room member.
type Participant struct {
	Identity string
	Name     string
	Local    bool
}

// RemoteTrack is a subscribed remote media track. Audio tracks also act as an
// audio.Source delivering decoded mono PCM16.
type RemoteTrack interface {
	audio.Source
	ID() string
	Kind() TrackKind
}

// TranscriptionSegment is one segment of a transcription batch as reported by
// the transport.
type TranscriptionSegment struct {
	ID         string
	Text       string
	Final      bool
	ReceivedAt time.Time
}

// DataMessage is an application payload received from a participant.
type DataMessage struct {
	Payload []byte
	Topic   string
}

// MicrophoneState is derived from the local microphone publication.
type MicrophoneState struct {
	Enabled bool
	Muted   bool
}

// Callbacks receive room events. Any field may be nil. Callbacks arrive on
// transport goroutines.
type Callbacks struct {
	OnConnected               func()
	OnDisconnected            func()
	OnParticipantConnected    func(p Participant)
	OnParticipantDisconnected func(p Participant)
	OnTrackSubscribed         func(track RemoteTrack, p Participant)
	OnTrackUnsubscribed       func(track RemoteTrack, p Participant)
	OnTranscriptionReceived   func(segments []TranscriptionSegment, p Participant)
	OnDataReceived            func(msg DataMessage, p Participant)
	OnMediaDevicesError       func(err error)
}

// Microphone is an acquired local capture track that has not been published yet.
type Microphone interface {
	// WriteSamples queues captured mono PCM16 for sending.
	WriteSamples(samples []int16) error
	Close() error
}

// Room is the media room a session drives.
type Room interface {
	SetCallbacks(cb Callbacks)

	// PrepareConnection is a latency hint; it may do nothing.
	PrepareConnection(ctx context.Context, url, token string) error
	Connect(ctx context.Context, url, token string) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	AcquireMicrophone(ctx context.Context, opts audio.CaptureOptions) (Microphone, error)
	PublishMicrophone(ctx context.Context, mic Microphone) error
	// SetMicrophoneEnabled publishes a default microphone when enabling
	// without one.
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	MicrophoneState() MicrophoneState
	// Microphone is the published microphone, nil when none.
	Microphone() Microphone

	SendText(ctx context.Context, text, topic string) error

	LocalIdentity() string
	RemoteParticipants() []Participant
	SupportedConstraints() audio.Constraints
}
