package session

import (
	"context"
	"errors"
	"sync"

	"callkit/audio"
	"callkit/transports"
)

type sentText struct {
	text  string
	topic string
}

type fakeMic struct {
	mu      sync.Mutex
	written [][]int16
	closed  int
}

func (m *fakeMic) WriteSamples(s []int16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, s)
	return nil
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

type fakeRoom struct {
	mu            sync.Mutex
	cb            transports.Callbacks
	connectErrs   []error
	connectCalls  int
	block         chan struct{}
	connected     bool
	url, token    string
	disconnects   int
	disconnectErr error
	remotes       []transports.Participant
	local         string
	acquireErr    error
	publishErr    error
	mic           *fakeMic
	micEnabled    bool
	sent          []sentText
	prepared      chan string
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{local: "user-1", prepared: make(chan string, 8)}
}

func (r *fakeRoom) SetCallbacks(cb transports.Callbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

func (r *fakeRoom) callbacks() transports.Callbacks {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cb
}

func (r *fakeRoom) PrepareConnection(_ context.Context, url, _ string) error {
	select {
	case r.prepared <- url:
	default:
	}
	return nil
}

func (r *fakeRoom) Connect(ctx context.Context, url, token string) error {
	r.mu.Lock()
	r.connectCalls++
	n := r.connectCalls
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= len(r.connectErrs) && r.connectErrs[n-1] != nil {
		return r.connectErrs[n-1]
	}

	r.mu.Lock()
	r.connected = true
	r.url, r.token = url, token
	onConnected := r.cb.OnConnected
	r.mu.Unlock()
	if onConnected != nil {
		onConnected()
	}
	return nil
}

func (r *fakeRoom) Disconnect(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
	r.connected = false
	r.mic = nil
	return r.disconnectErr
}

func (r *fakeRoom) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *fakeRoom) AcquireMicrophone(context.Context, audio.CaptureOptions) (transports.Microphone, error) {
	if r.acquireErr != nil {
		return nil, r.acquireErr
	}
	return &fakeMic{}, nil
}

func (r *fakeRoom) PublishMicrophone(_ context.Context, mic transports.Microphone) error {
	if r.publishErr != nil {
		return r.publishErr
	}
	m, ok := mic.(*fakeMic)
	if !ok {
		return errors.New("foreign mic")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mic = m
	r.micEnabled = true
	return nil
}

func (r *fakeRoom) SetMicrophoneEnabled(_ context.Context, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mic == nil && enabled {
		if r.acquireErr != nil {
			return r.acquireErr
		}
		r.mic = &fakeMic{}
	}
	r.micEnabled = enabled
	return nil
}

func (r *fakeRoom) Microphone() transports.Microphone {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mic == nil {
		return nil
	}
	return r.mic
}

func (r *fakeRoom) MicrophoneState() transports.MicrophoneState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mic == nil {
		return transports.MicrophoneState{}
	}
	return transports.MicrophoneState{Enabled: r.micEnabled, Muted: !r.micEnabled}
}

func (r *fakeRoom) SendText(_ context.Context, text, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentText{text: text, topic: topic})
	return nil
}

func (r *fakeRoom) LocalIdentity() string { return r.local }

func (r *fakeRoom) RemoteParticipants() []transports.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transports.Participant(nil), r.remotes...)
}

func (r *fakeRoom) SupportedConstraints() audio.Constraints {
	return audio.Constraints{VoiceIsolation: true}
}

func (r *fakeRoom) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectCalls
}

type fakeTrack struct {
	id      string
	kind    transports.TrackKind
	mu      sync.Mutex
	streams int
	stops   int
}

func (t *fakeTrack) ID() string                 { return t.id }
func (t *fakeTrack) Kind() transports.TrackKind { return t.kind }

func (t *fakeTrack) Stream(func([]int16)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streams++
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.stops++
	}, nil
}

type fakePlayback struct {
	mu       sync.Mutex
	attached []string
	detached []string
}

func (p *fakePlayback) Attach(track transports.RemoteTrack, _ transports.Participant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = append(p.attached, track.ID())
}

func (p *fakePlayback) Detach(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = append(p.detached, id)
}

// recorder collects values emitted to a subscription.
type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}
