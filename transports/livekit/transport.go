// Package livekit implements transports.Room on the LiveKit Go SDK.
package livekit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"

	"callkit/audio"
	"callkit/core"
	"callkit/transports"

	media "github.com/livekit/media-sdk"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"
)

var (
	ErrNotConnected = errors.New("livekit: room not connected")
	ErrForeignMic   = errors.New("livekit: microphone was not acquired by this room")
)

// Option configures a Room.
type Option func(*Room)

func WithLogger(logger *core.Logger) Option {
	return func(r *Room) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMicrophoneTrackName sets the published microphone track name.
func WithMicrophoneTrackName(name string) Option {
	return func(r *Room) {
		if name != "" {
			r.micTrackName = name
		}
	}
}

// WithResolver sets the resolver PrepareConnection warms.
func WithResolver(res *net.Resolver) Option {
	return func(r *Room) {
		if res != nil {
			r.resolver = res
		}
	}
}

// Room drives one lksdk.Room at a time. A new SDK room is created on every
// Connect; callbacks from previous rooms are ignored.
type Room struct {
	logger       *core.Logger
	micTrackName string
	resolver     *net.Resolver

	mu        sync.RWMutex
	cb        transports.Callbacks
	room      *lksdk.Room
	gen       int
	connected bool
	ready     bool
	pending   []func()
	tracks    map[string]*remoteTrack
	mic       *microphone
	micPub    *lksdk.LocalTrackPublication
}

var _ transports.Room = (*Room)(nil)

func NewRoom(opts ...Option) *Room {
	r := &Room{
		logger:       core.GetLogger(),
		micTrackName: "microphone",
		resolver:     net.DefaultResolver,
		tracks:       make(map[string]*remoteTrack),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Component("livekit")
	return r
}

func (r *Room) SetCallbacks(cb transports.Callbacks) {
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()
}

func (r *Room) callbacks() transports.Callbacks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cb
}

// PrepareConnection resolves the server host so the signalling dial skips DNS.
func (r *Room) PrepareConnection(ctx context.Context, serverURL, _ string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("livekit: parse server url: %w", err)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("livekit: server url %q has no host", serverURL)
	}
	if _, err := r.resolver.LookupHost(ctx, u.Hostname()); err != nil {
		return fmt.Errorf("livekit: prepare connection: %w", err)
	}
	return nil
}

type connectResult struct {
	room *lksdk.Room
	err  error
}

// Connect joins the room. Events raised by the SDK while joining are queued
// and delivered after OnConnected.
func (r *Room) Connect(ctx context.Context, serverURL, token string) error {
	r.mu.Lock()
	if r.room != nil {
		r.mu.Unlock()
		return errors.New("livekit: already connected")
	}
	r.gen++
	gen := r.gen
	r.ready = false
	r.pending = nil
	r.mu.Unlock()

	r.logger.Info("connecting to room", "url", serverURL, "autoSubscribe", true)

	done := make(chan connectResult, 1)
	go func() {
		room, err := lksdk.ConnectToRoomWithToken(serverURL, token, r.roomCallback(gen), lksdk.WithAutoSubscribe(true))
		done <- connectResult{room: room, err: err}
	}()

	var res connectResult
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if late := <-done; late.room != nil {
				late.room.Disconnect()
			}
		}()
		return ctx.Err()
	}
	if res.err != nil {
		return fmt.Errorf("livekit: connect: %w", res.err)
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		res.room.Disconnect()
		return errors.New("livekit: connect superseded by disconnect")
	}
	r.room = res.room
	r.connected = true
	r.mu.Unlock()

	r.logger.Info("connected to room",
		"room", res.room.Name(),
		"identity", res.room.LocalParticipant.Identity(),
		"participants", len(res.room.GetRemoteParticipants()),
	)

	if cb := r.callbacks().OnConnected; cb != nil {
		cb()
	}
	r.flushPending(gen)
	return nil
}

func (r *Room) flushPending(gen int) {
	for {
		r.mu.Lock()
		if r.gen != gen {
			r.mu.Unlock()
			return
		}
		if len(r.pending) == 0 {
			r.ready = true
			r.mu.Unlock()
			return
		}
		queue := r.pending
		r.pending = nil
		r.mu.Unlock()

		for _, fn := range queue {
			fn()
		}
	}
}

// dispatch runs fn now, or queues it while the join is still in flight.
// Events from a stale room are dropped.
func (r *Room) dispatch(gen int, fn func()) {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	if !r.ready {
		r.pending = append(r.pending, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn()
}

// Disconnect leaves the room and releases local and remote tracks. It is safe
// to call when not connected.
func (r *Room) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	room := r.room
	r.room = nil
	r.connected = false
	r.gen++
	r.pending = nil
	tracks := r.tracks
	r.tracks = make(map[string]*remoteTrack)
	mic := r.mic
	r.mic = nil
	r.micPub = nil
	r.mu.Unlock()

	for _, t := range tracks {
		t.close()
	}
	if mic != nil {
		mic.Close()
	}
	if room != nil {
		room.Disconnect()
		r.logger.Info("disconnected from room")
	}
	return nil
}

func (r *Room) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

func (r *Room) currentRoom() (*lksdk.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.room == nil || !r.connected {
		return nil, ErrNotConnected
	}
	return r.room, nil
}

func (r *Room) LocalIdentity() string {
	room, err := r.currentRoom()
	if err != nil {
		return ""
	}
	return room.LocalParticipant.Identity()
}

func (r *Room) RemoteParticipants() []transports.Participant {
	room, err := r.currentRoom()
	if err != nil {
		return nil
	}
	remotes := room.GetRemoteParticipants()
	out := make([]transports.Participant, 0, len(remotes))
	for _, rp := range remotes {
		out = append(out, toParticipant(rp.Identity(), rp.Name(), false))
	}
	return out
}

// SupportedConstraints reports no capture processing: samples written to the
// microphone track are sent as given.
func (r *Room) SupportedConstraints() audio.Constraints {
	return audio.Constraints{}
}

// SendText publishes text reliably on topic.
func (r *Room) SendText(ctx context.Context, text, topic string) error {
	room, err := r.currentRoom()
	if err != nil {
		return err
	}
	opts := []lksdk.DataPublishOption{lksdk.WithDataPublishReliable(true)}
	if topic != "" {
		opts = append(opts, lksdk.WithDataPublishTopic(topic))
	}
	if err := room.LocalParticipant.PublishDataPacket(lksdk.UserData([]byte(text)), opts...); err != nil {
		return fmt.Errorf("livekit: publish data on %q: %w", topic, err)
	}
	return nil
}

func (r *Room) roomCallback(gen int) *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				r.handleTrackSubscribed(gen, track, rp)
			},
			OnTrackUnsubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				r.handleTrackUnsubscribed(gen, track, rp)
			},
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				r.handleDataPacket(gen, data, params)
			},
			OnTranscriptionReceived: func(segments []*lksdk.TranscriptionSegment, p lksdk.Participant, _ lksdk.TrackPublication) {
				r.handleTranscription(gen, segments, p)
			},
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			p := toParticipant(rp.Identity(), rp.Name(), false)
			r.logger.Info("participant connected", "identity", p.Identity)
			r.dispatch(gen, func() {
				if cb := r.callbacks().OnParticipantConnected; cb != nil {
					cb(p)
				}
			})
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			p := toParticipant(rp.Identity(), rp.Name(), false)
			r.logger.Info("participant disconnected", "identity", p.Identity)
			r.dispatch(gen, func() {
				if cb := r.callbacks().OnParticipantDisconnected; cb != nil {
					cb(p)
				}
			})
		},
		OnReconnecting: func() {
			r.logger.Info("reconnecting to room")
		},
		OnReconnected: func() {
			r.logger.Info("reconnected to room")
		},
		OnDisconnected: func() {
			r.handleRoomDisconnected(gen)
		},
	}
}

func (r *Room) handleRoomDisconnected(gen int) {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.connected = false
	r.room = nil
	tracks := r.tracks
	r.tracks = make(map[string]*remoteTrack)
	r.mu.Unlock()

	for _, t := range tracks {
		t.close()
	}
	r.logger.Info("room disconnected by server")
	r.dispatch(gen, func() {
		if cb := r.callbacks().OnDisconnected; cb != nil {
			cb()
		}
	})
}

func (r *Room) handleTrackSubscribed(gen int, track *webrtc.TrackRemote, rp *lksdk.RemoteParticipant) {
	kind := transports.TrackKindVideo
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		kind = transports.TrackKindAudio
	}
	rt := newRemoteTrack(track, kind, r.logger)

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	prev := r.tracks[track.ID()]
	r.tracks[track.ID()] = rt
	r.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	p := toParticipant(rp.Identity(), rp.Name(), false)
	r.logger.Info("track subscribed",
		"trackID", track.ID(),
		"participant", p.Identity,
		"kind", string(kind),
		"codec", track.Codec().MimeType,
	)
	r.dispatch(gen, func() {
		if cb := r.callbacks().OnTrackSubscribed; cb != nil {
			cb(rt, p)
		}
	})
}

func (r *Room) handleTrackUnsubscribed(gen int, track *webrtc.TrackRemote, rp *lksdk.RemoteParticipant) {
	r.mu.Lock()
	rt, ok := r.tracks[track.ID()]
	if ok {
		delete(r.tracks, track.ID())
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	rt.close()

	p := toParticipant(rp.Identity(), rp.Name(), false)
	r.logger.Debug("track unsubscribed", "trackID", track.ID(), "participant", p.Identity)
	r.dispatch(gen, func() {
		if cb := r.callbacks().OnTrackUnsubscribed; cb != nil {
			cb(rt, p)
		}
	})
}

func (r *Room) handleDataPacket(gen int, data lksdk.DataPacket, params lksdk.DataReceiveParams) {
	user := data.ToProto().GetUser()
	if user == nil || len(user.GetPayload()) == 0 {
		return
	}
	msg := transports.DataMessage{
		Payload: append([]byte(nil), user.GetPayload()...),
		Topic:   user.GetTopic(),
	}
	p := transports.Participant{Identity: params.SenderIdentity}
	if params.Sender != nil {
		p = toParticipant(params.Sender.Identity(), params.Sender.Name(), false)
	}
	r.dispatch(gen, func() {
		if cb := r.callbacks().OnDataReceived; cb != nil {
			cb(msg, p)
		}
	})
}

func (r *Room) handleTranscription(gen int, segments []*lksdk.TranscriptionSegment, from lksdk.Participant) {
	if len(segments) == 0 {
		return
	}
	var p transports.Participant
	if from != nil {
		local := from.Identity() != "" && from.Identity() == r.LocalIdentity()
		p = toParticipant(from.Identity(), from.Name(), local)
	}

	out := make([]transports.TranscriptionSegment, 0, len(segments))
	for _, s := range segments {
		if s == nil {
			continue
		}
		out = append(out, transports.TranscriptionSegment{
			ID:         s.ID,
			Text:       s.Text,
			Final:      s.Final,
			ReceivedAt: timeNow(),
		})
	}
	r.dispatch(gen, func() {
		if cb := r.callbacks().OnTranscriptionReceived; cb != nil {
			cb(out, p)
		}
	})
}

func (r *Room) reportMediaError(err error) {
	r.logger.Error("media device error", "error", err)
	if cb := r.callbacks().OnMediaDevicesError; cb != nil {
		cb(err)
	}
}

func toParticipant(identity, name string, local bool) transports.Participant {
	return transports.Participant{Identity: identity, Name: name, Local: local}
}

// microphone is a PCM local track fed by the caller.
type microphone struct {
	track *lkmedia.PCMLocalTrack
	room  *Room
	once  sync.Once
}

func (m *microphone) WriteSamples(samples []int16) error {
	if err := m.track.WriteSample(media.PCM16Sample(samples)); err != nil {
		err = fmt.Errorf("livekit: write microphone samples: %w", err)
		m.room.reportMediaError(err)
		return err
	}
	return nil
}

func (m *microphone) Close() error {
	m.once.Do(func() {
		m.track.Close()
	})
	return nil
}

// AcquireMicrophone creates a local PCM track. Samples are supplied by the
// caller through WriteSamples; there is no device capture.
func (r *Room) AcquireMicrophone(ctx context.Context, opts audio.CaptureOptions) (transports.Microphone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	channels := opts.ChannelCount
	if channels <= 0 {
		channels = 1
	}
	track, err := lkmedia.NewPCMLocalTrack(rate, channels, nil)
	if err != nil {
		return nil, fmt.Errorf("livekit: create microphone track: %w", err)
	}
	return &microphone{track: track, room: r}, nil
}

// PublishMicrophone publishes a microphone from AcquireMicrophone.
func (r *Room) PublishMicrophone(ctx context.Context, mic transports.Microphone) error {
	m, ok := mic.(*microphone)
	if !ok || m.room != r {
		return ErrForeignMic
	}
	room, err := r.currentRoom()
	if err != nil {
		return err
	}
	pub, err := room.LocalParticipant.PublishTrack(m.track, &lksdk.TrackPublicationOptions{
		Name:   r.micTrackName,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		r.reportMediaError(err)
		return fmt.Errorf("livekit: publish microphone: %w", err)
	}

	r.mu.Lock()
	prev := r.mic
	r.mic = m
	r.micPub = pub
	r.mu.Unlock()
	if prev != nil && prev != m {
		prev.Close()
	}

	r.logger.Info("microphone published", "name", r.micTrackName, "trackSID", pub.SID())
	return nil
}

// SetMicrophoneEnabled mutes or unmutes the microphone publication, publishing
// a default microphone when enabling without one.
func (r *Room) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	if _, err := r.currentRoom(); err != nil {
		return err
	}
	r.mu.RLock()
	pub := r.micPub
	r.mu.RUnlock()

	if pub == nil {
		if !enabled {
			return nil
		}
		mic, err := r.AcquireMicrophone(ctx, audio.BuildCaptureOptions(r.SupportedConstraints(), nil))
		if err != nil {
			r.reportMediaError(err)
			return err
		}
		if err := r.PublishMicrophone(ctx, mic); err != nil {
			mic.Close()
			return err
		}
		return nil
	}
	pub.SetMuted(!enabled)
	return nil
}

func (r *Room) MicrophoneState() transports.MicrophoneState {
	r.mu.RLock()
	pub := r.micPub
	r.mu.RUnlock()
	if pub == nil {
		return transports.MicrophoneState{}
	}
	muted := pub.IsMuted()
	return transports.MicrophoneState{Enabled: !muted, Muted: muted}
}

// Microphone returns the published microphone, if any.
func (r *Room) Microphone() transports.Microphone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.mic == nil {
		return nil
	}
	return r.mic
}
