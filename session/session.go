// Package session drives one real-time voice call: it negotiates credentials,
// joins the media room with retry, derives the agent's state from room events
// and fans everything out to subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"callkit/audio"
	"callkit/connection"
	"callkit/core"
	"callkit/events"
	"callkit/observability"
	"callkit/protocol"
	"callkit/transports"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Backend negotiates and terminates calls.
type Backend interface {
	connection.Negotiator
	EndCall(ctx context.Context, callID, endToken string) error
}

// Session is one voice session at a time against a single room. Subscriber
// sets outlive individual calls.
type Session struct {
	room     transports.Room
	backend  Backend
	provider *connection.Provider
	monitor  *audio.Monitor
	opts     options
	logger   *core.Logger

	mu            sync.Mutex
	status        Status
	agentState    AgentState
	agentIdentity string
	connectGen    int
	connectCancel context.CancelFunc
	mic           transports.Microphone
	monitoredID   string
	playing       map[string]bool
	utterances    map[string]string
	callLog       *core.CallLogWriter
	callLogger    *core.Logger

	transcriptions events.Registry[TranscriptionSegment]
	statuses       events.Registry[Status]
	errs           events.Registry[error]
	agentStates    events.Registry[AgentState]
	audioLevels    events.Registry[AudioLevelInfo]
	micStates      events.Registry[MicrophoneState]
}

// New creates a session on room. backend may be nil when every Connect
// supplies ServerURL and ParticipantToken.
func New(room transports.Room, backend Backend, opts ...Option) *Session {
	o := options{
		retryDelay:   DefaultRetryDelay,
		maxAttempts:  DefaultMaxAttempts,
		agentMatcher: IsAgentIdentity,
		logger:       core.GetLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if o.logWriter != nil {
		logger = core.NewTeeLogger(logger, o.logWriter)
	}
	logger = logger.Component("session")

	var negotiator connection.Negotiator
	if backend != nil {
		negotiator = backend
	}

	s := &Session{
		room:       room,
		backend:    backend,
		provider:   connection.NewProvider(negotiator, o.apiKey, logger),
		opts:       o,
		logger:     logger,
		agentState: AgentDisconnected,
		playing:    make(map[string]bool),
		utterances: make(map[string]string),
	}
	s.monitor = audio.NewMonitor(audio.MonitorConfig{
		Interval:          o.monitorInterval,
		StopWhen:          func() bool { return !room.IsConnected() },
		OnLevel:           s.audioLevels.Emit,
		OnSpeakingChanged: s.handleSpeakingChanged,
		Logger:            logger,
	})
	room.SetCallbacks(transports.Callbacks{
		OnConnected:               s.handleConnected,
		OnDisconnected:            s.handleDisconnected,
		OnParticipantConnected:    s.handleParticipantConnected,
		OnParticipantDisconnected: s.handleParticipantDisconnected,
		OnTrackSubscribed:         s.handleTrackSubscribed,
		OnTrackUnsubscribed:       s.handleTrackUnsubscribed,
		OnTranscriptionReceived:   s.handleTranscription,
		OnDataReceived:            s.handleData,
		OnMediaDevicesError:       s.handleMediaError,
	})
	return s
}

// log returns the per-call logger while a call log is open.
func (s *Session) log() *core.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callLogger != nil {
		return s.callLogger
	}
	return s.logger
}

// Connect joins a call. It fails with an already_active error while a call is
// connected or connecting, and with a configuration error when no credential
// is available; neither emits events. Failures after that point are delivered
// to error subscribers and returned.
func (s *Session) Connect(ctx context.Context, opts ConnectOptions) error {
	s.mu.Lock()
	if s.status.Connected || s.status.Connecting {
		s.mu.Unlock()
		return core.NewAlreadyActiveError()
	}
	if err := s.provider.Check(opts.resolveOptions()); err != nil {
		s.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.connectGen++
	gen := s.connectGen
	s.connectCancel = cancel
	s.status = Status{Connecting: true}
	st := s.status
	s.mu.Unlock()
	defer cancel()

	start := time.Now()
	s.statuses.Emit(st)
	s.log().Info("connecting", "agent_id", opts.AgentID, "test", opts.Test)

	details, err := s.provider.Resolve(ctx, opts.resolveOptions())
	if err != nil {
		return s.failConnect(gen, start, err)
	}

	go func() {
		if err := s.room.PrepareConnection(ctx, details.ServerURL, details.ParticipantToken); err != nil {
			s.log().Debug("prepare connection failed", "error", err)
		}
	}()

	capture := audio.BuildCaptureOptions(s.room.SupportedConstraints(), opts.Audio)
	attempts := 0
	err = retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempts++
		err := s.attempt(ctx, details, capture)
		observability.RecordConnectAttempt(err)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		s.log().Warn("connect attempt failed", "attempt", attempts, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return s.failConnect(gen, start, exhausted(attempts, err))
	}

	s.mu.Lock()
	if s.connectGen != gen {
		s.mu.Unlock()
		s.room.Disconnect(context.Background())
		observability.RecordConnect(start, context.Canceled)
		return core.NewTransportError("connect aborted by disconnect", context.Canceled)
	}
	s.status = Status{Connected: true, CallID: details.CallID}
	s.connectCancel = nil
	st = s.status
	s.mu.Unlock()

	s.openCallLog(details.CallID, opts.AgentID)
	observability.RecordConnect(start, nil)
	s.log().Info("connected", "call_id", details.CallID, "attempts", attempts)
	s.statuses.Emit(st)
	return nil
}

// backoff waits attempt x retryDelay between attempts.
func (s *Session) backoff() retry.Backoff {
	var n int64
	delay := s.opts.retryDelay
	return retry.WithMaxRetries(uint64(s.opts.maxAttempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return time.Duration(n) * delay, false
	}))
}

// attempt races microphone acquisition against the room join. A microphone
// failure does not fail the attempt.
func (s *Session) attempt(ctx context.Context, details connection.Details, capture audio.CaptureOptions) error {
	var mic transports.Microphone
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.room.AcquireMicrophone(gctx, capture)
		if err != nil {
			s.log().Warn("microphone unavailable, continuing without audio input", "error", err)
			return nil
		}
		mic = m
		return nil
	})
	g.Go(func() error {
		return s.room.Connect(gctx, details.ServerURL, details.ParticipantToken)
	})
	if err := g.Wait(); err != nil {
		if mic != nil {
			mic.Close()
		}
		return err
	}

	if mic == nil {
		return nil
	}
	if err := s.room.PublishMicrophone(ctx, mic); err != nil {
		s.log().Warn("microphone publish failed", "error", err)
		mic.Close()
		return nil
	}
	s.mu.Lock()
	prev := s.mic
	s.mic = mic
	s.mu.Unlock()
	if prev != nil && prev != mic {
		prev.Close()
	}
	return nil
}

// exhausted returns the last attempt error. SDK errors pass through; others
// become transport errors carrying the same message.
func exhausted(attempts int, last error) error {
	if last == nil {
		return core.NewTransportError(fmt.Sprintf("failed to connect after %d attempts", attempts), nil)
	}
	var sdkErr *core.Error
	if errors.As(last, &sdkErr) {
		return last
	}
	return core.NewTransportError(last.Error(), last)
}

func (s *Session) failConnect(gen int, start time.Time, err error) error {
	observability.RecordConnect(start, err)

	s.mu.Lock()
	if s.connectGen != gen {
		s.mu.Unlock()
		return core.NewTransportError("connect aborted by disconnect", errors.Join(context.Canceled, err))
	}
	s.status = Status{Error: err.Error()}
	s.connectCancel = nil
	st := s.status
	s.mu.Unlock()

	s.log().Error("connect failed", "error", err)
	s.statuses.Emit(st)
	s.errs.Emit(err)
	return err
}

func (s *Session) openCallLog(callID, agentID string) {
	if s.opts.callLogDir == "" || callID == "" {
		return
	}
	w, err := core.NewCallLogWriter(s.opts.callLogDir, callID, agentID)
	if err != nil {
		s.logger.Warn("call log unavailable", "error", err)
		return
	}
	logger := core.NewTeeLogger(s.logger, w).With(map[string]any{"call_id": callID})

	s.mu.Lock()
	s.callLog = w
	s.callLogger = logger
	s.mu.Unlock()
	logger.Info("call log opened", "path", w.Path())
}

// Disconnect ends the call. It never fails: transport and termination errors
// are logged. An in-flight Connect is cancelled and returns a transport error.
func (s *Session) Disconnect(ctx context.Context) {
	logger := s.log()

	s.mu.Lock()
	cancel := s.connectCancel
	s.connectCancel = nil
	s.connectGen++
	mic := s.mic
	s.mic = nil
	prevStatus := s.status
	s.status = Status{}
	prevAgent := s.agentState
	s.agentState = AgentDisconnected
	s.agentIdentity = ""
	s.monitoredID = ""
	s.utterances = make(map[string]string)
	playing := s.playing
	s.playing = make(map[string]bool)
	callLog := s.callLog
	s.callLog = nil
	s.callLogger = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.monitor.Stop()

	if err := s.room.Disconnect(ctx); err != nil {
		logger.Warn("room disconnect failed", "error", err)
	}
	if s.opts.playback != nil {
		for id := range playing {
			s.opts.playback.Detach(id)
		}
	}
	if mic != nil {
		mic.Close()
	}

	details, ok := s.provider.Cached()
	s.provider.Reset()
	if ok && details.EndToken != "" && details.CallID != "" && s.backend != nil {
		err := s.backend.EndCall(ctx, details.CallID, details.EndToken)
		observability.RecordCallEnd(err)
		if err != nil {
			logger.Warn("end call notification failed", "call_id", details.CallID, "error", err)
		} else {
			logger.Info("call ended", "call_id", details.CallID)
		}
	}

	if prevAgent != AgentDisconnected {
		observability.RecordAgentState(string(AgentDisconnected))
		s.agentStates.Emit(AgentDisconnected)
	}
	if prevStatus != (Status{}) {
		s.statuses.Emit(Status{})
	}
	if callLog != nil {
		callLog.Close()
	}
}

// SendMessage sends chat text to the agent.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	if !s.IsConnected() {
		return core.NewNotConnectedError()
	}
	payload, err := protocol.EncodeChat(protocol.NewChatMessage(text, time.Now()))
	if err != nil {
		return fmt.Errorf("session: encode chat: %w", err)
	}
	if err := s.room.SendText(ctx, payload, protocol.ChatTopic); err != nil {
		return core.NewTransportError("send message", err)
	}
	return nil
}

// SetMicrophoneEnabled toggles the microphone and emits the resulting state.
func (s *Session) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	if !s.IsConnected() {
		return core.NewNotConnectedError()
	}
	if err := s.room.SetMicrophoneEnabled(ctx, enabled); err != nil {
		return core.NewTransportError("set microphone", err)
	}
	if mic := s.room.Microphone(); mic != nil {
		s.mu.Lock()
		if s.mic == nil && s.status.Connected {
			s.mic = mic
		}
		s.mu.Unlock()
	}
	s.micStates.Emit(s.room.MicrophoneState())
	return nil
}

// PublishAudio sends captured mono PCM16 through the published microphone.
func (s *Session) PublishAudio(samples []int16) error {
	s.mu.Lock()
	connected := s.status.Connected
	mic := s.mic
	s.mu.Unlock()
	if !connected {
		return core.NewNotConnectedError()
	}
	if mic == nil {
		return core.NewTransportError("publish audio", errors.New("no microphone published"))
	}
	return mic.WriteSamples(samples)
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Connected
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) AgentState() AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentState
}

// AgentIdentity is the identity of the participant tracked as the agent.
func (s *Session) AgentIdentity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentIdentity
}

func (s *Session) MicrophoneState() MicrophoneState {
	return s.room.MicrophoneState()
}

func (s *Session) OnTranscription(fn func(TranscriptionSegment)) (unsubscribe func()) {
	return s.transcriptions.Add(fn)
}

func (s *Session) OnStatusChange(fn func(Status)) (unsubscribe func()) {
	return s.statuses.Add(fn)
}

func (s *Session) OnError(fn func(error)) (unsubscribe func()) {
	return s.errs.Add(fn)
}

// OnAgentStateChange subscribes fn and calls it with the current state.
func (s *Session) OnAgentStateChange(fn func(AgentState)) (unsubscribe func()) {
	remove := s.agentStates.Add(fn)
	if fn != nil {
		fn(s.AgentState())
	}
	return remove
}

func (s *Session) OnAudioLevel(fn func(AudioLevelInfo)) (unsubscribe func()) {
	return s.audioLevels.Add(fn)
}

// OnMicrophoneStateChange subscribes fn and calls it with the current state.
func (s *Session) OnMicrophoneStateChange(fn func(MicrophoneState)) (unsubscribe func()) {
	remove := s.micStates.Add(fn)
	if fn != nil {
		fn(s.room.MicrophoneState())
	}
	return remove
}

// setAgentState records and emits state unless it is already current.
func (s *Session) setAgentState(state AgentState) {
	s.mu.Lock()
	if s.agentState == state {
		s.mu.Unlock()
		return
	}
	prev := s.agentState
	s.agentState = state
	s.mu.Unlock()

	s.emitAgentState(prev, state)
}

// transitionAgentState moves from to to only when from is current.
func (s *Session) transitionAgentState(from, to AgentState) bool {
	s.mu.Lock()
	if s.agentState != from {
		s.mu.Unlock()
		return false
	}
	s.agentState = to
	s.mu.Unlock()

	s.emitAgentState(from, to)
	return true
}

func (s *Session) emitAgentState(prev, state AgentState) {
	observability.RecordAgentState(string(state))
	s.log().Debug("agent state changed", "from", string(prev), "to", string(state))
	s.agentStates.Emit(state)
}
