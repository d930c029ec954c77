package session

import (
	"fmt"
	"time"

	"callkit/core"
	"callkit/protocol"
	"callkit/transports"

	"github.com/google/uuid"
)

// handleConnected runs while Connect is joining the room. Status is set by
// Connect itself once the attempt returns.
func (s *Session) handleConnected() {
	s.mu.Lock()
	active := s.status.Connecting || s.status.Connected
	s.mu.Unlock()
	if !active {
		s.log().Debug("ignoring connected event outside a call")
		return
	}

	s.log().Info("room connected")
	s.setAgentState(AgentConnecting)
	s.detectAgent()
}

// detectAgent adopts an agent participant when none is tracked yet.
func (s *Session) detectAgent() {
	if s.AgentIdentity() != "" {
		return
	}
	p, ok := pickAgent(s.room.RemoteParticipants(), s.opts.agentMatcher)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.agentIdentity != "" {
		s.mu.Unlock()
		return
	}
	s.agentIdentity = p.Identity
	s.mu.Unlock()

	s.log().Info("agent participant detected", "identity", p.Identity)
	s.setAgentState(AgentInitializing)
}

func (s *Session) handleParticipantConnected(p transports.Participant) {
	s.log().Debug("participant connected", "identity", p.Identity)
	s.detectAgent()
}

func (s *Session) handleParticipantDisconnected(p transports.Participant) {
	s.mu.Lock()
	isAgent := p.Identity != "" && p.Identity == s.agentIdentity
	if isAgent {
		s.agentIdentity = ""
		s.monitoredID = ""
	}
	s.mu.Unlock()
	if !isAgent {
		return
	}

	s.log().Info("agent participant left", "identity", p.Identity)
	s.monitor.Stop()
	s.setAgentState(AgentDisconnected)
}

func (s *Session) handleTrackSubscribed(track transports.RemoteTrack, p transports.Participant) {
	if track.Kind() != transports.TrackKindAudio || p.Local {
		return
	}

	s.mu.Lock()
	s.playing[track.ID()] = true
	adopt := s.agentIdentity == "" || s.agentIdentity == p.Identity
	if adopt {
		s.agentIdentity = p.Identity
		s.monitoredID = track.ID()
	}
	s.mu.Unlock()

	if s.opts.playback != nil {
		s.opts.playback.Attach(track, p)
	}
	if !adopt {
		return
	}

	s.log().Info("agent audio track subscribed", "identity", p.Identity, "track_id", track.ID())
	if err := s.monitor.Start(track); err != nil {
		s.log().Warn("audio level monitor failed to start", "error", err)
	}
	s.setAgentState(AgentListening)
}

func (s *Session) handleTrackUnsubscribed(track transports.RemoteTrack, p transports.Participant) {
	if track.Kind() != transports.TrackKindAudio {
		return
	}

	s.mu.Lock()
	wasPlaying := s.playing[track.ID()]
	delete(s.playing, track.ID())
	monitored := s.monitoredID == track.ID()
	if monitored {
		s.monitoredID = ""
	}
	s.mu.Unlock()

	if wasPlaying && s.opts.playback != nil {
		s.opts.playback.Detach(track.ID())
	}
	if monitored {
		s.monitor.Stop()
	}
}

func (s *Session) handleTranscription(segments []transports.TranscriptionSegment, p transports.Participant) {
	local := p.Local || (p.Identity != "" && p.Identity == s.room.LocalIdentity())
	role := RoleAssistant
	if local {
		role = RoleUser
	}

	for _, seg := range segments {
		received := seg.ReceivedAt
		if received.IsZero() {
			received = time.Now()
		}
		id := seg.ID
		if id == "" {
			id = s.utteranceID(p.Identity, received, seg.Final)
		}
		s.transcriptions.Emit(TranscriptionSegment{
			ID:        id,
			Text:      seg.Text,
			Role:      role,
			Timestamp: received,
			IsFinal:   seg.Final,
		})
	}
}

// utteranceID returns the id of the open utterance of identity, creating it
// from the first receive time. A final segment closes the utterance.
func (s *Session) utteranceID(identity string, received time.Time, final bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.utterances[identity]
	if !ok {
		id = fmt.Sprintf("%s-%d", identity, received.UnixMilli())
		s.utterances[identity] = id
	}
	if final {
		delete(s.utterances, identity)
	}
	return id
}

func (s *Session) handleData(msg transports.DataMessage, p transports.Participant) {
	if msg.Topic == protocol.ChatTopic {
		text := protocol.DecodeChat(msg.Payload)
		s.transcriptions.Emit(TranscriptionSegment{
			ID:        uuid.NewString(),
			Text:      text,
			Role:      RoleAssistant,
			Timestamp: time.Now(),
			IsFinal:   true,
		})
	}

	if state, ok := protocol.DecodeAgentState(msg.Payload); ok {
		s.log().Debug("agent state announced", "from", p.Identity, "state", state)
		s.setAgentState(AgentState(state))
	}
}

func (s *Session) handleMediaError(err error) {
	s.log().Warn("media devices error", "error", err)
	s.errs.Emit(core.NewTransportError("media devices error", err))
}

func (s *Session) handleDisconnected() {
	s.monitor.Stop()

	s.mu.Lock()
	var st Status
	changed := false
	if !s.status.Connecting && s.status != (Status{}) {
		s.status = Status{}
		st, changed = s.status, true
	}
	s.agentIdentity = ""
	s.monitoredID = ""
	s.utterances = make(map[string]string)
	playing := s.playing
	s.playing = make(map[string]bool)
	mic := s.mic
	s.mic = nil
	s.mu.Unlock()

	s.log().Info("room disconnected")
	if mic != nil {
		mic.Close()
	}
	if s.opts.playback != nil {
		for id := range playing {
			s.opts.playback.Detach(id)
		}
	}
	if changed {
		s.statuses.Emit(st)
	}
	s.setAgentState(AgentDisconnected)
}

// handleSpeakingChanged toggles listening and speaking. Other states ignore it.
func (s *Session) handleSpeakingChanged(speaking bool) {
	if speaking {
		s.transitionAgentState(AgentListening, AgentSpeaking)
		return
	}
	s.transitionAgentState(AgentSpeaking, AgentListening)
}
