package controlplane

import (
	"context"
	"sync"
	"time"

	"callkit/core"
	"callkit/protocol"
	"callkit/session"
)

// AudioLevelInterval throttles relayed audio level events. Speaking changes
// are always relayed.
const AudioLevelInterval = 100 * time.Millisecond

const commandTimeout = 10 * time.Second

// Commander executes monitor commands.
type Commander interface {
	SendMessage(ctx context.Context, text string) error
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	Disconnect(ctx context.Context)
}

// Source is the event surface of a session.
type Source interface {
	Commander
	OnTranscription(fn func(session.TranscriptionSegment)) (unsubscribe func())
	OnStatusChange(fn func(session.Status)) (unsubscribe func())
	OnError(fn func(error)) (unsubscribe func())
	OnAgentStateChange(fn func(session.AgentState)) (unsubscribe func())
	OnAudioLevel(fn func(session.AudioLevelInfo)) (unsubscribe func())
	OnMicrophoneStateChange(fn func(session.MicrophoneState)) (unsubscribe func())
}

type errorEvent struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// Relay forwards every event of src to the monitor and routes monitor
// commands to it. The returned func detaches the relay.
func (c *Client) Relay(src Source) (detach func()) {
	c.mu.Lock()
	c.commands = src
	c.mu.Unlock()

	var (
		levelMu      sync.Mutex
		lastLevel    time.Time
		lastSpeaking bool
	)

	unsubs := []func(){
		src.OnStatusChange(func(st session.Status) {
			c.SetStatus(statusName(st), st.CallID)
			c.SendEvent(protocol.EventStatus, st)
		}),
		src.OnTranscription(func(seg session.TranscriptionSegment) {
			c.SendEvent(protocol.EventTranscription, seg)
		}),
		src.OnError(func(err error) {
			c.SendEvent(protocol.EventError, errorEvent{Type: string(core.TypeOf(err)), Message: err.Error()})
		}),
		src.OnAgentStateChange(func(state session.AgentState) {
			c.SendEvent(protocol.EventAgentState, map[string]string{"state": string(state)})
		}),
		src.OnAudioLevel(func(info session.AudioLevelInfo) {
			levelMu.Lock()
			now := time.Now()
			send := info.IsSpeaking != lastSpeaking || now.Sub(lastLevel) >= AudioLevelInterval
			if send {
				lastLevel = now
				lastSpeaking = info.IsSpeaking
			}
			levelMu.Unlock()
			if send {
				c.SendEvent(protocol.EventAudioLevel, info)
			}
		}),
		src.OnMicrophoneStateChange(func(st session.MicrophoneState) {
			c.SendEvent(protocol.EventMicrophoneState, st)
		}),
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, unsub := range unsubs {
				unsub()
			}
			c.mu.Lock()
			if c.commands == src {
				c.commands = nil
			}
			c.mu.Unlock()
		})
	}
}

func statusName(st session.Status) string {
	switch {
	case st.Connected:
		return "connected"
	case st.Connecting:
		return "connecting"
	case st.Error != "":
		return "error"
	default:
		return "idle"
	}
}

func (c *Client) handleCommand(msgType protocol.MessageType, payload protocol.RawMessage) {
	c.mu.Lock()
	cmd := c.commands
	c.mu.Unlock()

	if cmd == nil {
		switch msgType {
		case protocol.MsgSendMessage, protocol.MsgSetMicrophone, protocol.MsgDisconnect:
			c.ack(msgType, core.NewNotConnectedError())
		default:
			c.logger.Warn("unknown message type from monitor", "type", string(msgType))
		}
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	switch msgType {
	case protocol.MsgSendMessage:
		p, err := protocol.UnmarshalPayload[protocol.SendMessagePayload](payload)
		if err == nil {
			err = cmd.SendMessage(ctx, p.Text)
		}
		c.ack(msgType, err)

	case protocol.MsgSetMicrophone:
		p, err := protocol.UnmarshalPayload[protocol.SetMicrophonePayload](payload)
		if err == nil {
			err = cmd.SetMicrophoneEnabled(ctx, p.Enabled)
		}
		c.ack(msgType, err)

	case protocol.MsgDisconnect:
		p, _ := protocol.UnmarshalPayload[protocol.DisconnectPayload](payload)
		reason := p.Reason
		if reason == "" {
			reason = "disconnect requested by monitor"
		}
		c.logger.Info("disconnect requested", "reason", reason)
		cmd.Disconnect(ctx)
		c.ack(msgType, nil)

	default:
		c.logger.Warn("unknown message type from monitor", "type", string(msgType))
	}
}

func (c *Client) ack(msgType protocol.MessageType, err error) {
	p := protocol.AckPayload{AckedType: msgType, OK: err == nil}
	if err != nil {
		p.Error = err.Error()
		c.logger.Debug("monitor command failed", "type", string(msgType), "error", err)
	}
	c.enqueue(protocol.MsgAck, p)
}
