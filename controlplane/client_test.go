package controlplane

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"callkit/core"
	"callkit/events"
	"callkit/protocol"
	"callkit/session"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	typ     protocol.MessageType
	payload protocol.RawMessage
}

// monitor is a test WebSocket server that records every message it receives.
type monitor struct {
	srv      *httptest.Server
	received chan envelope
	conns    chan *websocket.Conn
}

func newMonitor(t *testing.T) *monitor {
	t.Helper()
	m := &monitor{
		received: make(chan envelope, 256),
		conns:    make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}
	m.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			typ, payload, err := protocol.Unmarshal(data)
			if err != nil {
				continue
			}
			m.received <- envelope{typ: typ, payload: payload}
		}
	}))
	t.Cleanup(m.srv.Close)
	return m
}

func (m *monitor) url() string {
	return "ws" + strings.TrimPrefix(m.srv.URL, "http")
}

// next returns the next message of type typ, skipping others.
func (m *monitor) next(t *testing.T, typ protocol.MessageType) protocol.RawMessage {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-m.received:
			if env.typ == typ {
				return env.payload
			}
		case <-timeout:
			t.Fatalf("no %s message received", typ)
			return nil
		}
	}
}

func (m *monitor) command(t *testing.T, typ protocol.MessageType, payload any) {
	t.Helper()
	var conn *websocket.Conn
	select {
	case conn = <-m.conns:
		m.conns <- conn
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}
	data, err := protocol.Marshal(typ, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

type fakeSource struct {
	mu       sync.Mutex
	sent     []string
	mic      []bool
	hangups  int
	sendErr  error
	statuses events.Registry[session.Status]
	segments events.Registry[session.TranscriptionSegment]
	errs     events.Registry[error]
	states   events.Registry[session.AgentState]
	levels   events.Registry[session.AudioLevelInfo]
	micState events.Registry[session.MicrophoneState]
}

func (f *fakeSource) SendMessage(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.sendErr
}

func (f *fakeSource) SetMicrophoneEnabled(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mic = append(f.mic, enabled)
	return nil
}

func (f *fakeSource) Disconnect(context.Context) {
	f.mu.Lock()
	f.hangups++
	f.mu.Unlock()
	f.statuses.Emit(session.Status{})
}

func (f *fakeSource) OnTranscription(fn func(session.TranscriptionSegment)) func() {
	return f.segments.Add(fn)
}
func (f *fakeSource) OnStatusChange(fn func(session.Status)) func() { return f.statuses.Add(fn) }
func (f *fakeSource) OnError(fn func(error)) func()                 { return f.errs.Add(fn) }
func (f *fakeSource) OnAgentStateChange(fn func(session.AgentState)) func() {
	return f.states.Add(fn)
}
func (f *fakeSource) OnAudioLevel(fn func(session.AudioLevelInfo)) func() { return f.levels.Add(fn) }
func (f *fakeSource) OnMicrophoneStateChange(fn func(session.MicrophoneState)) func() {
	return f.micState.Add(fn)
}

func connectClient(t *testing.T, m *monitor) *Client {
	t.Helper()
	c := NewClient(ClientConfig{
		ConnectURL:        m.url(),
		ClientID:          "client-1",
		Version:           "test",
		HeartbeatInterval: 10 * time.Millisecond,
		Logger:            core.NewNopLogger(),
	})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func TestConnectRegisters(t *testing.T) {
	m := newMonitor(t)
	connectClient(t, m)

	reg, err := protocol.UnmarshalPayload[protocol.RegisterPayload](m.next(t, protocol.MsgRegister))
	require.NoError(t, err)
	assert.Equal(t, "client-1", reg.ClientID)
	assert.Equal(t, "test", reg.Version)
}

func TestConnectDialFailure(t *testing.T) {
	c := NewClient(ClientConfig{ConnectURL: "ws://127.0.0.1:1/ws", Logger: core.NewNopLogger()})
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, c.ClientID())
}

func TestHeartbeatReportsStatus(t *testing.T) {
	m := newMonitor(t)
	c := connectClient(t, m)
	c.SetStatus("connected", "call123")

	for i := 0; i < 50; i++ {
		hb, err := protocol.UnmarshalPayload[protocol.HeartbeatPayload](m.next(t, protocol.MsgHeartbeat))
		require.NoError(t, err)
		if hb.Status == "connected" {
			assert.Equal(t, "call123", hb.CallID)
			return
		}
	}
	t.Fatal("heartbeat never reported the connected status")
}

func TestRelayForwardsEvents(t *testing.T) {
	m := newMonitor(t)
	c := connectClient(t, m)
	src := &fakeSource{}
	detach := c.Relay(src)
	defer detach()

	src.statuses.Emit(session.Status{Connected: true, CallID: "call123"})
	ev, err := protocol.UnmarshalPayload[protocol.EventPayload](m.next(t, protocol.MsgEvent))
	require.NoError(t, err)
	assert.Equal(t, protocol.EventStatus, ev.Category)
	assert.Equal(t, "call123", ev.CallID)
	assert.NotEmpty(t, ev.EventID)
	st, err := protocol.UnmarshalPayload[session.Status](ev.Data)
	require.NoError(t, err)
	assert.True(t, st.Connected)

	src.errs.Emit(core.NewNotConnectedError())
	ev, err = protocol.UnmarshalPayload[protocol.EventPayload](m.next(t, protocol.MsgEvent))
	require.NoError(t, err)
	assert.Equal(t, protocol.EventError, ev.Category)
	assert.Contains(t, string(ev.Data), "not_connected")

	src.segments.Emit(session.TranscriptionSegment{ID: "seg-1", Text: "hello", Role: session.RoleAssistant})
	ev, err = protocol.UnmarshalPayload[protocol.EventPayload](m.next(t, protocol.MsgEvent))
	require.NoError(t, err)
	assert.Equal(t, protocol.EventTranscription, ev.Category)
	assert.Contains(t, string(ev.Data), `"text":"hello"`)
}

func TestRelayDetachStopsForwarding(t *testing.T) {
	m := newMonitor(t)
	c := connectClient(t, m)
	src := &fakeSource{}
	detach := c.Relay(src)
	detach()
	detach()

	assert.Zero(t, src.statuses.Len())
	assert.Zero(t, src.levels.Len())
}

func TestRelayExecutesCommands(t *testing.T) {
	m := newMonitor(t)
	c := connectClient(t, m)
	src := &fakeSource{}
	defer c.Relay(src)()

	m.command(t, protocol.MsgSendMessage, protocol.SendMessagePayload{Text: "hi agent"})
	ack, err := protocol.UnmarshalPayload[protocol.AckPayload](m.next(t, protocol.MsgAck))
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgSendMessage, ack.AckedType)
	assert.True(t, ack.OK)

	m.command(t, protocol.MsgSetMicrophone, protocol.SetMicrophonePayload{Enabled: false})
	ack, err = protocol.UnmarshalPayload[protocol.AckPayload](m.next(t, protocol.MsgAck))
	require.NoError(t, err)
	assert.True(t, ack.OK)

	m.command(t, protocol.MsgDisconnect, protocol.DisconnectPayload{Reason: "done"})
	_ = m.next(t, protocol.MsgAck)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, []string{"hi agent"}, src.sent)
	assert.Equal(t, []bool{false}, src.mic)
	assert.Equal(t, 1, src.hangups)
}

func TestRelayCommandFailureIsAcked(t *testing.T) {
	m := newMonitor(t)
	c := connectClient(t, m)
	src := &fakeSource{sendErr: errors.New("data channel closed")}
	defer c.Relay(src)()

	m.command(t, protocol.MsgSendMessage, protocol.SendMessagePayload{Text: "hi"})
	ack, err := protocol.UnmarshalPayload[protocol.AckPayload](m.next(t, protocol.MsgAck))
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Equal(t, "data channel closed", ack.Error)
}

func TestCommandWithoutSessionIsRejected(t *testing.T) {
	m := newMonitor(t)
	connectClient(t, m)

	m.command(t, protocol.MsgSendMessage, protocol.SendMessagePayload{Text: "hi"})
	ack, err := protocol.UnmarshalPayload[protocol.AckPayload](m.next(t, protocol.MsgAck))
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Equal(t, "Not connected", ack.Error)
}

func TestAudioLevelsThrottled(t *testing.T) {
	m := newMonitor(t)
	c := connectClient(t, m)
	src := &fakeSource{}
	defer c.Relay(src)()

	for i := 0; i < 20; i++ {
		src.levels.Emit(session.AudioLevelInfo{Level: 0.01})
	}
	src.levels.Emit(session.AudioLevelInfo{Level: 0.5, IsSpeaking: true})

	var levels []session.AudioLevelInfo
	deadline := time.After(200 * time.Millisecond)
collect:
	for {
		select {
		case env := <-m.received:
			if env.typ != protocol.MsgEvent {
				continue
			}
			ev, err := protocol.UnmarshalPayload[protocol.EventPayload](env.payload)
			require.NoError(t, err)
			info, err := protocol.UnmarshalPayload[session.AudioLevelInfo](ev.Data)
			require.NoError(t, err)
			levels = append(levels, info)
		case <-deadline:
			break collect
		}
	}
	require.Len(t, levels, 2)
	assert.True(t, levels[1].IsSpeaking)
}

func TestSendBufferDropsOldest(t *testing.T) {
	c := NewClient(ClientConfig{SendBufferSize: 2, Logger: core.NewNopLogger()})
	c.SendLogEnd("a")
	c.SendLogEnd("b")
	c.SendLogEnd("c")

	require.Len(t, c.sendCh, 2)
	_, first, err := protocol.Unmarshal(<-c.sendCh)
	require.NoError(t, err)
	p, err := protocol.UnmarshalPayload[protocol.LogEndPayload](first)
	require.NoError(t, err)
	assert.Equal(t, "b", p.CallID)
}

func TestWSLogWriter(t *testing.T) {
	m := newMonitor(t)
	c := connectClient(t, m)
	c.SetStatus("connected", "call123")

	logger := core.NewTeeLogger(core.NewNopLogger(), NewWSLogWriter(c, ""))
	logger.Info("hello monitor", "attempt", 1)

	p, err := protocol.UnmarshalPayload[protocol.LogPayload](m.next(t, protocol.MsgLog))
	require.NoError(t, err)
	assert.Equal(t, "call123", p.CallID)
	assert.Equal(t, "hello monitor", p.Entry.Message)
	assert.Equal(t, "INFO", p.Entry.Level)

	NewWSLogWriter(c, "call999").Close()
	end, err := protocol.UnmarshalPayload[protocol.LogEndPayload](m.next(t, protocol.MsgLogEnd))
	require.NoError(t, err)
	assert.Equal(t, "call999", end.CallID)
}
