// Package controlplane relays session events and logs to a monitor over a
// WebSocket and executes the monitor's commands against the session.
package controlplane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callkit/core"
	"callkit/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultSendBufferSize    = 256
	writeTimeout             = 10 * time.Second
)

// ClientConfig configures the relay client.
type ClientConfig struct {
	ConnectURL string
	// ClientID identifies this process to the monitor. Generated when empty.
	ClientID          string
	AgentID           string
	Version           string
	Metadata          map[string]string
	HeartbeatInterval time.Duration
	SendBufferSize    int
	Dialer            *websocket.Dialer
	Logger            *core.Logger
}

// Client is the outbound WebSocket connection to the monitor. Outgoing
// messages go through a bounded buffer that drops the oldest entry when full.
type Client struct {
	config ClientConfig
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *core.Logger

	mu       sync.Mutex
	commands Commander
	status   string
	callID   string

	sendCh    chan []byte
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

// NewClient creates a relay client. Call Connect to dial.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetLogger()
	}
	return &Client{
		config: cfg,
		logger: cfg.Logger.Component("controlplane"),
		status: "idle",
		sendCh: make(chan []byte, cfg.SendBufferSize),
		done:   make(chan struct{}),
	}
}

// ClientID returns the identifier sent at registration.
func (c *Client) ClientID() string {
	return c.config.ClientID
}

// Connect dials the monitor, registers and starts the read, write and
// heartbeat loops. Cancelling ctx closes the connection.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.logger.Info("connecting to monitor", "url", c.config.ConnectURL)

	conn, _, err := c.config.Dialer.DialContext(c.ctx, c.config.ConnectURL, nil)
	if err != nil {
		c.cancel()
		return fmt.Errorf("controlplane: dial %q: %w", c.config.ConnectURL, err)
	}
	c.conn = conn

	reg := protocol.RegisterPayload{
		ClientID:  c.config.ClientID,
		Version:   c.config.Version,
		AgentID:   c.config.AgentID,
		Metadata:  c.config.Metadata,
		Timestamp: time.Now().UTC(),
	}
	if err := c.send(protocol.MsgRegister, reg); err != nil {
		conn.Close()
		c.cancel()
		return fmt.Errorf("controlplane: send register: %w", err)
	}

	c.logger.Info("registered with monitor", "client_id", c.config.ClientID)

	go c.readLoop()
	go c.writeLoop()
	go c.heartbeatLoop()
	go func() {
		<-c.ctx.Done()
		c.Close()
	}()

	return nil
}

// SendLog forwards one log line of a call.
func (c *Client) SendLog(callID string, entry protocol.LogEntry) {
	c.enqueue(protocol.MsgLog, protocol.LogPayload{
		ClientID: c.config.ClientID,
		CallID:   callID,
		Entry:    entry,
	})
}

// SendEvent forwards one session event.
func (c *Client) SendEvent(category protocol.EventCategory, data any) {
	raw, err := protocol.MarshalData(data)
	if err != nil {
		c.logger.Warn("failed to marshal event, dropping", "category", string(category), "error", err)
		return
	}
	c.enqueue(protocol.MsgEvent, protocol.EventPayload{
		ClientID: c.config.ClientID,
		CallID:   c.CallID(),
		EventID:  uuid.NewString(),
		Category: category,
		Data:     raw,
	})
}

// SendLogEnd signals that a call's log stream has ended.
func (c *Client) SendLogEnd(callID string) {
	c.enqueue(protocol.MsgLogEnd, protocol.LogEndPayload{
		ClientID: c.config.ClientID,
		CallID:   callID,
	})
}

// SetStatus updates the status reported by heartbeats.
func (c *Client) SetStatus(status, callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.callID = callID
}

// CallID is the call currently reported to the monitor.
func (c *Client) CallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callID
}

// Done is closed when the connection drops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the connection drops or the context is cancelled.
func (c *Client) Wait() {
	<-c.done
}

// Close shuts down the client.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) send(msgType protocol.MessageType, payload any) error {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) enqueue(msgType protocol.MessageType, payload any) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		c.logger.Warn("failed to marshal message, dropping", "type", string(msgType), "error", err)
		return
	}
	select {
	case c.sendCh <- data:
	default:
		// Full: drop the oldest and push the new one.
		select {
		case <-c.sendCh:
		default:
		}
		select {
		case c.sendCh <- data:
		default:
		}
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.doneOnce.Do(func() { close(c.done) })
		c.cancel()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("monitor connection lost", "error", err)
			}
			return
		}

		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.Warn("invalid message from monitor", "error", err)
			continue
		}
		c.handleCommand(msgType, payload)
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("write to monitor failed", "error", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			hb := protocol.HeartbeatPayload{
				ClientID:  c.config.ClientID,
				Timestamp: time.Now().UTC(),
				CallID:    c.callID,
				Status:    c.status,
			}
			c.mu.Unlock()
			c.enqueue(protocol.MsgHeartbeat, hb)
		case <-c.ctx.Done():
			return
		}
	}
}
