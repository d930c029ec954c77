// Package callkit is a client SDK for real-time voice calls with hosted
// agents. A Client bundles the REST API services and creates sessions that
// join calls over LiveKit.
package callkit

import (
	"net/http"

	"callkit/api"
	"callkit/core"
	"callkit/session"
	"callkit/transports"
	"callkit/transports/livekit"
)

type (
	Session              = session.Session
	ConnectOptions       = session.ConnectOptions
	Status               = session.Status
	AgentState           = session.AgentState
	TranscriptionSegment = session.TranscriptionSegment
	Error                = core.Error
)

// Client is the entry point of the SDK.
type Client struct {
	*api.Client

	logger      *core.Logger
	newRoom     func() transports.Room
	sessionOpts []session.Option
}

type config struct {
	apiOpts     []api.Option
	logger      *core.Logger
	newRoom     func() transports.Room
	sessionOpts []session.Option
}

// Option configures a Client.
type Option func(*config)

// WithBaseURL points the client at another API root.
func WithBaseURL(baseURL string) Option {
	return func(c *config) { c.apiOpts = append(c.apiOpts, api.WithBaseURL(baseURL)) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.apiOpts = append(c.apiOpts, api.WithHTTPClient(hc)) }
}

func WithLogger(logger *core.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRoomFactory replaces the LiveKit room used by new sessions.
func WithRoomFactory(fn func() transports.Room) Option {
	return func(c *config) {
		if fn != nil {
			c.newRoom = fn
		}
	}
}

// WithSessionOptions applies opts to every session the client creates.
func WithSessionOptions(opts ...session.Option) Option {
	return func(c *config) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// New creates a client. apiKey may be empty when every call supplies a
// server URL and participant token.
func New(apiKey string, opts ...Option) *Client {
	cfg := config{logger: core.GetLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if cfg.newRoom == nil {
		cfg.newRoom = func() transports.Room { return livekit.NewRoom(livekit.WithLogger(logger)) }
	}

	return &Client{
		Client:      api.New(apiKey, append([]api.Option{api.WithLogger(logger)}, cfg.apiOpts...)...),
		logger:      logger,
		newRoom:     cfg.newRoom,
		sessionOpts: cfg.sessionOpts,
	}
}

// NewSession creates a session on a fresh room. opts are applied after the
// client-wide session options.
func (c *Client) NewSession(opts ...session.Option) *Session {
	base := []session.Option{
		session.WithAPIKey(c.APIKey()),
		session.WithLogger(c.logger),
	}
	base = append(base, c.sessionOpts...)
	return session.New(c.newRoom(), c.Connection, append(base, opts...)...)
}
